package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ushadow-io/ushadow/internal/app"
	"github.com/ushadow-io/ushadow/internal/config"
	"github.com/ushadow-io/ushadow/internal/platform"
	"github.com/ushadow-io/ushadow/internal/target"
	"github.com/ushadow-io/ushadow/internal/value"
)

// appLoader builds the object graph for one command.  root is empty
// unless --root was given.
type appLoader func(ctx context.Context, root string) (*app.App, error)

func loadApp(ctx context.Context, root string) (*app.App, error) {
	var (
		cfg *config.Config
		err error
	)
	if root != "" {
		cfg, err = config.LoadFrom(root)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return app.Build(ctx, cfg)
}

func newRootCommand(load appLoader) *cobra.Command {
	var root string
	rootCmd := &cobra.Command{
		Use:   "ushadowctl",
		Short: "Inspect and edit resolved service configuration",
		Long: `ushadowctl resolves service configuration for a deploy target, edits
per-service overrides, and checks registered deploy targets.`,
		SilenceUsage: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}
	rootCmd.PersistentFlags().StringVar(&root, "root", "", "project root (defaults to USHADOW_ROOT or discovery)")

	with := func(cmd *cobra.Command, fn func(*app.App) error) error {
		a, err := load(cmd.Context(), root)
		if err != nil {
			return err
		}
		defer a.Close()
		return fn(a)
	}

	rootCmd.AddCommand(
		newResolveCommand(with),
		newOverridesCommand(with),
		newTargetsCommand(with),
	)
	return rootCmd
}

type withApp func(cmd *cobra.Command, fn func(*app.App) error) error

//
// resolve
//

func newResolveCommand(with withApp) *cobra.Command {
	var (
		deployTarget string
		sources      bool
		asJSON       bool
	)
	cmd := &cobra.Command{
		Use:   "resolve <service>",
		Short: "Print the environment a service would receive on a target",
		Example: `  ushadowctl resolve chronicle --target k8s://prod/apps
  ushadowctl resolve chronicle --target docker://local --sources`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := target.Parse(deployTarget)
			if err != nil {
				return err
			}
			return with(cmd, func(a *app.App) error {
				res, err := a.Resolver.Resolve(cmd.Context(), args[0], t)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if asJSON {
					body := map[string]any{"environment_variables": res.Env()}
					if sources {
						body["sources"] = res.Sources()
					}
					return writeJSON(out, body)
				}
				env, src := res.Env(), res.Sources()
				for _, k := range sortedKeys(env) {
					if sources {
						fmt.Fprintf(out, "%s=%s\t# %s\n", k, env[k], src[k])
						continue
					}
					fmt.Fprintf(out, "%s=%s\n", k, env[k])
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&deployTarget, "target", "t", "", "deploy target, e.g. k8s://cluster/namespace")
	cmd.Flags().BoolVar(&sources, "sources", false, "show the layer each value came from")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of KEY=VALUE lines")
	_ = cmd.MarkFlagRequired("target")
	return cmd
}

//
// overrides
//

func newOverridesCommand(with withApp) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "overrides",
		Short: "Read or write per-service overrides",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get <service>",
		Short: "Print a service's overrides as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return with(cmd, func(a *app.App) error {
				m, err := a.Overrides.Get(args[0])
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), m)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set <service> KEY=VALUE...",
		Short: "Merge values into a service's overrides",
		Long: `Values are read as JSON scalars when they parse as one (42, 0.5, true,
null, "quoted"), and as plain strings otherwise.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			partial, err := parseAssignments(args[1:])
			if err != nil {
				return err
			}
			return with(cmd, func(a *app.App) error {
				if err := a.Overrides.Update(args[0], partial); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "updated %d setting(s) for %s\n", len(partial), args[0])
				return nil
			})
		},
	})
	return cmd
}

func parseAssignments(args []string) (value.Map, error) {
	out := make(value.Map, len(args))
	for _, a := range args {
		k, v, ok := strings.Cut(a, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("expected KEY=VALUE, got %q", a)
		}
		out[k] = value.Parse(v)
	}
	return out, nil
}

//
// targets
//

func newTargetsCommand(with withApp) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "targets",
		Short: "List or check registered deploy targets",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List registered clusters and docker hosts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return with(cmd, func(a *app.App) error {
				cs, err := a.Clusters.Clusters(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				for _, c := range cs {
					fmt.Fprintf(out, "%s://%s\t%s\t%s\n", target.K8s, c.ID, c.Name, c.Server)
				}
				for _, h := range a.Clusters.DockerHosts() {
					fmt.Fprintf(out, "%s://%s\t\t%s\n", target.Docker, h.Name, h.Host)
				}
				return nil
			})
		},
	})

	var timeout time.Duration
	check := &cobra.Command{
		Use:   "check",
		Short: "Ping every registered docker host",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return with(cmd, func(a *app.App) error {
				out := cmd.OutOrStdout()
				down := 0
				for _, h := range a.Clusters.DockerHosts() {
					ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
					res := platform.ProbeDockerHost(ctx, h)
					cancel()
					if !res.Reachable {
						down++
						fmt.Fprintf(out, "%s\tDOWN\t%s\n", res.Name, res.Error)
						continue
					}
					fmt.Fprintf(out, "%s\tUP\tapi=%s os=%s %s\n", res.Name, res.APIVersion, res.OSType, res.Latency.Round(time.Millisecond))
				}
				if down > 0 {
					return fmt.Errorf("%d docker host(s) unreachable", down)
				}
				return nil
			})
		},
	}
	check.Flags().DurationVar(&timeout, "timeout", 3*time.Second, "per-host ping timeout")
	cmd.AddCommand(check)
	return cmd
}

//
// output helpers
//

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
