// internal/app/app.go
//
// Component wiring shared by cmd/web and cmd/ushadowctl.
//
// Context
// -------
// Build turns a loaded Config into the running object graph, in order:
//
//  1. Vault client, only when some configured secret is a `vault:` ref.
//  2. Cluster-registry database, only when `database.dsn` is set.
//  3. Cluster and docker host registry (static + optional SQL store).
//  4. Infrastructure registry, service catalog, defaults, override store.
//  5. Kubernetes scanner behind the optional TTL scan cache.
//  6. Platform resolver and the config resolver on top.
//
// Notes
// -----
//   • A missing defaults file or services directory is not an error; a
//     missing infrastructure definition is, since discovery cannot map
//     scan results without it.
//   • Close releases the DB pool and stops the cache evictor.
package app

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/ushadow-io/ushadow/internal/catalog"
	"github.com/ushadow-io/ushadow/internal/clusters"
	"github.com/ushadow-io/ushadow/internal/config"
	"github.com/ushadow-io/ushadow/internal/database"
	"github.com/ushadow-io/ushadow/internal/defaults"
	"github.com/ushadow-io/ushadow/internal/overrides"
	"github.com/ushadow-io/ushadow/internal/platform"
	"github.com/ushadow-io/ushadow/internal/registry"
	"github.com/ushadow-io/ushadow/internal/resolver"
	"github.com/ushadow-io/ushadow/internal/scancache"
	"github.com/ushadow-io/ushadow/internal/scanner"
	"github.com/ushadow-io/ushadow/internal/vault"
)

// App is the wired object graph.
type App struct {
	Config    *config.Config
	Clusters  *clusters.Registry
	Registry  *registry.Registry
	Overrides *overrides.Store
	ScanCache *scancache.Cache
	Platforms *platform.Resolver
	Resolver  *resolver.Resolver

	db *sqlx.DB
}

// Build wires every component described by cfg.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg}

	var secrets vault.Getter
	if cfg.NeedsVault() {
		vc, err := vault.New(ctx)
		if err != nil {
			return nil, fmt.Errorf("app: vault: %w", err)
		}
		secrets = vc
	}

	var store clusters.Store
	if cfg.Database.DSN != "" {
		dsn, err := cfg.Database.ResolveDSN(ctx, secrets)
		if err != nil {
			return nil, err
		}
		db, err := database.OpenWithOptions(ctx, dsn, cfg.Database.MaxOpen, cfg.Database.MaxIdle)
		if err != nil {
			return nil, fmt.Errorf("app: cluster database: %w", err)
		}
		a.db = db
		store = clusters.NewSQLStore(db)
	}

	regs, err := clusters.New(cfg.Clusters, cfg.DockerHosts, store, secrets)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Clusters = regs

	if a.Registry, err = registry.Load(cfg.Paths.Infrastructure); err != nil {
		a.Close()
		return nil, err
	}
	cat, err := catalog.Load(cfg.Paths.ServicesDir)
	if err != nil {
		a.Close()
		return nil, err
	}
	def, err := defaults.Load(cfg.Paths.Defaults)
	if err != nil {
		a.Close()
		return nil, err
	}
	if a.Overrides, err = overrides.NewStore(cfg.Paths.Overrides); err != nil {
		a.Close()
		return nil, err
	}

	sc := scanner.New(a.Registry, regs, scanner.Options{
		Timeout:     cfg.Scan.Timeout,
		Concurrency: cfg.Scan.Concurrency,
	})
	a.ScanCache = scancache.New(sc, cfg.Scan.CacheTTL)
	a.Platforms = platform.NewResolver(regs, a.ScanCache)
	a.Resolver = resolver.New(def, cat, a.Registry, a.Overrides, a.Platforms)

	zap.S().Infow("resolver ready",
		"infra_types", len(a.Registry.Types()),
		"services", len(cat.IDs()),
		"scan_cache", a.ScanCache.Enabled(),
		"sql_clusters", a.db != nil,
	)
	return a, nil
}

// Close releases resources.  Safe on a partially built App.
func (a *App) Close() {
	if a.ScanCache != nil {
		a.ScanCache.Close()
	}
	if a.db != nil {
		_ = a.db.Close()
	}
}
