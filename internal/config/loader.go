// internal/config/loader.go
//
// Configuration loader and hot-reloader.
//
/*
Context
--------
`Load()` builds one immutable `Config` struct from three layers (highest
precedence last):

  1. Optional `<root>/conf/.env`.
  2. `<root>/conf/ushadow.yaml`.
  3. Environment variables prefixed `USHADOW_`, where `__` maps to "."
     (e.g., `USHADOW_SCAN__CACHE_TTL=30s → scan.cache_ttl`).

After merging, the tree is unmarshalled into typed structs, defaulted,
validated, and cached in an `atomic.Pointer` for lock-free reads.

Instrumentation
---------------
  • DEBUG spans : root discovery, YAML read, env overlay.
  • ERROR spans : YAML parse, env overlay, unmarshal, validation failures.
  • INFO  span  : final "config loaded" with key highlights.
  • Logs use the global sugared logger (`zap.S()`) so early boot issues
    surface before the file logger is installed.

Notes
-----
  • `rootDir()` climbs the cwd tree until it finds `conf/ushadow.yaml`,
    so `go run ./cmd/web` works from any sub-directory.
  • A missing YAML file is not an error; every field has a default.
*/
package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	koanf "github.com/knadh/koanf/v2"
	"go.uber.org/zap"

	"github.com/ushadow-io/ushadow/internal/vault"
)

// EnvPrefix marks process environment overrides.
const EnvPrefix = "USHADOW_"

var current atomic.Pointer[Config]

/*──────────────────────────── root discovery ───────────────────────────────*/

// rootDir resolves USHADOW_ROOT or climbs directories until
// conf/ushadow.yaml is found.  Falls back to the executable heuristic for
// the production layout.
func rootDir() string {
	if r := os.Getenv("USHADOW_ROOT"); r != "" {
		return r
	}

	wd, _ := os.Getwd()
	dir := wd
	for {
		if _, err := os.Stat(filepath.Join(dir, "conf", "ushadow.yaml")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	exe, _ := os.Executable()
	if filepath.Base(filepath.Dir(exe)) == "bin" {
		return filepath.Dir(filepath.Dir(exe))
	}
	return wd
}

/*─────────────────────────────── loader ───────────────────────────────────*/

// Load discovers the root, then behaves like LoadFrom.
func Load() (*Config, error) {
	return LoadFrom(rootDir())
}

// LoadFrom reads .env, YAML, env overrides under root, validates, and
// caches Config.
func LoadFrom(root string) (*Config, error) {
	zap.S().Debugw("config root resolved", "root", root)

	// .env (optional, no error if missing)
	_ = godotenv.Load(filepath.Join(root, "conf", ".env"))

	k := koanf.New(".")

	yamlPath := filepath.Join(root, "conf", "ushadow.yaml")
	if err := k.Load(file.Provider(yamlPath), yaml.Parser()); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			zap.S().Errorw("config yaml load failed", "file", yamlPath, "err", err)
			return nil, err
		}
		zap.S().Debugw("config yaml absent, using defaults", "file", yamlPath)
	} else {
		zap.S().Debugw("config yaml loaded", "file", yamlPath)
	}

	// Env overrides: USHADOW_HTTP__LISTEN_ADDR → http.listen_addr
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ToLower(strings.ReplaceAll(strings.TrimPrefix(s, EnvPrefix), "__", "."))
	}), nil); err != nil {
		zap.S().Errorw("config env overlay failed", "err", err)
		return nil, err
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		zap.S().Errorw("config unmarshal failed", "err", err)
		return nil, err
	}

	cfg.Paths.Root = root
	applyDefaults(&cfg)
	if err := validateStruct(&cfg); err != nil {
		zap.S().Errorw("config validation failed", "err", err)
		return nil, err
	}

	current.Store(&cfg)
	zap.S().Infow("config loaded",
		"listen_addr", cfg.HTTP.ListenAddr,
		"root", cfg.Paths.Root,
		"clusters", len(cfg.Clusters),
		"docker_hosts", len(cfg.DockerHosts),
		"scan_cache_ttl", cfg.Scan.CacheTTL,
	)
	return &cfg, nil
}

// applyDefaults fills unset fields and anchors relative paths on the root.
func applyDefaults(c *Config) {
	if c.HTTP.ListenAddr == "" {
		c.HTTP.ListenAddr = ":8080"
	}
	if c.HTTP.ShutdownTimeout == 0 {
		c.HTTP.ShutdownTimeout = 10 * time.Second
	}

	p := &c.Paths
	set := func(dst *string, def string) {
		if *dst == "" {
			*dst = def
		}
		if !filepath.IsAbs(*dst) {
			*dst = filepath.Join(p.Root, *dst)
		}
	}
	set(&p.Defaults, filepath.Join("config", "config.defaults.yaml"))
	set(&p.Overrides, filepath.Join("config", "config.overrides.yaml"))
	set(&p.Infrastructure, filepath.Join("compose", "docker-compose.infra.yml"))
	set(&p.ServicesDir, filepath.Join("compose", "services"))
	set(&p.Logs, "logs")

	if c.Database.MaxOpen == 0 {
		c.Database.MaxOpen = 5
	}
	if c.Database.MaxIdle == 0 {
		c.Database.MaxIdle = 2
	}
}

/*──────────────────────────── helpers ─────────────────────────────────────*/

// ResolveDSN returns the cluster-registry DSN with the password substituted.
// The password may be a vault reference; g may be nil when it is not.
func (d Database) ResolveDSN(ctx context.Context, g vault.Getter) (string, error) {
	if d.DSN == "" || d.Password == "" {
		return d.DSN, nil
	}
	pw, err := vault.Resolve(ctx, g, d.Password)
	if err != nil {
		return "", fmt.Errorf("config: database password: %w", err)
	}
	if !strings.Contains(d.DSN, "%s") {
		return "", fmt.Errorf("config: database.dsn has no %%s verb for the password")
	}
	return fmt.Sprintf(d.DSN, pw), nil
}

// NeedsVault reports whether any configured secret is a vault reference.
func (c *Config) NeedsVault() bool {
	if vault.IsRef(c.Database.Password) {
		return true
	}
	for _, cl := range c.Clusters {
		if vault.IsRef(cl.Token) {
			return true
		}
	}
	return false
}

// Get returns the most recently loaded Config, or nil before Load.
func Get() *Config { return current.Load() }
