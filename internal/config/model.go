// internal/config/model.go
//
// Typed process configuration for the resolver service.
//
// Context
// -------
// These structs define the shape of the tree that `loader.go` builds from
// three overlay layers:
//
//   • optional `conf/.env`                      – dotenv values,
//   • `conf/ushadow.yaml`                       – primary static file,
//   • `USHADOW_`-prefixed environment overrides – highest precedence.
//
// This is configuration of the service itself.  The configuration the
// service *resolves* for other services lives in the files named under
// `paths`.
//
// Notes
// -----
//   • Struct tags use `koanf:"…"`, not `yaml:"…"`.
//   • Relative paths are joined onto `Paths.Root` after unmarshal.
//   • `Database.Password` may be a `vault:<path>#<key>` reference.
package config

import (
	"time"

	"github.com/ushadow-io/ushadow/internal/clusters"
)

//
// HTTP section
//

// HTTP holds web-server tunables.
type HTTP struct {
	ListenAddr      string        `koanf:"listen_addr"      validate:"required,hostname_port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gte=0"`
}

//
// Paths section
//

// Paths locates the files the resolver reads and writes.  Root is never
// read from YAML; the loader discovers it.
type Paths struct {
	Root           string `koanf:"-"`
	Defaults       string `koanf:"defaults"       validate:"required"`
	Overrides      string `koanf:"overrides"      validate:"required"`
	Infrastructure string `koanf:"infrastructure" validate:"required"`
	ServicesDir    string `koanf:"services_dir"   validate:"required"`
	Logs           string `koanf:"logs"`
}

//
// Scan section
//

// Scan tunes Kubernetes infrastructure discovery.  CacheTTL of zero
// disables the scan cache.
type Scan struct {
	Timeout     time.Duration `koanf:"timeout"     validate:"gte=0"`
	CacheTTL    time.Duration `koanf:"cache_ttl"   validate:"gte=0"`
	Concurrency int           `koanf:"concurrency" validate:"gte=0"`
}

//
// Database section
//

// Database is the optional SQL cluster registry.  An empty DSN disables
// it.  Password, when set, is substituted for the `%s` verb in DSN.
type Database struct {
	DSN      string `koanf:"dsn"`
	Password string `koanf:"password"`
	MaxOpen  int    `koanf:"max_open" validate:"gte=0"`
	MaxIdle  int    `koanf:"max_idle" validate:"gte=0"`
}

//
// Root aggregate
//

// Config is the immutable aggregate returned by Load() and cached in an
// atomic.Pointer for lock-free reads.
type Config struct {
	HTTP        HTTP                  `koanf:"http"`
	Paths       Paths                 `koanf:"paths"`
	Scan        Scan                  `koanf:"scan"`
	Database    Database              `koanf:"database"`
	Clusters    []clusters.Cluster    `koanf:"clusters"     validate:"dive"`
	DockerHosts []clusters.DockerHost `koanf:"docker_hosts" validate:"dive"`
}
