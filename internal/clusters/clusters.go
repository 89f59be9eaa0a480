// internal/clusters/clusters.go
//
// Registered deploy destinations: Kubernetes clusters and Docker hosts.
//
// Context
// -------
// A deploy target only names a cluster id or docker host; this package
// decides whether that name is registered and, for clusters, how to reach
// the API server.  Two sources feed the registry:
//
//   • static entries from process configuration (`clusters`, `docker_hosts`),
//   • an optional SQL table (`k8s_cluster`) consulted on every lookup, so a
//     cluster registered or disabled at runtime is honoured on the next
//     request without a restart.
//
// Static entries win on id collision.
//
// Notes
// -----
//   • Bearer tokens may be `vault:<path>#<key>` references.
//   • Clientsets are built lazily and reused per cluster id.
package clusters

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/ushadow-io/ushadow/internal/vault"
)

// ErrNotRegistered is returned for cluster ids or docker hosts that no
// source knows about.
var ErrNotRegistered = errors.New("clusters: not registered")

// Cluster describes how to reach one Kubernetes API server.
type Cluster struct {
	ID         string  `koanf:"id"         db:"id"              json:"id"   validate:"required"`
	Name       string  `koanf:"name"       db:"name"            json:"name"`
	Server     string  `koanf:"server"     db:"server"          json:"server,omitempty"`
	Kubeconfig string  `koanf:"kubeconfig" db:"kubeconfig_path" json:"-"`
	Context    string  `koanf:"context"    db:"context"         json:"-"`
	Token      string  `koanf:"token"      db:"token"           json:"-"`
	InCluster  bool    `koanf:"in_cluster" db:"in_cluster"      json:"in_cluster"`
	QPS        float32 `koanf:"qps"        db:"-"               json:"-"`
	Burst      int     `koanf:"burst"      db:"-"               json:"-"`
}

// DockerHost is one registered container runtime.
type DockerHost struct {
	Name string `koanf:"name" json:"name" validate:"required"`
	Host string `koanf:"host" json:"host" validate:"required"` // e.g. unix:///var/run/docker.sock
}

// Store is a dynamic cluster source.  *SQLStore implements it.
type Store interface {
	Cluster(ctx context.Context, id string) (Cluster, bool, error)
	Clusters(ctx context.Context) ([]Cluster, error)
}

// Registry is safe for concurrent use.
type Registry struct {
	static  map[string]Cluster
	docker  map[string]DockerHost
	store   Store        // optional
	secrets vault.Getter // optional

	mu      sync.Mutex
	clients map[string]kubernetes.Interface
}

var v = validator.New()

// New validates static entries.  store and secrets may be nil.
func New(static []Cluster, docker []DockerHost, store Store, secrets vault.Getter) (*Registry, error) {
	r := &Registry{
		static:  make(map[string]Cluster, len(static)),
		docker:  make(map[string]DockerHost, len(docker)),
		store:   store,
		secrets: secrets,
		clients: map[string]kubernetes.Interface{},
	}
	for _, c := range static {
		if err := v.Struct(c); err != nil {
			return nil, fmt.Errorf("clusters: cluster %q: %w", c.ID, err)
		}
		r.static[c.ID] = c
	}
	for _, h := range docker {
		if err := v.Struct(h); err != nil {
			return nil, fmt.Errorf("clusters: docker host %q: %w", h.Name, err)
		}
		r.docker[h.Name] = h
	}
	return r, nil
}

//
// Lookups
//

// Cluster returns the registered cluster id, or ErrNotRegistered.
func (r *Registry) Cluster(ctx context.Context, id string) (Cluster, error) {
	if c, ok := r.static[id]; ok {
		return c, nil
	}
	if r.store != nil {
		c, ok, err := r.store.Cluster(ctx, id)
		if err != nil {
			return Cluster{}, fmt.Errorf("clusters: lookup %q: %w", id, err)
		}
		if ok {
			return c, nil
		}
	}
	return Cluster{}, fmt.Errorf("%w: cluster %q", ErrNotRegistered, id)
}

// Clusters lists every registered cluster, sorted by id.
func (r *Registry) Clusters(ctx context.Context) ([]Cluster, error) {
	seen := make(map[string]Cluster, len(r.static))
	for id, c := range r.static {
		seen[id] = c
	}
	if r.store != nil {
		dyn, err := r.store.Clusters(ctx)
		if err != nil {
			return nil, fmt.Errorf("clusters: list: %w", err)
		}
		for _, c := range dyn {
			if _, ok := seen[c.ID]; !ok {
				seen[c.ID] = c
			}
		}
	}
	out := make([]Cluster, 0, len(seen))
	for _, c := range seen {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// DockerHost returns the registered docker host name, or ErrNotRegistered.
func (r *Registry) DockerHost(name string) (DockerHost, error) {
	if h, ok := r.docker[name]; ok {
		return h, nil
	}
	return DockerHost{}, fmt.Errorf("%w: docker host %q", ErrNotRegistered, name)
}

// DockerHosts lists registered docker hosts, sorted by name.
func (r *Registry) DockerHosts() []DockerHost {
	out := make([]DockerHost, 0, len(r.docker))
	for _, h := range r.docker {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

//
// Clientsets
//

// Clientset returns a (cached) clientset for a registered cluster.
func (r *Registry) Clientset(ctx context.Context, id string) (kubernetes.Interface, error) {
	r.mu.Lock()
	if cs, ok := r.clients[id]; ok {
		r.mu.Unlock()
		return cs, nil
	}
	r.mu.Unlock()

	c, err := r.Cluster(ctx, id)
	if err != nil {
		return nil, err
	}
	cfg, err := r.restConfig(ctx, c)
	if err != nil {
		return nil, err
	}
	cs, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("clusters: clientset %q: %w", id, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.clients[id]; ok {
		return prev, nil
	}
	r.clients[id] = cs
	zap.S().Infow("kubernetes client ready", "cluster", id, "host", cfg.Host)
	return cs, nil
}

// SetClientset injects a prebuilt clientset, e.g. a fake in tests.
func (r *Registry) SetClientset(id string, cs kubernetes.Interface) {
	r.mu.Lock()
	r.clients[id] = cs
	r.mu.Unlock()
}

func (r *Registry) restConfig(ctx context.Context, c Cluster) (*rest.Config, error) {
	var (
		cfg *rest.Config
		err error
	)
	switch {
	case c.InCluster:
		cfg, err = rest.InClusterConfig()
	case c.Kubeconfig != "":
		rules := &clientcmd.ClientConfigLoadingRules{ExplicitPath: expandHome(c.Kubeconfig)}
		overrides := &clientcmd.ConfigOverrides{CurrentContext: c.Context}
		if c.Server != "" {
			overrides.ClusterInfo.Server = c.Server
		}
		cfg, err = clientcmd.NewNonInteractiveDeferredLoadingClientConfig(rules, overrides).ClientConfig()
	case c.Server != "":
		cfg, err = clientcmd.BuildConfigFromFlags(c.Server, "")
	default:
		err = errors.New("no kubeconfig, server, or in_cluster set")
	}
	if err != nil {
		return nil, fmt.Errorf("clusters: config %q: %w", c.ID, err)
	}

	if c.Token != "" {
		tok, err := vault.Resolve(ctx, r.secrets, c.Token)
		if err != nil {
			return nil, fmt.Errorf("clusters: token %q: %w", c.ID, err)
		}
		cfg.BearerToken = tok
		cfg.BearerTokenFile = ""
	}
	if c.QPS > 0 {
		cfg.QPS = c.QPS
	}
	if c.Burst > 0 {
		cfg.Burst = c.Burst
	}
	return cfg, nil
}

// expandHome resolves a leading "~/" the way a shell would.
func expandHome(p string) string {
	if !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, p[2:])
}
