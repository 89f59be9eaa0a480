// internal/resolver/resolver.go
//
// ConfigResolver: builds the layer stack for one service and target and
// merges it.
//
// Context
// -------
// Layers, lowest to highest:
//
//  1. defaults        – config.defaults.yaml (global, then per-service)
//  2. compose         – environment baked into the service's compose file
//  3. infrastructure  – live discovery, only when the platform produced it
//  4. capabilities    – defaults of every capability the service declares
//  5. overrides       – OverrideStore, always wins
//
// The infrastructure layer is the filtered product of a scan: for each
// found type, the registry builds one URL from the first endpoint and hands
// it to every alias env var, but only aliases the service declares as
// required or optional are kept.  A service that never asked for
// REDIS_URL does not get one, whatever the scan saw.
//
// Notes
// -----
//   • Unknown service ids resolve normally with whatever layers apply.
//   • Nothing here caches resolved output; every call reads overrides fresh.
//   • Target errors (parse, unresolved) propagate.  Scan failures do not;
//     the platform reports "no discovery" and layer 3 is simply absent.
package resolver

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/ushadow-io/ushadow/internal/catalog"
	"github.com/ushadow-io/ushadow/internal/defaults"
	"github.com/ushadow-io/ushadow/internal/layers"
	"github.com/ushadow-io/ushadow/internal/metrics"
	"github.com/ushadow-io/ushadow/internal/platform"
	"github.com/ushadow-io/ushadow/internal/registry"
	"github.com/ushadow-io/ushadow/internal/scanner"
	"github.com/ushadow-io/ushadow/internal/target"
	"github.com/ushadow-io/ushadow/internal/value"
)

// OverrideReader is the read side of the override store.
type OverrideReader interface {
	Get(serviceID string) (value.Map, error)
	Services() ([]string, error)
}

// PlatformSource maps a target to its platform.  *platform.Resolver
// implements it.
type PlatformSource interface {
	Platform(ctx context.Context, t target.Target) (platform.Platform, error)
}

// Resolved is one resolution.  It is built fresh per call and never mutated
// afterwards.
type Resolved struct {
	ServiceID  string
	Target     target.Target // zero for target-less settings
	Values     value.Map
	Provenance map[string]layers.Name
	Layers     []layers.Name // layers present in the stack, lowest first
}

// Env renders values as environment variables, nulls omitted.
func (r *Resolved) Env() map[string]string {
	return layers.Resolved{Values: r.Values, Provenance: r.Provenance}.Env()
}

// Sources returns provenance as plain strings.
func (r *Resolved) Sources() map[string]string {
	return layers.Resolved{Values: r.Values, Provenance: r.Provenance}.Sources()
}

// Resolver is safe for concurrent use; all collaborators are read-only
// except the override store, which serializes its own writes.
type Resolver struct {
	defaults  *defaults.Defaults
	catalog   *catalog.Catalog
	registry  *registry.Registry
	overrides OverrideReader
	platforms PlatformSource
}

// New wires a resolver.
func New(d *defaults.Defaults, c *catalog.Catalog, reg *registry.Registry, o OverrideReader, p PlatformSource) *Resolver {
	return &Resolver{defaults: d, catalog: c, registry: reg, overrides: o, platforms: p}
}

//
// Resolution
//

// Resolve runs the full five-layer resolution for serviceID on t.
func (r *Resolver) Resolve(ctx context.Context, serviceID string, t target.Target) (*Resolved, error) {
	scheme := string(t.Scheme())
	p, err := r.platforms.Platform(ctx, t)
	if err != nil {
		metrics.ResolutionsTotal.WithLabelValues(scheme, "target_error").Inc()
		return nil, err
	}

	svc, known := r.catalog.Get(serviceID)
	if !known {
		zap.S().Debugw("resolving unknown service", "service", serviceID, "target", t.String())
	}

	ls := []layers.Layer{
		layers.New(layers.Defaults, r.defaults.For(serviceID)),
	}
	if known {
		ls = append(ls, layers.New(layers.Compose, svc.Env.Clone()))
	}
	if scan, ok := p.DiscoverInfrastructure(ctx); ok {
		var decl catalog.Declaration
		if known {
			decl = svc.Declared
		}
		ls = append(ls, layers.New(layers.Infrastructure, r.InfrastructureLayer(scan, decl)))
	}
	if known && len(svc.Capabilities) > 0 {
		ls = append(ls, layers.New(layers.Capabilities, r.capabilityLayer(svc.Capabilities)))
	}

	res, err := r.finish(serviceID, t, ls)
	if err != nil {
		metrics.ResolutionsTotal.WithLabelValues(scheme, "error").Inc()
		return nil, err
	}
	metrics.ResolutionsTotal.WithLabelValues(scheme, "ok").Inc()
	return res, nil
}

// Settings resolves defaults and overrides only, with no target.
func (r *Resolver) Settings(serviceID string) (*Resolved, error) {
	return r.finish(serviceID, target.Target{}, []layers.Layer{
		layers.New(layers.Defaults, r.defaults.For(serviceID)),
	})
}

// finish appends the override layer and merges.
func (r *Resolver) finish(serviceID string, t target.Target, ls []layers.Layer) (*Resolved, error) {
	over, err := r.overrides.Get(serviceID)
	if err != nil {
		return nil, fmt.Errorf("resolver: overrides for %q: %w", serviceID, err)
	}
	ls = append(ls, layers.New(layers.Overrides, over))

	stack, err := layers.NewStack(ls...)
	if err != nil {
		return nil, err
	}
	merged := layers.Merge(stack)

	present := make([]layers.Name, 0, len(ls))
	for _, l := range stack.Layers() {
		present = append(present, l.Name)
	}
	return &Resolved{
		ServiceID:  serviceID,
		Target:     t,
		Values:     merged.Values,
		Provenance: merged.Provenance,
		Layers:     present,
	}, nil
}

//
// Layer builders
//

// InfrastructureLayer turns scan results into env vars the service
// declares.  Types are visited in registry order, then unknown types in
// name order; the first type to claim an env var keeps it.
func (r *Resolver) InfrastructureLayer(scan map[string]scanner.Result, decl catalog.Declaration) value.Map {
	out := value.Map{}
	for _, typ := range scanOrder(r.registry, scan) {
		res := scan[typ]
		if !res.Found || len(res.Endpoints) == 0 {
			continue
		}
		url := r.registry.BuildURL(typ, res.Endpoints[0])
		for _, name := range r.registry.EnvVarsFor(typ) {
			if !decl.Declares(name) {
				continue
			}
			if _, taken := out[name]; !taken {
				out[name] = value.Str(url)
			}
		}
	}
	return out
}

func (r *Resolver) capabilityLayer(caps []string) value.Map {
	out := value.Map{}
	for _, c := range caps {
		for k, v := range r.defaults.Capability(c) {
			out[k] = v
		}
	}
	return out
}

func scanOrder(reg *registry.Registry, scan map[string]scanner.Result) []string {
	order := make([]string, 0, len(scan))
	for _, typ := range reg.Types() {
		if _, ok := scan[typ]; ok {
			order = append(order, typ)
		}
	}
	var extra []string
	for typ := range scan {
		if !reg.Known(typ) {
			extra = append(extra, typ)
		}
	}
	sort.Strings(extra)
	return append(order, extra...)
}

//
// Service listing
//

// ServiceIDs returns every id known to the catalog, the defaults file, or
// the override store, sorted and de-duplicated.
func (r *Resolver) ServiceIDs() ([]string, error) {
	seen := map[string]struct{}{}
	for _, id := range r.catalog.IDs() {
		seen[id] = struct{}{}
	}
	for _, id := range r.defaults.Services() {
		seen[id] = struct{}{}
	}
	ids, err := r.overrides.Services()
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		seen[id] = struct{}{}
	}

	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

// Catalog exposes the service catalog for listing endpoints.
func (r *Resolver) Catalog() *catalog.Catalog { return r.catalog }
