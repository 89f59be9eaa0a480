// internal/platform/platform.go
//
// DeploymentPlatform: what infrastructure is visible from a deploy target.
//
// Context
// -------
// The resolver never asks "is this Kubernetes?".  It asks a Platform
// whether it produced a discovery result.  The variant set is closed:
//
//   • DockerPlatform – local or remote node runtime; never discovers.
//   • K8sPlatform    – delegates to the infrastructure scanner for its
//     cluster and namespace.
//   • CloudPlatform  – reserved for cloud targets; never discovers yet.
//
// Resolver.Platform maps a parsed target to its variant and checks, at
// request time, that the named cluster or docker host is registered.
//
// Notes
// -----
//   • A failed or timed-out scan is "no discovery result", never an error.
//     The resolution proceeds with the remaining layers.
package platform

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/ushadow-io/ushadow/internal/clusters"
	"github.com/ushadow-io/ushadow/internal/scanner"
	"github.com/ushadow-io/ushadow/internal/target"
)

// ErrUnresolvedTarget is returned for well-formed targets that name an
// unregistered cluster or docker host.
var ErrUnresolvedTarget = errors.New("platform: deploy target does not resolve to a registered cluster or host")

// Platform is the one capability the resolver needs.
type Platform interface {
	Target() target.Target
	// DiscoverInfrastructure returns scan results, or false when this
	// platform has no discovery layer for this request.
	DiscoverInfrastructure(ctx context.Context) (map[string]scanner.Result, bool)
}

// Scanner is satisfied by *scanner.Scanner and *scancache.Cache.
type Scanner interface {
	Scan(ctx context.Context, clusterID, namespace string) (map[string]scanner.Result, error)
}

//
// Variants
//

// DockerPlatform runs services on a container runtime.
type DockerPlatform struct {
	target target.Target
	Host   clusters.DockerHost
}

func (p *DockerPlatform) Target() target.Target { return p.target }

func (p *DockerPlatform) DiscoverInfrastructure(context.Context) (map[string]scanner.Result, bool) {
	return nil, false
}

// K8sPlatform runs services in a namespace of a registered cluster.
type K8sPlatform struct {
	target  target.Target
	Cluster clusters.Cluster
	scanner Scanner
}

func (p *K8sPlatform) Target() target.Target { return p.target }

func (p *K8sPlatform) DiscoverInfrastructure(ctx context.Context) (map[string]scanner.Result, bool) {
	res, err := p.scanner.Scan(ctx, p.target.ID(), p.target.Namespace())
	switch {
	case err == nil:
		return res, true
	case errors.Is(err, scanner.ErrScanTimeout):
		zap.S().Warnw("discovery skipped after scan timeout", "target", p.target.String())
	default:
		zap.S().Errorw("discovery skipped after scan failure", "target", p.target.String(), "err", err)
	}
	return nil, false
}

// CloudPlatform is a placeholder for cloud provider targets.
type CloudPlatform struct {
	target target.Target
}

func (p *CloudPlatform) Target() target.Target { return p.target }

func (p *CloudPlatform) DiscoverInfrastructure(context.Context) (map[string]scanner.Result, bool) {
	return nil, false
}

//
// Resolver
//

// Registrations answers whether a cluster id or docker host is known.
// *clusters.Registry implements it.
type Registrations interface {
	Cluster(ctx context.Context, id string) (clusters.Cluster, error)
	DockerHost(name string) (clusters.DockerHost, error)
}

// Resolver maps targets to platforms.
type Resolver struct {
	regs    Registrations
	scanner Scanner
}

// NewResolver wires registrations and the (possibly cached) scanner.
func NewResolver(regs Registrations, s Scanner) *Resolver {
	return &Resolver{regs: regs, scanner: s}
}

// Platform returns the platform for t, re-validating its registration.
func (r *Resolver) Platform(ctx context.Context, t target.Target) (Platform, error) {
	switch t.Scheme() {
	case target.K8s:
		c, err := r.regs.Cluster(ctx, t.ID())
		if err != nil {
			return nil, unresolved(t, err)
		}
		return &K8sPlatform{target: t, Cluster: c, scanner: r.scanner}, nil
	case target.Docker:
		h, err := r.regs.DockerHost(t.ID())
		if err != nil {
			return nil, unresolved(t, err)
		}
		return &DockerPlatform{target: t, Host: h}, nil
	case target.Cloud:
		return &CloudPlatform{target: t}, nil
	default:
		return nil, fmt.Errorf("%w: empty deploy target", target.ErrParse)
	}
}

// unresolved maps "not registered" to ErrUnresolvedTarget and passes other
// lookup failures (e.g. the cluster database is down) through unchanged.
func unresolved(t target.Target, err error) error {
	if errors.Is(err, clusters.ErrNotRegistered) {
		return fmt.Errorf("%w: %s", ErrUnresolvedTarget, t)
	}
	return err
}
