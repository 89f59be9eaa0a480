// internal/scanner/scanner.go
//
// InfrastructureScanner: live discovery of infrastructure services in a
// Kubernetes namespace.
//
// Context
// -------
// For every type in the registry the scanner asks the cluster:
//
//  1. Is there a Service named after the type, or labelled
//     `app.kubernetes.io/name=<type>`?
//  2. Does it have at least one ready endpoint?  (ExternalName Services are
//     taken at their word.)
//
// A hit yields in-cluster DNS endpoints, one per Service port:
// `<svc>.<ns>.svc.cluster.local:<port>`.  A miss yields
// `{Found: false, Endpoints: nil}`; absence is never turned into a
// placeholder URL.
//
// Types are probed concurrently through an errgroup.  The whole scan is
// bounded by a timeout; when it fires Scan returns ErrScanTimeout without
// waiting for stragglers, and the caller degrades to "no discovery layer".
//
// Notes
// -----
//   • Read-only: only get/list verbs are used.
//   • Per-type API failures are logged and reported as not found, so one
//     forbidden lookup does not sink the rest of the scan.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	corev1 "k8s.io/api/core/v1"
	discoveryv1 "k8s.io/api/discovery/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ushadow-io/ushadow/internal/metrics"
	"github.com/ushadow-io/ushadow/internal/registry"
)

const (
	// NameLabel is the recommended app label used for the fallback lookup.
	NameLabel = "app.kubernetes.io/name"

	DefaultTimeout     = 5 * time.Second
	DefaultConcurrency = 8
)

// ErrScanTimeout is returned when a scan does not finish in time.
var ErrScanTimeout = errors.New("scanner: scan timed out")

// Result is the per-type outcome of a scan.
type Result struct {
	Found     bool     `json:"found"`
	Endpoints []string `json:"endpoints"`
}

// ClientSource hands out a clientset for a registered cluster.
type ClientSource interface {
	Clientset(ctx context.Context, clusterID string) (kubernetes.Interface, error)
}

// Options tune a Scanner.  Zero values pick the defaults.
type Options struct {
	Timeout     time.Duration
	Concurrency int
}

// Scanner is safe for concurrent use.
type Scanner struct {
	reg     *registry.Registry
	clients ClientSource
	timeout time.Duration
	limit   int
}

// New returns a scanner over reg's types.
func New(reg *registry.Registry, clients ClientSource, opt Options) *Scanner {
	if opt.Timeout <= 0 {
		opt.Timeout = DefaultTimeout
	}
	if opt.Concurrency <= 0 {
		opt.Concurrency = DefaultConcurrency
	}
	return &Scanner{reg: reg, clients: clients, timeout: opt.Timeout, limit: opt.Concurrency}
}

// Scan probes every registry type in clusterID/namespace.
func (s *Scanner) Scan(ctx context.Context, clusterID, namespace string) (map[string]Result, error) {
	start := time.Now()
	defer func() {
		metrics.ScanDuration.WithLabelValues(clusterID).Observe(time.Since(start).Seconds())
	}()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	cs, err := s.clients.Clientset(ctx, clusterID)
	if err != nil {
		return nil, fmt.Errorf("scanner: cluster %q: %w", clusterID, err)
	}

	types := s.reg.Types()
	results := make([]Result, len(types))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.limit)

	done := make(chan error, 1)
	go func() {
		for i, typ := range types {
			i, typ := i, typ
			g.Go(func() error {
				results[i] = s.probe(gctx, cs, namespace, typ)
				return nil
			})
		}
		done <- g.Wait()
	}()

	select {
	case err := <-done:
		if err != nil {
			return nil, err
		}
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			metrics.ScanTimeoutsTotal.WithLabelValues(clusterID).Inc()
			zap.S().Warnw("infrastructure scan timed out",
				"cluster", clusterID, "namespace", namespace, "timeout", s.timeout)
			return nil, fmt.Errorf("%w after %v", ErrScanTimeout, s.timeout)
		}
		return nil, ctx.Err()
	}

	out := make(map[string]Result, len(types))
	found := 0
	for i, typ := range types {
		out[typ] = results[i]
		if results[i].Found {
			found++
		}
	}
	zap.S().Debugw("infrastructure scan complete",
		"cluster", clusterID, "namespace", namespace,
		"types", len(types), "found", found, "elapsed", time.Since(start))
	return out, nil
}

//
// Per-type probe
//

func (s *Scanner) probe(ctx context.Context, cs kubernetes.Interface, ns, typ string) Result {
	svc, err := findService(ctx, cs, ns, typ)
	if err != nil {
		if ctx.Err() == nil {
			zap.S().Warnw("service lookup failed", "namespace", ns, "type", typ, "err", err)
		}
		return Result{}
	}
	if svc == nil {
		return Result{}
	}

	host := svc.Name + "." + ns + ".svc.cluster.local"
	if svc.Spec.Type == corev1.ServiceTypeExternalName {
		host = svc.Spec.ExternalName
	} else {
		ready, err := hasReadyEndpoints(ctx, cs, ns, svc.Name)
		if err != nil {
			if ctx.Err() == nil {
				zap.S().Warnw("endpoint lookup failed", "namespace", ns, "service", svc.Name, "err", err)
			}
			return Result{}
		}
		if !ready {
			return Result{}
		}
	}

	eps := endpointsFor(host, svc.Spec.Ports)
	if len(eps) == 0 {
		return Result{}
	}
	return Result{Found: true, Endpoints: eps}
}

// findService tries the exact name, then the app label.  nil, nil is a miss.
func findService(ctx context.Context, cs kubernetes.Interface, ns, typ string) (*corev1.Service, error) {
	svc, err := cs.CoreV1().Services(ns).Get(ctx, typ, metav1.GetOptions{})
	if err == nil {
		return svc, nil
	}
	if !apierrors.IsNotFound(err) {
		return nil, err
	}

	list, err := cs.CoreV1().Services(ns).List(ctx, metav1.ListOptions{
		LabelSelector: NameLabel + "=" + typ,
	})
	if err != nil {
		return nil, err
	}
	if len(list.Items) == 0 {
		return nil, nil
	}
	return &list.Items[0], nil
}

func hasReadyEndpoints(ctx context.Context, cs kubernetes.Interface, ns, svcName string) (bool, error) {
	slices, err := cs.DiscoveryV1().EndpointSlices(ns).List(ctx, metav1.ListOptions{
		LabelSelector: discoveryv1.LabelServiceName + "=" + svcName,
	})
	if err != nil {
		return false, err
	}
	for _, sl := range slices.Items {
		for _, ep := range sl.Endpoints {
			if ep.Conditions.Ready == nil || *ep.Conditions.Ready {
				return true, nil
			}
		}
	}
	return false, nil
}

func endpointsFor(host string, ports []corev1.ServicePort) []string {
	if host == "" {
		return nil
	}
	out := make([]string, 0, len(ports))
	for _, p := range ports {
		out = append(out, host+":"+strconv.Itoa(int(p.Port)))
	}
	return out
}
