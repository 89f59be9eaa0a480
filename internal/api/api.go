// internal/api/api.go
//
// Settings API: the HTTP face of the resolver.
//
// Context
// -------
// Routes, all JSON:
//
//	GET  /api/settings/service-configs                  every service → settings
//	GET  /api/settings/service-configs/{id}             defaults + overrides
//	PUT  /api/settings/service-configs/{id}             partial override merge
//	GET  /api/settings/deployment-configs/{id}          full resolution for
//	     ?deploy_target=<t>[&include_sources=true]      one deploy target
//	GET  /api/settings/deploy-targets                   registered targets
//	GET  /api/settings/infrastructure?deploy_target=<t> raw discovery result
//	     [&refresh=true]
//
// Error mapping
// -------------
//   - malformed deploy target, bad body       → 400
//   - target names no registered cluster/host → 404
//   - anything else                           → 500
//
// Errors are returned as `{"detail": "..."}`.
//
// Notes
// -----
//   - Handlers hold no state between requests.  Identical GETs against
//     unchanged files produce byte-identical bodies; encoding/json sorts map
//     keys.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ushadow-io/ushadow/internal/clusters"
	"github.com/ushadow-io/ushadow/internal/platform"
	"github.com/ushadow-io/ushadow/internal/resolver"
	"github.com/ushadow-io/ushadow/internal/scanner"
	"github.com/ushadow-io/ushadow/internal/target"
	"github.com/ushadow-io/ushadow/internal/value"
)

// maxBody caps PUT bodies.
const maxBody = 1 << 20

// ConfigResolver is the read side.  *resolver.Resolver implements it.
type ConfigResolver interface {
	Resolve(ctx context.Context, serviceID string, t target.Target) (*resolver.Resolved, error)
	Settings(serviceID string) (*resolver.Resolved, error)
	ServiceIDs() ([]string, error)
}

// OverrideWriter is the write side.  *overrides.Store implements it.
type OverrideWriter interface {
	Update(serviceID string, partial value.Map) error
}

// Targets lists registered destinations.  *clusters.Registry implements it.
type Targets interface {
	Clusters(ctx context.Context) ([]clusters.Cluster, error)
	DockerHosts() []clusters.DockerHost
}

// PlatformSource maps targets to platforms.  *platform.Resolver
// implements it.
type PlatformSource interface {
	Platform(ctx context.Context, t target.Target) (platform.Platform, error)
}

// Invalidator drops cached scans.  *scancache.Cache implements it.
type Invalidator interface {
	Invalidate(clusterID string)
}

// Deps are the handler's collaborators.  ScanCache may be nil.
type Deps struct {
	Resolver  ConfigResolver
	Overrides OverrideWriter
	Targets   Targets
	Platforms PlatformSource
	ScanCache Invalidator
}

// Handler serves the settings API.
type Handler struct {
	d Deps
}

// New wires a handler.
func New(d Deps) *Handler { return &Handler{d: d} }

// Routes mounts every endpoint under /api/settings on r.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/api/settings", func(r chi.Router) {
		r.Get("/service-configs", h.listServiceConfigs)
		r.Get("/service-configs/{serviceID}", h.getServiceConfig)
		r.Put("/service-configs/{serviceID}", h.putServiceConfig)
		r.Get("/deployment-configs/{serviceID}", h.getDeploymentConfig)
		r.Get("/deploy-targets", h.listDeployTargets)
		r.Get("/infrastructure", h.getInfrastructure)
	})
}

//
// Service settings
//

func (h *Handler) listServiceConfigs(w http.ResponseWriter, r *http.Request) {
	ids, err := h.d.Resolver.ServiceIDs()
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make(map[string]value.Map, len(ids))
	for _, id := range ids {
		res, err := h.d.Resolver.Settings(id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		out[id] = res.Values
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) getServiceConfig(w http.ResponseWriter, r *http.Request) {
	res, err := h.d.Resolver.Settings(chi.URLParam(r, "serviceID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res.Values)
}

type updateResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func (h *Handler) putServiceConfig(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "serviceID")

	var partial value.Map
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	if err := dec.Decode(&partial); err != nil {
		writeError(w, r, badRequest("body must be a JSON object of scalar values: %v", err))
		return
	}
	if partial == nil {
		writeError(w, r, badRequest("body must be a JSON object"))
		return
	}
	if dec.More() {
		writeError(w, r, badRequest("body must contain exactly one JSON object"))
		return
	}

	if err := h.d.Overrides.Update(id, partial); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updateResponse{
		Success: true,
		Message: fmt.Sprintf("updated %d setting(s) for %s", len(partial), id),
	})
}

//
// Deployment resolution
//

type deploymentResponse struct {
	EnvironmentVariables map[string]string `json:"environment_variables"`
	Sources              map[string]string `json:"sources,omitempty"`
}

func (h *Handler) getDeploymentConfig(w http.ResponseWriter, r *http.Request) {
	t, err := targetParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	res, err := h.d.Resolver.Resolve(r.Context(), chi.URLParam(r, "serviceID"), t)
	if err != nil {
		writeError(w, r, err)
		return
	}

	out := deploymentResponse{EnvironmentVariables: res.Env()}
	if boolParam(r, "include_sources") {
		out.Sources = res.Sources()
	}
	writeJSON(w, http.StatusOK, out)
}

//
// Targets and discovery
//

type deployTarget struct {
	Target string `json:"target"`
	Type   string `json:"type"`
	ID     string `json:"id"`
	Name   string `json:"name,omitempty"`
	Detail string `json:"detail,omitempty"`
}

func (h *Handler) listDeployTargets(w http.ResponseWriter, r *http.Request) {
	cs, err := h.d.Targets.Clusters(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := []deployTarget{}
	for _, c := range cs {
		out = append(out, deployTarget{
			Target: string(target.K8s) + "://" + c.ID,
			Type:   string(target.K8s),
			ID:     c.ID,
			Name:   c.Name,
			Detail: c.Server,
		})
	}
	for _, d := range h.d.Targets.DockerHosts() {
		out = append(out, deployTarget{
			Target: string(target.Docker) + "://" + d.Name,
			Type:   string(target.Docker),
			ID:     d.Name,
			Detail: d.Host,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Target < out[j].Target })
	writeJSON(w, http.StatusOK, map[string]any{"targets": out})
}

type infrastructureResponse struct {
	Target     string                    `json:"target"`
	Discovered bool                      `json:"discovered"`
	Services   map[string]scanner.Result `json:"services"`
}

func (h *Handler) getInfrastructure(w http.ResponseWriter, r *http.Request) {
	t, err := targetParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	p, err := h.d.Platforms.Platform(r.Context(), t)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if boolParam(r, "refresh") && h.d.ScanCache != nil && t.Scheme() == target.K8s {
		h.d.ScanCache.Invalidate(t.ID())
	}

	res, ok := p.DiscoverInfrastructure(r.Context())
	if res == nil {
		res = map[string]scanner.Result{}
	}
	writeJSON(w, http.StatusOK, infrastructureResponse{Target: t.String(), Discovered: ok, Services: res})
}

//
// helpers
//

type errBadRequest struct{ msg string }

func (e errBadRequest) Error() string { return e.msg }

func badRequest(format string, args ...any) error {
	return errBadRequest{msg: fmt.Sprintf(format, args...)}
}

func targetParam(r *http.Request) (target.Target, error) {
	raw := r.URL.Query().Get("deploy_target")
	if raw == "" {
		return target.Target{}, badRequest("deploy_target query parameter is required")
	}
	return target.Parse(raw)
}

func boolParam(r *http.Request, name string) bool {
	b, _ := strconv.ParseBool(r.URL.Query().Get(name))
	return b
}

// statusFor maps the error taxonomy onto HTTP.
func statusFor(err error) int {
	var br errBadRequest
	switch {
	case errors.As(err, &br),
		errors.Is(err, target.ErrParse),
		errors.Is(err, value.ErrNotScalar),
		errors.Is(err, value.ErrBadNumber):
		return http.StatusBadRequest
	case errors.Is(err, platform.ErrUnresolvedTarget):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	if code >= 500 {
		zap.S().Errorw("api request failed", "path", r.URL.Path, "err", err)
	}
	writeJSON(w, code, map[string]string{"detail": err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		zap.S().Errorw("api encode failed", "err", err)
		http.Error(w, `{"detail":"encoding failure"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(buf.Bytes())
}
