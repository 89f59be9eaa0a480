// internal/middleware/accesslog.go
//
// Access logging and request metrics.
//
// Context
// -------
// One DEBUG line per request (INFO for 4xx, WARN for 5xx) carrying the chi
// request id, route pattern, status, and latency.  The same request feeds
// the `ushadow_http_*` collectors.  Route patterns, not raw paths, are used
// as metric labels so service ids do not explode label cardinality.
package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/ushadow-io/ushadow/internal/metrics"
)

// AccessLog must sit inside chi's RequestID middleware to see the id.
func AccessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		elapsed := time.Since(start)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}

		metrics.HTTPRequestsTotal.WithLabelValues(route, r.Method, strconv.Itoa(status)).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(route).Observe(elapsed.Seconds())

		log := zap.S().Debugw
		switch {
		case status >= 500:
			log = zap.S().Warnw
		case status >= 400:
			log = zap.S().Infow
		}
		log("http request",
			"req_id", chimw.GetReqID(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"route", route,
			"status", status,
			"bytes", ww.BytesWritten(),
			"elapsed", elapsed,
		)
	})
}
