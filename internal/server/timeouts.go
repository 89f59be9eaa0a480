// internal/server/timeouts.go
//
// HTTP server helper with explicit timeouts and graceful shutdown.
//
//   • ReadTimeout   – abort slow-loris headers (10 s)
//   • WriteTimeout  – cap total response time; never shorter than the
//                     scan timeout plus headroom, or a slow cluster scan
//                     would be cut off mid-response
//   • IdleTimeout   – close keep-alives on idle clients (60 s)
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const (
	readTimeout  = 10 * time.Second
	writeTimeout = 15 * time.Second
	idleTimeout  = 60 * time.Second
	scanHeadroom = 5 * time.Second
)

// New constructs an *http.Server.  scanTimeout is the longest a request
// may spend waiting on infrastructure discovery.
func New(addr string, handler http.Handler, scanTimeout time.Duration) *http.Server {
	wt := writeTimeout
	if floor := scanTimeout + scanHeadroom; floor > wt {
		wt = floor
	}
	return &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  readTimeout,
		WriteTimeout: wt,
		IdleTimeout:  idleTimeout,
	}
}

// Run serves until ctx is cancelled, then shuts down, waiting at most
// grace for in-flight requests.
func Run(ctx context.Context, srv *http.Server, grace time.Duration) error {
	errCh := make(chan error, 1)
	go func() {
		zap.S().Infow("http listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	zap.S().Infow("http shutting down", "grace", grace)
	sctx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
