// cmd/web/main.go
//
// Ushadow settings service: HTTP entry point.
//
// Start-up sequence
// -----------------
//
//  1. Bootstrap console logger so config errors are visible.
//
//  2. Load process config (conf/.env → conf/ushadow.yaml → USHADOW_*).
//
//  3. Start the daily rotating file logger (tees to console in a TTY).
//
//  4. Wire resolver components (vault, cluster DB, registries, scanner,
//     scan cache, override store).
//
//  5. Mount the router:
//
//     • chi RequestID, RealIP, access log, Recoverer, security headers
//     • /metrics  – Prometheus
//     • /healthz  – liveness
//     • /api/settings/... – settings API
//
//  6. Serve until SIGINT or SIGTERM, then shut down gracefully.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ushadow-io/ushadow/internal/api"
	"github.com/ushadow-io/ushadow/internal/app"
	"github.com/ushadow-io/ushadow/internal/config"
	"github.com/ushadow-io/ushadow/internal/logger"
	"github.com/ushadow-io/ushadow/internal/middleware"
	"github.com/ushadow-io/ushadow/internal/server"
)

func main() {
	logger.Bootstrap()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logOut, err := logger.New(cfg.Paths.Logs, logger.RunningInTTY())
	if err != nil {
		log.Fatalf("start logger: %v", err)
	}
	defer func() { _ = logOut.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg)
	if err != nil {
		logOut.Fatalw("wire components", "err", err)
	}
	defer a.Close()

	//
	// ── Router ──────────────────────────────────────────────────────────
	//
	r := chi.NewRouter()
	r.Use(chimw.RequestID, chimw.RealIP, middleware.AccessLog, chimw.Recoverer, middleware.Security)

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("ok"))
	})

	api.New(api.Deps{
		Resolver:  a.Resolver,
		Overrides: a.Overrides,
		Targets:   a.Clusters,
		Platforms: a.Platforms,
		ScanCache: a.ScanCache,
	}).Routes(r)

	//
	// ── Serve ───────────────────────────────────────────────────────────
	//
	srv := server.New(cfg.HTTP.ListenAddr, r, cfg.Scan.Timeout)
	if err := server.Run(ctx, srv, cfg.HTTP.ShutdownTimeout); err != nil {
		zap.S().Errorw("http server", "err", err)
		a.Close()
		os.Exit(1)
	}
	zap.S().Infow("shutdown complete")
}
