package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	server "airbnb_insights/internal/adapters/http_server"
	"airbnb_insights/internal/adapters/observability"
	"airbnb_insights/internal/app"
	"airbnb_insights/internal/bootstrap"
	"airbnb_insights/internal/shared"
)

func main() {
	cfg := shared.Load()

	// set global logger (console in dev, JSON otherwise)
	log.Logger = observability.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := observability.InitRegistry()
	observability.Serve(cfg.MetricsAddr, reg)

	// deps
	src, closeSrc, err := bootstrap.OpenSource(ctx, cfg, cfg.Source)
	if err != nil {
		log.Fatal().Err(err).Str("source", cfg.Source).Msg("open listing source failed")
	}
	defer closeSrc()

	cache, closeCache := bootstrap.OpenCache(ctx, cfg)
	defer closeCache()

	panels, err := app.LoadPanels(cfg.PanelsFile)
	if err != nil {
		log.Fatal().Err(err).Msg("load panels failed")
	}

	q := app.NewQueryService(src, cache, cfg.CacheTTL,
		app.WithSnapshotTTL(cfg.SnapshotTTL),
		app.WithReloadCooldown(cfg.ReloadCooldown),
		app.WithPanels(panels))

	// warm the snapshot; a failure here is served as 503 until the source recovers
	if t, err := q.Snapshot(ctx); err != nil {
		log.Warn().Err(err).Msg("initial snapshot load failed")
	} else {
		log.Info().Int("rows", len(t.Records)).Str("version", t.Version).Msg("snapshot ready")
	}

	// http
	srv := server.New(cfg.RequestTimeout)
	srv.Mount("/metrics", observability.MetricsHandler(reg))
	srv.MountHandlers(&server.Handlers{Q: q})

	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.Mux(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Str("source", src.Name()).Msg("API listening")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}
