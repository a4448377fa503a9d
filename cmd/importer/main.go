package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"airbnb_insights/internal/adapters/observability"
	"airbnb_insights/internal/app"
	"airbnb_insights/internal/bootstrap"
	"airbnb_insights/internal/shared"
)

func main() {
	cfg := shared.Load()

	// 1) initialize global logger (console in dev, JSON otherwise)
	log.Logger = observability.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info().
		Str("source", cfg.ImportSource).
		Str("driver", cfg.StorageDriver).
		Int("workers", cfg.Workers).
		Int("batch", cfg.BatchSize).
		Msg("importer starting")

	src, closeSrc, err := bootstrap.OpenSource(ctx, cfg, cfg.ImportSource)
	if err != nil {
		log.Fatal().Err(err).Msg("open import source failed")
	}
	defer closeSrc()

	store, closeStore, err := bootstrap.OpenStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("open store failed")
	}
	defer closeStore()

	rep, err := app.NewImportService(src, store, cfg.Workers, cfg.BatchSize).Run(ctx)
	if err != nil {
		log.Fatal().Err(err).Str("run_id", rep.RunID).Msg("import failed")
	}
	log.Info().
		Str("run_id", rep.RunID).
		Int("loaded", rep.Loaded).
		Int("accepted", rep.Accepted).
		Int("rejected", rep.Rejected).
		Msg("import completed")
}
