package main

import (
	"context"
	"os"

	"github.com/joho/godotenv"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	"latexlens/internal/activities"
	"latexlens/internal/app"
	"latexlens/internal/config"
	"latexlens/internal/recognition"
	"latexlens/internal/workflows"
)

func main() {
	_ = godotenv.Load(".env")
	cfg := config.Load()
	logger := app.NewLogger(cfg.LogLevel, os.Stdout)
	if cfg.TemporalAddress == "" {
		logger.Fatal().Msg("LATEXLENS_TEMPORAL_ADDRESS is required for the worker")
	}

	c, err := client.Dial(client.Options{HostPort: cfg.TemporalAddress})
	if err != nil {
		logger.Fatal().Err(err).Msg("temporal dial failed")
	}
	defer c.Close()

	a, err := app.New(context.Background(), cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("startup failed")
	}
	defer a.Close()

	w := worker.New(c, cfg.TemporalTaskQueue, worker.Options{})
	workflows.Register(w)
	activities.Register(w, activities.New(a.Orchestrator, recognition.LogSink{Logger: logger}, logger))

	logger.Info().Str("temporal", cfg.TemporalAddress).Str("queue", cfg.TemporalTaskQueue).Msg("latexlens worker listening")
	if err := w.Run(worker.InterruptCh()); err != nil {
		logger.Fatal().Err(err).Msg("worker stopped")
	}
}
