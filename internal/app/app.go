package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"latexlens/internal/config"
	"latexlens/internal/providers"
	"latexlens/internal/recognition"
	"latexlens/internal/storage"
)

// App holds the components shared by the api and worker processes.
type App struct {
	Orchestrator *recognition.Orchestrator
	History      *storage.HistoryCache
	Images       *storage.ImageStore
	Calls        *storage.StageCallRepo
	DB           *storage.DB
}

func NewLogger(level string, w io.Writer) zerolog.Logger {
	if w == nil {
		w = os.Stdout
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger()
}

func New(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	base, err := cfg.Prompts()
	if err != nil {
		return nil, err
	}
	backend, err := providers.NewBackend(cfg.Provider, cfg.Backend(), logger)
	if err != nil {
		return nil, err
	}

	a := &App{Images: storage.NewImageStore(cfg.DataDir)}
	var history storage.HistoryBackend = storage.NewFileHistory(cfg.DataDir)
	if cfg.PostgresURL != "" {
		dbCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		db, err := storage.NewDB(dbCtx, cfg.PostgresURL)
		if err != nil {
			return nil, err
		}
		if err := db.EnsureSchema(dbCtx); err != nil {
			db.Close()
			return nil, err
		}
		a.DB = db
		if cfg.HistoryBackend == "postgres" {
			history = storage.NewPostgresHistory(db)
		}
	}
	a.History = storage.NewHistoryCache(history)

	a.Orchestrator = recognition.NewOrchestrator(backend, recognition.Options{
		Prompts:  base,
		Language: cfg.Language,
		Format:   cfg.LatexFormat,
	}, a.History, a.Images, logger)
	if a.DB != nil {
		a.Calls = storage.NewStageCallRepo(a.DB)
		a.Orchestrator.WithAudit(a.Calls)
	}

	info := backend.Info()
	logger.Info().
		Str("provider", info.Name).
		Str("model", info.Model).
		Str("history_backend", cfg.HistoryBackend).
		Bool("audit", a.DB != nil).
		Msg("latexlens components ready")
	return a, nil
}

func (a *App) Close() {
	if a.DB != nil {
		a.DB.Close()
	}
}
