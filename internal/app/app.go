// Package app wires configuration into a ready-to-use AnalysisService. Both
// the HTTP server and the CLI start here, so they run the same pipeline.
package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/fleveque/research-analyst/internal/config"
	"github.com/fleveque/research-analyst/internal/fmp"
	"github.com/fleveque/research-analyst/internal/input"
	"github.com/fleveque/research-analyst/internal/llm"
	"github.com/fleveque/research-analyst/internal/media"
	"github.com/fleveque/research-analyst/internal/prompt"
	"github.com/fleveque/research-analyst/internal/provider"
	"github.com/fleveque/research-analyst/internal/service"
	"github.com/fleveque/research-analyst/internal/storage"
	"github.com/fleveque/research-analyst/internal/team"
	"github.com/fleveque/research-analyst/internal/usage"
)

// App holds the long-lived dependencies. Close releases them.
type App struct {
	Config  *config.Config
	DB      *sqlx.DB
	Calls   storage.CallRepository
	Model   llm.Client
	Service *service.AnalysisService
}

// New builds every component from cfg. The model API key is required; FMP
// and the team endpoint are optional and fail per request when missing.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	if cfg.Model.APIKey == "" {
		return nil, fmt.Errorf("model API key is not set (use %s_MODEL_API_KEY)", config.EnvPrefix)
	}

	db, err := OpenDatabase(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, err
	}
	calls := storage.NewCallRepository(db)

	client, err := NewModelClient(ctx, cfg.Model)
	if err != nil {
		db.Close()
		return nil, err
	}

	prompts, err := prompt.NewSet(cfg.PromptOverrides())
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("loading prompts: %w", err)
	}

	prices, err := cfg.Prices()
	if err != nil {
		db.Close()
		return nil, err
	}

	market := fmp.NewClient(cfg.FMP.BaseURL, cfg.FMP.APIKey, cfg.FMP.RatePerMinute, logger)
	builder := provider.NewBuilder(cfg.Providers(), client, market, prompts, calls, logger)
	adapter := input.NewAdapter(cfg.Upload.MaxBytes, media.NewNormalizer(cfg.Upload.MaxImageDimension))
	teamClient := team.NewClient(cfg.Team.BaseURL, cfg.Team.TeamID, cfg.Team.APIKey, logger)

	svc := service.NewAnalysisService(adapter, builder, usage.NewTracker(prices), teamClient, calls, cfg.Team.Timeout, logger)

	logger.Info("analyst ready",
		zap.String("provider", client.ProviderName()),
		zap.String("model", client.ModelName()),
		zap.Bool("fmp", cfg.FMP.APIKey != ""),
		zap.Bool("team", TeamEnabled(cfg)),
	)

	return &App{
		Config:  cfg,
		DB:      db,
		Calls:   calls,
		Model:   client,
		Service: svc,
	}, nil
}

// Close releases the database.
func (a *App) Close() error {
	return a.DB.Close()
}

// TeamEnabled reports whether a team endpoint is configured.
func TeamEnabled(cfg *config.Config) bool {
	return cfg.Team.BaseURL != "" && cfg.Team.TeamID != ""
}

// OpenDatabase creates the parent directory if needed and opens the call log.
func OpenDatabase(path string) (*sqlx.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}
	db, err := storage.NewDatabase(path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return db, nil
}

// NewModelClient creates the configured model backend.
func NewModelClient(ctx context.Context, cfg config.ModelConfig) (llm.Client, error) {
	switch cfg.Provider {
	case config.ProviderGemini:
		client, err := llm.NewGeminiClient(ctx, cfg.APIKey, cfg.Name, cfg.BaseURL)
		if err != nil {
			return nil, err
		}
		return client, nil
	case config.ProviderAnthropic:
		return llm.NewAnthropicClient(cfg.APIKey, cfg.Name, cfg.BaseURL), nil
	case config.ProviderOpenAI:
		return llm.NewOpenAIClient(cfg.APIKey, cfg.Name, cfg.BaseURL), nil
	default:
		return nil, fmt.Errorf("unknown model provider %q", cfg.Provider)
	}
}
