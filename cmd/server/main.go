// Package main is the entry point for the research analyst HTTP server.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fleveque/research-analyst/internal/app"
	"github.com/fleveque/research-analyst/internal/config"
	"github.com/fleveque/research-analyst/internal/logging"
	"github.com/fleveque/research-analyst/internal/server"
)

func main() {
	// run is separate so deferred cleanup executes before os.Exit.
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(os.Getenv("ANALYST_CONFIG_PATH"))
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger, err := logging.New(cfg.Log.Level)
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	// Sync commonly fails on stdout/stderr, so the error is ignored.
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	srv := server.New(cfg, server.Deps{
		Analyzer:    a.Service,
		Calls:       a.Calls,
		DB:          a.DB,
		Provider:    a.Model.ProviderName(),
		Model:       a.Model.ModelName(),
		TeamEnabled: app.TeamEnabled(cfg),
	}, logger)

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Start()
	}()

	// Block until we receive a signal or the server errors out.
	select {
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	case err := <-errChan:
		if err != nil {
			return err
		}
	}

	// In-flight analyses may be waiting on a model call.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}
