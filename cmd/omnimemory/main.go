// Package main provides the entry point for the omnimemory MCP server.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/raphaelgruber/omnimemory/internal/app"
	"github.com/raphaelgruber/omnimemory/internal/config"
	"github.com/raphaelgruber/omnimemory/internal/server"
)

const version = "0.1.0"

func main() {
	os.Exit(run())
}

func run() int {
	// Load configuration
	cfg := config.Load()

	// Setup logger (dual output: stderr text + file JSON)
	logger, cleanup := config.SetupLogger(cfg.LogFile, cfg.LogLevel)
	defer func() { _ = cleanup() }()

	logger.Info("omnimemory starting",
		"version", version,
		"storage", cfg.StorageBackends,
		"embedding_providers", cfg.EmbedProviders,
		"llm_providers", cfg.LLMProviders,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	a, err := app.New(ctx, cfg, logger, app.WithScheduler())
	if err != nil {
		logger.Error("failed to build services", "error", err)
		return 1
	}
	if err := a.Init(ctx); err != nil {
		logger.Error("failed to start services", "error", err)
		return 1
	}
	defer func() {
		logger.Info("stopping services")
		if err := a.Shutdown(context.Background()); err != nil {
			logger.Warn("shutdown incomplete", "error", err)
		}
	}()

	// Run server (blocks until disconnect or context cancelled)
	if err := server.Serve(ctx, version, cfg.MetricsAddr, a, logger); err != nil && ctx.Err() == nil {
		logger.Error("server error", "error", err)
		return 1
	}

	logger.Info("shutdown complete")
	return 0
}
