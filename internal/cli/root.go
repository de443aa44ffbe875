// Package cli provides the omni command-line interface.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/omnimemory/internal/app"
	"github.com/raphaelgruber/omnimemory/internal/config"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	verbose bool
	jsonOut bool

	cfg    config.Config
	logger *slog.Logger
	svc    *app.App

	closeLog func() error
)

// buildApp constructs the container for a command. Tests swap it for an
// in-memory build.
var buildApp = func(ctx context.Context, cfg config.Config, logger *slog.Logger, serve bool) (*app.App, error) {
	var opts []app.Option
	if serve {
		opts = append(opts, app.WithScheduler())
	}
	return app.New(ctx, cfg, logger, opts...)
}

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "omni",
	Short: "Personal browsing memory with semantic search and AI answers",
	Long: `Omni records what you search, visit, note and bookmark, embeds it for
semantic recall and answers questions from it through local or remote LLMs.

Storage falls back from SurrealDB to SQLite to memory; embeddings fall back
from Ollama to Voyage to OpenAI to a local hash embedder.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}

		cfg = config.Load()
		serve := cmd.Name() == "serve"

		level := cfg.LogLevel
		if !serve && !verbose && level < slog.LevelWarn {
			level = slog.LevelWarn
		}
		if verbose {
			level = slog.LevelDebug
		}
		logger, closeLog = config.SetupLogger(cfg.LogFile, level)

		ctx := cmd.Context()
		var err error
		svc, err = buildApp(ctx, cfg, logger, serve)
		if err != nil {
			return fmt.Errorf("build services: %w", err)
		}
		if err := svc.Init(ctx); err != nil {
			return fmt.Errorf("start services: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		shutdown()
	},
}

func shutdown() {
	if svc != nil {
		if err := svc.Shutdown(context.Background()); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: shutdown: %v\n", err)
		}
		svc = nil
	}
	if closeLog != nil {
		_ = closeLog()
		closeLog = nil
	}
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute(ctx context.Context) error {
	defer shutdown()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "print results as JSON")

	rootCmd.AddCommand(trackCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(findCmd)
	rootCmd.AddCommand(eventsCmd)
	rootCmd.AddCommand(tagsCmd)
	rootCmd.AddCommand(pinCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(reindexCmd)
	rootCmd.AddCommand(maintainCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(serveCmd)
}
