package server

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/raphaelgruber/omnimemory/internal/app"
	"github.com/raphaelgruber/omnimemory/internal/tools"
)

// Serve runs the MCP server on stdio for an initialized app. When addr is
// set the metrics and health endpoint runs alongside it. Serve returns once
// the client disconnects or ctx is cancelled.
func Serve(ctx context.Context, version, addr string, a *app.App, logger *slog.Logger) error {
	srv := New(version, logger)
	srv.Setup()
	tools.RegisterAll(srv.MCPServer(), &tools.Dependencies{App: a, Logger: logger})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	if addr != "" {
		g.Go(func() error { return ServeHTTP(gctx, addr, a, logger) })
	}
	g.Go(func() error {
		defer cancel()
		err := srv.Run(gctx)
		if gctx.Err() != nil {
			return nil
		}
		return err
	})

	logger.Info("server ready, awaiting connections")
	return g.Wait()
}
