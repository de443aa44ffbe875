package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/raphaelgruber/omnimemory/internal/app"
)

// HTTP timeouts for the metrics endpoint.
const (
	readTimeout     = 5 * time.Second
	writeTimeout    = 30 * time.Second
	idleTimeout     = 120 * time.Second
	shutdownTimeout = 10 * time.Second
)

// Health is the /health response body.
type Health struct {
	Status  string `json:"status"`
	Storage string `json:"storage,omitempty"`
	Engine  string `json:"engine"`
}

// NewHandler routes /metrics to the Prometheus registry and /health to a
// liveness report. /health answers 503 until the event store has a backend.
func NewHandler(a *app.App) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", a.Metrics.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		h := Health{Status: "ok", Engine: string(a.Engine.State())}
		code := http.StatusOK
		if b := a.Events.Backend(); b != nil {
			h.Storage = b.Name()
		} else {
			h.Status = "starting"
			code = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(h)
	})
	return mux
}

// ServeHTTP serves NewHandler on addr until ctx is done, then shuts the
// listener down gracefully.
func ServeHTTP(ctx context.Context, addr string, a *app.App, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      NewHandler(a),
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("metrics endpoint available", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logger.Info("metrics endpoint stopped")
	return nil
}
