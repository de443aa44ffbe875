// Package app wires every service into one container with an explicit
// Init/Shutdown lifecycle. Commands build one App and pass it around instead
// of reaching for globals.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/raphaelgruber/omnimemory/internal/config"
	"github.com/raphaelgruber/omnimemory/internal/embedding"
	"github.com/raphaelgruber/omnimemory/internal/engine"
	"github.com/raphaelgruber/omnimemory/internal/llm"
	"github.com/raphaelgruber/omnimemory/internal/metrics"
	"github.com/raphaelgruber/omnimemory/internal/pipeline"
	"github.com/raphaelgruber/omnimemory/internal/service"
	"github.com/raphaelgruber/omnimemory/internal/store"
	"github.com/raphaelgruber/omnimemory/internal/vectorindex"
)

// App holds the constructed services.
type App struct {
	Config      config.Config
	Logger      *slog.Logger
	Metrics     *metrics.Collector
	Events      *store.EventStore
	Embeddings  *embedding.Chain
	Vectors     *vectorindex.Index
	Pipeline    *pipeline.Pipeline
	Search      *service.SearchService
	LLM         *llm.Chain
	Engine      *engine.Engine
	Jobs        *service.JobManager
	Maintenance *service.Maintenance

	schedule bool
	started  []lifecycle
}

type lifecycle interface {
	Init(ctx context.Context) error
	Shutdown(ctx context.Context) error
}

type options struct {
	backends []store.Backend
	local    engine.Completer
	backend  llm.Provider
	schedule bool
	embed    *embedding.Chain
}

// Option customizes New.
type Option func(*options)

// WithBackends replaces the configured storage backends.
func WithBackends(b ...store.Backend) Option {
	return func(o *options) { o.backends = b }
}

// WithCompleter replaces the local LLM chain used by the engine.
func WithCompleter(c engine.Completer) Option {
	return func(o *options) { o.local = c }
}

// WithTaskBackend replaces the remote task backend.
func WithTaskBackend(p llm.Provider) Option {
	return func(o *options) { o.backend = p }
}

// WithEmbeddings replaces the embedding chain.
func WithEmbeddings(c *embedding.Chain) Option {
	return func(o *options) { o.embed = c }
}

// WithScheduler enables the maintenance schedules (decay, compaction,
// prune). Only long-running processes want them.
func WithScheduler() Option {
	return func(o *options) { o.schedule = true }
}

// New constructs every service without touching the network. Call Init
// before use.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if logger == nil {
		logger = slog.Default()
	}
	mc := metrics.NewCollector()

	tagging := config.DefaultTagging()
	if cfg.TaggingConfig != "" {
		t, err := config.LoadTagging(cfg.TaggingConfig)
		if err != nil {
			return nil, fmt.Errorf("load tagging config: %w", err)
		}
		tagging = t
	}

	backends := o.backends
	if backends == nil {
		backends = store.BackendsFromConfig(cfg, config.Component(logger, "store"), mc)
	}
	events := store.NewEventStore(backends, config.Component(logger, "store"))

	chain := o.embed
	if chain == nil {
		chain = embedding.NewChainFromConfig(cfg, config.Component(logger, "embedding"), mc)
	}

	vectors, err := vectorindex.New(events, chain, vectorindex.ConfigFrom(cfg), config.Component(logger, "vectors"), mc)
	if err != nil {
		return nil, fmt.Errorf("create vector index: %w", err)
	}
	events.SetEmbeddingRemover(vectors)

	pipe := pipeline.New(events, chain, vectors,
		pipeline.OptionsFrom(cfg, tagging, config.Component(logger, "pipeline"), mc))

	search, err := service.NewSearchService(events, vectors, chain, config.Component(logger, "search"))
	if err != nil {
		return nil, fmt.Errorf("create search service: %w", err)
	}

	a := &App{
		Config:     cfg,
		Logger:     logger,
		Metrics:    mc,
		Events:     events,
		Embeddings: chain,
		Vectors:    vectors,
		Pipeline:   pipe,
		Search:     search,
		schedule:   o.schedule,
	}

	local := o.local
	if local == nil {
		a.LLM = llm.NewChainFromConfig(ctx, cfg, config.Component(logger, "llm"), mc)
		local = a.LLM
	}
	backend := o.backend
	if backend == nil && cfg.BackendURL != "" {
		backend = llm.NewRemoteBackend(cfg.BackendURL, http.DefaultClient)
	}
	a.Engine = engine.New(backend, local, engine.ConfigFrom(cfg, config.Component(logger, "engine"), mc))

	a.Jobs = service.NewJobManager(config.Component(logger, "jobs"))
	a.Maintenance = service.NewMaintenance(events, pipe, vectors, a.Engine, a.Jobs,
		service.MaintenanceConfigFrom(cfg), config.Component(logger, "maintenance"))

	if err := a.registerGauges(); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *App) registerGauges() error {
	return errors.Join(
		a.Metrics.RegisterGauge("vector_cache_size", "Embeddings held in the vector cache", func() float64 {
			return float64(a.Vectors.CacheSize())
		}),
		a.Metrics.RegisterGauge("tasks_pending", "Tasks queued or running", func() float64 {
			return float64(a.Engine.Pending())
		}),
		a.Metrics.RegisterGauge("tasks_history_size", "Task outcomes held in history", func() float64 {
			return float64(len(a.Engine.History()))
		}),
	)
}

// Init starts the services in dependency order. On failure the services
// already started are shut down again.
func (a *App) Init(ctx context.Context) error {
	steps := []lifecycle{a.Events, a.Engine}
	if a.schedule {
		steps = append(steps, a.Maintenance)
	}
	for _, s := range steps {
		if err := s.Init(ctx); err != nil {
			_ = a.Shutdown(ctx)
			return err
		}
		a.started = append(a.started, s)
	}
	a.Logger.Info("omnimemory ready",
		"storage", a.Events.Backend().Name(),
		"embedding_providers", a.Embeddings.Providers(),
		"scheduler", a.schedule,
	)
	return nil
}

// Shutdown stops the started services in reverse order.
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error
	for i := len(a.started) - 1; i >= 0; i-- {
		if err := a.started[i].Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.started = nil
	a.Jobs.Wait()
	a.Search.Close()
	return errors.Join(errs...)
}
