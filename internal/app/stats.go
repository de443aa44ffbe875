package app

import (
	"context"
	"fmt"

	"github.com/raphaelgruber/omnimemory/internal/engine"
	"github.com/raphaelgruber/omnimemory/internal/metrics"
	"github.com/raphaelgruber/omnimemory/internal/vectorindex"
)

// Stats is a point-in-time report over every service.
type Stats struct {
	Storage            string            `json:"storage"`
	Events             int               `json:"events"`
	Vectors            vectorindex.Stats `json:"vectors"`
	EmbeddingProviders []string          `json:"embedding_providers"`
	LLMProviders       []string          `json:"llm_providers,omitempty"`
	EngineState        engine.State      `json:"engine_state"`
	Tasks              int               `json:"tasks_in_history"`
	Metrics            metrics.Snapshot  `json:"metrics"`
}

// Stats gathers counts from storage and the in-memory collectors.
func (a *App) Stats(ctx context.Context) (Stats, error) {
	s := Stats{
		EmbeddingProviders: a.Embeddings.Providers(),
		EngineState:        a.Engine.State(),
		Tasks:              len(a.Engine.History()),
		Metrics:            a.Metrics.Snapshot(),
	}
	if a.LLM != nil {
		s.LLMProviders = a.LLM.Providers()
	}
	if b := a.Events.Backend(); b != nil {
		s.Storage = b.Name()
	}

	n, err := a.Events.CountEvents(ctx)
	if err != nil {
		return s, fmt.Errorf("count events: %w", err)
	}
	s.Events = n

	vs, err := a.Vectors.Stats(ctx)
	if err != nil {
		return s, fmt.Errorf("vector stats: %w", err)
	}
	s.Vectors = vs
	return s, nil
}
