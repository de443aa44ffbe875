package service

import (
	"context"
	"testing"

	"github.com/raphaelgruber/omnimemory/internal/embedding"
	"github.com/raphaelgruber/omnimemory/internal/pipeline"
	"github.com/raphaelgruber/omnimemory/internal/store"
	"github.com/raphaelgruber/omnimemory/internal/vectorindex"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	events   *store.EventStore
	index    *vectorindex.Index
	chain    *embedding.Chain
	pipeline *pipeline.Pipeline
	search   *SearchService
}

// newFixture wires an in-memory store, the hash embedder and a real index.
func newFixture(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()

	events := store.NewEventStore([]store.Backend{store.NewMemoryBackend(0, 0)}, nil)
	require.NoError(t, events.Init(ctx))

	chain := embedding.NewChain(nil, embedding.ChainConfig{Dimension: 384})
	idx, err := vectorindex.New(events, chain, vectorindex.Config{}, nil, nil)
	require.NoError(t, err)
	events.SetEmbeddingRemover(idx)

	p := pipeline.New(events, chain, idx, pipeline.Options{})
	search, err := NewSearchService(events, idx, chain, nil)
	require.NoError(t, err)
	t.Cleanup(search.Close)

	return fixture{events: events, index: idx, chain: chain, pipeline: p, search: search}
}
