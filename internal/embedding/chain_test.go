package embedding_test

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/raphaelgruber/omnimemory/internal/config"
	"github.com/raphaelgruber/omnimemory/internal/embedding"
	"github.com/raphaelgruber/omnimemory/internal/metrics"
	"github.com/raphaelgruber/omnimemory/internal/parser"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEmbedder struct {
	name  string
	dim   int
	err   error
	calls atomic.Int32
}

func (f *fakeEmbedder) Name() string   { return f.name }
func (f *fakeEmbedder) Model() string  { return f.name + "-model" }
func (f *fakeEmbedder) Dimension() int { return f.dim }

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	v := make([]float32, f.dim)
	v[0] = 1
	return v, nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := f.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func TestChainFirstProviderWins(t *testing.T) {
	first := &fakeEmbedder{name: "first", dim: 8}
	second := &fakeEmbedder{name: "second", dim: 8}
	chain := embedding.NewChain([]embedding.Embedder{first, second}, embedding.ChainConfig{Dimension: 8})

	vec, provider, err := chain.Generate(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "first", provider)
	assert.Len(t, vec, 8)
	assert.Zero(t, second.calls.Load())
}

func TestChainFallsBackAndCachesAvailability(t *testing.T) {
	down := &fakeEmbedder{name: "down", dim: 8, err: errors.New("connection refused")}
	up := &fakeEmbedder{name: "up", dim: 8}
	chain := embedding.NewChain([]embedding.Embedder{down, up}, embedding.ChainConfig{Dimension: 8})

	_, provider, err := chain.Generate(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "up", provider)
	assert.False(t, chain.Available("down"))

	_, provider, err = chain.Generate(context.Background(), "again")
	require.NoError(t, err)
	assert.Equal(t, "up", provider)
	assert.Equal(t, int32(1), down.calls.Load(), "unavailable provider must not be probed again within the TTL")
}

func TestChainRejectsWrongDimension(t *testing.T) {
	wide := &fakeEmbedder{name: "wide", dim: 16}
	mc := metrics.NewCollector()
	chain := embedding.NewChain([]embedding.Embedder{wide}, embedding.ChainConfig{Dimension: 8, Metrics: mc})

	vec, provider, err := chain.Generate(context.Background(), "hello world")
	require.NoError(t, err)
	assert.Equal(t, "hash", provider)
	assert.Len(t, vec, 8)
	assert.False(t, chain.Available("wide"))
	assert.Equal(t, int64(1), mc.Counter(metrics.CounterEmbeddingFallback))
}

func TestChainHashOnly(t *testing.T) {
	chain := embedding.NewChain(nil, embedding.ChainConfig{Dimension: 384})
	vec, provider, err := chain.Generate(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "hash", provider)
	assert.Len(t, vec, 384)
	assert.Equal(t, []string{"hash"}, chain.Providers())
}

func TestChainCancelledContext(t *testing.T) {
	chain := embedding.NewChain(nil, embedding.ChainConfig{Dimension: 8})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := chain.Generate(ctx, "hello")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEmbedChunks(t *testing.T) {
	chain := embedding.NewChain(nil, embedding.ChainConfig{
		Dimension: 8,
		Chunking:  parser.ChunkConfig{Size: 100, Overlap: 10},
	})

	text := strings.Repeat("This is one sentence. ", 20)
	chunks, err := chain.EmbedChunks(context.Background(), text)
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)
	for i, c := range chunks {
		assert.Equal(t, i, c.Index)
		assert.NotEmpty(t, c.Text)
		assert.Len(t, c.Vector, 8)
		assert.Equal(t, "hash", c.Provider)
	}

	none, err := chain.EmbedChunks(context.Background(), "   ")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestNewChainFromConfig(t *testing.T) {
	cfg := config.Config{
		EmbedProviders:   []string{"voyage", "openai", "hash", "bogus"},
		EmbedDimension:   384,
		ChunkSize:        512,
		ChunkOverlap:     50,
		ProviderCheckTTL: 0,
	}
	chain := embedding.NewChainFromConfig(cfg, nil, nil)

	// no API keys: only the hash fallback remains
	assert.Equal(t, []string{"hash"}, chain.Providers())
	assert.Equal(t, 384, chain.Dimension())
}
