package embedding_test

import (
	"context"
	"math"
	"testing"

	"github.com/raphaelgruber/omnimemory/internal/embedding"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

func TestHashEmbedderDeterministic(t *testing.T) {
	h := embedding.NewHashEmbedder(0)
	assert.Equal(t, embedding.DefaultHashDimension, h.Dimension())

	a, err := h.Embed(context.Background(), "Debugging the React hook")
	require.NoError(t, err)
	b, err := h.Embed(context.Background(), "debugging THE react-hook!")
	require.NoError(t, err)

	assert.Len(t, a, embedding.DefaultHashDimension)
	assert.Equal(t, a, b, "case and punctuation must not change the vector")
	assert.InDelta(t, 1.0, norm(a), 1e-5)
}

func TestHashEmbedderEmptyText(t *testing.T) {
	h := embedding.NewHashEmbedder(16)
	for _, text := range []string{"", "   ", "!!! ---"} {
		v, err := h.Embed(context.Background(), text)
		require.NoError(t, err)
		assert.Len(t, v, 16)
		assert.Zero(t, norm(v), "text %q", text)
	}
}

func TestHashEmbedderWordOrderMatters(t *testing.T) {
	h := embedding.NewHashEmbedder(384)
	a, _ := h.Embed(context.Background(), "alpha beta")
	b, _ := h.Embed(context.Background(), "beta alpha")
	assert.NotEqual(t, a, b)
}

func TestHashEmbedderBatch(t *testing.T) {
	h := embedding.NewHashEmbedder(32)
	vecs, err := h.EmbedBatch(context.Background(), []string{"one", "two"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	single, _ := h.Embed(context.Background(), "two")
	assert.Equal(t, single, vecs[1])
}
