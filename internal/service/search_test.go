package service

import (
	"context"
	"strings"
	"testing"

	"github.com/raphaelgruber/omnimemory/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSemanticSearchRanksRelevantEventFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	golang := f.pipeline.TrackNote(ctx, "Go notes", "golang concurrency patterns with channels and select", nil)
	bread := f.pipeline.TrackNote(ctx, "Kitchen", "baking sourdough bread at home with a starter", nil)
	require.True(t, golang.Success)
	require.True(t, bread.Success)

	results, err := f.search.SemanticSearch(ctx, "golang channels concurrency", SemanticOptions{Limit: 5})
	require.NoError(t, err)
	require.NotEmpty(t, results)

	assert.Equal(t, golang.EventID, results[0].Event.ID)
	assert.Equal(t, models.EmbeddingID(golang.EventID, 0), results[0].EmbeddingID)
	assert.Contains(t, results[0].ChunkText, "golang concurrency")
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Similarity, results[i].Similarity)
	}
}

func TestSemanticSearchOneResultPerEvent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	long := strings.Repeat("Kubernetes operators reconcile cluster state continuously. ", 40)
	res := f.pipeline.TrackNote(ctx, "k8s", long, nil)
	require.True(t, res.Success)
	require.Greater(t, len(res.EmbeddingIDs), 1)

	results, err := f.search.SemanticSearch(ctx, "kubernetes operators reconcile", SemanticOptions{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, res.EventID, results[0].Event.ID)
}

func TestSemanticSearchDropsOrphans(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	kept := f.pipeline.TrackSearch(ctx, "terraform state locking", "")
	orphan := f.pipeline.TrackSearch(ctx, "terraform state backends", "")
	require.True(t, kept.Success && orphan.Success)

	// delete behind the store's back so the vectors stay behind
	_, err := f.events.Backend().DeleteEvent(ctx, orphan.EventID)
	require.NoError(t, err)

	results, err := f.search.SemanticSearch(ctx, "terraform state", SemanticOptions{})
	require.NoError(t, err)
	for _, r := range results {
		assert.NotEqual(t, orphan.EventID, r.Event.ID)
	}
	assert.NotEmpty(t, results)
}

func TestSemanticSearchLimitAndThreshold(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, q := range []string{"rust borrow checker", "rust lifetimes explained", "rust async runtimes"} {
		require.True(t, f.pipeline.TrackSearch(ctx, q, "").Success)
	}

	limited, err := f.search.SemanticSearch(ctx, "rust", SemanticOptions{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	strict, err := f.search.SemanticSearch(ctx, "rust", SemanticOptions{MinSimilarity: 1.01})
	require.NoError(t, err)
	assert.Empty(t, strict)
}

func TestSemanticSearchValidates(t *testing.T) {
	f := newFixture(t)
	_, err := f.search.SemanticSearch(context.Background(), "  ", SemanticOptions{})
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestKeywordSearch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	inTitle := f.pipeline.TrackVisit(ctx, "https://go.dev/blog/generics", "Generics tutorial", 0)
	inValue := f.pipeline.TrackSearch(ctx, "generics in go", "")
	unrelated := f.pipeline.TrackSearch(ctx, "sourdough starter", "")
	require.True(t, inTitle.Success && inValue.Success && unrelated.Success)

	results, err := f.search.KeywordSearch(ctx, "GENERICS", 10)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, inTitle.EventID, results[0].Event.ID)
	assert.Greater(t, results[0].Score, results[1].Score)

	_, err = f.search.KeywordSearch(ctx, "", 10)
	assert.ErrorIs(t, err, models.ErrValidation)
}
