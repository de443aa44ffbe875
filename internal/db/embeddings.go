package db

import (
	"context"
	"time"

	"github.com/raphaelgruber/omnimemory/internal/metrics"
	"github.com/raphaelgruber/omnimemory/internal/models"
	"github.com/surrealdb/surrealdb.go"
)

const embeddingFields = `record::id(id) AS id, event_id, vector, text, metadata, timestamp, provider`

// UpsertEmbedding writes one chunk vector keyed by its deterministic id.
func (c *Client) UpsertEmbedding(ctx context.Context, emb models.Embedding) error {
	defer c.observe(metrics.OpDBQuery, time.Now())

	var provider any
	if emb.Provider != "" {
		provider = emb.Provider
	}
	_, err := surrealdb.Query[any](ctx, c.db, `
		UPSERT type::record("embedding", $id) CONTENT {
			event_id: $event_id,
			vector: $vector,
			text: $text,
			metadata: $metadata,
			timestamp: $timestamp,
			provider: $provider
		}
	`, map[string]any{
		"id":        emb.ID,
		"event_id":  emb.EventID,
		"vector":    emb.Vector,
		"text":      emb.Text,
		"metadata":  emb.Metadata,
		"timestamp": emb.Timestamp,
		"provider":  provider,
	})
	return wrapQueryError("upsert embedding", err)
}

// GetEmbedding retrieves one embedding by id. Returns ErrNotFound when absent.
func (c *Client) GetEmbedding(ctx context.Context, id string) (*models.Embedding, error) {
	defer c.observe(metrics.OpDBQuery, time.Now())

	results, err := surrealdb.Query[[]models.Embedding](ctx, c.db,
		`SELECT `+embeddingFields+` FROM type::record("embedding", $id)`,
		map[string]any{"id": id})
	if err != nil {
		return nil, wrapQueryError("get embedding", err)
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, ErrNotFound
	}
	return &(*results)[0].Result[0], nil
}

// EmbeddingsByEvent returns the chunk vectors of one event ordered by chunk index.
func (c *Client) EmbeddingsByEvent(ctx context.Context, eventID string) ([]models.Embedding, error) {
	defer c.observe(metrics.OpDBQuery, time.Now())

	results, err := surrealdb.Query[[]models.Embedding](ctx, c.db,
		`SELECT `+embeddingFields+` FROM embedding WHERE event_id = $event_id ORDER BY metadata.chunk_index ASC`,
		map[string]any{"event_id": eventID})
	if err != nil {
		return nil, wrapQueryError("embeddings by event", err)
	}
	if results == nil || len(*results) == 0 {
		return []models.Embedding{}, nil
	}
	return (*results)[0].Result, nil
}

// DeleteEmbeddingsByEvent removes every chunk of an event and returns how many were deleted.
func (c *Client) DeleteEmbeddingsByEvent(ctx context.Context, eventID string) (int, error) {
	defer c.observe(metrics.OpDBQuery, time.Now())

	results, err := surrealdb.Query[[]map[string]any](ctx, c.db,
		`DELETE embedding WHERE event_id = $event_id RETURN BEFORE`,
		map[string]any{"event_id": eventID})
	if err != nil {
		return 0, wrapQueryError("delete embeddings by event", err)
	}
	if results == nil || len(*results) == 0 {
		return 0, nil
	}
	return len((*results)[0].Result), nil
}

// RecentEmbeddings returns up to limit embeddings, newest timestamp first.
func (c *Client) RecentEmbeddings(ctx context.Context, limit int) ([]models.Embedding, error) {
	defer c.observe(metrics.OpDBQuery, time.Now())

	results, err := surrealdb.Query[[]models.Embedding](ctx, c.db,
		`SELECT `+embeddingFields+` FROM embedding ORDER BY timestamp DESC LIMIT $limit`,
		map[string]any{"limit": limit})
	if err != nil {
		return nil, wrapQueryError("recent embeddings", err)
	}
	if results == nil || len(*results) == 0 {
		return []models.Embedding{}, nil
	}
	return (*results)[0].Result, nil
}

// OldestEmbeddingIDs returns the ids of the n embeddings with the lowest timestamp.
func (c *Client) OldestEmbeddingIDs(ctx context.Context, n int) ([]string, error) {
	defer c.observe(metrics.OpDBQuery, time.Now())

	results, err := surrealdb.Query[[]struct {
		ID string `json:"id"`
	}](ctx, c.db,
		`SELECT record::id(id) AS id, timestamp FROM embedding ORDER BY timestamp ASC LIMIT $n`,
		map[string]any{"n": n})
	if err != nil {
		return nil, wrapQueryError("oldest embeddings", err)
	}
	if results == nil || len(*results) == 0 {
		return nil, nil
	}
	ids := make([]string, 0, len((*results)[0].Result))
	for _, r := range (*results)[0].Result {
		ids = append(ids, r.ID)
	}
	return ids, nil
}

// DeleteEmbeddings removes the embeddings with the given ids.
func (c *Client) DeleteEmbeddings(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	defer c.observe(metrics.OpDBQuery, time.Now())

	_, err := surrealdb.Query[any](ctx, c.db,
		`DELETE embedding WHERE record::id(id) IN $ids`,
		map[string]any{"ids": ids})
	return wrapQueryError("delete embeddings", err)
}

// CountEmbeddings returns the number of stored embeddings.
func (c *Client) CountEmbeddings(ctx context.Context) (int, error) {
	return c.count(ctx, "embedding", "", nil)
}
