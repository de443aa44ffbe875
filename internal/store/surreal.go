package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/raphaelgruber/omnimemory/internal/db"
	"github.com/raphaelgruber/omnimemory/internal/metrics"
	"github.com/raphaelgruber/omnimemory/internal/models"
)

// SurrealBackend persists events and embeddings in SurrealDB.
type SurrealBackend struct {
	cfg     db.Config
	logger  *slog.Logger
	metrics *metrics.Collector
	client  *db.Client
}

// NewSurrealBackend returns a backend that connects on Init.
func NewSurrealBackend(cfg db.Config, logger *slog.Logger, mc *metrics.Collector) *SurrealBackend {
	return &SurrealBackend{cfg: cfg, logger: logger, metrics: mc}
}

// NewSurrealBackendFromClient wraps an already connected client.
func NewSurrealBackendFromClient(client *db.Client) *SurrealBackend {
	return &SurrealBackend{client: client}
}

func (b *SurrealBackend) Name() string { return "surreal" }

// Init connects, authenticates and applies the schema.
func (b *SurrealBackend) Init(ctx context.Context) error {
	if b.client == nil {
		client, err := db.NewClient(ctx, b.cfg, b.logger, b.metrics)
		if err != nil {
			return fmt.Errorf("surreal backend: %w", err)
		}
		b.client = client
	}
	if err := b.client.InitSchema(ctx); err != nil {
		_ = b.client.Close(ctx)
		b.client = nil
		return fmt.Errorf("surreal backend: %w", err)
	}
	return nil
}

func (b *SurrealBackend) Close(ctx context.Context) error {
	if b.client == nil {
		return nil
	}
	return b.client.Close(ctx)
}

func (b *SurrealBackend) PutEvent(ctx context.Context, e models.MemoryEvent) error {
	return b.client.UpsertEvent(ctx, e)
}

func (b *SurrealBackend) GetEvent(ctx context.Context, id string) (*models.MemoryEvent, error) {
	return b.client.GetEvent(ctx, id)
}

func (b *SurrealBackend) DeleteEvent(ctx context.Context, id string) (bool, error) {
	return b.client.DeleteEvent(ctx, id)
}

func (b *SurrealBackend) QueryEvents(ctx context.Context, f models.EventFilter) ([]models.MemoryEvent, error) {
	return b.client.QueryEvents(ctx, f)
}

func (b *SurrealBackend) AllEvents(ctx context.Context) ([]models.MemoryEvent, error) {
	return b.client.AllEvents(ctx)
}

func (b *SurrealBackend) CountEvents(ctx context.Context) (int, error) {
	return b.client.CountEvents(ctx)
}

func (b *SurrealBackend) CountSimilar(ctx context.Context, t models.EventType, value string, since int64) (int, error) {
	return b.client.CountSimilar(ctx, t, value, since)
}

func (b *SurrealBackend) EventIDsBefore(ctx context.Context, cutoff int64, keepPinned bool) ([]string, error) {
	return b.client.EventIDsBefore(ctx, cutoff, keepPinned)
}

func (b *SurrealBackend) DeleteEvents(ctx context.Context, ids []string) error {
	return b.client.DeleteEvents(ctx, ids)
}

func (b *SurrealBackend) AllTags(ctx context.Context) ([]string, error) {
	return b.client.AllTags(ctx)
}

func (b *SurrealBackend) PutEmbedding(ctx context.Context, emb models.Embedding) error {
	return b.client.UpsertEmbedding(ctx, emb)
}

func (b *SurrealBackend) GetEmbedding(ctx context.Context, id string) (*models.Embedding, error) {
	return b.client.GetEmbedding(ctx, id)
}

func (b *SurrealBackend) EmbeddingsByEvent(ctx context.Context, eventID string) ([]models.Embedding, error) {
	return b.client.EmbeddingsByEvent(ctx, eventID)
}

func (b *SurrealBackend) DeleteEmbeddingsByEvent(ctx context.Context, eventID string) (int, error) {
	return b.client.DeleteEmbeddingsByEvent(ctx, eventID)
}

func (b *SurrealBackend) RecentEmbeddings(ctx context.Context, limit int) ([]models.Embedding, error) {
	return b.client.RecentEmbeddings(ctx, limit)
}

func (b *SurrealBackend) OldestEmbeddingIDs(ctx context.Context, n int) ([]string, error) {
	return b.client.OldestEmbeddingIDs(ctx, n)
}

func (b *SurrealBackend) DeleteEmbeddings(ctx context.Context, ids []string) error {
	return b.client.DeleteEmbeddings(ctx, ids)
}

func (b *SurrealBackend) CountEmbeddings(ctx context.Context) (int, error) {
	return b.client.CountEmbeddings(ctx)
}
