// Package store provides the durable event store and the persistence
// backends shared with the vector index.
package store

import (
	"context"

	"github.com/raphaelgruber/omnimemory/internal/models"
)

// Backend persists events and their chunk embeddings.
// GetEvent and GetEmbedding return an error matching models.ErrNotFound for
// unknown ids; every other failure matches models.ErrStorage.
type Backend interface {
	Name() string
	Init(ctx context.Context) error
	Close(ctx context.Context) error

	PutEvent(ctx context.Context, e models.MemoryEvent) error
	GetEvent(ctx context.Context, id string) (*models.MemoryEvent, error)
	DeleteEvent(ctx context.Context, id string) (bool, error)
	QueryEvents(ctx context.Context, f models.EventFilter) ([]models.MemoryEvent, error)
	AllEvents(ctx context.Context) ([]models.MemoryEvent, error)
	CountEvents(ctx context.Context) (int, error)
	// CountSimilar counts events with the same type and value at or after since.
	CountSimilar(ctx context.Context, t models.EventType, value string, since int64) (int, error)
	EventIDsBefore(ctx context.Context, cutoff int64, keepPinned bool) ([]string, error)
	DeleteEvents(ctx context.Context, ids []string) error

	PutEmbedding(ctx context.Context, emb models.Embedding) error
	GetEmbedding(ctx context.Context, id string) (*models.Embedding, error)
	EmbeddingsByEvent(ctx context.Context, eventID string) ([]models.Embedding, error)
	DeleteEmbeddingsByEvent(ctx context.Context, eventID string) (int, error)
	RecentEmbeddings(ctx context.Context, limit int) ([]models.Embedding, error)
	OldestEmbeddingIDs(ctx context.Context, n int) ([]string, error)
	DeleteEmbeddings(ctx context.Context, ids []string) error
	CountEmbeddings(ctx context.Context) (int, error)
}

// tagLister is implemented by backends that can list tags without a full scan.
type tagLister interface {
	AllTags(ctx context.Context) ([]string, error)
}
