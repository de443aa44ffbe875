package store

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/raphaelgruber/omnimemory/internal/config"
	"github.com/raphaelgruber/omnimemory/internal/db"
	"github.com/raphaelgruber/omnimemory/internal/fallback"
	"github.com/raphaelgruber/omnimemory/internal/metrics"
	"github.com/raphaelgruber/omnimemory/internal/models"
)

// Scoring constants for SaveEvent.
const (
	frequencyWindow = 7 * 24 * time.Hour
	frequencyCap    = 10
	frequencyWeight = 0.1
	recencyScore    = 1.0
)

// EmbeddingRemover deletes the vectors of an event. The vector index
// implements it so event deletes cascade.
type EmbeddingRemover interface {
	DeleteByEventID(ctx context.Context, eventID string) (int, error)
}

// EventStore is the durable event log. Init selects the first backend that
// initializes successfully.
type EventStore struct {
	backends []Backend
	logger   *slog.Logger
	now      func() time.Time

	mu      sync.RWMutex
	backend Backend
	remover EmbeddingRemover

	// serializes metadata read-modify-write cycles
	updateMu sync.Mutex
}

// NewEventStore returns a store over backends in preference order.
func NewEventStore(backends []Backend, logger *slog.Logger) *EventStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventStore{backends: backends, logger: logger, now: time.Now}
}

// BackendsFromConfig builds the configured backend chain. A memory backend is
// appended when none is configured so Init cannot fail.
func BackendsFromConfig(cfg config.Config, logger *slog.Logger, mc *metrics.Collector) []Backend {
	var backends []Backend
	hasMemory := false
	for _, name := range cfg.StorageBackends {
		switch name {
		case "surreal", "surrealdb":
			backends = append(backends, NewSurrealBackend(db.Config{
				URL:        cfg.SurrealDBURL,
				Namespace:  cfg.SurrealDBNamespace,
				Database:   cfg.SurrealDBDatabase,
				Username:   cfg.SurrealDBUser,
				Password:   cfg.SurrealDBPass,
				AuthLevel:  cfg.SurrealDBAuthLevel,
				MaxRetries: 2,
			}, logger, mc))
		case "sqlite":
			backends = append(backends, NewSQLiteBackend(cfg.SQLitePath))
		case "memory":
			backends = append(backends, NewMemoryBackend(cfg.MemoryEventCap, 0))
			hasMemory = true
		default:
			logger.Warn("unknown storage backend ignored", "backend", name)
		}
	}
	if !hasMemory {
		backends = append(backends, NewMemoryBackend(cfg.MemoryEventCap, 0))
	}
	return backends
}

// Init picks the first backend whose Init succeeds.
func (s *EventStore) Init(ctx context.Context) error {
	chosen, idx, err := fallback.First(ctx, s.backends, func(ctx context.Context, b Backend) (Backend, error) {
		if err := b.Init(ctx); err != nil {
			s.logger.Warn("storage backend unavailable", "backend", b.Name(), "error", err)
			return nil, err
		}
		return b, nil
	})
	if err != nil {
		return fmt.Errorf("init event store: %w: %w", models.ErrStorage, err)
	}

	s.mu.Lock()
	s.backend = chosen
	s.mu.Unlock()

	if idx > 0 {
		s.logger.Warn("event store degraded", "backend", chosen.Name(), "preferred", s.backends[0].Name())
	} else {
		s.logger.Info("event store ready", "backend", chosen.Name())
	}
	return nil
}

// Shutdown closes the active backend.
func (s *EventStore) Shutdown(ctx context.Context) error {
	b := s.Backend()
	if b == nil {
		return nil
	}
	return b.Close(ctx)
}

// Backend returns the active backend, or nil before Init.
func (s *EventStore) Backend() Backend {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.backend
}

// SetEmbeddingRemover wires the cascade target for DeleteEvent.
func (s *EventStore) SetEmbeddingRemover(r EmbeddingRemover) {
	s.mu.Lock()
	s.remover = r
	s.mu.Unlock()
}

func (s *EventStore) active() (Backend, error) {
	b := s.Backend()
	if b == nil {
		return nil, fmt.Errorf("event store not initialized: %w", models.ErrStorage)
	}
	return b, nil
}

// SaveEvent persists a new event and returns it as stored. ID and TS are
// assigned when unset; Score is always recomputed.
func (s *EventStore) SaveEvent(ctx context.Context, e models.MemoryEvent) (models.MemoryEvent, error) {
	b, err := s.active()
	if err != nil {
		return e, err
	}
	if !e.Type.Valid() {
		return e, fmt.Errorf("%w: unknown event type %q", models.ErrValidation, e.Type)
	}
	if e.Metadata.Variant == nil {
		e.Metadata = models.DecodeMetadata(e.Type, e.Metadata.ToMap())
	}

	now := s.now()
	if e.ID == "" {
		e.ID = ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String()
	}
	if e.TS == 0 {
		e.TS = now.UnixMilli()
	}
	e.Metadata.Tags = models.NormalizeTags(e.Metadata.Tags)
	e.Score = s.score(ctx, b, e)

	if err := b.PutEvent(ctx, e); err != nil {
		return e, fmt.Errorf("save event: %w", err)
	}
	return e, nil
}

// score weights an event by how often the same type and value recurred in
// the last week. Failures degrade to zero.
func (s *EventStore) score(ctx context.Context, b Backend, e models.MemoryEvent) float64 {
	since := time.UnixMilli(e.TS).Add(-frequencyWindow).UnixMilli()
	freq, err := b.CountSimilar(ctx, e.Type, e.Value, since)
	if err != nil {
		s.logger.Warn("score computation failed", "event_id", e.ID, "error", err)
		return 0
	}
	return recencyScore + frequencyWeight*float64(min(freq, frequencyCap))
}

// GetEvent returns one event by id.
func (s *EventStore) GetEvent(ctx context.Context, id string) (*models.MemoryEvent, error) {
	b, err := s.active()
	if err != nil {
		return nil, err
	}
	return b.GetEvent(ctx, id)
}

// GetEvents returns events matching f, newest first.
func (s *EventStore) GetEvents(ctx context.Context, f models.EventFilter) ([]models.MemoryEvent, error) {
	b, err := s.active()
	if err != nil {
		return nil, err
	}
	return b.QueryEvents(ctx, f)
}

// AllEvents returns every stored event, newest first.
func (s *EventStore) AllEvents(ctx context.Context) ([]models.MemoryEvent, error) {
	b, err := s.active()
	if err != nil {
		return nil, err
	}
	return b.AllEvents(ctx)
}

// UpdateEventMetadata merges patch into the event's metadata. A nil value in
// patch removes that key.
func (s *EventStore) UpdateEventMetadata(ctx context.Context, id string, patch map[string]any) (*models.MemoryEvent, error) {
	b, err := s.active()
	if err != nil {
		return nil, err
	}
	s.updateMu.Lock()
	defer s.updateMu.Unlock()

	e, err := b.GetEvent(ctx, id)
	if err != nil {
		return nil, err
	}
	e.Metadata = e.Metadata.Merge(e.Type, patch)
	if err := b.PutEvent(ctx, *e); err != nil {
		return nil, fmt.Errorf("update event %s: %w", id, err)
	}
	return e, nil
}

// DeleteEvent removes an event and its embeddings. Returns false when no
// event had that id.
func (s *EventStore) DeleteEvent(ctx context.Context, id string) (bool, error) {
	b, err := s.active()
	if err != nil {
		return false, err
	}
	deleted, err := b.DeleteEvent(ctx, id)
	if err != nil {
		return false, err
	}
	s.cascade(ctx, id)
	return deleted, nil
}

func (s *EventStore) cascade(ctx context.Context, eventID string) {
	s.mu.RLock()
	r := s.remover
	s.mu.RUnlock()
	if r == nil {
		return
	}
	if _, err := r.DeleteByEventID(ctx, eventID); err != nil {
		s.logger.Warn("embedding cascade failed", "event_id", eventID, "error", err)
	}
}

// GetAllTags returns every tag in use, sorted.
func (s *EventStore) GetAllTags(ctx context.Context) ([]string, error) {
	b, err := s.active()
	if err != nil {
		return nil, err
	}
	if tl, ok := b.(tagLister); ok {
		return tl.AllTags(ctx)
	}

	events, err := b.AllEvents(ctx)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	for _, e := range events {
		for _, t := range e.Metadata.Tags {
			seen[t] = struct{}{}
		}
	}
	tags := make([]string, 0, len(seen))
	for t := range seen {
		tags = append(tags, t)
	}
	sort.Strings(tags)
	return tags, nil
}

// DeleteOlderThan removes events recorded before cutoff, with their
// embeddings, and returns how many were deleted.
func (s *EventStore) DeleteOlderThan(ctx context.Context, cutoff time.Time, keepPinned bool) (int, error) {
	b, err := s.active()
	if err != nil {
		return 0, err
	}
	ids, err := b.EventIDsBefore(ctx, cutoff.UnixMilli(), keepPinned)
	if err != nil {
		return 0, err
	}
	if err := b.DeleteEvents(ctx, ids); err != nil {
		return 0, err
	}
	for _, id := range ids {
		s.cascade(ctx, id)
	}
	return len(ids), nil
}

// CountEvents returns the number of stored events.
func (s *EventStore) CountEvents(ctx context.Context) (int, error) {
	b, err := s.active()
	if err != nil {
		return 0, err
	}
	return b.CountEvents(ctx)
}
