package store

import (
	"context"
	"fmt"
	"slices"
	"sort"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/raphaelgruber/omnimemory/internal/models"
)

// Default capacities of the in-memory backend.
const (
	DefaultMemoryEventCap     = 10000
	DefaultMemoryEmbeddingCap = 20000
)

// MemoryBackend keeps events and embeddings in bounded LRU maps. Reads use
// Peek so only writes refresh an entry; past the cap the least recently
// written entry is evicted. An event leaving the map takes its embeddings
// with it. Nothing survives a restart.
type MemoryBackend struct {
	eventCap     int
	embeddingCap int
	events       *lru.Cache[string, models.MemoryEvent]
	embeddings   *lru.Cache[string, models.Embedding]
}

// NewMemoryBackend returns a memory backend; non-positive caps use the defaults.
func NewMemoryBackend(eventCap, embeddingCap int) *MemoryBackend {
	if eventCap <= 0 {
		eventCap = DefaultMemoryEventCap
	}
	if embeddingCap <= 0 {
		embeddingCap = DefaultMemoryEmbeddingCap
	}
	return &MemoryBackend{eventCap: eventCap, embeddingCap: embeddingCap}
}

func (b *MemoryBackend) Name() string { return "memory" }

func (b *MemoryBackend) Init(context.Context) error {
	if b.events != nil {
		return nil
	}
	embeddings, err := lru.New[string, models.Embedding](b.embeddingCap)
	if err != nil {
		return fmt.Errorf("memory backend: %w", err)
	}
	b.embeddings = embeddings
	events, err := lru.NewWithEvict(b.eventCap, func(id string, _ models.MemoryEvent) {
		b.dropEmbeddings(id)
	})
	if err != nil {
		return fmt.Errorf("memory backend: %w", err)
	}
	b.events = events
	return nil
}

func (b *MemoryBackend) Close(context.Context) error { return nil }

func (b *MemoryBackend) PutEvent(_ context.Context, e models.MemoryEvent) error {
	b.events.Add(e.ID, e)
	return nil
}

func (b *MemoryBackend) GetEvent(_ context.Context, id string) (*models.MemoryEvent, error) {
	e, ok := b.events.Peek(id)
	if !ok {
		return nil, fmt.Errorf("event %s: %w", id, models.ErrNotFound)
	}
	return &e, nil
}

func (b *MemoryBackend) DeleteEvent(_ context.Context, id string) (bool, error) {
	return b.events.Remove(id), nil
}

// snapshot returns all events newest first.
func (b *MemoryBackend) snapshot() []models.MemoryEvent {
	keys := b.events.Keys()
	out := make([]models.MemoryEvent, 0, len(keys))
	for _, k := range keys {
		if e, ok := b.events.Peek(k); ok {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].TS != out[j].TS {
			return out[i].TS > out[j].TS
		}
		return out[i].ID > out[j].ID
	})
	return out
}

func (b *MemoryBackend) QueryEvents(_ context.Context, f models.EventFilter) ([]models.MemoryEvent, error) {
	limit := f.EffectiveLimit()
	out := []models.MemoryEvent{}
	for _, e := range b.snapshot() {
		if !f.Matches(e) {
			continue
		}
		out = append(out, e)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (b *MemoryBackend) AllEvents(context.Context) ([]models.MemoryEvent, error) {
	return b.snapshot(), nil
}

func (b *MemoryBackend) CountEvents(context.Context) (int, error) {
	return b.events.Len(), nil
}

func (b *MemoryBackend) CountSimilar(_ context.Context, t models.EventType, value string, since int64) (int, error) {
	n := 0
	for _, k := range b.events.Keys() {
		e, ok := b.events.Peek(k)
		if ok && e.Type == t && e.Value == value && e.TS >= since {
			n++
		}
	}
	return n, nil
}

func (b *MemoryBackend) EventIDsBefore(_ context.Context, cutoff int64, keepPinned bool) ([]string, error) {
	var ids []string
	for _, k := range b.events.Keys() {
		e, ok := b.events.Peek(k)
		if !ok || e.TS >= cutoff || (keepPinned && e.Metadata.Pinned) {
			continue
		}
		ids = append(ids, e.ID)
	}
	return ids, nil
}

func (b *MemoryBackend) DeleteEvents(_ context.Context, ids []string) error {
	for _, id := range ids {
		b.events.Remove(id)
	}
	return nil
}

func (b *MemoryBackend) PutEmbedding(_ context.Context, emb models.Embedding) error {
	emb.Vector = slices.Clone(emb.Vector)
	b.embeddings.Add(emb.ID, emb)
	return nil
}

func (b *MemoryBackend) GetEmbedding(_ context.Context, id string) (*models.Embedding, error) {
	emb, ok := b.embeddings.Peek(id)
	if !ok {
		return nil, fmt.Errorf("embedding %s: %w", id, models.ErrNotFound)
	}
	return &emb, nil
}

func (b *MemoryBackend) allEmbeddings() []models.Embedding {
	keys := b.embeddings.Keys()
	out := make([]models.Embedding, 0, len(keys))
	for _, k := range keys {
		if emb, ok := b.embeddings.Peek(k); ok {
			out = append(out, emb)
		}
	}
	return out
}

func (b *MemoryBackend) EmbeddingsByEvent(_ context.Context, eventID string) ([]models.Embedding, error) {
	out := []models.Embedding{}
	for _, emb := range b.allEmbeddings() {
		if emb.EventID == eventID {
			out = append(out, emb)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Metadata.ChunkIndex < out[j].Metadata.ChunkIndex })
	return out, nil
}

func (b *MemoryBackend) DeleteEmbeddingsByEvent(_ context.Context, eventID string) (int, error) {
	return b.dropEmbeddings(eventID), nil
}

func (b *MemoryBackend) dropEmbeddings(eventID string) int {
	n := 0
	for _, emb := range b.allEmbeddings() {
		if emb.EventID == eventID && b.embeddings.Remove(emb.ID) {
			n++
		}
	}
	return n
}

// byTimestamp sorts embeddings oldest first with id as tiebreaker.
func byTimestamp(embs []models.Embedding) {
	sort.Slice(embs, func(i, j int) bool {
		if embs[i].Timestamp != embs[j].Timestamp {
			return embs[i].Timestamp < embs[j].Timestamp
		}
		return embs[i].ID < embs[j].ID
	})
}

func (b *MemoryBackend) RecentEmbeddings(_ context.Context, limit int) ([]models.Embedding, error) {
	all := b.allEmbeddings()
	byTimestamp(all)
	slices.Reverse(all)
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (b *MemoryBackend) OldestEmbeddingIDs(_ context.Context, n int) ([]string, error) {
	all := b.allEmbeddings()
	byTimestamp(all)
	if n < len(all) {
		all = all[:n]
	}
	ids := make([]string, len(all))
	for i, emb := range all {
		ids[i] = emb.ID
	}
	return ids, nil
}

func (b *MemoryBackend) DeleteEmbeddings(_ context.Context, ids []string) error {
	for _, id := range ids {
		b.embeddings.Remove(id)
	}
	return nil
}

func (b *MemoryBackend) CountEmbeddings(context.Context) (int, error) {
	return b.embeddings.Len(), nil
}
