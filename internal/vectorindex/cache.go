package vectorindex

import (
	"context"
	"fmt"
	"slices"
	"sort"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/raphaelgruber/omnimemory/internal/models"
	"github.com/raphaelgruber/omnimemory/internal/store"
)

// BackendSource yields the durable backend in use. *store.EventStore
// implements it; the backend is resolved per call because the store picks
// it during Init.
type BackendSource interface {
	Backend() store.Backend
}

type fixedSource struct{ b store.Backend }

func (f fixedSource) Backend() store.Backend { return f.b }

// Fixed returns a BackendSource that always yields b.
func Fixed(b store.Backend) BackendSource { return fixedSource{b: b} }

// cachedStore keeps recently written or loaded embeddings in an LRU in front
// of the durable backend. Writes go to the backend first, then the cache.
type cachedStore struct {
	source BackendSource
	cache  *lru.Cache[string, models.Embedding]
}

func newCachedStore(source BackendSource, size int) (*cachedStore, error) {
	c, err := lru.New[string, models.Embedding](size)
	if err != nil {
		return nil, fmt.Errorf("vector cache: %w", err)
	}
	return &cachedStore{source: source, cache: c}, nil
}

func (s *cachedStore) backend() (store.Backend, error) {
	b := s.source.Backend()
	if b == nil {
		return nil, fmt.Errorf("vector index: no durable backend: %w", models.ErrStorage)
	}
	return b, nil
}

func (s *cachedStore) put(ctx context.Context, emb models.Embedding) error {
	b, err := s.backend()
	if err != nil {
		return err
	}
	if err := b.PutEmbedding(ctx, emb); err != nil {
		return err
	}
	s.cache.Add(emb.ID, emb)
	return nil
}

func (s *cachedStore) get(ctx context.Context, id string) (*models.Embedding, error) {
	if emb, ok := s.cache.Get(id); ok {
		return &emb, nil
	}
	b, err := s.backend()
	if err != nil {
		return nil, err
	}
	emb, err := b.GetEmbedding(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cache.Add(emb.ID, *emb)
	return emb, nil
}

func (s *cachedStore) byEvent(ctx context.Context, eventID string) ([]models.Embedding, error) {
	b, err := s.backend()
	if err != nil {
		return nil, err
	}
	return b.EmbeddingsByEvent(ctx, eventID)
}

func (s *cachedStore) deleteByEvent(ctx context.Context, eventID string) (int, error) {
	b, err := s.backend()
	if err != nil {
		return 0, err
	}
	n, err := b.DeleteEmbeddingsByEvent(ctx, eventID)
	if err != nil {
		return 0, err
	}
	for _, id := range s.cache.Keys() {
		if emb, ok := s.cache.Peek(id); ok && emb.EventID == eventID {
			s.cache.Remove(id)
		}
	}
	return n, nil
}

func (s *cachedStore) deleteIDs(ctx context.Context, ids []string) error {
	b, err := s.backend()
	if err != nil {
		return err
	}
	if err := b.DeleteEmbeddings(ctx, ids); err != nil {
		return err
	}
	for _, id := range ids {
		s.cache.Remove(id)
	}
	return nil
}

func (s *cachedStore) oldestIDs(ctx context.Context, n int) ([]string, error) {
	b, err := s.backend()
	if err != nil {
		return nil, err
	}
	return b.OldestEmbeddingIDs(ctx, n)
}

func (s *cachedStore) count(ctx context.Context) (int, error) {
	b, err := s.backend()
	if err != nil {
		return 0, err
	}
	return b.CountEmbeddings(ctx)
}

// candidates selects up to max embeddings, cached ones before the newest
// durable ones not already cached, and returns them in insertion order:
// ascending Timestamp, then oldest cache entry first.
func (s *cachedStore) candidates(ctx context.Context, max int) ([]models.Embedding, error) {
	keys := s.cache.Keys()
	out := make([]models.Embedding, 0, min(max, len(keys)))
	seen := make(map[string]struct{}, len(keys))
	for i := len(keys) - 1; i >= 0 && len(out) < max; i-- {
		if emb, ok := s.cache.Peek(keys[i]); ok {
			out = append(out, emb)
			seen[emb.ID] = struct{}{}
		}
	}
	if len(out) >= max {
		return insertionOrder(out), nil
	}

	b, err := s.backend()
	if err != nil {
		return nil, err
	}
	recent, err := b.RecentEmbeddings(ctx, max)
	if err != nil {
		return nil, err
	}
	for _, emb := range recent {
		if len(out) >= max {
			break
		}
		if _, ok := seen[emb.ID]; ok {
			continue
		}
		out = append(out, emb)
	}
	return insertionOrder(out), nil
}

func insertionOrder(embs []models.Embedding) []models.Embedding {
	slices.Reverse(embs)
	sort.SliceStable(embs, func(i, j int) bool {
		return embs[i].Timestamp < embs[j].Timestamp
	})
	return embs
}

func (s *cachedStore) cacheLen() int { return s.cache.Len() }
