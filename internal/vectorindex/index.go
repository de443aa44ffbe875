// Package vectorindex stores chunk embeddings and answers cosine-similarity
// queries over them. A bounded LRU sits in front of the durable backend and
// the durable vector count is kept under a ceiling by pruning the oldest.
package vectorindex

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/raphaelgruber/omnimemory/internal/config"
	"github.com/raphaelgruber/omnimemory/internal/metrics"
	"github.com/raphaelgruber/omnimemory/internal/models"
)

// Defaults used when Config fields are zero.
const (
	DefaultCacheSize  = 1000
	DefaultCeiling    = 5000
	DefaultPruneEvery = 100
	DefaultPruneBatch = 50
	DefaultMaxVectors = 5000
	DefaultLimit      = 10
)

// QueryEmbedder turns query text into a vector. *embedding.Chain implements it.
type QueryEmbedder interface {
	Generate(ctx context.Context, text string) ([]float32, string, error)
}

// Config holds index limits.
type Config struct {
	CacheSize  int
	Ceiling    int
	PruneEvery int
	PruneBatch int
	MaxVectors int
}

// ConfigFrom extracts the index limits from the application config.
func ConfigFrom(cfg config.Config) Config {
	return Config{
		CacheSize:  cfg.VectorCacheSize,
		Ceiling:    cfg.VectorCeiling,
		PruneEvery: cfg.PruneEvery,
		PruneBatch: cfg.PruneBatchSize,
		MaxVectors: cfg.SearchMaxVectors,
	}
}

func (c Config) withDefaults() Config {
	if c.CacheSize <= 0 {
		c.CacheSize = DefaultCacheSize
	}
	if c.Ceiling <= 0 {
		c.Ceiling = DefaultCeiling
	}
	if c.PruneEvery <= 0 {
		c.PruneEvery = DefaultPruneEvery
	}
	if c.PruneBatch <= 0 {
		c.PruneBatch = DefaultPruneBatch
	}
	if c.MaxVectors <= 0 {
		c.MaxVectors = DefaultMaxVectors
	}
	return c
}

// Query is either a ready vector or text to embed. Vector wins when both are set.
type Query struct {
	Vector []float32
	Text   string
}

// SearchOptions bound a search. Zero values use the index defaults.
type SearchOptions struct {
	MaxVectors    int
	MinSimilarity float64
	Limit         int
}

// Match is one scored embedding.
type Match struct {
	Embedding  models.Embedding
	Similarity float64
}

// Stats describes the index state.
type Stats struct {
	CacheSize    int       `json:"cache_size"`
	DurableCount int       `json:"durable_count"`
	Inserts      int64     `json:"inserts"`
	Prunes       int64     `json:"prunes"`
	Pruned       int64     `json:"pruned"`
	LastPrune    time.Time `json:"last_prune,omitempty"`
}

// Index is the vector store used by the pipeline and search.
type Index struct {
	store    *cachedStore
	embedder QueryEmbedder
	cfg      Config
	logger   *slog.Logger
	metrics  *metrics.Collector

	pruneMu sync.Mutex

	mu        sync.Mutex
	size      int // durable count estimate; -1 when unknown
	inserts   int64
	prunes    int64
	pruned    int64
	lastPrune time.Time
}

// New creates an index over the backend yielded by source.
func New(source BackendSource, embedder QueryEmbedder, cfg Config, logger *slog.Logger, mc *metrics.Collector) (*Index, error) {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	cs, err := newCachedStore(source, cfg.CacheSize)
	if err != nil {
		return nil, err
	}
	return &Index{store: cs, embedder: embedder, cfg: cfg, logger: logger, metrics: mc, size: -1}, nil
}

// Save upserts an embedding. Prune runs on every PruneEvery-th insert and
// whenever the durable count passes the ceiling.
func (x *Index) Save(ctx context.Context, emb models.Embedding) error {
	if emb.ID == "" || emb.EventID == "" {
		return fmt.Errorf("%w: embedding id and event id are required", models.ErrValidation)
	}
	if len(emb.Vector) == 0 {
		return fmt.Errorf("%w: embedding %s has no vector", models.ErrValidation, emb.ID)
	}
	if err := x.store.put(ctx, emb); err != nil {
		return fmt.Errorf("save embedding %s: %w", emb.ID, err)
	}
	x.metrics.Inc(metrics.CounterEmbeddingsStored)

	x.mu.Lock()
	x.inserts++
	due := x.inserts%int64(x.cfg.PruneEvery) == 0
	size := x.size
	if size >= 0 {
		x.size++
		size++
	}
	x.mu.Unlock()

	if !due && size < 0 {
		n, err := x.store.count(ctx)
		if err != nil {
			x.logger.Warn("vector count failed", "error", err)
		} else {
			x.setSize(n)
			size = n
		}
	}
	if due || size > x.cfg.Ceiling {
		if _, err := x.Prune(ctx); err != nil {
			x.logger.Warn("vector prune failed", "error", err)
		}
	}
	return nil
}

func (x *Index) setSize(n int) {
	x.mu.Lock()
	x.size = n
	x.mu.Unlock()
}

// Get loads one embedding, from cache when possible.
func (x *Index) Get(ctx context.Context, id string) (*models.Embedding, error) {
	return x.store.get(ctx, id)
}

// EmbeddingsByEvent returns the chunks of an event in chunk order.
func (x *Index) EmbeddingsByEvent(ctx context.Context, eventID string) ([]models.Embedding, error) {
	return x.store.byEvent(ctx, eventID)
}

// Prune deletes the oldest embeddings in batches until the durable count is
// at or below the ceiling. Returns how many were deleted.
func (x *Index) Prune(ctx context.Context) (int, error) {
	x.pruneMu.Lock()
	defer x.pruneMu.Unlock()

	deleted := 0
	for {
		if err := ctx.Err(); err != nil {
			return deleted, err
		}
		count, err := x.store.count(ctx)
		if err != nil {
			return deleted, err
		}
		excess := count - x.cfg.Ceiling
		if excess <= 0 {
			x.setSize(count)
			break
		}
		ids, err := x.store.oldestIDs(ctx, min(x.cfg.PruneBatch, excess))
		if err != nil {
			return deleted, err
		}
		if len(ids) == 0 {
			break
		}
		if err := x.store.deleteIDs(ctx, ids); err != nil {
			return deleted, err
		}
		deleted += len(ids)
	}

	if deleted > 0 {
		x.mu.Lock()
		x.prunes++
		x.pruned += int64(deleted)
		x.lastPrune = time.Now()
		x.mu.Unlock()
		x.metrics.Add(metrics.CounterVectorsPruned, int64(deleted))
		x.logger.Info("pruned vectors", "deleted", deleted, "ceiling", x.cfg.Ceiling)
	}
	return deleted, nil
}

// Search scores candidate embeddings against the query by cosine similarity
// and returns matches at or above MinSimilarity, best first. Equal scores
// keep insertion order.
func (x *Index) Search(ctx context.Context, q Query, opts SearchOptions) ([]Match, error) {
	start := time.Now()
	defer func() { x.metrics.RecordTiming(metrics.OpVectorSearch, time.Since(start)) }()

	vec := q.Vector
	if len(vec) == 0 {
		if q.Text == "" {
			return nil, fmt.Errorf("%w: query needs a vector or text", models.ErrValidation)
		}
		if x.embedder == nil {
			return nil, fmt.Errorf("%w: no embedder for text queries", models.ErrValidation)
		}
		var err error
		vec, _, err = x.embedder.Generate(ctx, q.Text)
		if err != nil {
			return nil, err
		}
	}

	maxVectors := opts.MaxVectors
	if maxVectors <= 0 {
		maxVectors = x.cfg.MaxVectors
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	candidates, err := x.store.candidates(ctx, maxVectors)
	if err != nil {
		return nil, fmt.Errorf("load candidates: %w", err)
	}

	matches := make([]Match, 0, len(candidates))
	for _, emb := range candidates {
		sim := CosineSimilarity(vec, emb.Vector)
		if sim < opts.MinSimilarity {
			continue
		}
		matches = append(matches, Match{Embedding: emb, Similarity: sim})
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

// DeleteByEventID removes every chunk of an event and returns the count.
func (x *Index) DeleteByEventID(ctx context.Context, eventID string) (int, error) {
	n, err := x.store.deleteByEvent(ctx, eventID)
	if n > 0 {
		x.setSize(-1)
	}
	return n, err
}

// Count returns the durable number of embeddings.
func (x *Index) Count(ctx context.Context) (int, error) {
	return x.store.count(ctx)
}

// CacheSize returns the number of embeddings held in memory.
func (x *Index) CacheSize() int { return x.store.cacheLen() }

// Stats reports cache and durable sizes along with prune history.
func (x *Index) Stats(ctx context.Context) (Stats, error) {
	count, err := x.store.count(ctx)
	if err != nil {
		return Stats{}, err
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	return Stats{
		CacheSize:    x.store.cacheLen(),
		DurableCount: count,
		Inserts:      x.inserts,
		Prunes:       x.prunes,
		Pruned:       x.pruned,
		LastPrune:    x.lastPrune,
	}, nil
}

// CosineSimilarity returns the cosine of the angle between a and b, or 0
// when either has zero magnitude or their lengths differ.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
