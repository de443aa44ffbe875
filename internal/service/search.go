// Package service provides the query and maintenance operations built on
// the event store and the vector index.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/dgraph-io/ristretto"

	"github.com/raphaelgruber/omnimemory/internal/models"
	"github.com/raphaelgruber/omnimemory/internal/vectorindex"
)

// Search defaults.
const (
	DefaultSearchLimit = 10
	overFetchFactor    = 4
	titleWeight        = 10
	queryCacheMaxCost  = 8 << 20 // bytes of cached query vectors
)

// EventReader is the read side of the event store.
type EventReader interface {
	GetEvent(ctx context.Context, id string) (*models.MemoryEvent, error)
	AllEvents(ctx context.Context) ([]models.MemoryEvent, error)
}

// VectorSearcher answers similarity queries. *vectorindex.Index implements it.
type VectorSearcher interface {
	Search(ctx context.Context, q vectorindex.Query, opts vectorindex.SearchOptions) ([]vectorindex.Match, error)
}

// SearchResult is one event matched by semantic search, with the chunk
// that matched.
type SearchResult struct {
	Event       models.MemoryEvent `json:"event"`
	Similarity  float64            `json:"similarity"`
	EmbeddingID string             `json:"embeddingId"`
	ChunkText   string             `json:"chunkText"`
}

// KeywordResult is one event matched by keyword search.
type KeywordResult struct {
	Event models.MemoryEvent `json:"event"`
	Score int                `json:"score"`
}

// SemanticOptions bound a semantic search.
type SemanticOptions struct {
	Limit         int
	MinSimilarity float64
}

// SearchService runs semantic and keyword searches over tracked events.
type SearchService struct {
	events   EventReader
	vectors  VectorSearcher
	embedder vectorindex.QueryEmbedder
	queries  *ristretto.Cache
	logger   *slog.Logger
}

// NewSearchService creates a search service. Query vectors are cached by
// query text.
func NewSearchService(events EventReader, vectors VectorSearcher, embedder vectorindex.QueryEmbedder, logger *slog.Logger) (*SearchService, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 10_000,
		MaxCost:     queryCacheMaxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create query cache: %w", err)
	}
	return &SearchService{
		events:   events,
		vectors:  vectors,
		embedder: embedder,
		queries:  cache,
		logger:   logger,
	}, nil
}

// Close releases the query cache.
func (s *SearchService) Close() {
	s.queries.Close()
}

func (s *SearchService) queryVector(ctx context.Context, query string) ([]float32, error) {
	if v, ok := s.queries.Get(query); ok {
		return v.([]float32), nil
	}
	vec, provider, err := s.embedder.Generate(ctx, query)
	if err != nil {
		return nil, err
	}
	// hash vectors are a stopgap; let a recovered provider replace them
	if provider != "hash" {
		s.queries.Set(query, vec, int64(len(vec)*4))
	}
	return vec, nil
}

// SemanticSearch returns the events whose chunks best match query, one
// result per event, best first. It over-fetches vector matches so events
// that no longer exist can be dropped without shrinking the result.
func (s *SearchService) SemanticSearch(ctx context.Context, query string, opts SemanticOptions) ([]SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: query is required", models.ErrValidation)
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	vec, err := s.queryVector(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	matches, err := s.vectors.Search(ctx, vectorindex.Query{Vector: vec}, vectorindex.SearchOptions{
		MinSimilarity: opts.MinSimilarity,
		Limit:         limit * overFetchFactor,
	})
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}

	results := make([]SearchResult, 0, limit)
	seen := make(map[string]struct{}, len(matches))
	for _, m := range matches {
		if len(results) == limit {
			break
		}
		eventID := m.Embedding.EventID
		if _, dup := seen[eventID]; dup {
			continue
		}
		seen[eventID] = struct{}{}

		e, err := s.events.GetEvent(ctx, eventID)
		if err != nil {
			if !errors.Is(err, models.ErrNotFound) {
				s.logger.Warn("hydrate search result failed", "event_id", eventID, "error", err)
			}
			continue
		}
		results = append(results, SearchResult{
			Event:       *e,
			Similarity:  m.Similarity,
			EmbeddingID: m.Embedding.ID,
			ChunkText:   m.Embedding.Text,
		})
	}
	return results, nil
}

// KeywordSearch scores events by case-insensitive term hits. A hit in the
// title counts titleWeight times a hit in the value or tags. Ties go to the
// newer event.
func (s *SearchService) KeywordSearch(ctx context.Context, query string, limit int) ([]KeywordResult, error) {
	terms := strings.Fields(strings.ToLower(query))
	if len(terms) == 0 {
		return nil, fmt.Errorf("%w: query is required", models.ErrValidation)
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	events, err := s.events.AllEvents(ctx)
	if err != nil {
		return nil, err
	}

	var results []KeywordResult
	for _, e := range events {
		if score := keywordScore(e, terms); score > 0 {
			results = append(results, KeywordResult{Event: e, Score: score})
		}
	}
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Event.TS > results[j].Event.TS
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func keywordScore(e models.MemoryEvent, terms []string) int {
	title := strings.ToLower(e.Metadata.Title)
	body := strings.ToLower(e.Value + " " + strings.Join(e.Metadata.Tags, " "))
	if note, ok := e.Metadata.AsNote(); ok {
		body += " " + strings.ToLower(note.Content)
	}

	score := 0
	for _, t := range terms {
		score += titleWeight*strings.Count(title, t) + strings.Count(body, t)
	}
	return score
}
