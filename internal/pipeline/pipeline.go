// Package pipeline turns tracked user activity into durable events and
// their chunk embeddings.
package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/raphaelgruber/omnimemory/internal/config"
	"github.com/raphaelgruber/omnimemory/internal/embedding"
	"github.com/raphaelgruber/omnimemory/internal/metrics"
	"github.com/raphaelgruber/omnimemory/internal/models"
	"github.com/raphaelgruber/omnimemory/internal/parser"
)

// Defaults for Options fields left zero.
const (
	DefaultDedupWindow   = time.Second
	DefaultDedupTTL      = 5 * time.Second
	DefaultMinEmbedRunes = 10
)

const piiKey = "pii"

// EventWriter persists events. *store.EventStore implements it.
type EventWriter interface {
	SaveEvent(ctx context.Context, e models.MemoryEvent) (models.MemoryEvent, error)
	AllEvents(ctx context.Context) ([]models.MemoryEvent, error)
}

// ChunkEmbedder embeds text chunk by chunk. *embedding.Chain implements it.
type ChunkEmbedder interface {
	EmbedChunks(ctx context.Context, text string) ([]embedding.Chunk, error)
}

// VectorWriter stores chunk vectors. *vectorindex.Index implements it.
type VectorWriter interface {
	Save(ctx context.Context, emb models.Embedding) error
	DeleteByEventID(ctx context.Context, eventID string) (int, error)
}

// Draft is an event as submitted by a caller, before ids and tags.
type Draft struct {
	Type     models.EventType
	Value    string
	Metadata map[string]any
}

// Result reports the outcome of Process. Success is false only when the
// event could not be written; embedding failures are logged.
type Result struct {
	EventID      string   `json:"event_id,omitempty"`
	EmbeddingIDs []string `json:"embedding_ids"`
	Success      bool     `json:"success"`
	Duplicate    bool     `json:"duplicate,omitempty"`
	Err          error    `json:"-"`
}

// Options configure a Pipeline.
type Options struct {
	DedupWindow   time.Duration
	DedupTTL      time.Duration
	MinEmbedRunes int
	Tagging       config.Tagging
	PIIReject     Severity // lowest severity that rejects; SeverityNone only records
	Logger        *slog.Logger
	Metrics       *metrics.Collector
}

// OptionsFrom extracts pipeline options from the application config.
func OptionsFrom(cfg config.Config, tagging config.Tagging, logger *slog.Logger, mc *metrics.Collector) Options {
	reject, err := ParseSeverity(cfg.PIIRejectLevel)
	if err != nil {
		if logger != nil {
			logger.Warn("invalid pii reject severity, using high", "value", cfg.PIIRejectLevel)
		}
		reject = SeverityHigh
	}
	return Options{
		DedupWindow:   cfg.DedupWindow,
		DedupTTL:      cfg.DedupTTL,
		MinEmbedRunes: cfg.MinEmbedTextLength,
		Tagging:       tagging,
		PIIReject:     reject,
		Logger:        logger,
		Metrics:       mc,
	}
}

type seenEntry struct {
	at      time.Time
	eventID string
	saved   chan struct{} // closed once the claiming write finished
}

// Pipeline runs dedup, tagging, the durable write and embedding for each event.
type Pipeline struct {
	events  EventWriter
	chain   ChunkEmbedder
	vectors VectorWriter
	tagger  *Tagger
	opts    Options
	logger  *slog.Logger
	metrics *metrics.Collector
	now     func() time.Time

	mu   sync.Mutex
	seen *cache.Cache
}

// New creates a pipeline.
func New(events EventWriter, chain ChunkEmbedder, vectors VectorWriter, opts Options) *Pipeline {
	if opts.DedupWindow <= 0 {
		opts.DedupWindow = DefaultDedupWindow
	}
	if opts.DedupTTL < opts.DedupWindow {
		opts.DedupTTL = max(DefaultDedupTTL, opts.DedupWindow)
	}
	if opts.MinEmbedRunes <= 0 {
		opts.MinEmbedRunes = DefaultMinEmbedRunes
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Pipeline{
		events:  events,
		chain:   chain,
		vectors: vectors,
		tagger:  NewTagger(opts.Tagging),
		opts:    opts,
		logger:  opts.Logger,
		metrics: opts.Metrics,
		now:     time.Now,
		seen:    cache.New(opts.DedupTTL, opts.DedupTTL),
	}
}

// Process dedups, tags, screens for personal data, writes and embeds one
// event. A duplicate arriving while the original is still being written
// waits for that write and reports its event id.
func (p *Pipeline) Process(ctx context.Context, d Draft) Result {
	start := time.Now()
	defer func() { p.metrics.RecordTiming(metrics.OpPipeline, time.Since(start)) }()

	if !d.Type.Valid() {
		return Result{Err: fmt.Errorf("%w: unknown event type %q", models.ErrValidation, d.Type)}
	}

	key := dedupKey(d)
	var claim *seenEntry
	for claim == nil {
		entry, dup := p.checkDuplicate(key)
		if !dup {
			claim = entry
			break
		}
		prev, err := p.awaitSaved(ctx, entry)
		if err != nil {
			return Result{EmbeddingIDs: []string{}, Err: err}
		}
		if prev == "" {
			// the claiming write failed; try to claim again
			continue
		}
		p.metrics.Inc(metrics.CounterDuplicates)
		p.logger.Debug("duplicate event suppressed", "type", d.Type, "event_id", prev)
		return Result{EventID: prev, EmbeddingIDs: []string{}, Success: true, Duplicate: true}
	}

	e, embedText := p.prepare(d)
	if err := p.screenPII(&e, embedText); err != nil {
		p.forget(key, claim)
		p.logger.Warn("event rejected for personal data", "type", d.Type, "error", err)
		return Result{EmbeddingIDs: []string{}, Err: err}
	}

	stored, err := p.events.SaveEvent(ctx, e)
	if err != nil {
		p.forget(key, claim)
		p.logger.Error("event write failed", "type", d.Type, "error", err)
		return Result{EmbeddingIDs: []string{}, Err: err}
	}
	p.remember(claim, stored.ID)
	p.metrics.Inc(metrics.CounterEventsTracked)

	ids, err := p.embed(ctx, stored, embedText)
	if err != nil {
		p.logger.Warn("embedding failed, event kept", "event_id", stored.ID, "error", err)
	}
	return Result{EventID: stored.ID, EmbeddingIDs: ids, Success: true}
}

// screenPII records personal data found in the value and embed text under
// the "pii" metadata key and rejects the event at or above PIIReject.
func (p *Pipeline) screenPII(e *models.MemoryEvent, embedText string) error {
	text := e.Value
	if embedText != e.Value {
		text += "\n" + embedText
	}
	hits, highest := DetectPII(text)
	if len(hits) == 0 {
		return nil
	}
	if p.opts.PIIReject != SeverityNone && highest >= p.opts.PIIReject {
		labels := slices.Sorted(maps.Keys(hits))
		return fmt.Errorf("%w: event contains %s risk personal data (%s)",
			models.ErrValidation, highest, strings.Join(labels, ", "))
	}
	if e.Metadata.Extra == nil {
		e.Metadata.Extra = make(map[string]any)
	}
	e.Metadata.Extra[piiKey] = mergePII(e.Metadata.Extra[piiKey], hits)
	return nil
}

// prepare builds the event to store and the text to embed. Note content is
// split from its frontmatter, whose title and tags are applied.
func (p *Pipeline) prepare(d Draft) (models.MemoryEvent, string) {
	e := models.MemoryEvent{
		Type:     d.Type,
		Value:    d.Value,
		Metadata: models.DecodeMetadata(d.Type, d.Metadata),
	}

	var noteTags []string
	if e.Type == models.EventNote {
		parsed := parser.ParseFrontmatter(EmbedText(e))
		noteTags = parsed.Tags
		if e.Metadata.Title == "" {
			e.Metadata.Title = parsed.Title
		}
	}

	caller := append(append([]string{}, e.Metadata.Tags...), noteTags...)
	e.Metadata.Tags = p.tagger.Merge(caller, p.tagger.Extract(Sources(e)...))

	return e, embedTextFor(e)
}

// embedTextFor is EmbedText with note frontmatter stripped.
func embedTextFor(e models.MemoryEvent) string {
	text := EmbedText(e)
	if e.Type == models.EventNote {
		if body := parser.ParseFrontmatter(text).Body; strings.TrimSpace(body) != "" {
			return body
		}
	}
	return text
}

func (p *Pipeline) embed(ctx context.Context, e models.MemoryEvent, text string) ([]string, error) {
	ids := []string{}
	if len([]rune(strings.TrimSpace(text))) < p.opts.MinEmbedRunes {
		return ids, nil
	}
	if p.chain == nil || p.vectors == nil {
		return ids, nil
	}

	chunks, err := p.chain.EmbedChunks(ctx, text)
	if err != nil {
		return ids, fmt.Errorf("embed chunks: %w", err)
	}

	eventMeta := e.Metadata.ToMap()
	for _, c := range chunks {
		emb := models.Embedding{
			ID:      models.EmbeddingID(e.ID, c.Index),
			EventID: e.ID,
			Vector:  c.Vector,
			Text:    c.Text,
			Metadata: models.EmbeddingMetadata{
				ChunkIndex:  c.Index,
				TotalChunks: len(chunks),
				EventType:   e.Type,
				Event:       eventMeta,
			},
			Timestamp: e.TS,
			Provider:  c.Provider,
		}
		if err := p.vectors.Save(ctx, emb); err != nil {
			p.logger.Warn("vector save failed", "embedding_id", emb.ID, "error", err)
			continue
		}
		ids = append(ids, emb.ID)
	}
	return ids, nil
}

// EmbedText picks the text of an event worth embedding: the query for
// searches, title and URL for visits, content for notes and the value
// (or the metadata as JSON) otherwise.
func EmbedText(e models.MemoryEvent) string {
	switch e.Type {
	case models.EventSearch:
		if s, ok := e.Metadata.AsSearch(); ok && s.Query != "" {
			return s.Query
		}
		return e.Value
	case models.EventVisit:
		return strings.TrimSpace(e.Metadata.Title + " " + e.Metadata.URL)
	case models.EventNote:
		if n, ok := e.Metadata.AsNote(); ok && n.Content != "" {
			return n.Content
		}
		return e.Value
	default:
		if e.Value != "" {
			return e.Value
		}
		data, err := json.Marshal(e.Metadata.ToMap())
		if err != nil {
			return ""
		}
		return string(data)
	}
}

// dedupKey hashes type, value and metadata. encoding/json sorts map keys so
// equal metadata yields equal keys.
func dedupKey(d Draft) string {
	meta, _ := json.Marshal(d.Metadata)
	sum := sha256.Sum256([]byte(string(d.Type) + "|" + d.Value + "|" + string(meta)))
	return hex.EncodeToString(sum[:])
}

// checkDuplicate reports whether key was seen within the dedup window,
// returning that entry, and otherwise claims key with a fresh entry.
// Expired entries are dropped on every call.
func (p *Pipeline) checkDuplicate(key string) (*seenEntry, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.seen.DeleteExpired()
	now := p.now()
	if v, ok := p.seen.Get(key); ok {
		entry := v.(*seenEntry)
		if now.Sub(entry.at) < p.opts.DedupWindow {
			return entry, true
		}
	}
	entry := &seenEntry{at: now, saved: make(chan struct{})}
	p.seen.SetDefault(key, entry)
	return entry, false
}

// awaitSaved blocks until the write that claimed entry finished and returns
// its event id, empty when that write failed.
func (p *Pipeline) awaitSaved(ctx context.Context, entry *seenEntry) (string, error) {
	select {
	case <-entry.saved:
	case <-ctx.Done():
		return "", fmt.Errorf("%w: wait for duplicate write: %w", models.ErrCancelled, ctx.Err())
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return entry.eventID, nil
}

func (p *Pipeline) remember(entry *seenEntry, eventID string) {
	p.mu.Lock()
	entry.eventID = eventID
	p.mu.Unlock()
	close(entry.saved)
}

// forget releases a failed claim so the next attempt is not a duplicate.
func (p *Pipeline) forget(key string, entry *seenEntry) {
	p.mu.Lock()
	if v, ok := p.seen.Get(key); ok && v.(*seenEntry) == entry {
		p.seen.Delete(key)
	}
	p.mu.Unlock()
	close(entry.saved)
}
