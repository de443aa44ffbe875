package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/raphaelgruber/omnimemory/internal/config"
	"github.com/raphaelgruber/omnimemory/internal/fallback"
	"github.com/raphaelgruber/omnimemory/internal/metrics"
	"github.com/raphaelgruber/omnimemory/internal/parser"
)

// DefaultCheckTTL is how long a provider's availability verdict is trusted.
const DefaultCheckTTL = 60 * time.Second

// Chunk is one embedded window of a longer text.
type Chunk struct {
	Index    int
	Text     string
	Vector   []float32
	Provider string
}

// ChainConfig configures a Chain.
type ChainConfig struct {
	Dimension int
	CheckTTL  time.Duration
	Chunking  parser.ChunkConfig
	Logger    *slog.Logger
	Metrics   *metrics.Collector
}

// Chain tries embedding providers in order and ends with a HashEmbedder,
// so Generate only fails when the context is done.
type Chain struct {
	providers    []Embedder
	terminal     *HashEmbedder
	dimension    int
	chunking     parser.ChunkConfig
	availability *cache.Cache
	logger       *slog.Logger
	metrics      *metrics.Collector
}

// NewChain builds a chain over providers in preference order.
func NewChain(providers []Embedder, cfg ChainConfig) *Chain {
	if cfg.Dimension <= 0 {
		cfg.Dimension = DefaultHashDimension
	}
	if cfg.CheckTTL <= 0 {
		cfg.CheckTTL = DefaultCheckTTL
	}
	if cfg.Chunking.Size <= 0 {
		cfg.Chunking = parser.DefaultChunkConfig()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Chain{
		providers:    providers,
		terminal:     NewHashEmbedder(cfg.Dimension),
		dimension:    cfg.Dimension,
		chunking:     cfg.Chunking,
		availability: cache.New(cfg.CheckTTL, 2*cfg.CheckTTL),
		logger:       cfg.Logger,
		metrics:      cfg.Metrics,
	}
}

// NewChainFromConfig builds providers from cfg.EmbedProviders. Providers that
// cannot be constructed (e.g. a missing API key) are left out.
func NewChainFromConfig(cfg config.Config, logger *slog.Logger, mc *metrics.Collector) *Chain {
	if logger == nil {
		logger = slog.Default()
	}

	var providers []Embedder
	for _, name := range cfg.EmbedProviders {
		pc := Config{
			Provider:          ProviderType(name),
			ExpectedDimension: cfg.EmbedDimension,
			OllamaHost:        cfg.OllamaHost,
		}
		switch pc.Provider {
		case ProviderOllama:
			pc.Model = cfg.EmbeddingModel
		case ProviderVoyage:
			pc.Model, pc.APIKey = cfg.VoyageModel, cfg.VoyageAPIKey
		case ProviderOpenAI:
			pc.Model, pc.APIKey = cfg.OpenAIEmbedModel, cfg.OpenAIAPIKey
		case ProviderHash:
			continue
		default:
			logger.Warn("unknown embedding provider ignored", "provider", name)
			continue
		}
		e, err := New(pc)
		if err != nil {
			logger.Debug("embedding provider disabled", "provider", name, "error", err)
			continue
		}
		providers = append(providers, e)
	}

	return NewChain(providers, ChainConfig{
		Dimension: cfg.EmbedDimension,
		CheckTTL:  cfg.ProviderCheckTTL,
		Chunking:  parser.ChunkConfig{Size: cfg.ChunkSize, Overlap: cfg.ChunkOverlap},
		Logger:    logger,
		Metrics:   mc,
	})
}

// Dimension returns the vector length every provider must produce.
func (c *Chain) Dimension() int { return c.dimension }

// Providers returns the provider names in probe order, hash last.
func (c *Chain) Providers() []string {
	names := make([]string, 0, len(c.providers)+1)
	for _, p := range c.providers {
		names = append(names, p.Name())
	}
	return append(names, c.terminal.Name())
}

// Available reports the cached availability of a provider. Providers that
// were never probed count as available.
func (c *Chain) Available(name string) bool {
	v, ok := c.availability.Get(name)
	return !ok || v.(bool)
}

// candidates returns the providers not known to be down, followed by the
// hash embedder.
func (c *Chain) candidates() []Embedder {
	out := make([]Embedder, 0, len(c.providers)+1)
	for _, p := range c.providers {
		if c.Available(p.Name()) {
			out = append(out, p)
		}
	}
	return append(out, c.terminal)
}

// Generate embeds text with the first provider that answers with a vector of
// the configured dimension. Any failure marks that provider unavailable for
// the check TTL. The returned error is non-nil only when ctx is done.
func (c *Chain) Generate(ctx context.Context, text string) ([]float32, string, error) {
	start := time.Now()
	defer func() { c.metrics.RecordTiming(metrics.OpEmbedding, time.Since(start)) }()

	cands := c.candidates()
	vec, idx, err := fallback.First(ctx, cands, func(ctx context.Context, e Embedder) ([]float32, error) {
		v, err := e.Embed(ctx, text)
		if err == nil && len(v) != c.dimension {
			err = fmt.Errorf("dimension mismatch: got %d, want %d", len(v), c.dimension)
		}
		if err != nil {
			if ctx.Err() == nil {
				c.markUnavailable(e.Name(), err)
			}
			return nil, err
		}
		c.availability.SetDefault(e.Name(), true)
		return v, nil
	})
	if err != nil {
		return nil, "", err
	}

	provider := cands[idx].Name()
	if provider == c.terminal.Name() && len(c.providers) > 0 {
		c.metrics.Inc(metrics.CounterEmbeddingFallback)
	}
	return vec, provider, nil
}

func (c *Chain) markUnavailable(name string, err error) {
	if name == c.terminal.Name() {
		return
	}
	if _, known := c.availability.Get(name); !known || c.Available(name) {
		c.logger.Warn("embedding provider unavailable", "provider", name, "error", err)
	}
	c.availability.SetDefault(name, false)
}

// EmbedChunks splits text with the configured chunking and embeds every chunk.
func (c *Chain) EmbedChunks(ctx context.Context, text string) ([]Chunk, error) {
	texts := parser.ChunkText(text, c.chunking)
	chunks := make([]Chunk, 0, len(texts))
	for i, t := range texts {
		vec, provider, err := c.Generate(ctx, t)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, Chunk{Index: i, Text: t, Vector: vec, Provider: provider})
	}
	return chunks, nil
}
