package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/raphaelgruber/omnimemory/internal/config"
	"github.com/raphaelgruber/omnimemory/internal/fallback"
	"github.com/raphaelgruber/omnimemory/internal/metrics"
)

// DefaultAvailabilityTTL is how long a provider stays benched after a fatal error.
const DefaultAvailabilityTTL = 60 * time.Second

// errStreamInterrupted stops the fallback after a provider already emitted
// tokens, so callers never see two partial answers.
var errStreamInterrupted = errors.New("stream interrupted after tokens were emitted")

// ChainConfig configures a Chain.
type ChainConfig struct {
	AvailabilityTTL time.Duration
	Logger          *slog.Logger
	Metrics         *metrics.Collector
}

// Chain tries completion providers in a fixed order. Providers failing with
// ErrFatalAPI are skipped until the availability TTL expires.
type Chain struct {
	providers    []Provider
	availability *cache.Cache
	logger       *slog.Logger
	metrics      *metrics.Collector
}

// NewChain builds a chain over providers in preference order.
func NewChain(providers []Provider, cfg ChainConfig) *Chain {
	if cfg.AvailabilityTTL <= 0 {
		cfg.AvailabilityTTL = DefaultAvailabilityTTL
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Chain{
		providers:    providers,
		availability: cache.New(cfg.AvailabilityTTL, 2*cfg.AvailabilityTTL),
		logger:       cfg.Logger,
		metrics:      cfg.Metrics,
	}
}

// NewChainFromConfig builds the local provider chain from cfg.LLMProviders.
// Providers missing credentials or a region are left out.
func NewChainFromConfig(ctx context.Context, cfg config.Config, logger *slog.Logger, mc *metrics.Collector) *Chain {
	if logger == nil {
		logger = slog.Default()
	}

	var providers []Provider
	for _, name := range cfg.LLMProviders {
		var (
			p   Provider
			err error
		)
		switch name {
		case "ollama":
			p, err = NewOllamaProvider(cfg.OllamaHost, cfg.LLMModel)
		case "openai":
			p, err = NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.OpenAIModel)
		case "anthropic":
			p, err = NewAnthropicProvider(cfg.AnthropicAPIKey, cfg.AnthropicModel)
		case "bedrock":
			if cfg.BedrockRegion == "" {
				err = fmt.Errorf("no AWS region configured")
				break
			}
			p, err = NewBedrockProvider(ctx, cfg.BedrockRegion, cfg.BedrockModel)
		default:
			logger.Warn("unknown llm provider ignored", "provider", name)
			continue
		}
		if err != nil {
			logger.Debug("llm provider disabled", "provider", name, "error", err)
			continue
		}
		providers = append(providers, p)
	}

	return NewChain(providers, ChainConfig{
		AvailabilityTTL: cfg.ProviderCheckTTL,
		Logger:          logger,
		Metrics:         mc,
	})
}

// Providers returns the provider names in chain order.
func (c *Chain) Providers() []string {
	names := make([]string, 0, len(c.providers))
	for _, p := range c.providers {
		names = append(names, p.Name())
	}
	return names
}

// Available reports whether a provider is currently eligible.
func (c *Chain) Available(name string) bool {
	_, benched := c.availability.Get(name)
	return !benched
}

// candidates returns the eligible providers. A provider named in the request
// options is moved to the front.
func (c *Chain) candidates(preferred string) []Provider {
	out := make([]Provider, 0, len(c.providers))
	var rest []Provider
	for _, p := range c.providers {
		if !c.Available(p.Name()) {
			continue
		}
		if preferred != "" && p.Name() == preferred {
			out = append(out, p)
			continue
		}
		rest = append(rest, p)
	}
	return append(out, rest...)
}

// Complete returns the first successful completion.
func (c *Chain) Complete(ctx context.Context, req Request) (Response, error) {
	start := time.Now()
	cands := c.candidates(req.Options.Provider)
	resp, idx, err := fallback.First(ctx, cands, func(ctx context.Context, p Provider) (Response, error) {
		r, err := p.Complete(ctx, req)
		if err != nil {
			c.noteFailure(ctx, p.Name(), err)
		}
		return r, err
	})
	if err != nil {
		return Response{}, err
	}
	return c.finish(metrics.OpLLMComplete, start, cands, idx, resp), nil
}

// Stream streams from the first provider that answers. Once a provider has
// emitted a token its failure ends the call instead of falling back.
func (c *Chain) Stream(ctx context.Context, req Request, onToken TokenFunc) (Response, error) {
	start := time.Now()
	cands := c.candidates(req.Options.Provider)

	emitted := false
	var streamErr error
	resp, idx, err := fallback.First(ctx, cands, func(ctx context.Context, p Provider) (Response, error) {
		if emitted {
			return Response{}, errStreamInterrupted
		}
		r, err := p.Stream(ctx, req, func(tok string) {
			emitted = true
			onToken(tok)
		})
		if err != nil {
			c.noteFailure(ctx, p.Name(), err)
			if emitted {
				streamErr = err
			}
		}
		return r, err
	})
	if err != nil {
		if streamErr != nil && ctx.Err() == nil {
			return Response{}, streamErr
		}
		return Response{}, err
	}
	return c.finish(metrics.OpLLMStream, start, cands, idx, resp), nil
}

func (c *Chain) finish(op string, start time.Time, cands []Provider, idx int, resp Response) Response {
	resp.Provider = cands[idx].Name()
	var in, out int64
	if resp.Usage != nil {
		in, out = resp.Usage.InputTokens, resp.Usage.OutputTokens
	}
	c.metrics.RecordLLMUsage(op, time.Since(start), in, out)
	if idx > 0 {
		c.metrics.Inc(metrics.CounterLLMFallback)
	}
	return resp
}

func (c *Chain) noteFailure(ctx context.Context, name string, err error) {
	if ctx.Err() != nil {
		return
	}
	if !errors.Is(err, ErrFatalAPI) {
		c.logger.Debug("llm provider failed", "provider", name, "error", err)
		return
	}
	if c.Available(name) {
		c.logger.Warn("llm provider unavailable", "provider", name, "error", err)
	}
	c.availability.SetDefault(name, struct{}{})
}

// Unload releases every provider that holds resources.
func (c *Chain) Unload(ctx context.Context) error {
	var errs []error
	for _, p := range c.providers {
		u, ok := p.(Unloader)
		if !ok {
			continue
		}
		if err := u.Unload(ctx); err != nil {
			errs = append(errs, fmt.Errorf("unload %s: %w", p.Name(), err))
		}
	}
	return errors.Join(errs...)
}
