package embedding

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/ollama/ollama/api"
)

// Defaults for the local Ollama provider.
const (
	DefaultOllamaModel     = "all-minilm:l6-v2"
	DefaultOllamaDimension = 384
)

// OllamaClient embeds through a local Ollama server.
type OllamaClient struct {
	client    *api.Client
	model     string
	dimension int
}

var _ Embedder = (*OllamaClient)(nil)

// NewOllamaClient returns a client for host, or for OLLAMA_HOST when host is
// empty. Zero values select DefaultOllamaModel and DefaultOllamaDimension.
func NewOllamaClient(host, model string, dimension int) (*OllamaClient, error) {
	if model == "" {
		model = DefaultOllamaModel
	}
	if dimension == 0 {
		dimension = DefaultOllamaDimension
	}

	client, err := ollamaAPI(host)
	if err != nil {
		return nil, err
	}
	return &OllamaClient{client: client, model: model, dimension: dimension}, nil
}

func ollamaAPI(host string) (*api.Client, error) {
	if host == "" {
		client, err := api.ClientFromEnvironment()
		if err != nil {
			return nil, fmt.Errorf("create ollama client: %w", err)
		}
		return client, nil
	}
	base, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("parse ollama host %q: %w", host, err)
	}
	return api.NewClient(base, http.DefaultClient), nil
}

func (c *OllamaClient) Name() string { return string(ProviderOllama) }
func (c *OllamaClient) Model() string { return c.model }
func (c *OllamaClient) Dimension() int { return c.dimension }

// Embed embeds one text.
func (c *OllamaClient) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in one request. Every vector must have the
// configured dimension.
func (c *OllamaClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	resp, err := c.client.Embed(ctx, &api.EmbedRequest{Model: c.model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("ollama embed: %w", err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("ollama returned %d embeddings for %d texts", len(resp.Embeddings), len(texts))
	}
	for i, vec := range resp.Embeddings {
		if len(vec) != c.dimension {
			return nil, fmt.Errorf("embedding %d dimension mismatch: got %d, want %d (model: %s)",
				i, len(vec), c.dimension, c.model)
		}
	}
	return resp.Embeddings, nil
}
