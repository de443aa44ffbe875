package embedding

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
)

const (
	// DefaultOpenAIModel is the default OpenAI embedding model.
	DefaultOpenAIModel = "text-embedding-3-small"

	// DefaultOpenAIDimension is the dimension for text-embedding-3-small.
	DefaultOpenAIDimension = 1536
)

// OpenAIClient implements Embedder using langchaingo's OpenAI embeddings.
type OpenAIClient struct {
	model     embeddings.Embedder
	modelName string
	dimension int
}

// Compile-time check that OpenAIClient implements Embedder.
var _ Embedder = (*OpenAIClient)(nil)

// NewOpenAIClient creates an OpenAI embedding client.
// Extra options (e.g. openai.WithBaseURL) are passed to langchaingo.
func NewOpenAIClient(apiKey, model string, expectedDimension int, opts ...openai.Option) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("OpenAI API key required")
	}
	if model == "" {
		model = DefaultOpenAIModel
	}
	if expectedDimension == 0 {
		expectedDimension = DefaultOpenAIDimension
	}

	llm, err := openai.New(append([]openai.Option{
		openai.WithToken(apiKey),
		openai.WithEmbeddingModel(model),
	}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("create openai client: %w", err)
	}
	embedder, err := embeddings.NewEmbedder(llm)
	if err != nil {
		return nil, fmt.Errorf("create openai embedder: %w", err)
	}

	return &OpenAIClient{model: embedder, modelName: model, dimension: expectedDimension}, nil
}

func (c *OpenAIClient) Name() string { return string(ProviderOpenAI) }

// Model returns the embedding model name.
func (c *OpenAIClient) Model() string {
	return c.modelName
}

// Dimension returns the expected embedding dimension.
func (c *OpenAIClient) Dimension() int {
	return c.dimension
}

// Embed generates an embedding vector for text.
func (c *OpenAIClient) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch generates embeddings for multiple texts.
func (c *OpenAIClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	vectors, err := c.model.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed batch: %w", err)
	}

	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("count mismatch: got %d, want %d", len(vectors), len(texts))
	}

	for i, v := range vectors {
		if len(v) != c.dimension {
			return nil, fmt.Errorf("embedding %d dimension mismatch: got %d, want %d", i, len(v), c.dimension)
		}
	}

	return vectors, nil
}
