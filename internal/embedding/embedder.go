// Package embedding provides text embedding generation with ordered provider
// fallback down to a deterministic local hash embedding.
package embedding

import (
	"context"
	"fmt"
)

// Embedder defines the interface for text embedding providers.
// Implementations include Ollama (local), Voyage AI and OpenAI (API) and the
// hash fallback.
type Embedder interface {
	// Name identifies the provider in logs and on stored embeddings.
	Name() string

	// Embed generates an embedding vector for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts.
	// More efficient than multiple Embed calls for bulk operations.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Model returns the name of the embedding model being used.
	Model() string

	// Dimension returns the embedding vector dimension.
	// Every provider in a chain must produce the same dimension.
	Dimension() int
}

// ProviderType identifies the embedding provider.
type ProviderType string

const (
	// ProviderOllama uses local Ollama server for embeddings.
	ProviderOllama ProviderType = "ollama"

	// ProviderVoyage uses the Voyage AI embeddings API.
	ProviderVoyage ProviderType = "voyage"

	// ProviderOpenAI uses the OpenAI embeddings API through langchaingo.
	ProviderOpenAI ProviderType = "openai"

	// ProviderHash uses the local feature-hashing fallback.
	ProviderHash ProviderType = "hash"
)

// Config holds configuration for creating an Embedder.
type Config struct {
	// Provider specifies which embedding backend to use.
	Provider ProviderType

	// Model is the embedding model name (provider-specific).
	// Ollama: "all-minilm:l6-v2" (384-dim), "nomic-embed-text" (768-dim)
	Model string

	// ExpectedDimension is the required output dimension.
	// Set to 0 to use provider's default.
	ExpectedDimension int

	// APIKey for Voyage or OpenAI
	APIKey string

	// Ollama-specific (uses OLLAMA_HOST env var if empty)
	OllamaHost string
}

// New creates an Embedder based on the provided configuration.
func New(cfg Config) (Embedder, error) {
	switch cfg.Provider {
	case ProviderOllama, "":
		return NewOllamaClient(cfg.OllamaHost, cfg.Model, cfg.ExpectedDimension)

	case ProviderVoyage:
		return NewVoyageClient(cfg.APIKey, cfg.Model, cfg.ExpectedDimension)

	case ProviderOpenAI:
		return NewOpenAIClient(cfg.APIKey, cfg.Model, cfg.ExpectedDimension)

	case ProviderHash:
		return NewHashEmbedder(cfg.ExpectedDimension), nil

	default:
		return nil, fmt.Errorf("unknown embedding provider: %s", cfg.Provider)
	}
}
