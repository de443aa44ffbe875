package embedding_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/raphaelgruber/omnimemory/internal/embedding"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ollamaServer answers /api/embed with one vector of dim per input.
func ollamaServer(t *testing.T, dim int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embed" {
			http.NotFound(w, r)
			return
		}
		var req struct {
			Model string `json:"model"`
			Input any    `json:"input"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		n := 1
		if list, ok := req.Input.([]any); ok {
			n = len(list)
		}
		embeddings := make([][]float32, n)
		for i := range embeddings {
			embeddings[i] = make([]float32, dim)
			embeddings[i][0] = float32(i + 1)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"model": req.Model, "embeddings": embeddings})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNewOllamaClient(t *testing.T) {
	client, err := embedding.NewOllamaClient("http://localhost:11434", "", 0)
	require.NoError(t, err)
	assert.Equal(t, embedding.DefaultOllamaModel, client.Model())
	assert.Equal(t, embedding.DefaultOllamaDimension, client.Dimension())
	assert.Equal(t, "ollama", client.Name())
}

func TestNewOllamaClientCustomModel(t *testing.T) {
	client, err := embedding.NewOllamaClient("http://localhost:11434", "nomic-embed-text", 768)
	require.NoError(t, err)
	assert.Equal(t, "nomic-embed-text", client.Model())
	assert.Equal(t, 768, client.Dimension())
}

func TestOllamaEmbed(t *testing.T) {
	srv := ollamaServer(t, 384)
	client, err := embedding.NewOllamaClient(srv.URL, "", 384)
	require.NoError(t, err)

	vec, err := client.Embed(context.Background(), "hello world")
	require.NoError(t, err)
	assert.Len(t, vec, 384)
}

func TestOllamaEmbedBatch(t *testing.T) {
	srv := ollamaServer(t, 384)
	client, err := embedding.NewOllamaClient(srv.URL, "", 384)
	require.NoError(t, err)

	vecs, err := client.EmbedBatch(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	assert.Equal(t, float32(3), vecs[2][0])

	empty, err := client.EmbedBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestOllamaDimensionMismatch(t *testing.T) {
	srv := ollamaServer(t, 768)
	client, err := embedding.NewOllamaClient(srv.URL, "", 384)
	require.NoError(t, err)

	_, err = client.Embed(context.Background(), "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dimension mismatch")
}
