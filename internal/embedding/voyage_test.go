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

func TestNewVoyageClientRequiresKey(t *testing.T) {
	_, err := embedding.NewVoyageClient("", "", 0)
	require.Error(t, err)
}

func TestVoyageEmbedBatch(t *testing.T) {
	var gotAuth string
	var gotReq struct {
		Input     []string `json:"input"`
		Model     string   `json:"model"`
		InputType string   `json:"input_type"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		// answer out of order to exercise index sorting
		type item struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		}
		data := make([]item, 0, len(gotReq.Input))
		for i := len(gotReq.Input) - 1; i >= 0; i-- {
			data = append(data, item{Embedding: []float32{float32(i), 0, 0, 0}, Index: i})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"data": data})
	}))
	defer srv.Close()

	client, err := embedding.NewVoyageClient("secret", "", 4)
	require.NoError(t, err)
	client.WithEndpoint(srv.URL)

	vecs, err := client.EmbedBatch(context.Background(), []string{"first", "second"})
	require.NoError(t, err)

	assert.Equal(t, "Bearer secret", gotAuth)
	assert.Equal(t, embedding.DefaultVoyageModel, gotReq.Model)
	assert.Equal(t, "document", gotReq.InputType)
	require.Len(t, vecs, 2)
	assert.Equal(t, float32(0), vecs[0][0])
	assert.Equal(t, float32(1), vecs[1][0])
}

func TestVoyageErrors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "non-2xx status",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "rate limited", http.StatusTooManyRequests)
			},
		},
		{
			name: "malformed body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte("{not json"))
			},
		},
		{
			name: "wrong dimension",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"data":[{"embedding":[1,2],"index":0}]}`))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			client, err := embedding.NewVoyageClient("secret", "", 4)
			require.NoError(t, err)
			client.WithEndpoint(srv.URL)

			_, err = client.Embed(context.Background(), "text")
			assert.Error(t, err)
		})
	}
}
