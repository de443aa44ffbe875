package llm_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/raphaelgruber/omnimemory/internal/llm"
	"github.com/raphaelgruber/omnimemory/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnthropicProviderComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-Api-Key"))

		var body struct {
			Model  string `json:"model"`
			System []struct {
				Text string `json:"text"`
			} `json:"system"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "claude-test", body.Model)
		require.Len(t, body.System, 1)
		assert.Equal(t, llm.SystemPrompt(models.TaskSummary), body.System[0].Text)

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"id": "msg_1",
			"type": "message",
			"role": "assistant",
			"model": "claude-test",
			"content": [{"type": "text", "text": "short "}, {"type": "text", "text": "summary"}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 21, "output_tokens": 4}
		}`)
	}))
	defer srv.Close()

	p, err := llm.NewAnthropicProvider("test-key", "claude-test", option.WithBaseURL(srv.URL), option.WithMaxRetries(0))
	require.NoError(t, err)

	resp, err := p.Complete(context.Background(), llm.Request{Kind: models.TaskSummary, Prompt: "summarize"})
	require.NoError(t, err)
	assert.Equal(t, "short summary", resp.Text)
	assert.Equal(t, "claude-test", resp.Model)
	require.NotNil(t, resp.Usage)
	assert.Equal(t, int64(21), resp.Usage.InputTokens)
	assert.Equal(t, int64(4), resp.Usage.OutputTokens)
}

func TestAnthropicProviderAuthErrorIsFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`)
	}))
	defer srv.Close()

	p, err := llm.NewAnthropicProvider("bad-key", "claude-test", option.WithBaseURL(srv.URL), option.WithMaxRetries(0))
	require.NoError(t, err)

	_, err = p.Complete(context.Background(), llm.Request{Prompt: "hi"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, llm.ErrFatalAPI))
}

func TestNewAnthropicProviderValidation(t *testing.T) {
	_, err := llm.NewAnthropicProvider("", "claude-test")
	assert.Error(t, err)
	_, err = llm.NewAnthropicProvider("key", "")
	assert.Error(t, err)
}
