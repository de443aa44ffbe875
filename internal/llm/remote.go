package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/raphaelgruber/omnimemory/internal/models"
)

// SSE framing of the remote backend.
const (
	sseDataPrefix = "data:"
	sseDone       = "[DONE]"
)

// RemoteBackend talks to the HTTP task backend: POST /v1/llm for whole
// completions and POST /v1/llm/stream for server-sent events.
type RemoteBackend struct {
	baseURL string
	client  *http.Client
}

var _ Provider = (*RemoteBackend)(nil)

// NewRemoteBackend creates a backend client. Timeouts are applied per call
// through the context, so client should not set its own.
func NewRemoteBackend(baseURL string, client *http.Client) *RemoteBackend {
	if client == nil {
		client = &http.Client{}
	}
	return &RemoteBackend{baseURL: strings.TrimSuffix(baseURL, "/"), client: client}
}

func (b *RemoteBackend) Name() string { return "backend" }

type remoteRequest struct {
	Kind        string  `json:"kind,omitempty"`
	System      string  `json:"system,omitempty"`
	Prompt      string  `json:"prompt"`
	Model       string  `json:"model,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
}

type remoteResponse struct {
	Text       string `json:"text"`
	Model      string `json:"model"`
	Provider   string `json:"provider"`
	TokensUsed int64  `json:"tokens_used"`
	Error      string `json:"error"`
}

func (b *RemoteBackend) post(ctx context.Context, path string, req Request, stream bool) (*http.Response, error) {
	body, err := json.Marshal(remoteRequest{
		Kind:        string(req.Kind),
		System:      req.System,
		Prompt:      req.Prompt,
		Model:       req.Options.Model,
		Temperature: req.Options.Temperature,
		MaxTokens:   req.Options.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}

	resp, err := b.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: backend request: %w", models.ErrProvider, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, wrapFatalError(fmt.Errorf("%w: backend returned status %d: %s",
			models.ErrProvider, resp.StatusCode, strings.TrimSpace(string(snippet))))
	}
	return resp, nil
}

// Complete posts the request and decodes a single JSON response.
func (b *RemoteBackend) Complete(ctx context.Context, req Request) (Response, error) {
	resp, err := b.post(ctx, "/v1/llm", req, false)
	if err != nil {
		return Response{}, err
	}
	defer resp.Body.Close()

	var out remoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Response{}, fmt.Errorf("%w: decode backend response: %w", models.ErrProvider, err)
	}
	if out.Error != "" {
		return Response{}, wrapFatalError(fmt.Errorf("%w: backend: %s", models.ErrProvider, out.Error))
	}

	r := Response{Text: out.Text, Model: out.Model, Provider: out.Provider}
	if out.TokensUsed > 0 {
		r.Usage = &models.Usage{OutputTokens: out.TokensUsed}
	}
	return r, nil
}

// Stream posts the request and forwards every "data:" payload until
// [DONE]. A stream that ends without [DONE] is an error.
func (b *RemoteBackend) Stream(ctx context.Context, req Request, onToken TokenFunc) (Response, error) {
	resp, err := b.post(ctx, "/v1/llm/stream", req, true)
	if err != nil {
		return Response{}, err
	}
	defer resp.Body.Close()

	var text strings.Builder
	out := Response{Model: req.Options.Model}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, sseDataPrefix) {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, sseDataPrefix))
		if payload == "" {
			continue
		}
		if payload == sseDone {
			out.Text = text.String()
			return out, nil
		}

		var chunk remoteResponse
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			return Response{}, fmt.Errorf("%w: decode stream chunk: %w", models.ErrProvider, err)
		}
		if chunk.Error != "" {
			return Response{}, wrapFatalError(fmt.Errorf("%w: backend: %s", models.ErrProvider, chunk.Error))
		}
		if chunk.Model != "" {
			out.Model = chunk.Model
		}
		if chunk.Provider != "" {
			out.Provider = chunk.Provider
		}
		if chunk.Text != "" {
			text.WriteString(chunk.Text)
			onToken(chunk.Text)
		}
	}
	if err := scanner.Err(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Response{}, ctxErr
		}
		return Response{}, fmt.Errorf("%w: read stream: %w", models.ErrProvider, err)
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return Response{}, ctxErr
	}
	return Response{}, fmt.Errorf("%w: stream ended without %s", models.ErrProvider, sseDone)
}
