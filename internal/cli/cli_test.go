package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/omnimemory/internal/app"
	"github.com/raphaelgruber/omnimemory/internal/config"
	"github.com/raphaelgruber/omnimemory/internal/embedding"
	"github.com/raphaelgruber/omnimemory/internal/engine"
	"github.com/raphaelgruber/omnimemory/internal/llm"
	"github.com/raphaelgruber/omnimemory/internal/models"
	"github.com/raphaelgruber/omnimemory/internal/service"
	"github.com/raphaelgruber/omnimemory/internal/store"
)

type fixedCompleter struct{}

func (fixedCompleter) Name() string { return "fixed" }

func (fixedCompleter) Complete(context.Context, llm.Request) (llm.Response, error) {
	return llm.Response{Text: "You read about raft.", Model: "fixed-1"}, nil
}

func (c fixedCompleter) Stream(ctx context.Context, req llm.Request, onToken llm.TokenFunc) (llm.Response, error) {
	onToken("You read ")
	onToken("about raft.")
	return c.Complete(ctx, req)
}

// useMemoryApp points every command at one shared in-memory backend so state
// survives across invocations within a test.
func useMemoryApp(t *testing.T) {
	t.Helper()
	t.Setenv("OMNI_LOG_FILE", filepath.Join(t.TempDir(), "omni.log"))
	t.Setenv("OMNI_BACKEND_URL", "")
	t.Setenv("OMNI_TAGGING_CONFIG", "")

	backend := store.NewMemoryBackend(0, 0)
	prev := buildApp
	buildApp = func(ctx context.Context, cfg config.Config, logger *slog.Logger, _ bool) (*app.App, error) {
		return app.New(ctx, cfg, logger,
			app.WithBackends(backend),
			app.WithEmbeddings(embedding.NewChain(nil, embedding.ChainConfig{Dimension: 256, Logger: logger})),
			app.WithCompleter(fixedCompleter{}),
		)
	}
	t.Cleanup(func() { buildApp = prev })
}

// resetFlags restores flag globals, which persist between Execute calls.
func resetFlags() {
	verbose, jsonOut = false, false
	trackTitle, trackURL, trackContent, trackFile = "", "", "", ""
	trackTags, trackMeta = nil, nil
	searchLimit, findLimit, searchMinSimilarity = service.DefaultSearchLimit, service.DefaultSearchLimit, 0
	eventsType, eventsSince, eventsUntil, eventsTags = "", "", "", nil
	eventsPinned, eventsLimit = false, 50
	unpin, deleteForce = false, false
	askLimit, askNoStream, askProvider, askModel, askTab = app.DefaultAskContext, false, "", "", "cli"
	reindexQuiet, compactDay = false, ""
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetIn(strings.NewReader(""))
	rootCmd.SetArgs(args)
	err := Execute(context.Background())
	return out.String(), err
}

func trackID(t *testing.T, args ...string) string {
	t.Helper()
	out, err := run(t, append([]string{"track", "--json"}, args...)...)
	require.NoError(t, err)
	var res struct {
		EventID string `json:"event_id"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	require.NotEmpty(t, res.EventID)
	return res.EventID
}

func TestCommands_TrackAndList(t *testing.T) {
	useMemoryApp(t)

	out, err := run(t, "track", "search", "raft consensus explained")
	require.NoError(t, err)
	assert.Contains(t, out, "Tracked")

	trackID(t, "bookmark", "https://pkg.go.dev", "--tag", "docs")

	out, err = run(t, "events")
	require.NoError(t, err)
	assert.Contains(t, out, "Events (2):")
	assert.Contains(t, out, "raft consensus explained")

	out, err = run(t, "events", "--type", "bookmark")
	require.NoError(t, err)
	assert.Contains(t, out, "Events (1):")
	assert.Contains(t, out, "https://pkg.go.dev")

	out, err = run(t, "tags")
	require.NoError(t, err)
	assert.Contains(t, out, "docs")

	_, err = run(t, "track", "teleport", "somewhere")
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestCommands_Search(t *testing.T) {
	useMemoryApp(t)

	trackID(t, "note", "--title", "Raft", "--content", "raft consensus leader election and log replication")
	trackID(t, "note", "--title", "Bread", "--content", "sourdough starter with rye flour")

	out, err := run(t, "find", "raft")
	require.NoError(t, err)
	assert.Contains(t, out, "Found 1 results:")
	assert.Contains(t, out, "Raft")

	out, err = run(t, "search", "raft leader election", "-n", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "Found 1 results:")
	assert.Contains(t, out, "Raft")
}

func TestCommands_PinAndDelete(t *testing.T) {
	useMemoryApp(t)
	id := trackID(t, "visit", "https://raft.github.io", "--title", "Raft")

	out, err := run(t, "pin", id)
	require.NoError(t, err)
	assert.Contains(t, out, "Pinned")

	out, err = run(t, "events", "--pinned")
	require.NoError(t, err)
	assert.Contains(t, out, id)

	out, err = run(t, "delete", id, "--force")
	require.NoError(t, err)
	assert.Contains(t, out, id)

	out, err = run(t, "events")
	require.NoError(t, err)
	assert.Contains(t, out, "No events found.")
}

func TestCommands_Ask(t *testing.T) {
	useMemoryApp(t)
	trackID(t, "note", "--title", "Raft", "--content", "raft consensus leader election and log replication")

	out, err := run(t, "ask", "what did I read about raft?")
	require.NoError(t, err)
	assert.Contains(t, out, "You read about raft.")
	assert.Contains(t, out, "fixed")
	assert.Contains(t, out, "Sources:")

	out, err = run(t, "ask", "what did I read about raft?", "--no-stream")
	require.NoError(t, err)
	assert.Contains(t, out, "You read about raft.")

	_, err = run(t, "ask", "   ")
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestCommands_MaintenanceAndStats(t *testing.T) {
	useMemoryApp(t)
	trackID(t, "search", "raft consensus explained")

	out, err := run(t, "reindex", "--quiet")
	require.NoError(t, err)
	assert.Contains(t, out, "Events:     1")

	out, err = run(t, "maintain", "decay")
	require.NoError(t, err)
	assert.Contains(t, out, "deleted: 0")

	_, err = run(t, "maintain", "vacuum")
	assert.ErrorIs(t, err, models.ErrValidation)

	_, err = run(t, "maintain", "compact", "--day", "yesterday")
	assert.Error(t, err)

	out, err = run(t, "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "Storage:    memory")
	assert.Contains(t, out, "Events:     1")
	assert.Contains(t, out, "Embedding: hash")
}

func TestBuildDraft(t *testing.T) {
	tests := []struct {
		name    string
		typ     models.EventType
		args    []string
		setup   func()
		value   string
		meta    map[string]any
		wantErr bool
	}{
		{
			name:  "visit copies value to url",
			typ:   models.EventVisit,
			args:  []string{"https://go.dev"},
			value: "https://go.dev",
			meta:  map[string]any{"url": "https://go.dev"},
		},
		{
			name:  "note falls back to title",
			typ:   models.EventNote,
			setup: func() { trackTitle = "Standup"; trackContent = "discussed the release" },
			value: "Standup",
			meta:  map[string]any{"title": "Standup", "content": "discussed the release"},
		},
		{
			name:  "note falls back to content",
			typ:   models.EventNote,
			setup: func() { trackContent = "  only a body  " },
			value: "only a body",
			meta:  map[string]any{"content": "  only a body  "},
		},
		{
			name:  "typed metadata",
			typ:   models.EventAction,
			args:  []string{"click"},
			setup: func() { trackMeta = []string{"target=#submit", "count=2"} },
			value: "click",
			meta:  map[string]any{"target": "#submit", "count": int64(2)},
		},
		{
			name:    "search needs a value",
			typ:     models.EventSearch,
			wantErr: true,
		},
		{
			name:    "malformed metadata",
			typ:     models.EventAction,
			args:    []string{"click"},
			setup:   func() { trackMeta = []string{"nokey"} },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetFlags()
			if tt.setup != nil {
				tt.setup()
			}
			d, err := buildDraft(tt.typ, tt.args)
			if tt.wantErr {
				assert.ErrorIs(t, err, models.ErrValidation)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.typ, d.Type)
			assert.Equal(t, tt.value, d.Value)
			assert.Equal(t, tt.meta, d.Metadata)
		})
	}
}

func TestTypedValue(t *testing.T) {
	assert.Equal(t, int64(42), typedValue("42"))
	assert.Equal(t, 0.5, typedValue("0.5"))
	assert.Equal(t, true, typedValue("true"))
	assert.Equal(t, "vienna", typedValue("vienna"))
}

func TestEventFilter(t *testing.T) {
	resetFlags()
	now := time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)
	eventsType = "visit"
	eventsSince = "24h"
	eventsPinned = true

	f, err := eventFilter(now)
	require.NoError(t, err)
	assert.Equal(t, models.EventVisit, f.Type)
	assert.Equal(t, now.Add(-24*time.Hour).UnixMilli(), f.Since)
	assert.Zero(t, f.Until)
	require.NotNil(t, f.Pinned)
	assert.True(t, *f.Pinned)

	eventsUntil = "last tuesday"
	_, err = eventFilter(now)
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestRenderStream(t *testing.T) {
	t.Run("tokens then footer", func(t *testing.T) {
		ch := make(chan engine.StreamEvent, 3)
		ch <- engine.StreamEvent{Kind: engine.StreamToken, Token: "Hello "}
		ch <- engine.StreamEvent{Kind: engine.StreamToken, Token: "world"}
		ch <- engine.StreamEvent{Kind: engine.StreamDone, Result: &models.TaskResult{
			Text: "Hello world", Provider: "ollama", Model: "llama3.2", Citations: []string{"01A"},
		}}
		close(ch)

		var out bytes.Buffer
		require.NoError(t, renderStream(&out, ch))
		assert.True(t, strings.HasPrefix(out.String(), "Hello world\n"))
		assert.Contains(t, out.String(), "ollama")
		assert.Contains(t, out.String(), "01A")
	})

	t.Run("cancellation is not an error", func(t *testing.T) {
		ch := make(chan engine.StreamEvent, 1)
		ch <- engine.StreamEvent{Kind: engine.StreamError, Err: models.ErrCancelled}
		close(ch)

		var out bytes.Buffer
		require.NoError(t, renderStream(&out, ch))
		assert.Contains(t, out.String(), "Cancelled.")
	})

	t.Run("failure", func(t *testing.T) {
		ch := make(chan engine.StreamEvent, 1)
		ch <- engine.StreamEvent{Kind: engine.StreamError, Err: errors.New("boom")}
		close(ch)

		err := renderStream(&bytes.Buffer{}, ch)
		assert.ErrorContains(t, err, "boom")
	})
}
