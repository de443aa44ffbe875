package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/omnimemory/internal/config"
	"github.com/raphaelgruber/omnimemory/internal/embedding"
	"github.com/raphaelgruber/omnimemory/internal/engine"
	"github.com/raphaelgruber/omnimemory/internal/llm"
	"github.com/raphaelgruber/omnimemory/internal/models"
	"github.com/raphaelgruber/omnimemory/internal/service"
	"github.com/raphaelgruber/omnimemory/internal/store"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

// echoCompleter answers with a fixed text and records the prompts it saw.
type echoCompleter struct {
	mu      sync.Mutex
	prompts []string
}

func (c *echoCompleter) Name() string { return "echo" }

func (c *echoCompleter) Complete(_ context.Context, req llm.Request) (llm.Response, error) {
	c.mu.Lock()
	c.prompts = append(c.prompts, req.Prompt)
	c.mu.Unlock()
	return llm.Response{Text: "answer", Model: "echo-1"}, nil
}

func (c *echoCompleter) Stream(ctx context.Context, req llm.Request, onToken llm.TokenFunc) (llm.Response, error) {
	resp, err := c.Complete(ctx, req)
	if err != nil {
		return resp, err
	}
	for _, tok := range []string{"ans", "wer"} {
		onToken(tok)
	}
	return resp, nil
}

func (c *echoCompleter) lastPrompt() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.prompts) == 0 {
		return ""
	}
	return c.prompts[len(c.prompts)-1]
}

// brokenBackend never initializes.
type brokenBackend struct{ *store.MemoryBackend }

func (brokenBackend) Name() string { return "broken" }
func (brokenBackend) Init(context.Context) error {
	return errors.New("connection refused")
}

func newTestApp(t *testing.T, backends ...store.Backend) (*App, *echoCompleter) {
	t.Helper()
	if len(backends) == 0 {
		backends = []store.Backend{store.NewMemoryBackend(0, 0)}
	}
	llmFake := &echoCompleter{}
	a, err := New(context.Background(), config.Config{}, discard,
		WithBackends(backends...),
		WithEmbeddings(embedding.NewChain(nil, embedding.ChainConfig{Dimension: 384, Logger: discard})),
		WithCompleter(llmFake),
	)
	require.NoError(t, err)
	require.NoError(t, a.Init(context.Background()))
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })
	return a, llmFake
}

func TestApp_StorageFallback(t *testing.T) {
	a, _ := newTestApp(t, brokenBackend{}, store.NewMemoryBackend(0, 0))

	assert.Equal(t, "memory", a.Events.Backend().Name())

	res := a.Pipeline.TrackSearch(context.Background(), "weather in vienna", "duckduckgo")
	require.True(t, res.Success, "write must succeed on the fallback backend")
}

func TestApp_InitFailsWithoutBackend(t *testing.T) {
	a, err := New(context.Background(), config.Config{}, discard,
		WithBackends(brokenBackend{}),
		WithEmbeddings(embedding.NewChain(nil, embedding.ChainConfig{Dimension: 64})),
		WithCompleter(&echoCompleter{}),
	)
	require.NoError(t, err)

	err = a.Init(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrStorage)
	assert.Equal(t, engine.StateStopped, a.Engine.State(), "nothing is left running")
}

func TestApp_EndToEndSearch(t *testing.T) {
	a, _ := newTestApp(t)
	ctx := context.Background()

	goNote := a.Pipeline.TrackNote(ctx, "Go concurrency", "goroutines and channels make golang concurrency simple", nil)
	require.True(t, goNote.Success)
	require.NotEmpty(t, goNote.EmbeddingIDs)
	require.True(t, a.Pipeline.TrackNote(ctx, "Sourdough", "bread baking with a sourdough starter and rye flour", nil).Success)
	require.True(t, a.Pipeline.TrackNote(ctx, "Alps trip", "hiking route through the austrian alps in summer", nil).Success)

	results, err := a.Search.SemanticSearch(ctx, "golang concurrency goroutines channels", service.SemanticOptions{Limit: 3})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, goNote.EventID, results[0].Event.ID)
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Similarity, results[i].Similarity)
	}
}

func TestApp_AskCitesMemories(t *testing.T) {
	a, llmFake := newTestApp(t)
	ctx := context.Background()

	note := a.Pipeline.TrackNote(ctx, "Go concurrency", "goroutines and channels make golang concurrency simple", nil)
	require.True(t, note.Success)

	task, err := a.Ask(ctx, AskRequest{Question: "what did I read about goroutines and channels?"})
	require.NoError(t, err)

	res, err := task.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, "answer", res.Text)
	assert.Contains(t, res.Citations, note.EventID)
	assert.Equal(t, models.TaskSearch, task.Request.Kind)

	prompt := llmFake.lastPrompt()
	assert.True(t, strings.HasPrefix(prompt, "what did I read"))
	assert.Contains(t, prompt, "Go concurrency")
}

func TestApp_AskStreams(t *testing.T) {
	a, _ := newTestApp(t)
	ctx := context.Background()

	task, err := a.Ask(ctx, AskRequest{Question: "anything at all?", Stream: true})
	require.NoError(t, err)

	var tokens []string
	var last engine.StreamEvent
	for ev := range task.Stream() {
		if ev.Kind == engine.StreamToken {
			tokens = append(tokens, ev.Token)
		}
		last = ev
	}
	assert.Equal(t, []string{"ans", "wer"}, tokens)
	assert.Equal(t, engine.StreamDone, last.Kind)
	require.NotNil(t, last.Result)
	assert.Empty(t, last.Result.Citations, "no memories, no citations")
}

func TestApp_AskRejectsEmptyQuestion(t *testing.T) {
	a, _ := newTestApp(t)

	_, err := a.Ask(context.Background(), AskRequest{Question: "   "})
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestApp_DeleteCascadesToVectors(t *testing.T) {
	a, _ := newTestApp(t)
	ctx := context.Background()

	res := a.Pipeline.TrackNote(ctx, "Cascade", "this note has enough text to be embedded", nil)
	require.True(t, res.Success)
	require.NotEmpty(t, res.EmbeddingIDs)

	deleted, err := a.Events.DeleteEvent(ctx, res.EventID)
	require.NoError(t, err)
	assert.True(t, deleted)

	embs, err := a.Vectors.EmbeddingsByEvent(ctx, res.EventID)
	require.NoError(t, err)
	assert.Empty(t, embs)
}

func TestApp_Stats(t *testing.T) {
	a, _ := newTestApp(t)
	ctx := context.Background()

	require.True(t, a.Pipeline.TrackVisit(ctx, "https://go.dev/doc", "Go documentation", 1200).Success)

	s, err := a.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, "memory", s.Storage)
	assert.Equal(t, 1, s.Events)
	assert.Equal(t, engine.StateIdle, s.EngineState)
	assert.Equal(t, []string{"hash"}, s.EmbeddingProviders)
	assert.Nil(t, s.LLMProviders, "the injected completer is not a chain")
}
