package server_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/omnimemory/internal/app"
	"github.com/raphaelgruber/omnimemory/internal/config"
	"github.com/raphaelgruber/omnimemory/internal/embedding"
	"github.com/raphaelgruber/omnimemory/internal/llm"
	"github.com/raphaelgruber/omnimemory/internal/server"
	"github.com/raphaelgruber/omnimemory/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestServerWithInMemoryTransport(t *testing.T) {
	srv := server.New("0.1.0-test", testLogger())
	srv.Setup()

	serverTransport, clientTransport := mcp.NewInMemoryTransports()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- srv.MCPServer().Run(ctx, serverTransport)
	}()

	client := mcp.NewClient(&mcp.Implementation{
		Name:    "test-client",
		Version: "1.0.0",
	}, nil)

	session, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err, "client should connect successfully")

	initResult := session.InitializeResult()
	require.NotNil(t, initResult)
	assert.Equal(t, "omnimemory", initResult.ServerInfo.Name)
	assert.Equal(t, "0.1.0-test", initResult.ServerInfo.Version)

	for i := 0; i < 3; i++ {
		toolsResult, err := session.ListTools(ctx, nil)
		require.NoError(t, err, "request %d should succeed", i)
		assert.Empty(t, toolsResult.Tools, "no tools registered")
	}

	require.NoError(t, session.Close())
	cancel()

	select {
	case err := <-serverErr:
		if err != nil {
			t.Logf("server stopped with: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Error("server did not stop within timeout")
	}
}

type nopCompleter struct{}

func (nopCompleter) Complete(context.Context, llm.Request) (llm.Response, error) {
	return llm.Response{Text: "ok"}, nil
}

func (nopCompleter) Stream(context.Context, llm.Request, llm.TokenFunc) (llm.Response, error) {
	return llm.Response{Text: "ok"}, nil
}

func newApp(t *testing.T) *app.App {
	t.Helper()
	a, err := app.New(context.Background(), config.Config{}, testLogger(),
		app.WithBackends(store.NewMemoryBackend(0, 0)),
		app.WithEmbeddings(embedding.NewChain(nil, embedding.ChainConfig{Dimension: 32})),
		app.WithCompleter(nopCompleter{}),
	)
	require.NoError(t, err)
	return a
}

func TestHandler_Health(t *testing.T) {
	a := newApp(t)
	h := server.NewHandler(a)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code, "not initialized yet")

	require.NoError(t, a.Init(context.Background()))
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body server.Health
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, "memory", body.Storage)
	assert.Equal(t, "idle", body.Engine)
}

func TestHandler_Metrics(t *testing.T) {
	a := newApp(t)
	require.NoError(t, a.Init(context.Background()))
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })

	require.True(t, a.Pipeline.TrackSearch(context.Background(), "prometheus exposition format", "ddg").Success)

	rec := httptest.NewRecorder()
	server.NewHandler(a).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, "omnimemory_events_total")
	assert.Contains(t, body, "omnimemory_vector_cache_size")
	assert.Contains(t, body, "omnimemory_tasks_pending")
}

func TestServeHTTP_StopsOnCancel(t *testing.T) {
	a := newApp(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- server.ServeHTTP(ctx, "127.0.0.1:0", a, testLogger()) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("ServeHTTP did not return after cancel")
	}
}
