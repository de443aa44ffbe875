//go:build integration

package db

import (
	"context"
	"fmt"
	"log"
	"os"
	"testing"
	"time"

	"github.com/raphaelgruber/omnimemory/internal/metrics"
	"github.com/raphaelgruber/omnimemory/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

var testDB *Client
var testContainer testcontainers.Container

// TestMain sets up and tears down the SurrealDB container for all tests.
func TestMain(m *testing.M) {
	// Disable ryuk (cleanup container) as it can cause issues in some environments
	os.Setenv("TESTCONTAINERS_RYUK_DISABLED", "true")

	ctx := context.Background()

	var err error
	testContainer, err = testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "surrealdb/surrealdb:v3.0.0-beta.1",
			ExposedPorts: []string{"8000/tcp"},
			Cmd:          []string{"start", "--log", "info", "--user", "root", "--pass", "root"},
			WaitingFor:   wait.ForLog("Started web server").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		log.Fatalf("Failed to start SurrealDB container: %v", err)
	}

	host, err := testContainer.Host(ctx)
	if err != nil {
		log.Fatalf("Failed to get container host: %v", err)
	}
	// Workaround: testcontainers may return "null" as host in some environments
	if host == "" || host == "null" {
		host = "localhost"
	}
	mappedPort, err := testContainer.MappedPort(ctx, "8000")
	if err != nil {
		log.Fatalf("Failed to get mapped port: %v", err)
	}

	testDB, err = NewClient(ctx, Config{
		URL:       fmt.Sprintf("ws://%s:%s/rpc", host, mappedPort.Port()),
		Namespace: "test",
		Database:  "test",
		Username:  "root",
		Password:  "root",
		AuthLevel: "root",
	}, nil, metrics.NewCollector())
	if err != nil {
		log.Fatalf("Failed to connect to test database: %v", err)
	}

	if err := testDB.InitSchema(ctx); err != nil {
		log.Fatalf("Failed to initialize schema: %v", err)
	}

	code := m.Run()

	_ = testDB.Close(ctx)
	_ = testContainer.Terminate(ctx)

	os.Exit(code)
}

func wipe(t *testing.T) {
	t.Helper()
	require.NoError(t, testDB.WipeData(context.Background()))
}

func testEvent(id string, t models.EventType, value string, ts int64, tags ...string) models.MemoryEvent {
	meta := models.NewMetadata(t)
	meta.Tags = tags
	return models.MemoryEvent{ID: id, Type: t, Value: value, Metadata: meta, TS: ts, Score: 1.0}
}

// =============================================================================
// EVENT TESTS
// =============================================================================

func TestUpsertAndGetEvent(t *testing.T) {
	wipe(t)
	ctx := context.Background()

	e := testEvent("01HZX0000000000000000000A1", models.EventSearch, "golang generics", 1000, "go")
	e.Metadata.Title = "Search"
	search, _ := e.Metadata.Variant.(*models.SearchMeta)
	search.Query = "golang generics"
	require.NoError(t, testDB.UpsertEvent(ctx, e))

	got, err := testDB.GetEvent(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, e.ID, got.ID)
	assert.Equal(t, models.EventSearch, got.Type)
	assert.Equal(t, int64(1000), got.TS)
	assert.Equal(t, []string{"go"}, got.Metadata.Tags)
	meta, ok := got.Metadata.AsSearch()
	require.True(t, ok)
	assert.Equal(t, "golang generics", meta.Query)
}

func TestGetEventNotFound(t *testing.T) {
	wipe(t)
	_, err := testDB.GetEvent(context.Background(), "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestQueryEventsFilters(t *testing.T) {
	wipe(t)
	ctx := context.Background()

	require.NoError(t, testDB.UpsertEvent(ctx, testEvent("e1", models.EventVisit, "a", 100, "work")))
	require.NoError(t, testDB.UpsertEvent(ctx, testEvent("e2", models.EventVisit, "b", 200, "work", "go")))
	pinned := testEvent("e3", models.EventNote, "c", 300, "go")
	pinned.Metadata.Pinned = true
	require.NoError(t, testDB.UpsertEvent(ctx, pinned))

	all, err := testDB.QueryEvents(ctx, models.EventFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "e3", all[0].ID, "newest first")

	visits, err := testDB.QueryEvents(ctx, models.EventFilter{Type: models.EventVisit, Since: 150})
	require.NoError(t, err)
	require.Len(t, visits, 1)
	assert.Equal(t, "e2", visits[0].ID)

	yes := true
	pins, err := testDB.QueryEvents(ctx, models.EventFilter{Pinned: &yes})
	require.NoError(t, err)
	require.Len(t, pins, 1)
	assert.Equal(t, "e3", pins[0].ID)

	tagged, err := testDB.QueryEvents(ctx, models.EventFilter{Tags: []string{"work", "go"}})
	require.NoError(t, err)
	require.Len(t, tagged, 1)
	assert.Equal(t, "e2", tagged[0].ID)

	limited, err := testDB.QueryEvents(ctx, models.EventFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestDeleteEventAndTags(t *testing.T) {
	wipe(t)
	ctx := context.Background()

	require.NoError(t, testDB.UpsertEvent(ctx, testEvent("e1", models.EventNote, "x", 1, "b", "a")))
	require.NoError(t, testDB.UpsertEvent(ctx, testEvent("e2", models.EventNote, "y", 2, "c", "a")))

	tags, err := testDB.AllTags(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, tags)

	deleted, err := testDB.DeleteEvent(ctx, "e1")
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = testDB.DeleteEvent(ctx, "e1")
	require.NoError(t, err)
	assert.False(t, deleted)

	n, err := testDB.CountEvents(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestEventIDsBeforeKeepsPinned(t *testing.T) {
	wipe(t)
	ctx := context.Background()

	require.NoError(t, testDB.UpsertEvent(ctx, testEvent("old", models.EventVisit, "x", 10)))
	pinned := testEvent("old-pinned", models.EventVisit, "y", 20)
	pinned.Metadata.Pinned = true
	require.NoError(t, testDB.UpsertEvent(ctx, pinned))
	require.NoError(t, testDB.UpsertEvent(ctx, testEvent("new", models.EventVisit, "z", 1000)))

	ids, err := testDB.EventIDsBefore(ctx, 500, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"old"}, ids)

	require.NoError(t, testDB.DeleteEvents(ctx, ids))
	n, err := testDB.CountEvents(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

// =============================================================================
// EMBEDDING TESTS
// =============================================================================

func testEmbedding(eventID string, chunk int, ts int64) models.Embedding {
	return models.Embedding{
		ID:        models.EmbeddingID(eventID, chunk),
		EventID:   eventID,
		Vector:    []float32{0.1, 0.2, 0.3},
		Text:      "chunk text",
		Metadata:  models.EmbeddingMetadata{ChunkIndex: chunk, TotalChunks: 2, EventType: models.EventNote},
		Timestamp: ts,
		Provider:  "hash",
	}
}

func TestEmbeddingLifecycle(t *testing.T) {
	wipe(t)
	ctx := context.Background()

	require.NoError(t, testDB.UpsertEmbedding(ctx, testEmbedding("e1", 0, 100)))
	require.NoError(t, testDB.UpsertEmbedding(ctx, testEmbedding("e1", 1, 100)))
	require.NoError(t, testDB.UpsertEmbedding(ctx, testEmbedding("e2", 0, 200)))

	got, err := testDB.GetEmbedding(ctx, "e1-chunk-1")
	require.NoError(t, err)
	assert.Equal(t, "e1", got.EventID)
	assert.Len(t, got.Vector, 3)
	assert.Equal(t, "hash", got.Provider)

	chunks, err := testDB.EmbeddingsByEvent(ctx, "e1")
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, 0, chunks[0].Metadata.ChunkIndex)

	recent, err := testDB.RecentEmbeddings(ctx, 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "e2-chunk-0", recent[0].ID)

	oldest, err := testDB.OldestEmbeddingIDs(ctx, 2)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"e1-chunk-0", "e1-chunk-1"}, oldest)

	n, err := testDB.DeleteEmbeddingsByEvent(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, testDB.DeleteEmbeddings(ctx, []string{"e2-chunk-0"}))
	count, err := testDB.CountEmbeddings(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestPing(t *testing.T) {
	require.NoError(t, testDB.Ping(context.Background()))
}
