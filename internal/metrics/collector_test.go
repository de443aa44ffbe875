package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordTiming(t *testing.T) {
	c := NewCollector()
	c.RecordTiming(OpDBQuery, 10*time.Millisecond)
	c.RecordTiming(OpDBQuery, 30*time.Millisecond)

	snap := c.Snapshot()
	require.NotNil(t, snap.DBQuery)
	assert.Equal(t, int64(2), snap.DBQuery.Count)
	assert.Equal(t, int64(10), snap.DBQuery.MinTimeMs)
	assert.Equal(t, int64(30), snap.DBQuery.MaxTimeMs)
	assert.InDelta(t, 20.0, snap.DBQuery.AvgTimeMs, 0.001)
	assert.Nil(t, snap.Embedding)
}

func TestRecordLLMUsage(t *testing.T) {
	c := NewCollector()
	c.RecordLLMUsage(OpLLMComplete, time.Second, 100, 20)
	c.RecordLLMUsage(OpLLMComplete, time.Second, 50, 40)

	snap := c.Snapshot()
	require.NotNil(t, snap.LLMComplete)
	require.NotNil(t, snap.LLMComplete.TotalInputTokens)
	assert.Equal(t, int64(150), *snap.LLMComplete.TotalInputTokens)
	assert.Equal(t, int64(50), *snap.LLMComplete.MinInputTokens)
	assert.Equal(t, int64(40), *snap.LLMComplete.MaxOutputTokens)
}

func TestCounters(t *testing.T) {
	c := NewCollector()
	c.Inc(CounterEventsTracked)
	c.Inc(CounterEventsTracked)
	c.Add(CounterVectorsPruned, 50)

	assert.Equal(t, int64(2), c.Counter(CounterEventsTracked))
	assert.Equal(t, int64(50), c.Snapshot().Counters[CounterVectorsPruned])
	assert.Zero(t, c.Counter(CounterTasksFailed))
}

func TestHandlerExposesMetrics(t *testing.T) {
	c := NewCollector()
	c.RecordTiming(OpPipeline, 5*time.Millisecond)
	c.Inc(CounterDuplicates)
	require.NoError(t, c.RegisterGauge("queue_depth", "Queued tasks", func() float64 { return 3 }))

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `omnimemory_operation_duration_seconds_count{op="pipeline"} 1`)
	assert.Contains(t, string(body), `omnimemory_events_total{name="duplicates_suppressed"} 1`)
	assert.Contains(t, string(body), "omnimemory_queue_depth 3")
}
