package models

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeMetadata_BindsVariant(t *testing.T) {
	m := DecodeMetadata(EventSearch, map[string]any{
		"query":  "rust ownership",
		"url":    "https://example.com/?q=rust",
		"tags":   []any{"Rust", "rust", " lang "},
		"pinned": true,
		"source": "omnibox",
	})

	search, ok := m.AsSearch()
	require.True(t, ok, "search event should carry SearchMeta")
	assert.Equal(t, "rust ownership", search.Query)
	assert.Equal(t, "https://example.com/?q=rust", m.URL)
	assert.True(t, m.Pinned)
	assert.Equal(t, []string{"rust", "lang"}, m.Tags)
	assert.Equal(t, map[string]any{"source": "omnibox"}, m.Extra)

	_, ok = m.AsNote()
	assert.False(t, ok, "search metadata must not narrow to NoteMeta")
}

func TestEventMetadata_Merge(t *testing.T) {
	m := DecodeMetadata(EventNote, map[string]any{
		"content": "remember the milk",
		"title":   "Groceries",
		"tags":    []any{"home"},
	})

	merged := m.Merge(EventNote, map[string]any{"pinned": true, "tags": []any{"home", "errands"}})

	note, ok := merged.AsNote()
	require.True(t, ok)
	assert.Equal(t, "remember the milk", note.Content, "unpatched variant keys survive")
	assert.Equal(t, "Groceries", merged.Title, "unpatched common keys survive")
	assert.True(t, merged.Pinned)
	assert.Equal(t, []string{"home", "errands"}, merged.Tags)

	cleared := merged.Merge(EventNote, map[string]any{"title": nil})
	assert.Empty(t, cleared.Title, "nil patch value removes the key")
}

func TestMemoryEvent_JSONRoundTripKeepsVariant(t *testing.T) {
	ev := MemoryEvent{
		ID:       "01HZX",
		Type:     EventVisit,
		Value:    "https://go.dev",
		Metadata: DecodeMetadata(EventVisit, map[string]any{"title": "Go", "duration_ms": 1200}),
		TS:       1700000000000,
		Score:    1.2,
	}

	data, err := json.Marshal(ev)
	require.NoError(t, err)

	var flat map[string]any
	require.NoError(t, json.Unmarshal(data, &flat))
	meta := flat["metadata"].(map[string]any)
	assert.Equal(t, "Go", meta["title"], "metadata is stored flat")

	var decoded MemoryEvent
	require.NoError(t, json.Unmarshal(data, &decoded))
	visit, ok := decoded.Metadata.AsVisit()
	require.True(t, ok)
	assert.Equal(t, int64(1200), visit.DurationMs)
	assert.Equal(t, ev.TS, decoded.TS)
}

func TestEventFilter_Matches(t *testing.T) {
	pinned := true
	ev := MemoryEvent{
		Type:     EventNote,
		TS:       1000,
		Metadata: DecodeMetadata(EventNote, map[string]any{"tags": []any{"go", "db"}, "pinned": true}),
	}

	tests := []struct {
		name   string
		filter EventFilter
		want   bool
	}{
		{"empty filter", EventFilter{}, true},
		{"type match", EventFilter{Type: EventNote}, true},
		{"type mismatch", EventFilter{Type: EventVisit}, false},
		{"since inclusive", EventFilter{Since: 1000}, true},
		{"until inclusive", EventFilter{Until: 1000}, true},
		{"before since", EventFilter{Since: 1001}, false},
		{"pinned", EventFilter{Pinned: &pinned}, true},
		{"all tags", EventFilter{Tags: []string{"go", "DB"}}, true},
		{"missing tag", EventFilter{Tags: []string{"go", "rust"}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.Matches(ev))
		})
	}
}

func TestTaskRequest_Validate(t *testing.T) {
	err := TaskRequest{Kind: TaskChat, Prompt: "   "}.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrValidation))

	assert.NoError(t, TaskRequest{Kind: TaskChat, Prompt: "hi"}.Validate())
	assert.ErrorIs(t, TaskRequest{Kind: "poetry", Prompt: "hi"}.Validate(), ErrValidation)
}

func TestParseEventType(t *testing.T) {
	got, err := ParseEventType("mode_switch")
	require.NoError(t, err)
	assert.Equal(t, EventModeSwitch, got)

	_, err = ParseEventType("telepathy")
	assert.ErrorIs(t, err, ErrValidation)
}
