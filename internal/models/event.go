// Package models defines the data structures shared by the memory pipeline,
// the vector index and the AI task engine.
package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType identifies the kind of user activity an event records.
type EventType string

const (
	EventSearch     EventType = "search"
	EventVisit      EventType = "visit"
	EventModeSwitch EventType = "mode_switch"
	EventBookmark   EventType = "bookmark"
	EventNote       EventType = "note"
	EventPrefetch   EventType = "prefetch"
	EventAction     EventType = "action"
	EventHighlight  EventType = "highlight"
	EventScreenshot EventType = "screenshot"
	EventTask       EventType = "task"
	EventAgent      EventType = "agent"
	EventSummary    EventType = "summary"
)

// EventTypes lists every recognised event type.
var EventTypes = []EventType{
	EventSearch, EventVisit, EventModeSwitch, EventBookmark, EventNote, EventPrefetch,
	EventAction, EventHighlight, EventScreenshot, EventTask, EventAgent, EventSummary,
}

// Valid reports whether t is one of the recognised event types.
func (t EventType) Valid() bool {
	for _, known := range EventTypes {
		if t == known {
			return true
		}
	}
	return false
}

// ParseEventType converts a string into an EventType.
func ParseEventType(s string) (EventType, error) {
	t := EventType(s)
	if !t.Valid() {
		return "", fmt.Errorf("%w: unknown event type %q", ErrValidation, s)
	}
	return t, nil
}

// MemoryEvent is one recorded unit of user behavior.
// ID, Type, Value and TS are immutable once persisted; Metadata may be patched.
type MemoryEvent struct {
	ID       string
	Type     EventType
	Value    string
	Metadata EventMetadata
	TS       int64 // milliseconds since epoch
	Score    float64
}

// Time returns the event timestamp as time.Time.
func (e MemoryEvent) Time() time.Time {
	return time.UnixMilli(e.TS)
}

// memoryEventJSON is the flat document form of a MemoryEvent.
type memoryEventJSON struct {
	ID       string         `json:"id"`
	Type     EventType      `json:"type"`
	Value    string         `json:"value"`
	Metadata map[string]any `json:"metadata"`
	TS       int64          `json:"ts"`
	Score    float64        `json:"score"`
}

// MarshalJSON encodes the event with its metadata flattened into one object.
func (e MemoryEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(memoryEventJSON{
		ID:       e.ID,
		Type:     e.Type,
		Value:    e.Value,
		Metadata: e.Metadata.ToMap(),
		TS:       e.TS,
		Score:    e.Score,
	})
}

// UnmarshalJSON decodes the flat form and binds metadata to the variant for the event type.
func (e *MemoryEvent) UnmarshalJSON(data []byte) error {
	var raw memoryEventJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	e.ID = raw.ID
	e.Type = raw.Type
	e.Value = raw.Value
	e.TS = raw.TS
	e.Score = raw.Score
	e.Metadata = DecodeMetadata(raw.Type, raw.Metadata)
	return nil
}

// EventFilter selects events from the event store. All fields are optional
// and AND-combined.
type EventFilter struct {
	Type   EventType
	Since  int64 // inclusive lower bound on TS, 0 = unbounded
	Until  int64 // inclusive upper bound on TS, 0 = unbounded
	Pinned *bool
	Tags   []string // event must carry all of them
	Limit  int
}

// DefaultEventLimit caps GetEvents results when no limit is given.
const DefaultEventLimit = 100

// Matches reports whether e satisfies every condition of f except Limit.
func (f EventFilter) Matches(e MemoryEvent) bool {
	if f.Type != "" && e.Type != f.Type {
		return false
	}
	if f.Since > 0 && e.TS < f.Since {
		return false
	}
	if f.Until > 0 && e.TS > f.Until {
		return false
	}
	if f.Pinned != nil && e.Metadata.Pinned != *f.Pinned {
		return false
	}
	if len(f.Tags) > 0 && !e.Metadata.HasAllTags(f.Tags) {
		return false
	}
	return true
}

// EffectiveLimit returns Limit or DefaultEventLimit when unset.
func (f EventFilter) EffectiveLimit() int {
	if f.Limit <= 0 {
		return DefaultEventLimit
	}
	return f.Limit
}
