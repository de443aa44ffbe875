package models

import "fmt"

// Embedding is the vector for one text chunk of a MemoryEvent.
type Embedding struct {
	ID        string            `json:"id"`
	EventID   string            `json:"event_id"`
	Vector    []float32         `json:"vector"`
	Text      string            `json:"text"`
	Metadata  EmbeddingMetadata `json:"metadata"`
	Timestamp int64             `json:"timestamp"` // owning event TS, used for pruning order
	Provider  string            `json:"provider,omitempty"`
}

// EmbeddingMetadata carries chunk position and a copy of the event metadata
// for post-search filtering.
type EmbeddingMetadata struct {
	ChunkIndex  int            `json:"chunk_index"`
	TotalChunks int            `json:"total_chunks"`
	EventType   EventType      `json:"event_type"`
	Event       map[string]any `json:"event,omitempty"`
}

// EmbeddingID returns the deterministic id of chunk i of an event.
func EmbeddingID(eventID string, chunk int) string {
	return fmt.Sprintf("%s-chunk-%d", eventID, chunk)
}
