package tools

import (
	"context"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/raphaelgruber/omnimemory/internal/models"
	"github.com/raphaelgruber/omnimemory/internal/pipeline"
)

// TrackInput defines the input schema for the track_event tool.
type TrackInput struct {
	Type     string         `json:"type" jsonschema:"required,Event type: search, visit, mode_switch, bookmark, note, prefetch, action, highlight, screenshot, task, agent or summary"`
	Value    string         `json:"value" jsonschema:"required,Main payload: the query, URL, note title or action"`
	Metadata map[string]any `json:"metadata,omitempty" jsonschema:"Optional metadata such as url, title, content or duration_ms"`
	Tags     []string       `json:"tags,omitempty" jsonschema:"Optional tags, merged with the automatic ones"`
}

// NewTrackHandler creates the track_event tool handler.
func NewTrackHandler(deps *Dependencies) mcp.ToolHandlerFor[TrackInput, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input TrackInput) (
		*mcp.CallToolResult, any, error,
	) {
		t, err := models.ParseEventType(strings.TrimSpace(input.Type))
		if err != nil {
			return ErrorResult(err.Error(), "Use one of the documented event types"), nil, nil
		}
		if strings.TrimSpace(input.Value) == "" {
			return ErrorResult("Value cannot be empty", "Provide the event payload"), nil, nil
		}

		meta := make(map[string]any, len(input.Metadata)+1)
		for k, v := range input.Metadata {
			meta[k] = v
		}
		if len(input.Tags) > 0 {
			meta["tags"] = input.Tags
		}

		res := deps.App.Pipeline.Process(ctx, pipeline.Draft{Type: t, Value: input.Value, Metadata: meta})
		if !res.Success {
			deps.Logger.Error("track failed", "type", t, "error", res.Err)
			return failure("Failed to record event", res.Err), nil, nil
		}

		deps.Logger.Info("event tracked",
			"event_id", res.EventID,
			"type", t,
			"embeddings", len(res.EmbeddingIDs),
			"duplicate", res.Duplicate,
		)
		return JSONResult(res), nil, nil
	}
}
