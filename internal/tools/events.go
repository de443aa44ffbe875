package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/raphaelgruber/omnimemory/internal/models"
)

// ListEventsInput defines the input schema for the list_events tool.
type ListEventsInput struct {
	Type   string   `json:"type,omitempty" jsonschema:"Only events of this type"`
	Tags   []string `json:"tags,omitempty" jsonschema:"Only events carrying all of these tags"`
	Since  string   `json:"since,omitempty" jsonschema:"Lower time bound: RFC3339 timestamp or a duration back from now such as 24h"`
	Until  string   `json:"until,omitempty" jsonschema:"Upper time bound: RFC3339 timestamp or a duration back from now"`
	Pinned *bool    `json:"pinned,omitempty" jsonschema:"Only pinned (true) or unpinned (false) events"`
	Limit  int      `json:"limit,omitempty" jsonschema:"Max results 1-1000, default 100"`
}

// UpdateEventInput defines the input schema for the update_event tool.
type UpdateEventInput struct {
	ID       string         `json:"id" jsonschema:"required,Event ID"`
	Metadata map[string]any `json:"metadata" jsonschema:"required,Keys to merge into the event metadata; null removes a key"`
}

// DeleteEventInput defines the input schema for the delete_event tool.
type DeleteEventInput struct {
	ID string `json:"id" jsonschema:"required,Event ID"`
}

// DeleteEventResult is the response from the delete_event tool.
type DeleteEventResult struct {
	Deleted bool   `json:"deleted"`
	Message string `json:"message"`
}

// FilterFrom converts list_events arguments into a store filter.
func (in ListEventsInput) FilterFrom(now time.Time) (models.EventFilter, error) {
	f := models.EventFilter{Tags: in.Tags, Pinned: in.Pinned, Limit: in.Limit}
	if in.Type != "" {
		t, err := models.ParseEventType(in.Type)
		if err != nil {
			return f, err
		}
		f.Type = t
	}
	if in.Limit < 0 || in.Limit > 1000 {
		return f, fmt.Errorf("%w: limit must be 1-1000", models.ErrValidation)
	}
	var err error
	if f.Since, err = models.ParseTimeBound(in.Since, now); err != nil {
		return f, err
	}
	if f.Until, err = models.ParseTimeBound(in.Until, now); err != nil {
		return f, err
	}
	return f, nil
}

// NewListEventsHandler creates the list_events tool handler.
func NewListEventsHandler(deps *Dependencies) mcp.ToolHandlerFor[ListEventsInput, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input ListEventsInput) (
		*mcp.CallToolResult, any, error,
	) {
		filter, err := input.FilterFrom(time.Now())
		if err != nil {
			return failure("Invalid filter", err), nil, nil
		}

		events, err := deps.App.Events.GetEvents(ctx, filter)
		if err != nil {
			deps.Logger.Error("list events failed", "error", err)
			return failure("Failed to list events", err), nil, nil
		}
		return JSONResult(map[string]any{"events": events, "count": len(events)}), nil, nil
	}
}

// NewListTagsHandler creates the list_tags tool handler.
func NewListTagsHandler(deps *Dependencies) mcp.ToolHandlerFor[struct{}, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, _ struct{}) (
		*mcp.CallToolResult, any, error,
	) {
		tags, err := deps.App.Events.GetAllTags(ctx)
		if err != nil {
			deps.Logger.Error("list tags failed", "error", err)
			return failure("Failed to list tags", err), nil, nil
		}
		if len(tags) == 0 {
			return TextResult("No tags yet"), nil, nil
		}
		return TextResult(strings.Join(tags, "\n")), nil, nil
	}
}

// NewUpdateEventHandler creates the update_event tool handler.
func NewUpdateEventHandler(deps *Dependencies) mcp.ToolHandlerFor[UpdateEventInput, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input UpdateEventInput) (
		*mcp.CallToolResult, any, error,
	) {
		if input.ID == "" {
			return ErrorResult("ID is required", "Provide the event id"), nil, nil
		}
		if len(input.Metadata) == 0 {
			return ErrorResult("Metadata cannot be empty", "Provide at least one key to change"), nil, nil
		}

		e, err := deps.App.Events.UpdateEventMetadata(ctx, input.ID, input.Metadata)
		if err != nil {
			deps.Logger.Error("update event failed", "event_id", input.ID, "error", err)
			return failure("Failed to update event", err), nil, nil
		}
		deps.Logger.Info("event updated", "event_id", e.ID)
		return JSONResult(e), nil, nil
	}
}

// NewDeleteEventHandler creates the delete_event tool handler.
// Deleting an unknown id succeeds with deleted=false.
func NewDeleteEventHandler(deps *Dependencies) mcp.ToolHandlerFor[DeleteEventInput, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input DeleteEventInput) (
		*mcp.CallToolResult, any, error,
	) {
		if input.ID == "" {
			return ErrorResult("ID is required", "Provide the event id"), nil, nil
		}

		deleted, err := deps.App.Events.DeleteEvent(ctx, input.ID)
		if err != nil {
			deps.Logger.Error("delete event failed", "event_id", input.ID, "error", err)
			return failure("Failed to delete event", err), nil, nil
		}

		msg := "Deleted event " + input.ID
		if !deleted {
			msg = "No event with id " + input.ID
		}
		deps.Logger.Info("delete completed", "event_id", input.ID, "deleted", deleted)
		return JSONResult(DeleteEventResult{Deleted: deleted, Message: msg}), nil, nil
	}
}
