package tools

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// RegisterAll registers all tools with the MCP server.
// This is called from main after server creation but before Run().
func RegisterAll(server *mcp.Server, deps *Dependencies) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "track_event",
		Description: "Record a browsing event (search, visit, note, bookmark, ...) in memory; it is tagged and embedded for later recall",
	}, NewTrackHandler(deps))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "semantic_search",
		Description: "Find remembered events by meaning using vector similarity",
	}, NewSemanticSearchHandler(deps))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "keyword_search",
		Description: "Find remembered events by keyword; title matches rank higher",
	}, NewKeywordSearchHandler(deps))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_events",
		Description: "List recent events, optionally filtered by type, tags, time range or pinned state",
	}, NewListEventsHandler(deps))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_tags",
		Description: "List every tag in use",
	}, NewListTagsHandler(deps))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "update_event",
		Description: "Merge metadata into an event (pin, retitle, retag); a null value removes the key",
	}, NewUpdateEventHandler(deps))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "delete_event",
		Description: "Delete an event and its embeddings",
	}, NewDeleteEventHandler(deps))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "ask",
		Description: "Answer a question from the user's own memory with citations",
	}, NewAskHandler(deps))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "cancel_tasks",
		Description: "Cancel running AI tasks of a tab, or all tasks when tab_id is empty",
	}, NewCancelTasksHandler(deps))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "task_history",
		Description: "Show the outcomes of the latest AI tasks, newest first",
	}, NewTaskHistoryHandler(deps))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "stats",
		Description: "Report storage, vector index, provider and engine statistics",
	}, NewStatsHandler(deps))
}
