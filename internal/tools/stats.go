package tools

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// NewStatsHandler creates the stats tool handler.
func NewStatsHandler(deps *Dependencies) mcp.ToolHandlerFor[struct{}, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, _ struct{}) (
		*mcp.CallToolResult, any, error,
	) {
		s, err := deps.App.Stats(ctx)
		if err != nil {
			deps.Logger.Error("stats failed", "error", err)
			return failure("Failed to collect stats", err), nil, nil
		}
		return JSONResult(s), nil, nil
	}
}
