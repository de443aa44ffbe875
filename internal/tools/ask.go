package tools

import (
	"context"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/raphaelgruber/omnimemory/internal/app"
	"github.com/raphaelgruber/omnimemory/internal/models"
)

// AskInput defines the input schema for the ask tool.
type AskInput struct {
	Question string `json:"question" jsonschema:"required,Question about the user's browsing history and notes"`
	TabID    string `json:"tab_id,omitempty" jsonschema:"Owning tab; cancel_tasks with this id aborts the request"`
	Limit    int    `json:"limit,omitempty" jsonschema:"How many memories to use as context, default 5"`
	Provider string `json:"provider,omitempty" jsonschema:"Preferred local provider: ollama, openai, anthropic or bedrock"`
	Model    string `json:"model,omitempty" jsonschema:"Model override for the chosen provider"`
}

// AskResult is the response from the ask tool.
type AskResult struct {
	TaskID    string        `json:"task_id"`
	Answer    string        `json:"answer"`
	Provider  string        `json:"provider"`
	Model     string        `json:"model,omitempty"`
	Citations []string      `json:"citations,omitempty"`
	Usage     *models.Usage `json:"usage,omitempty"`
	LatencyMs int64         `json:"latency_ms"`
}

// CancelTasksInput defines the input schema for the cancel_tasks tool.
type CancelTasksInput struct {
	TabID string `json:"tab_id,omitempty" jsonschema:"Tab whose tasks to cancel; empty cancels every task"`
}

// NewAskHandler creates the ask tool handler. It blocks until the task
// finishes; cancelling the request cancels the task.
func NewAskHandler(deps *Dependencies) mcp.ToolHandlerFor[AskInput, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input AskInput) (
		*mcp.CallToolResult, any, error,
	) {
		if strings.TrimSpace(input.Question) == "" {
			return ErrorResult("Question cannot be empty", "Provide a question"), nil, nil
		}

		task, err := deps.App.Ask(ctx, app.AskRequest{
			Question: input.Question,
			TabID:    input.TabID,
			Limit:    input.Limit,
			Options:  models.LLMOptions{Provider: input.Provider, Model: input.Model},
		})
		if err != nil {
			return failure("Ask failed", err), nil, nil
		}

		res, err := task.Wait(ctx)
		if err != nil {
			deps.Logger.Warn("ask failed", "task_id", task.ID, "error", err)
			return failure("Ask failed", err), nil, nil
		}

		deps.Logger.Info("ask completed",
			"task_id", task.ID,
			"provider", res.Provider,
			"citations", len(res.Citations),
			"duration_ms", res.Latency.Milliseconds(),
		)
		return JSONResult(AskResult{
			TaskID:    task.ID,
			Answer:    res.Text,
			Provider:  res.Provider,
			Model:     res.Model,
			Citations: res.Citations,
			Usage:     res.Usage,
			LatencyMs: res.Latency.Milliseconds(),
		}), nil, nil
	}
}

// NewCancelTasksHandler creates the cancel_tasks tool handler.
func NewCancelTasksHandler(deps *Dependencies) mcp.ToolHandlerFor[CancelTasksInput, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input CancelTasksInput) (
		*mcp.CallToolResult, any, error,
	) {
		n := deps.App.Engine.CancelTab(input.TabID)
		deps.Logger.Info("tasks cancelled", "tab_id", input.TabID, "count", n)
		return JSONResult(map[string]int{"cancelled": n}), nil, nil
	}
}

// NewTaskHistoryHandler creates the task_history tool handler.
func NewTaskHistoryHandler(deps *Dependencies) mcp.ToolHandlerFor[struct{}, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, _ struct{}) (
		*mcp.CallToolResult, any, error,
	) {
		history := deps.App.Engine.History()
		return JSONResult(map[string]any{"tasks": history, "count": len(history)}), nil, nil
	}
}
