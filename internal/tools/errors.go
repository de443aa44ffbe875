package tools

import (
	"encoding/json"
	"errors"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/raphaelgruber/omnimemory/internal/models"
)

// ErrorResult creates a tool error result with optional recovery hint.
// If hint is non-empty, formats as "{msg}. {hint}".
// Returns IsError=true so LLM can see the error and self-correct.
func ErrorResult(msg, hint string) *mcp.CallToolResult {
	text := msg
	if hint != "" {
		text = msg + ". " + hint
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
		IsError: true,
	}
}

// TextResult creates a success result with text content.
func TextResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
	}
}

// JSONResult renders v as indented JSON text.
func JSONResult(v any) *mcp.CallToolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return ErrorResult("Failed to encode result", err.Error())
	}
	return TextResult(string(data))
}

// failure maps a service error onto a tool error with a recovery hint.
func failure(msg string, err error) *mcp.CallToolResult {
	switch {
	case errors.Is(err, models.ErrValidation):
		return ErrorResult(err.Error(), "Fix the arguments and retry")
	case errors.Is(err, models.ErrNotFound):
		return ErrorResult(msg+": not found", "Check the id with list_events")
	case errors.Is(err, models.ErrCancelled):
		return ErrorResult(msg+": cancelled", "")
	case errors.Is(err, models.ErrTimeout):
		return ErrorResult(msg+": timed out", "Retry with a shorter request")
	case errors.Is(err, models.ErrAllProvidersFailed):
		return ErrorResult(msg+": no completion provider answered", "Check OMNI_BACKEND_URL or the local Ollama")
	case errors.Is(err, models.ErrStorage):
		return ErrorResult(msg, "Storage may be unavailable")
	default:
		return ErrorResult(msg, err.Error())
	}
}
