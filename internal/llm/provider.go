// Package llm provides text completion providers and an ordered fallback
// chain over them.
package llm

import (
	"context"

	"github.com/raphaelgruber/omnimemory/internal/models"
)

// Request is a single completion request.
type Request struct {
	Kind    models.TaskKind
	System  string
	Prompt  string
	Options models.LLMOptions
}

// Response is a finished completion. Model names the model that answered;
// Provider is filled in by Chain.
type Response struct {
	Text     string
	Model    string
	Provider string
	Usage    *models.Usage
}

// TokenFunc receives streamed tokens in arrival order.
type TokenFunc func(token string)

// Provider generates completions.
type Provider interface {
	// Name identifies the provider in logs, metrics and task results.
	Name() string

	// Complete returns the whole completion at once.
	Complete(ctx context.Context, req Request) (Response, error)

	// Stream calls onToken for every token and returns the assembled
	// completion when the stream ends.
	Stream(ctx context.Context, req Request, onToken TokenFunc) (Response, error)
}

// Unloader is implemented by providers that hold resources (e.g. a loaded
// local model) that can be released while idle.
type Unloader interface {
	Unload(ctx context.Context) error
}

// systemPrompts are the default instructions per task kind.
var systemPrompts = map[models.TaskKind]string{
	models.TaskSearch: "You answer questions about the user's own browsing history and notes. " +
		"Use only the context provided and say so when it is not enough. Be concise.",
	models.TaskAgent: "You plan and carry out small browser tasks for the user. " +
		"Reply with a short numbered list of steps followed by the result.",
	models.TaskChat: "You are a helpful assistant embedded in the user's browser.",
	models.TaskSummary: "You write short, factual summaries. Keep names, topics and links " +
		"that matter and drop the rest.",
}

// SystemPrompt returns the default system prompt for kind.
func SystemPrompt(kind models.TaskKind) string {
	if p, ok := systemPrompts[kind]; ok {
		return p
	}
	return systemPrompts[models.TaskChat]
}

// system returns req.System or the kind default.
func (r Request) system() string {
	if r.System != "" {
		return r.System
	}
	return SystemPrompt(r.Kind)
}
