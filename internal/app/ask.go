package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/raphaelgruber/omnimemory/internal/engine"
	"github.com/raphaelgruber/omnimemory/internal/models"
	"github.com/raphaelgruber/omnimemory/internal/service"
)

// DefaultAskContext is how many memories are handed to the model.
const DefaultAskContext = 5

// AskRequest is a question answered from the user's own memory.
type AskRequest struct {
	Question string
	TabID    string
	Stream   bool
	Limit    int
	Options  models.LLMOptions
}

// Ask retrieves the memories closest to the question and submits a search
// task with them as context. Event ids of the memories become the citations
// of the result. Semantic failures degrade to keyword matching.
func (a *App) Ask(ctx context.Context, req AskRequest) (*engine.Task, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = DefaultAskContext
	}

	memories, citations := a.recall(ctx, req.Question, limit)

	opts := req.Options
	opts.Stream = opts.Stream || req.Stream
	task := models.TaskRequest{
		Kind:    models.TaskSearch,
		Prompt:  req.Question,
		Options: opts,
		TabID:   req.TabID,
	}
	if len(memories) > 0 {
		task.Context = map[string]any{
			"memories":  memories,
			"citations": citations,
		}
	}
	a.Engine.Touch()
	return a.Engine.Submit(ctx, task)
}

func (a *App) recall(ctx context.Context, question string, limit int) (string, []string) {
	if strings.TrimSpace(question) == "" {
		return "", nil
	}

	var events []models.MemoryEvent
	results, err := a.Search.SemanticSearch(ctx, question, service.SemanticOptions{Limit: limit})
	if err != nil {
		a.Logger.Warn("semantic recall failed, using keywords", "error", err)
		kw, kerr := a.Search.KeywordSearch(ctx, question, limit)
		if kerr != nil {
			a.Logger.Warn("keyword recall failed", "error", kerr)
			return "", nil
		}
		for _, r := range kw {
			events = append(events, r.Event)
		}
	} else {
		for _, r := range results {
			events = append(events, r.Event)
		}
	}
	return formatMemories(events)
}

func formatMemories(events []models.MemoryEvent) (string, []string) {
	if len(events) == 0 {
		return "", nil
	}
	var b strings.Builder
	ids := make([]string, 0, len(events))
	for i, e := range events {
		line := e.Value
		if title := e.Metadata.Title; title != "" && title != e.Value {
			line = title + ": " + e.Value
		}
		fmt.Fprintf(&b, "\n[%d] (%s) %s", i+1, e.Type, models.TruncateRunes(line, 400))
		ids = append(ids, e.ID)
	}
	return b.String(), ids
}
