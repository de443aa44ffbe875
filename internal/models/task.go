package models

import (
	"fmt"
	"strings"
	"time"
)

// TaskKind classifies an AI task request.
type TaskKind string

const (
	TaskSearch  TaskKind = "search"
	TaskAgent   TaskKind = "agent"
	TaskChat    TaskKind = "chat"
	TaskSummary TaskKind = "summary"
)

// Valid reports whether k is a recognised task kind.
func (k TaskKind) Valid() bool {
	switch k {
	case TaskSearch, TaskAgent, TaskChat, TaskSummary:
		return true
	}
	return false
}

// LLMOptions are per-request overrides for the completion call.
type LLMOptions struct {
	Provider    string  `json:"provider,omitempty"`
	Model       string  `json:"model,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
	Stream      bool    `json:"stream,omitempty"`
}

// TaskRequest is a unit of AI work submitted to the task engine.
type TaskRequest struct {
	Kind    TaskKind       `json:"kind"`
	Prompt  string         `json:"prompt"`
	Context map[string]any `json:"context,omitempty"`
	Options LLMOptions     `json:"options,omitempty"`
	TabID   string         `json:"tab_id,omitempty"`
}

// Validate rejects requests that must never enter the queue.
func (r TaskRequest) Validate() error {
	if strings.TrimSpace(r.Prompt) == "" {
		return fmt.Errorf("%w: prompt is required", ErrValidation)
	}
	if r.Kind != "" && !r.Kind.Valid() {
		return fmt.Errorf("%w: unknown task kind %q", ErrValidation, r.Kind)
	}
	return nil
}

// Usage reports token consumption of a completion.
type Usage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

// TaskResult is the output of a completed task. Provider and Model name the
// backend that actually produced Text.
type TaskResult struct {
	Text      string        `json:"text"`
	Provider  string        `json:"provider"`
	Model     string        `json:"model"`
	Usage     *Usage        `json:"usage,omitempty"`
	Citations []string      `json:"citations,omitempty"`
	Latency   time.Duration `json:"latency"`
}

// TaskStatus is the lifecycle state of a task.
type TaskStatus string

const (
	TaskQueued    TaskStatus = "queued"
	TaskRunning   TaskStatus = "running"
	TaskDone      TaskStatus = "done"
	TaskCancelled TaskStatus = "cancelled"
	TaskError     TaskStatus = "error"
)

// Terminal reports whether no further transitions can happen.
func (s TaskStatus) Terminal() bool {
	return s == TaskDone || s == TaskCancelled || s == TaskError
}

// TaskOutcome is the compact history record of a finished task.
// It never carries the full output.
type TaskOutcome struct {
	TaskID     string     `json:"task_id"`
	Kind       TaskKind   `json:"kind"`
	Prompt     string     `json:"prompt"`
	Provider   string     `json:"provider,omitempty"`
	Model      string     `json:"model,omitempty"`
	OutputLen  int        `json:"output_len"`
	Status     TaskStatus `json:"status"`
	Error      string     `json:"error,omitempty"`
	FinishedAt time.Time  `json:"finished_at"`
}
