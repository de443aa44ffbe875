package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/raphaelgruber/omnimemory/internal/models"
)

// Task is one submitted request. All methods are safe for concurrent use.
type Task struct {
	ID      string
	Request models.TaskRequest

	ctx    context.Context
	cancel context.CancelCauseFunc
	done   chan struct{}
	stream *stream

	mu         sync.Mutex
	status     models.TaskStatus
	result     *models.TaskResult
	err        error
	submitted  time.Time
	startedAt  time.Time
	finishedAt time.Time
	stopCaller func() bool
}

func newTask(parent, caller context.Context, id string, req models.TaskRequest) *Task {
	ctx, cancel := context.WithCancelCause(parent)
	t := &Task{
		ID:        id,
		Request:   req,
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
		status:    models.TaskQueued,
		submitted: time.Now(),
	}
	if req.Options.Stream {
		t.stream = newStream(caller.Done())
	}
	return t
}

// Stream returns the event channel, or nil when streaming was not requested.
// The channel is closed after exactly one terminal event. Once the context
// passed to Submit is done, undelivered tokens are dropped so a consumer
// that stopped reading does not hold the stream open.
func (t *Task) Stream() <-chan StreamEvent {
	if t.stream == nil {
		return nil
	}
	return t.stream.out
}

// Done is closed when the task reaches a terminal state.
func (t *Task) Done() <-chan struct{} { return t.done }

// Status returns the current lifecycle state.
func (t *Task) Status() models.TaskStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// StartedAt returns when the task began running; zero while queued.
func (t *Task) StartedAt() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.startedAt
}

// FinishedAt returns when the task reached a terminal state.
func (t *Task) FinishedAt() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.finishedAt
}

// Result returns the outcome once the task is terminal.
func (t *Task) Result() (*models.TaskResult, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.result, t.err
}

// Wait blocks until the task is terminal or ctx is done. Giving up on the
// wait does not cancel the task.
func (t *Task) Wait(ctx context.Context) (*models.TaskResult, error) {
	select {
	case <-t.done:
		return t.Result()
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: wait for task %s: %w", models.ErrCancelled, t.ID, ctx.Err())
	}
}

// start moves a queued task to running. It fails when the task already
// ended (cancelled while queued).
func (t *Task) start() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status != models.TaskQueued {
		return false
	}
	t.status = models.TaskRunning
	t.startedAt = time.Now()
	return true
}

// emit forwards a token unless the task already ended.
func (t *Task) emit(token string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stream == nil || t.status.Terminal() {
		return
	}
	t.stream.push(StreamEvent{Kind: StreamToken, Token: token}, false)
}

// finish moves the task to a terminal state exactly once. It reports
// whether this call did the transition.
func (t *Task) finish(status models.TaskStatus, res *models.TaskResult, err error) bool {
	t.mu.Lock()
	if t.status.Terminal() {
		t.mu.Unlock()
		return false
	}
	t.status = status
	t.result = res
	t.err = err
	t.finishedAt = time.Now()
	if t.stream != nil {
		if status == models.TaskDone {
			t.stream.push(StreamEvent{Kind: StreamDone, Result: res}, false)
		} else {
			t.stream.push(StreamEvent{Kind: StreamError, Err: err}, status == models.TaskCancelled)
		}
	}
	stop := t.stopCaller
	t.mu.Unlock()

	if stop != nil {
		stop()
	}
	t.cancel(err)
	close(t.done)
	return true
}

func (t *Task) outcome() models.TaskOutcome {
	t.mu.Lock()
	defer t.mu.Unlock()
	o := models.TaskOutcome{
		TaskID:     t.ID,
		Kind:       t.Request.Kind,
		Prompt:     t.Request.Prompt,
		Status:     t.status,
		FinishedAt: t.finishedAt,
	}
	if t.result != nil {
		o.Provider = t.result.Provider
		o.Model = t.result.Model
		o.OutputLen = len([]rune(t.result.Text))
	}
	if t.err != nil {
		o.Error = t.err.Error()
	}
	return o
}
