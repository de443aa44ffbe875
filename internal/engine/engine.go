// Package engine runs AI tasks through a bounded FIFO queue: remote backend
// first, then the local provider chain.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/raphaelgruber/omnimemory/internal/config"
	"github.com/raphaelgruber/omnimemory/internal/llm"
	"github.com/raphaelgruber/omnimemory/internal/metrics"
	"github.com/raphaelgruber/omnimemory/internal/models"
)

// Defaults for Config.
const (
	DefaultConcurrency    = 1
	DefaultBackendTimeout = 30 * time.Second
	DefaultStreamTimeout  = 60 * time.Second
	DefaultTaskTimeout    = 2 * time.Minute
	DefaultIdleTimeout    = 45 * time.Second
	DefaultHistorySize    = 10
	DefaultQueueSize      = 256
	unloadTimeout         = 10 * time.Second
)

// DefaultRateLimits are requests per minute per task kind.
var DefaultRateLimits = map[models.TaskKind]int{
	models.TaskSearch:  20,
	models.TaskAgent:   15,
	models.TaskChat:    30,
	models.TaskSummary: 25,
}

// ErrNotRunning is returned by Submit outside Init/Shutdown.
var ErrNotRunning = errors.New("task engine not running")

// ErrQueueFull is returned when the queue cannot take another task.
var ErrQueueFull = errors.New("task queue full")

// State is the engine lifecycle state.
type State string

const (
	StateStopped  State = "stopped"
	StateIdle     State = "idle"
	StateBusy     State = "busy"
	StateUnloaded State = "unloaded"
)

// Completer produces completions. *llm.Chain and every llm.Provider satisfy it.
type Completer interface {
	Complete(ctx context.Context, req llm.Request) (llm.Response, error)
	Stream(ctx context.Context, req llm.Request, onToken llm.TokenFunc) (llm.Response, error)
}

// Config configures an Engine. Zero values use the defaults; a rate limit
// of zero or less disables limiting for that kind.
type Config struct {
	Concurrency    int
	BackendTimeout time.Duration
	StreamTimeout  time.Duration
	TaskTimeout    time.Duration
	IdleTimeout    time.Duration
	HistorySize    int
	QueueSize      int
	RateLimits     map[models.TaskKind]int
	Logger         *slog.Logger
	Metrics        *metrics.Collector
}

// ConfigFrom maps application config onto engine config.
func ConfigFrom(cfg config.Config, logger *slog.Logger, mc *metrics.Collector) Config {
	return Config{
		Concurrency:    cfg.EngineConcurrency,
		BackendTimeout: cfg.BackendTimeout,
		StreamTimeout:  cfg.StreamTimeout,
		IdleTimeout:    cfg.IdleTimeout,
		HistorySize:    cfg.HistorySize,
		Logger:         logger,
		Metrics:        mc,
	}
}

func (c *Config) applyDefaults() {
	if c.Concurrency <= 0 {
		c.Concurrency = DefaultConcurrency
	}
	if c.BackendTimeout <= 0 {
		c.BackendTimeout = DefaultBackendTimeout
	}
	if c.StreamTimeout <= 0 {
		c.StreamTimeout = DefaultStreamTimeout
	}
	if c.TaskTimeout <= 0 {
		c.TaskTimeout = DefaultTaskTimeout
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = DefaultIdleTimeout
	}
	if c.HistorySize <= 0 {
		c.HistorySize = DefaultHistorySize
	}
	if c.QueueSize <= 0 {
		c.QueueSize = DefaultQueueSize
	}
	if c.RateLimits == nil {
		c.RateLimits = DefaultRateLimits
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Engine schedules tasks. Construct with New, then Init before Submit.
type Engine struct {
	cfg      Config
	backend  llm.Provider
	local    Completer
	sem      *semaphore.Weighted
	limiters map[models.TaskKind]*rate.Limiter
	history  *History
	logger   *slog.Logger
	metrics  *metrics.Collector

	queue chan *Task
	wg    sync.WaitGroup

	mu        sync.Mutex
	ctx       context.Context
	stop      context.CancelFunc
	state     State
	tasks     map[string]*Task
	pending   int
	idleTimer *time.Timer
	idleGen   int
}

// New creates an engine. backend may be nil when no remote task backend is
// configured.
func New(backend llm.Provider, local Completer, cfg Config) *Engine {
	cfg.applyDefaults()
	limiters := make(map[models.TaskKind]*rate.Limiter, len(cfg.RateLimits))
	for kind, perMinute := range cfg.RateLimits {
		if perMinute > 0 {
			limiters[kind] = rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute)
		}
	}
	return &Engine{
		cfg:      cfg,
		backend:  backend,
		local:    local,
		sem:      semaphore.NewWeighted(int64(cfg.Concurrency)),
		limiters: limiters,
		history:  NewHistory(cfg.HistorySize),
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
		state:    StateStopped,
		tasks:    make(map[string]*Task),
	}
}

// Init starts the dispatcher.
func (e *Engine) Init(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateStopped {
		return nil
	}
	e.ctx, e.stop = context.WithCancel(context.Background())
	e.queue = make(chan *Task, e.cfg.QueueSize)
	e.state = StateIdle
	e.armIdleLocked()

	e.wg.Add(1)
	go e.dispatch(e.ctx, e.queue)

	e.logger.Info("task engine started", "concurrency", e.cfg.Concurrency, "backend", e.backend != nil)
	return nil
}

// Shutdown cancels every task and waits for workers to exit or ctx to end.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	if e.state == StateStopped {
		e.mu.Unlock()
		return nil
	}
	e.state = StateStopped
	e.stopIdleLocked()
	tasks := make([]*Task, 0, len(e.tasks))
	for _, t := range e.tasks {
		tasks = append(tasks, t)
	}
	stop := e.stop
	e.mu.Unlock()

	for _, t := range tasks {
		e.cancelTask(t, "engine shutdown")
	}
	stop()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		e.logger.Info("task engine stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("task engine shutdown: %w", ctx.Err())
	}
}

// State returns the lifecycle state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Pending returns how many tasks are queued or running.
func (e *Engine) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pending
}

// History returns the latest task outcomes, newest first.
func (e *Engine) History() []models.TaskOutcome { return e.history.List() }

// Submit validates req and queues it. An invalid request is returned as a
// task already in the error state, with a single Error stream event when
// streaming was requested. Cancelling ctx cancels the task.
func (e *Engine) Submit(ctx context.Context, req models.TaskRequest) (*Task, error) {
	if req.Kind == "" {
		req.Kind = models.TaskChat
	}
	id := uuid.New().String()

	if err := req.Validate(); err != nil {
		t := newTask(context.Background(), ctx, id, req)
		t.finish(models.TaskError, nil, err)
		return t, err
	}

	e.mu.Lock()
	if e.state == StateStopped {
		e.mu.Unlock()
		return nil, ErrNotRunning
	}
	t := newTask(e.ctx, ctx, id, req)
	t.mu.Lock()
	t.stopCaller = context.AfterFunc(ctx, func() { e.cancelTask(t, "caller cancelled") })
	t.mu.Unlock()
	select {
	case e.queue <- t:
	default:
		e.mu.Unlock()
		t.finish(models.TaskError, nil, ErrQueueFull)
		return t, ErrQueueFull
	}
	e.tasks[t.ID] = t
	e.pending++
	e.wakeLocked()
	e.mu.Unlock()

	e.logger.Debug("task queued", "task_id", t.ID, "kind", req.Kind, "tab_id", req.TabID)
	return t, nil
}

// Run submits req and waits for its result. Cancelling ctx cancels the task.
func (e *Engine) Run(ctx context.Context, req models.TaskRequest) (*models.TaskResult, error) {
	t, err := e.Submit(ctx, req)
	if err != nil {
		return nil, err
	}
	<-t.Done()
	return t.Result()
}

// Cancel cancels one task by id. It reports whether the task was still
// pending or running.
func (e *Engine) Cancel(taskID string) bool {
	e.mu.Lock()
	t, ok := e.tasks[taskID]
	e.mu.Unlock()
	return ok && e.cancelTask(t, "cancelled by id")
}

// CancelTab cancels the pending and running tasks owned by tabID, or every
// task when tabID is empty. It returns how many tasks it cancelled; a second
// call for the same tab returns 0.
func (e *Engine) CancelTab(tabID string) int {
	e.mu.Lock()
	var matched []*Task
	for _, t := range e.tasks {
		if tabID == "" || t.Request.TabID == tabID {
			matched = append(matched, t)
		}
	}
	e.mu.Unlock()

	n := 0
	for _, t := range matched {
		if e.cancelTask(t, "tab closed") {
			n++
		}
	}
	if n > 0 {
		e.logger.Info("tasks cancelled", "tab_id", tabID, "count", n)
	}
	return n
}

func (e *Engine) cancelTask(t *Task, reason string) bool {
	err := fmt.Errorf("%w: %s", models.ErrCancelled, reason)
	if !t.finish(models.TaskCancelled, nil, err) {
		return false
	}
	e.record(t)
	return true
}

// Touch signals user activity and restarts the idle countdown.
func (e *Engine) Touch() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StateIdle && e.pending == 0 {
		e.armIdleLocked()
	}
}

func (e *Engine) dispatch(ctx context.Context, queue <-chan *Task) {
	defer e.wg.Done()
	for {
		select {
		case <-ctx.Done():
			e.drain(queue)
			return
		case t := <-queue:
			if err := e.admit(t); err != nil {
				if t.finish(statusFor(err), nil, err) {
					e.record(t)
				}
				e.settle(t)
				continue
			}
			e.wg.Add(1)
			go func() {
				defer e.wg.Done()
				defer e.sem.Release(1)
				e.execute(t)
				e.settle(t)
			}()
		}
	}
}

// admit waits for the kind's rate limit and a concurrency slot.
func (e *Engine) admit(t *Task) error {
	if t.Status().Terminal() {
		return context.Cause(t.ctx)
	}
	if l, ok := e.limiters[t.Request.Kind]; ok {
		if err := l.Wait(t.ctx); err != nil {
			return cancelledError(err)
		}
	}
	if err := e.sem.Acquire(t.ctx, 1); err != nil {
		return cancelledError(err)
	}
	return nil
}

func (e *Engine) drain(queue <-chan *Task) {
	for {
		select {
		case t := <-queue:
			e.cancelTask(t, "engine shutdown")
			e.settle(t)
		default:
			return
		}
	}
}

func statusFor(err error) models.TaskStatus {
	if errors.Is(err, models.ErrCancelled) || errors.Is(err, context.Canceled) {
		return models.TaskCancelled
	}
	return models.TaskError
}

func (e *Engine) execute(t *Task) {
	if !t.start() {
		return
	}
	e.logger.Debug("task started", "task_id", t.ID, "kind", t.Request.Kind)

	ctx, cancel := context.WithTimeoutCause(t.ctx, e.cfg.TaskTimeout, models.ErrTimeout)
	defer cancel()

	res, err := e.complete(ctx, t)
	switch {
	case err == nil:
		res.Latency = time.Since(t.StartedAt())
		if t.finish(models.TaskDone, res, nil) {
			e.record(t)
		}
	case t.ctx.Err() != nil:
		e.cancelTask(t, "cancelled while running")
	case errors.Is(context.Cause(ctx), models.ErrTimeout):
		terr := fmt.Errorf("%w: task exceeded %s", models.ErrTimeout, e.cfg.TaskTimeout)
		if t.finish(models.TaskError, nil, terr) {
			e.record(t)
		}
	default:
		if t.finish(models.TaskError, nil, err) {
			e.record(t)
		}
	}
}

// complete tries the remote backend, then the local chain. Once tokens
// from a source have been emitted a failure is final.
func (e *Engine) complete(ctx context.Context, t *Task) (*models.TaskResult, error) {
	req := llm.Request{
		Kind:    t.Request.Kind,
		Prompt:  buildPrompt(t.Request),
		Options: t.Request.Options,
	}
	streaming := t.Request.Options.Stream

	emitted := false
	onToken := func(tok string) {
		emitted = true
		t.emit(tok)
	}

	if e.backend != nil {
		timeout := e.cfg.BackendTimeout
		if streaming {
			timeout = e.cfg.StreamTimeout
		}
		bctx, cancel := context.WithTimeout(ctx, timeout)
		resp, err := call(bctx, e.backend, req, streaming, onToken)
		cancel()
		if err == nil {
			if resp.Provider == "" {
				resp.Provider = e.backend.Name()
			}
			return e.result(t, resp), nil
		}
		if ctx.Err() != nil || emitted {
			return nil, err
		}
		e.logger.Warn("task backend unavailable, using local providers", "task_id", t.ID, "error", err)
	}

	if e.local == nil {
		return nil, fmt.Errorf("%w: no local providers configured", models.ErrAllProvidersFailed)
	}
	resp, err := call(ctx, e.local, req, streaming, onToken)
	if err != nil {
		return nil, err
	}
	if named, ok := e.local.(interface{ Name() string }); ok && resp.Provider == "" {
		resp.Provider = named.Name()
	}
	return e.result(t, resp), nil
}

func call(ctx context.Context, c Completer, req llm.Request, streaming bool, onToken llm.TokenFunc) (llm.Response, error) {
	if streaming {
		return c.Stream(ctx, req, onToken)
	}
	return c.Complete(ctx, req)
}

func (e *Engine) result(t *Task, resp llm.Response) *models.TaskResult {
	res := &models.TaskResult{
		Text:     resp.Text,
		Provider: resp.Provider,
		Model:    resp.Model,
		Usage:    resp.Usage,
	}
	if cites, ok := t.Request.Context["citations"].([]string); ok {
		res.Citations = cites
	}
	return res
}

// buildPrompt appends the request context, sorted by key, to the prompt.
func buildPrompt(req models.TaskRequest) string {
	if len(req.Context) == 0 {
		return req.Prompt
	}
	keys := make([]string, 0, len(req.Context))
	for k := range req.Context {
		if k == "citations" {
			continue
		}
		keys = append(keys, k)
	}
	if len(keys) == 0 {
		return req.Prompt
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(req.Prompt)
	b.WriteString("\n\nContext:\n")
	for _, k := range keys {
		fmt.Fprintf(&b, "%s: %v\n", k, req.Context[k])
	}
	return b.String()
}

// record updates metrics and history once per finished task.
func (e *Engine) record(t *Task) {
	o := t.outcome()
	e.history.Add(o)

	if started := t.StartedAt(); !started.IsZero() {
		e.metrics.RecordTiming(metrics.OpTask, o.FinishedAt.Sub(started))
	}
	switch o.Status {
	case models.TaskDone:
		e.metrics.Inc(metrics.CounterTasksDone)
		e.logger.Info("task done", "task_id", t.ID, "kind", o.Kind, "provider", o.Provider, "output_len", o.OutputLen)
	case models.TaskCancelled:
		e.metrics.Inc(metrics.CounterTasksCancelled)
		e.logger.Info("task cancelled", "task_id", t.ID, "kind", o.Kind)
	default:
		e.metrics.Inc(metrics.CounterTasksFailed)
		e.logger.Warn("task failed", "task_id", t.ID, "kind", o.Kind, "error", o.Error)
	}
}

// settle removes a task from the registry once the engine is done with it
// and starts the idle countdown when nothing is left.
func (e *Engine) settle(t *Task) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.tasks, t.ID)
	e.pending--
	if e.pending == 0 && e.state == StateBusy {
		e.state = StateIdle
		e.armIdleLocked()
	}
}

func (e *Engine) wakeLocked() {
	e.stopIdleLocked()
	if e.state == StateUnloaded {
		e.logger.Info("task engine waking")
	}
	e.state = StateBusy
}

func (e *Engine) armIdleLocked() {
	e.stopIdleLocked()
	gen := e.idleGen
	e.idleTimer = time.AfterFunc(e.cfg.IdleTimeout, func() { e.unload(gen) })
}

func (e *Engine) stopIdleLocked() {
	e.idleGen++
	if e.idleTimer != nil {
		e.idleTimer.Stop()
		e.idleTimer = nil
	}
}

// unload releases provider resources when the countdown that scheduled it
// is still current.
func (e *Engine) unload(gen int) {
	e.mu.Lock()
	if gen != e.idleGen || e.state != StateIdle || e.pending > 0 {
		e.mu.Unlock()
		return
	}
	e.state = StateUnloaded
	e.idleTimer = nil
	e.mu.Unlock()

	e.logger.Info("task engine idle, unloading")
	u, ok := e.local.(llm.Unloader)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), unloadTimeout)
	defer cancel()
	if err := u.Unload(ctx); err != nil {
		e.logger.Warn("unload failed", "error", err)
	}
}

// Summarize runs a summary task under the summary retry policy. It lets the
// engine serve as the compaction summarizer.
func (e *Engine) Summarize(ctx context.Context, text string) (string, error) {
	var out string
	res := RunWithRetry(ctx, PolicyFor(models.TaskSummary), func(ctx context.Context) error {
		r, err := e.Run(ctx, models.TaskRequest{Kind: models.TaskSummary, Prompt: text})
		if err != nil {
			return err
		}
		out = r.Text
		return nil
	})
	if !res.Success {
		return "", res.Err
	}
	return out, nil
}
