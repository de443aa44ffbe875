package service

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the state of a background job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// maxFinishedJobs bounds how many finished jobs are remembered.
const maxFinishedJobs = 50

// Job is one run of a maintenance task (reindex, decay, compaction, prune).
type Job struct {
	ID          string     `json:"id"`
	Type        string     `json:"type"`
	Status      JobStatus  `json:"status"`
	Progress    int        `json:"progress"`
	Total       int        `json:"total"`
	Result      any        `json:"result,omitempty"`
	Error       string     `json:"error,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	mu sync.RWMutex
}

// JobFunc does the work of a job and reports progress through job.
type JobFunc func(ctx context.Context, job *Job) (any, error)

// JobManager runs maintenance jobs in the background and tracks them.
type JobManager struct {
	jobs   map[string]*Job
	mu     sync.RWMutex
	logger *slog.Logger
	wg     sync.WaitGroup
}

// NewJobManager creates a new job manager.
func NewJobManager(logger *slog.Logger) *JobManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &JobManager{jobs: make(map[string]*Job), logger: logger}
}

func (m *JobManager) create(jobType string) *Job {
	job := &Job{
		ID:        uuid.New().String()[:8], // Short ID for convenience
		Type:      jobType,
		Status:    JobStatusPending,
		StartedAt: time.Now(),
	}
	m.mu.Lock()
	m.jobs[job.ID] = job
	m.trimLocked()
	m.mu.Unlock()
	return job
}

// trimLocked drops the oldest finished jobs past maxFinishedJobs.
func (m *JobManager) trimLocked() {
	var finished []*Job
	for _, j := range m.jobs {
		if s := j.Snapshot(); s.CompletedAt != nil {
			finished = append(finished, j)
		}
	}
	if len(finished) <= maxFinishedJobs {
		return
	}
	slices.SortFunc(finished, func(a, b *Job) int { return a.StartedAt.Compare(b.StartedAt) })
	for _, j := range finished[:len(finished)-maxFinishedJobs] {
		delete(m.jobs, j.ID)
	}
}

// Run executes fn synchronously as a tracked job.
func (m *JobManager) Run(ctx context.Context, jobType string, fn JobFunc) (*Job, error) {
	job := m.create(jobType)
	err := m.execute(ctx, job, fn)
	return job, err
}

// Start executes fn in the background and returns the tracked job at once.
func (m *JobManager) Start(ctx context.Context, jobType string, fn JobFunc) *Job {
	job := m.create(jobType)
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		_ = m.execute(ctx, job, fn)
	}()
	return job
}

func (m *JobManager) execute(ctx context.Context, job *Job, fn JobFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("job panicked", "job_id", job.ID, "type", job.Type, "panic", r)
			err = fmt.Errorf("internal panic: %v", r)
			m.fail(job, err)
		}
	}()

	m.setRunning(job)
	result, err := fn(ctx, job)
	if err != nil {
		m.fail(job, err)
		return err
	}
	m.complete(job, result)
	return nil
}

// Wait blocks until every background job has finished.
func (m *JobManager) Wait() {
	m.wg.Wait()
}

// GetJob retrieves a job by ID.
func (m *JobManager) GetJob(id string) *Job {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.jobs[id]
}

// ListJobs returns all jobs, most recent first.
func (m *JobManager) ListJobs() []*Job {
	m.mu.RLock()
	defer m.mu.RUnlock()

	jobs := make([]*Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		jobs = append(jobs, job)
	}

	// Sort by start time descending (most recent first)
	slices.SortFunc(jobs, func(a, b *Job) int {
		return b.StartedAt.Compare(a.StartedAt)
	})

	return jobs
}

// UpdateProgress records how far a job has come.
func (j *Job) UpdateProgress(current, total int) {
	j.mu.Lock()
	j.Progress = current
	j.Total = total
	j.mu.Unlock()
}

func (m *JobManager) setRunning(job *Job) {
	job.mu.Lock()
	job.Status = JobStatusRunning
	job.mu.Unlock()
	m.logger.Debug("job started", "job_id", job.ID, "type", job.Type)
}

func (m *JobManager) complete(job *Job, result any) {
	job.mu.Lock()
	job.Status = JobStatusCompleted
	job.Result = result
	now := time.Now()
	job.CompletedAt = &now
	duration := now.Sub(job.StartedAt)
	job.mu.Unlock()

	m.logger.Info("job completed", "job_id", job.ID, "type", job.Type, "duration_ms", duration.Milliseconds())
}

func (m *JobManager) fail(job *Job, err error) {
	job.mu.Lock()
	job.Status = JobStatusFailed
	job.Error = err.Error()
	now := time.Now()
	job.CompletedAt = &now
	job.mu.Unlock()

	m.logger.Error("job failed", "job_id", job.ID, "type", job.Type, "error", err)
}

// Snapshot returns a thread-safe copy of job state.
func (j *Job) Snapshot() Job {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return Job{
		ID:          j.ID,
		Type:        j.Type,
		Status:      j.Status,
		Progress:    j.Progress,
		Total:       j.Total,
		Result:      j.Result,
		Error:       j.Error,
		StartedAt:   j.StartedAt,
		CompletedAt: j.CompletedAt,
	}
}
