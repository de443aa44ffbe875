package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/raphaelgruber/omnimemory/internal/config"
	"github.com/raphaelgruber/omnimemory/internal/models"
	"github.com/raphaelgruber/omnimemory/internal/pipeline"
)

// Job types run by Maintenance.
const (
	JobDecay   = "decay"
	JobCompact = "compact"
	JobPrune   = "prune"
	JobReindex = "reindex"
)

const (
	compactLineRunes = 200
	compactMaxLines  = 300
	compactScanLimit = 10_000
	pruneInterval    = 10 * time.Minute
)

// EventMaintainer is the part of the event store maintenance needs.
type EventMaintainer interface {
	GetEvents(ctx context.Context, f models.EventFilter) ([]models.MemoryEvent, error)
	DeleteEvent(ctx context.Context, id string) (bool, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time, keepPinned bool) (int, error)
}

// EventProcessor runs drafts through the pipeline. *pipeline.Pipeline implements it.
type EventProcessor interface {
	Process(ctx context.Context, d pipeline.Draft) pipeline.Result
	Reindex(ctx context.Context, progress pipeline.ReindexProgress) (pipeline.ReindexResult, error)
}

// VectorPruner bounds the vector index. *vectorindex.Index implements it.
type VectorPruner interface {
	Prune(ctx context.Context) (int, error)
}

// Summarizer condenses text with a language model.
type Summarizer interface {
	Summarize(ctx context.Context, text string) (string, error)
}

// MaintenanceConfig tunes the scheduled jobs.
type MaintenanceConfig struct {
	DecayAfter       time.Duration
	DecayInterval    time.Duration
	CompactThreshold int
	KeepPinned       bool
}

// MaintenanceConfigFrom extracts the schedule settings from the application config.
func MaintenanceConfigFrom(cfg config.Config) MaintenanceConfig {
	return MaintenanceConfig{
		DecayAfter:       cfg.DecayAfter,
		DecayInterval:    cfg.DecayInterval,
		CompactThreshold: cfg.CompactThreshold,
		KeepPinned:       cfg.DecayKeepPinned,
	}
}

// CompactResult reports one compaction run.
type CompactResult struct {
	Period         string `json:"period"`
	Sources        int    `json:"sources"`
	SummaryEventID string `json:"summary_event_id,omitempty"`
	Skipped        bool   `json:"skipped,omitempty"`
}

// Maintenance owns the periodic decay, compaction and prune jobs.
type Maintenance struct {
	events     EventMaintainer
	processor  EventProcessor
	pruner     VectorPruner
	summarizer Summarizer
	jobs       *JobManager
	cfg        MaintenanceConfig
	logger     *slog.Logger
	now        func() time.Time

	scheduler gocron.Scheduler
}

// NewMaintenance creates the maintenance service. summarizer may be nil,
// which disables compaction.
func NewMaintenance(events EventMaintainer, processor EventProcessor, pruner VectorPruner, summarizer Summarizer, jobs *JobManager, cfg MaintenanceConfig, logger *slog.Logger) *Maintenance {
	if logger == nil {
		logger = slog.Default()
	}
	if jobs == nil {
		jobs = NewJobManager(logger)
	}
	return &Maintenance{
		events:     events,
		processor:  processor,
		pruner:     pruner,
		summarizer: summarizer,
		jobs:       jobs,
		cfg:        cfg,
		logger:     logger,
		now:        time.Now,
	}
}

// Jobs returns the job manager tracking maintenance runs.
func (m *Maintenance) Jobs() *JobManager { return m.jobs }

// Init registers the scheduled jobs and starts the scheduler.
func (m *Maintenance) Init(ctx context.Context) error {
	s, err := gocron.NewScheduler(gocron.WithLocation(time.Local))
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}

	if m.cfg.DecayAfter > 0 && m.cfg.DecayInterval > 0 {
		if _, err := s.NewJob(
			gocron.DurationJob(m.cfg.DecayInterval),
			gocron.NewTask(func() { m.runScheduled(JobDecay, m.decayJob) }),
			gocron.WithName(JobDecay),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		); err != nil {
			return fmt.Errorf("schedule decay: %w", err)
		}
	}

	if m.summarizer != nil && m.cfg.CompactThreshold > 0 {
		if _, err := s.NewJob(
			gocron.DailyJob(1, gocron.NewAtTimes(gocron.NewAtTime(0, 15, 0))),
			gocron.NewTask(func() { m.runScheduled(JobCompact, m.compactJob) }),
			gocron.WithName(JobCompact),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		); err != nil {
			return fmt.Errorf("schedule compaction: %w", err)
		}
	}

	if m.pruner != nil {
		if _, err := s.NewJob(
			gocron.DurationJob(pruneInterval),
			gocron.NewTask(func() { m.runScheduled(JobPrune, m.pruneJob) }),
			gocron.WithName(JobPrune),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		); err != nil {
			return fmt.Errorf("schedule prune: %w", err)
		}
	}

	s.Start()
	m.scheduler = s
	m.logger.Info("maintenance scheduler started", "jobs", len(s.Jobs()))
	return nil
}

// Shutdown stops the scheduler and waits for running jobs.
func (m *Maintenance) Shutdown(ctx context.Context) error {
	if m.scheduler != nil {
		if err := m.scheduler.Shutdown(); err != nil {
			return fmt.Errorf("stop scheduler: %w", err)
		}
	}
	m.jobs.Wait()
	return nil
}

func (m *Maintenance) runScheduled(jobType string, fn JobFunc) {
	_, _ = m.jobs.Run(context.Background(), jobType, fn)
}

// Decay deletes events older than DecayAfter together with their embeddings.
func (m *Maintenance) Decay(ctx context.Context) (int, error) {
	if m.cfg.DecayAfter <= 0 {
		return 0, nil
	}
	cutoff := m.now().Add(-m.cfg.DecayAfter)
	n, err := m.events.DeleteOlderThan(ctx, cutoff, m.cfg.KeepPinned)
	if err != nil {
		return 0, fmt.Errorf("decay: %w", err)
	}
	if n > 0 {
		m.logger.Info("decayed old events", "deleted", n, "cutoff", cutoff.Format(time.RFC3339))
	}
	return n, nil
}

// RunNow runs one maintenance job synchronously as a tracked job. Compact
// targets yesterday.
func (m *Maintenance) RunNow(ctx context.Context, jobType string) (*Job, error) {
	var fn JobFunc
	switch jobType {
	case JobDecay:
		fn = m.decayJob
	case JobCompact:
		if m.summarizer == nil {
			return nil, fmt.Errorf("%w: compaction needs an LLM provider", models.ErrValidation)
		}
		fn = m.compactJob
	case JobPrune:
		if m.pruner == nil {
			return nil, fmt.Errorf("%w: no vector index to prune", models.ErrValidation)
		}
		fn = m.pruneJob
	default:
		return nil, fmt.Errorf("%w: unknown job %q", models.ErrValidation, jobType)
	}
	return m.jobs.Run(ctx, jobType, fn)
}

func (m *Maintenance) decayJob(ctx context.Context, _ *Job) (any, error) {
	n, err := m.Decay(ctx)
	return map[string]int{"deleted": n}, err
}

func (m *Maintenance) pruneJob(ctx context.Context, _ *Job) (any, error) {
	n, err := m.pruner.Prune(ctx)
	return map[string]int{"pruned": n}, err
}

func (m *Maintenance) compactJob(ctx context.Context, _ *Job) (any, error) {
	return m.Compact(ctx, m.now().AddDate(0, 0, -1))
}

// Compact replaces the unpinned events of day with one summary event when
// there are at least CompactThreshold of them. Summary events are never
// compacted again.
func (m *Maintenance) Compact(ctx context.Context, day time.Time) (CompactResult, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	end := start.AddDate(0, 0, 1)
	res := CompactResult{Period: start.Format(time.DateOnly)}

	if m.summarizer == nil {
		res.Skipped = true
		return res, nil
	}

	unpinned := false
	events, err := m.events.GetEvents(ctx, models.EventFilter{
		Since:  start.UnixMilli(),
		Until:  end.UnixMilli() - 1,
		Pinned: &unpinned,
		Limit:  compactScanLimit,
	})
	if err != nil {
		return res, fmt.Errorf("load events for %s: %w", res.Period, err)
	}

	sources := events[:0]
	for _, e := range events {
		if e.Type != models.EventSummary {
			sources = append(sources, e)
		}
	}
	res.Sources = len(sources)
	if len(sources) < max(m.cfg.CompactThreshold, 1) {
		res.Skipped = true
		return res, nil
	}

	summary, err := m.summarizer.Summarize(ctx, compactPrompt(res.Period, sources))
	if err != nil {
		return res, fmt.Errorf("summarize %s: %w", res.Period, err)
	}

	ids := make([]string, len(sources))
	for i, e := range sources {
		ids[i] = e.ID
	}
	out := m.processor.Process(ctx, pipeline.Draft{
		Type:  models.EventSummary,
		Value: strings.TrimSpace(summary),
		Metadata: map[string]any{
			"title":      "Activity summary " + res.Period,
			"period":     res.Period,
			"source_ids": ids,
		},
	})
	if !out.Success {
		return res, fmt.Errorf("save summary for %s: %w", res.Period, out.Err)
	}
	res.SummaryEventID = out.EventID

	for _, id := range ids {
		if _, err := m.events.DeleteEvent(ctx, id); err != nil {
			m.logger.Warn("compaction: delete source failed", "event_id", id, "error", err)
		}
	}
	m.logger.Info("compacted events", "period", res.Period, "sources", len(ids), "summary_event_id", out.EventID)
	return res, nil
}

func compactPrompt(period string, events []models.MemoryEvent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Summarize this browsing activity from %s in a few short paragraphs. "+
		"Group related items and keep names, topics and URLs that matter.\n\n", period)
	for i, e := range events {
		if i == compactMaxLines {
			fmt.Fprintf(&b, "... and %d more\n", len(events)-i)
			break
		}
		line := e.Value
		if e.Metadata.Title != "" && e.Metadata.Title != e.Value {
			line = e.Metadata.Title + ": " + line
		}
		fmt.Fprintf(&b, "- [%s] %s\n", e.Type, models.TruncateRunes(line, compactLineRunes))
	}
	return b.String()
}

// Reindex starts a background reindex and returns its job.
func (m *Maintenance) Reindex(ctx context.Context) *Job {
	return m.jobs.Start(ctx, JobReindex, func(ctx context.Context, job *Job) (any, error) {
		return m.processor.Reindex(ctx, job.UpdateProgress)
	})
}
