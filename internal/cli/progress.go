package cli

import (
	"fmt"
	"strings"
	"time"

	"charm.land/bubbles/v2/progress"
	tea "charm.land/bubbletea/v2"

	"github.com/raphaelgruber/omnimemory/internal/pipeline"
	"github.com/raphaelgruber/omnimemory/internal/service"
)

const pollInterval = 200 * time.Millisecond

// tickMsg triggers polling the job status
type tickMsg time.Time

// progressModel is the bubbletea model for job progress.
type progressModel struct {
	job      *service.Job
	snap     service.Job
	cancel   func()
	progress progress.Model
	theme    Theme
	done     bool
	quitting bool
	err      error
}

func newProgressModel(job *service.Job, cancel func()) progressModel {
	prog := progress.New(
		progress.WithDefaultBlend(),
		progress.WithWidth(40),
	)

	return progressModel{
		job:      job,
		snap:     job.Snapshot(),
		cancel:   cancel,
		progress: prog,
		theme:    defaultTheme,
	}
}

// Init returns the initial command (start polling).
func (m progressModel) Init() tea.Cmd {
	return tea.Batch(
		tickCmd(),
		m.progress.Init(),
	)
}

// Update handles messages and returns the updated model.
func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyPressMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			m.cancel()
			return m, tea.Quit
		}

	case tickMsg:
		m.snap = m.job.Snapshot()
		switch m.snap.Status {
		case service.JobStatusCompleted:
			m.done = true
			return m, tea.Quit
		case service.JobStatusFailed:
			m.done = true
			m.err = fmt.Errorf("%s", m.snap.Error)
			return m, tea.Quit
		}
		return m, tickCmd()

	case progress.FrameMsg:
		var cmd tea.Cmd
		m.progress, cmd = m.progress.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View renders the progress display.
func (m progressModel) View() tea.View {
	return tea.NewView(m.renderContent())
}

func (m progressModel) renderContent() string {
	if m.done || m.quitting {
		return m.finalView()
	}

	var pct float64
	if m.snap.Total > 0 {
		pct = float64(m.snap.Progress) / float64(m.snap.Total)
	}

	status := m.theme.statusStyle().Render(fmt.Sprintf("[%s]", m.snap.Status))
	bar := m.progress.ViewAs(pct)
	counts := fmt.Sprintf("%d/%d events", m.snap.Progress, m.snap.Total)
	hint := m.theme.hintStyle().Render("Press q or Ctrl+C to stop")

	return fmt.Sprintf("%s %s %s\n%s\n", status, bar, counts, hint)
}

func (m progressModel) finalView() string {
	if m.quitting {
		return m.theme.hintStyle().Render(fmt.Sprintf("\nStopped after %d of %d events.\n", m.snap.Progress, m.snap.Total))
	}
	if m.err != nil {
		return m.theme.errorStyle().Render(fmt.Sprintf("\n✗ %s failed: %s\n", m.snap.Type, m.err))
	}
	return formatJobResult(m.theme, m.snap)
}

// formatJobResult renders a finished job for the terminal.
func formatJobResult(theme Theme, job service.Job) string {
	var b strings.Builder
	b.WriteString(theme.completedStyle().Render("✓ Completed") + "\n\n")
	switch r := job.Result.(type) {
	case pipeline.ReindexResult:
		fmt.Fprintf(&b, "  Events:     %d\n", r.Events)
		fmt.Fprintf(&b, "  Embeddings: %d\n", r.Embeddings)
		if r.Skipped > 0 {
			fmt.Fprintf(&b, "  Skipped:    %d\n", r.Skipped)
		}
		if r.Failed > 0 {
			b.WriteString(theme.errorStyle().Render(fmt.Sprintf("  Failed:     %d", r.Failed)) + "\n")
		}
	case service.CompactResult:
		if r.Skipped {
			fmt.Fprintf(&b, "  %s: %d events, below threshold\n", r.Period, r.Sources)
		} else {
			fmt.Fprintf(&b, "  %s: %d events -> summary %s\n", r.Period, r.Sources, r.SummaryEventID)
		}
	case map[string]int:
		for k, v := range r {
			fmt.Fprintf(&b, "  %s: %d\n", k, v)
		}
	}
	return b.String()
}

// tickCmd returns a command that sends a tick after the poll interval.
func tickCmd() tea.Cmd {
	return tea.Tick(pollInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// RunJobProgress runs the interactive progress UI for a background job.
// Quitting the UI calls cancel. Returns the job error, if any.
func RunJobProgress(job *service.Job, cancel func()) error {
	p := tea.NewProgram(newProgressModel(job, cancel))

	finalModel, err := p.Run()
	if err != nil {
		return fmt.Errorf("progress UI error: %w", err)
	}

	if m, ok := finalModel.(progressModel); ok && m.err != nil {
		return m.err
	}
	return nil
}
