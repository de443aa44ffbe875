package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/omnimemory/internal/service"
)

var compactDay string

var maintainCmd = &cobra.Command{
	Use:   "maintain <decay|compact|prune>",
	Short: "Run a maintenance job now",
	Long: `Run one of the scheduled maintenance jobs immediately.

  decay    delete events older than OMNI_DECAY_AFTER (pinned events stay)
  compact  summarize one day of events into a single summary event
  prune    trim the vector index back to its size limit

Compaction needs a configured LLM provider and targets yesterday unless
--day is given.

Examples:
  omni maintain decay
  omni maintain compact --day 2026-05-09
  omni maintain prune`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{service.JobDecay, service.JobCompact, service.JobPrune},
	RunE:      runMaintain,
}

func init() {
	maintainCmd.Flags().StringVar(&compactDay, "day", "", "day to compact (YYYY-MM-DD)")
}

func runMaintain(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	if args[0] == service.JobCompact && compactDay != "" {
		day, err := time.ParseInLocation(time.DateOnly, compactDay, time.Local)
		if err != nil {
			return fmt.Errorf("invalid --day %q: %w", compactDay, err)
		}
		res, err := svc.Maintenance.Compact(ctx, day)
		if err != nil {
			return err
		}
		return reportJob(cmd, service.Job{Type: service.JobCompact, Status: service.JobStatusCompleted, Result: res})
	}

	job, err := svc.Maintenance.RunNow(ctx, args[0])
	if job == nil {
		return err
	}
	return reportJob(cmd, job.Snapshot())
}
