package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/omnimemory/internal/service"
)

var reindexQuiet bool

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Regenerate the embeddings of every stored event",
	Long: `Drop and regenerate the chunk embeddings of every stored event.

Run this after switching embedding provider or model so stored vectors and
query vectors come from the same model. Progress is shown while the job
runs; q or Ctrl+C stops it.

Examples:
  omni reindex
  omni reindex --quiet`,
	Args: cobra.NoArgs,
	RunE: runReindex,
}

func init() {
	reindexCmd.Flags().BoolVarP(&reindexQuiet, "quiet", "q", false, "no progress display")
}

func runReindex(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	job := svc.Maintenance.Reindex(ctx)

	if reindexQuiet || jsonOut {
		svc.Jobs.Wait()
		return reportJob(cmd, job.Snapshot())
	}

	err := RunJobProgress(job, cancel)
	svc.Jobs.Wait()
	return err
}

// reportJob prints a finished job and turns a failed one into an error.
func reportJob(cmd *cobra.Command, snap service.Job) error {
	out := cmd.OutOrStdout()
	if jsonOut {
		if err := printJSON(out, snap); err != nil {
			return err
		}
	} else if snap.Status == service.JobStatusCompleted {
		fmt.Fprint(out, formatJobResult(defaultTheme, snap))
	}
	if snap.Status == service.JobStatusFailed {
		return fmt.Errorf("%s failed: %s", snap.Type, snap.Error)
	}
	return nil
}
