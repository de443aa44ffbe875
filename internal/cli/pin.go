package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var unpin bool

var pinCmd = &cobra.Command{
	Use:   "pin <event-id>",
	Short: "Pin an event so decay and compaction keep it",
	Long: `Pin an event. Pinned events survive the decay sweep and are never
compacted into a summary. Use --unpin to release it.

Examples:
  omni pin 01JB3V9K6Q8N5W2E4R7T1Y0ZXA
  omni pin 01JB3V9K6Q8N5W2E4R7T1Y0ZXA --unpin`,
	Args: cobra.ExactArgs(1),
	RunE: runPin,
}

func init() {
	pinCmd.Flags().BoolVar(&unpin, "unpin", false, "remove the pin")
}

func runPin(cmd *cobra.Command, args []string) error {
	e, err := svc.Events.UpdateEventMetadata(cmd.Context(), args[0], map[string]any{"pinned": !unpin})
	if err != nil {
		return fmt.Errorf("pin: %w", err)
	}

	out := cmd.OutOrStdout()
	if jsonOut {
		return printJSON(out, e)
	}
	verb := "Pinned"
	if unpin {
		verb = "Unpinned"
	}
	fmt.Fprintf(out, "%s %s\n", defaultTheme.completedStyle().Render("✓ "+verb), e.ID)
	return nil
}
