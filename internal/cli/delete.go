package cli

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var (
	deleteForce bool
)

var deleteCmd = &cobra.Command{
	Use:   "delete <event-id>",
	Short: "Delete an event from memory",
	Long: `Delete an event from memory.

This also deletes its embeddings (cascade delete).
Requires confirmation unless --force is used.

Examples:
  omni delete 01JB3V9K6Q8N5W2E4R7T1Y0ZXA
  omni delete 01JB3V9K6Q8N5W2E4R7T1Y0ZXA --force`,
	Args: cobra.ExactArgs(1),
	RunE: runDelete,
}

func init() {
	deleteCmd.Flags().BoolVarP(&deleteForce, "force", "f", false, "skip confirmation")
}

func runDelete(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	e, err := svc.Events.GetEvent(ctx, args[0])
	if err != nil {
		return fmt.Errorf("get event: %w", err)
	}

	if !deleteForce {
		fmt.Fprintf(out, "About to delete: %s [%s] (%s)\n", e.Value, e.Type, e.ID)
		fmt.Fprint(out, "\nContinue? [y/N]: ")

		reader := bufio.NewReader(cmd.InOrStdin())
		response, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("read input: %w", err)
		}
		response = strings.TrimSpace(strings.ToLower(response))

		if response != "y" && response != "yes" {
			fmt.Fprintln(out, "Cancelled.")
			return nil
		}
	}

	deleted, err := svc.Events.DeleteEvent(ctx, e.ID)
	if err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	if !deleted {
		return fmt.Errorf("event not found or already deleted")
	}

	fmt.Fprintf(out, "Deleted: %s\n", e.ID)
	return nil
}
