package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/omnimemory/internal/models"
)

var (
	eventsType   string
	eventsTags   []string
	eventsSince  string
	eventsUntil  string
	eventsPinned bool
	eventsLimit  int
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "List recent events",
	Long: `List recent events, newest first, with optional filters.

--since and --until take an RFC3339 timestamp or a duration back from now.

Examples:
  omni events
  omni events --type visit --since 24h
  omni events --tag golang --pinned`,
	Args: cobra.NoArgs,
	RunE: runEvents,
}

var tagsCmd = &cobra.Command{
	Use:   "tags",
	Short: "List all tags in use",
	Args:  cobra.NoArgs,
	RunE:  runTags,
}

func init() {
	eventsCmd.Flags().StringVarP(&eventsType, "type", "t", "", "filter by event type")
	eventsCmd.Flags().StringSliceVar(&eventsTags, "tag", nil, "events must carry all of these tags")
	eventsCmd.Flags().StringVar(&eventsSince, "since", "", "lower time bound")
	eventsCmd.Flags().StringVar(&eventsUntil, "until", "", "upper time bound")
	eventsCmd.Flags().BoolVar(&eventsPinned, "pinned", false, "only pinned events")
	eventsCmd.Flags().IntVarP(&eventsLimit, "limit", "n", 50, "max results")
}

func runEvents(cmd *cobra.Command, args []string) error {
	filter, err := eventFilter(time.Now())
	if err != nil {
		return err
	}

	events, err := svc.Events.GetEvents(cmd.Context(), filter)
	if err != nil {
		return fmt.Errorf("list events: %w", err)
	}

	out := cmd.OutOrStdout()
	if jsonOut {
		return printJSON(out, events)
	}
	if len(events) == 0 {
		fmt.Fprintln(out, "No events found.")
		return nil
	}

	heading(out, "Events (%d):", len(events))
	fmt.Fprintln(out)
	for i, e := range events {
		printEvent(out, i+1, e, fmt.Sprintf("score %.1f", e.Score))
	}
	return nil
}

func eventFilter(now time.Time) (models.EventFilter, error) {
	f := models.EventFilter{Tags: eventsTags, Limit: eventsLimit}
	if eventsType != "" {
		t, err := models.ParseEventType(eventsType)
		if err != nil {
			return f, err
		}
		f.Type = t
	}
	if eventsPinned {
		pinned := true
		f.Pinned = &pinned
	}
	var err error
	if f.Since, err = models.ParseTimeBound(eventsSince, now); err != nil {
		return f, err
	}
	if f.Until, err = models.ParseTimeBound(eventsUntil, now); err != nil {
		return f, err
	}
	return f, nil
}

func runTags(cmd *cobra.Command, args []string) error {
	tags, err := svc.Events.GetAllTags(cmd.Context())
	if err != nil {
		return fmt.Errorf("list tags: %w", err)
	}

	out := cmd.OutOrStdout()
	if jsonOut {
		if tags == nil {
			tags = []string{}
		}
		return printJSON(out, tags)
	}
	if len(tags) == 0 {
		fmt.Fprintln(out, "No tags found.")
		return nil
	}
	heading(out, "Tags (%d):", len(tags))
	for _, t := range tags {
		fmt.Fprintf(out, "- %s\n", t)
	}
	return nil
}

