package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/omnimemory/internal/models"
	"github.com/raphaelgruber/omnimemory/internal/service"
)

var (
	searchLimit         int
	searchMinSimilarity float64
	findLimit           int
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search memory by meaning",
	Long: `Search remembered events by semantic similarity.

Use 'find' for plain keyword matching and 'ask' for an AI answer.

Examples:
  omni search "that article about raft consensus"
  omni search "kubernetes networking" -n 20 --min-similarity 0.3`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

var findCmd = &cobra.Command{
	Use:   "find <keywords>",
	Short: "Search memory by keyword",
	Long: `Search remembered events by keyword. Title matches weigh ten times
more than matches in the value, tags or note body.

Examples:
  omni find surrealdb
  omni find "go generics" -n 5`,
	Args: cobra.ExactArgs(1),
	RunE: runFind,
}

func init() {
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", service.DefaultSearchLimit, "max results")
	searchCmd.Flags().Float64Var(&searchMinSimilarity, "min-similarity", 0, "drop matches below this similarity")
	findCmd.Flags().IntVarP(&findLimit, "limit", "n", service.DefaultSearchLimit, "max results")
}

func runSearch(cmd *cobra.Command, args []string) error {
	results, err := svc.Search.SemanticSearch(cmd.Context(), args[0], service.SemanticOptions{
		Limit:         searchLimit,
		MinSimilarity: searchMinSimilarity,
	})
	if err != nil {
		return fmt.Errorf("search: %w", err)
	}

	out := cmd.OutOrStdout()
	if jsonOut {
		return printJSON(out, results)
	}
	if len(results) == 0 {
		fmt.Fprintln(out, "No results found.")
		return nil
	}

	heading(out, "Found %d results:", len(results))
	fmt.Fprintln(out)
	for i, r := range results {
		printEvent(out, i+1, r.Event, fmt.Sprintf("%.3f", r.Similarity))
		if verbose && r.ChunkText != "" {
			fmt.Fprintf(out, "   » %s\n", models.TruncateRunes(r.ChunkText, 160))
		}
		fmt.Fprintln(out)
	}
	return nil
}

func runFind(cmd *cobra.Command, args []string) error {
	results, err := svc.Search.KeywordSearch(cmd.Context(), args[0], findLimit)
	if err != nil {
		return fmt.Errorf("find: %w", err)
	}

	out := cmd.OutOrStdout()
	if jsonOut {
		return printJSON(out, results)
	}
	if len(results) == 0 {
		fmt.Fprintln(out, "No results found.")
		return nil
	}

	heading(out, "Found %d results:", len(results))
	fmt.Fprintln(out)
	for i, r := range results {
		printEvent(out, i+1, r.Event, fmt.Sprintf("score %d", r.Score))
		fmt.Fprintln(out)
	}
	return nil
}

// printEvent renders one event as a numbered entry.
func printEvent(w io.Writer, n int, e models.MemoryEvent, score string) {
	label := e.Value
	if e.Metadata.Title != "" && e.Metadata.Title != e.Value {
		label = e.Metadata.Title
	}
	pin := ""
	if e.Metadata.Pinned {
		pin = " 📌"
	}
	fmt.Fprintf(w, "%d. %s [%s]%s %s\n", n, models.TruncateRunes(label, 100), e.Type, pin,
		defaultTheme.hintStyle().Render(score))
	if label != e.Value {
		fmt.Fprintf(w, "   %s\n", models.TruncateRunes(e.Value, 100))
	}
	fmt.Fprintf(w, "   %s  %s", e.ID, e.Time().Format(time.DateTime))
	if len(e.Metadata.Tags) > 0 {
		fmt.Fprintf(w, "  #%s", strings.Join(e.Metadata.Tags, " #"))
	}
	fmt.Fprintln(w)
}
