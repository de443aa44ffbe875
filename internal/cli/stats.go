package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/omnimemory/internal/app"
	"github.com/raphaelgruber/omnimemory/internal/metrics"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show storage, vector index and provider statistics",
	Long: `Show the active storage backend, event and vector counts, the embedding
and LLM provider chains, and timing statistics of this process.

Examples:
  omni stats
  omni stats --json`,
	Args: cobra.NoArgs,
	RunE: runStats,
}

func runStats(cmd *cobra.Command, args []string) error {
	stats, err := svc.Stats(cmd.Context())
	if err != nil {
		return fmt.Errorf("stats: %w", err)
	}

	out := cmd.OutOrStdout()
	if jsonOut {
		return printJSON(out, stats)
	}
	printStats(out, stats)
	return nil
}

func printStats(w io.Writer, s app.Stats) {
	heading(w, "Memory")
	fmt.Fprintf(w, "  Storage:    %s\n", s.Storage)
	fmt.Fprintf(w, "  Events:     %d\n", s.Events)
	fmt.Fprintf(w, "  Embeddings: %d stored, %d cached\n", s.Vectors.DurableCount, s.Vectors.CacheSize)
	if s.Vectors.Prunes > 0 {
		fmt.Fprintf(w, "  Pruned:     %d in %d runs, last %s\n",
			s.Vectors.Pruned, s.Vectors.Prunes, s.Vectors.LastPrune.Format("2006-01-02 15:04"))
	}

	fmt.Fprintln(w)
	heading(w, "Providers")
	fmt.Fprintf(w, "  Embedding: %s\n", strings.Join(s.EmbeddingProviders, " → "))
	if len(s.LLMProviders) > 0 {
		fmt.Fprintf(w, "  LLM:       %s\n", strings.Join(s.LLMProviders, " → "))
	}
	fmt.Fprintf(w, "  Engine:    %s (%d tasks in history)\n", s.EngineState, s.Tasks)

	fmt.Fprintln(w)
	printMetrics(w, s.Metrics)
}

// printMetrics displays in-process timing statistics.
func printMetrics(w io.Writer, snap metrics.Snapshot) {
	heading(w, "Timings (this process, %.1fs)", snap.UptimeSeconds)

	ops := []struct {
		name string
		op   *metrics.OperationSnapshot
	}{
		{"Embeddings", snap.Embedding},
		{"LLM Complete", snap.LLMComplete},
		{"LLM Stream", snap.LLMStream},
		{"DB Query", snap.DBQuery},
		{"Vector Search", snap.VectorSearch},
		{"Pipeline", snap.Pipeline},
		{"Tasks", snap.Task},
	}
	shown := false
	for _, o := range ops {
		if o.op == nil {
			continue
		}
		shown = true
		fmt.Fprintf(w, "  %s:\n", o.name)
		printOpStats(w, o.op)
		printTokenStats(w, o.op)
	}
	if !shown {
		fmt.Fprintln(w, defaultTheme.hintStyle().Render("  no operations recorded yet"))
	}

	if len(snap.Counters) > 0 {
		names := make([]string, 0, len(snap.Counters))
		for name := range snap.Counters {
			names = append(names, name)
		}
		sort.Strings(names)
		fmt.Fprintln(w, "  Counters:")
		for _, name := range names {
			fmt.Fprintf(w, "    %-24s %d\n", name, snap.Counters[name])
		}
	}
}

// printOpStats displays timing statistics for an operation.
func printOpStats(w io.Writer, op *metrics.OperationSnapshot) {
	fmt.Fprintf(w, "    Calls: %d, Total: %dms\n", op.Count, op.TotalTimeMs)
	fmt.Fprintf(w, "    Time: avg %.1fms, min %dms, max %dms\n",
		op.AvgTimeMs, op.MinTimeMs, op.MaxTimeMs)
}

// printTokenStats displays token statistics if available.
func printTokenStats(w io.Writer, op *metrics.OperationSnapshot) {
	if op.TotalInputTokens == nil || op.TotalOutputTokens == nil {
		return
	}
	fmt.Fprintf(w, "    Tokens In:  %d total", *op.TotalInputTokens)
	if op.AvgInputTokens != nil {
		fmt.Fprintf(w, ", avg %.0f", *op.AvgInputTokens)
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "    Tokens Out: %d total", *op.TotalOutputTokens)
	if op.AvgOutputTokens != nil {
		fmt.Fprintf(w, ", avg %.0f", *op.AvgOutputTokens)
	}
	fmt.Fprintln(w)
}
