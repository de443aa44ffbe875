package cli

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/omnimemory/internal/models"
	"github.com/raphaelgruber/omnimemory/internal/pipeline"
)

var (
	trackTitle   string
	trackURL     string
	trackTags    []string
	trackMeta    []string
	trackContent string
	trackFile    string
)

var trackCmd = &cobra.Command{
	Use:   "track <type> [value]",
	Short: "Record an event in memory",
	Long: `Record an event: search, visit, mode_switch, bookmark, note, prefetch,
action, highlight, screenshot, task, agent or summary.

The event is auto-tagged, stored and embedded for semantic search.
Notes read their body from --content or --file; YAML frontmatter in the
body may set title and tags.

Examples:
  omni track search "surrealdb vector index"
  omni track visit https://go.dev/blog --title "The Go Blog"
  omni track bookmark https://pkg.go.dev --tag go,docs
  omni track note --file ~/notes/standup.md
  omni track action click --meta target=#submit`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runTrack,
}

func init() {
	trackCmd.Flags().StringVar(&trackTitle, "title", "", "event title")
	trackCmd.Flags().StringVar(&trackURL, "url", "", "related URL")
	trackCmd.Flags().StringSliceVarP(&trackTags, "tag", "t", nil, "tags, merged with the automatic ones")
	trackCmd.Flags().StringArrayVarP(&trackMeta, "meta", "m", nil, "extra metadata as key=value (repeatable)")
	trackCmd.Flags().StringVar(&trackContent, "content", "", "note body")
	trackCmd.Flags().StringVarP(&trackFile, "file", "f", "", "read the note body from a file")
}

func runTrack(cmd *cobra.Command, args []string) error {
	t, err := models.ParseEventType(args[0])
	if err != nil {
		return err
	}

	draft, err := buildDraft(t, args[1:])
	if err != nil {
		return err
	}

	res := svc.Pipeline.Process(cmd.Context(), draft)
	if !res.Success {
		return fmt.Errorf("track %s: %w", t, res.Err)
	}

	out := cmd.OutOrStdout()
	if jsonOut {
		return printJSON(out, res)
	}
	if res.Duplicate {
		fmt.Fprintln(out, defaultTheme.hintStyle().Render("Duplicate of "+res.EventID+", not stored again"))
		return nil
	}
	fmt.Fprintf(out, "%s %s (%d chunks embedded)\n",
		defaultTheme.completedStyle().Render("✓ Tracked"), res.EventID, len(res.EmbeddingIDs))
	return nil
}

// buildDraft assembles the event from positional args and flags.
func buildDraft(t models.EventType, rest []string) (pipeline.Draft, error) {
	meta, err := parseMeta(trackMeta)
	if err != nil {
		return pipeline.Draft{}, err
	}
	if trackTitle != "" {
		meta["title"] = trackTitle
	}
	if trackURL != "" {
		meta["url"] = trackURL
	}
	if len(trackTags) > 0 {
		meta["tags"] = trackTags
	}

	content := trackContent
	if trackFile != "" {
		data, err := os.ReadFile(trackFile)
		if err != nil {
			return pipeline.Draft{}, fmt.Errorf("read %s: %w", trackFile, err)
		}
		content = string(data)
	}
	if content != "" {
		meta["content"] = content
	}

	value := ""
	if len(rest) > 0 {
		value = rest[0]
	}
	if value == "" && t == models.EventNote {
		value = trackTitle
		if value == "" {
			value = models.TruncateRunes(strings.TrimSpace(content), 80)
		}
	}
	if strings.TrimSpace(value) == "" {
		return pipeline.Draft{}, fmt.Errorf("%w: a value is required for %s events", models.ErrValidation, t)
	}
	if (t == models.EventVisit || t == models.EventBookmark) && meta["url"] == nil {
		meta["url"] = value
	}
	return pipeline.Draft{Type: t, Value: value, Metadata: meta}, nil
}

// parseMeta turns key=value pairs into a metadata map. Integers, floats and
// booleans are stored typed.
func parseMeta(pairs []string) (map[string]any, error) {
	meta := make(map[string]any, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("%w: metadata must be key=value, got %q", models.ErrValidation, p)
		}
		meta[k] = typedValue(v)
	}
	return meta, nil
}

func typedValue(v string) any {
	if i, err := strconv.ParseInt(v, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(v); err == nil {
		return b
	}
	return v
}
