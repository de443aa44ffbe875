package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/omnimemory/internal/app"
	"github.com/raphaelgruber/omnimemory/internal/engine"
	"github.com/raphaelgruber/omnimemory/internal/models"
)

var (
	askLimit    int
	askNoStream bool
	askProvider string
	askModel    string
	askTab      string
)

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a question and get an answer from your memory",
	Long: `Ask a question about your own browsing history and notes.

The closest memories are handed to the model as context and cited in the
answer. Tokens are streamed as they arrive; Ctrl+C cancels the request.

The remote task backend (OMNI_BACKEND_URL) is tried first, then the local
providers in OMNI_LLM_PROVIDERS order.

Examples:
  omni ask "what did I read about raft last week?"
  omni ask "summarize my notes on kubernetes" --provider anthropic
  omni ask "which go blog posts did I bookmark?" --no-stream`,
	Args: cobra.ExactArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().IntVarP(&askLimit, "limit", "n", app.DefaultAskContext, "memories used as context")
	askCmd.Flags().BoolVar(&askNoStream, "no-stream", false, "print the answer when complete")
	askCmd.Flags().StringVar(&askProvider, "provider", "", "preferred local provider")
	askCmd.Flags().StringVar(&askModel, "model", "", "model override")
	askCmd.Flags().StringVar(&askTab, "tab", "cli", "tab id owning the task")
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	stream := !askNoStream && !jsonOut

	task, err := svc.Ask(ctx, app.AskRequest{
		Question: args[0],
		TabID:    askTab,
		Stream:   stream,
		Limit:    askLimit,
		Options:  models.LLMOptions{Provider: askProvider, Model: askModel},
	})
	if err != nil {
		return fmt.Errorf("ask: %w", err)
	}

	out := cmd.OutOrStdout()
	if !stream {
		res, err := task.Wait(ctx)
		if err != nil {
			return fmt.Errorf("ask: %w", err)
		}
		if jsonOut {
			return printJSON(out, res)
		}
		fmt.Fprintln(out, res.Text)
		printFooter(out, res)
		return nil
	}

	return renderStream(out, task.Stream())
}

// renderStream prints tokens as they arrive and the footer of the terminal
// event. Cancellation is reported, not returned as an error.
func renderStream(out io.Writer, events <-chan engine.StreamEvent) error {
	for ev := range events {
		switch ev.Kind {
		case engine.StreamToken:
			fmt.Fprint(out, ev.Token)
		case engine.StreamDone:
			if ev.Result != nil && !strings.HasSuffix(ev.Result.Text, "\n") {
				fmt.Fprintln(out)
			}
			printFooter(out, ev.Result)
		case engine.StreamError:
			fmt.Fprintln(out)
			if errors.Is(ev.Err, models.ErrCancelled) {
				fmt.Fprintln(out, defaultTheme.hintStyle().Render("Cancelled."))
				return nil
			}
			return fmt.Errorf("ask: %w", ev.Err)
		}
	}
	return nil
}

func printFooter(out io.Writer, res *models.TaskResult) {
	if res == nil {
		return
	}
	parts := []string{res.Provider}
	if res.Model != "" {
		parts = append(parts, res.Model)
	}
	if res.Latency > 0 {
		parts = append(parts, res.Latency.Round(10*time.Millisecond).String())
	}
	fmt.Fprintln(out, defaultTheme.hintStyle().Render("via "+strings.Join(parts, " · ")))
	if len(res.Citations) > 0 {
		fmt.Fprintln(out, defaultTheme.hintStyle().Render("Sources: "+strings.Join(res.Citations, ", ")))
	}
}
