package cmd

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/conneroisu/sitepipe/internal/pipeline"
	"github.com/conneroisu/sitepipe/internal/task"
)

var buildCmd = &cobra.Command{
	Use:     "build",
	Aliases: []string{"b"},
	Short:   "Run the production build",
	Long: `Clean the build directory and run every transform:

  clean
  -> asset-copy | style-build
  -> sprite-build | image-optimize | webp-convert
  -> template-render | script-build

Tasks on one line run in parallel. A failure stops the build after the
failing stage finishes; the command then exits non-zero.

Examples:
  sitepipe build
  sitepipe build --summary     # Print the result of every task`,
	Args: cobra.NoArgs,
	RunE: runBuild,
}

var buildSummary bool

func init() {
	rootCmd.AddCommand(buildCmd)

	buildCmd.Flags().BoolVarP(&buildSummary, "summary", "s", false, "Print the result of every task")
}

func runBuild(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	s, err := newSession(cmd, nil)
	if err != nil {
		return err
	}

	run, err := s.pipeline.Build(ctx)
	if run != nil {
		printRun(cmd.OutOrStdout(), run, buildSummary || err != nil)
	}
	if buildSummary {
		printMetrics(cmd.OutOrStdout(), s.pipeline.Metrics().Snapshot())
	}
	if err != nil {
		return s.fail(ctx, err)
	}

	return nil
}

// printRun prints a one-line summary and, when detailed, the result tree.
func printRun(w io.Writer, run *pipeline.Run, detailed bool) {
	status := "finished"
	if run.Err() != nil {
		status = "failed"
	}
	fmt.Fprintf(w, "%s %s %s in %s (run %s)\n",
		run.Lifecycle, status, countTasks(run.Result), run.Duration().Round(time.Millisecond), shortID(run.ID))

	if detailed {
		printResult(w, run.Result, 1)
	}
}

// printMetrics prints transform totals, e.g.
// "8 transforms: 7 ok, 1 failed (88% ok), average 12ms".
func printMetrics(w io.Writer, m task.MetricsSnapshot) {
	if m.TotalRuns == 0 {
		return
	}
	noun := "transforms"
	if m.TotalRuns == 1 {
		noun = "transform"
	}
	fmt.Fprintf(w, "%d %s: %d ok, %d failed (%.0f%% ok), average %s\n",
		m.TotalRuns, noun, m.SuccessfulRuns, m.FailedRuns, m.SuccessRate(), m.AverageDuration.Round(time.Millisecond))
}

func printResult(w io.Writer, r *task.Result, depth int) {
	mark := "✓"
	switch {
	case r.Skipped:
		mark = "-"
	case r.Failed():
		mark = "✗"
	}

	line := fmt.Sprintf("%s%s %s", strings.Repeat("  ", depth), mark, r.Name)
	if r.Kind == task.KindTransform && !r.Skipped {
		line += fmt.Sprintf(" (%s)", r.Duration.Round(time.Millisecond))
	}
	fmt.Fprintln(w, line)

	for _, c := range r.Children {
		printResult(w, c, depth+1)
	}
}

func countTasks(r *task.Result) string {
	n := len(r.Ran())
	if n == 1 {
		return "1 task"
	}
	return fmt.Sprintf("%d tasks", n)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
