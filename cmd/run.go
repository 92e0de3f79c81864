package cmd

import (
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run <task>",
	Short: "Run a single task",
	Long: `Run one node of the task graph, with its children, but without the
rest of its lifecycle. Any task listed by "sitepipe tasks" can be run.

Running serve, or a task that includes it, keeps serving until Ctrl+C.

Examples:
  sitepipe run style-build       # Rebuild the stylesheet
  sitepipe run images            # Sprite, optimize and convert images
  sitepipe run sprite-optimize   # Optimize the sprite sources in place`,
	Args:              cobra.ExactArgs(1),
	ValidArgsFunction: completeTasks,
	RunE:              runRun,
}

var runSummary bool

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().BoolVarP(&runSummary, "summary", "s", false, "Print the result of every task")
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	s, err := newSession(cmd, nil)
	if err != nil {
		return err
	}

	run, err := s.pipeline.RunTask(ctx, args[0])
	if run != nil {
		printRun(cmd.OutOrStdout(), run, runSummary || err != nil)
	}
	if runSummary {
		printMetrics(cmd.OutOrStdout(), s.pipeline.Metrics().Snapshot())
	}
	if err != nil {
		return s.fail(ctx, err)
	}

	return nil
}

func completeTasks(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if len(args) > 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}

	s, err := newSession(cmd, nil)
	if err != nil {
		return nil, cobra.ShellCompDirectiveError
	}

	var names []string
	for _, info := range s.pipeline.Tasks() {
		names = append(names, info.Name+"\t"+info.Description)
	}
	return names, cobra.ShellCompDirectiveNoFileComp
}
