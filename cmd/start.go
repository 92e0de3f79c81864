package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/conneroisu/sitepipe/internal/config"
)

var startCmd = &cobra.Command{
	Use:     "start",
	Aliases: []string{"serve", "dev"},
	Short:   "Build, serve and watch for changes",
	Long: `Run the development lifecycle:

  clean -> (asset-copy | style-build) -> (template-render | script-build) -> serve

Once the first build finishes, the dev server serves the build directory
and the source directory is watched. A stylesheet change rebuilds the
stylesheet and injects it without a page reload; other changes rebuild
their task and reload the page.

Press Ctrl+C to stop.

Examples:
  sitepipe start                   # Serve on localhost:8080
  sitepipe start --port 3000       # Serve on a different port
  sitepipe start --no-open         # Don't open the browser
  sitepipe start --no-live-reload  # Plain static server`,
	Args: cobra.NoArgs,
	RunE: runStart,
}

var startFlags *StandardFlags

func init() {
	rootCmd.AddCommand(startCmd)

	startFlags = AddStandardFlags(startCmd, "server")
}

func runStart(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	s, err := newSession(cmd, func(cfg *config.Config) {
		startFlags.ApplyServer(cmd, cfg)
	})
	if err != nil {
		return err
	}

	s.notifier.Info("Starting dev server for %s on %s", s.cfg.Paths.Build, s.cfg.Addr())

	run, err := s.pipeline.Start(ctx)
	if err != nil {
		if run != nil {
			printRun(cmd.OutOrStdout(), run, true)
		}
		return s.fail(ctx, err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), "Stopped")
	return nil
}
