package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/sitepipe/internal/pipeline"
)

var tasksCmd = &cobra.Command{
	Use:     "tasks",
	Aliases: []string{"list", "ls"},
	Short:   "List the task graph",
	Long: `List every task sitepipe knows: the build and start lifecycles, the
sequential and parallel groups, and the configured transform tasks.

Examples:
  sitepipe tasks              # Table view
  sitepipe tasks -o json      # JSON for scripts
  sitepipe tasks -o yaml`,
	Args: cobra.NoArgs,
	RunE: runTasks,
}

var tasksFlags *StandardFlags

func init() {
	rootCmd.AddCommand(tasksCmd)

	tasksFlags = AddStandardFlags(tasksCmd, "output")
}

func runTasks(cmd *cobra.Command, args []string) error {
	s, err := newSession(cmd, nil)
	if err != nil {
		return err
	}

	return outputTasks(cmd.OutOrStdout(), s.pipeline.Tasks(), tasksFlags.OutputFormat)
}

func outputTasks(w io.Writer, tasks []pipeline.TaskInfo, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(tasks)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(tasks); err != nil {
			return err
		}
		return enc.Close()
	case "table", "":
		return outputTasksTable(w, tasks)
	default:
		return fmt.Errorf("unknown format %q (want table, json, yaml)", format)
	}
}

func outputTasksTable(w io.Writer, tasks []pipeline.TaskInfo) error {
	title := cases.Title(language.English)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tKIND\tRUNS")
	for _, t := range tasks {
		runs := t.Description
		if len(t.Children) > 0 {
			sep := " -> "
			if t.Kind == "parallel" {
				sep = " | "
			}
			runs = strings.Join(t.Children, sep)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", t.Name, title.String(t.Kind), runs)
	}
	return tw.Flush()
}
