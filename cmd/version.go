package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/sitepipe/internal/version"
)

var (
	versionFormat   string
	versionShort    bool
	versionDetailed bool
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Long: `Print the sitepipe version. --detailed adds the commit, build time,
Go version and platform the binary was built with.

Examples:
  sitepipe version               # Show version
  sitepipe version --detailed    # Show detailed version info
  sitepipe version --format json # Output as JSON`,
	Args: cobra.NoArgs,
	RunE: runVersionCommand,
}

func init() {
	rootCmd.AddCommand(versionCmd)

	versionCmd.Flags().StringVarP(&versionFormat, "format", "f", "text", "Output format (text, json, yaml)")
	versionCmd.Flags().BoolVar(&versionShort, "short", false, "Show short version only")
	versionCmd.Flags().BoolVar(&versionDetailed, "detailed", false, "Show detailed version information")

	AddFlagValidation(versionCmd, "format", ValidateFormat("text", "json", "yaml"))
}

func runVersionCommand(cmd *cobra.Command, args []string) error {
	return outputVersion(cmd.OutOrStdout(), version.Get())
}

func outputVersion(w io.Writer, info *version.BuildInfo) error {
	switch versionFormat {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	case "yaml":
		return yaml.NewEncoder(w).Encode(info)
	case "text":
		switch {
		case versionShort:
			fmt.Fprintln(w, info.Version)
		case versionDetailed:
			fmt.Fprintln(w, info.Detailed())
		default:
			fmt.Fprintf(w, "sitepipe %s\n", info.String())
		}
		return nil
	default:
		return fmt.Errorf("unknown format %q (want text, json, yaml)", versionFormat)
	}
}
