package cmd

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/sitepipe/internal/config"
)

var initCmd = &cobra.Command{
	Use:     "init [directory]",
	Aliases: []string{"i"},
	Short:   "Write a .sitepipe.yml with the default pipeline",
	Long: `Write a .sitepipe.yml describing the default pipeline, so its tasks,
tool arguments and watch bindings can be edited. Paths in the file use
the {source} and {build} tokens.

With --scaffold, also create the source/ layout with a starter stylesheet,
page template and script.

Examples:
  sitepipe init                 # .sitepipe.yml in the current directory
  sitepipe init my-site         # Initialize a new directory
  sitepipe init --scaffold      # Config plus source/ starter files
  sitepipe init --force         # Overwrite an existing .sitepipe.yml`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInit,
}

var (
	initForce    bool
	initScaffold bool
)

func init() {
	rootCmd.AddCommand(initCmd)

	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "Overwrite an existing configuration file")
	initCmd.Flags().BoolVar(&initScaffold, "scaffold", false, "Create the source/ directory layout and starter files")
}

func runInit(cmd *cobra.Command, args []string) error {
	projectDir := "."
	if len(args) > 0 {
		projectDir = args[0]
	}

	if err := os.MkdirAll(projectDir, 0o755); err != nil {
		return fmt.Errorf("failed to create project directory: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Initializing sitepipe project in %s\n", projectDir)

	written, err := writeConfigFile(projectDir, initForce)
	if err != nil {
		return fmt.Errorf("failed to create configuration file: %w", err)
	}
	if !written {
		fmt.Fprintln(out, "⚠ Configuration file already exists, skipping (use --force to overwrite)")
	}

	if initScaffold {
		if err := scaffoldSource(projectDir); err != nil {
			return fmt.Errorf("failed to create source layout: %w", err)
		}
	}

	fmt.Fprintln(out, "✓ Project initialized successfully!")
	fmt.Fprintln(out, "\nNext steps:")
	if projectDir != "." {
		fmt.Fprintln(out, "  1. cd "+projectDir)
	} else {
		fmt.Fprintln(out, "  1. Install sass, pug, esbuild, svgstore, imagemin and cwebp")
	}
	fmt.Fprintln(out, "  2. sitepipe start")

	return nil
}

// writeConfigFile writes the default configuration. It reports false when a
// file exists and overwrite is not set.
func writeConfigFile(projectDir string, overwrite bool) (bool, error) {
	configPath := filepath.Join(projectDir, defaultConfigFile)

	if _, err := os.Stat(configPath); err == nil && !overwrite {
		return false, nil
	}

	var buf bytes.Buffer
	buf.WriteString("# sitepipe configuration\n")
	buf.WriteString("# {source} and {build} expand to paths.source and paths.build.\n")

	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(config.Defaults()); err != nil {
		return false, err
	}
	if err := enc.Close(); err != nil {
		return false, err
	}

	return true, os.WriteFile(configPath, buf.Bytes(), 0o644)
}

var scaffoldFiles = map[string]string{
	"sass/style.scss": `$text: #222;

body {
  color: $text;
  font-family: "Inter", sans-serif;
}
`,
	"pug/pages/index.pug": `doctype html
html(lang="en")
  head
    meta(charset="utf-8")
    title Home
    link(rel="stylesheet" href="css/style.css")
  body
    h1 Hello
    script(src="js/index.js")
`,
	"js/index.js": `document.documentElement.classList.add("js");
`,
}

func scaffoldSource(projectDir string) error {
	source := filepath.Join(projectDir, config.Defaults().Paths.Source)

	dirs := []string{"sass", "pug/pages", "js", "img/sprite", "fonts"}
	for _, dir := range dirs {
		if err := os.MkdirAll(filepath.Join(source, dir), 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	for name, content := range scaffoldFiles {
		path := filepath.Join(source, name)
		if _, err := os.Stat(path); err == nil {
			continue
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", name, err)
		}
	}

	return nil
}
