// Package cmd provides the command-line interface for sitepipe.
//
// Configuration System:
//
//	Settings come from several sources with clear precedence:
//	1. Command-line flags (--port, --host, ...) - highest priority
//	2. Environment variables (SITEPIPE_SERVER_PORT, SITEPIPE_PATHS_BUILD, ...)
//	3. The configuration file (.sitepipe.yml, --config or SITEPIPE_CONFIG_FILE)
//	4. Built-in defaults - lowest priority
//
// With no configuration at all, the built-in defaults describe the whole
// pipeline, so "sitepipe build" works in any project that follows the
// source/ layout.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/sitepipe/internal/config"
	"github.com/conneroisu/sitepipe/internal/errors"
	"github.com/conneroisu/sitepipe/internal/logging"
	"github.com/conneroisu/sitepipe/internal/pipeline"
)

const defaultConfigFile = ".sitepipe.yml"

var (
	cfgFile string
	noColor bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "sitepipe",
	Short: "Static-site asset pipeline with a live-reload dev server",
	Long: `sitepipe turns the templates, stylesheets, scripts and images under
source/ into a deployable build/ directory, and serves it locally with
live reload while you work.

Every transform runs an external tool (sass, pug, esbuild, svgstore,
imagemin, cwebp, svgo); sitepipe decides what runs, in which order, and
what the browser should do afterwards.

Quick Start:
  sitepipe init --scaffold        Write .sitepipe.yml and a source/ tree
  sitepipe start                  Build, serve and watch
  sitepipe build                  Production build into build/
  sitepipe tasks                  Show the task graph
  sitepipe run style-build        Run a single task`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	return err
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .sitepipe.yml, can also use SITEPIPE_CONFIG_FILE env var)")
	rootCmd.PersistentFlags().StringP("log-level", "l", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "log format (text, json)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored status lines")

	bindRootFlags()
}

func bindRootFlags() {
	_ = viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format"))
}

// initConfig initializes the configuration system.
//
// Configuration file lookup (highest to lowest):
//  1. --config flag
//  2. SITEPIPE_CONFIG_FILE environment variable
//  3. .sitepipe.yml in the current directory
//
// A missing file is not an error; the defaults apply.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if envConfigFile := os.Getenv("SITEPIPE_CONFIG_FILE"); envConfigFile != "" {
		viper.SetConfigFile(envConfigFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".sitepipe")
	}

	// SITEPIPE_SERVER_PORT, SITEPIPE_PATHS_BUILD, ...
	viper.SetEnvPrefix("SITEPIPE")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// newLogger builds the structured logger from the log flags.
func newLogger() logging.Logger {
	level, err := logging.ParseLevel(viper.GetString("log.level"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v, using info\n", err)
	}

	return logging.NewLogger(&logging.LoggerConfig{
		Level:  level,
		Format: viper.GetString("log.format"),
		Output: os.Stderr,
	})
}

func newNotifier(cmd *cobra.Command) *logging.Notifier {
	return logging.NewNotifier(cmd.OutOrStdout(), !noColor)
}

// loadConfig loads the configuration, turning failures into an error with
// suggestions.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		path := viper.ConfigFileUsed()
		if path == "" {
			path = defaultConfigFile
		}
		return nil, errors.NewEnhancedError("Failed to load configuration: "+err.Error(), err,
			errors.ConfigurationSuggestions(err.Error(), path))
	}
	return cfg, nil
}

// session bundles what every pipeline command needs.
type session struct {
	cfg      *config.Config
	logger   logging.Logger
	notifier *logging.Notifier
	pipeline *pipeline.Pipeline
}

func newSession(cmd *cobra.Command, mutate func(*config.Config)) (*session, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if mutate != nil {
		mutate(cfg)
	}

	logger := newLogger()
	notifier := newNotifier(cmd)

	p, err := pipeline.New(cfg, logger, pipeline.WithNotifier(notifier))
	if err != nil {
		return nil, errors.Enhance(err, &errors.SuggestionContext{ConfigPath: viper.ConfigFileUsed()})
	}

	return &session{cfg: cfg, logger: logger, notifier: notifier, pipeline: p}, nil
}

// fail logs and reports err, then returns it with suggestions attached.
func (s *session) fail(ctx context.Context, err error) error {
	errors.NewErrorHandler(s.logger, s.notifier).Handle(ctx, err)

	tasks := make([]string, 0)
	for _, info := range s.pipeline.Tasks() {
		tasks = append(tasks, info.Name)
	}

	return errors.Enhance(err, &errors.SuggestionContext{
		ConfigPath: viper.ConfigFileUsed(),
		SourceDir:  s.cfg.Paths.Source,
		Port:       s.cfg.Server.Port,
		Tasks:      tasks,
	})
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
