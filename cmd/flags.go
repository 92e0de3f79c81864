package cmd

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/conneroisu/sitepipe/internal/config"
)

// StandardFlags holds the values of the flag groups a command opted into.
type StandardFlags struct {
	Port         int
	Host         string
	NoOpen       bool
	NoLiveReload bool

	OutputFormat string
}

// AddStandardFlags registers the named flag groups ("server", "output") on
// cmd.
func AddStandardFlags(cmd *cobra.Command, groups ...string) *StandardFlags {
	flags := &StandardFlags{}
	for _, group := range groups {
		switch group {
		case "server":
			addServerFlags(cmd, flags)
		case "output":
			addOutputFlags(cmd, flags)
		}
	}
	return flags
}

func addServerFlags(cmd *cobra.Command, flags *StandardFlags) {
	cmd.Flags().IntVarP(&flags.Port, "port", "p", 8080, "Port to serve on")
	cmd.Flags().StringVar(&flags.Host, "host", "localhost", "Host to bind to")
	cmd.Flags().BoolVar(&flags.NoOpen, "no-open", false, "Don't open browser automatically")
	cmd.Flags().BoolVar(&flags.NoLiveReload, "no-live-reload", false, "Don't inject the live reload client")

	AddFlagValidation(cmd, "port", ValidatePort)
}

func addOutputFlags(cmd *cobra.Command, flags *StandardFlags) {
	cmd.Flags().StringVarP(&flags.OutputFormat, "output", "o", "table", "Output format (table|json|yaml)")

	AddFlagValidation(cmd, "output", ValidateFormat("table", "json", "yaml"))
}

// ApplyServer copies the server flags the user set onto cfg. Flags left at
// their defaults do not override the configuration file.
func (f *StandardFlags) ApplyServer(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("port") {
		cfg.Server.Port = f.Port
	}
	if cmd.Flags().Changed("host") {
		cfg.Server.Host = f.Host
	}
	if f.NoOpen {
		cfg.Server.Open = false
	}
	if f.NoLiveReload {
		cfg.Server.LiveReload = false
	}
}

// AddFlagValidation makes flagName reject values validator refuses, so a bad
// value fails while flags are parsed instead of deep inside a command.
func AddFlagValidation(cmd *cobra.Command, flagName string, validator func(string) error) {
	if f := cmd.Flags().Lookup(flagName); f != nil {
		f.Value = validatingValue{Value: f.Value, check: validator}
	}
}

type validatingValue struct {
	pflag.Value
	check func(string) error
}

func (v validatingValue) Set(val string) error {
	if err := v.check(val); err != nil {
		return err
	}
	return v.Value.Set(val)
}

// ValidatePort accepts 0 (any free port) through 65535.
func ValidatePort(portStr string) error {
	port, err := strconv.Atoi(portStr)
	switch {
	case err != nil:
		return fmt.Errorf("port %q is not a number", portStr)
	case port < 0 || port > 65535:
		return fmt.Errorf("port %d out of range 0-65535", port)
	}
	return nil
}

// ValidateFormat returns a validator accepting one of formats.
func ValidateFormat(formats ...string) func(string) error {
	return func(s string) error {
		if slices.Contains(formats, s) {
			return nil
		}
		return fmt.Errorf("unknown format %q (want %s)", s, strings.Join(formats, ", "))
	}
}
