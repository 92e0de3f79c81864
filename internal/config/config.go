// Package config provides configuration management for sitepipe using Viper
// for flexible loading from files, environment variables, and command-line
// flags.
//
// With no configuration file at all, the built-in defaults describe the
// complete pipeline: source/ and build/ trees, the nine transform tasks with
// their external tool invocations, the dev server on port 8080, and the four
// watch bindings. A .sitepipe.yml only needs to list what differs; defaults
// are registered per key, so overriding build.tasks.style-build.command keeps
// the default inputs and output of that task.
package config

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Tool kinds for a transform task.
const (
	ToolCommand = "command"
	ToolCopy    = "copy"
	ToolClean   = "clean"
)

// Invocation modes for command tools.
const (
	ModePerFile = "per-file"
	ModeBatch   = "batch"
)

// Reload modes for watch bindings.
const (
	ReloadInject = "inject"
	ReloadFull   = "full"
)

// Path tokens expanded in task inputs, bases and outputs.
const (
	SourceToken = "{source}"
	BuildToken  = "{build}"
)

type Config struct {
	Paths  PathsConfig  `yaml:"paths" mapstructure:"paths"`
	Server ServerConfig `yaml:"server" mapstructure:"server"`
	Build  BuildConfig  `yaml:"build" mapstructure:"build"`
	Watch  WatchConfig  `yaml:"watch" mapstructure:"watch"`
}

type PathsConfig struct {
	Source string `yaml:"source" mapstructure:"source"`
	Build  string `yaml:"build" mapstructure:"build"`
}

type ServerConfig struct {
	Host       string `yaml:"host" mapstructure:"host"`
	Port       int    `yaml:"port" mapstructure:"port"`
	Open       bool   `yaml:"open" mapstructure:"open"`
	CORS       bool   `yaml:"cors" mapstructure:"cors"`
	LiveReload bool   `yaml:"live_reload" mapstructure:"live_reload"`
}

type BuildConfig struct {
	Workers int                   `yaml:"workers" mapstructure:"workers"`
	Tasks   map[string]TaskConfig `yaml:"tasks" mapstructure:"tasks"`
}

// TaskConfig describes one transform task: where its inputs come from, where
// its outputs go, and which tool produces them.
type TaskConfig struct {
	Tool    string   `yaml:"tool" mapstructure:"tool"`
	Inputs  []string `yaml:"inputs,omitempty" mapstructure:"inputs"`
	Base    string   `yaml:"base,omitempty" mapstructure:"base"`
	Output  string   `yaml:"output" mapstructure:"output"`
	Command string   `yaml:"command,omitempty" mapstructure:"command"`
	Args    []string `yaml:"args,omitempty" mapstructure:"args"`
	Mode    string   `yaml:"mode,omitempty" mapstructure:"mode"`
	Ext     string   `yaml:"ext,omitempty" mapstructure:"ext"`
	Rename  string   `yaml:"rename,omitempty" mapstructure:"rename"`
	Stdout  bool     `yaml:"stdout,omitempty" mapstructure:"stdout"`
}

type WatchConfig struct {
	Debounce time.Duration   `yaml:"debounce" mapstructure:"debounce"`
	Bindings []BindingConfig `yaml:"bindings" mapstructure:"bindings"`
}

// BindingConfig binds a glob to the task that rebuilds its outputs.
type BindingConfig struct {
	Pattern string `yaml:"pattern" mapstructure:"pattern"`
	Task    string `yaml:"task" mapstructure:"task"`
	Reload  string `yaml:"reload" mapstructure:"reload"`
}

// Load reads the configuration from the global viper instance.
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom reads the configuration from v, registering the built-in defaults
// first.
func LoadFrom(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	config.expandPaths()

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// TaskNames returns the configured transform task names in sorted order.
func (c *Config) TaskNames() []string {
	names := make([]string, 0, len(c.Build.Tasks))
	for name := range c.Build.Tasks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Addr returns the host:port the dev server binds.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func (c *Config) expandPaths() {
	r := strings.NewReplacer(SourceToken, c.Paths.Source, BuildToken, c.Paths.Build)

	for name, task := range c.Build.Tasks {
		inputs := make([]string, len(task.Inputs))
		for i, in := range task.Inputs {
			inputs[i] = r.Replace(in)
		}
		task.Inputs = inputs
		task.Base = r.Replace(task.Base)
		task.Output = r.Replace(task.Output)
		if task.Tool == "" {
			task.Tool = ToolCommand
		}
		if task.Tool == ToolCommand && task.Mode == "" {
			task.Mode = ModePerFile
		}
		c.Build.Tasks[name] = task
	}

	for i, b := range c.Watch.Bindings {
		c.Watch.Bindings[i].Pattern = r.Replace(b.Pattern)
		if b.Reload == "" {
			c.Watch.Bindings[i].Reload = ReloadFull
		}
	}
}
