package config

import (
	"fmt"
	"path/filepath"
	"strings"
)

var dangerousChars = []string{";", "&", "|", "$", "`", "(", ")", "<", ">", "\"", "'"}

// validateConfig validates configuration values for safety and correctness
func validateConfig(config *Config) error {
	if err := validatePathsConfig(&config.Paths); err != nil {
		return fmt.Errorf("paths config: %w", err)
	}

	if err := validateServerConfig(&config.Server); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := validateBuildConfig(&config.Build); err != nil {
		return fmt.Errorf("build config: %w", err)
	}

	if err := validateWatchConfig(&config.Watch); err != nil {
		return fmt.Errorf("watch config: %w", err)
	}

	return nil
}

// validatePathsConfig rejects layouts where cleaning the build directory
// would destroy sources or the working directory.
func validatePathsConfig(config *PathsConfig) error {
	if err := validatePath(config.Source); err != nil {
		return fmt.Errorf("invalid source path '%s': %w", config.Source, err)
	}
	if err := validatePath(config.Build); err != nil {
		return fmt.Errorf("invalid build path '%s': %w", config.Build, err)
	}

	build := filepath.Clean(config.Build)
	source := filepath.Clean(config.Source)

	if build == "." || filepath.IsAbs(build) {
		return fmt.Errorf("build path must be a relative subdirectory: %s", config.Build)
	}
	if build == source || isWithin(source, build) {
		return fmt.Errorf("build path %s must not contain the source path %s", config.Build, config.Source)
	}

	return nil
}

// validateServerConfig validates server configuration values
func validateServerConfig(config *ServerConfig) error {
	// Allow 0 for system-assigned ports in testing
	if config.Port < 0 || config.Port > 65535 {
		return fmt.Errorf("port %d is not in valid range 0-65535", config.Port)
	}

	if config.Host != "" {
		for _, char := range append(dangerousChars, "\\") {
			if strings.Contains(config.Host, char) {
				return fmt.Errorf("host contains dangerous character: %s", char)
			}
		}
	}

	return nil
}

// validateBuildConfig validates every transform task definition
func validateBuildConfig(config *BuildConfig) error {
	if config.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", config.Workers)
	}

	for _, name := range sortedKeys(config.Tasks) {
		if err := validateTaskConfig(name, config.Tasks[name]); err != nil {
			return fmt.Errorf("task %s: %w", name, err)
		}
	}

	return nil
}

func validateTaskConfig(name string, task TaskConfig) error {
	if name == "" || strings.ContainsAny(name, " \t\n/") {
		return fmt.Errorf("invalid task name %q", name)
	}

	if err := validatePath(task.Output); err != nil {
		return fmt.Errorf("invalid output '%s': %w", task.Output, err)
	}

	switch task.Tool {
	case ToolClean:
		return nil
	case ToolCopy:
		if len(task.Inputs) == 0 {
			return fmt.Errorf("copy task needs at least one input pattern")
		}
		if task.Base != "" {
			if err := validatePath(task.Base); err != nil {
				return fmt.Errorf("invalid base '%s': %w", task.Base, err)
			}
		}
		return nil
	case ToolCommand:
	default:
		return fmt.Errorf("unknown tool %q (expected %s, %s or %s)", task.Tool, ToolCommand, ToolCopy, ToolClean)
	}

	if len(task.Inputs) == 0 {
		return fmt.Errorf("command task needs at least one input pattern")
	}

	if task.Command == "" {
		return fmt.Errorf("command is required")
	}
	for _, char := range dangerousChars {
		if strings.Contains(task.Command, char) {
			return fmt.Errorf("command contains dangerous character: %s", char)
		}
	}

	switch task.Mode {
	case ModePerFile, ModeBatch:
	default:
		return fmt.Errorf("unknown mode %q (expected %s or %s)", task.Mode, ModePerFile, ModeBatch)
	}

	if task.Ext != "" && !strings.HasPrefix(task.Ext, ".") {
		return fmt.Errorf("ext must start with a dot: %s", task.Ext)
	}
	if task.Rename != "" && strings.ContainsAny(task.Rename, `/\`) {
		return fmt.Errorf("rename must be a file name: %s", task.Rename)
	}

	return nil
}

// validateWatchConfig validates watch bindings. Task references are checked
// later, when the task graph is built.
func validateWatchConfig(config *WatchConfig) error {
	if config.Debounce < 0 {
		return fmt.Errorf("debounce must not be negative")
	}

	for i, b := range config.Bindings {
		if b.Pattern == "" {
			return fmt.Errorf("binding %d: empty pattern", i)
		}
		if b.Task == "" {
			return fmt.Errorf("binding %d: empty task", i)
		}
		switch b.Reload {
		case ReloadInject, ReloadFull:
		default:
			return fmt.Errorf("binding %d: unknown reload mode %q", i, b.Reload)
		}
	}

	return nil
}

// validatePath validates a file path for security
func validatePath(path string) error {
	if path == "" {
		return fmt.Errorf("empty path")
	}

	cleanPath := filepath.Clean(path)

	if strings.Contains(cleanPath, "..") {
		return fmt.Errorf("path contains traversal: %s", path)
	}

	for _, char := range dangerousChars {
		if strings.Contains(cleanPath, char) {
			return fmt.Errorf("path contains dangerous character: %s", char)
		}
	}

	return nil
}

// isWithin reports whether path lies inside dir.
func isWithin(path, dir string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != "." && !strings.HasPrefix(rel, "..")
}

func sortedKeys(m map[string]TaskConfig) []string {
	c := &Config{Build: BuildConfig{Tasks: m}}
	return c.TaskNames()
}
