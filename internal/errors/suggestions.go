package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorSuggestion represents a suggestion for fixing an error
type ErrorSuggestion struct {
	Title       string
	Description string
	Command     string
	Example     string
}

// SuggestionContext provides context for generating suggestions
type SuggestionContext struct {
	ConfigPath string
	SourceDir  string
	Port       int
	Tasks      []string
}

// installHints maps the default external tools to the usual way of
// installing them.
var installHints = map[string]string{
	"sass":     "npm install --global sass",
	"pug":      "npm install --global pug-cli",
	"esbuild":  "npm install --global esbuild",
	"svgstore": "npm install --global svgstore-cli",
	"svgo":     "npm install --global svgo",
	"imagemin": "npm install --global imagemin-cli",
	"cwebp":    "apt install webp (or brew install webp)",
}

// Suggest returns suggestions for a pipeline failure, based on the code of
// the first PipelineError in the chain. Errors without a known code get no
// suggestions.
func Suggest(err error, ctx *SuggestionContext) []ErrorSuggestion {
	if ctx == nil {
		ctx = &SuggestionContext{}
	}

	var pe *PipelineError
	if !errors.As(err, &pe) {
		return nil
	}

	switch pe.Code {
	case ErrCodeToolNotFound:
		return ToolNotFoundSuggestions(pe)
	case ErrCodePortInUse:
		return PortInUseSuggestions(ctx.Port)
	case ErrCodeSourceMissing:
		return SourceMissingSuggestions(ctx.SourceDir)
	case ErrCodeTaskNotFound:
		return TaskNotFoundSuggestions(pe, ctx)
	case ErrCodeConfigInvalid, ErrCodeInvalidCommand, ErrCodeInvalidGlob:
		return ConfigurationSuggestions(pe.Error(), ctx.ConfigPath)
	}
	return nil
}

// ToolNotFoundSuggestions suggests installing the missing command.
func ToolNotFoundSuggestions(pe *PipelineError) []ErrorSuggestion {
	command, _, _ := strings.Cut(pe.Message, " ")

	suggestions := []ErrorSuggestion{
		{
			Title:       "Install " + command,
			Description: fmt.Sprintf("Task %s runs %s, which is not on your PATH", pe.Task, command),
		},
	}
	if hint, ok := installHints[command]; ok {
		suggestions[0].Command = hint
	}

	suggestions = append(suggestions, ErrorSuggestion{
		Title:       "Use a different command",
		Description: "Point the task at another executable in your config",
		Example:     fmt.Sprintf("build:\n  tasks:\n    %s:\n      command: ./node_modules/.bin/%s", pe.Task, command),
	})

	return suggestions
}

// PortInUseSuggestions suggests ways around a busy dev server port.
func PortInUseSuggestions(port int) []ErrorSuggestion {
	suggestions := []ErrorSuggestion{
		{
			Title:       "Use a different port",
			Description: "Start the dev server on a free port",
			Command:     fmt.Sprintf("sitepipe start --port %d", port+1),
		},
	}

	if port > 0 {
		suggestions = append(suggestions, ErrorSuggestion{
			Title:       "Find the process using the port",
			Description: fmt.Sprintf("Port %d is already being used by another process", port),
			Command:     fmt.Sprintf("lsof -i :%d", port),
		})
	}

	if port > 0 && port < 1024 {
		suggestions = append(suggestions, ErrorSuggestion{
			Title:       "Use unprivileged port",
			Description: "Ports below 1024 require root privileges",
			Command:     "sitepipe start --port 8080",
		})
	}

	return suggestions
}

// SourceMissingSuggestions suggests creating the source tree.
func SourceMissingSuggestions(sourceDir string) []ErrorSuggestion {
	if sourceDir == "" {
		sourceDir = "source"
	}

	return []ErrorSuggestion{
		{
			Title:       "Create the source directory",
			Description: "The pipeline reads templates, styles, scripts and images from " + sourceDir,
			Command:     fmt.Sprintf("mkdir -p %[1]s/sass %[1]s/pug/pages %[1]s/js %[1]s/img", sourceDir),
		},
		{
			Title:       "Run from the project root",
			Description: "Paths in the configuration are relative to the working directory",
		},
	}
}

// TaskNotFoundSuggestions lists the known tasks and a close match, if any.
func TaskNotFoundSuggestions(pe *PipelineError, ctx *SuggestionContext) []ErrorSuggestion {
	suggestions := []ErrorSuggestion{
		{
			Title:       "List available tasks",
			Description: "See every task and lifecycle the pipeline knows about",
			Command:     "sitepipe tasks",
		},
	}

	name := pe.Task
	if name == "" {
		name = strings.Trim(strings.TrimPrefix(pe.Message, "unknown task "), `"`)
	}

	for _, t := range ctx.Tasks {
		if name != "" && (strings.Contains(t, name) || strings.Contains(name, t)) {
			suggestions = append(suggestions, ErrorSuggestion{
				Title:       "Did you mean '" + t + "'?",
				Description: "Similar task found",
				Command:     "sitepipe run " + t,
			})
			break
		}
	}

	return suggestions
}

// ConfigurationSuggestions generates suggestions for configuration issues
func ConfigurationSuggestions(configError string, configPath string) []ErrorSuggestion {
	if configPath == "" {
		configPath = ".sitepipe.yml"
	}

	suggestions := []ErrorSuggestion{
		{
			Title:       "Check configuration file",
			Description: "Verify " + configPath + " has valid syntax and values",
			Command:     "cat " + configPath,
		},
		{
			Title:       "Start from the defaults",
			Description: "Write the built-in configuration to a file and edit from there",
			Command:     "sitepipe init --force",
		},
	}

	lower := strings.ToLower(configError)
	if strings.Contains(lower, "yaml") || strings.Contains(lower, "unmarshal") {
		suggestions = append(suggestions, ErrorSuggestion{
			Title:       "Fix YAML syntax",
			Description: "There's a syntax error in your YAML configuration",
			Example:     "Use proper indentation and avoid tabs",
		})
	}

	if strings.Contains(lower, "glob") || strings.Contains(lower, "pattern") {
		suggestions = append(suggestions, ErrorSuggestion{
			Title:       "Check glob patterns",
			Description: "Patterns support *, **, {a,b} and a leading ! for exclusion",
			Example:     "inputs:\n  - source/img/**/*\n  - \"!source/img/sprite/**\"",
		})
	}

	return suggestions
}

// FormatSuggestions renders title followed by a numbered list of
// suggestions. Commands are prefixed with "$ ".
func FormatSuggestions(title string, suggestions []ErrorSuggestion) string {
	if len(suggestions) == 0 {
		return title
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\nSuggestions:\n", title)
	for i, sg := range suggestions {
		fmt.Fprintf(&b, "  %d. %s\n", i+1, sg.Title)
		writeIndented(&b, "", sg.Description)
		writeIndented(&b, "$ ", sg.Command)
		writeIndented(&b, "", sg.Example)
	}
	return b.String()
}

func writeIndented(b *strings.Builder, prefix, text string) {
	if text == "" {
		return
	}
	for _, line := range strings.Split(text, "\n") {
		fmt.Fprintf(b, "     %s%s\n", prefix, line)
	}
}

// EnhancedError is an error printed together with what the user can do about
// it.
type EnhancedError struct {
	Err         error
	Title       string
	Suggestions []ErrorSuggestion
}

func (e *EnhancedError) Error() string {
	return FormatSuggestions(e.Title, e.Suggestions)
}

func (e *EnhancedError) Unwrap() error {
	return e.Err
}

func NewEnhancedError(title string, err error, suggestions []ErrorSuggestion) *EnhancedError {
	return &EnhancedError{Err: err, Title: title, Suggestions: suggestions}
}

// Enhance wraps err with suggestions when any apply and returns err
// unchanged otherwise.
func Enhance(err error, ctx *SuggestionContext) error {
	if err == nil {
		return nil
	}
	suggestions := Suggest(err, ctx)
	if len(suggestions) == 0 {
		return err
	}
	return NewEnhancedError(err.Error(), err, suggestions)
}
