// Package errors defines the typed errors the pipeline reports and the
// suggestions the CLI attaches to them.
package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorType groups errors by where they come from.
type ErrorType string

const (
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeTool       ErrorType = "tool"
	ErrorTypeIO         ErrorType = "io"
	ErrorTypeNetwork    ErrorType = "network"
	ErrorTypeConfig     ErrorType = "config"
	ErrorTypeInternal   ErrorType = "internal"
)

// Graph construction.
const (
	ErrCodeTaskNotFound   = "ERR_TASK_NOT_FOUND"
	ErrCodeDuplicateTask  = "ERR_DUPLICATE_TASK"
	ErrCodeCycle          = "ERR_CYCLE"
	ErrCodeEmptyComposite = "ERR_EMPTY_COMPOSITE"
)

// Transform tools.
const (
	ErrCodeToolNotFound   = "ERR_TOOL_NOT_FOUND"
	ErrCodeToolFailed     = "ERR_TOOL_FAILED"
	ErrCodeInvalidCommand = "ERR_INVALID_COMMAND"
	ErrCodeTaskPanic      = "ERR_TASK_PANIC"
)

// Files and paths.
const (
	ErrCodeInvalidPath   = "ERR_INVALID_PATH"
	ErrCodePathTraversal = "ERR_PATH_TRAVERSAL"
	ErrCodeInvalidGlob   = "ERR_INVALID_GLOB"
	ErrCodeSourceMissing = "ERR_SOURCE_MISSING"
	ErrCodeWriteFailed   = "ERR_WRITE_FAILED"
	ErrCodeWatchFailed   = "ERR_WATCH_FAILED"
)

// Dev server.
const (
	ErrCodePortInUse     = "ERR_PORT_IN_USE"
	ErrCodeServerRunning = "ERR_SERVER_RUNNING"
)

// Configuration and everything else.
const (
	ErrCodeConfigInvalid    = "ERR_CONFIG_INVALID"
	ErrCodeValidationFailed = "ERR_VALIDATION_FAILED"
	ErrCodeInternalError    = "ERR_INTERNAL"
)

// PipelineError is a failure with a stable code, optionally tied to the task
// and file that caused it.
type PipelineError struct {
	Type        ErrorType
	Code        string
	Message     string
	Cause       error
	Context     map[string]interface{}
	Task        string
	FilePath    string
	Recoverable bool
}

// Error renders "[CODE] task:name file message: cause", omitting empty parts.
func (e *PipelineError) Error() string {
	var b strings.Builder

	if e.Code != "" {
		fmt.Fprintf(&b, "[%s] ", e.Code)
	}
	if e.Task != "" {
		fmt.Fprintf(&b, "task:%s ", e.Task)
	}
	if e.FilePath != "" {
		b.WriteString(e.FilePath + " ")
	}
	b.WriteString(e.Message)

	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	return b.String()
}

func (e *PipelineError) Unwrap() error {
	return e.Cause
}

// Is matches any PipelineError with the same type and code.
func (e *PipelineError) Is(target error) bool {
	var t *PipelineError
	if !errors.As(target, &t) {
		return false
	}
	return e.Type == t.Type && e.Code == t.Code
}

// WithContext attaches a key/value pair and returns e.
func (e *PipelineError) WithContext(key string, value interface{}) *PipelineError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithFile records the offending file and returns e.
func (e *PipelineError) WithFile(filePath string) *PipelineError {
	e.FilePath = filePath
	return e
}

// WithTask records the failing task and returns e.
func (e *PipelineError) WithTask(task string) *PipelineError {
	e.Task = task
	return e
}

func newError(t ErrorType, code, message string, cause error) *PipelineError {
	return &PipelineError{
		Type:    t,
		Code:    code,
		Message: message,
		Cause:   cause,
		// A failing tool leaves the watch session running; nothing else does.
		Recoverable: t == ErrorTypeTool,
	}
}

func NewValidationError(code, message string) *PipelineError {
	return newError(ErrorTypeValidation, code, message, nil)
}

// NewToolError reports a failed external tool invocation.
func NewToolError(code, message string, cause error) *PipelineError {
	return newError(ErrorTypeTool, code, message, cause)
}

func NewIOError(code, message string, cause error) *PipelineError {
	return newError(ErrorTypeIO, code, message, cause)
}

func NewNetworkError(code, message string, cause error) *PipelineError {
	return newError(ErrorTypeNetwork, code, message, cause)
}

func NewConfigError(code, message string) *PipelineError {
	return newError(ErrorTypeConfig, code, message, nil)
}

func NewInternalError(code, message string, cause error) *PipelineError {
	return newError(ErrorTypeInternal, code, message, cause)
}

// IsRecoverable reports whether the first PipelineError in err's chain is
// recoverable.
func IsRecoverable(err error) bool {
	var pe *PipelineError
	return errors.As(err, &pe) && pe.Recoverable
}

func IsToolError(err error) bool {
	return hasType(err, ErrorTypeTool)
}

func IsIOError(err error) bool {
	return hasType(err, ErrorTypeIO)
}

func IsNetworkError(err error) bool {
	return hasType(err, ErrorTypeNetwork)
}

func hasType(err error, t ErrorType) bool {
	var pe *PipelineError
	return errors.As(err, &pe) && pe.Type == t
}

// errorGroup is implemented by aggregated errors such as those built with
// multierr.
type errorGroup interface {
	Errors() []error
}

// Failures splits an aggregated error into its individual failures. Errors
// that do not aggregate anything come back as a single element.
func Failures(err error) []error {
	if err == nil {
		return nil
	}

	var group errorGroup
	if !errors.As(err, &group) {
		return []error{err}
	}

	var out []error
	for _, e := range group.Errors() {
		out = append(out, Failures(e)...)
	}
	return out
}

// Logger is the part of the pipeline logger the handler writes to.
type Logger interface {
	Error(ctx context.Context, err error, msg string, fields ...interface{})
	Warn(ctx context.Context, err error, msg string, fields ...interface{})
}

// Notifier prints a failure for the user.
type Notifier interface {
	NotifyError(ctx context.Context, err *PipelineError) error
}

// ErrorHandler logs every failure in an error and shows the user the ones
// they can act on.
type ErrorHandler struct {
	logger   Logger
	notifier Notifier
}

func NewErrorHandler(logger Logger, notifier Notifier) *ErrorHandler {
	return &ErrorHandler{
		logger:   logger,
		notifier: notifier,
	}
}

// Handle reports err. An aggregated error, as produced by a failed parallel
// group, is reported one failure at a time.
func (h *ErrorHandler) Handle(ctx context.Context, err error) {
	for _, f := range Failures(err) {
		var pe *PipelineError
		if errors.As(f, &pe) {
			h.handlePipelineError(ctx, pe)
			continue
		}
		if h.logger != nil {
			h.logger.Error(ctx, f, "Unhandled error occurred")
		}
	}
}

func (h *ErrorHandler) handlePipelineError(ctx context.Context, err *PipelineError) {
	if h.logger != nil {
		switch err.Type {
		case ErrorTypeTool:
			h.logger.Warn(ctx, err, "Tool error occurred",
				"code", err.Code,
				"task", err.Task,
				"file", err.FilePath)
		case ErrorTypeValidation:
			h.logger.Warn(ctx, err, "Validation error occurred", "code", err.Code)
		default:
			h.logger.Error(ctx, err, "Error occurred",
				"type", err.Type,
				"code", err.Code,
				"task", err.Task)
		}
	}

	if err.Type != ErrorTypeValidation && h.notifier != nil {
		_ = h.notifier.NotifyError(ctx, err)
	}
}
