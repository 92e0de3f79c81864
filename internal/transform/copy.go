package transform

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/multierr"

	"github.com/conneroisu/sitepipe/internal/config"
	"github.com/conneroisu/sitepipe/internal/errors"
	"github.com/conneroisu/sitepipe/internal/globset"
	"github.com/conneroisu/sitepipe/internal/logging"
)

// CopyTool copies matched files into the output directory, keeping their
// path relative to the base.
type CopyTool struct {
	task   string
	inputs *globset.Set
	base   string
	output string
	logger logging.Logger
}

// NewCopyTool creates a copy tool for the named task.
func NewCopyTool(task string, tc config.TaskConfig, logger logging.Logger) (*CopyTool, error) {
	inputs, err := globset.NewSet(tc.Inputs...)
	if err != nil {
		return nil, errors.NewValidationError(errors.ErrCodeInvalidGlob, err.Error()).WithTask(task)
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	return &CopyTool{
		task:   task,
		inputs: inputs,
		base:   tc.Base,
		output: tc.Output,
		logger: logger.WithComponent("transform").With("task", task),
	}, nil
}

// Describe summarizes the copy.
func (t *CopyTool) Describe() string {
	return fmt.Sprintf("copy %s -> %s", strings.Join(t.inputs.Patterns(), " "), t.output)
}

// Run copies every matched file. A failed file does not stop the others.
func (t *CopyTool) Run(ctx context.Context) error {
	files, err := t.inputs.Resolve()
	if err != nil {
		return errors.NewIOError(errors.ErrCodeSourceMissing, "resolving inputs failed", err).WithTask(t.task)
	}

	var errs error
	copied := 0
	for _, f := range files {
		dst := mapOutput(f, t.base, t.output, "", "")
		if err := copyFile(filepath.FromSlash(f.Path), dst); err != nil {
			errs = multierr.Append(errs, errors.NewIOError(errors.ErrCodeWriteFailed,
				"copy failed", err).WithTask(t.task).WithFile(f.Path))
			continue
		}
		copied++
	}

	t.logger.Debug(ctx, "Copied files", "count", copied, "matched", len(files))
	return errs
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
