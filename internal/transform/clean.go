package transform

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/conneroisu/sitepipe/internal/errors"
	"github.com/conneroisu/sitepipe/internal/logging"
)

// CleanTool removes the output directory tree.
type CleanTool struct {
	task   string
	dir    string
	logger logging.Logger
}

// NewCleanTool creates a clean tool. The directory must be a relative
// subdirectory of the working directory.
func NewCleanTool(task, dir string, logger logging.Logger) (*CleanTool, error) {
	clean := filepath.Clean(dir)
	if dir == "" || clean == "." || filepath.IsAbs(clean) || clean == ".." ||
		strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return nil, errors.NewValidationError(errors.ErrCodeInvalidPath,
			"refusing to clean "+dir).WithTask(task)
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	return &CleanTool{
		task:   task,
		dir:    clean,
		logger: logger.WithComponent("transform").With("task", task),
	}, nil
}

// Describe summarizes the removal.
func (t *CleanTool) Describe() string {
	return "remove " + t.dir
}

// Run removes the directory. A missing directory is not an error.
func (t *CleanTool) Run(ctx context.Context) error {
	if err := os.RemoveAll(t.dir); err != nil {
		return errors.NewIOError(errors.ErrCodeWriteFailed, "clean failed", err).WithTask(t.task).WithFile(t.dir)
	}
	t.logger.Debug(ctx, "Removed directory", "dir", t.dir)
	return nil
}
