package transform

import (
	"fmt"

	"github.com/conneroisu/sitepipe/internal/config"
	"github.com/conneroisu/sitepipe/internal/errors"
	"github.com/conneroisu/sitepipe/internal/logging"
	"github.com/conneroisu/sitepipe/internal/task"
)

// Tool is a task.Tool that can describe itself for listings.
type Tool interface {
	task.Tool
	Describe() string
}

// New creates the tool configured for a transform task.
func New(name string, tc config.TaskConfig, workers int, logger logging.Logger) (Tool, error) {
	var (
		tool Tool
		err  error
	)

	switch tc.Tool {
	case config.ToolClean:
		tool, err = NewCleanTool(name, tc.Output, logger)
	case config.ToolCopy:
		tool, err = NewCopyTool(name, tc, logger)
	case config.ToolCommand, "":
		tool, err = NewCommandTool(name, tc, workers, logger)
	default:
		err = errors.NewConfigError(errors.ErrCodeConfigInvalid,
			fmt.Sprintf("unknown tool %q", tc.Tool)).WithTask(name)
	}

	if err != nil {
		return nil, err
	}
	return tool, nil
}
