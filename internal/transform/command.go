// Package transform provides the tools behind transform tasks: an external
// command runner, a copy tool and a clean tool.
package transform

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/conneroisu/sitepipe/internal/config"
	"github.com/conneroisu/sitepipe/internal/errors"
	"github.com/conneroisu/sitepipe/internal/globset"
	"github.com/conneroisu/sitepipe/internal/logging"
)

// Argument placeholders expanded for every invocation.
const (
	PlaceholderIn     = "{in}"
	PlaceholderOut    = "{out}"
	PlaceholderOutDir = "{outdir}"
	PlaceholderInputs = "{inputs}"
)

// CommandTool runs an external command over the files matched by its inputs.
//
// In per-file mode the command runs once per input on a bounded worker pool,
// and a failure on one file does not stop the others; the task fails with
// every per-file error combined. In batch mode the command runs once with
// all inputs.
type CommandTool struct {
	task    string
	inputs  *globset.Set
	base    string
	output  string
	command string
	args    []string
	batch   bool
	ext     string
	rename  string
	stdout  bool
	workers int
	logger  logging.Logger

	lookPath func(string) (string, error)
}

// NewCommandTool creates a command tool for the named task.
func NewCommandTool(task string, tc config.TaskConfig, workers int, logger logging.Logger) (*CommandTool, error) {
	if err := ValidateCommand(tc.Command); err != nil {
		return nil, errors.NewValidationError(errors.ErrCodeInvalidCommand, err.Error()).WithTask(task)
	}
	for _, arg := range tc.Args {
		if err := ValidateArgument(arg); err != nil {
			return nil, errors.NewValidationError(errors.ErrCodeInvalidCommand,
				fmt.Sprintf("invalid argument '%s': %v", arg, err)).WithTask(task)
		}
	}

	inputs, err := globset.NewSet(tc.Inputs...)
	if err != nil {
		return nil, errors.NewValidationError(errors.ErrCodeInvalidGlob, err.Error()).WithTask(task)
	}

	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	return &CommandTool{
		task:     task,
		inputs:   inputs,
		base:     tc.Base,
		output:   tc.Output,
		command:  tc.Command,
		args:     tc.Args,
		batch:    tc.Mode == config.ModeBatch,
		ext:      tc.Ext,
		rename:   tc.Rename,
		stdout:   tc.Stdout,
		workers:  workers,
		logger:   logger.WithComponent("transform").With("task", task),
		lookPath: exec.LookPath,
	}, nil
}

// Describe returns the command line template.
func (t *CommandTool) Describe() string {
	return strings.TrimSpace(t.command + " " + strings.Join(t.args, " "))
}

// Run resolves the inputs and invokes the command. A task with no matching
// inputs succeeds without looking for the command.
func (t *CommandTool) Run(ctx context.Context) error {
	files, err := t.inputs.Resolve()
	if err != nil {
		return errors.NewIOError(errors.ErrCodeSourceMissing, "resolving inputs failed", err).WithTask(t.task)
	}

	if len(files) == 0 {
		t.logger.Debug(ctx, "No inputs matched", "patterns", t.inputs.Patterns())
		return nil
	}

	path, err := t.lookPath(t.command)
	if err != nil {
		return errors.NewToolError(errors.ErrCodeToolNotFound,
			fmt.Sprintf("%s not found in PATH", t.command), err).WithTask(t.task)
	}

	if t.batch {
		return t.runBatch(ctx, path, files)
	}
	return t.runPerFile(ctx, path, files)
}

func (t *CommandTool) runPerFile(ctx context.Context, path string, files []globset.File) error {
	p := pool.New().WithMaxGoroutines(t.workers).WithErrors()

	for _, f := range files {
		p.Go(func() error {
			out := t.OutputPath(f)
			args := t.expand(f.Path, out, filepath.Dir(out), nil)
			if err := t.invoke(ctx, path, args, out); err != nil {
				return err.WithTask(t.task).WithFile(f.Path)
			}
			return nil
		})
	}

	return p.Wait()
}

func (t *CommandTool) runBatch(ctx context.Context, path string, files []globset.File) error {
	out := t.BatchOutputPath()
	outDir := t.output
	if t.rename != "" {
		outDir = filepath.Dir(out)
	}

	inputs := make([]string, len(files))
	for i, f := range files {
		inputs[i] = filepath.FromSlash(f.Path)
	}

	args := t.expand("", out, outDir, inputs)
	if err := t.invoke(ctx, path, args, out); err != nil {
		return err.WithTask(t.task)
	}
	return nil
}

// OutputPath maps an input file to its output path: the path relative to the
// glob base (or the configured base), re-rooted under the output directory,
// with the extension rewritten or the name replaced when configured.
func (t *CommandTool) OutputPath(f globset.File) string {
	return mapOutput(f, t.base, t.output, t.ext, t.rename)
}

// BatchOutputPath is the {out} of a batch invocation: the renamed file under
// the output directory, or the output directory itself.
func (t *CommandTool) BatchOutputPath() string {
	if t.rename != "" {
		return filepath.Join(t.output, t.rename)
	}
	return filepath.Clean(t.output)
}

func (t *CommandTool) expand(in, out, outDir string, inputs []string) []string {
	r := strings.NewReplacer(
		PlaceholderIn, filepath.FromSlash(in),
		PlaceholderOut, out,
		PlaceholderOutDir, outDir,
	)

	args := make([]string, 0, len(t.args)+len(inputs))
	for _, a := range t.args {
		if a == PlaceholderInputs {
			args = append(args, inputs...)
			continue
		}
		args = append(args, r.Replace(a))
	}
	return args
}

// invoke runs one command. The subprocess is not tied to ctx cancellation:
// once launched it runs to completion.
func (t *CommandTool) invoke(ctx context.Context, path string, args []string, out string) *errors.PipelineError {
	dir := out
	if t.stdout || t.rename != "" || !t.batch {
		dir = filepath.Dir(out)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.NewIOError(errors.ErrCodeWriteFailed, "creating output directory failed", err).WithFile(dir)
	}

	start := time.Now()
	cmd := exec.CommandContext(context.WithoutCancel(ctx), path, args...)
	cmd.Dir = "."

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		output := strings.TrimSpace(stderr.String())
		if output == "" {
			output = strings.TrimSpace(stdout.String())
		}
		return errors.NewToolError(errors.ErrCodeToolFailed, t.command+" failed",
			fmt.Errorf("%w\nOutput: %s", err, output))
	}

	if t.stdout {
		if err := writeFileAtomic(out, stdout.Bytes()); err != nil {
			return errors.NewIOError(errors.ErrCodeWriteFailed, "writing output failed", err).WithFile(out)
		}
	}

	t.logger.Debug(ctx, "Command finished", "args", args, "duration", time.Since(start))
	return nil
}

func mapOutput(f globset.File, base, output, ext, rename string) string {
	if base != "" {
		f.Base = filepath.ToSlash(filepath.Clean(base))
	}
	rel := f.Rel()

	switch {
	case rename != "":
		rel = filepath.Join(filepath.Dir(rel), rename)
	case ext != "":
		rel = strings.TrimSuffix(rel, filepath.Ext(rel)) + ext
	}

	return filepath.Join(output, rel)
}

// writeFileAtomic writes through a temp file in the target directory so a
// tool reading and writing the same path never sees a truncated file.
func writeFileAtomic(name string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(name), "."+filepath.Base(name)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), name)
}
