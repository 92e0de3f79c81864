package task

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"
	"go.uber.org/multierr"

	"github.com/conneroisu/sitepipe/internal/errors"
	"github.com/conneroisu/sitepipe/internal/logging"
)

// Runner executes nodes.
//
// Sequences run children one at a time and stop at the first failure; the
// children that were not started are reported as skipped. Parallel groups
// start every child at once, wait for all of them and never cancel a
// sibling; the group fails if any child failed. Launched tools are never
// interrupted: the context is only checked before a sequence starts its next
// child.
type Runner struct {
	logger  logging.Logger
	metrics *Metrics
}

// NewRunner creates a runner logging through logger.
func NewRunner(logger logging.Logger) *Runner {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Runner{
		logger:  logger.WithComponent("task"),
		metrics: NewMetrics(),
	}
}

// Metrics returns the runner's transform metrics.
func (r *Runner) Metrics() *Metrics {
	return r.metrics
}

// Run executes n and everything below it.
func (r *Runner) Run(ctx context.Context, n *Node) *Result {
	start := time.Now()

	var res *Result
	switch n.Kind {
	case KindTransform:
		res = r.runTransform(ctx, n)
	case KindSequence:
		res = r.runSequence(ctx, n)
	case KindParallel:
		res = r.runParallel(ctx, n)
	default:
		res = &Result{
			Name: n.Name,
			Kind: n.Kind,
			Err:  errors.NewInternalError(errors.ErrCodeInternalError, "unknown task kind", nil).WithTask(n.Name),
		}
	}

	res.Duration = time.Since(start)
	if n.Kind == KindTransform {
		r.metrics.Record(res)
	}
	return res
}

func (r *Runner) runTransform(ctx context.Context, n *Node) *Result {
	res := &Result{Name: n.Name, Kind: n.Kind}
	r.logger.Debug(ctx, "Starting task", "task", n.Name)
	start := time.Now()

	var err error
	var pc panics.Catcher
	pc.Try(func() {
		err = n.tool.Run(ctx)
	})
	if rec := pc.Recovered(); rec != nil {
		err = errors.NewInternalError(errors.ErrCodeTaskPanic, "task panicked", rec.AsError())
	}

	if err != nil {
		var pe *errors.PipelineError
		if stderrors.As(err, &pe) && pe.Task == "" {
			pe.WithTask(n.Name)
		}
		res.Err = err
		r.logger.Error(ctx, err, "Task failed", "task", n.Name, "duration", time.Since(start))
		return res
	}

	r.logger.Info(ctx, "Finished task", "task", n.Name, "duration", time.Since(start))
	return res
}

func (r *Runner) runSequence(ctx context.Context, n *Node) *Result {
	res := &Result{Name: n.Name, Kind: n.Kind}

	for _, child := range n.children {
		if res.Err != nil {
			res.Children = append(res.Children, skippedResult(child))
			continue
		}
		if err := ctx.Err(); err != nil {
			res.Err = err
			res.Children = append(res.Children, skippedResult(child))
			continue
		}

		cr := r.Run(ctx, child)
		res.Children = append(res.Children, cr)
		if cr.Err != nil {
			res.Err = fmt.Errorf("%s: %w", child.Name, cr.Err)
		}
	}

	if res.Err != nil {
		r.logger.Warn(ctx, res.Err, "Sequence stopped", "task", n.Name)
	}
	return res
}

func (r *Runner) runParallel(ctx context.Context, n *Node) *Result {
	res := &Result{Name: n.Name, Kind: n.Kind}
	res.Children = make([]*Result, len(n.children))

	var wg conc.WaitGroup
	for i, child := range n.children {
		wg.Go(func() {
			res.Children[i] = r.Run(ctx, child)
		})
	}
	wg.Wait()

	var err error
	for _, cr := range res.Children {
		if cr.Err != nil {
			err = multierr.Append(err, fmt.Errorf("%s: %w", cr.Name, cr.Err))
		}
	}
	res.Err = err

	return res
}
