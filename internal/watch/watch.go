// Package watch binds file globs to tasks during the development loop.
//
// Every debounced batch of file changes is matched against all bindings.
// Each binding with a match runs its task once, in the background, and then
// asks the dev server to reload, whether the task succeeded or not. Bindings
// are independent: overlapping globs fire independently, and a second change
// may start a new run while the previous one is still going.
package watch

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/conneroisu/sitepipe/internal/globset"
	"github.com/conneroisu/sitepipe/internal/logging"
	"github.com/conneroisu/sitepipe/internal/server"
	"github.com/conneroisu/sitepipe/internal/task"
	"github.com/conneroisu/sitepipe/internal/watcher"
)

// State is the reload state of a binding.
type State int32

const (
	StateIdle State = iota
	StateRebuilding
	StateReloaded
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRebuilding:
		return "rebuilding"
	case StateReloaded:
		return "reloaded"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Runner runs a task node.
type Runner interface {
	Run(ctx context.Context, n *task.Node) *task.Result
}

// Reloader is the side of the dev server the watch loop talks to.
type Reloader interface {
	ReloadClients(mode server.ReloadMode) int
	ReportBuild(task string, err error)
}

// Notifier prints user-facing status lines.
type Notifier interface {
	Success(task string, d time.Duration)
	Failure(task string, err error)
	Reload(mode string, clients int)
}

// Binding ties a glob pattern to the task that refreshes its outputs.
type Binding struct {
	Pattern string
	Task    *task.Node
	Reload  server.ReloadMode

	set   *globset.Set
	state atomic.Int32
	runs  atomic.Int64

	// mu orders transitions so overlapping runs leave the state of the
	// last one to finish.
	mu       sync.Mutex
	inflight int
}

// NewBinding compiles pattern and binds it to node.
func NewBinding(pattern string, node *task.Node, mode server.ReloadMode) (*Binding, error) {
	if node == nil {
		return nil, fmt.Errorf("binding %q has no task", pattern)
	}
	switch mode {
	case server.ReloadInject, server.ReloadFull:
	default:
		return nil, fmt.Errorf("binding %q: unknown reload mode %q", pattern, mode)
	}

	set, err := globset.NewSet(pattern)
	if err != nil {
		return nil, err
	}

	return &Binding{
		Pattern: pattern,
		Task:    node,
		Reload:  mode,
		set:     set,
	}, nil
}

// Match reports whether a changed path falls under the binding.
func (b *Binding) Match(path string) bool {
	return b.set.Match(path)
}

// State returns the current state.
func (b *Binding) State() State {
	return State(b.state.Load())
}

// Runs returns how many times the bound task has been started.
func (b *Binding) Runs() int64 {
	return b.runs.Load()
}

// Session dispatches file changes to bindings for one watch session.
type Session struct {
	runner   Runner
	reloader Reloader
	notifier Notifier
	logger   logging.Logger

	mu       sync.RWMutex
	bindings []*Binding
	ctx      context.Context
	wg       conc.WaitGroup

	// OnStateChange, when set, is called on every state transition.
	OnStateChange func(b *Binding, s State)
}

// NewSession creates a session. notifier may be nil.
func NewSession(runner Runner, reloader Reloader, notifier Notifier, logger logging.Logger) *Session {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Session{
		runner:   runner,
		reloader: reloader,
		notifier: notifier,
		logger:   logger.WithComponent("watch"),
		ctx:      context.Background(),
	}
}

// Bind adds a binding.
func (s *Session) Bind(b *Binding) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bindings = append(s.bindings, b)
}

// Bindings returns the installed bindings.
func (s *Session) Bindings() []*Binding {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Binding, len(s.bindings))
	copy(out, s.bindings)
	return out
}

// Attach registers the session as a handler on fw, watches every root and
// starts fw. Rebuilds started afterwards use ctx.
func (s *Session) Attach(ctx context.Context, fw *watcher.FileWatcher, roots ...string) error {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	fw.AddFilter(watcher.NoGitFilter)
	fw.AddFilter(watcher.NoNodeModulesFilter)
	fw.AddFilter(watcher.NoEditorTempFilter)

	for _, root := range roots {
		if err := fw.AddRecursive(root); err != nil {
			return fmt.Errorf("watching %s: %w", root, err)
		}
	}

	fw.AddHandler(s.HandleChanges)

	return fw.Start(ctx)
}

// HandleChanges matches a batch of changes against every binding and starts
// one run per matching binding. It does not wait for the runs.
func (s *Session) HandleChanges(events []watcher.ChangeEvent) error {
	s.mu.RLock()
	bindings := s.bindings
	ctx := s.ctx
	s.mu.RUnlock()

	for _, b := range bindings {
		var matched string
		for _, e := range events {
			if b.Match(e.Path) {
				matched = e.Path
				break
			}
		}
		if matched == "" {
			continue
		}

		s.logger.Debug(ctx, "Change matched binding", "pattern", b.Pattern, "path", matched, "task", b.Task.Name)
		s.wg.Go(func() {
			s.trigger(ctx, b)
		})
	}

	return nil
}

// Wait blocks until every started run has reloaded.
func (s *Session) Wait() {
	s.wg.Wait()
}

func (s *Session) trigger(ctx context.Context, b *Binding) {
	b.runs.Add(1)
	b.mu.Lock()
	b.inflight++
	s.transition(b, StateRebuilding)
	b.mu.Unlock()

	res := s.runner.Run(ctx, b.Task)

	if res.Err != nil {
		s.logger.Error(ctx, res.Err, "Rebuild failed", "task", b.Task.Name)
		if s.notifier != nil {
			s.notifier.Failure(b.Task.Name, res.Err)
		}
	} else if s.notifier != nil {
		s.notifier.Success(b.Task.Name, res.Duration)
	}

	s.reloader.ReportBuild(b.Task.Name, res.Err)
	b.mu.Lock()
	s.transition(b, StateReloaded)
	b.mu.Unlock()

	clients := s.reloader.ReloadClients(b.Reload)
	if s.notifier != nil {
		s.notifier.Reload(string(b.Reload), clients)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.inflight--
	if b.inflight > 0 {
		// Another run of this binding is still rebuilding.
		s.transition(b, StateRebuilding)
		return
	}
	s.transition(b, StateIdle)
}

func (s *Session) transition(b *Binding, state State) {
	b.state.Store(int32(state))
	if s.OnStateChange != nil {
		s.OnStateChange(b, state)
	}
}
