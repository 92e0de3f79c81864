// Package pipeline wires the configured transform tasks into the task graph
// and runs the build and start lifecycles.
//
//	build = clean -> (asset-copy | style-build)
//	              -> (sprite-build | image-optimize | webp-convert)
//	              -> (template-render | script-build)
//	start = clean -> (asset-copy | style-build)
//	              -> (template-render | script-build)
//	              -> serve
//
// The serve node starts the dev server on the build directory and then
// installs the watch bindings on the source directory.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/conneroisu/sitepipe/internal/config"
	"github.com/conneroisu/sitepipe/internal/errors"
	"github.com/conneroisu/sitepipe/internal/logging"
	"github.com/conneroisu/sitepipe/internal/server"
	"github.com/conneroisu/sitepipe/internal/task"
	"github.com/conneroisu/sitepipe/internal/transform"
	"github.com/conneroisu/sitepipe/internal/watch"
	"github.com/conneroisu/sitepipe/internal/watcher"
)

const shutdownTimeout = 5 * time.Second

// Run is one execution of a lifecycle or task.
type Run struct {
	ID        string
	Lifecycle string
	Started   time.Time
	Result    *task.Result
}

// Err returns the run's failure, if any.
func (r *Run) Err() error {
	if r.Result == nil {
		return nil
	}
	return r.Result.Err
}

// Duration returns how long the run took.
func (r *Run) Duration() time.Duration {
	if r.Result == nil {
		return 0
	}
	return r.Result.Duration
}

// TaskInfo describes a graph node for listings.
type TaskInfo struct {
	Name        string   `json:"name" yaml:"name"`
	Kind        string   `json:"kind" yaml:"kind"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Children    []string `json:"children,omitempty" yaml:"children,omitempty"`
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithTool replaces the tool of a configured transform task.
func WithTool(name string, tool task.Tool) Option {
	return func(p *Pipeline) {
		p.overrides[name] = tool
	}
}

// WithNotifier sets the console notifier used during watch sessions.
func WithNotifier(n watch.Notifier) Option {
	return func(p *Pipeline) {
		p.notifier = n
	}
}

// Pipeline owns the task graph, the dev server and the watch session.
type Pipeline struct {
	cfg       *config.Config
	logger    logging.Logger
	notifier  watch.Notifier
	overrides map[string]task.Tool

	graph   *task.Graph
	runner  *task.Runner
	server  *server.DevServer
	session *watch.Session

	mu      sync.Mutex
	watcher *watcher.FileWatcher
	serving bool
}

// New builds the task graph described by cfg. Configuration problems such
// as an unknown binding target or an invalid command are reported here,
// before anything runs.
func New(cfg *config.Config, logger logging.Logger, opts ...Option) (*Pipeline, error) {
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	p := &Pipeline{
		cfg:       cfg,
		logger:    logger.WithComponent("pipeline"),
		overrides: make(map[string]task.Tool),
	}
	for _, opt := range opts {
		opt(p)
	}

	p.runner = task.NewRunner(logger)
	p.server = server.New(server.Options{
		Host:       cfg.Server.Host,
		CORS:       cfg.Server.CORS,
		LiveReload: cfg.Server.LiveReload,
		Open:       cfg.Server.Open,
	}, logger)

	graph, err := p.buildGraph(logger)
	if err != nil {
		return nil, err
	}
	p.graph = graph

	p.session = watch.NewSession(p.runner, p.server, p.notifier, logger)
	for _, bc := range cfg.Watch.Bindings {
		node, ok := graph.Node(bc.Task)
		if !ok {
			return nil, errors.NewConfigError(errors.ErrCodeTaskNotFound,
				fmt.Sprintf("watch binding %q targets unknown task %q", bc.Pattern, bc.Task))
		}
		b, err := watch.NewBinding(bc.Pattern, node, server.ReloadMode(bc.Reload))
		if err != nil {
			return nil, errors.NewConfigError(errors.ErrCodeConfigInvalid, err.Error())
		}
		p.session.Bind(b)
	}

	return p, nil
}

func (p *Pipeline) buildGraph(logger logging.Logger) (*task.Graph, error) {
	b := task.NewBuilder()

	for _, name := range p.cfg.TaskNames() {
		if tool, ok := p.overrides[name]; ok {
			b.Transform(name, describe(tool), tool)
			continue
		}
		tool, err := transform.New(name, p.cfg.Build.Tasks[name], p.cfg.Build.Workers, logger)
		if err != nil {
			return nil, err
		}
		b.Transform(name, tool.Describe(), tool)
	}

	b.Transform(config.TaskServe, "start the dev server and watch sources", task.ToolFunc(p.serve))

	b.Parallel(config.TaskAssets, "copy assets and compile styles",
		config.TaskAssetCopy, config.TaskStyleBuild)
	b.Parallel(config.TaskImages, "build the sprite and optimize images",
		config.TaskSpriteBuild, config.TaskImageOptimize, config.TaskWebpConvert)
	b.Parallel(config.TaskPages, "render templates and bundle scripts",
		config.TaskTemplateRender, config.TaskScriptBuild)
	b.Sequence(config.TaskImagesRefresh, "refresh images, sprite and the pages using them",
		config.TaskAssetCopy, config.TaskSpriteBuild, config.TaskTemplateRender)

	b.Sequence(config.LifecycleBuild, "production build",
		config.TaskClean, config.TaskAssets, config.TaskImages, config.TaskPages)
	b.Sequence(config.LifecycleStart, "development build and live-reload server",
		config.TaskClean, config.TaskAssets, config.TaskPages, config.TaskServe)

	return b.Build()
}

func describe(tool task.Tool) string {
	if d, ok := tool.(interface{ Describe() string }); ok {
		return d.Describe()
	}
	return ""
}

// Build runs the build lifecycle.
func (p *Pipeline) Build(ctx context.Context) (*Run, error) {
	return p.RunTask(ctx, config.LifecycleBuild)
}

// Start runs the start lifecycle and then serves until ctx is done.
func (p *Pipeline) Start(ctx context.Context) (*Run, error) {
	return p.RunTask(ctx, config.LifecycleStart)
}

// RunTask runs the named node. When the node includes serve, RunTask keeps
// serving after the run and returns once ctx is done and the server and
// watcher have stopped.
func (p *Pipeline) RunTask(ctx context.Context, name string) (*Run, error) {
	node, ok := p.graph.Node(name)
	if !ok {
		return nil, errors.NewValidationError(errors.ErrCodeTaskNotFound,
			fmt.Sprintf("unknown task %q", name)).WithContext("available", p.graph.Names())
	}

	if err := p.checkSource(); err != nil {
		return nil, err
	}

	run := &Run{
		ID:        uuid.NewString(),
		Lifecycle: name,
		Started:   time.Now(),
	}

	ctx = logging.ContextWithFields(ctx, "run", run.ID)

	p.logger.Info(ctx, "Starting run", "task", name)
	run.Result = p.runner.Run(ctx, node)

	if err := run.Err(); err != nil {
		p.logger.Error(ctx, err, "Run failed", "task", name, "duration", run.Duration())
		p.stop()
		return run, err
	}
	p.logger.Info(ctx, "Run finished", "task", name, "duration", run.Duration())

	if p.Serving() {
		<-ctx.Done()
		p.stop()
	}

	return run, nil
}

func (p *Pipeline) checkSource() error {
	info, err := os.Stat(p.cfg.Paths.Source)
	if err != nil {
		return errors.NewIOError(errors.ErrCodeSourceMissing,
			fmt.Sprintf("source directory %s not found", p.cfg.Paths.Source), err)
	}
	if !info.IsDir() {
		return errors.NewIOError(errors.ErrCodeSourceMissing,
			fmt.Sprintf("source path %s is not a directory", p.cfg.Paths.Source), nil)
	}
	return nil
}

// serve is the tool of the serve node. The listen happens first so a busy
// port fails the node before any binding is installed.
func (p *Pipeline) serve(ctx context.Context) error {
	if err := p.server.Start(ctx, p.cfg.Paths.Build, p.cfg.Server.Port); err != nil {
		return err
	}

	fw, err := watcher.NewFileWatcher(p.cfg.Watch.Debounce, p.logger)
	if err != nil {
		p.shutdownServer()
		return errors.NewIOError(errors.ErrCodeWatchFailed, "creating file watcher failed", err)
	}

	if err := p.session.Attach(ctx, fw, p.cfg.Paths.Source); err != nil {
		_ = fw.Stop()
		p.shutdownServer()
		return errors.NewIOError(errors.ErrCodeWatchFailed, "watching sources failed", err)
	}

	p.mu.Lock()
	p.watcher = fw
	p.serving = true
	p.mu.Unlock()

	p.logger.Info(ctx, "Watching sources", "dir", p.cfg.Paths.Source, "bindings", len(p.session.Bindings()))
	return nil
}

// stop tears down the watcher and the server if serve started them.
func (p *Pipeline) stop() {
	p.mu.Lock()
	fw := p.watcher
	p.watcher = nil
	p.serving = false
	p.mu.Unlock()

	if fw != nil {
		if err := fw.Stop(); err != nil {
			p.logger.Warn(context.Background(), err, "Stopping watcher failed")
		}
		p.session.Wait()
	}
	p.shutdownServer()
}

func (p *Pipeline) shutdownServer() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := p.server.Shutdown(ctx); err != nil {
		p.logger.Warn(ctx, err, "Dev server shutdown failed")
	}
}

// Serving reports whether the dev server and watcher are up.
func (p *Pipeline) Serving() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.serving
}

// Server returns the dev server.
func (p *Pipeline) Server() *server.DevServer {
	return p.server
}

// Session returns the watch session.
func (p *Pipeline) Session() *watch.Session {
	return p.session
}

// Metrics returns transform run metrics across every run of this pipeline.
func (p *Pipeline) Metrics() *task.Metrics {
	return p.runner.Metrics()
}

// Graph returns the task graph.
func (p *Pipeline) Graph() *task.Graph {
	return p.graph
}

// Tasks lists every node, lifecycles first, then composites, then
// transforms, each group sorted by name.
func (p *Pipeline) Tasks() []TaskInfo {
	names := p.graph.Names()
	rank := func(n *task.Node) int {
		switch {
		case n.Name == config.LifecycleBuild || n.Name == config.LifecycleStart:
			return 0
		case n.IsComposite():
			return 1
		default:
			return 2
		}
	}

	sort.SliceStable(names, func(i, j int) bool {
		a, b := p.graph.MustNode(names[i]), p.graph.MustNode(names[j])
		if rank(a) != rank(b) {
			return rank(a) < rank(b)
		}
		return a.Name < b.Name
	})

	infos := make([]TaskInfo, 0, len(names))
	for _, name := range names {
		n := p.graph.MustNode(name)
		info := TaskInfo{
			Name:        n.Name,
			Kind:        n.Kind.String(),
			Description: n.Description,
		}
		for _, c := range n.Children() {
			info.Children = append(info.Children, c.Name)
		}
		infos = append(infos, info)
	}
	return infos
}
