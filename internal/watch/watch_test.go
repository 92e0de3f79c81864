package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/sitepipe/internal/server"
	"github.com/conneroisu/sitepipe/internal/task"
	"github.com/conneroisu/sitepipe/internal/watcher"
)

type fakeReloader struct {
	mu      sync.Mutex
	reloads []server.ReloadMode
	builds  map[string][]error
}

func newFakeReloader() *fakeReloader {
	return &fakeReloader{builds: make(map[string][]error)}
}

func (f *fakeReloader) ReloadClients(mode server.ReloadMode) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reloads = append(f.reloads, mode)
	return 1
}

func (f *fakeReloader) ReportBuild(task string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.builds[task] = append(f.builds[task], err)
}

func (f *fakeReloader) modes() []server.ReloadMode {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]server.ReloadMode, len(f.reloads))
	copy(out, f.reloads)
	return out
}

type fakeNotifier struct {
	mu       sync.Mutex
	success  []string
	failures []string
	reloads  []string
}

func (f *fakeNotifier) Success(task string, _ time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.success = append(f.success, task)
}

func (f *fakeNotifier) Failure(task string, _ error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures = append(f.failures, task)
}

func (f *fakeNotifier) Reload(mode string, _ int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reloads = append(f.reloads, mode)
}

// counter counts tool runs per task.
type counter struct {
	mu   sync.Mutex
	runs map[string]int
}

func (c *counter) tool(name string, fn func() error) task.Tool {
	return task.ToolFunc(func(context.Context) error {
		c.mu.Lock()
		c.runs[name]++
		c.mu.Unlock()
		if fn != nil {
			return fn()
		}
		return nil
	})
}

func (c *counter) count(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.runs[name]
}

func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

func writeFile(t *testing.T, name, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(name), 0o755))
	require.NoError(t, os.WriteFile(name, []byte(content), 0o644))
}

// fixture wires the four standard bindings to counting tools. style-build
// writes build/css/style.css.
func fixture(t *testing.T, styleErr error) (*Session, *counter, *fakeReloader, *fakeNotifier) {
	t.Helper()
	c := &counter{runs: make(map[string]int)}

	g, err := task.NewBuilder().
		Transform("style-build", "", c.tool("style-build", func() error {
			if styleErr != nil {
				return styleErr
			}
			if err := os.MkdirAll("build/css", 0o755); err != nil {
				return err
			}
			return os.WriteFile("build/css/style.css", []byte("body{}"), 0o644)
		})).
		Transform("template-render", "", c.tool("template-render", nil)).
		Transform("asset-copy", "", c.tool("asset-copy", nil)).
		Transform("sprite-build", "", c.tool("sprite-build", nil)).
		Transform("script-build", "", c.tool("script-build", nil)).
		Sequence("images-refresh", "", "asset-copy", "sprite-build", "template-render").
		Build()
	require.NoError(t, err)

	reloader := newFakeReloader()
	notifier := &fakeNotifier{}
	s := NewSession(task.NewRunner(nil), reloader, notifier, nil)

	for _, tc := range []struct {
		pattern string
		node    string
		mode    server.ReloadMode
	}{
		{"source/sass/**/*.{scss,sass}", "style-build", server.ReloadInject},
		{"source/**/*.pug", "template-render", server.ReloadFull},
		{"source/img/**/*", "images-refresh", server.ReloadFull},
		{"source/js/**/*", "script-build", server.ReloadFull},
	} {
		b, err := NewBinding(tc.pattern, g.MustNode(tc.node), tc.mode)
		require.NoError(t, err)
		s.Bind(b)
	}

	return s, c, reloader, notifier
}

func TestStyleChangeRunsStyleBuildOnceAndInjects(t *testing.T) {
	chdir(t, t.TempDir())
	writeFile(t, "build/img/logo.png", "png")
	before, err := os.Stat("build/img/logo.png")
	require.NoError(t, err)

	s, c, reloader, notifier := fixture(t, nil)

	require.NoError(t, s.HandleChanges([]watcher.ChangeEvent{
		{Type: watcher.EventTypeModified, Path: "source/sass/blocks/_header.scss"},
	}))
	s.Wait()

	assert.Equal(t, 1, c.count("style-build"))
	assert.Equal(t, 0, c.count("template-render"))
	assert.Equal(t, 0, c.count("asset-copy"))
	assert.Equal(t, []server.ReloadMode{server.ReloadInject}, reloader.modes())
	assert.Equal(t, []string{"style-build"}, notifier.success)
	assert.Equal(t, []string{"inject"}, notifier.reloads)

	assert.FileExists(t, "build/css/style.css")
	after, err := os.Stat("build/img/logo.png")
	require.NoError(t, err)
	assert.Equal(t, before.ModTime(), after.ModTime())

	for _, b := range s.Bindings() {
		assert.Equal(t, StateIdle, b.State())
	}
	assert.Equal(t, int64(1), s.Bindings()[0].Runs())
}

func TestTemplateChangeForcesFullReload(t *testing.T) {
	chdir(t, t.TempDir())
	s, c, reloader, _ := fixture(t, nil)

	require.NoError(t, s.HandleChanges([]watcher.ChangeEvent{
		{Type: watcher.EventTypeModified, Path: "source/pug/layout/base.pug"},
	}))
	s.Wait()

	assert.Equal(t, 1, c.count("template-render"))
	assert.Equal(t, 0, c.count("style-build"))
	assert.Equal(t, []server.ReloadMode{server.ReloadFull}, reloader.modes())
}

func TestImageChangeRunsRefreshChain(t *testing.T) {
	chdir(t, t.TempDir())
	s, c, reloader, _ := fixture(t, nil)

	require.NoError(t, s.HandleChanges([]watcher.ChangeEvent{
		{Type: watcher.EventTypeCreated, Path: "source/img/sprite/icon.svg"},
	}))
	s.Wait()

	assert.Equal(t, 1, c.count("asset-copy"))
	assert.Equal(t, 1, c.count("sprite-build"))
	assert.Equal(t, 1, c.count("template-render"))
	assert.Equal(t, []server.ReloadMode{server.ReloadFull}, reloader.modes())
}

func TestOverlappingBindingsFireIndependently(t *testing.T) {
	chdir(t, t.TempDir())
	s, c, reloader, _ := fixture(t, nil)

	// One batch touching a stylesheet and a script.
	require.NoError(t, s.HandleChanges([]watcher.ChangeEvent{
		{Type: watcher.EventTypeModified, Path: "source/js/index.js"},
		{Type: watcher.EventTypeModified, Path: "source/sass/style.scss"},
		{Type: watcher.EventTypeModified, Path: "source/sass/_vars.scss"},
	}))
	s.Wait()

	assert.Equal(t, 1, c.count("style-build"))
	assert.Equal(t, 1, c.count("script-build"))
	assert.ElementsMatch(t, []server.ReloadMode{server.ReloadInject, server.ReloadFull}, reloader.modes())
}

func TestUnmatchedChangeDoesNothing(t *testing.T) {
	chdir(t, t.TempDir())
	s, c, reloader, _ := fixture(t, nil)

	require.NoError(t, s.HandleChanges([]watcher.ChangeEvent{
		{Type: watcher.EventTypeModified, Path: "README.md"},
		{Type: watcher.EventTypeModified, Path: "source/fonts/a.woff2"},
	}))
	s.Wait()

	assert.Empty(t, c.runs)
	assert.Empty(t, reloader.modes())
}

func TestFailedRebuildStillReloads(t *testing.T) {
	chdir(t, t.TempDir())
	s, _, reloader, notifier := fixture(t, fmt.Errorf("Undefined variable"))

	var mu sync.Mutex
	var states []State
	s.OnStateChange = func(b *Binding, st State) {
		mu.Lock()
		defer mu.Unlock()
		states = append(states, st)
	}

	require.NoError(t, s.HandleChanges([]watcher.ChangeEvent{
		{Type: watcher.EventTypeModified, Path: "source/sass/style.scss"},
	}))
	s.Wait()

	assert.Equal(t, []State{StateRebuilding, StateReloaded, StateIdle}, states)
	assert.Equal(t, []server.ReloadMode{server.ReloadInject}, reloader.modes())
	assert.Equal(t, []string{"style-build"}, notifier.failures)
	require.Len(t, reloader.builds["style-build"], 1)
	assert.Error(t, reloader.builds["style-build"][0])

	// The session keeps working after a failure.
	require.NoError(t, s.HandleChanges([]watcher.ChangeEvent{
		{Type: watcher.EventTypeModified, Path: "source/pug/index.pug"},
	}))
	s.Wait()
	assert.Len(t, reloader.modes(), 2)
}

func TestNewBindingValidation(t *testing.T) {
	node := mustNode(t)

	_, err := NewBinding("source/**/*.pug", nil, server.ReloadFull)
	assert.Error(t, err)

	_, err = NewBinding("source/**/*.pug", node, server.ReloadMode("partial"))
	assert.Error(t, err)

	_, err = NewBinding("!", node, server.ReloadFull)
	assert.Error(t, err)

	b, err := NewBinding("source/**/*.pug", node, server.ReloadFull)
	require.NoError(t, err)
	assert.True(t, b.Match("source/pug/pages/index.pug"))
	assert.False(t, b.Match("source/sass/style.scss"))
	assert.Equal(t, StateIdle, b.State())
	assert.Equal(t, "idle", b.State().String())
}

func TestAttachRebuildsOnFileChange(t *testing.T) {
	chdir(t, t.TempDir())
	writeFile(t, "source/sass/style.scss", "body{}")

	s, c, reloader, _ := fixture(t, nil)

	fw, err := watcher.NewFileWatcher(30*time.Millisecond, nil)
	require.NoError(t, err)
	defer fw.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, s.Attach(ctx, fw, "source"))

	time.Sleep(50 * time.Millisecond)
	writeFile(t, "source/sass/style.scss", "body{color:red}")

	require.Eventually(t, func() bool {
		return c.count("style-build") >= 1 && len(reloader.modes()) >= 1
	}, 3*time.Second, 20*time.Millisecond)
	s.Wait()

	assert.Equal(t, server.ReloadInject, reloader.modes()[0])
}

func TestAttachSkipsIgnoredDirectories(t *testing.T) {
	chdir(t, t.TempDir())
	writeFile(t, "source/sass/style.scss", "body{}")
	writeFile(t, "source/node_modules/pkg/a/b/index.js", "")
	writeFile(t, "source/.git/objects/ab/cd", "")

	s, _, _, _ := fixture(t, nil)

	fw, err := watcher.NewFileWatcher(30*time.Millisecond, nil)
	require.NoError(t, err)
	defer fw.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, s.Attach(ctx, fw, "source"))

	var watched []string
	for _, p := range fw.WatchedPaths() {
		watched = append(watched, filepath.ToSlash(p))
	}
	assert.Contains(t, watched, "source")
	assert.Contains(t, watched, "source/sass")
	for _, p := range watched {
		assert.NotContains(t, p, "node_modules")
		assert.NotContains(t, p, ".git")
	}
}

func TestOverlappingRunsKeepRebuildingState(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})

	g, err := task.NewBuilder().
		Transform("style-build", "", task.ToolFunc(func(context.Context) error {
			started <- struct{}{}
			<-release
			return nil
		})).
		Build()
	require.NoError(t, err)

	reloader := newFakeReloader()
	s := NewSession(task.NewRunner(nil), reloader, nil, nil)
	b, err := NewBinding("source/sass/**/*.scss", g.MustNode("style-build"), server.ReloadInject)
	require.NoError(t, err)
	s.Bind(b)

	change := []watcher.ChangeEvent{{Type: watcher.EventTypeModified, Path: "source/sass/style.scss"}}
	require.NoError(t, s.HandleChanges(change))
	<-started
	require.NoError(t, s.HandleChanges(change))
	<-started

	release <- struct{}{}
	require.Eventually(t, func() bool { return len(reloader.modes()) == 1 }, 2*time.Second, 5*time.Millisecond)
	// The reload of the first run has been sent; the second is still running.
	require.Eventually(t, func() bool { return b.State() == StateRebuilding }, 2*time.Second, 5*time.Millisecond)

	release <- struct{}{}
	s.Wait()
	assert.Equal(t, StateIdle, b.State())
	assert.Equal(t, int64(2), b.Runs())
	assert.Len(t, reloader.modes(), 2)
}

func mustNode(t *testing.T) *task.Node {
	t.Helper()
	g, err := task.NewBuilder().Transform("template-render", "", task.ToolFunc(func(context.Context) error { return nil })).Build()
	require.NoError(t, err)
	return g.MustNode("template-render")
}
