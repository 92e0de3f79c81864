// Package watcher provides a recursive fsnotify watcher. Events are coalesced
// per path until the tree has been quiet for the debounce delay, then handed
// to the registered handlers as one sorted batch.
package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sourcegraph/conc"

	"github.com/conneroisu/sitepipe/internal/logging"
)

// FileWatcher watches directory trees for file changes with debouncing
type FileWatcher struct {
	fsw    *fsnotify.Watcher
	delay  time.Duration
	logger logging.Logger

	mu       sync.RWMutex
	filters  []FileFilter
	handlers []ChangeHandler

	done     chan struct{}
	stopOnce sync.Once
	wg       conc.WaitGroup
}

// ChangeEvent is one changed file in a delivered batch.
type ChangeEvent struct {
	Type EventType
	Path string
}

// EventType represents the type of file change
type EventType int

const (
	EventTypeCreated EventType = iota
	EventTypeModified
	EventTypeDeleted
	EventTypeRenamed
)

// String returns the string representation of the EventType
func (e EventType) String() string {
	switch e {
	case EventTypeCreated:
		return "created"
	case EventTypeModified:
		return "modified"
	case EventTypeDeleted:
		return "deleted"
	case EventTypeRenamed:
		return "renamed"
	default:
		return "unknown"
	}
}

// FileFilter reports whether a path should be watched.
type FileFilter func(path string) bool

// ChangeHandler handles a debounced batch of change events
type ChangeHandler func(events []ChangeEvent) error

// NewFileWatcher creates a watcher that delivers a batch once no event has
// arrived for delay.
func NewFileWatcher(delay time.Duration, logger logging.Logger) (*FileWatcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if logger == nil {
		logger = logging.NewNopLogger()
	}

	return &FileWatcher{
		fsw:    fsw,
		delay:  delay,
		logger: logger.WithComponent("watcher"),
		done:   make(chan struct{}),
	}, nil
}

// AddFilter adds a file filter
func (fw *FileWatcher) AddFilter(filter FileFilter) {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	fw.filters = append(fw.filters, filter)
}

// AddHandler adds a change handler
func (fw *FileWatcher) AddHandler(handler ChangeHandler) {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	fw.handlers = append(fw.handlers, handler)
}

// AddPath watches a single directory.
func (fw *FileWatcher) AddPath(path string) error {
	cleanPath, err := validatePath(path)
	if err != nil {
		return fmt.Errorf("invalid path: %w", err)
	}
	return fw.fsw.Add(cleanPath)
}

// AddRecursive watches root and every directory below it that passes the
// filters.
func (fw *FileWatcher) AddRecursive(root string) error {
	cleanRoot, err := validatePath(root)
	if err != nil {
		return fmt.Errorf("invalid root path: %w", err)
	}

	return filepath.WalkDir(cleanRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != cleanRoot && !fw.passes(path) {
			return filepath.SkipDir
		}
		return fw.fsw.Add(path)
	})
}

// WatchedPaths returns the directories currently watched.
func (fw *FileWatcher) WatchedPaths() []string {
	paths := fw.fsw.WatchList()
	sort.Strings(paths)
	return paths
}

// validatePath cleans a path and rejects anything outside the working
// directory.
func validatePath(path string) (string, error) {
	cleanPath := filepath.Clean(path)

	absPath, err := filepath.Abs(cleanPath)
	if err != nil {
		return "", fmt.Errorf("getting absolute path: %w", err)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("getting current directory: %w", err)
	}

	rel, err := filepath.Rel(cwd, absPath)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %s is outside current working directory", path)
	}

	return cleanPath, nil
}

// Start runs the event loop until ctx is done or Stop is called.
func (fw *FileWatcher) Start(ctx context.Context) error {
	fw.wg.Go(func() { fw.loop(ctx) })
	return nil
}

// Stop closes the underlying watcher and waits for the event loop. Pending
// events that have not been delivered yet are dropped.
func (fw *FileWatcher) Stop() error {
	var err error
	fw.stopOnce.Do(func() {
		close(fw.done)
		err = fw.fsw.Close()
	})
	fw.wg.Wait()
	return err
}

func (fw *FileWatcher) loop(ctx context.Context) {
	pending := make(batch)

	timer := time.NewTimer(fw.delay)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-fw.done:
			return
		case event, ok := <-fw.fsw.Events:
			if !ok {
				return
			}
			changes := fw.translate(ctx, event)
			if len(changes) == 0 {
				continue
			}
			for _, c := range changes {
				pending.add(c)
			}
			timer.Reset(fw.delay)
		case err, ok := <-fw.fsw.Errors:
			if !ok {
				return
			}
			fw.logger.Warn(ctx, err, "File watcher error")
		case <-timer.C:
			fw.deliver(ctx, pending.drain())
		}
	}
}

// translate turns one fsnotify event into change events. A new directory is
// watched, and the files already inside it are reported as created.
func (fw *FileWatcher) translate(ctx context.Context, event fsnotify.Event) []ChangeEvent {
	if event.Op == fsnotify.Chmod || !fw.passes(event.Name) {
		return nil
	}

	if !event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		info, err := os.Stat(event.Name)
		if err == nil && info.IsDir() {
			if !event.Has(fsnotify.Create) {
				return nil
			}
			if err := fw.AddRecursive(event.Name); err != nil {
				fw.logger.Warn(ctx, err, "Failed to watch new directory", "path", event.Name)
				return nil
			}
			return fw.filesIn(event.Name)
		}
	}

	return []ChangeEvent{{Type: eventType(event), Path: filepath.ToSlash(event.Name)}}
}

func (fw *FileWatcher) filesIn(dir string) []ChangeEvent {
	var out []ChangeEvent
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !fw.passes(path) {
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() {
			out = append(out, ChangeEvent{Type: EventTypeCreated, Path: filepath.ToSlash(path)})
		}
		return nil
	})
	return out
}

func eventType(event fsnotify.Event) EventType {
	switch {
	case event.Has(fsnotify.Create):
		return EventTypeCreated
	case event.Has(fsnotify.Remove):
		return EventTypeDeleted
	case event.Has(fsnotify.Rename):
		return EventTypeRenamed
	default:
		return EventTypeModified
	}
}

func (fw *FileWatcher) passes(path string) bool {
	fw.mu.RLock()
	defer fw.mu.RUnlock()

	for _, filter := range fw.filters {
		if !filter(path) {
			return false
		}
	}
	return true
}

func (fw *FileWatcher) deliver(ctx context.Context, events []ChangeEvent) {
	if len(events) == 0 {
		return
	}

	fw.mu.RLock()
	handlers := append([]ChangeHandler(nil), fw.handlers...)
	fw.mu.RUnlock()

	fw.logger.Debug(ctx, "Delivering changes", "count", len(events))
	for _, handler := range handlers {
		if err := handler(events); err != nil {
			fw.logger.Warn(ctx, err, "File watcher handler error")
		}
	}
}

// batch coalesces events per path. A file created and then written within
// one batch stays created.
type batch map[string]ChangeEvent

func (b batch) add(e ChangeEvent) {
	if prev, ok := b[e.Path]; ok && prev.Type == EventTypeCreated && e.Type == EventTypeModified {
		return
	}
	b[e.Path] = e
}

// drain returns the pending events sorted by path and empties the batch.
func (b batch) drain() []ChangeEvent {
	events := make([]ChangeEvent, 0, len(b))
	for path, e := range b {
		events = append(events, e)
		delete(b, path)
	}
	sort.Slice(events, func(i, j int) bool { return events[i].Path < events[j].Path })
	return events
}

// NoGitFilter skips version control metadata.
func NoGitFilter(path string) bool {
	return !hasSegment(path, ".git")
}

// NoNodeModulesFilter skips installed packages.
func NoNodeModulesFilter(path string) bool {
	return !hasSegment(path, "node_modules")
}

// NoEditorTempFilter skips editor swap and backup files.
func NoEditorTempFilter(path string) bool {
	base := filepath.Base(path)
	if strings.HasSuffix(base, "~") || strings.HasPrefix(base, ".#") {
		return false
	}
	switch filepath.Ext(base) {
	case ".swp", ".swx", ".tmp":
		return false
	}
	return true
}

func hasSegment(path, segment string) bool {
	for _, s := range strings.Split(filepath.ToSlash(path), "/") {
		if s == segment {
			return true
		}
	}
	return false
}
