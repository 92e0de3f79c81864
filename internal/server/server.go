// Package server implements the development server: a static file server
// rooted at the build directory plus a websocket side channel that tells
// connected browsers to reload or re-fetch their stylesheets.
package server

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os/exec"
	"runtime"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/conneroisu/sitepipe/internal/errors"
	"github.com/conneroisu/sitepipe/internal/logging"
)

// ReloadMode selects how browsers apply a change.
type ReloadMode string

const (
	// ReloadInject swaps stylesheets in place, keeping page state.
	ReloadInject ReloadMode = "inject"
	// ReloadFull re-fetches and re-renders the whole page.
	ReloadFull ReloadMode = "full"
)

// Live-update endpoints.
const (
	LiveReloadPath   = "/__livereload"
	LiveReloadScript = "/__livereload.js"
)

// Message types sent to browsers.
const (
	MessageFullReload = "full_reload"
	MessageCSSUpdate  = "css_update"
	MessageBuildError = "build_error"
	MessageBuildOK    = "build_ok"
)

//go:embed assets/livereload.js
var liveReloadJS []byte

// UpdateMessage represents a message sent to the browser
type UpdateMessage struct {
	Type      string    `json:"type"`
	Target    string    `json:"target,omitempty"`
	Content   string    `json:"content,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Options configures a DevServer.
type Options struct {
	Host       string
	CORS       bool
	LiveReload bool
	Open       bool
}

// DevServer serves the build directory and pushes live updates. A DevServer
// can be started once at a time; Start on a running server fails.
type DevServer struct {
	opts   Options
	logger logging.Logger

	mu         sync.Mutex
	running    bool
	root       string
	addr       string
	port       int
	httpServer *http.Server
	cancel     context.CancelFunc
	hubDone    chan struct{}

	browsers   map[*browser]struct{}
	browsersMu sync.RWMutex
	register   chan *browser
	unregister chan *browser
	broadcast  chan []byte

	// Outstanding build_error messages by task.
	buildErrors   map[string][]byte
	buildErrorsMu sync.Mutex

	openBrowser func(url string) error
}

// New creates a dev server. Nothing listens until Start.
func New(opts Options, logger logging.Logger) *DevServer {
	if opts.Host == "" {
		opts.Host = "localhost"
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	return &DevServer{
		opts:        opts,
		logger:      logger.WithComponent("server"),
		browsers:    make(map[*browser]struct{}),
		register:    make(chan *browser),
		unregister:  make(chan *browser),
		broadcast:   make(chan []byte, 16),
		buildErrors: make(map[string][]byte),
		openBrowser: openBrowser,
	}
}

// Start binds host:port and serves rootDir. Binding happens before Start
// returns, so a port already in use is reported here as a network error.
// Port 0 picks a free port; Addr reports the bound address.
func (s *DevServer) Start(ctx context.Context, rootDir string, port int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return errors.NewValidationError(errors.ErrCodeServerRunning,
			"dev server already running on "+s.addr)
	}

	addr := net.JoinHostPort(s.opts.Host, strconv.Itoa(port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.NewNetworkError(errors.ErrCodePortInUse,
			fmt.Sprintf("cannot listen on %s", addr), err)
	}

	s.root = rootDir
	s.addr = listener.Addr().String()
	s.port = listener.Addr().(*net.TCPAddr).Port
	s.hubDone = make(chan struct{})

	hubCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	go s.runWebSocketHub(hubCtx)

	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.logger.Error(context.Background(), err, "Dev server stopped unexpectedly")
		}
	}()

	s.running = true
	s.logger.Info(ctx, "Dev server listening", "url", s.urlLocked(), "root", rootDir)

	if s.opts.Open {
		go func(u string) {
			if err := s.openBrowser(u); err != nil {
				s.logger.Warn(context.Background(), err, "Failed to open browser", "url", u)
			}
		}(s.urlLocked())
	}

	return nil
}

// Handler returns the HTTP handler serving the current root.
func (s *DevServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(LiveReloadPath, s.handleWebSocket)
	mux.HandleFunc(LiveReloadScript, s.handleScript)
	mux.Handle("/", &staticHandler{
		root:   s.Root,
		inject: s.opts.LiveReload,
		logger: s.logger,
	})

	return s.addMiddleware(mux)
}

func (s *DevServer) addMiddleware(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.opts.CORS {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, HEAD, OPTIONS")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
		}
		w.Header().Set("Cache-Control", "no-cache")
		handler.ServeHTTP(w, r)
	})
}

func (s *DevServer) handleScript(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
	_, _ = w.Write(liveReloadJS)
}

// ReloadClients pushes a reload to every connected browser and returns how
// many were connected. It is a no-op when the server is not running.
func (s *DevServer) ReloadClients(mode ReloadMode) int {
	msgType := MessageFullReload
	if mode == ReloadInject {
		msgType = MessageCSSUpdate
	}

	return s.broadcastMessage(UpdateMessage{Type: msgType, Timestamp: time.Now()})
}

// ReportBuild records the outcome of a rebuild of task. A failure is pushed
// to browsers and replayed to browsers that connect while it is outstanding.
// A success clears only that task's failure.
func (s *DevServer) ReportBuild(task string, err error) {
	if err == nil {
		s.buildErrorsMu.Lock()
		_, hadError := s.buildErrors[task]
		delete(s.buildErrors, task)
		s.buildErrorsMu.Unlock()
		if hadError {
			s.broadcastMessage(UpdateMessage{Type: MessageBuildOK, Target: task, Timestamp: time.Now()})
		}
		return
	}

	msg := UpdateMessage{
		Type:      MessageBuildError,
		Target:    task,
		Content:   err.Error(),
		Timestamp: time.Now(),
	}
	if data, mErr := json.Marshal(msg); mErr == nil {
		s.buildErrorsMu.Lock()
		s.buildErrors[task] = data
		s.buildErrorsMu.Unlock()
	}
	s.broadcastMessage(msg)
}

// pendingErrors returns the outstanding build_error messages ordered by task.
func (s *DevServer) pendingErrors() [][]byte {
	s.buildErrorsMu.Lock()
	defer s.buildErrorsMu.Unlock()

	tasks := make([]string, 0, len(s.buildErrors))
	for task := range s.buildErrors {
		tasks = append(tasks, task)
	}
	sort.Strings(tasks)

	out := make([][]byte, 0, len(tasks))
	for _, task := range tasks {
		out = append(out, s.buildErrors[task])
	}
	return out
}

func (s *DevServer) broadcastMessage(msg UpdateMessage) int {
	s.mu.Lock()
	running := s.running
	hubDone := s.hubDone
	s.mu.Unlock()

	if !running {
		return 0
	}

	jsonData, err := json.Marshal(msg)
	if err != nil {
		s.logger.Warn(context.Background(), err, "Failed to marshal message")
		jsonData = []byte(`{"type":"full_reload"}`)
	}

	count := s.ClientCount()
	select {
	case s.broadcast <- jsonData:
	case <-hubDone:
		return 0
	}
	return count
}

// ClientCount returns the number of connected browsers.
func (s *DevServer) ClientCount() int {
	s.browsersMu.RLock()
	defer s.browsersMu.RUnlock()
	return len(s.browsers)
}

// Running reports whether the server is listening.
func (s *DevServer) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Root returns the directory being served.
func (s *DevServer) Root() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.root
}

// Addr returns the bound address, empty when not running.
func (s *DevServer) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// URL returns the browsable URL of the server.
func (s *DevServer) URL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.urlLocked()
}

func (s *DevServer) urlLocked() string {
	u := url.URL{Scheme: "http", Host: net.JoinHostPort(s.opts.Host, strconv.Itoa(s.port)), Path: "/"}
	return u.String()
}

// Shutdown disconnects every browser and stops the HTTP server.
func (s *DevServer) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	cancel := s.cancel
	hubDone := s.hubDone
	httpServer := s.httpServer
	s.mu.Unlock()

	s.logger.Info(ctx, "Shutting down dev server")

	cancel()
	<-hubDone

	return httpServer.Shutdown(ctx)
}

func openBrowser(u string) error {
	parsed, err := url.Parse(u)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return fmt.Errorf("refusing to open %q", u)
	}

	switch runtime.GOOS {
	case "linux":
		return exec.Command("xdg-open", u).Start()
	case "windows":
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", u).Start()
	case "darwin":
		return exec.Command("open", u).Start()
	default:
		return fmt.Errorf("unsupported platform")
	}
}
