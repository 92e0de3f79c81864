package server

import (
	"context"
	"net"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"time"

	"github.com/coder/websocket"
)

const (
	writeTimeout = 10 * time.Second
	pingInterval = 30 * time.Second

	// Messages queued for one browser before it is dropped as too slow.
	sendQueue = 32
)

// browser is one connected live-reload client.
type browser struct {
	conn *websocket.Conn
	send chan []byte
}

func (s *DevServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	running := s.running
	done := s.hubDone
	s.mu.Unlock()

	if !running {
		http.Error(w, "Server not running", http.StatusServiceUnavailable)
		return
	}

	allowed := s.allowedOrigins()
	if !checkOrigin(r, allowed) {
		http.Error(w, "Origin not allowed", http.StatusForbidden)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: allowed})
	if err != nil {
		s.logger.Warn(r.Context(), err, "WebSocket upgrade error")
		return
	}

	b := &browser{conn: conn, send: make(chan []byte, sendQueue)}

	select {
	case s.register <- b:
	case <-done:
		conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}

	s.serveBrowser(b, done)
}

// serveBrowser writes queued messages to b until the browser disconnects or
// the hub closes its queue. Browsers never send anything, so reads are only
// drained for control frames.
func (s *DevServer) serveBrowser(b *browser, hubDone <-chan struct{}) {
	ctx := b.conn.CloseRead(context.Background())

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	defer func() {
		select {
		case s.unregister <- b:
		case <-hubDone:
		}
		b.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case msg, ok := <-b.send:
			if !ok {
				return
			}
			if err := b.write(ctx, msg); err != nil {
				s.logger.Debug(ctx, "WebSocket write failed", "error", err.Error())
				return
			}

		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := b.conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

func (b *browser) write(ctx context.Context, msg []byte) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return b.conn.Write(ctx, websocket.MessageText, msg)
}

// allowedOrigins lists the host:port pairs browsers may connect from: the
// configured host plus localhost and 127.0.0.1 on the bound port.
func (s *DevServer) allowedOrigins() []string {
	s.mu.Lock()
	port := strconv.Itoa(s.port)
	s.mu.Unlock()

	return []string{
		net.JoinHostPort(s.opts.Host, port),
		net.JoinHostPort("localhost", port),
		net.JoinHostPort("127.0.0.1", port),
	}
}

// checkOrigin accepts only http(s) pages served from an allowed host:port.
func checkOrigin(r *http.Request, allowed []string) bool {
	origin, err := url.Parse(r.Header.Get("Origin"))
	if err != nil || origin.Host == "" {
		return false
	}
	if origin.Scheme != "http" && origin.Scheme != "https" {
		return false
	}
	return slices.Contains(allowed, origin.Host)
}

// runWebSocketHub owns the browser set. It replays outstanding build errors
// to browsers as they connect and drops browsers whose queue is full.
func (s *DevServer) runWebSocketHub(ctx context.Context) {
	defer close(s.hubDone)
	defer s.dropAll()

	for {
		select {
		case <-ctx.Done():
			return

		case b := <-s.register:
			s.browsersMu.Lock()
			s.browsers[b] = struct{}{}
			n := len(s.browsers)
			s.browsersMu.Unlock()
			s.logger.Debug(ctx, "Browser connected", "clients", n)

			for _, msg := range s.pendingErrors() {
				select {
				case b.send <- msg:
				default:
				}
			}

		case b := <-s.unregister:
			if s.drop(b) {
				s.logger.Debug(ctx, "Browser disconnected", "clients", s.ClientCount())
			}

		case msg := <-s.broadcast:
			var slow []*browser
			s.browsersMu.RLock()
			for b := range s.browsers {
				select {
				case b.send <- msg:
				default:
					slow = append(slow, b)
				}
			}
			s.browsersMu.RUnlock()

			for _, b := range slow {
				s.drop(b)
				s.logger.Debug(ctx, "Dropped slow browser")
			}
		}
	}
}

// drop removes b and closes its queue. It reports false if b was already
// gone.
func (s *DevServer) drop(b *browser) bool {
	s.browsersMu.Lock()
	defer s.browsersMu.Unlock()

	if _, ok := s.browsers[b]; !ok {
		return false
	}
	delete(s.browsers, b)
	close(b.send)
	return true
}

func (s *DevServer) dropAll() {
	s.browsersMu.Lock()
	defer s.browsersMu.Unlock()

	for b := range s.browsers {
		delete(s.browsers, b)
		close(b.send)
	}
}
