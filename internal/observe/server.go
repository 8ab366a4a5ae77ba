package observe

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// SnapshotFunc returns the current session lifecycle for /snapshot. The
// engine supplies it; the server never reaches into engine state directly.
type SnapshotFunc func() any

// feedSendTimeout bounds one websocket write so a stalled watcher cannot
// back-pressure the orchestration loop.
const feedSendTimeout = 2 * time.Second

// subscriberBuffer is per-watcher; events overflowing it are dropped for
// that watcher rather than blocking Publish.
const subscriberBuffer = 64

// Server exposes the read-only phase/decision feed on a local address.
type Server struct {
	logger   *slog.Logger
	snapshot SnapshotFunc
	upgrader websocket.Upgrader

	mu          sync.Mutex
	subscribers map[chan Event]struct{}
	closed      bool

	httpServer *http.Server
	addr       net.Addr
}

// NewServer builds a feed server. snapshot may be nil, in which case
// /snapshot serves an empty object.
func NewServer(logger *slog.Logger, snapshot SnapshotFunc) *Server {
	if snapshot == nil {
		snapshot = func() any { return struct{}{} }
	}
	s := &Server{
		logger:      logger,
		snapshot:    snapshot,
		subscribers: make(map[chan Event]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
	return s
}

// SetSnapshot swaps the snapshot source. The engine's publisher must exist
// before the engine does, so the caller closes the loop with this.
func (s *Server) SetSnapshot(snapshot SnapshotFunc) {
	if snapshot == nil {
		return
	}
	s.mu.Lock()
	s.snapshot = snapshot
	s.mu.Unlock()
}

// Start listens on addr and serves until Shutdown. Returns once the listener
// is bound so callers can read Addr immediately.
func (s *Server) Start(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.addr = listener.Addr()

	mux := http.NewServeMux()
	mux.HandleFunc("/snapshot", s.handleSnapshot)
	mux.HandleFunc("/feed", s.handleFeed)

	s.httpServer = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if serveErr := s.httpServer.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			if s.logger != nil {
				s.logger.Error("observe server failed", "error", serveErr.Error())
			}
		}
	}()
	return nil
}

// Addr reports the bound address, useful when addr was ":0".
func (s *Server) Addr() string {
	if s.addr == nil {
		return ""
	}
	return s.addr.String()
}

// Publish fans one event out to every connected watcher. Never blocks; slow
// watchers lose events instead of stalling the session.
func (s *Server) Publish(event Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	for ch := range s.subscribers {
		select {
		case ch <- event:
		default:
		}
	}
}

// Shutdown closes every watcher stream and stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	for ch := range s.subscribers {
		close(ch)
	}
	s.subscribers = make(map[chan Event]struct{})
	s.mu.Unlock()

	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.mu.Lock()
	snapshot := s.snapshot
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(snapshot()); err != nil && s.logger != nil {
		s.logger.Warn("encode snapshot failed", "error", err.Error())
	}
}

func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		return
	}

	ch := s.subscribe()
	if ch == nil {
		_ = conn.Close()
		return
	}
	defer func() {
		s.unsubscribe(ch)
		_ = conn.Close()
	}()

	// Reads are only consumed to notice the peer going away.
	peerGone := make(chan struct{})
	go func() {
		defer close(peerGone)
		for {
			if _, _, readErr := conn.ReadMessage(); readErr != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-peerGone:
			return
		case event, ok := <-ch:
			if !ok {
				_ = conn.WriteControl(
					websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session over"),
					time.Now().Add(feedSendTimeout),
				)
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(feedSendTimeout))
			if writeErr := conn.WriteJSON(event); writeErr != nil {
				return
			}
		}
	}
}

func (s *Server) subscribe() chan Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	ch := make(chan Event, subscriberBuffer)
	s.subscribers[ch] = struct{}{}
	return ch
}

func (s *Server) unsubscribe(ch chan Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subscribers[ch]; ok {
		delete(s.subscribers, ch)
		close(ch)
	}
}
