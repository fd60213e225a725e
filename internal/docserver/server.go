// Package docserver shares one in-memory document store with many clients
// over websockets. Clients read, commit and subscribe; every notification a
// subscriber would see in-process is forwarded to the remote subscriber.
package docserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/gorilla/websocket"
	"github.com/lox/holdemtable/internal/auth"
	"github.com/lox/holdemtable/internal/store"
	"golang.org/x/sync/errgroup"
)

// Server is the websocket front of a shared store.
type Server struct {
	addr        string
	upgrader    websocket.Upgrader
	store       *store.Memory
	validator   auth.Validator
	clock       quartz.Clock
	logger      *log.Logger
	connections map[*Connection]bool
	mu          sync.RWMutex

	snapshotPath     string
	snapshotInterval time.Duration
}

// Option configures a Server.
type Option func(*Server)

// WithValidator authenticates connecting clients. Without one every token is
// accepted as the caller's uid.
func WithValidator(v auth.Validator) Option {
	return func(s *Server) { s.validator = v }
}

// WithSnapshots persists the store to path every interval and on shutdown.
func WithSnapshots(path string, interval time.Duration) Option {
	return func(s *Server) {
		s.snapshotPath = path
		s.snapshotInterval = interval
	}
}

// WithClock replaces the wall clock used for snapshot scheduling.
func WithClock(clock quartz.Clock) Option {
	return func(s *Server) { s.clock = clock }
}

// NewServer creates a server for st listening on addr.
func NewServer(addr string, st *store.Memory, logger *log.Logger, opts ...Option) *Server {
	s := &Server{
		addr: addr,
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		store:       st,
		validator:   auth.NewNoopValidator(),
		clock:       quartz.NewReal(),
		logger:      logger.WithPrefix("docserver"),
		connections: make(map[*Connection]bool),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler serves /ws and /health.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)
	return mux
}

// Run serves until ctx is cancelled, then closes every connection and writes
// a final snapshot.
func (s *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{Addr: s.addr, Handler: s.Handler()}
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info("Starting document server", "addr", s.addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		s.Stop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if s.snapshotPath != "" && s.snapshotInterval > 0 {
		g.Go(func() error {
			w := s.clock.TickerFunc(ctx, s.snapshotInterval, func() error {
				if err := s.store.SaveSnapshot(s.snapshotPath); err != nil {
					s.logger.Error("Snapshot failed", "error", err)
				}
				return nil
			}, "snapshot")
			err := w.Wait()
			if saveErr := s.store.SaveSnapshot(s.snapshotPath); saveErr != nil {
				s.logger.Error("Final snapshot failed", "error", saveErr)
			}
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	return g.Wait()
}

// Stop closes every client connection.
func (s *Server) Stop() {
	s.mu.Lock()
	conns := make([]*Connection, 0, len(s.connections))
	for conn := range s.connections {
		conns = append(conns, conn)
	}
	s.mu.Unlock()
	for _, conn := range conns {
		_ = conn.Close()
	}
}

// ConnectionCount returns the number of connected clients.
func (s *Server) ConnectionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.connections)
}

func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	identity, err := s.validator.Validate(r.Context(), bearerToken(r))
	switch {
	case errors.Is(err, auth.ErrInvalidToken):
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	case err != nil:
		s.logger.Warn("Identity service unavailable", "error", err)
		http.Error(w, "identity service unavailable", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("Failed to upgrade connection", "error", err)
		return
	}

	client := NewConnection(conn, identity, s.store, s.logger)
	s.mu.Lock()
	s.connections[client] = true
	total := len(s.connections)
	s.mu.Unlock()
	s.logger.Info("Client connected", "total", total)

	client.Start()

	go func() {
		<-client.Done()
		s.mu.Lock()
		delete(s.connections, client)
		total := len(s.connections)
		s.mu.Unlock()
		s.logger.Info("Client disconnected", "total", total)
	}()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "OK")
}
