// Package server implements the Tempest TCP chat server: the accept loop,
// connection capacity control, timeout sweeps, and graceful shutdown.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/sync/errgroup"

	"github.com/Tyrowin/tempest/internal/protocol"
)

const shutdownTimeout = 5 * time.Second

// Option customizes a Server.
type Option func(*Server)

// WithLogger sets the structured logger. The default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock replaces time.Now for session timestamps, rate limiting and sweeps.
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		if now != nil {
			s.now = now
		}
	}
}

// WithAvatarPicker replaces the random avatar draw.
func WithAvatarPicker(pick func() string) Option {
	return func(s *Server) {
		if pick != nil {
			s.pickAvatar = pick
		}
	}
}

// Server owns the room registry, the live session set and the listeners.
type Server struct {
	cfg        Config
	hub        *Hub
	sessions   *sessionSet
	origins    *originPolicy
	logger     *slog.Logger
	now        func() time.Time
	pickAvatar func() string
	startedAt  time.Time
	admin      *echo.Echo

	mu       sync.Mutex
	listener net.Listener
	ready    chan struct{}

	handlers sync.WaitGroup
}

// New creates a Server from cfg; invalid or missing values fall back to defaults.
func New(cfg *Config, opts ...Option) *Server {
	if cfg == nil {
		cfg = NewConfig()
	}
	s := &Server{
		cfg:        sanitizeConfig(*cfg),
		logger:     slog.Default(),
		now:        time.Now,
		pickAvatar: randomAvatar,
		ready:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.hub = NewHub(s.cfg.MaxRooms, s.cfg.MaxHistory, s.cfg.HistoryReplay, s.logger)
	s.sessions = newSessionSet(s.cfg.MaxClients)
	s.origins = newOriginPolicy(s.cfg.AllowedOrigins, s.logger)
	s.startedAt = s.now()
	s.admin = newAdminAPI(s)
	return s
}

// Hub returns the room registry.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Config returns the effective configuration.
func (s *Server) Config() Config {
	return s.cfg
}

// Addr blocks until the TCP listener is bound and returns its address.
func (s *Server) Addr() net.Addr {
	<-s.ready
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listener.Addr()
}

// Stats reports current occupancy.
func (s *Server) Stats() Stats {
	connections, sessions := s.sessions.counts()
	return Stats{
		Connections: connections,
		Sessions:    sessions,
		Rooms:       s.hub.RoomCount(),
		MaxClients:  s.cfg.MaxClients,
		MaxRooms:    s.cfg.MaxRooms,
		StartedAt:   s.startedAt,
	}
}

// Run listens on the configured TCP address and serves until ctx is canceled.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.Addr(), err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln and runs the timeout sweeper, the stats
// logger and, when configured, the admin HTTP server. It returns after ctx is
// canceled and every session has been closed, or on the first fatal error.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	close(s.ready)

	s.logger.Info("tempest server listening",
		"addr", ln.Addr().String(),
		"max_clients", s.cfg.MaxClients,
		"max_rooms", s.cfg.MaxRooms)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.acceptLoop(gctx, ln) })
	g.Go(func() error {
		<-gctx.Done()
		if err := ln.Close(); err != nil && !isExpectedCloseError(err) {
			s.logger.Warn("close listener", "err", err)
		}
		return nil
	})
	g.Go(func() error { return s.runSweeper(gctx) })
	g.Go(func() error { return s.runStats(gctx) })
	if s.cfg.HTTPAddr != "" {
		g.Go(func() error { return s.runAdmin(gctx, s.cfg.HTTPAddr) })
	}

	err := g.Wait()
	if shutdownErr := s.closeSessions(shutdownTimeout); shutdownErr != nil && err == nil {
		err = shutdownErr
	}
	s.logger.Info("tempest server stopped")
	return err
}

func (s *Server) acceptLoop(ctx context.Context, ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return fmt.Errorf("listener closed: %w", err)
			}
			s.logger.Error("accept error", "err", err)
			time.Sleep(50 * time.Millisecond)
			continue
		}

		s.logger.Debug("accepting connection", "addr", conn.RemoteAddr().String())
		s.handlers.Add(1)
		go func() {
			defer s.handlers.Done()
			s.serve(newTCPTransport(conn))
		}()
	}
}

// serve runs one connection from admission to cleanup. It is shared by the
// TCP listener and the WebSocket gateway.
func (s *Server) serve(t lineTransport) {
	if err := s.sessions.reserve(); err != nil {
		s.logger.Warn("rejecting connection", "err", err, "addr", t.RemoteAddr(), "max_clients", s.cfg.MaxClients)
		_ = t.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
		_ = t.WriteLine(protocol.ServerFull)
		_ = t.Close()
		return
	}
	defer s.sessions.release()

	session := newSession(t, s.cfg, s.now, s.logger)
	s.sessions.add(session)
	connections, _ := s.sessions.counts()
	session.logger.Info("client accepted", "transport", t.Kind(), "connections", connections, "max_clients", s.cfg.MaxClients)

	go session.writePump()
	defer s.finish(session)
	defer func() {
		if r := recover(); r != nil {
			session.logger.Error("connection handler panicked", "panic", r)
		}
	}()

	session.deliver(protocol.Greeting)
	newClient(s, session).run()
}

// finish removes a session from its room and the live set, flushes queued
// output and closes the transport. It runs exactly once per session.
func (s *Server) finish(session *Session) {
	session.cleanupOnce.Do(func() {
		left := s.hub.Leave(session)
		s.sessions.remove(session)
		session.closeSend()

		select {
		case <-session.writerDone:
		case <-time.After(s.cfg.WriteTimeout):
			session.logger.Warn("write pump did not drain before close")
		}
		session.terminate("session finished")

		nickname, _ := session.Identity()
		session.logger.Info("client cleaned up", "nickname", nickname, "left_room", left)
	})
}

// sweep closes sessions that have been idle too long or connected longer
// than the lifetime cap. It returns how many were closed.
func (s *Server) sweep(now time.Time) int {
	closed := 0
	for _, session := range s.sessions.snapshot() {
		switch {
		case now.Sub(session.LastActivity()) > s.cfg.IdleTimeout:
			session.terminate("idle timeout")
		case now.Sub(session.ConnectedAt()) > s.cfg.MaxLifetime:
			session.terminate("lifetime exceeded")
		default:
			continue
		}
		closed++
	}
	return closed
}

func (s *Server) runSweeper(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := s.sweep(s.now()); n > 0 {
				s.logger.Info("timed out sessions", "closed", n)
			}
		}
	}
}

// runStats logs occupancy every StatsInterval while anything is connected.
func (s *Server) runStats(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.StatsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			st := s.Stats()
			if st.Connections > 0 || st.Rooms > 0 {
				s.logger.Info("stats", "connections", st.Connections, "sessions", st.Sessions, "rooms", st.Rooms)
			}
		}
	}
}

// closeSessions terminates every live session and waits for their handlers
// to finish cleanup, up to timeout.
func (s *Server) closeSessions(timeout time.Duration) error {
	sessions := s.sessions.snapshot()
	for _, session := range sessions {
		session.terminate("server shutdown")
	}
	if len(sessions) > 0 {
		s.logger.Info("closing client connections", "count", len(sessions))
	}

	done := make(chan struct{})
	go func() {
		s.handlers.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		s.logger.Warn("shutdown timeout reached, some handlers may still be running")
		return context.DeadlineExceeded
	}
}
