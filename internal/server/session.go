// Package server tracks per-connection session state: identity, room
// membership, activity timestamps, and the outbound write path.
package server

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/Tyrowin/tempest/internal/protocol"
)

// Session is the server-side state of one live connection.
//
// Identity and room fields are guarded by mu. Outbound lines go through a
// buffered channel drained by writePump; nothing else writes to the socket.
type Session struct {
	id          uuid.UUID
	transport   lineTransport
	logger      *slog.Logger
	connectedAt time.Time
	lastSeen    atomic.Int64

	mu       sync.RWMutex
	nickname string
	avatar   string
	room     *Room

	sendMu     sync.Mutex
	send       chan string
	sendClosed bool
	writerDone chan struct{}

	writeTimeout time.Duration
	limiter      *rateLimiter

	closeOnce   sync.Once
	cleanupOnce sync.Once
	reason      atomic.Value
}

func newSession(t lineTransport, cfg Config, now func() time.Time, logger *slog.Logger) *Session {
	id := uuid.New()
	started := now()
	s := &Session{
		id:           id,
		transport:    t,
		logger:       logger.With("session_id", id.String(), "addr", t.RemoteAddr()),
		connectedAt:  started,
		send:         make(chan string, cfg.SendBuffer),
		writerDone:   make(chan struct{}),
		writeTimeout: cfg.WriteTimeout,
		limiter:      newRateLimiter(cfg.RateLimit.Messages, cfg.RateLimit.Window, now),
	}
	s.lastSeen.Store(started.UnixNano())
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id.String()
}

// Identity returns the nickname and avatar; both are empty before /connect.
func (s *Session) Identity() (nickname, avatar string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nickname, s.avatar
}

// Connected reports whether /connect has succeeded.
func (s *Session) Connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nickname != ""
}

// Room returns the room the session is in, or nil.
func (s *Session) Room() *Room {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.room
}

func (s *Session) setRoom(r *Room) {
	s.mu.Lock()
	s.room = r
	s.mu.Unlock()
}

func (s *Session) setIdentity(nickname, avatar string) {
	s.mu.Lock()
	s.nickname = nickname
	s.avatar = avatar
	s.mu.Unlock()
}

func (s *Session) label() string {
	nickname, avatar := s.Identity()
	return protocol.Member(avatar, nickname)
}

func (s *Session) info() MemberInfo {
	nickname, avatar := s.Identity()
	return MemberInfo{SessionID: s.ID(), Nickname: nickname, Avatar: avatar}
}

func (s *Session) touch(t time.Time) {
	s.lastSeen.Store(t.UnixNano())
}

// LastActivity returns when the session last sent a line.
func (s *Session) LastActivity() time.Time {
	return time.Unix(0, s.lastSeen.Load())
}

// ConnectedAt returns when the connection was accepted.
func (s *Session) ConnectedAt() time.Time {
	return s.connectedAt
}

// deliver queues a line without blocking. It returns false if the session is
// closing or its buffer is full; the caller decides whether to drop it.
func (s *Session) deliver(line string) bool {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	if s.sendClosed {
		return false
	}
	select {
	case s.send <- line:
		return true
	default:
		return false
	}
}

// closeSend stops accepting lines; writePump flushes what is queued and exits.
func (s *Session) closeSend() {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	if !s.sendClosed {
		s.sendClosed = true
		close(s.send)
	}
}

func (s *Session) writePump() {
	defer close(s.writerDone)

	for line := range s.send {
		if err := s.transport.SetWriteDeadline(time.Now().Add(s.writeTimeout)); err != nil {
			s.terminate("write deadline failed")
			return
		}
		if err := s.transport.WriteLine(line); err != nil {
			if !isExpectedCloseError(err) {
				s.logger.Warn("write failed", "err", err)
			}
			s.terminate("write failed")
			return
		}
	}
}

// terminate forces the connection closed. The connection handler notices the
// failed read and runs cleanup; calling terminate again is a no-op.
func (s *Session) terminate(reason string) {
	s.closeOnce.Do(func() {
		s.reason.Store(reason)
		if err := s.transport.Close(); err != nil && !isExpectedCloseError(err) {
			s.logger.Debug("close transport", "err", err)
		}
	})
}

// closeReason returns why terminate was called, or "" if it was not.
func (s *Session) closeReason() string {
	if r, ok := s.reason.Load().(string); ok {
		return r
	}
	return ""
}
