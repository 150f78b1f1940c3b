// Package server defines shared error values, admin payload types, and
// utility helpers that are reused across session and hub logic.
package server

import (
	"errors"
	"net"
	"strings"
	"time"
)

var (
	// ErrRoomLimit is returned when joining would create a room beyond MaxRooms.
	ErrRoomLimit = errors.New("room limit reached")
	// ErrNicknameTaken is returned when a nickname is in use, ignoring case.
	ErrNicknameTaken = errors.New("nickname already in use")
	// ErrNotInRoom is returned when a session sends to a room it is not in.
	ErrNotInRoom = errors.New("session is not in a room")
	// ErrServerFull is returned when the connection cap is reached.
	ErrServerFull = errors.New("server full")
	// ErrLineTooLong is returned for a complete line too large to buffer.
	// The line has been discarded and the connection is still usable.
	ErrLineTooLong = errors.New("line exceeds read buffer")
	// ErrLineOverflow is returned when no newline arrives within maxLineBytes.
	ErrLineOverflow = errors.New("line exceeds hard limit")
)

// MemberInfo is one room member in admin API output.
type MemberInfo struct {
	SessionID string `json:"session_id"`
	Nickname  string `json:"nickname"`
	Avatar    string `json:"avatar"`
}

// RoomInfo is a point-in-time view of one room.
type RoomInfo struct {
	Name        string       `json:"name"`
	Members     []MemberInfo `json:"members"`
	HistorySize int          `json:"history_size"`
}

// Stats summarizes server occupancy.
type Stats struct {
	Connections int       `json:"connections"`
	Sessions    int       `json:"sessions"`
	Rooms       int       `json:"rooms"`
	MaxClients  int       `json:"max_clients"`
	MaxRooms    int       `json:"max_rooms"`
	StartedAt   time.Time `json:"started_at"`
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, net.ErrClosed) {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe") ||
		strings.Contains(errStr, "connection reset by peer")
}
