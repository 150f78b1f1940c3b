package server

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/tempest/internal/protocol"
)

// TestMessageSizeLimit verifies the line limit and the read buffer bound.
func TestMessageSizeLimit(t *testing.T) {
	srv := startServer(t, nil)

	t.Run("Line of exactly 500 characters is accepted", func(t *testing.T) {
		c := dial(t, srv)
		c.send(strings.Repeat("a", 500))
		c.expect("You must /connect first.")
	})

	t.Run("Line over 500 characters is rejected and the connection stays open", func(t *testing.T) {
		c := dial(t, srv)
		c.send(strings.Repeat("a", 501))
		c.expect("Error: Message too long (max 500 characters)")
		c.send("/who")
		c.expect("You must /connect first.")
	})

	t.Run("Characters are counted, not bytes", func(t *testing.T) {
		c := dial(t, srv)
		c.send(strings.Repeat("é", 500))
		c.expect("You must /connect first.")
	})

	t.Run("Surrounding whitespace does not count", func(t *testing.T) {
		c := dial(t, srv)
		c.send(strings.Repeat("a", 499) + "   ")
		c.expect("You must /connect first.")
	})

	t.Run("Terminated line larger than the read buffer is rejected and the connection stays open", func(t *testing.T) {
		c := dial(t, srv)
		c.send("/connect " + strings.Repeat("A", 10000))
		c.expect("Error: Message too long (max 500 characters)")
		c.send("/who")
		c.expect("You must /connect first.")
		c.connect(srv, "Alice")
	})

	t.Run("Several oversized lines in a row", func(t *testing.T) {
		c := dial(t, srv)
		big := strings.Repeat("B", 3*readBufferSize) + "\n"
		_, err := c.conn.Write([]byte(big + big + "/who\n"))
		require.NoError(t, err)
		c.expect("Error: Message too long (max 500 characters)")
		c.expect("Error: Message too long (max 500 characters)")
		c.expect("You must /connect first.")
	})

	t.Run("No newline within the hard limit closes the connection", func(t *testing.T) {
		c := dial(t, srv)
		// The server may reset the connection before the whole write lands.
		_, _ = c.conn.Write([]byte(strings.Repeat("x", maxLineBytes+readBufferSize)))
		c.expectClosed()
	})
}

// TestServerFull verifies the connection cap and that a freed slot is reused.
func TestServerFull(t *testing.T) {
	srv := startServer(t, func(cfg *Config) { cfg.MaxClients = 2 })

	first := dial(t, srv)
	dial(t, srv)

	rejected := dialRaw(t, srv)
	rejected.expect(protocol.ServerFull)
	rejected.expectClosed()

	first.send("/bye")
	first.expect(protocol.Goodbye)
	first.expectClosed()

	require.Eventually(t, func() bool {
		connections, _ := srv.sessions.counts()
		return connections == 1
	}, readTimeout, 10*time.Millisecond)
	dial(t, srv)
}

// TestChatRateLimit verifies the per-session sliding window over the wire.
func TestChatRateLimit(t *testing.T) {
	srv := startServer(t, func(cfg *Config) {
		cfg.RateLimit = RateLimitConfig{Messages: 3, Window: time.Minute}
	})

	alice := dial(t, srv)
	aliceAvatar := alice.connect(srv, "Alice")
	alice.join("lobby", "Alice", aliceAvatar)

	bob := dial(t, srv)
	bobAvatar := bob.connect(srv, "Bob")
	bob.join("lobby", "Bob", bobAvatar)
	alice.expect(protocol.Joined(bobAvatar, "Bob"))

	for i := 1; i <= 3; i++ {
		alice.send(fmt.Sprintf("msg %d", i))
	}
	alice.send("msg 4")
	alice.expect(protocol.RateLimited)

	for i := 1; i <= 3; i++ {
		bob.expect(protocol.Chat(aliceAvatar, "Alice", fmt.Sprintf("msg %d", i)))
	}
	bob.expectSilence(100 * time.Millisecond)

	t.Run("Commands are not rate limited", func(t *testing.T) {
		alice.send("/who")
		alice.expect("USERS: " + protocol.Member(aliceAvatar, "Alice") + ", " + protocol.Member(bobAvatar, "Bob"))
	})

	room, ok := srv.Hub().Room("lobby")
	require.True(t, ok)
	assert.Equal(t, 3, room.HistoryLen())
}

// TestRoomLimitOverWire verifies the 51st room is refused and the session
// stays in its current room.
func TestRoomLimitOverWire(t *testing.T) {
	srv := startServer(t, nil)

	for i := 0; i < 50; i++ {
		c := dial(t, srv)
		c.send(fmt.Sprintf("/connect user%d", i))
		c.send(fmt.Sprintf("/room room-%d", i))
	}
	require.Eventually(t, func() bool { return srv.Hub().RoomCount() == 50 }, readTimeout, 10*time.Millisecond)

	carol := dial(t, srv)
	avatar := carol.connect(srv, "Carol")
	carol.send("/room room-0")
	carol.expect(protocol.Entered("room-0"))
	carol.expect(protocol.Joined(avatar, "Carol"))

	carol.send("/room one-too-many")
	carol.expect("Error: Server room limit reached (50 rooms)")

	carol.send("/who")
	line := carol.next()
	assert.True(t, strings.HasPrefix(line, "USERS: "), line)
	assert.Contains(t, line, "Carol")
	assert.Contains(t, line, "user0")
	assert.Equal(t, 50, srv.Hub().RoomCount())
}

// TestIdleTimeout verifies idle sessions are closed without a GOODBYE and
// their rooms are notified.
func TestIdleTimeout(t *testing.T) {
	srv := startServer(t, func(cfg *Config) {
		cfg.IdleTimeout = 300 * time.Millisecond
		cfg.SweepInterval = 25 * time.Millisecond
		cfg.RateLimit = RateLimitConfig{Messages: 1000, Window: time.Minute}
	})

	idle := dial(t, srv)
	idleAvatar := idle.connect(srv, "Sleepy")
	idle.join("lobby", "Sleepy", idleAvatar)

	active := dial(t, srv)
	activeAvatar := active.connect(srv, "Busy")
	active.join("lobby", "Busy", activeAvatar)
	idle.expect(protocol.Joined(activeAvatar, "Busy"))

	// Chat is not echoed, so the active session only hears the leave notice.
	deadline := time.Now().Add(readTimeout)
	for len(srv.sessions.snapshot()) > 1 {
		require.True(t, time.Now().Before(deadline), "idle session was not closed")
		active.send("still here")
		time.Sleep(50 * time.Millisecond)
	}

	active.expect(protocol.Left(idleAvatar, "Sleepy"))
	idle.expectClosed()
}

// TestSweepLifetime verifies the lifetime cap using an injected clock.
func TestSweepLifetime(t *testing.T) {
	var mu sync.Mutex
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	srv := startServer(t, nil, WithClock(clock))

	c := dial(t, srv)
	c.connect(srv, "Alice")

	assert.Equal(t, 0, srv.sweep(clock().Add(4*time.Minute)))

	mu.Lock()
	now = now.Add(59 * time.Minute)
	mu.Unlock()
	c.send("/help")
	for range strings.Split(protocol.Help, "\n") {
		c.next()
	}

	assert.Equal(t, 0, srv.sweep(clock().Add(30*time.Second)), "recently active and under the lifetime cap")
	assert.Equal(t, 1, srv.sweep(clock().Add(2*time.Minute)), "connected for over an hour")
	c.expectClosed()
}
