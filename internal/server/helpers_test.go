package server

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/tempest/internal/protocol"
)

const readTimeout = 2 * time.Second

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startServer runs a Server on a loopback port until the test ends.
func startServer(t *testing.T, mutate func(*Config), opts ...Option) *Server {
	t.Helper()

	cfg := NewConfig()
	cfg.Host = "127.0.0.1"
	if mutate != nil {
		mutate(cfg)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := New(cfg, append([]Option{WithLogger(discardLogger())}, opts...)...)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(10 * time.Second):
			t.Error("server did not stop")
		}
	})
	return srv
}

type testClient struct {
	t      *testing.T
	conn   net.Conn
	reader *bufio.Reader
}

// dialRaw opens a connection without consuming anything.
func dialRaw(t *testing.T, srv *Server) *testClient {
	t.Helper()
	conn, err := net.DialTimeout("tcp", srv.Addr().String(), readTimeout)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return &testClient{t: t, conn: conn, reader: bufio.NewReader(conn)}
}

// dial opens a connection and consumes the greeting.
func dial(t *testing.T, srv *Server) *testClient {
	t.Helper()
	c := dialRaw(t, srv)
	c.expect(protocol.Greeting)
	return c
}

func (c *testClient) send(line string) {
	c.t.Helper()
	require.NoError(c.t, c.conn.SetWriteDeadline(time.Now().Add(readTimeout)))
	_, err := c.conn.Write([]byte(line + "\n"))
	require.NoError(c.t, err)
}

func (c *testClient) readLine() (string, error) {
	if err := c.conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
		return "", err
	}
	line, err := c.reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSuffix(line, "\n"), nil
}

func (c *testClient) next() string {
	c.t.Helper()
	line, err := c.readLine()
	require.NoError(c.t, err)
	return line
}

func (c *testClient) expect(want string) {
	c.t.Helper()
	require.Equal(c.t, want, c.next())
}

// expectSilence fails if any line arrives within d.
func (c *testClient) expectSilence(d time.Duration) {
	c.t.Helper()
	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(d)))
	line, err := c.reader.ReadString('\n')
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return
	}
	c.t.Fatalf("expected no line, got %q (err=%v)", line, err)
}

// expectClosed fails unless the server closes the connection.
func (c *testClient) expectClosed() {
	c.t.Helper()
	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(readTimeout)))
	for {
		_, err := c.reader.ReadString('\n')
		if err == nil {
			continue
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			c.t.Fatal("connection still open")
		}
		return
	}
}

// connect performs /connect and consumes the welcome and room overview.
// It returns the assigned avatar.
func (c *testClient) connect(srv *Server, nickname string) string {
	c.t.Helper()
	overview := protocol.Rooms(srv.Hub().Listing())

	c.send("/connect " + nickname)
	welcome := c.next()
	require.True(c.t, strings.HasPrefix(welcome, "WELCOME "+nickname+" ["), welcome)
	require.True(c.t, strings.HasSuffix(welcome, "]"), welcome)

	for _, line := range strings.Split(overview, "\n") {
		c.expect(line)
	}
	return strings.TrimSuffix(strings.TrimPrefix(welcome, "WELCOME "+nickname+" ["), "]")
}

// join performs /room and consumes ENTERED, history replay and the join notice.
func (c *testClient) join(room, nickname, avatar string, history ...string) {
	c.t.Helper()
	c.send("/room " + room)
	c.expect(protocol.Entered(room))
	for _, line := range history {
		c.expect(line)
	}
	c.expect(protocol.Joined(avatar, nickname))
}

// fakeTransport is an in-memory lineTransport for tests that exercise the hub
// and sessions without sockets.
type fakeTransport struct {
	mu      sync.Mutex
	written []string
	closed  chan struct{}
	once    sync.Once
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{closed: make(chan struct{})}
}

func (f *fakeTransport) ReadLine() ([]byte, error) {
	<-f.closed
	return nil, net.ErrClosed
}

func (f *fakeTransport) WriteLine(line string) error {
	select {
	case <-f.closed:
		return net.ErrClosed
	default:
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.written = append(f.written, line)
	return nil
}

func (f *fakeTransport) SetWriteDeadline(time.Time) error { return nil }

func (f *fakeTransport) Close() error {
	f.once.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeTransport) RemoteAddr() string { return "fake" }

func (f *fakeTransport) Kind() string { return "fake" }

func (f *fakeTransport) isClosed() bool {
	select {
	case <-f.closed:
		return true
	default:
		return false
	}
}

// newTestSession builds a session with an identity and no write pump, so
// queued lines can be read straight from its send channel.
func newTestSession(nickname, avatar string, sendBuffer int) (*Session, *fakeTransport) {
	cfg := sanitizeConfig(Config{SendBuffer: sendBuffer})
	ft := newFakeTransport()
	s := newSession(ft, cfg, time.Now, discardLogger())
	if nickname != "" {
		s.setIdentity(nickname, avatar)
	}
	return s, ft
}

// queued drains every line waiting in the session's send buffer.
func queued(s *Session) []string {
	var out []string
	for {
		select {
		case line, ok := <-s.send:
			if !ok {
				return out
			}
			out = append(out, line)
		default:
			return out
		}
	}
}
