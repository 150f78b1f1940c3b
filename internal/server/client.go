// Package server drives one connection through the protocol state machine:
// reading lines, enforcing the line limit, and dispatching each line.
package server

import (
	"errors"
	"io"
	"log/slog"

	"github.com/Tyrowin/tempest/internal/protocol"
)

// Client is the connection handler for one session. Its run loop is the only
// goroutine that reads from the transport or changes the session's identity
// and room.
type Client struct {
	server  *Server
	session *Session
	logger  *slog.Logger
}

func newClient(srv *Server, s *Session) *Client {
	return &Client{server: srv, session: s, logger: s.logger}
}

// run reads and dispatches lines until the client says /bye, the transport
// fails, or the session is terminated from outside.
func (c *Client) run() {
	for {
		raw, err := c.session.transport.ReadLine()
		if errors.Is(err, ErrLineTooLong) {
			c.session.touch(c.server.now())
			c.logger.Warn("discarded line larger than read buffer", "limit", readBufferSize)
			c.reply(protocol.LineTooLong(c.server.cfg.MaxLineLength).Error())
			continue
		}
		if err != nil {
			c.handleReadError(err)
			return
		}
		if !c.handleLine(raw) {
			return
		}
	}
}

// handleReadError logs why the read loop ended.
func (c *Client) handleReadError(err error) {
	if reason := c.session.closeReason(); reason != "" {
		c.logger.Info("session closed by server", "reason", reason)
		return
	}

	switch {
	case errors.Is(err, ErrLineOverflow):
		c.logger.Warn("no newline within hard line limit", "limit", maxLineBytes)
	case errors.Is(err, io.EOF), isExpectedCloseError(err):
		c.logger.Info("client disconnected")
	default:
		c.logger.Warn("read error", "err", err)
	}
}

// handleLine processes one raw line and returns false when the connection
// should close.
func (c *Client) handleLine(raw []byte) bool {
	c.session.touch(c.server.now())

	text := protocol.Clean(protocol.Decode(raw))
	if err := protocol.ValidateLineLength(text, c.server.cfg.MaxLineLength); err != nil {
		c.reply(err.Error())
		return true
	}

	cmd := protocol.Parse(text)
	c.logger.Debug("command", "kind", cmd.Kind.String())
	return c.dispatch(cmd)
}

func (c *Client) reply(line string) {
	if !c.session.deliver(line) {
		c.session.terminate("send buffer full")
	}
}
