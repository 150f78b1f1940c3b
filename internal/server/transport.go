package server

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

const (
	readBufferSize = 4096

	// maxLineBytes bounds how much of one overlong line is read and thrown
	// away while looking for its newline. Past it the stream is corrupt.
	maxLineBytes = 64 * 1024
)

// lineTransport moves newline-delimited protocol lines over one connection.
// ReadLine is called only by the connection handler and WriteLine only by the
// session's write pump.
type lineTransport interface {
	ReadLine() ([]byte, error)
	WriteLine(line string) error
	SetWriteDeadline(t time.Time) error
	Close() error
	RemoteAddr() string
	Kind() string
}

type tcpTransport struct {
	conn   net.Conn
	reader *bufio.Reader
}

func newTCPTransport(conn net.Conn) *tcpTransport {
	if tcp, ok := conn.(*net.TCPConn); ok {
		_ = tcp.SetKeepAlive(true)
		_ = tcp.SetKeepAlivePeriod(30 * time.Second)
	}
	return &tcpTransport{
		conn:   conn,
		reader: bufio.NewReaderSize(conn, readBufferSize),
	}
}

// ReadLine returns the next line. A line that outgrows the read buffer is
// discarded through its newline and reported as ErrLineTooLong. A final
// fragment with no newline is returned before the reader reports EOF.
func (t *tcpTransport) ReadLine() ([]byte, error) {
	line, err := t.reader.ReadSlice('\n')
	switch {
	case err == nil:
	case errors.Is(err, bufio.ErrBufferFull):
		return nil, t.skipLine(len(line))
	case errors.Is(err, io.EOF) && len(line) > 0:
	default:
		return nil, err
	}
	out := make([]byte, len(line))
	copy(out, line)
	return out, nil
}

func (t *tcpTransport) skipLine(consumed int) error {
	for {
		chunk, err := t.reader.ReadSlice('\n')
		consumed += len(chunk)
		if consumed > maxLineBytes {
			return ErrLineOverflow
		}
		if err == nil {
			return ErrLineTooLong
		}
		if !errors.Is(err, bufio.ErrBufferFull) {
			return err
		}
	}
}

func (t *tcpTransport) WriteLine(line string) error {
	if _, err := t.conn.Write([]byte(line + "\n")); err != nil {
		return fmt.Errorf("write tcp line: %w", err)
	}
	return nil
}

func (t *tcpTransport) SetWriteDeadline(deadline time.Time) error {
	return t.conn.SetWriteDeadline(deadline)
}

func (t *tcpTransport) Close() error {
	return t.conn.Close()
}

func (t *tcpTransport) RemoteAddr() string {
	return t.conn.RemoteAddr().String()
}

func (t *tcpTransport) Kind() string {
	return "tcp"
}

// wsTransport carries one protocol line per WebSocket text frame.
type wsTransport struct {
	conn *websocket.Conn
	addr string
}

func newWSTransport(conn *websocket.Conn, addr string) *wsTransport {
	conn.SetReadLimit(maxLineBytes)
	return &wsTransport{conn: conn, addr: addr}
}

func (t *wsTransport) ReadLine() ([]byte, error) {
	for {
		messageType, payload, err := t.conn.ReadMessage()
		if err != nil {
			if errors.Is(err, websocket.ErrReadLimit) {
				return nil, ErrLineOverflow
			}
			return nil, err
		}
		if messageType != websocket.TextMessage {
			continue
		}
		if strings.ContainsRune(strings.TrimRight(string(payload), "\r\n"), '\n') {
			return nil, fmt.Errorf("websocket frame carries more than one line")
		}
		return payload, nil
	}
}

func (t *wsTransport) WriteLine(line string) error {
	if err := t.conn.WriteMessage(websocket.TextMessage, []byte(line)); err != nil {
		return fmt.Errorf("write websocket line: %w", err)
	}
	return nil
}

func (t *wsTransport) SetWriteDeadline(deadline time.Time) error {
	return t.conn.SetWriteDeadline(deadline)
}

func (t *wsTransport) Close() error {
	return t.conn.Close()
}

func (t *wsTransport) RemoteAddr() string {
	return t.addr
}

func (t *wsTransport) Kind() string {
	return "websocket"
}
