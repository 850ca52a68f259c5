package device

import (
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	// DefaultReadTimeout bounds one receive on the command channel.
	DefaultReadTimeout = 1 * time.Second

	// replyBufferSize caps one device reply line.
	replyBufferSize = 256
)

// Channel is the single serialized command channel to the device.
//
// The wire protocol carries no request identifiers: correlation is purely
// by transmission order, so exactly one exchange may be in flight at a
// time. The mutex is held across the full send+receive round trip and
// every caller (bridge callbacks and the UDP responder alike) goes
// through Exchange.
type Channel struct {
	mu      sync.Mutex
	conn    net.Conn
	timeout time.Duration
	log     zerolog.Logger
}

// Dial connects to the device command server and returns a ready channel.
// The connection lives for the process duration; there is no reconnect.
func Dial(addr string, timeout time.Duration, logger zerolog.Logger) (*Channel, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("device: connect command server (%s): %w", addr, err)
	}
	logger.Info().Str("addr", addr).Msg("command channel connected")
	return NewChannel(conn, timeout, logger), nil
}

// NewChannel wraps an established connection. Used directly by tests.
func NewChannel(conn net.Conn, timeout time.Duration, logger zerolog.Logger) *Channel {
	if timeout <= 0 {
		timeout = DefaultReadTimeout
	}
	return &Channel{conn: conn, timeout: timeout, log: logger}
}

// Exchange writes one CRLF-terminated command line and returns the raw
// reply with the trailing line ending stripped.
//
// A short write is ErrPartialSend: once bytes are missing from the stream
// the order-based correlation is broken for good, so callers must treat
// it as fatal. A timed-out or empty read is ErrTimeout and recoverable
// per call; the command is never retried here. A read that fails for any
// other reason (the peer closed the connection) is ErrClosed.
func (c *Channel) Exchange(command string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return "", ErrClosed
	}

	n, err := c.conn.Write([]byte(command))
	if err != nil || n != len(command) {
		return "", fmt.Errorf("%w: wrote %d of %d bytes: %v", ErrPartialSend, n, len(command), err)
	}

	if err := c.conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
		return "", fmt.Errorf("device: set read deadline: %w", err)
	}
	buf := make([]byte, replyBufferSize)
	n, err = c.conn.Read(buf)
	if err != nil {
		if nerr, ok := err.(net.Error); ok && nerr.Timeout() {
			return "", fmt.Errorf("%w: no reply to %q within %s", ErrTimeout, strings.TrimSpace(command), c.timeout)
		}
		// any other read failure means the peer hung up
		return "", fmt.Errorf("%w: read: %v", ErrClosed, err)
	}
	if n == 0 {
		return "", fmt.Errorf("%w: empty reply to %q", ErrTimeout, strings.TrimSpace(command))
	}

	reply := strings.TrimRight(string(buf[:n]), "\r\n")
	c.log.Debug().Str("command", strings.TrimSpace(command)).Str("reply", reply).Msg("round trip")
	return reply, nil
}

// Close shuts the connection down. Further exchanges return ErrClosed.
func (c *Channel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}
