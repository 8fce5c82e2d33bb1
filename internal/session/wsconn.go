package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Tyrowin/gochat-rooms/internal/protocol"
)

const (
	handshakeTimeout = 10 * time.Second
	writeTimeout     = 10 * time.Second
	eventBufferSize  = 64
)

var (
	// ErrNotConnected is returned when emitting on a connection whose read
	// loop has already ended.
	ErrNotConnected = errors.New("session: not connected")

	// ErrClosed is returned when emitting on a connection after Close.
	ErrClosed = errors.New("session: connection closed")
)

// DialOptions configures Dial.
type DialOptions struct {
	// Origin is sent as the Origin header; the server rejects upgrades from
	// origins it does not allow.
	Origin string
	Logger *slog.Logger
}

// Conn is a Transport over a gorilla WebSocket connection. It is created
// once and handed to the Session.
type Conn struct {
	conn   *websocket.Conn
	logger *slog.Logger
	events chan protocol.Envelope
	done   chan struct{}

	writeMu sync.Mutex

	mu        sync.Mutex
	connected bool
	closed    bool
	err       error
}

// Dial connects to the relay's WebSocket endpoint at url.
func Dial(ctx context.Context, url string, opts DialOptions) (*Conn, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	header := http.Header{}
	if opts.Origin != "" {
		header.Set("Origin", opts.Origin)
	}

	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	ws, resp, err := dialer.DialContext(ctx, url, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}

	c := &Conn{
		conn:      ws,
		logger:    logger,
		events:    make(chan protocol.Envelope, eventBufferSize),
		done:      make(chan struct{}),
		connected: true,
	}
	go c.readLoop()

	logger.Debug("websocket connected", "url", url)
	return c, nil
}

// Emit writes one envelope as a text frame.
func (c *Conn) Emit(ctx context.Context, env protocol.Envelope) error {
	c.mu.Lock()
	switch {
	case c.closed:
		c.mu.Unlock()
		return ErrClosed
	case !c.connected:
		c.mu.Unlock()
		return ErrNotConnected
	}
	c.mu.Unlock()

	payload, err := protocol.Encode(env)
	if err != nil {
		return fmt.Errorf("encode %s: %w", env.Event, err)
	}

	deadline := time.Now().Add(writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

// Events returns the channel of decoded server events. It is closed when the
// connection ends.
func (c *Conn) Events() <-chan protocol.Envelope {
	return c.events
}

// Err returns the error that ended the read loop, if any.
func (c *Conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Close sends a close frame and closes the connection.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.connected = false
	c.mu.Unlock()

	close(c.done)

	c.writeMu.Lock()
	_ = c.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	c.writeMu.Unlock()
	return c.conn.Close()
}

func (c *Conn) readLoop() {
	defer func() {
		c.mu.Lock()
		c.connected = false
		c.mu.Unlock()
		close(c.events)
	}()

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				c.mu.Lock()
				c.err = err
				c.mu.Unlock()
				c.logger.Debug("websocket read ended", "error", err)
			}
			return
		}

		env, err := protocol.Decode(raw)
		if err != nil {
			c.logger.Warn("dropping undecodable frame", "error", err)
			continue
		}

		select {
		case c.events <- env:
		case <-c.done:
			return
		}
	}
}
