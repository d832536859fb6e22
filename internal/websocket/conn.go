package websocket

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/satriahrh/arunika/client/domain"
	"github.com/satriahrh/arunika/client/domain/repositories"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512 * 1024 // 512KB for tts chunks
)

// ErrNotOpen is returned by sends on a closed connection
var ErrNotOpen = repositories.ErrTransportNotOpen

// Dialer opens client connections to the voice backend
type Dialer struct {
	dialer *websocket.Dialer
	logger *zap.Logger
}

// NewDialer creates a dialer with the default gorilla settings
func NewDialer(logger *zap.Logger) *Dialer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dialer{
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
			ReadBufferSize:   4096,
			WriteBufferSize:  8192,
		},
		logger: logger,
	}
}

// Dial connects to url. A 401 or 403 handshake response is reported as
// repositories.ErrUnauthorized so callers can refresh and retry.
func (d *Dialer) Dial(ctx context.Context, url string, header http.Header, onMessage func(messageType int, data []byte)) (repositories.Transport, error) {
	conn, resp, err := d.dialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, fmt.Errorf("websocket handshake rejected: %w", repositories.ErrUnauthorized)
		}
		return nil, fmt.Errorf("failed to dial %s: %w", url, err)
	}

	c := &Conn{
		conn:      conn,
		done:      make(chan struct{}),
		onMessage: onMessage,
		logger:    d.logger,
	}
	c.open.Store(true)

	go c.readPump()
	go c.pingPump()

	d.logger.Info("WebSocket connected", zap.String("url", url))
	return c, nil
}

// Conn is an open client socket. Writes are serialized and synchronous:
// when SendFrame returns the frame has been copied to the socket.
type Conn struct {
	conn *websocket.Conn

	writeMu sync.Mutex
	open    atomic.Bool

	done      chan struct{}
	closeOnce sync.Once
	closeErr  error

	onMessage func(messageType int, data []byte)

	logger *zap.Logger
}

// IsOpen reports whether sends are currently possible
func (c *Conn) IsOpen() bool {
	return c.open.Load()
}

// Done is closed once the connection is gone
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Err returns why the connection ended, nil for a normal close
func (c *Conn) Err() error {
	select {
	case <-c.done:
		return c.closeErr
	default:
		return nil
	}
}

// SendFrame writes a binary audio frame
func (c *Conn) SendFrame(frame []byte) error {
	return c.write(websocket.BinaryMessage, frame)
}

// SendControl writes a JSON control message
func (c *Conn) SendControl(msg domain.ControlMessage) error {
	data, err := EncodeControl(msg)
	if err != nil {
		return err
	}
	return c.write(websocket.TextMessage, data)
}

// Close sends a close frame and releases the connection. Safe to call more than once.
func (c *Conn) Close() error {
	if c.open.Load() {
		c.writeMu.Lock()
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		err := c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()
		if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
			c.logger.Debug("Failed to send close frame", zap.Error(err))
		}
	}
	c.shutdown(nil)
	return nil
}

func (c *Conn) write(messageType int, payload []byte) error {
	if !c.open.Load() {
		return ErrNotOpen
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if !c.open.Load() {
		return ErrNotOpen
	}

	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteMessage(messageType, payload); err != nil {
		c.logger.Error("Failed to write message", zap.Error(err))
		c.shutdown(fmt.Errorf("write failed: %w", err))
		return err
	}
	return nil
}

// readPump pumps messages from the websocket connection to onMessage.
func (c *Conn) readPump() {
	defer c.shutdown(nil)

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			var closeErr *websocket.CloseError
			switch {
			case errors.As(err, &closeErr):
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					c.logger.Error("WebSocket error", zap.Error(err))
					c.shutdown(fmt.Errorf("closed by server: %w", err))
				}
			case c.open.Load():
				c.logger.Error("WebSocket error", zap.Error(err))
				c.shutdown(fmt.Errorf("read failed: %w", err))
			}
			return
		}

		switch messageType {
		case websocket.TextMessage, websocket.BinaryMessage:
			if c.onMessage != nil {
				c.onMessage(messageType, message)
			}
		default:
			c.logger.Warn("Received unknown message type", zap.Int("type", messageType))
		}
	}
}

// pingPump keeps the connection alive until it is closed.
func (c *Conn) pingPump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.shutdown(fmt.Errorf("ping failed: %w", err))
				return
			}
		}
	}
}

func (c *Conn) shutdown(err error) {
	c.closeOnce.Do(func() {
		c.open.Store(false)
		c.closeErr = err
		c.conn.Close()
		close(c.done)
		if err != nil {
			c.logger.Warn("WebSocket closed", zap.Error(err))
		} else {
			c.logger.Info("WebSocket closed")
		}
	})
}
