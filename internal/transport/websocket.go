package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"sync"

	"github.com/coder/websocket"
	"github.com/labstack/echo/v4"

	"github.com/nfrund/pubsubd/internal/logging"
)

// WSConn carries one protocol line per WebSocket text frame.
type WSConn struct {
	conn   *websocket.Conn
	ctx    context.Context
	cancel context.CancelFunc
	remote string
	opts   options

	closeOnce sync.Once
}

func newWSConn(conn *websocket.Conn, remote string, o options) *WSConn {
	conn.SetReadLimit(int64(o.maxLineBytes))
	ctx, cancel := context.WithCancel(context.Background())
	return &WSConn{
		conn:   conn,
		ctx:    ctx,
		cancel: cancel,
		remote: remote,
		opts:   o,
	}
}

// ReadLine returns the next frame's payload. A normal close from the peer is
// reported as io.EOF.
func (c *WSConn) ReadLine() (string, error) {
	_, data, err := c.conn.Read(c.ctx)
	if err != nil {
		switch websocket.CloseStatus(err) {
		case websocket.StatusNormalClosure, websocket.StatusGoingAway:
			return "", io.EOF
		}
		if c.ctx.Err() != nil {
			return "", net.ErrClosed
		}
		return "", err
	}
	return string(data), nil
}

// Send writes line as a single text frame.
func (c *WSConn) Send(line []byte) error {
	ctx := c.ctx
	if c.opts.writeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.writeTimeout)
		defer cancel()
	}
	return c.conn.Write(ctx, websocket.MessageText, line)
}

// Close sends a normal closure and releases the connection.
func (c *WSConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.conn.Close(websocket.StatusNormalClosure, "session closed")
		c.cancel()
		if errors.Is(err, net.ErrClosed) {
			err = nil
		}
	})
	return err
}

// RemoteAddr returns the peer address from the upgrade request.
func (c *WSConn) RemoteAddr() string {
	return c.remote
}

// Transport returns "websocket".
func (c *WSConn) Transport() string {
	return "websocket"
}

// WebSocketServer upgrades HTTP requests and runs a Handler per connection.
type WebSocketServer struct {
	handler Handler
	opts    options
	conns   *tracker
}

// NewWebSocketServer creates a WebSocket endpoint serving handler.
func NewWebSocketServer(handler Handler, opts ...Option) *WebSocketServer {
	return &WebSocketServer{
		handler: handler,
		opts:    newOptions("websocket", opts),
		conns:   newTracker(),
	}
}

// Handler returns the echo handler for the upgrade route. It blocks for the
// life of the connection.
func (s *WebSocketServer) Handler(ctx context.Context) echo.HandlerFunc {
	return func(c echo.Context) error {
		if s.conns.isClosing() {
			return c.String(http.StatusServiceUnavailable, "shutting down")
		}

		conn, err := websocket.Accept(c.Response(), c.Request(), &websocket.AcceptOptions{
			InsecureSkipVerify: true, // Line protocol clients are not browsers.
		})
		if err != nil {
			s.opts.logger.Error("Failed to upgrade connection to WebSocket", logging.Err(err))
			return nil
		}

		wsConn := newWSConn(conn, c.RealIP(), s.opts)
		if !s.conns.add(wsConn) {
			conn.Close(websocket.StatusGoingAway, "shutting down")
			return nil
		}
		defer s.conns.done(wsConn)

		s.handler(ctx, wsConn)
		return nil
	}
}

// Shutdown closes every live WebSocket connection and waits for handlers.
func (s *WebSocketServer) Shutdown(ctx context.Context) error {
	n, err := s.conns.shutdown(ctx)
	s.opts.logger.Info("WebSocket endpoint stopped", "closed_connections", n)
	return err
}
