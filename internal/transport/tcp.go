package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/nfrund/pubsubd/internal/logging"
)

// LineConn frames protocol lines over a stream connection.
type LineConn struct {
	conn         net.Conn
	scanner      *bufio.Scanner
	writeTimeout time.Duration

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

// NewLineConn wraps conn. Inbound lines longer than maxLineBytes end the
// connection with bufio.ErrTooLong.
func NewLineConn(conn net.Conn, opts ...Option) *LineConn {
	o := newOptions("tcp", opts)
	return newLineConn(conn, o)
}

func newLineConn(conn net.Conn, o options) *LineConn {
	scanner := bufio.NewScanner(conn)
	initial := 4096
	if o.maxLineBytes < initial {
		initial = o.maxLineBytes
	}
	scanner.Buffer(make([]byte, 0, initial), o.maxLineBytes)

	return &LineConn{
		conn:         conn,
		scanner:      scanner,
		writeTimeout: o.writeTimeout,
	}
}

// ReadLine returns the next line without its "\n" or "\r\n" terminator.
func (c *LineConn) ReadLine() (string, error) {
	if c.scanner.Scan() {
		return c.scanner.Text(), nil
	}
	if err := c.scanner.Err(); err != nil {
		return "", err
	}
	return "", net.ErrClosed
}

// Send writes line followed by '\n'. Concurrent calls never interleave.
func (c *LineConn) Send(line []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.writeTimeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return err
		}
	}

	buf := make([]byte, 0, len(line)+1)
	buf = append(buf, line...)
	buf = append(buf, '\n')
	_, err := c.conn.Write(buf)
	return err
}

// Close closes the underlying connection once.
func (c *LineConn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

// RemoteAddr returns the peer address.
func (c *LineConn) RemoteAddr() string {
	if addr := c.conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}

// Transport returns "tcp".
func (c *LineConn) Transport() string {
	return "tcp"
}

// TCPServer accepts stream connections and serves each on its own goroutine.
type TCPServer struct {
	addr    string
	handler Handler
	opts    options
	conns   *tracker

	mu       sync.Mutex
	listener net.Listener
}

// NewTCPServer creates a server for addr. Call Listen and then Serve.
func NewTCPServer(addr string, handler Handler, opts ...Option) *TCPServer {
	return &TCPServer{
		addr:    addr,
		handler: handler,
		opts:    newOptions("tcp", opts),
		conns:   newTracker(),
	}
}

// Listen binds the listening socket.
func (s *TCPServer) Listen(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.addr, err)
	}

	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	s.opts.logger.Info("Listening", "addr", ln.Addr().String())
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *TCPServer) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Serve accepts connections until Shutdown is called or the listener fails.
// It returns nil after a Shutdown.
func (s *TCPServer) Serve(ctx context.Context) error {
	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()
	if ln == nil {
		return errors.New("transport: Serve called before Listen")
	}

	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.conns.isClosing() || errors.Is(err, net.ErrClosed) {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				s.opts.logger.Warn("Temporary accept error", logging.Err(err))
				time.Sleep(10 * time.Millisecond)
				continue
			}
			return fmt.Errorf("accept: %w", err)
		}

		lineConn := newLineConn(conn, s.opts)
		if !s.conns.add(lineConn) {
			lineConn.Close()
			continue
		}

		go func() {
			defer s.conns.done(lineConn)
			s.handler(ctx, lineConn)
		}()
	}
}

// Shutdown stops accepting, closes every live connection and waits for their
// handlers to return or ctx to expire.
func (s *TCPServer) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()

	if ln != nil {
		ln.Close()
	}
	n, err := s.conns.shutdown(ctx)
	s.opts.logger.Info("TCP listener stopped", "closed_connections", n)
	return err
}
