// Package transport carries protocol lines between the network and sessions.
//
// TCP connections frame lines with '\n'; WebSocket connections carry one line
// per text frame. Both hand a session.Conn to a Handler for the lifetime of the
// connection.
package transport

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/nfrund/pubsubd/internal/session"
)

// DefaultMaxLineBytes caps a single inbound line when no option overrides it.
const DefaultMaxLineBytes = 1 << 20

// Handler serves one connection and returns once it is finished with it.
type Handler func(ctx context.Context, conn session.Conn)

type options struct {
	writeTimeout time.Duration
	maxLineBytes int
	logger       *slog.Logger
}

// Option configures a transport.
type Option func(*options)

// WithWriteTimeout bounds every outbound write. Zero disables the deadline.
func WithWriteTimeout(d time.Duration) Option {
	return func(o *options) {
		o.writeTimeout = d
	}
}

// WithMaxLineBytes caps the size of one inbound line or frame.
func WithMaxLineBytes(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxLineBytes = n
		}
	}
}

// WithLogger sets the transport's logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

func newOptions(component string, opts []Option) options {
	o := options{
		maxLineBytes: DefaultMaxLineBytes,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	o.logger = o.logger.With("component", component)
	return o
}

type closer interface {
	Close() error
}

// tracker remembers live connections so a shutdown can close them and wait
// for their handlers.
type tracker struct {
	mu      sync.Mutex
	conns   map[closer]struct{}
	closing bool
	wg      sync.WaitGroup
}

func newTracker() *tracker {
	return &tracker{conns: make(map[closer]struct{})}
}

// add registers c and reports false once shutdown has begun.
func (t *tracker) add(c closer) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closing {
		return false
	}
	t.conns[c] = struct{}{}
	t.wg.Add(1)
	return true
}

func (t *tracker) done(c closer) {
	t.mu.Lock()
	delete(t.conns, c)
	t.mu.Unlock()
	t.wg.Done()
}

func (t *tracker) isClosing() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closing
}

// shutdown closes every live connection and waits for handlers to finish or
// ctx to expire. It returns how many connections were closed.
func (t *tracker) shutdown(ctx context.Context) (int, error) {
	t.mu.Lock()
	t.closing = true
	live := make([]closer, 0, len(t.conns))
	for c := range t.conns {
		live = append(live, c)
	}
	t.mu.Unlock()

	for _, c := range live {
		c.Close()
	}

	finished := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		return len(live), nil
	case <-ctx.Done():
		return len(live), ctx.Err()
	}
}
