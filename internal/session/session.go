// Package session runs the per-connection protocol state machine.
//
// A Session starts Active with a freshly generated subscriber key, reads one
// protocol line at a time from its Conn and applies each command to the shared
// topic registry. When the connection fails or the peer goes away the session
// becomes Closed and removes every subscription it still owns.
package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"

	"github.com/google/uuid"

	"github.com/nfrund/pubsubd/internal/events"
	"github.com/nfrund/pubsubd/internal/logging"
	"github.com/nfrund/pubsubd/internal/protocol"
	"github.com/nfrund/pubsubd/internal/topics"
)

// ErrEmptyIdentity is reported when a peer sends "i:" with no user.
var ErrEmptyIdentity = errors.New("session: identity must not be empty")

// Conn is a connection carrying protocol lines. Send is safe for concurrent
// use with itself and with ReadLine.
type Conn interface {
	topics.Sink
	// ReadLine blocks for the next inbound line. It returns io.EOF or
	// net.ErrClosed when the connection ends normally.
	ReadLine() (string, error)
	Close() error
	RemoteAddr() string
	// Transport names the carrier, e.g. "tcp" or "websocket".
	Transport() string
}

// Registry is the part of topics.Registry a session drives.
type Registry interface {
	Subscribe(topic, key string, sink topics.Sink)
	Unsubscribe(topic, key string)
	Publish(topic, key, payload string) int
	RenameSubscriber(oldKey, newKey string, sink topics.Sink)
	DeleteSubscriber(key string, sink topics.Sink)
}

// State is the lifecycle position of a session.
type State int

const (
	StateActive State = iota
	StateClosed
)

func (s State) String() string {
	if s == StateClosed {
		return "closed"
	}
	return "active"
}

// Session is one client connection's protocol state.
type Session struct {
	id       string
	conn     Conn
	registry Registry
	events   events.Publisher
	logger   *slog.Logger
	newKey   func() string

	mu    sync.Mutex
	key   string
	state State
}

// Option configures a Session.
type Option func(*Session)

// WithKeyGenerator overrides how the initial subscriber key is chosen.
func WithKeyGenerator(fn func() string) Option {
	return func(s *Session) {
		s.newKey = fn
	}
}

// WithEvents sets the publisher that receives session lifecycle events.
func WithEvents(p events.Publisher) Option {
	return func(s *Session) {
		s.events = p
	}
}

// WithLogger sets the session's base logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		s.logger = l
	}
}

// New creates an Active session for conn.
func New(conn Conn, registry Registry, opts ...Option) *Session {
	s := &Session{
		id:       uuid.NewString(),
		conn:     conn,
		registry: registry,
		events:   events.Discard,
		logger:   slog.Default(),
		newKey:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.key = s.newKey()
	s.logger = s.logger.With(
		"component", "session",
		"session_id", s.id,
		"transport", conn.Transport(),
		"remote", conn.RemoteAddr(),
	)
	return s
}

// ID returns the session's immutable identifier.
func (s *Session) ID() string {
	return s.id
}

// Key returns the current subscriber key.
func (s *Session) Key() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.key
}

// State reports whether the session is still reading commands.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Run reads and applies commands until the connection ends or ctx is
// cancelled, then tears the session down. It always returns nil for a normal
// disconnect.
func (s *Session) Run(ctx context.Context) error {
	emit(ctx, s, events.TopicSessionOpened, events.SessionOpened{
		SessionID: s.id,
		Key:       s.Key(),
		Transport: s.conn.Transport(),
		Remote:    s.conn.RemoteAddr(),
	})
	s.logger.Info("Session opened", "key", s.Key())

	// Closing the connection is the only way to unblock ReadLine.
	stop := context.AfterFunc(ctx, func() {
		s.conn.Close()
	})
	defer stop()

	var runErr error
	for {
		line, err := s.conn.ReadLine()
		if err != nil {
			if !isClosed(err) && ctx.Err() == nil {
				runErr = err
			}
			break
		}
		s.Handle(ctx, line)
	}

	s.teardown(ctx, runErr)
	return runErr
}

// Handle decodes and applies a single line. Decode failures are logged and
// published as command rejections; the session stays Active.
func (s *Session) Handle(ctx context.Context, line string) {
	cmd, err := protocol.Parse(line)
	if err == nil {
		err = s.apply(ctx, cmd)
	}
	if err != nil {
		key := s.Key()
		s.logger.Warn("Rejected command", "key", key, logging.Err(err))
		emit(ctx, s, events.TopicCommandRejected, events.CommandRejected{
			SessionID: s.id,
			Key:       key,
			Input:     line,
			Error:     err.Error(),
		})
	}
}

func (s *Session) apply(ctx context.Context, cmd protocol.Command) error {
	switch c := cmd.(type) {
	case protocol.Identity:
		return s.identify(ctx, c.User)
	case protocol.Subscribe:
		s.registry.Subscribe(c.Topic, s.Key(), s.conn)
	case protocol.Unsubscribe:
		s.registry.Unsubscribe(c.Topic, s.Key())
	case protocol.Publish:
		n := s.registry.Publish(c.Topic, s.Key(), c.Payload)
		s.logger.Debug("Published", "topic", c.Topic, "delivered", n)
	case protocol.Message:
		// Server-originated; a peer sending one is ignored.
	}
	return nil
}

func (s *Session) identify(ctx context.Context, user string) error {
	if user == "" {
		return ErrEmptyIdentity
	}

	s.mu.Lock()
	from := s.key
	s.registry.RenameSubscriber(from, user, s.conn)
	s.key = user
	s.mu.Unlock()

	if from != user {
		s.logger.Info("Session renamed", "from", from, "to", user)
		emit(ctx, s, events.TopicSessionRenamed, events.SessionRenamed{
			SessionID: s.id,
			From:      from,
			To:        user,
		})
	}
	return nil
}

func (s *Session) teardown(ctx context.Context, cause error) {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	s.state = StateClosed
	key := s.key
	s.registry.DeleteSubscriber(key, s.conn)
	s.mu.Unlock()

	if err := s.conn.Close(); err != nil && !isClosed(err) {
		s.logger.Debug("Closing connection", logging.Err(err))
	}

	closed := events.SessionClosed{SessionID: s.id, Key: key}
	if cause != nil {
		closed.Reason = cause.Error()
		s.logger.Warn("Session closed after read error", "key", key, logging.Err(cause))
	} else {
		s.logger.Info("Session closed", "key", key)
	}
	// ctx may already be cancelled by shutdown; the event still goes out.
	emit(context.WithoutCancel(ctx), s, events.TopicSessionClosed, closed)
}

func emit[T any](ctx context.Context, s *Session, event events.Event[T], payload T) {
	if err := events.Publish(ctx, s.events, event, s.Key(), payload); err != nil {
		s.logger.Error("Failed to publish broker event", "topic", event.Name(), logging.Err(err))
	}
}

func isClosed(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe)
}
