// Package client is a small line protocol client for the broker.
package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/nfrund/pubsubd/internal/protocol"
	"github.com/nfrund/pubsubd/internal/transport"
)

// ErrUnexpectedCommand is returned by Receive when the server sends anything
// other than a message.
var ErrUnexpectedCommand = errors.New("client: unexpected command from server")

// Client is a connection to a broker. Sends are safe for concurrent use;
// Receive must be called from a single goroutine.
type Client struct {
	conn    net.Conn
	scanner *bufio.Scanner
	maxLine int
	mu      sync.Mutex
}

// Option configures a Client.
type Option func(*Client)

// WithMaxLineBytes bounds the longest line Receive accepts. It defaults to
// the broker's own inbound limit.
func WithMaxLineBytes(n int) Option {
	return func(c *Client) {
		c.maxLine = n
	}
}

// Dial connects to the broker at addr.
func Dial(ctx context.Context, addr string, opts ...Option) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return New(conn, opts...), nil
}

// New wraps an established connection.
func New(conn net.Conn, opts ...Option) *Client {
	c := &Client{
		conn:    conn,
		maxLine: transport.DefaultMaxLineBytes,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.scanner = bufio.NewScanner(conn)
	c.scanner.Buffer(make([]byte, 0, 4096), c.maxLine)
	return c
}

// Identify renames this connection's subscriber key to user.
func (c *Client) Identify(user string) error {
	return c.send(protocol.Identity{User: user})
}

// Subscribe registers for messages on topic.
func (c *Client) Subscribe(topic string) error {
	return c.send(protocol.Subscribe{Topic: topic})
}

// Unsubscribe stops messages on topic.
func (c *Client) Unsubscribe(topic string) error {
	return c.send(protocol.Unsubscribe{Topic: topic})
}

// Publish sends payload to every subscriber of topic.
func (c *Client) Publish(topic, payload string) error {
	return c.send(protocol.Publish{Topic: topic, Payload: payload})
}

func (c *Client) send(cmd protocol.Command) error {
	line := protocol.Serialize(cmd) + "\n"

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := c.conn.Write([]byte(line)); err != nil {
		return fmt.Errorf("send %s: %w", cmd.Kind(), err)
	}
	return nil
}

// Receive blocks for the next message. Cancelling ctx interrupts the read.
func (c *Client) Receive(ctx context.Context) (protocol.Message, error) {
	stop := context.AfterFunc(ctx, func() {
		c.conn.Close()
	})
	defer stop()

	if !c.scanner.Scan() {
		if ctx.Err() != nil {
			return protocol.Message{}, ctx.Err()
		}
		if err := c.scanner.Err(); err != nil {
			return protocol.Message{}, err
		}
		return protocol.Message{}, net.ErrClosed
	}

	cmd, err := protocol.Parse(c.scanner.Text())
	if err != nil {
		return protocol.Message{}, err
	}
	msg, ok := cmd.(protocol.Message)
	if !ok {
		return protocol.Message{}, fmt.Errorf("%w: %s", ErrUnexpectedCommand, cmd.Kind())
	}
	return msg, nil
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
