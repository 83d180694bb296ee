// Package events carries broker lifecycle notifications (sessions opening and
// closing, identities changing, commands being rejected, topics appearing) on
// an in-process bus. It is the broker's observability channel; client traffic
// never flows through it.
package events

import (
	"context"
)

// Message is the structure passed between components on the bus.
type Message struct {
	// Topic identifies the event kind (e.g., "broker.session.opened").
	Topic string
	// UserID is the subscriber key of the session the event is about, if any.
	UserID string
	// Payload is the JSON encoded event body.
	Payload []byte
	// Metadata can contain arbitrary key-value pairs for context.
	Metadata map[string]string
}

// Handler defines the function signature for processing a received message.
type Handler func(ctx context.Context, msg Message) error

// Publisher defines the contract for sending messages to the bus.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
	Close() error
}

// Subscriber defines the contract for receiving messages from the bus.
type Subscriber interface {
	// Subscribe starts delivering messages on topic to handler in the
	// background and returns once the subscription is active.
	Subscribe(ctx context.Context, topic string, handler Handler) error
	Close() error
}

type discard struct{}

func (discard) Publish(context.Context, Message) error { return nil }
func (discard) Close() error                           { return nil }

// Discard is a Publisher that drops every message.
var Discard Publisher = discard{}
