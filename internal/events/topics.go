package events

import (
	"context"
	"encoding/json"
	"fmt"
)

// Event[T] binds a bus topic to its payload type and provides type-safe
// publishing and decoding.
type Event[T any] struct {
	name        string
	description string
}

// NewEvent defines a typed event.
func NewEvent[T any](name, description string) Event[T] {
	return Event[T]{name: name, description: description}
}

// Name returns the topic name.
func (e Event[T]) Name() string {
	return e.name
}

// Description returns the human readable description.
func (e Event[T]) Description() string {
	return e.description
}

// Publish sends a typed event. The compiler ensures payload matches T.
func Publish[T any](ctx context.Context, p Publisher, event Event[T], userID string, payload T) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", event.name, err)
	}

	return p.Publish(ctx, Message{
		Topic:   event.name,
		UserID:  userID,
		Payload: data,
	})
}

// Decode unmarshals msg into the payload type of event.
func Decode[T any](event Event[T], msg Message) (T, error) {
	var payload T
	if msg.Topic != event.name {
		return payload, fmt.Errorf("decode %s: message is for topic %s", event.name, msg.Topic)
	}
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return payload, fmt.Errorf("decode %s: %w", event.name, err)
	}
	return payload, nil
}

// SessionOpened is published when a connection starts a protocol session.
type SessionOpened struct {
	SessionID string `json:"session_id"`
	Key       string `json:"key"`
	Transport string `json:"transport"`
	Remote    string `json:"remote"`
}

// SessionClosed is published after a session has been torn down.
type SessionClosed struct {
	SessionID string `json:"session_id"`
	Key       string `json:"key"`
	Reason    string `json:"reason,omitempty"`
}

// SessionRenamed is published when a session changes its subscriber key.
type SessionRenamed struct {
	SessionID string `json:"session_id"`
	From      string `json:"from"`
	To        string `json:"to"`
}

// CommandRejected is published for every line a session could not decode.
type CommandRejected struct {
	SessionID string `json:"session_id"`
	Key       string `json:"key"`
	Input     string `json:"input"`
	Error     string `json:"error"`
}

// TopicCreated is published the first time a topic is subscribed to.
type TopicCreated struct {
	Topic string `json:"topic"`
}

var (
	// TopicSessionOpened is published when a client connection is accepted.
	TopicSessionOpened = NewEvent[SessionOpened](
		"broker.session.opened",
		"A client connection started a protocol session",
	)

	// TopicSessionClosed is published once a session's subscriptions are removed.
	TopicSessionClosed = NewEvent[SessionClosed](
		"broker.session.closed",
		"A protocol session ended and its subscriptions were removed",
	)

	// TopicSessionRenamed is published when a session sends an identity command.
	TopicSessionRenamed = NewEvent[SessionRenamed](
		"broker.session.renamed",
		"A session changed its subscriber key",
	)

	// TopicCommandRejected is published for undecodable protocol lines.
	TopicCommandRejected = NewEvent[CommandRejected](
		"broker.command.rejected",
		"A session received a line that is not a valid command",
	)

	// TopicTopicCreated is published when the registry creates a topic.
	TopicTopicCreated = NewEvent[TopicCreated](
		"broker.topic.created",
		"The registry created a topic on first subscribe",
	)
)
