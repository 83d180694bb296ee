// Package protocol implements the broker's line-oriented wire protocol.
//
// Every frame is a single text line whose fields are separated by ':'. The first
// field is a one letter opcode:
//
//	i:user                - (client->server) identifies this connection as user.
//	s:topic               - (client->server) subscribes to topic.
//	u:topic               - (client->server) unsubscribes from topic.
//	p:topic:message       - (client->server) publishes message to topic.
//	m:topic:user:message  - (server->client) a message published to topic by user.
//
// Only the leading fixed fields are split. Whatever remains after them is the
// message payload and may itself contain ':'.
package protocol

import "strings"

// Kind identifies a command variant by its wire opcode.
type Kind byte

const (
	KindIdentity    Kind = 'i'
	KindSubscribe   Kind = 's'
	KindUnsubscribe Kind = 'u'
	KindPublish     Kind = 'p'
	KindMessage     Kind = 'm'
)

// String returns the opcode as it appears on the wire.
func (k Kind) String() string {
	return string(rune(k))
}

// Command is one decoded protocol frame. The set of implementations is closed:
// Identity, Subscribe, Unsubscribe, Publish and Message.
type Command interface {
	Kind() Kind
}

// Identity renames the sending connection's subscriber key. Sessions reject
// an empty User and keep their current key.
type Identity struct {
	User string
}

// Subscribe registers the sending connection on a topic.
type Subscribe struct {
	Topic string
}

// Unsubscribe removes the sending connection from a topic.
type Unsubscribe struct {
	Topic string
}

// Publish asks the broker to fan a payload out to a topic's subscribers.
type Publish struct {
	Topic   string
	Payload string
}

// Message is what subscribers receive for every Publish. Servers send it,
// they never act on it.
type Message struct {
	Topic   string
	User    string
	Payload string
}

func (Identity) Kind() Kind    { return KindIdentity }
func (Subscribe) Kind() Kind   { return KindSubscribe }
func (Unsubscribe) Kind() Kind { return KindUnsubscribe }
func (Publish) Kind() Kind     { return KindPublish }
func (Message) Kind() Kind     { return KindMessage }

const delimiter = ":"

// Parse decodes a single protocol line. One trailing "\n" or "\r\n" is removed
// first; no other whitespace is touched. A line that still contains "\n" is
// more than one frame and is rejected. Any failure is reported as a
// *ParseError carrying the trimmed input.
func Parse(line string) (Command, error) {
	line = trimTerminator(line)
	if strings.Contains(line, "\n") {
		return nil, &ParseError{Input: line}
	}

	op, rest, ok := strings.Cut(line, delimiter)
	if !ok {
		return nil, &ParseError{Input: line}
	}

	switch op {
	case "i":
		return Identity{User: rest}, nil
	case "s":
		return Subscribe{Topic: rest}, nil
	case "u":
		return Unsubscribe{Topic: rest}, nil
	case "p":
		if topic, payload, ok := strings.Cut(rest, delimiter); ok {
			return Publish{Topic: topic, Payload: payload}, nil
		}
	case "m":
		if topic, tail, ok := strings.Cut(rest, delimiter); ok {
			if user, payload, ok := strings.Cut(tail, delimiter); ok {
				return Message{Topic: topic, User: user, Payload: payload}, nil
			}
		}
	}

	return nil, &ParseError{Input: line}
}

// Serialize encodes cmd without a line terminator. It is the exact inverse of
// Parse for every command whose non-final fields are free of ':' and whose
// fields are free of '\n'. A payload may end in '\r' but a frame reader that
// drops CR before LF will not see it.
func Serialize(cmd Command) string {
	switch c := cmd.(type) {
	case Identity:
		return join(KindIdentity, c.User)
	case Subscribe:
		return join(KindSubscribe, c.Topic)
	case Unsubscribe:
		return join(KindUnsubscribe, c.Topic)
	case Publish:
		return join(KindPublish, c.Topic, c.Payload)
	case Message:
		return join(KindMessage, c.Topic, c.User, c.Payload)
	default:
		return ""
	}
}

func join(kind Kind, fields ...string) string {
	var b strings.Builder
	b.WriteByte(byte(kind))
	for _, f := range fields {
		b.WriteString(delimiter)
		b.WriteString(f)
	}
	return b.String()
}

// trimTerminator strips exactly one of "\r\n" or "\n" from the end of line.
func trimTerminator(line string) string {
	switch {
	case strings.HasSuffix(line, "\r\n"):
		return line[:len(line)-2]
	case strings.HasSuffix(line, "\n"):
		return line[:len(line)-1]
	}
	return line
}
