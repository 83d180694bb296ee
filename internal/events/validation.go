package events

import (
	"errors"
	"regexp"
	"strings"
)

var (
	// ErrInvalidEventName is returned when an event name is not dotted lowercase.
	ErrInvalidEventName = errors.New("event name must be lowercase dot notation, e.g. 'broker.session.opened'")

	// ErrMissingDescription is returned when an event has no description.
	ErrMissingDescription = errors.New("event is missing a description")
)

var eventNameRegex = regexp.MustCompile(`^[a-z][a-z0-9_]*(\.[a-z][a-z0-9_]*)+$`)

// Validate checks that the event name is dotted lowercase with at least two
// segments and that it is documented.
func (e Event[T]) Validate() error {
	if !eventNameRegex.MatchString(e.name) {
		return ErrInvalidEventName
	}
	if strings.TrimSpace(e.description) == "" {
		return ErrMissingDescription
	}
	return nil
}

// Definition is the untyped view of an event used for listing.
type Definition interface {
	Name() string
	Description() string
	Validate() error
}

// All lists every broker event in publication order of a session's life.
func All() []Definition {
	return []Definition{
		TopicSessionOpened,
		TopicSessionRenamed,
		TopicCommandRejected,
		TopicTopicCreated,
		TopicSessionClosed,
	}
}
