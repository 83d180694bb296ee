package events

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// Stats counts broker lifecycle events seen on the bus.
type Stats struct {
	sessionsOpened   atomic.Int64
	sessionsClosed   atomic.Int64
	renames          atomic.Int64
	rejectedCommands atomic.Int64
	topicsCreated    atomic.Int64
}

// StatsSnapshot is a point-in-time copy of Stats.
type StatsSnapshot struct {
	SessionsOpened   int64 `json:"sessions_opened"`
	SessionsClosed   int64 `json:"sessions_closed"`
	SessionsActive   int64 `json:"sessions_active"`
	Renames          int64 `json:"renames"`
	RejectedCommands int64 `json:"rejected_commands"`
	TopicsCreated    int64 `json:"topics_created"`
}

// NewStats creates a zeroed counter set. Call Start to attach it to a bus.
func NewStats() *Stats {
	return &Stats{}
}

// Start subscribes the counters to every broker event topic.
func (s *Stats) Start(ctx context.Context, sub Subscriber) error {
	counters := map[string]*atomic.Int64{
		TopicSessionOpened.Name():   &s.sessionsOpened,
		TopicSessionClosed.Name():   &s.sessionsClosed,
		TopicSessionRenamed.Name():  &s.renames,
		TopicCommandRejected.Name(): &s.rejectedCommands,
		TopicTopicCreated.Name():    &s.topicsCreated,
	}

	for topic, counter := range counters {
		counter := counter
		err := sub.Subscribe(ctx, topic, func(ctx context.Context, msg Message) error {
			counter.Add(1)
			slog.Debug("Broker event", "topic", msg.Topic, "user_id", msg.UserID, "payload", string(msg.Payload))
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// Snapshot returns the current counter values.
func (s *Stats) Snapshot() StatsSnapshot {
	opened := s.sessionsOpened.Load()
	closed := s.sessionsClosed.Load()
	return StatsSnapshot{
		SessionsOpened:   opened,
		SessionsClosed:   closed,
		SessionsActive:   opened - closed,
		Renames:          s.renames.Load(),
		RejectedCommands: s.rejectedCommands.Load(),
		TopicsCreated:    s.topicsCreated.Load(),
	}
}
