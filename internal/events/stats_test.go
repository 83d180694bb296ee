package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTypedEvent(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bridge := NewWatermillBridge()
	defer bridge.Close()

	got := make(chan SessionRenamed, 1)
	require.NoError(t, bridge.Subscribe(ctx, TopicSessionRenamed.Name(), func(ctx context.Context, msg Message) error {
		payload, err := Decode(TopicSessionRenamed, msg)
		if err != nil {
			return err
		}
		got <- payload
		return nil
	}))

	err := Publish(ctx, bridge, TopicSessionRenamed, "alice", SessionRenamed{SessionID: "s1", From: "k1", To: "alice"})
	require.NoError(t, err)

	select {
	case payload := <-got:
		assert.Equal(t, SessionRenamed{SessionID: "s1", From: "k1", To: "alice"}, payload)
	case <-time.After(time.Second):
		t.Fatal("typed event was not delivered")
	}
}

func TestDecode_WrongTopic(t *testing.T) {
	_, err := Decode(TopicSessionOpened, Message{Topic: TopicSessionClosed.Name(), Payload: []byte("{}")})
	assert.Error(t, err)
}

func TestDecode_InvalidPayload(t *testing.T) {
	_, err := Decode(TopicTopicCreated, Message{Topic: TopicTopicCreated.Name(), Payload: []byte("not json")})
	assert.Error(t, err)
}

func TestDiscard(t *testing.T) {
	assert.NoError(t, Publish(context.Background(), Discard, TopicTopicCreated, "", TopicCreated{Topic: "T"}))
	assert.NoError(t, Discard.Close())
}

func TestStats(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bridge := NewWatermillBridge()
	defer bridge.Close()

	stats := NewStats()
	require.NoError(t, stats.Start(ctx, bridge))
	assert.Equal(t, StatsSnapshot{}, stats.Snapshot())

	require.NoError(t, Publish(ctx, bridge, TopicSessionOpened, "k1", SessionOpened{SessionID: "s1", Key: "k1"}))
	require.NoError(t, Publish(ctx, bridge, TopicSessionOpened, "k2", SessionOpened{SessionID: "s2", Key: "k2"}))
	require.NoError(t, Publish(ctx, bridge, TopicSessionRenamed, "alice", SessionRenamed{SessionID: "s1", From: "k1", To: "alice"}))
	require.NoError(t, Publish(ctx, bridge, TopicCommandRejected, "k2", CommandRejected{SessionID: "s2", Key: "k2", Input: "x"}))
	require.NoError(t, Publish(ctx, bridge, TopicTopicCreated, "", TopicCreated{Topic: "T"}))
	require.NoError(t, Publish(ctx, bridge, TopicSessionClosed, "k2", SessionClosed{SessionID: "s2", Key: "k2"}))

	want := StatsSnapshot{
		SessionsOpened:   2,
		SessionsClosed:   1,
		SessionsActive:   1,
		Renames:          1,
		RejectedCommands: 1,
		TopicsCreated:    1,
	}
	assert.Eventually(t, func() bool {
		return stats.Snapshot() == want
	}, time.Second, 10*time.Millisecond)
}
