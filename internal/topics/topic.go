package topics

import (
	"log/slog"
	"slices"
	"sync"
)

// Sink delivers serialized protocol lines to a single connection. The transport
// owning the sink adds its own framing (a trailing newline, a WebSocket frame).
//
// Sinks are matched by identity when a connection cleans up after itself, so
// implementations must be comparable; in practice they are pointer types.
// The line passed to Send is shared between all sinks of a publish and must
// not be modified.
type Sink interface {
	Send(line []byte) error
}

// ResubscribePolicy decides what happens when a key subscribes to a topic it
// is already subscribed to.
type ResubscribePolicy string

const (
	// ResubscribeReplace swaps the registered sink for the new one.
	ResubscribeReplace ResubscribePolicy = "replace"
	// ResubscribeKeep leaves the existing sink in place and discards the new one.
	ResubscribeKeep ResubscribePolicy = "keep"
)

// subscriber is a topic entry. Entries move between keys on rename, so the
// pointer, not the key, identifies a registration.
type subscriber struct {
	sink Sink
}

// Topic holds the subscribers of one named topic.
type Topic struct {
	name   string
	policy ResubscribePolicy
	logger *slog.Logger

	mu          sync.Mutex
	subscribers map[string]*subscriber
}

func newTopic(name string, policy ResubscribePolicy, logger *slog.Logger) *Topic {
	return &Topic{
		name:        name,
		policy:      policy,
		logger:      logger.With("topic", name),
		subscribers: make(map[string]*subscriber),
	}
}

// Name returns the topic name.
func (t *Topic) Name() string {
	return t.name
}

// Subscribe registers sink under key. It reports whether sink is the one
// registered under key afterwards.
func (t *Topic) Subscribe(key string, sink Sink) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if existing, ok := t.subscribers[key]; ok {
		if t.policy == ResubscribeKeep {
			return existing.sink == sink
		}
		existing.sink = sink
		return true
	}

	t.subscribers[key] = &subscriber{sink: sink}
	return true
}

// Unsubscribe removes key from the topic. Unknown keys are ignored.
func (t *Topic) Unsubscribe(key string) bool {
	return t.DeleteKey(key)
}

// DeleteKey removes the entry registered under key, if any.
func (t *Topic) DeleteKey(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.subscribers[key]; !ok {
		return false
	}
	delete(t.subscribers, key)
	return true
}

// RenameKey moves the sink registered under oldKey to newKey, replacing
// whatever newKey held. Nothing happens if oldKey is not subscribed.
func (t *Topic) RenameKey(oldKey, newKey string) bool {
	return t.rename(oldKey, newKey, nil)
}

// renameSubscriber is RenameKey restricted to the entry owned by sink.
func (t *Topic) renameSubscriber(oldKey, newKey string, sink Sink) bool {
	return t.rename(oldKey, newKey, sink)
}

func (t *Topic) rename(oldKey, newKey string, owner Sink) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	sub, ok := t.subscribers[oldKey]
	if !ok || (owner != nil && sub.sink != owner) {
		return false
	}
	if oldKey == newKey {
		return true
	}

	delete(t.subscribers, oldKey)
	t.subscribers[newKey] = sub
	return true
}

// deleteSubscriber removes key only while it is still bound to sink.
func (t *Topic) deleteSubscriber(key string, sink Sink) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	sub, ok := t.subscribers[key]
	if !ok || sub.sink != sink {
		return false
	}
	delete(t.subscribers, key)
	return true
}

type delivery struct {
	key  string
	sub  *subscriber
	sink Sink
}

// Publish sends line to every subscriber and returns the number of successful
// deliveries. The subscriber set is snapshotted under the lock and written
// outside it, so a slow sink never blocks subscribe or unsubscribe on this
// topic. Sinks that fail are dropped from the topic.
func (t *Topic) Publish(line []byte) int {
	t.mu.Lock()
	targets := make([]delivery, 0, len(t.subscribers))
	for key, sub := range t.subscribers {
		targets = append(targets, delivery{key: key, sub: sub, sink: sub.sink})
	}
	t.mu.Unlock()

	delivered := 0
	var failed []delivery
	for _, d := range targets {
		if err := d.sink.Send(line); err != nil {
			t.logger.Warn("Dropping subscriber after failed delivery", "key", d.key, "error", err)
			failed = append(failed, d)
			continue
		}
		delivered++
	}

	if len(failed) > 0 {
		t.evict(failed)
	}
	return delivered
}

// evict removes entries whose sink failed, wherever they have been renamed to
// in the meantime. Entries re-pointed at a new sink are left alone.
func (t *Topic) evict(failed []delivery) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for key, sub := range t.subscribers {
		for _, d := range failed {
			if sub == d.sub && sub.sink == d.sink {
				delete(t.subscribers, key)
				break
			}
		}
	}
}

// Len returns the number of subscribers.
func (t *Topic) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.subscribers)
}

// Keys returns the subscriber keys in sorted order.
func (t *Topic) Keys() []string {
	t.mu.Lock()
	keys := make([]string, 0, len(t.subscribers))
	for key := range t.subscribers {
		keys = append(keys, key)
	}
	t.mu.Unlock()

	slices.Sort(keys)
	return keys
}
