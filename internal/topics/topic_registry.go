package topics

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/alphadose/haxmap"

	"github.com/nfrund/pubsubd/internal/protocol"
)

// Registry maps topic names to topics. It is the broker's only shared mutable
// state: every session holds the same *Registry and calls it concurrently.
//
// Topics are created on first subscribe and live for the lifetime of the
// registry, even once their last subscriber has left.
type Registry struct {
	topics *haxmap.Map[string, *Topic]
	// createMu serializes topic creation only; lookups never take it.
	createMu sync.Mutex

	policy   ResubscribePolicy
	onCreate func(name string)
	logger   *slog.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithResubscribePolicy sets how topics treat a key that subscribes twice.
func WithResubscribePolicy(p ResubscribePolicy) Option {
	return func(r *Registry) {
		r.policy = p
	}
}

// WithTopicCreatedHook registers fn to be called once for every topic the
// registry creates. fn runs on the subscribing session's goroutine.
func WithTopicCreatedHook(fn func(name string)) Option {
	return func(r *Registry) {
		r.onCreate = fn
	}
}

// WithLogger sets the logger used by the registry and its topics.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = l
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		topics: haxmap.New[string, *Topic](),
		policy: ResubscribeReplace,
		logger: slog.Default().With("component", "registry"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Topic returns the named topic if it exists.
func (r *Registry) Topic(name string) (*Topic, bool) {
	return r.topics.Get(name)
}

// getOrCreate returns the named topic, creating it on first use.
func (r *Registry) getOrCreate(name string) *Topic {
	if t, ok := r.topics.Get(name); ok {
		return t
	}

	r.createMu.Lock()
	t, loaded := r.topics.GetOrCompute(name, func() *Topic {
		return newTopic(name, r.policy, r.logger)
	})
	r.createMu.Unlock()

	if !loaded {
		r.logger.Debug("Topic created", "topic", name)
		if r.onCreate != nil {
			r.onCreate(name)
		}
	}
	return t
}

// Subscribe registers sink under key on the named topic, creating the topic
// if needed.
func (r *Registry) Subscribe(topic, key string, sink Sink) {
	r.getOrCreate(topic).Subscribe(key, sink)
}

// Unsubscribe removes key from the named topic. Unknown topics and keys are
// ignored.
func (r *Registry) Unsubscribe(topic, key string) {
	if t, ok := r.topics.Get(topic); ok {
		t.Unsubscribe(key)
	}
}

// Publish wraps payload in a Message from key and fans it out to the named
// topic. It returns the number of sinks that received it; publishing to an
// unknown topic delivers to nobody.
func (r *Registry) Publish(topic, key, payload string) int {
	t, ok := r.topics.Get(topic)
	if !ok {
		return 0
	}
	line := protocol.Serialize(protocol.Message{Topic: topic, User: key, Payload: payload})
	return t.Publish([]byte(line))
}

// RenameKey moves oldKey to newKey on every topic. A sink already registered
// under newKey is replaced.
func (r *Registry) RenameKey(oldKey, newKey string) {
	r.topics.ForEach(func(_ string, t *Topic) bool {
		t.RenameKey(oldKey, newKey)
		return true
	})
}

// RenameSubscriber is RenameKey limited to entries whose sink is sink.
func (r *Registry) RenameSubscriber(oldKey, newKey string, sink Sink) {
	r.topics.ForEach(func(_ string, t *Topic) bool {
		t.renameSubscriber(oldKey, newKey, sink)
		return true
	})
}

// DeleteKey removes key from every topic.
func (r *Registry) DeleteKey(key string) {
	r.topics.ForEach(func(_ string, t *Topic) bool {
		t.DeleteKey(key)
		return true
	})
}

// DeleteSubscriber removes key from every topic where it is still bound to
// sink. Sessions use it on teardown so that a key claimed by another
// connection in the meantime survives.
func (r *Registry) DeleteSubscriber(key string, sink Sink) {
	r.topics.ForEach(func(_ string, t *Topic) bool {
		t.deleteSubscriber(key, sink)
		return true
	})
}

// TopicStats summarizes one topic.
type TopicStats struct {
	Name        string `json:"name"`
	Subscribers int    `json:"subscribers"`
}

// Stats returns every topic with its subscriber count, sorted by name.
func (r *Registry) Stats() []TopicStats {
	stats := make([]TopicStats, 0, r.Len())
	r.topics.ForEach(func(name string, t *Topic) bool {
		stats = append(stats, TopicStats{Name: name, Subscribers: t.Len()})
		return true
	})
	sort.Slice(stats, func(i, j int) bool { return stats[i].Name < stats[j].Name })
	return stats
}

// Keys returns the subscriber keys of the named topic.
func (r *Registry) Keys(topic string) ([]string, bool) {
	t, ok := r.topics.Get(topic)
	if !ok {
		return nil, false
	}
	return t.Keys(), true
}

// Len returns the number of topics.
func (r *Registry) Len() int {
	return int(r.topics.Len())
}
