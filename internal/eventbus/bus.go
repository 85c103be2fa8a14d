// Package eventbus implements the process-scoped, topic-typed pub-sub of
// spec.md section 4.7. Publishing is non-blocking; delivery happens on the
// next Drain call. Within one topic, delivery is FIFO; across topics there
// is no ordering guarantee.
package eventbus

import (
	"sync"

	"github.com/google/uuid"
)

// Topic names the core event bus channels (spec.md section 4.7). Consumers
// may define additional application-level topics beyond these.
type Topic string

const (
	TopicShaderReloaded  Topic = "ShaderReloaded"
	TopicSwapchainResize Topic = "SwapchainResized"
	TopicFrameStart      Topic = "FrameStart"
	TopicFrameEnd        Topic = "FrameEnd"
	TopicNodeDirty       Topic = "NodeDirty"
)

// Event is the payload delivered to subscribers. Index carries the frame
// index for FrameStart/FrameEnd, or is zero for topics that don't need one.
type Event struct {
	Topic Topic
	Index uint64
	Data  interface{}
}

// Token is the opaque deregistration handle returned by Subscribe.
type Token uuid.UUID

type subscription struct {
	token    Token
	callback func(Event)
}

// Bus is a bounded, lock-protected multi-producer queue per topic. Publish
// never blocks the caller past a mutex acquisition; delivery is deferred
// to Drain so that handlers never run concurrently with publishers mid-
// frame (spec.md: "delivery is on the next drain() call").
type Bus struct {
	mu   sync.Mutex
	subs map[Topic][]subscription
	// queued holds, per topic, the FIFO of events published since the
	// last Drain. Queues are capped at cap per topic; Publish drops the
	// oldest entry rather than blocking when a queue is full, since the
	// bus never blocks publishers by contract.
	queued map[Topic][]Event
	cap    int
}

// DefaultQueueCapacity bounds how many undelivered events one topic can
// accumulate between Drain calls before the oldest is dropped.
const DefaultQueueCapacity = 4096

// New constructs an empty bus. capacity <= 0 uses DefaultQueueCapacity.
func New(capacity int) *Bus {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	return &Bus{
		subs:   make(map[Topic][]subscription),
		queued: make(map[Topic][]Event),
		cap:    capacity,
	}
}

// Subscribe registers callback for topic and returns a token that
// Unsubscribe accepts to remove it again without leaking the closure.
func (b *Bus) Subscribe(topic Topic, callback func(Event)) Token {
	b.mu.Lock()
	defer b.mu.Unlock()
	tok := Token(uuid.New())
	b.subs[topic] = append(b.subs[topic], subscription{token: tok, callback: callback})
	return tok
}

// Unsubscribe removes the subscription identified by token, if present.
func (b *Bus) Unsubscribe(topic Topic, token Token) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subs[topic]
	for i, s := range subs {
		if s.token == token {
			b.subs[topic] = append(subs[:i], subs[i+1:]...)
			return
		}
	}
}

// Publish enqueues an event for later delivery. It never blocks and never
// invokes a subscriber directly.
func (b *Bus) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	q := b.queued[ev.Topic]
	if len(q) >= b.cap {
		q = q[1:]
	}
	b.queued[ev.Topic] = append(q, ev)
}

// Drain delivers every event queued since the previous Drain, in FIFO
// order per topic, then clears the queues. Handlers registered for a
// topic are snapshotted before delivery so a handler that subscribes or
// unsubscribes mid-delivery cannot corrupt this Drain's pass.
func (b *Bus) Drain() {
	b.mu.Lock()
	topics := make([]Topic, 0, len(b.queued))
	events := make(map[Topic][]Event, len(b.queued))
	for topic, evs := range b.queued {
		if len(evs) == 0 {
			continue
		}
		topics = append(topics, topic)
		events[topic] = evs
		b.queued[topic] = nil
	}
	handlers := make(map[Topic][]subscription, len(topics))
	for _, topic := range topics {
		handlers[topic] = append([]subscription(nil), b.subs[topic]...)
	}
	b.mu.Unlock()

	for _, topic := range topics {
		for _, ev := range events[topic] {
			for _, sub := range handlers[topic] {
				sub.callback(ev)
			}
		}
	}
}

// Pending reports how many events are queued for topic, for tests and
// diagnostics.
func (b *Bus) Pending(topic Topic) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queued[topic])
}
