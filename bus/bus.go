// Package bus provides the lifecycle event bus that connects a host
// persistence framework to fieldsignals. The host publishes an event when an
// instance is initialized, before it is saved, and after it is saved; handlers
// run synchronously, in subscription order, on the publishing goroutine.
package bus

import (
	"context"
	"fmt"
	"sync"

	"github.com/conduit-lang/fieldsignals/schema"
)

// Event identifies a persistence lifecycle moment.
type Event uint8

const (
	// PostInit fires once per instance materialization (construction or load).
	PostInit Event = iota
	// PreSave fires immediately before a save operation.
	PreSave
	// PostSave fires immediately after a save operation.
	PostSave
)

// String returns the event name.
func (e Event) String() string {
	switch e {
	case PostInit:
		return "post_init"
	case PreSave:
		return "pre_save"
	case PostSave:
		return "post_save"
	default:
		return "unknown"
	}
}

// Message is the payload delivered to handlers. Created and Using are
// populated for PostSave only: whether the record was newly created, and the
// name of the data store that performed the save.
type Message struct {
	Event    Event
	Instance schema.Instance
	Created  bool
	Using    string
}

// HandlerFunc handles one published lifecycle message. A returned error halts
// dispatch and propagates to the publisher.
type HandlerFunc func(ctx context.Context, msg Message) error

type subKey struct {
	event Event
	model string
}

type subscription struct {
	uid string
	fn  HandlerFunc
}

// Bus routes lifecycle messages to handlers keyed by (event, model name).
type Bus struct {
	mu   sync.RWMutex
	subs map[subKey][]subscription
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{
		subs: make(map[subKey][]subscription),
	}
}

// Subscribe attaches a handler for one event on one model. The uid identifies
// the subscription; subscribing the same uid twice is a no-op, so handlers
// never double-fire on repeated wiring.
func (b *Bus) Subscribe(event Event, model, uid string, fn HandlerFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()

	key := subKey{event: event, model: model}
	for _, sub := range b.subs[key] {
		if sub.uid == uid {
			return
		}
	}
	b.subs[key] = append(b.subs[key], subscription{uid: uid, fn: fn})
}

// Unsubscribe detaches the handler registered under uid, if any.
func (b *Bus) Unsubscribe(event Event, model, uid string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	key := subKey{event: event, model: model}
	subs := b.subs[key]
	for i, sub := range subs {
		if sub.uid == uid {
			b.subs[key] = append(subs[:i:i], subs[i+1:]...)
			return
		}
	}
}

// HandlerCount returns the number of handlers attached for one event on one model.
func (b *Bus) HandlerCount(event Event, model string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return len(b.subs[subKey{event: event, model: model}])
}

// Publish delivers a message to every handler subscribed for its event and
// model, in subscription order. The first handler error halts delivery and is
// returned to the caller; nothing is retried or suppressed.
func (b *Bus) Publish(ctx context.Context, msg Message) error {
	model := msg.Instance.Model().ModelName()

	b.mu.RLock()
	subs := b.subs[subKey{event: msg.Event, model: model}]
	run := make([]subscription, len(subs))
	copy(run, subs)
	b.mu.RUnlock()

	for _, sub := range run {
		if err := sub.fn(ctx, msg); err != nil {
			return fmt.Errorf("%s handler %s: %w", msg.Event, sub.uid, err)
		}
	}
	return nil
}
