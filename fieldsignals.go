// Package fieldsignals delivers field-scoped change notifications for ORM
// records. Application code connects a listener to a model for a subset of its
// fields and is called back before or after a save with exactly the fields
// whose values differ from the last observed snapshot, as (old, new) pairs.
// A listener is never invoked when nothing it watches has changed.
package fieldsignals

import (
	"context"
	"fmt"
	"reflect"
	"runtime"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/conduit-lang/fieldsignals/bus"
	"github.com/conduit-lang/fieldsignals/schema"
	"github.com/conduit-lang/fieldsignals/tracking"
)

// ChangeEvent is the payload delivered to listeners. Created and Using carry
// the host's post-save details (newly created, data store name) and are zero
// on the pre-save channel.
type ChangeEvent struct {
	Instance schema.Instance
	Changed  tracking.ChangeSet
	Created  bool
	Using    string
}

// ListenerFunc receives a change notification. A returned error propagates
// synchronously to the caller of the persistence operation.
type ListenerFunc func(ctx context.Context, e ChangeEvent) error

// ConnectOptions tunes one registration.
type ConnectOptions struct {
	// Name identifies the registration on its channel; connecting the same
	// name twice for one model fails. When empty, the listener's runtime
	// function name is used.
	Name string

	// Weak requests weak-reference delivery. It is not supported and always
	// fails with ErrUnsupportedOption.
	Weak bool
}

// Registration is the handle issued for a successfully connected listener.
type Registration struct {
	// ID keys this registration's per-instance snapshots.
	ID uuid.UUID

	// Name is the registration's identity on its channel.
	Name string

	model  schema.Model
	fields []schema.Field
}

// Model returns the model this registration watches.
func (r *Registration) Model() schema.Model { return r.model }

// FieldNames returns the resolved watched field names, in declaration order.
func (r *Registration) FieldNames() []string {
	names := make([]string, len(r.fields))
	for i, f := range r.fields {
		names[i] = f.Name()
	}
	return names
}

type regKey struct {
	model    string
	listener string
}

// Channel dispatches change notifications for one lifecycle moment. It owns
// the registration table for that moment and wires proxy handlers into the
// host's event bus: one on PostInit to seed snapshots, one on the channel's
// trigger event to diff and notify.
type Channel struct {
	name     string
	trigger  bus.Event
	bus      *bus.Bus
	registry *schema.Registry
	log      *zap.Logger

	mu   sync.Mutex
	regs map[regKey]*Registration
}

func newChannel(name string, trigger bus.Event, b *bus.Bus, r *schema.Registry, log *zap.Logger) *Channel {
	return &Channel{
		name:     name,
		trigger:  trigger,
		bus:      b,
		registry: r,
		log:      log,
		regs:     make(map[regKey]*Registration),
	}
}

// Name returns the channel name.
func (c *Channel) Name() string { return c.name }

// RegistrationCount returns the number of listeners connected on this channel.
func (c *Channel) RegistrationCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.regs)
}

// Connect registers fn to be called whenever one of the given fields of sender
// changes, observed at this channel's lifecycle moment. A nil fields list
// watches every trackable field. On success it returns the registration
// handle; on failure nothing is attached to the event bus.
func (c *Channel) Connect(fn ListenerFunc, sender schema.Model, fields []string, opts *ConnectOptions) (*Registration, error) {
	if opts == nil {
		opts = &ConnectOptions{}
	}
	if err := c.validate(fn, sender, opts); err != nil {
		return nil, err
	}

	resolved, err := schema.Resolve(sender, fields)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}

	name := opts.Name
	if name == "" {
		name = listenerName(fn)
	}
	key := regKey{model: sender.ModelName(), listener: name}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.regs[key]; exists {
		return nil, fmt.Errorf("%w: %q on %q", ErrDuplicateRegistration, name, sender.ModelName())
	}

	reg := &Registration{
		ID:     uuid.New(),
		Name:   name,
		model:  sender,
		fields: resolved,
	}

	// Seed the snapshot on instance initialization; the diff result is
	// discarded, its side effect is the point.
	prime := func(ctx context.Context, msg bus.Message) error {
		_, err := tracking.DiffAndUpdate(msg.Instance, reg.ID, reg.fields)
		return err
	}

	notify := func(ctx context.Context, msg bus.Message) error {
		changed, err := tracking.DiffAndUpdate(msg.Instance, reg.ID, reg.fields)
		if err != nil {
			return err
		}
		if len(changed) == 0 {
			return nil
		}
		c.log.Debug("dispatching field changes",
			zap.String("channel", c.name),
			zap.String("model", sender.ModelName()),
			zap.String("listener", name),
			zap.Strings("fields", changed.Names()),
		)
		return fn(ctx, ChangeEvent{
			Instance: msg.Instance,
			Changed:  changed,
			Created:  msg.Created,
			Using:    msg.Using,
		})
	}

	uid := c.name + "/" + name
	c.bus.Subscribe(bus.PostInit, sender.ModelName(), uid+"/init", prime)
	c.bus.Subscribe(c.trigger, sender.ModelName(), uid, notify)
	c.regs[key] = reg

	return reg, nil
}

// validate enforces all registration preconditions before anything is
// attached to the bus, so a failed Connect has no effect.
func (c *Channel) validate(fn ListenerFunc, sender schema.Model, opts *ConnectOptions) error {
	if !c.registry.Ready() {
		return ErrNotReady
	}
	if opts.Weak {
		return ErrUnsupportedOption
	}
	if fn == nil {
		return ErrNilListener
	}
	if sender == nil {
		return ErrInvalidSender
	}
	if _, isInstance := sender.(schema.Instance); isInstance {
		return fmt.Errorf("%w, not an instance", ErrInvalidSender)
	}
	return nil
}

// listenerName derives a stable registration name from the listener's runtime
// function name. Distinct closures defined at the same site share a name;
// callers registering several of those on one model must set ConnectOptions.Name.
func listenerName(fn ListenerFunc) string {
	pc := reflect.ValueOf(fn).Pointer()
	if f := runtime.FuncForPC(pc); f != nil {
		return f.Name()
	}
	return fmt.Sprintf("listener@%#x", pc)
}

// Signals bundles the two pre-built dispatch channels.
type Signals struct {
	// PreSaveChanged notifies just before an instance is saved.
	PreSaveChanged *Channel
	// PostSaveChanged notifies just after an instance is saved, with the
	// created flag and data store name on the event.
	PostSaveChanged *Channel
}

// Option configures Signals.
type Option func(*options)

type options struct {
	log *zap.Logger
}

// WithLogger enables debug tracing of notification dispatch. The default is a
// no-op logger.
func WithLogger(log *zap.Logger) Option {
	return func(o *options) { o.log = log }
}

// New builds the pre-save and post-save change channels on top of the given
// event bus and model registry.
func New(b *bus.Bus, r *schema.Registry, opts ...Option) *Signals {
	o := options{log: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	return &Signals{
		PreSaveChanged:  newChannel("pre_save_changed", bus.PreSave, b, r, o.log),
		PostSaveChanged: newChannel("post_save_changed", bus.PostSave, b, r, o.log),
	}
}
