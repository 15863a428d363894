package state

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/roach88/stately/internal/observer"
)

// Model is the per-object value model: field name to current value. A
// missing key means the field has not been materialized yet.
type Model map[string]any

// Object is an instance of a Type. It owns its value model and its
// observer index; every set and delete goes through a staged event.
//
// Object is not safe for concurrent use. Hosts that share an object between
// goroutines must serialize access with one lock per object.
type Object struct {
	typ   *Type
	model Model
	index *observer.Index[*Observer]

	batches   []*Batch
	guarding  int
	violation error
	resolving map[string]bool
	quota     *depthQuota

	id       string
	logger   *slog.Logger
	clock    *Clock
	ids      IDGenerator
	maxDepth int
	initial  map[string]any
}

// Option configures an Object.
type Option func(*Object)

// WithLogger sets the logger used for batch warnings and LogEvents.
func WithLogger(l *slog.Logger) Option {
	return func(o *Object) { o.logger = l }
}

// WithClock shares a sequence clock between objects so their events are
// totally ordered.
func WithClock(c *Clock) Option {
	return func(o *Object) { o.clock = c }
}

// WithIDGenerator sets the generator for object, event and batch ids.
func WithIDGenerator(g IDGenerator) Option {
	return func(o *Object) { o.ids = g }
}

// WithMaxDepth bounds nested event applications.
//
// Default: DefaultMaxDepth.
func WithMaxDepth(n int) Option {
	return func(o *Object) { o.maxDepth = n }
}

// WithModel makes the object use an existing value model.
func WithModel(m Model) Option {
	return func(o *Object) { o.model = m }
}

// WithID sets the object id. By default one is generated.
func WithID(id string) Option {
	return func(o *Object) { o.id = id }
}

// WithValues sets initial values. They are validated but written directly,
// without events, so read-only fields can be given values this way.
func WithValues(values map[string]any) Option {
	return func(o *Object) { o.initial = values }
}

// New creates an object of type t and registers the type's declarative
// observers on it.
func New(t *Type, opts ...Option) (*Object, error) {
	o := &Object{
		typ:       t,
		index:     observer.New[*Observer](),
		resolving: make(map[string]bool),
		logger:    slog.Default(),
		clock:     NewClock(),
		ids:       UUIDv7Generator{},
		maxDepth:  DefaultMaxDepth,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.model == nil {
		o.model = make(Model)
	}
	if o.id == "" {
		o.id = o.ids.Generate()
	}
	o.quota = newDepthQuota(o.maxDepth)

	for _, name := range sortedKeys(o.initial) {
		if !t.Has(name) {
			return nil, unknownField(t, name)
		}
	}
	for _, f := range t.fields {
		v, ok := o.initial[f.name]
		if !ok {
			continue
		}
		accepted, err := f.Validate(v)
		if err != nil {
			return nil, err
		}
		o.model[f.name] = accepted
	}
	o.initial = nil

	for _, spec := range t.observers {
		ob := NewObserver(spec.Label, spec.Guard, spec.Callback)
		if err := o.Observe(spec.Selector, ob); err != nil {
			return nil, fmt.Errorf("register observer %q: %w", spec.Label, err)
		}
	}
	return o, nil
}

// MustNew is like New but panics on error.
func MustNew(t *Type, opts ...Option) *Object {
	o, err := New(t, opts...)
	if err != nil {
		panic(err)
	}
	return o
}

// Type returns the object's type.
func (o *Object) Type() *Type { return o.typ }

// ID returns the object id.
func (o *Object) ID() string { return o.id }

// Clock returns the object's sequence clock.
func (o *Object) Clock() *Clock { return o.clock }

// Logger returns the object's logger.
func (o *Object) Logger() *slog.Logger { return o.logger }

// Model returns a copy of the raw value model. Unmaterialized fields are
// absent.
func (o *Object) Model() Model {
	out := make(Model, len(o.model))
	for k, v := range o.model {
		out[k] = v
	}
	return out
}

// Has reports whether the field currently has a value in the model.
func (o *Object) Has(name string) bool {
	_, ok := o.model[name]
	return ok
}

// Get returns the field's value. The first read of a field without a value
// computes its default and stores it; later reads return the stored value
// even if the default's inputs have changed since.
func (o *Object) Get(name string) (any, error) {
	f, err := o.typ.lookup(name)
	if err != nil {
		return nil, err
	}
	if v, ok := o.model[name]; ok {
		return v, nil
	}

	if o.resolving[name] {
		return nil, &Error{
			Code:    ErrCodeNoValue,
			Type:    o.typ.Name(),
			Field:   name,
			Message: "default depends on itself",
		}
	}
	o.resolving[name] = true
	defer delete(o.resolving, name)

	v, err := f.Default(o)
	if err != nil {
		return nil, fmt.Errorf("default for %s.%s: %w", o.typ.Name(), name, err)
	}
	if IsUndefined(v) {
		return nil, &Error{
			Code:    ErrCodeNoValue,
			Type:    o.typ.Name(),
			Field:   name,
			Message: "field has no value and no default",
		}
	}
	if o.guarding == 0 {
		o.model[name] = v
	}
	return v, nil
}

// Set changes a field through its set event. Inside a batch that
// intercepts the event, Set only queues it.
func (o *Object) Set(name string, v any) error {
	ev, err := o.SetEvent(name, v)
	if err != nil {
		return err
	}
	_, err = o.Actualize(ev)
	return err
}

// Delete removes a field's value through its del event.
func (o *Object) Delete(name string) error {
	ev, err := o.DelEvent(name)
	if err != nil {
		return err
	}
	_, err = o.Actualize(ev)
	return err
}

// SetEvent builds, without running it, the event that would set name to v.
func (o *Object) SetEvent(name string, v any) (*Event, error) {
	f, err := o.mutable(name)
	if err != nil {
		return nil, err
	}
	ev := newEvent(o, f.setKind, f)
	ev.newValue = v
	return ev, nil
}

// DelEvent builds, without running it, the event that would delete name.
func (o *Object) DelEvent(name string) (*Event, error) {
	f, err := o.mutable(name)
	if err != nil {
		return nil, err
	}
	return newEvent(o, f.delKind, f), nil
}

// NewEvent builds an event of an arbitrary kind for name. The kind's
// handlers decide what the event does.
func (o *Object) NewEvent(k *Kind, name string) (*Event, error) {
	if k == nil {
		return nil, &Error{Code: ErrCodeInvalidKind, Type: o.typ.Name(), Field: name, Message: "event kind is nil"}
	}
	if err := o.checkGuard(); err != nil {
		return nil, err
	}
	f, err := o.typ.lookup(name)
	if err != nil {
		return nil, err
	}
	return newEvent(o, k, f), nil
}

func (o *Object) mutable(name string) (*Field, error) {
	if err := o.checkGuard(); err != nil {
		return nil, err
	}
	f, err := o.typ.lookup(name)
	if err != nil {
		return nil, err
	}
	if !f.writable {
		return nil, notWritable(o.typ, f)
	}
	return f, nil
}

// Actualize applies an event, or queues it if an active batch intercepts
// its kind. It returns the last non-nil stage outcome.
func (o *Object) Actualize(ev *Event, args ...any) (any, error) {
	result, _, err := o.route(nil, ev, args)
	return result, err
}

// ActualizeContext is like Actualize, but stage results implementing
// stage.Awaitable are awaited with ctx.
func (o *Object) ActualizeContext(ctx context.Context, ev *Event, args ...any) (any, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	result, _, err := o.route(ctx, ev, args)
	return result, err
}

// route sends ev to the innermost batch that accepts it, or applies it.
// queued reports which one happened.
func (o *Object) route(ctx context.Context, ev *Event, args []any) (result any, queued bool, err error) {
	if ev.obj != o {
		return nil, false, fmt.Errorf("%s belongs to object %s, not %s", ev, ev.obj.id, o.id)
	}
	if err := o.checkGuard(); err != nil {
		return nil, false, err
	}
	for i := len(o.batches) - 1; i >= 0; i-- {
		b := o.batches[i]
		if b.accepts(ev) {
			b.enqueue(ctx, ev, args)
			return nil, true, nil
		}
	}
	result, err = o.apply(ctx, ev, args)
	return result, false, err
}

func (o *Object) apply(ctx context.Context, ev *Event, args []any) (any, error) {
	leave, err := o.quota.enter(ev)
	if err != nil {
		return nil, err
	}
	defer leave()

	cur, err := ev.start(ctx, args)
	if err != nil {
		return nil, err
	}
	result, err := cur.Run()
	if err != nil {
		o.logger.Debug("event halted",
			"object", o.id,
			"event", ev.String(),
			"stage", ev.Stage(),
			"depth", o.quota.depth(),
			"error", err,
		)
		return result, err
	}
	return result, nil
}

func (o *Object) checkGuard() error {
	if o.guarding == 0 {
		return nil
	}
	err := &Error{
		Code:    ErrCodeGuardMutation,
		Type:    o.typ.Name(),
		Message: "guard conditions must not mutate their object",
	}
	if o.violation == nil {
		o.violation = err
	}
	return err
}

// Update sets several fields as one batch, in field declaration order. Names
// and writability are checked before anything is queued; on failure every
// applied change is rolled back.
func (o *Object) Update(values map[string]any) error {
	if err := o.checkGuard(); err != nil {
		return err
	}
	for _, name := range sortedKeys(values) {
		if _, err := o.mutable(name); err != nil {
			return err
		}
	}
	return o.Delay(func() error {
		for _, f := range o.typ.fields {
			v, ok := values[f.name]
			if !ok {
				continue
			}
			if err := o.Set(f.name, v); err != nil {
				return err
			}
		}
		return nil
	}, SetEvent)
}

// Defaults computes the default of every field matching q, without
// storing anything. Fields without a default are omitted.
func (o *Object) Defaults(q TagQuery) (map[string]any, error) {
	out := make(map[string]any)
	for _, f := range o.typ.Fields(q) {
		v, err := f.Default(o)
		if err != nil {
			return nil, fmt.Errorf("default for %s.%s: %w", o.typ.Name(), f.name, err)
		}
		if !IsUndefined(v) {
			out[f.name] = v
		}
	}
	return out, nil
}

// Dump reads every field matching q, materializing defaults. Fields with
// neither a value nor a default are omitted.
func (o *Object) Dump(q TagQuery) (map[string]any, error) {
	out := make(map[string]any)
	for _, f := range o.typ.Fields(q) {
		v, err := o.Get(f.name)
		if IsNoValue(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out[f.name] = v
	}
	return out, nil
}

// String implements fmt.Stringer, e.g. "Point{x=1 y=2}". Unmaterialized
// fields are shown as "?".
func (o *Object) String() string {
	var b strings.Builder
	b.WriteString(o.typ.Name())
	b.WriteByte('{')
	for i, f := range o.typ.fields {
		if i > 0 {
			b.WriteByte(' ')
		}
		if v, ok := o.model[f.name]; ok {
			fmt.Fprintf(&b, "%s=%v", f.name, v)
		} else {
			fmt.Fprintf(&b, "%s=?", f.name)
		}
	}
	b.WriteByte('}')
	return b.String()
}
