package state

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/stately/internal/stage"
)

// Event is one attempted mutation of one field on one object.
//
// An event is created by its object, then driven stage by stage through its
// kind's cycle. After the last stage it is inert: Old and New can still be
// read and Rollback can still undo it. While observers are being notified
// the event is frozen and its mutators fail with FROZEN.
type Event struct {
	kind   *Kind
	field  *Field
	obj    *Object
	engine *stage.Engine

	id    string
	seq   int64
	batch string

	oldValue any
	newValue any
	captured bool
	frozen   bool
	attrs    map[string]any
}

func newEvent(o *Object, kind *Kind, f *Field) *Event {
	ev := &Event{
		kind:     kind,
		field:    f,
		obj:      o,
		id:       o.ids.Generate(),
		oldValue: Undefined,
		newValue: Undefined,
	}
	ev.engine = stage.NewEngine(kind.cycle, ev.handle, ev.notify)
	return ev
}

func (ev *Event) handle(s string, args []any) (any, bool, error) {
	h, ok := ev.kind.handler(s)
	if !ok {
		return nil, false, nil
	}
	result, err := h(ev, args)
	return result, true, err
}

func (ev *Event) notify(string) error {
	return ev.obj.dispatch(ev)
}

func (ev *Event) captureOld() {
	if v, ok := ev.obj.model[ev.field.name]; ok {
		ev.oldValue = v
	} else {
		ev.oldValue = Undefined
	}
	ev.captured = true
}

// Start begins driving the event and returns a cursor that advances one
// stage per Next. Notifications fire as the cursor advances. Starting an
// event that is already mid-cycle fails with BUSY.
//
// Start bypasses batch interception and the owner's depth limit; use
// Object.Actualize for the normal path.
func (ev *Event) Start(args ...any) (*stage.Cursor, error) {
	return ev.start(nil, args)
}

// StartContext is like Start, but Awaitable stage results are awaited with
// ctx before their stage's notification.
func (ev *Event) StartContext(ctx context.Context, args ...any) (*stage.Cursor, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	return ev.start(ctx, args)
}

func (ev *Event) start(ctx context.Context, args []any) (*stage.Cursor, error) {
	var (
		cur *stage.Cursor
		err error
	)
	if ctx != nil {
		cur, err = ev.engine.StartContext(ctx, args...)
	} else {
		cur, err = ev.engine.Start(args...)
	}
	if errors.Is(err, stage.ErrBusy) {
		return nil, &Error{
			Code:    ErrCodeBusy,
			Type:    ev.obj.typ.Name(),
			Field:   ev.field.name,
			Message: fmt.Sprintf("%s is already in progress", ev),
			Err:     err,
		}
	}
	if err != nil {
		return nil, err
	}
	if ev.seq == 0 {
		ev.seq = ev.obj.clock.Next()
	}
	return cur, nil
}

// Rollback undoes whatever the event changed in the value model. It is safe
// after any prefix of stages, including none.
func (ev *Event) Rollback() error {
	fn := ev.kind.rollbackFunc()
	if fn == nil {
		return nil
	}
	if err := fn(ev); err != nil {
		return fmt.Errorf("rollback %s: %w", ev, err)
	}
	return nil
}

// Kind returns the event's kind.
func (ev *Event) Kind() *Kind { return ev.kind }

// Field returns the targeted field.
func (ev *Event) Field() *Field { return ev.field }

// Name returns the targeted field's name.
func (ev *Event) Name() string { return ev.field.name }

// Object returns the targeted object.
func (ev *Event) Object() *Object { return ev.obj }

// ID returns the event's identifier.
func (ev *Event) ID() string { return ev.id }

// Seq returns the logical sequence number assigned when the event was first
// started, or 0.
func (ev *Event) Seq() int64 { return ev.seq }

// Batch returns the id of the batch that applied the event, if any.
func (ev *Event) Batch() string { return ev.batch }

// Stage returns the current stage; StageNone before and after running.
func (ev *Event) Stage() string { return ev.engine.Status() }

// Active reports whether the event is mid-cycle.
func (ev *Event) Active() bool { return ev.engine.Active() }

// Cycle returns the event's stage order.
func (ev *Event) Cycle() []string { return ev.kind.Cycle() }

// Result returns the outcome a stage produced in the latest run.
func (ev *Event) Result(stage string) (any, bool) { return ev.engine.Result(stage) }

// Old returns the value captured before the event changed anything, or
// Undefined if the field had no value (or pending has not run).
func (ev *Event) Old() any { return ev.oldValue }

// New returns the proposed value, and after done the committed one.
func (ev *Event) New() any { return ev.newValue }

// Captured reports whether the old value has been captured.
func (ev *Event) Captured() bool { return ev.captured }

// Frozen reports whether the event is locked against modification.
func (ev *Event) Frozen() bool { return ev.frozen }

// SetNew replaces the proposed value.
func (ev *Event) SetNew(v any) error {
	if ev.frozen {
		return ev.frozenError()
	}
	ev.newValue = v
	return nil
}

// Attr returns an extra attribute attached to the event.
func (ev *Event) Attr(key string) (any, bool) {
	v, ok := ev.attrs[key]
	return v, ok
}

// SetAttr attaches an extra attribute to the event.
func (ev *Event) SetAttr(key string, v any) error {
	if ev.frozen {
		return ev.frozenError()
	}
	if ev.attrs == nil {
		ev.attrs = make(map[string]any)
	}
	ev.attrs[key] = v
	return nil
}

// Attrs returns a copy of the event's public attributes: name, kind, stage,
// old, new plus any extra attributes.
func (ev *Event) Attrs() map[string]any {
	out := map[string]any{
		"name":  ev.field.name,
		"kind":  ev.kind.typename,
		"stage": ev.Stage(),
		"old":   ev.oldValue,
		"new":   ev.newValue,
	}
	for k, v := range ev.attrs {
		out[k] = v
	}
	return out
}

// String implements fmt.Stringer, e.g. "set event(Point.x)".
func (ev *Event) String() string {
	return fmt.Sprintf("%s(%s.%s)", ev.kind.typename, ev.obj.typ.Name(), ev.field.name)
}

func (ev *Event) frozenError() *Error {
	return &Error{
		Code:    ErrCodeFrozen,
		Type:    ev.obj.typ.Name(),
		Field:   ev.field.name,
		Message: fmt.Sprintf("%s is locked", ev),
	}
}

// lock freezes the event and returns a func restoring the previous state.
func (ev *Event) lock() func() {
	prev := ev.frozen
	ev.frozen = true
	return func() { ev.frozen = prev }
}
