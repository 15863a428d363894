package state

import (
	"context"
	"fmt"
	"log/slog"
)

// Guard decides whether an observer fires for an event. Guards must not
// mutate the object: while one runs, every set, delete or actualize on the
// object fails with GUARD_MUTATION, and the notification that ran the guard
// fails with it too. Reads are allowed; a default read by a guard is
// computed but not stored.
type Guard func(o *Object, ev *Event) bool

// Callback is invoked for a matching notification. A non-nil error halts
// the event at the notifying stage.
type Callback func(o *Object, ev *Event) error

// Observer is a (guard, callback) registration. Identity is pointer
// identity: registering the same *Observer twice on one bucket is a no-op,
// while two observers built from the same funcs are distinct.
type Observer struct {
	label    string
	guard    Guard
	callback Callback
}

// NewObserver creates an observer. guard may be nil.
func NewObserver(label string, guard Guard, cb Callback) *Observer {
	return &Observer{label: label, guard: guard, callback: cb}
}

// Label returns the observer's label.
func (ob *Observer) Label() string { return ob.label }

// String implements fmt.Stringer.
func (ob *Observer) String() string {
	if ob.label == "" {
		return "observer"
	}
	return ob.label
}

// ObserverSpec declares an observer on a Type; each new object registers
// its own Observer from it.
type ObserverSpec struct {
	Label    string
	Selector Selector
	Guard    Guard
	Callback Callback
}

// Condition is a reusable guard together with a default selection.
//
//	positive := state.When(func(_ *state.Object, ev *state.Event) bool {
//	    n, ok := ev.New().(int)
//	    return ok && n > 0
//	}).Where(state.On("x").At(state.StageDone))
//
//	t := state.NewType("Counter").
//	    Field("x", state.Default(0)).
//	    Observe(positive.Observe("positive", record)).
//	    MustBuild()
type Condition struct {
	Guard    Guard
	Selector Selector
}

// When creates a condition from a guard.
func When(guard Guard) Condition {
	return Condition{Guard: guard}
}

// Where returns a copy of c with a different selection.
func (c Condition) Where(sel Selector) Condition {
	c.Selector = sel
	return c
}

// And returns a condition that holds when both guards hold. The selection
// of c is kept.
func (c Condition) And(other Guard) Condition {
	first := c.Guard
	c.Guard = func(o *Object, ev *Event) bool {
		if first != nil && !first(o, ev) {
			return false
		}
		return other == nil || other(o, ev)
	}
	return c
}

// Observe binds the condition to a callback.
func (c Condition) Observe(label string, cb Callback) ObserverSpec {
	return ObserverSpec{Label: label, Selector: c.Selector, Guard: c.Guard, Callback: cb}
}

// Observe registers ob for every (field, kind, stage) the selector picks.
func (o *Object) Observe(sel Selector, ob *Observer) error {
	if ob == nil || ob.callback == nil {
		return fmt.Errorf("observe %s: observer has no callback", o.typ.Name())
	}
	s, err := sel.resolve(o.typ)
	if err != nil {
		return err
	}
	s.each(func(stage, name, kind string) {
		o.index.Add(stage, name, kind, ob)
	})
	return nil
}

// ObserveFunc registers a callback without a guard and returns the
// observer handle for Unobserve.
func (o *Object) ObserveFunc(sel Selector, cb Callback) (*Observer, error) {
	ob := NewObserver("", nil, cb)
	if err := o.Observe(sel, ob); err != nil {
		return nil, err
	}
	return ob, nil
}

// Unobserve removes ob from every bucket and returns how many registrations
// were removed.
func (o *Object) Unobserve(ob *Observer) int {
	return o.index.Remove(ob)
}

// UnobserveWhere removes registrations in the buckets the selector picks:
// ob only, or every observer if ob is nil.
func (o *Object) UnobserveWhere(sel Selector, ob *Observer) (int, error) {
	s, err := sel.resolve(o.typ)
	if err != nil {
		return 0, err
	}
	removed := 0
	s.each(func(stage, name, kind string) {
		if ob == nil {
			removed += o.index.Clear(stage, name, kind)
			return
		}
		if o.index.Delete(stage, name, kind, ob) {
			removed++
		}
	})
	return removed, nil
}

// Observers lists the observers registered exactly on the buckets the
// selector picks, in first-registration order, without duplicates. Unlike
// dispatch it does not walk kind lineage.
func (o *Object) Observers(sel Selector) ([]*Observer, error) {
	s, err := sel.resolve(o.typ)
	if err != nil {
		return nil, err
	}
	seen := make(map[*Observer]bool)
	var out []*Observer
	s.each(func(stage, name, kind string) {
		for _, ob := range o.index.Bucket(stage, name, kind) {
			if !seen[ob] {
				seen[ob] = true
				out = append(out, ob)
			}
		}
	})
	return out, nil
}

// dispatch notifies the observers matching ev's field, kind lineage and
// current stage. The match list is taken before any callback runs, so
// observers added or removed by a callback take effect from the next
// notification.
func (o *Object) dispatch(ev *Event) error {
	matches := o.index.Get(ev.field.name, ev.kind.lineage, ev.Stage())
	if len(matches) == 0 {
		return nil
	}

	unlock := ev.lock()
	defer unlock()

	for _, ob := range matches {
		if ob.guard != nil {
			ok, err := o.runGuard(ob, ev)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
		}
		if err := ob.callback(o, ev); err != nil {
			return &Error{
				Code:    ErrCodeHalted,
				Type:    o.typ.Name(),
				Field:   ev.field.name,
				Message: fmt.Sprintf("observer %s halted %s at %s", ob, ev, StageLabel(ev.Stage())),
				Err:     err,
			}
		}
	}
	return nil
}

func (o *Object) runGuard(ob *Observer, ev *Event) (bool, error) {
	o.guarding++
	defer func() { o.guarding-- }()

	ok := ob.guard(o, ev)
	if o.guarding == 1 && o.violation != nil {
		err := o.violation
		o.violation = nil
		return false, fmt.Errorf("guard of observer %s: %w", ob, err)
	}
	return ok, nil
}

// StageLabel renders a stage for display; the terminal stage is "none".
func StageLabel(s string) string {
	if s == StageNone {
		return "none"
	}
	return s
}

// LogEvents registers an observer that logs every notification the
// selector picks. With no stages selected it logs every stage of the
// selected kinds, including the terminal one.
func LogEvents(o *Object, logger *slog.Logger, level slog.Level, sel Selector) (*Observer, error) {
	if logger == nil {
		logger = o.logger
	}
	if len(sel.Stages) == 0 {
		sel.Stages = EveryStage(sel.Kinds...)
	}
	ob := NewObserver("log", nil, func(o *Object, ev *Event) error {
		logger.Log(context.Background(), level, "event",
			"object", o.id,
			"type", o.typ.Name(),
			"field", ev.Name(),
			"kind", ev.Kind().Typename(),
			"stage", StageLabel(ev.Stage()),
			"seq", ev.Seq(),
			"old", ev.Old(),
			"new", ev.New(),
		)
		return nil
	})
	if err := o.Observe(sel, ob); err != nil {
		return nil, err
	}
	return ob, nil
}
