package state

import (
	"context"
	"errors"
	"fmt"
)

// ErrBatchClosed is returned when a batch is committed twice.
var ErrBatchClosed = errors.New("batch already committed")

type queuedEvent struct {
	ctx  context.Context
	ev   *Event
	args []any
}

// appliedEvent is one applied drive of an event and the old value it
// captured. An event queued twice is applied twice and each drive restores
// its own old value.
type appliedEvent struct {
	ev       *Event
	old      any
	captured bool
}

func (a appliedEvent) rollback() error {
	a.ev.oldValue = a.old
	a.ev.captured = a.captured
	return a.ev.Rollback()
}

// Batch intercepts events on its object and applies them together.
//
// While open, a batch queues every event whose kind derives from one of its
// kinds (every event if none were given) instead of applying it. Batches
// nest: the innermost open batch that accepts an event claims it. Commit
// applies the queue in order; if one event fails, it and every event the
// batch already applied are rolled back, newest first.
//
//	b := o.Begin(state.SetEvent)
//	_ = o.Set("x", 1)
//	_ = o.Set("y", 2)
//	if err := b.Commit(); err != nil { ... }
type Batch struct {
	obj       *Object
	id        string
	kinds     []*Kind
	queue     []queuedEvent
	applied   []appliedEvent
	open      bool
	committed bool
}

// Begin opens a batch on o.
func (o *Object) Begin(kinds ...*Kind) *Batch {
	b := &Batch{
		obj:   o,
		id:    o.ids.Generate(),
		kinds: kinds,
		open:  true,
	}
	o.batches = append(o.batches, b)
	return b
}

// ID returns the batch id. Queued events carry it in Event.Batch.
func (b *Batch) ID() string { return b.id }

// Open reports whether the batch is still intercepting.
func (b *Batch) Open() bool { return b.open }

// Events returns the queued events in queue order.
func (b *Batch) Events() []*Event {
	out := make([]*Event, len(b.queue))
	for i, q := range b.queue {
		out[i] = q.ev
	}
	return out
}

// Applied returns the events a commit has applied so far.
func (b *Batch) Applied() []*Event {
	out := make([]*Event, len(b.applied))
	for i, a := range b.applied {
		out[i] = a.ev
	}
	return out
}

func (b *Batch) accepts(ev *Event) bool {
	if len(b.kinds) == 0 {
		return true
	}
	for _, k := range b.kinds {
		if ev.kind.Is(k) {
			return true
		}
	}
	return false
}

func (b *Batch) enqueue(ctx context.Context, ev *Event, args []any) {
	ev.batch = b.id
	b.queue = append(b.queue, queuedEvent{ctx: ctx, ev: ev, args: args})
}

// Release stops interception and returns the queue. It is safe to call
// more than once.
func (b *Batch) Release() []*Event {
	if b.open {
		b.open = false
		batches := b.obj.batches
		for i := len(batches) - 1; i >= 0; i-- {
			if batches[i] == b {
				b.obj.batches = append(batches[:i:i], batches[i+1:]...)
				break
			}
		}
	}
	return b.Events()
}

// Commit releases the batch and applies its queue in order. Events still
// intercepted by an enclosing batch are handed to it rather than applied.
//
// On failure the returned error is a *BatchError wrapping the failing
// event's error.
func (b *Batch) Commit() error {
	if b.committed {
		return ErrBatchClosed
	}
	b.Release()
	b.committed = true

	o := b.obj
	for _, q := range b.queue {
		_, handedOff, err := o.route(q.ctx, q.ev, q.args)
		if err != nil {
			return b.fail(q.ev, err)
		}
		if !handedOff {
			b.applied = append(b.applied, appliedEvent{ev: q.ev, old: q.ev.oldValue, captured: q.ev.captured})
		}
	}
	return nil
}

// fail rolls back the failed event and then every applied event in
// reverse. Every rollback is attempted even when some fail.
func (b *Batch) fail(failed *Event, cause error) error {
	log := b.obj.logger.With("batch", b.id, "object", b.obj.id)
	berr := &BatchError{Batch: b.id, Failed: failed, Cause: cause}

	if err := failed.Rollback(); err != nil {
		log.Warn("event failed to roll back", "event", failed.String(), "error", err)
		berr.Warnings = append(berr.Warnings, RollbackFailure{Event: failed, Err: err})
	}

	for i := len(b.applied) - 1; i >= 0; i-- {
		a := b.applied[i]
		if err := a.rollback(); err != nil {
			log.Error("rollback failed", "event", a.ev.String(), "error", err)
			berr.RollbackFailures = append(berr.RollbackFailures, RollbackFailure{Event: a.ev, Err: err})
		}
	}
	b.applied = nil
	return berr
}

// Rollback undoes a committed batch, newest event first.
func (b *Batch) Rollback() error {
	var errs []error
	for i := len(b.applied) - 1; i >= 0; i-- {
		if err := b.applied[i].rollback(); err != nil {
			errs = append(errs, err)
		}
	}
	b.applied = nil
	if len(errs) > 0 {
		return fmt.Errorf("rollback batch %s: %w", b.id, errors.Join(errs...))
	}
	return nil
}

// Intercept runs fn with a batch open and returns the events it queued,
// unapplied.
func (o *Object) Intercept(fn func() error, kinds ...*Kind) ([]*Event, error) {
	b := o.Begin(kinds...)
	defer b.Release()
	err := fn()
	return b.Release(), err
}

// Delay runs fn with a batch open, then commits the batch. If fn fails the
// queue is discarded and nothing is applied.
func (o *Object) Delay(fn func() error, kinds ...*Kind) error {
	b := o.Begin(kinds...)
	defer b.Release()
	if err := fn(); err != nil {
		return err
	}
	return b.Commit()
}
