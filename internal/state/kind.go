package state

import (
	"fmt"

	"github.com/roach88/stately/internal/stage"
)

// Stage names used by the built-in event kinds.
const (
	StageNone       = stage.None
	StagePending    = "pending"
	StageValidating = "validating"
	StageWorking    = "working"
	StageDone       = "done"
)

// Handler implements one stage of an event kind. args are the acting
// arguments the event was started with (or last sent).
type Handler func(ev *Event, args []any) (any, error)

// RollbackFunc restores the value model after an event ran partly or fully.
type RollbackFunc func(ev *Event) error

// Kind is an event type: a fixed stage cycle, the handlers for some of its
// stages, and a rollback. Kinds form a single-inheritance chain; a derived
// kind inherits its parent's transitions, handlers and rollback and may
// splice in stages or override handlers.
//
// The cycle and typename lineage are computed once, in Build.
type Kind struct {
	name     string
	parent   *Kind
	table    *stage.Table
	cycle    []string
	handlers map[string]Handler
	rollback RollbackFunc
	typename string
	lineage  []string
}

// BaseEvent is the root kind: pending -> working -> done. Observers
// registered against it see every event.
var BaseEvent = NewKind("event", nil).
	Link(StageNone, StagePending).
	Link(StagePending, StageWorking).
	Link(StageWorking, StageDone).
	Link(StageDone, StageNone).
	MustBuild()

// SetEvent writes a field: pending captures the old value, validating runs
// the field's acceptance checks, working writes, done reads back.
var SetEvent = NewKind("set", BaseEvent).
	Between(StagePending, StageWorking, StageValidating).
	Handle(StagePending, setPending).
	Handle(StageValidating, setValidating).
	Handle(StageWorking, setWorking).
	Handle(StageDone, setDone).
	Rollback(restoreOld).
	MustBuild()

// DelEvent removes a field's value: pending captures the old value, working
// deletes it.
var DelEvent = NewKind("del", BaseEvent).
	Handle(StagePending, delPending).
	Handle(StageWorking, delWorking).
	Rollback(restoreOld).
	MustBuild()

// KindBuilder declares a Kind.
type KindBuilder struct {
	kind *Kind
}

// NewKind starts a kind named name deriving from parent. The name becomes
// the leading word of the kind's typename: a "clamp" kind deriving from
// SetEvent has typename "clamp set event". parent may be nil only for a
// root kind.
func NewKind(name string, parent *Kind) *KindBuilder {
	var parentTable *stage.Table
	if parent != nil {
		parentTable = parent.table
	}
	return &KindBuilder{kind: &Kind{
		name:     name,
		parent:   parent,
		table:    stage.NewTable(parentTable),
		handlers: make(map[string]Handler),
	}}
}

// Link records a raw stage transition.
func (b *KindBuilder) Link(from, to string) *KindBuilder {
	b.kind.table.Link(from, to)
	return b
}

// Between splices stage between after and before.
func (b *KindBuilder) Between(after, before, stage string) *KindBuilder {
	b.kind.table.Between(after, before, stage)
	return b
}

// After inserts stage right after name.
func (b *KindBuilder) After(name, stage string) *KindBuilder {
	b.kind.table.After(name, stage)
	return b
}

// Before inserts stage right before name.
func (b *KindBuilder) Before(name, stage string) *KindBuilder {
	b.kind.table.Before(name, stage)
	return b
}

// Handle sets the handler for a stage, overriding any inherited one.
func (b *KindBuilder) Handle(stage string, h Handler) *KindBuilder {
	b.kind.handlers[stage] = h
	return b
}

// Rollback sets the kind's rollback, overriding any inherited one.
func (b *KindBuilder) Rollback(fn RollbackFunc) *KindBuilder {
	b.kind.rollback = fn
	return b
}

// Build resolves the cycle and lineage.
func (b *KindBuilder) Build() (*Kind, error) {
	k := b.kind
	if k.name == "" {
		return nil, &Error{Code: ErrCodeInvalidKind, Message: "kind name is required"}
	}

	cycle, err := k.table.Cycle()
	if err != nil {
		return nil, &Error{Code: ErrCodeInvalidKind, Message: fmt.Sprintf("kind %q", k.name), Err: err}
	}
	k.cycle = cycle

	if k.parent == nil {
		k.typename = k.name
		k.lineage = []string{k.typename}
	} else {
		k.typename = k.name + " " + k.parent.typename
		k.lineage = append([]string{k.typename}, k.parent.lineage...)
	}
	return k, nil
}

// MustBuild is like Build but panics on error.
func (b *KindBuilder) MustBuild() *Kind {
	k, err := b.Build()
	if err != nil {
		panic(err)
	}
	return k
}

// Name returns the kind's own name, e.g. "set".
func (k *Kind) Name() string { return k.name }

// Typename returns the full typename, e.g. "set event".
func (k *Kind) Typename() string { return k.typename }

// String implements fmt.Stringer.
func (k *Kind) String() string { return k.typename }

// Parent returns the kind this one derives from.
func (k *Kind) Parent() *Kind { return k.parent }

// Lineage returns typenames from this kind up to the root.
func (k *Kind) Lineage() []string {
	out := make([]string, len(k.lineage))
	copy(out, k.lineage)
	return out
}

// Cycle returns a copy of the kind's stage order.
func (k *Kind) Cycle() []string {
	out := make([]string, len(k.cycle))
	copy(out, k.cycle)
	return out
}

// Is reports whether k is other or derives from it.
func (k *Kind) Is(other *Kind) bool {
	for kk := k; kk != nil; kk = kk.parent {
		if kk == other {
			return true
		}
	}
	return false
}

// handler resolves the handler for a stage through the chain.
func (k *Kind) handler(stage string) (Handler, bool) {
	for kk := k; kk != nil; kk = kk.parent {
		if h, ok := kk.handlers[stage]; ok {
			return h, true
		}
	}
	return nil, false
}

func (k *Kind) rollbackFunc() RollbackFunc {
	for kk := k; kk != nil; kk = kk.parent {
		if kk.rollback != nil {
			return kk.rollback
		}
	}
	return nil
}

// EveryStage returns every stage of the given kinds (in first-seen order)
// followed by StageNone. Useful for observers that want every notification.
func EveryStage(kinds ...*Kind) []string {
	if len(kinds) == 0 {
		kinds = []*Kind{BaseEvent}
	}
	seen := make(map[string]bool)
	var stages []string
	for _, k := range kinds {
		for _, s := range k.cycle {
			if !seen[s] {
				seen[s] = true
				stages = append(stages, s)
			}
		}
	}
	return append(stages, StageNone)
}

func setPending(ev *Event, _ []any) (any, error) {
	if !ev.field.writable {
		return nil, notWritable(ev.obj.typ, ev.field)
	}
	ev.captureOld()
	return nil, nil
}

func setValidating(ev *Event, _ []any) (any, error) {
	v, err := ev.field.Validate(ev.newValue)
	if err != nil {
		return nil, err
	}
	ev.newValue = v
	return v, nil
}

func setWorking(ev *Event, _ []any) (any, error) {
	ev.obj.model[ev.field.name] = ev.newValue
	return nil, nil
}

func setDone(ev *Event, _ []any) (any, error) {
	v := ev.obj.model[ev.field.name]
	ev.newValue = v
	return v, nil
}

func delPending(ev *Event, _ []any) (any, error) {
	if !ev.field.writable {
		return nil, notWritable(ev.obj.typ, ev.field)
	}
	ev.captureOld()
	return nil, nil
}

func delWorking(ev *Event, _ []any) (any, error) {
	if _, ok := ev.obj.model[ev.field.name]; !ok {
		return nil, &Error{
			Code:    ErrCodeNoValue,
			Type:    ev.obj.typ.Name(),
			Field:   ev.field.name,
			Message: "field has no value to delete",
		}
	}
	delete(ev.obj.model, ev.field.name)
	return nil, nil
}

// restoreOld puts back the value captured in pending, or removes the key if
// there was none. An event whose pending stage never ran changed nothing.
func restoreOld(ev *Event) error {
	if !ev.captured {
		return nil
	}
	if IsUndefined(ev.oldValue) {
		delete(ev.obj.model, ev.field.name)
		return nil
	}
	ev.obj.model[ev.field.name] = ev.oldValue
	return nil
}
