package journal

import (
	"context"
	"fmt"

	"github.com/roach88/stately/internal/canon"
	"github.com/roach88/stately/internal/state"
)

// Attach starts recording o. Every stage notification of o's set and del
// events, terminal ones included, is written as an entry. Recording errors
// halt the event being recorded.
//
// The returned observer can be passed to o.Unobserve to stop recording.
func (j *Journal) Attach(ctx context.Context, o *state.Object) (*state.Observer, error) {
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO objects (id, type, attached_at)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, o.ID(), o.Type().Name(), o.Clock().Current())
	if err != nil {
		return nil, fmt.Errorf("attach %s: %w", o.ID(), err)
	}

	kinds := []*state.Kind{state.SetEvent, state.DelEvent}
	sel := state.Selector{
		Kinds:  kinds,
		Stages: state.EveryStage(kinds...),
	}
	ob := state.NewObserver("journal", nil, func(o *state.Object, ev *state.Event) error {
		return j.record(ctx, o, ev)
	})
	if err := o.Observe(sel, ob); err != nil {
		return nil, fmt.Errorf("attach %s: %w", o.ID(), err)
	}
	return ob, nil
}

func (j *Journal) record(ctx context.Context, o *state.Object, ev *state.Event) error {
	oldJSON, err := encodeValue(ev.Old())
	if err != nil {
		return fmt.Errorf("record %s: old value: %w", ev, err)
	}
	newJSON, err := encodeValue(ev.New())
	if err != nil {
		return fmt.Errorf("record %s: new value: %w", ev, err)
	}

	_, err = j.db.ExecContext(ctx, `
		INSERT INTO entries
		(object, event_id, seq, batch, field, kind, stage, old_value, new_value)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		o.ID(),
		ev.ID(),
		ev.Seq(),
		ev.Batch(),
		ev.Name(),
		ev.Kind().Typename(),
		state.StageLabel(ev.Stage()),
		oldJSON,
		newJSON,
	)
	if err != nil {
		return fmt.Errorf("record %s: %w", ev, err)
	}
	return nil
}

// encodeValue encodes v canonically. Values canonical JSON cannot express
// (funcs, channels) are recorded as their %v text.
func encodeValue(v any) (string, error) {
	data, err := canon.Marshal(v)
	if err == nil {
		return string(data), nil
	}
	data, err = canon.Marshal(fmt.Sprintf("%v", v))
	if err != nil {
		return "", err
	}
	return string(data), nil
}
