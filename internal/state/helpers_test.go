package state

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

// pointType declares x (default 0) and y (default x*2).
func pointType(t *testing.T) *Type {
	t.Helper()
	typ, err := NewType("Point").
		Field("x", Default(0)).
		Field("y", DefaultFunc(func(o *Object) (any, error) {
			x, err := o.Get("x")
			if err != nil {
				return nil, err
			}
			return x.(int) * 2, nil
		})).
		Build()
	require.NoError(t, err)
	return typ
}

// newTestObject builds an object with deterministic ids and a silent logger.
func newTestObject(t *testing.T, typ *Type, opts ...Option) *Object {
	t.Helper()
	base := []Option{
		WithIDGenerator(NewSequenceGenerator("id")),
		WithLogger(slog.New(slog.DiscardHandler)),
	}
	o, err := New(typ, append(base, opts...)...)
	require.NoError(t, err)
	return o
}

func mustGet(t *testing.T, o *Object, name string) any {
	t.Helper()
	v, err := o.Get(name)
	require.NoError(t, err)
	return v
}

// recorder collects what callbacks saw.
type recorder struct {
	stages []string
	news   []any
	labels []string
}

func (r *recorder) callback(label string) Callback {
	return func(_ *Object, ev *Event) error {
		r.labels = append(r.labels, label)
		r.stages = append(r.stages, ev.Stage())
		r.news = append(r.news, ev.New())
		return nil
	}
}
