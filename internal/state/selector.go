package state

// FieldSelector chooses fields of a type. Implementations are AllFields,
// Names and TagQuery.
type FieldSelector interface {
	names(t *Type) ([]string, error)
}

type allFields struct{}

func (allFields) names(t *Type) ([]string, error) {
	return t.FieldNames(nil), nil
}

// AllFields selects every field of the type.
var AllFields FieldSelector = allFields{}

// Names selects fields by name. Unknown names fail with UNKNOWN_FIELD.
type Names []string

func (n Names) names(t *Type) ([]string, error) {
	for _, name := range n {
		if !t.Has(name) {
			return nil, unknownField(t, name)
		}
	}
	out := make([]string, len(n))
	copy(out, n)
	return out, nil
}

// Selector picks the (field, kind, stage) combinations an observer is
// registered for. Zero values select every field, BaseEvent (and so
// every kind), and the terminal notification only.
type Selector struct {
	Fields FieldSelector
	Kinds  []*Kind
	Stages []string
}

// On is shorthand for a selector on named fields.
func On(names ...string) Selector {
	return Selector{Fields: Names(names)}
}

// Kind returns a copy of s restricted to the given kinds.
func (s Selector) Kind(kinds ...*Kind) Selector {
	s.Kinds = kinds
	return s
}

// At returns a copy of s restricted to the given stages.
func (s Selector) At(stages ...string) Selector {
	s.Stages = stages
	return s
}

type selection struct {
	names  []string
	kinds  []string
	stages []string
}

func (s Selector) resolve(t *Type) (selection, error) {
	fields := s.Fields
	if fields == nil {
		fields = AllFields
	}
	names, err := fields.names(t)
	if err != nil {
		return selection{}, err
	}

	kinds := s.Kinds
	if len(kinds) == 0 {
		kinds = []*Kind{BaseEvent}
	}
	sel := selection{names: names}
	for _, k := range kinds {
		if k == nil {
			return selection{}, &Error{Code: ErrCodeInvalidKind, Type: t.Name(), Message: "selector kind is nil"}
		}
		sel.kinds = append(sel.kinds, k.typename)
	}

	sel.stages = s.Stages
	if len(sel.stages) == 0 {
		sel.stages = []string{StageNone}
	}
	return sel, nil
}

func (sel selection) each(fn func(stage, name, kind string)) {
	for _, stage := range sel.stages {
		for _, name := range sel.names {
			for _, kind := range sel.kinds {
				fn(stage, name, kind)
			}
		}
	}
}
