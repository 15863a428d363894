package state

import (
	"fmt"
)

// Method computes a value for an object. Methods are registered on a type
// and referenced by FromMethod defaults.
type Method func(o *Object) (any, error)

// Type is an owner type: an ordered, immutable table of fields plus the
// methods and declarative observers every object of the type shares.
type Type struct {
	name      string
	fields    []*Field
	byName    map[string]*Field
	methods   map[string]Method
	observers []ObserverSpec
}

// TypeBuilder declares a Type.
//
//	point := state.NewType("Point").
//	    Field("x", state.Default(0)).
//	    Field("y", state.DefaultFunc(double("x"))).
//	    MustBuild()
type TypeBuilder struct {
	t    *Type
	decl []fieldDecl
	errs []error
}

type fieldDecl struct {
	name string
	opts []FieldOption
}

// NewType starts a type declaration.
func NewType(name string) *TypeBuilder {
	return &TypeBuilder{t: &Type{
		name:    name,
		byName:  make(map[string]*Field),
		methods: make(map[string]Method),
	}}
}

// Field declares a field. Fields keep declaration order.
func (b *TypeBuilder) Field(name string, opts ...FieldOption) *TypeBuilder {
	b.decl = append(b.decl, fieldDecl{name: name, opts: opts})
	return b
}

// Method registers a named method usable by FromMethod.
func (b *TypeBuilder) Method(name string, fn Method) *TypeBuilder {
	if fn == nil {
		b.errs = append(b.errs, fmt.Errorf("type %s: method %q is nil", b.t.name, name))
		return b
	}
	b.t.methods[name] = fn
	return b
}

// Observe declares an observer that every new object registers.
func (b *TypeBuilder) Observe(spec ObserverSpec) *TypeBuilder {
	b.t.observers = append(b.t.observers, spec)
	return b
}

// Build assigns every field its name and owner and validates the
// declaration.
func (b *TypeBuilder) Build() (*Type, error) {
	t := b.t
	if t.name == "" {
		return nil, fmt.Errorf("type name is required")
	}
	if len(b.errs) > 0 {
		return nil, b.errs[0]
	}

	for _, d := range b.decl {
		if d.name == "" {
			return nil, fmt.Errorf("type %s: field name is required", t.name)
		}
		if _, dup := t.byName[d.name]; dup {
			return nil, fmt.Errorf("type %s: duplicate field %q", t.name, d.name)
		}
		f := newField(d.name)
		for _, opt := range d.opts {
			opt(f)
		}
		if err := f.finish(t); err != nil {
			return nil, err
		}
		t.fields = append(t.fields, f)
		t.byName[d.name] = f
	}

	for _, spec := range t.observers {
		if spec.Callback == nil {
			return nil, fmt.Errorf("type %s: observer %q has no callback", t.name, spec.Label)
		}
		if _, err := spec.Selector.resolve(t); err != nil {
			return nil, fmt.Errorf("type %s: observer %q: %w", t.name, spec.Label, err)
		}
	}
	return t, nil
}

// MustBuild is like Build but panics on error.
func (b *TypeBuilder) MustBuild() *Type {
	t, err := b.Build()
	if err != nil {
		panic(err)
	}
	return t
}

// Name returns the type name.
func (t *Type) Name() string { return t.name }

// String implements fmt.Stringer.
func (t *Type) String() string { return t.name }

// Field returns a field by name.
func (t *Type) Field(name string) (*Field, bool) {
	f, ok := t.byName[name]
	return f, ok
}

// Has reports whether the type declares name.
func (t *Type) Has(name string) bool {
	_, ok := t.byName[name]
	return ok
}

// Fields returns the fields matching q in declaration order. A nil q
// matches every field.
func (t *Type) Fields(q TagQuery) []*Field {
	out := make([]*Field, 0, len(t.fields))
	for _, f := range t.fields {
		if f.Matches(q) {
			out = append(out, f)
		}
	}
	return out
}

// FieldNames returns the names of the fields matching q.
func (t *Type) FieldNames(q TagQuery) []string {
	fields := t.Fields(q)
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = f.name
	}
	return out
}

// Defaults returns the defaults that can be computed without an object:
// static values and constructors. Fields with instance-bound or no
// defaults are omitted.
func (t *Type) Defaults(q TagQuery) (map[string]any, error) {
	out := make(map[string]any)
	for _, f := range t.Fields(q) {
		v, err := f.Default(nil)
		if err != nil {
			return nil, fmt.Errorf("default for %s.%s: %w", t.name, f.name, err)
		}
		if IsUndefined(v) {
			continue
		}
		out[f.name] = v
	}
	return out, nil
}

// Observers returns the declarative observers of the type.
func (t *Type) Observers() []ObserverSpec {
	out := make([]ObserverSpec, len(t.observers))
	copy(out, t.observers)
	return out
}

func (t *Type) lookup(name string) (*Field, error) {
	f, ok := t.byName[name]
	if !ok {
		return nil, unknownField(t, name)
	}
	return f, nil
}
