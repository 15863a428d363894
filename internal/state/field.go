package state

import (
	"errors"
	"fmt"
	"reflect"
)

// Field is a named, optionally typed and validated attribute slot declared on
// an owner Type. Fields are shared by every object of the type and never
// hold values themselves; values live in each object's Model.
//
// A field's name and owner are assigned once, when the owner type is built.
type Field struct {
	name  string
	owner *Type

	static    any
	construct func() any
	method    string
	derive    func(*Object) (any, error)

	writable bool
	tags     map[string]any
	docs     string

	datatype     reflect.Type
	canCoerce    func(any) bool
	coerce       func(any) (any, error)
	authorize    []func(any) error
	alternatives []*Field

	setKind *Kind
	delKind *Kind
}

// FieldOption configures a field declaration.
type FieldOption func(*Field)

func newField(name string) *Field {
	return &Field{
		name:     name,
		static:   Undefined,
		writable: true,
		tags:     make(map[string]any),
		setKind:  SetEvent,
		delKind:  DelEvent,
	}
}

// Default sets a static default value. The same value is handed to every
// object, so reference types (maps, slices) are shared unless a constructor
// is used instead.
func Default(v any) FieldOption {
	return func(f *Field) { f.static = v }
}

// Construct sets a no-argument constructor for the default.
func Construct(fn func() any) FieldOption {
	return func(f *Field) { f.construct = fn }
}

// FromMethod resolves the default by calling a method registered on the
// owner type under name, with the object as receiver.
func FromMethod(name string) FieldOption {
	return func(f *Field) { f.method = name }
}

// DefaultFunc computes the default from the object. It may read other
// fields, which materializes their defaults first.
func DefaultFunc(fn func(*Object) (any, error)) FieldOption {
	return func(f *Field) { f.derive = fn }
}

// ReadOnly makes the field immutable once the object is constructed.
func ReadOnly() FieldOption {
	return func(f *Field) { f.writable = false }
}

// Tag attaches metadata used by TagQuery selection.
func Tag(key string, value any) FieldOption {
	return func(f *Field) { f.tags[key] = value }
}

// Docs attaches documentation text.
func Docs(text string) FieldOption {
	return func(f *Field) { f.docs = text }
}

// Datatype constrains values to those assignable to t. A field with a
// datatype and no other default defaults to t's zero value.
func Datatype(t reflect.Type) FieldOption {
	return func(f *Field) { f.datatype = t }
}

// OfType is Datatype for a static type. For interface types this accepts
// any value implementing the interface.
func OfType[T any]() FieldOption {
	return Datatype(reflect.TypeFor[T]())
}

// Coerce converts incoming values for which can returns true, before the
// datatype and authorization checks run.
func Coerce(can func(any) bool, fn func(any) (any, error)) FieldOption {
	return func(f *Field) {
		f.canCoerce = can
		f.coerce = fn
	}
}

// Authorize adds an acceptance check run while validating. Checks run in
// declaration order; the first error rejects the value.
func Authorize(fn func(any) error) FieldOption {
	return func(f *Field) { f.authorize = append(f.authorize, fn) }
}

// Or adds an alternative acceptance pipeline. A value rejected by the
// field's own checks is accepted if any alternative accepts it.
//
//	Field("level", OfType[int](), Or(OfType[string]()))
func Or(opts ...FieldOption) FieldOption {
	return func(f *Field) {
		alt := newField(f.name)
		for _, opt := range opts {
			opt(alt)
		}
		f.alternatives = append(f.alternatives, alt)
	}
}

// SetKind replaces the event kind used for sets. k must derive from
// SetEvent.
func SetKind(k *Kind) FieldOption {
	return func(f *Field) { f.setKind = k }
}

// DelKind replaces the event kind used for deletes. k must derive from
// DelEvent.
func DelKind(k *Kind) FieldOption {
	return func(f *Field) { f.delKind = k }
}

// Name returns the field name.
func (f *Field) Name() string { return f.name }

// Owner returns the type that declared the field.
func (f *Field) Owner() *Type { return f.owner }

// Writable reports whether the field can be set or deleted after
// construction.
func (f *Field) Writable() bool { return f.writable }

// Docs returns the field's documentation text.
func (f *Field) Docs() string { return f.docs }

// Datatype returns the datatype constraint, or nil.
func (f *Field) Datatype() reflect.Type { return f.datatype }

// SetKind returns the event kind used for sets.
func (f *Field) SetKind() *Kind { return f.setKind }

// DelKind returns the event kind used for deletes.
func (f *Field) DelKind() *Kind { return f.delKind }

// Tag returns a single tag value.
func (f *Field) Tag(key string) (any, bool) {
	v, ok := f.tags[key]
	return v, ok
}

// Tags returns a copy of the field's tags.
func (f *Field) Tags() map[string]any {
	out := make(map[string]any, len(f.tags))
	for k, v := range f.tags {
		out[k] = v
	}
	return out
}

// Matches reports whether the field satisfies a tag query.
func (f *Field) Matches(q TagQuery) bool {
	return q.Match(f.tags)
}

// HasDefault reports whether some default is configured.
func (f *Field) HasDefault() bool {
	return !IsUndefined(f.static) || f.construct != nil || f.method != "" || f.derive != nil
}

// Default computes the field's default for o, or Undefined if none is
// configured. It does not store anything; the caller decides whether to.
// o may be nil, in which case instance-bound defaults yield Undefined.
func (f *Field) Default(o *Object) (any, error) {
	switch {
	case !IsUndefined(f.static):
		return f.static, nil
	case f.derive != nil:
		if o == nil {
			return Undefined, nil
		}
		return f.derive(o)
	case f.method != "":
		if o == nil {
			return Undefined, nil
		}
		fn, ok := o.typ.methods[f.method]
		if !ok {
			return nil, fmt.Errorf("default method %q is not defined on %s", f.method, o.typ.Name())
		}
		return fn(o)
	case f.construct != nil:
		return f.construct(), nil
	}
	return Undefined, nil
}

// Validate runs the field's acceptance pipeline and returns the value to
// store. Rejections are validation errors.
func (f *Field) Validate(v any) (any, error) {
	out, err := f.accept(v)
	if err == nil || len(f.alternatives) == 0 {
		return out, err
	}

	errs := []error{err}
	for _, alt := range f.alternatives {
		out, altErr := alt.accept(v)
		if altErr == nil {
			return out, nil
		}
		errs = append(errs, altErr)
	}
	return nil, f.validationError("no alternative accepted the value", errors.Join(errs...))
}

func (f *Field) accept(v any) (any, error) {
	if f.canCoerce != nil && f.coerce != nil && f.canCoerce(v) {
		coerced, err := f.coerce(v)
		if err != nil {
			return nil, f.validationError(fmt.Sprintf("cannot coerce %v", v), err)
		}
		v = coerced
	}

	if f.datatype != nil && !assignable(v, f.datatype) {
		return nil, f.validationError(fmt.Sprintf("expected %s, not %T", f.datatype, v), nil)
	}

	for _, check := range f.authorize {
		if err := check(v); err != nil {
			return nil, f.validationError("value rejected", err)
		}
	}
	return v, nil
}

func (f *Field) validationError(msg string, cause error) *Error {
	e := &Error{
		Code:    ErrCodeValidation,
		Field:   f.name,
		Message: msg,
		Err:     cause,
	}
	if f.owner != nil {
		e.Type = f.owner.Name()
	}
	return e
}

func assignable(v any, t reflect.Type) bool {
	if v == nil {
		switch t.Kind() {
		case reflect.Interface, reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
			return true
		}
		return false
	}
	return reflect.TypeOf(v).AssignableTo(t)
}

// finish fills derived settings once all options are applied.
func (f *Field) finish(owner *Type) error {
	f.owner = owner
	if f.datatype != nil && !f.HasDefault() && f.datatype.Kind() != reflect.Interface {
		zero := f.datatype
		f.construct = func() any { return reflect.Zero(zero).Interface() }
	}
	if f.setKind == nil || !f.setKind.Is(SetEvent) {
		return &Error{Code: ErrCodeInvalidKind, Type: owner.Name(), Field: f.name, Message: "set kind must derive from the set event"}
	}
	if f.delKind == nil || !f.delKind.Is(DelEvent) {
		return &Error{Code: ErrCodeInvalidKind, Type: owner.Name(), Field: f.name, Message: "del kind must derive from the del event"}
	}
	if f.method != "" {
		if _, ok := owner.methods[f.method]; !ok {
			return fmt.Errorf("field %s.%s: default method %q is not defined", owner.Name(), f.name, f.method)
		}
	}
	for _, alt := range f.alternatives {
		alt.owner = owner
	}
	return nil
}
