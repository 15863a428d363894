package schema

import (
	_ "embed"
	"fmt"
	"math"
	"reflect"
	"slices"

	"cuelang.org/go/cue"

	"github.com/roach88/stately/internal/state"
)

//go:embed shape.cue
var shapeSrc string

// Schema is a set of compiled owner types, in declaration order.
type Schema struct {
	types map[string]*state.Type
	order []string
	docs  map[string]string

	// Files is the number of CUE files the schema was loaded from. Zero for
	// schemas compiled from a value.
	Files int
}

// Type returns the named type.
func (s *Schema) Type(name string) (*state.Type, bool) {
	t, ok := s.types[name]
	return t, ok
}

// Types returns every type in declaration order.
func (s *Schema) Types() []*state.Type {
	out := make([]*state.Type, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.types[name])
	}
	return out
}

// Names returns the type names in declaration order.
func (s *Schema) Names() []string {
	return slices.Clone(s.order)
}

// Docs returns the type-level docs string, if any.
func (s *Schema) Docs(name string) string {
	return s.docs[name]
}

// Compile builds owner types from a CUE value of the shape
//
//	types: Counter: fields: {
//		n:     {type: "int", default: 0, min: 0}
//		limit: {type: "int", default_from: "n", tags: config: true}
//	}
//
// The value is unified with the declaration shape first, so unknown keys
// and mistyped declarations are reported with their source position.
func Compile(v cue.Value) (*Schema, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(ErrCodeBuildFailed, "", err)
	}

	shape := v.Context().CompileString(shapeSrc, cue.Filename("shape.cue"))
	if err := shape.Err(); err != nil {
		return nil, fmt.Errorf("compile declaration shape: %w", err)
	}
	unified := v.Unify(shape)
	if err := unified.Validate(); err != nil {
		return nil, formatCUEError(ErrCodeShape, "types", err)
	}

	// Positions are taken from v, so errors point at the user's files.
	typesVal := v.LookupPath(cue.ParsePath("types"))
	if !typesVal.Exists() {
		return nil, &CompileError{Code: ErrCodeNoTypes, Path: "types", Message: "no types declared", Pos: v.Pos()}
	}

	s := &Schema{
		types: make(map[string]*state.Type),
		docs:  make(map[string]string),
	}
	iter, err := typesVal.Fields()
	if err != nil {
		return nil, formatCUEError(ErrCodeShape, "types", err)
	}
	for iter.Next() {
		name := iter.Label()
		typ, err := compileType(name, iter.Value())
		if err != nil {
			return nil, err
		}
		s.types[name] = typ
		s.order = append(s.order, name)
		if docs, err := iter.Value().LookupPath(cue.ParsePath("docs")).String(); err == nil {
			s.docs[name] = docs
		}
	}
	if len(s.order) == 0 {
		return nil, &CompileError{Code: ErrCodeNoTypes, Path: "types", Message: "no types declared", Pos: typesVal.Pos()}
	}
	return s, nil
}

// fieldDecl is one decoded field declaration.
type fieldDecl struct {
	name string
	path string
	src  cue.Value

	typ         string
	def         any
	hasDefault  bool
	defaultFrom string
	readonly    bool
	min, max    *float64
	enum        []any
	tags        map[string]any
	docs        string
}

func compileType(name string, v cue.Value) (*state.Type, error) {
	var decls []*fieldDecl
	fieldsVal := v.LookupPath(cue.ParsePath("fields"))
	iter, err := fieldsVal.Fields()
	if err != nil && fieldsVal.Exists() {
		return nil, formatCUEError(ErrCodeShape, "types."+name+".fields", err)
	}
	for err == nil && iter.Next() {
		fd, err := decodeField(name, iter.Label(), iter.Value())
		if err != nil {
			return nil, err
		}
		decls = append(decls, fd)
	}

	declared := make(map[string]bool, len(decls))
	for _, fd := range decls {
		declared[fd.name] = true
	}

	b := state.NewType(name)
	for _, fd := range decls {
		if fd.defaultFrom != "" && (!declared[fd.defaultFrom] || fd.defaultFrom == fd.name) {
			return nil, &CompileError{
				Code:    ErrCodeDefaultFrom,
				Path:    fd.path + ".default_from",
				Message: fmt.Sprintf("default_from must name another field of %s, not %q", name, fd.defaultFrom),
				Pos:     fd.src.Pos(),
			}
		}
		opts, err := fd.options()
		if err != nil {
			return nil, err
		}
		b.Field(fd.name, opts...)
	}

	typ, err := b.Build()
	if err != nil {
		return nil, &CompileError{Code: ErrCodeType, Path: "types." + name, Message: err.Error(), Pos: v.Pos()}
	}

	for _, fd := range decls {
		if !fd.hasDefault {
			continue
		}
		f, _ := typ.Field(fd.name)
		if _, err := f.Validate(fd.def); err != nil {
			return nil, &CompileError{
				Code:    ErrCodeDefault,
				Path:    fd.path + ".default",
				Message: err.Error(),
				Pos:     fd.src.Pos(),
			}
		}
	}
	return typ, nil
}

func decodeField(typeName, name string, v cue.Value) (*fieldDecl, error) {
	fd := &fieldDecl{
		name: name,
		path: fmt.Sprintf("types.%s.fields.%s", typeName, name),
		src:  v,
		typ:  "any",
	}

	if t := v.LookupPath(cue.ParsePath("type")); t.Exists() {
		s, err := t.String()
		if err != nil {
			return nil, formatCUEError(ErrCodeShape, fd.path+".type", err)
		}
		fd.typ = s
	}
	if d := v.LookupPath(cue.ParsePath("default")); d.Exists() {
		val, err := goValue(d)
		if err != nil {
			return nil, formatCUEError(ErrCodeDefault, fd.path+".default", err)
		}
		fd.def = val
		fd.hasDefault = true
	}
	if d := v.LookupPath(cue.ParsePath("default_from")); d.Exists() {
		s, err := d.String()
		if err != nil {
			return nil, formatCUEError(ErrCodeShape, fd.path+".default_from", err)
		}
		fd.defaultFrom = s
	}
	if fd.hasDefault && fd.defaultFrom != "" {
		return nil, &CompileError{Code: ErrCodeDefaultFrom, Path: fd.path, Message: "default and default_from are exclusive", Pos: v.Pos()}
	}
	if r := v.LookupPath(cue.ParsePath("readonly")); r.Exists() {
		b, err := r.Bool()
		if err != nil {
			return nil, formatCUEError(ErrCodeShape, fd.path+".readonly", err)
		}
		fd.readonly = b
	}

	for _, bound := range []struct {
		label string
		dst   **float64
	}{{"min", &fd.min}, {"max", &fd.max}} {
		bv := v.LookupPath(cue.ParsePath(bound.label))
		if !bv.Exists() {
			continue
		}
		if fd.typ != "int" && fd.typ != "float" {
			return nil, &CompileError{Code: ErrCodeBounds, Path: fd.path + "." + bound.label, Message: "bounds require an int or float field", Pos: bv.Pos()}
		}
		n, err := bv.Float64()
		if err != nil {
			return nil, formatCUEError(ErrCodeShape, fd.path+"."+bound.label, err)
		}
		*bound.dst = &n
	}
	if fd.min != nil && fd.max != nil && *fd.min > *fd.max {
		return nil, &CompileError{Code: ErrCodeBounds, Path: fd.path, Message: fmt.Sprintf("min %v exceeds max %v", *fd.min, *fd.max), Pos: v.Pos()}
	}

	if e := v.LookupPath(cue.ParsePath("enum")); e.Exists() {
		val, err := goValue(e)
		if err != nil {
			return nil, formatCUEError(ErrCodeShape, fd.path+".enum", err)
		}
		fd.enum = val.([]any)
	}
	if t := v.LookupPath(cue.ParsePath("tags")); t.Exists() {
		val, err := goValue(t)
		if err != nil {
			return nil, formatCUEError(ErrCodeShape, fd.path+".tags", err)
		}
		fd.tags = val.(map[string]any)
	}
	if d := v.LookupPath(cue.ParsePath("docs")); d.Exists() {
		s, err := d.String()
		if err != nil {
			return nil, formatCUEError(ErrCodeShape, fd.path+".docs", err)
		}
		fd.docs = s
	}
	return fd, nil
}

// options translates the declaration into field options.
func (fd *fieldDecl) options() ([]state.FieldOption, error) {
	var opts []state.FieldOption

	switch fd.typ {
	case "int":
		opts = append(opts, state.OfType[int](), state.Coerce(isNumber, toInt))
	case "float":
		opts = append(opts, state.OfType[float64](), state.Coerce(isNumber, toFloat))
	case "string":
		opts = append(opts, state.OfType[string]())
	case "bool":
		opts = append(opts, state.OfType[bool]())
	case "list":
		opts = append(opts, state.OfType[[]any]())
	case "map":
		opts = append(opts, state.OfType[map[string]any]())
	case "any":
	default:
		return nil, &CompileError{Code: ErrCodeShape, Path: fd.path + ".type", Message: fmt.Sprintf("unknown type %q", fd.typ), Pos: fd.src.Pos()}
	}

	switch {
	case fd.hasDefault:
		switch def := fd.def.(type) {
		case []any, map[string]any:
			opts = append(opts, state.Construct(func() any { return deepCopy(def) }))
		default:
			if fd.typ == "float" {
				if f, err := toFloat(def); err == nil {
					def = f
				}
			}
			opts = append(opts, state.Default(def))
		}
	case fd.defaultFrom != "":
		from := fd.defaultFrom
		opts = append(opts, state.DefaultFunc(func(o *state.Object) (any, error) {
			v, err := o.Get(from)
			if err != nil {
				return nil, err
			}
			return deepCopy(v), nil
		}))
	}

	if fd.min != nil || fd.max != nil {
		lo, hi := fd.min, fd.max
		opts = append(opts, state.Authorize(func(v any) error {
			n, ok := number(v)
			if !ok {
				return fmt.Errorf("%v is not a number", v)
			}
			if lo != nil && n < *lo {
				return fmt.Errorf("%v is below the minimum %v", v, *lo)
			}
			if hi != nil && n > *hi {
				return fmt.Errorf("%v is above the maximum %v", v, *hi)
			}
			return nil
		}))
	}
	if len(fd.enum) > 0 {
		allowed := fd.enum
		opts = append(opts, state.Authorize(func(v any) error {
			for _, a := range allowed {
				if equalValues(a, v) {
					return nil
				}
			}
			return fmt.Errorf("%v is not one of %v", v, allowed)
		}))
	}
	if fd.readonly {
		opts = append(opts, state.ReadOnly())
	}
	for k, v := range fd.tags {
		opts = append(opts, state.Tag(k, v))
	}
	if fd.docs != "" {
		opts = append(opts, state.Docs(fd.docs))
	}
	return opts, nil
}

// goValue converts a concrete CUE value to plain Go values: int, float64,
// string, bool, nil, []any and map[string]any.
func goValue(v cue.Value) (any, error) {
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, err
	}
	switch v.Kind() {
	case cue.NullKind:
		return nil, nil
	case cue.BoolKind:
		return v.Bool()
	case cue.IntKind:
		n, err := v.Int64()
		if err != nil {
			return nil, err
		}
		return int(n), nil
	case cue.FloatKind, cue.NumberKind:
		return v.Float64()
	case cue.StringKind:
		return v.String()
	case cue.ListKind:
		iter, err := v.List()
		if err != nil {
			return nil, err
		}
		out := []any{}
		for iter.Next() {
			item, err := goValue(iter.Value())
			if err != nil {
				return nil, err
			}
			out = append(out, item)
		}
		return out, nil
	case cue.StructKind:
		iter, err := v.Fields()
		if err != nil {
			return nil, err
		}
		out := map[string]any{}
		for iter.Next() {
			item, err := goValue(iter.Value())
			if err != nil {
				return nil, err
			}
			out[iter.Label()] = item
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported value kind %v", v.Kind())
	}
}

func isNumber(v any) bool {
	_, ok := number(v)
	return ok
}

func number(v any) (float64, bool) {
	rv := reflect.ValueOf(v)
	switch {
	case !rv.IsValid():
		return 0, false
	case rv.CanInt():
		return float64(rv.Int()), true
	case rv.CanUint():
		return float64(rv.Uint()), true
	case rv.CanFloat():
		return rv.Float(), true
	}
	return 0, false
}

func toInt(v any) (any, error) {
	rv := reflect.ValueOf(v)
	switch {
	case !rv.IsValid():
		return nil, fmt.Errorf("%v is not a number", v)
	case rv.CanInt():
		n := rv.Int()
		if n > math.MaxInt || n < math.MinInt {
			return nil, fmt.Errorf("%v overflows int", v)
		}
		return int(n), nil
	case rv.CanUint():
		n := rv.Uint()
		if n > math.MaxInt {
			return nil, fmt.Errorf("%v overflows int", v)
		}
		return int(n), nil
	case rv.CanFloat():
		f := rv.Float()
		if f != math.Trunc(f) {
			return nil, fmt.Errorf("%v is not an integer", v)
		}
		// float64(math.MaxInt) rounds up to 2^63, which int cannot hold.
		if f >= float64(math.MaxInt) || f < float64(math.MinInt) {
			return nil, fmt.Errorf("%v overflows int", v)
		}
		return int(f), nil
	}
	return nil, fmt.Errorf("%v is not a number", v)
}

func toFloat(v any) (any, error) {
	f, ok := number(v)
	if !ok {
		return nil, fmt.Errorf("%v is not a number", v)
	}
	return f, nil
}

func equalValues(a, b any) bool {
	if an, ok := number(a); ok {
		bn, ok := number(b)
		return ok && an == bn
	}
	return reflect.DeepEqual(a, b)
}

func deepCopy(v any) any {
	switch x := v.(type) {
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = deepCopy(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, item := range x {
			out[k] = deepCopy(item)
		}
		return out
	}
	return v
}
