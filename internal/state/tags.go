package state

import (
	"reflect"
	"sort"
)

// TagQuery selects fields by their tags.
//
// A field matches when, for every key in the query, the field carries that
// tag and either the query value is a predicate that returns true for the
// tag's value, or the query value equals the tag's value. A predicate is any
// func(T) bool; a tag whose value is not assignable to T does not match.
// An empty or nil query matches every field.
type TagQuery map[string]any

// Match reports whether tags satisfy the query.
func (q TagQuery) Match(tags map[string]any) bool {
	for k, want := range q {
		have, ok := tags[k]
		if !ok {
			return false
		}
		if pred, isPred := want.(func(any) bool); isPred {
			if !pred(have) {
				return false
			}
			continue
		}
		if fn := reflect.ValueOf(want); isPredicate(fn) {
			if !callPredicate(fn, have) {
				return false
			}
			continue
		}
		if !reflect.DeepEqual(want, have) {
			return false
		}
	}
	return true
}

func isPredicate(fn reflect.Value) bool {
	if fn.Kind() != reflect.Func || fn.IsNil() {
		return false
	}
	ft := fn.Type()
	return ft.NumIn() == 1 && !ft.IsVariadic() && ft.NumOut() == 1 && ft.Out(0).Kind() == reflect.Bool
}

func callPredicate(fn reflect.Value, v any) bool {
	in := fn.Type().In(0)
	arg := reflect.ValueOf(v)
	if !arg.IsValid() {
		switch in.Kind() {
		case reflect.Interface, reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
			arg = reflect.Zero(in)
		default:
			return false
		}
	} else if !arg.Type().AssignableTo(in) {
		return false
	}
	return fn.Call([]reflect.Value{arg})[0].Bool()
}

// names implements FieldSelector.
func (q TagQuery) names(t *Type) ([]string, error) {
	return t.FieldNames(q), nil
}

// sortedKeys returns map keys in lexical order.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
