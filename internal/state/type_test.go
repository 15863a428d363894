package state

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestType_FieldsKeepDeclarationOrder(t *testing.T) {
	typ := NewType("Server").
		Field("port").
		Field("host").
		Field("debug").
		MustBuild()

	assert.Equal(t, []string{"port", "host", "debug"}, typ.FieldNames(nil))

	f, ok := typ.Field("host")
	require.True(t, ok)
	assert.Equal(t, "host", f.Name())
	assert.Same(t, typ, f.Owner())
	assert.True(t, typ.Has("debug"))
	assert.False(t, typ.Has("nope"))
}

func TestType_DuplicateField(t *testing.T) {
	_, err := NewType("Server").Field("port").Field("port").Build()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate field")
}

func TestType_EmptyNames(t *testing.T) {
	_, err := NewType("").Build()
	assert.Error(t, err)

	_, err = NewType("Server").Field("").Build()
	assert.Error(t, err)
}

func TestType_MissingMethod(t *testing.T) {
	_, err := NewType("Server").Field("url", FromMethod("makeURL")).Build()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "makeURL")
}

func TestType_MustBuildPanics(t *testing.T) {
	assert.Panics(t, func() {
		NewType("Server").Field("a").Field("a").MustBuild()
	})
}

func TestTagQuery(t *testing.T) {
	typ := NewType("Server").
		Field("host", Tag("config", true), Tag("group", "net")).
		Field("port", Tag("config", true), Tag("group", "net"), Tag("weight", 10)).
		Field("token", Tag("secret", true)).
		Field("plain").
		MustBuild()

	assert.Equal(t, []string{"host", "port"}, typ.FieldNames(TagQuery{"config": true}))
	assert.Equal(t, []string{"host", "port", "token", "plain"}, typ.FieldNames(TagQuery{}))
	assert.Empty(t, typ.FieldNames(TagQuery{"config": false}))

	heavy := TagQuery{"weight": func(v any) bool { return v.(int) > 5 }}
	assert.Equal(t, []string{"port"}, typ.FieldNames(heavy))

	startsN := TagQuery{"group": func(v any) bool { return strings.HasPrefix(v.(string), "n") }, "config": true}
	assert.Equal(t, []string{"host", "port"}, typ.FieldNames(startsN))
}

func TestTagQuery_TypedPredicates(t *testing.T) {
	typ := NewType("Server").
		Field("host", Tag("group", "net")).
		Field("port", Tag("group", 7)).
		Field("token", Tag("group", "secrets")).
		MustBuild()

	netOnly := TagQuery{"group": func(s string) bool { return strings.HasPrefix(s, "n") }}
	assert.Equal(t, []string{"host"}, typ.FieldNames(netOnly), "int tag is not assignable to string")

	small := TagQuery{"group": func(n int) bool { return n < 10 }}
	assert.Equal(t, []string{"port"}, typ.FieldNames(small))

	assert.False(t, TagQuery{"group": func(s string) bool { return true }}.Match(map[string]any{"group": nil}))
	assert.True(t, TagQuery{"group": func(v any) bool { return v == nil }}.Match(map[string]any{"group": nil}))
}

func TestField_Accessors(t *testing.T) {
	typ := NewType("Server").
		Field("port", OfType[int](), Default(80), Docs("listen port"), Tag("config", true)).
		Field("id", ReadOnly()).
		MustBuild()

	port, _ := typ.Field("port")
	assert.True(t, port.Writable())
	assert.Equal(t, "listen port", port.Docs())
	assert.Equal(t, "int", port.Datatype().String())
	assert.Same(t, SetEvent, port.SetKind())
	assert.Same(t, DelEvent, port.DelKind())
	assert.True(t, port.HasDefault())
	assert.Equal(t, map[string]any{"config": true}, port.Tags())

	id, _ := typ.Field("id")
	assert.False(t, id.Writable())
	assert.False(t, id.HasDefault())

	v, err := id.Default(nil)
	require.NoError(t, err)
	assert.True(t, IsUndefined(v))
}

func TestSelector_Names(t *testing.T) {
	typ := pointType(t)

	s, err := On("y", "x").Kind(SetEvent, DelEvent).At(StageDone).resolve(typ)
	require.NoError(t, err)
	assert.Equal(t, []string{"y", "x"}, s.names)
	assert.Equal(t, []string{"set event", "del event"}, s.kinds)
	assert.Equal(t, []string{StageDone}, s.stages)

	s, err = Selector{Fields: TagQuery{"missing": true}}.resolve(typ)
	require.NoError(t, err)
	assert.Empty(t, s.names)
	assert.Equal(t, []string{"event"}, s.kinds)
	assert.Equal(t, []string{StageNone}, s.stages)

	_, err = Selector{Kinds: []*Kind{nil}}.resolve(typ)
	assert.True(t, IsInvalidKind(err))
}

func TestUndefined(t *testing.T) {
	assert.True(t, IsUndefined(Undefined))
	assert.False(t, IsUndefined(nil))
	assert.False(t, IsUndefined(struct{}{}))
	assert.Equal(t, "Undefined", Undefined.(interface{ String() string }).String())
}
