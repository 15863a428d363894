package settings

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/stately/internal/state"
)

func serverObject(t *testing.T) *state.Object {
	t.Helper()
	typ := state.NewType("Server").
		Field("host", state.OfType[string](), state.Default("localhost"), state.Tag(ConfigTag, true)).
		Field("port", state.OfType[int](), state.Default(8080), state.Tag(ConfigTag, true),
			state.Authorize(func(v any) error {
				if v.(int) <= 0 {
					return errors.New("port must be positive")
				}
				return nil
			})).
		Field("debug", state.OfType[bool](), state.Tag(ConfigTag, true)).
		Field("secret", state.Default("s3cret")).
		MustBuild()
	o, err := state.New(typ,
		state.WithIDGenerator(state.NewSequenceGenerator("s")),
		state.WithLogger(slog.New(slog.DiscardHandler)),
	)
	require.NoError(t, err)
	return o
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte("host: example.com\nport: 9000\ndebug: true\n"), 0644))

	values, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, Values{"host": "example.com", "port": 9000, "debug": true}, values)
}

func TestLoadFile_Empty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.yaml")
	require.NoError(t, os.WriteFile(path, nil, 0644))

	values, err := LoadFile(path)
	require.NoError(t, err)
	assert.Empty(t, values)
}

func TestLoadFile_Errors(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read settings file")

	path := filepath.Join(t.TempDir(), "list.yaml")
	require.NoError(t, os.WriteFile(path, []byte("- a\n- b\n"), 0644))
	_, err = LoadFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse settings")
}

func TestParseOverrides(t *testing.T) {
	values, err := ParseOverrides([]string{
		"port=8081",
		"debug=true",
		"host='8081'",
		"ratio=0.5",
		"empty=",
		" spaced =x=y",
	})
	require.NoError(t, err)
	assert.Equal(t, Values{
		"port":   8081,
		"debug":  true,
		"host":   "8081",
		"ratio":  0.5,
		"empty":  "",
		"spaced": "x=y",
	}, values)
}

func TestParseOverrides_Invalid(t *testing.T) {
	for _, pair := range []string{"novalue", "=1", "x=[unclosed"} {
		_, err := ParseOverrides([]string{pair})
		assert.Error(t, err, pair)
	}
}

func TestMerge(t *testing.T) {
	base := Values{"host": "a", "port": 1}
	merged := Merge(base, Values{"port": 2}, Values{"debug": true})
	assert.Equal(t, Values{"host": "a", "port": 2, "debug": true}, merged)
	assert.Equal(t, Values{"host": "a", "port": 1}, base, "base is not modified")
}

func TestApply(t *testing.T) {
	o := serverObject(t)
	require.NoError(t, Apply(o, Values{"host": "example.com", "port": 9000}))

	host, err := o.Get("host")
	require.NoError(t, err)
	assert.Equal(t, "example.com", host)
	port, err := o.Get("port")
	require.NoError(t, err)
	assert.Equal(t, 9000, port)
}

func TestApply_Unconfigurable(t *testing.T) {
	o := serverObject(t)

	err := Apply(o, Values{"host": "x", "secret": "leak"})
	require.Error(t, err)
	assert.True(t, state.IsUnknownField(err))
	assert.Contains(t, err.Error(), "no configurable field")

	err = Apply(o, Values{"nope": 1})
	require.Error(t, err)
	assert.True(t, state.IsUnknownField(err))
	assert.Contains(t, err.Error(), `no field named "nope"`)

	host, err := o.Get("host")
	require.NoError(t, err)
	assert.Equal(t, "localhost", host)
}

func TestApply_AllOrNothing(t *testing.T) {
	o := serverObject(t)

	err := Apply(o, Values{"host": "example.com", "port": -1})
	require.Error(t, err)
	assert.True(t, state.IsValidation(err))

	assert.False(t, o.Has("host"), "host was rolled back")
	assert.False(t, o.Has("port"))
}

func TestConfigurable(t *testing.T) {
	o := serverObject(t)
	assert.Equal(t, []string{"host", "port", "debug"}, Configurable(o.Type()))
}
