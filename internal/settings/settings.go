// Package settings configures objects from YAML files and command-line
// overrides.
//
// Only fields tagged config: true can be configured. A set of values is
// applied as one batch through Object.Update: either every value is stored
// or, when any is rejected, none is.
package settings

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/stately/internal/state"
)

// ConfigTag is the tag marking a field as configurable.
const ConfigTag = "config"

// Values maps field names to values.
type Values map[string]any

// Merge returns a new Values holding base overlaid with each override in
// turn. Later values win.
func Merge(base Values, overrides ...Values) Values {
	out := make(Values, len(base))
	maps.Copy(out, base)
	for _, o := range overrides {
		maps.Copy(out, o)
	}
	return out
}

// LoadFile reads a YAML mapping of field names to values. An empty file
// yields empty Values.
func LoadFile(path string) (Values, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read settings file: %w", err)
	}
	values, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return values, nil
}

// Parse decodes a YAML mapping of field names to values.
func Parse(data []byte) (Values, error) {
	values := Values{}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&values); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse settings: %w", err)
	}
	return values, nil
}

// ParseOverrides parses name=value pairs. Values are decoded as YAML
// scalars, so "port=8080" yields an int and "debug=true" a bool; quote a
// value to keep it a string. An empty value is the empty string.
func ParseOverrides(pairs []string) (Values, error) {
	values := Values{}
	for _, pair := range pairs {
		name, raw, ok := strings.Cut(pair, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid override %q: expected name=value", pair)
		}
		if raw == "" {
			values[name] = ""
			continue
		}
		var v any
		if err := yaml.Unmarshal([]byte(raw), &v); err != nil {
			return nil, fmt.Errorf("invalid override %q: %w", pair, err)
		}
		values[name] = v
	}
	return values, nil
}

// Configurable returns the names of o's configurable fields in declaration
// order.
func Configurable(t *state.Type) []string {
	return t.FieldNames(state.TagQuery{ConfigTag: true})
}

// Apply stores values on o as one batch. Names that are not declared, or
// declared without the config tag, are UNKNOWN_FIELD errors and nothing is
// applied.
func Apply(o *state.Object, values Values) error {
	if len(values) == 0 {
		return nil
	}
	t := o.Type()
	allowed := Configurable(t)
	for _, name := range slices.Sorted(maps.Keys(values)) {
		if slices.Contains(allowed, name) {
			continue
		}
		msg := fmt.Sprintf("%s has no configurable field named %q", t.Name(), name)
		if !t.Has(name) {
			msg = fmt.Sprintf("%s has no field named %q", t.Name(), name)
		}
		return &state.Error{
			Code:    state.ErrCodeUnknownField,
			Type:    t.Name(),
			Field:   name,
			Message: msg,
		}
	}
	if err := o.Update(values); err != nil {
		return fmt.Errorf("apply settings to %s: %w", t.Name(), err)
	}
	return nil
}
