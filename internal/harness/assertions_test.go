package harness

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/roach88/stately/internal/state"
)

func node(t *testing.T, src string) *yaml.Node {
	t.Helper()
	var n yaml.Node
	require.NoError(t, yaml.Unmarshal([]byte(src), &n))
	// Unmarshal wraps the value in a document node.
	return n.Content[0]
}

func intp(n int) *int    { return &n }
func boolp(b bool) *bool { return &b }

func sampleTrace() []TraceEvent {
	return []TraceEvent{
		{Observer: "a", Field: "x", Kind: "set event", Stage: "pending", New: 1, Seq: 1},
		{Observer: "b", Field: "y", Kind: "set event", Stage: "done", New: "hi", Seq: 2},
		{Observer: "a", Field: "x", Kind: "set event", Stage: "done", New: 1, Seq: 1},
		{Observer: "a", Field: "x", Kind: "del event", Stage: "done", Old: 1, Seq: 3},
	}
}

func TestAssertNotified(t *testing.T) {
	trace := sampleTrace()

	assert.NoError(t, assertNotified(trace, Assertion{Observer: "a", Count: intp(3)}))
	assert.NoError(t, assertNotified(trace, Assertion{Observer: "b", Values: []any{"hi"}}))
	assert.NoError(t, assertNotified(trace, Assertion{Observer: "a", Values: []any{1.0, 1, nil}}))
	assert.NoError(t, assertNotified(trace, Assertion{Observer: "c", Count: intp(0)}))

	err := assertNotified(trace, Assertion{Observer: "a", Count: intp(2)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 notifications of a")
	assert.Contains(t, err.Error(), "3 notifications")

	err = assertNotified(trace, Assertion{Observer: "a", Values: []any{1, 2, nil}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "value 1 = 2")

	err = assertNotified(trace, Assertion{Observer: "a", Values: []any{1}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "values [1]")
}

func TestAssertTraceOrder(t *testing.T) {
	trace := sampleTrace()

	tests := []struct {
		name    string
		a       Assertion
		wantErr string
	}{
		{"in order", Assertion{Order: []string{"x/pending", "y/done", "x/done"}}, ""},
		{"intervening entries allowed", Assertion{Order: []string{"x/pending", "x/done"}}, ""},
		{"repeated entry", Assertion{Order: []string{"x/done", "x/done"}}, ""},
		{"scoped to observer", Assertion{Observer: "a", Order: []string{"x/pending", "x/done"}}, ""},
		{"wrong order", Assertion{Order: []string{"x/done", "x/pending"}}, "x/pending not found after [x/done]"},
		{"missing", Assertion{Order: []string{"z/done"}}, "z/done not found"},
		{"other observer excluded", Assertion{Observer: "a", Order: []string{"y/done"}}, "y/done not found"},
		{"too many repeats", Assertion{Order: []string{"x/done", "x/done", "x/done"}}, "x/done not found after"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := assertTraceOrder(trace, tt.a)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func testObject(t *testing.T) *state.Object {
	t.Helper()
	typ := state.NewType("Pair").
		Field("a", state.Default(1)).
		Field("b", state.Default([]any{"x"})).
		Field("c").
		MustBuild()
	o, err := state.New(typ, state.WithLogger(slog.New(slog.DiscardHandler)))
	require.NoError(t, err)
	return o
}

func TestAssertFinalState(t *testing.T) {
	o := testObject(t)

	assert.NoError(t, assertFinalState(o, Assertion{Expect: map[string]any{"a": 1, "b": []any{"x"}}}))
	assert.NoError(t, assertFinalState(o, Assertion{Expect: map[string]any{"a": 1.0}}), "numbers compare canonically")

	err := assertFinalState(o, Assertion{Expect: map[string]any{"a": 2}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `field "a" = 2 (type int)`)
	assert.Contains(t, err.Error(), `field "a" = 1 (type int)`)

	err = assertFinalState(o, Assertion{Expect: map[string]any{"c": 1}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NO_VALUE")
}

func TestAssertHasValue(t *testing.T) {
	o := testObject(t)

	assert.NoError(t, assertHasValue(o, Assertion{Field: "a", Present: boolp(false)}))
	_, err := o.Get("a")
	require.NoError(t, err)
	assert.NoError(t, assertHasValue(o, Assertion{Field: "a", Present: boolp(true)}))

	err = assertHasValue(o, Assertion{Field: "c", Present: boolp(true)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "present=false")
}

func TestValuesEqual(t *testing.T) {
	tests := []struct {
		name     string
		actual   any
		expected any
		want     bool
	}{
		{"nil nil", nil, nil, true},
		{"nil vs value", nil, 1, false},
		{"int vs float", 3, 3.0, true},
		{"int64 vs int", int64(3), 3, true},
		{"string", "a", "a", true},
		{"string vs int", "1", 1, false},
		{"nested", map[string]any{"k": []any{1, "x"}}, map[string]any{"k": []any{1.0, "x"}}, true},
		{"typed slice vs yaml list", []string{"a"}, []any{"a"}, true},
		{"unencodable falls back", func() {}, 1, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, valuesEqual(tt.actual, tt.expected))
		})
	}
}

func TestEvaluateAssertions(t *testing.T) {
	o := testObject(t)
	result := &Result{Trace: sampleTrace()}

	errs := EvaluateAssertions(result, []Assertion{
		{Type: AssertNotified, Observer: "a", Count: intp(3)},
		{Type: AssertTraceOrder, Order: []string{"x/pending"}},
		{Type: AssertFinalState, Expect: map[string]any{"a": 1}},
		{Type: AssertHasValue, Field: "c", Present: boolp(false)},
	}, o)
	assert.Empty(t, errs)

	errs = EvaluateAssertions(result, []Assertion{
		{Type: AssertNotified, Observer: "a", Count: intp(1)},
		{Type: "bogus"},
	}, o)
	require.Len(t, errs, 2)
	assert.Contains(t, errs[1], `unknown assertion type "bogus"`)
}

func TestAssertionError_ErrorFormat(t *testing.T) {
	err := &AssertionError{
		Type:     AssertNotified,
		Expected: "1 notifications of a",
		Actual:   "2 notifications",
		Trace:    sampleTrace()[:1],
	}
	msg := err.Error()
	assert.Contains(t, msg, "Assertion failed: notified")
	assert.Contains(t, msg, "Expected: 1 notifications of a")
	assert.Contains(t, msg, "Actual: 2 notifications")
	assert.Contains(t, msg, "[1] a set event x pending: <nil> -> 1")
}
