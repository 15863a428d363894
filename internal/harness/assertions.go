package harness

import (
	"bytes"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/roach88/stately/internal/canon"
	"github.com/roach88/stately/internal/state"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Trace entries relevant to the failure
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nTrace:\n")
		for i, event := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s %s %s %s: %v -> %v\n",
				i+1, event.Observer, event.Kind, event.Field, event.Stage, event.Old, event.New)
		}
	}

	return buf.String()
}

// assertNotified checks how often an observer was notified and with which
// new values.
func assertNotified(trace []TraceEvent, assertion Assertion) error {
	var seen []TraceEvent
	for _, event := range trace {
		if event.Observer == assertion.Observer {
			seen = append(seen, event)
		}
	}

	if assertion.Count != nil && len(seen) != *assertion.Count {
		return &AssertionError{
			Type:     AssertNotified,
			Expected: fmt.Sprintf("%d notifications of %s", *assertion.Count, assertion.Observer),
			Actual:   fmt.Sprintf("%d notifications", len(seen)),
			Trace:    seen,
		}
	}

	if assertion.Values != nil {
		got := make([]any, len(seen))
		for i, event := range seen {
			got[i] = event.New
		}
		if len(got) != len(assertion.Values) {
			return &AssertionError{
				Type:     AssertNotified,
				Expected: fmt.Sprintf("values %v", assertion.Values),
				Actual:   fmt.Sprintf("values %v", got),
				Trace:    seen,
			}
		}
		for i := range got {
			if !valuesEqual(got[i], assertion.Values[i]) {
				return &AssertionError{
					Type:     AssertNotified,
					Expected: fmt.Sprintf("value %d = %v (type %T)", i, assertion.Values[i], assertion.Values[i]),
					Actual:   fmt.Sprintf("value %d = %v (type %T)", i, got[i], got[i]),
					Trace:    seen,
				}
			}
		}
	}
	return nil
}

// assertTraceOrder checks that "field/stage" entries appear in order.
// Entries don't need to be consecutive. Each expected entry matches the
// first unconsumed trace entry after the previous match.
func assertTraceOrder(trace []TraceEvent, assertion Assertion) error {
	var scoped []TraceEvent
	for _, event := range trace {
		if assertion.Observer == "" || event.Observer == assertion.Observer {
			scoped = append(scoped, event)
		}
	}

	pos := 0
	for i, want := range assertion.Order {
		found := false
		for pos < len(scoped) {
			key := scoped[pos].Key()
			pos++
			if key == want {
				found = true
				break
			}
		}
		if !found {
			actual := fmt.Sprintf("%s not found after %v", want, assertion.Order[:i])
			if i == 0 {
				actual = fmt.Sprintf("%s not found", want)
			}
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("entries in order: %v", assertion.Order),
				Actual:   actual,
				Trace:    scoped,
			}
		}
	}
	return nil
}

// assertFinalState checks stored or default values using subset semantics.
func assertFinalState(o *state.Object, assertion Assertion) error {
	keys := make([]string, 0, len(assertion.Expect))
	for k := range assertion.Expect {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		expected := assertion.Expect[key]
		actual, err := o.Get(key)
		if err != nil {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("field %q = %v", key, expected),
				Actual:   fmt.Sprintf("get error: %v", err),
			}
		}
		if !valuesEqual(actual, expected) {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("field %q = %v (type %T)", key, expected, expected),
				Actual:   fmt.Sprintf("field %q = %v (type %T)", key, actual, actual),
			}
		}
	}
	return nil
}

// assertHasValue checks whether a value is stored, without materializing
// defaults.
func assertHasValue(o *state.Object, assertion Assertion) error {
	if has := o.Has(assertion.Field); has != *assertion.Present {
		return &AssertionError{
			Type:     AssertHasValue,
			Expected: fmt.Sprintf("field %q present=%t", assertion.Field, *assertion.Present),
			Actual:   fmt.Sprintf("present=%t", has),
		}
	}
	return nil
}

// valuesEqual compares values by canonical encoding, so 1 and 1.0 and
// maps decoded from YAML compare equal to their Go counterparts. Values
// canonical JSON cannot encode fall back to reflect.DeepEqual.
func valuesEqual(actual, expected any) bool {
	a, errA := canon.Marshal(actual)
	e, errE := canon.Marshal(expected)
	if errA != nil || errE != nil {
		return reflect.DeepEqual(actual, expected)
	}
	return bytes.Equal(a, e)
}

// EvaluateAssertions evaluates all assertions against the result and the
// scenario object. Returns one message per failed assertion.
func EvaluateAssertions(result *Result, assertions []Assertion, o *state.Object) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertNotified:
			err = assertNotified(result.Trace, assertion)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, assertion)
		case AssertFinalState:
			err = assertFinalState(o, assertion)
		case AssertHasValue:
			err = assertHasValue(o, assertion)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
