package state

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode categorizes errors raised by fields, events and objects.
type ErrorCode string

const (
	// ErrCodeNotWritable indicates a set or delete on a read-only field.
	ErrCodeNotWritable ErrorCode = "NOT_WRITABLE"

	// ErrCodeUnknownField indicates a name the owner type did not declare.
	ErrCodeUnknownField ErrorCode = "UNKNOWN_FIELD"

	// ErrCodeValidation indicates a value was rejected while validating.
	ErrCodeValidation ErrorCode = "VALIDATION"

	// ErrCodeBusy indicates an event was driven while already mid-cycle.
	ErrCodeBusy ErrorCode = "BUSY"

	// ErrCodeNoValue indicates a field has neither a value nor a default.
	ErrCodeNoValue ErrorCode = "NO_VALUE"

	// ErrCodeHalted indicates a stage handler or observer stopped an event.
	ErrCodeHalted ErrorCode = "HALTED"

	// ErrCodeFrozen indicates an event was modified while locked.
	ErrCodeFrozen ErrorCode = "FROZEN"

	// ErrCodeGuardMutation indicates a guard condition tried to mutate its
	// owner.
	ErrCodeGuardMutation ErrorCode = "GUARD_MUTATION"

	// ErrCodeDepthExceeded indicates nested events went deeper than the
	// owner allows.
	ErrCodeDepthExceeded ErrorCode = "DEPTH_EXCEEDED"

	// ErrCodeInvalidKind indicates a malformed event kind or a kind used
	// where it does not fit.
	ErrCodeInvalidKind ErrorCode = "INVALID_KIND"
)

// Error is the error type returned by this package.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Type is the owner type name, when known.
	Type string

	// Field is the field name, when known.
	Field string

	// Message is a human-readable description.
	Message string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Code))
	b.WriteString(": ")
	b.WriteString(e.Message)
	if e.Type != "" && e.Field != "" {
		fmt.Fprintf(&b, " (%s.%s)", e.Type, e.Field)
	} else if e.Field != "" {
		fmt.Fprintf(&b, " (%s)", e.Field)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var se *Error
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}

// hasCode walks every *Error in err's chain, so a VALIDATION error wrapped
// in a HALTED one still reports as a validation error.
func hasCode(err error, code ErrorCode) bool {
	for err != nil {
		var se *Error
		if !errors.As(err, &se) {
			return false
		}
		if se.Code == code {
			return true
		}
		err = se.Err
	}
	return false
}

// HasCode reports whether any *Error in err's chain carries code.
func HasCode(err error, code ErrorCode) bool { return hasCode(err, code) }

// IsNotWritable reports whether err is a not-writable error.
func IsNotWritable(err error) bool { return hasCode(err, ErrCodeNotWritable) }

// IsUnknownField reports whether err is an unknown-field error.
func IsUnknownField(err error) bool { return hasCode(err, ErrCodeUnknownField) }

// IsValidation reports whether err is a validation error.
func IsValidation(err error) bool { return hasCode(err, ErrCodeValidation) }

// IsBusy reports whether err is a busy error.
func IsBusy(err error) bool { return hasCode(err, ErrCodeBusy) }

// IsNoValue reports whether err is a no-value error.
func IsNoValue(err error) bool { return hasCode(err, ErrCodeNoValue) }

// IsHalted reports whether err is an observer halt.
func IsHalted(err error) bool { return hasCode(err, ErrCodeHalted) }

// IsFrozen reports whether err is a frozen-event error.
func IsFrozen(err error) bool { return hasCode(err, ErrCodeFrozen) }

// IsGuardMutation reports whether err is a guard-mutation error.
func IsGuardMutation(err error) bool { return hasCode(err, ErrCodeGuardMutation) }

// IsDepthExceeded reports whether err is a depth-exceeded error.
func IsDepthExceeded(err error) bool { return hasCode(err, ErrCodeDepthExceeded) }

// IsInvalidKind reports whether err is an invalid-kind error.
func IsInvalidKind(err error) bool { return hasCode(err, ErrCodeInvalidKind) }

func notWritable(t *Type, f *Field) *Error {
	return &Error{
		Code:    ErrCodeNotWritable,
		Type:    t.Name(),
		Field:   f.name,
		Message: "field is not writable",
	}
}

func unknownField(t *Type, name string) *Error {
	return &Error{
		Code:    ErrCodeUnknownField,
		Type:    t.Name(),
		Field:   name,
		Message: fmt.Sprintf("%s has no field named %q", t.Name(), name),
	}
}

// ValidationError creates a validation error for use in Authorize and
// Coerce hooks.
func ValidationError(format string, args ...any) *Error {
	return &Error{
		Code:    ErrCodeValidation,
		Message: fmt.Sprintf(format, args...),
	}
}

// RollbackFailure records one event whose rollback returned an error.
type RollbackFailure struct {
	Event *Event
	Err   error
}

// BatchError is returned when a committed batch fails.
//
// Cause is the error of the event that failed to apply. Warnings holds the
// failing event's own rollback error, which is reported but not fatal.
// RollbackFailures holds events already applied in the batch whose
// rollback failed during the reverse sweep; every remaining event is still
// rolled back before the error is returned.
type BatchError struct {
	Batch            string
	Failed           *Event
	Cause            error
	Warnings         []RollbackFailure
	RollbackFailures []RollbackFailure
}

// Error implements the error interface.
func (e *BatchError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "batch %s failed", e.Batch)
	if e.Failed != nil {
		fmt.Fprintf(&b, " at %s", e.Failed)
	}
	fmt.Fprintf(&b, ": %v", e.Cause)
	if n := len(e.RollbackFailures); n > 0 {
		fmt.Fprintf(&b, " (%d rollback failure(s):", n)
		for _, rf := range e.RollbackFailures {
			fmt.Fprintf(&b, " %s: %v;", rf.Event, rf.Err)
		}
		b.WriteString(")")
	}
	return b.String()
}

// Unwrap returns the original failure so errors.Is and errors.As see the
// error that triggered the rollback.
func (e *BatchError) Unwrap() error {
	return e.Cause
}

// IsRollbackFailure reports whether err carries failures from a batch's
// reverse rollback sweep.
func IsRollbackFailure(err error) bool {
	var be *BatchError
	if errors.As(err, &be) {
		return len(be.RollbackFailures) > 0
	}
	return false
}
