package state

// undefined is the type of the Undefined marker. It is unexported so no other
// value can compare equal to Undefined.
type undefined struct{}

func (undefined) String() string { return "Undefined" }

// MarshalJSON encodes the marker as {"undefined":true}.
func (undefined) MarshalJSON() ([]byte, error) {
	return []byte(`{"undefined":true}`), nil
}

// Undefined means "no value": a field that was never set, a default that
// does not exist, or an event with no old value to roll back to.
var Undefined any = undefined{}

// IsUndefined reports whether v is the Undefined marker.
func IsUndefined(v any) bool {
	_, ok := v.(undefined)
	return ok
}
