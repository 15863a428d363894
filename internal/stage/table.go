package stage

import (
	"fmt"
	"strings"
)

// None is both the start and the end sentinel of every cycle. It is also the
// status of an engine that is not running.
const None = ""

// maxStages bounds cycle resolution so a malformed table cannot spin forever.
const maxStages = 256

// Blueprint maps a stage name to the name of the stage that follows it.
type Blueprint map[string]string

// Table is a stage-transition table layered on an optional parent.
//
// Lookups consult the table's own blueprint first and fall back to the
// parent, so a derived table only records the transitions it changes.
// Tables are mutable while being built; once Cycle has been taken the
// result should be cached by the caller.
type Table struct {
	parent *Table
	own    Blueprint
}

// NewTable creates an empty table that inherits transitions from parent.
// A nil parent starts a fresh chain.
func NewTable(parent *Table) *Table {
	return &Table{parent: parent, own: make(Blueprint)}
}

// Parent returns the table this one extends, or nil.
func (t *Table) Parent() *Table {
	return t.parent
}

// Next resolves the stage that follows current.
// Returns None when no table in the chain defines a successor.
func (t *Table) Next(current string) string {
	for tt := t; tt != nil; tt = tt.parent {
		if next, ok := tt.own[current]; ok {
			return next
		}
	}
	return None
}

// Link records a raw transition from -> to.
func (t *Table) Link(from, to string) *Table {
	t.own[from] = to
	return t
}

// Between places stage after `after` and before `before`:
// after -> stage -> before.
func (t *Table) Between(after, before, stage string) *Table {
	t.own[after] = stage
	t.own[stage] = before
	return t
}

// After inserts stage immediately after name, keeping name's previous
// successor as the successor of stage.
func (t *Table) After(name, stage string) *Table {
	next := t.Next(name)
	t.own[name] = stage
	t.own[stage] = next
	return t
}

// Before inserts stage immediately before name. If name is not reachable
// from None the table is left untouched; Cycle will not include stage.
func (t *Table) Before(name, stage string) *Table {
	prev, ok := t.predecessor(name)
	if !ok {
		return t
	}
	t.own[prev] = stage
	t.own[stage] = name
	return t
}

// predecessor walks the current chain looking for the stage whose successor
// is name.
func (t *Table) predecessor(name string) (string, bool) {
	current := None
	for i := 0; i < maxStages; i++ {
		next := t.Next(current)
		if next == name {
			return current, true
		}
		if next == None {
			return None, false
		}
		current = next
	}
	return None, false
}

// Cycle resolves the ordered list of stages, starting from None and
// following transitions until None is reached again.
//
// Returns an error if a stage repeats (the table loops) or the chain
// exceeds the internal stage limit.
func (t *Table) Cycle() ([]string, error) {
	var cycle []string
	seen := make(map[string]bool)

	current := t.Next(None)
	for current != None {
		if seen[current] {
			return nil, fmt.Errorf("stage %q repeats in cycle %s", current, strings.Join(cycle, " -> "))
		}
		if len(cycle) >= maxStages {
			return nil, fmt.Errorf("cycle exceeds %d stages", maxStages)
		}
		seen[current] = true
		cycle = append(cycle, current)
		current = t.Next(current)
	}

	return cycle, nil
}

// MustCycle is like Cycle but panics on error.
// Intended for package-level table definitions.
func (t *Table) MustCycle() []string {
	cycle, err := t.Cycle()
	if err != nil {
		panic(fmt.Sprintf("stage: %v", err))
	}
	return cycle
}
