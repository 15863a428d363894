package harness

import (
	"bytes"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// Scenario drives one object through a sequence of steps and checks the
// notifications its observers received.
type Scenario struct {
	// Name uniquely identifies this scenario. It is also the object id and
	// the golden file name.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Schema is the CUE schema directory, relative to the scenario file.
	Schema string `yaml:"schema"`

	// Type is the schema type to instantiate.
	Type string `yaml:"type"`

	// Values are initial values passed to the constructor. Read-only
	// fields can only be given here.
	Values map[string]any `yaml:"values,omitempty"`

	// Settings are applied through the settings loader before the steps
	// run, so only config-tagged fields are accepted.
	Settings map[string]any `yaml:"settings,omitempty"`

	// Observe registers recording observers.
	Observe []ObserveSpec `yaml:"observe,omitempty"`

	// Steps are executed in order.
	Steps []Step `yaml:"steps"`

	// Assertions validate the trace and final state.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// ObserveSpec declares one recording observer.
type ObserveSpec struct {
	// Label names the observer in the trace.
	Label string `yaml:"label"`

	// Fields restricts the observer to named fields. Empty means every
	// field.
	Fields []string `yaml:"fields,omitempty"`

	// Kinds is a list of "event", "set" or "del". Empty means every kind.
	Kinds []string `yaml:"kinds,omitempty"`

	// Stages lists stage names; "none" is the terminal notification, and
	// "all" expands to every stage of the kinds. Empty means "none".
	Stages []string `yaml:"stages,omitempty"`
}

// Step is one operation on the scenario object. Exactly one of Get, Set,
// Del, Update and Batch is given.
type Step struct {
	Get    string         `yaml:"get,omitempty"`
	Set    string         `yaml:"set,omitempty"`
	Value  any            `yaml:"value,omitempty"`
	Del    string         `yaml:"del,omitempty"`
	Update map[string]any `yaml:"update,omitempty"`
	Batch  []Step         `yaml:"batch,omitempty"`

	// Expect is the value a get step must return.
	Expect *yaml.Node `yaml:"expect,omitempty"`

	// Error is the error code the step must fail with. Empty means the
	// step must succeed.
	Error string `yaml:"error,omitempty"`
}

// Op returns the step's operation name.
func (s Step) Op() string {
	switch {
	case s.Get != "":
		return StepGet
	case s.Set != "":
		return StepSet
	case s.Del != "":
		return StepDel
	case s.Update != nil:
		return StepUpdate
	case s.Batch != nil:
		return StepBatch
	}
	return ""
}

// Target names the fields the step addresses: the field of a get, set or
// del step, the sorted field names of an update, and "" for a batch.
func (s Step) Target() string {
	switch {
	case s.Get != "":
		return s.Get
	case s.Set != "":
		return s.Set
	case s.Del != "":
		return s.Del
	case s.Update != nil:
		return strings.Join(slices.Sorted(maps.Keys(s.Update)), ",")
	}
	return ""
}

// Step operation names.
const (
	StepGet    = "get"
	StepSet    = "set"
	StepDel    = "del"
	StepUpdate = "update"
	StepBatch  = "batch"
)

// Assertion validates trace or final state.
type Assertion struct {
	// Type is one of notified, trace_order, final_state, has_value.
	Type string `yaml:"type"`

	// Observer is the observer label (notified, trace_order).
	Observer string `yaml:"observer,omitempty"`

	// Count is the expected number of notifications (notified). Nil means
	// any.
	Count *int `yaml:"count,omitempty"`

	// Values are the expected new values, in order (notified).
	Values []any `yaml:"values,omitempty"`

	// Order lists "field/stage" entries that must appear in this order,
	// not necessarily consecutively (trace_order).
	Order []string `yaml:"order,omitempty"`

	// Expect maps fields to their expected final values (final_state).
	// Subset match.
	Expect map[string]any `yaml:"expect,omitempty"`

	// Field and Present check whether a value is stored (has_value).
	Field   string `yaml:"field,omitempty"`
	Present *bool  `yaml:"present,omitempty"`
}

// Assertion type constants.
const (
	AssertNotified   = "notified"
	AssertTraceOrder = "trace_order"
	AssertFinalState = "final_state"
	AssertHasValue   = "has_value"
)

// LoadScenario reads and parses a scenario YAML file. The schema path is
// resolved relative to the file. Unknown keys are errors.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}
	if scenario.Schema != "" && !filepath.IsAbs(scenario.Schema) {
		scenario.Schema = filepath.Join(filepath.Dir(path), scenario.Schema)
	}
	if _, err := os.Stat(scenario.Schema); err != nil {
		return nil, fmt.Errorf("invalid scenario: schema directory not found: %s", scenario.Schema)
	}
	return scenario, nil
}

// ParseScenario parses scenario YAML without resolving the schema path.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Schema == "" {
		return fmt.Errorf("schema is required")
	}
	if s.Type == "" {
		return fmt.Errorf("type is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	labels := make(map[string]bool)
	for i, ob := range s.Observe {
		if ob.Label == "" {
			return fmt.Errorf("observe[%d]: label is required", i)
		}
		if labels[ob.Label] {
			return fmt.Errorf("observe[%d]: duplicate label %q", i, ob.Label)
		}
		labels[ob.Label] = true
		for _, k := range ob.Kinds {
			if _, ok := kindNames[k]; !ok {
				return fmt.Errorf("observe[%d]: unknown kind %q", i, k)
			}
		}
	}

	if err := validateSteps("steps", s.Steps); err != nil {
		return err
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a, labels); err != nil {
			return err
		}
	}
	return nil
}

func validateSteps(path string, steps []Step) error {
	for i, step := range steps {
		at := fmt.Sprintf("%s[%d]", path, i)
		ops := 0
		for _, set := range []bool{step.Get != "", step.Set != "", step.Del != "", step.Update != nil, step.Batch != nil} {
			if set {
				ops++
			}
		}
		if ops != 1 {
			return fmt.Errorf("%s: exactly one of get, set, del, update, batch is required", at)
		}
		if step.Expect != nil && step.Get == "" {
			return fmt.Errorf("%s: expect is only valid on get steps", at)
		}
		if step.Expect != nil && step.Error != "" {
			return fmt.Errorf("%s: expect and error are exclusive", at)
		}
		if step.Batch != nil {
			if err := validateSteps(at+".batch", step.Batch); err != nil {
				return err
			}
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion, labels map[string]bool) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertNotified:
		if a.Observer == "" {
			return fmt.Errorf("assertions[%d]: observer is required for notified", index)
		}
		if a.Count == nil && a.Values == nil {
			return fmt.Errorf("assertions[%d]: count or values is required for notified", index)
		}
		if a.Count != nil && *a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for notified", index)
		}
	case AssertTraceOrder:
		if len(a.Order) == 0 {
			return fmt.Errorf("assertions[%d]: order list is required for trace_order", index)
		}
	case AssertFinalState:
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	case AssertHasValue:
		if a.Field == "" || a.Present == nil {
			return fmt.Errorf("assertions[%d]: field and present are required for has_value", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	if a.Observer != "" && !labels[a.Observer] {
		return fmt.Errorf("assertions[%d]: unknown observer %q", index, a.Observer)
	}
	return nil
}
