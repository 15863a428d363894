package harness

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/stately/internal/journal"
	"github.com/roach88/stately/internal/schema"
	"github.com/roach88/stately/internal/settings"
	"github.com/roach88/stately/internal/state"
)

var kindNames = map[string]*state.Kind{
	"event": state.BaseEvent,
	"set":   state.SetEvent,
	"del":   state.DelEvent,
}

// Option configures a scenario run.
type Option func(*config)

type config struct {
	logger    *slog.Logger
	journal   *journal.Journal
	overrides settings.Values
	logLevel  *slog.Level
}

// WithLogger sets the object's logger. The default discards everything.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) { c.logger = l }
}

// WithJournal records the scenario object in j.
func WithJournal(j *journal.Journal) Option {
	return func(c *config) { c.journal = j }
}

// WithOverrides merges values over the scenario's settings.
func WithOverrides(v settings.Values) Option {
	return func(c *config) { c.overrides = v }
}

// WithEventLog logs every notification of the object at level.
func WithEventLog(level slog.Level) Option {
	return func(c *config) { c.logLevel = &level }
}

// Harness runs one scenario against one object.
type Harness struct {
	scenario *Scenario
	obj      *state.Object
	result   *Result
	logger   *slog.Logger
}

// Run executes a scenario and returns the result.
//
// Run only returns an error when the scenario cannot be set up: the schema
// does not load, the type is unknown, or the object cannot be built. Step
// and assertion failures are recorded on the result.
//
// Execution flow:
//  1. Load the schema and construct the object with deterministic ids
//  2. Apply settings and overrides as one batch
//  3. Register recording observers
//  4. Execute steps, checking expectations
//  5. Evaluate assertions against the trace and final state
func Run(scenario *Scenario, opts ...Option) (*Result, error) {
	cfg := &config{logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(cfg)
	}

	s, err := schema.Load(scenario.Schema)
	if err != nil {
		return nil, fmt.Errorf("failed to load schema: %w", err)
	}
	typ, ok := s.Type(scenario.Type)
	if !ok {
		return nil, fmt.Errorf("schema has no type %q", scenario.Type)
	}

	obj, err := state.New(typ,
		state.WithID(scenario.Name),
		state.WithIDGenerator(state.NewSequenceGenerator(scenario.Name)),
		state.WithLogger(cfg.logger),
		state.WithValues(scenario.Values),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create object: %w", err)
	}

	h := &Harness{
		scenario: scenario,
		obj:      obj,
		result:   NewResult(),
		logger:   cfg.logger,
	}

	ctx := context.Background()
	if cfg.journal != nil {
		if _, err := cfg.journal.Attach(ctx, obj); err != nil {
			return nil, fmt.Errorf("failed to attach journal: %w", err)
		}
	}
	if cfg.logLevel != nil {
		kinds := []*state.Kind{state.SetEvent, state.DelEvent}
		if _, err := state.LogEvents(obj, cfg.logger, *cfg.logLevel, state.Selector{Kinds: kinds}); err != nil {
			return nil, fmt.Errorf("failed to register event log: %w", err)
		}
	}

	values := settings.Merge(scenario.Settings, cfg.overrides)
	if err := settings.Apply(obj, values); err != nil {
		return nil, fmt.Errorf("failed to apply settings: %w", err)
	}

	for i, spec := range scenario.Observe {
		if err := h.observe(spec); err != nil {
			return nil, fmt.Errorf("observe[%d]: %w", i, err)
		}
	}

	h.runSteps("steps", scenario.Steps)

	for _, msg := range EvaluateAssertions(h.result, scenario.Assertions, obj) {
		h.result.AddError(msg)
	}

	dump, err := obj.Dump(nil)
	if err != nil {
		h.result.AddError(fmt.Sprintf("final state: %v", err))
	} else {
		h.result.State = dump
	}
	return h.result, nil
}

// Object returns the scenario object.
func (h *Harness) Object() *state.Object { return h.obj }

func (h *Harness) observe(spec ObserveSpec) error {
	sel := state.Selector{}
	if len(spec.Fields) > 0 {
		sel.Fields = state.Names(spec.Fields)
	}
	for _, name := range spec.Kinds {
		sel.Kinds = append(sel.Kinds, kindNames[name])
	}
	for _, st := range spec.Stages {
		switch st {
		case "all":
			sel.Stages = append(sel.Stages, state.EveryStage(sel.Kinds...)...)
		case "none":
			sel.Stages = append(sel.Stages, state.StageNone)
		default:
			sel.Stages = append(sel.Stages, st)
		}
	}

	label := spec.Label
	ob := state.NewObserver(label, nil, func(o *state.Object, ev *state.Event) error {
		h.result.Trace = append(h.result.Trace, TraceEvent{
			Observer: label,
			Field:    ev.Name(),
			Kind:     ev.Kind().Typename(),
			Stage:    state.StageLabel(ev.Stage()),
			Old:      traceValue(ev.Old()),
			New:      traceValue(ev.New()),
			Seq:      ev.Seq(),
		})
		return nil
	})
	return h.obj.Observe(sel, ob)
}

// traceValue reports the Undefined marker as null.
func traceValue(v any) any {
	if state.IsUndefined(v) {
		return nil
	}
	return v
}

func (h *Harness) runSteps(path string, steps []Step) {
	for i, step := range steps {
		at := fmt.Sprintf("%s[%d]", path, i)
		got, err := h.runStep(at, step)
		h.check(at, step, got, err)
	}
}

func (h *Harness) runStep(at string, step Step) (any, error) {
	switch step.Op() {
	case StepGet:
		return h.obj.Get(step.Get)
	case StepSet:
		return nil, h.obj.Set(step.Set, step.Value)
	case StepDel:
		return nil, h.obj.Delete(step.Del)
	case StepUpdate:
		return nil, h.obj.Update(step.Update)
	case StepBatch:
		return nil, h.obj.Delay(func() error {
			h.runSteps(at+".batch", step.Batch)
			return nil
		})
	}
	return nil, fmt.Errorf("%s: empty step", at)
}

func (h *Harness) check(at string, step Step, got any, err error) {
	op := step.Op()
	switch {
	case step.Error != "" && err == nil:
		h.result.AddError(fmt.Sprintf("%s: %s expected error %s, got success", at, op, step.Error))
		return
	case step.Error != "" && !state.HasCode(err, state.ErrorCode(step.Error)):
		h.result.AddError(fmt.Sprintf("%s: %s expected error %s, got %v", at, op, step.Error, err))
		return
	case step.Error == "" && err != nil:
		h.result.AddError(fmt.Sprintf("%s: %s failed: %v", at, op, err))
		return
	}

	if step.Expect != nil {
		want, decodeErr := decodeNode(step.Expect)
		if decodeErr != nil {
			h.result.AddError(fmt.Sprintf("%s: decode expect: %v", at, decodeErr))
			return
		}
		if !valuesEqual(got, want) {
			h.result.AddError(fmt.Sprintf("%s: %s = %v (type %T), expected %v (type %T)", at, strings.TrimSpace(op+" "+step.Target()), got, got, want, want))
		}
	}

	h.logger.Debug("scenario step completed",
		"scenario", h.scenario.Name,
		"step", at,
		"op", op,
		"target", step.Target(),
	)
}

func decodeNode(n *yaml.Node) (any, error) {
	var v any
	if err := n.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}
