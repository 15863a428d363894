package harness

// TraceEvent is one notification received by a scenario observer.
type TraceEvent struct {
	Observer string `json:"observer"`
	Field    string `json:"field"`
	Kind     string `json:"kind"`
	Stage    string `json:"stage"`
	Old      any    `json:"old"`
	New      any    `json:"new"`
	Seq      int64  `json:"seq"`
}

// Key returns the "field/stage" form used by trace_order.
func (e TraceEvent) Key() string {
	return e.Field + "/" + e.Stage
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every step expectation and assertion held.
	Pass bool `json:"pass"`

	// Trace holds every recorded notification in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains failure messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// State is the object's final dump, defaults materialized.
	State map[string]any `json:"state,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
		State:  make(map[string]any),
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Notifications returns the trace entries recorded by one observer.
func (r *Result) Notifications(observer string) []TraceEvent {
	var out []TraceEvent
	for _, e := range r.Trace {
		if e.Observer == observer {
			out = append(out, e)
		}
	}
	return out
}
