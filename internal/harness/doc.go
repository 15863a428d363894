// Package harness runs YAML scenarios against schema-declared objects.
//
// # Scenario Format
//
//	name: counter_basics
//	description: "Defaults, sets and deletes notify in order"
//	schema: schemas/counter        # CUE directory, relative to this file
//	type: Counter
//	values: { id: "c1" }           # constructor values (read-only fields)
//	settings: { limit: 10 }        # config-tagged fields, applied as a batch
//	observe:
//	  - label: watch_n
//	    fields: [n]
//	    kinds: [set, del]          # event | set | del
//	    stages: [all]              # stage names, "none", or "all"
//	steps:
//	  - get: n
//	    expect: 0
//	  - set: n
//	    value: 1
//	  - set: n
//	    value: -1
//	    error: VALIDATION
//	  - del: n
//	  - update: { n: 2, label: two }
//	  - batch:
//	      - set: n
//	        value: 3
//	assertions:
//	  - type: notified
//	    observer: watch_n
//	    count: 4
//	  - type: trace_order
//	    order: [n/pending, n/working, n/done]
//	  - type: final_state
//	    expect: { n: 3 }
//	  - type: has_value
//	    field: label
//	    present: true
//
// # Steps
//
// Each step is exactly one of get, set, del, update or batch. A step may
// name the error code it must fail with. Steps inside a batch are queued,
// so their failures surface on the batch step when it commits.
//
// # Assertion Types
//
//   - notified: how many notifications an observer saw, and their new values
//   - trace_order: "field/stage" entries appear in order, optionally scoped
//     to one observer
//   - final_state: field values after the steps, defaults included
//   - has_value: whether a value is stored, defaults excluded
//
// # Determinism
//
// The scenario name is the object id and the prefix of a sequence id
// generator, and the object's logical clock starts at zero, so traces are
// identical across runs. Undefined old and new values are reported as null.
package harness
