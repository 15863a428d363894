// Package stage implements the staged execution model that drives events.
//
// A stage cycle is an ordered list of named stages. It is derived from a
// Table: a chain of transition blueprints (current stage -> next stage)
// starting and ending at None. Tables form a single-inheritance chain, so a
// derived table can splice a new stage into its parent's order without
// rewriting the whole blueprint:
//
//	base := stage.NewTable(nil).
//	    Link(stage.None, "pending").
//	    Link("pending", "working").
//	    Link("working", "done").
//	    Link("done", stage.None)
//
//	set := stage.NewTable(base).Between("pending", "working", "validating")
//	cycle, _ := set.Cycle() // [pending validating working done]
//
// Cycles are computed once by the owner of a table and cached; instances
// never recompute them.
//
// An Engine walks one instance through a cycle. Execution is pull-based:
// Start returns a Cursor and the caller advances it explicitly with Next,
// so progress can be inspected, suspended between stages, or abandoned.
// Suspension only happens at stage boundaries; a handler runs to completion.
//
// An Engine admits one active cursor at a time. Starting a second cursor
// while the first has not finished fails with ErrBusy.
package stage
