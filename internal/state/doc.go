// Package state implements reactive objects whose fields change through
// staged, observable, reversible events.
//
// A Type declares fields once, in a builder, and assigns every field its
// name and owner:
//
//	point := state.NewType("Point").
//	    Field("x", state.Default(0)).
//	    Field("y", state.DefaultFunc(func(o *state.Object) (any, error) {
//	        x, err := o.Get("x")
//	        if err != nil {
//	            return nil, err
//	        }
//	        return x.(int) * 2, nil
//	    })).
//	    MustBuild()
//
// An Object holds the value model for one instance. Reading a field with no
// value materializes its default once and stores it; the default is not
// recomputed when its inputs change later.
//
// EVENTS:
//
// Set and Delete never write the model directly. They build an Event of the
// field's kind and drive it through the kind's stage cycle:
//
//	set event: pending -> validating -> working -> done
//	del event: pending -> working -> done
//
// After every stage, and once more after the last one (StageNone), the
// object notifies the observers registered for the event's field, its kind
// lineage (most derived first) and the stage. A handler or observer error
// halts the event where it is; rolling back is then the caller's job,
// except inside a batch.
//
// BATCHES:
//
// Begin, Intercept and Delay queue events instead of applying them. Commit
// applies the queue in order and, when an event fails, rolls back that event
// and every applied one in reverse. Update sets several fields as one batch.
//
// Objects are single-threaded; nothing in this package starts goroutines.
package state
