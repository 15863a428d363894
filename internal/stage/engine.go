package stage

import (
	"context"
	"errors"
)

// ErrBusy is returned when an engine is started while a cursor is active.
var ErrBusy = errors.New("cycle already in progress")

// ErrAborted is the error reported by a cursor that was abandoned with Abort.
var ErrAborted = errors.New("cycle aborted")

// Handler runs the work for one stage.
//
// ok reports whether the stage has an implementation at all. Stages without
// one still advance and still notify.
type Handler func(stage string, args []any) (result any, ok bool, err error)

// Notifier is called after every stage, and once more with None after the
// last stage. A non-nil error halts the cycle.
type Notifier func(stage string) error

// Awaitable is a stage result that must be resolved before the next stage.
// Cursors started with StartContext await it; plain cursors hand it back.
type Awaitable interface {
	Await(ctx context.Context) (any, error)
}

// Future adapts a function to Awaitable.
type Future func(ctx context.Context) (any, error)

// Await implements Awaitable.
func (f Future) Await(ctx context.Context) (any, error) {
	return f(ctx)
}

// Engine drives a single instance through a fixed cycle.
//
// The zero value is not usable; construct with NewEngine.
type Engine struct {
	cycle   []string
	handle  Handler
	notify  Notifier
	status  string
	active  bool
	results map[string]any
}

// NewEngine creates an engine for a cached cycle. Either hook may be nil.
func NewEngine(cycle []string, handle Handler, notify Notifier) *Engine {
	return &Engine{
		cycle:  cycle,
		handle: handle,
		notify: notify,
	}
}

// Cycle returns a copy of the engine's stage order.
func (e *Engine) Cycle() []string {
	out := make([]string, len(e.cycle))
	copy(out, e.cycle)
	return out
}

// Status returns the stage the engine is in. It is None before the first
// stage and after the last one. After a failure it stays on the failing
// stage.
func (e *Engine) Status() string {
	return e.status
}

// Active reports whether a cursor is mid-cycle.
func (e *Engine) Active() bool {
	return e.active
}

// Result returns the outcome recorded for a stage by the most recent run.
func (e *Engine) Result(stage string) (any, bool) {
	v, ok := e.results[stage]
	return v, ok
}

// Start begins a new pass through the cycle with the given acting arguments.
func (e *Engine) Start(args ...any) (*Cursor, error) {
	return e.start(nil, args)
}

// StartContext is like Start, but Awaitable stage results are awaited with
// ctx before the stage's notification fires.
func (e *Engine) StartContext(ctx context.Context, args ...any) (*Cursor, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	return e.start(ctx, args)
}

func (e *Engine) start(ctx context.Context, args []any) (*Cursor, error) {
	if e.active {
		return nil, ErrBusy
	}
	e.active = true
	e.status = None
	e.results = make(map[string]any, len(e.cycle))
	return &Cursor{engine: e, ctx: ctx, args: args}, nil
}

// Cursor is a resumable pass through an engine's cycle.
//
//	cur, err := eng.Start()
//	for cur.Next() {
//	    fmt.Println(cur.Stage(), cur.Result())
//	}
//	if err := cur.Err(); err != nil { ... }
type Cursor struct {
	engine *Engine
	ctx    context.Context
	args   []any
	index  int
	stage  string
	result any
	last   any
	err    error
	done   bool
}

// Next runs the next stage and its notification.
//
// After the last stage Next performs one terminal step with Stage() == None,
// then returns false. It also returns false once the cycle has failed.
func (c *Cursor) Next() bool {
	if c.done || c.err != nil {
		return false
	}

	e := c.engine
	if c.index >= len(e.cycle) {
		e.status = None
		e.active = false
		c.stage = None
		c.result = nil
		c.done = true
		if e.notify != nil {
			if err := e.notify(None); err != nil {
				c.err = err
			}
		}
		return true
	}

	s := e.cycle[c.index]
	c.index++
	e.status = s
	c.stage = s
	c.result = nil

	if e.handle != nil {
		result, ok, err := e.handle(s, c.args)
		if err != nil {
			c.fail(err)
			return false
		}
		if ok {
			if aw, isAwaitable := result.(Awaitable); isAwaitable && c.ctx != nil {
				result, err = aw.Await(c.ctx)
				if err != nil {
					c.fail(err)
					return false
				}
			}
			c.result = result
			e.results[s] = result
			if result != nil {
				c.last = result
			}
		}
	}

	if e.notify != nil {
		if err := e.notify(s); err != nil {
			c.fail(err)
			return false
		}
	}
	return true
}

// fail halts the cycle. The engine keeps its status on the failing stage so
// rollbacks can tell how far the pass got.
func (c *Cursor) fail(err error) {
	c.err = err
	c.engine.active = false
}

// Send replaces the acting arguments for the stages that follow.
func (c *Cursor) Send(args ...any) {
	c.args = args
}

// Stage returns the stage most recently run.
func (c *Cursor) Stage() string {
	return c.stage
}

// Result returns the outcome of the stage most recently run.
func (c *Cursor) Result() any {
	return c.result
}

// Last returns the most recent non-nil stage outcome.
func (c *Cursor) Last() any {
	return c.last
}

// Err returns the error that halted the cycle, if any.
func (c *Cursor) Err() error {
	return c.err
}

// Done reports whether the cycle ran to completion.
func (c *Cursor) Done() bool {
	return c.done
}

// Abort abandons the pass. The engine is released so it can be started
// again; its status stays where the pass stopped.
func (c *Cursor) Abort() {
	if c.done || c.err != nil {
		return
	}
	c.fail(ErrAborted)
}

// Run advances the cursor to the end and returns the last non-nil outcome.
func (c *Cursor) Run() (any, error) {
	for c.Next() {
	}
	return c.last, c.err
}
