package state

import "fmt"

// DefaultMaxDepth bounds how deeply event applications may nest, e.g. an
// observer of x that sets y whose observer sets x again.
const DefaultMaxDepth = 64

// depthQuota tracks nested event applications on one object.
//
// Cycles between observers (x -> y -> x) and long chains of distinct
// fields both end here: the first application past the limit fails with
// DEPTH_EXCEEDED and the stack unwinds normally.
type depthQuota struct {
	limit   int
	current int
}

func newDepthQuota(limit int) *depthQuota {
	if limit <= 0 {
		limit = DefaultMaxDepth
	}
	return &depthQuota{limit: limit}
}

// enter records one more nesting level. The returned func must be called
// when the application finishes, including on error.
func (q *depthQuota) enter(ev *Event) (func(), error) {
	if q.current >= q.limit {
		return nil, &Error{
			Code:    ErrCodeDepthExceeded,
			Type:    ev.obj.typ.Name(),
			Field:   ev.field.name,
			Message: fmt.Sprintf("%s nested deeper than %d events", ev, q.limit),
		}
	}
	q.current++
	return func() { q.current-- }, nil
}

// depth returns the current nesting level.
func (q *depthQuota) depth() int {
	return q.current
}
