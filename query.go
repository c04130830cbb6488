package gfx

import "github.com/gogpu/gfx/backend"

// OcclusionQuery counts the samples that pass the depth and stencil tests
// between Begin and End.
type OcclusionQuery struct {
	ctx      *Context
	raw      backend.Query
	active   bool
	released bool
}

// Begin starts counting.
func (q *OcclusionQuery) Begin() error {
	if q.released {
		return released("begin query", "query")
	}
	if q.active {
		return invalid("query already active")
	}
	if err := q.ctx.cmds.BeginQuery(q.raw); err != nil {
		return err
	}
	q.active = true
	return nil
}

// End stops counting.
func (q *OcclusionQuery) End() error {
	if !q.active {
		return invalid("query not active")
	}
	if err := q.ctx.cmds.EndQuery(q.raw); err != nil {
		return err
	}
	q.active = false
	return nil
}

// Result returns the sample count. ok is false while the result is not
// available yet.
func (q *OcclusionQuery) Result() (samples uint64, ok bool, err error) {
	if q.released {
		return 0, false, released("query result", "query")
	}
	if q.active {
		return 0, false, invalid("query still active")
	}
	return q.raw.Result()
}

// Release frees the query. An active query is ended first.
func (q *OcclusionQuery) Release() {
	if q.released {
		return
	}
	if q.active {
		if err := q.End(); err != nil {
			Logger().Warn("gfx: ending query on release", "err", err)
		}
	}
	q.released = true
	q.raw.Release()
}
