// Package query implements cursor-based iteration over a set of handles
// gathered at query-construction time and extended by Append. A query is not
// restartable except by an explicit ResetCursor: Next advances
// monotonically so that a task that walks a query to completion visits
// each live entry exactly once per tick, mirroring the original query
// iterator's contract. Next acquires a writer lease on each entry it
// returns, matching query.rs's next(thread) -> Option<DataAccessMut<T>>:
// a query hands out mutable access so a component-processing task can
// write results back into the components it walks.
package query

import (
	"github.com/sbl8/arcsys/handle"
)

// Query iterates a slice of Mut[T] handles gathered at construction time
// and extended by Append, skipping entries that have been freed since.
type Query[T any] struct {
	refs   []handle.Mut[T]
	cursor int
}

// New builds a Query over refs. The caller (typically a Spawner) is
// responsible for deciding which handles belong to the query; Query
// itself only walks them.
func New[T any](refs []handle.Mut[T]) *Query[T] {
	return &Query[T]{refs: refs}
}

// Append adds a newly spawned handle to the query, so a query cached in
// a spawner's query table stays current as more components of its type
// are spawned after the query was first built.
func (q *Query[T]) Append(m handle.Mut[T]) {
	q.refs = append(q.refs, m)
}

// Next acquires a writer lease on the next live entry and returns it.
// Entries freed since construction are skipped: handle.Mut.Access
// itself rejects a freed record before any lease is taken, so a skip
// never leaves a dangling acquisition behind.
func (q *Query[T]) Next(thread int) (*handle.DataAccessMut[T], bool) {
	for q.cursor < len(q.refs) {
		m := q.refs[q.cursor]
		q.cursor++
		access, err := m.Access(thread)
		if err != nil {
			continue
		}
		return access, true
	}
	return nil, false
}

// ResetCursor rewinds the query to its first entry, allowing a second
// pass over the same handle set within the same tick.
func (q *Query[T]) ResetCursor() { q.cursor = 0 }

// Len returns the total number of entries the query holds (those it was
// constructed with plus any appended since), live or freed.
func (q *Query[T]) Len() int { return len(q.refs) }

// AsHandles returns the query's remaining (not yet visited) handles as a
// plain slice, folding what was an unsafe raw-slice cast in the original
// implementation into a safe copy. No lease is acquired.
func (q *Query[T]) AsHandles() []handle.Mut[T] {
	out := make([]handle.Mut[T], len(q.refs)-q.cursor)
	copy(out, q.refs[q.cursor:])
	return out
}

// CastDyn acquires a writer lease on ref and attempts to assert the
// boxed value to Iface, for a caller that already knows its query's
// concrete type but wants an interface view of a particular entry.
func CastDyn[T any, Iface any](ref handle.Mut[T], thread int) (Iface, func(), error) {
	var zero Iface
	access, err := ref.Access(thread)
	if err != nil {
		return zero, nil, err
	}
	asserted, ok := any(access.Get()).(Iface)
	if !ok {
		access.Release()
		return zero, nil, handle.ErrTypeMismatch
	}
	return asserted, access.Release, nil
}

// DynQuery iterates a slice of type-erased handles (extended by Append),
// yielding only those whose concrete type implements Iface.
type DynQuery[Iface any] struct {
	refs   []handle.DynRef
	cursor int
}

// NewDyn builds a DynQuery over refs.
func NewDyn[Iface any](refs []handle.DynRef) *DynQuery[Iface] {
	return &DynQuery[Iface]{refs: refs}
}

// Append adds a newly spawned dissolved handle to the query, keeping a
// cached DynQuery current as more components are spawned.
func (q *DynQuery[Iface]) Append(ref handle.DynRef) {
	q.refs = append(q.refs, ref)
}

// Next returns the next live handle asserting to Iface, the release
// function the caller must call when done, and true; or false when the
// query is exhausted. Handles whose concrete type does not implement
// Iface, or that have been freed, are skipped without leaking their pin.
func (q *DynQuery[Iface]) Next(thread int) (Iface, func(), bool) {
	var zero Iface
	for q.cursor < len(q.refs) {
		ref := q.refs[q.cursor]
		q.cursor++
		rec := ref.Record()
		if rec.Freed.Load() {
			continue
		}
		v, release, err := handle.CastDyn[Iface](ref, thread)
		if err != nil {
			continue
		}
		return v, release, true
	}
	return zero, nil, false
}

// ResetCursor rewinds the query to its first entry.
func (q *DynQuery[Iface]) ResetCursor() { q.cursor = 0 }
