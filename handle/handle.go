// Package handle implements the two-tier access model described by the
// arena allocator: long-lived, freely copyable Ref/Mut handles that may
// cross goroutine boundaries at will, and short-lived, thread-pinned
// DataAccess/DataAccessMut values that hold the actual semaphore lease and
// must never be handed to another goroutine.
//
// This mirrors frosty_alloc's ObjectHandle/ObjectHandleMut split
// (DataAccess/DataAccessMut wrapping a raw dereferenced pointer while an
// ObjectHandle/ObjectHandleMut only ever carries the interim pointer).
package handle

import (
	"errors"
	"unsafe"

	"github.com/sbl8/arcsys/core"
)

// ErrFreed is returned when a handle is accessed after its underlying slot
// has been freed from the arena.
var ErrFreed = errors.New("handle: underlying cell has been freed")

// Ref is a shared, freely copyable reference to a cell of type T. It never
// itself holds a semaphore lease; call Access to obtain one.
type Ref[T any] struct {
	rec *core.IndirectionRecord
}

// Mut is a freely copyable reference to a cell of type T that can take the
// cell's write lease. Several Mut and Ref values may point at one cell
// (the spawner returns one from Spawn and its cached queries hold their
// own); exclusion is enforced by the semaphore at the access layer.
type Mut[T any] struct {
	rec *core.IndirectionRecord
}

// NewRef wraps rec as a Ref[T]. Callers outside this module's sibling
// packages should obtain Refs from a Spawner or Query, not construct them
// directly.
func NewRef[T any](rec *core.IndirectionRecord) Ref[T] { return Ref[T]{rec: rec} }

// NewMut wraps rec as a Mut[T].
func NewMut[T any](rec *core.IndirectionRecord) Mut[T] { return Mut[T]{rec: rec} }

// Record exposes the underlying indirection record, for packages (query,
// ecs) that need to inspect liveness without taking a lease.
func (h Ref[T]) Record() *core.IndirectionRecord { return h.rec }
func (h Mut[T]) Record() *core.IndirectionRecord { return h.rec }

func cellValue[T any](base *byte) *T {
	return (*T)(unsafe.Pointer(uintptr(unsafe.Pointer(base)) + core.ValueOffset))
}

func cellSemaphore(base *byte) *core.Semaphore {
	return (*core.Semaphore)(unsafe.Pointer(base))
}

// DataAccess is a scoped, read-only view into a cell. It is pinned to the
// thread that acquired it and must be released (or allowed to go out of
// tick) on that same thread; it must never be sent across goroutines.
type DataAccess[T any] struct {
	rec      *core.IndirectionRecord
	sem      *core.Semaphore
	value    *T
	thread   int
	released bool
}

// Access acquires a read lease on h for the calling thread. thread must be
// the caller's assigned worker thread id (0 for the runner).
func (h Ref[T]) Access(thread int) (*DataAccess[T], error) {
	base, ok := h.rec.TryAcquire()
	if !ok {
		return nil, ErrFreed
	}
	sem := cellSemaphore(base)
	sem.AcquireReader(thread)
	// Re-check liveness after the lease is held: a free that raced the
	// initial TryAcquire would have already cleared the backing pointer.
	if h.rec.Freed.Load() {
		sem.ReleaseReader(thread)
		return nil, ErrFreed
	}
	h.rec.ActiveHandles.Add(1)
	return &DataAccess[T]{rec: h.rec, sem: sem, value: cellValue[T](base), thread: thread}, nil
}

// Get returns the scoped value pointer. It is valid only until Release.
func (a *DataAccess[T]) Get() *T { return a.value }

// Release drops the read lease. Safe to call multiple times.
func (a *DataAccess[T]) Release() {
	if a.released {
		return
	}
	a.sem.ReleaseReader(a.thread)
	a.rec.ActiveHandles.Add(^uint32(0))
	a.released = true
}

// DataAccessMut is a scoped, exclusive view into a cell.
type DataAccessMut[T any] struct {
	rec      *core.IndirectionRecord
	sem      *core.Semaphore
	value    *T
	thread   int
	released bool
}

// Access acquires a write lease on h for the calling thread.
func (h Mut[T]) Access(thread int) (*DataAccessMut[T], error) {
	base, ok := h.rec.TryAcquire()
	if !ok {
		return nil, ErrFreed
	}
	sem := cellSemaphore(base)
	sem.AcquireWriter(thread)
	if h.rec.Freed.Load() {
		sem.ReleaseWriter(thread)
		return nil, ErrFreed
	}
	h.rec.ActiveHandles.Add(1)
	return &DataAccessMut[T]{rec: h.rec, sem: sem, value: cellValue[T](base), thread: thread}, nil
}

// Get returns the scoped value pointer. It is valid only until Release or
// Downgrade.
func (a *DataAccessMut[T]) Get() *T { return a.value }

// Release drops the write lease. Safe to call multiple times.
func (a *DataAccessMut[T]) Release() {
	if a.released {
		return
	}
	a.sem.ReleaseWriter(a.thread)
	a.rec.ActiveHandles.Add(^uint32(0))
	a.released = true
}

// Downgrade converts the write lease into a read lease in a single atomic
// step, consuming a and returning a new scoped read access. Calling
// Release on a after Downgrade is a no-op; release the returned
// DataAccess instead.
func (a *DataAccessMut[T]) Downgrade() *DataAccess[T] {
	if a.released {
		return &DataAccess[T]{rec: a.rec, sem: a.sem, value: a.value, thread: a.thread, released: true}
	}
	a.sem.Downgrade(a.thread)
	a.released = true
	return &DataAccess[T]{rec: a.rec, sem: a.sem, value: a.value, thread: a.thread}
}
