package handle

import (
	"errors"

	"github.com/sbl8/arcsys/core"
)

// ErrTypeMismatch is returned when a DynRef is cast to an interface its
// underlying concrete type does not implement.
var ErrTypeMismatch = errors.New("handle: concrete type does not implement requested interface")

// DynRef is a type-erased handle used by heterogeneous queries: the
// concrete component type behind it is only known at cast time, via
// CastDyn. This mirrors dissolve_data/cast_dyn from the original
// allocator, which let a query iterate mixed component storage and
// recover a shared interface (e.g. dyn HasData) without scanning by
// concrete type.
type DynRef struct {
	rec    *core.IndirectionRecord
	assign func(thread int) (any, func(), error)
}

// NewDynRef erases a Mut[T] into a DynRef. assign acquires a writer
// lease and returns the boxed value as an any, plus a release func. A
// DynRef is writer-backed, not reader-backed, so a dissolved query can
// still mutate the component it casts to a shared interface.
func NewDynRef[T any](m Mut[T]) DynRef {
	return DynRef{
		rec: m.rec,
		assign: func(thread int) (any, func(), error) {
			access, err := m.Access(thread)
			if err != nil {
				return nil, nil, err
			}
			return access.Get(), func() { access.Release() }, nil
		},
	}
}

// Record exposes the underlying indirection record.
func (d DynRef) Record() *core.IndirectionRecord { return d.rec }

// CastDyn acquires a writer lease on d and attempts to assert the boxed
// value (a *T) to Iface. On success it returns the asserted value, a
// release function the caller must invoke when finished, and a nil
// error. If d has been freed it returns that error. On a type
// mismatch the lease is released immediately and CastDyn returns
// ErrTypeMismatch.
func CastDyn[Iface any](d DynRef, thread int) (Iface, func(), error) {
	var zero Iface
	raw, release, err := d.assign(thread)
	if err != nil {
		return zero, nil, err
	}
	asserted, ok := raw.(Iface)
	if !ok {
		release()
		return zero, nil, ErrTypeMismatch
	}
	return asserted, release, nil
}
