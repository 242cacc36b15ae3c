package handle

import (
	"reflect"

	"github.com/sbl8/arcsys/core"
)

// Any is a fully type-erased Mut handle, recoverable only via CastAny
// once the caller already knows (by construction, e.g. a component-tag
// map key) which concrete type it was built from. It exists for the
// entity post-commit hook, which hands a caller a map of sibling
// components keyed by component tag rather than a typed Mut[T] per
// sibling, mirroring the original allocator's tag -> handle sibling map.
type Any struct {
	rec *core.IndirectionRecord
}

// NewAny erases m into an Any.
func NewAny[T any](m Mut[T]) Any { return Any{rec: m.rec} }

// Record exposes the underlying indirection record.
func (a Any) Record() *core.IndirectionRecord { return a.rec }

// CastAny recovers a Mut[T] from a, checking that T matches the
// concrete type a was built from. Mismatches return ErrTypeMismatch.
func CastAny[T any](a Any) (Mut[T], error) {
	want := reflect.TypeOf((*T)(nil)).Elem()
	if a.rec.Type != want {
		return Mut[T]{}, ErrTypeMismatch
	}
	return Mut[T]{rec: a.rec}, nil
}
