package handle

import (
	"testing"
	"unsafe"

	"github.com/sbl8/arcsys/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestCell allocates a Semaphore header followed by a T value inline,
// mimicking how the arena lays out a boxed cell, and wires an
// IndirectionRecord to it.
func newTestCell[T any](value T) *core.IndirectionRecord {
	size := core.ValueOffset + unsafe.Sizeof(value)
	buf := core.AlignedBytes(int(size))
	*(*T)(unsafe.Pointer(uintptr(unsafe.Pointer(&buf[0])) + core.ValueOffset)) = value

	rec := &core.IndirectionRecord{Size: size}
	rec.Rebase(&buf[0])
	return rec
}

func TestRefAccessReadsValue(t *testing.T) {
	t.Parallel()
	rec := newTestCell(42)
	ref := NewRef[int](rec)

	access, err := ref.Access(1)
	require.NoError(t, err)
	defer access.Release()

	assert.Equal(t, 42, *access.Get())
}

func TestMutAccessWritesValue(t *testing.T) {
	t.Parallel()
	rec := newTestCell(0)
	m := NewMut[int](rec)

	access, err := m.Access(1)
	require.NoError(t, err)
	*access.Get() = 7
	access.Release()

	ref := NewRef[int](rec)
	ra, err := ref.Access(1)
	require.NoError(t, err)
	defer ra.Release()
	assert.Equal(t, 7, *ra.Get())
}

func TestAccessAfterFreeReturnsErrFreed(t *testing.T) {
	t.Parallel()
	rec := newTestCell(1)
	rec.MarkFreed()

	ref := NewRef[int](rec)
	_, err := ref.Access(1)
	assert.ErrorIs(t, err, ErrFreed)
}

func TestDowngradeKeepsValueAndAdmitsSecondReader(t *testing.T) {
	t.Parallel()
	rec := newTestCell(5)
	m := NewMut[int](rec)

	wAccess, err := m.Access(1)
	require.NoError(t, err)
	rAccess := wAccess.Downgrade()
	defer rAccess.Release()

	assert.Equal(t, 5, *rAccess.Get())

	ref := NewRef[int](rec)
	other, err := ref.Access(2)
	require.NoError(t, err)
	other.Release()
}
