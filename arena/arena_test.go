package arena

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocateAndAccess(t *testing.T) {
	t.Parallel()
	a, err := New(4096)
	require.NoError(t, err)

	m, err := Allocate(a, uint32(0xDEADBEEF))
	require.NoError(t, err)

	access, err := m.Access(0)
	require.NoError(t, err)
	defer access.Release()
	assert.Equal(t, uint32(0xDEADBEEF), *access.Get())
}

func TestGrowthPreservesHandles(t *testing.T) {
	t.Parallel()
	a, err := New(64) // rounded up to a single 4096-byte page
	require.NoError(t, err)

	type payload struct {
		a, b, c, d uint64
	}

	m, err := Allocate(a, payload{a: 1, b: 2, c: 3, d: 0xDEADBEEF})
	require.NoError(t, err)

	// Force growth with a flurry of unrelated allocations: 1024 16-byte
	// cells need more than the 4096-byte page, and more than 8192 bytes.
	for i := 0; i < 1024; i++ {
		_, err := Allocate(a, uint64(i))
		require.NoError(t, err)
	}
	require.Greater(t, a.Capacity(), uintptr(8192), "the allocations above must have grown the arena twice")

	access, err := m.Access(0)
	require.NoError(t, err)
	defer access.Release()
	assert.Equal(t, uint64(0xDEADBEEF), access.Get().d, "value must survive buffer growth and relocation")
}

func TestFreeThenAllocateReusesSpace(t *testing.T) {
	t.Parallel()
	a, err := New(4096)
	require.NoError(t, err)

	m, err := Allocate(a, uint64(1))
	require.NoError(t, err)
	usedBefore := a.BytesUsed()

	require.NoError(t, a.Free(m.Record()))
	assert.Less(t, a.BytesUsed(), usedBefore)

	m2, err := Allocate(a, uint64(2))
	require.NoError(t, err)
	assert.Equal(t, m.Record().Offset, m2.Record().Offset, "the freed cell's bytes must be handed out again")
}

func TestDoubleFreeIsError(t *testing.T) {
	t.Parallel()
	a, err := New(4096)
	require.NoError(t, err)

	m, err := Allocate(a, uint8(1))
	require.NoError(t, err)

	require.NoError(t, a.Free(m.Record()))
	assert.Error(t, a.Free(m.Record()))
}
