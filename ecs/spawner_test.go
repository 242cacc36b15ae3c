package ecs

import (
	"reflect"
	"testing"

	"github.com/sbl8/arcsys/arena"
	"github.com/sbl8/arcsys/handle"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type position struct{ x, y int }

func TestRegisterSpawnIterateSum(t *testing.T) {
	t.Parallel()
	a, err := arena.New(4096)
	require.NoError(t, err)
	s := NewSpawner(a)
	RegisterComponent[int](s)

	for _, v := range []int{1, 2, 3, 4, 6} {
		_, err := Spawn(s, v)
		require.NoError(t, err)
	}

	q, err := QueryFor[int](s)
	require.NoError(t, err)

	var sum int
	for {
		access, ok := q.Next(0)
		if !ok {
			break
		}
		sum += *access.Get()
		access.Release()
	}
	assert.Equal(t, 16, sum)
}

func TestQueryForReturnsSameCachedQueryAcrossCalls(t *testing.T) {
	t.Parallel()
	a, err := arena.New(4096)
	require.NoError(t, err)
	s := NewSpawner(a)
	RegisterComponent[int](s)

	_, err = Spawn(s, 1)
	require.NoError(t, err)

	first, err := QueryFor[int](s)
	require.NoError(t, err)

	_, err = Spawn(s, 2)
	require.NoError(t, err)

	second, err := QueryFor[int](s)
	require.NoError(t, err)
	assert.Same(t, first, second, "QueryFor must hand back the same cached query pointer")

	var sum int
	for {
		access, ok := second.Next(0)
		if !ok {
			break
		}
		sum += *access.Get()
		access.Release()
	}
	assert.Equal(t, 3, sum, "a query cached before a later Spawn must still see the new component")
}

func TestSpawnUnregisteredTypeFails(t *testing.T) {
	t.Parallel()
	a, err := arena.New(4096)
	require.NoError(t, err)
	s := NewSpawner(a)

	_, err = Spawn(s, position{1, 2})
	assert.ErrorIs(t, err, ErrUnregisteredComponent)
}

func spawnTagged[T any](value T) ComponentSpawn {
	return func(s *Spawner) (reflect.Type, handle.Any, error) {
		m, err := Spawn(s, value)
		if err != nil {
			return nil, handle.Any{}, err
		}
		return ComponentTag[T](), handle.NewAny(m), nil
	}
}

func TestSpawnEntityRunsCommitHookAfterAllComponents(t *testing.T) {
	t.Parallel()
	a, err := arena.New(4096)
	require.NoError(t, err)
	s := NewSpawner(a)
	RegisterComponent[position](s)
	RegisterComponent[int](s)

	var siblings map[reflect.Type]handle.Any
	e, err := SpawnEntity(s, func(sib map[reflect.Type]handle.Any) { siblings = sib },
		spawnTagged(position{1, 1}),
		spawnTagged(7),
	)
	require.NoError(t, err)
	assert.Len(t, e.Components, 2)
	require.Len(t, siblings, 2)

	posAny, ok := siblings[ComponentTag[position]()]
	require.True(t, ok, "siblings map must be keyed by component tag")
	pos, err := handle.CastAny[position](posAny)
	require.NoError(t, err)
	access, err := pos.Access(0)
	require.NoError(t, err)
	assert.Equal(t, position{1, 1}, *access.Get())
	access.Release()

	_, err = handle.CastAny[int](posAny)
	assert.ErrorIs(t, err, handle.ErrTypeMismatch, "casting a sibling to the wrong type must fail")
}

func TestFreedComponentSkippedByQuery(t *testing.T) {
	t.Parallel()
	a, err := arena.New(4096)
	require.NoError(t, err)
	s := NewSpawner(a)
	RegisterComponent[int](s)

	m1, err := Spawn(s, 1)
	require.NoError(t, err)
	_, err = Spawn(s, 2)
	require.NoError(t, err)
	m3, err := Spawn(s, 3)
	require.NoError(t, err)
	_, err = Spawn(s, 10)
	require.NoError(t, err)

	require.NoError(t, s.Free(m1.Record()))
	require.NoError(t, s.Free(m3.Record()))

	q, err := QueryFor[int](s)
	require.NoError(t, err)

	var sum int
	for {
		access, ok := q.Next(0)
		if !ok {
			break
		}
		sum += *access.Get()
		access.Release()
	}
	assert.Equal(t, 12, sum)
}

func TestFreeEntityPropagatesToEveryComponent(t *testing.T) {
	t.Parallel()
	a, err := arena.New(4096)
	require.NoError(t, err)
	s := NewSpawner(a)
	RegisterComponent[position](s)
	RegisterComponent[int](s)

	e, err := SpawnEntity(s, nil,
		spawnTagged(position{2, 2}),
		spawnTagged(9),
	)
	require.NoError(t, err)

	require.NoError(t, FreeEntity(s, e))

	for _, rec := range e.Components {
		assert.True(t, rec.Freed.Load(), "closing an entity must free every one of its components")
	}
}
