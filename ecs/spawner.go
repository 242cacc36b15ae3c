// Package ecs provides the entity/component bookkeeping layered over the
// arena: component-type registration, spawning typed components into the
// arena, and building queries over everything spawned of a given type.
// It mirrors the original allocator's Spawner, including its requirement
// that a component type be registered before anything of that type can
// be spawned.
package ecs

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/sbl8/arcsys/arena"
	"github.com/sbl8/arcsys/core"
	"github.com/sbl8/arcsys/handle"
	"github.com/sbl8/arcsys/query"
)

// ErrUnregisteredComponent is returned by Spawn and QueryFor when called
// with a component type that was never passed to RegisterComponent.
var ErrUnregisteredComponent = errors.New("ecs: component type is not registered")

// Spawner owns an arena and the per-type bookkeeping of everything
// spawned into it. It is safe for concurrent RegisterComponent/Spawn
// calls from a single goroutine only, matching the arena's own
// runner-thread-only contract; queries built from it may be read
// concurrently once constructed.
//
// queries and dynQueries are the spawner's query table: QueryFor and
// QueryDissolved hand out the same cached *query.Query[T]/
// *query.DynQuery[any] pointer on every call, so a task given that
// pointer at AddTask sees it every tick rather than a fresh snapshot,
// and Spawn appends newly spawned components into
// whichever cached query already exists for their type, per §4.8's
// "cached pointer into the spawner's query table" requirement.
type Spawner struct {
	mu         sync.Mutex
	arena      *arena.Arena
	registered map[reflect.Type]bool
	components map[reflect.Type][]*core.IndirectionRecord
	queries    map[reflect.Type]any
	dynQueries map[reflect.Type]any
	nextEntity uint64
}

// NewSpawner wraps a (already constructed) arena.
func NewSpawner(a *arena.Arena) *Spawner {
	return &Spawner{
		arena:      a,
		registered: make(map[reflect.Type]bool),
		components: make(map[reflect.Type][]*core.IndirectionRecord),
		queries:    make(map[reflect.Type]any),
		dynQueries: make(map[reflect.Type]any),
	}
}

func componentType[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// ComponentTag returns T's component tag, the value a task passes as its
// tag to schedule.Schedule.AddTask. The tag is carried with the task; no
// query is looked up by it.
func ComponentTag[T any]() reflect.Type {
	return componentType[T]()
}

// RegisterComponent declares T as a component type that may be spawned.
// Registering the same type twice is a no-op.
func RegisterComponent[T any](s *Spawner) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.registered[componentType[T]()] = true
}

// Spawn allocates value as a new component of type T and records it
// against T's registry for future queries. T must have been registered
// with RegisterComponent first. Any query already cached for T in the
// spawner's query table is extended in place, so a task holding that
// query sees the new component on its next pass without re-querying.
func Spawn[T any](s *Spawner, value T) (handle.Mut[T], error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := componentType[T]()
	if !s.registered[t] {
		return handle.Mut[T]{}, fmt.Errorf("%w: %s", ErrUnregisteredComponent, t)
	}
	m, err := arena.Allocate(s.arena, value)
	if err != nil {
		return handle.Mut[T]{}, err
	}
	s.components[t] = append(s.components[t], m.Record())
	if q, ok := s.queries[t]; ok {
		q.(*query.Query[T]).Append(m)
	}
	if dq, ok := s.dynQueries[t]; ok {
		dq.(*query.DynQuery[any]).Append(handle.NewDynRef(m))
	}
	return m, nil
}

// QueryFor returns the spawner's cached query over every live-or-freed
// component of type T spawned so far, building and caching it on first
// call. Freed entries are filtered out lazily by the query itself as it
// iterates, not at construction time. Subsequent calls return the same
// *query.Query[T] pointer, already extended with anything spawned since.
func QueryFor[T any](s *Spawner) (*query.Query[T], error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := componentType[T]()
	if !s.registered[t] {
		return nil, fmt.Errorf("%w: %s", ErrUnregisteredComponent, t)
	}
	if q, ok := s.queries[t]; ok {
		return q.(*query.Query[T]), nil
	}
	recs := s.components[t]
	refs := make([]handle.Mut[T], len(recs))
	for i, rec := range recs {
		refs[i] = handle.NewMut[T](rec)
	}
	q := query.New(refs)
	s.queries[t] = q
	return q, nil
}

// QueryDissolved returns the spawner's cached type-erased query over
// every component of type T, for callers that only need to cast each
// entry to a shared interface rather than to the concrete type T. Built
// and cached on first call like QueryFor.
func QueryDissolved[T any](s *Spawner) (*query.DynQuery[any], error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := componentType[T]()
	if !s.registered[t] {
		return nil, fmt.Errorf("%w: %s", ErrUnregisteredComponent, t)
	}
	if dq, ok := s.dynQueries[t]; ok {
		return dq.(*query.DynQuery[any]), nil
	}
	recs := s.components[t]
	refs := make([]handle.DynRef, len(recs))
	for i, rec := range recs {
		refs[i] = handle.NewDynRef(handle.NewMut[T](rec))
	}
	dq := query.NewDyn[any](refs)
	s.dynQueries[t] = dq
	return dq, nil
}

// Free releases a spawned component back to the arena. The caller is
// responsible for no longer using any handle obtained from rec.
func (s *Spawner) Free(rec *core.IndirectionRecord) error {
	return s.arena.Free(rec)
}
