package ecs

import (
	"reflect"

	"github.com/sbl8/arcsys/core"
	"github.com/sbl8/arcsys/handle"
)

// Entity is a bag of component records spawned together. It carries no
// behavior of its own; it exists so a group of components spawned in one
// call can be freed as a unit.
type Entity struct {
	ID         uint64
	Components []*core.IndirectionRecord
}

// ComponentSpawn is a closure that spawns one component and returns its
// component tag alongside a type-erased handle to it, used by
// SpawnEntity to spawn a heterogeneous set of components in one call and
// to assemble the tag-keyed sibling map its post-commit hook receives.
// The set is not committed atomically: if one closure fails, the
// components spawned before it stay allocated.
type ComponentSpawn func(s *Spawner) (reflect.Type, handle.Any, error)

// SpawnEntity spawns every component in spawns against s, then invokes
// onCommitted with a map from each spawned component's tag to its
// type-erased handle, once all of them have committed. This is the
// sibling/post-commit hook the original allocator exposed so a caller
// could look up a sibling component by tag (and recover its concrete
// type via handle.CastAny) only after every sibling actually exists.
func SpawnEntity(s *Spawner, onCommitted func(siblings map[reflect.Type]handle.Any), spawns ...ComponentSpawn) (Entity, error) {
	s.mu.Lock()
	id := s.nextEntity
	s.nextEntity++
	s.mu.Unlock()

	e := Entity{ID: id, Components: make([]*core.IndirectionRecord, 0, len(spawns))}
	siblings := make(map[reflect.Type]handle.Any, len(spawns))
	for _, spawn := range spawns {
		tag, any, err := spawn(s)
		if err != nil {
			return Entity{}, err
		}
		e.Components = append(e.Components, any.Record())
		siblings[tag] = any
	}
	if onCommitted != nil {
		onCommitted(siblings)
	}
	return e, nil
}

// FreeEntity frees every component belonging to e. It stops and returns
// at the first failure, leaving any remaining components allocated.
func FreeEntity(s *Spawner, e Entity) error {
	for _, rec := range e.Components {
		if err := s.Free(rec); err != nil {
			return err
		}
	}
	return nil
}
