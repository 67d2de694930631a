package ecs

import (
	"reflect"
	"slices"
)

type byTypeName []reflect.Type

func (a byTypeName) Len() int           { return len(a) }
func (a byTypeName) Swap(i, j int)      { a[i], a[j] = a[j], a[i] }
func (a byTypeName) Less(i, j int) bool { return a[i].String() < a[j].String() }

// Archetype represents a unique combination of component types. It
// knows nothing about EntityId: callers address rows by slot index, and
// Storage maintains the EntityId<->(archetype,slot) mapping on top.
type Archetype struct {
	id       uint32
	types    []reflect.Type
	storages []iComponentStorage

	// owners maps a live storage slot back to the EntityId occupying it.
	// Storage's locations map goes the other direction (entity->slot);
	// this reverse index is what lets a query iterate "every entity in
	// this archetype" without scanning all of Storage.locations.
	owners map[uint32]EntityId
}

// NewArchetype creates a new archetype with the given ID and sorted component types
func NewArchetype(id uint32, types []reflect.Type, registry *ComponentRegistry) *Archetype {
	a := &Archetype{
		id:       id,
		types:    types,
		storages: make([]iComponentStorage, len(types)),
		owners:   make(map[uint32]EntityId),
	}

	// Initialize storage for each component type
	for idx, typ := range types {
		factory := registry.getFactory(typ)
		if factory == nil {
			panic("component type " + typ.String() + " not registered")
		}
		a.storages[idx] = factory()
	}

	return a
}

// Spawn inserts a new row into this archetype with the given components,
// owned by entity. Returns the storage slot as the entity index.
func (a *Archetype) Spawn(entity EntityId, components []any) uint32 {
	var storagePos int
	for _, comp := range components {
		compType := reflect.TypeOf(comp)
		if compType.Kind() == reflect.Ptr {
			compType = compType.Elem()
		}

		for idx, typ := range a.types {
			if typ == compType {
				storagePos = a.storages[idx].Append(comp)
			}
		}
	}

	a.owners[uint32(storagePos)] = entity
	return uint32(storagePos)
}

// EntityAt returns the entity occupying slot, if any.
func (a *Archetype) EntityAt(slot uint32) (EntityId, bool) {
	id, ok := a.owners[slot]
	return id, ok
}

// GetComponent returns the component of the given type for the entity at entityIndex
// The entityIndex is the storage position directly
func (a *Archetype) GetComponent(entityIndex uint32, compType reflect.Type) any {
	var idx int = -1
	for i, typ := range a.types {
		if typ == compType {
			idx = i
			break
		}
	}
	if idx == -1 {
		return nil
	}

	return a.storages[idx].Get(int(entityIndex))
}

// Delete marks a row's components as deleted. Indices remain stable -
// the slot is simply marked as empty.
func (a *Archetype) Delete(entityIndex uint32) {
	for _, storage := range a.storages {
		storage.Delete(int(entityIndex))
	}
	delete(a.owners, entityIndex)
}

// HasComponent checks if this archetype has the given component type
func (a *Archetype) HasComponent(compType reflect.Type) bool {
	return slices.Contains(a.types, compType)
}

// ID returns the archetype's unique identifier
func (a *Archetype) ID() uint32 {
	return a.id
}

// Types returns the sorted component types for this archetype
func (a *Archetype) Types() []reflect.Type {
	return a.types
}

// Compact reorganizes all component storage to eliminate empty slots and
// reduce fragmentation. Returns a map from old slot index to new slot
// index so the caller (Storage) can update its EntityId location table.
func (a *Archetype) Compact() map[int]int {
	if len(a.storages) == 0 {
		return nil
	}

	// Compact the first storage and use it as the canonical index mapping
	indexMap := a.storages[0].Compact()
	for i := 1; i < len(a.storages); i++ {
		a.storages[i].Compact()
	}

	newOwners := make(map[uint32]EntityId, len(indexMap))
	for oldSlot, newSlot := range indexMap {
		if owner, ok := a.owners[uint32(oldSlot)]; ok {
			newOwners[uint32(newSlot)] = owner
		}
	}
	a.owners = newOwners

	return indexMap
}

// Iter returns an iterator over all live slot indices in this archetype
func (a *Archetype) Iter() func(yield func(uint32) bool) {
	return func(yield func(uint32) bool) {
		if len(a.storages) == 0 {
			return
		}

		for index := range a.storages[0].Iter() {
			if !yield(uint32(index)) {
				return
			}
		}
	}
}
