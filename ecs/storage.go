package ecs

import (
	"reflect"
	"sort"
	"unsafe"

	"github.com/kamstrup/intmap"
)

// Storage is the facade the world consumes (spec.md §6's "Storage
// contract"). It is backed by the archetype/component-array engine in
// archetype.go and componentstorage.go, adding the EntityId<->location
// indirection that lets EntityId stay stable across archetype moves.
type Storage struct {
	archetypes map[uint32]*Archetype
	registry   *ComponentRegistry
	schemas    *SchemaRegistry
	locations  *intmap.Map[EntityId, entityLocation]
}

// NewStorage creates a new storage facade. registry supplies archetype
// component-array factories (RegisterComponent); schemas resolves
// TypeId<->reflect.Type for the type-id-based lookups in the contract.
func NewStorage(registry *ComponentRegistry, schemas *SchemaRegistry) *Storage {
	return &Storage{
		archetypes: make(map[uint32]*Archetype),
		registry:   registry,
		schemas:    schemas,
		locations:  intmap.New[EntityId, entityLocation](256),
	}
}

// Create inserts a brand-new row for entity with the given components.
// entity must not already have a location (callers are expected to have
// just allocated it from the world's counter).
func (s *Storage) Create(entity EntityId, components []any) {
	types := extractComponentTypes(components)
	archetypeId := hashTypesToUint32(types)

	archetype, exists := s.archetypes[archetypeId]
	if !exists {
		archetype = NewArchetype(archetypeId, types, s.registry)
		s.archetypes[archetypeId] = archetype
	}

	index := archetype.Spawn(entity, components)
	s.locations.Put(entity, entityLocation{archetypeId: archetypeId, index: index})
}

// Insert merges the given components into entity's existing row,
// moving it to the archetype for the union of old and new types. This
// is also exposed as AttachComponents to match spec.md's naming.
func (s *Storage) Insert(entity EntityId, components []any) {
	loc, ok := s.locations.Get(entity)
	if !ok {
		s.Create(entity, components)
		return
	}
	oldArchetype := s.archetypes[loc.archetypeId]

	newTypes := make([]reflect.Type, 0, len(oldArchetype.types)+len(components))
	newTypes = append(newTypes, oldArchetype.types...)
	for _, comp := range components {
		newTypes = append(newTypes, componentType(comp))
	}
	newTypes = dedupeTypes(newTypes)
	sort.Sort(byTypeName(newTypes))

	newArchetypeId := hashTypesToUint32(newTypes)
	newArchetype, exists := s.archetypes[newArchetypeId]
	if !exists {
		newArchetype = NewArchetype(newArchetypeId, newTypes, s.registry)
		s.archetypes[newArchetypeId] = newArchetype
	}

	incoming := make(map[reflect.Type]any, len(components))
	for _, comp := range components {
		incoming[componentType(comp)] = comp
	}

	row := make([]any, 0, len(newTypes))
	for _, typ := range newTypes {
		if comp, ok := incoming[typ]; ok {
			row = append(row, comp)
		} else {
			row = append(row, oldArchetype.GetComponent(loc.index, typ))
		}
	}

	newIndex := newArchetype.Spawn(entity, row)
	oldArchetype.Delete(loc.index)
	s.locations.Put(entity, entityLocation{archetypeId: newArchetypeId, index: newIndex})
}

// AttachComponents is an alias for Insert, named to match spec.md §6.
func (s *Storage) AttachComponents(entity EntityId, components []any) {
	s.Insert(entity, components)
}

// RemoveByTypeIds removes the given component types from entity's row,
// moving it to the archetype for the remaining types. If no types
// remain, the entity is destroyed outright.
func (s *Storage) RemoveByTypeIds(entity EntityId, typeIds []TypeId) {
	loc, ok := s.locations.Get(entity)
	if !ok {
		return
	}
	oldArchetype := s.archetypes[loc.archetypeId]

	remove := make(map[reflect.Type]bool, len(typeIds))
	for _, id := range typeIds {
		if entry := s.schemas.entryById(id); entry != nil {
			remove[entry.typ] = true
		}
	}

	newTypes := make([]reflect.Type, 0, len(oldArchetype.types))
	for _, typ := range oldArchetype.types {
		if !remove[typ] {
			newTypes = append(newTypes, typ)
		}
	}

	if len(newTypes) == 0 {
		oldArchetype.Delete(loc.index)
		s.locations.Del(entity)
		return
	}

	newArchetypeId := hashTypesToUint32(newTypes)
	newArchetype, exists := s.archetypes[newArchetypeId]
	if !exists {
		newArchetype = NewArchetype(newArchetypeId, newTypes, s.registry)
		s.archetypes[newArchetypeId] = newArchetype
	}

	row := make([]any, 0, len(newTypes))
	for _, typ := range newTypes {
		row = append(row, oldArchetype.GetComponent(loc.index, typ))
	}

	newIndex := newArchetype.Spawn(entity, row)
	oldArchetype.Delete(loc.index)
	s.locations.Put(entity, entityLocation{archetypeId: newArchetypeId, index: newIndex})
}

// DetachBySchemaId is an alias for RemoveByTypeIds, named to match spec.md §6.
func (s *Storage) DetachBySchemaId(entity EntityId, typeIds []TypeId) {
	s.RemoveByTypeIds(entity, typeIds)
}

// ClearComponents removes every component from entity's row and drops
// the entity's location entry, so the entity no longer exists in
// storage. Destroy delegates to it.
func (s *Storage) ClearComponents(entity EntityId) {
	loc, ok := s.locations.Get(entity)
	if !ok {
		return
	}
	s.archetypes[loc.archetypeId].Delete(loc.index)
	s.locations.Del(entity)
}

// Destroy removes all data related to entity.
func (s *Storage) Destroy(entity EntityId) {
	s.ClearComponents(entity)
}

// FindComponent returns the component of the given type for entity, or
// nil if the entity doesn't exist or doesn't have that component.
func (s *Storage) FindComponent(entity EntityId, compType reflect.Type) any {
	loc, ok := s.locations.Get(entity)
	if !ok {
		return nil
	}
	archetype, ok := s.archetypes[loc.archetypeId]
	if !ok {
		return nil
	}
	return archetype.GetComponent(loc.index, compType)
}

// FindComponentByTypeId resolves id through the schema registry and
// delegates to FindComponent.
func (s *Storage) FindComponentByTypeId(entity EntityId, id TypeId) any {
	entry := s.schemas.entryById(id)
	if entry == nil {
		return nil
	}
	return s.FindComponent(entity, entry.typ)
}

// HasComponentOfSchema reports whether entity currently carries a
// component of the given TypeId.
func (s *Storage) HasComponentOfSchema(entity EntityId, id TypeId) bool {
	entry := s.schemas.entryById(id)
	if entry == nil {
		return false
	}
	loc, ok := s.locations.Get(entity)
	if !ok {
		return false
	}
	archetype, ok := s.archetypes[loc.archetypeId]
	if !ok {
		return false
	}
	return archetype.HasComponent(entry.typ)
}

// GetEntityComponents returns the live components for entity, or nil
// if the entity doesn't exist.
func (s *Storage) GetEntityComponents(entity EntityId) []any {
	loc, ok := s.locations.Get(entity)
	if !ok {
		return nil
	}
	archetype, ok := s.archetypes[loc.archetypeId]
	if !ok {
		return nil
	}
	out := make([]any, 0, len(archetype.types))
	for _, typ := range archetype.types {
		out = append(out, archetype.GetComponent(loc.index, typ))
	}
	return out
}

// Exists reports whether entity currently has a location in storage.
func (s *Storage) Exists(entity EntityId) bool {
	_, ok := s.locations.Get(entity)
	return ok
}

// Snapshot is an opaque value produced by GetSnapshot. Its only
// documented use is being handed back to a (not-in-scope) serializer;
// it is round-trippable only with the Storage that produced it.
type Snapshot struct {
	archetypes map[uint32]*Archetype
}

// GetSnapshot returns an opaque snapshot of the current archetype set.
// Only the archetype map is copied: the archetypes themselves are shared
// with the live storage, so later changes to their rows show through,
// and entity locations are not captured.
func (s *Storage) GetSnapshot() *Snapshot {
	archetypes := make(map[uint32]*Archetype, len(s.archetypes))
	for id, a := range s.archetypes {
		archetypes[id] = a
	}
	return &Snapshot{archetypes: archetypes}
}

// Reset discards all archetypes and entity locations.
func (s *Storage) Reset() {
	s.archetypes = make(map[uint32]*Archetype)
	s.locations = intmap.New[EntityId, entityLocation](256)
}

// forEachComponent visits every live component in every archetype,
// regardless of which entity owns it. Reset uses this to release every
// live instance back to its schema pool before wiping storage.
func (s *Storage) forEachComponent(fn func(reflect.Type, any)) {
	for _, a := range s.archetypes {
		for i, typ := range a.types {
			storage := a.storages[i]
			for idx := range storage.Iter() {
				if comp := storage.Get(idx); comp != nil {
					fn(typ, comp)
				}
			}
		}
	}
}

// ClearMutations resets per-step change tracking. The world's own
// Observed wrappers own the actual diff trees (ecs/observed.go);
// Storage only forwards so callers holding just a *Storage can still
// satisfy the contract in spec.md §6.
func (s *Storage) ClearMutations(observed *ObservedRegistry) {
	if observed != nil {
		observed.clearAll()
	}
}

func componentType(comp any) reflect.Type {
	t := reflect.TypeOf(comp)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t
}

func dedupeTypes(types []reflect.Type) []reflect.Type {
	seen := make(map[reflect.Type]bool, len(types))
	out := make([]reflect.Type, 0, len(types))
	for _, t := range types {
		if seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

// extractComponentTypes extracts and sorts component types from a slice of components
func extractComponentTypes(components []any) []reflect.Type {
	types := make([]reflect.Type, 0, len(components))
	for _, comp := range components {
		compType := reflect.TypeOf(comp)

		if compType.Kind() == reflect.Ptr {
			compType = compType.Elem()
		}

		if compType.Kind() == reflect.Ptr || compType.Kind() == reflect.Map ||
			compType.Kind() == reflect.Chan || compType.Kind() == reflect.Func {
			panic("components cannot be pointers, maps, channels, or functions")
		}

		types = append(types, compType)
	}
	sort.Sort(byTypeName(types))
	return types
}

// hashTypesToUint32 generates a uint32 hash for a sorted slice of types
func hashTypesToUint32(types []reflect.Type) uint32 {
	var h uint32 = 2166136261     // FNV-1a 32-bit offset basis
	const prime uint32 = 16777619 // FNV-1a 32-bit prime

	for _, t := range types {
		ptr := (*iface)(unsafe.Pointer(&t)).data
		val := uint32(uintptr(ptr))

		if unsafe.Sizeof(uintptr(0)) == 8 {
			val ^= uint32(uintptr(ptr) >> 32)
		}

		h ^= val
		h *= prime
	}

	return h
}

type ComponentReader interface {
	FindComponent(EntityId, reflect.Type) any
}

// ReadComponent is a typed convenience wrapper over ComponentReader,
// grounded on the teacher's ReadComponent[T] helper.
func ReadComponent[T any](reader ComponentReader, entityId EntityId) *T {
	comp := reader.FindComponent(entityId, reflect.TypeFor[T]())
	if comp == nil {
		return nil
	}
	return comp.(*T)
}
