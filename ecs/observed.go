package ecs

import (
	"reflect"
	"strings"
)

// ValueKind tags the shape a ChangeRecord mirrors, per spec.md §3's
// "observed change record" leaf shapes. This is Design Note (b) from
// spec.md §9: a uniform tagged value tree rather than per-schema
// generated proxy types.
type ValueKind int

const (
	KindStruct ValueKind = iota
	KindArray
	KindObject
	KindSet
	KindMap
)

// deleteMarker is the DELETE sentinel spec.md §3/§4.2 describes for
// keyed-object and map deletions.
type deleteMarker struct{}

// DeleteValue is the sentinel recorded for a deleted object/map entry.
var DeleteValue = deleteMarker{}

// ChangeRecord is a tree mirroring a wrapped component's structure,
// additive across steps: writes accumulate until a consumer clears it
// (Storage.ClearMutations clears every memoized record). World.Step does
// not clear records itself.
type ChangeRecord struct {
	Kind ValueKind

	// Struct: field name -> most recent assigned value (leaf value or
	// a nested *ChangeRecord for composite fields).
	Fields map[string]any

	// Array: sparse index -> value (or nested *ChangeRecord), plus the
	// tracked length after the most recent write.
	Indices map[int]any
	Length  int

	// Object / Map: key -> value, or DeleteValue for a deletion.
	Entries map[any]any

	// Set: the two sets of spec.md §3 — entries added and removed
	// since the record was last cleared.
	Added   map[any]struct{}
	Removed map[any]struct{}

	// owner is the Observed[T] wrapper this record belongs to, used by
	// ObservedRegistry.Observe to recover the typed wrapper on repeat
	// lookups without a type-keyed map per T.
	owner any
}

func newChangeRecord(kind ValueKind) *ChangeRecord {
	cr := &ChangeRecord{Kind: kind}
	switch kind {
	case KindStruct:
		cr.Fields = make(map[string]any)
	case KindArray:
		cr.Indices = make(map[int]any)
	case KindObject, KindMap:
		cr.Entries = make(map[any]any)
	case KindSet:
		cr.Added = make(map[any]struct{})
		cr.Removed = make(map[any]struct{})
	}
	return cr
}

// IsEmpty reports whether nothing has been recorded since construction
// or the last clear.
func (cr *ChangeRecord) IsEmpty() bool {
	switch cr.Kind {
	case KindStruct:
		return len(cr.Fields) == 0
	case KindArray:
		return len(cr.Indices) == 0
	case KindObject, KindMap:
		return len(cr.Entries) == 0
	case KindSet:
		return len(cr.Added) == 0 && len(cr.Removed) == 0
	}
	return true
}

func (cr *ChangeRecord) clear() {
	switch cr.Kind {
	case KindStruct:
		clear(cr.Fields)
	case KindArray:
		clear(cr.Indices)
		cr.Length = 0
	case KindObject, KindMap:
		clear(cr.Entries)
	case KindSet:
		clear(cr.Added)
		clear(cr.Removed)
	}
}

// Observed is a transparent-mutation wrapper over a component of type
// T. Scalar field writes go through SetField; composite fields are
// exposed via the package-level ArrayField/ObjectField/SetField/MapField
// helpers below, which memoize nested views so repeated access returns
// the same wrapper (spec.md §4.2: "view.a === view.a within one step").
type Observed[T any] struct {
	ptr      *T
	record   *ChangeRecord
	children map[string]any
}

func newObserved[T any](ptr *T) *Observed[T] {
	return &Observed[T]{
		ptr:      ptr,
		record:   newChangeRecord(KindStruct),
		children: make(map[string]any),
	}
}

// Get returns the underlying component pointer.
func (o *Observed[T]) Get() *T { return o.ptr }

// Record returns the change record accumulated for this component.
func (o *Observed[T]) Record() *ChangeRecord { return o.record }

// SetField assigns a scalar value to a named struct field and records
// the new value under that field's key.
func (o *Observed[T]) SetField(name string, value any) {
	rv := reflect.ValueOf(o.ptr).Elem()
	fv := rv.FieldByName(name)
	if !fv.IsValid() {
		panic("ecs: observed component has no field " + name)
	}
	fv.Set(reflect.ValueOf(value))
	o.record.Fields[name] = value
	delete(o.children, name)
}

// Field reads a struct field's current value without recording a write.
func (o *Observed[T]) Field(name string) any {
	rv := reflect.ValueOf(o.ptr).Elem()
	fv := rv.FieldByName(name)
	if !fv.IsValid() {
		panic("ecs: observed component has no field " + name)
	}
	return fv.Interface()
}

func (o *Observed[T]) nestedRecord(name string) *ChangeRecord {
	if existing, ok := o.record.Fields[name].(*ChangeRecord); ok {
		return existing
	}
	return nil
}

func (o *Observed[T]) cacheChild(name string, view any, record *ChangeRecord) {
	o.children[name] = view
	o.record.Fields[name] = record
}

func (o *Observed[T]) cachedChild(name string) (any, bool) {
	v, ok := o.children[name]
	return v, ok
}

// ArrayView wraps a *[]T field, recording writes into a sparse
// index->value map plus the tracked length (spec.md §3's "Ordered
// array" leaf shape).
type ArrayView[E any] struct {
	slice  *[]E
	record *ChangeRecord
}

func newArrayView[E any](slice *[]E, record *ChangeRecord) *ArrayView[E] {
	record.Length = len(*slice)
	return &ArrayView[E]{slice: slice, record: record}
}

func (a *ArrayView[E]) Len() int  { return len(*a.slice) }
func (a *ArrayView[E]) Get(i int) E { return (*a.slice)[i] }

func (a *ArrayView[E]) Set(i int, v E) {
	(*a.slice)[i] = v
	a.record.Indices[i] = v
}

func (a *ArrayView[E]) Push(v E) {
	*a.slice = append(*a.slice, v)
	idx := len(*a.slice) - 1
	a.record.Indices[idx] = v
	a.record.Length = len(*a.slice)
}

func (a *ArrayView[E]) Pop() (E, bool) {
	var zero E
	n := len(*a.slice)
	if n == 0 {
		return zero, false
	}
	v := (*a.slice)[n-1]
	*a.slice = (*a.slice)[:n-1]
	delete(a.record.Indices, n-1)
	a.record.Length = n - 1
	return v, true
}

// SetLength truncates or grows the slice to n, recording every index
// whose value changed as a result plus the new length.
func (a *ArrayView[E]) SetLength(n int) {
	cur := len(*a.slice)
	if n <= cur {
		*a.slice = (*a.slice)[:n]
		for i := n; i < cur; i++ {
			delete(a.record.Indices, i)
		}
	} else {
		*a.slice = append(*a.slice, make([]E, n-cur)...)
		for i := cur; i < n; i++ {
			a.record.Indices[i] = (*a.slice)[i]
		}
	}
	a.record.Length = n
}

// Splice removes deleteCount elements starting at start and inserts
// insert in their place, delegating to the underlying slice and then
// re-recording every affected index and the new length.
func (a *ArrayView[E]) Splice(start, deleteCount int, insert ...E) []E {
	n := len(*a.slice)
	if start < 0 {
		start = 0
	}
	if start > n {
		start = n
	}
	end := start + deleteCount
	if end > n {
		end = n
	}

	removed := append([]E(nil), (*a.slice)[start:end]...)
	tail := append([]E(nil), (*a.slice)[end:]...)
	result := append(append([]E(nil), (*a.slice)[:start]...), insert...)
	result = append(result, tail...)
	*a.slice = result

	for i := start; i < len(result); i++ {
		a.record.Indices[i] = result[i]
	}
	a.record.Length = len(result)
	return removed
}

// ArrayField returns the memoized ArrayView for a composite slice field,
// constructing it on first access and attaching its record under the
// parent's change record (spec.md §3: "nested composite values carry
// their own change records, accessible from the parent record").
func ArrayField[T any, E any](o *Observed[T], name string, slice *[]E) *ArrayView[E] {
	if cached, ok := o.cachedChild(name); ok {
		return cached.(*ArrayView[E])
	}
	record := o.nestedRecord(name)
	if record == nil {
		record = newChangeRecord(KindArray)
	}
	view := newArrayView(slice, record)
	o.cacheChild(name, view, record)
	return view
}

// ObjectView wraps a map[string]V field, recording assignments directly
// and deletions as DeleteValue (spec.md §3's "Keyed object" leaf shape).
type ObjectView[V any] struct {
	m      map[string]V
	record *ChangeRecord
}

func newObjectView[V any](m map[string]V, record *ChangeRecord) *ObjectView[V] {
	return &ObjectView[V]{m: m, record: record}
}

func (o *ObjectView[V]) Get(key string) (V, bool) {
	v, ok := o.m[key]
	return v, ok
}

func (o *ObjectView[V]) Set(key string, v V) {
	o.m[key] = v
	o.record.Entries[key] = v
}

func (o *ObjectView[V]) Delete(key string) {
	delete(o.m, key)
	o.record.Entries[key] = DeleteValue
}

// ObjectField returns the memoized ObjectView for a composite
// map[string]V field.
func ObjectField[T any, V any](o *Observed[T], name string, m map[string]V) *ObjectView[V] {
	if cached, ok := o.cachedChild(name); ok {
		return cached.(*ObjectView[V])
	}
	record := o.nestedRecord(name)
	if record == nil {
		record = newChangeRecord(KindObject)
	}
	view := newObjectView(m, record)
	o.cacheChild(name, view, record)
	return view
}

// SetView wraps a map[E]struct{} used as a set, recording additions
// and removals into the two sets spec.md §3 describes. Only the final
// state of each value is recorded: Add clears the value from Removed and
// records it in Added, Delete does the reverse, and repeated calls leave
// a single entry (maps are naturally idempotent).
type SetView[E comparable] struct {
	m      map[E]struct{}
	record *ChangeRecord
}

func newSetView[E comparable](m map[E]struct{}, record *ChangeRecord) *SetView[E] {
	return &SetView[E]{m: m, record: record}
}

func (s *SetView[E]) Has(v E) bool {
	_, ok := s.m[v]
	return ok
}

func (s *SetView[E]) Add(v E) {
	s.m[v] = struct{}{}
	delete(s.record.Removed, v)
	s.record.Added[v] = struct{}{}
}

func (s *SetView[E]) Delete(v E) {
	delete(s.m, v)
	delete(s.record.Added, v)
	s.record.Removed[v] = struct{}{}
}

// SetField returns the memoized SetView for a composite set field.
func SetField[T any, E comparable](o *Observed[T], name string, m map[E]struct{}) *SetView[E] {
	if cached, ok := o.cachedChild(name); ok {
		return cached.(*SetView[E])
	}
	record := o.nestedRecord(name)
	if record == nil {
		record = newChangeRecord(KindSet)
	}
	view := newSetView(m, record)
	o.cacheChild(name, view, record)
	return view
}

// MapView wraps a map[K]V field, recording assignments and DeleteValue
// deletions the same way ObjectView does for string keys, but for any
// comparable key type (spec.md §3's "Map" leaf shape).
type MapView[K comparable, V any] struct {
	m      map[K]V
	record *ChangeRecord
}

func newMapView[K comparable, V any](m map[K]V, record *ChangeRecord) *MapView[K, V] {
	return &MapView[K, V]{m: m, record: record}
}

func (mv *MapView[K, V]) Get(k K) (V, bool) {
	v, ok := mv.m[k]
	return v, ok
}

func (mv *MapView[K, V]) Set(k K, v V) {
	mv.m[k] = v
	mv.record.Entries[k] = v
}

func (mv *MapView[K, V]) Delete(k K) {
	delete(mv.m, k)
	mv.record.Entries[k] = DeleteValue
}

// MapField returns the memoized MapView for a composite map field.
func MapField[T any, K comparable, V any](o *Observed[T], name string, m map[K]V) *MapView[K, V] {
	if cached, ok := o.cachedChild(name); ok {
		return cached.(*MapView[K, V])
	}
	record := o.nestedRecord(name)
	if record == nil {
		record = newChangeRecord(KindMap)
	}
	view := newMapView(m, record)
	o.cacheChild(name, view, record)
	return view
}

// ObservedRegistry memoizes Observed wrappers per component pointer, so
// repeated calls to World.GetObservedComponent for the same component
// instance return the same wrapper and change record.
type ObservedRegistry struct {
	entries map[any]observedEntry
}

type observedEntry struct {
	record *ChangeRecord
	clear  func()
}

// NewObservedRegistry creates an empty registry.
func NewObservedRegistry() *ObservedRegistry {
	return &ObservedRegistry{entries: make(map[any]observedEntry)}
}

// Observe returns the memoized Observed[T] wrapper for ptr, constructing
// one on first access.
func Observe[T any](r *ObservedRegistry, ptr *T) *Observed[T] {
	if entry, ok := r.entries[ptr]; ok {
		if wrapper, ok := entry.record.owner.(*Observed[T]); ok {
			return wrapper
		}
	}
	o := newObserved(ptr)
	o.record.owner = o
	r.entries[ptr] = observedEntry{record: o.record, clear: o.record.clear}
	return o
}

// IsChanged reports whether the memoized record for ptr (any component
// pointer previously passed to Observe) is non-empty.
func (r *ObservedRegistry) IsChanged(ptr any) bool {
	entry, ok := r.entries[ptr]
	if !ok {
		return false
	}
	return !entry.record.IsEmpty()
}

// Forget drops the memoized wrapper for ptr, e.g. when its component is
// released back to its pool.
func (r *ObservedRegistry) Forget(ptr any) {
	delete(r.entries, ptr)
}

func (r *ObservedRegistry) clearAll() {
	for _, e := range r.entries {
		e.clear()
	}
}

// patchPath walks a dotted field path ("Outer.Inner", starting at the
// pointed-to struct's own fields) on a struct pointer and writes value
// at the leaf, per spec.md §4.4.6. Only
// struct-field segments are supported; arrays/maps/sets are reached
// through the typed helpers above, not through Patch's dotted path.
func patchPath(ptr any, path string, value any) bool {
	rv := reflect.ValueOf(ptr)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return false
	}
	rv = rv.Elem()

	segments := strings.Split(path, ".")
	for i, seg := range segments {
		if rv.Kind() != reflect.Struct {
			return false
		}
		fv := rv.FieldByName(seg)
		if !fv.IsValid() {
			return false
		}
		if i == len(segments)-1 {
			if !fv.CanSet() {
				return false
			}
			fv.Set(reflect.ValueOf(value))
			return true
		}
		rv = fv
	}
	return false
}
