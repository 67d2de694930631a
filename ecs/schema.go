package ecs

import (
	"fmt"
	"reflect"
)

// TypeId is a dense integer identifier chosen at schema registration,
// stable for the lifetime of the SchemaRegistry that issued it.
type TypeId int

// schemaEntry is the registry's bookkeeping record for one Go type.
type schemaEntry struct {
	typeId TypeId
	typ    reflect.Type
	pool   iComponentPool
}

// SchemaRegistry assigns TypeIds to component Go types and owns each
// type's ComponentPool. A World owns exactly one SchemaRegistry.
type SchemaRegistry struct {
	next            TypeId
	byType          map[reflect.Type]*schemaEntry
	byId            []*schemaEntry
	defaultCapacity int
}

// NewSchemaRegistry creates an empty registry. Schemas registered lazily
// (ensureRegistered, e.g. via World.Get's implicit registration) get
// defaultPoolCapacity unless SetDefaultCapacity overrides it; schemas
// registered explicitly via RegisterSchema[T] always take WithPoolCapacity
// or this same default.
func NewSchemaRegistry() *SchemaRegistry {
	return &SchemaRegistry{
		byType:          make(map[reflect.Type]*schemaEntry),
		defaultCapacity: defaultPoolCapacity,
	}
}

// SetDefaultCapacity overrides the capacity newly discovered schemas get,
// per Config.Pools.DefaultComponentCapacity (see WithWorldConfig). Only
// affects schemas registered after the call.
func (r *SchemaRegistry) SetDefaultCapacity(capacity int) {
	if capacity > 0 {
		r.defaultCapacity = capacity
	}
}

// schemaConfig collects RegisterSchema's functional options.
type schemaConfig[T any] struct {
	capacity int
	reset    func(*T)
	init     func(*T, ...any)
}

// SchemaOption configures a schema at registration time.
type SchemaOption[T any] func(*schemaConfig[T])

// WithPoolCapacity overrides the schema's pool capacity (default: the
// registry's default capacity, 1000 unless SetDefaultCapacity changed it).
func WithPoolCapacity[T any](capacity int) SchemaOption[T] {
	return func(c *schemaConfig[T]) { c.capacity = capacity }
}

// WithReset installs a reset hook invoked on every Release, for
// components whose zero value isn't a faithful "cleared" state (e.g.
// components holding slices or maps that should be truncated rather
// than replaced).
func WithReset[T any](fn func(*T)) SchemaOption[T] {
	return func(c *schemaConfig[T]) { c.reset = fn }
}

// WithInitialize installs an Initialize hook on the schema, run by
// Schema[T].New against a freshly retained instance plus whatever
// construction args the caller passes, for components that need more
// than field assignment to reach a valid state (e.g. deriving one field
// from another, or validating args before writing them in).
func WithInitialize[T any](fn func(*T, ...any)) SchemaOption[T] {
	return func(c *schemaConfig[T]) { c.init = fn }
}

// Schema is the handle RegisterSchema hands back: the assigned TypeId
// plus the Initialize hook installed via WithInitialize, if any.
type Schema[T any] struct {
	id   TypeId
	init func(*T, ...any)
}

// TypeId returns the schema's assigned type id.
func (s Schema[T]) TypeId() TypeId { return s.id }

// Initialize runs the WithInitialize hook over inst with args, if one was
// installed; otherwise it's a no-op.
func (s Schema[T]) Initialize(inst *T, args ...any) {
	if s.init != nil {
		s.init(inst, args...)
	}
}

// New retains an instance from pool and runs Initialize over it before
// returning it, combining PoolFor's retain step with construction-time
// setup in one call.
func (s Schema[T]) New(pool *ComponentPool[T], args ...any) *T {
	inst := pool.Retain()
	s.Initialize(inst, args...)
	return inst
}

// RegisterSchema registers T as a component schema, assigning it a new
// TypeId and constructing its ComponentPool. Returns ErrDuplicate if T
// is already registered.
func RegisterSchema[T any](r *SchemaRegistry, opts ...SchemaOption[T]) (Schema[T], error) {
	t := reflect.TypeOf((*T)(nil)).Elem()
	if _, exists := r.byType[t]; exists {
		return Schema[T]{}, fmt.Errorf("%w: %s", ErrDuplicate, t.String())
	}

	cfg := schemaConfig[T]{capacity: r.defaultCapacity}
	for _, opt := range opts {
		opt(&cfg)
	}

	id := r.next
	r.next++

	entry := &schemaEntry{
		typeId: id,
		typ:    t,
		pool:   NewComponentPool[T](cfg.capacity, cfg.reset),
	}
	r.byType[t] = entry
	r.byId = append(r.byId, entry)
	return Schema[T]{id: id, init: cfg.init}, nil
}

// ensureRegistered returns the entry for t, lazily registering it with
// default settings (r.defaultCapacity, no reset hook) if it is unseen.
// This backs World.Get's "registers the schema if new" behavior (spec.md
// §4.4.6) — unlike RegisterSchema, this path never returns ErrDuplicate.
func (r *SchemaRegistry) ensureRegistered(t reflect.Type) *schemaEntry {
	if entry, ok := r.byType[t]; ok {
		return entry
	}

	id := r.next
	r.next++
	entry := &schemaEntry{
		typeId: id,
		typ:    t,
		pool:   newUntypedPool(t, r.defaultCapacity),
	}
	r.byType[t] = entry
	r.byId = append(r.byId, entry)
	return entry
}

// TypeIdOf returns the TypeId for a registered Go type, registering it
// with defaults if it hasn't been seen yet.
func (r *SchemaRegistry) TypeIdOf(t reflect.Type) TypeId {
	return r.ensureRegistered(t).typeId
}

// lookup returns the registered entry for t, or nil if unregistered.
func (r *SchemaRegistry) lookup(t reflect.Type) *schemaEntry {
	return r.byType[t]
}

// PoolFor returns the ComponentPool[T] backing T's schema, registering it
// with defaults if unseen. Callers that want pooled allocation retain an
// instance here, populate it, and hand it to World.Attach/Create; the
// world releases it back to this same pool on Detach/Destroy (see
// World.releaseComponents). Returns nil if T was registered via
// ensureRegistered's reflect-based path rather than RegisterSchema[T]
// (e.g. only ever seen through World.Get[T]), since that path builds an
// untyped reflectPool instead. An unseen T is registered through that
// same path here, so PoolFor returns nil for it as well.
func PoolFor[T any](r *SchemaRegistry) *ComponentPool[T] {
	t := reflect.TypeOf((*T)(nil)).Elem()
	entry := r.ensureRegistered(t)
	pool, ok := entry.pool.(*ComponentPool[T])
	if !ok {
		return nil
	}
	return pool
}

// entryById returns the entry for a given TypeId, or nil if out of range.
func (r *SchemaRegistry) entryById(id TypeId) *schemaEntry {
	if int(id) < 0 || int(id) >= len(r.byId) {
		return nil
	}
	return r.byId[id]
}

// newUntypedPool builds an iComponentPool for a reflect.Type discovered
// at runtime (e.g. via World.Get[T] lazily registering T), using
// reflect.New instead of the generic `new(T)` path since T isn't known
// at compile time here.
func newUntypedPool(t reflect.Type, capacity int) iComponentPool {
	if capacity <= 0 {
		capacity = defaultPoolCapacity
	}
	return &reflectPool{typ: t, capacity: capacity}
}

// reflectPool is a reflect-based ComponentPool used for schemas that
// were registered implicitly (by type, not by RegisterSchema[T]).
type reflectPool struct {
	typ      reflect.Type
	free     []reflect.Value
	capacity int
}

func (p *reflectPool) retainAny() any {
	if n := len(p.free); n > 0 {
		v := p.free[n-1]
		p.free = p.free[:n-1]
		return v.Interface()
	}
	return reflect.New(p.typ).Interface()
}

func (p *reflectPool) releaseAny(v any) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Ptr {
		return
	}
	rv.Elem().Set(reflect.Zero(p.typ))
	if len(p.free) >= p.capacity {
		return
	}
	p.free = append(p.free, rv)
}
