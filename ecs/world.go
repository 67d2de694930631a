package ecs

import (
	"fmt"
	"reflect"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/amiani/javelin/ecs/internal/elog"
)

// stateKey identifies one component's lifecycle state: which entity it
// belongs to and which schema it is.
type stateKey struct {
	entity EntityId
	typeId TypeId
}

// World is the transactional coordinator: it owns entity identity,
// mediates every structural change through the deferred op queue,
// drives the system pipeline once per step, and tracks each live
// component's lifecycle state. See archetype.go/storage.go for the
// physical storage it sits on top of. A World is not safe for concurrent
// use: it has no internal locking and expects a single executor to call
// Step and the structural API.
type World struct {
	id uuid.UUID

	registry *ComponentRegistry
	schemas  *SchemaRegistry
	storage  *Storage
	observed *ObservedRegistry
	systems  *SystemPipeline
	topics   *TopicRegistry

	opPool *OpPool
	ops    *OpQueue

	counter EntityId

	states map[stateKey]ComponentState

	// attachingList collects (entity, typeId) pairs flagged Attaching
	// during THIS apply pass; pendingPromotion holds the pairs flagged
	// during the PREVIOUS apply pass, promoted to Attached at the start
	// of this maintain. The one-pass lag is what makes the first-step
	// double maintain (applyDeferredOps called twice) necessary for a
	// component attached before the very first step to already read
	// Attached by the time systems run (spec.md §9/§4.4.5).
	attachingList    []stateKey
	pendingPromotion []stateKey

	finalizeDetach  map[EntityId][]TypeId
	finalizeDestroy map[EntityId]bool

	destroyedPending map[EntityId]bool

	applyingOps bool
	firstStep   bool

	latestStep     uint64
	latestStepData any
	latestSystem   SystemId

	log zerolog.Logger
}

// WorldOption configures a World at construction time.
type WorldOption func(*World)

// WithLogger installs a logger other than the package-wide default.
func WithLogger(logger zerolog.Logger) WorldOption {
	return func(w *World) { w.log = logger }
}

// WithWorldConfig applies pool sizing and logging from cfg: op-pool
// capacity, the default capacity newly discovered component schemas get,
// and the ambient logger's level/format. The logger is process-wide
// (elog.Logger), the same singleton-reconfigured-by-owner pattern
// cuemby-warren's pkg/log uses, so the last WithWorldConfig applied wins
// for every world sharing the process.
func WithWorldConfig(cfg Config) WorldOption {
	return func(w *World) {
		w.opPool = NewOpPool(cfg.Pools.OpCapacity)
		w.ops = NewOpQueue(w.opPool)
		w.schemas.SetDefaultCapacity(cfg.Pools.DefaultComponentCapacity)

		level := elog.InfoLevel
		switch cfg.Logger.Level {
		case "debug":
			level = elog.DebugLevel
		case "warn":
			level = elog.WarnLevel
		case "error":
			level = elog.ErrorLevel
		}
		elog.Init(elog.Config{Level: level, JSONOutput: cfg.Logger.JSON})
		w.log = elog.Logger
	}
}

// NewWorld constructs an empty world, ready for its first Create/Attach
// calls and its first Step.
func NewWorld(opts ...WorldOption) *World {
	w := &World{
		id:               uuid.New(),
		registry:         NewComponentRegistry(),
		schemas:          NewSchemaRegistry(),
		observed:         NewObservedRegistry(),
		systems:          NewSystemPipeline(),
		topics:           NewTopicRegistry(),
		opPool:           NewOpPool(defaultPoolCapacity),
		states:           make(map[stateKey]ComponentState),
		finalizeDetach:   make(map[EntityId][]TypeId),
		finalizeDestroy:  make(map[EntityId]bool),
		destroyedPending: make(map[EntityId]bool),
		firstStep:        true,
		log:              elog.Logger,
	}
	w.storage = NewStorage(w.registry, w.schemas)
	w.ops = NewOpQueue(w.opPool)

	for _, opt := range opts {
		opt(w)
	}
	w.log = w.log.With().Str("world_id", w.id.String()).Logger()
	return w
}

// Storage exposes the backing storage facade, e.g. for constructing a
// View or Query over this world's data.
func (w *World) Storage() *Storage { return w.storage }

// Schemas exposes the schema registry, e.g. for RegisterSchema calls
// made before the world's first step.
func (w *World) Schemas() *SchemaRegistry { return w.schemas }

// Registry exposes the component storage registry, for RegisterComponent
// calls made before any archetype using that component is created.
func (w *World) Registry() *ComponentRegistry { return w.registry }

// Systems exposes the system pipeline, for Register/Remove calls.
func (w *World) Systems() *SystemPipeline { return w.systems }

// Topics exposes the topic registry, for Register calls.
func (w *World) Topics() *TopicRegistry { return w.topics }

// Id returns the world's identity, assigned at construction and used to
// tag its logger. WorldRegistry.Register keys worlds by an id of its own,
// not by this one.
func (w *World) Id() uuid.UUID { return w.id }

// LatestStep returns the step counter's current value.
func (w *World) LatestStep() uint64 { return w.latestStep }

// LatestStepData returns the data argument passed to the most recent Step.
func (w *World) LatestStepData() any { return w.latestStepData }

// LatestSystem returns the id of the system currently (or most recently)
// executing, for diagnostics.
func (w *World) LatestSystem() SystemId { return w.latestSystem }

// PendingOps returns the number of ops currently queued, awaiting the
// next Step's drain.
func (w *World) PendingOps() int { return w.ops.Len() }

// ---- 4.4.1 Entity allocation ----

// Create allocates a new entity id and, if components is non-empty,
// enqueues an Attach op carrying them. The id is valid and returned
// immediately; the components themselves aren't visible in storage until
// the next Step applies the op.
func (w *World) Create(components ...any) EntityId {
	id := w.counter
	w.counter++
	if len(components) > 0 {
		w.flagAttaching(id, components)
		w.ops.EnqueueAttach(id, components)
	}
	return id
}

// ---- 4.4.2 Structural API ----

// Attach enqueues an Attach op for entity, flagging each component
// Attaching immediately so out-of-band observation (e.g. State) reflects
// the pending arrival even before the op applies.
func (w *World) Attach(entity EntityId, components ...any) {
	w.flagAttaching(entity, components)
	w.ops.EnqueueAttach(entity, components)
}

// Detach enqueues a Detach op for entity. items may be component
// instances, reflect.Types, or TypeIds; each is resolved to a TypeId.
// Matching components already present in storage are flagged Detaching
// immediately.
func (w *World) Detach(entity EntityId, items ...any) {
	ids := w.resolveTypeIds(items)
	w.flagDetaching(entity, ids)
	w.ops.EnqueueDetach(entity, ids)
}

// Destroy enqueues a Destroy op for entity. Idempotent within a step: a
// second call before the pending Destroy applies is a silent no-op
// (spec.md P5).
func (w *World) Destroy(entity EntityId) {
	if w.destroyedPending[entity] {
		return
	}
	w.destroyedPending[entity] = true
	w.flagAllDetaching(entity)
	w.ops.EnqueueDestroy(entity)
}

// AttachImmediate bypasses the deferred queue, inserting components into
// storage now and marking them Attached directly. Intended for setup
// code running before any step, or advanced callers who accept
// reentrancy with an in-flight op application.
func (w *World) AttachImmediate(entity EntityId, components ...any) {
	w.storage.AttachComponents(entity, components)
	for _, c := range components {
		id := w.schemas.TypeIdOf(componentType(c))
		w.states[stateKey{entity, id}] = Attached
	}
}

// DetachImmediate bypasses the deferred queue, removing the resolved
// components now and releasing them to their pools. Unlike the deferred
// Detach, this is strict: it returns ErrNotFound if entity doesn't carry
// one of the named components (spec.md §9's documented discrepancy).
func (w *World) DetachImmediate(entity EntityId, items ...any) error {
	ids := w.resolveTypeIds(items)
	for _, id := range ids {
		if !w.storage.HasComponentOfSchema(entity, id) {
			return fmt.Errorf("%w: entity %d has no component of type %d", ErrNotFound, entity, id)
		}
	}

	w.releaseComponents(entity, ids)
	w.storage.DetachBySchemaId(entity, ids)
	for _, id := range ids {
		delete(w.states, stateKey{entity, id})
	}
	return nil
}

// DestroyImmediate bypasses the deferred queue, releasing every
// component entity carries and removing it from storage now.
func (w *World) DestroyImmediate(entity EntityId) {
	ids := w.entityTypeIds(entity)
	w.releaseComponents(entity, ids)
	w.storage.Destroy(entity)
	for _, id := range ids {
		delete(w.states, stateKey{entity, id})
	}
	delete(w.destroyedPending, entity)
}

func (w *World) flagAttaching(entity EntityId, components []any) {
	for _, c := range components {
		id := w.schemas.TypeIdOf(componentType(c))
		w.states[stateKey{entity, id}] = Attaching
	}
}

func (w *World) flagDetaching(entity EntityId, typeIds []TypeId) {
	for _, id := range typeIds {
		if !w.storage.HasComponentOfSchema(entity, id) {
			continue
		}
		w.states[stateKey{entity, id}] = Detaching
	}
}

func (w *World) flagAllDetaching(entity EntityId) {
	for _, id := range w.entityTypeIds(entity) {
		w.states[stateKey{entity, id}] = Detaching
	}
}

func (w *World) entityTypeIds(entity EntityId) []TypeId {
	comps := w.storage.GetEntityComponents(entity)
	ids := make([]TypeId, 0, len(comps))
	for _, c := range comps {
		ids = append(ids, w.schemas.TypeIdOf(componentType(c)))
	}
	return ids
}

// resolveTypeIds accepts component instances, reflect.Types, or TypeIds
// interchangeably, per spec.md §4.4.2's "items may be component
// instances, schema references, or raw type ids."
func (w *World) resolveTypeIds(items []any) []TypeId {
	ids := make([]TypeId, 0, len(items))
	for _, item := range items {
		switch v := item.(type) {
		case TypeId:
			ids = append(ids, v)
		case reflect.Type:
			ids = append(ids, w.schemas.TypeIdOf(v))
		default:
			ids = append(ids, w.schemas.TypeIdOf(componentType(v)))
		}
	}
	return ids
}

// releaseComponents looks up each of entity's named components, forgets
// any memoized Observed wrapper over it, and releases it back to its
// schema pool.
func (w *World) releaseComponents(entity EntityId, ids []TypeId) {
	for _, id := range ids {
		entry := w.schemas.entryById(id)
		if entry == nil {
			continue
		}
		comp := w.storage.FindComponentByTypeId(entity, id)
		if comp == nil {
			continue
		}
		w.observed.Forget(comp)
		entry.pool.releaseAny(comp)
	}
}

// ---- 4.4.3 Op application ----

func (w *World) applyDeferredOps() {
	w.applyingOps = true
	defer func() { w.applyingOps = false }()

	ops := w.ops.Drain()
	for _, op := range ops {
		switch op.Kind {
		case OpSpawn, OpAttach:
			w.applyAttach(op)
		case OpDetach:
			w.applyDetach(op)
		case OpDestroy:
			w.applyDestroy(op)
		}
		w.ops.Release(op)
	}
	w.maintain()
}

func (w *World) applyAttach(op *Op) {
	if w.storage.Exists(op.Entity) {
		w.storage.AttachComponents(op.Entity, op.Components)
	} else {
		w.storage.Create(op.Entity, op.Components)
	}
	for _, c := range op.Components {
		id := w.schemas.TypeIdOf(componentType(c))
		key := stateKey{op.Entity, id}
		w.states[key] = Attaching
		w.attachingList = append(w.attachingList, key)
	}
}

func (w *World) applyDetach(op *Op) {
	var toFinalize []TypeId
	for _, id := range op.TypeIds {
		if !w.storage.HasComponentOfSchema(op.Entity, id) {
			continue
		}
		w.states[stateKey{op.Entity, id}] = Detached
		toFinalize = append(toFinalize, id)
	}
	if len(toFinalize) > 0 {
		w.finalizeDetach[op.Entity] = append(w.finalizeDetach[op.Entity], toFinalize...)
	}
}

func (w *World) applyDestroy(op *Op) {
	for _, id := range w.entityTypeIds(op.Entity) {
		w.states[stateKey{op.Entity, id}] = Detached
	}
	w.finalizeDestroy[op.Entity] = true
}

// maintain promotes Attaching components queued up during the PREVIOUS
// apply pass to Attached, finalizes pending detaches and destroys
// recorded during THIS apply pass, and rotates the attaching lists.
func (w *World) maintain() {
	for _, key := range w.pendingPromotion {
		if w.states[key] == Attaching {
			w.states[key] = Attached
		}
	}
	w.pendingPromotion = w.attachingList
	w.attachingList = nil

	for entity, ids := range w.finalizeDetach {
		w.releaseComponents(entity, ids)
		w.storage.DetachBySchemaId(entity, ids)
		for _, id := range ids {
			delete(w.states, stateKey{entity, id})
		}
		delete(w.finalizeDetach, entity)
	}

	for entity := range w.finalizeDestroy {
		ids := w.entityTypeIds(entity)
		w.releaseComponents(entity, ids)
		w.storage.Destroy(entity)
		for _, id := range ids {
			delete(w.states, stateKey{entity, id})
		}
		delete(w.finalizeDestroy, entity)
	}
}

// ---- 4.4.4 Externally supplied op batches ----

// ApplyOps enqueues a batch of externally produced ops (e.g. replicated
// from another process), pre-flagging their components the same way the
// structural API does before the ops flow through the standard apply
// path at the next Step. Returns ErrInvalidState if called reentrantly
// from within an in-flight op application (spec.md §5 Reentrancy).
func (w *World) ApplyOps(ops []Op) error {
	if w.applyingOps {
		return fmt.Errorf("%w: ApplyOps called reentrantly", ErrInvalidState)
	}
	w.applyingOps = true
	defer func() { w.applyingOps = false }()

	for _, op := range ops {
		switch op.Kind {
		case OpSpawn, OpAttach:
			w.flagAttaching(op.Entity, op.Components)
		case OpDetach:
			w.flagDetaching(op.Entity, op.TypeIds)
		case OpDestroy:
			w.flagAllDetaching(op.Entity)
		}
		w.ops.enqueueForeign(op)
	}
	return nil
}

// ---- 4.4.5 Step loop ----

// Step runs one full world tick: drains and applies deferred ops, flushes
// topics, executes every registered system in order (passing data
// through LatestStepData), then advances the step counter. On the very
// first call, op application runs twice so that ops enqueued before the
// first Step take effect before the first system runs (spec.md §4.4.5 /
// §9).
func (w *World) Step(data any) {
	w.latestStepData = data

	if w.firstStep {
		w.applyDeferredOps()
		w.firstStep = false
	}
	w.applyDeferredOps()

	w.topics.FlushAll()

	for _, rs := range w.systems.systems {
		w.latestSystem = rs.id
		rs.system.Execute(w)
	}

	w.destroyedPending = make(map[EntityId]bool)
	w.latestStep++
}

// ---- 4.4.6 Reads ----

// Get returns entity's component of type T, registering the schema if
// it's new. Returns ErrNotFound if entity doesn't carry one.
func Get[T any](w *World, entity EntityId) (*T, error) {
	t := reflect.TypeFor[T]()
	w.schemas.ensureRegistered(t)
	comp := w.storage.FindComponent(entity, t)
	if comp == nil {
		return nil, fmt.Errorf("%w: entity %d has no component %s", ErrNotFound, entity, t)
	}
	return comp.(*T), nil
}

// TryGet returns entity's component of type T, or nil if absent.
func TryGet[T any](w *World, entity EntityId) *T {
	t := reflect.TypeFor[T]()
	w.schemas.ensureRegistered(t)
	comp := w.storage.FindComponent(entity, t)
	if comp == nil {
		return nil
	}
	return comp.(*T)
}

// Has reports whether entity carries a component of type T.
func Has[T any](w *World, entity EntityId) bool {
	return TryGet[T](w, entity) != nil
}

// State returns the lifecycle state of entity's component of schema id,
// and whether any state has been recorded for that pair at all.
func (w *World) State(entity EntityId, id TypeId) (ComponentState, bool) {
	s, ok := w.states[stateKey{entity, id}]
	return s, ok
}

// GetObservedComponent returns the memoized Observed wrapper for
// component, constructing one on first access.
func GetObservedComponent[T any](w *World, component *T) *Observed[T] {
	return Observe(w.observed, component)
}

// IsComponentChanged reports whether component's change record (if any
// Observed wrapper has ever been constructed over it) is non-empty.
func (w *World) IsComponentChanged(component any) bool {
	return w.observed.IsChanged(component)
}

// Patch applies a scalar write at a dotted struct-field path on entity's
// component of schema id. The path starts at the component's own fields,
// not its type name, e.g. Patch(e, posId, "X", 3.0) for a top-level
// Position.X, or Patch(e, innerId, "Outer.Inner", v) for a nested struct
// field. Reports whether the path resolved to a settable field.
func (w *World) Patch(entity EntityId, id TypeId, path string, value any) bool {
	comp := w.storage.FindComponentByTypeId(entity, id)
	if comp == nil {
		return false
	}
	if !patchPath(comp, path, value) {
		return false
	}
	if entry, ok := w.observed.entries[comp]; ok {
		entry.record.Fields[path] = value
	}
	return true
}

// ---- 4.4.7 Snapshot & reset ----

// GetSnapshot returns an opaque snapshot of the current storage
// (see Storage.GetSnapshot for what it does and does not copy).
func (w *World) GetSnapshot() *Snapshot {
	return w.storage.GetSnapshot()
}

// Reset clears systems, topics, and the destroyed-pending set; releases
// every live component to its pool; resets the entity
// counter and storage. Fails with ErrInvalidState if ops are pending or
// being drained (spec.md I5/§4.4.7).
func (w *World) Reset() error {
	if w.applyingOps {
		return fmt.Errorf("%w: Reset called during op application", ErrInvalidState)
	}
	if w.ops.Len() > 0 {
		return fmt.Errorf("%w: Reset called with ops pending", ErrInvalidState)
	}

	w.storage.forEachComponent(func(t reflect.Type, comp any) {
		if entry := w.schemas.lookup(t); entry != nil {
			w.observed.Forget(comp)
			entry.pool.releaseAny(comp)
		}
	})

	w.storage.Reset()
	w.systems = NewSystemPipeline()
	w.topics = NewTopicRegistry()
	w.observed = NewObservedRegistry()
	w.states = make(map[stateKey]ComponentState)
	w.attachingList = nil
	w.pendingPromotion = nil
	w.finalizeDetach = make(map[EntityId][]TypeId)
	w.finalizeDestroy = make(map[EntityId]bool)
	w.destroyedPending = make(map[EntityId]bool)
	w.counter = 0
	w.latestStep = 0
	w.firstStep = true
	return nil
}
