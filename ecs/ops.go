package ecs

// OpKind tags which of the four deferred structural requests an Op
// carries (spec.md §3's "Deferred Op" tagged tuple).
type OpKind int

const (
	OpSpawn OpKind = iota
	OpAttach
	OpDetach
	OpDestroy
)

// Op is a single deferred structural request. Exactly the fields for
// its Kind are populated; this is a discriminated variant rather than
// a positional array, per spec.md §9's design note.
type Op struct {
	Kind       OpKind
	Entity     EntityId
	Components []any
	TypeIds    []TypeId
}

func (op *Op) reset() {
	op.Kind = OpSpawn
	op.Entity = 0
	op.Components = op.Components[:0]
	op.TypeIds = op.TypeIds[:0]
}

// OpPool is a bounded stack of reusable *Op values. Every op enqueued
// through OpQueue is retained from here and released back here after
// application — invariant I4 in spec.md §3: an op lives in the queue or
// in the pool's free list, never both, never neither.
type OpPool struct {
	free     []*Op
	capacity int
}

// NewOpPool creates a pool with the given capacity (default 1000, same
// default as a component pool).
func NewOpPool(capacity int) *OpPool {
	if capacity <= 0 {
		capacity = defaultPoolCapacity
	}
	return &OpPool{capacity: capacity}
}

func (p *OpPool) retain() *Op {
	if n := len(p.free); n > 0 {
		op := p.free[n-1]
		p.free[n-1] = nil
		p.free = p.free[:n-1]
		return op
	}
	return &Op{Components: make([]any, 0, 4), TypeIds: make([]TypeId, 0, 4)}
}

func (p *OpPool) release(op *Op) {
	op.reset()
	if len(p.free) >= p.capacity {
		return
	}
	p.free = append(p.free, op)
}

// Len returns the number of ops currently sitting in the free list.
func (p *OpPool) Len() int { return len(p.free) }

// OpQueue is a FIFO of pending ops with pool-backed allocation and O(1)
// enqueue. It is drained exactly once at the start of each step, in
// enqueue order (spec.md §4.3, invariant I6).
type OpQueue struct {
	pool  *OpPool
	items []*Op
}

// NewOpQueue creates an empty queue backed by pool.
func NewOpQueue(pool *OpPool) *OpQueue {
	return &OpQueue{pool: pool}
}

// Len returns the number of ops currently queued.
func (q *OpQueue) Len() int { return len(q.items) }

func (q *OpQueue) enqueue(kind OpKind, entity EntityId, components []any, typeIds []TypeId) {
	op := q.pool.retain()
	op.Kind = kind
	op.Entity = entity
	op.Components = append(op.Components, components...)
	op.TypeIds = append(op.TypeIds, typeIds...)
	q.items = append(q.items, op)
}

// EnqueueSpawn queues a Spawn op.
func (q *OpQueue) EnqueueSpawn(entity EntityId, components []any) {
	q.enqueue(OpSpawn, entity, components, nil)
}

// EnqueueAttach queues an Attach op.
func (q *OpQueue) EnqueueAttach(entity EntityId, components []any) {
	q.enqueue(OpAttach, entity, components, nil)
}

// EnqueueDetach queues a Detach op.
func (q *OpQueue) EnqueueDetach(entity EntityId, typeIds []TypeId) {
	q.enqueue(OpDetach, entity, nil, typeIds)
}

// EnqueueDestroy queues a Destroy op.
func (q *OpQueue) EnqueueDestroy(entity EntityId) {
	q.enqueue(OpDestroy, entity, nil, nil)
}

// enqueueForeign copies a foreign (externally supplied) op into a
// freshly retained pooled Op before enqueuing, so that Ops applied via
// ApplyOps participate in the same pool-conservation invariant as ops
// enqueued through the normal structural API (spec.md §9, Open
// Question: "the implementation must decide whether to copy foreign
// ops into pooled ops" — this module copies).
func (q *OpQueue) enqueueForeign(foreign Op) {
	q.enqueue(foreign.Kind, foreign.Entity, foreign.Components, foreign.TypeIds)
}

// Drain removes and returns every queued op, in enqueue order. The
// caller is responsible for releasing each op back to the pool (via
// Release) once it has been applied.
func (q *OpQueue) Drain() []*Op {
	drained := q.items
	q.items = nil
	return drained
}

// Release returns op to the pool after it has been applied.
func (q *OpQueue) Release(op *Op) {
	q.pool.release(op)
}
