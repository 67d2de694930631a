package ecs

// ComponentState is one of the four states in a component's lifecycle,
// per spec.md §3/§4: Attaching -> Attached, or Detaching -> Detached.
type ComponentState uint8

const (
	// Attaching is set when a Spawn/Attach op carrying the component is
	// enqueued, and when an externally supplied op batch is applied.
	Attaching ComponentState = iota
	// Attached is set after the next maintain following Attaching.
	Attached
	// Detaching is set when a Detach/Destroy op carrying the component
	// is enqueued; the component is still present in storage.
	Detaching
	// Detached is set when the op is applied; the component remains in
	// storage for the rest of the op-application phase, then is
	// physically removed and released to its pool.
	Detached
)

func (s ComponentState) String() string {
	switch s {
	case Attaching:
		return "Attaching"
	case Attached:
		return "Attached"
	case Detaching:
		return "Detaching"
	case Detached:
		return "Detached"
	default:
		return "Unknown"
	}
}

const defaultPoolCapacity = 1000

// iComponentPool is the type-erased face of ComponentPool[T], letting a
// SchemaRegistry keep one pool per Go type behind a single map.
type iComponentPool interface {
	retainAny() any
	releaseAny(any)
}

// ComponentPool is a bounded stack (LIFO free list) of reusable *T
// instances for one schema. Retaining pops a reset instance off the
// free list (or constructs one if the list is empty); releasing runs
// the schema's reset hook and pushes the instance back unless the pool
// is already at capacity, in which case the instance is discarded.
//
// Grounded on componentstorage.go's genericComponentStorage[T]
// free-slot list, generalized from "index into a block array" to
// "bounded stack of whole instances," since a schema pool reclaims
// entire components rather than storage slots.
type ComponentPool[T any] struct {
	free     []*T
	capacity int
	reset    func(*T)
}

// NewComponentPool creates a pool with the given capacity. reset may be
// nil, in which case released instances are left at their zero value.
func NewComponentPool[T any](capacity int, reset func(*T)) *ComponentPool[T] {
	if capacity <= 0 {
		capacity = defaultPoolCapacity
	}
	return &ComponentPool[T]{
		capacity: capacity,
		reset:    reset,
	}
}

// Retain pops a free instance (constructing a fresh one if the pool is
// empty). The returned instance is already reset.
func (p *ComponentPool[T]) Retain() *T {
	if n := len(p.free); n > 0 {
		inst := p.free[n-1]
		p.free[n-1] = nil
		p.free = p.free[:n-1]
		return inst
	}
	return new(T)
}

// Release resets fields via the schema's reset hook and pushes the
// instance back onto the free list, up to capacity. Over-capacity
// releases are silently discarded — not an error, per spec.md §7.
func (p *ComponentPool[T]) Release(inst *T) {
	if inst == nil {
		return
	}
	if p.reset != nil {
		p.reset(inst)
	} else {
		var zero T
		*inst = zero
	}
	if len(p.free) >= p.capacity {
		return
	}
	p.free = append(p.free, inst)
}

// Len returns the number of instances currently held in the free list.
func (p *ComponentPool[T]) Len() int { return len(p.free) }

// Capacity returns the pool's configured capacity.
func (p *ComponentPool[T]) Capacity() int { return p.capacity }

func (p *ComponentPool[T]) retainAny() any  { return p.Retain() }
func (p *ComponentPool[T]) releaseAny(v any) { p.Release(v.(*T)) }
