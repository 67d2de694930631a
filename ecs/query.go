package ecs

import "iter"

// Query wraps a View with caching: Execute snapshots the current match
// set once, and Iter/Values replay that snapshot without re-walking
// storage. Intended for a system that calls Execute once per step and
// then iterates the result any number of times.
type Query[T any] struct {
	view    *View[T]
	storage *Storage

	lastArchetypeCount int
	cachedEntities      []EntityId
	cachedComponents    []T
	cacheValid          bool
}

// NewQuery creates a new Query over storage.
func NewQuery[T any](storage *Storage) *Query[T] {
	return &Query[T]{
		view:               NewView[T](storage),
		storage:            storage,
		lastArchetypeCount: -1,
	}
}

// Execute (re)builds the entity/component snapshot for this step.
func (q *Query[T]) Execute() {
	q.cachedEntities = q.cachedEntities[:0]
	q.cachedComponents = q.cachedComponents[:0]

	for id, item := range q.view.Iter() {
		q.cachedEntities = append(q.cachedEntities, id)
		q.cachedComponents = append(q.cachedComponents, item)
	}

	q.lastArchetypeCount = len(q.storage.archetypes)
	q.cacheValid = true
}

// Iter returns an iterator over entity ids and component data from the
// most recent Execute. Panics if Execute has not been called yet.
func (q *Query[T]) Iter() iter.Seq2[EntityId, T] {
	if !q.cacheValid {
		panic("Query.Iter() called before Query.Execute()")
	}

	return func(yield func(EntityId, T) bool) {
		for i := range q.cachedEntities {
			if !yield(q.cachedEntities[i], q.cachedComponents[i]) {
				return
			}
		}
	}
}

// Values returns an iterator over component data only, from the most
// recent Execute.
func (q *Query[T]) Values() iter.Seq[T] {
	if !q.cacheValid {
		panic("Query.Values() called before Query.Execute()")
	}

	return func(yield func(T) bool) {
		for i := range q.cachedComponents {
			if !yield(q.cachedComponents[i]) {
				return
			}
		}
	}
}

// Len returns the number of matches from the most recent Execute.
func (q *Query[T]) Len() int { return len(q.cachedEntities) }
