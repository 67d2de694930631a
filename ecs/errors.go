package ecs

import "errors"

// Sentinel errors returned by the world's public API. Callers should
// compare with errors.Is rather than type assertion, since methods may
// wrap these with additional context.
var (
	// ErrNotFound is returned by Get for a missing component, and by
	// DetachImmediate for a component that isn't present on the entity.
	ErrNotFound = errors.New("ecs: not found")

	// ErrDuplicate is returned when registering a schema whose Go type
	// is already registered (TypeIds are assigned by the registry).
	ErrDuplicate = errors.New("ecs: duplicate schema")

	// ErrInvalidState is returned by Reset when called while ops are
	// being drained, and by ApplyOps when called re-entrantly from
	// within an in-flight op application.
	ErrInvalidState = errors.New("ecs: invalid state")
)
