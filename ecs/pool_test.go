package ecs_test

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/amiani/javelin/ecs"
)

// P3: a released instance is reused by the next Retain rather than
// allocating fresh, until the pool is exhausted.
func TestComponentPoolReusesReleasedInstances(t *testing.T) {
	pool := ecs.NewComponentPool[Position](2, nil)
	assert.Equal(t, 0, pool.Len())

	a := pool.Retain()
	a.X, a.Y = 1, 1
	pool.Release(a)
	assert.Equal(t, 1, pool.Len())

	b := pool.Retain()
	assert.Same(t, a, b, "Retain after Release should hand back the same instance")
	assert.Equal(t, Position{}, *b, "Release must reset the instance to its zero value")
	assert.Equal(t, 0, pool.Len())
}

// Releases beyond capacity are discarded, not an error.
func TestComponentPoolDiscardsOverCapacityReleases(t *testing.T) {
	pool := ecs.NewComponentPool[Position](1, nil)

	pool.Release(&Position{X: 1})
	assert.Equal(t, 1, pool.Len())

	pool.Release(&Position{X: 2})
	assert.Equal(t, 1, pool.Len(), "a release beyond capacity must be silently discarded")
}

// A custom reset hook runs on every Release instead of the zero-value
// default, for components whose cleared state isn't simply zero.
func TestComponentPoolCustomResetHook(t *testing.T) {
	resetCalls := 0
	pool := ecs.NewComponentPool[Inventory](4, func(inv *Inventory) {
		resetCalls++
		inv.Items = inv.Items[:0]
	})

	inst := pool.Retain()
	inst.Items = append(inst.Items, "sword", "shield")
	pool.Release(inst)

	assert.Equal(t, 1, resetCalls)
	assert.Equal(t, 0, len(inst.Items))
}

func TestComponentPoolRetainConstructsFreshWhenEmpty(t *testing.T) {
	pool := ecs.NewComponentPool[Position](4, nil)
	a := pool.Retain()
	b := pool.Retain()
	assert.NotSame(t, a, b)
}

// P3: a component retained from its schema pool, attached, then
// detached, comes back to the same pool for the next retain — the
// world's Detach/Destroy path releases into the schema pool a caller
// can keep drawing from.
func TestSchemaPoolRoundTripsThroughAttachAndDetach(t *testing.T) {
	w := newTestWorld()
	_, err := ecs.RegisterSchema[Position](w.Schemas())
	assert.NoError(t, err)

	pool := ecs.PoolFor[Position](w.Schemas())
	assert.NotNil(t, pool)

	inst := pool.Retain()
	inst.X, inst.Y = 7, 8
	e := w.Create()
	w.Attach(e, inst)
	w.Step(nil)

	got, getErr := ecs.Get[Position](w, e)
	assert.NoError(t, getErr)
	assert.Equal(t, 7.0, got.X)

	assert.Equal(t, 0, pool.Len(), "the retained instance is in storage, not sitting free")

	w.Detach(e, reflect.TypeOf(Position{}))
	w.Step(nil)

	assert.Equal(t, 1, pool.Len(), "detach must release the instance back to its schema pool")
}
