package ecs_test

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/amiani/javelin/ecs"
)

// RegisterComponent's optional reset hook runs when a slot is freed at the
// storage layer (Archetype.Delete via DetachImmediate), independently of
// whatever the schema's own pool does with the instance.
func TestComponentStorageResetHookRunsOnSlotFree(t *testing.T) {
	w := ecs.NewWorld()
	resetCalls := 0
	ecs.RegisterComponent[Inventory](w.Registry(), func(inv *Inventory) {
		resetCalls++
		inv.Items = inv.Items[:0]
	})

	e := w.Create()
	w.AttachImmediate(e, &Inventory{Items: []string{"sword", "shield"}})

	err := w.DetachImmediate(e, reflect.TypeOf(Inventory{}))
	assert.NoError(t, err)
	assert.Equal(t, 1, resetCalls)
}

// Without a reset hook, a freed slot is left at T's zero value, matching
// the teacher's unconditional zeroing.
func TestComponentStorageDefaultsToZeroValueOnSlotFree(t *testing.T) {
	w := ecs.NewWorld()
	ecs.RegisterComponent[Position](w.Registry())

	e := w.Create()
	w.AttachImmediate(e, &Position{X: 4, Y: 4})
	slot, getErr := ecs.Get[Position](w, e)
	assert.NoError(t, getErr)

	err := w.DetachImmediate(e, reflect.TypeOf(Position{}))
	assert.NoError(t, err)
	assert.Equal(t, Position{}, *slot)
}
