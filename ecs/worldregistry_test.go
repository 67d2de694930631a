package ecs_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/amiani/javelin/ecs"
)

func TestWorldRegistryRegisterAndLookup(t *testing.T) {
	r := ecs.NewWorldRegistry()
	w := newTestWorld()

	id := r.Register(w)
	found, ok := r.Lookup(id)
	assert.True(t, ok)
	assert.Same(t, w, found)
	assert.Equal(t, 1, r.Len())
}

func TestWorldRegistryUnregister(t *testing.T) {
	r := ecs.NewWorldRegistry()
	w := newTestWorld()
	id := r.Register(w)

	r.Unregister(id)
	_, ok := r.Lookup(id)
	assert.False(t, ok)
	assert.Equal(t, 0, r.Len())
}

func TestWorldRegistryLookupMissingId(t *testing.T) {
	r := ecs.NewWorldRegistry()
	_, ok := r.Lookup(ecs.NewWorldRegistry().Register(newTestWorld()))
	assert.False(t, ok, "a fresh registry must not find an id registered in a different registry")
}
