package ecs_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/amiani/javelin/ecs"
)

type movable struct {
	Position *Position
	Velocity *Velocity
}

type namedMovable struct {
	Position *Position
	Name     *Name `ecs:"optional"`
}

func TestViewFillPopulatesRequiredFields(t *testing.T) {
	w := newTestWorld()
	e := w.Create(&Position{X: 1, Y: 2}, &Velocity{DX: 3, DY: 4})
	w.Step(nil)

	v := ecs.NewView[movable](w.Storage())
	var out movable
	assert.True(t, v.Fill(e, &out))
	assert.Equal(t, 1.0, out.Position.X)
	assert.Equal(t, 3.0, out.Velocity.DX)
}

func TestViewFillFailsWhenRequiredComponentMissing(t *testing.T) {
	w := newTestWorld()
	e := w.Create(&Position{X: 1, Y: 1})
	w.Step(nil)

	v := ecs.NewView[movable](w.Storage())
	var out movable
	assert.False(t, v.Fill(e, &out))
}

func TestViewOptionalFieldLeftNilWhenAbsent(t *testing.T) {
	w := newTestWorld()
	e := w.Create(&Position{X: 1, Y: 1})
	w.Step(nil)

	v := ecs.NewView[namedMovable](w.Storage())
	out := v.Get(e)
	assert.NotNil(t, out)
	assert.Nil(t, out.Name)
}

func TestViewIterYieldsEveryMatchingEntity(t *testing.T) {
	w := newTestWorld()
	a := w.Create(&Position{X: 1}, &Velocity{DX: 1})
	b := w.Create(&Position{X: 2}, &Velocity{DX: 2})
	w.Create(&Position{X: 3}) // no Velocity, should be excluded
	w.Step(nil)

	v := ecs.NewView[movable](w.Storage())
	seen := map[ecs.EntityId]float64{}
	for id, item := range v.Iter() {
		seen[id] = item.Position.X
	}

	assert.Equal(t, 2, len(seen))
	assert.Equal(t, 1.0, seen[a])
	assert.Equal(t, 2.0, seen[b])
}

func TestSpawnViewCreatesEntityFromStructFields(t *testing.T) {
	w := newTestWorld()
	v := ecs.NewView[movable](w.Storage())

	e := SpawnViewWith(w, v, movable{
		Position: &Position{X: 9, Y: 9},
		Velocity: &Velocity{DX: 1, DY: 1},
	})
	w.Step(nil)

	assert.True(t, ecs.Has[Position](w, e))
	assert.True(t, ecs.Has[Velocity](w, e))
}

// SpawnViewWith is a thin wrapper that fixes SpawnView's type parameter
// to movable for the test above.
func SpawnViewWith(w *ecs.World, v *ecs.View[movable], data movable) ecs.EntityId {
	return ecs.SpawnView(w, v, data)
}

func TestQueryExecuteCachesMatchingEntities(t *testing.T) {
	w := newTestWorld()
	w.Create(&Position{X: 1}, &Velocity{DX: 1})
	w.Create(&Position{X: 2}, &Velocity{DX: 2})
	w.Step(nil)

	q := ecs.NewQuery[movable](w.Storage())
	q.Execute()
	assert.Equal(t, 2, q.Len())

	w.Create(&Position{X: 3}, &Velocity{DX: 3})
	w.Step(nil)

	assert.Equal(t, 2, q.Len(), "stale cache until the next Execute")
	q.Execute()
	assert.Equal(t, 3, q.Len())
}

func TestQueryIterPanicsBeforeExecute(t *testing.T) {
	w := newTestWorld()
	q := ecs.NewQuery[movable](w.Storage())
	assert.Panics(t, func() {
		for range q.Iter() {
		}
	})
}
