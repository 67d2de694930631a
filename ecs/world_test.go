package ecs_test

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/amiani/javelin/ecs"
)

func typeIdOf(w *ecs.World, t reflect.Type) ecs.TypeId {
	return w.Schemas().TypeIdOf(t)
}

// Scenario 1: create a component before the world's first step, read it
// from inside the first system call. The component must already show up
// as present with state Attached.
func TestScenarioSpawnThenReadNextStep(t *testing.T) {
	w := newTestWorld()
	e := w.Create(&Position{X: 1, Y: 2})

	var sawHas bool
	var sawState ecs.ComponentState
	w.Systems().Register(&recordingSystem{fn: func(w *ecs.World) {
		sawHas = ecs.Has[Position](w, e)
		sawState, _ = w.State(e, typeIdOf(w, reflect.TypeOf(Position{})))
	}})

	w.Step(nil)

	assert.True(t, sawHas)
	assert.Equal(t, ecs.Attached, sawState)

	pos, err := ecs.Get[Position](w, e)
	assert.NoError(t, err)
	assert.Equal(t, 1.0, pos.X)
	assert.Equal(t, 2.0, pos.Y)
}

// Scenario 2: a system detaches a component attached on a prior step.
// Ops enqueued during step N only take effect at step N+1, so the
// detach isn't visible until the step after the one that issued it.
func TestScenarioAttachThenDetachAcrossSteps(t *testing.T) {
	w := newTestWorld()
	e := w.Create()
	w.Attach(e, &Position{X: 1, Y: 1})

	detached := false
	w.Systems().Register(&recordingSystem{fn: func(w *ecs.World) {
		if !detached {
			w.Detach(e, reflect.TypeOf(Position{}))
			detached = true
		}
	}})

	w.Step(nil)
	assert.True(t, ecs.Has[Position](w, e))

	w.Step(nil)
	assert.False(t, ecs.Has[Position](w, e))
}

// Scenario 3 / P5: destroying the same entity twice within one step is
// idempotent — the second call is a silent no-op, not an error or a
// second queued op.
func TestScenarioDestroyIsIdempotentWithinAStep(t *testing.T) {
	w := newTestWorld()
	e := w.Create(&Position{X: 0, Y: 0})
	w.Step(nil)
	assert.True(t, ecs.Has[Position](w, e))

	before := w.PendingOps()
	w.Destroy(e)
	afterFirst := w.PendingOps()
	w.Destroy(e)
	afterSecond := w.PendingOps()

	assert.Equal(t, before+1, afterFirst)
	assert.Equal(t, afterFirst, afterSecond, "a second Destroy before the pending one applies must not enqueue another op")

	w.Step(nil)
	assert.False(t, ecs.Has[Position](w, e))

	// Destroying again in a later step, after the pending flag cleared
	// at the previous step's boundary, is a normal (non-suppressed) call.
	// It targets an entity no longer present in storage, so it's a no-op
	// either way, but it must not panic.
	assert.NotPanics(t, func() { w.Destroy(e) })
}

// Scenario 4: scalar field writes on an observed component accumulate
// into one change record keyed by field name, last write wins.
func TestScenarioObservedStructRecordsLastWritePerField(t *testing.T) {
	w := newTestWorld()
	e := w.Create(&Position{X: 0, Y: 0})
	w.Step(nil)

	pos, err := ecs.Get[Position](w, e)
	assert.NoError(t, err)

	o := ecs.GetObservedComponent(w, pos)
	o.SetField("X", 1.0)
	o.SetField("Y", 2.0)
	o.SetField("X", 3.0)

	record := o.Record()
	assert.Equal(t, 3.0, record.Fields["X"])
	assert.Equal(t, 2.0, record.Fields["Y"])
	assert.True(t, w.IsComponentChanged(pos))
}

// Scenario 5: a map field recorded through MapField tracks set/delete/set
// as a single final entry, not a three-deep history.
func TestScenarioObservedMapRecordsFinalStatePerKey(t *testing.T) {
	w := newTestWorld()
	e := w.Create(&Stats{Attributes: make(map[string]int)})
	w.Step(nil)

	stats, err := ecs.Get[Stats](w, e)
	assert.NoError(t, err)

	o := ecs.GetObservedComponent(w, stats)
	m := ecs.MapField(o, "Attributes", stats.Attributes)
	m.Set("strength", 1)
	m.Delete("strength")
	m.Set("strength", 2)

	record := o.Record()
	nested, ok := record.Fields["Attributes"].(*ecs.ChangeRecord)
	assert.True(t, ok)
	assert.Equal(t, 2, nested.Entries["strength"])
	if v, ok := stats.Attributes["strength"]; ok {
		assert.Equal(t, 2, v)
	}
}

// Scenario 6: reset clears storage, ops, and systems, and restarts
// entity allocation from zero.
func TestScenarioReset(t *testing.T) {
	w := newTestWorld()
	for i := 0; i < 5; i++ {
		w.Create(&Position{X: float64(i), Y: float64(i)})
	}
	w.Step(nil)

	e := w.Create(&Velocity{DX: 1, DY: 1})
	w.Attach(e, &Name{Value: "x"})
	w.Step(nil)
	w.Systems().Register(&recordingSystem{fn: func(w *ecs.World) {}})

	err := w.Reset()
	assert.NoError(t, err)
	assert.Equal(t, 0, w.PendingOps())
	assert.Equal(t, 0, w.Systems().Len())

	next := w.Create()
	assert.Equal(t, ecs.EntityId(0), next)
}

// Reset refuses to run with ops still pending, per I5.
func TestResetFailsWithPendingOps(t *testing.T) {
	w := newTestWorld()
	w.Create(&Position{X: 0, Y: 0})

	err := w.Reset()
	assert.ErrorIs(t, err, ecs.ErrInvalidState)
}

// P2: once Attached, a component's state never regresses to Attaching on
// its own; it only moves forward to Detaching/Detached on an explicit
// Detach/Destroy.
func TestComponentStateDoesNotRegressAcrossSteps(t *testing.T) {
	w := newTestWorld()
	e := w.Create(&Position{X: 0, Y: 0})
	id := typeIdOf(w, reflect.TypeOf(Position{}))

	w.Step(nil)
	state, _ := w.State(e, id)
	assert.Equal(t, ecs.Attached, state)

	for i := 0; i < 3; i++ {
		w.Step(nil)
		state, _ = w.State(e, id)
		assert.Equal(t, ecs.Attached, state)
	}
}

// P6: ops apply in enqueue order regardless of kind — attaching a
// component then detaching a different one on the same entity, enqueued
// in that order, must leave exactly the un-detached component behind
// after they both apply.
func TestOpsApplyInEnqueueOrder(t *testing.T) {
	w := newTestWorld()
	e := w.Create(&Position{X: 0, Y: 0})
	w.Step(nil)

	w.Attach(e, &Velocity{DX: 1, DY: 1})
	w.Detach(e, reflect.TypeOf(Position{}))

	w.Step(nil)

	assert.False(t, ecs.Has[Position](w, e))
	assert.True(t, ecs.Has[Velocity](w, e))
}

// AttachImmediate/DetachImmediate bypass the deferred queue entirely.
func TestImmediateStructuralCallsBypassTheQueue(t *testing.T) {
	w := newTestWorld()
	e := w.Create()
	w.AttachImmediate(e, &Position{X: 5, Y: 5})

	assert.True(t, ecs.Has[Position](w, e))
	id := typeIdOf(w, reflect.TypeOf(Position{}))
	state, _ := w.State(e, id)
	assert.Equal(t, ecs.Attached, state)

	err := w.DetachImmediate(e, reflect.TypeOf(Position{}))
	assert.NoError(t, err)
	assert.False(t, ecs.Has[Position](w, e))

	err = w.DetachImmediate(e, reflect.TypeOf(Position{}))
	assert.ErrorIs(t, err, ecs.ErrNotFound)
}

// Patch writes a scalar at a dotted field path starting at the component's
// own fields (not its type name), and records the write if an Observed
// wrapper already exists over the target.
func TestPatchWritesFieldAndRecordsIfObserved(t *testing.T) {
	w := newTestWorld()
	e := w.Create(&Position{X: 1, Y: 1})
	w.Step(nil)
	id := typeIdOf(w, reflect.TypeOf(Position{}))

	ok := w.Patch(e, id, "X", 3.0)
	assert.True(t, ok)

	pos, err := ecs.Get[Position](w, e)
	assert.NoError(t, err)
	assert.Equal(t, 3.0, pos.X)

	o := ecs.GetObservedComponent(w, pos)
	ok = w.Patch(e, id, "Y", 9.0)
	assert.True(t, ok)
	assert.Equal(t, 9.0, pos.Y)
	assert.Equal(t, 9.0, o.Record().Fields["Y"])
}

// Patch reports false for an unknown field or an entity without the
// named component, rather than panicking.
func TestPatchFailsOnUnknownFieldOrMissingComponent(t *testing.T) {
	w := newTestWorld()
	e := w.Create(&Position{X: 1, Y: 1})
	w.Step(nil)
	id := typeIdOf(w, reflect.TypeOf(Position{}))

	assert.False(t, w.Patch(e, id, "Z", 1.0))

	other := w.Create()
	w.Step(nil)
	assert.False(t, w.Patch(other, id, "X", 1.0))
}

// ApplyOps queues a foreign op batch for the next Step, flagging its
// components Attaching immediately the way the structural API does.
func TestApplyOpsQueuesForeignOps(t *testing.T) {
	w := newTestWorld()
	e := w.Create()

	err := w.ApplyOps([]ecs.Op{{Kind: ecs.OpAttach, Entity: e, Components: []any{&Position{X: 9, Y: 9}}}})
	assert.NoError(t, err)

	id := typeIdOf(w, reflect.TypeOf(Position{}))
	state, ok := w.State(e, id)
	assert.True(t, ok)
	assert.Equal(t, ecs.Attaching, state)

	w.Step(nil)
	assert.True(t, ecs.Has[Position](w, e))
}
