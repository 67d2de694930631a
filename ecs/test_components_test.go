package ecs_test

import "github.com/amiani/javelin/ecs"

type Position struct {
	X, Y float64
}

type Velocity struct {
	DX, DY float64
}

type Name struct {
	Value string
}

type Health struct {
	Current, Max int
}

type Inventory struct {
	Items []string
}

type Stats struct {
	Attributes map[string]int
}

type Tags struct {
	Values map[string]struct{}
}

func newTestWorld(opts ...ecs.WorldOption) *ecs.World {
	w := ecs.NewWorld(opts...)
	ecs.RegisterComponent[Position](w.Registry())
	ecs.RegisterComponent[Velocity](w.Registry())
	ecs.RegisterComponent[Name](w.Registry())
	ecs.RegisterComponent[Health](w.Registry())
	ecs.RegisterComponent[Inventory](w.Registry())
	ecs.RegisterComponent[Stats](w.Registry())
	ecs.RegisterComponent[Tags](w.Registry())
	return w
}

type recordingSystem struct {
	fn func(w *ecs.World)
}

func (s *recordingSystem) Execute(w *ecs.World) { s.fn(w) }
