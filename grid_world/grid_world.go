package grid_world

import (
	"fmt"
	"math"
)

// The state is a discrete grid cell derived from a continuous operator
// position. Unlike a full kinematic model there is no velocity component:
// the operator issues one of four unit-direction actions per step, and the
// executed displacement is the arbitrated blend of those directions.
type State struct {
	X, Y int
}

// Action is an index into the fixed direction set.
type Action int

const (
	Up Action = iota
	Down
	Left
	Right

	// ActionNone marks a step on which the operator issued no input.
	ActionNone Action = -1

	ActionCount = 4

	// DefaultCells is the per-axis grid resolution.
	DefaultCells = 30
)

// directions maps each action to its unit vector. Y grows downward,
// matching the screen coordinates of the position source.
var directions = [ActionCount]Vec2{
	{0, -1}, // Up
	{0, 1},  // Down
	{-1, 0}, // Left
	{1, 0},  // Right
}

// Vec2 is a 2D real vector, used both for continuous positions and for
// blended command outputs.
type Vec2 struct {
	X, Y float64
}

func (v Vec2) Add(o Vec2) Vec2 {
	return Vec2{v.X + o.X, v.Y + o.Y}
}

func (v Vec2) Scale(s float64) Vec2 {
	return Vec2{v.X * s, v.Y * s}
}

func (v Vec2) Norm() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y)
}

// Unit returns the unit-magnitude vector in v's direction, or the zero
// vector when v has zero magnitude. Opposing blended commands cancel to
// "hold position", not an error.
func (v Vec2) Unit() Vec2 {
	n := v.Norm()
	if n == 0 {
		return Vec2{}
	}
	return Vec2{v.X / n, v.Y / n}
}

// Valid reports whether a is a concrete action index. ActionNone is not
// valid: callers are expected to branch on it before lookup.
func (a Action) Valid() bool {
	return a >= 0 && a < ActionCount
}

// Direction returns the unit vector for an action.
func Direction(a Action) (Vec2, error) {
	if !a.Valid() {
		return Vec2{}, fmt.Errorf("direction: action %d out of range", a)
	}
	return directions[a], nil
}

func (a Action) String() string {
	switch a {
	case Up:
		return "up"
	case Down:
		return "down"
	case Left:
		return "left"
	case Right:
		return "right"
	case ActionNone:
		return "none"
	}
	return fmt.Sprintf("action(%d)", int(a))
}

// Discretize maps a continuous position onto the grid: each axis is
// clamped into [0, extent-1] and divided by the cell size. The same
// mapping must be used for every lookup within a step, so this is the
// single shared definition.
func Discretize(pos Vec2, extent float64, cells int) State {
	cellSize := extent / float64(cells)
	clamp := func(p float64) float64 {
		return math.Max(0, math.Min(p, extent-1))
	}
	return State{
		X: int(clamp(pos.X) / cellSize),
		Y: int(clamp(pos.Y) / cellSize),
	}
}

// InBounds reports whether s lies on a cells x cells grid.
func (s State) InBounds(cells int) bool {
	return s.X >= 0 && s.X < cells && s.Y >= 0 && s.Y < cells
}

// Successor returns the cell one step in the action's direction, clamped
// to the grid. Used by table synthesis, not by the inference pipeline.
func (s State) Successor(a Action, cells int) State {
	dir, err := Direction(a)
	if err != nil {
		return s
	}
	nx := s.X + int(dir.X)
	ny := s.Y + int(dir.Y)
	if nx < 0 {
		nx = 0
	}
	if nx >= cells {
		nx = cells - 1
	}
	if ny < 0 {
		ny = 0
	}
	if ny >= cells {
		ny = cells - 1
	}
	return State{nx, ny}
}

// Returns a rune representing an action's direction, for console display.
func putDir(a Action) rune {
	switch a {
	case Up:
		return '^'
	case Down:
		return 'v'
	case Left:
		return '<'
	case Right:
		return '>'
	}
	return '='
}

// ShowPolicy prints a greedy-policy arrow per grid cell for debugging.
// bestFn is typically a table's BestAction.
func ShowPolicy(cells int, bestFn func(State) (Action, error)) {
	for y := 0; y < cells; y++ {
		for x := 0; x < cells; x++ {
			a, err := bestFn(State{X: x, Y: y})
			if err != nil {
				fmt.Print("? ")
				continue
			}
			fmt.Printf("%c ", putDir(a))
		}
		fmt.Println()
	}
}

// ShowBelief prints a belief distribution on one line, for debugging.
func ShowBelief(belief []float64) {
	for i, p := range belief {
		fmt.Printf("g%d=%.3f ", i, p)
	}
	fmt.Println()
}
