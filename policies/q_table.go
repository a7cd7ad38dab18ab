package policies

import (
	"errors"
	"fmt"
	"math"

	"sharedauto/grid_world"
)

// ErrOutOfRange is returned for any state or action index outside a
// table's declared bounds. Lookups are never silently clamped, since a
// clamped lookup would feed a wrong likelihood into the belief update.
var ErrOutOfRange = errors.New("state or action out of range")

// QTable is a per-goal action-value function over the discretized grid:
// a fully populated State x Action -> value mapping. Tables are immutable
// after construction and safe for shared reads across predictors and
// sessions without synchronization.
type QTable struct {
	name   string
	cells  int
	values [][][]float64 // [x][y][action]

	// Global extrema, scanned once at construction. The assistance policy
	// min-max normalizes against these on every query, so they must not be
	// rescanned per lookup.
	min, max float64
}

// NewQTable validates the value matrix shape and caches the global
// extrema. values must be [cells][cells][ActionCount].
func NewQTable(name string, cells int, values [][][]float64) (*QTable, error) {
	if cells <= 0 {
		return nil, fmt.Errorf("q_table %q: cells must be positive, got %d", name, cells)
	}
	if len(values) != cells {
		return nil, fmt.Errorf("q_table %q: expected %d columns, got %d", name, cells, len(values))
	}

	min, max := math.MaxFloat64, -math.MaxFloat64
	for x := range values {
		if len(values[x]) != cells {
			return nil, fmt.Errorf("q_table %q: column %d has %d rows, expected %d", name, x, len(values[x]), cells)
		}
		for y := range values[x] {
			if len(values[x][y]) != grid_world.ActionCount {
				return nil, fmt.Errorf("q_table %q: cell (%d,%d) has %d actions, expected %d",
					name, x, y, len(values[x][y]), grid_world.ActionCount)
			}
			for _, v := range values[x][y] {
				min = math.Min(min, v)
				max = math.Max(max, v)
			}
		}
	}

	return &QTable{
		name:   name,
		cells:  cells,
		values: values,
		min:    min,
		max:    max,
	}, nil
}

func (t *QTable) Name() string {
	return t.name
}

func (t *QTable) Cells() int {
	return t.cells
}

// MinMax returns the cached global extrema over the full state x action
// space.
func (t *QTable) MinMax() (min, max float64) {
	return t.min, t.max
}

// ValueOf returns Q(s, a).
func (t *QTable) ValueOf(s grid_world.State, a grid_world.Action) (float64, error) {
	if !s.InBounds(t.cells) || !a.Valid() {
		return 0, fmt.Errorf("q_table %q: (%d,%d,%s): %w", t.name, s.X, s.Y, a, ErrOutOfRange)
	}
	return t.values[s.X][s.Y][a], nil
}

// BestAction returns the argmax action at s, breaking ties toward the
// lowest action index.
func (t *QTable) BestAction(s grid_world.State) (grid_world.Action, error) {
	if !s.InBounds(t.cells) {
		return 0, fmt.Errorf("q_table %q: (%d,%d): %w", t.name, s.X, s.Y, ErrOutOfRange)
	}

	best := grid_world.Action(0)
	bestVal := t.values[s.X][s.Y][0]
	for a := 1; a < grid_world.ActionCount; a++ {
		if v := t.values[s.X][s.Y][a]; v > bestVal {
			bestVal = v
			best = grid_world.Action(a)
		}
	}
	return best, nil
}

// Synthesize builds a distance-shaped table for a goal cell: Q(s,a) is
// the negated Manhattan distance from the action's successor cell to the
// goal. This is the supplier-side fallback when no precomputed table file
// is available; a session cannot tell it apart from a loaded table.
func Synthesize(name string, goal grid_world.State, cells int) (*QTable, error) {
	if !goal.InBounds(cells) {
		return nil, fmt.Errorf("synthesize %q: goal (%d,%d): %w", name, goal.X, goal.Y, ErrOutOfRange)
	}

	values := make([][][]float64, cells)
	for x := 0; x < cells; x++ {
		values[x] = make([][]float64, cells)
		for y := 0; y < cells; y++ {
			values[x][y] = make([]float64, grid_world.ActionCount)
			for a := 0; a < grid_world.ActionCount; a++ {
				succ := grid_world.State{X: x, Y: y}.Successor(grid_world.Action(a), cells)
				dist := math.Abs(float64(succ.X-goal.X)) + math.Abs(float64(succ.Y-goal.Y))
				values[x][y][a] = -dist
			}
		}
	}
	return NewQTable(name, cells, values)
}
