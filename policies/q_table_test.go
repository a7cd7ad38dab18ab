package policies

import (
	"errors"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"sharedauto/grid_world"
)

// makeTable builds a cells x cells table with per-entry values from fill.
func makeTable(t *testing.T, name string, cells int, fill func(x, y, a int) float64) *QTable {
	t.Helper()
	values := make([][][]float64, cells)
	for x := range values {
		values[x] = make([][]float64, cells)
		for y := range values[x] {
			values[x][y] = make([]float64, grid_world.ActionCount)
			for a := range values[x][y] {
				values[x][y][a] = fill(x, y, a)
			}
		}
	}
	table, err := NewQTable(name, cells, values)
	if err != nil {
		t.Fatalf("makeTable: %v", err)
	}
	return table
}

func TestQTable(t *testing.T) {
	Convey("Given a populated table", t, func() {
		table := makeTable(t, "t", 4, func(x, y, a int) float64 {
			return float64(x*100 + y*10 + a)
		})

		Convey("ValueOf returns the stored entry", func() {
			v, err := table.ValueOf(grid_world.State{X: 2, Y: 1}, grid_world.Left)
			So(err, ShouldBeNil)
			So(v, ShouldEqual, 212)
		})

		Convey("Out-of-range lookups fail rather than clamp", func() {
			_, err := table.ValueOf(grid_world.State{X: 4, Y: 0}, grid_world.Up)
			So(errors.Is(err, ErrOutOfRange), ShouldBeTrue)

			_, err = table.ValueOf(grid_world.State{X: 0, Y: -1}, grid_world.Up)
			So(errors.Is(err, ErrOutOfRange), ShouldBeTrue)

			_, err = table.ValueOf(grid_world.State{}, grid_world.ActionNone)
			So(errors.Is(err, ErrOutOfRange), ShouldBeTrue)

			_, err = table.BestAction(grid_world.State{X: 0, Y: 4})
			So(errors.Is(err, ErrOutOfRange), ShouldBeTrue)
		})

		Convey("BestAction picks the argmax", func() {
			a, err := table.BestAction(grid_world.State{X: 1, Y: 1})
			So(err, ShouldBeNil)
			So(a, ShouldEqual, grid_world.Right)
		})

		Convey("MinMax reflects the global extrema", func() {
			min, max := table.MinMax()
			So(min, ShouldEqual, 0)
			So(max, ShouldEqual, 333)
		})
	})

	Convey("Given tied action values", t, func() {
		flat := makeTable(t, "flat", 3, func(x, y, a int) float64 { return 7 })

		Convey("Ties break toward the lowest action index", func() {
			a, err := flat.BestAction(grid_world.State{X: 1, Y: 2})
			So(err, ShouldBeNil)
			So(a, ShouldEqual, grid_world.Up)
		})
	})

	Convey("When the value matrix shape is wrong", t, func() {
		Convey("A short column is rejected", func() {
			values := [][][]float64{{{1, 2, 3, 4}}}
			_, err := NewQTable("bad", 2, values)
			So(err, ShouldNotBeNil)
		})

		Convey("A cell missing actions is rejected", func() {
			values := [][][]float64{{{1, 2, 3}}}
			_, err := NewQTable("bad", 1, values)
			So(err, ShouldNotBeNil)
		})
	})
}

func TestSynthesize(t *testing.T) {
	Convey("Given a synthesized goal table", t, func() {
		goal := grid_world.State{X: 8, Y: 1}
		table, err := Synthesize("g", goal, 10)
		So(err, ShouldBeNil)

		Convey("The greedy action moves toward the goal", func() {
			a, err := table.BestAction(grid_world.State{X: 2, Y: 1})
			So(err, ShouldBeNil)
			So(a, ShouldEqual, grid_world.Right)

			a, err = table.BestAction(grid_world.State{X: 8, Y: 7})
			So(err, ShouldBeNil)
			So(a, ShouldEqual, grid_world.Up)
		})

		Convey("Every entry is populated and in bounds", func() {
			for x := 0; x < 10; x++ {
				for y := 0; y < 10; y++ {
					for a := 0; a < grid_world.ActionCount; a++ {
						_, err := table.ValueOf(grid_world.State{X: x, Y: y}, grid_world.Action(a))
						So(err, ShouldBeNil)
					}
				}
			}
		})

		Convey("An off-grid goal is rejected", func() {
			_, err := Synthesize("bad", grid_world.State{X: 10, Y: 0}, 10)
			So(errors.Is(err, ErrOutOfRange), ShouldBeTrue)
		})
	})
}
