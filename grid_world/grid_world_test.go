package grid_world

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestDiscretize(t *testing.T) {
	Convey("When a continuous position is discretized", t, func() {
		Convey("Interior positions map to their cell", func() {
			s := Discretize(Vec2{X: 45, Y: 299}, 600, 30)
			So(s, ShouldResemble, State{X: 2, Y: 14})
		})

		Convey("Positions beyond the extent clamp to the last cell", func() {
			s := Discretize(Vec2{X: 1e6, Y: 650}, 600, 30)
			So(s, ShouldResemble, State{X: 29, Y: 29})
		})

		Convey("Negative positions clamp to the first cell", func() {
			s := Discretize(Vec2{X: -50, Y: -0.1}, 600, 30)
			So(s, ShouldResemble, State{X: 0, Y: 0})
		})

		Convey("The extent boundary itself stays in range", func() {
			s := Discretize(Vec2{X: 599, Y: 600}, 600, 30)
			So(s.InBounds(30), ShouldBeTrue)
			So(s.X, ShouldEqual, 29)
		})
	})
}

func TestDirections(t *testing.T) {
	Convey("When actions are mapped to direction vectors", t, func() {
		Convey("Each action yields its unit vector", func() {
			cases := map[Action]Vec2{
				Up:    {0, -1},
				Down:  {0, 1},
				Left:  {-1, 0},
				Right: {1, 0},
			}
			for a, want := range cases {
				dir, err := Direction(a)
				So(err, ShouldBeNil)
				So(dir, ShouldResemble, want)
				So(dir.Norm(), ShouldAlmostEqual, 1.0)
			}
		})

		Convey("ActionNone and out-of-range indices are rejected", func() {
			_, err := Direction(ActionNone)
			So(err, ShouldNotBeNil)
			_, err = Direction(Action(ActionCount))
			So(err, ShouldNotBeNil)
		})
	})
}

func TestVec2(t *testing.T) {
	Convey("When vectors are normalized", t, func() {
		Convey("A nonzero vector becomes unit magnitude", func() {
			v := Vec2{X: 3, Y: 4}.Unit()
			So(v.Norm(), ShouldAlmostEqual, 1.0)
			So(v.X, ShouldAlmostEqual, 0.6)
			So(v.Y, ShouldAlmostEqual, 0.8)
		})

		Convey("The zero vector stays zero rather than dividing by zero", func() {
			v := Vec2{}.Unit()
			So(v, ShouldResemble, Vec2{})
		})
	})
}

func TestSuccessor(t *testing.T) {
	Convey("When a successor cell is computed", t, func() {
		Convey("Moves stay on the grid at the boundary", func() {
			s := State{X: 0, Y: 0}.Successor(Left, 10)
			So(s, ShouldResemble, State{X: 0, Y: 0})
			s = State{X: 9, Y: 9}.Successor(Down, 10)
			So(s, ShouldResemble, State{X: 9, Y: 9})
		})

		Convey("Interior moves follow the action direction", func() {
			s := State{X: 5, Y: 5}.Successor(Right, 10)
			So(s, ShouldResemble, State{X: 6, Y: 5})
		})
	})
}
