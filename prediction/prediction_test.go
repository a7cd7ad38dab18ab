package prediction

import (
	"errors"
	"math"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"sharedauto/grid_world"
	"sharedauto/policies"
)

// favoring builds a small table that strongly prefers one action
// everywhere: Q=5 for the favored action, 0 otherwise.
func favoring(t *testing.T, name string, favored grid_world.Action, cells int) *policies.QTable {
	t.Helper()
	values := make([][][]float64, cells)
	for x := range values {
		values[x] = make([][]float64, cells)
		for y := range values[x] {
			values[x][y] = make([]float64, grid_world.ActionCount)
			values[x][y][favored] = 5
		}
	}
	table, err := policies.NewQTable(name, cells, values)
	if err != nil {
		t.Fatalf("favoring: %v", err)
	}
	return table
}

func threeGoals(t *testing.T) []*policies.QTable {
	t.Helper()
	return []*policies.QTable{
		favoring(t, "g0", grid_world.Up, 5),
		favoring(t, "g1", grid_world.Down, 5),
		favoring(t, "g2", grid_world.Right, 5),
	}
}

func sumOf(xs []float64) float64 {
	s := 0.0
	for _, x := range xs {
		s += x
	}
	return s
}

func TestBeliefInvariants(t *testing.T) {
	Convey("For every variant", t, func() {
		tables := threeGoals(t)
		state := grid_world.State{X: 2, Y: 2}

		for _, kind := range []Kind{Bayesian, MaxEnt, CRF} {
			p, err := New(kind, tables, DefaultParams(kind), nil)
			So(err, ShouldBeNil)

			Convey("Belief from "+string(kind)+" stays a distribution across updates", func() {
				actions := []grid_world.Action{
					grid_world.Up, grid_world.Down, grid_world.Up,
					grid_world.Left, grid_world.Right, grid_world.Up,
				}
				for _, a := range actions {
					belief, err := p.Update(state, a)
					So(err, ShouldBeNil)
					So(len(belief), ShouldEqual, 3)
					So(sumOf(belief), ShouldAlmostEqual, 1.0, 1e-6)
					for _, prob := range belief {
						So(prob, ShouldBeGreaterThan, 0)
					}
				}
			})

			Convey("The "+string(kind)+" variant rejects out-of-range input", func() {
				_, err := p.Update(grid_world.State{X: 5, Y: 0}, grid_world.Up)
				So(errors.Is(err, ErrInvalidInput), ShouldBeTrue)

				_, err = p.Update(state, grid_world.ActionNone)
				So(errors.Is(err, ErrInvalidInput), ShouldBeTrue)
			})
		}
	})
}

func TestBayesianConvergence(t *testing.T) {
	Convey("Given three goals with uniform initial belief", t, func() {
		tables := threeGoals(t)
		p, err := NewBayesianPredictor(tables, DefaultParams(Bayesian), nil)
		So(err, ShouldBeNil)

		state := grid_world.State{X: 1, Y: 3}

		Convey("Repeating the action favored by goal 0 concentrates belief there", func() {
			prev := p.Belief()[0]
			So(prev, ShouldAlmostEqual, 1.0/3.0, 1e-9)

			var belief []float64
			for i := 0; i < 20; i++ {
				belief, err = p.Update(state, grid_world.Up)
				So(err, ShouldBeNil)
				// Monotone convergence toward the favored goal.
				So(belief[0], ShouldBeGreaterThan, prev)
				prev = belief[0]
			}

			So(belief[0], ShouldBeGreaterThan, 0.8)
			// The goal-switch prior keeps certainty strictly below 1.
			So(belief[0], ShouldBeLessThan, 1.0)
		})
	})
}

func TestBoundaryStateUpdate(t *testing.T) {
	Convey("Given distance-shaped tables and the grid corner", t, func() {
		tables := []*policies.QTable{}
		for _, goal := range []grid_world.State{{X: 4, Y: 0}, {X: 4, Y: 4}, {X: 0, Y: 4}} {
			table, err := policies.Synthesize("g", goal, 5)
			So(err, ShouldBeNil)
			tables = append(tables, table)
		}

		Convey("A non-improving boundary action still yields a valid distribution", func() {
			for _, kind := range []Kind{Bayesian, MaxEnt, CRF} {
				p, err := New(kind, tables, DefaultParams(kind), nil)
				So(err, ShouldBeNil)

				belief, err := p.Update(grid_world.State{X: 0, Y: 0}, grid_world.Left)
				So(err, ShouldBeNil)
				So(sumOf(belief), ShouldAlmostEqual, 1.0, 1e-6)
			}
		})
	})
}

func TestCRFTemporalSmoothness(t *testing.T) {
	Convey("Given two identically configured CRF predictors", t, func() {
		state := grid_world.State{X: 2, Y: 2}

		repeat := NewCRFPredictor(threeGoals(t), DefaultParams(CRF))
		alternate := NewCRFPredictor(threeGoals(t), DefaultParams(CRF))

		Convey("Repeating an action shifts belief further than alternating", func() {
			_, err := repeat.Update(state, grid_world.Up)
			So(err, ShouldBeNil)
			repeated, err := repeat.Update(state, grid_world.Up)
			So(err, ShouldBeNil)

			_, err = alternate.Update(state, grid_world.Up)
			So(err, ShouldBeNil)
			alternated, err := alternate.Update(state, grid_world.Down)
			So(err, ShouldBeNil)

			So(repeated[0], ShouldBeGreaterThan, alternated[0])
		})
	})
}

func TestCRFReset(t *testing.T) {
	Convey("Given a CRF predictor with accumulated context", t, func() {
		tables := threeGoals(t)
		state := grid_world.State{X: 0, Y: 0}

		p := NewCRFPredictor(tables, DefaultParams(CRF))
		_, err := p.Update(state, grid_world.Down)
		So(err, ShouldBeNil)
		_, err = p.Update(state, grid_world.Down)
		So(err, ShouldBeNil)

		Convey("Reset restores uniform belief and clears the previous action", func() {
			p.Reset()
			for _, prob := range p.Belief() {
				So(prob, ShouldAlmostEqual, 1.0/3.0, 1e-9)
			}

			// A reset predictor behaves exactly like a fresh one, which it
			// could not if the previous action survived the reset.
			fresh := NewCRFPredictor(tables, DefaultParams(CRF))
			gotReset, err := p.Update(state, grid_world.Up)
			So(err, ShouldBeNil)
			gotFresh, err := fresh.Update(state, grid_world.Up)
			So(err, ShouldBeNil)
			for i := range gotFresh {
				So(gotReset[i], ShouldAlmostEqual, gotFresh[i], 1e-12)
			}
		})
	})
}

func TestMaxEntReactivity(t *testing.T) {
	Convey("Given a MaxEnt predictor", t, func() {
		p := NewMaxEntPredictor(threeGoals(t), DefaultParams(MaxEnt))
		state := grid_world.State{X: 3, Y: 1}

		Convey("A few consistent observations already dominate the belief", func() {
			var belief []float64
			var err error
			for i := 0; i < 3; i++ {
				belief, err = p.Update(state, grid_world.Down)
				So(err, ShouldBeNil)
			}
			So(belief[1], ShouldBeGreaterThan, belief[0])
			So(belief[1], ShouldBeGreaterThan, belief[2])
			So(belief[1], ShouldBeGreaterThan, 0.5)
		})
	})
}

func TestLogSpaceRoundTrip(t *testing.T) {
	Convey("Given a probability vector", t, func() {
		probs := []float64{0.1, 0.2, 0.3, 0.4}

		Convey("Log-space storage and normalization compose to the identity", func() {
			got := probsFromLog(logFromProbs(probs))
			for i := range probs {
				So(got[i], ShouldAlmostEqual, probs[i], 1e-9)
			}
		})

		Convey("logSumExp matches the naive computation on benign input", func() {
			naive := 0.0
			xs := []float64{-1.5, 0.25, 2.0}
			for _, x := range xs {
				naive += math.Exp(x)
			}
			So(logSumExp(xs), ShouldAlmostEqual, math.Log(naive), 1e-12)
		})

		Convey("logSumExp survives magnitudes that overflow naive exp", func() {
			xs := []float64{1000, 1001}
			So(math.IsInf(logSumExp(xs), 0), ShouldBeFalse)
			So(logSumExp(xs), ShouldAlmostEqual, 1001+math.Log(1+math.Exp(-1)), 1e-9)
		})
	})
}

func TestParseKind(t *testing.T) {
	Convey("When predictor kinds are parsed from config", t, func() {
		for _, s := range []string{"bayesian", "maxent", "crf"} {
			kind, err := ParseKind(s)
			So(err, ShouldBeNil)
			So(string(kind), ShouldEqual, s)
		}

		_, err := ParseKind("oracle")
		So(err, ShouldNotBeNil)
	})
}
