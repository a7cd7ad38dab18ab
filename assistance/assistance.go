package assistance

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"sharedauto/grid_world"
	"sharedauto/policies"
)

// Mode selects what Recommend produces from the expected-value vector.
// All modes are served from the single expectedQ computation; nothing is
// recomputed between them.
type Mode string

const (
	// ModeArgmax returns only the argmax action.
	ModeArgmax Mode = "argmax"
	// ModeDistribution additionally returns the softmax distribution.
	ModeDistribution Mode = "distribution"
	// ModeSample draws the action from the softmax distribution.
	ModeSample Mode = "sample"
)

// ParseMode maps a config string onto the closed mode set.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeArgmax, ModeDistribution, ModeSample:
		return Mode(s), nil
	}
	return "", fmt.Errorf("unknown assistance mode %q", s)
}

// Recommendation is the assistance output for one step.
type Recommendation struct {
	Action grid_world.Action
	// Dist is the softmax over actions; populated for ModeDistribution
	// and ModeSample.
	Dist []float64
}

// SharedAutoPolicy converts a belief distribution over goals into a
// single recommended action, by belief-weighting each goal's min-max
// normalized value estimates.
type SharedAutoPolicy struct {
	tables []*policies.QTable
	mode   Mode
	rng    *rand.Rand

	// Per-goal global extrema, scanned once at construction. Min-max
	// scaling puts differently-shaped tables on a common [0,1] footing so
	// one goal's raw value scale cannot dominate the vote.
	mins, maxs []float64
}

// NewSharedAutoPolicy precomputes the per-goal normalization bounds. rng
// is only consulted in ModeSample and may be nil otherwise.
func NewSharedAutoPolicy(tables []*policies.QTable, mode Mode, rng *rand.Rand) (*SharedAutoPolicy, error) {
	if len(tables) == 0 {
		return nil, errors.New("assistance: no goal tables")
	}
	if mode == ModeSample && rng == nil {
		return nil, errors.New("assistance: sample mode requires a rand source")
	}

	p := &SharedAutoPolicy{
		tables: tables,
		mode:   mode,
		rng:    rng,
		mins:   make([]float64, len(tables)),
		maxs:   make([]float64, len(tables)),
	}
	for i, t := range tables {
		p.mins[i], p.maxs[i] = t.MinMax()
	}
	return p, nil
}

// Normalize min-max scales a raw Q-value into [0,1] against the goal's
// global bounds. A flat table (max == min) yields 0.5 for every query;
// this is the documented degenerate fallback, not an error.
func (p *SharedAutoPolicy) Normalize(q float64, goal int) float64 {
	span := p.maxs[goal] - p.mins[goal]
	if span == 0 {
		return 0.5
	}
	return (q - p.mins[goal]) / span
}

// Recommend computes the belief-weighted normalized value of every action
// at s and selects per the configured mode. The recommended action in
// argmax and distribution modes is always the argmax of the raw expectedQ
// vector, tie-broken toward the lowest action index; the softmax exists
// to expose (or sample from) an action distribution.
func (p *SharedAutoPolicy) Recommend(s grid_world.State, belief []float64) (Recommendation, error) {
	if len(belief) != len(p.tables) {
		return Recommendation{}, fmt.Errorf("assistance: belief has %d entries for %d goals",
			len(belief), len(p.tables))
	}

	expectedQ := make([]float64, grid_world.ActionCount)
	for a := 0; a < grid_world.ActionCount; a++ {
		for g, t := range p.tables {
			q, err := t.ValueOf(s, grid_world.Action(a))
			if err != nil {
				return Recommendation{}, fmt.Errorf("assistance: %w", err)
			}
			expectedQ[a] += belief[g] * p.Normalize(q, g)
		}
	}

	best := grid_world.Action(0)
	for a := 1; a < grid_world.ActionCount; a++ {
		if expectedQ[a] > expectedQ[best] {
			best = grid_world.Action(a)
		}
	}

	if p.mode == ModeArgmax {
		return Recommendation{Action: best}, nil
	}

	// Softmax via log-sum-exp, stabilized by the max subtraction.
	lse := logSumExp(expectedQ)
	dist := make([]float64, grid_world.ActionCount)
	for a := range dist {
		dist[a] = math.Exp(expectedQ[a] - lse)
	}

	rec := Recommendation{Action: best, Dist: dist}
	if p.mode == ModeSample {
		rec.Action = sample(dist, p.rng.Float64())
	}
	return rec, nil
}

// sample selects an index by cumulative probability from a single
// uniform draw.
func sample(dist []float64, r float64) grid_world.Action {
	cum := 0.0
	for a, p := range dist {
		cum += p
		if r < cum {
			return grid_world.Action(a)
		}
	}
	return grid_world.Action(len(dist) - 1)
}

func logSumExp(xs []float64) float64 {
	max := xs[0]
	for _, x := range xs[1:] {
		if x > max {
			max = x
		}
	}
	sum := 0.0
	for _, x := range xs {
		sum += math.Exp(x - max)
	}
	return max + math.Log(sum)
}
