package session

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/google/uuid"

	"sharedauto/arbitration"
	"sharedauto/assistance"
	"sharedauto/grid_world"
	"sharedauto/policies"
	"sharedauto/prediction"
)

// Phase is the session state machine: Idle until the operator's first
// action of a run, Active thereafter. Reset returns to Idle.
type Phase int

const (
	Idle Phase = iota
	Active
)

// StepResult is the telemetry surface of one executed step: everything a
// logging or visualization collaborator may want, produced in-memory and
// never persisted here.
type StepResult struct {
	RunID       string               `json:"runId"`
	Step        int                  `json:"step"`
	State       grid_world.State     `json:"state"`
	UserAction  grid_world.Action    `json:"userAction"`
	Recommended grid_world.Action    `json:"recommended"`
	ActionDist  []float64            `json:"actionDist,omitempty"`
	Belief      []float64            `json:"belief"`
	Confidence  float64              `json:"confidence"`
	Blend       grid_world.Vec2      `json:"blend"`
	Strategy    arbitration.Strategy `json:"strategy"`
}

// TelemetryFunc receives each emitted step. It is synchronous and should
// be defined to complete quickly; slow sinks belong behind a channel.
type TelemetryFunc func(context.Context, StepResult)

// Session owns the per-run inference state and orchestrates one
// update -> recommend -> blend computation per control step. It is
// step-driven and single-threaded: no concurrent invocation of the same
// session is supported.
type Session struct {
	id        uuid.UUID
	cells     int
	extent    float64
	predictor prediction.Predictor
	assistant *assistance.SharedAutoPolicy
	arbiter   *arbitration.Arbiter
	telemetry TelemetryFunc

	phase Phase
	step  int
}

// New wires a session from its config and goal tables. The predictor,
// assistance policy and arbiter variants are selected once here; there is
// no re-dispatch per step.
func New(tables []*policies.QTable, cfg *Config, telemetry TelemetryFunc) (*Session, error) {
	if len(tables) == 0 {
		return nil, fmt.Errorf("session: no goal tables")
	}

	cells := cfg.Grid.Cells
	if cells == 0 {
		cells = grid_world.DefaultCells
	}
	extent := cfg.Grid.Extent
	if extent == 0 {
		extent = float64(cells)
	}
	for _, t := range tables {
		if t.Cells() != cells {
			return nil, fmt.Errorf("session: table %q covers %d cells, grid has %d", t.Name(), t.Cells(), cells)
		}
	}

	kind, err := prediction.ParseKind(cfg.selector(cfg.Predictor, "kind", string(prediction.Bayesian)))
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}
	params := predictorParams(kind, cfg)
	predictor, err := prediction.New(kind, tables, params, nil)
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}

	mode, err := assistance.ParseMode(cfg.selector(cfg.Assistance, "mode", string(assistance.ModeDistribution)))
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}
	var rng *rand.Rand
	if mode == assistance.ModeSample {
		rng = rand.New(rand.NewSource(int64(cfg.HyperParamOrDefault("seed", 1))))
	}
	assistant, err := assistance.NewSharedAutoPolicy(tables, mode, rng)
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}

	strategy, err := arbitration.ParseStrategy(cfg.selector(cfg.Arbitration, "strategy", string(arbitration.Probabilistic)))
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}
	gamma := cfg.HyperParamOrDefault("gamma", arbitration.DefaultGamma)

	return &Session{
		id:        uuid.New(),
		cells:     cells,
		extent:    extent,
		predictor: predictor,
		assistant: assistant,
		arbiter:   arbitration.NewArbiter(strategy, gamma),
		telemetry: telemetry,
		phase:     Idle,
	}, nil
}

// predictorParams resolves the variant hyperparameters against the
// per-variant defaults.
func predictorParams(kind prediction.Kind, cfg *Config) prediction.Params {
	d := prediction.DefaultParams(kind)
	return prediction.Params{
		Tau:            cfg.HyperParamOrDefault("tau", d.Tau),
		Alpha:          cfg.HyperParamOrDefault("alpha", d.Alpha),
		PSwitch:        cfg.HyperParamOrDefault("pSwitch", d.PSwitch),
		Beta:           cfg.HyperParamOrDefault("beta", d.Beta),
		Eps:            cfg.HyperParamOrDefault("eps", d.Eps),
		PairwiseWeight: cfg.HyperParamOrDefault("pairwiseWeight", d.PairwiseWeight),
	}
}

func (s *Session) ID() string {
	return s.id.String()
}

func (s *Session) Phase() Phase {
	return s.phase
}

func (s *Session) PredictorName() string {
	return s.predictor.Name()
}

// Belief returns the current distribution without updating it.
func (s *Session) Belief() []float64 {
	return s.predictor.Belief()
}

// Discretize maps a continuous position onto the session's grid. The
// same mapping feeds inference and assistance within a step.
func (s *Session) Discretize(pos grid_world.Vec2) grid_world.State {
	return grid_world.Discretize(pos, s.extent, s.cells)
}

// Step runs one inference+assistance+arbitration computation. When the
// operator issued no action (ActionNone), nothing is updated and no
// result is emitted: absence of input freezes both belief and position.
// Any failure is fatal for the step; the belief is never advanced on a
// half-completed pipeline.
func (s *Session) Step(ctx context.Context, pos grid_world.Vec2, action grid_world.Action) (StepResult, bool, error) {
	if action == grid_world.ActionNone {
		return StepResult{}, false, nil
	}

	state := s.Discretize(pos)

	belief, err := s.predictor.Update(state, action)
	if err != nil {
		return StepResult{}, false, fmt.Errorf("step %d: %w", s.step, err)
	}

	rec, err := s.assistant.Recommend(state, belief)
	if err != nil {
		return StepResult{}, false, fmt.Errorf("step %d: %w", s.step, err)
	}

	// Confidence is recomputed from this step's belief, never cached.
	confidence := maxOf(belief)

	blend, err := s.arbiter.Blend(action, rec.Action, confidence)
	if err != nil {
		return StepResult{}, false, fmt.Errorf("step %d: %w", s.step, err)
	}

	s.phase = Active
	s.step++

	res := StepResult{
		RunID:       s.id.String(),
		Step:        s.step,
		State:       state,
		UserAction:  action,
		Recommended: rec.Action,
		ActionDist:  rec.Dist,
		Belief:      belief,
		Confidence:  confidence,
		Blend:       blend,
		Strategy:    s.arbiter.Strategy(),
	}

	if s.telemetry != nil {
		s.telemetry(ctx, res)
	}
	return res, true, nil
}

// Reset returns the session to Idle with a uniform belief and cleared
// temporal context. It is the only supported mid-run transition.
func (s *Session) Reset() {
	s.predictor.Reset()
	s.phase = Idle
	s.step = 0
}

func maxOf(xs []float64) float64 {
	max := xs[0]
	for _, x := range xs[1:] {
		if x > max {
			max = x
		}
	}
	return max
}
