package prediction

import (
	"fmt"
	"math"

	"sharedauto/grid_world"
	"sharedauto/policies"
)

// CRFPredictor is a linear-chain CRF over the goal hypotheses. Per-action
// potentials combine a unary term from the goal's Q-values with a
// pairwise term rewarding repetition of the previous action (temporal
// smoothness). The belief update itself follows the same filtered
// pipeline as the Bayesian variant.
type CRFPredictor struct {
	tables  []*policies.QTable
	params  Params
	logPost []float64

	// Previous chosen action, or ActionNone before the first step. The
	// pairwise potential contributes nothing on the first step.
	prevAction grid_world.Action
}

func NewCRFPredictor(tables []*policies.QTable, params Params) *CRFPredictor {
	return &CRFPredictor{
		tables:     tables,
		params:     params,
		logPost:    uniformLog(len(tables)),
		prevAction: grid_world.ActionNone,
	}
}

func (p *CRFPredictor) Name() string {
	return string(CRF)
}

// unary is the value-derived potential Q(s,a)/tau.
func (p *CRFPredictor) unary(t *policies.QTable, s grid_world.State, a grid_world.Action) (float64, error) {
	q, err := t.ValueOf(s, a)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return q / p.params.Tau, nil
}

// pairwise rewards repeating the previous action.
func (p *CRFPredictor) pairwise(prev, a grid_world.Action) float64 {
	if prev == a {
		return p.params.PairwiseWeight
	}
	return 0
}

// logLikelihood softmaxes the combined potentials over the action set and
// reads out the observed action's mass.
func (p *CRFPredictor) logLikelihood(s grid_world.State, a grid_world.Action, t *policies.QTable) (float64, error) {
	if !a.Valid() {
		return 0, fmt.Errorf("%w: action %d", ErrInvalidInput, a)
	}

	logits := make([]float64, grid_world.ActionCount)
	for ai := 0; ai < grid_world.ActionCount; ai++ {
		u, err := p.unary(t, s, grid_world.Action(ai))
		if err != nil {
			return 0, err
		}
		pair := 0.0
		if p.prevAction != grid_world.ActionNone {
			pair = p.pairwise(p.prevAction, grid_world.Action(ai))
		}
		logits[ai] = u + pair
	}

	probs := probsFromLog(logits)
	return math.Log(probs[a] + 1e-12), nil
}

// Update runs the filtered pipeline and stores the observed action as the
// new temporal context.
func (p *CRFPredictor) Update(s grid_world.State, a grid_world.Action) ([]float64, error) {
	n := len(p.tables)

	logLikes := make([]float64, n)
	for i, t := range p.tables {
		ll, err := p.logLikelihood(s, a, t)
		if err != nil {
			return nil, fmt.Errorf("crf update: %w", err)
		}
		logLikes[i] = ll
	}

	for i := range p.logPost {
		p.logPost[i] = (1-p.params.Alpha)*p.logPost[i] + p.params.Alpha*logLikes[i]
	}

	post := probsFromLog(p.logPost)
	post = applySwitchPrior(post, p.params.PSwitch)
	post = applyPosteriorTemperature(post, p.params.Beta)
	post = applyFloor(post, p.params.Eps)

	p.logPost = logFromProbs(post)
	p.prevAction = a
	return post, nil
}

func (p *CRFPredictor) Belief() []float64 {
	return probsFromLog(p.logPost)
}

// Reset clears both the belief and the temporal context.
func (p *CRFPredictor) Reset() {
	p.logPost = uniformLog(len(p.tables))
	p.prevAction = grid_world.ActionNone
}
