package prediction

import (
	"errors"
	"fmt"
	"math"

	"sharedauto/grid_world"
	"sharedauto/policies"
)

// BayesianPredictor runs the full five-step filtered update: softmax
// likelihood, exponential forgetting, goal-switch prior, optional
// posterior temperature, and floor smoothing.
type BayesianPredictor struct {
	tables  []*policies.QTable
	params  Params
	logPost []float64
}

// NewBayesianPredictor builds the filter over the goal tables. prior may
// be nil for the uniform prior; otherwise it must have one entry per goal.
func NewBayesianPredictor(tables []*policies.QTable, params Params, prior []float64) (*BayesianPredictor, error) {
	if len(tables) == 0 {
		return nil, errors.New("bayesian: no goal tables")
	}

	p := &BayesianPredictor{
		tables: tables,
		params: params,
	}
	if prior == nil {
		p.logPost = uniformLog(len(tables))
	} else {
		if len(prior) != len(tables) {
			return nil, fmt.Errorf("bayesian: prior has %d entries for %d goals", len(prior), len(tables))
		}
		p.logPost = logFromProbs(prior)
	}
	return p, nil
}

func (p *BayesianPredictor) Name() string {
	return string(Bayesian)
}

// logLikelihood returns log P(userAction | goal) under the softmax model.
// The 1e-8 floor matches the reference filter tuning and differs from the
// 1e-12 used by the other variants.
func (p *BayesianPredictor) logLikelihood(s grid_world.State, a grid_world.Action, t *policies.QTable) (float64, error) {
	if !a.Valid() {
		return 0, fmt.Errorf("%w: action %d", ErrInvalidInput, a)
	}
	probs, err := softmaxLikelihoods(t, s, p.params.Tau)
	if err != nil {
		return 0, err
	}
	return math.Log(probs[a] + 1e-8), nil
}

// Update runs one filtered belief update and returns the new
// distribution.
func (p *BayesianPredictor) Update(s grid_world.State, a grid_world.Action) ([]float64, error) {
	n := len(p.tables)

	logLikes := make([]float64, n)
	for i, t := range p.tables {
		ll, err := p.logLikelihood(s, a, t)
		if err != nil {
			return nil, fmt.Errorf("bayesian update: %w", err)
		}
		logLikes[i] = ll
	}

	// Exponential forgetting: blend current evidence into the stored
	// log-posterior so stale evidence decays.
	for i := range p.logPost {
		p.logPost[i] = (1-p.params.Alpha)*p.logPost[i] + p.params.Alpha*logLikes[i]
	}

	post := probsFromLog(p.logPost)
	post = applySwitchPrior(post, p.params.PSwitch)
	post = applyPosteriorTemperature(post, p.params.Beta)
	post = applyFloor(post, p.params.Eps)

	p.logPost = logFromProbs(post)
	return post, nil
}

// Belief returns the current distribution.
func (p *BayesianPredictor) Belief() []float64 {
	return probsFromLog(p.logPost)
}

// Reset restores the uniform belief.
func (p *BayesianPredictor) Reset() {
	p.logPost = uniformLog(len(p.tables))
}

// applySwitchPrior mixes in a constant-rate chance that the operator's
// goal changed, which keeps any single goal's belief strictly below 1.
func applySwitchPrior(post []float64, pSwitch float64) []float64 {
	if pSwitch <= 0 {
		return post
	}
	n := float64(len(post))
	for i := range post {
		post[i] = (1-pSwitch)*post[i] + pSwitch/n
	}
	return post
}

// applyPosteriorTemperature reshapes the posterior as p^(1/beta),
// renormalized. beta == 1 is a no-op.
func applyPosteriorTemperature(post []float64, beta float64) []float64 {
	if beta == 1 {
		return post
	}
	sum := 0.0
	for i := range post {
		post[i] = math.Pow(post[i], 1/beta)
		sum += post[i]
	}
	for i := range post {
		post[i] /= sum
	}
	return post
}

// applyFloor mixes a sliver of the uniform distribution into the
// posterior so no goal's probability collapses exactly to zero.
func applyFloor(post []float64, eps float64) []float64 {
	n := float64(len(post))
	for i := range post {
		post[i] = (1-eps)*post[i] + eps/n
	}
	return post
}
