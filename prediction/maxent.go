package prediction

import (
	"fmt"
	"math"

	"sharedauto/grid_world"
	"sharedauto/policies"
)

// MaxEntPredictor is the maximum-entropy IOC variant: the same softmax
// likelihood model as the Bayesian filter, but the update is a direct
// exponentially-weighted average in probability space, with no switch
// prior and no posterior temperature. Its higher default forgetting rate
// makes it the most reactive of the variants.
type MaxEntPredictor struct {
	tables  []*policies.QTable
	params  Params
	logPost []float64
}

func NewMaxEntPredictor(tables []*policies.QTable, params Params) *MaxEntPredictor {
	return &MaxEntPredictor{
		tables:  tables,
		params:  params,
		logPost: uniformLog(len(tables)),
	}
}

func (p *MaxEntPredictor) Name() string {
	return string(MaxEnt)
}

func (p *MaxEntPredictor) logLikelihood(s grid_world.State, a grid_world.Action, t *policies.QTable) (float64, error) {
	if !a.Valid() {
		return 0, fmt.Errorf("%w: action %d", ErrInvalidInput, a)
	}
	probs, err := softmaxLikelihoods(t, s, p.params.Tau)
	if err != nil {
		return 0, err
	}
	return math.Log(probs[a] + 1e-12), nil
}

// Update mixes the across-goal-normalized likelihood vector into the
// posterior: p' = (1-alpha)*p + alpha*likelihood, then floor smoothing.
func (p *MaxEntPredictor) Update(s grid_world.State, a grid_world.Action) ([]float64, error) {
	n := len(p.tables)

	logLikes := make([]float64, n)
	for i, t := range p.tables {
		ll, err := p.logLikelihood(s, a, t)
		if err != nil {
			return nil, fmt.Errorf("maxent update: %w", err)
		}
		logLikes[i] = ll
	}

	likes := probsFromLog(logLikes)
	post := probsFromLog(p.logPost)
	for i := range post {
		post[i] = (1-p.params.Alpha)*post[i] + p.params.Alpha*likes[i]
	}
	post = applyFloor(post, p.params.Eps)

	p.logPost = logFromProbs(post)
	return post, nil
}

func (p *MaxEntPredictor) Belief() []float64 {
	return probsFromLog(p.logPost)
}

func (p *MaxEntPredictor) Reset() {
	p.logPost = uniformLog(len(p.tables))
}
