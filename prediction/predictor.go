package prediction

/*
Goal predictors maintain a belief distribution over candidate goals, one
goal per action-value table, and refresh it from each observed
(state, user action) pair. Three variants share the contract: a Bayesian
forgetting filter, a MaxEnt IOC update, and a linear-chain CRF with a
temporal-smoothness potential.

All variants store belief in log space and cross the log/probability
boundary only through the stabilized helpers below. The forgetting update
(lp' = (1-alpha)*lp + alpha*logL) is intentionally not a literal Bayes
rule: it linearly mixes log-likelihood into the log-posterior so stale
evidence decays, which keeps a wrong early inference recoverable.
Downstream arbitration is tuned against this dynamic, so it must not be
"corrected" to a plain posterior product.
*/

import (
	"errors"
	"fmt"
	"math"

	"sharedauto/grid_world"
	"sharedauto/policies"
)

// ErrInvalidInput marks a state or action outside the tables' declared
// range. This is a programming error on the caller's side: the update is
// aborted rather than clamped, since a clamped lookup would silently
// corrupt the belief.
var ErrInvalidInput = errors.New("invalid predictor input")

// Predictor is the shared contract over the inference variants.
type Predictor interface {
	// Update refreshes the belief from one observed step and returns the
	// new distribution (non-negative, summing to 1).
	Update(s grid_world.State, a grid_world.Action) ([]float64, error)
	// Belief returns the current distribution without updating it.
	Belief() []float64
	// Reset restores the uniform belief and clears temporal context.
	Reset()
	Name() string
}

// Kind selects an inference variant at construction time.
type Kind string

const (
	Bayesian Kind = "bayesian"
	MaxEnt   Kind = "maxent"
	CRF      Kind = "crf"
)

// ParseKind maps a config string onto the closed variant set.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case Bayesian, MaxEnt, CRF:
		return Kind(s), nil
	}
	return "", fmt.Errorf("unknown predictor kind %q", s)
}

// Params holds the variant hyperparameters. Not every field applies to
// every variant; DefaultParams returns the per-variant defaults.
type Params struct {
	// Tau is the softmax likelihood temperature.
	Tau float64
	// Alpha is the forgetting / adaptation rate.
	Alpha float64
	// PSwitch is the constant goal-switch prior (Bayesian, CRF).
	PSwitch float64
	// Beta is the optional posterior temperature; 1 disables reshaping.
	Beta float64
	// Eps is the additive floor applied after normalization so no goal's
	// probability ever collapses exactly to zero.
	Eps float64
	// PairwiseWeight rewards repeating the previous action (CRF only).
	PairwiseWeight float64
}

// DefaultParams returns the reference hyperparameters for a variant.
func DefaultParams(kind Kind) Params {
	switch kind {
	case MaxEnt:
		return Params{Tau: 0.8, Alpha: 0.5, Beta: 1, Eps: 1e-2}
	case CRF:
		return Params{Tau: 0.8, Alpha: 0.05, PSwitch: 0.02, Beta: 1, Eps: 0.01, PairwiseWeight: 0.3}
	default:
		return Params{Tau: 0.8, Alpha: 0.05, PSwitch: 0.02, Beta: 1, Eps: 1e-3}
	}
}

// New constructs a predictor over the goal tables. prior may be nil for
// the uniform prior.
func New(kind Kind, tables []*policies.QTable, p Params, prior []float64) (Predictor, error) {
	if len(tables) == 0 {
		return nil, errors.New("predictor: no goal tables")
	}
	switch kind {
	case Bayesian:
		return NewBayesianPredictor(tables, p, prior)
	case MaxEnt:
		return NewMaxEntPredictor(tables, p), nil
	case CRF:
		return NewCRFPredictor(tables, p), nil
	}
	return nil, fmt.Errorf("unknown predictor kind %q", kind)
}

// logSumExp computes log(sum(exp(xs))) with the max subtracted first, so
// the exponentials cannot overflow.
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

// probsFromLog converts log weights to a normalized probability vector,
// subtracting the max before exponentiating.
func probsFromLog(lp []float64) []float64 {
	max := lp[0]
	for _, x := range lp[1:] {
		if x > max {
			max = x
		}
	}
	probs := make([]float64, len(lp))
	sum := 0.0
	for i, x := range lp {
		probs[i] = math.Exp(x - max)
		sum += probs[i]
	}
	for i := range probs {
		probs[i] /= sum
	}
	return probs
}

// logFromProbs stores a probability vector back in log space with the
// standard floor keeping log finite.
func logFromProbs(p []float64) []float64 {
	lp := make([]float64, len(p))
	for i, v := range p {
		lp[i] = math.Log(v + 1e-12)
	}
	return lp
}

// uniformLog is the log-space uniform prior over n goals.
func uniformLog(n int) []float64 {
	lp := make([]float64, n)
	for i := range lp {
		lp[i] = math.Log(1.0/float64(n) + 1e-12)
	}
	return lp
}

// softmaxLikelihoods returns softmax(Q(s,*)/tau) over the table's action
// set: the probability model of an operator picking actions proportional
// to exponentiated value.
func softmaxLikelihoods(t *policies.QTable, s grid_world.State, tau float64) ([]float64, error) {
	logits := make([]float64, grid_world.ActionCount)
	for a := 0; a < grid_world.ActionCount; a++ {
		q, err := t.ValueOf(s, grid_world.Action(a))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		logits[a] = q / tau
	}
	return probsFromLog(logits), nil
}
