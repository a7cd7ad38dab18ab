package arbitration

import (
	"fmt"

	"sharedauto/grid_world"
)

// Strategy selects how the operator's action and the assistance
// recommendation are blended into the executed command.
type Strategy string

const (
	// UserOnly passes the operator's direction through untouched.
	UserOnly Strategy = "user_only"
	// Linear blends with a fixed weight: gamma*user + (1-gamma)*robot.
	Linear Strategy = "linear"
	// Probabilistic weights the robot by the current confidence:
	// conf*robot + (1-conf)*user.
	Probabilistic Strategy = "probabilistic"
)

// ParseStrategy maps a config string onto the closed strategy set.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case UserOnly, Linear, Probabilistic:
		return Strategy(s), nil
	}
	return "", fmt.Errorf("unknown arbitration strategy %q", s)
}

// DefaultGamma is the user weight for the Linear strategy.
const DefaultGamma = 0.4

// Arbiter blends human and machine intent into one action vector.
type Arbiter struct {
	strategy Strategy
	gamma    float64
}

func NewArbiter(strategy Strategy, gamma float64) *Arbiter {
	return &Arbiter{
		strategy: strategy,
		gamma:    gamma,
	}
}

func (ar *Arbiter) Strategy() Strategy {
	return ar.strategy
}

// Blend maps both actions to their unit direction vectors and combines
// them per the strategy. confidence is the maximum of the current belief
// distribution, recomputed by the session each step. Non-UserOnly results
// are renormalized to unit magnitude; a fully cancelled blend yields the
// zero vector rather than a division by zero.
func (ar *Arbiter) Blend(user, robot grid_world.Action, confidence float64) (grid_world.Vec2, error) {
	userDir, err := grid_world.Direction(user)
	if err != nil {
		return grid_world.Vec2{}, fmt.Errorf("blend: %w", err)
	}
	robotDir, err := grid_world.Direction(robot)
	if err != nil {
		return grid_world.Vec2{}, fmt.Errorf("blend: %w", err)
	}

	switch ar.strategy {
	case Linear:
		return userDir.Scale(ar.gamma).Add(robotDir.Scale(1 - ar.gamma)).Unit(), nil
	case Probabilistic:
		return robotDir.Scale(confidence).Add(userDir.Scale(1 - confidence)).Unit(), nil
	default:
		return userDir, nil
	}
}
