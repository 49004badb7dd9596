// Package agent defines the interfaces that policies driven by a
// rollout must satisfy
package agent

import (
	ts "github.com/samuelfneumann/onpolicy/timestep"
	"gonum.org/v1/gonum/mat"
)

// Output is the result of a policy acting on a batch of observations,
// one row (or element) per environment.
//
// Actions are always required. Values and LogProbs hold, for each
// environment, the value estimate of the observation and the log
// probability of the selected action; they are required only when
// collecting experience for training.
type Output struct {
	Actions  *mat.Dense
	Values   []float64
	LogProbs []float64
}

// Actor selects actions for a batch of observations
type Actor interface {
	Act(obs ts.Observation) (Output, error)
}

// ActorCritic is an Actor that also estimates state values. When used
// to collect training data, Act must fill in Values and LogProbs.
type ActorCritic interface {
	Actor

	// Value returns the value estimate of each row of obs
	Value(obs ts.Observation) ([]float64, error)
}
