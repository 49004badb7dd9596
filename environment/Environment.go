// Package environment outlines the interfaces and structs needed to
// implement concrete environments, as well as a synchronous vectorized
// environment which steps a set of environments in lockstep
package environment

import (
	ts "github.com/samuelfneumann/onpolicy/timestep"
	"gonum.org/v1/gonum/mat"
)

// Starter implements a distribution of starting states and samples
// starting states for environments
type Starter interface {
	Start() *mat.VecDense
}

// Ender determines when episodes should be ended
type Ender interface {
	// End checks whether t ends the episode and, if so, changes its
	// StepType to timestep.Last and sets the reason the episode ended
	End(t *ts.TimeStep) bool
}

// Task implements the reward scheme for taking actions in some
// environment, as well as the distribution of starting states and the
// conditions for ending episodes
type Task interface {
	Starter
	Ender
	GetReward(state, a, nextState mat.Vector) float64
	RewardSpec() Spec
}

// Environment implements a single simulated environment
type Environment interface {
	// Reset resets the environment between episodes
	Reset() (ts.TimeStep, error)

	// Step takes one step in the environment and returns the next
	// TimeStep along with whether the episode has ended
	Step(action *mat.VecDense) (ts.TimeStep, bool, error)

	ObservationSpec() Spec
	ActionSpec() Spec
	DiscountSpec() Spec
}

// VecEnv implements a set of environments which are stepped in
// lockstep. Environments whose episodes end are reset automatically, and
// the last observation of the finished episode is reported in the Info
// of that environment under timestep.TerminalObservationKey.
type VecEnv interface {
	NumEnvs() int

	// Reset resets all environments and returns their first
	// observations, one row per environment
	Reset() (ts.Observation, error)

	// Step takes one step in every environment. Row i of actions is
	// the action of environment i.
	Step(actions *mat.Dense) (ts.VecStep, error)
}
