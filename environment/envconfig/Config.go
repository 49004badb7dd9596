// Package envconfig provides configuration structs for configuring
// vectorized environments with default physical parameters and tasks.
// Environment configurations in this package are JSON serializable.
package envconfig

import (
	"fmt"

	env "github.com/samuelfneumann/onpolicy/environment"
	"github.com/samuelfneumann/onpolicy/environment/classiccontrol/cartpole"
	"gonum.org/v1/gonum/spatial/r1"
)

// EnvName stores the name of environments that can be configured with
// this package
type EnvName string

// Environments available for configuration
const (
	Cartpole EnvName = "Cartpole"
)

// TaskName stores the tasks that can be configured with this package.
// Note that not all tasks can be used with all environments. The tasks
// that can be used with each environment are as follows:
//
//	Environment			Task
//	Cartpole			Balance
type TaskName string

// Tasks available for configuration
const (
	Balance TaskName = "Balance"
)

// Config implements a specific configuration of a specific environment
// and specific task
type Config struct {
	Environment   EnvName
	Task          TaskName
	EpisodeCutoff int
	Discount      float64
}

// Validate returns an error if the Config does not describe an
// environment that can be created
func (c Config) Validate() error {
	if c.Environment != Cartpole {
		return fmt.Errorf("no such environment %q", c.Environment)
	}
	if c.Task != Balance {
		return fmt.Errorf("%v environment has no task %q", c.Environment,
			c.Task)
	}
	if c.EpisodeCutoff < 1 {
		return fmt.Errorf("episode cutoff must be positive, have(%v)",
			c.EpisodeCutoff)
	}
	if c.Discount < 0 || c.Discount > 1 {
		return fmt.Errorf("discount must be in [0, 1], have(%v)", c.Discount)
	}
	return nil
}

// Create returns the environment described by the Config
func (c Config) Create(seed uint64) (env.Environment, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("create: %w", err)
	}
	return CreateCartpole(c.EpisodeCutoff, seed, c.Discount), nil
}

// CreateVec returns a synchronous vectorized environment of n
// environments described by the Config. Environment i is seeded with
// seed + i.
func (c Config) CreateVec(n int, seed uint64) (*env.SyncVec, error) {
	envs := make([]env.Environment, n)
	for i := range envs {
		e, err := c.Create(seed + uint64(i))
		if err != nil {
			return nil, fmt.Errorf("createVec: %w", err)
		}
		envs[i] = e
	}
	return env.NewSyncVec(envs...)
}

// CreateCartpole is a factory for creating the continuous-action
// Cartpole environment with default physical parameters and the
// Balance task.
func CreateCartpole(cutoff int, seed uint64, discount float64) *cartpole.Cartpole {
	bounds := r1.Interval{Min: -0.05, Max: 0.05}
	s := env.NewUniformStarter([]r1.Interval{
		bounds,
		bounds,
		bounds,
		bounds,
	}, seed)

	task := cartpole.NewBalance(s, cutoff, cartpole.FailAngle)
	return cartpole.New(task, discount)
}
