package rollout

import (
	"io"

	"github.com/samuelfneumann/onpolicy/agent"
	ts "github.com/samuelfneumann/onpolicy/timestep"
	"gonum.org/v1/gonum/mat"
)

// Step is the full record of one vectorized step, passed to callbacks
type Step struct {
	Observations     ts.Observation
	NextObservations ts.Observation
	Output           agent.Output
	Actions          *mat.Dense
	Rewards          []float64
	Infos            []ts.Info
	Dones            []bool

	// Timeouts reports which environments reached the episode length
	// limit on this step. It is only set by Collect.
	Timeouts []bool
}

// Callback is called after every step with the full step record. A
// non-nil error aborts collection.
type Callback func(s Step) error

// RewardFunc computes the rewards used in place of those reported by
// the environments, given the reported rewards, the observations the
// actions were taken in, and the actions
type RewardFunc func(rewards []float64, obs ts.Observation,
	actions *mat.Dense) []float64

// FormatFunc transforms a completed trajectory into a caller-defined
// record. The observations include the terminal observation.
type FormatFunc func(obs ts.Observation, actions *mat.Dense,
	rewards []float64, infos []ts.Info) interface{}

// CollectConfig configures Collect
type CollectConfig struct {
	Steps    int // Number of vectorized steps to collect
	NumEnvs  int
	MaxEpLen int // Episode length at which a path is closed by a timeout

	Callback     Callback   `json:"-"`
	CustomReward RewardFunc `json:"-"`
}

// Validate returns an error if the configuration is invalid
func (c CollectConfig) Validate() error {
	if c.Steps < 1 {
		return configError("collect", "steps must be positive, have(%v)",
			c.Steps)
	}
	if c.NumEnvs < 1 {
		return configError("collect", "number of environments must be "+
			"positive, have(%v)", c.NumEnvs)
	}
	if c.MaxEpLen < 1 {
		return configError("collect", "max episode length must be "+
			"positive, have(%v)", c.MaxEpLen)
	}
	return nil
}

// TrajectoryConfig configures CollectTrajectories
type TrajectoryConfig struct {
	NumTrajectories int
	NumEnvs         int

	// EvenPerEnv requires each environment to contribute
	// NumTrajectories / NumEnvs trajectories. Trajectories completed by
	// an environment after it has reached its quota are discarded.
	EvenPerEnv bool

	Callback     Callback   `json:"-"`
	Format       FormatFunc `json:"-"`
	CustomReward RewardFunc `json:"-"`

	// ProgressBar, if not nil, receives a progress bar of the number
	// of completed trajectories
	ProgressBar io.Writer `json:"-"`
}

// Validate returns an error if the configuration is invalid
func (c TrajectoryConfig) Validate() error {
	if c.NumTrajectories < 1 {
		return configError("collectTrajectories", "number of trajectories "+
			"must be positive, have(%v)", c.NumTrajectories)
	}
	if c.NumEnvs < 1 {
		return configError("collectTrajectories", "number of environments "+
			"must be positive, have(%v)", c.NumEnvs)
	}
	if c.EvenPerEnv && c.NumTrajectories%c.NumEnvs != 0 {
		return configError("collectTrajectories", "%v trajectories cannot "+
			"be split evenly over %v environments", c.NumTrajectories,
			c.NumEnvs)
	}
	return nil
}
