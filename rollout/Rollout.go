// Package rollout implements the collection of experience from a set
// of environments stepped in lockstep, either into a GAE buffer for a
// fixed number of steps or as a fixed number of complete trajectories
package rollout

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/samuelfneumann/onpolicy/agent"
	"github.com/samuelfneumann/onpolicy/environment"
	"github.com/samuelfneumann/onpolicy/experiment/tracker"
	ts "github.com/samuelfneumann/onpolicy/timestep"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Tag is the tag under which collection statistics are stored
const Tag string = "train"

// Keys of the statistics stored by Collect
const (
	EpRetKey       string = "EpRet"
	EpLenKey       string = "EpLen"
	VValsKey       string = "VVals"
	RolloutTimeKey string = "RolloutTime"
)

// Buffer stores the experience collected by Collect
type Buffer interface {
	NumEnvs() int
	Store(obs ts.Observation, act *mat.Dense, rew, val, logp []float64) error
	FinishPath(env int, lastVal float64) error
}

// Tracker records named scalar statistics
type Tracker interface {
	Store(tag string, stats map[string]float64, mode tracker.Mode)
}

// Rollout drives the interaction of a policy with a vectorized
// environment. A Rollout holds no state between calls.
type Rollout struct {
	logger  zerolog.Logger
	tracker Tracker
}

// New returns a new Rollout. If t is nil, no statistics are recorded.
func New(logger zerolog.Logger, t Tracker) *Rollout {
	return &Rollout{
		logger:  logger.With().Str("component", "rollout").Logger(),
		tracker: t,
	}
}

// Collect runs exactly c.Steps vectorized steps of policy in env,
// storing every step in buf.
//
// The path of an environment is closed, and its advantages and returns
// computed by buf, when the environment reports that its episode is
// done, when the episode reaches c.MaxEpLen steps, or on the last step.
// A path closed by a true termination is closed with a value of 0.
// Otherwise, the value of the last observation is bootstrapped from
// policy. Episodes which the environment reports as done but marks
// with timestep.TruncatedKey are treated as timeouts. Paths closed by
// the last step only are logged with a warning and do not record the
// episodic return and length.
//
// The policy must fill in the Values and LogProbs of its Output.
func (r *Rollout) Collect(policy agent.ActorCritic, env environment.VecEnv,
	buf Buffer, c CollectConfig) error {
	const op = "collect"

	if err := c.Validate(); err != nil {
		return err
	}
	if env.NumEnvs() != c.NumEnvs || buf.NumEnvs() != c.NumEnvs {
		return configError(op, "environment and buffer must have %d "+
			"environments, have(%d, %d)", c.NumEnvs, env.NumEnvs(),
			buf.NumEnvs())
	}
	n := c.NumEnvs

	start := time.Now()
	obs, err := env.Reset()
	if err != nil {
		return &Error{Op: op, Err: err}
	}

	epRet := make([]float64, n)
	epLen := make([]int, n)
	for t := 0; t < c.Steps; t++ {
		out, err := policy.Act(obs)
		if err != nil {
			return &Error{Op: op, Err: err}
		}
		if err := checkActions(op, out, n); err != nil {
			return err
		}
		if len(out.Values) != n || len(out.LogProbs) != n {
			return contractError(op, "want %d values and log "+
				"probabilities, have(%d, %d)", n, len(out.Values),
				len(out.LogProbs))
		}

		step, err := env.Step(out.Actions)
		if err != nil {
			return &Error{Op: op, Err: err}
		}
		if err := checkStep(op, step, n); err != nil {
			return err
		}
		rewards, err := reward(op, c.CustomReward, step.Rewards, obs,
			out.Actions)
		if err != nil {
			return err
		}

		floats.Add(epRet, rewards)
		timeouts := make([]bool, n)
		for e := range epLen {
			epLen[e]++
			timeouts[e] = epLen[e] == c.MaxEpLen ||
				(step.Dones[e] && step.Infos[e].Truncated())
		}

		if err := buf.Store(obs, out.Actions, rewards, out.Values,
			out.LogProbs); err != nil {
			return &Error{Op: op, Err: err}
		}

		if c.Callback != nil {
			err := c.Callback(Step{
				Observations:     obs,
				NextObservations: step.Observations,
				Output:           out,
				Actions:          out.Actions,
				Rewards:          rewards,
				Infos:            step.Infos,
				Dones:            step.Dones,
				Timeouts:         timeouts,
			})
			if err != nil {
				return &Error{Op: op, Err: err}
			}
		}
		for _, v := range out.Values {
			r.store(map[string]float64{VValsKey: v}, tracker.Append)
		}

		obs = step.Observations
		epochEnded := t == c.Steps-1

		for e := 0; e < n; e++ {
			done := step.Dones[e] && !timeouts[e]
			terminal := done || timeouts[e]
			if !terminal && !epochEnded {
				continue
			}

			if epochEnded && !terminal {
				r.logger.Warn().Int("env", e).Int("steps", epLen[e]).
					Msg("trajectory cut off by epoch")
			}

			// A true termination has no value beyond it
			lastVal := 0.0
			if !done {
				lastVal, err = r.bootstrap(op, policy, obs, step, e)
				if err != nil {
					return err
				}
			}
			if err := buf.FinishPath(e, lastVal); err != nil {
				return &Error{Op: op, Err: err}
			}

			if terminal {
				r.store(map[string]float64{
					EpRetKey: epRet[e],
					EpLenKey: float64(epLen[e]),
				}, tracker.Append)
			}
			epRet[e] = 0
			epLen[e] = 0
		}
	}

	r.store(map[string]float64{
		RolloutTimeKey: time.Since(start).Seconds(),
	}, tracker.Overwrite)
	return nil
}

// bootstrap returns the policy's value estimate of the observation at
// which the path of environment e was cut off. This is the terminal
// observation reported by the environment if there is one, and
// otherwise the next observation of e.
func (r *Rollout) bootstrap(op string, policy agent.ActorCritic,
	next ts.Observation, step ts.VecStep, e int) (float64, error) {
	o, ok := step.Infos[e].TerminalObservation()
	if !ok {
		if step.Dones[e] {
			r.logger.Debug().Int("env", e).
				Msg("no terminal observation, bootstrapping from next " +
					"observation")
		}
		o = next.Row(e)
	}

	v, err := policy.Value(o)
	if err != nil {
		return 0, &Error{Op: op, Err: err}
	}
	if len(v) != 1 {
		return 0, contractError(op, "want 1 bootstrap value, have(%d)",
			len(v))
	}
	return v[0], nil
}

// store stores stats in the tracker, if there is one
func (r *Rollout) store(stats map[string]float64, mode tracker.Mode) {
	if r.tracker != nil {
		r.tracker.Store(Tag, stats, mode)
	}
}

// checkActions ensures the policy selected one action per environment
func checkActions(op string, out agent.Output, n int) error {
	if out.Actions == nil {
		return contractError(op, "no actions")
	}
	if r, _ := out.Actions.Dims(); r != n {
		return contractError(op, "want %d actions, have(%d)", n, r)
	}
	return nil
}

// checkStep ensures the environment reported one reward, done flag,
// and info per environment
func checkStep(op string, step ts.VecStep, n int) error {
	if len(step.Rewards) != n || len(step.Dones) != n ||
		len(step.Infos) != n || step.Observations.Rows() != n {
		return &Error{
			Op: op,
			Err: fmt.Errorf("environment returned (%d, %d, %d, %d) "+
				"observations, rewards, done flags, and infos, want %d",
				step.Observations.Rows(), len(step.Rewards), len(step.Dones),
				len(step.Infos), n),
		}
	}
	return nil
}

// reward returns the rewards to use for a step, computed by f if it is
// not nil
func reward(op string, f RewardFunc, rewards []float64, obs ts.Observation,
	actions *mat.Dense) ([]float64, error) {
	if f == nil {
		return rewards, nil
	}
	custom := f(rewards, obs, actions)
	if len(custom) != len(rewards) {
		return nil, configError(op, "custom reward returned %d rewards, "+
			"want %d", len(custom), len(rewards))
	}
	return custom, nil
}
