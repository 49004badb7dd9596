package rollout

import (
	"github.com/google/uuid"
	"github.com/samuelfneumann/onpolicy/agent"
	"github.com/samuelfneumann/onpolicy/environment"
	ts "github.com/samuelfneumann/onpolicy/timestep"
	"github.com/samuelfneumann/onpolicy/utils/progressbar"
	"gonum.org/v1/gonum/mat"
)

const progressBarWidth = 40

// Trajectory is a completed episode of one environment.
//
// Observations has one more row than there are steps: its last row is
// the terminal observation of the episode. If the trajectory was
// collected with a FormatFunc, only ID, Env, Steps, and Data are set,
// and Data holds the formatted record.
type Trajectory struct {
	ID    uuid.UUID
	Env   int
	Steps int

	Observations ts.Observation
	Actions      *mat.Dense
	Rewards      []float64
	Infos        []ts.Info

	Data interface{}
}

// episode accumulates the in-flight episode of one environment
type episode struct {
	obs   []ts.Observation
	acts  [][]float64
	rews  []float64
	infos []ts.Info
}

func (e *episode) reset() {
	e.obs = e.obs[:0]
	e.acts = e.acts[:0]
	e.rews = e.rews[:0]
	e.infos = e.infos[:0]
}

// CollectTrajectories runs policy in env until c.NumTrajectories
// episodes have been completed over all environments combined and
// returns them in order of completion.
//
// If c.EvenPerEnv is set, each environment contributes exactly
// c.NumTrajectories / c.NumEnvs episodes. Episodes completed by an
// environment after it reached its quota are discarded, and the
// returned trajectories are ordered by environment, then by order of
// completion. Collection stops as soon as the last required episode is
// completed, and the in-flight episodes of all other environments are
// discarded.
//
// Only the Actions of the policy's Output are used.
func (r *Rollout) CollectTrajectories(policy agent.Actor,
	env environment.VecEnv, c TrajectoryConfig) ([]Trajectory, error) {
	const op = "collectTrajectories"

	if err := c.Validate(); err != nil {
		return nil, err
	}
	if env.NumEnvs() != c.NumEnvs {
		return nil, configError(op, "environment must have %d "+
			"environments, have(%d)", c.NumEnvs, env.NumEnvs())
	}
	n := c.NumEnvs

	quota := c.NumTrajectories
	if c.EvenPerEnv {
		quota = c.NumTrajectories / n
	}

	var bar *progressbar.ManualProgressBar
	if c.ProgressBar != nil {
		bar = progressbar.NewManualProgressBar(c.ProgressBar,
			progressBarWidth, c.NumTrajectories)
		defer bar.Close()
	}

	obs, err := env.Reset()
	if err != nil {
		return nil, &Error{Op: op, Err: err}
	}

	episodes := make([]episode, n)
	perEnv := make([][]Trajectory, n)
	var trajectories []Trajectory
	count := 0

	for {
		out, err := policy.Act(obs)
		if err != nil {
			return nil, &Error{Op: op, Err: err}
		}
		if err := checkActions(op, out, n); err != nil {
			return nil, err
		}
		for e := range episodes {
			episodes[e].obs = append(episodes[e].obs, obs.Row(e))
			action := append([]float64(nil), out.Actions.RawRowView(e)...)
			episodes[e].acts = append(episodes[e].acts, action)
		}

		step, err := env.Step(out.Actions)
		if err != nil {
			return nil, &Error{Op: op, Err: err}
		}
		if err := checkStep(op, step, n); err != nil {
			return nil, err
		}
		rewards, err := reward(op, c.CustomReward, step.Rewards, obs,
			out.Actions)
		if err != nil {
			return nil, err
		}
		for e := range episodes {
			episodes[e].rews = append(episodes[e].rews, rewards[e])
			episodes[e].infos = append(episodes[e].infos, step.Infos[e])
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
			})
			if err != nil {
				return nil, &Error{Op: op, Err: err}
			}
		}

		obs = step.Observations
		for e, done := range step.Dones {
			if !done {
				continue
			}

			if len(perEnv[e]) < quota {
				last, ok := step.Infos[e].TerminalObservation()
				if !ok {
					r.logger.Debug().Int("env", e).
						Msg("no terminal observation, using next observation")
					last = obs.Row(e)
				}

				traj, err := newTrajectory(e, &episodes[e], last, c.Format)
				if err != nil {
					return nil, &Error{Op: op, Err: err}
				}
				perEnv[e] = append(perEnv[e], traj)
				trajectories = append(trajectories, traj)
				count++

				if bar != nil {
					bar.Increment()
					bar.Display()
				}
			}
			episodes[e].reset()

			if count == c.NumTrajectories {
				if !c.EvenPerEnv {
					return trajectories, nil
				}
				ordered := make([]Trajectory, 0, count)
				for _, trajs := range perEnv {
					ordered = append(ordered, trajs...)
				}
				return ordered, nil
			}
		}
	}
}

// newTrajectory packages the episode of environment env, ending in the
// terminal observation last
func newTrajectory(env int, ep *episode, last ts.Observation,
	format FormatFunc) (Trajectory, error) {
	observations := make([]ts.Observation, len(ep.obs), len(ep.obs)+1)
	copy(observations, ep.obs)
	obs, err := ts.Stack(append(observations, last))
	if err != nil {
		return Trajectory{}, err
	}

	steps := len(ep.rews)
	actDim := len(ep.acts[0])
	actData := make([]float64, 0, steps*actDim)
	for _, a := range ep.acts {
		actData = append(actData, a...)
	}
	actions := mat.NewDense(steps, actDim, actData)
	rewards := append([]float64(nil), ep.rews...)
	infos := append([]ts.Info(nil), ep.infos...)

	traj := Trajectory{
		ID:    uuid.New(),
		Env:   env,
		Steps: steps,
	}
	if format != nil {
		traj.Data = format(obs, actions, rewards, infos)
		return traj, nil
	}

	traj.Observations = obs
	traj.Actions = actions
	traj.Rewards = rewards
	traj.Infos = infos
	return traj, nil
}
