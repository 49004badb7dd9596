package environment

import (
	"fmt"

	ts "github.com/samuelfneumann/onpolicy/timestep"
	"gonum.org/v1/gonum/mat"
)

// SyncVec implements a VecEnv which steps a set of single environments
// one after another in the calling goroutine.
//
// When the episode of an environment ends, SyncVec records the last
// observation of that episode in the environment's Info under
// timestep.TerminalObservationKey, marks the Info with
// timestep.TruncatedKey if the episode was ended by a timeout, and
// resets the environment. The observation returned for that
// environment is then the first observation of its next episode.
type SyncVec struct {
	envs   []Environment
	obsDim int
	actDim int
}

// NewSyncVec returns a new SyncVec over envs. All environments must
// have the same observation and action dimensions.
func NewSyncVec(envs ...Environment) (*SyncVec, error) {
	if len(envs) == 0 {
		return nil, fmt.Errorf("newSyncVec: at least one environment is " +
			"required")
	}

	obsDim := envs[0].ObservationSpec().Dim()
	actDim := envs[0].ActionSpec().Dim()
	for i, e := range envs[1:] {
		if e.ObservationSpec().Dim() != obsDim ||
			e.ActionSpec().Dim() != actDim {
			return nil, fmt.Errorf("newSyncVec: environment %d has "+
				"observation and action dimensions (%d, %d), want (%d, %d)",
				i+1, e.ObservationSpec().Dim(), e.ActionSpec().Dim(), obsDim,
				actDim)
		}
	}

	return &SyncVec{envs, obsDim, actDim}, nil
}

// NumEnvs returns the number of environments
func (s *SyncVec) NumEnvs() int { return len(s.envs) }

// ObservationLayout returns the layout of a single environment's
// observation
func (s *SyncVec) ObservationLayout() ts.Layout { return ts.FlatLayout(s.obsDim) }

// ActionDim returns the number of action dimensions of a single
// environment
func (s *SyncVec) ActionDim() int { return s.actDim }

// Reset resets all environments and returns their first observations
func (s *SyncVec) Reset() (ts.Observation, error) {
	obs := mat.NewDense(len(s.envs), s.obsDim, nil)
	for i, e := range s.envs {
		step, err := e.Reset()
		if err != nil {
			return ts.Observation{}, fmt.Errorf("reset: environment %d: %w",
				i, err)
		}
		setRow(obs, i, step.Observation)
	}
	return ts.NewFlat(obs), nil
}

// Step takes one step in each environment, resetting those whose
// episodes end
func (s *SyncVec) Step(actions *mat.Dense) (ts.VecStep, error) {
	if r, c := actions.Dims(); r != len(s.envs) || c != s.actDim {
		return ts.VecStep{}, fmt.Errorf("step: illegal actions shape "+
			"\n\twant(%v, %v)\n\thave(%v, %v)", len(s.envs), s.actDim, r, c)
	}

	n := len(s.envs)
	obs := mat.NewDense(n, s.obsDim, nil)
	step := ts.VecStep{
		Observations: ts.NewFlat(obs),
		Rewards:      make([]float64, n),
		Dones:        make([]bool, n),
		Infos:        make([]ts.Info, n),
	}

	for i, e := range s.envs {
		action := mat.NewVecDense(s.actDim, nil)
		action.CopyVec(actions.RowView(i))

		next, done, err := e.Step(action)
		if err != nil {
			return ts.VecStep{}, fmt.Errorf("step: environment %d: %w", i, err)
		}

		step.Rewards[i] = next.Reward
		step.Dones[i] = done
		step.Infos[i] = ts.Info{}

		if !done {
			setRow(obs, i, next.Observation)
			continue
		}

		last := mat.NewDense(1, s.obsDim, nil)
		setRow(last, 0, next.Observation)
		step.Infos[i][ts.TerminalObservationKey] = ts.NewFlat(last)
		if next.TimeoutEnd() {
			step.Infos[i][ts.TruncatedKey] = true
		}

		first, err := e.Reset()
		if err != nil {
			return ts.VecStep{}, fmt.Errorf("step: resetting environment "+
				"%d: %w", i, err)
		}
		setRow(obs, i, first.Observation)
	}

	return step, nil
}

func setRow(m *mat.Dense, i int, v mat.Vector) {
	for j := 0; j < v.Len(); j++ {
		m.Set(i, j, v.AtVec(j))
	}
}
