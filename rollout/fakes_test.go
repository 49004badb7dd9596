package rollout

import (
	"fmt"

	"github.com/samuelfneumann/onpolicy/agent"
	ts "github.com/samuelfneumann/onpolicy/timestep"
	"gonum.org/v1/gonum/mat"
)

// scriptedEnv is a vectorized environment whose observation in
// environment e after l steps of the current episode is 100*e + l. Each
// step gives a reward of 1.
//
// An episode of environment e is done after lengths[e] steps, if
// lengths[e] > 0, or on the global steps (counted from 1) in doneAt[e].
type scriptedEnv struct {
	n          int
	dict       bool
	lengths    []int
	doneAt     []map[int]bool
	truncated  bool // Report done episodes as truncated
	noTerminal bool // Omit the terminal observation

	local []int
	steps int
}

func (s *scriptedEnv) NumEnvs() int { return s.n }

func (s *scriptedEnv) value(e int) float64 {
	return float64(100*e + s.local[e])
}

func (s *scriptedEnv) observation(values []float64) ts.Observation {
	n := len(values)
	if !s.dict {
		return ts.NewFlat(mat.NewDense(n, 1, values))
	}
	ids := make([]float64, n)
	for i := range ids {
		ids[i] = float64(i)
	}
	return ts.NewDict(map[string]*mat.Dense{
		"id":  mat.NewDense(n, 1, ids),
		"pos": mat.NewDense(n, 1, values),
	})
}

// single returns the current observation of environment e alone
func (s *scriptedEnv) single(e int) ts.Observation {
	v := mat.NewDense(1, 1, []float64{s.value(e)})
	if !s.dict {
		return ts.NewFlat(v)
	}
	return ts.NewDict(map[string]*mat.Dense{
		"id":  mat.NewDense(1, 1, []float64{float64(e)}),
		"pos": v,
	})
}

func (s *scriptedEnv) Reset() (ts.Observation, error) {
	s.local = make([]int, s.n)
	s.steps = 0
	values := make([]float64, s.n)
	for e := range values {
		values[e] = s.value(e)
	}
	return s.observation(values), nil
}

func (s *scriptedEnv) Step(actions *mat.Dense) (ts.VecStep, error) {
	if r, _ := actions.Dims(); r != s.n {
		return ts.VecStep{}, fmt.Errorf("step: want %d actions", s.n)
	}

	s.steps++
	values := make([]float64, s.n)
	step := ts.VecStep{
		Rewards: make([]float64, s.n),
		Dones:   make([]bool, s.n),
		Infos:   make([]ts.Info, s.n),
	}
	for e := 0; e < s.n; e++ {
		s.local[e]++
		step.Rewards[e] = 1
		step.Infos[e] = ts.Info{}

		done := (s.lengths != nil && s.lengths[e] > 0 &&
			s.local[e] == s.lengths[e]) ||
			(s.doneAt != nil && s.doneAt[e][s.steps])
		if done {
			step.Dones[e] = true
			if !s.noTerminal {
				step.Infos[e][ts.TerminalObservationKey] = s.single(e)
			}
			if s.truncated {
				step.Infos[e][ts.TruncatedKey] = true
			}
			s.local[e] = 0
		}
		values[e] = s.value(e)
	}
	step.Observations = s.observation(values)
	return step, nil
}

// valueOffset separates the bootstrap values returned by fakePolicy
// from observations
const valueOffset = 1000

// fakePolicy selects as action the last feature of each observation
// and estimates the value of an observation as its last feature plus
// valueOffset. The value estimates returned by Act are always 0.
type fakePolicy struct {
	noValues  bool
	noActions bool
	acts      int
	valueObs  []float64 // Observations passed to Value
}

func (f *fakePolicy) Act(obs ts.Observation) (agent.Output, error) {
	f.acts++
	n := obs.Rows()
	out := agent.Output{}
	if !f.noActions {
		out.Actions = mat.NewDense(n, 1, nil)
		for i := 0; i < n; i++ {
			row := obs.RowData(i)
			out.Actions.Set(i, 0, row[len(row)-1])
		}
	}
	if !f.noValues {
		out.Values = make([]float64, n)
		out.LogProbs = make([]float64, n)
	}
	return out, nil
}

func (f *fakePolicy) Value(obs ts.Observation) ([]float64, error) {
	n := obs.Rows()
	v := make([]float64, n)
	for i := 0; i < n; i++ {
		row := obs.RowData(i)
		f.valueObs = append(f.valueObs, row[len(row)-1])
		v[i] = row[len(row)-1] + valueOffset
	}
	return v, nil
}

// closure records a call to FinishPath
type closure struct {
	env     int
	lastVal float64
	ptr     int
}

// fakeBuffer records the calls made to it
type fakeBuffer struct {
	n        int
	ptr      int
	closures []closure
	rewards  [][]float64
}

func (f *fakeBuffer) NumEnvs() int { return f.n }

func (f *fakeBuffer) Store(obs ts.Observation, act *mat.Dense, rew, val,
	logp []float64) error {
	f.ptr++
	f.rewards = append(f.rewards, append([]float64(nil), rew...))
	return nil
}

func (f *fakeBuffer) FinishPath(env int, lastVal float64) error {
	f.closures = append(f.closures, closure{env, lastVal, f.ptr})
	return nil
}

// closuresOf returns the closures of environment env
func (f *fakeBuffer) closuresOf(env int) []closure {
	var out []closure
	for _, c := range f.closures {
		if c.env == env {
			out = append(out, c)
		}
	}
	return out
}
