// Package policy implements linear continuous-action policies
package policy

import (
	"fmt"
	"math"

	"github.com/samuelfneumann/onpolicy/agent"
	ts "github.com/samuelfneumann/onpolicy/timestep"
	"github.com/samuelfneumann/onpolicy/utils/matutils"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"
)

const StdOffset float64 = 1e-3

const (
	// Keys for weights map: map[string]*mat.Dense
	MeanWeightsKey   string = "mean"
	StdWeightsKey    string = "standard deviation"
	CriticWeightsKey string = "critic"
)

// Gaussian implements a multi-dimensional linear Gaussian actor-critic.
// The policy uses linear function approximation to compute the mean
// and log standard deviation of each action dimension, and a linear
// critic to estimate state values. Structured observations are
// flattened by concatenating their parts in sorted key order.
//
// In evaluation mode the policy acts greedily, returning the mean
// action.
type Gaussian struct {
	meanWeights   *mat.Dense
	stdWeights    *mat.Dense
	criticWeights *mat.Dense
	features      int
	actionDims    int
	source        rand.Source
	eval          bool
}

// NewGaussian creates a new Gaussian policy with all weights zero for
// observations with layout obs and actions with actionDims dimensions
func NewGaussian(seed uint64, obs ts.Layout, actionDims int) *Gaussian {
	features := obs.Dim()
	if actionDims < 1 || features < 1 {
		panic(fmt.Sprintf("newGaussian: features and action dimensions "+
			"must be positive, have(%v, %v)", features, actionDims))
	}

	return &Gaussian{
		meanWeights:   mat.NewDense(actionDims, features, nil),
		stdWeights:    mat.NewDense(actionDims, features, nil),
		criticWeights: mat.NewDense(1, features, nil),
		features:      features,
		actionDims:    actionDims,
		source:        rand.NewSource(seed),
	}
}

// Eval sets the policy to evaluation mode
func (g *Gaussian) Eval() { g.eval = true }

// Train sets the policy to training mode
func (g *Gaussian) Train() { g.eval = false }

// IsEval returns whether the policy is in evaluation mode
func (g *Gaussian) IsEval() bool { return g.eval }

// Std gets the standard deviation of the policy given some state
// observation obs
func (g *Gaussian) Std(obs mat.Vector) *mat.VecDense {
	stdVec := mat.NewVecDense(g.actionDims, nil)
	stdVec.MulVec(g.stdWeights, obs)
	for i := 0; i < stdVec.Len(); i++ {
		std := math.Exp(stdVec.AtVec(i))
		stdVec.SetVec(i, std+StdOffset)
	}
	return stdVec
}

// Mean gets the mean of the policy given some state observation obs
func (g *Gaussian) Mean(obs mat.Vector) *mat.VecDense {
	mean := mat.NewVecDense(g.actionDims, nil)
	mean.MulVec(g.meanWeights, obs)
	return mean
}

// Act selects an action for each row of obs, along with its log
// probability under the policy and the critic's value estimate
func (g *Gaussian) Act(obs ts.Observation) (agent.Output, error) {
	x, err := g.featureMatrix(obs)
	if err != nil {
		return agent.Output{}, fmt.Errorf("act: %w", err)
	}

	n, _ := x.Dims()
	out := agent.Output{
		Actions:  mat.NewDense(n, g.actionDims, nil),
		Values:   g.values(x),
		LogProbs: make([]float64, n),
	}

	for i := 0; i < n; i++ {
		row := x.RowView(i)
		dist, err := g.distribution(row)
		if err != nil {
			return agent.Output{}, fmt.Errorf("act: %w", err)
		}

		var action []float64
		if g.eval {
			action = g.Mean(row).RawVector().Data
		} else {
			action = dist.Rand(nil)
		}
		out.Actions.SetRow(i, action)
		out.LogProbs[i] = dist.LogProb(action)
	}

	return out, nil
}

// Value returns the critic's value estimate of each row of obs
func (g *Gaussian) Value(obs ts.Observation) ([]float64, error) {
	x, err := g.featureMatrix(obs)
	if err != nil {
		return nil, fmt.Errorf("value: %w", err)
	}
	return g.values(x), nil
}

// LogProb returns the log probability of each row of actions given the
// corresponding row of obs
func (g *Gaussian) LogProb(obs ts.Observation, actions *mat.Dense) ([]float64,
	error) {
	x, err := g.featureMatrix(obs)
	if err != nil {
		return nil, fmt.Errorf("logProb: %w", err)
	}
	n, _ := x.Dims()
	if r, c := actions.Dims(); r != n || c != g.actionDims {
		return nil, fmt.Errorf("logProb: illegal actions shape \n\twant(%v, %v)"+
			"\n\thave(%v, %v)", n, g.actionDims, r, c)
	}

	logp := make([]float64, n)
	for i := 0; i < n; i++ {
		dist, err := g.distribution(x.RowView(i))
		if err != nil {
			return nil, fmt.Errorf("logProb: %w", err)
		}
		logp[i] = dist.LogProb(actions.RawRowView(i))
	}
	return logp, nil
}

// Weights gets and returns the weights of the policy
func (g *Gaussian) Weights() map[string]*mat.Dense {
	weights := make(map[string]*mat.Dense)

	weights[MeanWeightsKey] = g.meanWeights
	weights[StdWeightsKey] = g.stdWeights
	weights[CriticWeightsKey] = g.criticWeights

	return weights
}

// SetWeights sets the weight pointers to point to a new set of weights.
// No weights are changed if an error is returned.
func (g *Gaussian) SetWeights(weights map[string]*mat.Dense) error {
	shapes := map[string][2]int{
		MeanWeightsKey:   {g.actionDims, g.features},
		StdWeightsKey:    {g.actionDims, g.features},
		CriticWeightsKey: {1, g.features},
	}
	for key, shape := range shapes {
		w, ok := weights[key]
		if !ok {
			return fmt.Errorf("setWeights: no weights named \"%v\"", key)
		}
		if r, c := w.Dims(); r != shape[0] || c != shape[1] {
			return fmt.Errorf("setWeights: illegal shape of %q weights "+
				"\n\twant(%v, %v)\n\thave(%v, %v)", key, shape[0], shape[1], r,
				c)
		}
	}

	g.meanWeights = weights[MeanWeightsKey]
	g.stdWeights = weights[StdWeightsKey]
	g.criticWeights = weights[CriticWeightsKey]
	return nil
}

// distribution returns the action distribution in the state with
// features obs
func (g *Gaussian) distribution(obs mat.Vector) (*distmv.Normal, error) {
	mean := g.Mean(obs)
	std := g.Std(obs)

	variance := make([]float64, g.actionDims)
	for i := range variance {
		variance[i] = std.AtVec(i) * std.AtVec(i)
	}
	cov := mat.NewDiagDense(g.actionDims, variance)

	dist, ok := distmv.NewNormal(mean.RawVector().Data, cov, g.source)
	if !ok {
		return nil, fmt.Errorf("normal has non-positive-definite "+
			"covariance %v", matutils.Format(cov))
	}
	return dist, nil
}

// values returns the critic's value estimate of each row of x
func (g *Gaussian) values(x *mat.Dense) []float64 {
	n, _ := x.Dims()
	v := mat.NewDense(n, 1, nil)
	v.Mul(x, g.criticWeights.T())
	return v.RawMatrix().Data
}

// featureMatrix returns the features of obs, one row per environment
func (g *Gaussian) featureMatrix(obs ts.Observation) (*mat.Dense, error) {
	if obs.IsZero() {
		return nil, fmt.Errorf("empty observation")
	}
	x := obs.Concat()
	if _, c := x.Dims(); c != g.features {
		return nil, fmt.Errorf("illegal number of features \n\twant(%v)"+
			"\n\thave(%v)", g.features, c)
	}
	return x, nil
}
