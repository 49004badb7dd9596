// Package actorcritic implements a batch policy gradient learner for
// linear Gaussian actor-critics
package actorcritic

import (
	"fmt"

	"github.com/samuelfneumann/onpolicy/agent/linear/continuous/policy"
	"github.com/samuelfneumann/onpolicy/buffer/gae"
	"github.com/samuelfneumann/onpolicy/utils/matutils"
	"gonum.org/v1/gonum/mat"
)

// Learner updates the weights of a linear Gaussian policy with one
// vanilla policy gradient step per batch, weighting the score of each
// action by its advantage. The critic is regressed onto the
// rewards-to-go with one gradient step per batch.
//
// The Learner and the policy share weights, so updates are seen by the
// policy immediately.
type Learner struct {
	policy             *policy.Gaussian
	actorLearningRate  float64
	criticLearningRate float64
}

// NewLearner returns a new Learner for the policy p
func NewLearner(p *policy.Gaussian, actorLearningRate,
	criticLearningRate float64) (*Learner, error) {
	if actorLearningRate <= 0 || criticLearningRate <= 0 {
		return nil, fmt.Errorf("newLearner: learning rates must be "+
			"positive, have(%v, %v)", actorLearningRate, criticLearningRate)
	}
	return &Learner{p, actorLearningRate, criticLearningRate}, nil
}

// Update performs a single update to the policy from a batch of
// experience
func (l *Learner) Update(batch gae.Batch) error {
	n := batch.Len()
	if n == 0 {
		return fmt.Errorf("update: empty batch")
	}

	weights := l.policy.Weights()
	meanWeights := weights[policy.MeanWeightsKey]
	stdWeights := weights[policy.StdWeightsKey]
	criticWeights := weights[policy.CriticWeightsKey]
	actionDims, features := meanWeights.Dims()

	obs := batch.Obs.Concat()
	if r, c := obs.Dims(); r != n || c != features {
		return fmt.Errorf("update: illegal observation shape \n\twant(%v, %v)"+
			"\n\thave(%v, %v)", n, features, r, c)
	}

	meanGrad := mat.NewDense(actionDims, features, nil)
	stdGrad := mat.NewDense(actionDims, features, nil)
	criticGrad := mat.NewVecDense(features, nil)

	for i := 0; i < n; i++ {
		state := obs.RowView(i)
		mean := l.policy.Mean(state)
		std := l.policy.Std(state)
		adv := batch.Adv[i]

		for d := 0; d < actionDims; d++ {
			z := (batch.Act.At(i, d) - mean.AtVec(d)) / std.AtVec(d)

			// Score of the action with respect to the mean and the log
			// standard deviation
			meanScale := adv * z / std.AtVec(d)
			stdScale := adv * (z*z - 1)

			for j := 0; j < features; j++ {
				meanGrad.Set(d, j, meanGrad.At(d, j)+meanScale*state.AtVec(j))
				stdGrad.Set(d, j, stdGrad.At(d, j)+stdScale*state.AtVec(j))
			}
		}

		value := mat.Dot(criticWeights.RowView(0), state)
		criticGrad.AddScaledVec(criticGrad, batch.Ret[i]-value, state)
	}

	actorStep := l.actorLearningRate / float64(n)
	meanWeights.Apply(func(d, j int, w float64) float64 {
		return w + actorStep*meanGrad.At(d, j)
	}, meanWeights)
	stdWeights.Apply(func(d, j int, w float64) float64 {
		return w + actorStep*stdGrad.At(d, j)
	}, stdWeights)

	criticStep := l.criticLearningRate / float64(n)
	for j := 0; j < features; j++ {
		criticWeights.Set(0, j, criticWeights.At(0, j)+
			criticStep*criticGrad.AtVec(j))
	}

	if !matutils.Finite(meanWeights) || !matutils.Finite(stdWeights) ||
		!matutils.Finite(criticWeights) {
		return fmt.Errorf("update: weights diverged")
	}
	return nil
}
