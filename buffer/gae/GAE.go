// Package gae implements functionality for storing a generalized
// advantage estimate buffer for a set of environments stepped in
// lockstep
package gae

import (
	"fmt"
	"math"

	"github.com/samuelfneumann/onpolicy/buffer"
	ts "github.com/samuelfneumann/onpolicy/timestep"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// MinStd is the smallest standard deviation used when normalizing
// advantages. If all advantages in an epoch are (nearly) identical,
// normalization divides by MinStd so that the returned advantages are
// zero rather than NaN or Inf. Batch.AdvStd always reports the raw
// standard deviation.
const MinStd float64 = 1e-8

// Buffer implements a forward view generalized advantage estimate -
// GAE(λ) - buffer following https://arxiv.org/abs/1506.02438 for
// nEnvs environments which are stepped together.
//
// All environments share a single write position, which advances by
// one each time Store() is called. Each environment keeps its own start
// index of the current trajectory, so that trajectories of different
// environments can be finished at different times. A trajectory of an
// environment is the half open range [pathStart, ptr) of that
// environment's column.
//
// The Buffer must be filled exactly to capacity before Get() is called,
// and must not be stored to after Get() until the next epoch of data
// collection begins.
type Buffer struct {
	obsLayout  ts.Layout // Layout of a single environment's observation
	actionSize int       // Number of action dimensions
	maxSize    int       // Max number of timesteps per environment
	nEnvs      int       // Number of environments

	currentPos   int   // Current position in the buffer
	pathStartIdx []int // Where the current trajectory of each env starts

	lambda float64 // λ for GAE(λ) calculation
	gamma  float64 // Discount factor ℽ; overwrites env discount factor

	// Buffers for storing data, shaped (maxSize, nEnvs, ...) and
	// stored time-major
	obsBuffer  *buffer.Field
	actBuffer  *buffer.Field
	advBuffer  []float64
	rewBuffer  []float64
	retBuffer  []float64
	valBuffer  []float64
	logpBuffer []float64
}

// New creates and returns a new GAE(λ) buffer which can hold size
// timesteps of nEnvs environments
func New(obs ts.Layout, actDim, size, nEnvs int, lambda,
	gamma float64) *Buffer {
	if actDim < 1 {
		panic(fmt.Sprintf("new: action dimension must be positive, "+
			"have(%v)", actDim))
	}
	if size < 1 || nEnvs < 1 {
		panic(fmt.Sprintf("new: size and nEnvs must be positive, "+
			"have(%v, %v)", size, nEnvs))
	}

	n := size * nEnvs
	return &Buffer{
		obsLayout:    obs,
		actionSize:   actDim,
		maxSize:      size,
		nEnvs:        nEnvs,
		currentPos:   0,
		pathStartIdx: make([]int, nEnvs),
		lambda:       lambda,
		gamma:        gamma,
		obsBuffer:    buffer.NewField(obs, size, nEnvs),
		actBuffer:    buffer.NewField(ts.FlatLayout(actDim), size, nEnvs),
		advBuffer:    make([]float64, n),
		rewBuffer:    make([]float64, n),
		retBuffer:    make([]float64, n),
		valBuffer:    make([]float64, n),
		logpBuffer:   make([]float64, n),
	}
}

// Size returns the number of timesteps per environment the Buffer
// holds
func (b *Buffer) Size() int { return b.maxSize }

// NumEnvs returns the number of environments the Buffer stores data
// for
func (b *Buffer) NumEnvs() int { return b.nEnvs }

// Ptr returns the current write position of the Buffer
func (b *Buffer) Ptr() int { return b.currentPos }

// PathStart returns the position at which the current trajectory of
// environment env starts
func (b *Buffer) PathStart(env int) int { return b.pathStartIdx[env] }

// Full returns whether the Buffer has been filled to capacity
func (b *Buffer) Full() bool { return b.currentPos == b.maxSize }

// Store stores a single timestep of observations, actions, rewards,
// values, and log probabilities of actions for all environments. Each
// argument must have one entry (or row) per environment.
//
// Store returns an error satisfying buffer.IsCapacityExceeded if the
// Buffer is already full. No data is stored if an error is returned.
func (b *Buffer) Store(obs ts.Observation, act *mat.Dense, rew, val,
	logp []float64) error {
	if b.currentPos >= b.maxSize {
		return &buffer.Error{Op: "store", Err: buffer.ErrCapacityExceeded}
	}
	if len(rew) != b.nEnvs || len(val) != b.nEnvs || len(logp) != b.nEnvs {
		return &buffer.Error{
			Op: "store",
			Err: fmt.Errorf("%w: want %d rewards, values, and log "+
				"probabilities, have(%d, %d, %d)", buffer.ErrShapeMismatch,
				b.nEnvs, len(rew), len(val), len(logp)),
		}
	}
	if act == nil {
		return &buffer.Error{
			Op:  "store",
			Err: fmt.Errorf("%w: nil actions", buffer.ErrShapeMismatch),
		}
	}
	if r, c := act.Dims(); r != b.nEnvs || c != b.actionSize {
		return &buffer.Error{
			Op: "store",
			Err: fmt.Errorf("%w: illegal act shape \n\twant(%v, %v)"+
				"\n\thave(%v, %v)", buffer.ErrShapeMismatch, b.nEnvs,
				b.actionSize, r, c),
		}
	}

	if err := b.obsBuffer.Set(b.currentPos, obs); err != nil {
		return &buffer.Error{Op: "store", Err: err}
	}
	if err := b.actBuffer.Set(b.currentPos, ts.NewFlat(act)); err != nil {
		return &buffer.Error{Op: "store", Err: err}
	}

	start := b.currentPos * b.nEnvs
	copy(b.rewBuffer[start:start+b.nEnvs], rew)
	copy(b.valBuffer[start:start+b.nEnvs], val)
	copy(b.logpBuffer[start:start+b.nEnvs], logp)
	b.currentPos++
	return nil
}

// FinishPath computes advatange estimates using GAE(λ) and
// rewards-to-go estimates for each state of the current trajectory
// of environment env. This should be called at the end of a
// trajectory or when one gets cut off by a timeout or an epoch ending.
//
// The lastVal argument should be 0 if the trajectory ended because
// the agent reached a terminal state, and otherwise it should be
// v(s), the value estimate of the last observed state. This allows for
// bootstrapping the rewards-to-go calculation to account for timesteps
// beyond the arbitrary episode horizon or epoch cutoff.
func (b *Buffer) FinishPath(env int, lastVal float64) error {
	if env < 0 || env >= b.nEnvs {
		return &buffer.Error{
			Op:  "finishPath",
			Err: fmt.Errorf("environment %d out of range [0, %d)", env, b.nEnvs),
		}
	}

	start := b.pathStartIdx[env]
	stop := b.currentPos
	n := stop - start

	rews := make([]float64, n+1)
	vals := make([]float64, n+1)
	for i := 0; i < n; i++ {
		rews[i] = b.rewBuffer[b.index(start+i, env)]
		vals[i] = b.valBuffer[b.index(start+i, env)]
	}
	rews[n] = lastVal
	vals[n] = lastVal

	// GAE-lambda advantage calculation
	deltas := make([]float64, n)
	floats.AddScaledTo(deltas, rews[:n], b.gamma, vals[1:])
	floats.Sub(deltas, vals[:n])
	adv := discountCumSum(deltas, b.gamma*b.lambda)

	// Rewards-to-go, dropping the bootstrap element
	rewsToGo := discountCumSum(rews, b.gamma)

	for i := 0; i < n; i++ {
		b.advBuffer[b.index(start+i, env)] = adv[i]
		b.retBuffer[b.index(start+i, env)] = rewsToGo[i]
	}

	b.pathStartIdx[env] = b.currentPos
	return nil
}

// Get returns all data stored in the buffer as a Batch and resets the
// Buffer's write position and trajectory start indices. Advantages are
// first standardized to mean 0 and standard deviation 1 over all
// environments and timesteps.
//
// Get returns an error satisfying buffer.IsPrematureRead if the Buffer
// is not full.
func (b *Buffer) Get() (Batch, error) {
	if b.currentPos != b.maxSize {
		return Batch{}, &buffer.Error{Op: "get", Err: buffer.ErrPrematureRead}
	}

	b.currentPos = 0
	for i := range b.pathStartIdx {
		b.pathStartIdx[i] = 0
	}

	// Advantage normalization
	mean, std := stat.PopMeanStdDev(b.advBuffer, nil)
	floats.AddConst(-mean, b.advBuffer)
	floats.Scale(1/math.Max(std, MinStd), b.advBuffer)

	batch := Batch{
		Obs:     b.obsBuffer.Flatten(),
		Act:     b.actBuffer.Flatten().Flat(),
		Ret:     copyOf(b.retBuffer),
		Adv:     copyOf(b.advBuffer),
		LogP:    copyOf(b.logpBuffer),
		AdvMean: mean,
		AdvStd:  std,
	}

	// Positions of trajectories that are never finished in the next
	// epoch must not carry over this epoch's estimates
	zero(b.advBuffer)
	zero(b.retBuffer)

	return batch, nil
}

// index returns the position of environment env at time t in the
// time-major scalar buffers
func (b *Buffer) index(t, env int) int {
	return t*b.nEnvs + env
}

// discountCumSum computes and returns the discounted cumulative sum
// of all elements of a vector. Given a vector v = [x0 x1 x2 ... xN]
// and discount ℽ, this function computes and returns:
//
// [
//	x0 + ℽ x1 + ℽ^2 x2 + ℽ^3 x3 + ... + ℽ^(N-1) x(N-1) + ℽ^N xN
//	x1 + ℽ^1 x2 + ℽ^2 x3 + ... + ℽ^(N-2) x(N-1) + ℽ^(N-1) xN
//	x2 + ℽ^1 x3 + ... + ℽ^(N-3) x(N-1) + ℽ^(N-2) xN
// ...
// xN
// ]
//
// The sum is accumulated backwards, acc = x[t] + ℽ acc, which is the
// linear filter with coefficients [1] / [1, -ℽ] run over the reversed
// vector.
func discountCumSum(x []float64, discount float64) []float64 {
	cumSums := make([]float64, len(x))

	acc := 0.0
	for t := len(x) - 1; t >= 0; t-- {
		acc = x[t] + discount*acc
		cumSums[t] = acc
	}
	return cumSums
}

func copyOf(x []float64) []float64 {
	out := make([]float64, len(x))
	copy(out, x)
	return out
}

func zero(x []float64) {
	for i := range x {
		x[i] = 0
	}
}
