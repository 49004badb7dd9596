// Package generic implements a configurable ring buffer which stores
// an arbitrary named set of per-timestep fields for a set of
// environments stepped in lockstep
package generic

import (
	"fmt"
	"sort"

	"github.com/samuelfneumann/onpolicy/buffer"
	ts "github.com/samuelfneumann/onpolicy/timestep"
	"golang.org/x/exp/rand"
)

// Config describes the fields stored by a Buffer. Each key names a
// field, and each value is the per-environment layout of that field,
// which may itself be structured.
type Config map[string]ts.Layout

// Buffer stores named fields of one timestep of interaction for nEnvs
// environments at a time. Once the Buffer has been filled, subsequent
// calls to Store() overwrite the oldest data.
//
// All randomness used for sampling is drawn from the Buffer's own
// source, seeded at construction.
type Buffer struct {
	maxSize int
	nEnvs   int
	ptr     int
	full    bool

	fields map[string]*buffer.Field

	rng *rand.Rand

	// State of shuffled sampling without replacement
	batchIdx      int
	batchInds     []int
	batchEnvInds  []int
	samplingBegun bool
}

// New creates and returns a new Buffer with capacity size timesteps
// for each of nEnvs environments
func New(size, nEnvs int, c Config, seed uint64) (*Buffer, error) {
	if size < 1 {
		return nil, fmt.Errorf("new: size must be > 0")
	}
	if nEnvs < 1 {
		return nil, fmt.Errorf("new: nEnvs must be > 0")
	}
	if len(c) == 0 {
		return nil, fmt.Errorf("new: at least one field must be configured")
	}

	fields := make(map[string]*buffer.Field, len(c))
	for name, layout := range c {
		fields[name] = buffer.NewField(layout, size, nEnvs)
	}

	return &Buffer{
		maxSize: size,
		nEnvs:   nEnvs,
		fields:  fields,
		rng:     rand.New(rand.NewSource(seed)),
	}, nil
}

// Size returns the number of timesteps currently stored per
// environment
func (b *Buffer) Size() int {
	if b.full {
		return b.maxSize
	}
	return b.ptr
}

// MaxSize returns the number of timesteps per environment the Buffer
// can hold
func (b *Buffer) MaxSize() int { return b.maxSize }

// NumEnvs returns the number of environments the Buffer stores
func (b *Buffer) NumEnvs() int { return b.nEnvs }

// Ptr returns the next write position
func (b *Buffer) Ptr() int { return b.ptr }

// Full returns whether the Buffer has wrapped around at least once
func (b *Buffer) Full() bool { return b.full }

// Fields returns the sorted names of the fields stored in the Buffer
func (b *Buffer) Fields() []string {
	names := make([]string, 0, len(b.fields))
	for name := range b.fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Reset empties the Buffer. Stored data is not cleared, but it will
// no longer be sampled.
func (b *Buffer) Reset() {
	b.ptr = 0
	b.full = false
	b.samplingBegun = false
}

// Store stores one timestep of interaction. The data argument maps
// field names to the data of all environments for that field, with
// one row per environment. Fields not present in data keep whatever
// was previously stored at the current position. If the Buffer is
// full, the oldest timestep is overwritten.
//
// No data is stored if an error is returned.
func (b *Buffer) Store(data map[string]ts.Observation) error {
	for name, v := range data {
		field, ok := b.fields[name]
		if !ok {
			return &buffer.Error{
				Op:  "store",
				Err: fmt.Errorf("no field named %q", name),
			}
		}
		if v.IsZero() || v.Rows() != b.nEnvs ||
			!v.Layout().Equal(field.Layout()) {
			return &buffer.Error{
				Op:  "store",
				Err: fmt.Errorf("%w: field %q", buffer.ErrShapeMismatch, name),
			}
		}
	}

	for name, v := range data {
		if err := b.fields[name].Set(b.ptr, v); err != nil {
			return &buffer.Error{Op: "store", Err: err}
		}
	}

	b.ptr++
	if b.ptr == b.maxSize {
		// Wrap around to start replacing the oldest items
		b.full = true
		b.ptr = 0
	}
	return nil
}

// SampleBatch samples a batch of batchSize (time, env) pairs without
// replacement. Successive calls consume successive slices of a single
// shuffle of all stored (time, env) pairs, so no pair is returned
// twice until every pair has been returned once. A new shuffle is drawn
// when sampling first begins, once all pairs have been consumed, or,
// if dropLastBatch is true, when fewer than batchSize unconsumed pairs
// remain. If dropLastBatch is false the last batch of a shuffle may be
// smaller than batchSize.
func (b *Buffer) SampleBatch(batchSize int,
	dropLastBatch bool) (map[string]ts.Observation, error) {
	if batchSize < 1 {
		return nil, &buffer.Error{
			Op:  "sampleBatch",
			Err: fmt.Errorf("batch size must be > 0, have(%v)", batchSize),
		}
	}
	if b.Size() == 0 {
		return nil, &buffer.Error{Op: "sampleBatch", Err: buffer.ErrEmpty}
	}
	total := b.Size() * b.nEnvs
	if dropLastBatch && batchSize > total {
		return nil, &buffer.Error{
			Op: "sampleBatch",
			Err: fmt.Errorf("batch size %d exceeds the %d stored samples",
				batchSize, total),
		}
	}

	if !b.preparedForSampling(batchSize, dropLastBatch) {
		b.shuffle()
	}

	stop := b.batchIdx + batchSize
	if stop > len(b.batchInds) {
		stop = len(b.batchInds)
	}
	times := b.batchInds[b.batchIdx:stop]
	envs := b.batchEnvInds[b.batchIdx:stop]
	b.batchIdx += batchSize

	return b.gather(times, envs), nil
}

// SampleRandomBatch samples a batch of batchSize (time, env) pairs
// uniformly with replacement. If the Buffer is full, times are drawn
// over the whole ring, offset by the current write position.
func (b *Buffer) SampleRandomBatch(
	batchSize int) (map[string]ts.Observation, error) {
	if batchSize < 1 {
		return nil, &buffer.Error{
			Op:  "sampleRandomBatch",
			Err: fmt.Errorf("batch size must be > 0, have(%v)", batchSize),
		}
	}
	if b.Size() == 0 {
		return nil, &buffer.Error{Op: "sampleRandomBatch", Err: buffer.ErrEmpty}
	}

	times := make([]int, batchSize)
	envs := make([]int, batchSize)
	for i := 0; i < batchSize; i++ {
		if b.full {
			times[i] = (b.rng.Intn(b.maxSize) + b.ptr) % b.maxSize
		} else {
			times[i] = b.rng.Intn(b.ptr)
		}
	}
	for i := 0; i < batchSize; i++ {
		envs[i] = b.rng.Intn(b.nEnvs)
	}

	return b.gather(times, envs), nil
}

// preparedForSampling returns whether the current shuffle can serve a
// batch of batchSize
func (b *Buffer) preparedForSampling(batchSize int, dropLastBatch bool) bool {
	if !b.samplingBegun {
		return false
	}
	total := len(b.batchInds)
	if dropLastBatch && b.batchIdx+batchSize > total {
		return false
	}
	return b.batchIdx < total
}

// shuffle draws a new permutation of all stored (time, env) pairs
func (b *Buffer) shuffle() {
	total := b.Size() * b.nEnvs
	b.batchInds = make([]int, total)
	b.batchEnvInds = make([]int, total)
	for i := 0; i < total; i++ {
		b.batchInds[i] = i / b.nEnvs
		b.batchEnvInds[i] = i % b.nEnvs
	}

	b.rng.Shuffle(total, func(i, j int) {
		b.batchInds[i], b.batchInds[j] = b.batchInds[j], b.batchInds[i]
		b.batchEnvInds[i], b.batchEnvInds[j] = b.batchEnvInds[j],
			b.batchEnvInds[i]
	})
	b.batchIdx = 0
	b.samplingBegun = true
}

// gather returns the data of all fields at the given (time, env) pairs
func (b *Buffer) gather(times, envs []int) map[string]ts.Observation {
	out := make(map[string]ts.Observation, len(b.fields))
	for name, field := range b.fields {
		out[name] = field.Gather(times, envs)
	}
	return out
}
