package buffer

import (
	"fmt"

	ts "github.com/samuelfneumann/onpolicy/timestep"
	"gonum.org/v1/gonum/mat"
)

// Field stores one named per-timestep quantity for a number of
// environments, with backing storage shaped (size, nEnvs, features).
// Structured (dict) fields keep one backing array per part.
//
// The storage is time-major: the data of environment e at time t lives
// in row t*nEnvs + e of the flattened field.
type Field struct {
	layout ts.Layout
	size   int
	nEnvs  int

	flat  []float64
	parts map[string][]float64
}

// NewField creates and returns a new Field with the given per-env
// layout, time capacity, and number of environments
func NewField(layout ts.Layout, size, nEnvs int) *Field {
	if size < 1 {
		panic(fmt.Sprintf("newField: size must be positive, have(%v)", size))
	}
	if nEnvs < 1 {
		panic(fmt.Sprintf("newField: nEnvs must be positive, have(%v)",
			nEnvs))
	}

	f := &Field{layout: layout, size: size, nEnvs: nEnvs}
	if !layout.IsDict() {
		f.flat = make([]float64, size*nEnvs*layout.Dim())
		return f
	}

	f.parts = make(map[string][]float64)
	for _, k := range layout.Keys() {
		dim, _ := layout.Part(k)
		f.parts[k] = make([]float64, size*nEnvs*dim)
	}
	return f
}

// Layout returns the per-environment layout of the Field
func (f *Field) Layout() ts.Layout {
	return f.layout
}

// Set stores the data of all environments at time t. The argument
// must have one row per environment and match the Field's layout.
func (f *Field) Set(t int, v ts.Observation) error {
	if t < 0 || t >= f.size {
		return &Error{
			Op:  "set",
			Err: fmt.Errorf("time index %d out of range [0, %d)", t, f.size),
		}
	}
	if v.IsZero() || v.Rows() != f.nEnvs {
		return &Error{
			Op: "set",
			Err: fmt.Errorf("%w: want %d rows, have %d", ErrShapeMismatch,
				f.nEnvs, v.Rows()),
		}
	}
	if !v.Layout().Equal(f.layout) {
		return &Error{
			Op: "set",
			Err: fmt.Errorf("%w \n\twant(%v)\n\thave(%v)", ErrShapeMismatch,
				f.layout, v.Layout()),
		}
	}

	if !f.layout.IsDict() {
		setRows(f.flat, t, f.nEnvs, f.layout.Dim(), v.Flat())
		return nil
	}
	for k, backing := range f.parts {
		dim, _ := f.layout.Part(k)
		setRows(backing, t, f.nEnvs, dim, v.Part(k))
	}
	return nil
}

// Gather returns the data at the (time, env) index pairs given by
// times[i], envs[i], as an Observation with len(times) rows
func (f *Field) Gather(times, envs []int) ts.Observation {
	if len(times) != len(envs) {
		panic(fmt.Sprintf("gather: have %d time indices and %d env indices",
			len(times), len(envs)))
	}

	if !f.layout.IsDict() {
		return ts.NewFlat(gather(f.flat, times, envs, f.nEnvs,
			f.layout.Dim()))
	}
	parts := make(map[string]*mat.Dense, len(f.parts))
	for k, backing := range f.parts {
		dim, _ := f.layout.Part(k)
		parts[k] = gather(backing, times, envs, f.nEnvs, dim)
	}
	return ts.NewDict(parts)
}

// Flatten returns a copy of the entire Field as an Observation with
// size*nEnvs rows, in the Field's native time-major order
func (f *Field) Flatten() ts.Observation {
	rows := f.size * f.nEnvs
	if !f.layout.IsDict() {
		data := make([]float64, len(f.flat))
		copy(data, f.flat)
		return ts.NewFlat(mat.NewDense(rows, f.layout.Dim(), data))
	}

	parts := make(map[string]*mat.Dense, len(f.parts))
	for k, backing := range f.parts {
		dim, _ := f.layout.Part(k)
		data := make([]float64, len(backing))
		copy(data, backing)
		parts[k] = mat.NewDense(rows, dim, data)
	}
	return ts.NewDict(parts)
}

// setRows copies the rows of m, one per environment, into the backing
// array at time t
func setRows(backing []float64, t, nEnvs, dim int, m *mat.Dense) {
	for e := 0; e < nEnvs; e++ {
		start := (t*nEnvs + e) * dim
		mat.Row(backing[start:start+dim], e, m)
	}
}

// gather collects the rows at the given (time, env) pairs from a
// backing array
func gather(backing []float64, times, envs []int, nEnvs,
	dim int) *mat.Dense {
	data := make([]float64, len(times)*dim)
	for i := range times {
		start := (times[i]*nEnvs + envs[i]) * dim
		copy(data[i*dim:(i+1)*dim], backing[start:start+dim])
	}
	return mat.NewDense(len(times), dim, data)
}
