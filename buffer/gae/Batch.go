package gae

import (
	ts "github.com/samuelfneumann/onpolicy/timestep"
	"gonum.org/v1/gonum/mat"
	"gorgonia.org/tensor"
)

// Keys of the tensors returned by Batch.Tensors()
const (
	ObsKey  string = "obs"
	ActKey  string = "act"
	RetKey  string = "ret"
	AdvKey  string = "adv"
	LogPKey string = "logp"
)

// Batch is one epoch of training data returned by Buffer.Get(). All
// fields have first dimension Size()*NumEnvs() of the Buffer they came
// from and are index aligned: row i of Obs and Act, and element i of
// Ret, Adv, and LogP, all refer to the same timestep of the same
// environment. Row i corresponds to time i / nEnvs of environment
// i % nEnvs.
//
// Batch data is copied out of the Buffer and is owned by the caller.
type Batch struct {
	Obs  ts.Observation
	Act  *mat.Dense
	Ret  []float64
	Adv  []float64
	LogP []float64

	// Mean and population standard deviation of the advantages before
	// normalization
	AdvMean float64
	AdvStd  float64
}

// Len returns the number of samples in the Batch
func (b Batch) Len() int {
	return len(b.Ret)
}

// Degenerate returns whether all advantages in the epoch were (nearly)
// identical, in which case the normalized advantages are all zero
func (b Batch) Degenerate() bool {
	return b.AdvStd < MinStd
}

// Tensors returns the Batch as dense tensors, ready to be bound to
// the input nodes of a computational graph. Structured observations
// are returned with one tensor per part, keyed "obs/<part>". The
// tensors share their backing data with the Batch.
func (b Batch) Tensors() map[string]*tensor.Dense {
	n := b.Len()
	out := map[string]*tensor.Dense{
		RetKey:  tensor.NewDense(tensor.Float64, tensor.Shape{n}, tensor.WithBacking(b.Ret)),
		AdvKey:  tensor.NewDense(tensor.Float64, tensor.Shape{n}, tensor.WithBacking(b.Adv)),
		LogPKey: tensor.NewDense(tensor.Float64, tensor.Shape{n}, tensor.WithBacking(b.LogP)),
		ActKey:  matrixTensor(b.Act),
	}

	if !b.Obs.IsDict() {
		out[ObsKey] = matrixTensor(b.Obs.Flat())
		return out
	}
	for _, k := range b.Obs.Keys() {
		out[ObsKey+"/"+k] = matrixTensor(b.Obs.Part(k))
	}
	return out
}

// matrixTensor converts a matrix to a 2-dimensional tensor
func matrixTensor(m *mat.Dense) *tensor.Dense {
	r, c := m.Dims()
	raw := m.RawMatrix()

	var data []float64
	if raw.Stride == c {
		data = raw.Data[:r*c]
	} else {
		data = make([]float64, 0, r*c)
		for i := 0; i < r; i++ {
			data = append(data, m.RawRowView(i)...)
		}
	}
	return tensor.NewDense(tensor.Float64, tensor.Shape{r, c},
		tensor.WithBacking(data))
}
