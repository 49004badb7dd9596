package timestep

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// Observation holds a batch of observations, one row per environment.
//
// An Observation is a tagged variant: it is either flat, in which case
// all features live in a single matrix, or structured (a dict
// observation), in which case each named part has its own matrix. All
// parts of a structured Observation have the same number of rows.
// Callers should branch on IsDict() once per call rather than on each
// field access.
//
// A single environment's observation is simply an Observation with
// one row.
type Observation struct {
	flat *mat.Dense
	dict map[string]*mat.Dense
}

// NewFlat returns a flat Observation. Each row of m is the
// observation of one environment.
func NewFlat(m *mat.Dense) Observation {
	if m == nil {
		panic("newFlat: nil matrix")
	}
	return Observation{flat: m}
}

// NewFlatRows returns a flat Observation built from one feature
// vector per environment
func NewFlatRows(rows ...[]float64) Observation {
	if len(rows) == 0 {
		panic("newFlatRows: at least one row is required")
	}

	cols := len(rows[0])
	data := make([]float64, 0, len(rows)*cols)
	for i, row := range rows {
		if len(row) != cols {
			panic(fmt.Sprintf("newFlatRows: row %d has length %d, want %d",
				i, len(row), cols))
		}
		data = append(data, row...)
	}
	return NewFlat(mat.NewDense(len(rows), cols, data))
}

// NewDict returns a structured Observation. Each part must have the
// same number of rows.
func NewDict(parts map[string]*mat.Dense) Observation {
	if len(parts) == 0 {
		panic("newDict: at least one part is required")
	}

	rows := -1
	dict := make(map[string]*mat.Dense, len(parts))
	for k, m := range parts {
		if m == nil {
			panic(fmt.Sprintf("newDict: nil matrix for part %q", k))
		}
		r, _ := m.Dims()
		if rows >= 0 && r != rows {
			panic(fmt.Sprintf("newDict: part %q has %d rows, want %d",
				k, r, rows))
		}
		rows = r
		dict[k] = m
	}
	return Observation{dict: dict}
}

// IsDict returns whether the Observation is structured
func (o Observation) IsDict() bool {
	return o.dict != nil
}

// IsZero returns whether the Observation holds no data at all
func (o Observation) IsZero() bool {
	return o.flat == nil && o.dict == nil
}

// Flat returns the matrix of a flat Observation, or nil if the
// Observation is structured
func (o Observation) Flat() *mat.Dense {
	return o.flat
}

// Part returns the matrix of a named part of a structured Observation,
// or nil if no such part exists
func (o Observation) Part(key string) *mat.Dense {
	return o.dict[key]
}

// Keys returns the sorted part names of a structured Observation, or
// nil for a flat Observation
func (o Observation) Keys() []string {
	if !o.IsDict() {
		return nil
	}
	keys := make([]string, 0, len(o.dict))
	for k := range o.dict {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Rows returns the number of environments (rows) in the Observation
func (o Observation) Rows() int {
	if o.IsZero() {
		return 0
	}
	if !o.IsDict() {
		r, _ := o.flat.Dims()
		return r
	}
	for _, m := range o.dict {
		r, _ := m.Dims()
		return r
	}
	return 0
}

// Layout returns the per-row Layout of the Observation
func (o Observation) Layout() Layout {
	if !o.IsDict() {
		_, c := o.flat.Dims()
		return FlatLayout(c)
	}
	parts := make(map[string]int, len(o.dict))
	for k, m := range o.dict {
		_, c := m.Dims()
		parts[k] = c
	}
	return DictLayout(parts)
}

// Row returns a copy of the observation of environment i as a
// single-row Observation
func (o Observation) Row(i int) Observation {
	if !o.IsDict() {
		return NewFlat(copyRow(o.flat, i))
	}
	parts := make(map[string]*mat.Dense, len(o.dict))
	for k, m := range o.dict {
		parts[k] = copyRow(m, i)
	}
	return Observation{dict: parts}
}

// RowData returns a copy of the features of environment i. Structured
// observations are concatenated in sorted key order.
func (o Observation) RowData(i int) []float64 {
	if !o.IsDict() {
		return mat.Row(nil, i, o.flat)
	}
	var data []float64
	for _, k := range o.Keys() {
		data = append(data, mat.Row(nil, i, o.dict[k])...)
	}
	return data
}

// SetRow overwrites the observation of environment i with the single
// row Observation row
func (o Observation) SetRow(i int, row Observation) error {
	if o.IsDict() != row.IsDict() {
		return fmt.Errorf("setRow: cannot mix flat and structured " +
			"observations")
	}
	if !o.Layout().Equal(row.Layout()) {
		return fmt.Errorf("setRow: layout mismatch \n\twant(%v)\n\thave(%v)",
			o.Layout(), row.Layout())
	}

	if !o.IsDict() {
		o.flat.SetRow(i, mat.Row(nil, 0, row.flat))
		return nil
	}
	for k, m := range o.dict {
		m.SetRow(i, mat.Row(nil, 0, row.dict[k]))
	}
	return nil
}

// Concat returns all features as a single matrix, one row per
// environment. Structured parts are concatenated in sorted key order.
// For flat Observations the underlying matrix is returned.
func (o Observation) Concat() *mat.Dense {
	if !o.IsDict() {
		return o.flat
	}

	rows := o.Rows()
	layout := o.Layout()
	out := mat.NewDense(rows, layout.Dim(), nil)

	col := 0
	for _, k := range o.Keys() {
		m := o.dict[k]
		_, c := m.Dims()
		out.Slice(0, rows, col, col+c).(*mat.Dense).Copy(m)
		col += c
	}
	return out
}

// Stack vertically concatenates Observations, which must all have the
// same Layout, into a single Observation
func Stack(obs []Observation) (Observation, error) {
	if len(obs) == 0 {
		return Observation{}, fmt.Errorf("stack: no observations to stack")
	}

	layout := obs[0].Layout()
	rows := 0
	for i, o := range obs {
		if !o.Layout().Equal(layout) {
			return Observation{}, fmt.Errorf("stack: observation %d has "+
				"layout %v, want %v", i, o.Layout(), layout)
		}
		rows += o.Rows()
	}

	stack := func(get func(Observation) *mat.Dense, cols int) *mat.Dense {
		out := mat.NewDense(rows, cols, nil)
		r := 0
		for _, o := range obs {
			m := get(o)
			n, _ := m.Dims()
			out.Slice(r, r+n, 0, cols).(*mat.Dense).Copy(m)
			r += n
		}
		return out
	}

	if !layout.IsDict() {
		flat := stack(func(o Observation) *mat.Dense { return o.flat },
			layout.Dim())
		return NewFlat(flat), nil
	}

	parts := make(map[string]*mat.Dense)
	for _, k := range layout.Keys() {
		key := k
		dim, _ := layout.Part(key)
		parts[key] = stack(func(o Observation) *mat.Dense {
			return o.dict[key]
		}, dim)
	}
	return NewDict(parts), nil
}

func copyRow(m *mat.Dense, i int) *mat.Dense {
	_, c := m.Dims()
	return mat.NewDense(1, c, mat.Row(nil, i, m))
}
