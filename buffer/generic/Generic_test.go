package generic

import (
	"testing"

	"github.com/samuelfneumann/onpolicy/buffer"
	ts "github.com/samuelfneumann/onpolicy/timestep"
	"gonum.org/v1/gonum/mat"
)

// newTestBuffer returns a Buffer with a flat "id" field, which encodes
// the (time, env) pair it was stored at as 100*time + env, and a
// structured "obs" field
func newTestBuffer(t *testing.T, size, nEnvs int) *Buffer {
	t.Helper()
	c := Config{
		"id":  ts.FlatLayout(1),
		"obs": ts.DictLayout(map[string]int{"a": 2, "b": 1}),
	}
	b, err := New(size, nEnvs, c, 42)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func storeStep(t *testing.T, b *Buffer, time int) {
	t.Helper()
	n := b.NumEnvs()
	ids := make([]float64, n)
	a := make([]float64, 2*n)
	bb := make([]float64, n)
	for e := 0; e < n; e++ {
		id := float64(100*time + e)
		ids[e] = id
		a[2*e], a[2*e+1] = id, -id
		bb[e] = id + 0.5
	}

	err := b.Store(map[string]ts.Observation{
		"id": ts.NewFlat(mat.NewDense(n, 1, ids)),
		"obs": ts.NewDict(map[string]*mat.Dense{
			"a": mat.NewDense(n, 2, a),
			"b": mat.NewDense(n, 1, bb),
		}),
	})
	if err != nil {
		t.Fatal(err)
	}
}

// checkAligned ensures that all fields of a sampled batch refer to the
// same (time, env) pairs and returns the sampled ids
func checkAligned(t *testing.T, batch map[string]ts.Observation) []int {
	t.Helper()
	ids := batch["id"].Flat()
	r, _ := ids.Dims()
	out := make([]int, r)
	for i := 0; i < r; i++ {
		id := ids.At(i, 0)
		if got := batch["obs"].Part("a").At(i, 1); got != -id {
			t.Errorf("sample: obs/a row %d \n\twant(%v)\n\thave(%v)", i, -id,
				got)
		}
		if got := batch["obs"].Part("b").At(i, 0); got != id+0.5 {
			t.Errorf("sample: obs/b row %d \n\twant(%v)\n\thave(%v)", i,
				id+0.5, got)
		}
		out[i] = int(id)
	}
	return out
}

func TestNewInvalid(t *testing.T) {
	if _, err := New(0, 1, Config{"x": ts.FlatLayout(1)}, 0); err == nil {
		t.Error("new: expected error for zero size")
	}
	if _, err := New(1, 0, Config{"x": ts.FlatLayout(1)}, 0); err == nil {
		t.Error("new: expected error for zero environments")
	}
	if _, err := New(1, 1, Config{}, 0); err == nil {
		t.Error("new: expected error for no fields")
	}
}

func TestStoreWrapsAround(t *testing.T) {
	b := newTestBuffer(t, 3, 2)

	for i := 0; i < 3; i++ {
		if b.Full() {
			t.Fatalf("store: buffer full after %d stores", i)
		}
		storeStep(t, b, i)
	}
	if !b.Full() || b.Ptr() != 0 || b.Size() != 3 {
		t.Errorf("store: after wraparound \n\twant(full, 0, 3)"+
			"\n\thave(%v, %v, %v)", b.Full(), b.Ptr(), b.Size())
	}

	// Overwrite the oldest timestep
	storeStep(t, b, 7)
	if b.Ptr() != 1 {
		t.Errorf("store: ptr \n\twant(1)\n\thave(%v)", b.Ptr())
	}
	batch := b.gather([]int{0, 0}, []int{0, 1})
	ids := checkAligned(t, batch)
	if ids[0] != 700 || ids[1] != 701 {
		t.Errorf("store: overwritten ids \n\twant([700 701])\n\thave(%v)", ids)
	}
}

func TestStoreInvalid(t *testing.T) {
	b := newTestBuffer(t, 3, 2)

	err := b.Store(map[string]ts.Observation{
		"missing": ts.NewFlatRows([]float64{1}, []float64{2}),
	})
	if err == nil {
		t.Error("store: expected error for unknown field")
	}

	err = b.Store(map[string]ts.Observation{
		"id": ts.NewFlatRows([]float64{1, 2}, []float64{2, 3}),
	})
	if !buffer.IsShapeMismatch(err) {
		t.Errorf("store: expected shape mismatch, have(%v)", err)
	}
	if b.Ptr() != 0 {
		t.Error("store: ptr advanced on failed store")
	}
}

func TestSampleBatchWithoutReplacement(t *testing.T) {
	const size, nEnvs, batchSize = 4, 3, 4
	b := newTestBuffer(t, size, nEnvs)
	for i := 0; i < size; i++ {
		storeStep(t, b, i)
	}

	// One pass over the data consumes every (time, env) pair once
	seen := make(map[int]int)
	for i := 0; i < size*nEnvs/batchSize; i++ {
		batch, err := b.SampleBatch(batchSize, true)
		if err != nil {
			t.Fatal(err)
		}
		for _, id := range checkAligned(t, batch) {
			seen[id]++
		}
	}

	if len(seen) != size*nEnvs {
		t.Errorf("sampleBatch: unique samples \n\twant(%v)\n\thave(%v)",
			size*nEnvs, len(seen))
	}
	for id, count := range seen {
		if count != 1 {
			t.Errorf("sampleBatch: id %v sampled %v times in one pass", id,
				count)
		}
		if time, env := id/100, id%100; time >= size || env >= nEnvs {
			t.Errorf("sampleBatch: sampled id %v outside stored data", id)
		}
	}

	// The next batch begins a new pass
	batch, err := b.SampleBatch(batchSize, true)
	if err != nil {
		t.Fatal(err)
	}
	if got := batch["id"].Rows(); got != batchSize {
		t.Errorf("sampleBatch: batch size \n\twant(%v)\n\thave(%v)", batchSize,
			got)
	}
}

func TestSampleBatchLastBatch(t *testing.T) {
	const size, nEnvs = 5, 1
	b := newTestBuffer(t, size, nEnvs)
	for i := 0; i < size; i++ {
		storeStep(t, b, i)
	}

	// Without dropping, the last batch is short
	sizes := []int{}
	seen := make(map[int]bool)
	for i := 0; i < 3; i++ {
		batch, err := b.SampleBatch(2, false)
		if err != nil {
			t.Fatal(err)
		}
		sizes = append(sizes, batch["id"].Rows())
		for _, id := range checkAligned(t, batch) {
			seen[id] = true
		}
	}
	if sizes[0] != 2 || sizes[1] != 2 || sizes[2] != 1 {
		t.Errorf("sampleBatch: batch sizes \n\twant([2 2 1])\n\thave(%v)", sizes)
	}
	if len(seen) != size {
		t.Errorf("sampleBatch: unique samples \n\twant(%v)\n\thave(%v)", size,
			len(seen))
	}

	// With dropping, a batch never overruns storage
	b.Reset()
	for i := 0; i < size; i++ {
		storeStep(t, b, i)
	}
	for i := 0; i < 6; i++ {
		batch, err := b.SampleBatch(2, true)
		if err != nil {
			t.Fatal(err)
		}
		if batch["id"].Rows() != 2 {
			t.Errorf("sampleBatch: batch %d size \n\twant(2)\n\thave(%v)", i,
				batch["id"].Rows())
		}
	}

	if _, err := b.SampleBatch(size+1, true); err == nil {
		t.Error("sampleBatch: expected error for batch larger than storage")
	}
}

func TestSampleEmpty(t *testing.T) {
	b := newTestBuffer(t, 3, 2)

	if _, err := b.SampleBatch(1, true); !buffer.IsEmpty(err) {
		t.Errorf("sampleBatch: expected empty error, have(%v)", err)
	}
	if _, err := b.SampleRandomBatch(1); !buffer.IsEmpty(err) {
		t.Errorf("sampleRandomBatch: expected empty error, have(%v)", err)
	}
}

func TestSampleRandomBatchNotFull(t *testing.T) {
	const nEnvs = 2
	b := newTestBuffer(t, 10, nEnvs)
	for i := 0; i < 3; i++ {
		storeStep(t, b, i)
	}

	batch, err := b.SampleRandomBatch(200)
	if err != nil {
		t.Fatal(err)
	}
	for _, id := range checkAligned(t, batch) {
		if time, env := id/100, id%100; time >= 3 || env >= nEnvs {
			t.Errorf("sampleRandomBatch: id %v outside stored data", id)
		}
	}
}

func TestSampleRandomBatchFull(t *testing.T) {
	const size, nEnvs = 3, 2
	b := newTestBuffer(t, size, nEnvs)
	for i := 0; i < size+1; i++ {
		storeStep(t, b, i)
	}

	seen := make(map[int]bool)
	batch, err := b.SampleRandomBatch(500)
	if err != nil {
		t.Fatal(err)
	}
	for _, id := range checkAligned(t, batch) {
		seen[id] = true
	}

	// Time 0 was overwritten by time 3
	want := []int{100, 101, 200, 201, 300, 301}
	for _, id := range want {
		if !seen[id] {
			t.Errorf("sampleRandomBatch: id %v never sampled", id)
		}
	}
	if seen[0] || seen[1] {
		t.Error("sampleRandomBatch: sampled overwritten data")
	}
}

func TestSamplingReproducible(t *testing.T) {
	b1 := newTestBuffer(t, 4, 2)
	b2 := newTestBuffer(t, 4, 2)
	for i := 0; i < 4; i++ {
		storeStep(t, b1, i)
		storeStep(t, b2, i)
	}

	s1, err := b1.SampleBatch(3, true)
	if err != nil {
		t.Fatal(err)
	}
	s2, err := b2.SampleBatch(3, true)
	if err != nil {
		t.Fatal(err)
	}
	if !mat.Equal(s1["id"].Flat(), s2["id"].Flat()) {
		t.Error("sampleBatch: buffers with equal seeds sampled differently")
	}
}
