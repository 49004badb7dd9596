package gae

import (
	"math"
	"testing"

	"github.com/samuelfneumann/onpolicy/buffer"
	ts "github.com/samuelfneumann/onpolicy/timestep"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

const tol = 1e-9

// store stores a single timestep in the buffer with all environments
// receiving the same observation features, action, reward and value
func store(t *testing.T, b *Buffer, obs []float64, act, rew, val,
	logp float64) error {
	t.Helper()
	n := b.NumEnvs()

	rows := make([][]float64, n)
	actions := make([]float64, n)
	rews := make([]float64, n)
	vals := make([]float64, n)
	logps := make([]float64, n)
	for i := 0; i < n; i++ {
		rows[i] = obs
		actions[i] = act
		rews[i] = rew
		vals[i] = val
		logps[i] = logp
	}

	return b.Store(ts.NewFlatRows(rows...), mat.NewDense(n, 1, actions),
		rews, vals, logps)
}

func TestDiscountCumSum(t *testing.T) {
	tests := []struct {
		name     string
		x        []float64
		discount float64
		want     []float64
	}{
		{"half", []float64{1, 1, 1}, 0.5, []float64{1.75, 1.5, 1.0}},
		{"undiscounted", []float64{1, 2, 3}, 1.0, []float64{6, 5, 3}},
		{"zero discount", []float64{4, -2, 7}, 0.0, []float64{4, -2, 7}},
		{"single", []float64{3}, 0.9, []float64{3}},
		{"empty", []float64{}, 0.9, []float64{}},
	}

	for _, test := range tests {
		got := discountCumSum(test.x, test.discount)
		if !floats.EqualApprox(got, test.want, tol) {
			t.Errorf("%s: discountCumSum(%v, %v) \n\twant(%v)\n\thave(%v)",
				test.name, test.x, test.discount, test.want, got)
		}
	}
}

func TestFinishPathBootstrap(t *testing.T) {
	b := New(ts.FlatLayout(2), 1, 3, 1, 0.0, 0.99)

	vals := []float64{-1.0, -1.5, -2.0}
	for i, v := range vals {
		if err := store(t, b, []float64{float64(2 * i), float64(2*i + 1)},
			float64(i), -1.0, v, 0); err != nil {
			t.Fatal(err)
		}
	}
	if err := b.FinishPath(0, -3.0); err != nil {
		t.Fatal(err)
	}

	// ret[T-1] = r + ℽ v_T and ret[t] = r + ℽ ret[t+1]
	wantRet := make([]float64, 3)
	wantRet[2] = -1.0 + 0.99*-3.0
	wantRet[1] = -1.0 + 0.99*wantRet[2]
	wantRet[0] = -1.0 + 0.99*wantRet[1]
	if !floats.EqualApprox(b.retBuffer, wantRet, tol) {
		t.Errorf("finishPath: returns \n\twant(%v)\n\thave(%v)", wantRet,
			b.retBuffer)
	}

	// With λ = 0 the advantages are the one-step TD errors
	wantAdv := []float64{
		-1.0 + 0.99*-1.5 - -1.0,
		-1.0 + 0.99*-2.0 - -1.5,
		-1.0 + 0.99*-3.0 - -2.0,
	}
	if !floats.EqualApprox(b.advBuffer, wantAdv, tol) {
		t.Errorf("finishPath: advantages \n\twant(%v)\n\thave(%v)", wantAdv,
			b.advBuffer)
	}

	if b.PathStart(0) != 3 {
		t.Errorf("finishPath: path start \n\twant(3)\n\thave(%v)",
			b.PathStart(0))
	}
}

func TestFinishPathAdvantageEqualsReturnWithZeroValues(t *testing.T) {
	b := New(ts.FlatLayout(1), 1, 5, 1, 1.0, 1.0)

	for i := 0; i < 5; i++ {
		if err := store(t, b, []float64{0}, 0, 2.0, 0, 0); err != nil {
			t.Fatal(err)
		}
	}
	if err := b.FinishPath(0, 0); err != nil {
		t.Fatal(err)
	}

	want := []float64{10, 8, 6, 4, 2}
	if !floats.EqualApprox(b.retBuffer, want, tol) {
		t.Errorf("finishPath: returns \n\twant(%v)\n\thave(%v)", want,
			b.retBuffer)
	}
	if !floats.EqualApprox(b.advBuffer, b.retBuffer, tol) {
		t.Errorf("finishPath: advantages should equal returns "+
			"\n\twant(%v)\n\thave(%v)", b.retBuffer, b.advBuffer)
	}
}

func TestFinishPathMultipleEnvs(t *testing.T) {
	b := New(ts.FlatLayout(1), 1, 4, 2, 1.0, 1.0)

	for i := 0; i < 4; i++ {
		obs := ts.NewFlatRows([]float64{0}, []float64{1})
		act := mat.NewDense(2, 1, []float64{0, 1})
		if err := b.Store(obs, act, []float64{1, 10}, []float64{0, 0},
			[]float64{0, 0}); err != nil {
			t.Fatal(err)
		}

		// Environment 0 finishes a trajectory every two steps
		if i%2 == 1 {
			if err := b.FinishPath(0, 0); err != nil {
				t.Fatal(err)
			}
		}
	}
	if err := b.FinishPath(1, 5); err != nil {
		t.Fatal(err)
	}

	// Time-major layout: index t*nEnvs + env
	wantRet := []float64{2, 45, 1, 35, 2, 25, 1, 15}
	if !floats.EqualApprox(b.retBuffer, wantRet, tol) {
		t.Errorf("finishPath: returns \n\twant(%v)\n\thave(%v)", wantRet,
			b.retBuffer)
	}
	for env := 0; env < 2; env++ {
		if b.PathStart(env) != 4 {
			t.Errorf("finishPath: path start of env %d \n\twant(4)"+
				"\n\thave(%v)", env, b.PathStart(env))
		}
	}
}

func TestFinishPathInvalidEnv(t *testing.T) {
	b := New(ts.FlatLayout(1), 1, 2, 2, 0.95, 0.99)
	if err := b.FinishPath(2, 0); err == nil {
		t.Error("finishPath: expected error for out of range environment")
	}
}

func TestStoreCapacityExceeded(t *testing.T) {
	const capacity = 4
	b := New(ts.FlatLayout(1), 1, capacity, 3, 0.95, 0.99)

	for i := 0; i < capacity; i++ {
		if err := store(t, b, []float64{1}, 0, 1, 0, 0); err != nil {
			t.Fatalf("store %d: %v", i, err)
		}
	}

	err := store(t, b, []float64{1}, 0, 1, 0, 0)
	if !buffer.IsCapacityExceeded(err) {
		t.Errorf("store: expected capacity exceeded error, have(%v)", err)
	}
	if b.Ptr() != capacity {
		t.Errorf("store: ptr changed on failed store \n\twant(%v)\n\thave(%v)",
			capacity, b.Ptr())
	}
}

func TestStoreShapeMismatch(t *testing.T) {
	b := New(ts.FlatLayout(2), 1, 4, 2, 0.95, 0.99)

	tests := []struct {
		name string
		obs  ts.Observation
		act  *mat.Dense
		rew  []float64
	}{
		{
			"obs features",
			ts.NewFlatRows([]float64{1}, []float64{1}),
			mat.NewDense(2, 1, nil),
			[]float64{0, 0},
		},
		{
			"obs rows",
			ts.NewFlatRows([]float64{1, 2}),
			mat.NewDense(2, 1, nil),
			[]float64{0, 0},
		},
		{
			"act shape",
			ts.NewFlatRows([]float64{1, 2}, []float64{1, 2}),
			mat.NewDense(2, 2, nil),
			[]float64{0, 0},
		},
		{
			"rewards",
			ts.NewFlatRows([]float64{1, 2}, []float64{1, 2}),
			mat.NewDense(2, 1, nil),
			[]float64{0},
		},
	}

	for _, test := range tests {
		err := b.Store(test.obs, test.act, test.rew, []float64{0, 0},
			[]float64{0, 0})
		if !buffer.IsShapeMismatch(err) {
			t.Errorf("%s: expected shape mismatch error, have(%v)",
				test.name, err)
		}
		if b.Ptr() != 0 {
			t.Fatalf("%s: ptr advanced on failed store", test.name)
		}
	}
}

func TestGetPrematureRead(t *testing.T) {
	b := New(ts.FlatLayout(1), 1, 3, 2, 0.95, 0.99)

	if _, err := b.Get(); !buffer.IsPrematureRead(err) {
		t.Errorf("get: expected premature read error on empty buffer, "+
			"have(%v)", err)
	}

	if err := store(t, b, []float64{1}, 0, 1, 0, 0); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Get(); !buffer.IsPrematureRead(err) {
		t.Errorf("get: expected premature read error on partially full "+
			"buffer, have(%v)", err)
	}
	if b.Ptr() != 1 {
		t.Errorf("get: ptr changed on failed get \n\twant(1)\n\thave(%v)",
			b.Ptr())
	}
}

func TestGetResetsAndRefills(t *testing.T) {
	const capacity = 3
	b := New(ts.FlatLayout(1), 1, capacity, 2, 0.95, 0.99)

	for epoch := 0; epoch < 2; epoch++ {
		for i := 0; i < capacity; i++ {
			if err := store(t, b, []float64{float64(i)}, 0, float64(i), 0,
				0); err != nil {
				t.Fatalf("epoch %d store %d: %v", epoch, i, err)
			}
		}
		for env := 0; env < 2; env++ {
			if err := b.FinishPath(env, 0); err != nil {
				t.Fatal(err)
			}
		}

		batch, err := b.Get()
		if err != nil {
			t.Fatalf("epoch %d: %v", epoch, err)
		}
		if batch.Len() != capacity*2 {
			t.Errorf("get: batch length \n\twant(%v)\n\thave(%v)",
				capacity*2, batch.Len())
		}
		if b.Ptr() != 0 {
			t.Errorf("get: ptr \n\twant(0)\n\thave(%v)", b.Ptr())
		}
		for env := 0; env < 2; env++ {
			if b.PathStart(env) != 0 {
				t.Errorf("get: path start of env %d \n\twant(0)\n\thave(%v)",
					env, b.PathStart(env))
			}
		}
	}
}

func TestGetNormalizesAdvantages(t *testing.T) {
	b := New(ts.FlatLayout(1), 1, 6, 2, 0.9, 0.97)

	rewards := [][]float64{{1, -2}, {0.5, 3}, {-1, 0}, {2, 2}, {0, -1},
		{4, 1}}
	for i, r := range rewards {
		obs := ts.NewFlatRows([]float64{float64(i)}, []float64{-float64(i)})
		act := mat.NewDense(2, 1, []float64{0.1, -0.1})
		vals := []float64{0.3 * float64(i), -0.2 * float64(i)}
		if err := b.Store(obs, act, r, vals, []float64{-1, -2}); err != nil {
			t.Fatal(err)
		}
		if i == 2 {
			if err := b.FinishPath(0, 0); err != nil {
				t.Fatal(err)
			}
		}
	}
	if err := b.FinishPath(0, 0.5); err != nil {
		t.Fatal(err)
	}
	if err := b.FinishPath(1, -0.5); err != nil {
		t.Fatal(err)
	}

	batch, err := b.Get()
	if err != nil {
		t.Fatal(err)
	}

	mean, std := stat.PopMeanStdDev(batch.Adv, nil)
	if math.Abs(mean) > 1e-9 {
		t.Errorf("get: advantage mean \n\twant(0)\n\thave(%v)", mean)
	}
	if math.Abs(std-1) > 1e-9 {
		t.Errorf("get: advantage standard deviation \n\twant(1)\n\thave(%v)",
			std)
	}
	if batch.Degenerate() {
		t.Error("get: batch should not be degenerate")
	}

	// Index alignment between observations and log probabilities
	for i := 0; i < batch.Len(); i++ {
		env := i % 2
		time := i / 2
		wantObs := float64(time)
		wantLogP := -1.0
		if env == 1 {
			wantObs = -float64(time)
			wantLogP = -2.0
		}
		if got := batch.Obs.Flat().At(i, 0); got != wantObs {
			t.Errorf("get: obs %d \n\twant(%v)\n\thave(%v)", i, wantObs, got)
		}
		if batch.LogP[i] != wantLogP {
			t.Errorf("get: logp %d \n\twant(%v)\n\thave(%v)", i, wantLogP,
				batch.LogP[i])
		}
	}
}

func TestGetDegenerateAdvantages(t *testing.T) {
	b := New(ts.FlatLayout(1), 1, 1, 3, 0.95, 0.99)

	if err := store(t, b, []float64{0}, 0, 1, 0, 0); err != nil {
		t.Fatal(err)
	}
	for env := 0; env < 3; env++ {
		if err := b.FinishPath(env, 0); err != nil {
			t.Fatal(err)
		}
	}

	batch, err := b.Get()
	if err != nil {
		t.Fatal(err)
	}
	if !batch.Degenerate() {
		t.Error("get: batch should be degenerate")
	}
	for i, adv := range batch.Adv {
		if math.IsNaN(adv) || math.IsInf(adv, 0) || adv != 0 {
			t.Errorf("get: advantage %d \n\twant(0)\n\thave(%v)", i, adv)
		}
	}
}

func TestGetDictObservations(t *testing.T) {
	layout := ts.DictLayout(map[string]int{"pos": 2, "goal": 1})
	b := New(layout, 1, 2, 2, 0.95, 0.99)

	for i := 0; i < 2; i++ {
		f := float64(i)
		obs := ts.NewDict(map[string]*mat.Dense{
			"pos":  mat.NewDense(2, 2, []float64{f, f, f + 10, f + 10}),
			"goal": mat.NewDense(2, 1, []float64{-f, -f - 10}),
		})
		act := mat.NewDense(2, 1, []float64{f, f + 10})
		if err := b.Store(obs, act, []float64{1, 1}, []float64{0, 0},
			[]float64{0, 0}); err != nil {
			t.Fatal(err)
		}
	}
	for env := 0; env < 2; env++ {
		if err := b.FinishPath(env, 0); err != nil {
			t.Fatal(err)
		}
	}

	batch, err := b.Get()
	if err != nil {
		t.Fatal(err)
	}
	if !batch.Obs.IsDict() {
		t.Fatal("get: expected structured observations")
	}

	for i := 0; i < batch.Len(); i++ {
		act := batch.Act.At(i, 0)
		if pos := batch.Obs.Part("pos").At(i, 1); pos != act {
			t.Errorf("get: pos %d not aligned with action \n\twant(%v)"+
				"\n\thave(%v)", i, act, pos)
		}
		if goal := batch.Obs.Part("goal").At(i, 0); goal != -act {
			t.Errorf("get: goal %d not aligned with action \n\twant(%v)"+
				"\n\thave(%v)", i, -act, goal)
		}
	}

	tensors := batch.Tensors()
	for _, key := range []string{"obs/pos", "obs/goal", ActKey, RetKey,
		AdvKey, LogPKey} {
		tt, ok := tensors[key]
		if !ok {
			t.Errorf("tensors: missing key %q", key)
			continue
		}
		if tt.Shape()[0] != batch.Len() {
			t.Errorf("tensors: %q first dimension \n\twant(%v)\n\thave(%v)",
				key, batch.Len(), tt.Shape()[0])
		}
	}
}

func BenchmarkFinishPath(b *testing.B) {
	const size = 1000
	buf := New(ts.FlatLayout(1), 1, size, 1, 0.95, 0.99)

	obs := ts.NewFlatRows([]float64{0})
	act := mat.NewDense(1, 1, nil)
	for i := 0; i < size; i++ {
		if err := buf.Store(obs, act, []float64{1}, []float64{0.5},
			[]float64{0}); err != nil {
			b.Fatal(err)
		}
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		buf.pathStartIdx[0] = 0
		if err := buf.FinishPath(0, 0); err != nil {
			b.Fatal(err)
		}
	}
}
