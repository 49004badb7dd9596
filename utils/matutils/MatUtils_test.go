package matutils

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func TestFinite(t *testing.T) {
	m := mat.NewDense(2, 2, []float64{1, 2, 3, 4})
	if !Finite(m) {
		t.Error("finite: finite matrix reported as non-finite")
	}
	m.Set(1, 0, math.Inf(1))
	if Finite(m) {
		t.Error("finite: infinite element not found")
	}
}
