package timestep

import (
	"fmt"
	"sort"
)

// Layout describes the per-environment shape of an Observation (or of
// any other per-timestep field stored in a buffer). A Layout is either
// flat, with a single feature dimension, or structured, with one
// feature dimension per named part.
//
// Multi-dimensional data such as pixels should be flattened into a
// single dimension before being described by a Layout.
type Layout struct {
	dim   int
	parts map[string]int
}

// FlatLayout returns a Layout describing flat vectors of dimension dim
func FlatLayout(dim int) Layout {
	if dim < 1 {
		panic(fmt.Sprintf("flatLayout: dimension must be positive, "+
			"have(%v)", dim))
	}
	return Layout{dim: dim}
}

// DictLayout returns a Layout describing structured data with one
// flat vector per named part
func DictLayout(parts map[string]int) Layout {
	if len(parts) == 0 {
		panic("dictLayout: at least one part is required")
	}

	p := make(map[string]int, len(parts))
	total := 0
	for k, dim := range parts {
		if dim < 1 {
			panic(fmt.Sprintf("dictLayout: dimension of part %q must be "+
				"positive, have(%v)", k, dim))
		}
		p[k] = dim
		total += dim
	}
	return Layout{dim: total, parts: p}
}

// IsDict returns whether the Layout is structured
func (l Layout) IsDict() bool {
	return l.parts != nil
}

// Dim returns the total number of features described by the Layout.
// For structured Layouts this is the sum of all part dimensions.
func (l Layout) Dim() int {
	return l.dim
}

// Part returns the dimension of a named part and whether the part
// exists
func (l Layout) Part(key string) (int, bool) {
	dim, ok := l.parts[key]
	return dim, ok
}

// Keys returns the sorted part names of a structured Layout, or nil
// for a flat Layout
func (l Layout) Keys() []string {
	if !l.IsDict() {
		return nil
	}
	keys := make([]string, 0, len(l.parts))
	for k := range l.parts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Equal returns whether two Layouts describe the same shape
func (l Layout) Equal(other Layout) bool {
	if l.IsDict() != other.IsDict() || l.dim != other.dim {
		return false
	}
	if !l.IsDict() {
		return true
	}
	if len(l.parts) != len(other.parts) {
		return false
	}
	for k, dim := range l.parts {
		if otherDim, ok := other.parts[k]; !ok || otherDim != dim {
			return false
		}
	}
	return true
}

func (l Layout) String() string {
	if !l.IsDict() {
		return fmt.Sprintf("Flat(%d)", l.dim)
	}
	str := "Dict("
	for i, k := range l.Keys() {
		if i > 0 {
			str += ", "
		}
		str += fmt.Sprintf("%s: %d", k, l.parts[k])
	}
	return str + ")"
}
