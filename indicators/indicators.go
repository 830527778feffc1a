// Package indicators provides causal technical indicators over price series.
//
// Every function returns a slice aligned one-to-one with its input. Leading
// entries are NaN while there is not enough history; the value at index t
// depends only on inputs at indices <= t.
package indicators

import "math"

// Defined reports whether v carries a value.
func Defined(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Last returns the final element of xs, or NaN for an empty slice.
func Last(xs []float64) float64 {
	if len(xs) == 0 {
		return math.NaN()
	}
	return xs[len(xs)-1]
}

func nans(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}
