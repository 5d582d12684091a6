package stats

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// Bin is one histogram bucket covering [Lower, Upper). The last bin also
// includes its upper edge.
type Bin struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
	Count int     `json:"count"`
}

// SturgesBins is the bin count for n values: ceil(log2 n) + 1.
func SturgesBins(n int) int {
	if n <= 1 {
		return 1
	}
	return int(math.Ceil(math.Log2(float64(n)))) + 1
}

// Histogram bins values into SturgesBins(len(values)) equal width bins over
// [min, max]. A single distinct value yields one bin of width 1.
func Histogram(values []float64) []Bin {
	if len(values) == 0 {
		return nil
	}

	lo, hi := floats.Min(values), floats.Max(values)
	if lo == hi {
		return []Bin{{Lower: lo, Upper: lo + 1, Count: len(values)}}
	}

	k := SturgesBins(len(values))
	width := (hi - lo) / float64(k)
	bins := make([]Bin, k)
	for i := range bins {
		bins[i].Lower = lo + float64(i)*width
		bins[i].Upper = lo + float64(i+1)*width
	}
	bins[k-1].Upper = hi

	for _, v := range values {
		idx := int((v - lo) / width)
		if idx >= k {
			idx = k - 1
		}
		bins[idx].Count++
	}
	return bins
}
