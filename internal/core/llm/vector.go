package llm

import (
	"math"
	"strings"
)

// fitDimension truncates or zero-pads v to dim and rescales it to unit length.
func fitDimension(v []float32, dim int) []float32 {
	out := make([]float32, dim)
	copy(out, v)
	normalize(out)
	return out
}

// normalize scales v in place to unit L2 norm. A zero vector is left as is.
func normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	inv := float32(1 / math.Sqrt(sum))
	for i := range v {
		v[i] *= inv
	}
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
