package model

import (
	"math"
	"math/rand"
)

// varianceScaling fills w with draws from a normal distribution truncated at two
// standard deviations, with stddev = sqrt(scale / fanIn).
func varianceScaling(w []float32, fanIn int, scale float64, rng *rand.Rand) {
	stddev := math.Sqrt(scale / math.Max(1, float64(fanIn)))
	for i := range w {
		w[i] = float32(truncatedNormal(rng) * stddev)
	}
}

// truncatedNormal samples N(0, 1) re-drawing anything beyond two standard deviations.
func truncatedNormal(rng *rand.Rand) float64 {
	for {
		v := rng.NormFloat64()
		if v >= -2 && v <= 2 {
			return v
		}
	}
}

