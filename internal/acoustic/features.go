package acoustic

import "math"

const normalizeEpsilon = 1e-7

// NormalizeInput scales samples to zero mean and unit variance, the input
// convention of wav2vec2 feature extractors. The input slice is not modified.
func NormalizeInput(samples []float32) []float32 {
	out := make([]float32, len(samples))
	if len(samples) == 0 {
		return out
	}
	var mean float64
	for _, s := range samples {
		mean += float64(s)
	}
	mean /= float64(len(samples))

	var variance float64
	for _, s := range samples {
		d := float64(s) - mean
		variance += d * d
	}
	variance /= float64(len(samples))

	inv := 1 / math.Sqrt(variance+normalizeEpsilon)
	for i, s := range samples {
		out[i] = float32((float64(s) - mean) * inv)
	}
	return out
}
