package features

import "math"

// dftMagnitudes returns |X[k]| for k in [0, bins) of the discrete Fourier
// transform of x, X[k] = sum_n x[n] * exp(-2*pi*i*k*n/N). When x is shorter
// than bins only len(x) magnitudes exist.
func dftMagnitudes(x []float64, bins int) []float64 {
	n := len(x)
	if bins > n {
		bins = n
	}
	out := make([]float64, bins)
	for k := 0; k < bins; k++ {
		var re, im float64
		for t, v := range x {
			// reduce k*t mod n first to keep the angle small
			sin, cos := math.Sincos(-2 * math.Pi * float64((k*t)%n) / float64(n))
			re += v * cos
			im += v * sin
		}
		out[k] = math.Hypot(re, im)
	}
	return out
}
