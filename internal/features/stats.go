package features

import (
	"math"

	"physio-predictor/internal/matrix"
)

// ChannelStats holds the per-channel time-domain statistics of a segment.
type ChannelStats struct {
	Mean  []float64
	Std   []float64 // population standard deviation
	Max   []float64
	Min   []float64
	Range []float64
}

// channelStats computes column-wise statistics. NaN cells propagate into the
// statistics of their channel.
func channelStats(seg *matrix.Matrix) ChannelStats {
	rows, cols := seg.Rows(), seg.Cols()
	s := ChannelStats{
		Mean:  make([]float64, cols),
		Std:   make([]float64, cols),
		Max:   make([]float64, cols),
		Min:   make([]float64, cols),
		Range: make([]float64, cols),
	}

	for j := 0; j < cols; j++ {
		var sum float64
		hi, lo := math.Inf(-1), math.Inf(1)
		nan := false
		for i := 0; i < rows; i++ {
			v := seg.At(i, j)
			if math.IsNaN(v) {
				nan = true
			}
			sum += v
			if v > hi {
				hi = v
			}
			if v < lo {
				lo = v
			}
		}
		if nan {
			s.Mean[j], s.Std[j], s.Max[j], s.Min[j], s.Range[j] = math.NaN(), math.NaN(), math.NaN(), math.NaN(), math.NaN()
			continue
		}

		mean := sum / float64(rows)
		var sq float64
		for i := 0; i < rows; i++ {
			d := seg.At(i, j) - mean
			sq += d * d
		}

		s.Mean[j] = mean
		s.Std[j] = math.Sqrt(sq / float64(rows))
		s.Max[j] = hi
		s.Min[j] = lo
		s.Range[j] = hi - lo
	}
	return s
}
