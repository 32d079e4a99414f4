package ml

import "fmt"

// Scaler standardizes feature matrices before prediction.
type Scaler interface {
	Transform(x [][]float64) ([][]float64, error)
}

// StandardScaler applies (x - mean) / scale per feature. A zero scale is
// treated as 1 so constant training features pass through centred.
type StandardScaler struct {
	Mean  []float64 `json:"mean" yaml:"mean"`
	Scale []float64 `json:"scale" yaml:"scale"`
}

func (s *StandardScaler) validate(features int) error {
	if len(s.Mean) != features {
		return fmt.Errorf("scaler mean has %d entries, expected %d", len(s.Mean), features)
	}
	if len(s.Scale) != features {
		return fmt.Errorf("scaler scale has %d entries, expected %d", len(s.Scale), features)
	}
	for i, v := range s.Scale {
		if v < 0 || v != v {
			return fmt.Errorf("scaler scale %d is invalid: %f", i, v)
		}
	}
	return nil
}

// Transform returns a scaled copy of x.
func (s *StandardScaler) Transform(x [][]float64) ([][]float64, error) {
	out := make([][]float64, len(x))
	for i, row := range x {
		if len(row) != len(s.Mean) {
			return nil, fmt.Errorf("row %d has %d features, scaler expects %d", i, len(row), len(s.Mean))
		}
		scaled := make([]float64, len(row))
		for j, v := range row {
			scale := s.Scale[j]
			if scale == 0 {
				scale = 1
			}
			scaled[j] = (v - s.Mean[j]) / scale
		}
		out[i] = scaled
	}
	return out, nil
}
