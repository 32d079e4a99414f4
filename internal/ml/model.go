package ml

import (
	"context"
	"errors"
	"fmt"
	"math"
)

// Model produces class probabilities for scaled feature rows.
type Model interface {
	PredictProba(ctx context.Context, x [][]float64) ([][]float64, error)
	Classes() int
}

// SoftmaxModel is a multinomial linear classifier: softmax(W x + b).
// Weights is classes x features.
type SoftmaxModel struct {
	Kind      string      `json:"kind" yaml:"kind"`
	Weights   [][]float64 `json:"weights" yaml:"weights"`
	Intercept []float64   `json:"intercept" yaml:"intercept"`
}

func (m *SoftmaxModel) validate(features int) error {
	if m.Kind != "" && m.Kind != "softmax" {
		return fmt.Errorf("unsupported model kind %q", m.Kind)
	}
	if len(m.Weights) == 0 {
		return errors.New("model has no weights")
	}
	if len(m.Intercept) != len(m.Weights) {
		return fmt.Errorf("model has %d intercepts for %d classes", len(m.Intercept), len(m.Weights))
	}
	for c, w := range m.Weights {
		if len(w) != features {
			return fmt.Errorf("class %d has %d weights, expected %d", c, len(w), features)
		}
	}
	return nil
}

func (m *SoftmaxModel) Classes() int { return len(m.Weights) }

func (m *SoftmaxModel) PredictProba(ctx context.Context, x [][]float64) ([][]float64, error) {
	out := make([][]float64, len(x))
	for i, row := range x {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		logits := make([]float64, len(m.Weights))
		for c, w := range m.Weights {
			if len(row) != len(w) {
				return nil, fmt.Errorf("row %d has %d features, model expects %d", i, len(row), len(w))
			}
			z := m.Intercept[c]
			for j, v := range row {
				z += w[j] * v
			}
			logits[c] = z
		}
		out[i] = softmax(logits)
	}
	return out, nil
}

func softmax(z []float64) []float64 {
	hi := math.Inf(-1)
	for _, v := range z {
		if v > hi {
			hi = v
		}
	}
	out := make([]float64, len(z))
	var sum float64
	for i, v := range z {
		out[i] = math.Exp(v - hi)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}
