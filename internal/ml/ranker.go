package ml

import (
	"errors"
	"fmt"
	"sort"
)

// Ranked is one (class, confidence) entry of a ranking.
type Ranked struct {
	Index      int     `json:"index"`
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// RankedPrediction is the top-1 result plus the top-K list in descending
// confidence order.
type RankedPrediction struct {
	Label      string   `json:"label"`
	Index      int      `json:"index"`
	Confidence float64  `json:"confidence"`
	Top        []Ranked `json:"top"`
}

// ErrNoProbabilities is returned when ranking an empty probability vector.
var ErrNoProbabilities = errors.New("probability vector is empty")

// Rank orders class probabilities. The top-1 entry is the first index holding
// the maximum; the top-k list is a stable descending sort, so equal
// probabilities keep their original index order.
func Rank(probs []float64, decoder LabelDecoder, k int) (RankedPrediction, error) {
	if len(probs) == 0 {
		return RankedPrediction{}, ErrNoProbabilities
	}
	if k <= 0 || k > len(probs) {
		k = len(probs)
	}

	order := make([]int, len(probs))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return probs[order[a]] > probs[order[b]]
	})

	top := make([]Ranked, k)
	for i, idx := range order[:k] {
		label, err := decoder.Decode(idx)
		if err != nil {
			return RankedPrediction{}, fmt.Errorf("decode class %d: %w", idx, err)
		}
		top[i] = Ranked{Index: idx, Label: label, Confidence: probs[idx]}
	}

	return RankedPrediction{
		Label:      top[0].Label,
		Index:      top[0].Index,
		Confidence: top[0].Confidence,
		Top:        top,
	}, nil
}
