package ml

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func indices(top []Ranked) []int {
	out := make([]int, len(top))
	for i, r := range top {
		out[i] = r.Index
	}
	return out
}

func TestRank_StableDescendingOrder(t *testing.T) {
	labels := &LabelEncoder{Classes: []string{"a", "b", "c", "d", "e"}}

	got, err := Rank([]float64{0.1, 0.5, 0.05, 0.3, 0.05}, labels, 5)
	require.NoError(t, err)

	assert.Equal(t, []int{1, 3, 0, 2, 4}, indices(got.Top))
	assert.Equal(t, "b", got.Label)
	assert.Equal(t, 1, got.Index)
	assert.Equal(t, 0.5, got.Confidence)

	for i := 1; i < len(got.Top); i++ {
		assert.GreaterOrEqual(t, got.Top[i-1].Confidence, got.Top[i].Confidence)
	}
}

func TestRank_TopOneIsFirstMaximum(t *testing.T) {
	labels := &LabelEncoder{Classes: []string{"a", "b", "c"}}

	got, err := Rank([]float64{0.2, 0.4, 0.4}, labels, 5)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Index)
	assert.Equal(t, []int{1, 2, 0}, indices(got.Top))
}

func TestRank_KBounds(t *testing.T) {
	labels := &LabelEncoder{Classes: []string{"a", "b", "c", "d", "e", "f", "g"}}
	probs := []float64{0.05, 0.1, 0.15, 0.2, 0.25, 0.15, 0.1}

	tests := []struct {
		name string
		k    int
		want []int
	}{
		{"top five of seven", 5, []int{4, 3, 2, 5, 1}},
		{"k larger than classes", 10, []int{4, 3, 2, 5, 1, 6, 0}},
		{"k zero means all", 0, []int{4, 3, 2, 5, 1, 6, 0}},
		{"top one", 1, []int{4}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Rank(probs, labels, tt.k)
			require.NoError(t, err)
			assert.Equal(t, tt.want, indices(got.Top))
		})
	}
}

func TestRank_NoRenormalization(t *testing.T) {
	labels := &LabelEncoder{Classes: []string{"a", "b"}}

	got, err := Rank([]float64{0.3, 0.2}, labels, 5)
	require.NoError(t, err)
	assert.Equal(t, 0.3, got.Top[0].Confidence)
	assert.Equal(t, 0.2, got.Top[1].Confidence)
}

func TestRank_Errors(t *testing.T) {
	labels := &LabelEncoder{Classes: []string{"a", "b"}}

	_, err := Rank(nil, labels, 5)
	assert.ErrorIs(t, err, ErrNoProbabilities)

	_, err = Rank([]float64{0.1, 0.2, 0.7}, labels, 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of range")
}
