package matrix

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromRows(t *testing.T) {
	m, err := FromRows([][]float64{{1, 2, 3}, {4, 5, 6}})
	require.NoError(t, err)

	assert.Equal(t, Shape{Rows: 2, Cols: 3}, m.Shape())
	assert.Equal(t, "(2, 3)", m.Shape().String())
	assert.Equal(t, 6.0, m.At(1, 2))
	assert.Equal(t, []float64{4, 5, 6}, m.Row(1))
	assert.Equal(t, []float64{2, 5}, m.Column(1))
	assert.Equal(t, [][]float64{{1, 2, 3}, {4, 5, 6}}, m.ToRows())

	_, err = FromRows([][]float64{{1, 2}, {3}})
	assert.Error(t, err)

	empty, err := FromRows(nil)
	require.NoError(t, err)
	assert.Equal(t, Shape{}, empty.Shape())
}

func TestMatrix_CopiesAreIndependent(t *testing.T) {
	m := New(2, 2)
	row := m.Row(0)
	row[0] = 9
	col := m.Column(1)
	col[1] = 9
	assert.Equal(t, 0.0, m.At(0, 0))
	assert.Equal(t, 0.0, m.At(1, 1))

	c := m.Clone()
	c.Set(0, 0, 7)
	assert.Equal(t, 0.0, m.At(0, 0))
	assert.Equal(t, 7.0, c.At(0, 0))
}

func TestMatrix_Missing(t *testing.T) {
	m, err := FromRows([][]float64{{1, math.NaN()}, {math.NaN(), 4}})
	require.NoError(t, err)

	assert.Equal(t, [][2]int{{0, 1}, {1, 0}}, m.Missing())
	assert.Equal(t, 2, m.FillMissing(0))
	assert.Empty(t, m.Missing())
	assert.Equal(t, [][]float64{{1, 0}, {0, 4}}, m.ToRows())
}

func TestNew_NegativeDimensions(t *testing.T) {
	assert.Equal(t, Shape{}, New(-1, -3).Shape())
}
