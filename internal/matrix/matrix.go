// Package matrix holds the dense row-major float matrix shared by the parser,
// the feature extractor and the inference pipeline. Missing values are NaN.
package matrix

import (
	"fmt"
	"math"
)

// Shape is a (rows, columns) pair.
type Shape struct {
	Rows int `json:"rows"`
	Cols int `json:"cols"`
}

func (s Shape) String() string {
	return fmt.Sprintf("(%d, %d)", s.Rows, s.Cols)
}

// Matrix is a dense row-major matrix. Rows are time samples and columns are
// sensor channels.
type Matrix struct {
	rows, cols int
	data       []float64
}

// New returns a zero-filled rows x cols matrix.
func New(rows, cols int) *Matrix {
	if rows < 0 {
		rows = 0
	}
	if cols < 0 {
		cols = 0
	}
	return &Matrix{rows: rows, cols: cols, data: make([]float64, rows*cols)}
}

// FromRows copies a rectangular [][]float64 into a Matrix. All rows must have
// the same length.
func FromRows(rows [][]float64) (*Matrix, error) {
	if len(rows) == 0 {
		return New(0, 0), nil
	}
	cols := len(rows[0])
	m := New(len(rows), cols)
	for i, r := range rows {
		if len(r) != cols {
			return nil, fmt.Errorf("row %d has %d columns, expected %d", i, len(r), cols)
		}
		copy(m.data[i*cols:(i+1)*cols], r)
	}
	return m, nil
}

func (m *Matrix) Shape() Shape { return Shape{Rows: m.rows, Cols: m.cols} }
func (m *Matrix) Rows() int    { return m.rows }
func (m *Matrix) Cols() int    { return m.cols }

func (m *Matrix) At(i, j int) float64 { return m.data[i*m.cols+j] }

func (m *Matrix) Set(i, j int, v float64) { m.data[i*m.cols+j] = v }

// Row returns a copy of row i.
func (m *Matrix) Row(i int) []float64 {
	out := make([]float64, m.cols)
	copy(out, m.data[i*m.cols:(i+1)*m.cols])
	return out
}

// Column returns a copy of column j.
func (m *Matrix) Column(j int) []float64 {
	out := make([]float64, m.rows)
	for i := 0; i < m.rows; i++ {
		out[i] = m.data[i*m.cols+j]
	}
	return out
}

// ToRows returns the matrix as a freshly allocated [][]float64.
func (m *Matrix) ToRows() [][]float64 {
	out := make([][]float64, m.rows)
	for i := range out {
		out[i] = m.Row(i)
	}
	return out
}

// Missing returns the (row, col) positions of NaN cells in row-major order.
func (m *Matrix) Missing() [][2]int {
	var cells [][2]int
	for i := 0; i < m.rows; i++ {
		for j := 0; j < m.cols; j++ {
			if math.IsNaN(m.data[i*m.cols+j]) {
				cells = append(cells, [2]int{i, j})
			}
		}
	}
	return cells
}

// FillMissing replaces every NaN cell with v and returns how many were replaced.
func (m *Matrix) FillMissing(v float64) int {
	n := 0
	for i, x := range m.data {
		if math.IsNaN(x) {
			m.data[i] = v
			n++
		}
	}
	return n
}

// Clone returns a deep copy.
func (m *Matrix) Clone() *Matrix {
	c := &Matrix{rows: m.rows, cols: m.cols, data: make([]float64, len(m.data))}
	copy(c.data, m.data)
	return c
}
