package parser

import (
	"fmt"
	"strings"
)

// DecodeError is returned when the upload is not valid UTF-8 text.
type DecodeError struct {
	Offset int // byte offset of the first invalid sequence
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("input is not valid UTF-8 text (invalid byte at offset %d)", e.Offset)
}

// EmptyInputError is returned when the upload has no data lines.
type EmptyInputError struct {
	HeaderOnly bool
}

func (e *EmptyInputError) Error() string {
	if e.HeaderOnly {
		return "input contains a header line but no data"
	}
	return "input contains no non-blank lines"
}

// CellError describes a cell that could not be converted to a number.
// Row and Col are 0-based positions in the data table before empty rows and
// columns are dropped; Line is the 1-based line number in the upload.
type CellError struct {
	Row   int    `json:"row"`
	Col   int    `json:"col"`
	Line  int    `json:"line"`
	Value string `json:"value"`
}

func (c CellError) String() string {
	return fmt.Sprintf("line %d, column %d: %q", c.Line, c.Col+1, c.Value)
}

// FormatCells renders at most limit cell errors for a user-facing message.
func FormatCells(cells []CellError, limit int) string {
	if len(cells) == 0 {
		return ""
	}
	n := len(cells)
	if limit > 0 && n > limit {
		n = limit
	}
	parts := make([]string, 0, n+1)
	for _, c := range cells[:n] {
		parts = append(parts, c.String())
	}
	if n < len(cells) {
		parts = append(parts, fmt.Sprintf("and %d more", len(cells)-n))
	}
	return strings.Join(parts, "; ")
}
