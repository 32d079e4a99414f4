// Package parser turns uploaded sensor recordings into numeric matrices.
//
// Uploads are semicolon-delimited text with an optional header line and
// either a comma or a period as decimal separator. Parsing runs in two
// phases: every cell is strictly converted and conversion failures are
// collected as CellErrors, then the cleaned matrix is assembled. Invalid
// cells never fail the parse; the caller decides what to do with them.
package parser

import (
	"errors"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"physio-predictor/internal/matrix"

	"github.com/rs/zerolog/log"
)

var fieldSep = regexp.MustCompile(`\s*;\s*`)

// Result is the outcome of a successful parse.
type Result struct {
	Matrix  *matrix.Matrix
	Header  string      // dropped header line, empty when none
	Invalid []CellError // cells that failed numeric conversion
	// Positions (in the pre-cleaning table) of dropped all-missing rows and columns
	DroppedRows []int
	DroppedCols []int
}

type line struct {
	no   int
	text string
}

// Parse converts raw upload bytes into a numeric matrix. It returns
// *DecodeError for invalid UTF-8 and *EmptyInputError when there is no data.
// The shape of the returned matrix is not validated.
func Parse(raw []byte) (*Result, error) {
	if !utf8.Valid(raw) {
		return nil, &DecodeError{Offset: invalidOffset(raw)}
	}

	text := strings.TrimPrefix(string(raw), "\ufeff")
	lines := nonBlankLines(text)
	if len(lines) == 0 {
		return nil, &EmptyInputError{}
	}

	res := &Result{}
	if hasLetter(lines[0].text) {
		res.Header = lines[0].text
		lines = lines[1:]
	}
	if len(lines) == 0 {
		return nil, &EmptyInputError{HeaderOnly: true}
	}

	// Phase one: strict conversion, failures collected
	table := make([][]float64, len(lines))
	width := 0
	for i, ln := range lines {
		fields := fieldSep.Split(ln.text, -1)
		row := make([]float64, len(fields))
		for j, f := range fields {
			v, ok := convert(f)
			if !ok && f != "" {
				res.Invalid = append(res.Invalid, CellError{Row: i, Col: j, Line: ln.no, Value: f})
			}
			row[j] = v
		}
		if len(row) > width {
			width = len(row)
		}
		table[i] = row
	}

	// Ragged rows get missing cells
	for i, row := range table {
		for len(row) < width {
			row = append(row, math.NaN())
		}
		table[i] = row
	}

	// Phase two: drop empty columns, then empty rows
	keepCols := make([]int, 0, width)
	for j := 0; j < width; j++ {
		if columnHasValue(table, j) {
			keepCols = append(keepCols, j)
		} else {
			res.DroppedCols = append(res.DroppedCols, j)
		}
	}

	cleaned := make([][]float64, 0, len(table))
	for i, row := range table {
		out := make([]float64, len(keepCols))
		hasValue := false
		for k, j := range keepCols {
			out[k] = row[j]
			if !math.IsNaN(row[j]) {
				hasValue = true
			}
		}
		if !hasValue {
			res.DroppedRows = append(res.DroppedRows, i)
			continue
		}
		cleaned = append(cleaned, out)
	}

	m, err := matrix.FromRows(cleaned)
	if err != nil {
		return nil, err
	}
	res.Matrix = m

	log.Debug().
		Int("lines", len(lines)).
		Bool("header", res.Header != "").
		Int("invalid_cells", len(res.Invalid)).
		Int("dropped_rows", len(res.DroppedRows)).
		Int("dropped_cols", len(res.DroppedCols)).
		Stringer("shape", m.Shape()).
		Msg("parsed upload")

	return res, nil
}

// convert parses one cell. Comma decimal separators are accepted; empty and
// unparseable cells yield NaN and false. Decimal literals beyond the float64
// range become signed infinities.
func convert(field string) (float64, bool) {
	s := strings.TrimSpace(field)
	if s == "" {
		return math.NaN(), false
	}
	s = strings.ReplaceAll(s, ",", ".")
	if strings.HasPrefix(strings.ToLower(strings.TrimLeft(s, "+-")), "0x") || strings.Contains(s, "_") {
		return math.NaN(), false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		if errors.Is(err, strconv.ErrRange) && math.IsInf(v, 0) {
			return v, true
		}
		return math.NaN(), false
	}
	return v, true
}

func nonBlankLines(text string) []line {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	var out []line
	for i, ln := range strings.Split(text, "\n") {
		ln = strings.TrimSpace(ln)
		if ln == "" {
			continue
		}
		out = append(out, line{no: i + 1, text: ln})
	}
	return out
}

func hasLetter(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}

func columnHasValue(table [][]float64, j int) bool {
	for _, row := range table {
		if !math.IsNaN(row[j]) {
			return true
		}
	}
	return false
}

func invalidOffset(raw []byte) int {
	for i := 0; i < len(raw); {
		r, size := utf8.DecodeRune(raw[i:])
		if r == utf8.RuneError && size <= 1 {
			return i
		}
		i += size
	}
	return len(raw)
}
