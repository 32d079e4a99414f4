// Package report renders inference results for people and for API clients.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"physio-predictor/internal/matrix"
	"physio-predictor/internal/ml"
	"physio-predictor/internal/parser"
	"physio-predictor/internal/pipeline"

	"github.com/rs/zerolog/log"
)

// BarWidth is the number of cells of a full confidence bar.
const BarWidth = 40

// Entry is one row of the top-K list.
type Entry struct {
	Rank          int     `json:"rank"`
	Index         int     `json:"index"`
	Label         string  `json:"label"`
	Confidence    float64 `json:"confidence"`
	ConfidencePct string  `json:"confidence_pct"`
}

// Response is the JSON body returned for a successful prediction.
type Response struct {
	RequestID     string             `json:"request_id"`
	Source        string             `json:"source,omitempty"`
	Shape         matrix.Shape       `json:"shape"`
	Label         string             `json:"label"`
	Confidence    float64            `json:"confidence"`
	ConfidencePct string             `json:"confidence_pct"`
	Top           []Entry            `json:"top"`
	Segments      []SegmentEntry     `json:"segments,omitempty"`
	FilledCells   int                `json:"filled_cells,omitempty"`
	InvalidCells  []parser.CellError `json:"invalid_cells,omitempty"`
	ElapsedMs     float64            `json:"elapsed_ms"`
}

// SegmentEntry is the prediction of one segment when more than one was run.
type SegmentEntry struct {
	Segment       int     `json:"segment"`
	Label         string  `json:"label"`
	Confidence    float64 `json:"confidence"`
	ConfidencePct string  `json:"confidence_pct"`
	Top           []Entry `json:"top"`
}

// Percent formats a probability as a percentage with two decimals.
func Percent(p float64) string {
	return strconv.FormatFloat(p*100, 'f', 2, 64) + "%"
}

// Bar draws a fixed-width confidence bar.
func Bar(p float64, width int) string {
	if width <= 0 {
		return ""
	}
	if math.IsNaN(p) || p < 0 {
		p = 0
	}
	if p > 1 {
		p = 1
	}
	filled := int(math.Round(p * float64(width)))
	return strings.Repeat("#", filled) + strings.Repeat(".", width-filled)
}

func entries(top []ml.Ranked) []Entry {
	out := make([]Entry, len(top))
	for i, r := range top {
		out[i] = Entry{
			Rank:          i + 1,
			Index:         r.Index,
			Label:         r.Label,
			Confidence:    r.Confidence,
			ConfidencePct: Percent(r.Confidence),
		}
	}
	return out
}

// Reporter renders a single pipeline result.
type Reporter struct {
	result *pipeline.Result
	source string
}

// NewReporter creates a reporter. source names the uploaded file and may be empty.
func NewReporter(result *pipeline.Result, source string) *Reporter {
	return &Reporter{result: result, source: source}
}

// Response builds the API body.
func (r *Reporter) Response() Response {
	top := r.result.Prediction()
	resp := Response{
		RequestID:     r.result.RequestID,
		Source:        r.source,
		Shape:         r.result.Shape,
		Label:         top.Label,
		Confidence:    top.Confidence,
		ConfidencePct: Percent(top.Confidence),
		Top:           entries(top.Top),
		FilledCells:   r.result.Filled,
		InvalidCells:  r.result.Invalid,
		ElapsedMs:     float64(r.result.Elapsed) / float64(time.Millisecond),
	}

	if len(r.result.Predictions) > 1 {
		for i, p := range r.result.Predictions {
			resp.Segments = append(resp.Segments, SegmentEntry{
				Segment:       i,
				Label:         p.Label,
				Confidence:    p.Confidence,
				ConfidencePct: Percent(p.Confidence),
				Top:           entries(p.Top),
			})
		}
	}
	return resp
}

// WriteText writes the human-readable report: the predicted label, its
// confidence and a bar chart of the top-K classes.
func (r *Reporter) WriteText(w io.Writer) error {
	b := &strings.Builder{}

	fmt.Fprintf(b, "PREDICTION RESULT\n")
	fmt.Fprintf(b, "=================\n\n")
	if r.source != "" {
		fmt.Fprintf(b, "Recording: %s\n", r.source)
	}
	fmt.Fprintf(b, "Shape: %s\n", r.result.Shape)
	if r.result.Filled > 0 {
		fmt.Fprintf(b, "Zero-filled cells: %d\n", r.result.Filled)
	}
	fmt.Fprintf(b, "\n")

	for i, p := range r.result.Predictions {
		if len(r.result.Predictions) > 1 {
			fmt.Fprintf(b, "SEGMENT %d\n", i)
			fmt.Fprintf(b, "---------\n")
		}
		writePrediction(b, p)
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func writePrediction(b *strings.Builder, p ml.RankedPrediction) {
	fmt.Fprintf(b, "Predicted exercise: %s\n", p.Label)
	fmt.Fprintf(b, "Confidence: %s\n\n", Percent(p.Confidence))

	fmt.Fprintf(b, "TOP %d PREDICTIONS\n", len(p.Top))
	fmt.Fprintf(b, "-----------------\n")

	width := 0
	for _, e := range p.Top {
		if n := len([]rune(e.Label)); n > width {
			width = n
		}
	}
	for i, e := range p.Top {
		pad := strings.Repeat(" ", width-len([]rune(e.Label)))
		fmt.Fprintf(b, "%d. %s%s %8s |%s|\n", i+1, e.Label, pad, Percent(e.Confidence), Bar(e.Confidence, BarWidth))
	}
	fmt.Fprintf(b, "\n")
}

// Text returns the rendered text report.
func (r *Reporter) Text() string {
	var b strings.Builder
	_ = r.WriteText(&b)
	return b.String()
}

// WriteFiles stores the text summary, the JSON response and a CSV of the
// ranked classes in dir.
func (r *Reporter) WriteFiles(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if err := os.WriteFile(filepath.Join(dir, "prediction.txt"), []byte(r.Text()), 0644); err != nil {
		return fmt.Errorf("failed to write summary: %w", err)
	}

	data, err := json.MarshalIndent(r.Response(), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "prediction.json"), data, 0644); err != nil {
		return fmt.Errorf("failed to write JSON report: %w", err)
	}

	if err := r.writeRanking(filepath.Join(dir, "ranking.csv")); err != nil {
		return err
	}

	log.Info().Str("dir", dir).Str("request_id", r.result.RequestID).Msg("prediction report written")
	return nil
}

func (r *Reporter) writeRanking(path string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create ranking file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write([]string{"segment", "rank", "index", "label", "confidence"}); err != nil {
		return err
	}
	for s, p := range r.result.Predictions {
		for i, e := range p.Top {
			record := []string{
				strconv.Itoa(s),
				strconv.Itoa(i + 1),
				strconv.Itoa(e.Index),
				e.Label,
				strconv.FormatFloat(e.Confidence, 'f', 6, 64),
			}
			if err := writer.Write(record); err != nil {
				return err
			}
		}
	}
	writer.Flush()
	return writer.Error()
}
