// Package pipeline orchestrates one inference request:
//
//	uploaded -> parsed -> shape_validated -> features_extracted
//	         -> scaled -> predicted -> ranked -> reported
//
// The pipeline is linear and stops at the first failure. It is built around
// a sequence of segments; a single upload is the length-one case.
package pipeline

import (
	"context"
	"time"

	"physio-predictor/internal/common"
	"physio-predictor/internal/features"
	"physio-predictor/internal/matrix"
	"physio-predictor/internal/ml"
	"physio-predictor/internal/parser"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Stage is a state of the request state machine.
type Stage string

const (
	StageUploaded          Stage = "uploaded"
	StageParsed            Stage = "parsed"
	StageShapeValidated    Stage = "shape_validated"
	StageFeaturesExtracted Stage = "features_extracted"
	StageScaled            Stage = "scaled"
	StagePredicted         Stage = "predicted"
	StageRanked            Stage = "ranked"
	StageReported          Stage = "reported"
)

// MetricsInterface defines the metrics the pipeline reports.
type MetricsInterface interface {
	features.MetricsTracker
	RequestsInc()
	FailureInc(kind string)
	UploadBytesObserve(n int)
	LatencyObserve(d time.Duration)
	StageObserve(stage string, d time.Duration)
	ConfidenceObserve(v float64)
	MissingFilledAdd(n int)
}

// Options tune the pipeline.
type Options struct {
	TopK        int
	StrictCells bool // reject recordings with missing cells instead of zero-filling them
	Expected    matrix.Shape
}

// DefaultOptions returns the standard 200 x 9, top-5 configuration.
func DefaultOptions() Options {
	return Options{
		TopK:     common.DefaultTopK,
		Expected: matrix.Shape{Rows: common.SegmentRows, Cols: common.SegmentChannels},
	}
}

// StageTiming is the time spent reaching a stage.
type StageTiming struct {
	Stage    Stage         `json:"stage"`
	Duration time.Duration `json:"duration_ns"`
}

// Result describes a request, successful or not.
type Result struct {
	RequestID   string                `json:"request_id"`
	Stage       Stage                 `json:"stage"`
	Shape       matrix.Shape          `json:"shape"`
	Header      string                `json:"header,omitempty"`
	Invalid     []parser.CellError    `json:"invalid_cells,omitempty"`
	Filled      int                   `json:"filled_cells,omitempty"`
	Predictions []ml.RankedPrediction `json:"predictions,omitempty"`
	Timings     []StageTiming         `json:"timings"`
	Elapsed     time.Duration         `json:"elapsed_ns"`
}

// Prediction returns the ranking of the first segment.
func (r *Result) Prediction() ml.RankedPrediction {
	if r == nil || len(r.Predictions) == 0 {
		return ml.RankedPrediction{}
	}
	return r.Predictions[0]
}

// Pipeline runs requests against a shared, read-only artifact context. It
// holds no per-request state and is safe for concurrent use.
type Pipeline struct {
	artifacts *ml.Artifacts
	extractor *features.Extractor
	opts      Options
	metrics   MetricsInterface
}

// New builds a pipeline. metrics may be nil.
func New(artifacts *ml.Artifacts, opts Options, metrics MetricsInterface) *Pipeline {
	def := DefaultOptions()
	if opts.TopK <= 0 {
		opts.TopK = def.TopK
	}
	if opts.Expected == (matrix.Shape{}) {
		opts.Expected = def.Expected
	}

	extractor := features.NewExtractor()
	if metrics != nil {
		extractor = features.NewExtractorWithMetrics(metrics)
	}

	return &Pipeline{artifacts: artifacts, extractor: extractor, opts: opts, metrics: metrics}
}

// Artifacts returns the shared artifact context.
func (p *Pipeline) Artifacts() *ml.Artifacts { return p.artifacts }

// Options returns the effective options.
func (p *Pipeline) Options() Options { return p.opts }

type request struct {
	res    *Result
	logger zerolog.Logger
	start  time.Time
	mark   time.Time
}

type requestIDKey struct{}

// WithRequestID attaches a caller-chosen request ID to ctx. Requests without
// one get a fresh UUID.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the request ID carried by ctx, if any.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func (p *Pipeline) newRequest(ctx context.Context) *request {
	id := RequestID(ctx)
	if id == "" {
		id = uuid.NewString()
	}
	now := time.Now()
	return &request{
		res:    &Result{RequestID: id, Stage: StageUploaded},
		logger: log.With().Str("request_id", id).Logger(),
		start:  now,
		mark:   now,
	}
}

func (p *Pipeline) advance(r *request, stage Stage) {
	now := time.Now()
	d := now.Sub(r.mark)
	r.mark = now
	r.res.Stage = stage
	r.res.Timings = append(r.res.Timings, StageTiming{Stage: stage, Duration: d})
	if p.metrics != nil {
		p.metrics.StageObserve(string(stage), d)
	}
}

func (p *Pipeline) fail(r *request, err error) (*Result, error) {
	r.res.Elapsed = time.Since(r.start)
	kind := ErrorKind(err)
	if p.metrics != nil {
		p.metrics.FailureInc(kind)
		p.metrics.LatencyObserve(r.res.Elapsed)
	}

	ev := r.logger.Warn()
	if !Recoverable(err) {
		ev = r.logger.Error()
	}
	ev.Err(err).
		Str("kind", kind).
		Str("stage", string(r.res.Stage)).
		Dur("elapsed", r.res.Elapsed).
		Msg("inference request failed")

	return r.res, err
}

// Run parses one uploaded recording and classifies it. The returned Result is
// non-nil even on failure and records the last stage reached.
func (p *Pipeline) Run(ctx context.Context, raw []byte) (*Result, error) {
	r := p.newRequest(ctx)
	if p.metrics != nil {
		p.metrics.RequestsInc()
		p.metrics.UploadBytesObserve(len(raw))
	}

	parsed, err := parser.Parse(raw)
	if err != nil {
		return p.fail(r, err)
	}
	r.res.Shape = parsed.Matrix.Shape()
	r.res.Header = parsed.Header
	r.res.Invalid = parsed.Invalid
	p.advance(r, StageParsed)

	return p.runSegments(ctx, r, []features.Segment{parsed.Matrix}, parsed.Invalid)
}

// RunSegments classifies already parsed segments, one ranking per segment.
func (p *Pipeline) RunSegments(ctx context.Context, segments []features.Segment) (*Result, error) {
	r := p.newRequest(ctx)
	if p.metrics != nil {
		p.metrics.RequestsInc()
	}
	if len(segments) > 0 && segments[0] != nil {
		r.res.Shape = segments[0].Shape()
	}
	p.advance(r, StageParsed)
	return p.runSegments(ctx, r, segments, nil)
}

func (p *Pipeline) runSegments(ctx context.Context, r *request, segments []features.Segment, invalid []parser.CellError) (*Result, error) {
	if len(segments) == 0 {
		return p.fail(r, &ShapeMismatchError{Expected: p.opts.Expected})
	}

	// Shape gate
	for i, seg := range segments {
		actual := matrix.Shape{}
		if seg != nil {
			actual = seg.Shape()
		}
		if actual != p.opts.Expected {
			return p.fail(r, &ShapeMismatchError{Expected: p.opts.Expected, Actual: actual, Segment: i})
		}
	}

	// Missing cells survive the shape gate when only some cells of a row failed
	missing := 0
	for _, seg := range segments {
		missing += len(seg.Missing())
	}
	if missing > 0 {
		if p.opts.StrictCells {
			return p.fail(r, &InvalidCellsError{Cells: invalid, Missing: missing})
		}
		filled := make([]features.Segment, len(segments))
		for i, seg := range segments {
			filled[i] = seg.Clone()
			filled[i].FillMissing(0)
		}
		segments = filled
		r.res.Filled = missing
		if p.metrics != nil {
			p.metrics.MissingFilledAdd(missing)
		}
		r.logger.Warn().
			Int("cells", missing).
			Int("invalid", len(invalid)).
			Msg("zero-filled missing cells")
	}
	p.advance(r, StageShapeValidated)

	if err := ctx.Err(); err != nil {
		return p.fail(r, err)
	}

	vectors, err := p.extractor.Extract(segments)
	if err != nil {
		return p.fail(r, err)
	}
	p.advance(r, StageFeaturesExtracted)

	scaled, err := p.artifacts.Scale(vectors)
	if err != nil {
		return p.fail(r, &ModelError{Stage: StageScaled, Err: err})
	}
	p.advance(r, StageScaled)

	if err := ctx.Err(); err != nil {
		return p.fail(r, err)
	}

	probs, err := p.artifacts.PredictProba(ctx, scaled)
	if err != nil {
		if ctx.Err() != nil {
			return p.fail(r, ctx.Err())
		}
		return p.fail(r, &ModelError{Stage: StagePredicted, Err: err})
	}
	p.advance(r, StagePredicted)

	preds := make([]ml.RankedPrediction, len(probs))
	for i, row := range probs {
		ranked, err := ml.Rank(row, p.artifacts.Labels(), p.opts.TopK)
		if err != nil {
			return p.fail(r, &ModelError{Stage: StageRanked, Err: err})
		}
		preds[i] = ranked
		if p.metrics != nil {
			p.metrics.ConfidenceObserve(ranked.Confidence)
		}
	}
	r.res.Predictions = preds
	p.advance(r, StageRanked)

	p.advance(r, StageReported)
	r.res.Elapsed = time.Since(r.start)
	if p.metrics != nil {
		p.metrics.LatencyObserve(r.res.Elapsed)
	}

	top := r.res.Prediction()
	r.logger.Info().
		Str("label", top.Label).
		Float64("confidence", top.Confidence).
		Int("segments", len(segments)).
		Dur("elapsed", r.res.Elapsed).
		Msg("inference request completed")

	return r.res, nil
}
