package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"physio-predictor/internal/common"
	"physio-predictor/internal/features"
	"physio-predictor/internal/matrix"
	"physio-predictor/internal/ml"
	"physio-predictor/internal/parser"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeModel returns fixed probabilities and records what it was given.
type fakeModel struct {
	mu     sync.Mutex
	probs  []float64
	err    error
	inputs [][]float64
}

func (f *fakeModel) Classes() int { return len(f.probs) }

func (f *fakeModel) PredictProba(ctx context.Context, x [][]float64) ([][]float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inputs = append(f.inputs, x...)
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float64, len(x))
	for i := range out {
		out[i] = append([]float64(nil), f.probs...)
	}
	return out, nil
}

// MockMetrics implements MetricsInterface for testing
type MockMetrics struct {
	mu         sync.Mutex
	requests   int
	failures   map[string]int
	stages     []string
	confidence []float64
	filled     int
	samples    int
}

func newMockMetrics() *MockMetrics { return &MockMetrics{failures: map[string]int{}} }

func (m *MockMetrics) UploadBytesObserve(int)            {}
func (m *MockMetrics) LatencyObserve(time.Duration)      {}
func (m *MockMetrics) FeatureErrorsInc()                 {}
func (m *MockMetrics) FeatureCalcDuration(time.Duration) {}

func (m *MockMetrics) RequestsInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests++
}

func (m *MockMetrics) FailureInc(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[kind]++
}

func (m *MockMetrics) ConfidenceObserve(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.confidence = append(m.confidence, v)
}

func (m *MockMetrics) MissingFilledAdd(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.filled += n
}

func (m *MockMetrics) FeatureSampleCount(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.samples += n
}

func (m *MockMetrics) StageObserve(stage string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stages = append(m.stages, stage)
}

var fiveLabels = []string{"squat", "lunge", "bridge", "plank", "curl"}

func newTestPipeline(t *testing.T, model *fakeModel, opts Options, metrics MetricsInterface) *Pipeline {
	t.Helper()
	scaler := &ml.StandardScaler{
		Mean:  make([]float64, common.FeatureCount),
		Scale: make([]float64, common.FeatureCount),
	}
	a, err := ml.NewArtifacts(scaler, model, &ml.LabelEncoder{Classes: fiveLabels})
	require.NoError(t, err)
	return New(a, opts, metrics)
}

func recording(rows, cols int, cell func(i, j int) string) []byte {
	var b strings.Builder
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			if j > 0 {
				b.WriteString(";")
			}
			b.WriteString(cell(i, j))
		}
		b.WriteString("\n")
	}
	return []byte(b.String())
}

func zeros(int, int) string { return "0" }

func TestRun_AllZeroRecording(t *testing.T) {
	model := &fakeModel{probs: []float64{0.1, 0.5, 0.05, 0.3, 0.05}}
	metrics := newMockMetrics()
	p := newTestPipeline(t, model, DefaultOptions(), metrics)

	res, err := p.Run(context.Background(), recording(200, 9, zeros))
	require.NoError(t, err)

	assert.Equal(t, StageReported, res.Stage)
	assert.Equal(t, matrix.Shape{Rows: 200, Cols: 9}, res.Shape)
	assert.NotEmpty(t, res.RequestID)

	require.Len(t, model.inputs, 1)
	assert.Equal(t, make([]float64, 135), model.inputs[0], "scaled zero features")

	pred := res.Prediction()
	assert.Equal(t, "lunge", pred.Label)
	assert.Equal(t, 0.5, pred.Confidence)
	got := make([]int, len(pred.Top))
	for i, r := range pred.Top {
		got[i] = r.Index
	}
	assert.Equal(t, []int{1, 3, 0, 2, 4}, got)

	assert.Equal(t, 1, metrics.requests)
	assert.Empty(t, metrics.failures)
	assert.Equal(t, []float64{0.5}, metrics.confidence)
	assert.Equal(t, 200, metrics.samples)
	assert.Equal(t, []string{
		"parsed", "shape_validated", "features_extracted", "scaled", "predicted", "ranked", "reported",
	}, metrics.stages)
}

func TestRun_Deterministic(t *testing.T) {
	model := &fakeModel{probs: []float64{0.2, 0.2, 0.2, 0.2, 0.2}}
	p := newTestPipeline(t, model, DefaultOptions(), nil)

	a, err := p.Run(context.Background(), recording(200, 9, zeros))
	require.NoError(t, err)
	b, err := p.Run(context.Background(), recording(200, 9, zeros))
	require.NoError(t, err)

	assert.Equal(t, a.Predictions, b.Predictions)
	assert.NotEqual(t, a.RequestID, b.RequestID)
}

func TestRun_HeaderAndCommaDecimals(t *testing.T) {
	model := &fakeModel{probs: []float64{0.6, 0.1, 0.1, 0.1, 0.1}}
	p := newTestPipeline(t, model, DefaultOptions(), nil)

	body := append([]byte("c1;c2;c3;c4;c5;c6;c7;c8;c9\n"), recording(200, 9, func(i, j int) string {
		return fmt.Sprintf("%d,5", j)
	})...)

	res, err := p.Run(context.Background(), body)
	require.NoError(t, err)
	assert.Equal(t, "c1;c2;c3;c4;c5;c6;c7;c8;c9", res.Header)

	// means are j + 0.5
	require.Len(t, model.inputs, 1)
	for j := 0; j < 9; j++ {
		assert.InDelta(t, float64(j)+0.5, model.inputs[0][j], 1e-12)
	}
}

func TestRun_ShapeGate(t *testing.T) {
	tests := []struct {
		name   string
		rows   int
		cols   int
		actual matrix.Shape
	}{
		{"one row short", 199, 9, matrix.Shape{Rows: 199, Cols: 9}},
		{"one channel short", 200, 8, matrix.Shape{Rows: 200, Cols: 8}},
		{"one row extra", 201, 9, matrix.Shape{Rows: 201, Cols: 9}},
		{"extra channel", 200, 10, matrix.Shape{Rows: 200, Cols: 10}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model := &fakeModel{probs: []float64{0.2, 0.2, 0.2, 0.2, 0.2}}
			metrics := newMockMetrics()
			p := newTestPipeline(t, model, DefaultOptions(), metrics)

			res, err := p.Run(context.Background(), recording(tt.rows, tt.cols, zeros))

			var se *ShapeMismatchError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, matrix.Shape{Rows: 200, Cols: 9}, se.Expected)
			assert.Equal(t, tt.actual, se.Actual)
			assert.Contains(t, err.Error(), "expected (200, 9)")

			assert.Equal(t, StageParsed, res.Stage)
			assert.Empty(t, res.Predictions)
			assert.Empty(t, model.inputs, "model must not run")
			assert.Equal(t, 1, metrics.failures[KindShapeMismatch])
		})
	}
}

func TestRun_MalformedNeverSucceeds(t *testing.T) {
	inputs := map[string][]byte{
		"words":            []byte("hello;world\nfoo;bar\n"),
		"header only":      []byte("a;b;c\n"),
		"blank":            []byte("   \n\n"),
		"garbage 200x9":    recording(200, 9, func(i, j int) string { return "n/a" }),
		"symbols":          []byte("--;??\n**;##\n"),
		"invalid encoding": {0xc3, 0x28, ';', '1'},
	}

	for name, in := range inputs {
		t.Run(name, func(t *testing.T) {
			model := &fakeModel{probs: []float64{0.2, 0.2, 0.2, 0.2, 0.2}}
			p := newTestPipeline(t, model, DefaultOptions(), nil)

			res, err := p.Run(context.Background(), in)
			require.Error(t, err)
			assert.True(t, Recoverable(err), "error %v should be recoverable", err)
			assert.Empty(t, res.Predictions)
			assert.Empty(t, model.inputs)
		})
	}
}

func TestRun_ErrorKinds(t *testing.T) {
	p := newTestPipeline(t, &fakeModel{probs: []float64{0.2, 0.2, 0.2, 0.2, 0.2}}, DefaultOptions(), nil)

	_, err := p.Run(context.Background(), []byte{0xff})
	assert.Equal(t, KindDecode, ErrorKind(err))

	_, err = p.Run(context.Background(), []byte("\n"))
	assert.Equal(t, KindEmptyInput, ErrorKind(err))

	_, err = p.Run(context.Background(), []byte("1;2\n"))
	assert.Equal(t, KindShapeMismatch, ErrorKind(err))
}

func TestRun_InvalidCells(t *testing.T) {
	body := recording(200, 9, func(i, j int) string {
		if i == 10 && j == 4 {
			return "1.2.3"
		}
		return "1"
	})

	t.Run("zero-filled by default", func(t *testing.T) {
		model := &fakeModel{probs: []float64{0.2, 0.2, 0.2, 0.2, 0.2}}
		metrics := newMockMetrics()
		p := newTestPipeline(t, model, DefaultOptions(), metrics)

		res, err := p.Run(context.Background(), body)
		require.NoError(t, err)
		assert.Equal(t, StageReported, res.Stage)
		assert.Equal(t, 1, res.Filled)
		assert.Equal(t, []parser.CellError{{Row: 10, Col: 4, Line: 11, Value: "1.2.3"}}, res.Invalid)
		assert.Equal(t, 1, metrics.filled)
		require.Len(t, model.inputs, 1)
		// channel 4 min is the filled zero
		assert.Equal(t, 0.0, model.inputs[0][3*9+4])
	})

	t.Run("comma decimals with one unreadable cell", func(t *testing.T) {
		body := recording(200, 9, func(i, j int) string {
			if i == 3 && j == 2 {
				return "n/a"
			}
			return "1,5"
		})
		model := &fakeModel{probs: []float64{0.1, 0.6, 0.1, 0.1, 0.1}}
		p := newTestPipeline(t, model, DefaultOptions(), nil)

		res, err := p.Run(context.Background(), body)
		require.NoError(t, err)
		assert.Equal(t, "lunge", res.Prediction().Label)
		assert.Equal(t, 1, res.Filled)
		require.Len(t, res.Invalid, 1)
		assert.Equal(t, "n/a", res.Invalid[0].Value)
	})

	t.Run("rejected in strict mode", func(t *testing.T) {
		model := &fakeModel{probs: []float64{0.2, 0.2, 0.2, 0.2, 0.2}}
		opts := DefaultOptions()
		opts.StrictCells = true
		p := newTestPipeline(t, model, opts, nil)

		res, err := p.Run(context.Background(), body)
		var ce *InvalidCellsError
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, 1, ce.Missing)
		require.Len(t, ce.Cells, 1)
		assert.Equal(t, parser.CellError{Row: 10, Col: 4, Line: 11, Value: "1.2.3"}, ce.Cells[0])
		assert.Contains(t, err.Error(), `line 11, column 5: "1.2.3"`)
		assert.Equal(t, StageParsed, res.Stage)
		assert.Len(t, res.Invalid, 1)
		assert.Empty(t, model.inputs)
	})
}

func TestRun_ModelError(t *testing.T) {
	model := &fakeModel{probs: []float64{0.2, 0.2, 0.2, 0.2, 0.2}, err: errors.New("booster exploded")}
	metrics := newMockMetrics()
	p := newTestPipeline(t, model, DefaultOptions(), metrics)

	res, err := p.Run(context.Background(), recording(200, 9, zeros))

	var me *ModelError
	require.ErrorAs(t, err, &me)
	assert.Equal(t, StagePredicted, me.Stage)
	assert.Contains(t, err.Error(), "booster exploded")
	assert.False(t, Recoverable(err))
	assert.Equal(t, StageScaled, res.Stage)
	assert.Equal(t, 1, metrics.failures[KindModel])
}

func TestRun_ContextCanceled(t *testing.T) {
	model := &fakeModel{probs: []float64{0.2, 0.2, 0.2, 0.2, 0.2}}
	p := newTestPipeline(t, model, DefaultOptions(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Run(ctx, recording(200, 9, zeros))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, KindCanceled, ErrorKind(err))
	assert.Empty(t, model.inputs)
}

func TestRunSegments_Sequence(t *testing.T) {
	model := &fakeModel{probs: []float64{0.1, 0.2, 0.3, 0.15, 0.25}}
	p := newTestPipeline(t, model, Options{TopK: 3}, nil)

	segs := []features.Segment{matrix.New(200, 9), matrix.New(200, 9), matrix.New(200, 9)}
	res, err := p.RunSegments(context.Background(), segs)
	require.NoError(t, err)

	require.Len(t, res.Predictions, 3)
	for _, pred := range res.Predictions {
		assert.Equal(t, "bridge", pred.Label)
		assert.Len(t, pred.Top, 3)
	}
	assert.Len(t, model.inputs, 3)
}

func TestRunSegments_RejectsBadSegment(t *testing.T) {
	p := newTestPipeline(t, &fakeModel{probs: []float64{0.2, 0.2, 0.2, 0.2, 0.2}}, DefaultOptions(), nil)

	_, err := p.RunSegments(context.Background(), []features.Segment{matrix.New(200, 9), matrix.New(100, 9)})
	var se *ShapeMismatchError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 1, se.Segment)

	_, err = p.RunSegments(context.Background(), nil)
	assert.ErrorAs(t, err, &se)
}

func TestPipeline_ConcurrentRequests(t *testing.T) {
	model := &fakeModel{probs: []float64{0.1, 0.5, 0.05, 0.3, 0.05}}
	p := newTestPipeline(t, model, DefaultOptions(), newMockMetrics())
	body := recording(200, 9, func(i, j int) string { return fmt.Sprintf("%d", (i*j)%7) })

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := p.Run(context.Background(), body)
			if err == nil && res.Prediction().Label != "lunge" {
				err = fmt.Errorf("unexpected label %q", res.Prediction().Label)
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
}

func TestNew_Defaults(t *testing.T) {
	p := newTestPipeline(t, &fakeModel{probs: []float64{1, 0, 0, 0, 0}}, Options{}, nil)
	assert.Equal(t, 5, p.Options().TopK)
	assert.Equal(t, matrix.Shape{Rows: 200, Cols: 9}, p.Options().Expected)
}

func TestRun_UsesContextRequestID(t *testing.T) {
	p := newTestPipeline(t, &fakeModel{probs: []float64{0.2, 0.2, 0.2, 0.2, 0.2}}, DefaultOptions(), nil)

	ctx := WithRequestID(context.Background(), "abc-123")
	res, err := p.Run(ctx, recording(200, 9, zeros))
	require.NoError(t, err)
	assert.Equal(t, "abc-123", res.RequestID)
	assert.Equal(t, "abc-123", RequestID(ctx))
	assert.Equal(t, "", RequestID(context.Background()))
}
