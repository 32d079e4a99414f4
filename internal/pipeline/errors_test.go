package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"physio-predictor/internal/features"
	"physio-predictor/internal/matrix"
	"physio-predictor/internal/ml"
	"physio-predictor/internal/parser"

	"github.com/stretchr/testify/assert"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"success", nil, ExitOK},
		{"decode", &parser.DecodeError{Offset: 3}, ExitInput},
		{"empty", &parser.EmptyInputError{}, ExitInput},
		{"header only", &parser.EmptyInputError{HeaderOnly: true}, ExitInput},
		{"shape", &ShapeMismatchError{Actual: matrix.Shape{Rows: 199, Cols: 9}}, ExitInput},
		{"strict cells", &InvalidCellsError{Missing: 1}, ExitInput},
		{"wrapped shape", fmt.Errorf("upload: %w", &ShapeMismatchError{}), ExitInput},
		{"model", &ModelError{Stage: StagePredicted, Err: errors.New("boom")}, ExitFailure},
		{"artifacts", &ml.ArtifactLoadError{Artifact: "bundle", Err: errors.New("gone")}, ExitFailure},
		{"features", features.ErrEmptySegment, ExitFailure},
		{"canceled", context.Canceled, ExitFailure},
		{"deadline", context.DeadlineExceeded, ExitFailure},
		{"unknown", errors.New("disk on fire"), ExitFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCode(tt.err))
		})
	}
}

func TestErrorKind_Recoverable(t *testing.T) {
	assert.True(t, Recoverable(&InvalidCellsError{}))
	assert.False(t, Recoverable(&ModelError{Err: errors.New("x")}))
	assert.Equal(t, KindCanceled, ErrorKind(fmt.Errorf("run: %w", context.DeadlineExceeded)))
	assert.Equal(t, "", ErrorKind(nil))
}
