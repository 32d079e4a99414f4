package pipeline

import (
	"context"
	"errors"
	"fmt"

	"physio-predictor/internal/features"
	"physio-predictor/internal/matrix"
	"physio-predictor/internal/parser"
)

// Error kinds used for metrics labels and user-facing status mapping.
const (
	KindDecode        = "decode"
	KindEmptyInput    = "empty_input"
	KindShapeMismatch = "shape_mismatch"
	KindInvalidCells  = "invalid_cells"
	KindFeatures      = "features"
	KindModel         = "model"
	KindCanceled      = "canceled"
	KindInternal      = "internal"
)

// ShapeMismatchError is returned when a recording is not exactly the
// expected rows x channels. The shape is never coerced.
type ShapeMismatchError struct {
	Expected matrix.Shape
	Actual   matrix.Shape
	Segment  int
}

func (e *ShapeMismatchError) Error() string {
	return fmt.Sprintf("wrong shape: expected %s but got %s", e.Expected, e.Actual)
}

// InvalidCellsError is returned in strict-cells mode when a correctly shaped
// recording still contains missing values.
type InvalidCellsError struct {
	Cells   []parser.CellError // cells that failed numeric conversion
	Missing int                // missing cells left in the matrix
}

func (e *InvalidCellsError) Error() string {
	msg := fmt.Sprintf("recording has %d missing or non-numeric cells", e.Missing)
	if len(e.Cells) > 0 {
		msg += ": " + parser.FormatCells(e.Cells, 5)
	}
	return msg
}

// ModelError wraps any failure of the scaler, the model or the label decoder.
type ModelError struct {
	Stage Stage
	Err   error
}

func (e *ModelError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Stage, e.Err)
}

func (e *ModelError) Unwrap() error { return e.Err }

// ErrorKind classifies a pipeline error.
func ErrorKind(err error) string {
	var (
		decodeErr  *parser.DecodeError
		emptyErr   *parser.EmptyInputError
		shapeErr   *ShapeMismatchError
		cellsErr   *InvalidCellsError
		modelErr   *ModelError
		channelErr *features.ChannelCountError
	)

	switch {
	case err == nil:
		return ""
	case errors.As(err, &decodeErr):
		return KindDecode
	case errors.As(err, &emptyErr):
		return KindEmptyInput
	case errors.As(err, &shapeErr):
		return KindShapeMismatch
	case errors.As(err, &cellsErr):
		return KindInvalidCells
	case errors.As(err, &modelErr):
		return KindModel
	case errors.As(err, &channelErr), errors.Is(err, features.ErrEmptySegment):
		return KindFeatures
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	default:
		return KindInternal
	}
}

// Recoverable reports whether the error is caused by the upload and the user
// can fix it by uploading another file.
func Recoverable(err error) bool {
	switch ErrorKind(err) {
	case KindDecode, KindEmptyInput, KindShapeMismatch, KindInvalidCells:
		return true
	}
	return false
}

// Process exit codes of the command line tools.
const (
	ExitOK      = 0
	ExitFailure = 1 // model, artifact or I/O failure
	ExitUsage   = 2
	ExitInput   = 3 // the recording was rejected; another file may work
)

// ExitCode maps a pipeline error to a process exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case Recoverable(err):
		return ExitInput
	default:
		return ExitFailure
	}
}
