package server

import (
	"net/http"

	"physio-predictor/internal/pipeline"
)

// ErrorResponse is the HTTP form of a pipeline failure.
type ErrorResponse struct {
	StatusCode int
	Code       string
	Message    string
}

// MapError maps pipeline errors to HTTP responses. Upload problems carry the
// error text so the user can fix the file; model failures are surfaced
// verbatim as well, everything else is hidden.
func MapError(err error) ErrorResponse {
	switch kind := pipeline.ErrorKind(err); kind {
	case pipeline.KindDecode, pipeline.KindEmptyInput:
		return ErrorResponse{StatusCode: http.StatusBadRequest, Code: kind, Message: err.Error()}
	case pipeline.KindShapeMismatch, pipeline.KindInvalidCells:
		return ErrorResponse{StatusCode: http.StatusUnprocessableEntity, Code: kind, Message: err.Error()}
	case pipeline.KindModel:
		return ErrorResponse{StatusCode: http.StatusInternalServerError, Code: kind, Message: err.Error()}
	case pipeline.KindCanceled:
		return ErrorResponse{StatusCode: http.StatusServiceUnavailable, Code: kind, Message: "request canceled"}
	default:
		return ErrorResponse{StatusCode: http.StatusInternalServerError, Code: pipeline.KindInternal, Message: "internal server error"}
	}
}
