// Package apperr defines the sentinel errors used across the engine and
// maps them onto HTTP status codes for the API layer.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrDocumentNotFound  = errors.New("document not found")
	ErrLexiconMissing    = errors.New("lexicon not loaded")
	ErrInvalidQuery      = errors.New("invalid query")
	ErrTokenizerFailed   = errors.New("tokenizer subprocess failed")
	ErrUnsupportedUpload = errors.New("unsupported upload")
	ErrIndexCorrupt      = errors.New("index file corrupt")
	ErrShuttingDown      = errors.New("engine shutting down")
	ErrInternal          = errors.New("internal error")
	ErrTimeout           = errors.New("operation timed out")
)

// AppError pairs a sentinel error with a caller-facing message and an HTTP
// status code, following the same shape as the sentinel-plus-wrapper split
// used throughout this codebase.
type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{Err: sentinel, Message: message, StatusCode: statusCode}
}

func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return &AppError{Err: sentinel, Message: fmt.Sprintf(format, args...), StatusCode: statusCode}
}

// HTTPStatusCode maps an error to the status code the HTTP layer should
// return for it, consulting the AppError wrapper first and falling back to
// sentinel matching.
func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}
	switch {
	case errors.Is(err, ErrDocumentNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidQuery), errors.Is(err, ErrUnsupportedUpload):
		return http.StatusBadRequest
	case errors.Is(err, ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, ErrShuttingDown):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
