// Package errors holds the sentinel errors shared by the indexer and the
// searcher and maps them onto HTTP responses.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrIndexNotBuilt     = errors.New("index not built")
	ErrInconsistentIndex = errors.New("index files are inconsistent")
	ErrInvalidInput      = errors.New("invalid input")
	ErrInternal          = errors.New("internal error")
	ErrTimeout           = errors.New("operation timed out")
)

// AppError carries the status and client-safe message for a failure.
type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return e.Err.Error() + ": " + e.Message
}

func (e *AppError) Unwrap() error { return e.Err }

func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{Err: sentinel, Message: message, StatusCode: statusCode}
}

func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return New(sentinel, statusCode, fmt.Sprintf(format, args...))
}

type response struct {
	sentinel error
	status   int
	message  string
}

// Checked in order; the first sentinel found in the chain decides.
var responses = []response{
	{ErrInvalidInput, http.StatusBadRequest, "invalid request"},
	{ErrIndexNotBuilt, http.StatusServiceUnavailable, "index is not built"},
	{ErrTimeout, http.StatusServiceUnavailable, "search timed out"},
	{ErrInconsistentIndex, http.StatusInternalServerError, "index is inconsistent, rebuild required"},
}

// Response returns the status code and message to send for err. Details
// of wrapped errors never reach the message unless err is an AppError.
func Response(err error) (int, string) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode, appErr.Message
	}
	for _, r := range responses {
		if errors.Is(err, r.sentinel) {
			return r.status, r.message
		}
	}
	return http.StatusInternalServerError, "internal error"
}
