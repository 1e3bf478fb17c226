// Package apperr defines the error taxonomy shared by the services and the HTTP layer.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrValidation indicates bad caller input. Returned before any work starts.
	ErrValidation = errors.New("validation error")

	// ErrNotFound indicates a referenced document, job or session does not exist.
	ErrNotFound = errors.New("not found")

	// ErrProcessing indicates a failure inside an ingestion run.
	ErrProcessing = errors.New("processing error")

	// ErrProvider indicates an embedding or generation provider call failed.
	ErrProvider = errors.New("provider error")

	// ErrQueueFull indicates the ingestion queue cannot accept more work right now.
	ErrQueueFull = errors.New("ingestion queue is full")
)

// Validation wraps msg as a validation error.
func Validation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// NotFound reports a missing entity of the given kind.
func NotFound(kind, id string) error {
	return fmt.Errorf("%w: %s %s", ErrNotFound, kind, id)
}

// Processing wraps err as an ingestion processing failure.
func Processing(step string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrProcessing, step, err)
}

// HTTPStatus maps an error to the status code the API responds with.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrQueueFull):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
