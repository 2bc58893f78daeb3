package model

import (
	"errors"
	"fmt"
)

// Payments API error kinds. Adapters return *APIError values that match
// these with errors.Is.
var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrBadRequest     = errors.New("bad request")
	ErrNotFound       = errors.New("not found")
	ErrInternalServer = errors.New("internal server error")
	ErrAPI            = errors.New("payments api error")
)

// APIError is a failed payments API call.
type APIError struct {
	Op      string
	Status  int
	Kind    error
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s (status %d): %s", e.Op, e.Kind, e.Status, e.Message)
}

// Unwrap exposes the kind.
func (e *APIError) Unwrap() error { return e.Kind }

// KindForStatus maps an HTTP status to an error kind.
func KindForStatus(status int) error {
	switch {
	case status == 401 || status == 403:
		return ErrUnauthorized
	case status == 400 || status == 422:
		return ErrBadRequest
	case status == 404:
		return ErrNotFound
	case status >= 500:
		return ErrInternalServer
	default:
		return ErrAPI
	}
}
