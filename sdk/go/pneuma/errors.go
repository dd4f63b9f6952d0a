// Package pneuma provides a Go client for the pneuma persona polling API.
package pneuma

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents an error from the pneuma API with the HTTP status code
// and the server's error code and message.
type Error struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("pneuma: %s (%d): %s", e.Code, e.StatusCode, e.Message)
}

// IsInsufficientBalance reports whether a batch was refused because the
// user's balance does not cover its estimated cost.
func IsInsufficientBalance(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == "INSUFFICIENT_BALANCE"
	}
	return false
}

// IsInvalidInput returns true if the request was rejected before any work started.
func IsInvalidInput(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.StatusCode == http.StatusBadRequest
	}
	return false
}

// IsUnavailable returns true if the error is a 503, which the server returns
// when billing is not configured.
func IsUnavailable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.StatusCode == http.StatusServiceUnavailable
	}
	return false
}
