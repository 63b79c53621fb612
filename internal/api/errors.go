package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/hylla/taskdeck/internal/query"
)

var (
	// ErrAuthenticationRequired reports a missing credential. Queries treat
	// it as a skipped fetch rather than a failure.
	ErrAuthenticationRequired = fmt.Errorf("authentication required: %w", query.ErrSkipped)
	ErrInvalidResponse        = errors.New("Invalid response format")
	ErrUserNotApproved        = errors.New("User not approved")
	ErrInvalidConfig          = errors.New("invalid api config")
)

// StatusError is a non-2xx backend response.
type StatusError struct {
	Message    string
	StatusCode int
	Err        error
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: %d %s", e.Message, e.StatusCode, http.StatusText(e.StatusCode))
}

func (e *StatusError) Unwrap() error {
	return e.Err
}

// StatusCode extracts the HTTP status from err, or 0.
func StatusCode(err error) int {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode
	}
	return 0
}
