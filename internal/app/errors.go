package app

import "errors"

// ErrTaskNotFound and related errors describe precondition failures.
var (
	ErrTaskNotFound       = errors.New("Task not found")
	ErrNoLayoutEngine     = errors.New("layout engine not configured")
	ErrSessionUnsupported = errors.New("session claims unavailable")
)
