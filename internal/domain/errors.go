package domain

import "errors"

var (
	ErrInvalidID       = errors.New("invalid id")
	ErrTitleRequired   = errors.New("Title is required")
	ErrInvalidPriority = errors.New("invalid priority")
	ErrInvalidStatus   = errors.New("invalid status")
	ErrInvalidEffort   = errors.New("invalid effort")
	ErrInvalidDueDate  = errors.New("invalid due date")
	ErrInvalidRecord   = errors.New("invalid record")
)
