package domain

import "time"

// Activity is one journaled mutation attempt.
type Activity struct {
	ID     string
	At     time.Time
	Op     string
	Target string
	Error  string
}

// Failed reports whether the mutation returned an error.
func (a Activity) Failed() bool {
	return a.Error != ""
}
