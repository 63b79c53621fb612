package tui

import "time"

// Option configures a Model.
type Option func(*Model)

// WithConfirmDelete toggles the delete confirmation modal.
func WithConfirmDelete(confirm bool) Option {
	return func(m *Model) {
		m.confirmDelete = confirm
	}
}

// WithVisualization starts the tasks tab in bubble mode.
func WithVisualization(enabled bool) Option {
	return func(m *Model) {
		if enabled {
			m.viewMode = viewBubbles
		}
	}
}

// WithKeyConfig applies key overrides.
func WithKeyConfig(cfg KeyConfig) Option {
	return func(m *Model) {
		m.keys.applyConfig(cfg)
	}
}

// WithClock overrides the clock used for due dates and layout budgets.
func WithClock(now func() time.Time) Option {
	return func(m *Model) {
		if now != nil {
			m.now = now
		}
	}
}

// WithClipboard overrides the clipboard writer used by yank.
func WithClipboard(write func(string) error) Option {
	return func(m *Model) {
		if write != nil {
			m.copyText = write
		}
	}
}

// WithActivityLimit caps entries shown in the activity modal.
func WithActivityLimit(limit int) Option {
	return func(m *Model) {
		if limit > 0 {
			m.activityLimit = limit
		}
	}
}
