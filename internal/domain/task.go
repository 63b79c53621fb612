package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"
)

// ID is a backend identifier. The backend emits ids as strings or numbers.
type ID string

// UnmarshalJSON accepts string, number, and null ids.
func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("%w: id %s", ErrInvalidID, string(b))
	}
	*id = ID(n.String())
	return nil
}

func (id ID) String() string {
	return string(id)
}

type Priority int

const (
	PriorityLow    Priority = 1
	PriorityMedium Priority = 2
	PriorityHigh   Priority = 3
	PriorityUrgent Priority = 4
)

// Valid reports whether p is within 1..4.
func (p Priority) Valid() bool {
	return p >= PriorityLow && p <= PriorityUrgent
}

// Clamp pins p into 1..4.
func (p Priority) Clamp() Priority {
	switch {
	case p < PriorityLow:
		return PriorityLow
	case p > PriorityUrgent:
		return PriorityUrgent
	default:
		return p
	}
}

// PriorityLabel returns the display label for a priority.
func PriorityLabel(p Priority) string {
	switch p {
	case PriorityLow:
		return "Low"
	case PriorityMedium:
		return "Medium"
	case PriorityHigh:
		return "High"
	case PriorityUrgent:
		return "Urgent"
	default:
		return "Normal"
	}
}

type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in progress"
	StatusCompleted  Status = "completed"
)

var validStatuses = []Status{StatusPending, StatusInProgress, StatusCompleted}

type TaskType string

const (
	TypeTask        TaskType = "task"
	TypeBug         TaskType = "bug"
	TypeFeature     TaskType = "feature"
	TypeImprovement TaskType = "improvement"
)

// TaskTypes lists the types offered by the task form.
var TaskTypes = []TaskType{TypeTask, TypeBug, TypeFeature, TypeImprovement}

// Task is one backend task. PercentCompleted is a fraction in [0,1].
type Task struct {
	ID               ID         `json:"id"`
	UserID           ID         `json:"user_id"`
	Title            string     `json:"title"`
	Description      string     `json:"description"`
	Type             TaskType   `json:"type"`
	DueDate          *time.Time `json:"due_date"`
	Priority         Priority   `json:"priority"`
	Status           Status     `json:"status"`
	Effort           float64    `json:"effort"`
	PercentCompleted float64    `json:"percent_completed"`
	CompletedAt      *time.Time `json:"completed_at"`
	LastCompleted    *time.Time `json:"last_completed,omitempty"`
}

// Completed reports whether the task status is completed.
func (t Task) Completed() bool {
	return t.Status == StatusCompleted
}

// Overdue reports whether an open task is past its due date.
func (t Task) Overdue(now time.Time) bool {
	return t.DueDate != nil && !t.Completed() && t.DueDate.Before(now)
}

type wireTask struct {
	ID               ID          `json:"id"`
	UserID           ID          `json:"user_id"`
	Title            string      `json:"title"`
	Description      *string     `json:"description"`
	Type             string      `json:"type"`
	DueDate          *string     `json:"due_date"`
	Priority         json.Number `json:"priority"`
	Status           string      `json:"status"`
	Effort           json.Number `json:"effort"`
	PercentCompleted json.Number `json:"percent_completed"`
	CompletedAt      *string     `json:"completed_at"`
	LastCompleted    *string     `json:"last_completed"`
}

// UnmarshalJSON decodes either an object or the positional row
// [id, user_id, title, description, type, due_date, priority, status,
// effort, percent_completed, completed_at].
func (t *Task) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	var w wireTask
	if len(b) > 0 && b[0] == '[' {
		row, err := decodeTaskRow(b)
		if err != nil {
			return err
		}
		w = row
	} else {
		dec := json.NewDecoder(bytes.NewReader(b))
		dec.UseNumber()
		if err := dec.Decode(&w); err != nil {
			return err
		}
	}
	out, err := w.task()
	if err != nil {
		return err
	}
	*t = out
	return nil
}

func decodeTaskRow(b []byte) (wireTask, error) {
	var cells []json.RawMessage
	if err := json.Unmarshal(b, &cells); err != nil {
		return wireTask{}, err
	}
	if len(cells) < 10 {
		return wireTask{}, fmt.Errorf("%w: task row has %d cells", ErrInvalidRecord, len(cells))
	}
	var w wireTask
	targets := []any{
		&w.ID, &w.UserID, &w.Title, &w.Description, &w.Type, &w.DueDate,
		&w.Priority, &w.Status, &w.Effort, &w.PercentCompleted, &w.CompletedAt,
	}
	for idx, target := range targets {
		if idx >= len(cells) {
			break
		}
		if err := decodeCell(cells[idx], target); err != nil {
			return wireTask{}, fmt.Errorf("%w: task row cell %d: %v", ErrInvalidRecord, idx, err)
		}
	}
	return w, nil
}

// decodeCell tolerates null cells and numbers where strings are expected.
func decodeCell(raw json.RawMessage, target any) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	switch v := target.(type) {
	case *string:
		if raw[0] != '"' {
			*v = string(raw)
			return nil
		}
	case *json.Number:
		if raw[0] == '"' {
			var s string
			if err := json.Unmarshal(raw, &s); err != nil {
				return err
			}
			*v = json.Number(strings.TrimSpace(s))
			return nil
		}
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	return dec.Decode(target)
}

func (w wireTask) task() (Task, error) {
	t := Task{
		ID:     w.ID,
		UserID: w.UserID,
		Title:  w.Title,
		Type:   TaskType(strings.TrimSpace(w.Type)),
		Status: Status(strings.TrimSpace(w.Status)),
	}
	if w.Description != nil {
		t.Description = *w.Description
	}
	var err error
	if t.DueDate, err = parseOptionalTime(w.DueDate); err != nil {
		return Task{}, fmt.Errorf("due_date: %w", err)
	}
	if t.CompletedAt, err = parseOptionalTime(w.CompletedAt); err != nil {
		return Task{}, fmt.Errorf("completed_at: %w", err)
	}
	if t.LastCompleted, err = parseOptionalTime(w.LastCompleted); err != nil {
		return Task{}, fmt.Errorf("last_completed: %w", err)
	}
	priority, err := numberOrZero(w.Priority)
	if err != nil {
		return Task{}, fmt.Errorf("priority: %w", err)
	}
	t.Priority = Priority(int(priority))
	if t.Effort, err = numberOrZero(w.Effort); err != nil {
		return Task{}, fmt.Errorf("effort: %w", err)
	}
	if t.PercentCompleted, err = numberOrZero(w.PercentCompleted); err != nil {
		return Task{}, fmt.Errorf("percent_completed: %w", err)
	}
	return t, nil
}

func numberOrZero(n json.Number) (float64, error) {
	if n == "" {
		return 0, nil
	}
	return strconv.ParseFloat(string(n), 64)
}

func parseOptionalTime(s *string) (*time.Time, error) {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil, nil
	}
	ts, err := ParseTimestamp(*s)
	if err != nil {
		return nil, err
	}
	return &ts, nil
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	time.RFC1123,
	time.RFC1123Z,
	time.DateOnly,
}

// ParseTimestamp parses the timestamp shapes the backend emits. Values
// without a zone are read as UTC.
func ParseTimestamp(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range timestampLayouts {
		if ts, err := time.ParseInLocation(layout, raw, time.UTC); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDueDate, raw)
}

// ParseDueDate parses a YYYY-MM-DD form value into UTC midnight. Blank and
// "-" clear the date.
func ParseDueDate(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "-" {
		return nil, nil
	}
	day, err := time.ParseInLocation(time.DateOnly, raw, time.UTC)
	if err != nil {
		return nil, fmt.Errorf("%w: %q (expected YYYY-MM-DD)", ErrInvalidDueDate, raw)
	}
	return &day, nil
}

// TaskInput is the write payload for create and update.
type TaskInput struct {
	Title            string     `json:"title"`
	Description      string     `json:"description"`
	Type             TaskType   `json:"type"`
	DueDate          *time.Time `json:"due_date"`
	Priority         Priority   `json:"priority"`
	Status           Status     `json:"status"`
	Effort           float64    `json:"effort"`
	PercentCompleted float64    `json:"percent_completed"`
	CompletedAt      *time.Time `json:"completed_at"`
}

// InputFromTask copies the writable fields of t.
func InputFromTask(t Task) TaskInput {
	return TaskInput{
		Title:            t.Title,
		Description:      t.Description,
		Type:             t.Type,
		DueDate:          t.DueDate,
		Priority:         t.Priority,
		Status:           t.Status,
		Effort:           t.Effort,
		PercentCompleted: t.PercentCompleted,
		CompletedAt:      t.CompletedAt,
	}
}

// ReopenInput rebuilds t as a pending task with no completion time.
func ReopenInput(t Task) TaskInput {
	in := InputFromTask(t)
	in.Status = StatusPending
	in.CompletedAt = nil
	return in
}

// NormalizeTaskInput validates a payload and fills defaults. The percent is
// clamped into [0,1] and dates are moved to UTC.
func NormalizeTaskInput(in TaskInput) (TaskInput, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	in.Type = TaskType(strings.TrimSpace(strings.ToLower(string(in.Type))))
	in.Status = Status(strings.TrimSpace(strings.ToLower(string(in.Status))))

	if in.Title == "" {
		return TaskInput{}, ErrTitleRequired
	}
	if in.Type == "" {
		in.Type = TypeTask
	}
	if in.Priority == 0 {
		in.Priority = PriorityMedium
	}
	if !in.Priority.Valid() {
		return TaskInput{}, fmt.Errorf("%w: %d", ErrInvalidPriority, in.Priority)
	}
	if in.Status == "" {
		in.Status = StatusPending
	}
	if !slices.Contains(validStatuses, in.Status) {
		return TaskInput{}, fmt.Errorf("%w: %q", ErrInvalidStatus, in.Status)
	}
	if math.IsNaN(in.Effort) || math.IsInf(in.Effort, 0) || in.Effort < 0 {
		return TaskInput{}, fmt.Errorf("%w: %v", ErrInvalidEffort, in.Effort)
	}
	in.PercentCompleted = ClampFraction(in.PercentCompleted)
	if in.DueDate != nil {
		if in.DueDate.IsZero() {
			return TaskInput{}, ErrInvalidDueDate
		}
		due := in.DueDate.UTC()
		in.DueDate = &due
	}
	if in.CompletedAt != nil {
		done := in.CompletedAt.UTC()
		in.CompletedAt = &done
	}
	return in, nil
}

// ClampFraction pins v into [0,1]; NaN becomes 0.
func ClampFraction(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
