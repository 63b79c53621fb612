// Package common provides transport-agnostic server contracts used by HTTP and MCP adapters.
package common

import (
	"context"
	"errors"
	"time"
)

// ErrInvalidRequest reports malformed transport input.
var ErrInvalidRequest = errors.New("invalid request")

// ErrNotFound reports missing transport-visible resources.
var ErrNotFound = errors.New("not found")

// ErrUnavailable reports a missing credential or collaborator.
var ErrUnavailable = errors.New("unavailable")

// ErrUpstream reports a failed or malformed backend response.
var ErrUpstream = errors.New("upstream failure")

// DefaultActivityLimit bounds recent_activity when no limit is given.
const DefaultActivityLimit = 20

// TaskView is the bridge representation of one task with derived metrics.
type TaskView struct {
	ID               string     `json:"id"`
	Title            string     `json:"title"`
	Description      string     `json:"description,omitempty"`
	Type             string     `json:"type"`
	Status           string     `json:"status"`
	Priority         int        `json:"priority"`
	PriorityLabel    string     `json:"priority_label"`
	DueDate          *time.Time `json:"due_date,omitempty"`
	Effort           float64    `json:"effort"`
	PercentCompleted float64    `json:"percent_completed"`
	RemainingEffort  float64    `json:"remaining_effort"`
	Urgency          float64    `json:"urgency"`
	Overdue          bool       `json:"overdue"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
}

// LayoutRequest selects the canvas for one frozen layout.
type LayoutRequest struct {
	Width  float64
	Height float64
}

// LayoutNode is one positioned bubble.
type LayoutNode struct {
	TaskID  string  `json:"task_id"`
	Label   string  `json:"label"`
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Radius  float64 `json:"radius"`
	Opacity float64 `json:"opacity"`
}

// ActivityView is one journaled mutation attempt.
type ActivityView struct {
	ID     string    `json:"id"`
	At     time.Time `json:"at"`
	Op     string    `json:"op"`
	Target string    `json:"target"`
	Error  string    `json:"error,omitempty"`
}

// TaskService is the read-mostly surface shared by the HTTP and MCP adapters.
type TaskService interface {
	ListTasks(context.Context) ([]TaskView, error)
	ListCompletedTasks(context.Context) ([]TaskView, error)
	TaskLayout(context.Context, LayoutRequest) ([]LayoutNode, error)
	CompleteTask(ctx context.Context, id string) error
	ReopenTask(ctx context.Context, id string) (TaskView, error)
	RecentActivity(ctx context.Context, limit int) ([]ActivityView, error)
}
