package common

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hylla/taskdeck/internal/api"
	"github.com/hylla/taskdeck/internal/app"
	"github.com/hylla/taskdeck/internal/domain"
	"github.com/hylla/taskdeck/internal/layout"
	"github.com/hylla/taskdeck/internal/query"
)

// AppServiceAdapter maps transport contracts onto app.Service. Every read
// refetches its list first, so bridge mutations leave refetching to the next read.
type AppServiceAdapter struct {
	service *app.Service
	now     func() time.Time
}

// NewAppServiceAdapter builds one common adapter over an app.Service instance.
func NewAppServiceAdapter(service *app.Service, now func() time.Time) *AppServiceAdapter {
	if now == nil {
		now = time.Now
	}
	return &AppServiceAdapter{service: service, now: now}
}

// ListTasks returns the open tasks.
func (a *AppServiceAdapter) ListTasks(ctx context.Context) ([]TaskView, error) {
	if err := a.ready(); err != nil {
		return nil, err
	}
	if err := a.refetch(ctx, "list tasks", app.ListTasks); err != nil {
		return nil, err
	}
	return a.taskViews(a.service.Tasks().Data), nil
}

// ListCompletedTasks returns completed tasks, most recently completed first.
func (a *AppServiceAdapter) ListCompletedTasks(ctx context.Context) ([]TaskView, error) {
	if err := a.ready(); err != nil {
		return nil, err
	}
	if err := a.refetch(ctx, "list completed tasks", app.ListCompleted); err != nil {
		return nil, err
	}
	return a.taskViews(a.service.Completed().Data), nil
}

// TaskLayout lays out the open tasks on the requested canvas.
func (a *AppServiceAdapter) TaskLayout(ctx context.Context, in LayoutRequest) ([]LayoutNode, error) {
	if err := a.ready(); err != nil {
		return nil, err
	}
	if in.Width <= 0 || in.Height <= 0 {
		return nil, fmt.Errorf("task layout: width and height must be positive: %w", ErrInvalidRequest)
	}
	if err := a.refetch(ctx, "task layout", app.ListTasks); err != nil {
		return nil, err
	}
	nodes, err := a.service.TaskLayout(ctx, in.Width, in.Height)
	if err != nil {
		return nil, mapAppError("task layout", err)
	}
	out := make([]LayoutNode, 0, len(nodes))
	for _, node := range nodes {
		out = append(out, LayoutNode{
			TaskID:  string(node.Task.ID),
			Label:   domain.Label(node.Task.Title),
			X:       node.X,
			Y:       node.Y,
			Radius:  node.Radius,
			Opacity: domain.Opacity(node.Task),
		})
	}
	return out, nil
}

// CompleteTask marks one task completed.
func (a *AppServiceAdapter) CompleteTask(ctx context.Context, id string) error {
	if err := a.ready(); err != nil {
		return err
	}
	taskID, err := parseID(id)
	if err != nil {
		return err
	}
	if err := a.service.CompleteTask(ctx, taskID); err != nil {
		return mapAppError("complete task", err)
	}
	return nil
}

// ReopenTask returns one completed task to pending.
func (a *AppServiceAdapter) ReopenTask(ctx context.Context, id string) (TaskView, error) {
	if err := a.ready(); err != nil {
		return TaskView{}, err
	}
	taskID, err := parseID(id)
	if err != nil {
		return TaskView{}, err
	}
	if err := a.refetch(ctx, "reopen task", app.ListCompleted); err != nil {
		return TaskView{}, err
	}
	task, err := a.service.ReopenTask(ctx, taskID)
	if err != nil {
		return TaskView{}, mapAppError("reopen task", err)
	}
	return a.taskView(task), nil
}

// RecentActivity lists journaled mutations, newest first.
func (a *AppServiceAdapter) RecentActivity(ctx context.Context, limit int) ([]ActivityView, error) {
	if err := a.ready(); err != nil {
		return nil, err
	}
	if limit < 0 {
		return nil, fmt.Errorf("recent activity: limit must not be negative: %w", ErrInvalidRequest)
	}
	if limit == 0 {
		limit = DefaultActivityLimit
	}
	entries, err := a.service.RecentActivity(ctx, limit)
	if err != nil {
		return nil, mapAppError("recent activity", err)
	}
	out := make([]ActivityView, 0, len(entries))
	for _, entry := range entries {
		out = append(out, ActivityView{
			ID:     entry.ID,
			At:     entry.At.UTC(),
			Op:     entry.Op,
			Target: entry.Target,
			Error:  entry.Error,
		})
	}
	return out, nil
}

func (a *AppServiceAdapter) ready() error {
	if a == nil || a.service == nil {
		return fmt.Errorf("app service adapter is not configured: %w", ErrUnavailable)
	}
	return nil
}

// refetch resynchronizes one list. A fetch skipped for lack of a credential
// surfaces as ErrUnavailable instead of an empty list.
func (a *AppServiceAdapter) refetch(ctx context.Context, operation string, list app.List) error {
	if err := a.service.Refetch(ctx, list); err != nil {
		return mapAppError(operation, err)
	}
	var state query.State
	switch list {
	case app.ListCompleted:
		state = a.service.Completed().State
	default:
		state = a.service.Tasks().State
	}
	if state == query.Idle {
		return mapAppError(operation, api.ErrAuthenticationRequired)
	}
	return nil
}

func (a *AppServiceAdapter) taskViews(tasks []domain.Task) []TaskView {
	out := make([]TaskView, 0, len(tasks))
	for _, task := range tasks {
		out = append(out, a.taskView(task))
	}
	return out
}

func (a *AppServiceAdapter) taskView(task domain.Task) TaskView {
	now := a.now()
	return TaskView{
		ID:               string(task.ID),
		Title:            task.Title,
		Description:      task.Description,
		Type:             string(task.Type),
		Status:           string(task.Status),
		Priority:         int(task.Priority),
		PriorityLabel:    domain.PriorityLabel(task.Priority),
		DueDate:          task.DueDate,
		Effort:           task.Effort,
		PercentCompleted: task.PercentCompleted,
		RemainingEffort:  domain.RemainingEffort(task),
		Urgency:          domain.Urgency(task, now),
		Overdue:          task.Overdue(now),
		CompletedAt:      task.CompletedAt,
	}
}

func parseID(raw string) (domain.ID, error) {
	id := strings.TrimSpace(raw)
	if id == "" {
		return "", fmt.Errorf("task id is required: %w", ErrInvalidRequest)
	}
	return domain.ID(id), nil
}

// mapAppError attaches one transport sentinel to an application error.
func mapAppError(operation string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, app.ErrTaskNotFound), api.StatusCode(err) == http.StatusNotFound:
		return fmt.Errorf("%s: %w", operation, errors.Join(ErrNotFound, err))
	case errors.Is(err, domain.ErrInvalidID),
		errors.Is(err, domain.ErrTitleRequired),
		errors.Is(err, domain.ErrInvalidPriority),
		errors.Is(err, domain.ErrInvalidStatus),
		errors.Is(err, domain.ErrInvalidEffort),
		errors.Is(err, domain.ErrInvalidDueDate),
		errors.Is(err, layout.ErrInvalidCanvas):
		return fmt.Errorf("%s: %w", operation, errors.Join(ErrInvalidRequest, err))
	case errors.Is(err, query.ErrSkipped), errors.Is(err, app.ErrNoLayoutEngine):
		return fmt.Errorf("%s: %w", operation, errors.Join(ErrUnavailable, err))
	case api.StatusCode(err) != 0,
		errors.Is(err, api.ErrInvalidResponse),
		errors.Is(err, api.ErrUserNotApproved),
		errors.Is(err, domain.ErrInvalidRecord):
		return fmt.Errorf("%s: %w", operation, errors.Join(ErrUpstream, err))
	default:
		return fmt.Errorf("%s: %w", operation, err)
	}
}
