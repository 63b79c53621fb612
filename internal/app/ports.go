package app

import (
	"context"

	"github.com/hylla/taskdeck/internal/api"
	"github.com/hylla/taskdeck/internal/domain"
)

// Backend is the task API consumed by the service.
type Backend interface {
	ListTasks(context.Context) ([]domain.Task, error)
	ListCompletedTasks(context.Context) ([]domain.Task, error)
	ListUsers(context.Context) ([]domain.User, error)
	GetMe(context.Context) (domain.User, error)
	CreateTask(context.Context, domain.TaskInput) (domain.Task, error)
	UpdateTask(context.Context, domain.ID, domain.TaskInput) (domain.Task, error)
	DeleteTask(context.Context, domain.ID) error
	CompleteTask(context.Context, domain.ID) error
	ApproveUser(context.Context, domain.ID) error
	GetEntity(context.Context) (string, error)
}

// SessionBackend is implemented by backends that can describe the bearer
// token in use.
type SessionBackend interface {
	Session(context.Context) (api.Session, error)
}

// ActivityJournal stores mutation history.
type ActivityJournal interface {
	RecordActivity(context.Context, domain.Activity) error
	ListActivity(context.Context, int) ([]domain.Activity, error)
}

// Logger receives non-fatal service warnings.
type Logger interface {
	Warn(msg any, keyvals ...any)
}
