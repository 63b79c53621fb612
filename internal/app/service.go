package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hylla/taskdeck/internal/api"
	"github.com/hylla/taskdeck/internal/domain"
	"github.com/hylla/taskdeck/internal/layout"
	"github.com/hylla/taskdeck/internal/query"
)

// List names one independently fetched collection.
type List string

const (
	ListTasks     List = "tasks"
	ListCompleted List = "completed"
	ListUsers     List = "users"
	ListMe        List = "me"
)

// Op names a mutation.
type Op string

const (
	OpCreate   Op = "create task"
	OpUpdate   Op = "update task"
	OpDelete   Op = "delete task"
	OpComplete Op = "complete task"
	OpReopen   Op = "reopen task"
	OpApprove  Op = "approve user"
)

// Affects returns the lists that must be refetched after op succeeds.
func (op Op) Affects() []List {
	switch op {
	case OpCreate:
		return []List{ListTasks}
	case OpUpdate, OpDelete, OpComplete, OpReopen:
		return []List{ListTasks, ListCompleted}
	case OpApprove:
		return []List{ListUsers}
	default:
		return nil
	}
}

// IDGenerator returns unique identifiers for journal entries.
type IDGenerator func() string

// Clock returns the current time.
type Clock func() time.Time

// ServiceConfig holds optional collaborators.
type ServiceConfig struct {
	Journal ActivityJournal
	Engine  *layout.Engine
	Logger  Logger
}

// Service owns one query per list and one mutation per operation. List
// data is only ever replaced by a refetch.
type Service struct {
	backend Backend
	idGen   IDGenerator
	clock   Clock
	journal ActivityJournal
	engine  *layout.Engine
	log     Logger

	tasks     *query.Query[[]domain.Task]
	completed *query.Query[[]domain.Task]
	users     *query.Query[[]domain.User]
	me        *query.Query[domain.User]

	create   *query.Mutation[domain.TaskInput, domain.Task]
	update   *query.Mutation[domain.TaskInput, domain.Task]
	remove   *query.Mutation[domain.ID, struct{}]
	complete *query.Mutation[domain.ID, struct{}]
	approve  *query.Mutation[domain.ID, struct{}]
}

// NewService constructs a service over backend.
func NewService(backend Backend, idGen IDGenerator, clock Clock, cfg ServiceConfig) *Service {
	if idGen == nil {
		idGen = func() string { return "" }
	}
	if clock == nil {
		clock = time.Now
	}
	return &Service{
		backend:   backend,
		idGen:     idGen,
		clock:     clock,
		journal:   cfg.Journal,
		engine:    cfg.Engine,
		log:       cfg.Logger,
		tasks:     query.New[[]domain.Task](),
		completed: query.New[[]domain.Task](),
		users:     query.New[[]domain.User](),
		me:        query.New[domain.User](),
		create:    query.NewMutation[domain.TaskInput, domain.Task](),
		update:    query.NewMutation[domain.TaskInput, domain.Task](),
		remove:    query.NewMutation[domain.ID, struct{}](),
		complete:  query.NewMutation[domain.ID, struct{}](),
		approve:   query.NewMutation[domain.ID, struct{}](),
	}
}

// Tasks returns the open-task query state.
func (s *Service) Tasks() query.Snapshot[[]domain.Task] { return s.tasks.Snapshot() }

// Completed returns the completed-task query state.
func (s *Service) Completed() query.Snapshot[[]domain.Task] { return s.completed.Snapshot() }

// Users returns the user query state.
func (s *Service) Users() query.Snapshot[[]domain.User] { return s.users.Snapshot() }

// Me returns the current-user query state.
func (s *Service) Me() query.Snapshot[domain.User] { return s.me.Snapshot() }

// Refetch resynchronizes the named lists with the backend. Every list is
// attempted; failures are joined.
func (s *Service) Refetch(ctx context.Context, lists ...List) error {
	var errs []error
	for _, list := range lists {
		var err error
		switch list {
		case ListTasks:
			_, err = s.tasks.Refetch(ctx, s.backend.ListTasks)
		case ListCompleted:
			_, err = s.completed.Refetch(ctx, s.backend.ListCompletedTasks)
		case ListUsers:
			_, err = s.users.Refetch(ctx, s.backend.ListUsers)
		case ListMe:
			_, err = s.me.Refetch(ctx, s.backend.GetMe)
		default:
			err = fmt.Errorf("unknown list %q", list)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", list, err))
		}
	}
	return errors.Join(errs...)
}

// Load fetches the current user and both task lists. Users are fetched
// too when the current user is an admin.
func (s *Service) Load(ctx context.Context) error {
	meErr := s.Refetch(ctx, ListMe)
	listErr := s.Refetch(ctx, ListTasks, ListCompleted)
	var usersErr error
	if me := s.me.Snapshot(); me.HasData && me.Data.IsAdmin {
		usersErr = s.Refetch(ctx, ListUsers)
	}
	return errors.Join(meErr, listErr, usersErr)
}

// CreateTask creates a task. Callers refetch OpCreate.Affects() on success.
func (s *Service) CreateTask(ctx context.Context, in domain.TaskInput) (domain.Task, error) {
	task, err := s.create.Do(ctx, in, s.backend.CreateTask)
	s.record(ctx, OpCreate, in.Title, err)
	return task, err
}

// UpdateTask replaces the writable fields of a task.
func (s *Service) UpdateTask(ctx context.Context, id domain.ID, in domain.TaskInput) (domain.Task, error) {
	task, err := s.update.Do(ctx, in, func(ctx context.Context, in domain.TaskInput) (domain.Task, error) {
		return s.backend.UpdateTask(ctx, id, in)
	})
	s.record(ctx, OpUpdate, string(id), err)
	return task, err
}

// DeleteTask removes a task.
func (s *Service) DeleteTask(ctx context.Context, id domain.ID) error {
	_, err := s.remove.Do(ctx, id, discard(s.backend.DeleteTask))
	s.record(ctx, OpDelete, string(id), err)
	return err
}

// CompleteTask marks a task completed.
func (s *Service) CompleteTask(ctx context.Context, id domain.ID) error {
	_, err := s.complete.Do(ctx, id, discard(s.backend.CompleteTask))
	s.record(ctx, OpComplete, string(id), err)
	return err
}

// ReopenTask rebuilds a completed task as pending from the local
// completed-task snapshot and updates it. A task missing from that snapshot
// fails with ErrTaskNotFound without any request.
func (s *Service) ReopenTask(ctx context.Context, id domain.ID) (domain.Task, error) {
	target, ok := findTask(s.completed.Snapshot().Data, id)
	if !ok {
		s.record(ctx, OpReopen, string(id), ErrTaskNotFound)
		return domain.Task{}, ErrTaskNotFound
	}
	task, err := s.update.Do(ctx, domain.ReopenInput(target), func(ctx context.Context, in domain.TaskInput) (domain.Task, error) {
		return s.backend.UpdateTask(ctx, id, in)
	})
	s.record(ctx, OpReopen, string(id), err)
	return task, err
}

// ApproveUser approves a pending account.
func (s *Service) ApproveUser(ctx context.Context, id domain.ID) error {
	_, err := s.approve.Do(ctx, id, discard(s.backend.ApproveUser))
	s.record(ctx, OpApprove, string(id), err)
	return err
}

// Entity calls the backend entity probe.
func (s *Service) Entity(ctx context.Context) (string, error) {
	return s.backend.GetEntity(ctx)
}

// Session describes the bearer token when the backend supports it.
func (s *Service) Session(ctx context.Context) (api.Session, error) {
	sb, ok := s.backend.(SessionBackend)
	if !ok {
		return api.Session{}, ErrSessionUnsupported
	}
	return sb.Session(ctx)
}

// MutationError returns the last error of op, if any.
func (s *Service) MutationError(op Op) error {
	var err error
	switch op {
	case OpCreate:
		_, _, err = s.create.State()
	case OpUpdate, OpReopen:
		_, _, err = s.update.State()
	case OpDelete:
		_, _, err = s.remove.State()
	case OpComplete:
		_, _, err = s.complete.State()
	case OpApprove:
		_, _, err = s.approve.State()
	}
	return err
}

// TaskLayout lays out the open tasks from the current snapshot.
func (s *Service) TaskLayout(ctx context.Context, width, height float64) ([]layout.Node, error) {
	if s.engine == nil {
		return nil, ErrNoLayoutEngine
	}
	return s.engine.Layout(ctx, s.tasks.Snapshot().Data, width, height)
}

// Engine returns the configured layout engine, or nil.
func (s *Service) Engine() *layout.Engine {
	return s.engine
}

// RecentActivity returns journaled mutations, newest first.
func (s *Service) RecentActivity(ctx context.Context, limit int) ([]domain.Activity, error) {
	if s.journal == nil {
		return []domain.Activity{}, nil
	}
	return s.journal.ListActivity(ctx, limit)
}

func (s *Service) record(ctx context.Context, op Op, target string, err error) {
	if s.journal == nil {
		return
	}
	entry := domain.Activity{
		ID:     s.idGen(),
		At:     s.clock().UTC(),
		Op:     string(op),
		Target: target,
	}
	if err != nil {
		entry.Error = err.Error()
	}
	if recordErr := s.journal.RecordActivity(ctx, entry); recordErr != nil && s.log != nil {
		s.log.Warn("record activity failed", "op", op, "target", target, "err", recordErr)
	}
}

func findTask(tasks []domain.Task, id domain.ID) (domain.Task, bool) {
	for _, task := range tasks {
		if task.ID == id {
			return task, true
		}
	}
	return domain.Task{}, false
}

func discard(fn func(context.Context, domain.ID) error) func(context.Context, domain.ID) (struct{}, error) {
	return func(ctx context.Context, id domain.ID) (struct{}, error) {
		return struct{}{}, fn(ctx, id)
	}
}
