package tui

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"testing"
	"time"

	tea "charm.land/bubbletea/v2"
	"github.com/hylla/taskdeck/internal/api"
	"github.com/hylla/taskdeck/internal/app"
	"github.com/hylla/taskdeck/internal/domain"
	"github.com/hylla/taskdeck/internal/layout"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// fakeBackend is an in-memory task backend.
type fakeBackend struct {
	tasks     []domain.Task
	completed []domain.Task
	users     []domain.User
	me        domain.User
	meErr     error
	listErr   error
	createErr error
	noAuth    bool

	created  []domain.TaskInput
	updates  map[domain.ID]domain.TaskInput
	deleted  []domain.ID
	approved []domain.ID
	nextID   int
}

func (f *fakeBackend) auth() error {
	if f.noAuth {
		return api.ErrAuthenticationRequired
	}
	return nil
}

func (f *fakeBackend) ListTasks(context.Context) ([]domain.Task, error) {
	if err := f.auth(); err != nil {
		return nil, err
	}
	if f.listErr != nil {
		return nil, f.listErr
	}
	return slices.Clone(f.tasks), nil
}

func (f *fakeBackend) ListCompletedTasks(context.Context) ([]domain.Task, error) {
	if err := f.auth(); err != nil {
		return nil, err
	}
	return slices.Clone(f.completed), nil
}

func (f *fakeBackend) ListUsers(context.Context) ([]domain.User, error) {
	if err := f.auth(); err != nil {
		return nil, err
	}
	return slices.Clone(f.users), nil
}

func (f *fakeBackend) GetMe(context.Context) (domain.User, error) {
	if err := f.auth(); err != nil {
		return domain.User{}, err
	}
	if f.meErr != nil {
		return domain.User{}, f.meErr
	}
	return f.me, nil
}

func (f *fakeBackend) CreateTask(_ context.Context, in domain.TaskInput) (domain.Task, error) {
	if f.createErr != nil {
		return domain.Task{}, f.createErr
	}
	f.nextID++
	f.created = append(f.created, in)
	task := domain.Task{
		ID:       domain.ID(fmt.Sprintf("new-%d", f.nextID)),
		Title:    in.Title,
		Type:     in.Type,
		Priority: in.Priority,
		Status:   in.Status,
		Effort:   in.Effort,
		DueDate:  in.DueDate,
	}
	f.tasks = append(f.tasks, task)
	return task, nil
}

func (f *fakeBackend) UpdateTask(_ context.Context, id domain.ID, in domain.TaskInput) (domain.Task, error) {
	if f.updates == nil {
		f.updates = map[domain.ID]domain.TaskInput{}
	}
	f.updates[id] = in
	if idx := slices.IndexFunc(f.completed, func(t domain.Task) bool { return t.ID == id }); idx >= 0 && in.Status == domain.StatusPending {
		task := f.completed[idx]
		task.Status, task.CompletedAt = domain.StatusPending, nil
		f.completed = slices.Delete(f.completed, idx, idx+1)
		f.tasks = append(f.tasks, task)
		return task, nil
	}
	for i := range f.tasks {
		if f.tasks[i].ID == id {
			f.tasks[i].Title = in.Title
			return f.tasks[i], nil
		}
	}
	return domain.Task{}, &api.StatusError{Message: "Task not found", StatusCode: 404}
}

func (f *fakeBackend) DeleteTask(_ context.Context, id domain.ID) error {
	f.deleted = append(f.deleted, id)
	f.tasks = slices.DeleteFunc(f.tasks, func(t domain.Task) bool { return t.ID == id })
	f.completed = slices.DeleteFunc(f.completed, func(t domain.Task) bool { return t.ID == id })
	return nil
}

func (f *fakeBackend) CompleteTask(_ context.Context, id domain.ID) error {
	idx := slices.IndexFunc(f.tasks, func(t domain.Task) bool { return t.ID == id })
	if idx < 0 {
		return &api.StatusError{Message: "Task not found", StatusCode: 404}
	}
	task := f.tasks[idx]
	done := fixedNow
	task.Status, task.CompletedAt = domain.StatusCompleted, &done
	f.tasks = slices.Delete(f.tasks, idx, idx+1)
	f.completed = append([]domain.Task{task}, f.completed...)
	return nil
}

func (f *fakeBackend) ApproveUser(_ context.Context, id domain.ID) error {
	f.approved = append(f.approved, id)
	for i := range f.users {
		if f.users[i].ID == id {
			f.users[i].Approved = true
		}
	}
	return nil
}

func (f *fakeBackend) GetEntity(context.Context) (string, error) {
	return "entity", nil
}

// memJournal keeps activity in memory, newest first.
type memJournal struct {
	entries []domain.Activity
}

func (j *memJournal) RecordActivity(_ context.Context, entry domain.Activity) error {
	j.entries = append([]domain.Activity{entry}, j.entries...)
	return nil
}

func (j *memJournal) ListActivity(_ context.Context, limit int) ([]domain.Activity, error) {
	if limit > 0 && limit < len(j.entries) {
		return slices.Clone(j.entries[:limit]), nil
	}
	return slices.Clone(j.entries), nil
}

func newBackend() *fakeBackend {
	due := fixedNow.Add(-24 * time.Hour)
	return &fakeBackend{
		me: domain.User{ID: "u1", Email: "ada@example.com", Name: "Ada", Approved: true},
		tasks: []domain.Task{
			{ID: "1", Title: "Write report", Description: "Reproduce the crash first", Type: domain.TypeTask, Priority: 2, Status: domain.StatusPending, Effort: 3},
			{ID: "2", Title: "Fix login bug", Type: domain.TypeBug, Priority: 4, Status: domain.StatusPending, Effort: 1, DueDate: &due},
		},
		completed: []domain.Task{
			{ID: "9", Title: "Ship release", Type: domain.TypeTask, Priority: 3, Status: domain.StatusCompleted, Effort: 2, CompletedAt: &due},
		},
	}
}

func newTestModel(t *testing.T, backend *fakeBackend, opts ...Option) (Model, *memJournal) {
	t.Helper()
	journal := &memJournal{}
	engine := layout.NewEngine(layout.DefaultOptions(), layout.WithClock(func() time.Time { return fixedNow }))
	ids := 0
	svc := app.NewService(backend, func() string {
		ids++
		return fmt.Sprintf("act-%d", ids)
	}, func() time.Time { return fixedNow }, app.ServiceConfig{Journal: journal, Engine: engine})
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	return loadReadyModel(t, NewModel(svc, opts...)), journal
}

// TestModelLoadsAndRendersTasks verifies the initial load and list view.
func TestModelLoadsAndRendersTasks(t *testing.T) {
	m, _ := newTestModel(t, newBackend())
	if !m.ready {
		t.Fatal("expected ready model after load")
	}
	out := m.render()
	for _, want := range []string{"Tasks (2)", "Completed (1)", "Write report", "Fix login bug", "OVERDUE 2026-02-28"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in view\n%s", want, out)
		}
	}
	if strings.Contains(out, "Admin") {
		t.Fatalf("admin tab must be hidden for non-admins\n%s", out)
	}
}

// TestAdminTabVisibleForAdmins verifies tab cycling reaches the admin list.
func TestAdminTabVisibleForAdmins(t *testing.T) {
	backend := newBackend()
	backend.me.IsAdmin = true
	backend.users = []domain.User{
		{ID: "u1", Email: "ada@example.com", Name: "Ada", IsAdmin: true, Approved: true},
		{ID: "u2", Email: "bob@example.com", Name: "Bob"},
	}
	m, _ := newTestModel(t, backend)
	if got := m.visibleTabs(); len(got) != 3 || got[2] != tabAdmin {
		t.Fatalf("visible tabs = %#v", got)
	}
	m = applyMsg(t, m, tea.KeyPressMsg{Code: tea.KeyTab})
	m = applyMsg(t, m, tea.KeyPressMsg{Code: tea.KeyTab})
	if m.tab != tabAdmin {
		t.Fatalf("tab = %v, want admin", m.tab)
	}
	if out := m.render(); !strings.Contains(out, "pending approval") || !strings.Contains(out, "bob@example.com") {
		t.Fatalf("expected user list\n%s", out)
	}

	m = applyMsg(t, m, keyRune('j'))
	m = applyMsg(t, m, keyRune('a'))
	if len(backend.approved) != 1 || backend.approved[0] != "u2" {
		t.Fatalf("approved = %#v", backend.approved)
	}
	if !m.snaps.users.Data[1].Approved {
		t.Fatal("expected users refetched after approval")
	}

	m = applyMsg(t, m, tea.KeyPressMsg{Code: tea.KeyTab})
	if m.tab != tabTasks {
		t.Fatalf("tab = %v, want wrap to tasks", m.tab)
	}
}

// TestApprovalPendingScreen verifies unapproved users are gated.
func TestApprovalPendingScreen(t *testing.T) {
	t.Run("me rejected", func(t *testing.T) {
		backend := newBackend()
		backend.meErr = fmt.Errorf("%w: status 403", api.ErrUserNotApproved)
		m, _ := newTestModel(t, backend)
		if m.gate() != gateApproval {
			t.Fatalf("gate = %v, want approval", m.gate())
		}
		if out := m.render(); !strings.Contains(out, "pending approval") {
			t.Fatalf("expected approval screen\n%s", out)
		}
	})

	t.Run("me rejected blocks actions", func(t *testing.T) {
		backend := newBackend()
		backend.meErr = fmt.Errorf("%w: status 401", api.ErrUserNotApproved)
		m, _ := newTestModel(t, backend)
		m = applyMsg(t, m, keyRune('n'))
		if m.modal != modalNone {
			t.Fatal("gated screen must ignore task actions")
		}
	})

	t.Run("me ok without approved flag", func(t *testing.T) {
		backend := newBackend()
		backend.me.Approved = false
		m, _ := newTestModel(t, backend)
		if m.gate() != gateNone {
			t.Fatalf("gate = %v, want none for a 2xx /me", m.gate())
		}
		if out := m.render(); strings.Contains(out, "pending approval") || !strings.Contains(out, "Write report") {
			t.Fatalf("expected task list\n%s", out)
		}
	})
}

// TestSignInScreenWithoutToken verifies skipped queries show the sign-in hint.
func TestSignInScreenWithoutToken(t *testing.T) {
	backend := newBackend()
	backend.noAuth = true
	m, _ := newTestModel(t, backend)
	if m.gate() != gateSignIn {
		t.Fatalf("gate = %v, want sign-in", m.gate())
	}
	if out := m.render(); !strings.Contains(out, "Sign in required") {
		t.Fatalf("expected sign-in screen\n%s", out)
	}
	if m.status == "some lists failed to load" {
		t.Fatal("skipped queries must not report failures")
	}
}

// TestInlineErrorPanel verifies a failed list renders an error panel.
func TestInlineErrorPanel(t *testing.T) {
	backend := newBackend()
	backend.listErr = &api.StatusError{Message: "Failed to fetch tasks", StatusCode: 500}
	m, _ := newTestModel(t, backend)
	out := m.render()
	if !strings.Contains(out, "Could not load tasks") || !strings.Contains(out, "500") {
		t.Fatalf("expected inline error panel\n%s", out)
	}
	if m.listTop() <= bodyTop {
		t.Fatalf("listTop = %d, want below the panel", m.listTop())
	}

	backend.listErr = nil
	m = applyMsg(t, m, keyRune('r'))
	if out := m.render(); strings.Contains(out, "Could not load tasks") {
		t.Fatalf("expected panel cleared after refetch\n%s", out)
	}
}

// TestCompleteRefetchesLists verifies completion goes through refetch.
func TestCompleteRefetchesLists(t *testing.T) {
	backend := newBackend()
	m, journal := newTestModel(t, backend)
	m = applyMsg(t, m, keyRune('c'))
	if len(m.snaps.tasks.Data) != 1 || m.snaps.tasks.Data[0].ID != "2" {
		t.Fatalf("tasks after complete = %#v", m.snaps.tasks.Data)
	}
	if len(m.snaps.completed.Data) != 2 || m.snaps.completed.Data[0].ID != "1" {
		t.Fatalf("completed after complete = %#v", m.snaps.completed.Data)
	}
	if m.busy || m.refreshing {
		t.Fatalf("busy=%v refreshing=%v after refetch", m.busy, m.refreshing)
	}
	if len(journal.entries) != 1 || journal.entries[0].Op != string(app.OpComplete) {
		t.Fatalf("journal = %#v", journal.entries)
	}
}

// TestCreateFormRequiresTitle verifies validation keeps the form open.
func TestCreateFormRequiresTitle(t *testing.T) {
	backend := newBackend()
	m, _ := newTestModel(t, backend)
	m = sendKeys(t, m, keyRune('n'))
	if m.modal != modalCreate || len(m.formInputs) != fieldCount {
		t.Fatalf("modal = %v inputs = %d", m.modal, len(m.formInputs))
	}
	m = applyMsg(t, m, tea.KeyPressMsg{Code: tea.KeyEnter})
	if m.modal != modalCreate || m.modalErr != "Title is required" {
		t.Fatalf("modal = %v err = %q", m.modal, m.modalErr)
	}
	if len(backend.created) != 0 {
		t.Fatal("invalid form must not reach the backend")
	}
}

// TestCreateFormSubmits verifies defaults and the refetch after create.
func TestCreateFormSubmits(t *testing.T) {
	backend := newBackend()
	m, _ := newTestModel(t, backend)
	m = sendKeys(t, m, keyRune('n'))
	m = typeText(t, m, "Plan sprint")
	for range fieldDue {
		m = sendKeys(t, m, tea.KeyPressMsg{Code: tea.KeyTab})
	}
	if m.formFocus != fieldDue {
		t.Fatalf("focus = %d, want due field", m.formFocus)
	}
	m = typeText(t, m, "2026-03-05")
	m = applyMsg(t, m, tea.KeyPressMsg{Code: tea.KeyEnter})

	if m.modal != modalNone || m.target != nil {
		t.Fatalf("modal = %v target = %#v after create", m.modal, m.target)
	}
	if len(backend.created) != 1 {
		t.Fatalf("created = %#v", backend.created)
	}
	in := backend.created[0]
	if in.Title != "Plan sprint" || in.Priority != domain.PriorityMedium || in.Effort != 1 || in.Type != domain.TypeTask {
		t.Fatalf("unexpected payload %#v", in)
	}
	if in.DueDate == nil || !in.DueDate.Equal(time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("due = %v", in.DueDate)
	}
	if len(m.snaps.tasks.Data) != 3 {
		t.Fatalf("tasks after refetch = %d, want 3", len(m.snaps.tasks.Data))
	}
}

// TestMutationFailureKeepsModalOpen verifies errors render inline.
func TestMutationFailureKeepsModalOpen(t *testing.T) {
	backend := newBackend()
	backend.createErr = &api.StatusError{Message: "Failed to create task", StatusCode: 500}
	m, _ := newTestModel(t, backend)
	m = sendKeys(t, m, keyRune('n'), keyRune('x'))
	m = applyMsg(t, m, tea.KeyPressMsg{Code: tea.KeyEnter})
	if m.modal != modalCreate {
		t.Fatalf("modal = %v, want create still open", m.modal)
	}
	if !strings.Contains(m.modalErr, "Failed to create task") {
		t.Fatalf("modalErr = %q", m.modalErr)
	}
	if m.busy {
		t.Fatal("busy must clear after failure")
	}
	if got := m.formInputs[fieldTitle].Value(); got != "x" {
		t.Fatalf("form value lost: %q", got)
	}
}

// TestEditAndDeleteRequireTarget verifies actions on an empty list are no-ops.
func TestEditAndDeleteRequireTarget(t *testing.T) {
	backend := newBackend()
	backend.tasks = nil
	m, _ := newTestModel(t, backend)
	for _, r := range []rune{'e', 'd', 'i', 'c'} {
		m = applyMsg(t, m, keyRune(r))
		if m.modal != modalNone || m.target != nil || m.busy {
			t.Fatalf("key %q opened modal %v", r, m.modal)
		}
	}
}

// TestEditFormUpdatesTask verifies edit starts from the target task.
func TestEditFormUpdatesTask(t *testing.T) {
	backend := newBackend()
	m, _ := newTestModel(t, backend)
	m = sendKeys(t, m, keyRune('e'))
	if m.modal != modalEdit || m.target == nil || m.target.ID != "1" {
		t.Fatalf("modal = %v target = %#v", m.modal, m.target)
	}
	if got := m.formInputs[fieldEffort].Value(); got != "3" {
		t.Fatalf("effort prefill = %q", got)
	}
	m = typeText(t, m, "!")
	m = applyMsg(t, m, tea.KeyPressMsg{Code: tea.KeyEnter})
	in, ok := backend.updates["1"]
	if !ok || in.Title != "Write report!" || in.Effort != 3 {
		t.Fatalf("updates = %#v", backend.updates)
	}
	if m.modal != modalNone || m.target != nil {
		t.Fatal("edit modal must close after success")
	}
}

// TestDeleteConfirmation verifies cancel clears the target and confirm deletes.
func TestDeleteConfirmation(t *testing.T) {
	backend := newBackend()
	m, _ := newTestModel(t, backend)
	m = applyMsg(t, m, keyRune('d'))
	if m.modal != modalConfirmDelete || m.target == nil || m.target.ID != "1" {
		t.Fatalf("modal = %v target = %#v", m.modal, m.target)
	}
	m = applyMsg(t, m, tea.KeyPressMsg{Code: tea.KeyEscape})
	if m.modal != modalNone || m.target != nil {
		t.Fatal("cancel must clear target")
	}
	if len(backend.deleted) != 0 {
		t.Fatal("cancel must not delete")
	}

	m = applyMsg(t, m, keyRune('d'))
	m = applyMsg(t, m, keyRune('y'))
	if len(backend.deleted) != 1 || backend.deleted[0] != "1" {
		t.Fatalf("deleted = %#v", backend.deleted)
	}
	if len(m.snaps.tasks.Data) != 1 {
		t.Fatalf("tasks after delete = %#v", m.snaps.tasks.Data)
	}
}

// TestDeleteWithoutConfirmation verifies the confirm option.
func TestDeleteWithoutConfirmation(t *testing.T) {
	backend := newBackend()
	m, _ := newTestModel(t, backend, WithConfirmDelete(false))
	m = applyMsg(t, m, keyRune('j'))
	m = applyMsg(t, m, keyRune('d'))
	if len(backend.deleted) != 1 || backend.deleted[0] != "2" {
		t.Fatalf("deleted = %#v", backend.deleted)
	}
	if m.modal != modalNone || m.target != nil {
		t.Fatal("direct delete must leave no target")
	}
}

// TestDetailModalActions verifies detail rendering and completion from it.
func TestDetailModalActions(t *testing.T) {
	backend := newBackend()
	m, _ := newTestModel(t, backend)
	m = applyMsg(t, m, tea.KeyPressMsg{Code: tea.KeyEnter})
	if m.modal != modalDetail || m.target == nil || m.target.ID != "1" {
		t.Fatalf("modal = %v target = %#v", m.modal, m.target)
	}
	detail := m.renderDetail()
	for _, want := range []string{"Write report", "Medium", "remaining: 3.00", "Reproduce", "c complete"} {
		if !strings.Contains(detail, want) {
			t.Fatalf("expected %q in detail\n%s", want, detail)
		}
	}
	m = applyMsg(t, m, keyRune('c'))
	if m.modal != modalNone || m.target != nil {
		t.Fatal("detail must close after completion")
	}
	if len(m.snaps.completed.Data) != 2 {
		t.Fatalf("completed = %#v", m.snaps.completed.Data)
	}
}

// TestReopenFromCompletedTab verifies reopen sends a pending payload.
func TestReopenFromCompletedTab(t *testing.T) {
	backend := newBackend()
	m, _ := newTestModel(t, backend)
	m = applyMsg(t, m, tea.KeyPressMsg{Code: tea.KeyTab})
	if m.tab != tabCompleted {
		t.Fatalf("tab = %v", m.tab)
	}
	m = applyMsg(t, m, keyRune('c'))
	if m.busy {
		t.Fatal("complete must not apply to completed tasks")
	}
	m = applyMsg(t, m, keyRune('o'))
	in, ok := backend.updates["9"]
	if !ok || in.Status != domain.StatusPending || in.CompletedAt != nil {
		t.Fatalf("reopen payload = %#v", backend.updates)
	}
	if len(m.snaps.completed.Data) != 0 || len(m.snaps.tasks.Data) != 3 {
		t.Fatalf("lists after reopen: open=%d completed=%d", len(m.snaps.tasks.Data), len(m.snaps.completed.Data))
	}
}

// TestActivityModal verifies journal entries load into the modal.
func TestActivityModal(t *testing.T) {
	backend := newBackend()
	m, _ := newTestModel(t, backend)
	m = applyMsg(t, m, keyRune('c'))
	m = applyMsg(t, m, keyRune('g'))
	if m.modal != modalActivity {
		t.Fatalf("modal = %v", m.modal)
	}
	if len(m.activity) != 1 || m.activity[0].Target != "1" {
		t.Fatalf("activity = %#v", m.activity)
	}
	if out := m.renderActivity(); !strings.Contains(out, string(app.OpComplete)) {
		t.Fatalf("expected op in activity\n%s", out)
	}
	m = applyMsg(t, m, tea.KeyPressMsg{Code: tea.KeyEscape})
	if m.modal != modalNone {
		t.Fatal("esc must close activity")
	}
}

// TestYankCopiesTitle verifies the clipboard writer receives the title.
func TestYankCopiesTitle(t *testing.T) {
	var copied string
	m, _ := newTestModel(t, newBackend(), WithClipboard(func(s string) error {
		copied = s
		return nil
	}))
	m = applyMsg(t, m, keyRune('y'))
	if copied != "Write report" {
		t.Fatalf("copied = %q", copied)
	}
	if !strings.Contains(m.status, "copied") {
		t.Fatalf("status = %q", m.status)
	}
}

// TestHelpOverlayToggle verifies help opens and closes.
func TestHelpOverlayToggle(t *testing.T) {
	m, _ := newTestModel(t, newBackend())
	m = applyMsg(t, m, keyRune('?'))
	if !m.help.ShowAll {
		t.Fatal("expected help open")
	}
	m = applyMsg(t, m, keyRune('n'))
	if m.modal != modalNone {
		t.Fatal("help must swallow keys")
	}
	m = applyMsg(t, m, tea.KeyPressMsg{Code: tea.KeyEscape})
	if m.help.ShowAll {
		t.Fatal("expected help closed")
	}
}

// TestMouseClickSelectsListRow verifies row hit testing.
func TestMouseClickSelectsListRow(t *testing.T) {
	m, _ := newTestModel(t, newBackend())
	m = applyMsg(t, m, tea.MouseClickMsg{X: 4, Y: bodyTop + 1, Button: tea.MouseLeft})
	if m.cursor[tabTasks] != 1 {
		t.Fatalf("cursor = %d, want 1", m.cursor[tabTasks])
	}
	m = applyMsg(t, m, tea.MouseClickMsg{X: 4, Y: bodyTop + 9, Button: tea.MouseLeft})
	if m.cursor[tabTasks] != 1 {
		t.Fatalf("click below the list moved cursor to %d", m.cursor[tabTasks])
	}
}

// TestViewEnablesMouse verifies the view flags.
func TestViewEnablesMouse(t *testing.T) {
	m := NewModel(app.NewService(newBackend(), nil, nil, app.ServiceConfig{}))
	v := m.View()
	if v.MouseMode != tea.MouseModeCellMotion || !v.AltScreen {
		t.Fatal("expected alt screen with mouse enabled")
	}
	if m.render() != "loading..." {
		t.Fatalf("render before load = %q", m.render())
	}
}

// TestQuitKey verifies q quits outside modals.
func TestQuitKey(t *testing.T) {
	m, _ := newTestModel(t, newBackend())
	_, cmd := m.Update(keyRune('q'))
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatal("expected tea.QuitMsg")
	}
}

func loadReadyModel(t *testing.T, m Model) Model {
	t.Helper()
	return applyMsg(t, applyCmd(t, m, m.Init()), tea.WindowSizeMsg{Width: 120, Height: 40})
}

func applyMsg(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	updated, cmd := m.Update(msg)
	out, ok := updated.(Model)
	if !ok {
		t.Fatalf("expected Model, got %T", updated)
	}
	return applyCmd(t, out, cmd)
}

func applyCmd(t *testing.T, m Model, cmd tea.Cmd) Model {
	t.Helper()
	out := m
	currentCmd := cmd
	for i := 0; i < 6 && currentCmd != nil; i++ {
		msg := currentCmd()
		updated, nextCmd := out.Update(msg)
		casted, ok := updated.(Model)
		if !ok {
			t.Fatalf("expected Model, got %T", updated)
		}
		out = casted
		currentCmd = nextCmd
	}
	return out
}

// sendKeys applies key presses without running the cursor blink commands
// they return.
func sendKeys(t *testing.T, m Model, keys ...tea.KeyPressMsg) Model {
	t.Helper()
	for _, k := range keys {
		updated, _ := m.Update(k)
		out, ok := updated.(Model)
		if !ok {
			t.Fatalf("expected Model, got %T", updated)
		}
		m = out
	}
	return m
}

func typeText(t *testing.T, m Model, text string) Model {
	t.Helper()
	for _, r := range text {
		m = sendKeys(t, m, keyRune(r))
	}
	return m
}

func keyRune(r rune) tea.KeyPressMsg {
	return tea.KeyPressMsg{Code: r, Text: string(r)}
}
