// Package tui provides the terminal client for the task backend.
package tui

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"charm.land/bubbles/v2/help"
	"charm.land/bubbles/v2/key"
	"charm.land/bubbles/v2/textinput"
	tea "charm.land/bubbletea/v2"
	"github.com/atotto/clipboard"
	"github.com/hylla/taskdeck/internal/api"
	"github.com/hylla/taskdeck/internal/app"
	"github.com/hylla/taskdeck/internal/domain"
	"github.com/hylla/taskdeck/internal/layout"
	"github.com/hylla/taskdeck/internal/query"
)

// Service is the application surface the model drives.
type Service interface {
	Load(context.Context) error
	Refetch(context.Context, ...app.List) error
	Tasks() query.Snapshot[[]domain.Task]
	Completed() query.Snapshot[[]domain.Task]
	Users() query.Snapshot[[]domain.User]
	Me() query.Snapshot[domain.User]
	CreateTask(context.Context, domain.TaskInput) (domain.Task, error)
	UpdateTask(context.Context, domain.ID, domain.TaskInput) (domain.Task, error)
	DeleteTask(context.Context, domain.ID) error
	CompleteTask(context.Context, domain.ID) error
	ReopenTask(context.Context, domain.ID) (domain.Task, error)
	ApproveUser(context.Context, domain.ID) error
	RecentActivity(context.Context, int) ([]domain.Activity, error)
	Engine() *layout.Engine
}

// tab identifies one top-level list.
type tab int

const (
	tabTasks tab = iota
	tabCompleted
	tabAdmin
	tabCount
)

// title returns the tab caption.
func (t tab) title() string {
	switch t {
	case tabCompleted:
		return "Completed"
	case tabAdmin:
		return "Admin"
	default:
		return "Tasks"
	}
}

// viewMode selects how open tasks are drawn.
type viewMode int

const (
	viewList viewMode = iota
	viewBubbles
)

// modalKind identifies the open modal, if any.
type modalKind int

const (
	modalNone modalKind = iota
	modalDetail
	modalCreate
	modalEdit
	modalConfirmDelete
	modalActivity
)

// gate is a full-screen state that replaces the tabs.
type gate int

const (
	gateNone gate = iota
	gateSignIn
	gateApproval
	gateFailed
)

const defaultActivityLimit = 20

// snapshots is one consistent read of every query.
type snapshots struct {
	tasks     query.Snapshot[[]domain.Task]
	completed query.Snapshot[[]domain.Task]
	users     query.Snapshot[[]domain.User]
	me        query.Snapshot[domain.User]
}

// captureSnapshots reads every query from svc.
func captureSnapshots(svc Service) snapshots {
	return snapshots{
		tasks:     svc.Tasks(),
		completed: svc.Completed(),
		users:     svc.Users(),
		me:        svc.Me(),
	}
}

// loadedMsg carries query state after a load or refetch.
type loadedMsg struct {
	snaps snapshots
	err   error
}

// mutationMsg reports one finished mutation.
type mutationMsg struct {
	op  app.Op
	err error
}

// activityMsg carries journal entries for the activity modal.
type activityMsg struct {
	entries []domain.Activity
	err     error
}

// clipboardMsg reports one yank.
type clipboardMsg struct {
	text string
	err  error
}

// Model is the bubbletea model for the task client.
type Model struct {
	svc           Service
	keys          keyMap
	help          help.Model
	now           func() time.Time
	copyText      func(string) error
	confirmDelete bool
	activityLimit int

	ready      bool
	width      int
	height     int
	status     string
	refreshing bool
	busy       bool

	snaps snapshots

	tab      tab
	viewMode viewMode
	cursor   [tabCount]int

	modal      modalKind
	target     *domain.Task
	modalErr   string
	formInputs []textinput.Model
	formFocus  int
	activity   []domain.Activity
	md         *markdownRenderer

	layoutGen   int
	runner      *layout.Runner
	layoutTasks []domain.Task
	nodes       []layout.Node
	layoutErr   string
	canvasW     float64
	canvasH     float64
}

// NewModel constructs the model over svc.
func NewModel(svc Service, opts ...Option) Model {
	m := Model{
		svc:           svc,
		keys:          newKeyMap(),
		help:          help.New(),
		now:           time.Now,
		copyText:      clipboard.WriteAll,
		confirmDelete: true,
		activityLimit: defaultActivityLimit,
		status:        "loading",
		md:            &markdownRenderer{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&m)
		}
	}
	return m
}

// Init loads every list once.
func (m Model) Init() tea.Cmd {
	return m.loadData
}

// loadData loads the current user and the lists they can see.
func (m Model) loadData() tea.Msg {
	err := m.svc.Load(context.Background())
	return loadedMsg{snaps: captureSnapshots(m.svc), err: err}
}

// refetch resynchronizes the named lists.
func (m Model) refetch(lists ...app.List) tea.Cmd {
	svc := m.svc
	return func() tea.Msg {
		err := svc.Refetch(context.Background(), lists...)
		return loadedMsg{snaps: captureSnapshots(svc), err: err}
	}
}

// Update handles update.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.SetWidth(msg.Width)
		if m.bubblesActive() {
			return m, m.startLayout()
		}
		return m, nil

	case loadedMsg:
		return m.handleLoaded(msg)

	case mutationMsg:
		return m.handleMutation(msg)

	case activityMsg:
		if msg.err != nil {
			m.modalErr = msg.err.Error()
			return m, nil
		}
		m.activity = msg.entries
		return m, nil

	case clipboardMsg:
		if msg.err != nil {
			m.status = "copy failed: " + msg.err.Error()
		} else {
			m.status = "copied " + truncate(msg.text, 40)
		}
		return m, nil

	case layoutCachedMsg:
		return m.handleLayoutCached(msg)

	case layoutTickMsg:
		return m.handleLayoutTick(msg)

	case layoutSavedMsg:
		if msg.err != nil {
			m.status = "layout not saved: " + msg.err.Error()
		}
		return m, nil

	case tea.KeyPressMsg:
		return m.handleKey(msg)

	case tea.MouseClickMsg:
		return m.handleMouseClick(msg)

	default:
		return m, nil
	}
}

// handleLoaded applies fresh query state.
func (m Model) handleLoaded(msg loadedMsg) (tea.Model, tea.Cmd) {
	m.ready = true
	m.refreshing = false
	m.snaps = msg.snaps
	if !slices.Contains(m.visibleTabs(), m.tab) {
		m.tab = tabTasks
	}
	m.clampCursors()
	switch {
	case msg.err != nil:
		m.status = "some lists failed to load"
	case m.status == "loading" || m.status == "refetching":
		m.status = "ready"
	}
	if m.bubblesActive() && !m.layoutCurrent() {
		return m, m.startLayout()
	}
	return m, nil
}

// handleMutation closes the modal and refetches on success. Failures keep
// the modal open with the error shown inline.
func (m Model) handleMutation(msg mutationMsg) (tea.Model, tea.Cmd) {
	m.busy = false
	if msg.err != nil {
		m.modalErr = msg.err.Error()
		m.status = fmt.Sprintf("%s failed: %v", msg.op, msg.err)
		return m, nil
	}
	m.closeModal()
	m.status = string(msg.op) + ": ok"
	m.refreshing = true
	return m, m.refetch(msg.op.Affects()...)
}

// runMutation starts one mutation unless another is in flight.
func (m Model) runMutation(op app.Op, fn func(context.Context) error) (Model, tea.Cmd) {
	if m.busy {
		return m, nil
	}
	m.busy = true
	m.modalErr = ""
	m.status = string(op) + "…"
	return m, func() tea.Msg {
		return mutationMsg{op: op, err: fn(context.Background())}
	}
}

// gate returns the full-screen state implied by the current user query.
// Approval is decided by the backend: a 2xx /me is never gated.
func (m Model) gate() gate {
	me := m.snaps.me
	switch {
	case me.State == query.Error && errors.Is(me.Err, api.ErrUserNotApproved):
		return gateApproval
	case me.State == query.Error && !me.HasData:
		return gateFailed
	case !me.HasData && me.State == query.Idle:
		return gateSignIn
	default:
		return gateNone
	}
}

// visibleTabs lists tabs the current user can open.
func (m Model) visibleTabs() []tab {
	tabs := []tab{tabTasks, tabCompleted}
	if m.snaps.me.HasData && m.snaps.me.Data.IsAdmin {
		tabs = append(tabs, tabAdmin)
	}
	return tabs
}

// cycleTab moves to the next or previous visible tab.
func (m *Model) cycleTab(delta int) {
	tabs := m.visibleTabs()
	idx := slices.Index(tabs, m.tab)
	if idx < 0 {
		idx = 0
	}
	idx = (idx + delta + len(tabs)) % len(tabs)
	m.tab = tabs[idx]
}

// rowCount returns the number of rows in tab.
func (m Model) rowCount(t tab) int {
	switch t {
	case tabTasks:
		return len(m.snaps.tasks.Data)
	case tabCompleted:
		return len(m.snaps.completed.Data)
	case tabAdmin:
		return len(m.snaps.users.Data)
	default:
		return 0
	}
}

// clampCursors clamps every tab cursor to its list.
func (m *Model) clampCursors() {
	for t := tabTasks; t < tabCount; t++ {
		m.cursor[t] = clamp(m.cursor[t], 0, max(0, m.rowCount(t)-1))
	}
}

// tabTaskList returns the tasks shown on t.
func (m Model) tabTaskList(t tab) []domain.Task {
	switch t {
	case tabTasks:
		return m.snaps.tasks.Data
	case tabCompleted:
		return m.snaps.completed.Data
	default:
		return nil
	}
}

// selectedTask returns a copy of the task under the cursor, or nil.
func (m Model) selectedTask() *domain.Task {
	tasks := m.tabTaskList(m.tab)
	if len(tasks) == 0 {
		return nil
	}
	task := tasks[clamp(m.cursor[m.tab], 0, len(tasks)-1)]
	return &task
}

// selectTaskID moves the cursor of the current tab onto id.
func (m *Model) selectTaskID(id domain.ID) bool {
	idx := slices.IndexFunc(m.tabTaskList(m.tab), func(t domain.Task) bool { return t.ID == id })
	if idx < 0 {
		return false
	}
	m.cursor[m.tab] = idx
	return true
}

// selectedUser returns the user under the admin cursor.
func (m Model) selectedUser() (domain.User, bool) {
	users := m.snaps.users.Data
	if len(users) == 0 {
		return domain.User{}, false
	}
	return users[clamp(m.cursor[tabAdmin], 0, len(users)-1)], true
}

// openDetail opens the detail modal for task.
func (m *Model) openDetail(task *domain.Task) {
	if task == nil {
		return
	}
	target := *task
	m.modal = modalDetail
	m.target = &target
	m.modalErr = ""
}

// openForm opens the create form for a nil task and the edit form otherwise.
func (m *Model) openForm(task *domain.Task, edit bool) tea.Cmd {
	if edit && task == nil {
		return nil
	}
	m.modal = modalCreate
	m.target = nil
	if edit {
		target := *task
		m.modal = modalEdit
		m.target = &target
	}
	m.formInputs = newTaskFormInputs(m.target)
	m.formFocus = 0
	m.modalErr = ""
	return m.focusFormField(0)
}

// focusFormField focuses one form input.
func (m *Model) focusFormField(idx int) tea.Cmd {
	if len(m.formInputs) == 0 {
		return nil
	}
	idx = clamp(idx, 0, len(m.formInputs)-1)
	for i := range m.formInputs {
		m.formInputs[i].Blur()
	}
	m.formFocus = idx
	return m.formInputs[idx].Focus()
}

// closeModal closes any modal and clears its target.
func (m *Model) closeModal() {
	m.modal = modalNone
	m.target = nil
	m.modalErr = ""
	m.formInputs = nil
	m.formFocus = 0
}

// requestDelete confirms or deletes target.
func (m Model) requestDelete(target *domain.Task) (Model, tea.Cmd) {
	if target == nil {
		return m, nil
	}
	task := *target
	m.target = &task
	if m.confirmDelete {
		m.modal = modalConfirmDelete
		m.modalErr = ""
		return m, nil
	}
	return m.deleteTarget()
}

// deleteTarget deletes the modal target.
func (m Model) deleteTarget() (Model, tea.Cmd) {
	if m.target == nil {
		return m, nil
	}
	svc, id := m.svc, m.target.ID
	return m.runMutation(app.OpDelete, func(ctx context.Context) error {
		return svc.DeleteTask(ctx, id)
	})
}

// completeTask completes task.
func (m Model) completeTask(task *domain.Task) (Model, tea.Cmd) {
	if task == nil || task.Completed() {
		return m, nil
	}
	svc, id := m.svc, task.ID
	return m.runMutation(app.OpComplete, func(ctx context.Context) error {
		return svc.CompleteTask(ctx, id)
	})
}

// reopenTask returns a completed task to pending.
func (m Model) reopenTask(task *domain.Task) (Model, tea.Cmd) {
	if task == nil || !task.Completed() {
		return m, nil
	}
	svc, id := m.svc, task.ID
	return m.runMutation(app.OpReopen, func(ctx context.Context) error {
		_, err := svc.ReopenTask(ctx, id)
		return err
	})
}

// submitForm validates the form and sends create or update.
func (m Model) submitForm() (Model, tea.Cmd) {
	base := domain.TaskInput{}
	if m.modal == modalEdit {
		if m.target == nil {
			m.modalErr = "no task selected"
			return m, nil
		}
		base = domain.InputFromTask(*m.target)
	}
	in, err := parseTaskForm(m.formInputs, base)
	if err != nil {
		m.modalErr = err.Error()
		return m, nil
	}
	svc := m.svc
	if m.modal == modalEdit {
		id := m.target.ID
		return m.runMutation(app.OpUpdate, func(ctx context.Context) error {
			_, err := svc.UpdateTask(ctx, id, in)
			return err
		})
	}
	return m.runMutation(app.OpCreate, func(ctx context.Context) error {
		_, err := svc.CreateTask(ctx, in)
		return err
	})
}

// openActivity opens the activity modal and loads the journal.
func (m Model) openActivity() (Model, tea.Cmd) {
	m.modal = modalActivity
	m.target = nil
	m.modalErr = ""
	svc, limit := m.svc, m.activityLimit
	return m, func() tea.Msg {
		entries, err := svc.RecentActivity(context.Background(), limit)
		return activityMsg{entries: entries, err: err}
	}
}

// yank copies the selected task title.
func (m Model) yank() tea.Cmd {
	task := m.selectedTask()
	if task == nil {
		return nil
	}
	write, text := m.copyText, task.Title
	return func() tea.Msg {
		return clipboardMsg{text: text, err: write(text)}
	}
}

// handleKey routes one key press.
func (m Model) handleKey(msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		return m, tea.Quit
	}
	if m.help.ShowAll {
		if key.Matches(msg, m.keys.toggleHelp) || msg.String() == "esc" {
			m.help.ShowAll = false
		}
		return m, nil
	}
	switch m.modal {
	case modalCreate, modalEdit:
		return m.handleFormKey(msg)
	case modalDetail:
		return m.handleDetailKey(msg)
	case modalConfirmDelete:
		return m.handleConfirmKey(msg)
	case modalActivity:
		if msg.String() == "esc" || key.Matches(msg, m.keys.activityLog) || key.Matches(msg, m.keys.quit) {
			m.closeModal()
		}
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.reload):
		m.refreshing = true
		m.status = "refetching"
		return m, m.loadData
	case key.Matches(msg, m.keys.toggleHelp):
		m.help.ShowAll = true
		return m, nil
	}
	if m.gate() != gateNone {
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.nextTab), key.Matches(msg, m.keys.prevTab):
		delta := 1
		if key.Matches(msg, m.keys.prevTab) {
			delta = -1
		}
		m.cycleTab(delta)
		if m.bubblesActive() {
			return m, m.startLayout()
		}
		m.stopLayout()
		return m, nil
	case key.Matches(msg, m.keys.moveUp):
		m.cursor[m.tab] = clamp(m.cursor[m.tab]-1, 0, max(0, m.rowCount(m.tab)-1))
		return m, nil
	case key.Matches(msg, m.keys.moveDown):
		m.cursor[m.tab] = clamp(m.cursor[m.tab]+1, 0, max(0, m.rowCount(m.tab)-1))
		return m, nil
	case key.Matches(msg, m.keys.visualize):
		if m.tab != tabTasks {
			return m, nil
		}
		if m.viewMode == viewBubbles {
			m.viewMode = viewList
			m.stopLayout()
			return m, nil
		}
		m.viewMode = viewBubbles
		return m, m.startLayout()
	case key.Matches(msg, m.keys.taskInfo):
		m.openDetail(m.selectedTask())
		return m, nil
	case key.Matches(msg, m.keys.addTask):
		if m.tab != tabTasks {
			return m, nil
		}
		cmd := m.openForm(nil, false)
		return m, cmd
	case key.Matches(msg, m.keys.editTask):
		cmd := m.openForm(m.selectedTask(), true)
		return m, cmd
	case key.Matches(msg, m.keys.deleteTask):
		return m.requestDelete(m.selectedTask())
	case key.Matches(msg, m.keys.complete):
		return m.completeTask(m.selectedTask())
	case key.Matches(msg, m.keys.reopen):
		return m.reopenTask(m.selectedTask())
	case key.Matches(msg, m.keys.approve):
		user, ok := m.selectedUser()
		if m.tab != tabAdmin || !ok || user.Approved {
			return m, nil
		}
		svc := m.svc
		return m.runMutation(app.OpApprove, func(ctx context.Context) error {
			return svc.ApproveUser(ctx, user.ID)
		})
	case key.Matches(msg, m.keys.activityLog):
		return m.openActivity()
	case key.Matches(msg, m.keys.yank):
		return m, m.yank()
	}
	return m, nil
}

// handleFormKey drives the create and edit forms.
func (m Model) handleFormKey(msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	switch {
	case msg.Code == tea.KeyEscape:
		m.closeModal()
		return m, nil
	case msg.Code == tea.KeyEnter:
		if m.busy {
			return m, nil
		}
		return m.submitForm()
	case msg.String() == "shift+tab" || msg.Code == tea.KeyUp:
		return m, m.focusFormField(m.formFocus - 1)
	case msg.Code == tea.KeyTab || msg.Code == tea.KeyDown:
		return m, m.focusFormField(m.formFocus + 1)
	}
	if m.formFocus < 0 || m.formFocus >= len(m.formInputs) {
		return m, nil
	}
	var cmd tea.Cmd
	m.formInputs[m.formFocus], cmd = m.formInputs[m.formFocus].Update(msg)
	return m, cmd
}

// handleDetailKey drives task actions from the detail modal.
func (m Model) handleDetailKey(msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	switch {
	case msg.String() == "esc" || key.Matches(msg, m.keys.taskInfo) || key.Matches(msg, m.keys.quit):
		m.closeModal()
		return m, nil
	case key.Matches(msg, m.keys.complete):
		return m.completeTask(m.target)
	case key.Matches(msg, m.keys.reopen):
		return m.reopenTask(m.target)
	case key.Matches(msg, m.keys.editTask):
		cmd := m.openForm(m.target, true)
		return m, cmd
	case key.Matches(msg, m.keys.deleteTask):
		return m.requestDelete(m.target)
	}
	return m, nil
}

// handleConfirmKey confirms or cancels a delete.
func (m Model) handleConfirmKey(msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	switch {
	case msg.Code == tea.KeyEnter || msg.String() == "y":
		return m.deleteTarget()
	case msg.Code == tea.KeyEscape || msg.String() == "n":
		m.closeModal()
	}
	return m, nil
}

// handleMouseClick selects the row or bubble under the pointer.
func (m Model) handleMouseClick(msg tea.MouseClickMsg) (tea.Model, tea.Cmd) {
	if m.help.ShowAll || m.modal != modalNone || msg.Button != tea.MouseLeft || m.gate() != gateNone {
		return m, nil
	}
	if m.bubblesActive() {
		if node, ok := m.nodeAtCell(msg.X, msg.Y-bodyTop); ok {
			m.selectTaskID(node.Task.ID)
		}
		return m, nil
	}
	top := m.listTop()
	row := msg.Y - top
	if row < 0 {
		return m, nil
	}
	total := m.rowCount(m.tab)
	idx := listOffset(total, m.cursor[m.tab], m.listRows()) + row
	if idx < total {
		m.cursor[m.tab] = idx
	}
	return m, nil
}
