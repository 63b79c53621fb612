package tui

import (
	"fmt"
	"image/color"
	"strings"
	"time"

	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"
	"github.com/hylla/taskdeck/internal/domain"
	"github.com/hylla/taskdeck/internal/query"
)

// bodyTop is the first screen row below the tab and status lines.
const bodyTop = 2

// helpLines is the height of the bordered short-help footer.
const helpLines = 2

var (
	accentColor = lipgloss.Color("62")
	mutedColor  = lipgloss.Color("241")
	dimColor    = lipgloss.Color("239")
	errorColor  = lipgloss.Color("203")
)

// View handles view.
func (m Model) View() tea.View {
	v := tea.NewView(m.render())
	v.MouseMode = tea.MouseModeCellMotion
	v.AltScreen = true
	return v
}

// render returns the full screen text.
func (m Model) render() string {
	switch {
	case !m.ready:
		return "loading..."
	case m.gate() != gateNone:
		return m.renderGate()
	default:
		return m.renderMain()
	}
}

// renderMain renders tabs, body, footer, and any overlay.
func (m Model) renderMain() string {
	sections := []string{m.renderTabs(), m.renderStatusLine()}
	body := m.renderBody()
	if m.height > 0 {
		body = fitLines(body, m.bodyHeight())
	}
	sections = append(sections, body, m.renderHelpLine())
	full := strings.Join(sections, "\n")

	overlay := m.renderOverlay()
	if overlay == "" {
		return full
	}
	height := lipgloss.Height(full)
	if m.height > 0 {
		height = m.height
	}
	return overlayOnContent(full, overlay, max(1, m.width), max(1, height))
}

// renderGate renders the sign-in, approval, and failure screens.
func (m Model) renderGate() string {
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("252"))
	mutedStyle := lipgloss.NewStyle().Foreground(mutedColor)
	lines := []string{titleStyle.Render("taskdeck"), ""}
	switch m.gate() {
	case gateSignIn:
		lines = append(lines,
			"Sign in required.",
			mutedStyle.Render("Set TASKDECK_TOKEN or configure [auth] client credentials, then press r."),
		)
	case gateApproval:
		lines = append(lines,
			"Your account is pending approval.",
			mutedStyle.Render("An administrator must approve it before tasks are shown. Press r to check again."),
		)
	case gateFailed:
		lines = append(lines,
			lipgloss.NewStyle().Foreground(errorColor).Render("error: "+errText(m.snaps.me.Err)),
			mutedStyle.Render("press r to retry"),
		)
	}
	lines = append(lines, "", mutedStyle.Render("q quit"))
	return strings.Join(lines, "\n")
}

// renderTabs renders the tab bar.
func (m Model) renderTabs() string {
	active := lipgloss.NewStyle().Bold(true).Foreground(accentColor)
	inactive := lipgloss.NewStyle().Foreground(dimColor)
	parts := []string{lipgloss.NewStyle().Bold(true).Render("taskdeck")}
	for _, t := range m.visibleTabs() {
		label := fmt.Sprintf("%s (%d)", t.title(), m.rowCount(t))
		if t == m.tab {
			parts = append(parts, active.Render(label))
		} else {
			parts = append(parts, inactive.Render(label))
		}
	}
	return strings.Join(parts, "  ")
}

// renderStatusLine renders the current user and status text.
func (m Model) renderStatusLine() string {
	parts := []string{}
	if me := m.snaps.me; me.HasData {
		who := me.Data.DisplayName()
		if me.Data.IsAdmin {
			who += " (admin)"
		}
		parts = append(parts, who)
	}
	if m.tab == tabTasks {
		if m.viewMode == viewBubbles {
			parts = append(parts, "bubbles")
		} else {
			parts = append(parts, "list")
		}
	}
	if m.refreshing {
		parts = append(parts, "refreshing…")
	}
	if s := strings.TrimSpace(m.status); s != "" && s != "ready" {
		parts = append(parts, s)
	}
	line := strings.Join(parts, " • ")
	if m.width > 0 {
		line = truncate(line, m.width)
	}
	return lipgloss.NewStyle().Foreground(dimColor).Render(line)
}

// renderHelpLine renders the bordered short help.
func (m Model) renderHelpLine() string {
	hb := m.help
	hb.ShowAll = false
	hb.SetWidth(max(0, m.width-2))
	return lipgloss.NewStyle().
		Foreground(mutedColor).
		BorderTop(true).
		BorderForeground(dimColor).
		Padding(0, 1).
		Width(max(0, m.width)).
		Render(hb.View(m.keys))
}

// bodyHeight returns the rows between the header and footer.
func (m Model) bodyHeight() int {
	return max(1, m.height-bodyTop-helpLines)
}

// renderBody renders the active tab.
func (m Model) renderBody() string {
	switch m.tab {
	case tabCompleted:
		return m.renderErrorPanel(m.snaps.completed.State, m.snaps.completed.Err, "completed tasks") + m.renderCompletedList()
	case tabAdmin:
		return m.renderErrorPanel(m.snaps.users.State, m.snaps.users.Err, "users") + m.renderUserList()
	default:
		panel := m.renderErrorPanel(m.snaps.tasks.State, m.snaps.tasks.Err, "tasks")
		if m.viewMode == viewBubbles {
			return panel + m.renderBubbleView()
		}
		return panel + m.renderTaskList()
	}
}

// renderErrorPanel renders an inline error box followed by a newline, or
// nothing when the query is healthy.
func (m Model) renderErrorPanel(state query.State, err error, what string) string {
	if state != query.Error {
		return ""
	}
	style := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(errorColor).
		Foreground(errorColor).
		Padding(0, 1)
	if m.width > 4 {
		style = style.Width(m.width - 2)
	}
	return style.Render("Could not load "+what+": "+errText(err)+"\npress r to retry") + "\n"
}

// listTop returns the first screen row of the active list.
func (m Model) listTop() int {
	top := bodyTop
	var panel string
	switch m.tab {
	case tabCompleted:
		panel = m.renderErrorPanel(m.snaps.completed.State, m.snaps.completed.Err, "completed tasks")
	case tabAdmin:
		panel = m.renderErrorPanel(m.snaps.users.State, m.snaps.users.Err, "users")
	default:
		panel = m.renderErrorPanel(m.snaps.tasks.State, m.snaps.tasks.Err, "tasks")
	}
	if panel != "" {
		top += lipgloss.Height(strings.TrimSuffix(panel, "\n"))
	}
	return top
}

// listRows returns the rows available to the active list.
func (m Model) listRows() int {
	return max(1, m.bodyHeight()-(m.listTop()-bodyTop))
}

// listOffset returns the first visible index that keeps cursor on screen.
func listOffset(total, cursor, visible int) int {
	if visible <= 0 || total <= visible || cursor < visible {
		return 0
	}
	return clamp(cursor-visible+1, 0, total-visible)
}

// renderRows renders a windowed list with the cursor row highlighted.
func (m Model) renderRows(rows []string, cursor int) string {
	selectedStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("212")).Bold(true)
	visible := m.listRows()
	offset := listOffset(len(rows), cursor, visible)
	end := min(len(rows), offset+visible)
	out := make([]string, 0, end-offset)
	for i := offset; i < end; i++ {
		row := rows[i]
		if m.width > 2 {
			row = truncate(row, m.width-2)
		}
		if i == cursor {
			out = append(out, selectedStyle.Render("› "+row))
		} else {
			out = append(out, "  "+row)
		}
	}
	return strings.Join(out, "\n")
}

// renderTaskList renders open tasks.
func (m Model) renderTaskList() string {
	tasks := m.snaps.tasks.Data
	if len(tasks) == 0 {
		return lipgloss.NewStyle().Foreground(mutedColor).Render("No open tasks. Press n to create one.")
	}
	now := m.now()
	rows := make([]string, len(tasks))
	for i, task := range tasks {
		rows[i] = taskRow(task, now)
	}
	return m.renderRows(rows, m.cursor[tabTasks])
}

// taskRow renders one open task line.
func taskRow(task domain.Task, now time.Time) string {
	parts := []string{
		task.Title,
		"[" + domain.PriorityLabel(task.Priority) + "]",
		fmt.Sprintf("%.1f left", domain.RemainingEffort(task)),
	}
	if task.DueDate != nil {
		due := "due " + task.DueDate.UTC().Format(time.DateOnly)
		if task.Overdue(now) {
			due = "OVERDUE " + task.DueDate.UTC().Format(time.DateOnly)
		}
		parts = append(parts, due)
	}
	if task.Status != "" && task.Status != domain.StatusPending {
		parts = append(parts, string(task.Status))
	}
	return strings.Join(parts, "  ")
}

// renderCompletedList renders completed tasks.
func (m Model) renderCompletedList() string {
	tasks := m.snaps.completed.Data
	if len(tasks) == 0 {
		return lipgloss.NewStyle().Foreground(mutedColor).Render("No completed tasks yet.")
	}
	rows := make([]string, len(tasks))
	for i, task := range tasks {
		done := "-"
		if task.CompletedAt != nil {
			done = task.CompletedAt.UTC().Format("2006-01-02 15:04")
		}
		rows[i] = fmt.Sprintf("%s  done %s", task.Title, done)
	}
	return m.renderRows(rows, m.cursor[tabCompleted])
}

// renderUserList renders accounts for admins.
func (m Model) renderUserList() string {
	users := m.snaps.users.Data
	if len(users) == 0 {
		return lipgloss.NewStyle().Foreground(mutedColor).Render("No users.")
	}
	rows := make([]string, len(users))
	for i, user := range users {
		state := "pending approval"
		if user.Approved {
			state = "approved"
		}
		if user.IsAdmin {
			state += ", admin"
		}
		rows[i] = fmt.Sprintf("%s  <%s>  %s", user.Name, user.Email, state)
	}
	return m.renderRows(rows, m.cursor[tabAdmin])
}

// overlayWidth returns the modal width for the current terminal.
func (m Model) overlayWidth() int {
	if m.width <= 0 {
		return 72
	}
	return clamp(m.width-8, 40, 96)
}

// renderOverlay renders the help overlay or the open modal.
func (m Model) renderOverlay() string {
	if m.help.ShowAll {
		return m.renderHelpOverlay(m.overlayWidth())
	}
	var body string
	switch m.modal {
	case modalDetail:
		body = m.renderDetail()
	case modalCreate, modalEdit:
		body = m.renderForm()
	case modalConfirmDelete:
		body = m.renderConfirm()
	case modalActivity:
		body = m.renderActivity()
	default:
		return ""
	}
	if m.modalErr != "" {
		body += "\n\n" + lipgloss.NewStyle().Foreground(errorColor).Render(m.modalErr)
	}
	if m.busy {
		body += "\n" + lipgloss.NewStyle().Foreground(mutedColor).Render("working…")
	}
	return modalStyle(dimColor, m.overlayWidth()).Render(body)
}

// modalStyle returns the bordered modal frame.
func modalStyle(border color.Color, width int) lipgloss.Style {
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(border).
		Padding(0, 1).
		Width(width)
}

// renderDetail renders the task detail modal.
func (m Model) renderDetail() string {
	if m.target == nil {
		return ""
	}
	task := *m.target
	title := lipgloss.NewStyle().Bold(true).Foreground(accentColor).Render(task.Title)
	muted := lipgloss.NewStyle().Foreground(mutedColor)
	now := m.now()

	due := "none"
	if task.DueDate != nil {
		due = task.DueDate.UTC().Format(time.DateOnly)
		if task.Overdue(now) {
			due += " (overdue)"
		}
	}
	meta := []string{
		fmt.Sprintf("type: %s  •  status: %s  •  priority: %s", orDash(string(task.Type)), orDash(string(task.Status)), domain.PriorityLabel(task.Priority)),
		fmt.Sprintf("due: %s  •  urgency: %.2f", due, domain.Urgency(task, now)),
		fmt.Sprintf("effort: %g  •  done: %.0f%%  •  remaining: %.2f", task.Effort, task.PercentCompleted*100, domain.RemainingEffort(task)),
	}
	if task.CompletedAt != nil {
		meta = append(meta, "completed: "+task.CompletedAt.UTC().Format(time.RFC3339))
	}

	lines := []string{title, muted.Render(strings.Join(meta, "\n")), ""}
	if desc := m.md.render(task.Description, m.overlayWidth()-4); desc != "" {
		lines = append(lines, desc)
	} else {
		lines = append(lines, muted.Render("(no description)"))
	}
	actions := "e edit • d delete • esc close"
	if task.Completed() {
		actions = "o reopen • " + actions
	} else {
		actions = "c complete • " + actions
	}
	lines = append(lines, "", muted.Render(actions))
	return strings.Join(lines, "\n")
}

// renderForm renders the create and edit form.
func (m Model) renderForm() string {
	heading := "New task"
	if m.modal == modalEdit {
		heading = "Edit task"
	}
	labelStyle := lipgloss.NewStyle().Foreground(mutedColor).Width(12)
	focusStyle := lipgloss.NewStyle().Foreground(accentColor).Bold(true).Width(12)
	lines := []string{lipgloss.NewStyle().Bold(true).Foreground(accentColor).Render(heading), ""}
	for i, in := range m.formInputs {
		label := labelStyle.Render(formLabels[i])
		if i == m.formFocus {
			label = focusStyle.Render(formLabels[i])
		}
		lines = append(lines, label+in.View())
	}
	lines = append(lines, "", lipgloss.NewStyle().Foreground(mutedColor).Render("tab/shift+tab move • enter save • esc cancel"))
	return strings.Join(lines, "\n")
}

// renderConfirm renders the delete confirmation.
func (m Model) renderConfirm() string {
	if m.target == nil {
		return ""
	}
	return strings.Join([]string{
		lipgloss.NewStyle().Bold(true).Foreground(errorColor).Render("Delete task?"),
		"",
		m.target.Title,
		"",
		lipgloss.NewStyle().Foreground(mutedColor).Render("enter/y delete • esc/n cancel"),
	}, "\n")
}

// renderActivity renders the mutation journal.
func (m Model) renderActivity() string {
	muted := lipgloss.NewStyle().Foreground(mutedColor)
	lines := []string{lipgloss.NewStyle().Bold(true).Foreground(accentColor).Render("Activity"), ""}
	if len(m.activity) == 0 {
		lines = append(lines, muted.Render("No activity recorded."))
	}
	for _, entry := range m.activity {
		line := fmt.Sprintf("%s  %s  %s", entry.At.Local().Format("01-02 15:04"), entry.Op, entry.Target)
		if entry.Failed() {
			line += "  " + lipgloss.NewStyle().Foreground(errorColor).Render(entry.Error)
		}
		lines = append(lines, line)
	}
	lines = append(lines, "", muted.Render("esc close"))
	return strings.Join(lines, "\n")
}

// renderHelpOverlay renders the full key reference.
func (m Model) renderHelpOverlay(width int) string {
	hb := m.help
	hb.ShowAll = true
	hb.SetWidth(width - 4)
	muted := lipgloss.NewStyle().Foreground(mutedColor)
	lines := []string{
		lipgloss.NewStyle().Bold(true).Foreground(accentColor).Render("taskdeck help"),
		"",
		hb.View(m.keys),
		"",
		muted.Render("bubbles: size follows remaining effort, urgency and priority; shade follows priority"),
		muted.Render("press ? or esc to close"),
	}
	return modalStyle(dimColor, width).Render(strings.Join(lines, "\n"))
}

// errText renders err for display.
func errText(err error) string {
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}

// orDash returns s or "-" when blank.
func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

// clamp clamps the requested operation.
func clamp(v, minV, maxV int) int {
	if maxV < minV {
		return minV
	}
	if v < minV {
		return minV
	}
	if v > maxV {
		return maxV
	}
	return v
}

// fitLines fits lines.
func fitLines(content string, maxLines int) string {
	if maxLines <= 0 {
		return ""
	}
	lines := strings.Split(content, "\n")
	switch {
	case len(lines) > maxLines:
		if maxLines == 1 {
			lines = []string{"…"}
		} else {
			lines = append(lines[:maxLines-1], "…")
		}
	case len(lines) < maxLines:
		padding := make([]string, maxLines-len(lines))
		lines = append(lines, padding...)
	}
	return strings.Join(lines, "\n")
}

// overlayOnContent centers overlay above base.
func overlayOnContent(base, overlay string, width, height int) string {
	if width <= 0 || height <= 0 {
		if strings.TrimSpace(overlay) == "" {
			return base
		}
		return overlay + "\n\n" + base
	}

	base = fitLines(base, height)
	canvas := lipgloss.NewCanvas(width, height)
	baseLayer := lipgloss.NewLayer(base).X(0).Y(0).Z(0)
	centered := lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, overlay)
	overlayLayer := lipgloss.NewLayer(centered).X(0).Y(0).Z(10)

	canvas.Compose(baseLayer)
	canvas.Compose(overlayLayer)
	return canvas.Render()
}

// truncate truncates the requested operation.
func truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	rs := []rune(s)
	if len(rs) <= max {
		return s
	}
	if max <= 1 {
		return string(rs[:max])
	}
	return string(rs[:max-1]) + "…"
}
