package tui

import (
	"context"
	"image/color"
	"slices"
	"strings"
	"time"

	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"
	"github.com/hylla/taskdeck/internal/app"
	"github.com/hylla/taskdeck/internal/domain"
	"github.com/hylla/taskdeck/internal/layout"
)

// One terminal cell covers cellWidth x cellHeight canvas units, which keeps
// bubbles round on typical fonts.
const (
	cellWidth           = 8.0
	cellHeight          = 16.0
	layoutFrameInterval = 16 * time.Millisecond
	stepsPerFrame       = 8
)

// layoutCachedMsg carries the result of the cache lookup for one run.
type layoutCachedMsg struct {
	gen   int
	tasks []domain.Task
	nodes []layout.Node
	ok    bool
}

// layoutTickMsg advances the running simulation by one frame.
type layoutTickMsg struct {
	gen int
}

// layoutSavedMsg reports persistence of a frozen layout.
type layoutSavedMsg struct {
	err error
}

// bubblesActive reports whether the tasks tab is drawn as bubbles.
func (m Model) bubblesActive() bool {
	return m.viewMode == viewBubbles && m.tab == tabTasks && m.ready && m.gate() == gateNone
}

// vizGrid returns the cell grid available to bubbles, leaving one row for
// the legend.
func (m Model) vizGrid() (int, int) {
	return max(1, m.width), max(1, m.bodyHeight()-1)
}

// startLayout begins a new layout run for the current open tasks. Any
// earlier run is abandoned.
func (m *Model) startLayout() tea.Cmd {
	m.layoutGen++
	m.runner = nil
	m.layoutErr = ""
	engine := m.svc.Engine()
	if engine == nil {
		m.nodes = nil
		m.layoutErr = app.ErrNoLayoutEngine.Error()
		return nil
	}
	cols, rows := m.vizGrid()
	width, height := float64(cols)*cellWidth, float64(rows)*cellHeight
	m.canvasW, m.canvasH = width, height
	tasks := slices.Clone(m.snaps.tasks.Data)
	m.layoutTasks = tasks
	gen := m.layoutGen
	return func() tea.Msg {
		nodes, ok := engine.Cached(context.Background(), tasks, width, height)
		return layoutCachedMsg{gen: gen, tasks: tasks, nodes: nodes, ok: ok}
	}
}

// layoutCurrent reports whether the running or drawn layout already
// covers the loaded tasks on the current canvas.
func (m Model) layoutCurrent() bool {
	engine := m.svc.Engine()
	if engine == nil || m.layoutTasks == nil {
		return false
	}
	cols, rows := m.vizGrid()
	width, height := float64(cols)*cellWidth, float64(rows)*cellHeight
	if width != m.canvasW || height != m.canvasH {
		return false
	}
	return engine.Key(m.snaps.tasks.Data, width, height) == engine.Key(m.layoutTasks, width, height)
}

// stopLayout abandons the running layout.
func (m *Model) stopLayout() {
	m.layoutGen++
	m.runner = nil
	m.layoutTasks = nil
}

// layoutTick schedules the next frame of the current run.
func (m Model) layoutTick() tea.Cmd {
	gen := m.layoutGen
	return tea.Tick(layoutFrameInterval, func(time.Time) tea.Msg {
		return layoutTickMsg{gen: gen}
	})
}

// handleLayoutCached replays a cached layout or starts the simulation.
func (m Model) handleLayoutCached(msg layoutCachedMsg) (tea.Model, tea.Cmd) {
	if msg.gen != m.layoutGen {
		return m, nil
	}
	if msg.ok {
		m.nodes = msg.nodes
		return m, nil
	}
	engine := m.svc.Engine()
	if engine == nil {
		return m, nil
	}
	runner, nodes := engine.Start(msg.tasks, m.canvasW, m.canvasH)
	if runner == nil {
		m.nodes = nodes
		return m, nil
	}
	m.runner = runner
	m.nodes = runner.Simulation().Nodes()
	return m, m.layoutTick()
}

// handleLayoutTick steps the simulation and persists it once frozen.
func (m Model) handleLayoutTick(msg layoutTickMsg) (tea.Model, tea.Cmd) {
	if msg.gen != m.layoutGen || m.runner == nil {
		return m, nil
	}
	frozen := false
	for range stepsPerFrame {
		if m.runner.Step(m.now()) {
			frozen = true
			break
		}
	}
	m.nodes = m.runner.Simulation().Nodes()
	if !frozen {
		return m, m.layoutTick()
	}
	m.runner = nil
	engine := m.svc.Engine()
	if engine == nil {
		return m, nil
	}
	tasks, nodes := m.layoutTasks, slices.Clone(m.nodes)
	width, height := m.canvasW, m.canvasH
	return m, func() tea.Msg {
		return layoutSavedMsg{err: engine.Remember(context.Background(), tasks, width, height, nodes)}
	}
}

// cellScale returns canvas units per column and row for the drawn grid.
func (m Model) cellScale(cols, rows int) (float64, float64) {
	sx, sy := cellWidth, cellHeight
	if m.canvasW > 0 && cols > 0 {
		sx = m.canvasW / float64(cols)
	}
	if m.canvasH > 0 && rows > 0 {
		sy = m.canvasH / float64(rows)
	}
	return sx, sy
}

// nodeAtCell maps a grid cell to the bubble covering its center.
func (m Model) nodeAtCell(col, row int) (layout.Node, bool) {
	cols, rows := m.vizGrid()
	if col < 0 || row < 0 || col >= cols || row >= rows {
		return layout.Node{}, false
	}
	sx, sy := m.cellScale(cols, rows)
	return layout.NodeAt(m.nodes, (float64(col)+0.5)*sx, (float64(row)+0.5)*sy)
}

// shadeRune maps fill opacity onto a block shade.
func shadeRune(opacity float64) rune {
	switch {
	case opacity >= 0.95:
		return '█'
	case opacity >= 0.83:
		return '▓'
	case opacity >= 0.7:
		return '▒'
	default:
		return '░'
	}
}

// priorityColor returns the bubble color for p.
func priorityColor(p domain.Priority) color.Color {
	switch p.Clamp() {
	case domain.PriorityUrgent:
		return lipgloss.Color("204")
	case domain.PriorityHigh:
		return lipgloss.Color("214")
	case domain.PriorityMedium:
		return lipgloss.Color("75")
	default:
		return lipgloss.Color("108")
	}
}

type bubbleCell struct {
	ch    rune
	owner int
	label bool
}

// renderBubbles draws the current nodes onto a cols x rows grid.
func (m Model) renderBubbles(cols, rows int) string {
	grid := make([][]bubbleCell, rows)
	for r := range grid {
		grid[r] = make([]bubbleCell, cols)
		for c := range grid[r] {
			grid[r][c] = bubbleCell{ch: ' ', owner: -1}
		}
	}
	sx, sy := m.cellScale(cols, rows)

	for i, n := range m.nodes {
		shade := shadeRune(domain.Opacity(n.Task))
		r0, r1 := max(0, int((n.Y-n.Radius)/sy)), min(rows-1, int((n.Y+n.Radius)/sy))
		c0, c1 := max(0, int((n.X-n.Radius)/sx)), min(cols-1, int((n.X+n.Radius)/sx))
		for r := r0; r <= r1; r++ {
			for c := c0; c <= c1; c++ {
				if n.Contains((float64(c)+0.5)*sx, (float64(r)+0.5)*sy) {
					grid[r][c] = bubbleCell{ch: shade, owner: i}
				}
			}
		}
	}
	for i, n := range m.nodes {
		r := int(n.Y / sy)
		if r < 0 || r >= rows {
			continue
		}
		label := []rune(domain.Label(n.Task.Title))
		start := int(n.X/sx) - len(label)/2
		for j, ch := range label {
			if c := start + j; c >= 0 && c < cols {
				grid[r][c] = bubbleCell{ch: ch, owner: i, label: true}
			}
		}
	}

	var selected domain.ID
	if task := m.selectedTask(); task != nil {
		selected = task.ID
	}
	now := m.now()
	styleFor := func(cell bubbleCell) lipgloss.Style {
		if cell.owner < 0 {
			return lipgloss.NewStyle()
		}
		task := m.nodes[cell.owner].Task
		fg := priorityColor(task.Priority)
		if task.Overdue(now) {
			fg = lipgloss.Color("203")
		}
		if task.ID == selected {
			fg = lipgloss.Color("212")
		}
		if cell.label {
			return lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("231")).Background(fg)
		}
		return lipgloss.NewStyle().Foreground(fg)
	}

	lines := make([]string, rows)
	for r, row := range grid {
		var b strings.Builder
		start := 0
		for c := 1; c <= len(row); c++ {
			if c < len(row) && row[c].owner == row[start].owner && row[c].label == row[start].label {
				continue
			}
			run := make([]rune, 0, c-start)
			for _, cell := range row[start:c] {
				run = append(run, cell.ch)
			}
			if row[start].owner < 0 {
				b.WriteString(string(run))
			} else {
				b.WriteString(styleFor(row[start]).Render(string(run)))
			}
			start = c
		}
		lines[r] = b.String()
	}
	return strings.Join(lines, "\n")
}

// renderBubbleView returns the bubble grid with its legend.
func (m Model) renderBubbleView() string {
	legendStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	legend := "█ urgent  ▓ high  ▒ medium  ░ low  •  click a bubble to select"
	switch {
	case m.layoutErr != "":
		return lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Render("visualization unavailable: " + m.layoutErr)
	case len(m.snaps.tasks.Data) == 0:
		return legendStyle.Render("No open tasks to visualize. Press n to create one.")
	}
	if m.runner != nil {
		legend += "  •  settling…"
	}
	cols, rows := m.vizGrid()
	return m.renderBubbles(cols, rows) + "\n" + legendStyle.Render(truncate(legend, cols))
}
