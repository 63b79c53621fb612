package tui

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"charm.land/bubbles/v2/key"
)

// KeyConfig holds user overrides for rebindable actions. Blank fields keep
// the defaults.
type KeyConfig struct {
	Visualize   string
	ActivityLog string
	Yank        string
}

// keyMap represents key map data used by this package.
type keyMap struct {
	quit        key.Binding
	reload      key.Binding
	toggleHelp  key.Binding
	nextTab     key.Binding
	prevTab     key.Binding
	moveUp      key.Binding
	moveDown    key.Binding
	visualize   key.Binding
	taskInfo    key.Binding
	addTask     key.Binding
	editTask    key.Binding
	deleteTask  key.Binding
	complete    key.Binding
	reopen      key.Binding
	approve     key.Binding
	activityLog key.Binding
	yank        key.Binding
}

// newKeyMap constructs key map.
func newKeyMap() keyMap {
	return keyMap{
		quit:        key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
		reload:      key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "refetch")),
		toggleHelp:  key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "toggle help")),
		nextTab:     key.NewBinding(key.WithKeys("tab", "l", "right"), key.WithHelp("tab", "next tab")),
		prevTab:     key.NewBinding(key.WithKeys("shift+tab", "h", "left"), key.WithHelp("shift+tab", "previous tab")),
		moveUp:      key.NewBinding(key.WithKeys("k", "up"), key.WithHelp("k/↑", "up")),
		moveDown:    key.NewBinding(key.WithKeys("j", "down"), key.WithHelp("j/↓", "down")),
		visualize:   key.NewBinding(key.WithKeys("v"), key.WithHelp("v", "list/bubbles")),
		taskInfo:    key.NewBinding(key.WithKeys("i", "enter"), key.WithHelp("i/enter", "task info")),
		addTask:     key.NewBinding(key.WithKeys("n"), key.WithHelp("n", "new task")),
		editTask:    key.NewBinding(key.WithKeys("e"), key.WithHelp("e", "edit task")),
		deleteTask:  key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "delete task")),
		complete:    key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "complete")),
		reopen:      key.NewBinding(key.WithKeys("o"), key.WithHelp("o", "reopen")),
		approve:     key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "approve user")),
		activityLog: key.NewBinding(key.WithKeys("g"), key.WithHelp("g", "activity log")),
		yank:        key.NewBinding(key.WithKeys("y"), key.WithHelp("y", "copy title")),
	}
}

// applyConfig rebinds the configurable actions.
func (k *keyMap) applyConfig(cfg KeyConfig) {
	configureBinding(&k.visualize, cfg.Visualize, "v", "list/bubbles")
	configureBinding(&k.activityLog, cfg.ActivityLog, "g", "activity log")
	configureBinding(&k.yank, cfg.Yank, "y", "copy title")
}

// parseBindingKeys turns one configured key into matcher keys and help text.
func parseBindingKeys(raw, fallback string) ([]string, string) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		raw = fallback
	}
	if strings.EqualFold(raw, "space") || raw == " " {
		return []string{" ", "space"}, "space"
	}
	if utf8.RuneCountInString(raw) == 1 {
		r, _ := utf8.DecodeRuneInString(raw)
		if unicode.IsUpper(r) {
			return []string{raw, "shift+" + string(unicode.ToLower(r))}, raw
		}
		return []string{raw}, raw
	}
	return []string{strings.ToLower(raw)}, raw
}

// configureBinding replaces the keys and help of one binding.
func configureBinding(b *key.Binding, raw, fallback, desc string) {
	keys, help := parseBindingKeys(raw, fallback)
	b.SetKeys(keys...)
	b.SetHelp(help, desc)
}

// ShortHelp handles short help.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{
		k.nextTab, k.visualize, k.taskInfo, k.addTask, k.complete, k.activityLog, k.toggleHelp, k.quit,
	}
}

// FullHelp handles full help.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.nextTab, k.prevTab, k.moveUp, k.moveDown, k.visualize, k.reload},
		{k.taskInfo, k.addTask, k.editTask, k.deleteTask, k.complete, k.reopen},
		{k.approve, k.activityLog, k.yank, k.toggleHelp, k.quit},
	}
}
