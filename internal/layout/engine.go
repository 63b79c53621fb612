package layout

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hylla/taskdeck/internal/domain"
)

// Placement is the persisted position of one task in a frozen layout.
type Placement struct {
	TaskID domain.ID `json:"task_id"`
	X      float64   `json:"x"`
	Y      float64   `json:"y"`
	Radius float64   `json:"radius"`
}

// Store persists frozen layouts between runs.
type Store interface {
	LoadLayout(ctx context.Context, key string) ([]Placement, bool, error)
	SaveLayout(ctx context.Context, key string, width, height float64, placements []Placement) error
}

// Logger receives store failures that the engine recovers from.
type Logger interface {
	Warn(msg any, keyvals ...any)
}

// Engine caches frozen layouts per task set and canvas size.
type Engine struct {
	mu    sync.Mutex
	opts  Options
	store Store
	log   Logger
	now   func() time.Time
	cache map[string][]Placement
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithStore persists frozen layouts through store.
func WithStore(store Store) EngineOption {
	return func(e *Engine) {
		e.store = store
	}
}

// WithLogger reports store load failures to log.
func WithLogger(log Logger) EngineOption {
	return func(e *Engine) {
		e.log = log
	}
}

// WithClock overrides the clock used for sizing and budgets.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEngine constructs a layout engine with the given simulation options.
func NewEngine(opts Options, options ...EngineOption) *Engine {
	e := &Engine{
		opts:  opts,
		now:   time.Now,
		cache: map[string][]Placement{},
	}
	for _, opt := range options {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Key identifies a layout by task ids, their sizes, and the canvas.
func (e *Engine) Key(tasks []domain.Task, width, height float64) string {
	return layoutKey(sortedTasks(tasks), width, height, e.now())
}

func layoutKey(ordered []domain.Task, width, height float64, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%gx%g", width, height)
	for _, task := range ordered {
		b.WriteByte('|')
		b.WriteString(string(task.ID))
		b.WriteByte(':')
		b.WriteString(strconv.FormatFloat(domain.NodeSize(task, now), 'f', 2, 64))
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// Cached returns a previously frozen layout without running anything.
func (e *Engine) Cached(ctx context.Context, tasks []domain.Task, width, height float64) ([]Node, bool) {
	if len(tasks) == 0 {
		return []Node{}, true
	}
	ordered := sortedTasks(tasks)
	key := layoutKey(ordered, width, height, e.now())

	e.mu.Lock()
	placements, ok := e.cache[key]
	e.mu.Unlock()
	if !ok && e.store != nil {
		stored, found, err := e.store.LoadLayout(ctx, key)
		if err != nil && e.log != nil {
			e.log.Warn("layout store load failed", "key", key, "tasks", len(ordered), "err", err)
		}
		if err == nil && found {
			placements, ok = stored, true
			e.mu.Lock()
			e.cache[key] = stored
			e.mu.Unlock()
		}
	}
	if !ok {
		return nil, false
	}
	nodes, complete := attach(ordered, placements)
	return nodes, complete
}

// Layout returns the cached layout for the task set or runs a new one.
func (e *Engine) Layout(ctx context.Context, tasks []domain.Task, width, height float64) ([]Node, error) {
	if nodes, ok := e.Cached(ctx, tasks, width, height); ok {
		return nodes, nil
	}
	opts := e.opts
	opts.Now = e.now()
	nodes, err := Layout(ctx, tasks, width, height, opts)
	if err != nil {
		return nil, err
	}
	if err := e.Remember(ctx, tasks, width, height, nodes); err != nil {
		return nil, err
	}
	return nodes, nil
}

// Start prepares a stepwise run for callers that drive ticks themselves.
// It returns nil when the task set needs no simulation.
func (e *Engine) Start(tasks []domain.Task, width, height float64) (*Runner, []Node) {
	opts := e.opts.withDefaults()
	opts.Now = e.now()
	ordered := sortedTasks(tasks)
	switch {
	case len(ordered) == 0, width <= 0, height <= 0:
		return nil, []Node{}
	case len(ordered) == 1:
		return nil, []Node{centered(ordered[0], width, height, opts.Now)}
	}
	sim := NewSimulation(ordered, width, height, opts)
	return NewRunner(sim, opts.Budget, opts.MinMotion, e.now()), nil
}

// Remember stores a frozen layout for later replay.
func (e *Engine) Remember(ctx context.Context, tasks []domain.Task, width, height float64, nodes []Node) error {
	if len(tasks) == 0 {
		return nil
	}
	key := e.Key(tasks, width, height)
	placements := make([]Placement, len(nodes))
	for i, n := range nodes {
		placements[i] = Placement{TaskID: n.Task.ID, X: n.X, Y: n.Y, Radius: n.Radius}
	}
	e.mu.Lock()
	e.cache[key] = placements
	e.mu.Unlock()
	if e.store == nil {
		return nil
	}
	if err := e.store.SaveLayout(ctx, key, width, height, placements); err != nil {
		return fmt.Errorf("save layout: %w", err)
	}
	return nil
}

// Forget drops every cached layout.
func (e *Engine) Forget() {
	e.mu.Lock()
	defer e.mu.Unlock()
	clear(e.cache)
}

// attach joins placements back onto current task values.
func attach(ordered []domain.Task, placements []Placement) ([]Node, bool) {
	byID := make(map[domain.ID]domain.Task, len(ordered))
	for _, task := range ordered {
		byID[task.ID] = task
	}
	nodes := make([]Node, 0, len(placements))
	for _, p := range placements {
		task, ok := byID[p.TaskID]
		if !ok {
			return nil, false
		}
		nodes = append(nodes, Node{Task: task, X: p.X, Y: p.Y, Radius: p.Radius})
	}
	return nodes, len(nodes) == len(ordered)
}
