package layout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/hylla/taskdeck/internal/domain"
)

type fakeStore struct {
	saved map[string][]Placement
	loads int
}

func (s *fakeStore) LoadLayout(_ context.Context, key string) ([]Placement, bool, error) {
	s.loads++
	p, ok := s.saved[key]
	return p, ok, nil
}

func (s *fakeStore) SaveLayout(_ context.Context, key string, _, _ float64, placements []Placement) error {
	if s.saved == nil {
		s.saved = map[string][]Placement{}
	}
	s.saved[key] = placements
	return nil
}

// brokenStore fails every load.
type brokenStore struct{ fakeStore }

func (s *brokenStore) LoadLayout(context.Context, string) ([]Placement, bool, error) {
	s.loads++
	return nil, false, errors.New("disk I/O error")
}

type warnLog struct {
	lines []string
}

func (l *warnLog) Warn(msg any, keyvals ...any) {
	l.lines = append(l.lines, fmt.Sprint(append([]any{msg}, keyvals...)...))
}

func newTestEngine(store Store) *Engine {
	opts := testOptions()
	opts.Budget = 200 * time.Millisecond
	return NewEngine(opts, WithStore(store), WithClock(func() time.Time { return layoutNow }))
}

func TestEngineReplaysCachedLayout(t *testing.T) {
	store := &fakeStore{}
	engine := newTestEngine(store)
	tasks := sampleTasks(6)

	first, err := engine.Layout(context.Background(), tasks, 800, 600)
	if err != nil {
		t.Fatalf("Layout() error = %v", err)
	}
	if len(store.saved) != 1 {
		t.Fatalf("expected persisted layout, got %d", len(store.saved))
	}
	second, err := engine.Layout(context.Background(), tasks, 800, 600)
	if err != nil {
		t.Fatalf("Layout() error = %v", err)
	}
	for i := range first {
		if first[i].X != second[i].X || first[i].Y != second[i].Y {
			t.Fatalf("cached layout moved at %d", i)
		}
	}
}

func TestEngineLoadsFromStore(t *testing.T) {
	store := &fakeStore{}
	tasks := sampleTasks(4)
	first, err := newTestEngine(store).Layout(context.Background(), tasks, 800, 600)
	if err != nil {
		t.Fatalf("Layout() error = %v", err)
	}

	fresh := newTestEngine(store)
	nodes, ok := fresh.Cached(context.Background(), tasks, 800, 600)
	if !ok {
		t.Fatal("expected layout loaded from store")
	}
	if nodes[0].X != first[0].X || nodes[0].Task.Title != first[0].Task.Title {
		t.Fatalf("unexpected restored node %#v", nodes[0])
	}
}

func TestEngineKeyChangesWithTaskSetAndCanvas(t *testing.T) {
	engine := newTestEngine(nil)
	tasks := sampleTasks(3)
	base := engine.Key(tasks, 800, 600)
	if engine.Key(tasks, 800, 601) == base {
		t.Fatal("expected canvas size to change key")
	}
	if engine.Key(tasks[:2], 800, 600) == base {
		t.Fatal("expected task set to change key")
	}
	reordered := []domain.Task{tasks[2], tasks[0], tasks[1]}
	if engine.Key(reordered, 800, 600) != base {
		t.Fatal("expected order independent key")
	}
	edited := append([]domain.Task(nil), tasks...)
	edited[0].Title = "renamed"
	if engine.Key(edited, 800, 600) != base {
		t.Fatal("expected title edits to keep the key")
	}
}

func TestEngineStartRunsStepwise(t *testing.T) {
	engine := newTestEngine(nil)
	runner, immediate := engine.Start(sampleTasks(5), 800, 600)
	if runner == nil || immediate != nil {
		t.Fatal("expected runner for multi-node layout")
	}
	deadline := time.Now().Add(5 * time.Second)
	for !runner.Step(time.Now()) {
		if time.Now().After(deadline) {
			t.Fatal("runner did not freeze")
		}
	}
	assertNoOverlap(t, runner.Simulation().Nodes())

	runner, immediate = engine.Start(sampleTasks(1), 800, 600)
	if runner != nil || len(immediate) != 1 {
		t.Fatal("expected immediate single node")
	}
	runner, immediate = engine.Start(nil, 800, 600)
	if runner != nil || len(immediate) != 0 {
		t.Fatal("expected immediate empty layout")
	}
}

func TestEngineWarnsOnStoreLoadFailure(t *testing.T) {
	store := &brokenStore{}
	log := &warnLog{}
	engine := NewEngine(testOptions(), WithStore(store), WithLogger(log), WithClock(func() time.Time { return layoutNow }))
	tasks := sampleTasks(3)

	if _, ok := engine.Cached(context.Background(), tasks, 800, 600); ok {
		t.Fatal("Cached() ok = true, want miss on store failure")
	}
	if store.loads != 1 {
		t.Fatalf("loads = %d, want 1", store.loads)
	}
	if len(log.lines) != 1 || !strings.Contains(log.lines[0], "disk I/O error") {
		t.Fatalf("warnings = %q", log.lines)
	}

	nodes, err := engine.Layout(context.Background(), tasks, 800, 600)
	if err != nil {
		t.Fatalf("Layout() error = %v", err)
	}
	if len(nodes) != len(tasks) {
		t.Fatalf("nodes = %d, want %d", len(nodes), len(tasks))
	}
}
