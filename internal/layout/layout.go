package layout

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/hylla/taskdeck/internal/domain"
)

// ErrInvalidCanvas reports a non-positive canvas dimension.
var ErrInvalidCanvas = errors.New("invalid canvas size")

// Node is one positioned task bubble.
type Node struct {
	Task   domain.Task
	X      float64
	Y      float64
	Radius float64
}

// Contains reports whether the point lies inside the node's circle.
func (n Node) Contains(x, y float64) bool {
	dx, dy := x-n.X, y-n.Y
	return dx*dx+dy*dy <= n.Radius*n.Radius
}

// Layout positions tasks on a width by height canvas and returns the frozen
// result. It runs the simulation to completion on the calling goroutine.
func Layout(ctx context.Context, tasks []domain.Task, width, height float64, opts Options) ([]Node, error) {
	if len(tasks) == 0 {
		return []Node{}, nil
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: %vx%v", ErrInvalidCanvas, width, height)
	}
	opts = opts.withDefaults()
	ordered := sortedTasks(tasks)
	if len(ordered) == 1 {
		return []Node{centered(ordered[0], width, height, opts.Now)}, nil
	}
	sim := NewSimulation(ordered, width, height, opts)
	if err := Run(ctx, sim, opts.Budget, opts.MinMotion, nil); err != nil {
		return nil, err
	}
	return sim.Nodes(), nil
}

func centered(task domain.Task, width, height float64, now time.Time) Node {
	r := domain.NodeSize(task, now)
	return Node{
		Task:   task,
		X:      clampAxis(width/2, r, width),
		Y:      clampAxis(height/2, r, height),
		Radius: r,
	}
}

// sortedTasks orders tasks by id so a task set always seeds the same way.
func sortedTasks(tasks []domain.Task) []domain.Task {
	out := slices.Clone(tasks)
	slices.SortStableFunc(out, func(a, b domain.Task) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		default:
			return 0
		}
	})
	return out
}

// Runner advances a simulation against a wall-clock budget. Each Step call
// runs one tick, so callers can yield between ticks.
type Runner struct {
	sim       *Simulation
	deadline  time.Time
	minMotion float64
}

// NewRunner starts the budget clock for sim at now.
func NewRunner(sim *Simulation, budget time.Duration, minMotion float64, now time.Time) *Runner {
	return &Runner{sim: sim, deadline: now.Add(budget), minMotion: minMotion}
}

// Step advances one tick and freezes the simulation once it settles or the
// budget has elapsed. It reports whether the simulation is frozen.
func (r *Runner) Step(now time.Time) bool {
	if r.sim.Frozen() {
		return true
	}
	if !now.Before(r.deadline) || r.sim.Settled(r.minMotion) {
		r.sim.Freeze()
		return true
	}
	r.sim.Advance(1)
	if r.sim.Settled(r.minMotion) {
		r.sim.Freeze()
		return true
	}
	return false
}

// Simulation returns the driven simulation.
func (r *Runner) Simulation() *Simulation { return r.sim }

// Run drives sim until it freezes, calling onTick after each step. A
// cancelled context freezes the simulation where it stands and returns the
// context error.
func Run(ctx context.Context, sim *Simulation, budget time.Duration, minMotion float64, onTick func(*Simulation)) error {
	runner := NewRunner(sim, budget, minMotion, time.Now())
	for {
		if err := ctx.Err(); err != nil {
			sim.Freeze()
			return err
		}
		done := runner.Step(time.Now())
		if onTick != nil {
			onTick(sim)
		}
		if done {
			return nil
		}
	}
}

// NodeAt returns the topmost node containing the point. It never mutates
// the nodes.
func NodeAt(nodes []Node, x, y float64) (Node, bool) {
	for i := len(nodes) - 1; i >= 0; i-- {
		if nodes[i].Contains(x, y) {
			return nodes[i], true
		}
	}
	return Node{}, false
}
