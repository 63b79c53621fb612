// Package query holds the observable state of one fetch or mutation.
package query

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrSkipped marks a fetch that could not run yet, for example because no
// credential is available. It returns the query to Idle instead of Error.
var ErrSkipped = errors.New("query skipped")

// State is the lifecycle phase of a query.
type State int

const (
	Idle State = iota
	Loading
	Success
	Error
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Loading:
		return "loading"
	case Success:
		return "success"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// Snapshot is a consistent read of a query.
type Snapshot[T any] struct {
	State     State
	Data      T
	HasData   bool
	Err       error
	UpdatedAt time.Time
}

// Loading reports whether a fetch is in flight.
func (s Snapshot[T]) Loading() bool { return s.State == Loading }

// Generation identifies one Begin call.
type Generation uint64

// Query tracks the loading, error, and data triple for a single list or
// record. Only the most recently started fetch may resolve it.
type Query[T any] struct {
	mu      sync.Mutex
	state   State
	data    T
	hasData bool
	err     error
	updated time.Time
	gen     Generation
	now     func() time.Time
}

// New constructs an idle query.
func New[T any]() *Query[T] {
	return &Query[T]{now: time.Now}
}

// Begin marks the query as loading and returns the generation that must be
// passed to Resolve.
func (q *Query[T]) Begin() Generation {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.gen++
	q.state = Loading
	q.err = nil
	return q.gen
}

// Resolve applies a fetch result. Results from superseded generations are
// dropped and Resolve reports false. A failed fetch keeps the previous data.
func (q *Query[T]) Resolve(gen Generation, data T, err error) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if gen != q.gen {
		return false
	}
	switch {
	case errors.Is(err, ErrSkipped):
		q.state = Idle
		q.err = nil
	case err != nil:
		q.state = Error
		q.err = err
	default:
		q.state = Success
		q.err = nil
		q.data = data
		q.hasData = true
		q.updated = q.now()
	}
	return true
}

// Snapshot returns the current state.
func (q *Query[T]) Snapshot() Snapshot[T] {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Snapshot[T]{
		State:     q.state,
		Data:      q.data,
		HasData:   q.hasData,
		Err:       q.err,
		UpdatedAt: q.updated,
	}
}

// Fetch runs fn as a new generation and applies its result. No retry is
// attempted.
func (q *Query[T]) Fetch(ctx context.Context, fn func(context.Context) (T, error)) (Snapshot[T], error) {
	gen := q.Begin()
	data, err := fn(ctx)
	q.Resolve(gen, data, err)
	if errors.Is(err, ErrSkipped) {
		err = nil
	}
	return q.Snapshot(), err
}

// Refetch is the manual resynchronization trigger. It is Fetch by another
// name so call sites read as intent.
func (q *Query[T]) Refetch(ctx context.Context, fn func(context.Context) (T, error)) (Snapshot[T], error) {
	return q.Fetch(ctx, fn)
}

// Mutation tracks one write operation.
type Mutation[In, Out any] struct {
	mu      sync.Mutex
	loading bool
	result  Out
	err     error
}

// NewMutation constructs an idle mutation.
func NewMutation[In, Out any]() *Mutation[In, Out] {
	return &Mutation[In, Out]{}
}

// Do runs fn with in and records the outcome.
func (m *Mutation[In, Out]) Do(ctx context.Context, in In, fn func(context.Context, In) (Out, error)) (Out, error) {
	m.mu.Lock()
	m.loading = true
	m.err = nil
	m.mu.Unlock()

	out, err := fn(ctx, in)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.loading = false
	m.err = err
	if err == nil {
		m.result = out
	} else {
		var zero Out
		m.result = zero
	}
	return out, err
}

// State returns the loading flag, last result, and last error.
func (m *Mutation[In, Out]) State() (bool, Out, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loading, m.result, m.err
}
