package docsync

import (
	"context"
	"sync"

	"github.com/roach88/strata/internal/engine"
	"github.com/roach88/strata/internal/ir"
)

// Dispatcher applies actions to a held state. *store.Recorder implements
// it, as does Local.
type Dispatcher interface {
	Dispatch(ctx context.Context, a ir.Action) (ir.Object, error)
	State() ir.Object
}

// Local holds engine state in memory.
//
// Thread-safety: Local serializes Dispatch and State with a mutex so one
// holder can be shared by several adapters.
type Local struct {
	mu     sync.Mutex
	reduce engine.ReduceFunc
	state  ir.Object
}

// NewLocal creates a holder starting at the engine's initial state.
func NewLocal(e *engine.Engine) *Local {
	return &Local{reduce: e.Reduce, state: e.InitialState()}
}

// Dispatch reduces a against the held state. A rejected action leaves the
// state unchanged.
func (l *Local) Dispatch(ctx context.Context, a ir.Action) (ir.Object, error) {
	if err := ctx.Err(); err != nil {
		return l.State(), err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	next, err := l.reduce(l.state, a)
	if err != nil {
		return l.state, err
	}
	l.state = next
	return next, nil
}

// State returns the held state.
func (l *Local) State() ir.Object {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}
