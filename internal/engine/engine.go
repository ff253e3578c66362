package engine

import (
	"fmt"
	"log/slog"

	"github.com/roach88/strata/internal/compiler"
	"github.com/roach88/strata/internal/ir"
	"github.com/roach88/strata/internal/repo"
	"github.com/roach88/strata/internal/telemetry"
)

// ReduceFunc is the pure reducer signature accepted by store wiring.
type ReduceFunc func(state ir.Object, a ir.Action) (ir.Object, error)

// Engine reduces actions against a compiled schema.
//
// Thread-safety model:
//   - Reduce(): safe from any goroutine (pure; reads only immutable data)
//   - Actions(): the factory's listener registry is mutex-guarded
//
// INVARIANTS:
//   - The compiled schema never changes after construction
//   - The input state of Reduce is never modified
type Engine struct {
	schema  *compiler.Schema
	initial ir.Object
	factory *Factory
	logger  *slog.Logger
	metrics *telemetry.Metrics
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithMetrics records reduce activity on m.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// New compiles s and creates an Engine. Compile errors are returned as
// *compiler.CompileError.
func New(s ir.Schema, opts ...Option) (*Engine, error) {
	compiled, err := compiler.Compile(s)
	if err != nil {
		return nil, err
	}
	return NewFromCompiled(compiled, opts...)
}

// NewFromCompiled creates an Engine over an already compiled schema. It
// runs the initial full refresh, so a failing recipe surfaces here.
func NewFromCompiled(s *compiler.Schema, opts ...Option) (*Engine, error) {
	e := &Engine{
		schema: s,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.factory = newFactory(s)

	r := e.newReduction(s.InitState)
	r.refreshAll = true
	if err := r.updateDependents(); err != nil {
		return nil, fmt.Errorf("initial refresh: %w", err)
	}
	e.initial = r.txn.Commit()
	return e, nil
}

// Schema returns the compiled schema.
func (e *Engine) Schema() *compiler.Schema {
	return e.schema
}

// InitialState returns the compiled initial state after a full refresh.
func (e *Engine) InitialState() ir.Object {
	return e.initial
}

// Actions returns the action factory.
func (e *Engine) Actions() *Factory {
	return e.factory
}

// Reducer returns Reduce as a plain function.
func (e *Engine) Reducer() (ReduceFunc, error) {
	return e.Reduce, nil
}

// RepoReducer wraps the engine in a branchable, bounded-history repo
// reducer.
func (e *Engine) RepoReducer(opts repo.Options, ropts ...repo.Option) (*repo.Reducer, error) {
	ropts = append([]repo.Option{repo.WithLogger(e.logger), repo.WithMetrics(e.metrics)}, ropts...)
	return repo.NewReducer(e, opts, ropts...), nil
}

// Reduce applies a to state and returns the new state.
//
// A nil state is replaced by the initial state; a nil or Init action then
// returns it as is. On error the input state is returned with the error and
// nothing is partially applied.
func (e *Engine) Reduce(state ir.Object, a ir.Action) (ir.Object, error) {
	if state == nil {
		state = e.initial
		if _, isInit := a.(ir.Init); isInit || a == nil {
			return state, nil
		}
	}
	if a == nil {
		err := newError(ErrCodeMalformedAction, "", "nil action")
		e.metrics.RecordAction("", telemetry.ResultRejected)
		return state, err
	}

	r := e.newReduction(state)
	err := r.apply(a)
	if err == nil {
		err = r.updateDependents()
	}
	if err != nil {
		e.logger.Warn("action rejected",
			"type", a.ActionType(),
			"error", err,
		)
		e.metrics.RecordAction(a.ActionType(), telemetry.ResultRejected)
		return state, err
	}

	if !r.txn.Modified() {
		e.logger.Debug("action reduced", "type", a.ActionType(), "result", telemetry.ResultNoop)
		e.metrics.RecordAction(a.ActionType(), telemetry.ResultNoop)
		return state, nil
	}

	e.logger.Debug("action reduced",
		"type", a.ActionType(),
		"result", telemetry.ResultApplied,
		"recomputed", r.recomputed,
	)
	e.metrics.RecordAction(a.ActionType(), telemetry.ResultApplied)
	return r.txn.Commit(), nil
}
