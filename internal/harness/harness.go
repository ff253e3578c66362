package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/strata/internal/compiler"
	"github.com/roach88/strata/internal/engine"
	"github.com/roach88/strata/internal/ir"
	"github.com/roach88/strata/internal/recipes"
	"github.com/roach88/strata/internal/repo"
	"github.com/roach88/strata/internal/store"
)

// Option configures a scenario run.
type Option func(*Harness)

// WithRegistry sets the recipe registry used to load the schema.
func WithRegistry(reg *recipes.Registry) Option {
	return func(h *Harness) {
		h.registry = reg
	}
}

// WithLogger sets the logger. Runs are silent by default.
func WithLogger(l *slog.Logger) Option {
	return func(h *Harness) {
		h.logger = l
	}
}

// Harness executes one scenario.
type Harness struct {
	registry *recipes.Registry
	logger   *slog.Logger
	engine   *engine.Engine
	runner   runner
}

// runner hides the difference between journal mode and repo mode.
type runner interface {
	// dispatch returns the step outcome. A non-nil error with result
	// rejected is the reducer's rejection; any other error is fatal.
	dispatch(ctx context.Context, a ir.Action) (seq int64, result string, err error)
	state() ir.Object
	finish(ctx context.Context, res *Result) error
	close() error
}

// Run executes a scenario and returns the result.
//
// Execution flow:
//  1. Load and compile the CUE schema
//  2. Open an in-memory journal (or a repo when history is set)
//  3. Execute setup steps, failing on any rejection
//  4. Execute flow steps, checking expect clauses
//  5. Replay the journal and evaluate assertions
func Run(scenario *Scenario, opts ...Option) (*Result, error) {
	return RunContext(context.Background(), scenario, opts...)
}

// RunContext is Run with a caller-supplied context.
func RunContext(ctx context.Context, scenario *Scenario, opts ...Option) (*Result, error) {
	h := &Harness{
		registry: recipes.NewRegistry(),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(h)
	}

	schema, err := compiler.LoadSchemaFile(scenario.Schema, h.registry)
	if err != nil {
		return nil, fmt.Errorf("failed to load schema: %w", err)
	}
	h.engine, err = engine.New(schema, engine.WithLogger(h.logger))
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}

	if scenario.History > 0 {
		h.runner, err = h.newRepoRunner(scenario.History)
	} else {
		h.runner, err = h.newJournalRunner(ctx, scenario.Name)
	}
	if err != nil {
		return nil, err
	}
	defer h.runner.close()

	result := NewResult()
	if err := h.executeSetup(ctx, scenario.Setup, result); err != nil {
		return nil, fmt.Errorf("failed to execute setup: %w", err)
	}
	if err := h.executeFlow(ctx, scenario.Flow, result); err != nil {
		return nil, fmt.Errorf("failed to execute flow: %w", err)
	}
	if err := h.runner.finish(ctx, result); err != nil {
		return nil, err
	}

	final := h.runner.state()
	result.State = engine.PrintableState(final)

	actx := &AssertionContext{
		Engine: h.engine,
		State:  final,
		Branch: result.Branch,
		Index:  result.Index,
	}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}
	return result, nil
}

func (h *Harness) executeSetup(ctx context.Context, setup []Step, result *Result) error {
	for i, step := range setup {
		ev, err := h.execute(ctx, step)
		if err != nil {
			return fmt.Errorf("setup step %d: %w", i, err)
		}
		result.AddTrace(ev)
		if ev.Result == ResultRejected {
			return fmt.Errorf("setup step %d: %s rejected: %s", i, step.Action, ev.Error)
		}
	}
	return nil
}

// executeFlow runs the flow. A step without an expect clause must not be
// rejected.
func (h *Harness) executeFlow(ctx context.Context, flow []Step, result *Result) error {
	for i, step := range flow {
		ev, err := h.execute(ctx, step)
		if err != nil {
			return fmt.Errorf("flow step %d: %w", i, err)
		}
		result.AddTrace(ev)

		switch {
		case step.Expect == nil:
			if ev.Result == ResultRejected {
				result.AddError(fmt.Sprintf("flow[%d] %s: unexpectedly rejected: %s", i, step.Action, ev.Error))
			}
		case step.Expect.Result != ev.Result:
			result.AddError(fmt.Sprintf("flow[%d] %s: expected %s, got %s %s",
				i, step.Action, step.Expect.Result, ev.Result, ev.Error))
		case step.Expect.Error != "" && step.Expect.Error != ev.Error:
			result.AddError(fmt.Sprintf("flow[%d] %s: expected error %s, got %s",
				i, step.Action, step.Expect.Error, ev.Error))
		}

		h.logger.Debug("flow step completed",
			"step", i,
			"action", step.Action,
			"result", ev.Result,
		)
	}
	return nil
}

func (h *Harness) execute(ctx context.Context, step Step) (TraceEvent, error) {
	env, err := step.envelope()
	if err != nil {
		return TraceEvent{}, fmt.Errorf("invalid args: %w", err)
	}
	a, err := ir.ActionFromEnvelope(env)
	if err != nil {
		return TraceEvent{}, fmt.Errorf("invalid action: %w", err)
	}

	seq, res, dispatchErr := h.runner.dispatch(ctx, a)
	if dispatchErr != nil && res != ResultRejected {
		return TraceEvent{}, dispatchErr
	}

	args, err := ir.ActionEnvelope(a)
	if err != nil {
		return TraceEvent{}, err
	}
	delete(args, "type")

	ev := TraceEvent{Seq: seq, Action: a.ActionType(), Args: args, Result: res}
	if dispatchErr != nil {
		ev.Error = ErrorCode(dispatchErr)
	}
	return ev, nil
}

// ErrorCode returns the stable code of a runtime or repo error, or
// "ERROR" for anything else.
func ErrorCode(err error) string {
	var rt *engine.RuntimeError
	if errors.As(err, &rt) {
		return string(rt.Code)
	}
	var re *repo.RepoError
	if errors.As(err, &re) {
		return string(re.Code)
	}
	return "ERROR"
}

type journalRunner struct {
	store   *store.Store
	rec     *store.Recorder
	initial ir.Object
	reduce  store.ReduceFunc
}

func (h *Harness) newJournalRunner(ctx context.Context, session string) (*journalRunner, error) {
	st, err := store.Open(store.MemoryPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	initial := h.engine.InitialState()
	schemaHash, err := ir.StateHash(initial)
	if err != nil {
		st.Close()
		return nil, err
	}
	rec, err := store.NewRecorder(ctx, st, store.Session{
		ID:            session,
		SchemaHash:    schemaHash,
		EngineVersion: ir.EngineVersion,
		FormatVersion: ir.FormatVersion,
	}, initial, h.engine.Reduce)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to start journal: %w", err)
	}
	return &journalRunner{store: st, rec: rec, initial: initial, reduce: h.engine.Reduce}, nil
}

func (r *journalRunner) dispatch(ctx context.Context, a ir.Action) (int64, string, error) {
	_, reduceErr := r.rec.Dispatch(ctx, a)
	last, err := r.store.LastEntry(ctx, r.rec.Session().ID)
	if err != nil {
		return 0, "", errors.Join(reduceErr, err)
	}
	if last.Seq != r.rec.Seq() {
		// The entry was never written: reduceErr carries the storage error.
		return 0, "", reduceErr
	}
	return last.Seq, last.Result, reduceErr
}

func (r *journalRunner) state() ir.Object {
	return r.rec.State()
}

// finish replays the journal; every divergence fails the scenario.
func (r *journalRunner) finish(ctx context.Context, res *Result) error {
	replay, err := r.store.Replay(ctx, r.rec.Session().ID, r.initial, r.reduce)
	if err != nil {
		return fmt.Errorf("failed to replay journal: %w", err)
	}
	for _, m := range replay.Mismatches {
		res.AddError(fmt.Sprintf("replay seq %d %s: %s", m.Seq, m.Type, m.Reason))
	}
	return nil
}

func (r *journalRunner) close() error {
	return r.store.Close()
}

type repoRunner struct {
	reducer *repo.Reducer
	repo    *repo.Repo
	seq     int64
}

func (h *Harness) newRepoRunner(history int) (*repoRunner, error) {
	rd, err := h.engine.RepoReducer(repo.Options{History: history}, repo.WithLogger(h.logger))
	if err != nil {
		return nil, err
	}
	return &repoRunner{reducer: rd, repo: rd.Init()}, nil
}

func (r *repoRunner) dispatch(_ context.Context, a ir.Action) (int64, string, error) {
	r.seq++
	next, err := r.reducer.Reduce(r.repo, a)
	if err != nil {
		return r.seq, ResultRejected, err
	}

	result := ResultApplied
	if _, isRepo := a.(ir.RepoAction); !isRepo {
		before, err := ir.StateHash(tail(r.repo))
		if err != nil {
			return r.seq, "", err
		}
		after, err := ir.StateHash(tail(next))
		if err != nil {
			return r.seq, "", err
		}
		if before == after {
			result = ResultNoop
		}
	}
	r.repo = next
	return r.seq, result, nil
}

// tail is the state a dispatch on the current branch reduces from.
func tail(r *repo.Repo) ir.Object {
	b := r.Current()
	if b == nil || len(b.States) == 0 {
		return ir.Object{}
	}
	return b.States[len(b.States)-1]
}

func (r *repoRunner) state() ir.Object {
	if head := repo.Head(r.repo); head != nil {
		return head
	}
	return ir.Object{}
}

func (r *repoRunner) finish(_ context.Context, res *Result) error {
	res.Branch = r.repo.CurrentBranch
	res.Index = r.repo.Current().CurrentIndex
	return nil
}

func (r *repoRunner) close() error {
	return nil
}
