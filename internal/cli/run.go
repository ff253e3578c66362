package cli

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/roach88/strata/internal/engine"
	"github.com/roach88/strata/internal/harness"
	"github.com/roach88/strata/internal/ids"
	"github.com/roach88/strata/internal/ir"
	"github.com/roach88/strata/internal/repo"
	"github.com/roach88/strata/internal/store"
	"github.com/roach88/strata/internal/telemetry"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database string
	Session  string
	Resume   bool
	History  int
	Metrics  bool

	// IDs generates session ids when --session is not set (for testing).
	// If nil, defaults to UUIDv7.
	IDs ids.Generator
}

// RunStep is the outcome of one dispatched action.
type RunStep struct {
	Seq    int64  `json:"seq"`
	Type   string `json:"type"`
	Result string `json:"result"`
	Error  string `json:"error,omitempty"`
}

// RunResult is the outcome of a run.
type RunResult struct {
	Session   string    `json:"session,omitempty"`
	Steps     []RunStep `json:"steps"`
	Applied   int       `json:"applied"`
	Noop      int       `json:"noop"`
	Rejected  int       `json:"rejected"`
	StateHash string    `json:"state_hash"`
	State     ir.Object `json:"state"`
	Branch    string    `json:"branch,omitempty"`
	Index     int       `json:"index,omitempty"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <schema> <actions.jsonl>",
		Short: "Dispatch actions through the reducer engine",
		Long: `Dispatch a file of actions through the reducer engine built from a CUE
schema and print the final state.

The actions file holds one JSON action envelope per line, e.g.
  {"type":"strata/INSERT","coll":"todos","id":"a","doc":{"title":"milk"}}
Blank lines and lines starting with # are skipped.

Every action is journaled with its outcome and resulting state hash, in
memory or in the SQLite database given by --db, so the session can later
be verified with "strata replay". With --history the actions run through
the branching repo reducer instead and nothing is journaled.

Example:
  strata run ./todos.cue ./actions.jsonl
  strata run --db ./strata.db --session demo ./todos.cue ./actions.jsonl
  strata run --history 100 --metrics ./todos.cue ./actions.jsonl`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runActions(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite journal database (in-memory when empty)")
	cmd.Flags().StringVar(&opts.Session, "session", "", "journal session id (generated when empty)")
	cmd.Flags().BoolVar(&opts.Resume, "resume", false, "continue an existing session instead of creating one")
	cmd.Flags().IntVar(&opts.History, "history", 0, "run through the repo reducer with this history bound")
	cmd.Flags().BoolVar(&opts.Metrics, "metrics", false, "print Prometheus metrics after the run")

	return cmd
}

func runActions(opts *RunOptions, schemaPath, actionsPath string, cmd *cobra.Command) error {
	logger := opts.logger()

	if opts.History > 0 && opts.Database != "" {
		return NewExitError(ExitCommandError, "--history cannot be combined with --db: repo runs are not journaled")
	}
	if opts.Resume && opts.Session == "" {
		return NewExitError(ExitCommandError, "--resume requires --session")
	}

	var (
		reg     *prometheus.Registry
		metrics *telemetry.Metrics
	)
	if opts.Metrics {
		reg = prometheus.NewRegistry()
		metrics = telemetry.New(reg)
	}

	logger.Info("loading schema", "path", schemaPath)
	_, eng, err := loadEngine(schemaPath, engine.WithLogger(logger), engine.WithMetrics(metrics))
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load schema", err)
	}

	actions, err := readActionsFile(actionsPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read actions", err)
	}
	logger.Info("actions loaded", "count", len(actions))

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var result *RunResult
	if opts.History > 0 {
		result, err = runRepo(ctx, eng, opts.History, actions, logger)
	} else {
		result, err = runJournal(ctx, opts, eng, actions, logger)
	}
	if err != nil {
		return err
	}

	if opts.Format == "json" {
		if err := writeResponse(cmd.OutOrStdout(), CLIResponse{Status: "ok", Data: result}); err != nil {
			return err
		}
	} else if err := outputRunText(cmd.OutOrStdout(), result); err != nil {
		return err
	}

	if reg != nil {
		w := cmd.OutOrStdout()
		if opts.Format == "json" {
			w = cmd.ErrOrStderr()
		}
		if err := telemetry.WriteText(w, reg); err != nil {
			return WrapExitError(ExitCommandError, "failed to write metrics", err)
		}
	}
	return nil
}

// runJournal dispatches through a Recorder so every action is journaled.
func runJournal(ctx context.Context, opts *RunOptions, eng *engine.Engine, actions []ir.Action, logger *slog.Logger) (*RunResult, error) {
	dsn := opts.Database
	if dsn == "" {
		dsn = store.MemoryPath
	}
	logger.Info("opening journal", "path", dsn)
	st, err := store.Open(dsn)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			logger.Error("error closing database", "error", closeErr)
		}
	}()

	rec, err := openRecorder(ctx, opts, st, eng)
	if err != nil {
		return nil, err
	}
	logger.Info("session ready", "session", rec.Session().ID, "seq", rec.Seq())

	result := &RunResult{Session: rec.Session().ID, Steps: []RunStep{}}
	for _, a := range actions {
		if ctx.Err() != nil {
			logger.Info("interrupted, stopping dispatch", "seq", rec.Seq())
			break
		}

		before, seq := rec.StateHash(), rec.Seq()
		_, reduceErr := rec.Dispatch(ctx, a)
		if rec.Seq() == seq {
			return nil, WrapExitError(ExitCommandError, "failed to journal action", reduceErr)
		}

		step := RunStep{Seq: rec.Seq(), Type: a.ActionType(), Result: store.ResultApplied}
		switch {
		case reduceErr != nil:
			step.Result = store.ResultRejected
			step.Error = harness.ErrorCode(reduceErr)
		case rec.StateHash() == before:
			step.Result = store.ResultNoop
		}
		result.add(step)
	}

	result.StateHash = rec.StateHash()
	result.State = engine.PrintableState(rec.State())
	return result, nil
}

func openRecorder(ctx context.Context, opts *RunOptions, st *store.Store, eng *engine.Engine) (*store.Recorder, error) {
	initial := eng.InitialState()
	schemaHash, err := ir.StateHash(initial)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to hash initial state", err)
	}

	if opts.Resume {
		rec, err := store.ResumeRecorder(ctx, st, opts.Session, eng.Reduce)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, fmt.Sprintf("failed to resume session %s", opts.Session), err)
		}
		if rec.Session().SchemaHash != schemaHash {
			return nil, NewExitError(ExitCommandError,
				fmt.Sprintf("session %s was recorded with a different schema", opts.Session))
		}
		return rec, nil
	}

	id := opts.Session
	if id == "" {
		gen := opts.IDs
		if gen == nil {
			gen = ids.UUIDv7{}
		}
		id = gen.Generate()
	}
	rec, err := store.NewRecorder(ctx, st, store.Session{
		ID:            id,
		SchemaHash:    schemaHash,
		EngineVersion: ir.EngineVersion,
		FormatVersion: ir.FormatVersion,
	}, initial, eng.Reduce)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to create session", err)
	}
	return rec, nil
}

// runRepo dispatches through the branching repo reducer.
func runRepo(ctx context.Context, eng *engine.Engine, history int, actions []ir.Action, logger *slog.Logger) (*RunResult, error) {
	rd, err := eng.RepoReducer(repo.Options{History: history})
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to create repo reducer", err)
	}
	r := rd.Init()

	result := &RunResult{Steps: []RunStep{}}
	for i, a := range actions {
		if ctx.Err() != nil {
			logger.Info("interrupted, stopping dispatch", "seq", i)
			break
		}

		step := RunStep{Seq: int64(i + 1), Type: a.ActionType(), Result: store.ResultApplied}
		next, err := rd.Reduce(r, a)
		switch {
		case err != nil:
			step.Result = store.ResultRejected
			step.Error = harness.ErrorCode(err)
			next = r
		case isRepoNoop(r, next, a):
			step.Result = store.ResultNoop
		}
		r = next
		result.add(step)
	}

	head := repo.Head(r)
	if head == nil {
		head = ir.Object{}
	}
	hash, err := ir.StateHash(head)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to hash final state", err)
	}
	result.StateHash = hash
	result.State = engine.PrintableState(head)
	result.Branch = r.CurrentBranch
	result.Index = r.Current().CurrentIndex
	return result, nil
}

// isRepoNoop reports whether a state action left the tail of the current
// branch unchanged. Repo actions always count as applied.
func isRepoNoop(before, after *repo.Repo, a ir.Action) bool {
	if _, ok := a.(ir.RepoAction); ok {
		return false
	}
	return ir.Equal(branchTail(before), branchTail(after))
}

func branchTail(r *repo.Repo) ir.Object {
	b := r.Current()
	if b == nil || len(b.States) == 0 {
		return ir.Object{}
	}
	return b.States[len(b.States)-1]
}

func (r *RunResult) add(step RunStep) {
	r.Steps = append(r.Steps, step)
	switch step.Result {
	case store.ResultApplied:
		r.Applied++
	case store.ResultNoop:
		r.Noop++
	case store.ResultRejected:
		r.Rejected++
	}
}

// readActionsFile reads one JSON action envelope per line.
func readActionsFile(path string) ([]ir.Action, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("actions file not found: %s", path)}
	}
	defer f.Close()
	return readActions(f)
}

func readActions(r io.Reader) ([]ir.Action, error) {
	var actions []ir.Action
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := bytes.TrimSpace(scanner.Bytes())
		if len(text) == 0 || text[0] == '#' {
			continue
		}
		a, err := ir.UnmarshalAction(text)
		if err != nil {
			return nil, &LoadError{Code: ErrCodeInvalidInput, Message: fmt.Sprintf("line %d: %v", line, err)}
		}
		actions = append(actions, a)
	}
	if err := scanner.Err(); err != nil {
		return nil, &LoadError{Code: ErrCodeInvalidInput, Message: err.Error()}
	}
	return actions, nil
}

func outputRunText(w io.Writer, result *RunResult) error {
	if result.Session != "" {
		fmt.Fprintf(w, "Session: %s\n", result.Session)
	}
	for _, s := range result.Steps {
		if s.Error != "" {
			fmt.Fprintf(w, "  [%d] %s %s %s\n", s.Seq, s.Type, s.Result, s.Error)
			continue
		}
		fmt.Fprintf(w, "  [%d] %s %s\n", s.Seq, s.Type, s.Result)
	}
	if result.Branch != "" {
		fmt.Fprintf(w, "Branch: %s @ %d\n", result.Branch, result.Index)
	}

	state, err := ir.MarshalCanonical(result.State)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "✓ Dispatched %d action(s): %d applied, %d noop, %d rejected\n",
		len(result.Steps), result.Applied, result.Noop, result.Rejected)
	fmt.Fprintf(w, "State: %s\n", state)
	return nil
}
