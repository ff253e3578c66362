package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/strata/internal/engine"
	"github.com/roach88/strata/internal/ir"
	"github.com/roach88/strata/internal/store"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Database string
	Session  string // optional - specific session only
}

// ReplaySessionResult holds the replay result for a single session.
type ReplaySessionResult struct {
	Session       string           `json:"session"`
	Entries       int              `json:"entries"`
	SchemaMatches bool             `json:"schema_matches"`
	Deterministic bool             `json:"deterministic"`
	FinalHash     string           `json:"final_hash,omitempty"`
	Mismatches    []store.Mismatch `json:"mismatches,omitempty"`
}

// ReplayResult holds the overall replay result.
type ReplayResult struct {
	Sessions         []ReplaySessionResult `json:"sessions"`
	TotalSessions    int                   `json:"total_sessions"`
	AllDeterministic bool                  `json:"all_deterministic"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay <schema>",
		Short: "Replay journaled sessions and verify determinism",
		Long: `Re-execute every journaled session against the reducer engine built from
the schema and compare each resulting state hash and outcome with what was
recorded. A session recorded with a different schema is reported as
diverged without being replayed.

Exit codes:
  0 - All sessions replay deterministically
  1 - Divergence detected
  2 - Command error (database not found, invalid schema, etc.)

Examples:
  strata replay --db ./strata.db ./todos.cue
  strata replay --db ./strata.db --session demo ./todos.cue
  strata replay --db ./strata.db --format json ./todos.cue`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite journal database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Session, "session", "", "replay specific session only")

	return cmd
}

func runReplay(opts *ReplayOptions, schemaPath string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	logger := opts.logger()

	_, eng, err := loadEngine(schemaPath, engine.WithLogger(logger))
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load schema", err)
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	var sessions []store.Session
	if opts.Session != "" {
		sess, err := st.ReadSession(ctx, opts.Session)
		if errors.Is(err, store.ErrNotFound) {
			return NewExitError(ExitCommandError, fmt.Sprintf("session not found: %s", opts.Session))
		}
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read session", err)
		}
		sessions = []store.Session{sess}
	} else {
		sessions, err = st.ListSessions(ctx)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to list sessions", err)
		}
	}

	result := ReplayResult{
		Sessions:         make([]ReplaySessionResult, 0, len(sessions)),
		TotalSessions:    len(sessions),
		AllDeterministic: true,
	}
	for _, sess := range sessions {
		sr, err := replaySession(ctx, st, eng, sess)
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("failed to replay session %s", sess.ID), err)
		}
		logger.Debug("session replayed", "session", sess.ID, "entries", sr.Entries, "deterministic", sr.Deterministic)
		result.Sessions = append(result.Sessions, sr)
		if !sr.Deterministic {
			result.AllDeterministic = false
		}
	}

	if opts.Format == "json" {
		return outputReplayJSON(cmd, result)
	}
	return outputReplayText(cmd, result, opts.Verbose)
}

// replaySession replays one session from the engine's initial state.
func replaySession(ctx context.Context, st *store.Store, eng *engine.Engine, sess store.Session) (ReplaySessionResult, error) {
	initial := eng.InitialState()
	schemaHash, err := ir.StateHash(initial)
	if err != nil {
		return ReplaySessionResult{}, err
	}

	sr := ReplaySessionResult{Session: sess.ID, SchemaMatches: sess.SchemaHash == schemaHash}
	if !sr.SchemaMatches {
		return sr, nil
	}

	res, err := st.Replay(ctx, sess.ID, initial, eng.Reduce)
	if err != nil {
		return ReplaySessionResult{}, err
	}
	sr.Entries = res.Entries
	sr.FinalHash = res.FinalHash
	sr.Mismatches = res.Mismatches
	sr.Deterministic = res.OK()
	return sr, nil
}

// outputReplayJSON outputs the replay result as JSON.
func outputReplayJSON(cmd *cobra.Command, result ReplayResult) error {
	response := CLIResponse{Status: "ok", Data: result}
	if !result.AllDeterministic {
		response.Status = "error"
		response.Error = &CLIError{
			Code:    "REPLAY_DIVERGED",
			Message: "determinism verification failed",
		}
	}

	if err := writeResponse(cmd.OutOrStdout(), response); err != nil {
		return err
	}
	if !result.AllDeterministic {
		return NewExitError(ExitFailure, "determinism verification failed")
	}
	return nil
}

// outputReplayText outputs the replay result as text.
func outputReplayText(cmd *cobra.Command, result ReplayResult, verbose bool) error {
	w := cmd.OutOrStdout()

	if result.TotalSessions == 0 {
		fmt.Fprintln(w, "No sessions found in database.")
		return nil
	}

	fmt.Fprintf(w, "Replay Summary: %d session(s)\n", result.TotalSessions)
	fmt.Fprintln(w)

	for _, sr := range result.Sessions {
		status := "✓"
		if !sr.Deterministic {
			status = "✗"
		}
		fmt.Fprintf(w, "%s Session: %s\n", status, sr.Session)

		if !sr.SchemaMatches {
			fmt.Fprintln(w, "  Recorded with a different schema, not replayed")
			fmt.Fprintln(w)
			continue
		}

		fmt.Fprintf(w, "  Entries: %d\n", sr.Entries)
		if verbose {
			fmt.Fprintf(w, "  Final hash: %s\n", sr.FinalHash)
		}
		for _, m := range sr.Mismatches {
			fmt.Fprintf(w, "  seq %d %s: %s\n", m.Seq, m.Type, m.Reason)
		}
		fmt.Fprintln(w)
	}

	if result.AllDeterministic {
		fmt.Fprintln(w, "✓ All sessions verified deterministic")
		return nil
	}

	fmt.Fprintln(w, "✗ Determinism verification failed")
	return NewExitError(ExitFailure, "determinism verification failed")
}
