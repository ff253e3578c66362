package store

import (
	"context"
	"fmt"

	"github.com/roach88/strata/internal/ir"
)

// ReplayResult reports a determinism check of one session.
type ReplayResult struct {
	SessionID  string
	Entries    int
	Mismatches []Mismatch
	FinalState ir.Object
	FinalHash  string
}

// OK reports whether every entry replayed to its recorded outcome.
func (r ReplayResult) OK() bool {
	return len(r.Mismatches) == 0
}

// Mismatch describes one entry whose replay diverged from the journal.
type Mismatch struct {
	Seq    int64
	Type   string
	Want   string
	Got    string
	Reason string
}

// Replay re-executes a session's journal against reduce, starting from
// initial, and compares every resulting state hash and outcome with what
// was recorded.
//
// Replay never stops at the first divergence: it continues from the
// recomputed state so the report lists every mismatch.
func (s *Store) Replay(ctx context.Context, sessionID string, initial ir.Object, reduce ReduceFunc) (ReplayResult, error) {
	if _, err := s.ReadSession(ctx, sessionID); err != nil {
		return ReplayResult{}, err
	}
	entries, err := s.ReadJournal(ctx, sessionID)
	if err != nil {
		return ReplayResult{}, fmt.Errorf("replay: %w", err)
	}

	res := ReplayResult{SessionID: sessionID, Entries: len(entries)}
	state := initial
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		if _, isInit := e.Action.(ir.Init); isInit {
			state = initial
		} else {
			next, reduceErr := reduce(state, e.Action)
			switch {
			case e.Result == ResultRejected && reduceErr == nil:
				res.Mismatches = append(res.Mismatches, Mismatch{
					Seq: e.Seq, Type: e.Type, Want: e.Error,
					Reason: "recorded rejection, replay applied",
				})
				state = next
				continue
			case e.Result != ResultRejected && reduceErr != nil:
				res.Mismatches = append(res.Mismatches, Mismatch{
					Seq: e.Seq, Type: e.Type, Got: reduceErr.Error(),
					Reason: "replay rejected a recorded action",
				})
				continue
			case reduceErr == nil:
				state = next
			}
		}

		hash, err := ir.StateHash(state)
		if err != nil {
			return res, fmt.Errorf("replay seq %d: %w", e.Seq, err)
		}
		if hash != e.StateHash {
			res.Mismatches = append(res.Mismatches, Mismatch{
				Seq: e.Seq, Type: e.Type, Want: e.StateHash, Got: hash,
				Reason: "state hash differs",
			})
		}
	}

	res.FinalState = state
	if state != nil {
		if res.FinalHash, err = ir.StateHash(state); err != nil {
			return res, fmt.Errorf("replay: %w", err)
		}
	}
	return res, nil
}
