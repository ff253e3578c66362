package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/strata/internal/ir"
)

// ReduceFunc is the pure reducer a Recorder journals.
type ReduceFunc func(state ir.Object, a ir.Action) (ir.Object, error)

// Recorder dispatches actions through a reducer and journals each one with
// its outcome and resulting state.
//
// Thread-safety: NOT safe for concurrent use. A recorder owns one session's
// write path.
type Recorder struct {
	store   *Store
	session Session
	clock   *Clock
	reduce  ReduceFunc
	state   ir.Object
	hash    string
}

// NewRecorder creates sess and journals an Init entry holding initial.
func NewRecorder(ctx context.Context, s *Store, sess Session, initial ir.Object, reduce ReduceFunc) (*Recorder, error) {
	if err := s.CreateSession(ctx, sess); err != nil {
		return nil, err
	}
	r := &Recorder{
		store:   s,
		session: sess,
		clock:   NewClockAt(sess.CreatedSeq),
		reduce:  reduce,
	}
	e, err := s.AppendEntry(ctx, Entry{
		SessionID: sess.ID,
		Seq:       r.clock.Next(),
		Action:    ir.Init{},
		Result:    ResultApplied,
	}, initial)
	if err != nil {
		return nil, fmt.Errorf("new recorder: %w", err)
	}
	r.state = initial
	r.hash = e.StateHash
	return r, nil
}

// ResumeRecorder continues an existing session from its last journaled
// state.
func ResumeRecorder(ctx context.Context, s *Store, sessionID string, reduce ReduceFunc) (*Recorder, error) {
	sess, err := s.ReadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	last, err := s.LastEntry(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("resume recorder: %w", err)
	}
	state, err := s.ReadSnapshot(ctx, last.StateHash)
	if err != nil {
		return nil, fmt.Errorf("resume recorder: %w", err)
	}
	return &Recorder{
		store:   s,
		session: sess,
		clock:   NewClockAt(last.Seq),
		reduce:  reduce,
		state:   state,
		hash:    last.StateHash,
	}, nil
}

// Session returns the recorded session.
func (r *Recorder) Session() Session {
	return r.session
}

// State returns the state after the last dispatch.
func (r *Recorder) State() ir.Object {
	return r.state
}

// StateHash returns the content hash of State.
func (r *Recorder) StateHash() string {
	return r.hash
}

// Seq returns the seq of the last journaled entry.
func (r *Recorder) Seq() int64 {
	return r.clock.Current()
}

// Dispatch reduces a, journals the outcome and returns the new state.
// Rejected actions are journaled too; their reduce error is returned after
// the entry is written.
func (r *Recorder) Dispatch(ctx context.Context, a ir.Action) (ir.Object, error) {
	if a == nil {
		return r.state, fmt.Errorf("dispatch: nil action")
	}

	next, reduceErr := r.reduce(r.state, a)
	e := Entry{
		SessionID: r.session.ID,
		Seq:       r.clock.Next(),
		Action:    a,
		StateHash: r.hash,
	}

	var snapshot ir.Object
	switch {
	case reduceErr != nil:
		e.Result = ResultRejected
		e.Error = reduceErr.Error()
		next = r.state
	default:
		hash, err := ir.StateHash(next)
		if err != nil {
			return r.state, fmt.Errorf("dispatch: %w", err)
		}
		if hash == r.hash {
			e.Result = ResultNoop
		} else {
			e.Result = ResultApplied
			e.StateHash = ""
			snapshot = next
		}
	}

	written, err := r.store.AppendEntry(ctx, e, snapshot)
	if err != nil {
		return r.state, errors.Join(reduceErr, fmt.Errorf("dispatch: %w", err))
	}
	r.state = next
	r.hash = written.StateHash
	return next, reduceErr
}
