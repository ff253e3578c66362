package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/strata/internal/ir"
)

// CreateSession inserts a session record.
// Uses ON CONFLICT(id) DO NOTHING for idempotency - re-creating an existing
// session is silently ignored.
func (s *Store) CreateSession(ctx context.Context, sess Session) error {
	if sess.ID == "" {
		return fmt.Errorf("create session: empty id")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, schema_hash, engine_version, format_version, created_seq)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		sess.ID,
		sess.SchemaHash,
		sess.EngineVersion,
		sess.FormatVersion,
		sess.CreatedSeq,
	)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// WriteSnapshot stores state under its content hash and returns the hash.
// Writing an existing snapshot is a no-op.
func (s *Store) WriteSnapshot(ctx context.Context, state ir.Object) (string, error) {
	hash, err := writeSnapshot(ctx, s.db, state)
	if err != nil {
		return "", fmt.Errorf("write snapshot: %w", err)
	}
	return hash, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func writeSnapshot(ctx context.Context, db execer, state ir.Object) (string, error) {
	hash, err := ir.StateHash(state)
	if err != nil {
		return "", err
	}
	data, err := marshalState(state)
	if err != nil {
		return "", err
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO snapshots (hash, state)
		VALUES (?, ?)
		ON CONFLICT(hash) DO NOTHING
	`, hash, data)
	if err != nil {
		return "", err
	}
	return hash, nil
}

// AppendEntry writes e and, when state is non-nil, the snapshot it refers
// to, in one transaction. e.ActionHash and e.StateHash are computed when
// empty.
//
// Note: The session referenced by e.SessionID must exist (foreign key constraint).
// Note: seq must be unique per session (primary key).
func (s *Store) AppendEntry(ctx context.Context, e Entry, state ir.Object) (Entry, error) {
	if e.Action == nil {
		return e, fmt.Errorf("append entry: nil action")
	}
	actionJSON, err := marshalAction(e.Action)
	if err != nil {
		return e, fmt.Errorf("append entry: %w", err)
	}
	if e.ActionHash == "" {
		if e.ActionHash, err = ir.ActionHash(e.Action); err != nil {
			return e, fmt.Errorf("append entry: %w", err)
		}
	}
	e.Type = e.Action.ActionType()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return e, fmt.Errorf("append entry: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	if state != nil {
		hash, err := writeSnapshot(ctx, tx, state)
		if err != nil {
			return e, fmt.Errorf("append entry: snapshot: %w", err)
		}
		e.StateHash = hash
	}
	if e.StateHash == "" {
		return e, fmt.Errorf("append entry: no state hash for seq %d", e.Seq)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO entries
		(session_id, seq, type, action, action_hash, state_hash, result, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		e.SessionID,
		e.Seq,
		e.Type,
		actionJSON,
		e.ActionHash,
		e.StateHash,
		e.Result,
		e.Error,
	)
	if err != nil {
		return e, fmt.Errorf("append entry: insert: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return e, fmt.Errorf("append entry: commit: %w", err)
	}
	return e, nil
}
