package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/strata/internal/ir"
)

// Entry results.
const (
	ResultApplied  = "applied"
	ResultNoop     = "noop"
	ResultRejected = "rejected"
)

// Session is one recorded run.
type Session struct {
	ID            string
	SchemaHash    string
	EngineVersion string
	FormatVersion string
	CreatedSeq    int64
}

// Entry is one dispatched action.
type Entry struct {
	SessionID  string
	Seq        int64
	Type       string
	Action     ir.Action
	ActionHash string
	// StateHash addresses the state after the action. Rejected actions keep
	// the previous state's hash.
	StateHash string
	Result    string
	Error     string
}

// ReadSession returns the session with the given id, or ErrNotFound.
func (s *Store) ReadSession(ctx context.Context, id string) (Session, error) {
	var sess Session
	err := s.db.QueryRowContext(ctx, `
		SELECT id, schema_hash, engine_version, format_version, created_seq
		FROM sessions
		WHERE id = ?
	`, id).Scan(&sess.ID, &sess.SchemaHash, &sess.EngineVersion, &sess.FormatVersion, &sess.CreatedSeq)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, fmt.Errorf("read session %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return Session{}, fmt.Errorf("read session %q: %w", id, err)
	}
	return sess, nil
}

// ListSessions returns every session ordered by id. UUIDv7 ids sort by
// creation time.
func (s *Store) ListSessions(ctx context.Context) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, schema_hash, engine_version, format_version, created_seq
		FROM sessions
		ORDER BY id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	sessions := []Session{}
	for rows.Next() {
		var sess Session
		if err := rows.Scan(&sess.ID, &sess.SchemaHash, &sess.EngineVersion, &sess.FormatVersion, &sess.CreatedSeq); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

// ReadSnapshot returns the state stored under hash, or ErrNotFound.
func (s *Store) ReadSnapshot(ctx context.Context, hash string) (ir.Object, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT state FROM snapshots WHERE hash = ?`, hash).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("read snapshot %s: %w", hash, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot %s: %w", hash, err)
	}
	return unmarshalState(data)
}

// ReadJournal returns the entries of a session in seq order.
// Returns an empty slice (not nil) if the session has no entries.
func (s *Store) ReadJournal(ctx context.Context, sessionID string) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, seq, type, action, action_hash, state_hash, result, error
		FROM entries
		WHERE session_id = ?
		ORDER BY seq ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	return entries, nil
}

// LastEntry returns the highest-seq entry of a session, or ErrNotFound.
func (s *Store) LastEntry(ctx context.Context, sessionID string) (Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, seq, type, action, action_hash, state_hash, result, error
		FROM entries
		WHERE session_id = ?
		ORDER BY seq DESC
		LIMIT 1
	`, sessionID)
	if err != nil {
		return Entry{}, fmt.Errorf("query last entry: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return Entry{}, fmt.Errorf("query last entry: %w", err)
		}
		return Entry{}, fmt.Errorf("last entry of %q: %w", sessionID, ErrNotFound)
	}
	return scanEntry(rows)
}

// GetLastSeq returns the highest seq of a session, 0 if it has no entries.
// Used to resume the logical clock from the correct position.
func (s *Store) GetLastSeq(ctx context.Context, sessionID string) (int64, error) {
	var seq int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(seq), 0) FROM entries WHERE session_id = ?
	`, sessionID).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("get last seq: %w", err)
	}
	return seq, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (Entry, error) {
	var (
		e          Entry
		actionJSON string
	)
	if err := row.Scan(&e.SessionID, &e.Seq, &e.Type, &actionJSON, &e.ActionHash, &e.StateHash, &e.Result, &e.Error); err != nil {
		return Entry{}, fmt.Errorf("scan entry: %w", err)
	}
	a, err := unmarshalAction(actionJSON)
	if err != nil {
		return Entry{}, fmt.Errorf("entry %d: %w", e.Seq, err)
	}
	e.Action = a
	return e, nil
}
