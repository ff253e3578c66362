package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/roach88/strata/internal/ir"
)

// createTestStore creates a new store in a temp dir for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestSession creates a session with minimal required fields.
func createTestSession(t *testing.T, s *Store, id string) Session {
	t.Helper()
	sess := Session{
		ID:            id,
		SchemaHash:    "test-schema",
		EngineVersion: ir.EngineVersion,
		FormatVersion: ir.FormatVersion,
	}
	if err := s.CreateSession(context.Background(), sess); err != nil {
		t.Fatalf("CreateSession() failed: %v", err)
	}
	return sess
}

// counterReduce is a test-only reducer over {n: Int}: custom "inc" adds
// its payload, "fail" is rejected, everything else is a no-op.
func counterReduce(state ir.Object, a ir.Action) (ir.Object, error) {
	if state == nil {
		state = counterInitial()
	}
	c, ok := a.(ir.Custom)
	if !ok {
		return state, nil
	}
	switch c.Type {
	case "inc":
		n, _ := state["n"].(ir.Int)
		delta, _ := c.Payload.(ir.Int)
		if delta == 0 {
			return state, nil
		}
		return ir.Object{"n": n + delta}, nil
	case "fail":
		return state, errors.New("rejected by test reducer")
	}
	return state, nil
}

func counterInitial() ir.Object {
	return ir.Object{"n": ir.Int(0)}
}

func inc(n int64) ir.Action {
	return ir.Custom{Type: "inc", Payload: ir.Int(n)}
}
