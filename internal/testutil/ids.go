// Package testutil provides deterministic id generators for tests and
// scenario runs.
package testutil

import (
	"fmt"
	"sync"
)

// SequentialIDs generates "<prefix>-0001", "<prefix>-0002", ...
//
// Scenarios and golden snapshots use it in place of ids.UUIDv7 so that
// generated document ids are identical across runs.
//
// Thread-safety: safe for concurrent use.
type SequentialIDs struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequentialIDs creates a generator. An empty prefix defaults to "id".
func NewSequentialIDs(prefix string) *SequentialIDs {
	if prefix == "" {
		prefix = "id"
	}
	return &SequentialIDs{prefix: prefix}
}

// Generate returns the next id. Implements ids.Generator.
func (g *SequentialIDs) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%04d", g.prefix, g.n)
}

// Reset restarts the sequence at 1.
func (g *SequentialIDs) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n = 0
}

// FixedIDs hands out a predetermined list of ids in order, then falls back
// to a SequentialIDs with prefix "extra".
type FixedIDs struct {
	mu       sync.Mutex
	ids      []string
	fallback *SequentialIDs
}

// NewFixedIDs creates a generator over ids.
func NewFixedIDs(ids ...string) *FixedIDs {
	return &FixedIDs{ids: ids, fallback: NewSequentialIDs("extra")}
}

// Generate returns the next listed id. Implements ids.Generator.
func (g *FixedIDs) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.ids) == 0 {
		return g.fallback.Generate()
	}
	id := g.ids[0]
	g.ids = g.ids[1:]
	return id
}
