// Package store provides SQLite-backed durable storage for strata action
// journals.
//
// The core reducer never persists by itself. The store is an external
// collaborator that records what a caller dispatched:
//   - Sessions: one per recorded run, tagged with the schema hash
//   - Entries: dispatched actions in seq order with their outcome
//   - Snapshots: content-addressed states, keyed by ir.StateHash
//
// # Critical Patterns
//
// Logical time:
//   - Entries are ordered by seq INTEGER (logical clock), never timestamps
//   - Replay re-executes entries in seq order and compares state hashes
//
// Deterministic query results:
//   - All journal queries use ORDER BY seq ASC
//
// Content addressing:
//   - States and actions are stored as RFC 8785 canonical JSON
//   - Snapshot writes are idempotent (ON CONFLICT DO NOTHING); no-op
//     dispatches share their predecessor's snapshot row
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
