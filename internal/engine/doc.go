// Package engine implements the strata reducer.
//
// The engine closes over a compiled schema and exposes a pure function
//
//	Reduce(state, action) -> state
//
// that applies one action to an immutable state tree and recomputes exactly
// the derived nodes (views and formulas) whose inputs changed.
//
// ARCHITECTURE:
//
// Reduce Flow:
// 1. A nil state is replaced by the initial state (compiled init + full refresh)
// 2. One ir.Txn is opened over the input state
// 3. The action mutates its owning node(s) and records the affected names
// 4. Dependents of the affected names are recomputed in precompiled order
// 5. The Txn is committed; on any error the input state is returned untouched
//
// An action that writes nothing returns the input state itself, so callers
// can detect no-ops by identity.
//
// Action Factory:
// Engine.Actions returns a Factory with one constructor per action kind.
// Constructors validate names against the schema, normalize payloads and
// notify listeners synchronously before returning. Sub-engines share the
// root's listener registry and prefix every name they are given.
//
// CRITICAL PATTERNS:
//
// Single-threaded, no suspension points: Reduce never blocks and never
// retries. The listener registry is the only mutable cross-call state and
// is mutex-guarded.
//
// Custom reducers are escape hatches: they mutate a raw subtree and never
// trigger dependents recomputation. Pair them with Refresh when a view must
// observe their writes.
package engine
