// Package harness runs YAML scenarios against a compiled schema.
//
// A scenario names a CUE schema, a list of setup actions and a flow of
// actions with expected outcomes, then asserts on the resulting trace and
// final state.
//
// # Scenario Format
//
//	name: todo_filter
//	description: "Filtering narrows the open view"
//	schema: ../schemas/todos.cue
//	setup:
//	  - action: strata/INSERT
//	    args: {coll: todos, id: a, doc: {title: milk, done: false}}
//	flow:
//	  - action: strata/UPDATE
//	    args: {coll: todos, id: a, doc: {$set: {done: true}}}
//	    expect: {result: applied}
//	  - action: strata/UPDATE
//	    args: {coll: todos, id: zz, doc: {}}
//	    expect: {result: rejected, error: DOCUMENT_NOT_FOUND}
//	assertions:
//	  - type: trace_count
//	    action: strata/UPDATE
//	    count: 2
//	  - type: final_state
//	    name: openCount
//	    expect: 0
//
// Step args are the fields of the action's JSON envelope without "type".
// Actions outside the strata/ namespace are custom actions and take their
// payload from args.payload.
//
// # Assertion Types
//
//   - trace_contains: an action appears in the trace with matching args
//   - trace_order: actions appear in the given order
//   - trace_count: an action appears exactly N times
//   - final_state: a schema name holds the expected value at the end
//   - final_branch: the repo ends on a branch (and optionally an index)
//
// # Execution Modes
//
// Without history, actions are journaled through a store.Recorder on an
// in-memory SQLite database, and the journal is replayed after the flow; a
// replay that diverges fails the scenario. With history > 0 the flow runs
// through a repo reducer instead, so branch and undo actions are available.
//
// Both modes are deterministic: identical scenarios produce byte-identical
// golden snapshots.
package harness
