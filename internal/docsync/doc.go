// Package docsync adapts id-keyed document operations onto engine actions.
//
// A document-sync client (a replication protocol, a network cache, a test
// double) thinks in terms of "insert this document", "update that id",
// "does id X exist". Collection translates those calls into Insert, Update,
// Remove and Batch actions against one named collection and dispatches them
// to a Dispatcher: either a Local in-memory holder or a *store.Recorder
// journaling every action to SQLite.
//
// Three pieces of client-side bookkeeping live here and never in the
// reducer:
//
//   - an id-presence cache answering Has synchronously, including for
//     writes still sitting in the pause buffer;
//   - the pause/flush discipline: while paused, writes are buffered and
//     flushed as a single Batch so dependent views recompute once;
//   - originals retrieval: SaveOriginals opens a session, and
//     RetrieveOriginals returns the point-in-time originals map before
//     closing it.
package docsync
