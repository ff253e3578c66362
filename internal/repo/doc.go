// Package repo keeps a branchable, bounded history of states produced by a
// pure state reducer.
//
// A Repo holds named branches. Each branch is a pair of parallel FIFOs
// (states and the actions that produced them) capped at Options.History,
// plus a checkout cursor. Live branches keep the cursor on the tail; GoBack
// and GoForward pin it while new history keeps accumulating.
//
// Reduce never modifies its input: it returns a new *Repo that shares every
// untouched branch and state with the previous one, so earlier snapshots
// remain valid for undo/redo.
package repo
