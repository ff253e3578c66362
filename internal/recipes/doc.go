// Package recipes provides named, parameterized view and formula functions
// for schemas declared in CUE, where Go closures cannot be written inline.
//
// A recipe is a constructor: given the entry's args it returns the pure
// ir.ViewFunc or ir.FormulaFunc the engine invokes on recomputation. The
// Registry binds recipe names to constructors and ships a small built-in
// set:
//
//	views     identity, where, limit
//	formulas  count, sum, ids, get, not
//
// SEALED PREDICATES:
//
// The where view filters documents with a Predicate. Predicate is a sealed
// interface (marker method pattern); only Equals, PropEquals and And
// implement it, so Match can switch exhaustively.
//
// In CUE, a where clause is written as a struct of field paths. A plain
// literal compares for equality, {$prop: "name"} compares against the
// current value of a declared prop:
//
//	open: {
//		kind:   "view"
//		source: "todos"
//		props:  ["owner"]
//		recipe: "where"
//		args: where: {done: false, owner: {$prop: "owner"}}
//	}
//
// All literals are ir.Value; numeric comparisons treat Int and Float alike.
package recipes
