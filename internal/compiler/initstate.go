package compiler

import "github.com/roach88/strata/internal/ir"

// StateKey is the reserved top-level key holding per-collection control
// metadata.
const StateKey = "_state"

// Control metadata fields under _state.<collection>.
const (
	FieldPaused    = "paused"
	FieldSaved     = "saved"
	FieldOriginals = "originals"
)

// ControlPath returns the path of a collection's control metadata.
func ControlPath(collection string, field ...string) ir.Path {
	return ir.Path{StateKey, collection}.Append(field...)
}

// buildInitialState lays out the canonical initial tree: empty objects for
// collections and views, Init (or Null) for values, Null placeholders for
// formulas, and _state.<collection> = {paused: false}.
func (c *compilation) buildInitialState() {
	txn := ir.NewTxn(ir.Object{StateKey: ir.Object{}})

	for _, name := range c.order {
		n := c.names[name]
		var v ir.Value
		switch n.Kind {
		case ir.KindCollection:
			v = ir.Object{}
			if err := txn.Set(ControlPath(name), ir.Object{FieldPaused: ir.Bool(false)}); err != nil {
				c.fail(newError(ErrDuplicateName, name, "%v", err))
				continue
			}
		case ir.KindView:
			v = ir.Object{}
		case ir.KindValue, ir.KindCustomValue:
			v = n.Entry.Init
			if v == nil {
				v = ir.Null{}
			}
		case ir.KindFormula:
			v = ir.Null{}
		case ir.KindSchema:
			if _, exists := txn.Get(n.Path); exists || len(n.Path) == 0 {
				continue
			}
			v = ir.Object{}
		default:
			continue
		}

		if err := txn.Set(n.Path, v); err != nil {
			c.fail(newError(ErrDuplicateName, name, "%v", err))
		}
	}

	c.initState = txn.Commit()
}
