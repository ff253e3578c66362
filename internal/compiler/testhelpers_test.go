package compiler

import "github.com/roach88/strata/internal/ir"

func identityView(source []ir.Record, _ ir.Props) ([]ir.Record, error) {
	return source, nil
}

func constFormula(v ir.Value) ir.FormulaFunc {
	return func(ir.Props) (ir.Value, error) { return v, nil }
}

func replaceReducer(_ ir.Value, a ir.Custom) (ir.Value, error) {
	return a.Payload, nil
}

func noopCustom(*ir.Subtree, ir.Custom) error { return nil }

func todoSchema() ir.Schema {
	return ir.Schema{
		"todos":     ir.CollectionEntry(),
		"todosView": ir.ViewEntry("todos", identityView),
		"filter":    {Kind: ir.KindValue, Init: ir.String("all"), ActionType: "setFilter"},
		"count":     ir.FormulaEntry(constFormula(ir.Int(0)), "todosView", "filter"),
	}
}
