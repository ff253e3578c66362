package engine

import (
	"fmt"
	"strings"

	"github.com/roach88/strata/internal/ir"
)

// Update modifiers, applied in this order.
const (
	ModSet   = "$set"
	ModUnset = "$unset"
	ModInc   = "$inc"
	ModMul   = "$mul"
)

var modifiers = []string{ModSet, ModUnset, ModInc, ModMul}

func isModifier(key string) bool {
	switch key {
	case ModSet, ModUnset, ModInc, ModMul:
		return true
	}
	return false
}

// applyUpdate computes the next version of prev. A doc made only of
// modifier keys is applied field by field over dotted paths; any other
// doc replaces prev.
func applyUpdate(prev ir.Value, doc ir.Object) (ir.Object, error) {
	modifier, plain := 0, 0
	for k := range doc {
		switch {
		case isModifier(k):
			modifier++
		case strings.HasPrefix(k, "$"):
			return nil, fmt.Errorf("unknown update operator %q", k)
		default:
			plain++
		}
	}
	if modifier == 0 {
		return doc, nil
	}
	if plain > 0 {
		return nil, fmt.Errorf("cannot mix update operators with plain fields")
	}

	base, ok := prev.(ir.Object)
	if !ok {
		return nil, fmt.Errorf("existing document is %T, not an object", prev)
	}
	txn := ir.NewTxn(base)
	for _, op := range modifiers {
		raw, present := doc[op]
		if !present {
			continue
		}
		fields, ok := raw.(ir.Object)
		if !ok {
			return nil, fmt.Errorf("%s: operand must be an object, got %T", op, raw)
		}
		for _, field := range fields.SortedKeys() {
			if err := applyModifier(txn, op, field, fields[field]); err != nil {
				return nil, fmt.Errorf("%s %s: %w", op, field, err)
			}
		}
	}
	return txn.Commit(), nil
}

func applyModifier(txn *ir.Txn, op, field string, operand ir.Value) error {
	p := ir.ParsePath(field)
	for _, seg := range p {
		if seg == "" {
			return fmt.Errorf("invalid field path")
		}
	}

	switch op {
	case ModSet:
		return txn.Set(p, operand)
	case ModUnset:
		txn.Delete(p)
		return nil
	}

	if !ir.IsNumber(operand) {
		return fmt.Errorf("operand must be a number, got %T", operand)
	}
	cur, present := txn.Get(p)
	if !present {
		if op == ModMul {
			return txn.Set(p, ir.Int(0))
		}
		return txn.Set(p, operand)
	}
	if !ir.IsNumber(cur) {
		// Non-numeric existing values are left alone.
		return nil
	}
	combine := ir.Add
	if op == ModMul {
		combine = ir.Mul
	}
	next, err := combine(cur, operand)
	if err != nil {
		return err
	}
	return txn.Set(p, next)
}
