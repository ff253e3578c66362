package recipes

import (
	"fmt"

	"github.com/roach88/strata/internal/ir"
)

// Predicate is a filter condition over one document.
//
// This is a sealed interface - only types in this package implement it.
type Predicate interface {
	predicateNode()
}

// Equals matches documents whose Field equals Value.
// Field may be a dotted path into nested objects.
type Equals struct {
	Field string
	Value ir.Value
}

func (Equals) predicateNode() {}

// PropEquals matches documents whose Field equals the current value of the
// declared prop Prop.
type PropEquals struct {
	Field string
	Prop  string
}

func (PropEquals) predicateNode() {}

// And matches when all Predicates match (empty = always true).
type And struct {
	Predicates []Predicate
}

func (And) predicateNode() {}

// Match evaluates p against doc. A missing field never matches, not even
// a Null literal.
func Match(p Predicate, doc ir.Value, props ir.Props) bool {
	switch pred := p.(type) {
	case nil:
		return true
	case Equals:
		v, ok := ir.GetIn(doc, ir.ParsePath(pred.Field))
		return ok && ir.Equal(v, pred.Value)
	case PropEquals:
		v, ok := ir.GetIn(doc, ir.ParsePath(pred.Field))
		if !ok {
			return false
		}
		return ir.Equal(v, props[pred.Prop])
	case And:
		for _, sub := range pred.Predicates {
			if !Match(sub, doc, props) {
				return false
			}
		}
		return true
	}
	return false
}

// propRefKey marks a prop reference in a where clause: {$prop: "name"}.
const propRefKey = "$prop"

// ParsePredicate converts a where clause into a Predicate. Keys are field
// paths; clauses are combined with And in sorted key order.
func ParsePredicate(v ir.Value) (Predicate, error) {
	obj, ok := v.(ir.Object)
	if !ok {
		return nil, fmt.Errorf("where clause must be an object, got %T", v)
	}

	preds := make([]Predicate, 0, len(obj))
	for _, field := range obj.SortedKeys() {
		if field == "" {
			return nil, fmt.Errorf("where clause: empty field name")
		}
		val := obj[field]
		if ref, isRef := val.(ir.Object); isRef {
			if prop, present := ref[propRefKey]; present {
				name, ok := prop.(ir.String)
				if !ok || len(ref) != 1 {
					return nil, fmt.Errorf("where clause %q: %s must be the only key and a string", field, propRefKey)
				}
				preds = append(preds, PropEquals{Field: field, Prop: string(name)})
				continue
			}
		}
		preds = append(preds, Equals{Field: field, Value: val})
	}

	if len(preds) == 1 {
		return preds[0], nil
	}
	return And{Predicates: preds}, nil
}

// Props lists the prop names a predicate reads, in evaluation order.
func Props(p Predicate) []string {
	var out []string
	var walk func(Predicate)
	walk = func(p Predicate) {
		switch pred := p.(type) {
		case PropEquals:
			out = append(out, pred.Prop)
		case And:
			for _, sub := range pred.Predicates {
				walk(sub)
			}
		}
	}
	walk(p)
	return out
}
