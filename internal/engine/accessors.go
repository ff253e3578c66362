package engine

import (
	"github.com/roach88/strata/internal/compiler"
	"github.com/roach88/strata/internal/ir"
)

// Get returns the value of name in state. A nil state reads the initial
// state.
func (e *Engine) Get(state ir.Object, name string) (ir.Value, error) {
	n, ok := e.schema.Names[name]
	if !ok {
		return nil, newError(ErrCodeUnknownName, name, "unknown name")
	}
	if state == nil {
		state = e.initial
	}
	v, ok := ir.GetIn(state, n.Path)
	if !ok {
		return ir.Null{}, nil
	}
	return v, nil
}

// PrintableState drops the internal _state bookkeeping. The result shares
// structure with state.
func PrintableState(state ir.Object) ir.Object {
	out := make(ir.Object, len(state))
	for k, v := range state {
		if k == compiler.StateKey {
			continue
		}
		out[k] = v
	}
	return out
}

// PersistableState projects state onto its value and collection entries,
// leaving out transient ones.
func (e *Engine) PersistableState(state ir.Object) ir.Object {
	if state == nil {
		state = e.initial
	}
	txn := ir.NewTxn(ir.Object{})
	for _, name := range e.schema.Order {
		n := e.schema.Names[name]
		switch n.Kind {
		case ir.KindValue, ir.KindCollection:
		default:
			continue
		}
		if n.Entry.Transient {
			continue
		}
		v, ok := ir.GetIn(state, n.Path)
		if !ok {
			continue
		}
		// Cannot fail: the initial state was built over the same paths.
		_ = txn.Set(n.Path, v)
	}
	return txn.Commit()
}

// Originals returns the pre-mutation documents recorded by the open
// originals session of coll, keyed by id. Documents that did not exist
// when the session opened map to Null.
func (e *Engine) Originals(state ir.Object, coll string) (ir.Object, error) {
	if _, err := e.collectionName(coll); err != nil {
		return nil, err
	}
	v, ok := ir.GetIn(state, compiler.ControlPath(coll, compiler.FieldOriginals))
	if !ok {
		return nil, newError(ErrCodeNoOriginalsSession, coll, "no originals session open")
	}
	obj, _ := v.(ir.Object)
	return obj, nil
}

// Paused reports whether coll is paused in state.
func (e *Engine) Paused(state ir.Object, coll string) (bool, error) {
	if _, err := e.collectionName(coll); err != nil {
		return false, err
	}
	v, _ := ir.GetIn(state, compiler.ControlPath(coll, compiler.FieldPaused))
	b, _ := v.(ir.Bool)
	return bool(b), nil
}

func (e *Engine) collectionName(name string) (*compiler.Name, error) {
	n, ok := e.schema.Names[name]
	if !ok {
		return nil, newError(ErrCodeUnknownName, name, "unknown name")
	}
	if n.Kind != ir.KindCollection {
		return nil, newError(ErrCodeWrongEntryKind, name, "%s is a %s, not a collection", name, n.Kind)
	}
	return n, nil
}
