package engine

import (
	"slices"

	"github.com/roach88/strata/internal/compiler"
	"github.com/roach88/strata/internal/ir"
)

// reduction is the scope of one Reduce call.
type reduction struct {
	e   *Engine
	pre ir.Object // state before the action, never written
	txn *ir.Txn

	// affected lists names whose dependents must be recomputed, in first
	// touch order, without duplicates.
	affected   []string
	refreshAll bool
	recomputed int
}

func (e *Engine) newReduction(state ir.Object) *reduction {
	return &reduction{e: e, pre: state, txn: ir.NewTxn(state)}
}

func (r *reduction) touch(name string) {
	if !slices.Contains(r.affected, name) {
		r.affected = append(r.affected, name)
	}
}

// apply mutates the owning node(s) of a. It does not recompute dependents.
func (r *reduction) apply(a ir.Action) error {
	switch act := a.(type) {
	case ir.Insert:
		return r.insert(act)
	case ir.Update:
		return r.update(act)
	case ir.Remove:
		return r.remove(act)
	case ir.Reset:
		return r.reset(act.Coll)
	case ir.Pause:
		return r.setPaused(act.Coll, true)
	case ir.Resume:
		return r.setPaused(act.Coll, false)
	case ir.Save:
		return r.save(act.Coll)
	case ir.Restore:
		return r.restore(act.Coll)
	case ir.SaveOriginals:
		return r.saveOriginals(act.Coll)
	case ir.RetrieveOriginals:
		return r.retrieveOriginals(act.Coll)
	case ir.Batch:
		return r.batch(act)
	case ir.Refresh:
		r.refreshAll = true
		return nil
	case ir.SetValue:
		return r.setValue(act)
	case ir.Init:
		return nil
	case ir.Custom:
		return r.custom(act)
	case ir.RepoAction:
		return newError(ErrCodeMalformedAction, "", "%s is a repo action; dispatch it to a repo reducer", a.ActionType())
	}
	return newError(ErrCodeMalformedAction, "", "unsupported action %T", a)
}

// lookup resolves name and checks its kind.
func (r *reduction) lookup(name string, kinds ...ir.Kind) (*compiler.Name, error) {
	if name == "" {
		return nil, newError(ErrCodeMalformedAction, "", "missing target name")
	}
	n, ok := r.e.schema.Names[name]
	if !ok {
		return nil, newError(ErrCodeUnknownName, name, "unknown name")
	}
	if len(kinds) > 0 && !slices.Contains(kinds, n.Kind) {
		return nil, newError(ErrCodeWrongEntryKind, name, "%s entry cannot handle this action, want %v", n.Kind, kinds)
	}
	return n, nil
}

func (r *reduction) setValue(a ir.SetValue) error {
	n, err := r.lookup(a.Name, ir.KindValue)
	if err != nil {
		return err
	}
	v := a.Value
	if v == nil {
		v = ir.Null{}
	}
	// Compare against the pre-action state to detect true no-ops.
	old, _ := ir.GetIn(r.pre, n.Path)
	if ir.Equal(old, v) {
		return nil
	}
	if err := r.txn.Set(n.Path, v); err != nil {
		return wrapError(ErrCodeMalformedAction, n.Name, err, "assign value")
	}
	r.touch(n.Name)
	return nil
}

func (r *reduction) custom(a ir.Custom) error {
	act, ok := r.e.schema.Actions[a.Type]
	if !ok {
		return newError(ErrCodeUnknownActionType, a.Type, "unknown action type")
	}

	switch act.Kind {
	case ir.KindValue, ir.KindCustomValue:
		reducer := act.Entry.Reducer
		if reducer == nil {
			reducer = replaceWithPayload
		}
		old, present := ir.GetIn(r.pre, act.Path)
		if !present {
			old = ir.Null{}
		}
		next, err := reducer(old, a)
		if err != nil {
			return wrapError(ErrCodeReducerFailed, act.Name, err, "reducer for %s failed", a.Type)
		}
		if next == nil {
			next = ir.Null{}
		}
		if ir.Equal(old, next) {
			return nil
		}
		if err := r.txn.Set(act.Path, next); err != nil {
			return wrapError(ErrCodeMalformedAction, act.Name, err, "assign value")
		}
		r.touch(act.Name)
		return nil

	case ir.KindCustom:
		// No automatic recomputation: custom entries sit outside the
		// dependency graph.
		if err := act.Entry.Custom(r.txn.Subtree(act.Path), a); err != nil {
			return wrapError(ErrCodeReducerFailed, act.Name, err, "custom reducer for %s failed", a.Type)
		}
		return nil
	}
	return newError(ErrCodeUnknownActionType, a.Type, "action type bound to %s entry", act.Kind)
}

func replaceWithPayload(_ ir.Value, a ir.Custom) (ir.Value, error) {
	return a.Payload, nil
}

// updateDependents recomputes every derived node affected by this
// reduction, each exactly once.
//
// A single affected name walks its own precompiled list. Several affected
// names are unioned and ordered by the global refresh list, which is a
// valid recomputation order for the whole graph. Paused collections are
// skipped.
func (r *reduction) updateDependents() error {
	var list []string
	switch {
	case r.refreshAll:
		list = r.e.schema.AllDependents
	default:
		active := make([]string, 0, len(r.affected))
		for _, name := range r.affected {
			if !r.paused(name) {
				active = append(active, name)
			}
		}
		switch len(active) {
		case 0:
			return nil
		case 1:
			list = r.e.schema.Names[active[0]].Dependents
		default:
			want := make(map[string]bool)
			for _, name := range active {
				for _, dep := range r.e.schema.Names[name].Dependents {
					want[dep] = true
				}
			}
			for _, dep := range r.e.schema.AllDependents {
				if want[dep] {
					list = append(list, dep)
				}
			}
		}
	}

	for _, dep := range list {
		if err := r.recompute(r.e.schema.Names[dep]); err != nil {
			return err
		}
	}
	return nil
}

func (r *reduction) paused(name string) bool {
	n := r.e.schema.Names[name]
	if n == nil || n.Kind != ir.KindCollection {
		return false
	}
	v, _ := r.txn.Get(compiler.ControlPath(name, compiler.FieldPaused))
	b, _ := v.(ir.Bool)
	return bool(b)
}

func (r *reduction) recompute(n *compiler.Name) error {
	props := make(ir.Props, len(n.Props))
	for _, p := range n.Props {
		v, ok := r.txn.Get(r.e.schema.Names[p.Name].Path)
		if !ok {
			v = ir.Null{}
		}
		props[p.Key] = v
	}

	var next ir.Value
	switch n.Kind {
	case ir.KindFormula:
		v, err := n.Entry.Formula(props)
		if err != nil {
			return wrapError(ErrCodeRecipeFailed, n.Name, err, "formula failed")
		}
		if v == nil {
			v = ir.Null{}
		}
		next = v
	case ir.KindView:
		src, _ := r.txn.Get(r.e.schema.Names[n.Source].Path)
		out, err := n.Entry.View(ir.Records(src), props)
		if err != nil {
			return wrapError(ErrCodeRecipeFailed, n.Name, err, "view failed")
		}
		next = ir.RecordsObject(out)
	default:
		return nil
	}

	r.recomputed++
	r.e.metrics.RecordRecompute(string(n.Kind))

	if cur, ok := r.txn.Get(n.Path); ok && ir.Equal(cur, next) {
		return nil
	}
	if err := r.txn.Set(n.Path, next); err != nil {
		return wrapError(ErrCodeRecipeFailed, n.Name, err, "assign result")
	}
	return nil
}
