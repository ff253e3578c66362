package engine

import (
	"github.com/roach88/strata/internal/compiler"
	"github.com/roach88/strata/internal/ir"
)

func (r *reduction) collection(name string) (*compiler.Name, error) {
	return r.lookup(name, ir.KindCollection)
}

// document returns the current document at coll.id inside the txn.
func (r *reduction) document(n *compiler.Name, id string) (ir.Value, bool) {
	return r.txn.Get(n.Path.Append(id))
}

func (r *reduction) insert(a ir.Insert) error {
	n, err := r.collection(a.Coll)
	if err != nil {
		return err
	}
	if a.ID == "" {
		return newError(ErrCodeMalformedAction, n.Name, "insert: missing document id")
	}
	if a.Doc == nil {
		return newError(ErrCodeMalformedAction, n.Name, "insert %q: missing document", a.ID)
	}

	// Originals are recorded even when the write turns out to be a no-op.
	prev, existed := r.document(n, a.ID)
	if err := r.recordOriginal(n, a.ID, prev, existed); err != nil {
		return err
	}
	if existed && ir.Equal(prev, a.Doc) {
		return nil
	}
	if err := r.txn.Set(n.Path.Append(a.ID), a.Doc); err != nil {
		return wrapError(ErrCodeMalformedAction, n.Name, err, "insert %q", a.ID)
	}
	r.touch(n.Name)
	return nil
}

func (r *reduction) update(a ir.Update) error {
	n, err := r.collection(a.Coll)
	if err != nil {
		return err
	}
	if a.ID == "" {
		return newError(ErrCodeMalformedAction, n.Name, "update: missing document id")
	}
	if a.Doc == nil {
		return newError(ErrCodeMalformedAction, n.Name, "update %q: missing document", a.ID)
	}

	prev, existed := r.document(n, a.ID)
	if !existed {
		return NewDocumentNotFoundError(n.Name, a.ID)
	}
	next, err := applyUpdate(prev, a.Doc)
	if err != nil {
		return wrapError(ErrCodeMalformedAction, n.Name, err, "update %q", a.ID)
	}
	if err := r.recordOriginal(n, a.ID, prev, true); err != nil {
		return err
	}
	if ir.Equal(prev, next) {
		return nil
	}
	if err := r.txn.Set(n.Path.Append(a.ID), next); err != nil {
		return wrapError(ErrCodeMalformedAction, n.Name, err, "update %q", a.ID)
	}
	r.touch(n.Name)
	return nil
}

func (r *reduction) remove(a ir.Remove) error {
	n, err := r.collection(a.Coll)
	if err != nil {
		return err
	}
	if a.ID == "" {
		return newError(ErrCodeMalformedAction, n.Name, "remove: missing document id")
	}

	prev, existed := r.document(n, a.ID)
	if !existed {
		return nil
	}
	if err := r.recordOriginal(n, a.ID, prev, true); err != nil {
		return err
	}
	r.txn.Delete(n.Path.Append(a.ID))
	r.touch(n.Name)
	return nil
}

// recordOriginal stores the pre-mutation document of id while an originals
// session is open. The first write wins.
func (r *reduction) recordOriginal(n *compiler.Name, id string, prev ir.Value, existed bool) error {
	p := compiler.ControlPath(n.Name, compiler.FieldOriginals)
	cur, open := r.txn.Get(p)
	if !open {
		return nil
	}
	if originals, ok := cur.(ir.Object); ok {
		if _, seen := originals[id]; seen {
			return nil
		}
	}
	if !existed {
		prev = ir.Null{}
	}
	if err := r.txn.Set(p.Append(id), prev); err != nil {
		return wrapError(ErrCodeMalformedAction, n.Name, err, "record original of %q", id)
	}
	return nil
}

func (r *reduction) reset(coll string) error {
	n, err := r.collection(coll)
	if err != nil {
		return err
	}
	if cur, ok := r.txn.Get(n.Path); !ok || !ir.Equal(cur, ir.Object{}) {
		if err := r.txn.Set(n.Path, ir.Object{}); err != nil {
			return wrapError(ErrCodeMalformedAction, n.Name, err, "reset")
		}
	}
	r.txn.Delete(compiler.ControlPath(n.Name, compiler.FieldOriginals))
	r.touch(n.Name)
	return nil
}

func (r *reduction) setPaused(coll string, paused bool) error {
	n, err := r.collection(coll)
	if err != nil {
		return err
	}
	p := compiler.ControlPath(n.Name, compiler.FieldPaused)
	if cur, _ := r.txn.Get(p); !ir.Equal(cur, ir.Bool(paused)) {
		if err := r.txn.Set(p, ir.Bool(paused)); err != nil {
			return wrapError(ErrCodeMalformedAction, n.Name, err, "set paused")
		}
	}
	if !paused {
		// Catch up on everything missed while paused.
		r.touch(n.Name)
	}
	return nil
}

func (r *reduction) save(coll string) error {
	n, err := r.collection(coll)
	if err != nil {
		return err
	}
	cur, ok := r.txn.Get(n.Path)
	if !ok {
		cur = ir.Object{}
	}
	if err := r.txn.Set(compiler.ControlPath(n.Name, compiler.FieldSaved), cur); err != nil {
		return wrapError(ErrCodeMalformedAction, n.Name, err, "save")
	}
	return nil
}

func (r *reduction) restore(coll string) error {
	n, err := r.collection(coll)
	if err != nil {
		return err
	}
	p := compiler.ControlPath(n.Name, compiler.FieldSaved)
	saved, ok := r.txn.Get(p)
	if !ok {
		return newError(ErrCodeNoSavedSnapshot, n.Name, "no saved snapshot to restore")
	}
	if err := r.txn.Set(n.Path, saved); err != nil {
		return wrapError(ErrCodeMalformedAction, n.Name, err, "restore")
	}
	r.txn.Delete(p)
	r.touch(n.Name)
	return nil
}

func (r *reduction) saveOriginals(coll string) error {
	n, err := r.collection(coll)
	if err != nil {
		return err
	}
	p := compiler.ControlPath(n.Name, compiler.FieldOriginals)
	if _, open := r.txn.Get(p); open {
		return newError(ErrCodeOriginalsSessionOpen, n.Name, "originals session already open")
	}
	if err := r.txn.Set(p, ir.Object{}); err != nil {
		return wrapError(ErrCodeMalformedAction, n.Name, err, "save originals")
	}
	return nil
}

// retrieveOriginals closes the session. Callers read the accumulated
// originals with Originals before dispatching it.
func (r *reduction) retrieveOriginals(coll string) error {
	n, err := r.collection(coll)
	if err != nil {
		return err
	}
	p := compiler.ControlPath(n.Name, compiler.FieldOriginals)
	if _, open := r.txn.Get(p); !open {
		return newError(ErrCodeNoOriginalsSession, n.Name, "no originals session open")
	}
	r.txn.Delete(p)
	return nil
}

// batch applies its sub-actions in one scope. Dependents are recomputed once
// by the caller, after the last sub-action.
func (r *reduction) batch(b ir.Batch) error {
	n, err := r.collection(b.Coll)
	if err != nil {
		return err
	}
	for i, sub := range b.Actions {
		switch act := sub.(type) {
		case ir.Insert:
			if act.Coll == "" {
				act.Coll = n.Name
			}
			sub = act
		case ir.Update:
			if act.Coll == "" {
				act.Coll = n.Name
			}
			sub = act
		case ir.Remove:
			if act.Coll == "" {
				act.Coll = n.Name
			}
			sub = act
		case ir.Reset:
			if act.Coll == "" {
				act.Coll = n.Name
			}
			sub = act
		default:
			return newError(ErrCodeMalformedAction, n.Name, "batch[%d]: %T not allowed in a batch", i, sub)
		}
		if c := sub.(ir.CollectionAction).Collection(); c != n.Name {
			return newError(ErrCodeMalformedAction, n.Name, "batch[%d]: targets %q", i, c)
		}
		if err := r.apply(sub); err != nil {
			return err
		}
	}
	return nil
}
