package engine

import (
	"sync"

	"github.com/roach88/strata/internal/compiler"
	"github.com/roach88/strata/internal/ir"
)

// Listener observes every action a Factory constructs. Listeners are for
// audit and telemetry; they must not dispatch.
type Listener func(a ir.Action)

// listeners is the registry shared by a root factory and all of its
// namespaced views.
type listeners struct {
	mu     sync.Mutex
	nextID int
	subs   []subscription
}

type subscription struct {
	id int
	fn Listener
}

func (l *listeners) add(fn Listener) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nextID++
	l.subs = append(l.subs, subscription{id: l.nextID, fn: fn})
	return l.nextID
}

func (l *listeners) remove(id int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, s := range l.subs {
		if s.id == id {
			l.subs = append(l.subs[:i:i], l.subs[i+1:]...)
			return
		}
	}
}

func (l *listeners) notify(a ir.Action) {
	l.mu.Lock()
	subs := l.subs
	l.mu.Unlock()
	for _, s := range subs {
		s.fn(a)
	}
}

// Factory builds validated actions, one constructor per action kind.
//
// Every constructor checks the target name and its kind, normalizes ids and
// documents into ir values, notifies listeners in registration order, and
// returns the action for the caller to dispatch. A Factory obtained from a
// SubEngine prefixes every name and custom action type it is given.
type Factory struct {
	schema *compiler.Schema
	hub    *listeners
	prefix string
}

func newFactory(s *compiler.Schema) *Factory {
	return &Factory{schema: s, hub: &listeners{}}
}

// Subscribe registers fn and returns a function that unregisters it.
func (f *Factory) Subscribe(fn Listener) (unsubscribe func()) {
	id := f.hub.add(fn)
	var once sync.Once
	return func() {
		once.Do(func() { f.hub.remove(id) })
	}
}

// Prefix returns the namespace prepended to names, "" on the root factory.
func (f *Factory) Prefix() string {
	return f.prefix
}

func emit[A ir.Action](f *Factory, a A) A {
	f.hub.notify(a)
	return a
}

func (f *Factory) resolve(name string, kind ir.Kind) (string, error) {
	if name == "" {
		return "", newError(ErrCodeMalformedAction, "", "missing target name")
	}
	full := f.prefix + name
	n, ok := f.schema.Names[full]
	if !ok {
		return "", newError(ErrCodeUnknownName, full, "unknown name")
	}
	if n.Kind != kind {
		return "", newError(ErrCodeWrongEntryKind, full, "%s is a %s, not a %s", full, n.Kind, kind)
	}
	return full, nil
}

func normalizeDoc(name string, doc any) (ir.Object, error) {
	v, err := ir.FromGo(doc)
	if err != nil {
		return nil, wrapError(ErrCodeMalformedAction, name, err, "invalid document")
	}
	obj, ok := v.(ir.Object)
	if !ok {
		return nil, newError(ErrCodeMalformedAction, name, "document must be an object, got %T", v)
	}
	return obj.Clone(), nil
}

func (f *Factory) docAction(coll, id string, doc any) (string, ir.Object, error) {
	name, err := f.resolve(coll, ir.KindCollection)
	if err != nil {
		return "", nil, err
	}
	if id == "" {
		return "", nil, newError(ErrCodeMalformedAction, name, "missing document id")
	}
	obj, err := normalizeDoc(name, doc)
	if err != nil {
		return "", nil, err
	}
	return name, obj, nil
}

// Insert builds an Insert of doc under id.
func (f *Factory) Insert(coll, id string, doc any) (ir.Insert, error) {
	name, obj, err := f.docAction(coll, id, doc)
	if err != nil {
		return ir.Insert{}, err
	}
	return emit(f, ir.Insert{Coll: name, ID: id, Doc: obj}), nil
}

// Update builds an Update of id. doc is either a replacement document or a
// set of modifiers ($set, $unset, $inc, $mul).
func (f *Factory) Update(coll, id string, doc any) (ir.Update, error) {
	name, obj, err := f.docAction(coll, id, doc)
	if err != nil {
		return ir.Update{}, err
	}
	return emit(f, ir.Update{Coll: name, ID: id, Doc: obj}), nil
}

// Remove builds a Remove of id.
func (f *Factory) Remove(coll, id string) (ir.Remove, error) {
	name, err := f.resolve(coll, ir.KindCollection)
	if err != nil {
		return ir.Remove{}, err
	}
	if id == "" {
		return ir.Remove{}, newError(ErrCodeMalformedAction, name, "missing document id")
	}
	return emit(f, ir.Remove{Coll: name, ID: id}), nil
}

func (f *Factory) Reset(coll string) (ir.Reset, error) {
	name, err := f.resolve(coll, ir.KindCollection)
	if err != nil {
		return ir.Reset{}, err
	}
	return emit(f, ir.Reset{Coll: name}), nil
}

func (f *Factory) Pause(coll string) (ir.Pause, error) {
	name, err := f.resolve(coll, ir.KindCollection)
	if err != nil {
		return ir.Pause{}, err
	}
	return emit(f, ir.Pause{Coll: name}), nil
}

func (f *Factory) Resume(coll string) (ir.Resume, error) {
	name, err := f.resolve(coll, ir.KindCollection)
	if err != nil {
		return ir.Resume{}, err
	}
	return emit(f, ir.Resume{Coll: name}), nil
}

func (f *Factory) Save(coll string) (ir.Save, error) {
	name, err := f.resolve(coll, ir.KindCollection)
	if err != nil {
		return ir.Save{}, err
	}
	return emit(f, ir.Save{Coll: name}), nil
}

func (f *Factory) Restore(coll string) (ir.Restore, error) {
	name, err := f.resolve(coll, ir.KindCollection)
	if err != nil {
		return ir.Restore{}, err
	}
	return emit(f, ir.Restore{Coll: name}), nil
}

func (f *Factory) SaveOriginals(coll string) (ir.SaveOriginals, error) {
	name, err := f.resolve(coll, ir.KindCollection)
	if err != nil {
		return ir.SaveOriginals{}, err
	}
	return emit(f, ir.SaveOriginals{Coll: name}), nil
}

func (f *Factory) RetrieveOriginals(coll string) (ir.RetrieveOriginals, error) {
	name, err := f.resolve(coll, ir.KindCollection)
	if err != nil {
		return ir.RetrieveOriginals{}, err
	}
	return emit(f, ir.RetrieveOriginals{Coll: name}), nil
}

// Batch groups Insert, Update, Remove and Reset actions on coll so that
// dependents are recomputed once.
func (f *Factory) Batch(coll string, actions ...ir.Action) (ir.Batch, error) {
	name, err := f.resolve(coll, ir.KindCollection)
	if err != nil {
		return ir.Batch{}, err
	}
	for i, a := range actions {
		switch a.(type) {
		case ir.Insert, ir.Update, ir.Remove, ir.Reset:
		default:
			return ir.Batch{}, newError(ErrCodeMalformedAction, name, "batch[%d]: %T not allowed in a batch", i, a)
		}
		if c := a.(ir.CollectionAction).Collection(); c != name {
			return ir.Batch{}, newError(ErrCodeMalformedAction, name, "batch[%d]: targets %q", i, c)
		}
	}
	return emit(f, ir.Batch{Coll: name, Actions: append([]ir.Action(nil), actions...)}), nil
}

// Refresh builds a Refresh of every derived node.
func (f *Factory) Refresh() ir.Refresh {
	return emit(f, ir.Refresh{})
}

// Value builds an assignment to a value entry.
func (f *Factory) Value(name string, v any) (ir.SetValue, error) {
	full, err := f.resolve(name, ir.KindValue)
	if err != nil {
		return ir.SetValue{}, err
	}
	val, err := ir.FromGo(v)
	if err != nil {
		return ir.SetValue{}, wrapError(ErrCodeMalformedAction, full, err, "invalid value")
	}
	return emit(f, ir.SetValue{Name: full, Value: ir.Clone(val)}), nil
}

// Custom builds a named action declared by a value, customValue or custom
// entry. A customValue entry's Prepare function normalizes the payload.
func (f *Factory) Custom(actionType string, payload any) (ir.Custom, error) {
	if actionType == "" {
		return ir.Custom{}, newError(ErrCodeMalformedAction, "", "missing action type")
	}
	full := f.prefix + actionType
	act, ok := f.schema.Actions[full]
	if !ok {
		return ir.Custom{}, newError(ErrCodeUnknownActionType, full, "unknown action type")
	}
	v, err := ir.FromGo(payload)
	if err != nil {
		return ir.Custom{}, wrapError(ErrCodeMalformedAction, full, err, "invalid payload")
	}
	v = ir.Clone(v)
	if act.Entry.Prepare != nil {
		if v, err = act.Entry.Prepare(v); err != nil {
			return ir.Custom{}, wrapError(ErrCodeReducerFailed, act.Name, err, "prepare %s", full)
		}
		if v == nil {
			v = ir.Null{}
		}
	}
	return emit(f, ir.Custom{Type: full, Payload: v}), nil
}

func (f *Factory) CreateBranch(branch string) ir.CreateBranch {
	return emit(f, ir.CreateBranch{Branch: branch})
}

func (f *Factory) SwitchBranch(branch string) ir.SwitchBranch {
	return emit(f, ir.SwitchBranch{Branch: branch})
}

func (f *Factory) SaveBranch(branch string) ir.SaveBranch {
	return emit(f, ir.SaveBranch{Branch: branch})
}

func (f *Factory) ResetBranch(branch string) ir.ResetBranch {
	return emit(f, ir.ResetBranch{Branch: branch})
}

func (f *Factory) RemoveBranch(branch string) ir.RemoveBranch {
	return emit(f, ir.RemoveBranch{Branch: branch})
}

func (f *Factory) GoForward(steps int) ir.GoForward {
	return emit(f, ir.GoForward{Steps: steps})
}

func (f *Factory) GoBack(steps int) ir.GoBack {
	return emit(f, ir.GoBack{Steps: steps})
}

func (f *Factory) GoLive() ir.GoLive {
	return emit(f, ir.GoLive{})
}

func (f *Factory) sub(prefix string) *Factory {
	return &Factory{schema: f.schema, hub: f.hub, prefix: prefix}
}
