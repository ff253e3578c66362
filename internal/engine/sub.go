package engine

import (
	"github.com/roach88/strata/internal/ir"
	"github.com/roach88/strata/internal/repo"
)

// SubEngine is a namespaced view of an Engine over one nested schema entry.
// Names and custom action types passed to it are relative to the entry;
// it never walks the schema at call time.
type SubEngine struct {
	root    *Engine
	name    string
	actions *Factory
}

// Sub returns the sub-engine for the nested schema entry name.
func (e *Engine) Sub(name string) (*SubEngine, error) {
	n, ok := e.schema.Names[name]
	if !ok {
		return nil, newError(ErrCodeUnknownName, name, "unknown name")
	}
	if n.Kind != ir.KindSchema {
		return nil, newError(ErrCodeWrongEntryKind, name, "%s is a %s, not a schema", name, n.Kind)
	}
	return &SubEngine{
		root:    e,
		name:    name,
		actions: e.factory.sub(name + "."),
	}, nil
}

// Name returns the qualified name of the nested schema entry.
func (s *SubEngine) Name() string {
	return s.name
}

// Sub returns a sub-engine nested one level deeper.
func (s *SubEngine) Sub(name string) (*SubEngine, error) {
	return s.root.Sub(s.name + "." + name)
}

// Actions returns the namespaced action factory.
func (s *SubEngine) Actions() *Factory {
	return s.actions
}

// Get returns the value of the relative name in state.
func (s *SubEngine) Get(state ir.Object, name string) (ir.Value, error) {
	return s.root.Get(state, s.name+"."+name)
}

// State returns the subtree owned by the nested schema entry.
func (s *SubEngine) State(state ir.Object) (ir.Object, error) {
	v, err := s.root.Get(state, s.name)
	if err != nil {
		return nil, err
	}
	obj, _ := v.(ir.Object)
	return obj, nil
}

// Reducer is only available on the root engine.
func (s *SubEngine) Reducer() (ReduceFunc, error) {
	return nil, newError(ErrCodeNotOnSubEngine, s.name, "reducer is only available on the root engine")
}

// RepoReducer is only available on the root engine.
func (s *SubEngine) RepoReducer(repo.Options, ...repo.Option) (*repo.Reducer, error) {
	return nil, newError(ErrCodeNotOnSubEngine, s.name, "repo reducer is only available on the root engine")
}
