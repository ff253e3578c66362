package compiler

import (
	"github.com/roach88/strata/internal/ir"
)

// Name is a compiled schema entry.
type Name struct {
	// Name is the fully-qualified, dot-joined identifier.
	Name       string
	Kind       ir.Kind
	NamePrefix string
	// Path is the absolute storage location. Custom entries drop their
	// trailing segment and may sit at the root (empty path).
	Path       ir.Path
	SchemaPath ir.Path
	SubPath    ir.Path
	Entry      ir.Entry

	// Source and Props are the resolved dependencies of views and formulas.
	Source string
	Props  []Prop

	// Dependents lists every node to recompute when this one changes, in
	// recomputation order.
	Dependents []string
}

// Prop binds a declared prop (as written in the schema) to the qualified
// name it resolved to.
type Prop struct {
	Key  string
	Name string
}

// Schema is the compiled artifact the reducer engine closes over.
type Schema struct {
	Names         map[string]*Name
	Actions       map[string]*Action
	InitState     ir.Object
	AllDependents []string
	// Order lists names in registration order (depth-first, keys sorted).
	Order []string
}

// Compile compiles a schema. It fails with the first *CompileError found;
// a dependency cycle is reported with code E108 wrapping a *CycleError.
//
// Passes run in order, each stopping compilation on error:
//  1. Walk names and paths, check keys and required fields
//  2. Register action types
//  3. Resolve dependencies and expand the dependency graph
//  4. Build the initial state tree
func Compile(s ir.Schema) (*Schema, error) {
	c := newCompilation()

	passes := []func(){
		func() { c.walk(s) },
		c.registerActions,
		c.resolveDependencies,
		c.compileGraph,
		c.buildInitialState,
	}
	for _, pass := range passes {
		pass()
		if len(c.errs) > 0 {
			return nil, c.errs[0]
		}
	}

	return &Schema{
		Names:         c.names,
		Actions:       c.actions,
		InitState:     c.initState,
		AllDependents: c.allDependents,
		Order:         c.order,
	}, nil
}

// Lookup returns the compiled name, if any.
func (s *Schema) Lookup(name string) (*Name, bool) {
	n, ok := s.Names[name]
	return n, ok
}

// NamesOfKind lists the names of the given kind in registration order.
func (s *Schema) NamesOfKind(kind ir.Kind) []string {
	var out []string
	for _, name := range s.Order {
		if s.Names[name].Kind == kind {
			out = append(out, name)
		}
	}
	return out
}
