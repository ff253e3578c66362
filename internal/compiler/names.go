package compiler

import (
	"maps"
	"reflect"
	"slices"

	"github.com/roach88/strata/internal/ir"
)

// compilation accumulates compiled artifacts and errors across the passes.
type compilation struct {
	names   map[string]*Name
	order   []string
	actions map[string]*Action
	paths   map[string]string // storage path -> owning name

	allDependents []string
	initState     ir.Object

	// schemas on the current walk stack, by map identity
	stack []uintptr
	errs  []*CompileError
}

func newCompilation() *compilation {
	return &compilation{
		names:   make(map[string]*Name),
		actions: make(map[string]*Action),
		paths:   make(map[string]string),
	}
}

func (c *compilation) fail(err *CompileError) {
	c.errs = append(c.errs, err)
}

func (c *compilation) walk(s ir.Schema) {
	c.walkSchema(s, "", ir.Path{})
}

// walkSchema registers every entry of s depth-first, keys sorted. Nested
// schemas are flattened: their names and paths are baked in with the
// enclosing prefix, so nothing walks the schema tree after compilation.
func (c *compilation) walkSchema(s ir.Schema, prefix string, schemaPath ir.Path) {
	c.stack = append(c.stack, schemaIdentity(s))
	defer func() { c.stack = c.stack[:len(c.stack)-1] }()

	for _, key := range slices.Sorted(maps.Keys(s)) {
		entry := s[key]
		name := prefix + key

		if err := validateKey(key); err != nil {
			c.fail(newError(ErrInvalidName, name, "%v", err))
			continue
		}
		if !entry.Kind.Valid() {
			c.fail(newError(ErrInvalidKind, name, "unknown entry kind %q", entry.Kind))
			continue
		}
		if _, dup := c.names[name]; dup {
			c.fail(newError(ErrDuplicateName, name, "duplicate name"))
			continue
		}

		subPath := ir.Path{key}
		if entry.Path != "" {
			subPath = ir.ParsePath(entry.Path)
			if !c.validSubPath(name, subPath) {
				continue
			}
		}
		path := schemaPath.Append(subPath...)
		if entry.Kind == ir.KindCustom {
			// custom entries own a mutation site, not a leaf
			path = path.Parent()
		}

		for _, err := range validateFields(name, entry) {
			c.fail(err)
		}

		n := &Name{
			Name:       name,
			Kind:       entry.Kind,
			NamePrefix: prefix,
			Path:       path,
			SchemaPath: schemaPath,
			SubPath:    subPath,
			Entry:      entry,
			Dependents: []string{},
		}
		c.names[name] = n
		c.order = append(c.order, name)

		if entry.Kind != ir.KindCustom && entry.Kind != ir.KindSchema {
			if owner, taken := c.paths[path.String()]; taken {
				c.fail(newError(ErrDuplicateName, name, "path %q already used by %s", path, owner))
			} else {
				c.paths[path.String()] = name
			}
		}

		if entry.Kind == ir.KindSchema && entry.Schema != nil {
			if slices.Contains(c.stack, schemaIdentity(entry.Schema)) {
				c.fail(newError(ErrSelfReference, name, "schema references itself"))
				continue
			}
			c.walkSchema(entry.Schema, name+".", path)
		}
	}
}

func (c *compilation) validSubPath(name string, p ir.Path) bool {
	for _, seg := range p {
		if err := validateKey(seg); err != nil {
			c.fail(newError(ErrInvalidName, name, "invalid path segment: %v", err))
			return false
		}
	}
	return true
}

// resolveDependencies binds view sources and props to qualified names.
// A dependency resolves relative to the entry's own schema first, then
// from the root.
func (c *compilation) resolveDependencies() {
	for _, name := range c.order {
		n := c.names[name]
		if !n.Kind.Derived() {
			continue
		}

		if n.Kind == ir.KindView && n.Entry.Source != "" {
			src, ok := c.resolve(n, n.Entry.Source)
			if ok {
				if k := c.names[src].Kind; k != ir.KindCollection && k != ir.KindView {
					c.fail(newError(ErrInvalidDependency, name,
						"source %q is a %s, want collection or view", n.Entry.Source, k))
				}
				n.Source = src
			}
		}

		for _, prop := range n.Entry.Props {
			resolved, ok := c.resolve(n, prop)
			if !ok {
				continue
			}
			if k := c.names[resolved].Kind; k == ir.KindCustom || k == ir.KindSchema {
				c.fail(newError(ErrInvalidDependency, name, "prop %q is a %s entry", prop, k))
				continue
			}
			n.Props = append(n.Props, Prop{Key: prop, Name: resolved})
		}
	}
}

func (c *compilation) resolve(n *Name, dep string) (string, bool) {
	if _, ok := c.names[n.NamePrefix+dep]; ok {
		return n.NamePrefix + dep, true
	}
	if _, ok := c.names[dep]; ok {
		return dep, true
	}
	c.fail(newError(ErrUnknownDependency, n.Name, "unknown dependency %q", dep))
	return "", false
}

// compileGraph collects the declared edges and expands them into each
// name's dependents list and the global refresh list.
func (c *compilation) compileGraph() {
	var edges, all []Edge
	for _, name := range c.order {
		n := c.names[name]
		if !n.Kind.Derived() {
			continue
		}
		if n.Source != "" {
			edges = append(edges, Edge{Source: n.Source, Dependent: name})
		}
		for _, p := range n.Props {
			edges = append(edges, Edge{Source: p.Name, Dependent: name})
		}
		all = append(all, Edge{Source: AllName, Dependent: name})
	}

	deps, err := CompileDependencies(append(edges, all...))
	if err != nil {
		cycle := err.(*CycleError)
		c.fail(&CompileError{Code: ErrCycle, Name: cycle.Trace[0], Message: err.Error(), err: err})
		return
	}

	for src, list := range deps {
		if n, ok := c.names[src]; ok {
			n.Dependents = list
		}
	}
	c.allDependents = deps[AllName]
	if c.allDependents == nil {
		c.allDependents = []string{}
	}
}

func schemaIdentity(s ir.Schema) uintptr {
	return reflect.ValueOf(s).Pointer()
}
