package compiler

import "github.com/roach88/strata/internal/ir"

// Action is one entry of the compiled action table: a user-named action
// type and the entry whose reducer handles it.
type Action struct {
	Type  string
	Kind  ir.Kind
	Name  string
	Path  ir.Path
	Entry ir.Entry
}

// registerActions builds the action table. Types are qualified with the
// owning schema's name prefix, so equal types in different sub-schemas
// do not collide.
func (c *compilation) registerActions() {
	for _, name := range c.order {
		n := c.names[name]
		switch n.Kind {
		case ir.KindValue, ir.KindCustomValue, ir.KindCustom:
		default:
			continue
		}
		if n.Entry.ActionType == "" {
			continue
		}

		typ := n.NamePrefix + n.Entry.ActionType
		if owner, dup := c.actions[typ]; dup {
			c.fail(newError(ErrDuplicateActionType, name,
				"action type %q already registered by %s", typ, owner.Name))
			continue
		}
		c.actions[typ] = &Action{
			Type:  typ,
			Kind:  n.Kind,
			Name:  name,
			Path:  n.Path,
			Entry: n.Entry,
		}
	}
}
