package ir

import (
	"fmt"
	"strings"
)

// Txn is the transient mutation scope of a single reduce call.
//
// A Txn starts from an immutable root and copies each node on its first
// write (copy-on-write by path). The starting root, and every node reachable
// from it, is never modified, so earlier snapshots stay valid for any other
// holder. Commit returns the new root; nodes that were not written are shared
// structurally with the starting root.
//
// Thread Safety: NOT safe for concurrent use. A Txn never outlives one
// reduce call.
type Txn struct {
	root      Object
	rootOwned bool
	owned     map[string]bool // path keys of nodes copied in this txn
	modified  bool
}

// NewTxn opens a transaction over root. A nil root is treated as empty.
func NewTxn(root Object) *Txn {
	if root == nil {
		root = Object{}
	}
	return &Txn{root: root, owned: make(map[string]bool)}
}

// Root returns the current root. Callers must treat it as read-only.
func (t *Txn) Root() Object {
	return t.root
}

// Get returns the value at p.
func (t *Txn) Get(p Path) (Value, bool) {
	return GetIn(t.root, p)
}

// Set assigns v at p, creating intermediate Objects as needed. Setting the
// empty path replaces the root and requires v to be an Object.
func (t *Txn) Set(p Path, v Value) error {
	if len(p) == 0 {
		obj, ok := v.(Object)
		if !ok {
			return fmt.Errorf("cannot replace root with %T", v)
		}
		t.root = obj
		t.rootOwned = false
		t.modified = true
		clear(t.owned)
		return nil
	}

	node := t.ownRoot()
	for i, seg := range p[:len(p)-1] {
		childPath := p[:i+1]
		child, present := node[seg]
		switch c := child.(type) {
		case Object:
			if !t.owned[childPath.key()] {
				c = c.shallowCopy()
				node[seg] = c
				t.owned[childPath.key()] = true
			}
			node = c
		default:
			if present && c != nil {
				if _, isNull := c.(Null); !isNull {
					return fmt.Errorf("cannot set %s: %s is %T, not an object", p, childPath, c)
				}
			}
			created := Object{}
			node[seg] = created
			t.owned[childPath.key()] = true
			node = created
		}
	}

	node[p[len(p)-1]] = v
	t.disown(p)
	t.modified = true
	return nil
}

// Delete removes the value at p. Deleting a missing path is a no-op.
func (t *Txn) Delete(p Path) {
	if len(p) == 0 {
		t.root = Object{}
		t.rootOwned = true
		t.modified = true
		clear(t.owned)
		return
	}
	parent, ok := t.Get(p[:len(p)-1])
	if !ok {
		return
	}
	parentObj, ok := parent.(Object)
	if !ok {
		return
	}
	if _, present := parentObj[p[len(p)-1]]; !present {
		return
	}

	node := t.ownRoot()
	for i, seg := range p[:len(p)-1] {
		childPath := p[:i+1]
		c := node[seg].(Object)
		if !t.owned[childPath.key()] {
			c = c.shallowCopy()
			node[seg] = c
			t.owned[childPath.key()] = true
		}
		node = c
	}
	delete(node, p[len(p)-1])
	t.disown(p)
	t.modified = true
}

// Modified reports whether any write happened since the Txn was opened.
func (t *Txn) Modified() bool {
	return t.modified
}

// Commit returns the new root. The Txn may keep being used afterwards, but
// the committed root is then treated as shared and copied again on write.
func (t *Txn) Commit() Object {
	t.rootOwned = false
	clear(t.owned)
	return t.root
}

// Subtree returns a handle scoped to prefix. An empty prefix is the root.
func (t *Txn) Subtree(prefix Path) *Subtree {
	return &Subtree{txn: t, prefix: prefix}
}

func (t *Txn) ownRoot() Object {
	if !t.rootOwned {
		t.root = t.root.shallowCopy()
		t.rootOwned = true
	}
	return t.root
}

// disown drops ownership of everything at or below p: a foreign value was
// placed there and must be copied before it is written.
func (t *Txn) disown(p Path) {
	k := p.key()
	delete(t.owned, k)
	prefix := k + "\x00"
	for owned := range t.owned {
		if strings.HasPrefix(owned, prefix) {
			delete(t.owned, owned)
		}
	}
}

// Subtree is a prefix-scoped view of a Txn, handed to custom reducers. All
// paths are relative to the prefix.
type Subtree struct {
	txn    *Txn
	prefix Path
}

// Prefix returns the absolute path of the subtree root.
func (s *Subtree) Prefix() Path {
	return s.prefix
}

// Value returns the value at the subtree root.
func (s *Subtree) Value() (Value, bool) {
	return s.txn.Get(s.prefix)
}

// Get returns the value at p relative to the subtree root.
func (s *Subtree) Get(p Path) (Value, bool) {
	return s.txn.Get(s.prefix.Append(p...))
}

// Set assigns v at p relative to the subtree root.
func (s *Subtree) Set(p Path, v Value) error {
	return s.txn.Set(s.prefix.Append(p...), v)
}

// Delete removes the value at p relative to the subtree root.
func (s *Subtree) Delete(p Path) {
	s.txn.Delete(s.prefix.Append(p...))
}
