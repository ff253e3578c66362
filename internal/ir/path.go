package ir

import (
	"slices"
	"strings"
)

// Path is an absolute or relative location in the document tree, one tree
// key per element.
type Path []string

// ParsePath splits a dotted path ("a.b.c"). The empty string is the root.
func ParsePath(s string) Path {
	if s == "" {
		return Path{}
	}
	return Path(strings.Split(s, "."))
}

// String renders the path in dotted form.
func (p Path) String() string {
	return strings.Join(p, ".")
}

// Append returns a new path with segs appended. The receiver is never
// aliased by the result.
func (p Path) Append(segs ...string) Path {
	return slices.Concat(p, Path(segs))
}

// Parent returns the path without its last segment. The root's parent is
// the root.
func (p Path) Parent() Path {
	if len(p) == 0 {
		return Path{}
	}
	return slices.Clone(p[:len(p)-1])
}

// key renders the path as a map key. NUL is reserved and cannot appear in
// schema names, so the encoding is unambiguous.
func (p Path) key() string {
	return strings.Join(p, "\x00")
}

// GetIn walks root along p. It reports false if any segment is missing or
// an intermediate node is not an Object.
func GetIn(root Value, p Path) (Value, bool) {
	cur := root
	for _, seg := range p {
		obj, ok := cur.(Object)
		if !ok {
			return nil, false
		}
		cur, ok = obj[seg]
		if !ok {
			return nil, false
		}
	}
	if cur == nil {
		return nil, false
	}
	return cur, true
}
