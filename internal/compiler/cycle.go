package compiler

import (
	"fmt"
	"strings"
)

// AllName is the synthetic source whose dependents form the global refresh
// list. Every view and formula is a direct dependent of it.
const AllName = "*"

// Edge declares that Dependent must be recomputed when Source changes.
type Edge struct {
	Source    string
	Dependent string
}

// CycleError reports a dependency cycle. Trace is the DFS stack from the
// expansion root through the revisited node, e.g. [A B C D B].
type CycleError struct {
	Trace []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle: %s", strings.Join(e.Trace, ","))
}

// CompileDependencies expands edges into, for every source, the full list of
// transitive dependents in recomputation order.
//
// The algorithm:
//  1. Intern names to integer ids and build adjacency lists in declaration order
//  2. For each source (in order of first appearance), expand depth-first and
//     record every node reached, not just direct neighbors
//  3. A node reached while it is still on the DFS stack is a cycle; fail
//     with the stack as trace
//  4. Deduplicate keeping each name's LAST occurrence
//
// Step 4 makes the order valid for recomputation: for any edge u -> v, every
// recorded u is followed by a recorded v, so v's last occurrence comes after
// u's. Sources with no dependents are absent from the result.
func CompileDependencies(edges []Edge) (map[string][]string, error) {
	g := newDepGraph()
	for _, e := range edges {
		g.addEdge(g.intern(e.Source), g.intern(e.Dependent))
	}

	out := make(map[string][]string, len(g.sources))
	for _, src := range g.sources {
		reached, err := g.expand(src)
		if err != nil {
			return nil, err
		}
		if len(reached) == 0 {
			continue
		}
		out[g.names[src]] = g.namesOf(dedupeKeepLast(reached))
	}
	return out, nil
}

// depGraph is keyed by interned node id, not by name.
type depGraph struct {
	ids      map[string]int
	names    []string
	adj      [][]int
	sources  []int
	isSource []bool
}

func newDepGraph() *depGraph {
	return &depGraph{ids: make(map[string]int)}
}

func (g *depGraph) intern(name string) int {
	if id, ok := g.ids[name]; ok {
		return id
	}
	id := len(g.names)
	g.ids[name] = id
	g.names = append(g.names, name)
	g.adj = append(g.adj, nil)
	g.isSource = append(g.isSource, false)
	return id
}

func (g *depGraph) addEdge(from, to int) {
	g.adj[from] = append(g.adj[from], to)
	if !g.isSource[from] {
		g.isSource[from] = true
		g.sources = append(g.sources, from)
	}
}

func (g *depGraph) expand(root int) ([]int, error) {
	var (
		reached []int
		stack   = []int{root}
		onStack = make([]bool, len(g.names))
	)
	onStack[root] = true

	var visit func(node int) error
	visit = func(node int) error {
		for _, next := range g.adj[node] {
			if onStack[next] {
				trace := g.namesOf(append(stack[:len(stack):len(stack)], next))
				return &CycleError{Trace: trace}
			}
			reached = append(reached, next)
			stack = append(stack, next)
			onStack[next] = true
			if err := visit(next); err != nil {
				return err
			}
			onStack[next] = false
			stack = stack[:len(stack)-1]
		}
		return nil
	}

	if err := visit(root); err != nil {
		return nil, err
	}
	return reached, nil
}

func (g *depGraph) namesOf(ids []int) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = g.names[id]
	}
	return out
}

// dedupeKeepLast removes duplicates, keeping each id at its last position.
func dedupeKeepLast(ids []int) []int {
	seen := make(map[int]bool, len(ids))
	kept := make([]int, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- {
		if seen[ids[i]] {
			continue
		}
		seen[ids[i]] = true
		kept = append(kept, ids[i])
	}
	for i, j := 0, len(kept)-1; i < j; i, j = i+1, j-1 {
		kept[i], kept[j] = kept[j], kept[i]
	}
	return kept
}
