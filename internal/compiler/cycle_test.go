package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func edges(pairs ...[2]string) []Edge {
	out := make([]Edge, len(pairs))
	for i, p := range pairs {
		out[i] = Edge{Source: p[0], Dependent: p[1]}
	}
	return out
}

// TestCompileDependencies_Empty tests that no edges produce an empty map.
func TestCompileDependencies_Empty(t *testing.T) {
	deps, err := CompileDependencies(nil)
	require.NoError(t, err)
	assert.Empty(t, deps)
}

// TestCompileDependencies_Chain tests transitive expansion.
func TestCompileDependencies_Chain(t *testing.T) {
	deps, err := CompileDependencies(edges(
		[2]string{"A", "B"},
		[2]string{"B", "C"},
		[2]string{"C", "D"},
	))
	require.NoError(t, err)

	assert.Equal(t, []string{"B", "C", "D"}, deps["A"])
	assert.Equal(t, []string{"C", "D"}, deps["B"])
	assert.Equal(t, []string{"D"}, deps["C"])
	_, present := deps["D"]
	assert.False(t, present, "nodes without dependents are absent")
}

// TestCompileDependencies_KeepLast tests that a node reachable along
// several paths is listed once, at its last position.
func TestCompileDependencies_KeepLast(t *testing.T) {
	// A -> B, A -> C, C -> B: DFS from A reaches B, C, B.
	deps, err := CompileDependencies(edges(
		[2]string{"A", "B"},
		[2]string{"A", "C"},
		[2]string{"C", "B"},
	))
	require.NoError(t, err)
	assert.Equal(t, []string{"C", "B"}, deps["A"])
}

// TestCompileDependencies_Diamond tests ordering across a diamond.
func TestCompileDependencies_Diamond(t *testing.T) {
	deps, err := CompileDependencies(edges(
		[2]string{"src", "left"},
		[2]string{"src", "right"},
		[2]string{"left", "sink"},
		[2]string{"right", "sink"},
	))
	require.NoError(t, err)
	assert.Equal(t, []string{"left", "right", "sink"}, deps["src"])
}

// TestCompileDependencies_Cycle tests the exact cycle trace.
func TestCompileDependencies_Cycle(t *testing.T) {
	_, err := CompileDependencies(edges(
		[2]string{"A", "B"},
		[2]string{"B", "C"},
		[2]string{"C", "D"},
		[2]string{"D", "B"},
	))
	require.Error(t, err)

	var cycle *CycleError
	require.ErrorAs(t, err, &cycle)
	assert.Equal(t, []string{"A", "B", "C", "D", "B"}, cycle.Trace)
	assert.Equal(t, "dependency cycle: A,B,C,D,B", err.Error())
}

// TestCompileDependencies_SelfLoop tests a node depending on itself.
func TestCompileDependencies_SelfLoop(t *testing.T) {
	_, err := CompileDependencies(edges([2]string{"A", "A"}))

	var cycle *CycleError
	require.ErrorAs(t, err, &cycle)
	assert.Equal(t, []string{"A", "A"}, cycle.Trace)
}

// TestCompileDependencies_Deterministic tests that repeated compilation
// yields identical output.
func TestCompileDependencies_Deterministic(t *testing.T) {
	in := edges(
		[2]string{"*", "v1"},
		[2]string{"*", "f1"},
		[2]string{"todos", "v1"},
		[2]string{"v1", "f1"},
	)
	first, err := CompileDependencies(in)
	require.NoError(t, err)
	for range 10 {
		again, err := CompileDependencies(in)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
	assert.Equal(t, []string{"v1", "f1"}, first["*"])
}
