package engine

import (
	"io"
	"log/slog"
	"reflect"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/strata/internal/ir"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func identityView(source []ir.Record, _ ir.Props) ([]ir.Record, error) {
	return source, nil
}

// countOf returns a formula counting the documents of its single prop.
func countOf(prop string) ir.FormulaFunc {
	return func(props ir.Props) (ir.Value, error) {
		obj, _ := props[prop].(ir.Object)
		return ir.Int(len(obj)), nil
	}
}

// counting wraps fn and counts its calls.
func counting(calls *int, fn ir.FormulaFunc) ir.FormulaFunc {
	return func(props ir.Props) (ir.Value, error) {
		*calls++
		return fn(props)
	}
}

func todoSchema() ir.Schema {
	return ir.Schema{
		"todos":     ir.CollectionEntry(),
		"todosView": ir.ViewEntry("todos", identityView),
		"count":     ir.FormulaEntry(countOf("todosView"), "todosView"),
		"filter":    {Kind: ir.KindValue, Init: ir.String("all"), ActionType: "setFilter"},
		"draft":     {Kind: ir.KindValue, Init: ir.String(""), Transient: true},
	}
}

func newTestEngine(t *testing.T, s ir.Schema, opts ...Option) *Engine {
	t.Helper()
	opts = append([]Option{WithLogger(discardLogger())}, opts...)
	e, err := New(s, opts...)
	require.NoError(t, err)
	return e
}

func mustReduce(t *testing.T, e *Engine, state ir.Object, actions ...ir.Action) ir.Object {
	t.Helper()
	for _, a := range actions {
		var err error
		state, err = e.Reduce(state, a)
		require.NoError(t, err, "reduce %s", a.ActionType())
	}
	return state
}

func mustGet(t *testing.T, e *Engine, state ir.Object, name string) ir.Value {
	t.Helper()
	v, err := e.Get(state, name)
	require.NoError(t, err)
	return v
}

// sameState reports whether a and b are the same map, not merely equal.
func sameState(a, b ir.Object) bool {
	return reflect.ValueOf(a).UnsafePointer() == reflect.ValueOf(b).UnsafePointer()
}

func doc(title string) ir.Object {
	return ir.Object{"title": ir.String(title)}
}
