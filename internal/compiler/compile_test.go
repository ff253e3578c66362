package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/strata/internal/ir"
)

func TestCompileNamesAndPaths(t *testing.T) {
	s, err := Compile(ir.Schema{
		"todos": ir.CollectionEntry(),
		"moved": {Kind: ir.KindValue, Path: "ui.filter", Init: ir.String("all")},
		"sub": ir.SchemaEntry(ir.Schema{
			"items": ir.CollectionEntry(),
			"bump":  {Kind: ir.KindCustom, ActionType: "bump", Custom: noopCustom},
		}),
		"rootCustom": {Kind: ir.KindCustom, ActionType: "surgery", Custom: noopCustom},
	})
	require.NoError(t, err)

	todos := s.Names["todos"]
	assert.Equal(t, ir.Path{"todos"}, todos.Path)
	assert.Equal(t, ir.Path{}, todos.SchemaPath)
	assert.Empty(t, todos.NamePrefix)

	moved := s.Names["moved"]
	assert.Equal(t, ir.Path{"ui", "filter"}, moved.Path)
	assert.Equal(t, ir.Path{"ui", "filter"}, moved.SubPath)

	items := s.Names["sub.items"]
	require.NotNil(t, items)
	assert.Equal(t, "sub.", items.NamePrefix)
	assert.Equal(t, ir.Path{"sub", "items"}, items.Path)
	assert.Equal(t, ir.Path{"sub"}, items.SchemaPath)

	assert.Equal(t, ir.KindSchema, s.Names["sub"].Kind)
	assert.Equal(t, ir.Path{"sub"}, s.Names["sub.bump"].Path, "custom drops its trailing segment")
	assert.Empty(t, s.Names["rootCustom"].Path, "custom may sit at the root")

	assert.Equal(t, []string{"moved", "rootCustom", "sub", "sub.bump", "sub.items", "todos"}, s.Order)
}

func TestCompileActionTable(t *testing.T) {
	s, err := Compile(ir.Schema{
		"filter": {Kind: ir.KindValue, Init: ir.String("all"), ActionType: "setFilter"},
		"plain":  ir.ValueEntry(ir.Int(1)),
		"sub": ir.SchemaEntry(ir.Schema{
			"filter": {Kind: ir.KindCustomValue, ActionType: "setFilter", Reducer: replaceReducer},
		}),
	})
	require.NoError(t, err)

	require.Len(t, s.Actions, 2)
	assert.Equal(t, "filter", s.Actions["setFilter"].Name)
	assert.Equal(t, ir.KindCustomValue, s.Actions["sub.setFilter"].Kind)
	assert.Equal(t, ir.Path{"sub", "filter"}, s.Actions["sub.setFilter"].Path)
}

func TestCompileInitialState(t *testing.T) {
	s, err := Compile(ir.Schema{
		"todos":     ir.CollectionEntry(),
		"todosView": ir.ViewEntry("todos", identityView),
		"filter":    ir.ValueEntry(ir.String("all")),
		"unset":     {Kind: ir.KindValue},
		"count":     ir.FormulaEntry(constFormula(ir.Int(0)), "todos"),
		"sub":       ir.SchemaEntry(ir.Schema{"items": ir.CollectionEntry()}),
		"empty":     ir.SchemaEntry(ir.Schema{}),
	})
	require.NoError(t, err)

	want := ir.Object{
		"_state": ir.Object{
			"todos":     ir.Object{"paused": ir.Bool(false)},
			"sub.items": ir.Object{"paused": ir.Bool(false)},
		},
		"todos":     ir.Object{},
		"todosView": ir.Object{},
		"filter":    ir.String("all"),
		"unset":     ir.Null{},
		"count":     ir.Null{},
		"sub":       ir.Object{"items": ir.Object{}},
		"empty":     ir.Object{},
	}
	assert.True(t, ir.Equal(want, s.InitState), "got %v", s.InitState)
}

func TestCompileDependents(t *testing.T) {
	s, err := Compile(todoSchema())
	require.NoError(t, err)

	assert.Equal(t, []string{"todosView", "count"}, s.Names["todos"].Dependents)
	assert.Equal(t, []string{"count"}, s.Names["todosView"].Dependents)
	assert.Equal(t, []string{"count"}, s.Names["filter"].Dependents)
	assert.Empty(t, s.Names["count"].Dependents)
	assert.ElementsMatch(t, []string{"count", "todosView"}, s.AllDependents)

	// count depends on todosView, so it must come after it.
	assert.Equal(t, []string{"todosView", "count"}, s.AllDependents)
}

func TestCompileResolvesRelativeThenAbsolute(t *testing.T) {
	s, err := Compile(ir.Schema{
		"global": ir.ValueEntry(ir.Int(1)),
		"sub": ir.SchemaEntry(ir.Schema{
			"items": ir.CollectionEntry(),
			"view":  ir.ViewEntry("items", identityView, "global"),
		}),
	})
	require.NoError(t, err)

	view := s.Names["sub.view"]
	assert.Equal(t, "sub.items", view.Source)
	assert.Equal(t, []Prop{{Key: "global", Name: "global"}}, view.Props)
	assert.Equal(t, []string{"sub.view"}, s.Names["global"].Dependents)
}

func TestCompileErrors(t *testing.T) {
	selfRef := ir.Schema{}
	selfRef["again"] = ir.SchemaEntry(selfRef)

	tests := []struct {
		name   string
		schema ir.Schema
		code   string
	}{
		{"empty key", ir.Schema{"": ir.CollectionEntry()}, ErrInvalidName},
		{"dollar key", ir.Schema{"$x": ir.CollectionEntry()}, ErrInvalidName},
		{"underscore key", ir.Schema{"_x": ir.CollectionEntry()}, ErrInvalidName},
		{"dotted key", ir.Schema{"a.b": ir.CollectionEntry()}, ErrInvalidName},
		{"nul key", ir.Schema{"a\x00": ir.CollectionEntry()}, ErrInvalidName},
		{"refresh source key", ir.Schema{"*": ir.CollectionEntry()}, ErrInvalidName},
		{"refresh source path segment", ir.Schema{"a": {Kind: ir.KindValue, Path: "x.*"}}, ErrInvalidName},
		{"bad path segment", ir.Schema{"a": {Kind: ir.KindValue, Path: "x._y"}}, ErrInvalidName},
		{"reserved action prefix", ir.Schema{"a": {Kind: ir.KindValue, ActionType: "strata/X"}}, ErrInvalidName},
		{"unknown kind", ir.Schema{"a": {Kind: "blob"}}, ErrInvalidKind},
		{"duplicate path", ir.Schema{
			"a": ir.ValueEntry(ir.Int(1)),
			"b": {Kind: ir.KindValue, Path: "a"},
		}, ErrDuplicateName},
		{"duplicate action type", ir.Schema{
			"a": {Kind: ir.KindValue, ActionType: "set"},
			"b": {Kind: ir.KindCustom, ActionType: "set", Custom: noopCustom},
		}, ErrDuplicateActionType},
		{"customValue without reducer", ir.Schema{"a": {Kind: ir.KindCustomValue, ActionType: "x"}}, ErrMissingField},
		{"custom without actionType", ir.Schema{"a": {Kind: ir.KindCustom, Custom: noopCustom}}, ErrMissingField},
		{"view without source", ir.Schema{"a": {Kind: ir.KindView, View: identityView}}, ErrMissingField},
		{"formula without func", ir.Schema{"a": {Kind: ir.KindFormula}}, ErrMissingField},
		{"schema without schema", ir.Schema{"a": {Kind: ir.KindSchema}}, ErrMissingField},
		{"unknown source", ir.Schema{"v": ir.ViewEntry("nope", identityView)}, ErrUnknownDependency},
		{"unknown prop", ir.Schema{"f": ir.FormulaEntry(constFormula(ir.Null{}), "nope")}, ErrUnknownDependency},
		{"self reference", selfRef, ErrSelfReference},
		{"source is a value", ir.Schema{
			"a": ir.ValueEntry(ir.Int(1)),
			"v": ir.ViewEntry("a", identityView),
		}, ErrInvalidDependency},
		{"prop is custom", ir.Schema{
			"c": {Kind: ir.KindCustom, ActionType: "c", Custom: noopCustom},
			"f": ir.FormulaEntry(constFormula(ir.Null{}), "c"),
		}, ErrInvalidDependency},
		{"value nested under value", ir.Schema{
			"a": ir.ValueEntry(ir.Int(1)),
			"b": {Kind: ir.KindValue, Path: "a.b"},
		}, ErrDuplicateName},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile(tt.schema)
			require.Error(t, err)
			assert.True(t, HasCode(err, tt.code), "want %s, got %v", tt.code, err)
		})
	}
}

func TestCompileCycle(t *testing.T) {
	_, err := Compile(ir.Schema{
		"a": ir.FormulaEntry(constFormula(ir.Null{}), "b"),
		"b": ir.FormulaEntry(constFormula(ir.Null{}), "a"),
	})
	require.Error(t, err)
	assert.True(t, HasCode(err, ErrCycle))

	var cycle *CycleError
	require.ErrorAs(t, err, &cycle)
	assert.Equal(t, []string{"a", "b", "a"}, cycle.Trace)
}

func TestValidateCollectsAll(t *testing.T) {
	errs := Validate(ir.Schema{
		"_bad":  ir.CollectionEntry(),
		"view":  {Kind: ir.KindView},
		"other": {Kind: ir.KindCustomValue},
	})

	codes := make([]string, len(errs))
	for i, e := range errs {
		codes[i] = e.Code
	}
	assert.Equal(t, []string{ErrInvalidName, ErrMissingField, ErrMissingField, ErrMissingField, ErrMissingField}, codes)
}

func TestValidateClean(t *testing.T) {
	assert.Empty(t, Validate(todoSchema()))
}
