package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/strata/internal/compiler"
	"github.com/roach88/strata/internal/ir"
)

func TestGet(t *testing.T) {
	e := newTestEngine(t, ir.Schema{
		"moved": {Kind: ir.KindValue, Path: "ui.filter", Init: ir.String("all")},
	})

	assert.Equal(t, ir.String("all"), mustGet(t, e, nil, "moved"))

	_, err := e.Get(nil, "nope")
	assert.True(t, HasCode(err, ErrCodeUnknownName))

	// Missing slots read as Null.
	assert.Equal(t, ir.Null{}, mustGet(t, e, ir.Object{}, "moved"))
}

func TestPrintableState(t *testing.T) {
	e := newTestEngine(t, todoSchema())
	state := mustReduce(t, e, nil, ir.Insert{Coll: "todos", ID: "a", Doc: doc("a")})

	printable := PrintableState(state)
	assert.NotContains(t, printable, compiler.StateKey)
	assert.Contains(t, state, compiler.StateKey)
	assert.Equal(t, state["todosView"], printable["todosView"])
}

func TestPersistableState(t *testing.T) {
	s := todoSchema()
	s["cache"] = ir.Entry{Kind: ir.KindCollection, Transient: true}
	s["prefs"] = ir.SchemaEntry(ir.Schema{
		"theme": ir.ValueEntry(ir.String("dark")),
	})
	e := newTestEngine(t, s)
	state := mustReduce(t, e, nil, ir.Insert{Coll: "todos", ID: "a", Doc: doc("a")})

	assert.Equal(t, ir.Object{
		"todos":  ir.Object{"a": doc("a")},
		"filter": ir.String("all"),
		"prefs":  ir.Object{"theme": ir.String("dark")},
	}, e.PersistableState(state))
}

func TestOriginalsAndPaused_Errors(t *testing.T) {
	e := newTestEngine(t, todoSchema())

	_, err := e.Originals(nil, "nope")
	assert.True(t, HasCode(err, ErrCodeUnknownName))

	_, err = e.Paused(nil, "todosView")
	assert.True(t, HasCode(err, ErrCodeWrongEntryKind))

	_, err = e.Originals(e.InitialState(), "todos")
	require.Error(t, err)
	assert.True(t, IsNoOriginalsSession(err))
}
