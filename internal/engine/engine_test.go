package engine

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/strata/internal/compiler"
	"github.com/roach88/strata/internal/ir"
	"github.com/roach88/strata/internal/telemetry"
)

func TestNew_CompileError(t *testing.T) {
	_, err := New(ir.Schema{"_bad": ir.CollectionEntry()})
	require.Error(t, err)
	assert.True(t, compiler.HasCode(err, compiler.ErrInvalidName))
}

func TestNew_InitialFailingRecipe(t *testing.T) {
	_, err := New(ir.Schema{
		"broken": ir.FormulaEntry(func(ir.Props) (ir.Value, error) {
			return nil, errors.New("boom")
		}),
	}, WithLogger(discardLogger()))
	require.Error(t, err)
	assert.True(t, HasCode(err, ErrCodeRecipeFailed))
}

func TestReduce_NilStateIsRefreshedInitial(t *testing.T) {
	e := newTestEngine(t, todoSchema())

	state, err := e.Reduce(nil, nil)
	require.NoError(t, err)
	assert.True(t, sameState(e.InitialState(), state))

	assert.Equal(t, ir.Object{}, mustGet(t, e, state, "todos"))
	assert.Equal(t, ir.Int(0), mustGet(t, e, state, "count"), "formula populated by the initial refresh")
	assert.Equal(t, ir.String("all"), mustGet(t, e, state, "filter"))

	paused, err := e.Paused(state, "todos")
	require.NoError(t, err)
	assert.False(t, paused)

	state, err = e.Reduce(nil, ir.Init{})
	require.NoError(t, err)
	assert.True(t, sameState(e.InitialState(), state))
}

func TestReduce_InsertRemove(t *testing.T) {
	e := newTestEngine(t, todoSchema())

	state := mustReduce(t, e, nil, ir.Insert{Coll: "todos", ID: "id1", Doc: doc("Get tickets")})
	want := ir.Object{"id1": doc("Get tickets")}
	assert.Equal(t, want, mustGet(t, e, state, "todos"))
	assert.Equal(t, want, mustGet(t, e, state, "todosView"))
	assert.Equal(t, ir.Int(1), mustGet(t, e, state, "count"))

	state = mustReduce(t, e, state, ir.Remove{Coll: "todos", ID: "id1"})
	assert.Equal(t, ir.Object{}, mustGet(t, e, state, "todos"))
	assert.Equal(t, ir.Object{}, mustGet(t, e, state, "todosView"))
	assert.Equal(t, ir.Int(0), mustGet(t, e, state, "count"))
}

func TestReduce_InsertOverwrites(t *testing.T) {
	e := newTestEngine(t, todoSchema())

	state := mustReduce(t, e, nil,
		ir.Insert{Coll: "todos", ID: "id1", Doc: doc("first")},
		ir.Insert{Coll: "todos", ID: "id1", Doc: doc("second")},
	)
	assert.Equal(t, ir.Object{"id1": doc("second")}, mustGet(t, e, state, "todosView"))
}

func TestReduce_NoopReturnsInputState(t *testing.T) {
	e := newTestEngine(t, todoSchema())
	state := mustReduce(t, e, nil, ir.Insert{Coll: "todos", ID: "id1", Doc: doc("a")})

	tests := []struct {
		name   string
		action ir.Action
	}{
		{"remove missing id", ir.Remove{Coll: "todos", ID: "nope"}},
		{"same value", ir.SetValue{Name: "filter", Value: ir.String("all")}},
		{"same document", ir.Insert{Coll: "todos", ID: "id1", Doc: doc("a")}},
		{"refresh with nothing changed", ir.Refresh{}},
		{"resume while live", ir.Resume{Coll: "todos"}},
		{"init", ir.Init{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.Reduce(state, tt.action)
			require.NoError(t, err)
			assert.True(t, sameState(state, got))
		})
	}
}

func TestReduce_InputStateNotModified(t *testing.T) {
	e := newTestEngine(t, todoSchema())
	before := mustReduce(t, e, nil, ir.Insert{Coll: "todos", ID: "id1", Doc: ir.Object{"cnt": ir.Int(5)}})
	snapshot := before.Clone()

	after := mustReduce(t, e, before,
		ir.Update{Coll: "todos", ID: "id1", Doc: ir.Object{"$inc": ir.Object{"cnt": ir.Int(1)}}},
		ir.Insert{Coll: "todos", ID: "id2", Doc: doc("b")},
		ir.SetValue{Name: "filter", Value: ir.String("done")},
	)

	assert.True(t, ir.Equal(snapshot, before))
	assert.False(t, ir.Equal(before, after))

	// Untouched subtrees are shared.
	assert.True(t, sameState(before[compiler.StateKey].(ir.Object), after[compiler.StateKey].(ir.Object)))
}

func TestReduce_UpdateModifierChain(t *testing.T) {
	e := newTestEngine(t, todoSchema())
	state := mustReduce(t, e, nil, ir.Insert{Coll: "todos", ID: "id1", Doc: ir.Object{"cnt": ir.Int(5)}})

	steps := []struct {
		doc  ir.Object
		want ir.Object
	}{
		{ir.Object{"$inc": ir.Object{"cnt": ir.Int(1)}}, ir.Object{"cnt": ir.Int(6)}},
		{ir.Object{"$mul": ir.Object{"cnt": ir.Int(2)}}, ir.Object{"cnt": ir.Int(12)}},
		{ir.Object{"$unset": ir.Object{"cnt": ir.Bool(true)}}, ir.Object{}},
	}
	for _, step := range steps {
		state = mustReduce(t, e, state, ir.Update{Coll: "todos", ID: "id1", Doc: step.doc})
		assert.Equal(t, ir.Object{"id1": step.want}, mustGet(t, e, state, "todos"))
		assert.Equal(t, ir.Object{"id1": step.want}, mustGet(t, e, state, "todosView"))
	}
}

func TestReduce_FractionalNumbers(t *testing.T) {
	e := newTestEngine(t, todoSchema())
	f := e.Actions()

	ins, err := f.Insert("todos", "id1", map[string]any{"price": 2.5, "cnt": 4})
	require.NoError(t, err)
	state := mustReduce(t, e, nil, ins)
	assert.Equal(t, ir.Object{"id1": ir.Object{"price": ir.Float(2.5), "cnt": ir.Int(4)}}, mustGet(t, e, state, "todos"))

	upd, err := f.Update("todos", "id1", map[string]any{"$mul": map[string]any{"cnt": 1.5, "price": 2}})
	require.NoError(t, err)
	state = mustReduce(t, e, state, upd)
	assert.Equal(t, ir.Object{"id1": ir.Object{"price": ir.Int(5), "cnt": ir.Int(6)}}, mustGet(t, e, state, "todosView"))

	upd, err = f.Update("todos", "id1", map[string]any{"$inc": map[string]any{"cnt": 0.25}})
	require.NoError(t, err)
	state = mustReduce(t, e, state, upd)
	assert.Equal(t, ir.Float(6.25), mustGet(t, e, state, "todos").(ir.Object)["id1"].(ir.Object)["cnt"])

	_, err = ir.StateHash(state)
	require.NoError(t, err, "fractional state stays hashable")
}

func TestReduce_UpdateReplace(t *testing.T) {
	e := newTestEngine(t, todoSchema())
	state := mustReduce(t, e, nil,
		ir.Insert{Coll: "todos", ID: "id1", Doc: ir.Object{"title": ir.String("a"), "done": ir.Bool(false)}},
		ir.Update{Coll: "todos", ID: "id1", Doc: ir.Object{"title": ir.String("b")}},
	)
	assert.Equal(t, ir.Object{"id1": ir.Object{"title": ir.String("b")}}, mustGet(t, e, state, "todos"))
}

func TestReduce_UpdateMissingDocument(t *testing.T) {
	e := newTestEngine(t, todoSchema())
	state := e.InitialState()

	got, err := e.Reduce(state, ir.Update{Coll: "todos", ID: "nope", Doc: doc("x")})
	require.Error(t, err)
	assert.True(t, IsDocumentNotFound(err))
	assert.True(t, sameState(state, got))

	var re *RuntimeError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, "todos", re.Name)
	assert.Equal(t, "nope", re.Details["id"])
}

func TestReduce_ValueIdempotent(t *testing.T) {
	e := newTestEngine(t, todoSchema())
	set := ir.SetValue{Name: "filter", Value: ir.String("done")}

	once := mustReduce(t, e, nil, set)
	twice := mustReduce(t, e, once, set)

	assert.True(t, ir.Equal(once, twice))
	assert.True(t, sameState(once, twice))
	assert.Equal(t, ir.String("done"), mustGet(t, e, twice, "filter"))
}

func TestReduce_PauseResume(t *testing.T) {
	e := newTestEngine(t, todoSchema())
	state := mustReduce(t, e, nil,
		ir.Insert{Coll: "todos", ID: "id1", Doc: ir.Object{"cnt": ir.Int(1)}},
		ir.Pause{Coll: "todos"},
	)
	frozen := mustGet(t, e, state, "todosView")

	paused, err := e.Paused(state, "todos")
	require.NoError(t, err)
	assert.True(t, paused)

	state = mustReduce(t, e, state,
		ir.Insert{Coll: "todos", ID: "id2", Doc: doc("b")},
		ir.Update{Coll: "todos", ID: "id1", Doc: ir.Object{"$inc": ir.Object{"cnt": ir.Int(1)}}},
		ir.Remove{Coll: "todos", ID: "id2"},
		ir.Insert{Coll: "todos", ID: "id3", Doc: doc("c")},
	)
	assert.Equal(t, frozen, mustGet(t, e, state, "todosView"))
	assert.Equal(t, ir.Int(1), mustGet(t, e, state, "count"))

	state = mustReduce(t, e, state, ir.Resume{Coll: "todos"})
	want := ir.Object{
		"id1": ir.Object{"cnt": ir.Int(2)},
		"id3": doc("c"),
	}
	assert.Equal(t, want, mustGet(t, e, state, "todos"))
	assert.Equal(t, want, mustGet(t, e, state, "todosView"))
	assert.Equal(t, ir.Int(2), mustGet(t, e, state, "count"))
}

func TestReduce_SaveRestore(t *testing.T) {
	e := newTestEngine(t, todoSchema())
	state := mustReduce(t, e, nil,
		ir.Insert{Coll: "todos", ID: "id1", Doc: doc("a")},
		ir.Save{Coll: "todos"},
		ir.Insert{Coll: "todos", ID: "id2", Doc: doc("b")},
		ir.Remove{Coll: "todos", ID: "id1"},
	)
	assert.Equal(t, ir.Object{"id2": doc("b")}, mustGet(t, e, state, "todosView"))

	state = mustReduce(t, e, state, ir.Restore{Coll: "todos"})
	assert.Equal(t, ir.Object{"id1": doc("a")}, mustGet(t, e, state, "todos"))
	assert.Equal(t, ir.Object{"id1": doc("a")}, mustGet(t, e, state, "todosView"))

	// The snapshot is consumed.
	got, err := e.Reduce(state, ir.Restore{Coll: "todos"})
	require.Error(t, err)
	assert.True(t, IsNoSavedSnapshot(err))
	assert.True(t, sameState(state, got))
}

func TestReduce_OriginalsRoundTrip(t *testing.T) {
	e := newTestEngine(t, todoSchema())
	state := mustReduce(t, e, nil,
		ir.Insert{Coll: "todos", ID: "a", Doc: doc("a0")},
		ir.Insert{Coll: "todos", ID: "b", Doc: doc("b0")},
		ir.Insert{Coll: "todos", ID: "untouched", Doc: doc("u0")},
		ir.SaveOriginals{Coll: "todos"},
		ir.Update{Coll: "todos", ID: "a", Doc: doc("a1")},
		ir.Update{Coll: "todos", ID: "a", Doc: doc("a2")},
		ir.Remove{Coll: "todos", ID: "b"},
		ir.Insert{Coll: "todos", ID: "c", Doc: doc("c1")},
	)

	originals, err := e.Originals(state, "todos")
	require.NoError(t, err)
	assert.Equal(t, ir.Object{
		"a": doc("a0"),
		"b": doc("b0"),
		"c": ir.Null{},
	}, originals)

	state = mustReduce(t, e, state, ir.RetrieveOriginals{Coll: "todos"})

	_, err = e.Originals(state, "todos")
	assert.True(t, IsNoOriginalsSession(err))

	got, err := e.Reduce(state, ir.RetrieveOriginals{Coll: "todos"})
	require.Error(t, err)
	assert.True(t, IsNoOriginalsSession(err))
	assert.True(t, sameState(state, got))
}

func TestReduce_OriginalsRecordUnchangedWrites(t *testing.T) {
	e := newTestEngine(t, todoSchema())
	state := mustReduce(t, e, nil,
		ir.Insert{Coll: "todos", ID: "a", Doc: doc("a0")},
		ir.Insert{Coll: "todos", ID: "b", Doc: doc("b0")},
		ir.SaveOriginals{Coll: "todos"},
		ir.Insert{Coll: "todos", ID: "a", Doc: doc("a0")},
		ir.Update{Coll: "todos", ID: "b", Doc: ir.Object{"$set": ir.Object{"title": ir.String("b0")}}},
	)

	originals, err := e.Originals(state, "todos")
	require.NoError(t, err)
	assert.Equal(t, ir.Object{"a": doc("a0"), "b": doc("b0")}, originals)
	assert.Equal(t, ir.Object{"a": doc("a0"), "b": doc("b0")}, mustGet(t, e, state, "todos"))
}

func TestReduce_OriginalsSessionRules(t *testing.T) {
	e := newTestEngine(t, todoSchema())
	state := mustReduce(t, e, nil,
		ir.Insert{Coll: "todos", ID: "a", Doc: doc("a0")},
		ir.SaveOriginals{Coll: "todos"},
	)

	_, err := e.Reduce(state, ir.SaveOriginals{Coll: "todos"})
	assert.True(t, HasCode(err, ErrCodeOriginalsSessionOpen))

	// Reset ends the session.
	state = mustReduce(t, e, state, ir.Reset{Coll: "todos"})
	assert.Equal(t, ir.Object{}, mustGet(t, e, state, "todosView"))
	_, err = e.Originals(state, "todos")
	assert.True(t, IsNoOriginalsSession(err))

	// Mutations outside a session record nothing.
	state = mustReduce(t, e, state, ir.Insert{Coll: "todos", ID: "x", Doc: doc("x")})
	_, present := ir.GetIn(state, compiler.ControlPath("todos", compiler.FieldOriginals))
	assert.False(t, present)
}

func TestReduce_BatchRecomputesOnce(t *testing.T) {
	var calls int
	e := newTestEngine(t, ir.Schema{
		"todos":     ir.CollectionEntry(),
		"todosView": ir.ViewEntry("todos", identityView),
		"count":     ir.FormulaEntry(counting(&calls, countOf("todosView")), "todosView"),
	})
	calls = 0

	state := mustReduce(t, e, nil, ir.Batch{Coll: "todos", Actions: []ir.Action{
		ir.Insert{Coll: "todos", ID: "a", Doc: doc("a")},
		ir.Insert{ID: "b", Doc: doc("b")},
		ir.Insert{Coll: "todos", ID: "c", Doc: doc("c")},
		ir.Remove{Coll: "todos", ID: "a"},
	}})

	assert.Equal(t, 1, calls)
	assert.Equal(t, ir.Int(2), mustGet(t, e, state, "count"))
}

func TestReduce_BatchFailureIsAtomic(t *testing.T) {
	e := newTestEngine(t, todoSchema())
	state := e.InitialState()

	got, err := e.Reduce(state, ir.Batch{Coll: "todos", Actions: []ir.Action{
		ir.Insert{Coll: "todos", ID: "a", Doc: doc("a")},
		ir.Update{Coll: "todos", ID: "missing", Doc: doc("x")},
	}})
	require.Error(t, err)
	assert.True(t, IsDocumentNotFound(err))
	assert.True(t, sameState(state, got))
	assert.Equal(t, ir.Object{}, mustGet(t, e, got, "todos"))
}

func TestReduce_BatchRejectsForeignActions(t *testing.T) {
	e := newTestEngine(t, ir.Schema{
		"todos": ir.CollectionEntry(),
		"other": ir.CollectionEntry(),
	})

	tests := []struct {
		name string
		sub  ir.Action
	}{
		{"other collection", ir.Insert{Coll: "other", ID: "a", Doc: doc("a")}},
		{"pause", ir.Pause{Coll: "todos"}},
		{"nested batch", ir.Batch{Coll: "todos"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Reduce(nil, ir.Batch{Coll: "todos", Actions: []ir.Action{tt.sub}})
			assert.True(t, HasCode(err, ErrCodeMalformedAction), "got %v", err)
		})
	}
}

func TestReduce_RefreshAfterExternalSurgery(t *testing.T) {
	e := newTestEngine(t, todoSchema())
	state := e.InitialState()

	surgery := state.Clone()
	surgery["todos"] = ir.Object{"x": doc("x")}
	assert.Equal(t, ir.Object{}, mustGet(t, e, surgery, "todosView"))

	state = mustReduce(t, e, surgery, ir.Refresh{})
	assert.Equal(t, ir.Object{"x": doc("x")}, mustGet(t, e, state, "todosView"))
	assert.Equal(t, ir.Int(1), mustGet(t, e, state, "count"))
}

func TestReduce_DependentChainOrder(t *testing.T) {
	var order []string
	trace := func(name string, fn ir.FormulaFunc) ir.FormulaFunc {
		return func(p ir.Props) (ir.Value, error) {
			order = append(order, name)
			return fn(p)
		}
	}
	double := func(prop string) ir.FormulaFunc {
		return func(p ir.Props) (ir.Value, error) {
			n, _ := p[prop].(ir.Int)
			return n * 2, nil
		}
	}
	e := newTestEngine(t, ir.Schema{
		"todos":  ir.CollectionEntry(),
		"count":  ir.FormulaEntry(trace("count", countOf("todos")), "todos"),
		"double": ir.FormulaEntry(trace("double", double("count")), "count"),
		"quad":   ir.FormulaEntry(trace("quad", double("double")), "double"),
	})
	order = nil

	state := mustReduce(t, e, nil,
		ir.Insert{Coll: "todos", ID: "a", Doc: doc("a")},
		ir.Insert{Coll: "todos", ID: "b", Doc: doc("b")},
	)
	assert.Equal(t, []string{"count", "double", "quad", "count", "double", "quad"}, order)
	assert.Equal(t, ir.Int(8), mustGet(t, e, state, "quad"))
}

func TestReduce_ValueWithActionType(t *testing.T) {
	e := newTestEngine(t, todoSchema())

	state := mustReduce(t, e, nil, ir.Custom{Type: "setFilter", Payload: ir.String("done")})
	assert.Equal(t, ir.String("done"), mustGet(t, e, state, "filter"))

	again, err := e.Reduce(state, ir.Custom{Type: "setFilter", Payload: ir.String("done")})
	require.NoError(t, err)
	assert.True(t, sameState(state, again))
}

func TestReduce_CustomValue(t *testing.T) {
	add := func(old ir.Value, a ir.Custom) (ir.Value, error) {
		n, _ := old.(ir.Int)
		delta, ok := a.Payload.(ir.Int)
		if !ok {
			return nil, errors.New("payload must be an integer")
		}
		return n + delta, nil
	}
	e := newTestEngine(t, ir.Schema{
		"total": {Kind: ir.KindCustomValue, Init: ir.Int(10), ActionType: "add", Reducer: add},
		"half": ir.FormulaEntry(func(p ir.Props) (ir.Value, error) {
			n, _ := p["total"].(ir.Int)
			return n / 2, nil
		}, "total"),
	})

	state := mustReduce(t, e, nil, ir.Custom{Type: "add", Payload: ir.Int(4)})
	assert.Equal(t, ir.Int(14), mustGet(t, e, state, "total"))
	assert.Equal(t, ir.Int(7), mustGet(t, e, state, "half"))

	got, err := e.Reduce(state, ir.Custom{Type: "add", Payload: ir.Int(0)})
	require.NoError(t, err)
	assert.True(t, sameState(state, got))

	_, err = e.Reduce(state, ir.Custom{Type: "add", Payload: ir.String("x")})
	assert.True(t, HasCode(err, ErrCodeReducerFailed))
}

func TestReduce_CustomEntryIsNotRecomputed(t *testing.T) {
	seed := func(sub *ir.Subtree, a ir.Custom) error {
		id, _ := a.Payload.(ir.String)
		return sub.Set(ir.Path{"todos", string(id)}, doc(string(id)))
	}
	s := todoSchema()
	s["seed"] = ir.Entry{Kind: ir.KindCustom, ActionType: "seed", Custom: seed}
	e := newTestEngine(t, s)

	state := mustReduce(t, e, nil, ir.Custom{Type: "seed", Payload: ir.String("x")})
	assert.Equal(t, ir.Object{"x": doc("x")}, mustGet(t, e, state, "todos"))
	assert.Equal(t, ir.Object{}, mustGet(t, e, state, "todosView"), "custom reducers do not trigger recomputation")

	state = mustReduce(t, e, state, ir.Refresh{})
	assert.Equal(t, ir.Object{"x": doc("x")}, mustGet(t, e, state, "todosView"))
}

func TestReduce_Errors(t *testing.T) {
	e := newTestEngine(t, todoSchema())
	state := e.InitialState()

	tests := []struct {
		name   string
		action ir.Action
		code   RuntimeErrorCode
	}{
		{"nil action", nil, ErrCodeMalformedAction},
		{"unknown collection", ir.Insert{Coll: "nope", ID: "a", Doc: doc("a")}, ErrCodeUnknownName},
		{"missing collection", ir.Reset{}, ErrCodeMalformedAction},
		{"insert into view", ir.Insert{Coll: "todosView", ID: "a", Doc: doc("a")}, ErrCodeWrongEntryKind},
		{"insert without id", ir.Insert{Coll: "todos", Doc: doc("a")}, ErrCodeMalformedAction},
		{"insert without doc", ir.Insert{Coll: "todos", ID: "a"}, ErrCodeMalformedAction},
		{"value on formula", ir.SetValue{Name: "count", Value: ir.Int(1)}, ErrCodeWrongEntryKind},
		{"value on collection", ir.SetValue{Name: "todos", Value: ir.Object{}}, ErrCodeWrongEntryKind},
		{"unknown custom type", ir.Custom{Type: "nope"}, ErrCodeUnknownActionType},
		{"repo action", ir.GoLive{}, ErrCodeMalformedAction},
		{"pause view", ir.Pause{Coll: "todosView"}, ErrCodeWrongEntryKind},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.Reduce(state, tt.action)
			require.Error(t, err)
			assert.True(t, HasCode(err, tt.code), "got %v", err)
			assert.True(t, sameState(state, got))
		})
	}
}

func TestReduce_FailingRecipeAborts(t *testing.T) {
	fail := false
	e := newTestEngine(t, ir.Schema{
		"todos": ir.CollectionEntry(),
		"flaky": ir.FormulaEntry(func(ir.Props) (ir.Value, error) {
			if fail {
				return nil, errors.New("boom")
			}
			return ir.Int(0), nil
		}, "todos"),
	})
	fail = true

	state := e.InitialState()
	got, err := e.Reduce(state, ir.Insert{Coll: "todos", ID: "a", Doc: doc("a")})
	require.Error(t, err)
	assert.True(t, HasCode(err, ErrCodeRecipeFailed))
	assert.True(t, sameState(state, got))
}

func TestReduce_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := telemetry.New(reg)
	e := newTestEngine(t, todoSchema(), WithMetrics(m))

	state := mustReduce(t, e, nil, ir.Insert{Coll: "todos", ID: "a", Doc: doc("a")})
	_, _ = e.Reduce(state, ir.Remove{Coll: "todos", ID: "nope"})
	_, _ = e.Reduce(state, ir.Update{Coll: "todos", ID: "nope", Doc: doc("x")})

	assert.Equal(t, float64(1), testutil.ToFloat64(m.ActionsTotal.WithLabelValues(ir.TypeInsert, telemetry.ResultApplied)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ActionsTotal.WithLabelValues(ir.TypeRemove, telemetry.ResultNoop)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ActionsTotal.WithLabelValues(ir.TypeUpdate, telemetry.ResultRejected)))
	// Initial refresh plus the insert, one view and one formula each.
	assert.Equal(t, float64(2), testutil.ToFloat64(m.RecomputesTotal.WithLabelValues("view")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.RecomputesTotal.WithLabelValues("formula")))
}
