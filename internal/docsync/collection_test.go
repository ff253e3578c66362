package docsync

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/strata/internal/engine"
	"github.com/roach88/strata/internal/ir"
	"github.com/roach88/strata/internal/store"
	"github.com/roach88/strata/internal/testutil"
)

type fixture struct {
	engine *engine.Engine
	local  *Local
	coll   *Collection
	calls  *int
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	calls := new(int)
	count := func(props ir.Props) (ir.Value, error) {
		*calls++
		docs, _ := props["todos"].(ir.Object)
		return ir.Int(len(docs)), nil
	}
	e, err := engine.New(ir.Schema{
		"todos": ir.CollectionEntry(),
		"count": ir.FormulaEntry(count, "todos"),
	}, engine.WithLogger(discardLogger()))
	require.NoError(t, err)

	local := NewLocal(e)
	opts = append([]Option{WithLogger(discardLogger()), WithIDGenerator(testutil.NewFixedIDs("t1", "t2", "t3"))}, opts...)
	c, err := NewCollection(e, local, "todos", opts...)
	require.NoError(t, err)
	*calls = 0
	return &fixture{engine: e, local: local, coll: c, calls: calls}
}

func (f *fixture) count(t *testing.T) ir.Value {
	t.Helper()
	v, err := f.engine.Get(f.local.State(), "count")
	require.NoError(t, err)
	return v
}

func TestInsert_GeneratesID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id, err := f.coll.Insert(ctx, map[string]any{"title": "buy milk"})
	require.NoError(t, err)
	assert.Equal(t, "t1", id)
	assert.True(t, f.coll.Has("t1"))

	doc, ok, err := f.coll.Find("t1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, ir.Object{"_id": ir.String("t1"), "title": ir.String("buy milk")}, doc)
	assert.Equal(t, ir.Int(1), f.count(t))
}

func TestInsert_ExplicitIDAndDuplicate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id, err := f.coll.Insert(ctx, map[string]any{"_id": "mine", "title": "x"})
	require.NoError(t, err)
	assert.Equal(t, "mine", id)

	_, err = f.coll.Insert(ctx, map[string]any{"_id": "mine"})
	assert.ErrorIs(t, err, ErrDuplicateID)
	assert.Equal(t, 1, f.coll.Len())
}

func TestInsert_RejectsNonObject(t *testing.T) {
	f := newFixture(t)

	_, err := f.coll.Insert(context.Background(), "not a document")
	assert.Error(t, err)
	assert.Equal(t, 0, f.coll.Len())
}

func TestUpdate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.coll.Update(ctx, "missing", map[string]any{"n": 1})
	assert.True(t, engine.IsDocumentNotFound(err))

	id, err := f.coll.Insert(ctx, map[string]any{"n": 5})
	require.NoError(t, err)
	require.NoError(t, f.coll.Update(ctx, id, map[string]any{"$inc": map[string]any{"n": 1}}))

	doc, _, err := f.coll.Find(id)
	require.NoError(t, err)
	assert.Equal(t, ir.Int(6), doc["n"])
}

func TestRemove(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	before := f.local.State()
	require.NoError(t, f.coll.Remove(ctx, "missing"))
	assert.Equal(t, before, f.local.State())

	id, err := f.coll.Insert(ctx, map[string]any{"title": "x"})
	require.NoError(t, err)
	require.NoError(t, f.coll.Remove(ctx, id))
	assert.False(t, f.coll.Has(id))

	_, ok, err := f.coll.Find(id)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, ir.Int(0), f.count(t))
}

func TestReset(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := f.coll.Insert(ctx, map[string]any{})
		require.NoError(t, err)
	}
	require.NoError(t, f.coll.Reset(ctx))
	assert.Equal(t, 0, f.coll.Len())

	all, err := f.coll.FindAll()
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestPause_BuffersUntilResume(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.coll.Pause(ctx))
	assert.True(t, f.coll.Paused())

	for i := 0; i < 3; i++ {
		_, err := f.coll.Insert(ctx, map[string]any{"i": i})
		require.NoError(t, err)
	}
	require.NoError(t, f.coll.Update(ctx, "t2", map[string]any{"$set": map[string]any{"done": true}}))

	assert.True(t, f.coll.Has("t3"), "presence cache sees buffered writes")
	_, ok, err := f.coll.Find("t3")
	require.NoError(t, err)
	assert.False(t, ok, "buffered writes are not committed")
	assert.Equal(t, 4, f.coll.Pending())

	callsBefore := *f.calls
	require.NoError(t, f.coll.Resume(ctx))
	assert.False(t, f.coll.Paused())
	assert.Equal(t, 0, f.coll.Pending())
	assert.Equal(t, ir.Int(3), f.count(t))
	assert.Equal(t, callsBefore+1, *f.calls, "dependents recompute once on resume")

	doc, ok, err := f.coll.Find("t2")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, ir.Bool(true), doc["done"])
}

func TestFlush_KeepsPaused(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.coll.Pause(ctx))
	_, err := f.coll.Insert(ctx, map[string]any{})
	require.NoError(t, err)
	require.NoError(t, f.coll.Flush(ctx))

	_, ok, err := f.coll.Find("t1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, f.coll.Paused())
	assert.Equal(t, ir.Int(0), f.count(t), "paused dependents stay frozen")

	require.NoError(t, f.coll.Flush(ctx), "empty flush is a no-op")
}

// failingDispatcher rejects every Batch.
type failingDispatcher struct {
	*Local
}

func (d failingDispatcher) Dispatch(ctx context.Context, a ir.Action) (ir.Object, error) {
	if _, ok := a.(ir.Batch); ok {
		return d.State(), errors.New("batch refused")
	}
	return d.Local.Dispatch(ctx, a)
}

func TestFlush_FailureResyncsCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	c, err := NewCollection(f.engine, failingDispatcher{f.local}, "todos",
		WithLogger(discardLogger()), WithIDGenerator(testutil.NewSequentialIDs("x")))
	require.NoError(t, err)

	_, err = c.Insert(ctx, map[string]any{"_id": "kept"})
	require.NoError(t, err)
	require.NoError(t, c.Pause(ctx))
	_, err = c.Insert(ctx, map[string]any{})
	require.NoError(t, err)
	assert.True(t, c.Has("x-0001"))

	assert.Error(t, c.Flush(ctx))
	assert.False(t, c.Has("x-0001"))
	assert.True(t, c.Has("kept"))
	assert.Equal(t, 0, c.Pending())
}

func TestOriginals(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id, err := f.coll.Insert(ctx, map[string]any{"title": "before"})
	require.NoError(t, err)

	require.NoError(t, f.coll.SaveOriginals(ctx))
	require.NoError(t, f.coll.Update(ctx, id, map[string]any{"title": "after"}))
	require.NoError(t, f.coll.Update(ctx, id, map[string]any{"title": "again"}))
	added, err := f.coll.Insert(ctx, map[string]any{"title": "new"})
	require.NoError(t, err)

	originals, err := f.coll.RetrieveOriginals(ctx)
	require.NoError(t, err)
	assert.Equal(t, ir.Object{
		id:    ir.Object{"_id": ir.String(id), "title": ir.String("before")},
		added: ir.Null{},
	}, originals)

	_, err = f.coll.RetrieveOriginals(ctx)
	assert.True(t, engine.IsNoOriginalsSession(err))
}

func TestNewCollection_SeedsCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.coll.Insert(ctx, map[string]any{})
	require.NoError(t, err)
	require.NoError(t, f.coll.Pause(ctx))

	other, err := NewCollection(f.engine, f.local, "todos")
	require.NoError(t, err)
	assert.True(t, other.Has("t1"))
	assert.True(t, other.Paused(), "pause flag is read from state")

	_, err = NewCollection(f.engine, f.local, "count")
	assert.True(t, engine.HasCode(err, engine.ErrCodeWrongEntryKind))
}

func TestCollection_JournaledThroughRecorder(t *testing.T) {
	ctx := context.Background()
	e, err := engine.New(ir.Schema{"todos": ir.CollectionEntry()}, engine.WithLogger(discardLogger()))
	require.NoError(t, err)

	s, err := store.Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	rec, err := store.NewRecorder(ctx, s, store.Session{ID: "sync"}, e.InitialState(), e.Reduce)
	require.NoError(t, err)

	c, err := NewCollection(e, rec, "todos", WithIDGenerator(testutil.NewSequentialIDs("doc")))
	require.NoError(t, err)
	id, err := c.Insert(ctx, map[string]any{"n": 1})
	require.NoError(t, err)
	require.NoError(t, c.Update(ctx, id, map[string]any{"$inc": map[string]any{"n": 1}}))
	require.NoError(t, c.Remove(ctx, id))

	entries, err := s.ReadJournal(ctx, "sync")
	require.NoError(t, err)
	require.Len(t, entries, 4)
	assert.Equal(t, ir.TypeInit, entries[0].Type)
	assert.Equal(t, ir.TypeInsert, entries[1].Type)
	assert.Equal(t, ir.TypeUpdate, entries[2].Type)
	assert.Equal(t, ir.TypeRemove, entries[3].Type)

	res, err := s.Replay(ctx, "sync", e.InitialState(), e.Reduce)
	require.NoError(t, err)
	assert.True(t, res.OK())
}
