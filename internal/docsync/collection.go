package docsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/strata/internal/engine"
	"github.com/roach88/strata/internal/ids"
	"github.com/roach88/strata/internal/ir"
)

// IDField is the document field carrying the document id.
const IDField = "_id"

// ErrDuplicateID is returned by Insert when the id is already present.
var ErrDuplicateID = errors.New("duplicate document id")

// Collection is the sync adapter for one collection.
//
// Thread-safety: NOT safe for concurrent use. The presence cache and the
// pause buffer belong to a single client.
type Collection struct {
	name    string
	engine  *engine.Engine
	target  Dispatcher
	ids     ids.Generator
	logger  *slog.Logger
	present map[string]struct{}
	paused  bool
	pending []ir.Action
}

// Option configures a Collection.
type Option func(*Collection)

// WithIDGenerator sets the generator for documents inserted without an id.
// The default is UUIDv7.
func WithIDGenerator(g ids.Generator) Option {
	return func(c *Collection) {
		c.ids = g
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Collection) {
		c.logger = l
	}
}

// NewCollection binds an adapter to coll and seeds the presence cache from
// the target's current state.
func NewCollection(e *engine.Engine, target Dispatcher, coll string, opts ...Option) (*Collection, error) {
	c := &Collection{
		name:    coll,
		engine:  e,
		target:  target,
		ids:     ids.UUIDv7{},
		logger:  slog.Default(),
		present: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	docs, err := c.committed()
	if err != nil {
		return nil, err
	}
	for id := range docs {
		c.present[id] = struct{}{}
	}
	c.paused, err = e.Paused(target.State(), coll)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Name returns the collection name.
func (c *Collection) Name() string {
	return c.name
}

// Has reports whether id exists, counting buffered writes.
func (c *Collection) Has(id string) bool {
	_, ok := c.present[id]
	return ok
}

// Len returns the number of ids in the presence cache.
func (c *Collection) Len() int {
	return len(c.present)
}

// Insert adds doc and returns its id. The id is taken from the document's
// _id field, or generated and written into it.
func (c *Collection) Insert(ctx context.Context, doc any) (string, error) {
	obj, err := toObject(doc)
	if err != nil {
		return "", fmt.Errorf("insert into %s: %w", c.name, err)
	}
	id, _ := obj[IDField].(ir.String)
	if id == "" {
		id = ir.String(c.ids.Generate())
		obj[IDField] = id
	}
	if c.Has(string(id)) {
		return "", fmt.Errorf("insert into %s: %w: %s", c.name, ErrDuplicateID, id)
	}
	a, err := c.engine.Actions().Insert(c.name, string(id), obj)
	if err != nil {
		return "", err
	}
	if err := c.write(ctx, a); err != nil {
		return "", err
	}
	c.present[string(id)] = struct{}{}
	return string(id), nil
}

// Update replaces or modifies the document at id. Unknown ids fail with a
// DOCUMENT_NOT_FOUND runtime error before anything is dispatched.
func (c *Collection) Update(ctx context.Context, id string, doc any) error {
	if !c.Has(id) {
		return engine.NewDocumentNotFoundError(c.name, id)
	}
	a, err := c.engine.Actions().Update(c.name, id, doc)
	if err != nil {
		return err
	}
	return c.write(ctx, a)
}

// Remove deletes the document at id. Removing an unknown id is a no-op.
func (c *Collection) Remove(ctx context.Context, id string) error {
	if !c.Has(id) {
		return nil
	}
	a, err := c.engine.Actions().Remove(c.name, id)
	if err != nil {
		return err
	}
	if err := c.write(ctx, a); err != nil {
		return err
	}
	delete(c.present, id)
	return nil
}

// Reset removes every document and clears the presence cache.
func (c *Collection) Reset(ctx context.Context) error {
	a, err := c.engine.Actions().Reset(c.name)
	if err != nil {
		return err
	}
	if err := c.write(ctx, a); err != nil {
		return err
	}
	clear(c.present)
	return nil
}

// Find returns the committed document at id. Writes still in the pause
// buffer are not visible until Flush.
func (c *Collection) Find(id string) (ir.Object, bool, error) {
	docs, err := c.committed()
	if err != nil {
		return nil, false, err
	}
	doc, ok := docs[id].(ir.Object)
	return doc, ok, nil
}

// FindAll returns every committed document keyed by id.
func (c *Collection) FindAll() (ir.Object, error) {
	return c.committed()
}

// Pause pauses dependents of the collection and starts buffering writes.
func (c *Collection) Pause(ctx context.Context) error {
	if c.paused {
		return nil
	}
	a, err := c.engine.Actions().Pause(c.name)
	if err != nil {
		return err
	}
	if _, err := c.target.Dispatch(ctx, a); err != nil {
		return err
	}
	c.paused = true
	return nil
}

// Paused reports whether writes are being buffered.
func (c *Collection) Paused() bool {
	return c.paused
}

// Pending returns the number of buffered writes.
func (c *Collection) Pending() int {
	return len(c.pending)
}

// Flush dispatches buffered writes as a single Batch. The collection stays
// paused.
func (c *Collection) Flush(ctx context.Context) error {
	if len(c.pending) == 0 {
		return nil
	}
	a, err := c.engine.Actions().Batch(c.name, c.pending...)
	if err != nil {
		return err
	}
	if _, err := c.target.Dispatch(ctx, a); err != nil {
		// The batch is atomic: nothing was applied, so the cache is
		// rebuilt from committed state.
		c.pending = nil
		if rerr := c.resync(); rerr != nil {
			return errors.Join(err, rerr)
		}
		return err
	}
	c.logger.Debug("flushed pause buffer", "collection", c.name, "writes", len(c.pending))
	c.pending = nil
	return nil
}

// Resume flushes buffered writes and resumes dependents, which then
// recompute against the flushed documents.
func (c *Collection) Resume(ctx context.Context) error {
	if !c.paused {
		return nil
	}
	if err := c.Flush(ctx); err != nil {
		return err
	}
	a, err := c.engine.Actions().Resume(c.name)
	if err != nil {
		return err
	}
	if _, err := c.target.Dispatch(ctx, a); err != nil {
		return err
	}
	c.paused = false
	return nil
}

// SaveOriginals opens an originals session. Writes from now on record the
// pre-write version of each document they touch.
func (c *Collection) SaveOriginals(ctx context.Context) error {
	if err := c.Flush(ctx); err != nil {
		return err
	}
	a, err := c.engine.Actions().SaveOriginals(c.name)
	if err != nil {
		return err
	}
	_, err = c.target.Dispatch(ctx, a)
	return err
}

// RetrieveOriginals flushes, returns the originals recorded since
// SaveOriginals and closes the session. Documents that did not exist when
// the session opened map to Null.
func (c *Collection) RetrieveOriginals(ctx context.Context) (ir.Object, error) {
	if err := c.Flush(ctx); err != nil {
		return nil, err
	}
	originals, err := c.engine.Originals(c.target.State(), c.name)
	if err != nil {
		return nil, err
	}
	a, err := c.engine.Actions().RetrieveOriginals(c.name)
	if err != nil {
		return nil, err
	}
	if _, err := c.target.Dispatch(ctx, a); err != nil {
		return nil, err
	}
	return originals, nil
}

func (c *Collection) write(ctx context.Context, a ir.Action) error {
	if c.paused {
		c.pending = append(c.pending, a)
		return nil
	}
	_, err := c.target.Dispatch(ctx, a)
	return err
}

func (c *Collection) committed() (ir.Object, error) {
	v, err := c.engine.Get(c.target.State(), c.name)
	if err != nil {
		return nil, err
	}
	docs, _ := v.(ir.Object)
	return docs, nil
}

func (c *Collection) resync() error {
	docs, err := c.committed()
	if err != nil {
		return err
	}
	clear(c.present)
	for id := range docs {
		c.present[id] = struct{}{}
	}
	return nil
}

func toObject(doc any) (ir.Object, error) {
	v, err := ir.FromGo(doc)
	if err != nil {
		return nil, err
	}
	obj, ok := v.(ir.Object)
	if !ok {
		return nil, fmt.Errorf("document must be an object, got %T", v)
	}
	return obj.Clone(), nil
}
