// Package engine ties the catalog, the tuple store, the join engine and the
// delta engine together behind a single facade.
//
// Concurrency discipline: a single writer at a time. Batches serialize on the
// engine's write lock and commit atomically; queries pin copy-on-write
// snapshots under the read lock and then run lock-free, so an in-flight query
// observes either the pre-batch or the fully committed post-batch state,
// never a partial one.
package engine

import (
	"fmt"
	"sync"

	"github.com/go-logr/logr"
	"github.com/google/uuid"

	"github.com/l7mp/triejoin/pkg/delta"
	"github.com/l7mp/triejoin/pkg/join"
	"github.com/l7mp/triejoin/pkg/registry"
	"github.com/l7mp/triejoin/pkg/schema"
	"github.com/l7mp/triejoin/pkg/store"
	"github.com/l7mp/triejoin/pkg/zset"
)

// CommitSink is the outbound durability collaborator. After a batch commits
// in memory the engine hands over the netted per-relation deltas; persistence
// is entirely the collaborator's concern.
type CommitSink interface {
	CommitBatch(deltas map[string]*zset.TupleZSet) error
}

// ViewHandle identifies a materialized view registered with the engine.
type ViewHandle = uuid.UUID

// Engine is the relational core: relation catalog, tuple storage, one-shot
// leapfrog joins and incrementally maintained views.
type Engine struct {
	mu    sync.RWMutex
	log   logr.Logger
	reg   *registry.Registry
	store *store.Store
	views map[ViewHandle]*delta.View
	sink  CommitSink
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(log logr.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// WithCommitSink attaches a durability collaborator.
func WithCommitSink(sink CommitSink) Option {
	return func(e *Engine) { e.sink = sink }
}

// New creates an engine with an empty catalog. Each engine owns its own
// registry and store; there is no process-global state.
func New(opts ...Option) *Engine {
	e := &Engine{
		log:   logr.Discard(),
		store: store.NewStore(),
		views: make(map[ViewHandle]*delta.View),
	}
	e.reg = registry.New(e.store)

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// RegisterRelation adds a named relation and allocates its tuple storage.
func (e *Engine) RegisterRelation(name string, sch *schema.Schema) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.reg.Register(name, sch); err != nil {
		return err
	}
	e.store.Create(name, sch)

	e.log.V(1).Info("relation registered", "name", name, "schema", sch.String())

	return nil
}

// RemoveRelation drops a relation and its storage. Views joining over the
// relation are dropped with it.
func (e *Engine) RemoveRelation(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.reg.Remove(name); err != nil {
		return err
	}

	for handle, view := range e.views {
		for _, rel := range view.Relations() {
			if rel == name {
				delete(e.views, handle)
				e.log.V(1).Info("view dropped with relation", "view", handle, "relation", name)
				break
			}
		}
	}

	return nil
}

// HasRelation reports whether the name is registered.
func (e *Engine) HasRelation(name string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.reg.HasRelation(name)
}

// GetSchema returns the schema of a registered relation.
func (e *Engine) GetSchema(name string) (*schema.Schema, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.reg.GetSchema(name)
}

// RelationNames lists registered relations in registration order.
func (e *Engine) RelationNames() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.reg.RelationNames()
}

// Stats returns snapshot statistics for a relation.
func (e *Engine) Stats(name string) (store.Stats, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	rel, err := e.store.Relation(name)
	if err != nil {
		return store.Stats{}, err
	}
	return rel.Snapshot().Stats(), nil
}

// Snapshot returns a stable read-only view of a relation.
func (e *Engine) Snapshot(name string) (*store.Snapshot, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	rel, err := e.store.Relation(name)
	if err != nil {
		return nil, err
	}
	return rel.Snapshot(), nil
}

// Query runs a one-shot leapfrog join and returns the lazy result sequence.
// The iterator reads pinned snapshots: batches committing while the caller
// drains it change nothing it observes.
func (e *Engine) Query(spec join.Spec) (*join.Iterator, error) {
	sources, err := e.pinSources(spec)
	if err != nil {
		return nil, err
	}
	return join.NewIterator(spec, sources)
}

// pinSources snapshots every relation the spec touches under the read lock.
func (e *Engine) pinSources(spec join.Spec) (map[string]join.Source, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	sources := make(map[string]join.Source, len(spec.Terms))
	for _, term := range spec.Terms {
		if _, ok := sources[term.Relation]; ok {
			continue
		}
		rel, err := e.store.Relation(term.Relation)
		if err != nil {
			return nil, err
		}
		sources[term.Relation] = rel.Snapshot()
	}

	return sources, nil
}

// MaterializeView computes the join once, registers the result for
// incremental maintenance and returns its handle.
func (e *Engine) MaterializeView(spec join.Spec) (ViewHandle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	sources := make(map[string]join.Source, len(spec.Terms))
	for _, term := range spec.Terms {
		if _, ok := sources[term.Relation]; ok {
			continue
		}
		rel, err := e.store.Relation(term.Relation)
		if err != nil {
			return ViewHandle{}, err
		}
		sources[term.Relation] = rel.Snapshot()
	}

	view, err := delta.NewView(spec, sources)
	if err != nil {
		return ViewHandle{}, err
	}

	handle := uuid.New()
	e.views[handle] = view

	e.log.V(1).Info("view materialized", "view", handle, "terms", len(spec.Terms))

	return handle, nil
}

// DropView unregisters a materialized view.
func (e *Engine) DropView(handle ViewHandle) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.views[handle]; !ok {
		return fmt.Errorf("unknown view handle %s", handle)
	}
	delete(e.views, handle)

	return nil
}

// ViewState returns the current materialization of a view in deterministic
// order.
func (e *Engine) ViewState(handle ViewHandle) ([]zset.Entry, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	view, ok := e.views[handle]
	if !ok {
		return nil, fmt.Errorf("unknown view handle %s", handle)
	}
	return view.State(), nil
}

// SubmitBatch validates and commits a batch atomically: base relations and
// every materialized view move to the post-batch state together, or the
// batch fails with nothing applied.
func (e *Engine) SubmitBatch(batch delta.Batch) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	_, err := e.commit(batch)
	return err
}

// ApplyBatchToView commits a batch like SubmitBatch and returns the netted
// delta it caused on the named view. All other views are maintained as well.
func (e *Engine) ApplyBatchToView(handle ViewHandle, batch delta.Batch) ([]zset.Entry, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.views[handle]; !ok {
		return nil, fmt.Errorf("unknown view handle %s", handle)
	}

	viewDeltas, err := e.commit(batch)
	if err != nil {
		return nil, err
	}

	return viewDeltas[handle].Entries(), nil
}

// commit is the single write path: validate and net the batch, compute every
// view's delta against pre-batch snapshots, then apply base and view changes.
// Validation failures happen before any mutation, keeping the batch
// all-or-nothing. Caller holds the write lock.
func (e *Engine) commit(batch delta.Batch) (map[ViewHandle]*zset.TupleZSet, error) {
	deltas, err := batch.Normalize(e.reg)
	if err != nil {
		e.log.V(2).Info("batch rejected", "ops", len(batch), "error", err.Error())
		return nil, err
	}

	// Batch tuples must have storage, not just catalog entries.
	for name := range deltas {
		if _, err := e.store.Relation(name); err != nil {
			return nil, err
		}
	}

	// Compute view deltas against pre-batch snapshots.
	viewDeltas := make(map[ViewHandle]*zset.TupleZSet, len(e.views))
	for handle, view := range e.views {
		pre := make(map[string]join.Source)
		for _, name := range view.Relations() {
			rel, err := e.store.Relation(name)
			if err != nil {
				return nil, err
			}
			pre[name] = rel.Snapshot()
		}

		vd, err := delta.ComputeViewDelta(view.Spec(), pre, deltas)
		if err != nil {
			return nil, err
		}
		viewDeltas[handle] = vd
	}

	// Point of no return: apply base deltas, then view deltas.
	for name, d := range deltas {
		rel, _ := e.store.Relation(name)
		if err := rel.ApplyDelta(d); err != nil {
			return nil, fmt.Errorf("failed to apply delta to relation %q: %w", name, err)
		}
	}
	for handle, vd := range viewDeltas {
		if err := e.views[handle].Apply(vd); err != nil {
			return nil, fmt.Errorf("failed to apply delta to view %s: %w", handle, err)
		}
	}

	e.log.V(1).Info("batch committed", "relations", len(deltas), "views", len(viewDeltas))

	if e.sink != nil {
		if err := e.sink.CommitBatch(deltas); err != nil {
			return nil, fmt.Errorf("commit sink failed: %w", err)
		}
	}

	return viewDeltas, nil
}
