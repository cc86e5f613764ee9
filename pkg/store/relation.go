package store

import (
	"fmt"

	"github.com/google/btree"

	"github.com/l7mp/triejoin/pkg/schema"
	"github.com/l7mp/triejoin/pkg/zset"
)

// B-tree degree for the primary set and the attribute indexes.
const btreeDegree = 16

// tupleEntry is one distinct tuple of a relation with its multiplicity,
// ordered by canonical tuple key.
type tupleEntry struct {
	key   string
	tuple schema.Tuple
	mult  int
}

// indexEntry is one (value, tuple key) pair of an attribute index, ordered by
// value first and tuple key second.
type indexEntry struct {
	value any
	key   string
}

// Relation is the tuple storage of one registered relation: a multiset of
// schema-valid tuples with per-attribute sorted indexes. The sum of
// multiplicities for a tuple key is never negative; a tuple whose
// multiplicity reaches zero is evicted from the primary set and every index.
type Relation struct {
	name    string
	schema  *schema.Schema
	primary *btree.BTreeG[tupleEntry]
	indexes []*btree.BTreeG[indexEntry]
}

// NewRelation creates empty storage for a relation with the given schema.
func NewRelation(name string, sch *schema.Schema) *Relation {
	rel := &Relation{
		name:   name,
		schema: sch,
		primary: btree.NewG(btreeDegree, func(a, b tupleEntry) bool {
			return a.key < b.key
		}),
		indexes: make([]*btree.BTreeG[indexEntry], sch.Arity()),
	}

	for i, col := range sch.Columns() {
		colType := col.Type
		rel.indexes[i] = btree.NewG(btreeDegree, func(a, b indexEntry) bool {
			if c := schema.CompareValues(colType, a.value, b.value); c != 0 {
				return c < 0
			}
			return a.key < b.key
		})
	}

	return rel
}

// Name returns the relation name.
func (r *Relation) Name() string { return r.name }

// Schema returns the relation schema.
func (r *Relation) Schema() *schema.Schema { return r.schema }

// Insert adds count occurrences of a tuple. The tuple must be schema-valid;
// it is normalized before storage.
func (r *Relation) Insert(tuple schema.Tuple, count int) error {
	if count <= 0 {
		return fmt.Errorf("insert count must be positive, got %d", count)
	}

	norm, err := r.schema.Normalize(tuple)
	if err != nil {
		return err
	}
	key, err := zset.Key(norm)
	if err != nil {
		return err
	}

	r.add(key, norm, count)
	return nil
}

// Delete removes count occurrences of a tuple. The multiplicity floors at
// zero: deleting more occurrences than stored evicts the tuple and stops.
func (r *Relation) Delete(tuple schema.Tuple, count int) error {
	if count <= 0 {
		return fmt.Errorf("delete count must be positive, got %d", count)
	}

	norm, err := r.schema.Normalize(tuple)
	if err != nil {
		return err
	}
	key, err := zset.Key(norm)
	if err != nil {
		return err
	}

	r.add(key, norm, -count)
	return nil
}

// ApplyDelta folds a Z-set of normalized tuples into the relation: positive
// counts insert, negative counts delete (floored at zero as in Delete).
func (r *Relation) ApplyDelta(delta *zset.TupleZSet) error {
	for _, e := range delta.Entries() {
		key, err := zset.Key(e.Tuple)
		if err != nil {
			return err
		}
		r.add(key, e.Tuple, e.Count)
	}
	return nil
}

// add applies a signed multiplicity change for an already-normalized tuple,
// flooring the stored multiplicity at zero and keeping every index in step.
func (r *Relation) add(key string, tuple schema.Tuple, count int) {
	cur, exists := r.primary.Get(tupleEntry{key: key})

	if !exists {
		if count <= 0 {
			return // deleting an absent tuple is a no-op
		}
		r.primary.ReplaceOrInsert(tupleEntry{key: key, tuple: tuple, mult: count})
		for i := range r.indexes {
			r.indexes[i].ReplaceOrInsert(indexEntry{value: tuple[i], key: key})
		}
		return
	}

	next := cur.mult + count
	if next > 0 {
		r.primary.ReplaceOrInsert(tupleEntry{key: key, tuple: cur.tuple, mult: next})
		return
	}

	// Multiplicity reached (or would pass) zero: evict everywhere.
	r.primary.Delete(tupleEntry{key: key})
	for i := range r.indexes {
		r.indexes[i].Delete(indexEntry{value: cur.tuple[i], key: key})
	}
}

// Multiplicity returns the stored multiplicity of a tuple, zero if absent.
func (r *Relation) Multiplicity(tuple schema.Tuple) (int, error) {
	norm, err := r.schema.Normalize(tuple)
	if err != nil {
		return 0, err
	}
	key, err := zset.Key(norm)
	if err != nil {
		return 0, err
	}

	entry, ok := r.primary.Get(tupleEntry{key: key})
	if !ok {
		return 0, nil
	}
	return entry.mult, nil
}

// DistinctCount returns the number of distinct tuples stored.
func (r *Relation) DistinctCount() int { return r.primary.Len() }

// Snapshot returns a stable read-only view of the relation. The clone is
// copy-on-write: subsequent mutation of the live relation does not disturb
// the snapshot, and taking one is O(1).
func (r *Relation) Snapshot() *Snapshot {
	indexes := make([]*btree.BTreeG[indexEntry], len(r.indexes))
	for i := range r.indexes {
		indexes[i] = r.indexes[i].Clone()
	}

	return &Snapshot{
		name:    r.name,
		schema:  r.schema,
		primary: r.primary.Clone(),
		indexes: indexes,
	}
}
