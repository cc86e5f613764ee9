package store

import (
	"fmt"

	"github.com/google/btree"

	"github.com/l7mp/triejoin/pkg/schema"
	"github.com/l7mp/triejoin/pkg/zset"
)

// keySentinel orders after every canonical tuple key (keys are JSON arrays,
// so every byte of a real key is below 0xff).
const keySentinel = "\xff"

// Snapshot is a stable read-only view of one relation, taken with Relation
// Snapshot. Queries run entirely against snapshots; a batch committing on the
// live relation never changes what a snapshot observes.
type Snapshot struct {
	name    string
	schema  *schema.Schema
	primary *btree.BTreeG[tupleEntry]
	indexes []*btree.BTreeG[indexEntry]
}

// Name returns the relation name.
func (s *Snapshot) Name() string { return s.name }

// Schema returns the relation schema.
func (s *Snapshot) Schema() *schema.Schema { return s.schema }

// DistinctCount returns the number of distinct tuples in the snapshot.
func (s *Snapshot) DistinctCount() int { return s.primary.Len() }

// ForEach calls fn for every (tuple, multiplicity) pair in ascending tuple
// key order; fn returning false stops the walk.
func (s *Snapshot) ForEach(fn func(tuple schema.Tuple, mult int) bool) {
	s.primary.Ascend(func(e tupleEntry) bool {
		return fn(e.tuple, e.mult)
	})
}

// Entries returns all (tuple, multiplicity) pairs in ascending tuple key
// order.
func (s *Snapshot) Entries() []zset.Entry {
	entries := make([]zset.Entry, 0, s.primary.Len())
	s.ForEach(func(tuple schema.Tuple, mult int) bool {
		entries = append(entries, zset.Entry{Tuple: tuple, Count: mult})
		return true
	})
	return entries
}

// Multiplicity returns the multiplicity of a tuple in the snapshot, zero if
// absent.
func (s *Snapshot) Multiplicity(tuple schema.Tuple) (int, error) {
	norm, err := s.schema.Normalize(tuple)
	if err != nil {
		return 0, err
	}
	key, err := zset.Key(norm)
	if err != nil {
		return 0, err
	}

	entry, ok := s.primary.Get(tupleEntry{key: key})
	if !ok {
		return 0, nil
	}
	return entry.mult, nil
}

// ScanAttribute returns a fresh cursor over the distinct values of the named
// attribute in ascending value order. The cursor is lazy: each Next step is a
// single index seek.
func (s *Snapshot) ScanAttribute(attr string) (*AttrCursor, error) {
	pos, ok := s.schema.ColumnIndex(attr)
	if !ok {
		return nil, fmt.Errorf("relation %q has no attribute %q", s.name, attr)
	}
	colType, _ := s.schema.ColumnType(attr)

	return &AttrCursor{idx: s.indexes[pos], colType: colType}, nil
}

// SeekAttribute returns the smallest distinct value of the named attribute
// that is >= the given value, if any.
func (s *Snapshot) SeekAttribute(attr string, value any) (any, bool, error) {
	pos, ok := s.schema.ColumnIndex(attr)
	if !ok {
		return nil, false, fmt.Errorf("relation %q has no attribute %q", s.name, attr)
	}
	colType, _ := s.schema.ColumnType(attr)

	norm, err := schema.NormalizeValue(value, colType)
	if err != nil {
		return nil, false, err
	}

	var found any
	ok = false
	s.indexes[pos].AscendGreaterOrEqual(indexEntry{value: norm, key: ""}, func(e indexEntry) bool {
		found, ok = e.value, true
		return false
	})

	return found, ok, nil
}

// Stats summarizes a snapshot for diagnostics.
type Stats struct {
	Name           string
	DistinctTuples int
	TotalTuples    int
	IndexedValues  []int // distinct values per attribute, in schema order
}

// Stats computes snapshot statistics. Distinct value counts walk the indexes,
// so this is a diagnostic operation, not a hot-path one.
func (s *Snapshot) Stats() Stats {
	st := Stats{
		Name:           s.name,
		DistinctTuples: s.primary.Len(),
		IndexedValues:  make([]int, len(s.indexes)),
	}

	s.primary.Ascend(func(e tupleEntry) bool {
		st.TotalTuples += e.mult
		return true
	})

	cols := s.schema.Columns()
	for i, idx := range s.indexes {
		colType := cols[i].Type
		n := 0
		var last any
		idx.Ascend(func(e indexEntry) bool {
			if n == 0 || schema.CompareValues(colType, e.value, last) != 0 {
				n++
				last = e.value
			}
			return true
		})
		st.IndexedValues[i] = n
	}

	return st
}

// AttrCursor is a lazy ascending cursor over the distinct values of one
// attribute. A fresh cursor starts before the first value; it never moves
// backward.
type AttrCursor struct {
	idx     *btree.BTreeG[indexEntry]
	colType schema.ColumnType
	cur     any
	started bool
	done    bool
}

// Next advances to the next distinct value and returns it, or reports
// exhaustion.
func (c *AttrCursor) Next() (any, bool) {
	if c.done {
		return nil, false
	}

	var pivot indexEntry
	if !c.started {
		min, ok := c.idx.Min()
		if !ok {
			c.done = true
			return nil, false
		}
		c.cur, c.started = min.value, true
		return c.cur, true
	}

	// Smallest entry strictly above every (cur, key) pair.
	pivot = indexEntry{value: c.cur, key: keySentinel}
	found := false
	c.idx.AscendGreaterOrEqual(pivot, func(e indexEntry) bool {
		c.cur, found = e.value, true
		return false
	})
	if !found {
		c.done = true
		return nil, false
	}

	return c.cur, true
}

// Seek advances the cursor to the smallest distinct value >= the given
// normalized value and returns it, or reports exhaustion. Seeking backward is
// clamped to the current position.
func (c *AttrCursor) Seek(value any) (any, bool) {
	if c.done {
		return nil, false
	}
	if c.started && schema.CompareValues(c.colType, value, c.cur) <= 0 {
		return c.cur, true
	}

	found := false
	c.idx.AscendGreaterOrEqual(indexEntry{value: value, key: ""}, func(e indexEntry) bool {
		c.cur, found = e.value, true
		return false
	})
	c.started = true
	if !found {
		c.done = true
		return nil, false
	}

	return c.cur, true
}
