// Package zset implements Z-sets over relation tuples: multisets where every
// tuple carries a signed integer multiplicity. Z-sets are the currency of
// incremental maintenance: delta batches, view states and emitted view deltas
// are all Z-sets, and insert/delete netting falls out of signed addition.
package zset

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/l7mp/triejoin/pkg/schema"
)

// TupleZSet is a Z-set of tuples. Tuples are identified by their canonical
// key; each key carries an integer multiplicity, negative multiplicities
// representing pending deletions. A multiplicity of zero is never stored.
type TupleZSet struct {
	tuples map[string]schema.Tuple
	counts map[string]int
}

// Entry is one (tuple, multiplicity) pair of a Z-set.
type Entry struct {
	Tuple schema.Tuple
	Count int
}

// New creates an empty TupleZSet.
func New() *TupleZSet {
	return &TupleZSet{
		tuples: make(map[string]schema.Tuple),
		counts: make(map[string]int),
	}
}

// Singleton creates a Z-set holding one tuple with the given multiplicity.
func Singleton(tuple schema.Tuple, count int) (*TupleZSet, error) {
	zs := New()
	if err := zs.AddTupleMutate(tuple, count); err != nil {
		return nil, err
	}
	return zs, nil
}

// Key returns the canonical key of a normalized tuple. Tuples must already be
// normalized by their schema; the key defines tuple identity within a Z-set.
func Key(tuple schema.Tuple) (string, error) {
	bytes, err := json.Marshal([]any(tuple))
	if err != nil {
		return "", fmt.Errorf("failed to encode tuple: %w", err)
	}
	return string(bytes), nil
}

// AddTupleMutate adds a tuple with the given multiplicity in place. Entries
// whose multiplicity reaches zero are removed, so an insert and a delete of
// the same tuple cancel without trace.
func (zs *TupleZSet) AddTupleMutate(tuple schema.Tuple, count int) error {
	if count == 0 {
		return nil
	}

	key, err := Key(tuple)
	if err != nil {
		return err
	}

	if _, exists := zs.counts[key]; exists {
		zs.counts[key] += count
	} else {
		zs.tuples[key] = tuple
		zs.counts[key] = count
	}

	if zs.counts[key] == 0 {
		delete(zs.counts, key)
		delete(zs.tuples, key)
	}

	return nil
}

// AddTuple adds a tuple with the given multiplicity and returns a new Z-set,
// leaving the receiver unchanged.
func (zs *TupleZSet) AddTuple(tuple schema.Tuple, count int) (*TupleZSet, error) {
	result := zs.Copy()
	if err := result.AddTupleMutate(tuple, count); err != nil {
		return nil, err
	}
	return result, nil
}

// Add performs Z-set addition (multiset union with signed multiplicities).
func (zs *TupleZSet) Add(other *TupleZSet) (*TupleZSet, error) {
	result := zs.Copy()
	if other == nil {
		return result, nil
	}

	for key, count := range other.counts {
		if err := result.AddTupleMutate(other.tuples[key], count); err != nil {
			return nil, err
		}
	}

	return result, nil
}

// AddMutate folds another Z-set into the receiver.
func (zs *TupleZSet) AddMutate(other *TupleZSet) error {
	if other == nil {
		return nil
	}
	for key, count := range other.counts {
		if err := zs.AddTupleMutate(other.tuples[key], count); err != nil {
			return err
		}
	}
	return nil
}

// Subtract performs Z-set subtraction.
func (zs *TupleZSet) Subtract(other *TupleZSet) (*TupleZSet, error) {
	result := zs.Copy()
	if other == nil {
		return result, nil
	}

	for key, count := range other.counts {
		if err := result.AddTupleMutate(other.tuples[key], -count); err != nil {
			return nil, err
		}
	}

	return result, nil
}

// Copy returns an independent copy of the Z-set. Tuples themselves are shared:
// normalized tuples are treated as immutable everywhere in the engine.
func (zs *TupleZSet) Copy() *TupleZSet {
	result := &TupleZSet{
		tuples: make(map[string]schema.Tuple, len(zs.tuples)),
		counts: make(map[string]int, len(zs.counts)),
	}
	for key, tuple := range zs.tuples {
		result.tuples[key] = tuple
		result.counts[key] = zs.counts[key]
	}
	return result
}

// Multiplicity returns the stored multiplicity of a tuple, zero if absent.
func (zs *TupleZSet) Multiplicity(tuple schema.Tuple) (int, error) {
	key, err := Key(tuple)
	if err != nil {
		return 0, err
	}
	return zs.counts[key], nil
}

// IsZero reports whether the Z-set holds no entries.
func (zs *TupleZSet) IsZero() bool { return len(zs.counts) == 0 }

// UniqueCount returns the number of distinct tuples.
func (zs *TupleZSet) UniqueCount() int { return len(zs.counts) }

// Entries returns the (tuple, multiplicity) pairs ordered by canonical tuple
// key. The order is deterministic across runs.
func (zs *TupleZSet) Entries() []Entry {
	keys := make([]string, 0, len(zs.counts))
	for key := range zs.counts {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	entries := make([]Entry, len(keys))
	for i, key := range keys {
		entries[i] = Entry{Tuple: zs.tuples[key], Count: zs.counts[key]}
	}
	return entries
}

// String implements fmt.Stringer.
func (zs *TupleZSet) String() string {
	entries := zs.Entries()
	parts := make([]string, len(entries))
	for i, e := range entries {
		parts[i] = fmt.Sprintf("%v:%d", []any(e.Tuple), e.Count)
	}
	return "{" + strings.Join(parts, " ") + "}"
}
