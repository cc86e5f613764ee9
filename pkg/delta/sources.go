package delta

import (
	"github.com/l7mp/triejoin/pkg/join"
	"github.com/l7mp/triejoin/pkg/schema"
	"github.com/l7mp/triejoin/pkg/zset"
)

// clampDelta floors a relation delta against the pre-batch state. Insertions
// pass through; a deletion clamps at the stored multiplicity and a deletion
// of an absent tuple drops out, so the result is exactly the change the store
// makes when it applies the delta.
func clampDelta(base join.Source, d *zset.TupleZSet) (*zset.TupleZSet, error) {
	entries := d.Entries()

	hasNegative := false
	for _, e := range entries {
		if e.Count < 0 {
			hasNegative = true
			break
		}
	}
	if !hasNegative {
		return d, nil
	}

	stored, err := multiplicityLookup(base)
	if err != nil {
		return nil, err
	}

	out := zset.New()
	for _, e := range entries {
		count := e.Count
		if count < 0 {
			mult, err := stored(e.Tuple)
			if err != nil {
				return nil, err
			}
			if count < -mult {
				count = -mult
			}
		}
		if err := out.AddTupleMutate(e.Tuple, count); err != nil {
			return nil, err
		}
	}

	return out, nil
}

// multiplicityLookup returns a point multiplicity lookup over a source. Store
// snapshots answer directly; other sources are walked once.
func multiplicityLookup(base join.Source) (func(schema.Tuple) (int, error), error) {
	if ms, ok := base.(interface {
		Multiplicity(tuple schema.Tuple) (int, error)
	}); ok {
		return ms.Multiplicity, nil
	}

	counts := make(map[string]int)
	var walkErr error
	base.ForEach(func(tuple schema.Tuple, mult int) bool {
		key, err := zset.Key(tuple)
		if err != nil {
			walkErr = err
			return false
		}
		counts[key] = mult
		return true
	})
	if walkErr != nil {
		return nil, walkErr
	}

	return func(tuple schema.Tuple) (int, error) {
		key, err := zset.Key(tuple)
		if err != nil {
			return 0, err
		}
		return counts[key], nil
	}, nil
}

// zsetSource exposes a Z-set as a join source. Multiplicities keep their
// sign: a pinned deletion joins with a negative count, producing the negative
// view delta directly.
type zsetSource struct {
	sch *schema.Schema
	zs  *zset.TupleZSet
}

func (s *zsetSource) Schema() *schema.Schema { return s.sch }

func (s *zsetSource) ForEach(fn func(tuple schema.Tuple, mult int) bool) {
	for _, e := range s.zs.Entries() {
		if !fn(e.Tuple, e.Count) {
			return
		}
	}
}

// overlaySource exposes the post-batch state of a relation without committing
// it: a pre-batch snapshot merged with a pending delta. Multiplicities floor
// at zero, mirroring what the store will hold after commit.
type overlaySource struct {
	base  join.Source
	delta *zset.TupleZSet
}

func (s *overlaySource) Schema() *schema.Schema { return s.base.Schema() }

func (s *overlaySource) ForEach(fn func(tuple schema.Tuple, mult int) bool) {
	seen := make(map[string]bool, s.delta.UniqueCount())

	stopped := false
	s.base.ForEach(func(tuple schema.Tuple, mult int) bool {
		adj, err := s.delta.Multiplicity(tuple)
		if err == nil && adj != 0 {
			key, _ := zset.Key(tuple)
			seen[key] = true
			mult += adj
		}
		if mult <= 0 {
			return true
		}
		if !fn(tuple, mult) {
			stopped = true
			return false
		}
		return true
	})
	if stopped {
		return
	}

	// Inserts of tuples absent from the snapshot.
	for _, e := range s.delta.Entries() {
		key, err := zset.Key(e.Tuple)
		if err != nil || seen[key] || e.Count <= 0 {
			continue
		}
		if !fn(e.Tuple, e.Count) {
			return
		}
	}
}
