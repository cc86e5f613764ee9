package delta

import (
	"github.com/l7mp/triejoin/pkg/join"
	"github.com/l7mp/triejoin/pkg/zset"
)

// ComputeViewDelta computes the net change a batch makes to the join result
// of spec, given pre-batch sources for every participating relation and the
// batch netted into per-relation Z-sets.
//
// Deltas are first floored against the pre-batch state: the store clamps
// deletions at the stored multiplicity, so the effective change of a relation
// is floored(pre ⊕ delta) − pre. A delete of an absent tuple or of more
// copies than stored contributes nothing.
//
// The expansion runs over the spec's terms in term order. For term i with a
// nonzero effective delta, the delta is pinned as term i's source and joined
// against the updated state (pre ⊕ delta) of terms before i and the
// pre-batch state of terms after i. Summing the per-term results counts
// every change combination exactly once; output multiplicities net and
// cancel in the result Z-set.
func ComputeViewDelta(spec join.Spec, pre map[string]join.Source, deltas map[string]*zset.TupleZSet) (*zset.TupleZSet, error) {
	effective := make(map[string]*zset.TupleZSet, len(deltas))
	for _, term := range spec.Terms {
		if _, done := effective[term.Relation]; done {
			continue
		}
		d, ok := deltas[term.Relation]
		if !ok {
			continue
		}
		eff, err := clampDelta(pre[term.Relation], d)
		if err != nil {
			return nil, err
		}
		effective[term.Relation] = eff
	}

	result := zset.New()

	for i, term := range spec.Terms {
		d, ok := effective[term.Relation]
		if !ok || d.IsZero() {
			continue
		}

		termSources := make([]join.Source, len(spec.Terms))
		for j, other := range spec.Terms {
			base := pre[other.Relation]
			switch {
			case j == i:
				termSources[j] = &zsetSource{sch: base.Schema(), zs: d}
			case j < i:
				if dj, ok := effective[other.Relation]; ok && !dj.IsZero() {
					termSources[j] = &overlaySource{base: base, delta: dj}
				} else {
					termSources[j] = base
				}
			default:
				termSources[j] = base
			}
		}

		it, err := join.NewIteratorTerms(spec, termSources)
		if err != nil {
			return nil, err
		}
		part, err := it.Collect()
		if err != nil {
			return nil, err
		}
		if err := result.AddMutate(part); err != nil {
			return nil, err
		}
	}

	return result, nil
}

// View is a materialized join result maintained incrementally: the join spec
// plus the current result Z-set.
type View struct {
	spec  join.Spec
	state *zset.TupleZSet
}

// NewView materializes the join once from the given sources and returns the
// view positioned at that state.
func NewView(spec join.Spec, sources map[string]join.Source) (*View, error) {
	it, err := join.NewIterator(spec, sources)
	if err != nil {
		return nil, err
	}
	state, err := it.Collect()
	if err != nil {
		return nil, err
	}

	return &View{spec: spec, state: state}, nil
}

// Spec returns the view's join specification.
func (v *View) Spec() join.Spec { return v.spec }

// Apply folds a computed view delta into the materialized state.
func (v *View) Apply(delta *zset.TupleZSet) error {
	return v.state.AddMutate(delta)
}

// State returns the current materialized result in deterministic order.
func (v *View) State() []zset.Entry { return v.state.Entries() }

// Relations returns the distinct relation names the view joins over.
func (v *View) Relations() []string {
	seen := make(map[string]bool)
	names := make([]string, 0, len(v.spec.Terms))
	for _, term := range v.spec.Terms {
		if !seen[term.Relation] {
			seen[term.Relation] = true
			names = append(names, term.Relation)
		}
	}
	return names
}
