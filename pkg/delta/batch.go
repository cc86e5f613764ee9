// Package delta implements incremental maintenance of materialized join
// views.
//
// A Batch is an atomic set of signed tuple changes over one or more base
// relations. For each materialized view, the package computes the net view
// delta without recomputing the join: the batch is expanded with the
// triangular delta rule, where the i-th term's delta is joined against the
// already-updated state of earlier terms and the pre-batch state of later
// terms, so every change combination is counted exactly once. Multiplicities
// net exactly; an insert and a delete of the same tuple within one batch
// cancel and produce no view delta. Deletions floor at the stored
// multiplicity, mirroring the store: deleting an absent tuple or more copies
// than stored changes neither the relation nor any view.
package delta

import (
	"fmt"

	"github.com/l7mp/triejoin/pkg/registry"
	"github.com/l7mp/triejoin/pkg/schema"
	"github.com/l7mp/triejoin/pkg/zset"
)

// Op is one signed tuple change: Count > 0 inserts, Count < 0 deletes.
type Op struct {
	Relation string
	Tuple    schema.Tuple
	Count    int
}

// Insert builds an insert op with multiplicity 1.
func Insert(relation string, tuple schema.Tuple) Op {
	return Op{Relation: relation, Tuple: tuple, Count: 1}
}

// Delete builds a delete op with multiplicity 1.
func Delete(relation string, tuple schema.Tuple) Op {
	return Op{Relation: relation, Tuple: tuple, Count: -1}
}

// Batch is an atomically applied sequence of signed tuple changes.
type Batch []Op

// Normalize validates every op against the catalog and nets the batch into
// one Z-set per touched relation. Any schema-invalid tuple or unknown
// relation fails the whole batch: all-or-nothing, nothing applied.
func (b Batch) Normalize(reg *registry.Registry) (map[string]*zset.TupleZSet, error) {
	deltas := make(map[string]*zset.TupleZSet)

	for i, op := range b {
		sch, err := reg.GetSchema(op.Relation)
		if err != nil {
			return nil, err
		}
		if op.Count == 0 {
			return nil, schema.NewInvalidTupleError(fmt.Sprintf("op %d on %q has zero count", i, op.Relation))
		}

		norm, err := sch.Normalize(op.Tuple)
		if err != nil {
			return nil, fmt.Errorf("op %d on %q: %w", i, op.Relation, err)
		}

		zs, ok := deltas[op.Relation]
		if !ok {
			zs = zset.New()
			deltas[op.Relation] = zs
		}
		if err := zs.AddTupleMutate(norm, op.Count); err != nil {
			return nil, err
		}
	}

	// Relations whose changes net to zero contribute nothing.
	for name, zs := range deltas {
		if zs.IsZero() {
			delete(deltas, name)
		}
	}

	return deltas, nil
}
