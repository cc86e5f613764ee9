// Package join implements leapfrog triejoin: a worst-case-optimal multi-way
// natural join over sorted relation snapshots.
//
// A query is a Spec: an ordered list of relation terms, each naming one
// variable per column, plus a global variable order covering every variable.
// The join proceeds one variable at a time in global order; at each level the
// cursors of all relations binding that variable leapfrog-seek each other
// until they agree on a value or one exhausts. Agreement descends one level,
// exhaustion backtracks. The running time is proportional to the AGM bound of
// the query rather than to the product of the input sizes.
//
// Key components:
//   - Spec: relation terms plus the caller-supplied global variable order.
//   - Source: the snapshot interface the engine joins over.
//   - Iterator: the lazy result sequence, driven by explicit cursor frames.
package join

import (
	"fmt"

	"github.com/l7mp/triejoin/pkg/registry"
	"github.com/l7mp/triejoin/pkg/schema"
)

// Source is a stable, iterable view of one relation. store.Snapshot
// implements it; the delta engine supplies overlay and pinned-delta sources.
type Source interface {
	Schema() *schema.Schema
	ForEach(fn func(tuple schema.Tuple, mult int) bool)
}

// Term binds one relation into a join: Vars names the join variable carried
// by each column, in column order. Repeating a variable within one term
// imposes an intra-tuple equality constraint.
type Term struct {
	Relation string
	Vars     []string
}

// Spec is a join specification: the participating relation terms and the
// global variable order. The order is supplied by the caller and must be a
// permutation of the union of the terms' variables; the engine performs no
// order optimization.
type Spec struct {
	Terms    []Term
	VarOrder []string
}

// Validate checks the spec shape against the given schemas: every term's
// relation must be present with matching arity, every bound variable must
// appear exactly once in the global order, every order variable must be
// bound, and all positions binding one variable must agree on the column
// type.
func (s Spec) Validate(schemas map[string]*schema.Schema) error {
	if len(s.Terms) == 0 {
		return NewQueryShapeError("join spec has no relation terms")
	}

	varTypes := make(map[string]schema.ColumnType)
	bound := make(map[string]bool)

	for ti, term := range s.Terms {
		sch, ok := schemas[term.Relation]
		if !ok {
			return registry.NewRelationNotFoundError(term.Relation)
		}
		if len(term.Vars) != sch.Arity() {
			return NewQueryShapeError(fmt.Sprintf("term %d: relation %q has arity %d but %d variables given",
				ti, term.Relation, sch.Arity(), len(term.Vars)))
		}

		cols := sch.Columns()
		for i, v := range term.Vars {
			if v == "" {
				return NewQueryShapeError(fmt.Sprintf("term %d: empty variable name at column %d", ti, i))
			}
			if prev, seen := varTypes[v]; seen {
				if prev != cols[i].Type {
					return NewQueryShapeError(fmt.Sprintf("variable %q bound at both %s and %s columns",
						v, prev, cols[i].Type))
				}
			} else {
				varTypes[v] = cols[i].Type
			}
			bound[v] = true
		}
	}

	inOrder := make(map[string]bool, len(s.VarOrder))
	for _, v := range s.VarOrder {
		if inOrder[v] {
			return NewQueryShapeError(fmt.Sprintf("variable %q appears twice in the variable order", v))
		}
		inOrder[v] = true
		if !bound[v] {
			return NewQueryShapeError(fmt.Sprintf("variable %q in the order is bound by no relation", v))
		}
	}

	for v := range bound {
		if !inOrder[v] {
			return NewUnboundVariableError(v)
		}
	}

	return nil
}

// VarTypes returns the column type of every variable in global order. The
// spec must have been validated against the same schemas.
func (s Spec) VarTypes(schemas map[string]*schema.Schema) []schema.ColumnType {
	byVar := make(map[string]schema.ColumnType)
	for _, term := range s.Terms {
		cols := schemas[term.Relation].Columns()
		for i, v := range term.Vars {
			byVar[v] = cols[i].Type
		}
	}

	types := make([]schema.ColumnType, len(s.VarOrder))
	for i, v := range s.VarOrder {
		types[i] = byVar[v]
	}
	return types
}
