package join

import (
	"fmt"

	"github.com/l7mp/triejoin/pkg/schema"
	"github.com/l7mp/triejoin/pkg/zset"
)

// Row is one join result: the concatenation of the matched base tuples in
// term order, the variable bindings in global order, and the result
// multiplicity (the product of the base multiplicities).
type Row struct {
	Tuple    schema.Tuple
	Bindings []any
	Mult     int
}

// Iterator is the lazy leapfrog-triejoin result sequence. Rows come out in
// deterministic order: ascending by the global variable order, then by value.
// Abandoning an iterator early costs nothing; all state lives in cursor
// frames.
type Iterator struct {
	spec    Spec
	types   []schema.ColumnType
	cursors []*trieCursor
	levels  [][]*trieCursor
	binding []any
	started bool
	done    bool
}

// NewIterator validates the spec against the sources and builds the cursor
// set. Every term's relation must have a source; sources are stable
// snapshots, so the iterator may be drained at leisure.
func NewIterator(spec Spec, sources map[string]Source) (*Iterator, error) {
	termSources := make([]Source, len(spec.Terms))
	for i, term := range spec.Terms {
		src, ok := sources[term.Relation]
		if !ok {
			return nil, NewQueryShapeError(fmt.Sprintf("no source for relation %q", term.Relation))
		}
		termSources[i] = src
	}
	return NewIteratorTerms(spec, termSources)
}

// NewIteratorTerms is like NewIterator but binds one source per term, in term
// order. The delta engine uses this form: during triangular decomposition two
// terms over the same relation may observe different states.
func NewIteratorTerms(spec Spec, termSources []Source) (*Iterator, error) {
	if len(termSources) != len(spec.Terms) {
		return nil, NewQueryShapeError(fmt.Sprintf("spec has %d terms but %d sources given",
			len(spec.Terms), len(termSources)))
	}

	schemas := make(map[string]*schema.Schema, len(spec.Terms))
	for i, term := range spec.Terms {
		schemas[term.Relation] = termSources[i].Schema()
	}
	if err := spec.Validate(schemas); err != nil {
		return nil, err
	}

	it := &Iterator{
		spec:    spec,
		types:   spec.VarTypes(schemas),
		cursors: make([]*trieCursor, len(spec.Terms)),
		levels:  make([][]*trieCursor, len(spec.VarOrder)),
		binding: make([]any, len(spec.VarOrder)),
	}

	for i, term := range spec.Terms {
		cur, err := newTrieCursor(term, termSources[i], spec.VarOrder)
		if err != nil {
			return nil, err
		}
		it.cursors[i] = cur
		for _, lvl := range cur.levels {
			it.levels[lvl] = append(it.levels[lvl], cur)
		}
	}

	return it, nil
}

// Next produces the next result row, resuming the leapfrog from where the
// previous call left off.
func (it *Iterator) Next() (Row, bool) {
	if it.done {
		return Row{}, false
	}

	k := len(it.spec.VarOrder)
	var d int
	var ok bool

	if !it.started {
		it.started = true
		d = 0
		ok = it.enterLevel(0)
	} else {
		// Resume below the last emitted row.
		d = k - 1
		it.closeLevel(d)
		ok = it.advance(d)
	}

	for {
		if ok {
			// The cursors at level d agree on a value: bind it and descend.
			it.binding[d] = it.levels[d][0].key()
			it.openLevel(d)
			if d == k-1 {
				return it.emit(), true
			}
			d++
			ok = it.enterLevel(d)
		} else {
			// Level d exhausted: back out and advance the level above.
			if d == 0 {
				it.done = true
				return Row{}, false
			}
			d--
			it.closeLevel(d)
			ok = it.advance(d)
		}
	}
}

// Collect drains the iterator into a Z-set of output tuples.
func (it *Iterator) Collect() (*zset.TupleZSet, error) {
	out := zset.New()
	for {
		row, ok := it.Next()
		if !ok {
			return out, nil
		}
		if err := out.AddTupleMutate(row.Tuple, row.Mult); err != nil {
			return nil, err
		}
	}
}

// enterLevel starts a fresh pass over level d. Cursors that did not open a
// new frame for this entry (their term binds no variable at the level above)
// still hold the position of the previous visit; every cursor rewinds to its
// frame start before the leapfrog runs.
func (it *Iterator) enterLevel(d int) bool {
	for _, c := range it.levels[d] {
		c.reset()
	}
	return it.search(d)
}

// search runs the leapfrog at level d: the cursor with the smallest key seeks
// to the largest key held by any cursor, until all agree or one exhausts.
func (it *Iterator) search(d int) bool {
	curs := it.levels[d]
	for _, c := range curs {
		if c.atEnd() {
			return false
		}
	}

	max := curs[0].key()
	for {
		settled := true
		for _, c := range curs {
			cmp := schema.CompareValues(it.types[d], c.key(), max)
			if cmp < 0 {
				if !c.seek(max) {
					return false
				}
				cmp = schema.CompareValues(it.types[d], c.key(), max)
			}
			if cmp > 0 {
				max = c.key()
				settled = false
			}
		}
		if settled {
			return true
		}
	}
}

// advance moves level d past the value all its cursors currently agree on.
func (it *Iterator) advance(d int) bool {
	if !it.levels[d][0].next() {
		return false
	}
	return it.search(d)
}

func (it *Iterator) openLevel(d int) {
	for _, c := range it.levels[d] {
		c.open()
	}
}

func (it *Iterator) closeLevel(d int) {
	for _, c := range it.levels[d] {
		c.close()
	}
}

// emit assembles the result row once every cursor is fully descended.
func (it *Iterator) emit() Row {
	width := 0
	for _, c := range it.cursors {
		width += len(c.term.Vars)
	}

	tuple := make(schema.Tuple, 0, width)
	mult := 1
	for _, c := range it.cursors {
		base, m := c.matched()
		tuple = append(tuple, base...)
		mult *= m
	}

	bindings := make([]any, len(it.binding))
	copy(bindings, it.binding)

	return Row{Tuple: tuple, Bindings: bindings, Mult: mult}
}
