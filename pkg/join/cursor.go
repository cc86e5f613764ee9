package join

import (
	"fmt"
	"sort"

	"github.com/l7mp/triejoin/pkg/schema"
)

// projEntry is one distinct base tuple projected onto a term's variables:
// vals holds the value of each local variable in global order.
type projEntry struct {
	vals  []any
	tuple schema.Tuple
	mult  int
}

// trieCursor iterates one relation as a trie whose levels are the term's
// variables in global order. The trie is realized as a sorted entry slice
// plus an explicit stack of range frames: frame d covers the entries matching
// the first d bound variables, and a position within the active frame
// enumerates candidate values for the next variable. No recursion, bounded
// memory.
type trieCursor struct {
	term    Term
	vars    []string // local variables, in global order
	levels  []int    // global level of each local variable
	types   []schema.ColumnType
	entries []projEntry

	depth int   // frames opened so far
	lo    []int // frame start, per local depth
	hi    []int // frame end, per local depth
	pos   []int // enumeration position within the frame, per local depth
}

// newTrieCursor builds the sorted projection of a source onto a term's
// variables. Repeated variables within the term filter to tuples where the
// repeated positions hold equal values.
func newTrieCursor(term Term, src Source, order []string) (*trieCursor, error) {
	sch := src.Schema()
	cols := sch.Columns()

	globalIdx := make(map[string]int, len(order))
	for i, v := range order {
		globalIdx[v] = i
	}

	// First binding position and any repeats, per variable.
	firstPos := make(map[string]int)
	repeats := make(map[string][]int)
	for i, v := range term.Vars {
		if _, ok := firstPos[v]; !ok {
			firstPos[v] = i
		} else {
			repeats[v] = append(repeats[v], i)
		}
	}

	vars := make([]string, 0, len(firstPos))
	for v := range firstPos {
		if _, ok := globalIdx[v]; !ok {
			return nil, NewUnboundVariableError(v)
		}
		vars = append(vars, v)
	}
	sort.Slice(vars, func(i, j int) bool { return globalIdx[vars[i]] < globalIdx[vars[j]] })

	c := &trieCursor{
		term:   term,
		vars:   vars,
		levels: make([]int, len(vars)),
		types:  make([]schema.ColumnType, len(vars)),
	}
	varPos := make([]int, len(vars))
	for i, v := range vars {
		c.levels[i] = globalIdx[v]
		varPos[i] = firstPos[v]
		c.types[i] = cols[firstPos[v]].Type
	}

	src.ForEach(func(tuple schema.Tuple, mult int) bool {
		for v, positions := range repeats {
			base := firstPos[v]
			for _, p := range positions {
				if schema.CompareValues(cols[base].Type, tuple[base], tuple[p]) != 0 {
					return true // intra-tuple equality violated, skip
				}
			}
		}

		vals := make([]any, len(vars))
		for i, p := range varPos {
			vals[i] = tuple[p]
		}
		c.entries = append(c.entries, projEntry{vals: vals, tuple: tuple, mult: mult})
		return true
	})

	sort.Slice(c.entries, func(i, j int) bool {
		a, b := c.entries[i], c.entries[j]
		for d := range vars {
			if cmp := schema.CompareValues(c.types[d], a.vals[d], b.vals[d]); cmp != 0 {
				return cmp < 0
			}
		}
		return false
	})

	n := len(vars)
	c.lo = make([]int, n+1)
	c.hi = make([]int, n+1)
	c.pos = make([]int, n+1)
	c.hi[0] = len(c.entries)

	return c, nil
}

// atEnd reports whether the active frame has no more candidate values.
func (c *trieCursor) atEnd() bool { return c.pos[c.depth] >= c.hi[c.depth] }

// key returns the candidate value at the current position.
func (c *trieCursor) key() any { return c.entries[c.pos[c.depth]].vals[c.depth] }

// seek advances the position to the first entry whose value at the current
// variable is >= v, never moving backward. It reports whether a candidate
// remains.
func (c *trieCursor) seek(v any) bool {
	d := c.depth
	c.pos[d] = c.lowerBound(d, c.pos[d], c.hi[d], v)
	return !c.atEnd()
}

// next advances past the current value group and reports whether a candidate
// remains.
func (c *trieCursor) next() bool {
	d := c.depth
	c.pos[d] = c.upperBound(d, c.pos[d], c.hi[d], c.key())
	return !c.atEnd()
}

// open pushes a frame scoped to the entries matching the current value,
// descending one trie level.
func (c *trieCursor) open() {
	d := c.depth
	end := c.upperBound(d, c.pos[d], c.hi[d], c.key())
	c.depth++
	c.lo[c.depth] = c.pos[d]
	c.hi[c.depth] = end
	c.pos[c.depth] = c.pos[d]
}

// close pops the active frame, returning to the parent trie level.
func (c *trieCursor) close() { c.depth-- }

// reset rewinds the enumeration position to the start of the active frame.
// Seek positions are monotone only between one entry and exit of a trie
// level; re-entering the level under a new outer binding starts over.
func (c *trieCursor) reset() { c.pos[c.depth] = c.lo[c.depth] }

// matched returns the base tuple and total multiplicity of the active frame.
// Valid once all of the cursor's variables are bound and opened; the frame
// then holds exactly the matching tuple.
func (c *trieCursor) matched() (schema.Tuple, int) {
	if c.depth != len(c.vars) {
		panic(fmt.Sprintf("cursor on %q read before full descent", c.term.Relation))
	}
	mult := 0
	for i := c.lo[c.depth]; i < c.hi[c.depth]; i++ {
		mult += c.entries[i].mult
	}
	return c.entries[c.lo[c.depth]].tuple, mult
}

// lowerBound returns the first index in [from, to) whose value at local
// depth d is >= v.
func (c *trieCursor) lowerBound(d, from, to int, v any) int {
	return from + sort.Search(to-from, func(i int) bool {
		return schema.CompareValues(c.types[d], c.entries[from+i].vals[d], v) >= 0
	})
}

// upperBound returns the first index in [from, to) whose value at local
// depth d is > v.
func (c *trieCursor) upperBound(d, from, to int, v any) int {
	return from + sort.Search(to-from, func(i int) bool {
		return schema.CompareValues(c.types[d], c.entries[from+i].vals[d], v) > 0
	})
}
