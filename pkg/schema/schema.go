// Package schema defines typed relation schemas and the tuple value model used
// throughout the engine.
//
// A Schema is an immutable ordered sequence of typed columns. Tuples are
// positional value sequences validated and normalized against a schema before
// they are admitted anywhere else: the store, the join engine and the delta
// engine all assume normalized tuples and never re-check types.
//
// Key components:
//   - ColumnType: the closed set of admissible column types.
//   - Schema: ordered, immutable column list with validation and lookup.
//   - Tuple: a positional value sequence aligned to a schema.
package schema

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ColumnType enumerates the admissible column types. The set is closed:
// validation, ordering and key encoding are defined per type.
type ColumnType int

const (
	ID ColumnType = iota
	Integer
	Float
	String
	Boolean
)

// String returns the canonical type name.
func (t ColumnType) String() string {
	switch t {
	case ID:
		return "ID"
	case Integer:
		return "Integer"
	case Float:
		return "Float"
	case String:
		return "String"
	case Boolean:
		return "Boolean"
	default:
		return fmt.Sprintf("ColumnType(%d)", int(t))
	}
}

// Column is a named, typed schema position.
type Column struct {
	Name string
	Type ColumnType
}

// Tuple is a fixed-length ordered sequence of values aligned to a schema's
// column order.
type Tuple []any

// Schema is an ordered sequence of typed columns, immutable once constructed.
type Schema struct {
	columns []Column
	byName  map[string]int
}

// New constructs a schema from the given columns. Column names must be
// non-empty and unique within the schema.
func New(columns ...Column) (*Schema, error) {
	if len(columns) == 0 {
		return nil, NewInvalidSchemaError("schema must have at least one column")
	}

	byName := make(map[string]int, len(columns))
	for i, col := range columns {
		if col.Name == "" {
			return nil, NewInvalidSchemaError(fmt.Sprintf("column %d has an empty name", i))
		}
		if _, ok := byName[col.Name]; ok {
			return nil, NewInvalidSchemaError(fmt.Sprintf("duplicate column name %q", col.Name))
		}
		byName[col.Name] = i
	}

	cols := make([]Column, len(columns))
	copy(cols, columns)

	return &Schema{columns: cols, byName: byName}, nil
}

// Arity returns the number of columns.
func (s *Schema) Arity() int { return len(s.columns) }

// Columns returns a copy of the column list.
func (s *Schema) Columns() []Column {
	cols := make([]Column, len(s.columns))
	copy(cols, s.columns)
	return cols
}

// ColumnNames returns the column names in schema order.
func (s *Schema) ColumnNames() []string {
	names := make([]string, len(s.columns))
	for i, col := range s.columns {
		names[i] = col.Name
	}
	return names
}

// ColumnIndex returns the position of the named column.
func (s *Schema) ColumnIndex(name string) (int, bool) {
	i, ok := s.byName[name]
	return i, ok
}

// ColumnType returns the type of the named column.
func (s *Schema) ColumnType(name string) (ColumnType, bool) {
	i, ok := s.byName[name]
	if !ok {
		return 0, false
	}
	return s.columns[i].Type, true
}

// Validate checks that the tuple has the schema's arity and that every value
// matches the declared column type. The returned error names the first
// offending column and the mismatch.
func (s *Schema) Validate(tuple Tuple) error {
	if len(tuple) != len(s.columns) {
		return NewInvalidTupleError(fmt.Sprintf("arity mismatch: schema has %d columns, tuple has %d values",
			len(s.columns), len(tuple)))
	}

	for i, col := range s.columns {
		if _, err := NormalizeValue(tuple[i], col.Type); err != nil {
			return NewInvalidTupleError(fmt.Sprintf("column %q: %v", col.Name, err))
		}
	}

	return nil
}

// Normalize validates the tuple and returns a normalized copy: integer values
// widen to int64, floats to float64, ID values to string. The input tuple is
// not modified.
func (s *Schema) Normalize(tuple Tuple) (Tuple, error) {
	if len(tuple) != len(s.columns) {
		return nil, NewInvalidTupleError(fmt.Sprintf("arity mismatch: schema has %d columns, tuple has %d values",
			len(s.columns), len(tuple)))
	}

	out := make(Tuple, len(tuple))
	for i, col := range s.columns {
		v, err := NormalizeValue(tuple[i], col.Type)
		if err != nil {
			return nil, NewInvalidTupleError(fmt.Sprintf("column %q: %v", col.Name, err))
		}
		out[i] = v
	}

	return out, nil
}

// Key returns the canonical key of a normalized tuple. Tuples are equal iff
// their keys are equal; the key defines tuple identity for multiplicity
// bookkeeping.
func (s *Schema) Key(tuple Tuple) (string, error) {
	norm, err := s.Normalize(tuple)
	if err != nil {
		return "", err
	}

	bytes, err := json.Marshal([]any(norm))
	if err != nil {
		return "", NewInvalidTupleError(fmt.Sprintf("failed to encode tuple: %v", err))
	}

	return string(bytes), nil
}

// String implements fmt.Stringer.
func (s *Schema) String() string {
	parts := make([]string, len(s.columns))
	for i, col := range s.columns {
		parts[i] = fmt.Sprintf("%s:%s", col.Name, col.Type)
	}
	return "{" + strings.Join(parts, ",") + "}"
}

// NormalizeValue coerces a raw value into the canonical representation of the
// given column type: string for ID/String, int64 for Integer, float64 for
// Float, bool for Boolean. Values of any other dynamic type are rejected.
func NormalizeValue(v any, t ColumnType) (any, error) {
	switch t {
	case ID, String:
		if s, ok := v.(string); ok {
			return s, nil
		}
	case Integer:
		switch n := v.(type) {
		case int:
			return int64(n), nil
		case int8:
			return int64(n), nil
		case int16:
			return int64(n), nil
		case int32:
			return int64(n), nil
		case int64:
			return n, nil
		case uint8:
			return int64(n), nil
		case uint16:
			return int64(n), nil
		case uint32:
			return int64(n), nil
		}
	case Float:
		switch f := v.(type) {
		case float32:
			return float64(f), nil
		case float64:
			return f, nil
		}
	case Boolean:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	default:
		return nil, fmt.Errorf("unknown column type %v", t)
	}

	return nil, fmt.Errorf("expected %s, got %T", t, v)
}

// CompareValues totally orders two normalized values of the same column type:
// lexicographic for ID/String, numeric for Integer/Float, false<true for
// Boolean. The result is negative, zero or positive.
func CompareValues(t ColumnType, a, b any) int {
	switch t {
	case ID, String:
		return strings.Compare(a.(string), b.(string))
	case Integer:
		x, y := a.(int64), b.(int64)
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
		return 0
	case Float:
		x, y := a.(float64), b.(float64)
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
		return 0
	case Boolean:
		x, y := a.(bool), b.(bool)
		switch {
		case !x && y:
			return -1
		case x && !y:
			return 1
		}
		return 0
	}
	return 0
}
