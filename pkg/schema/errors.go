package schema

import (
	"errors"
	"fmt"
)

// ErrInvalidSchema signals a malformed schema definition.
var ErrInvalidSchema = errors.New("invalid schema")

// ErrInvalidTuple signals a tuple that does not match its relation's schema.
var ErrInvalidTuple = errors.New("invalid tuple")

// NewInvalidSchemaError wraps ErrInvalidSchema with a reason.
func NewInvalidSchemaError(reason string) error {
	return fmt.Errorf("%w: %s", ErrInvalidSchema, reason)
}

// NewInvalidTupleError wraps ErrInvalidTuple with a reason.
func NewInvalidTupleError(reason string) error {
	return fmt.Errorf("%w: %s", ErrInvalidTuple, reason)
}
