package registry

import (
	"errors"
	"fmt"
)

// ErrDuplicateRelation signals an attempt to register a name twice.
var ErrDuplicateRelation = errors.New("duplicate relation")

// ErrRelationNotFound signals a lookup, removal or mutation of an unknown
// relation name.
var ErrRelationNotFound = errors.New("relation not found")

// NewDuplicateRelationError wraps ErrDuplicateRelation with the name.
func NewDuplicateRelationError(name string) error {
	return fmt.Errorf("%w: %q", ErrDuplicateRelation, name)
}

// NewRelationNotFoundError wraps ErrRelationNotFound with the name.
func NewRelationNotFoundError(name string) error {
	return fmt.Errorf("%w: %q", ErrRelationNotFound, name)
}
