package join

import (
	"errors"
	"fmt"
)

// ErrUnboundVariable signals a join variable missing from the supplied global
// variable order.
var ErrUnboundVariable = errors.New("unbound join variable")

// ErrQueryShape signals a malformed join specification.
var ErrQueryShape = errors.New("malformed join spec")

// NewUnboundVariableError wraps ErrUnboundVariable with the variable name.
func NewUnboundVariableError(name string) error {
	return fmt.Errorf("%w: %q is missing from the variable order", ErrUnboundVariable, name)
}

// NewQueryShapeError wraps ErrQueryShape with a reason.
func NewQueryShapeError(reason string) error {
	return fmt.Errorf("%w: %s", ErrQueryShape, reason)
}
