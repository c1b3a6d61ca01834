package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrNotIdle is returned by Start unless the engine is idle.
	ErrNotIdle = errors.New("engine is not idle")
	// ErrInvariant is the sentinel every InvariantViolation unwraps to.
	ErrInvariant = errors.New("invariant violation")
)

// InvariantViolation is a programming or authoring bug detected while
// ticking. In strict mode it is raised as a panic instead of returned.
type InvariantViolation struct {
	Op     string
	Reason string
	Err    error
}

func (v *InvariantViolation) Error() string {
	if v.Err != nil {
		return fmt.Sprintf("%s: %s: %s: %v", ErrInvariant, v.Op, v.Reason, v.Err)
	}
	return fmt.Sprintf("%s: %s: %s", ErrInvariant, v.Op, v.Reason)
}

func (v *InvariantViolation) Unwrap() []error {
	if v.Err != nil {
		return []error{ErrInvariant, v.Err}
	}
	return []error{ErrInvariant}
}
