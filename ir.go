// Package ir implements the intermediate representation shared by the
// analysis passes: a registry of symbolic locations, a size-typed expression
// language and an algebraic simplifier over it.
package ir

import (
	"fmt"
)

// Standard sizes, in bits.
const (
	Size1  = 1
	Size8  = 8
	Size16 = 16
	Size32 = 32
	Size64 = 64
)

// ConflictError is returned when a binding would attach an offset or a name
// to a location while another location already owns it.
type ConflictError struct {
	Owner     LocKey // key already holding the binding
	Name      string
	Offset    uint64
	HasOffset bool
}

// Error returns the error message.
func (e *ConflictError) Error() string {
	if e.HasOffset {
		return fmt.Sprintf("offset 0x%x already bound to %s", e.Offset, e.Owner)
	}
	return fmt.Sprintf("name %q already bound to %s", e.Name, e.Owner)
}

// NotFoundError is returned when a key, a name or an offset is not present.
type NotFoundError struct {
	Key       LocKey
	Name      string
	HasOffset bool
}

// Error returns the error message.
func (e *NotFoundError) Error() string {
	switch {
	case e.Name != "":
		return fmt.Sprintf("name %q not attached to %s", e.Name, e.Key)
	case e.HasOffset:
		return fmt.Sprintf("%s has no offset", e.Key)
	default:
		return fmt.Sprintf("%s not found", e.Key)
	}
}

// SizeMismatchError is returned by expression constructors when the operands
// violate the size rules of the node being built.
type SizeMismatchError struct {
	Node   string // kind of node being built
	Reason string
}

// Error returns the error message.
func (e *SizeMismatchError) Error() string {
	return fmt.Sprintf("size mismatch: %s: %s", e.Node, e.Reason)
}

func sizeErrorf(node, format string, args ...interface{}) error {
	return &SizeMismatchError{Node: node, Reason: fmt.Sprintf(format, args...)}
}

// NonTerminationError is returned when the simplifier exceeds its iteration
// bound while rewriting a single node.
type NonTerminationError struct {
	Expr       Expr
	Iterations int
}

// Error returns the error message.
func (e *NonTerminationError) Error() string {
	return fmt.Sprintf("simplifier did not reach a fixed point after %d iterations: %s", e.Iterations, e.Expr)
}

// UnknownPassError is returned when enabling a pass that was never registered.
type UnknownPassError struct {
	Name string
}

// Error returns the error message.
func (e *UnknownPassError) Error() string {
	return fmt.Sprintf("unknown simplifier pass: %q", e.Name)
}

// InvalidNameError is returned when an identifier or operator name has no
// text form: it is empty or holds whitespace or parentheses.
type InvalidNameError struct {
	Node string
	Name string
}

// Error returns the error message.
func (e *InvalidNameError) Error() string {
	return fmt.Sprintf("%s: invalid name %q", e.Node, e.Name)
}

// assert panics if condition is false.
func assert(condition bool, format string, args ...interface{}) {
	if !condition {
		panic(fmt.Sprintf("assert: "+format, args...))
	}
}
