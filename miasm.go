// Package miasm implements a typed, size-annotated symbolic expression IR
// for binary analysis, together with a deterministic term-rewriting
// simplifier that normalizes expression trees.
package miasm

import (
	"errors"
	"fmt"
)

// Standard sizes, in bits.
const (
	SizeBool = 1
	Size8    = 8
	Size16   = 16
	Size32   = 32
	Size64   = 64
)

var (
	// ErrSizeMismatch is reported when operand or replacement sizes violate
	// the applicable size rule.
	ErrSizeMismatch = errors.New("size mismatch")

	// ErrInvalidSlice is reported for slice bounds outside the argument.
	ErrInvalidSlice = errors.New("invalid slice bounds")

	// ErrInvalidCompose is reported for a compose with no arguments.
	ErrInvalidCompose = errors.New("compose requires at least one argument")

	// ErrRuleContract is reported when a rewrite rule returns a node whose
	// size differs from its input.
	ErrRuleContract = errors.New("rewrite rule changed expression size")
)

// assert panics if condition is false.
func assert(condition bool, format string, args ...interface{}) {
	if !condition {
		panic(fmt.Sprintf("assert: "+format, args...))
	}
}

// invalid panics with an error wrapping sentinel. Construction-time
// invariant violations are programmer errors and propagate unrecovered.
func invalid(sentinel error, format string, args ...interface{}) {
	panic(fmt.Errorf(format+": %w", append(args, sentinel)...))
}
