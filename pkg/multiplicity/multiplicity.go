// Package multiplicity implements the execution-multiplicity algebra for
// call edges. A multiplicity is the statically inferred upper bound on how
// many times a call may execute per invocation of its caller.
//
// Two operators are defined. Fold composes the control frames enclosing a
// single call site, innermost to outermost; it is sensitive to nesting order
// (a loop dominates everything inside and outside of it on the path). Join
// merges independent call sites between the same caller/callee pair; it is
// order-independent.
package multiplicity

import "github.com/jeremyadavis/turbo/pkg/control"

// Multiplicity is a value in the lattice
// Zero < ExactlyOne < ZeroOrOne < ZeroOrMany.
type Multiplicity string

const (
	// Zero means the call never executes. Normal analysis does not emit it;
	// it exists as the identity of Join.
	Zero Multiplicity = "zero"
	// ExactlyOne is an unconditional direct call.
	ExactlyOne Multiplicity = "one"
	// ZeroOrOne is a conditionally executed call, at most once.
	ZeroOrOne Multiplicity = "zero_or_one"
	// ZeroOrMany is a call inside a loop or otherwise repeatable. There is no
	// ExactlyMany: static analysis cannot bound iteration counts, so loops
	// collapse here.
	ZeroOrMany Multiplicity = "zero_or_many"
)

var ranks = map[Multiplicity]int{
	Zero:       0,
	ExactlyOne: 1,
	ZeroOrOne:  2,
	ZeroOrMany: 3,
}

func (m Multiplicity) rank() int { return ranks[m] }

// Valid reports whether m is one of the four lattice values.
func (m Multiplicity) Valid() bool {
	_, ok := ranks[m]
	return ok
}

func (m Multiplicity) String() string { return string(m) }

// Fold reduces a control-context path to the multiplicity of its call site.
// The accumulator starts at ExactlyOne and each frame, moving outward,
// composes as follows: Sequential is identity; ConditionalArm and
// ClosureBoundary downgrade ExactlyOne to ZeroOrOne (consecutive conditionals
// collapse to the same ZeroOrOne); LoopBody forces ZeroOrMany regardless of
// the prior value. Fold is a pure function of the path.
func Fold(path control.Path) Multiplicity {
	acc := ExactlyOne
	for _, frame := range path {
		switch frame.Kind {
		case control.Sequential:
			// identity
		case control.ConditionalArm, control.ClosureBoundary:
			if acc == ExactlyOne {
				acc = ZeroOrOne
			}
		case control.LoopBody:
			acc = ZeroOrMany
		}
	}
	return acc
}

// Join merges the per-site multiplicities of distinct call sites sharing one
// caller/callee pair. It is the least upper bound in the lattice, with one
// exception: two or more distinct sites that are each ExactlyOne join to
// ZeroOrMany, since the callee can then run more than once per caller
// invocation. A single site maps to its own class, and Zero is the identity.
// Join is computed over the full multiset of site classes at once, so the
// order sites are merged in never matters.
func Join(classes ...Multiplicity) Multiplicity {
	result := Zero
	ones := 0
	for _, c := range classes {
		if c == ExactlyOne {
			ones++
		}
		if c.rank() > result.rank() {
			result = c
		}
	}
	if ones >= 2 {
		return ZeroOrMany
	}
	return result
}
