// Package control extracts the control context of a call site: the ordered
// list of control frames (conditional arms, loop bodies, closure boundaries)
// between a call expression and its enclosing function's top level.
package control

import (
	"fmt"

	"github.com/jeremyadavis/turbo/pkg/types"
)

// FrameKind tags one level of syntactic nesting crossed on the way from a
// call expression out to the enclosing function boundary.
type FrameKind string

const (
	// Sequential is plain nesting with no control effect (blocks, parens).
	// It contributes identity under folding.
	Sequential FrameKind = "sequential"
	// ConditionalArm is the body of an if/else/match arm: executed at most once.
	ConditionalArm FrameKind = "conditional_arm"
	// LoopBody is the body (or per-iteration clause) of a loop: may repeat.
	LoopBody FrameKind = "loop_body"
	// ClosureBoundary is a closure or function literal body. The closure's own
	// invocation count is unknown statically, so it is treated like a
	// conditional arm when folding: the call may or may not run.
	ClosureBoundary FrameKind = "closure_boundary"
)

// Frame is one crossed nesting level.
type Frame struct {
	Kind FrameKind `json:"kind"`
	// NodeType is the syntax node kind that produced the frame (e.g.
	// "for_expression"). Informational only.
	NodeType string `json:"node_type,omitempty"`
	// Line is the one-based line of the construct.
	Line int `json:"line,omitempty"`
}

// Path is the ordered control context of one call site, innermost frame
// first, terminated at the enclosing function boundary. Sequential nesting
// is filtered out during extraction, so an empty path means the call sits at
// the function's unconditional top level.
type Path []Frame

// Kinds returns just the frame kinds, innermost first.
func (p Path) Kinds() []FrameKind {
	kinds := make([]FrameKind, len(p))
	for i, f := range p {
		kinds[i] = f.Kind
	}
	return kinds
}

// UnresolvedContextError indicates the syntax enclosing a reference could not
// be resolved. Call sites with unresolved context are kept with the most
// conservative multiplicity and flagged approximate, never dropped.
type UnresolvedContextError struct {
	Loc    types.Location
	Reason string
}

func (e *UnresolvedContextError) Error() string {
	return fmt.Sprintf("unresolved control context at %s: %s", e.Loc, e.Reason)
}
