// Package registry discovers and catalogs task-annotated functions. A task
// is a function explicitly marked as a unit of asynchronous work: in Rust a
// #[turbo_tasks::function] attribute, in Go a //turbo:task directive comment
// on the declaration.
package registry

import (
	"fmt"

	"github.com/jeremyadavis/turbo/pkg/types"
)

// Symbol identifies one task-annotated function. Symbols are immutable once
// discovered and unique within one analysis run.
type Symbol struct {
	// Name is the function's declared identifier.
	Name string `json:"name"`
	// File is the absolute path of the declaring source unit.
	File string `json:"file"`
	// Point is the zero-based position of the function's name identifier,
	// suitable for positional queries against the analysis oracle.
	Point types.Point `json:"point"`
	// SelectionRange spans the name identifier.
	SelectionRange types.Range `json:"selection_range"`
	// BodyRange spans the whole declaration including its body.
	BodyRange types.Range `json:"body_range"`
	// Language of the declaring source unit.
	Language types.Language `json:"language"`
	// Tags are the annotation's arguments, e.g. fs and network from
	// #[turbo_tasks::function(fs, network)].
	Tags []string `json:"tags,omitempty"`
}

// ID returns the symbol's canonical identifier, file#name:line with a
// one-based line number. IDs are unique per analysis run: two declarations
// cannot share a file, name, and starting line.
func (s Symbol) ID() string {
	return fmt.Sprintf("%s#%s:%d", s.File, s.Name, s.Point.Row+1)
}

// Location returns the position of the symbol's name identifier.
func (s Symbol) Location() types.Location {
	return types.Location{File: s.File, Point: s.Point}
}

// DiscoveryError reports a source unit that could not be parsed. The unit is
// skipped and the run continues; callers surface these as warnings.
type DiscoveryError struct {
	Unit string
	Err  error
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("discovering tasks in %s: %v", e.Unit, e.Err)
}

func (e *DiscoveryError) Unwrap() error { return e.Err }
