// Package oracle wraps queries to the external source-analysis service that
// resolves call sites for task symbols. The core depends only on the narrow
// contract here: reference enumeration paired with the enclosing function,
// nothing deeper. Concrete backends live in subpackages (lsp queries a
// rust-analyzer call hierarchy).
package oracle

import (
	"context"
	"errors"
	"fmt"

	"github.com/jeremyadavis/turbo/pkg/registry"
	"github.com/jeremyadavis/turbo/pkg/types"
)

// RawReference is one reference to a task symbol: the location of the call
// expression plus the function that syntactically encloses it. The client
// does not interpret results beyond this shape.
type RawReference struct {
	// Call is the position of the call expression.
	Call types.Location `json:"call" msgpack:"call"`
	// EnclosingName is the declared name of the enclosing function.
	EnclosingName string `json:"enclosing_name" msgpack:"enclosing_name"`
	// EnclosingFile is the file declaring the enclosing function.
	EnclosingFile string `json:"enclosing_file" msgpack:"enclosing_file"`
	// EnclosingRange spans the enclosing function's declaration.
	EnclosingRange types.Range `json:"enclosing_range" msgpack:"enclosing_range"`
}

// Client finds the call sites that may invoke a task symbol.
type Client interface {
	// FindCallSites returns every known reference to the symbol. It returns
	// ErrUnavailable (possibly wrapped) when the oracle cannot serve queries
	// at all, and *TimeoutError when this particular query did not complete.
	FindCallSites(ctx context.Context, sym registry.Symbol) ([]RawReference, error)

	// Close releases the underlying session.
	Close() error
}

// ErrUnavailable means the oracle cannot be reached at all. No meaningful
// graph can be built without it, so callers abort the whole run.
var ErrUnavailable = errors.New("analysis oracle unavailable")

// TimeoutError is a per-query failure: the oracle did not produce an answer
// for one symbol in time. Recoverable; the symbol's results are marked
// incomplete after retries are exhausted.
type TimeoutError struct {
	Symbol string
	Err    error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("oracle query for %s timed out: %v", e.Symbol, e.Err)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// IsTimeout reports whether err is a per-query timeout.
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}
