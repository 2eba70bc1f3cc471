package oracle

import (
	"context"
	"time"

	"github.com/jeremyadavis/turbo/internal/log"
	"github.com/jeremyadavis/turbo/pkg/registry"
)

// Retrying wraps a Client and retries per-query timeouts up to a bounded
// number of attempts, sleeping between them. Unavailability errors pass
// through untouched: they are fatal to the run, not to the query.
type Retrying struct {
	inner      Client
	maxRetries int
	backoff    time.Duration
	logger     *log.Logger
}

// NewRetrying wraps inner with bounded retry. maxRetries is the number of
// attempts after the first; backoff is the sleep between attempts.
func NewRetrying(inner Client, maxRetries int, backoff time.Duration, logger *log.Logger) *Retrying {
	if logger == nil {
		logger = log.Default()
	}
	return &Retrying{inner: inner, maxRetries: maxRetries, backoff: backoff, logger: logger}
}

// FindCallSites queries the inner client, retrying timeouts.
func (r *Retrying) FindCallSites(ctx context.Context, sym registry.Symbol) ([]RawReference, error) {
	var lastErr error
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		if attempt > 0 {
			r.logger.Debug("retrying oracle query",
				"symbol", sym.ID(), "attempt", attempt, "max", r.maxRetries)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(r.backoff):
			}
		}

		refs, err := r.inner.FindCallSites(ctx, sym)
		if err == nil {
			return refs, nil
		}
		if !IsTimeout(err) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

// Close closes the inner client.
func (r *Retrying) Close() error { return r.inner.Close() }
