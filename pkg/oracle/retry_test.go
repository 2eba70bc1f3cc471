package oracle

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyadavis/turbo/pkg/registry"
)

// flakyClient times out a fixed number of times before answering.
type flakyClient struct {
	failures int
	calls    int
}

func (f *flakyClient) FindCallSites(ctx context.Context, sym registry.Symbol) ([]RawReference, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, &TimeoutError{Symbol: sym.ID(), Err: context.DeadlineExceeded}
	}
	return testRefs(), nil
}

func (f *flakyClient) Close() error { return nil }

func TestRetrying_RecoversFromTimeouts(t *testing.T) {
	inner := &flakyClient{failures: 3}
	r := NewRetrying(inner, 5, 0, nil)

	refs, err := r.FindCallSites(context.Background(), testSymbol("fetch"))
	require.NoError(t, err)
	assert.Len(t, refs, 1)
	assert.Equal(t, 4, inner.calls)
}

func TestRetrying_ExhaustsBudget(t *testing.T) {
	inner := &flakyClient{failures: 100}
	r := NewRetrying(inner, 5, 0, nil)

	_, err := r.FindCallSites(context.Background(), testSymbol("fetch"))
	require.Error(t, err)
	assert.True(t, IsTimeout(err))
	assert.Equal(t, 6, inner.calls, "first attempt plus five retries")
}

func TestRetrying_UnavailablePassesThrough(t *testing.T) {
	inner := &countingClient{err: fmt.Errorf("%w: no such binary", ErrUnavailable)}
	r := NewRetrying(inner, 5, 0, nil)

	_, err := r.FindCallSites(context.Background(), testSymbol("fetch"))
	require.Error(t, err)
	assert.False(t, IsTimeout(err))
	assert.Equal(t, 1, inner.calls, "unavailability is never retried")
}

func TestRetrying_HonorsCancellation(t *testing.T) {
	inner := &flakyClient{failures: 100}
	r := NewRetrying(inner, 5, 50*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.FindCallSites(ctx, testSymbol("fetch"))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
