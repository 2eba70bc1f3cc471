package oracle

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/jeremyadavis/turbo/pkg/registry"
)

// Cache wraps a Client with a disk-persisted response cache keyed by symbol
// ID. Oracle queries dominate run latency, so answers from a previous run
// are reused until the caller reindexes.
type Cache struct {
	mu      sync.RWMutex
	inner   Client
	entries map[string][]RawReference
	dirty   bool
}

// NewCache wraps inner with an empty cache.
func NewCache(inner Client) *Cache {
	return &Cache{
		inner:   inner,
		entries: make(map[string][]RawReference),
	}
}

// FindCallSites returns the cached answer for the symbol, querying the inner
// client and recording the result on a miss. Errors are never cached.
func (c *Cache) FindCallSites(ctx context.Context, sym registry.Symbol) ([]RawReference, error) {
	key := sym.ID()

	c.mu.RLock()
	refs, ok := c.entries[key]
	c.mu.RUnlock()
	if ok {
		return refs, nil
	}

	refs, err := c.inner.FindCallSites(ctx, sym)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[key] = refs
	c.dirty = true
	c.mu.Unlock()

	return refs, nil
}

// Close closes the inner client.
func (c *Cache) Close() error { return c.inner.Close() }

// Len returns the number of cached symbols.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Load restores cached responses from path. A missing file is not an error:
// the cache simply starts empty.
func (c *Cache) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading oracle cache %s: %w", path, err)
	}

	entries := make(map[string][]RawReference)
	if err := msgpack.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("decoding oracle cache %s: %w", path, err)
	}

	c.mu.Lock()
	c.entries = entries
	c.dirty = false
	c.mu.Unlock()
	return nil
}

// Save persists the cache to path, creating parent directories as needed.
// A clean cache is not rewritten.
func (c *Cache) Save(path string) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.dirty {
		return nil
	}

	data, err := msgpack.Marshal(c.entries)
	if err != nil {
		return fmt.Errorf("encoding oracle cache: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating cache directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing oracle cache %s: %w", path, err)
	}
	return nil
}
