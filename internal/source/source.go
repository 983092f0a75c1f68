// Package source handles retrieval of per-slide GeoJSON feature collections.
package source

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/paulmach/orb/geojson"
)

// FeatureSource retrieves the feature collection for one slide identifier.
type FeatureSource interface {
	Collection(ctx context.Context, id string) (*geojson.FeatureCollection, error)
}

// Dir serves collections from `<root>/<id>.geojson` files on disk.
type Dir struct {
	Root string
}

// Collection reads and parses the collection file for the given slide id.
func (d *Dir) Collection(_ context.Context, id string) (*geojson.FeatureCollection, error) {
	path := filepath.Join(d.Root, id+".geojson")

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	return fc, nil
}

// Cached wraps another source and retains successful results, so preloading
// warms later lookups. Failures are not cached.
type Cached struct {
	next FeatureSource

	mu    sync.RWMutex
	cache map[string]*geojson.FeatureCollection
}

// NewCached creates a warming cache in front of the given source.
func NewCached(next FeatureSource) *Cached {
	return &Cached{
		next:  next,
		cache: make(map[string]*geojson.FeatureCollection),
	}
}

// Collection returns the cached collection or falls through to the wrapped
// source, retaining the result on success.
func (c *Cached) Collection(ctx context.Context, id string) (*geojson.FeatureCollection, error) {
	c.mu.RLock()
	fc, ok := c.cache[id]
	c.mu.RUnlock()
	if ok {
		return fc, nil
	}

	fc, err := c.next.Collection(ctx, id)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.cache[id] = fc
	c.mu.Unlock()

	return fc, nil
}

// Len reports the number of cached collections.
func (c *Cached) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.cache)
}
