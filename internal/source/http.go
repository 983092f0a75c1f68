package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog/log"
)

// HTTP fetches collections from `<base>/data/<id>.geojson`.
type HTTP struct {
	Client *http.Client
	Base   string
}

// Collection performs the fetch and parse for one slide id.
func (h *HTTP) Collection(ctx context.Context, id string) (*geojson.FeatureCollection, error) {
	url := fmt.Sprintf("%s/data/%s.geojson", h.Base, id)
	return FetchCollection(ctx, h.Client, url)
}

// FetchCollection downloads and parses a GeoJSON feature collection.
func FetchCollection(ctx context.Context, client *http.Client, url string) (*geojson.FeatureCollection, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	// Explicitly ignore close error as it's a read-only operation
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != 200 {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var fc geojson.FeatureCollection
	if err := json.NewDecoder(resp.Body).Decode(&fc); err != nil {
		return nil, err
	}

	return &fc, nil
}

// SaveCollection marshals the feature collection and writes it to disk.
func SaveCollection(dir, path string, fc *geojson.FeatureCollection) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}

	// We care about write errors on close
	defer func() {
		if closeErr := f.Close(); closeErr != nil {
			log.Error().Err(closeErr).Str("path", path).Msg("Failed to close file")
		}
	}()

	return json.NewEncoder(f).Encode(fc)
}

// CachePath returns the on-disk location for one slide's collection.
func CachePath(dataDir, id string) string {
	return filepath.Join(dataDir, id+".geojson")
}
