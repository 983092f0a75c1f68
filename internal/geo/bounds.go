// Package geo handles GeoJSON bounds resolution and coordinate conversions.
package geo

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// CollectionBounds computes the union of all feature geometry bounds in the
// collection. The second return value is false when the collection has no
// features with usable geometry.
func CollectionBounds(fc *geojson.FeatureCollection) (orb.Bound, bool) {
	if fc == nil {
		return orb.Bound{}, false
	}

	var bound orb.Bound
	found := false

	for _, f := range fc.Features {
		if f == nil || f.Geometry == nil {
			continue
		}
		b := f.Geometry.Bound()
		if !found {
			bound = b
			found = true
		} else {
			bound = bound.Union(b)
		}
	}

	return bound, found
}

// TargetBounds resolves the viewport target for a collection: an explicit
// bbox member wins, otherwise the computed bounds of the features.
// GeoJSON bbox order is [west, south, east, north].
func TargetBounds(fc *geojson.FeatureCollection) (orb.Bound, bool) {
	if fc == nil {
		return orb.Bound{}, false
	}

	if fc.BBox.Valid() {
		return fc.BBox.Bound(), true
	}

	return CollectionBounds(fc)
}
