package geo

import (
	"math"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

func collection(points ...orb.Point) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, p := range points {
		fc.Append(geojson.NewFeature(p))
	}
	return fc
}

func TestCollectionBounds(t *testing.T) {
	fc := collection(orb.Point{5, 5}, orb.Point{-3, 9}, orb.Point{7, 1})

	b, ok := CollectionBounds(fc)
	if !ok {
		t.Fatal("expected bounds for non-empty collection")
	}

	want := orb.Bound{Min: orb.Point{-3, 1}, Max: orb.Point{7, 9}}
	if b != want {
		t.Errorf("CollectionBounds = %v, want %v", b, want)
	}
}

func TestCollectionBounds_Empty(t *testing.T) {
	if _, ok := CollectionBounds(geojson.NewFeatureCollection()); ok {
		t.Error("expected no bounds for empty collection")
	}
	if _, ok := CollectionBounds(nil); ok {
		t.Error("expected no bounds for nil collection")
	}
}

func TestTargetBounds_BBoxWins(t *testing.T) {
	fc := collection(orb.Point{0, 0})
	fc.BBox = geojson.BBox{10, 20, 30, 40}

	b, ok := TargetBounds(fc)
	if !ok {
		t.Fatal("expected bounds")
	}

	want := orb.Bound{Min: orb.Point{10, 20}, Max: orb.Point{30, 40}}
	if b != want {
		t.Errorf("TargetBounds = %v, want explicit bbox %v", b, want)
	}
}

func TestTargetBounds_FallsBackToComputed(t *testing.T) {
	fc := collection(orb.Point{2, 3}, orb.Point{4, 1})

	b, ok := TargetBounds(fc)
	if !ok {
		t.Fatal("expected bounds")
	}

	want := orb.Bound{Min: orb.Point{2, 1}, Max: orb.Point{4, 3}}
	if b != want {
		t.Errorf("TargetBounds = %v, want computed %v", b, want)
	}
}

func TestImageToLatLng(t *testing.T) {
	const size = 1024.0

	// Grid center maps to the origin.
	lon, lat := ImageToLatLng(size/2, size/2, size)
	if math.Abs(lon) > 1e-9 || math.Abs(lat) > 1e-9 {
		t.Errorf("center = (%v, %v), want (0, 0)", lon, lat)
	}

	// Corners hit the longitude extremes and the Mercator latitude limit.
	lon, lat = ImageToLatLng(0, 0, size)
	if lon != -180 || math.Abs(lat+MaxMercatorLat) > 1e-6 {
		t.Errorf("bottom-left = (%v, %v), want (-180, %v)", lon, lat, -MaxMercatorLat)
	}

	lon, lat = ImageToLatLng(size, size, size)
	if lon != 180 || math.Abs(lat-MaxMercatorLat) > 1e-6 {
		t.Errorf("top-right = (%v, %v), want (180, %v)", lon, lat, MaxMercatorLat)
	}
}
