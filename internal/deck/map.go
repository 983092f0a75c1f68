package deck

import (
	"context"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Map is the widget contract the deck drives. Implementations render overlay
// layers from feature collections and animate the viewport.
type Map interface {
	// AddLayer builds an overlay from the collection: point features become
	// markers styled by the style set, features with a name property get a
	// non-persistent top-anchored tooltip, lines and polygons get the fixed
	// path style.
	AddLayer(fc *geojson.FeatureCollection, styles *StyleSet) Layer

	// RemoveLayer clears a previously added overlay.
	RemoveLayer(l Layer)

	// FlyToBounds animates the viewport to the given bounds and returns once
	// the movement has finished or ctx is done.
	FlyToBounds(ctx context.Context, b orb.Bound) error
}

// Layer is one rendered overlay, owned by the deck and replaced wholesale on
// every slide change.
type Layer interface {
	// Bounds reports the computed bounds of the rendered features; false when
	// the layer holds nothing with usable geometry.
	Bounds() (orb.Bound, bool)

	// OpenPermanentTooltips binds and opens a permanent tooltip on every
	// feature of the layer.
	OpenPermanentTooltips()
}

// Panels is the narrative-panel side of the host: visibility toggling of the
// slide elements.
type Panels interface {
	HideAll()
	Show(i int)
}
