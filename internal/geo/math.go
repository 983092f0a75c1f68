package geo

import "math"

// MaxMercatorLat is the latitude limit of the Web Mercator projection.
const MaxMercatorLat = 85.05112878

// ImageToLatLng converts image-grid coordinates (0..size, x east and y north
// from the bottom-left corner) to WGS84 Lon/Lat. Stories told over scanned or
// otherwise non-geographic imagery use this to place their features on a
// Leaflet CRS as if the image covered the whole world.
//
// The x axis maps linearly to [-180, 180]; the y axis goes through an inverse
// Mercator projection so tiles line up with the sliced basemap.
func ImageToLatLng(x, y, size float64) (lon, lat float64) {
	lon = x*(360.0/size) - 180.0

	// y: [0..size] -> mercator northing [-PI..PI]
	mercatorY := y*((2.0*math.Pi)/size) - math.Pi
	latRad := 2.0*math.Atan(math.Exp(mercatorY)) - math.Pi*0.5

	lat = latRad * (180.0 / math.Pi)
	if lat > MaxMercatorLat {
		lat = MaxMercatorLat
	} else if lat < -MaxMercatorLat {
		lat = -MaxMercatorLat
	}

	return lon, lat
}
