package location

import "math"

// Box is a lat/lng rectangle with inclusive bounds.
type Box struct {
	MinLat float64
	MaxLat float64
	MinLng float64
	MaxLng float64
}

// BoundingBox approximates the circle of radiusKm around (lat, lng).
// The longitude span is widened by 1/cos(lat) to follow meridian convergence
// and capped at the full globe near the poles. Corners of the box lie outside
// the circle, so callers needing exact distance post-filter with DistanceKm.
// Boxes are not wrapped across the antimeridian.
func BoundingBox(lat, lng, radiusKm float64) Box {
	latDelta := radiusKm / KmPerDegree
	lngDelta := 180.0
	if c := math.Cos(radians(lat)); c > 1e-9 {
		lngDelta = math.Min(radiusKm/(KmPerDegree*c), 180)
	}
	return Box{
		MinLat: lat - latDelta,
		MaxLat: lat + latDelta,
		MinLng: lng - lngDelta,
		MaxLng: lng + lngDelta,
	}
}

// Contains reports whether the point lies inside the box, bounds included.
func (b Box) Contains(lat, lng float64) bool {
	return lat >= b.MinLat && lat <= b.MaxLat && lng >= b.MinLng && lng <= b.MaxLng
}
