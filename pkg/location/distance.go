package location

import "math"

const earthRadiusKm = 6371.0

// KmPerDegree is the length of one degree of latitude, and of longitude on
// the equator.
const KmPerDegree = 111.0

func radians(deg float64) float64 { return deg * math.Pi / 180 }

func hav(theta float64) float64 {
	s := math.Sin(theta / 2)
	return s * s
}

// DistanceKm is the great-circle distance between two fixes in degrees.
func DistanceKm(lat1, lng1, lat2, lng2 float64) float64 {
	h := hav(radians(lat2-lat1)) + math.Cos(radians(lat1))*math.Cos(radians(lat2))*hav(radians(lng2-lng1))
	// rounding can push h past 1 for antipodal fixes
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(math.Min(h, 1)))
}

// ValidLatLng reports whether lat is in [-90,90] and lng in [-180,180].
func ValidLatLng(lat, lng float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lng) {
		return false
	}
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}
