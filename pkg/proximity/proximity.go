package proximity

import "math"

// Labels shown next to nearby convoys instead of a raw distance.
const (
	VeryClose  = "Very Close"
	Nearby     = "Nearby"
	WithinArea = "Within Area"
	Far        = "Far (within range)"
)

// Label buckets distanceKm by how much of radiusKm is left between the two
// points. Anything on or past the radius gets no label.
func Label(distanceKm, radiusKm float64) string {
	if !(radiusKm > 0) || distanceKm >= radiusKm {
		return ""
	}
	switch left := 1 - math.Max(distanceKm, 0)/radiusKm; {
	case left >= 0.75:
		return VeryClose
	case left >= 0.5:
		return Nearby
	case left >= 0.25:
		return WithinArea
	default:
		return Far
	}
}
