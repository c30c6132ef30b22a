package evidence

import "math"

const earthRadiusM = 6371000

// Location is a WGS84 coordinate.
type Location struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Factor is the outcome of evaluating one evidence channel.
type Factor struct {
	Pass       bool    `json:"pass"`
	Confidence float64 `json:"confidence"`
}

// DistanceM returns the great-circle distance between two coordinates in meters.
func DistanceM(a, b Location) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusM * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// ScoreLocation judges a reported coordinate against a geofence.
//
// Pass means the reported point is inside the radius. Confidence starts from
// how much of the radius the claimed accuracy eats up (a fix reported with
// accuracy worse than the fence cannot be trusted at face value) and, when
// the point lands in the annulus between radius and radius+accuracy, decays
// linearly to zero across it. Missing or non-finite inputs score zero.
func ScoreLocation(candidate, reference Location, radiusM, accuracyM float64) Factor {
	if radiusM <= 0 || !finite(candidate.Lat, candidate.Lng, reference.Lat, reference.Lng, radiusM, accuracyM) {
		return Factor{}
	}
	if accuracyM < 0 {
		return Factor{}
	}

	dist := DistanceM(candidate, reference)
	accFactor := 1 - accuracyM/radiusM
	if accFactor < 0 {
		accFactor = 0
	}

	switch {
	case dist <= radiusM:
		return Factor{Pass: true, Confidence: accFactor}
	case accuracyM > 0 && dist <= radiusM+accuracyM:
		// Partial credit: the overshoot is explainable by the reported accuracy.
		return Factor{Pass: false, Confidence: accFactor * (1 - (dist-radiusM)/accuracyM)}
	default:
		return Factor{}
	}
}

func finite(vals ...float64) bool {
	for _, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
