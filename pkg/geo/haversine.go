// Package geo provides great-circle distance estimation between trip endpoints.
package geo

import "math"

const (
	// EarthRadiusKm is the mean Earth radius used by the haversine formula.
	EarthRadiusKm = 6371.0
	// KmPerMile converts statute miles to kilometres.
	KmPerMile = 1.60934
)

// Haversine returns the great-circle distance in kilometres between two
// points given in degrees, on a sphere of the given radius.
func Haversine(lat1, lon1, lat2, lon2, radiusKm float64) float64 {
	phi1 := toRadians(lat1)
	phi2 := toRadians(lat2)
	dPhi := toRadians(lat2 - lat1)
	dLambda := toRadians(lon2 - lon1)

	sinPhi := math.Sin(dPhi / 2)
	sinLambda := math.Sin(dLambda / 2)
	a := sinPhi*sinPhi + math.Cos(phi1)*math.Cos(phi2)*sinLambda*sinLambda
	// Rounding can push a a hair outside [0, 1] for antipodal points.
	a = math.Min(1, math.Max(0, a))

	return 2 * radiusKm * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// DistanceKm is Haversine over nullable coordinates. Any missing coordinate
// yields nil: a zero distance is a real measurement, not a stand-in for
// "unknown".
func DistanceKm(pickupLat, pickupLon, dropoffLat, dropoffLon *float64, radiusKm float64) *float64 {
	if pickupLat == nil || pickupLon == nil || dropoffLat == nil || dropoffLon == nil {
		return nil
	}
	for _, v := range []float64{*pickupLat, *pickupLon, *dropoffLat, *dropoffLon} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil
		}
	}
	d := Haversine(*pickupLat, *pickupLon, *dropoffLat, *dropoffLon, radiusKm)
	return &d
}

// MilesToKm converts miles to kilometres.
func MilesToKm(miles float64) float64 {
	return miles * KmPerMile
}

// KmToMiles converts kilometres to miles.
func KmToMiles(km float64) float64 {
	return km / KmPerMile
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}
