// Package geo provides great-circle distance and movement detection for
// consecutive position fixes.
package geo

import "math"

const earthRadiusMeters = 6371000.0

// Distance returns the great-circle distance in meters between two
// coordinates, by the haversine formula.
func Distance(lat1, lon1, lat2, lon2 float64) float64 {
	lat1Rad := lat1 * math.Pi / 180
	lon1Rad := lon1 * math.Pi / 180
	lat2Rad := lat2 * math.Pi / 180
	lon2Rad := lon2 * math.Pi / 180

	dLat := lat2Rad - lat1Rad
	dLon := lon2Rad - lon1Rad

	a := math.Pow(math.Sin(dLat/2), 2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*math.Pow(math.Sin(dLon/2), 2)
	c := 2 * math.Asin(math.Sqrt(a))

	return earthRadiusMeters * c
}

// Moved reports the distance between two fixes and whether it strictly
// exceeds the threshold. Exactly at threshold is not movement.
func Moved(oldLat, oldLon, newLat, newLon, threshold float64) (float64, bool) {
	d := Distance(oldLat, oldLon, newLat, newLon)
	return d, d > threshold
}
