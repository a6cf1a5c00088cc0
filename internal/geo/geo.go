package geo

import "math"

const (
	earthRadiusM  = 6371000.0
	metersPerMile = 1609.34
	mphPerMps     = 2.2369
)

type Point struct {
	Lat float64
	Lng float64
}

// DistanceMeters returns the great-circle distance between two points.
func DistanceMeters(a, b Point) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return earthRadiusM * c
}

// Increment returns the distance contributed by moving from prev to cur.
// The first point of a session has no predecessor and contributes nothing.
func Increment(prev *Point, cur Point) float64 {
	if prev == nil {
		return 0
	}
	d := DistanceMeters(*prev, cur)
	if d < 0 {
		return 0
	}
	return d
}

func MetersToMiles(m float64) float64 {
	return m / metersPerMile
}

func MpsToMph(v float64) float64 {
	return v * mphPerMps
}
