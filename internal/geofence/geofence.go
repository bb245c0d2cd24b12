package geofence

import "math"

const earthRadiusM = 6371000

// Fence is a circular permitted region around a reference coordinate.
type Fence struct {
	Lat     float64
	Lon     float64
	RadiusM float64
}

// DistanceM returns the great-circle distance in meters from the fence
// center to the given coordinate (haversine).
func (f Fence) DistanceM(lat, lon float64) float64 {
	lat1 := f.Lat * math.Pi / 180
	lat2 := lat * math.Pi / 180
	dLat := (lat - f.Lat) * math.Pi / 180
	dLon := (lon - f.Lon) * math.Pi / 180

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return earthRadiusM * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// Contains reports whether the coordinate lies within the fence radius.
// The center itself is always inside for any positive radius.
func (f Fence) Contains(lat, lon float64) bool {
	return f.DistanceM(lat, lon) <= f.RadiusM
}
