// README: Common identifier and geographic value types used across modules.
package types

import "math"

// EventID, ReservationID and StopID are UUID strings issued by Postgres.
type (
	EventID       string
	ReservationID string
	StopID        string
)

// DriverID is the per-event driver number. It is small, dense and assigned
// by the events schema, which makes it usable as a deterministic tie-break
// in scoring.
type DriverID int

// LatLng is a WGS84 coordinate pair.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

const earthRadiusKm = 6371.0

// closeToEpsilonDeg is the coordinate tolerance used when comparing points
// that went through JSON round-trips. Roughly a metre at campus latitudes.
const closeToEpsilonDeg = 1e-5

// CloseTo reports whether p and other are the same physical point within
// the serialization tolerance.
func (p LatLng) CloseTo(other LatLng) bool {
	return math.Abs(p.Lat-other.Lat) < closeToEpsilonDeg &&
		math.Abs(p.Lng-other.Lng) < closeToEpsilonDeg
}

// DistanceKm returns the great-circle distance in kilometres between p and
// other.
func (p LatLng) DistanceKm(other LatLng) float64 {
	dLat := degreesToRadians(other.Lat - p.Lat)
	dLng := degreesToRadians(other.Lng - p.Lng)

	rLat1 := degreesToRadians(p.Lat)
	rLat2 := degreesToRadians(other.Lat)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rLat1)*math.Cos(rLat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusKm * c
}

func degreesToRadians(deg float64) float64 {
	return deg * math.Pi / 180.0
}

// Address is a resolved street address split into a primary line and a
// secondary descriptor.
type Address struct {
	Main string `json:"main"`
	Sub  string `json:"sub"`
}
