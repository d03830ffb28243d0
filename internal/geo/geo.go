package geo

import (
	"fmt"
	"math"

	"presence/internal/faults"
)

// Mean Earth radius in meters; the spherical model is accurate to roughly a
// meter at geofence scale, which is well inside GPS error anyway.
const earthRadiusMeters = 6371000.0

// Point is a WGS84 coordinate pair in degrees.
type Point struct {
	Lat float64 `json:"latitude"`
	Lng float64 `json:"longitude"`
}

// Validate rejects coordinates outside [-90,90] x [-180,180].
func (p Point) Validate() error {
	if p.Lat < -90 || p.Lat > 90 {
		return faults.New(faults.InvalidCoordinate, fmt.Sprintf("latitude %v out of range [-90,90]", p.Lat))
	}
	if p.Lng < -180 || p.Lng > 180 {
		return faults.New(faults.InvalidCoordinate, fmt.Sprintf("longitude %v out of range [-180,180]", p.Lng))
	}
	return nil
}

// DistanceMeters computes the haversine great-circle distance between two
// points. Pure and deterministic; symmetric in its arguments.
func DistanceMeters(a, b Point) (float64, error) {
	if err := a.Validate(); err != nil {
		return 0, err
	}
	if err := b.Validate(); err != nil {
		return 0, err
	}
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(a.Lat*math.Pi/180)*math.Cos(b.Lat*math.Pi/180)*
			math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return earthRadiusMeters * c, nil
}

// Fence is a circular boundary around a center point.
type Fence struct {
	Center       Point
	RadiusMeters float64
}

// Contains reports whether p falls inside the fence, along with the measured
// distance so callers can tell the actor how far off they are.
func (f Fence) Contains(p Point) (bool, float64, error) {
	d, err := DistanceMeters(f.Center, p)
	if err != nil {
		return false, 0, err
	}
	return d <= f.RadiusMeters, d, nil
}
