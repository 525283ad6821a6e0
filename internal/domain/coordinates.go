package domain

import (
	"fmt"
	"math"
)

// Immutable geographic coordinates (latitude, longitude) in decimal degrees.
type Coordinates struct {
	Lat float64
	Lon float64
}

// Validate checks that both components are finite and within the WGS84 range.
// field names the offending input in the returned error.
func (c Coordinates) Validate(field string) error {
	if math.IsNaN(c.Lat) || math.IsInf(c.Lat, 0) || math.IsNaN(c.Lon) || math.IsInf(c.Lon, 0) {
		return &InvalidCoordinateError{Field: field, Lat: c.Lat, Lon: c.Lon, Reason: "coordinate is not a finite number"}
	}
	if c.Lat < -90 || c.Lat > 90 {
		return &InvalidCoordinateError{Field: field, Lat: c.Lat, Lon: c.Lon, Reason: "latitude must be within [-90, 90]"}
	}
	if c.Lon < -180 || c.Lon > 180 {
		return &InvalidCoordinateError{Field: field, Lat: c.Lat, Lon: c.Lon, Reason: "longitude must be within [-180, 180]"}
	}
	return nil
}

// Rounded returns the coordinates rounded to 5 decimal places (~1m), the
// precision used for cache keys and duplicate detection.
func (c Coordinates) Rounded() Coordinates {
	return Coordinates{Lat: RoundCoordinate(c.Lat), Lon: RoundCoordinate(c.Lon)}
}

// Key is a stable text form of the rounded coordinates.
func (c Coordinates) Key() string {
	r := c.Rounded()
	return fmt.Sprintf("%.5f,%.5f", r.Lat, r.Lon)
}

func RoundCoordinate(v float64) float64 {
	return math.Round(v*100000) / 100000
}
