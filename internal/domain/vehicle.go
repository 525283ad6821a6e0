package domain

import (
	"errors"
	"fmt"
	"strings"
)

// A named location a driver starts from or a route first stops at.
type Point struct {
	Name   string
	Coords Coordinates
}

// DriverPoint is where a vehicle's driver starts the day.
type DriverPoint = Point

// PickupPoint is the first pickup of a route.
type PickupPoint = Point

// Represents one vehicle row of an uploaded roster: the vehicle, its driver and
// the route it currently serves. The driver point and the first pickup point
// together define the vehicle's current dead kilometres.
// Records are immutable once loaded for a task.
type VehicleRecord struct {
	VehicleNumber      string
	Institute          string
	Category           string
	RouteNumber        string
	DriverEmployeeID   string
	LicensedExperience float64
	Driver             DriverPoint
	Pickup             PickupPoint
}

// Validate checks the record's key and both coordinates. Coordinate failures
// are returned as *InvalidCoordinateError.
func (v VehicleRecord) Validate() error {
	if strings.TrimSpace(v.VehicleNumber) == "" {
		return errors.New("vehicle record: vehicle number must not be empty")
	}
	if v.LicensedExperience < 0 {
		return fmt.Errorf("vehicle record %q: licensed experience must be >= 0", v.VehicleNumber)
	}
	if err := v.Driver.Coords.Validate("driver point of " + v.VehicleNumber); err != nil {
		return err
	}
	if err := v.Pickup.Coords.Validate("pickup point of " + v.VehicleNumber); err != nil {
		return err
	}
	return nil
}

// ValidateRoster enforces that vehicle numbers are unique across records.
func ValidateRoster(records []VehicleRecord) error {
	seen := make(map[string]int, len(records))
	for i, r := range records {
		key := strings.TrimSpace(r.VehicleNumber)
		if prev, ok := seen[key]; ok {
			return fmt.Errorf("vehicle roster: duplicate vehicle number %q at rows %d and %d", key, prev+1, i+1)
		}
		seen[key] = i
	}
	return nil
}

// DriverPoints extracts the driver points in record order.
func DriverPoints(records []VehicleRecord) []DriverPoint {
	out := make([]DriverPoint, len(records))
	for i, r := range records {
		out[i] = r.Driver
	}
	return out
}

// PickupPoints extracts the first pickup points in record order.
func PickupPoints(records []VehicleRecord) []PickupPoint {
	out := make([]PickupPoint, len(records))
	for i, r := range records {
		out[i] = r.Pickup
	}
	return out
}

// VehicleNumbers extracts the vehicle keys in record order.
func VehicleNumbers(records []VehicleRecord) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.VehicleNumber
	}
	return out
}
