package services

import (
	"deadkm-service/internal/domain"
	"fmt"
)

// matrixOf builds a matrix from km values; negative entries are unreachable.
func matrixOf(km [][]float64) *domain.DistanceMatrix {
	rows := len(km)
	cols := 0
	if rows > 0 {
		cols = len(km[0])
	}
	m := domain.NewDistanceMatrix(make([]string, rows), make([]string, cols))
	for i := range km {
		for j, v := range km[i] {
			if v < 0 {
				continue
			}
			m.Cells[i][j] = domain.Cell{DistanceKm: v, DurationMinutes: v, Reachable: true}
		}
	}
	return m
}

// recordsN returns n vehicles of one institute with experienced drivers.
func recordsN(n int) []domain.VehicleRecord {
	out := make([]domain.VehicleRecord, n)
	for i := range out {
		out[i] = domain.VehicleRecord{
			VehicleNumber:      fmt.Sprintf("BUS-%d", i),
			Institute:          "North",
			Category:           "B",
			LicensedExperience: 20,
		}
	}
	return out
}

func vehicle(number, institute string, dLat, dLon, pLat, pLon float64) domain.VehicleRecord {
	return domain.VehicleRecord{
		VehicleNumber:      number,
		Institute:          institute,
		Category:           "B",
		LicensedExperience: 5,
		Driver:             domain.DriverPoint{Name: number + " home", Coords: domain.Coordinates{Lat: dLat, Lon: dLon}},
		Pickup:             domain.PickupPoint{Name: number + " stop", Coords: domain.Coordinates{Lat: pLat, Lon: pLon}},
	}
}

func pickupsOf(as []domain.Assignment) []int {
	out := make([]int, len(as))
	for i, a := range as {
		out[i] = a.Pickup
	}
	return out
}
