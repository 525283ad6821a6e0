package dto

import (
	"deadkm-service/internal/domain"
	"fmt"
	"math"
)

// DistanceMatrix is the wire form of a driver x pickup matrix. Unreachable
// cells are null.
type DistanceMatrix struct {
	Drivers         []string     `json:"drivers"`
	Pickups         []string     `json:"pickups"`
	DistanceKm      [][]*float64 `json:"distance_km"`
	DurationMinutes [][]*float64 `json:"duration_minutes,omitempty"`
}

type MatrixSummary struct {
	TotalCells       int `json:"total_cells"`
	UniqueLookups    int `json:"unique_lookups"`
	UnreachableCells int `json:"unreachable_cells"`
}

func FromDomainMatrix(m *domain.DistanceMatrix) *DistanceMatrix {
	if m == nil {
		return nil
	}
	out := &DistanceMatrix{
		Drivers:         m.DriverIDs,
		Pickups:         m.PickupIDs,
		DistanceKm:      make([][]*float64, m.Rows()),
		DurationMinutes: make([][]*float64, m.Rows()),
	}
	for i, row := range m.Cells {
		out.DistanceKm[i] = make([]*float64, len(row))
		out.DurationMinutes[i] = make([]*float64, len(row))
		for j, c := range row {
			if !c.Reachable {
				continue
			}
			out.DistanceKm[i][j] = optional(c.DistanceKm)
			out.DurationMinutes[i][j] = optional(c.DurationMinutes)
		}
	}
	return out
}

// ToDomain converts and validates a client supplied matrix.
func (m *DistanceMatrix) ToDomain() (*domain.DistanceMatrix, error) {
	if m == nil {
		return nil, nil
	}
	rows := len(m.DistanceKm)
	cols := 0
	if rows > 0 {
		cols = len(m.DistanceKm[0])
	}

	out := domain.NewDistanceMatrix(m.Drivers, m.Pickups)
	out.Cells = make([][]domain.Cell, rows)
	for i, row := range m.DistanceKm {
		if len(row) != cols {
			return nil, fmt.Errorf("distance_matrix: row %d has %d columns, want %d", i, len(row), cols)
		}
		out.Cells[i] = make([]domain.Cell, cols)
		for j, km := range row {
			if km == nil || math.IsNaN(*km) || *km < 0 {
				out.Cells[i][j] = domain.UnreachableCell()
				continue
			}
			dur := math.NaN()
			if i < len(m.DurationMinutes) && j < len(m.DurationMinutes[i]) && m.DurationMinutes[i][j] != nil {
				dur = *m.DurationMinutes[i][j]
			}
			out.Cells[i][j] = domain.Cell{DistanceKm: *km, DurationMinutes: dur, Reachable: true}
		}
	}
	return out, nil
}

type GenerateMatrixRequest struct {
	TaskID     string          `json:"task_id"`
	DriverData []VehicleRecord `json:"driver_data"`
	PickupData []VehicleRecord `json:"pickup_data"`
}

type GenerateMatrixResponse struct {
	Success bool            `json:"success"`
	TaskID  string          `json:"task_id,omitempty"`
	Matrix  *DistanceMatrix `json:"matrix,omitempty"`
	Summary *MatrixSummary  `json:"summary,omitempty"`
	Error   string          `json:"error,omitempty"`
}
