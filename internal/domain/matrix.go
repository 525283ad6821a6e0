package domain

import (
	"fmt"
	"math"
	"strings"
)

// Cell is one driver->pickup estimate. Pairs that could not be priced are kept
// as explicit unreachable cells so the optimizer can penalize them.
type Cell struct {
	DistanceKm      float64
	DurationMinutes float64
	Reachable       bool
}

// UnreachableCell is the sentinel for a missing or failed lookup.
func UnreachableCell() Cell {
	return Cell{DistanceKm: math.Inf(1), DurationMinutes: math.Inf(1), Reachable: false}
}

// Dense driver x pickup matrix. Rows follow the driver order and columns the
// pickup order of the records it was built from. It is built once per run and
// treated as read-only afterwards.
type DistanceMatrix struct {
	DriverIDs []string
	PickupIDs []string
	Cells     [][]Cell
}

// NewDistanceMatrix allocates a matrix with every cell unreachable.
func NewDistanceMatrix(driverIDs, pickupIDs []string) *DistanceMatrix {
	cells := make([][]Cell, len(driverIDs))
	for i := range cells {
		row := make([]Cell, len(pickupIDs))
		for j := range row {
			row[j] = UnreachableCell()
		}
		cells[i] = row
	}
	return &DistanceMatrix{
		DriverIDs: append([]string(nil), driverIDs...),
		PickupIDs: append([]string(nil), pickupIDs...),
		Cells:     cells,
	}
}

// QuantizedToMetres returns a copy with every reachable distance rounded to
// whole metres, the resolution the optimizer solves at.
func (m *DistanceMatrix) QuantizedToMetres() *DistanceMatrix {
	out := &DistanceMatrix{
		DriverIDs: append([]string(nil), m.DriverIDs...),
		PickupIDs: append([]string(nil), m.PickupIDs...),
		Cells:     make([][]Cell, len(m.Cells)),
	}
	for i, row := range m.Cells {
		out.Cells[i] = make([]Cell, len(row))
		for j, c := range row {
			if c.Reachable && !math.IsInf(c.DistanceKm, 0) && !math.IsNaN(c.DistanceKm) {
				c.DistanceKm = math.Round(c.DistanceKm*1000) / 1000
			}
			out.Cells[i][j] = c
		}
	}
	return out
}

// CheckLabels verifies that axis labels, when present, name the given
// vehicles in the same order. Blank labels are not checked.
func (m *DistanceMatrix) CheckLabels(driverIDs, pickupIDs []string) error {
	check := func(axis string, labels, want []string) error {
		if len(labels) == 0 {
			return nil
		}
		if len(labels) != len(want) {
			return fmt.Errorf("distance matrix: %d %s labels for %d records", len(labels), axis, len(want))
		}
		for i := range labels {
			if l := strings.TrimSpace(labels[i]); l != "" && l != strings.TrimSpace(want[i]) {
				return fmt.Errorf("distance matrix: %s label %d is %q, record is %q", axis, i, labels[i], want[i])
			}
		}
		return nil
	}
	if err := check("driver", m.DriverIDs, driverIDs); err != nil {
		return err
	}
	return check("pickup", m.PickupIDs, pickupIDs)
}

func (m *DistanceMatrix) Rows() int { return len(m.Cells) }

func (m *DistanceMatrix) Cols() int {
	if len(m.Cells) == 0 {
		return len(m.PickupIDs)
	}
	return len(m.Cells[0])
}

func (m *DistanceMatrix) At(i, j int) Cell { return m.Cells[i][j] }

// CheckShape verifies the matrix is rectangular and matches its axis labels
// and the expected dimensions.
func (m *DistanceMatrix) CheckShape(rows, cols int) error {
	if m == nil {
		return fmt.Errorf("distance matrix: matrix is nil")
	}
	if len(m.Cells) != rows {
		return fmt.Errorf("distance matrix: got %d rows, want %d", len(m.Cells), rows)
	}
	for i, row := range m.Cells {
		if len(row) != cols {
			return fmt.Errorf("distance matrix: row %d has %d columns, want %d", i, len(row), cols)
		}
	}
	if len(m.DriverIDs) != 0 && len(m.DriverIDs) != rows {
		return fmt.Errorf("distance matrix: %d driver labels for %d rows", len(m.DriverIDs), rows)
	}
	if len(m.PickupIDs) != 0 && len(m.PickupIDs) != cols {
		return fmt.Errorf("distance matrix: %d pickup labels for %d columns", len(m.PickupIDs), cols)
	}
	return nil
}
