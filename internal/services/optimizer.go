package services

import (
	"context"
	"deadkm-service/internal/domain"
	"deadkm-service/internal/platform/obs"
	"errors"
	"fmt"
	"math"
)

// OptimizeInput is everything one reassignment run needs. Drivers index the
// matrix rows and Pickups its columns. A nil Original means the identity
// pairing implied by input order.
type OptimizeInput struct {
	Matrix      *domain.DistanceMatrix
	Drivers     []domain.VehicleRecord
	Pickups     []domain.VehicleRecord
	Original    []domain.Assignment
	Constraints domain.Constraints
}

type OptimizeResult struct {
	// Assignments holds one entry per driver, in driver order.
	Assignments []domain.Assignment
	// ObjectiveKm is the total distance of the assigned cells.
	ObjectiveKm float64
	// UnassignedPickups lists pickup columns left without a driver.
	UnassignedPickups []int
}

// Optimizer is the solve step as seen by the orchestration layer.
type Optimizer func(ctx context.Context, in OptimizeInput, progress func(percent int)) (*OptimizeResult, error)

// Optimize finds the minimum dead-km reassignment of pickups to drivers.
//
// Among equally short solutions the one changing the fewest drivers wins;
// remaining ties are broken by index order, so identical input always gives
// identical output.
func Optimize(ctx context.Context, in OptimizeInput, progress func(percent int)) (_ *OptimizeResult, err error) {
	defer obs.Time(ctx, "optimizer.Optimize")(&err)

	rows, cols := len(in.Drivers), len(in.Pickups)
	if rows == 0 || cols == 0 {
		return nil, errors.New("optimize: drivers and pickups must be non-empty")
	}
	if err := in.Matrix.CheckShape(rows, cols); err != nil {
		return nil, fmt.Errorf("optimize: %w", err)
	}
	if rows != cols && !in.Constraints.AllowUnassigned {
		return nil, &domain.InfeasibleAssignmentError{
			Reason: fmt.Sprintf("%d drivers and %d pickups cannot be paired one to one without allowing unassigned", rows, cols),
		}
	}

	original := in.Original
	if original == nil {
		original = domain.IdentityAssignments(rows, cols)
	}
	if len(original) != rows {
		return nil, fmt.Errorf("optimize: %d original assignments for %d drivers", len(original), rows)
	}

	costs, forbidden, err := buildCosts(in, original)
	if err != nil {
		return nil, err
	}

	report := func(done, total int) {
		if progress == nil {
			return
		}
		// Milestones only; the solve is not published more finely.
		for _, m := range []int{25, 50, 75, 100} {
			prev := (done - 1) * 100 / total
			now := done * 100 / total
			if prev < m && now >= m {
				progress(m)
			}
		}
	}

	match, err := solveAssignment(ctx, costs, report)
	if err != nil {
		return nil, fmt.Errorf("optimize: %w", err)
	}

	res := &OptimizeResult{Assignments: make([]domain.Assignment, rows)}
	var blocked []string
	for i := 0; i < rows; i++ {
		j := match[i]
		if j >= cols {
			res.Assignments[i] = domain.Assignment{Driver: i, Pickup: domain.Unassigned}
			continue
		}
		if forbidden[i][j] {
			blocked = append(blocked, in.Drivers[i].VehicleNumber)
		}
		res.Assignments[i] = domain.Assignment{Driver: i, Pickup: j}
		res.ObjectiveKm += in.Matrix.At(i, j).DistanceKm
	}
	if len(blocked) > 0 {
		return nil, &domain.InfeasibleAssignmentError{
			Reason:  "no complete assignment respects the constraints and reachable routes",
			Drivers: blocked,
		}
	}

	owners := domain.PickupOwners(res.Assignments, cols)
	for j, owner := range owners {
		if owner == domain.Unassigned {
			res.UnassignedPickups = append(res.UnassignedPickups, j)
		}
	}

	return res, nil
}

// buildCosts encodes the problem as a square integer matrix. Permitted cells
// cost metres*(n+1) plus one when the cell changes the driver's original
// pickup, which makes "fewest changes" an exact secondary objective. Forbidden
// cells cost more than any feasible total, so the solver only picks one when
// no feasible assignment exists.
func buildCosts(in OptimizeInput, original []domain.Assignment) ([][]int64, [][]bool, error) {
	rows, cols := len(in.Drivers), len(in.Pickups)
	n := rows
	if cols > n {
		n = cols
	}
	scale := int64(n + 1)

	forbidden := make([][]bool, rows)
	metres := make([][]int64, rows)
	var maxMetres int64
	for i := 0; i < rows; i++ {
		forbidden[i] = make([]bool, cols)
		metres[i] = make([]int64, cols)
		for j := 0; j < cols; j++ {
			cell := in.Matrix.At(i, j)
			keep := original[i].Pickup == j && !in.Constraints.EnforceOnOriginal
			permitted := keep || in.Constraints.Permits(in.Drivers[i], in.Pickups[j])
			if !cell.Reachable || math.IsInf(cell.DistanceKm, 0) || math.IsNaN(cell.DistanceKm) || !permitted {
				forbidden[i][j] = true
				continue
			}
			if cell.DistanceKm < 0 {
				return nil, nil, fmt.Errorf("optimize: negative distance %.3f km for cell (%d, %d)", cell.DistanceKm, i, j)
			}
			m := int64(math.Round(cell.DistanceKm * 1000))
			metres[i][j] = m
			if m > maxMetres {
				maxMetres = m
			}
		}
	}

	if err := checkRowsAndColumns(in, forbidden, rows, cols); err != nil {
		return nil, nil, err
	}

	if maxMetres > (hungarianInf/int64(n)/int64(n)-1)/scale {
		return nil, nil, fmt.Errorf("optimize: distances too large for %d routes", n)
	}
	// Strictly larger than the worst feasible total.
	big := (maxMetres*scale+1)*int64(n) + 1

	costs := make([][]int64, n)
	for i := 0; i < n; i++ {
		costs[i] = make([]int64, n)
		for j := 0; j < n; j++ {
			switch {
			case i >= rows:
				// Virtual driver: the pickup stays uncovered.
				costs[i][j] = 0
			case j >= cols:
				// Virtual pickup: the driver stays unassigned.
				if original[i].Pickup != domain.Unassigned {
					costs[i][j] = 1
				}
			case forbidden[i][j]:
				costs[i][j] = big
			default:
				c := metres[i][j] * scale
				if original[i].Pickup != j {
					c++
				}
				costs[i][j] = c
			}
		}
	}

	return costs, forbidden, nil
}

// checkRowsAndColumns fails fast when a driver or pickup has no usable
// counterpart and cannot be left unassigned either.
func checkRowsAndColumns(in OptimizeInput, forbidden [][]bool, rows, cols int) error {
	// Without surplus pickups every driver needs a real pickup.
	if rows <= cols {
		var drivers []string
		for i := 0; i < rows; i++ {
			if allTrue(forbidden[i]) {
				drivers = append(drivers, in.Drivers[i].VehicleNumber)
			}
		}
		if len(drivers) > 0 {
			return &domain.InfeasibleAssignmentError{Reason: "drivers with no valid pickups", Drivers: drivers}
		}
	}

	// Without surplus drivers every pickup needs a real driver.
	if cols <= rows {
		var pickups []string
		for j := 0; j < cols; j++ {
			covered := false
			for i := 0; i < rows; i++ {
				if !forbidden[i][j] {
					covered = true
					break
				}
			}
			if !covered {
				pickups = append(pickups, in.Pickups[j].VehicleNumber)
			}
		}
		if len(pickups) > 0 {
			return &domain.InfeasibleAssignmentError{Reason: "pickups with no valid drivers", Drivers: pickups}
		}
	}
	return nil
}

func allTrue(row []bool) bool {
	for _, b := range row {
		if !b {
			return false
		}
	}
	return true
}
