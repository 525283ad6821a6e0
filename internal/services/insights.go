package services

import (
	"deadkm-service/internal/domain"
	"fmt"
	"math"
	"strings"
)

// consistencyTolerance absorbs float summation noise, in km.
const consistencyTolerance = 1e-9

// AggregateInsights summarises a run. It is a pure function of its inputs.
//
// Drivers whose original or optimized cell is unreachable cannot be priced;
// they are counted in UnpricedRoutes and left out of both dead-km sums. The
// savings check only applies when every route was priced.
func AggregateInsights(
	matrix *domain.DistanceMatrix,
	drivers, pickups []domain.VehicleRecord,
	original, optimized []domain.Assignment,
) (domain.Insights, error) {
	return aggregateInsights(matrix, drivers, pickups, original, optimized, true)
}

// aggregateInsights skips the savings check when checkSavings is false, which
// is the case when the original pairing itself broke the constraints and the
// optimizer was not allowed to keep it.
func aggregateInsights(
	matrix *domain.DistanceMatrix,
	drivers, pickups []domain.VehicleRecord,
	original, optimized []domain.Assignment,
	checkSavings bool,
) (domain.Insights, error) {
	if err := matrix.CheckShape(len(drivers), len(pickups)); err != nil {
		return domain.Insights{}, fmt.Errorf("aggregate insights: %w", err)
	}
	if len(original) != len(drivers) || len(optimized) != len(drivers) {
		return domain.Insights{}, fmt.Errorf(
			"aggregate insights: %d original and %d optimized assignments for %d drivers",
			len(original), len(optimized), len(drivers),
		)
	}

	cellKm := func(a domain.Assignment) (float64, bool) {
		if !a.IsAssigned() {
			return 0, true
		}
		c := matrix.At(a.Driver, a.Pickup)
		if !c.Reachable || math.IsInf(c.DistanceKm, 0) {
			return 0, false
		}
		return c.DistanceKm, true
	}

	ins := domain.Insights{TotalRoutes: len(drivers)}
	var origSum, optSum float64

	for i := range drivers {
		o, okO := cellKm(original[i])
		p, okP := cellKm(optimized[i])
		if okO && okP {
			origSum += o
			optSum += p
		} else {
			ins.UnpricedRoutes++
		}

		if original[i].Pickup == optimized[i].Pickup {
			continue
		}
		ins.TotalSwaps++
		if !optimized[i].IsAssigned() {
			ins.ToUnassigned++
			continue
		}
		if sameInstitute(drivers[i], pickups[optimized[i].Pickup]) {
			ins.IntraInstitute++
		} else {
			ins.InterInstitute++
		}
	}

	if checkSavings && ins.UnpricedRoutes == 0 && origSum-optSum < -consistencyTolerance {
		return domain.Insights{}, &domain.InternalConsistencyError{OriginalDeadKm: origSum, OptimizedDeadKm: optSum}
	}

	ins.OriginalDeadKm = round2(origSum)
	ins.TotalDeadKm = round2(optSum)
	ins.TotalMinimized = round2(origSum - optSum)
	return ins, nil
}

// originalPermitted reports whether every original pairing satisfies c.
func originalPermitted(c domain.Constraints, drivers, pickups []domain.VehicleRecord, original []domain.Assignment) bool {
	for _, a := range original {
		if a.IsAssigned() && !c.Permits(drivers[a.Driver], pickups[a.Pickup]) {
			return false
		}
	}
	return true
}

func sameInstitute(driver, pickup domain.VehicleRecord) bool {
	return strings.EqualFold(strings.TrimSpace(driver.Institute), strings.TrimSpace(pickup.Institute))
}

func round2(v float64) float64 {
	r := math.Round(v*100) / 100
	if r == 0 {
		return 0
	}
	return r
}
