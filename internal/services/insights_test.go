package services

import (
	"context"
	"deadkm-service/internal/domain"
	"errors"
	"testing"
)

func TestAggregateInsights(t *testing.T) {
	m := matrixOf([][]float64{
		{5, 4, 1},
		{4, 5, 9},
		{1, 9, 5},
	})
	drivers := recordsN(3)
	drivers[2].Institute = "South"
	pickups := recordsN(3)
	pickups[2].Institute = "South"

	original := domain.IdentityAssignments(3, 3)
	optimized := assignments(2, 1, 0)

	ins, err := AggregateInsights(m, drivers, pickups, original, optimized)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := domain.Insights{
		TotalRoutes:    3,
		OriginalDeadKm: 15,
		TotalDeadKm:    7,
		TotalMinimized: 8,
		TotalSwaps:     2,
		InterInstitute: 2,
		IntraInstitute: 0,
	}
	if ins != want {
		t.Fatalf("unexpected insights:\n got %+v\nwant %+v", ins, want)
	}
}

func TestAggregateInsightsIsIdempotent(t *testing.T) {
	m := matrixOf([][]float64{{1.231, 2.345}, {3.456, 0.111}})
	drivers, pickups := recordsN(2), recordsN(2)
	original := domain.IdentityAssignments(2, 2)

	a, errA := AggregateInsights(m, drivers, pickups, original, original)
	b, errB := AggregateInsights(m, drivers, pickups, original, original)
	if errA != nil || errB != nil {
		t.Fatalf("unexpected errors: %v %v", errA, errB)
	}
	if a != b {
		t.Fatalf("aggregate not idempotent: %+v vs %+v", a, b)
	}
	if a.OriginalDeadKm != 1.34 || a.TotalMinimized != 0 {
		t.Fatalf("unexpected rounding: %+v", a)
	}
}

func TestAggregateInsightsUnpricedRoutesSkipCheck(t *testing.T) {
	m := matrixOf([][]float64{{-1, 1}, {1, 5}})
	original := domain.IdentityAssignments(2, 2)

	ins, err := AggregateInsights(m, recordsN(2), recordsN(2), original, assignments(1, 0))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ins.UnpricedRoutes != 1 || ins.OriginalDeadKm != 5 || ins.TotalDeadKm != 1 {
		t.Fatalf("unexpected insights %+v", ins)
	}
}

// worseOptimizer returns the most expensive assignment it can find.
func worseOptimizer(ctx context.Context, in OptimizeInput, progress func(int)) (*OptimizeResult, error) {
	n := in.Matrix.Rows()
	out := &OptimizeResult{Assignments: make([]domain.Assignment, n)}
	for i := 0; i < n; i++ {
		out.Assignments[i] = domain.Assignment{Driver: i, Pickup: (i + 1) % n}
	}
	return out, nil
}

func TestWorseOptimizerTriggersInternalConsistencyError(t *testing.T) {
	m := matrixOf([][]float64{{1, 10}, {10, 1}})
	drivers, pickups := recordsN(2), recordsN(2)
	original := domain.IdentityAssignments(2, 2)

	res, err := worseOptimizer(context.Background(), OptimizeInput{Matrix: m}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = AggregateInsights(m, drivers, pickups, original, res.Assignments)
	var ice *domain.InternalConsistencyError
	if !errors.As(err, &ice) {
		t.Fatalf("expected InternalConsistencyError, got %v", err)
	}
	if ice.OriginalDeadKm != 2 || ice.OptimizedDeadKm != 20 {
		t.Fatalf("unexpected error detail %+v", ice)
	}
}

func TestOptimizedInsightsNeverNegative(t *testing.T) {
	km := [][]float64{
		{3, 8, 2, 9},
		{7, 1, 6, 4},
		{2, 5, 9, 3},
		{6, 4, 1, 8},
	}
	m := matrixOf(km)
	drivers, pickups := recordsN(4), recordsN(4)

	res, err := Optimize(context.Background(), OptimizeInput{
		Matrix: m, Drivers: drivers, Pickups: pickups, Constraints: domain.DefaultConstraints(),
	}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	original := domain.IdentityAssignments(4, 4)
	ins, err := AggregateInsights(m, drivers, pickups, original, res.Assignments)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ins.TotalMinimized < 0 {
		t.Fatalf("negative savings %v", ins.TotalMinimized)
	}
	if ins.TotalSwaps != domain.ChangedDrivers(original, res.Assignments) {
		t.Fatalf("swap count mismatch")
	}
	chains := DecomposeSwapChains(original, res.Assignments, nil)
	covered := 0
	for _, c := range chains {
		covered += c.Len()
	}
	if covered != ins.TotalSwaps {
		t.Fatalf("chains cover %d drivers, %d swaps", covered, ins.TotalSwaps)
	}
	if ins.TotalMinimized != ins.OriginalDeadKm-ins.TotalDeadKm {
		t.Fatalf("savings mismatch %+v", ins)
	}
}

func TestAggregateInsightsCountsDriversLeftUnassigned(t *testing.T) {
	m := matrixOf([][]float64{
		{5, 1},
		{1, 5},
		{1, 5},
	})
	drivers, pickups := recordsN(3), recordsN(2)
	original := domain.IdentityAssignments(3, 2)
	optimized := assignments(1, domain.Unassigned, 0)

	ins, err := AggregateInsights(m, drivers, pickups, original, optimized)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ins.TotalSwaps != 3 || ins.IntraInstitute != 2 || ins.InterInstitute != 0 || ins.ToUnassigned != 1 {
		t.Fatalf("unexpected swap counts %+v", ins)
	}
	if ins.InterInstitute+ins.IntraInstitute+ins.ToUnassigned != ins.TotalSwaps {
		t.Fatalf("swap breakdown does not add up: %+v", ins)
	}
	if ins.TotalMinimized != 8 {
		t.Fatalf("expected 8 km saved, got %v", ins.TotalMinimized)
	}
}
