package services

import (
	"context"
	"deadkm-service/internal/domain"
	"errors"
	"reflect"
	"testing"
)

func optimizeKm(t *testing.T, km [][]float64, c domain.Constraints) (*OptimizeResult, error) {
	t.Helper()
	m := matrixOf(km)
	return Optimize(context.Background(), OptimizeInput{
		Matrix:      m,
		Drivers:     recordsN(m.Rows()),
		Pickups:     recordsN(m.Cols()),
		Constraints: c,
	}, nil)
}

func TestOptimizeReturnsBijection(t *testing.T) {
	km := [][]float64{
		{7, 3, 9, 4},
		{2, 8, 6, 1},
		{5, 5, 2, 7},
		{1, 6, 8, 3},
	}
	res, err := optimizeKm(t, km, domain.DefaultConstraints())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	seen := map[int]bool{}
	for i, a := range res.Assignments {
		if a.Driver != i {
			t.Fatalf("assignment %d has driver %d", i, a.Driver)
		}
		if seen[a.Pickup] {
			t.Fatalf("pickup %d assigned twice", a.Pickup)
		}
		seen[a.Pickup] = true
	}
	if len(seen) != 4 {
		t.Fatalf("expected 4 distinct pickups, got %d", len(seen))
	}
	// 3 + 1 + 2 + 1
	if res.ObjectiveKm != 7 {
		t.Fatalf("expected objective 7, got %v", res.ObjectiveKm)
	}
}

func TestOptimizePrefersOriginalOnTies(t *testing.T) {
	km := [][]float64{
		{1, 1, 5},
		{1, 1, 5},
		{5, 5, 1},
	}
	res, err := optimizeKm(t, km, domain.DefaultConstraints())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := pickupsOf(res.Assignments); !reflect.DeepEqual(got, []int{0, 1, 2}) {
		t.Fatalf("expected identity, got %v", got)
	}
}

func TestOptimizeTieBreakIsFewestChangesAndDeterministic(t *testing.T) {
	km := [][]float64{
		{5, 1, 1},
		{1, 5, 5},
		{1, 5, 5},
	}
	first, err := optimizeKm(t, km, domain.DefaultConstraints())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.ObjectiveKm != 7 {
		t.Fatalf("expected objective 7, got %v", first.ObjectiveKm)
	}

	identity := domain.IdentityAssignments(3, 3)
	// Two-driver swaps and three-cycles both reach 7; only swaps are minimal.
	if changed := domain.ChangedDrivers(identity, first.Assignments); changed != 2 {
		t.Fatalf("expected 2 changed drivers, got %d (%v)", changed, pickupsOf(first.Assignments))
	}

	for i := 0; i < 5; i++ {
		again, err := optimizeKm(t, km, domain.DefaultConstraints())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !reflect.DeepEqual(pickupsOf(again.Assignments), pickupsOf(first.Assignments)) {
			t.Fatalf("non-deterministic result: %v vs %v", pickupsOf(again.Assignments), pickupsOf(first.Assignments))
		}
	}
}

func TestOptimizeIntraInstituteOnly(t *testing.T) {
	km := [][]float64{
		{5, 4, 1},
		{4, 5, 9},
		{1, 9, 5},
	}
	m := matrixOf(km)
	drivers := recordsN(3)
	drivers[2].Institute = "South"
	pickups := recordsN(3)
	pickups[2].Institute = "South"

	in := OptimizeInput{Matrix: m, Drivers: drivers, Pickups: pickups, Constraints: domain.DefaultConstraints()}

	res, err := Optimize(context.Background(), in, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := pickupsOf(res.Assignments); !reflect.DeepEqual(got, []int{2, 1, 0}) {
		t.Fatalf("expected cross-institute swap [2 1 0], got %v", got)
	}

	in.Constraints.AllowInterInstitute = false
	res, err = Optimize(context.Background(), in, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := pickupsOf(res.Assignments); !reflect.DeepEqual(got, []int{1, 0, 2}) {
		t.Fatalf("expected intra-institute swap [1 0 2], got %v", got)
	}
}

func TestOptimizeExperienceLadder(t *testing.T) {
	km := [][]float64{
		{9, 1},
		{1, 9},
	}
	m := matrixOf(km)
	drivers := recordsN(2)
	drivers[0].LicensedExperience = 2
	pickups := recordsN(2)
	pickups[1].Category = "A+"

	res, err := Optimize(context.Background(), OptimizeInput{
		Matrix: m, Drivers: drivers, Pickups: pickups, Constraints: domain.DefaultConstraints(),
	}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := pickupsOf(res.Assignments); !reflect.DeepEqual(got, []int{0, 1}) {
		t.Fatalf("junior driver must not take A+ route, got %v", got)
	}
}

func TestOptimizeUnequalCountsInfeasibleByDefault(t *testing.T) {
	_, err := optimizeKm(t, [][]float64{{1, 2, 3}, {4, 5, 6}}, domain.DefaultConstraints())
	var infeasible *domain.InfeasibleAssignmentError
	if !errors.As(err, &infeasible) {
		t.Fatalf("expected InfeasibleAssignmentError, got %v", err)
	}
}

func TestOptimizeAllowUnassignedSurplusDrivers(t *testing.T) {
	c := domain.DefaultConstraints()
	c.AllowUnassigned = true

	res, err := optimizeKm(t, [][]float64{{9, 1}, {1, 9}, {9, 9}}, c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := pickupsOf(res.Assignments); !reflect.DeepEqual(got, []int{1, 0, domain.Unassigned}) {
		t.Fatalf("expected [1 0 -1], got %v", got)
	}
	if res.ObjectiveKm != 2 {
		t.Fatalf("expected objective 2, got %v", res.ObjectiveKm)
	}
}

func TestOptimizeAllowUnassignedSurplusPickups(t *testing.T) {
	c := domain.DefaultConstraints()
	c.AllowUnassigned = true

	res, err := optimizeKm(t, [][]float64{{5, 5, 1}, {1, 5, 5}}, c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := pickupsOf(res.Assignments); !reflect.DeepEqual(got, []int{2, 0}) {
		t.Fatalf("expected [2 0], got %v", got)
	}
	if !reflect.DeepEqual(res.UnassignedPickups, []int{1}) {
		t.Fatalf("expected pickup 1 unassigned, got %v", res.UnassignedPickups)
	}
}

func TestOptimizeRoutesAroundUnreachableOriginal(t *testing.T) {
	res, err := optimizeKm(t, [][]float64{{-1, 1}, {1, -1}}, domain.DefaultConstraints())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := pickupsOf(res.Assignments); !reflect.DeepEqual(got, []int{1, 0}) {
		t.Fatalf("expected swap, got %v", got)
	}
}

func TestOptimizeInfeasible(t *testing.T) {
	tests := []struct {
		name string
		km   [][]float64
	}{
		{"driver without pickups", [][]float64{{1, -1}, {-1, -1}}},
		{"pickup without drivers", [][]float64{{1, -1}, {1, -1}}},
		{"no perfect matching", [][]float64{{1, -1, -1}, {1, -1, -1}, {-1, 1, 1}}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := optimizeKm(t, tc.km, domain.DefaultConstraints())
			var infeasible *domain.InfeasibleAssignmentError
			if !errors.As(err, &infeasible) {
				t.Fatalf("expected InfeasibleAssignmentError, got %v", err)
			}
		})
	}
}

func TestOptimizeProgressMilestones(t *testing.T) {
	m := matrixOf([][]float64{{1, 2, 3, 4}, {2, 1, 3, 4}, {3, 2, 1, 4}, {4, 3, 2, 1}})
	var got []int
	_, err := Optimize(context.Background(), OptimizeInput{
		Matrix: m, Drivers: recordsN(4), Pickups: recordsN(4), Constraints: domain.DefaultConstraints(),
	}, func(p int) { got = append(got, p) })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(got, []int{25, 50, 75, 100}) {
		t.Fatalf("expected milestones 25/50/75/100, got %v", got)
	}
}

func TestOptimizeRejectsShapeMismatch(t *testing.T) {
	_, err := Optimize(context.Background(), OptimizeInput{
		Matrix: matrixOf([][]float64{{1, 2}}), Drivers: recordsN(2), Pickups: recordsN(2),
	}, nil)
	if err == nil {
		t.Fatalf("expected shape error")
	}
}
