package services

import (
	"context"
	"deadkm-service/internal/adapters/distance"
	"deadkm-service/internal/domain"
	"errors"
	"math"
	"testing"
)

func pt(name string, lat, lon float64) domain.Point {
	return domain.Point{Name: name, Coords: domain.Coordinates{Lat: lat, Lon: lon}}
}

func TestMatrixBuilderDedupesAndMarksFailures(t *testing.T) {
	home := domain.Coordinates{Lat: 1, Lon: 1}
	depot := domain.Coordinates{Lat: 2, Lon: 2}
	stopA := domain.Coordinates{Lat: 3, Lon: 3}
	stopB := domain.Coordinates{Lat: 4, Lon: 4}

	provider := distance.NewMockDistanceProvider([]distance.MockPair{
		{From: home, To: stopA, Meters: 1500, Seconds: 120},
		{From: home, To: stopB, Meters: 2500, Seconds: 240},
		{From: depot, To: stopA, Meters: 500, Seconds: 60},
		// depot -> stopB is missing and must end up unreachable.
	})

	drivers := []domain.DriverPoint{pt("h1", 1, 1), pt("d", 2, 2), pt("h2", 1.000001, 1)}
	pickups := []domain.PickupPoint{pt("a", 3, 3), pt("b", 4, 4)}

	var last int
	b := NewMatrixBuilder(provider, 2)
	m, stats, err := b.Build(context.Background(), drivers, pickups, func(p int) {
		if p < last {
			t.Errorf("progress regressed from %d to %d", last, p)
		}
		last = p
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if provider.Calls() != 4 {
		t.Fatalf("expected 4 unique lookups, got %d", provider.Calls())
	}
	if stats.Cells != 6 || stats.Lookups != 4 || stats.Failed != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if last != 100 {
		t.Fatalf("expected final progress 100, got %d", last)
	}

	if c := m.At(0, 0); !c.Reachable || c.DistanceKm != 1.5 || c.DurationMinutes != 2 {
		t.Fatalf("unexpected cell (0,0) %+v", c)
	}
	if c := m.At(2, 1); c != m.At(0, 1) {
		t.Fatalf("repeated driver point should reuse its row: %+v vs %+v", c, m.At(0, 1))
	}
	if c := m.At(1, 1); c.Reachable || !math.IsInf(c.DistanceKm, 1) {
		t.Fatalf("expected unreachable sentinel, got %+v", c)
	}
}

func TestMatrixBuilderUsesTableProvider(t *testing.T) {
	b := NewMatrixBuilder(distance.NewHaversineProvider(30), 4)
	m, stats, err := b.Build(context.Background(),
		[]domain.DriverPoint{pt("a", 0, 0), pt("b", 0, 1)},
		[]domain.PickupPoint{pt("x", 0, 0.1), pt("y", 0, 0.9)},
		nil,
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.Failed != 0 || m.Rows() != 2 || m.Cols() != 2 {
		t.Fatalf("unexpected matrix %dx%d stats %+v", m.Rows(), m.Cols(), stats)
	}
	if m.At(0, 0).DistanceKm >= m.At(0, 1).DistanceKm {
		t.Fatalf("expected nearer pickup to be shorter: %+v", m.Cells)
	}
}

func TestMatrixBuilderRejectsInvalidInput(t *testing.T) {
	b := NewMatrixBuilder(distance.NewHaversineProvider(30), 1)

	_, _, err := b.Build(context.Background(), nil, []domain.PickupPoint{pt("x", 0, 0)}, nil)
	if err == nil {
		t.Fatalf("expected error for empty drivers")
	}

	_, _, err = b.Build(context.Background(),
		[]domain.DriverPoint{pt("bad", 91, 0)},
		[]domain.PickupPoint{pt("x", 0, 0)},
		nil,
	)
	var coordErr *domain.InvalidCoordinateError
	if !errors.As(err, &coordErr) {
		t.Fatalf("expected InvalidCoordinateError, got %v", err)
	}

	_, _, err = b.Build(context.Background(),
		[]domain.DriverPoint{pt("x", 0, 0)},
		[]domain.PickupPoint{pt("nan", math.NaN(), 0)},
		nil,
	)
	if !errors.As(err, &coordErr) {
		t.Fatalf("expected InvalidCoordinateError for NaN, got %v", err)
	}
}

func TestMatrixBuilderAbortsOnCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	b := NewMatrixBuilder(distance.NewMockDistanceProvider(nil), 2)
	_, _, err := b.Build(ctx, []domain.DriverPoint{pt("a", 0, 0)}, []domain.PickupPoint{pt("b", 1, 1)}, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
}
