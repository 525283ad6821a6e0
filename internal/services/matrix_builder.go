package services

import (
	"context"
	"deadkm-service/internal/domain"
	"deadkm-service/internal/platform/metrics"
	"deadkm-service/internal/platform/obs"
	"deadkm-service/internal/ports"
	"errors"
	"fmt"
	"log"
	"sync"

	"golang.org/x/sync/errgroup"
)

const defaultMatrixWorkers = 8

// BuildStats summarises the lookups behind one matrix.
type BuildStats struct {
	Cells   int
	Lookups int
	Failed  int
}

// MatrixBuilder turns driver and pickup points into a dense DistanceMatrix.
// Repeated coordinates are looked up once.
type MatrixBuilder struct {
	Provider ports.GeoDistanceProvider
	Workers  int
}

func NewMatrixBuilder(provider ports.GeoDistanceProvider, workers int) *MatrixBuilder {
	if workers <= 0 {
		workers = defaultMatrixWorkers
	}
	return &MatrixBuilder{Provider: provider, Workers: workers}
}

type uniquePoints struct {
	coords []domain.Coordinates
	// index[i] is the position of input point i in coords.
	index []int
}

func dedupe(points []domain.Point) uniquePoints {
	seen := make(map[string]int, len(points))
	u := uniquePoints{index: make([]int, len(points))}
	for i, p := range points {
		k := p.Coords.Key()
		pos, ok := seen[k]
		if !ok {
			pos = len(u.coords)
			seen[k] = pos
			u.coords = append(u.coords, p.Coords.Rounded())
		}
		u.index[i] = pos
	}
	return u
}

// Build prices every driver x pickup cell. Cells whose lookup fails with a
// *domain.GeoLookupError are left unreachable; any other failure, including
// context expiry, aborts the build. progress receives 0-100 as lookups finish.
func (b *MatrixBuilder) Build(
	ctx context.Context,
	drivers []domain.DriverPoint,
	pickups []domain.PickupPoint,
	progress func(percent int),
) (_ *domain.DistanceMatrix, _ BuildStats, err error) {
	defer obs.Time(ctx, "matrix.Build")(&err)

	if b.Provider == nil {
		return nil, BuildStats{}, errors.New("build matrix: provider is nil")
	}
	if len(drivers) == 0 || len(pickups) == 0 {
		return nil, BuildStats{}, errors.New("build matrix: drivers and pickups must be non-empty")
	}

	for i, d := range drivers {
		if err := d.Coords.Validate(fmt.Sprintf("driver %d (%s)", i+1, d.Name)); err != nil {
			return nil, BuildStats{}, err
		}
	}
	for j, p := range pickups {
		if err := p.Coords.Validate(fmt.Sprintf("pickup %d (%s)", j+1, p.Name)); err != nil {
			return nil, BuildStats{}, err
		}
	}

	origins := dedupe(drivers)
	dests := dedupe(pickups)

	// table[o][d] is nil for unreachable pairs.
	table := make([][]*ports.DistanceResult, len(origins.coords))
	for o := range table {
		table[o] = make([]*ports.DistanceResult, len(dests.coords))
	}

	var (
		mu    sync.Mutex
		done  int
		total int
	)
	tick := func(n int) {
		if progress == nil {
			return
		}
		// Report under the lock so callers observe a non-decreasing sequence.
		mu.Lock()
		defer mu.Unlock()
		done += n
		progress(done * 100 / total)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.Workers)

	if tp, ok := b.Provider.(ports.DistanceTableProvider); ok {
		total = len(origins.coords)
		for o, origin := range origins.coords {
			g.Go(func() error {
				row, err := tp.GetDistances(gctx, origin, dests.coords)
				if err != nil {
					if lookupFailed(gctx, err) {
						log.Printf("matrix row unreachable origin=%s err=%v", origin.Key(), err)
						tick(1)
						return nil
					}
					return fmt.Errorf("build matrix: row %s: %w", origin.Key(), err)
				}
				if len(row) != len(dests.coords) {
					return fmt.Errorf("build matrix: row %s has %d results, want %d", origin.Key(), len(row), len(dests.coords))
				}
				copy(table[o], row)
				tick(1)
				return nil
			})
		}
	} else {
		total = len(origins.coords) * len(dests.coords)
		for o, origin := range origins.coords {
			for d, dest := range dests.coords {
				g.Go(func() error {
					r, err := b.Provider.GetDistance(gctx, origin, dest)
					if err != nil {
						if lookupFailed(gctx, err) {
							tick(1)
							return nil
						}
						return fmt.Errorf("build matrix: %s -> %s: %w", origin.Key(), dest.Key(), err)
					}
					table[o][d] = &r
					tick(1)
					return nil
				})
			}
		}
	}

	if err := g.Wait(); err != nil {
		return nil, BuildStats{}, err
	}
	// The group context is cancelled on return; surface a parent cancellation
	// that only lookups observed.
	if err := ctx.Err(); err != nil {
		return nil, BuildStats{}, fmt.Errorf("build matrix: %w", err)
	}

	m := domain.NewDistanceMatrix(pointLabels(drivers), pointLabels(pickups))
	stats := BuildStats{
		Cells:   len(drivers) * len(pickups),
		Lookups: len(origins.coords) * len(dests.coords),
	}

	for i := range drivers {
		row := table[origins.index[i]]
		for j := range pickups {
			r := row[dests.index[j]]
			if r == nil {
				stats.Failed++
				continue
			}
			m.Cells[i][j] = domain.Cell{
				DistanceKm:      float64(r.DistanceMeters) / 1000,
				DurationMinutes: float64(r.DurationSeconds) / 60,
				Reachable:       true,
			}
		}
	}

	metrics.MatrixCells.Observe(float64(stats.Cells))
	return m, stats, nil
}

// lookupFailed reports whether err is a recoverable per-pair failure rather
// than cancellation of the whole build.
func lookupFailed(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var geoErr *domain.GeoLookupError
	return errors.As(err, &geoErr)
}

func pointLabels(points []domain.Point) []string {
	out := make([]string, len(points))
	for i, p := range points {
		out[i] = p.Name
	}
	return out
}
