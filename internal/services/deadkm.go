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
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const defaultTaskTimeout = 10 * time.Minute

// DeadKMService runs matrix generation, optimization and per-route
// calculation as tracked tasks. Each call owns its data; only the progress
// store is shared between calls.
type DeadKMService struct {
	Provider    ports.GeoDistanceProvider
	Builder     *MatrixBuilder
	Tracker     *ProgressTracker
	Optimizer   Optimizer
	Constraints domain.Constraints
	Timeout     time.Duration
	Workers     int
}

func NewDeadKMService(
	provider ports.GeoDistanceProvider,
	tracker *ProgressTracker,
	constraints domain.Constraints,
	timeout time.Duration,
	workers int,
) *DeadKMService {
	if timeout <= 0 {
		timeout = defaultTaskTimeout
	}
	if workers <= 0 {
		workers = defaultMatrixWorkers
	}
	return &DeadKMService{
		Provider:    provider,
		Builder:     NewMatrixBuilder(provider, workers),
		Tracker:     tracker,
		Optimizer:   Optimize,
		Constraints: constraints,
		Timeout:     timeout,
		Workers:     workers,
	}
}

// run creates the task record and executes fn detached from the caller's
// cancellation but bounded by the task timeout. The task ends DONE or FAILED.
func (s *DeadKMService) run(
	ctx context.Context,
	taskID string,
	done string,
	fn func(ctx context.Context, taskID string) error,
) (string, error) {
	taskID = strings.TrimSpace(taskID)
	if taskID == "" {
		taskID = uuid.NewString()
	}

	if _, err := s.Tracker.Create(ctx, taskID); err != nil {
		return taskID, err
	}

	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.Timeout)
	defer cancel()
	wctx = obs.WithTaskID(wctx, taskID)

	err := fn(wctx, taskID)
	if err != nil && errors.Is(wctx.Err(), context.DeadlineExceeded) {
		err = fmt.Errorf("task timed out after %s: %w", s.Timeout, err)
	}

	// Record the outcome even if the work context has expired.
	fctx := context.WithoutCancel(ctx)
	if err != nil {
		if _, ferr := s.Tracker.Fail(fctx, taskID, err); ferr != nil {
			log.Printf("progress fail task_id=%s err=%v", taskID, ferr)
		}
		return taskID, err
	}
	if _, ferr := s.Tracker.Complete(fctx, taskID, done); ferr != nil {
		log.Printf("progress complete task_id=%s err=%v", taskID, ferr)
	}
	return taskID, nil
}

// progressRange maps 0-100 of a phase into [from, to] of the task.
func (s *DeadKMService) progressRange(ctx context.Context, taskID string, from, to int, message string) func(int) {
	return func(pct int) {
		overall := from + (to-from)*pct/100
		if _, err := s.Tracker.Update(ctx, taskID, overall, fmt.Sprintf("%s (%d%%)", message, pct)); err != nil {
			log.Printf("progress update task_id=%s err=%v", taskID, err)
		}
	}
}

type MatrixOutcome struct {
	TaskID string
	Matrix *domain.DistanceMatrix
	Stats  BuildStats
}

func validateRecords(role string, records []domain.VehicleRecord) error {
	if len(records) == 0 {
		return fmt.Errorf("%s data must not be empty", role)
	}
	for _, r := range records {
		if err := r.Validate(); err != nil {
			return err
		}
	}
	if err := domain.ValidateRoster(records); err != nil {
		return fmt.Errorf("%s data: %w", role, err)
	}
	return nil
}

func (s *DeadKMService) buildMatrix(
	ctx context.Context,
	drivers, pickups []domain.VehicleRecord,
	progress func(int),
) (*domain.DistanceMatrix, BuildStats, error) {
	m, stats, err := s.Builder.Build(ctx, domain.DriverPoints(drivers), domain.PickupPoints(pickups), progress)
	if err != nil {
		return nil, stats, err
	}
	m.DriverIDs = domain.VehicleNumbers(drivers)
	m.PickupIDs = domain.VehicleNumbers(pickups)
	return m, stats, nil
}

// GenerateMatrix builds the driver x pickup matrix as a tracked task.
func (s *DeadKMService) GenerateMatrix(
	ctx context.Context,
	taskID string,
	drivers, pickups []domain.VehicleRecord,
) (*MatrixOutcome, error) {
	out := &MatrixOutcome{}
	id, err := s.run(ctx, taskID, "Matrix complete.", func(ctx context.Context, taskID string) error {
		if err := validateRecords("driver", drivers); err != nil {
			return err
		}
		if err := validateRecords("pickup", pickups); err != nil {
			return err
		}

		m, stats, err := s.buildMatrix(ctx, drivers, pickups, s.progressRange(ctx, taskID, 1, 99, "Building matrix..."))
		if err != nil {
			return err
		}
		out.Matrix, out.Stats = m, stats
		log.Printf("matrix built task_id=%s cells=%d lookups=%d failed=%d", taskID, stats.Cells, stats.Lookups, stats.Failed)
		return nil
	})
	out.TaskID = id
	return out, err
}

type OptimizeRequest struct {
	TaskID  string
	Drivers []domain.VehicleRecord
	Pickups []domain.VehicleRecord
	// Matrix is generated first when nil.
	Matrix *domain.DistanceMatrix
	// Constraints overrides the service defaults when set.
	Constraints *domain.Constraints
}

type OptimizeOutcome struct {
	TaskID            string
	Drivers           []domain.VehicleRecord
	Pickups           []domain.VehicleRecord
	Matrix            *domain.DistanceMatrix
	Original          []domain.Assignment
	Assignments       []domain.Assignment
	ObjectiveKm       float64
	Insights          domain.Insights
	Chains            []domain.SwapChain
	UnassignedDrivers []string
	UnassignedPickups []string
}

// Optimize reassigns pickups to drivers to minimise dead kilometres.
func (s *DeadKMService) Optimize(ctx context.Context, req OptimizeRequest) (*OptimizeOutcome, error) {
	out := &OptimizeOutcome{Drivers: req.Drivers, Pickups: req.Pickups}

	constraints := s.Constraints
	if req.Constraints != nil {
		constraints = *req.Constraints
	}

	id, err := s.run(ctx, req.TaskID, "Optimization complete.", func(ctx context.Context, taskID string) error {
		if err := validateRecords("driver", req.Drivers); err != nil {
			return err
		}
		if err := validateRecords("pickup", req.Pickups); err != nil {
			return err
		}

		solveFrom := 1
		m := req.Matrix
		if m == nil {
			built, stats, err := s.buildMatrix(ctx, req.Drivers, req.Pickups, s.progressRange(ctx, taskID, 1, 60, "Building matrix..."))
			if err != nil {
				return err
			}
			log.Printf("matrix built task_id=%s cells=%d failed=%d", taskID, stats.Cells, stats.Failed)
			m = built
			solveFrom = 60
		} else {
			if err := m.CheckShape(len(req.Drivers), len(req.Pickups)); err != nil {
				return err
			}
			if err := m.CheckLabels(domain.VehicleNumbers(req.Drivers), domain.VehicleNumbers(req.Pickups)); err != nil {
				return err
			}
		}
		// Solve, report and check savings on the same metre-resolution values.
		m = m.QuantizedToMetres()
		out.Matrix = m

		in := OptimizeInput{
			Matrix:      m,
			Drivers:     req.Drivers,
			Pickups:     req.Pickups,
			Constraints: constraints,
		}
		res, err := s.Optimizer(ctx, in, s.progressRange(ctx, taskID, solveFrom, 99, "Optimizing..."))
		if err != nil {
			return err
		}

		original := domain.IdentityAssignments(len(req.Drivers), len(req.Pickups))
		checkSavings := !constraints.EnforceOnOriginal || originalPermitted(constraints, req.Drivers, req.Pickups, original)
		ins, err := aggregateInsights(m, req.Drivers, req.Pickups, original, res.Assignments, checkSavings)
		if err != nil {
			return err
		}

		out.Original = original
		out.Assignments = res.Assignments
		out.ObjectiveKm = res.ObjectiveKm
		out.Insights = ins
		out.Chains = DecomposeSwapChains(original, res.Assignments, domain.VehicleNumbers(req.Drivers))

		for _, a := range res.Assignments {
			if !a.IsAssigned() {
				out.UnassignedDrivers = append(out.UnassignedDrivers, req.Drivers[a.Driver].VehicleNumber)
			}
		}
		for _, j := range res.UnassignedPickups {
			out.UnassignedPickups = append(out.UnassignedPickups, req.Pickups[j].VehicleNumber)
		}

		log.Printf(
			"optimized task_id=%s routes=%d swaps=%d chains=%d saved_km=%.2f",
			taskID, ins.TotalRoutes, ins.TotalSwaps, len(out.Chains), ins.TotalMinimized,
		)
		return nil
	})
	out.TaskID = id
	metrics.OptimizationRuns.WithLabelValues(runOutcome(err)).Inc()
	return out, err
}

func runOutcome(err error) string {
	var infeasible *domain.InfeasibleAssignmentError
	var inconsistent *domain.InternalConsistencyError
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &infeasible):
		return "infeasible"
	case errors.As(err, &inconsistent):
		return "inconsistent"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "error"
	}
}

// RouteCalculation is the priced current route of one vehicle.
type RouteCalculation struct {
	Record          domain.VehicleRecord
	DistanceKm      float64
	DurationMinutes float64
	OK              bool
	Error           string
}

type CalculateOutcome struct {
	TaskID     string
	Results    []RouteCalculation
	Total      int
	Successful int
	Failed     int
}

// Calculate prices every vehicle's current driver point -> first pickup leg.
// Invalid rows and failed lookups are recorded per row and never abort the
// batch.
func (s *DeadKMService) Calculate(ctx context.Context, taskID string, records []domain.VehicleRecord) (*CalculateOutcome, error) {
	out := &CalculateOutcome{}
	id, err := s.run(ctx, taskID, "Calculation complete.", func(ctx context.Context, taskID string) error {
		if len(records) == 0 {
			return errors.New("data must not be empty")
		}
		if s.Provider == nil {
			return errors.New("calculate: provider is nil")
		}

		results := make([]RouteCalculation, len(records))
		progress := s.progressRange(ctx, taskID, 1, 99, "Calculating distances...")

		var (
			mu   sync.Mutex
			done int
		)
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(s.Workers)

		for i, rec := range records {
			g.Go(func() error {
				results[i] = RouteCalculation{Record: rec}
				if err := rec.Validate(); err != nil {
					results[i].Error = err.Error()
				} else {
					r, err := s.Provider.GetDistance(gctx, rec.Driver.Coords, rec.Pickup.Coords)
					if err != nil {
						if gctx.Err() != nil {
							return err
						}
						results[i].Error = err.Error()
					} else {
						results[i].OK = true
						results[i].DistanceKm = math.Round(float64(r.DistanceMeters)/10) / 100
						results[i].DurationMinutes = math.Round(float64(r.DurationSeconds)/6) / 10
					}
				}

				mu.Lock()
				done++
				progress(done * 100 / len(records))
				mu.Unlock()
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return fmt.Errorf("calculate: %w", err)
		}

		out.Results = results
		out.Total = len(results)
		for _, r := range results {
			if r.OK {
				out.Successful++
			} else {
				out.Failed++
			}
		}
		return nil
	})
	out.TaskID = id
	return out, err
}

// Progress returns the current state of a task.
func (s *DeadKMService) Progress(ctx context.Context, taskID string) (domain.Progress, error) {
	return s.Tracker.Get(ctx, taskID)
}
