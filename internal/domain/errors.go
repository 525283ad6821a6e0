package domain

import (
	"errors"
	"fmt"
	"strings"
)

// InvalidCoordinateError reports malformed input geometry.
type InvalidCoordinateError struct {
	Field  string
	Lat    float64
	Lon    float64
	Reason string
}

func (e *InvalidCoordinateError) Error() string {
	return fmt.Sprintf("invalid coordinate for %s (%v, %v): %s", e.Field, e.Lat, e.Lon, e.Reason)
}

// GeoLookupError reports a failed or timed out distance lookup.
type GeoLookupError struct {
	From Coordinates
	To   Coordinates
	Err  error
}

func (e *GeoLookupError) Error() string {
	return fmt.Sprintf(
		"geo lookup (%.5f,%.5f) -> (%.5f,%.5f): %v",
		e.From.Lat, e.From.Lon, e.To.Lat, e.To.Lon, e.Err,
	)
}

func (e *GeoLookupError) Unwrap() error { return e.Err }

// InfeasibleAssignmentError means no bijection respects the constraints.
type InfeasibleAssignmentError struct {
	Reason  string
	Drivers []string
}

func (e *InfeasibleAssignmentError) Error() string {
	if len(e.Drivers) == 0 {
		return "infeasible assignment: " + e.Reason
	}
	return fmt.Sprintf("infeasible assignment: %s: %s", e.Reason, strings.Join(e.Drivers, ", "))
}

// InternalConsistencyError means an optimized assignment is worse than the
// original one it was computed from.
type InternalConsistencyError struct {
	OriginalDeadKm  float64
	OptimizedDeadKm float64
}

func (e *InternalConsistencyError) Error() string {
	return fmt.Sprintf(
		"internal consistency: optimized dead km %.6f exceeds original %.6f by %.6g",
		e.OptimizedDeadKm, e.OriginalDeadKm, e.OptimizedDeadKm-e.OriginalDeadKm,
	)
}

// TaskNotFoundError is returned for unknown or evicted task IDs.
type TaskNotFoundError struct {
	TaskID string
}

func (e *TaskNotFoundError) Error() string { return fmt.Sprintf("task %q not found", e.TaskID) }

var (
	ErrTaskExists   = errors.New("task already exists")
	ErrTaskTerminal = errors.New("task already finished")
)

// IsTaskNotFound reports whether err wraps a *TaskNotFoundError.
func IsTaskNotFound(err error) bool {
	var nf *TaskNotFoundError
	return errors.As(err, &nf)
}
