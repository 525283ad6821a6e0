package ports

import (
	"context"
	"deadkm-service/internal/domain"
)

// Distance and travel duration between two locations.
type DistanceResult struct {
	DistanceMeters  int
	DurationSeconds int
}

// Contract for retrieving travel distance and duration between coordinates.
// Implementations return *domain.GeoLookupError when a pair cannot be priced.
type GeoDistanceProvider interface {
	// Return travel distance and estimated duration from origin to destination.
	GetDistance(ctx context.Context, origin, destination domain.Coordinates) (DistanceResult, error)
}
