package ports

import (
	"context"
	"deadkm-service/internal/domain"
)

// Optional extension of GeoDistanceProvider that supports batched lookups.
type DistanceTableProvider interface {
	GeoDistanceProvider
	// Return distances from one origin to many destinations, aligned with
	// destinations. A nil entry means that destination was unreachable.
	GetDistances(ctx context.Context, origin domain.Coordinates, destinations []domain.Coordinates) ([]*DistanceResult, error)
}
