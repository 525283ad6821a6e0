package ports

import "context"

// Persistent origin->destination distance cache. Keys are
// domain.Coordinates.Key() strings.
type DistanceCache interface {
	GetMany(ctx context.Context, origin string, destinations []string) (map[string]DistanceResult, error)
	PutMany(ctx context.Context, origin string, results map[string]DistanceResult) error
}
