package distance

import (
	"context"
	"deadkm-service/internal/domain"
	"deadkm-service/internal/ports"
	"math"
)

const earthRadiusMeters = 6371008.8

// HaversineProvider prices pairs by great-circle distance and a constant
// average speed. It never fails and needs no network, so it backs offline
// runs and tests.
type HaversineProvider struct {
	SpeedKmh float64
}

func NewHaversineProvider(speedKmh float64) *HaversineProvider {
	if speedKmh <= 0 {
		speedKmh = 30
	}
	return &HaversineProvider{SpeedKmh: speedKmh}
}

// HaversineMeters returns the great-circle distance between a and b.
func HaversineMeters(a, b domain.Coordinates) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusMeters * math.Asin(math.Min(1, math.Sqrt(h)))
}

func (h *HaversineProvider) GetDistance(
	ctx context.Context,
	origin domain.Coordinates,
	destination domain.Coordinates,
) (ports.DistanceResult, error) {
	if err := ctx.Err(); err != nil {
		return ports.DistanceResult{}, err
	}
	meters := HaversineMeters(origin, destination)
	seconds := meters / (h.SpeedKmh * 1000 / 3600)
	return ports.DistanceResult{
		DistanceMeters:  int(math.Round(meters)),
		DurationSeconds: int(math.Round(seconds)),
	}, nil
}

func (h *HaversineProvider) GetDistances(
	ctx context.Context,
	origin domain.Coordinates,
	destinations []domain.Coordinates,
) ([]*ports.DistanceResult, error) {
	out := make([]*ports.DistanceResult, len(destinations))
	for i, d := range destinations {
		r, err := h.GetDistance(ctx, origin, d)
		if err != nil {
			return nil, err
		}
		out[i] = &r
	}
	return out, nil
}
