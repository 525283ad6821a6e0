package distance

import (
	"context"
	"deadkm-service/internal/domain"
	"deadkm-service/internal/ports"
	"errors"
	"sync/atomic"
)

type MockPair struct {
	From, To domain.Coordinates
	Meters   int
	Seconds  int
}

// MockDistanceProvider serves fixed pairs keyed by rounded coordinates.
// Pairs that are not registered fail with *domain.GeoLookupError.
type MockDistanceProvider struct {
	m     map[string]ports.DistanceResult
	calls atomic.Int64
}

func NewMockDistanceProvider(pairs []MockPair) *MockDistanceProvider {
	m := make(map[string]ports.DistanceResult, len(pairs))
	for _, p := range pairs {
		m[p.From.Key()+"|"+p.To.Key()] = ports.DistanceResult{DistanceMeters: p.Meters, DurationSeconds: p.Seconds}
	}
	return &MockDistanceProvider{m: m}
}

func (p *MockDistanceProvider) GetDistance(ctx context.Context, origin, destination domain.Coordinates) (ports.DistanceResult, error) {
	p.calls.Add(1)
	if err := ctx.Err(); err != nil {
		return ports.DistanceResult{}, err
	}

	r, ok := p.m[origin.Key()+"|"+destination.Key()]
	if !ok {
		return ports.DistanceResult{}, &domain.GeoLookupError{From: origin, To: destination, Err: errors.New("missing pair")}
	}

	return r, nil
}

// Calls reports how many GetDistance calls were made.
func (p *MockDistanceProvider) Calls() int {
	return int(p.calls.Load())
}
