package distance

import (
	"context"
	"deadkm-service/internal/domain"
	"deadkm-service/internal/platform/metrics"
	"deadkm-service/internal/platform/obs"
	"deadkm-service/internal/ports"
	"errors"
	"fmt"
	"log"
)

// CachedProvider decorates a distance provider with a persistent
// origin->destination cache. Unreachable pairs are never cached.
type CachedProvider struct {
	inner ports.GeoDistanceProvider
	cache ports.DistanceCache
}

func NewCachedProvider(inner ports.GeoDistanceProvider, cache ports.DistanceCache) (*CachedProvider, error) {
	if inner == nil {
		return nil, errors.New("cached provider: inner provider is nil")
	}
	return &CachedProvider{inner: inner, cache: cache}, nil
}

// Delegate to batched path to reuse caching logic.
func (c *CachedProvider) GetDistance(
	ctx context.Context,
	origin domain.Coordinates,
	destination domain.Coordinates,
) (ports.DistanceResult, error) {
	results, err := c.GetDistances(ctx, origin, []domain.Coordinates{destination})
	if err != nil {
		return ports.DistanceResult{}, err
	}
	if results[0] == nil {
		return ports.DistanceResult{}, &domain.GeoLookupError{From: origin, To: destination, Err: errors.New("no route")}
	}
	return *results[0], nil
}

// Compute distances from a single origin to many destinations, serving what
// it can from cache and fetching only the misses.
func (c *CachedProvider) GetDistances(
	ctx context.Context,
	origin domain.Coordinates,
	destinations []domain.Coordinates,
) (_ []*ports.DistanceResult, err error) {
	defer obs.Time(ctx, "distance.cached.GetDistances")(&err)

	out := make([]*ports.DistanceResult, len(destinations))
	if len(destinations) == 0 {
		return out, nil
	}

	originKey := origin.Key()
	keys := make([]string, len(destinations))
	for i, d := range destinations {
		keys[i] = d.Key()
	}

	hits := map[string]ports.DistanceResult{}
	// Check persistent distance cache before issuing provider calls.
	if c.cache != nil {
		hits, err = c.cache.GetMany(ctx, originKey, keys)
		if err != nil {
			log.Printf("distance cache read failed origin=%s err=%v", originKey, err)
			hits = map[string]ports.DistanceResult{}
		}
	}

	seen := make(map[string]struct{}, len(keys))
	missKeys := make([]string, 0, len(keys))
	missCoords := make([]domain.Coordinates, 0, len(keys))
	for i, k := range keys {
		if r, ok := hits[k]; ok {
			r := r
			out[i] = &r
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		missKeys = append(missKeys, k)
		missCoords = append(missCoords, destinations[i])
	}

	metrics.GeoLookups.WithLabelValues("cache", "hit").Add(float64(len(keys) - len(missKeys)))
	if len(missKeys) == 0 {
		return out, nil
	}

	fetched, err := c.fetch(ctx, origin, missCoords)
	if err != nil {
		metrics.GeoLookups.WithLabelValues("provider", "error").Add(float64(len(missKeys)))
		return nil, err
	}

	fresh := make(map[string]ports.DistanceResult, len(missKeys))
	byKey := make(map[string]*ports.DistanceResult, len(missKeys))
	for i, k := range missKeys {
		byKey[k] = fetched[i]
		if fetched[i] != nil {
			fresh[k] = *fetched[i]
			metrics.GeoLookups.WithLabelValues("provider", "ok").Inc()
		} else {
			metrics.GeoLookups.WithLabelValues("provider", "unreachable").Inc()
		}
	}

	for i, k := range keys {
		if out[i] == nil {
			if r := byKey[k]; r != nil {
				v := *r
				out[i] = &v
			}
		}
	}

	if c.cache != nil && len(fresh) > 0 {
		if err := c.cache.PutMany(ctx, originKey, fresh); err != nil {
			log.Printf("distance cache write failed origin=%s err=%v", originKey, err)
		}
	}

	return out, nil
}

func (c *CachedProvider) fetch(
	ctx context.Context,
	origin domain.Coordinates,
	destinations []domain.Coordinates,
) ([]*ports.DistanceResult, error) {
	if table, ok := c.inner.(ports.DistanceTableProvider); ok {
		rows, err := table.GetDistances(ctx, origin, destinations)
		if err != nil {
			return nil, fmt.Errorf("fetching table row: %w", err)
		}
		return rows, nil
	}

	out := make([]*ports.DistanceResult, len(destinations))
	for i, d := range destinations {
		r, err := c.inner.GetDistance(ctx, origin, d)
		if err != nil {
			var geoErr *domain.GeoLookupError
			if errors.As(err, &geoErr) {
				continue
			}
			return nil, err
		}
		out[i] = &r
	}
	return out, nil
}
