package cache

import (
	"context"
	"database/sql"
	"deadkm-service/internal/platform/obs"
	"deadkm-service/internal/ports"
	"errors"
	"fmt"
	"strings"
)

// SQLite backed cache for origin->destination distance results.
// Keys are expected to be consistent (domain.Coordinates.Key)
// by the caller.
type SqliteDistanceCache struct {
	DB *sql.DB
}

func NewSqliteDistanceCache(db *sql.DB) *SqliteDistanceCache {
	return &SqliteDistanceCache{DB: db}
}

// Fetch cached distances for one origin and multiple destinations.
func (s *SqliteDistanceCache) GetMany(
	ctx context.Context,
	origin string,
	destinations []string,
) (_ map[string]ports.DistanceResult, err error) {
	defer obs.Time(ctx, "distance.cache.GetMany")(&err)

	if s.DB == nil {
		return nil, errors.New("distance cache: db is nil")
	}

	if origin == "" {
		return nil, errors.New("get distance cache: origin must not be empty")
	}

	uniq := uniqueKeys(destinations)
	if len(uniq) == 0 {
		return map[string]ports.DistanceResult{}, nil
	}

	ph := make([]string, len(uniq))
	args := make([]any, 0, 1+len(uniq))
	args = append(args, origin)
	for i, d := range uniq {
		ph[i] = "?"
		args = append(args, d)
	}

	// SQLite does not support binding slices directly in an IN (...) clause.
	// Only the placeholder structure is interpolated; all values remain parameterized.
	q := fmt.Sprintf(`
	SELECT
        destination,
        distance_meters,
        duration_seconds
    FROM distance_cache
    WHERE origin = ?
        AND destination IN (%s);
	`, strings.Join(ph, ","))

	rows, err := s.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("get distance cache: query distance_cache table: %w", err)
	}
	defer rows.Close()

	return scanDistanceRows(rows, len(uniq))
}

// Store many cached distance results for a single origin.
func (s *SqliteDistanceCache) PutMany(ctx context.Context, origin string, results map[string]ports.DistanceResult) error {
	return putMany(ctx, s.DB, origin, results, `
	INSERT OR REPLACE INTO distance_cache (
        origin,
        destination,
        distance_meters,
        duration_seconds
    )
    VALUES (?, ?, ?, ?)
	`)
}
