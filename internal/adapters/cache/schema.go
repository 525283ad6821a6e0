package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Initialize the distance cache schema. The DDL is portable between SQLite
// and Postgres.
func InitSchema(ctx context.Context, db *sql.DB) error {
	if db == nil {
		return errors.New("init schema: DB is nil")
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("init schema: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	createDistanceCacheQuery := `
	CREATE TABLE IF NOT EXISTS distance_cache (
        origin TEXT NOT NULL,
        destination TEXT NOT NULL,
        distance_meters INTEGER NOT NULL,
        duration_seconds INTEGER NOT NULL,
        PRIMARY KEY (origin, destination)
    );
	`

	createIndexQuery := `
	CREATE INDEX IF NOT EXISTS idx_distance_cache_destination_origin
    ON distance_cache(destination, origin);
	`

	statements := []string{
		createDistanceCacheQuery,
		createIndexQuery,
	}

	for i, stmt := range statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: exec statement #%d: %w", i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("init schema: commit tx: %w", err)
	}

	return nil
}

// Purge removes every cached distance. Used after switching road networks.
func Purge(ctx context.Context, db *sql.DB) (int64, error) {
	if db == nil {
		return 0, errors.New("purge cache: DB is nil")
	}
	res, err := db.ExecContext(ctx, `DELETE FROM distance_cache`)
	if err != nil {
		return 0, fmt.Errorf("purge cache: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
