package cache

import (
	"context"
	"deadkm-service/internal/platform/db"
	"deadkm-service/internal/ports"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) *SqliteDistanceCache {
	t.Helper()
	ctx := context.Background()

	conn, err := db.OpenSqlite(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.NoError(t, InitSchema(ctx, conn))
	return NewSqliteDistanceCache(conn)
}

func TestSqliteDistanceCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t)

	err := c.PutMany(ctx, "0.00000,0.00000", map[string]ports.DistanceResult{
		"0.00000,0.10000": {DistanceMeters: 11120, DurationSeconds: 800},
		"0.00000,0.90000": {DistanceMeters: 100080, DurationSeconds: 7206},
	})
	require.NoError(t, err)

	got, err := c.GetMany(ctx, "0.00000,0.00000", []string{"0.00000,0.10000", "0.00000,0.10000", "9.00000,9.00000", " "})
	require.NoError(t, err)

	require.Len(t, got, 1)
	assert.Equal(t, ports.DistanceResult{DistanceMeters: 11120, DurationSeconds: 800}, got["0.00000,0.10000"])
}

func TestSqliteDistanceCacheUpsertReplaces(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t)

	origin := "1.00000,1.00000"
	require.NoError(t, c.PutMany(ctx, origin, map[string]ports.DistanceResult{"2.00000,2.00000": {DistanceMeters: 10}}))
	require.NoError(t, c.PutMany(ctx, origin, map[string]ports.DistanceResult{"2.00000,2.00000": {DistanceMeters: 20}}))

	got, err := c.GetMany(ctx, origin, []string{"2.00000,2.00000"})
	require.NoError(t, err)
	assert.Equal(t, 20, got["2.00000,2.00000"].DistanceMeters)

	n, err := Purge(ctx, c.DB)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestSqliteDistanceCacheRejectsEmptyOrigin(t *testing.T) {
	c := newTestCache(t)
	_, err := c.GetMany(context.Background(), "", []string{"x"})
	assert.Error(t, err)
	assert.Error(t, c.PutMany(context.Background(), "", map[string]ports.DistanceResult{"x": {}}))
}
