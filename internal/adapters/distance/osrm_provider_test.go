package distance

import (
	"context"
	"deadkm-service/internal/domain"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestOSRM(t *testing.T, h http.HandlerFunc) *OSRMProvider {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	p, err := NewOSRMProvider(srv.URL, OSRMOptions{Backoff: time.Millisecond, Timeout: 2 * time.Second})
	require.NoError(t, err)
	return p
}

func TestOSRMGetDistanceParsesRoute(t *testing.T) {
	var path string
	p := newTestOSRM(t, func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		w.Write([]byte(`{"code":"Ok","routes":[{"distance":1234.6,"duration":99.4}]}`))
	})

	r, err := p.GetDistance(context.Background(),
		domain.Coordinates{Lat: 12.9, Lon: 77.5},
		domain.Coordinates{Lat: 13.0, Lon: 77.6},
	)
	require.NoError(t, err)
	assert.Equal(t, 1235, r.DistanceMeters)
	assert.Equal(t, 99, r.DurationSeconds)
	assert.Equal(t, "/route/v1/driving/77.500000,12.900000;77.600000,13.000000", path)
}

func TestOSRMGetDistanceSamePointIsZero(t *testing.T) {
	p := newTestOSRM(t, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request %s", r.URL)
	})

	c := domain.Coordinates{Lat: 1, Lon: 1}
	r, err := p.GetDistance(context.Background(), c, c)
	require.NoError(t, err)
	assert.Zero(t, r.DistanceMeters)
}

func TestOSRMRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	p := newTestOSRM(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"code":"Ok","routes":[{"distance":10,"duration":1}]}`))
	})

	r, err := p.GetDistance(context.Background(), domain.Coordinates{Lat: 1}, domain.Coordinates{Lat: 2})
	require.NoError(t, err)
	assert.Equal(t, 10, r.DistanceMeters)
	assert.EqualValues(t, 3, calls.Load())
}

func TestOSRMDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	p := newTestOSRM(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad coordinates", http.StatusBadRequest)
	})

	_, err := p.GetDistance(context.Background(), domain.Coordinates{Lat: 1}, domain.Coordinates{Lat: 2})
	require.Error(t, err)

	var geoErr *domain.GeoLookupError
	require.True(t, errors.As(err, &geoErr))
	var he *httpStatusError
	require.True(t, errors.As(err, &he))
	assert.Equal(t, http.StatusBadRequest, he.Code)
	assert.EqualValues(t, 1, calls.Load())
}

func TestOSRMNoRouteIsLookupError(t *testing.T) {
	p := newTestOSRM(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":"NoRoute","routes":[]}`))
	})

	_, err := p.GetDistance(context.Background(), domain.Coordinates{Lat: 1}, domain.Coordinates{Lat: 2})
	var geoErr *domain.GeoLookupError
	assert.True(t, errors.As(err, &geoErr))
}

func TestOSRMGetDistancesNullIsUnreachable(t *testing.T) {
	var query string
	p := newTestOSRM(t, func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.RawQuery
		assert.True(t, strings.HasPrefix(r.URL.Path, "/table/v1/driving/"))
		w.Write([]byte(`{"code":"Ok","distances":[[100.2,null]],"durations":[[10,null]]}`))
	})

	rows, err := p.GetDistances(context.Background(),
		domain.Coordinates{Lat: 0, Lon: 0},
		[]domain.Coordinates{{Lat: 0, Lon: 0.001}, {Lat: 50, Lon: 50}},
	)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.NotNil(t, rows[0])
	assert.Equal(t, 100, rows[0].DistanceMeters)
	assert.Nil(t, rows[1])
	assert.Contains(t, query, "sources=0")
	assert.Contains(t, query, "destinations=1;2")
}

func TestOSRMGetDistancesChunksLargeRows(t *testing.T) {
	var calls atomic.Int32
	p := newTestOSRM(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		// Semicolons are not valid query separators for url.ParseQuery.
		_, dests, _ := strings.Cut(r.URL.RawQuery, "destinations=")
		dests, _, _ = strings.Cut(dests, "&")
		n := len(strings.Split(dests, ";"))
		dist := strings.TrimSuffix(strings.Repeat("5,", n), ",")
		w.Write([]byte(`{"code":"Ok","distances":[[` + dist + `]],"durations":[[` + dist + `]]}`))
	})

	dests := make([]domain.Coordinates, 150)
	for i := range dests {
		dests[i] = domain.Coordinates{Lat: float64(i) / 1000, Lon: 1}
	}

	rows, err := p.GetDistances(context.Background(), domain.Coordinates{}, dests)
	require.NoError(t, err)
	require.Len(t, rows, 150)
	for _, r := range rows {
		require.NotNil(t, r)
		assert.Equal(t, 5, r.DistanceMeters)
	}
	assert.EqualValues(t, 2, calls.Load())
}

func TestOSRMRespectsContextCancellation(t *testing.T) {
	p := newTestOSRM(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.GetDistance(ctx, domain.Coordinates{Lat: 1}, domain.Coordinates{Lat: 2})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewOSRMProviderRejectsEmptyURL(t *testing.T) {
	_, err := NewOSRMProvider("  ", OSRMOptions{})
	assert.Error(t, err)
}
