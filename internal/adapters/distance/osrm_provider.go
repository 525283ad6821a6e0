package distance

import (
	"context"
	"deadkm-service/internal/domain"
	"deadkm-service/internal/platform/obs"
	"deadkm-service/internal/ports"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// maxTableCoordinates is the coordinate limit of the public OSRM table service.
const maxTableCoordinates = 100

type OSRMOptions struct {
	// Per-request timeout. Defaults to 30s.
	Timeout time.Duration
	// Requests per second allowed against the server; <= 0 disables limiting.
	RequestsPerSecond float64
	// Attempts per request including the first. Defaults to 4.
	MaxAttempts int
	// Initial retry backoff, doubled per attempt. Defaults to 200ms.
	Backoff time.Duration
	// Routing profile segment of the URL. Defaults to "driving".
	Profile string
}

// OSRMProvider implements DistanceTableProvider against an OSRM server.
//
// It coordinates:
//   - The /route service for single pairs
//   - The /table service for one origin to many destinations
//   - Client-side rate limiting and retry/backoff
//
// The provider is safe for concurrent use.
type OSRMProvider struct {
	session     *http.Client
	baseURL     string
	profile     string
	userAgent   string
	limiter     *rate.Limiter
	maxAttempts int
	baseBackoff time.Duration
}

func NewOSRMProvider(baseURL string, opts OSRMOptions) (*OSRMProvider, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("OSRM base url is empty")
	}

	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 4
	}
	if opts.Backoff <= 0 {
		opts.Backoff = 200 * time.Millisecond
	}
	if opts.Profile == "" {
		opts.Profile = "driving"
	}

	var limiter *rate.Limiter
	if opts.RequestsPerSecond > 0 {
		burst := int(math.Ceil(opts.RequestsPerSecond))
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}

	return &OSRMProvider{
		session:     &http.Client{Timeout: opts.Timeout},
		baseURL:     baseURL,
		profile:     opts.Profile,
		userAgent:   "deadkm-service/1.0",
		limiter:     limiter,
		maxAttempts: opts.MaxAttempts,
		baseBackoff: opts.Backoff,
	}, nil
}

type routeResponse struct {
	Code   string `json:"code"`
	Routes []struct {
		Distance float64 `json:"distance"`
		Duration float64 `json:"duration"`
	} `json:"routes"`
}

type tableResponse struct {
	Code      string       `json:"code"`
	Distances [][]*float64 `json:"distances"`
	Durations [][]*float64 `json:"durations"`
}

func coordParam(c domain.Coordinates) string {
	return strconv.FormatFloat(c.Lon, 'f', 6, 64) + "," + strconv.FormatFloat(c.Lat, 'f', 6, 64)
}

// GetDistance prices a single pair through the /route service.
func (o *OSRMProvider) GetDistance(
	ctx context.Context,
	origin domain.Coordinates,
	destination domain.Coordinates,
) (_ ports.DistanceResult, err error) {
	defer obs.Time(ctx, "osrm.GetDistance")(&err)

	if origin.Rounded() == destination.Rounded() {
		return ports.DistanceResult{}, nil
	}

	endpoint := fmt.Sprintf(
		"%s/route/v1/%s/%s;%s?overview=false",
		o.baseURL, o.profile, coordParam(origin), coordParam(destination),
	)

	resp, err := o.doWithRetry(ctx, func() (*http.Request, error) {
		return o.newRequest(ctx, endpoint)
	})
	if err != nil {
		return ports.DistanceResult{}, &domain.GeoLookupError{From: origin, To: destination, Err: err}
	}
	defer resp.Body.Close()

	var decoded routeResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return ports.DistanceResult{}, &domain.GeoLookupError{From: origin, To: destination, Err: fmt.Errorf("decode route response: %w", err)}
	}

	if decoded.Code != "Ok" || len(decoded.Routes) == 0 {
		return ports.DistanceResult{}, &domain.GeoLookupError{From: origin, To: destination, Err: fmt.Errorf("OSRM returned code %q", decoded.Code)}
	}

	// OSRM returns float metrics; round to nearest integer for domain consistency.
	return ports.DistanceResult{
		DistanceMeters:  int(math.Round(decoded.Routes[0].Distance)),
		DurationSeconds: int(math.Round(decoded.Routes[0].Duration)),
	}, nil
}

// GetDistances prices one origin against many destinations using the /table
// service, chunked to the server's coordinate limit.
func (o *OSRMProvider) GetDistances(
	ctx context.Context,
	origin domain.Coordinates,
	destinations []domain.Coordinates,
) (_ []*ports.DistanceResult, err error) {
	defer obs.Time(ctx, "osrm.GetDistances")(&err)

	out := make([]*ports.DistanceResult, len(destinations))
	chunk := maxTableCoordinates - 1

	for start := 0; start < len(destinations); start += chunk {
		end := start + chunk
		if end > len(destinations) {
			end = len(destinations)
		}

		row, err := o.fetchTableRow(ctx, origin, destinations[start:end])
		if err != nil {
			return nil, err
		}
		copy(out[start:end], row)
	}

	return out, nil
}

func (o *OSRMProvider) fetchTableRow(
	ctx context.Context,
	origin domain.Coordinates,
	destinations []domain.Coordinates,
) ([]*ports.DistanceResult, error) {
	if len(destinations) == 0 {
		return nil, nil
	}

	coords := make([]string, 0, 1+len(destinations))
	coords = append(coords, coordParam(origin))
	destIdx := make([]string, 0, len(destinations))
	for i, d := range destinations {
		coords = append(coords, coordParam(d))
		destIdx = append(destIdx, strconv.Itoa(i+1))
	}

	endpoint := fmt.Sprintf(
		"%s/table/v1/%s/%s?sources=0&destinations=%s&annotations=distance,duration",
		o.baseURL, o.profile, strings.Join(coords, ";"), strings.Join(destIdx, ";"),
	)

	fail := func(err error) error {
		return &domain.GeoLookupError{From: origin, To: destinations[0], Err: err}
	}

	resp, err := o.doWithRetry(ctx, func() (*http.Request, error) {
		return o.newRequest(ctx, endpoint)
	})
	if err != nil {
		return nil, fail(fmt.Errorf("table request failed: %w", err))
	}
	defer resp.Body.Close()

	var tr tableResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, fail(fmt.Errorf("decode table response: %w", err))
	}

	if tr.Code != "Ok" {
		return nil, fail(fmt.Errorf("OSRM returned code %q", tr.Code))
	}

	if len(tr.Distances) != 1 || len(tr.Durations) != 1 {
		return nil, fail(fmt.Errorf(
			"expected 1 source row; got distances=%d durations=%d",
			len(tr.Distances), len(tr.Durations),
		))
	}

	rowDistances := tr.Distances[0]
	rowDurations := tr.Durations[0]
	if len(rowDistances) != len(destinations) || len(rowDurations) != len(destinations) {
		return nil, fail(fmt.Errorf(
			"row lengths do not match destinations: distances=%d durations=%d destinations=%d",
			len(rowDistances), len(rowDurations), len(destinations),
		))
	}

	out := make([]*ports.DistanceResult, len(destinations))
	for i := range destinations {
		// OSRM reports unroutable pairs as null.
		if rowDistances[i] == nil || rowDurations[i] == nil {
			continue
		}
		out[i] = &ports.DistanceResult{
			DistanceMeters:  int(math.Round(*rowDistances[i])),
			DurationSeconds: int(math.Round(*rowDurations[i])),
		}
	}

	return out, nil
}

// Ping checks the server answers a trivial route request.
func (o *OSRMProvider) Ping(ctx context.Context) error {
	a := domain.Coordinates{Lat: 40.7128, Lon: -74.0059}
	b := domain.Coordinates{Lat: 40.7129, Lon: -74.0060}
	_, err := o.GetDistance(ctx, a, b)
	return err
}
