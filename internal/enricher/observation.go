package enricher

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/JakeFAU/sgs-catalog/internal/catalog"
)

// observationFetcher resolves the date of a series' latest point. There is one
// implementation per classification because the query shapes differ.
type observationFetcher interface {
	LastObservation(ctx context.Context, id int) (time.Time, error)
}

// point is one element of the data API's JSON array.
type point struct {
	Data  string `json:"data"`
	Valor string `json:"valor"`
}

// standardFetcher asks for the single most recent point.
type standardFetcher struct {
	transport catalog.Transport
	endpoints catalog.Endpoints
	timeout   time.Duration
}

func (f standardFetcher) LastObservation(ctx context.Context, id int) (time.Time, error) {
	points, err := fetchPoints(ctx, f.transport, f.endpoints.LatestURL(id), f.timeout)
	if err != nil {
		return time.Time{}, err
	}
	return f.endpoints.ParseDate(points[0].Data)
}

// dailyFetcher asks for a trailing window, since daily series reject the
// single-point query, and takes the last point in it.
type dailyFetcher struct {
	transport catalog.Transport
	endpoints catalog.Endpoints
	timeout   time.Duration
	window    time.Duration
	clock     catalog.Clock
}

func (f dailyFetcher) LastObservation(ctx context.Context, id int) (time.Time, error) {
	end := f.clock.Now()
	points, err := fetchPoints(ctx, f.transport, f.endpoints.RangeURL(id, end.Add(-f.window), end), f.timeout)
	if err != nil {
		return time.Time{}, err
	}
	return f.endpoints.ParseDate(points[len(points)-1].Data)
}

// fetchPoints returns a non-empty point list, or ErrNoRecentData.
func fetchPoints(ctx context.Context, transport catalog.Transport, url string, timeout time.Duration) ([]point, error) {
	resp, err := transport.Get(ctx, url, timeout)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, catalog.NewStatusError(url, resp.StatusCode)
	}
	var points []point
	if err := json.Unmarshal(resp.Body, &points); err != nil {
		return nil, fmt.Errorf("decode observations from %s: %w", url, err)
	}
	if len(points) == 0 {
		return nil, catalog.ErrNoRecentData
	}
	return points, nil
}
