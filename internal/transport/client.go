// Package transport implements the shared, concurrency-capped HTTP client used
// by every phase of the catalog build.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/JakeFAU/sgs-catalog/internal/catalog"
	"github.com/JakeFAU/sgs-catalog/internal/metrics"
)

const (
	defaultConcurrency = 50
	defaultTimeout     = 15 * time.Second
	maxBodyBytes       = 10 << 20
)

// Config controls the client's limits.
type Config struct {
	// Concurrency caps outstanding requests across all callers and sessions.
	Concurrency int
	// Timeout is used when a caller passes a zero timeout, and by sessions.
	Timeout time.Duration
	// RequestsPerSecond throttles request starts; zero disables throttling.
	RequestsPerSecond float64
	UserAgent         string
}

// Client gates every request behind a shared weighted semaphore. Callers over
// the cap block until a slot frees; the per-request timeout starts only once a
// slot is held.
type Client struct {
	cfg     Config
	sem     *semaphore.Weighted
	limiter *rate.Limiter
	base    http.RoundTripper
	http    *http.Client
	logger  *zap.Logger
}

var _ catalog.SessionTransport = (*Client)(nil)

// New builds a Client with a pooled transport.
func New(cfg Config, logger *zap.Logger) *Client {
	return NewWithRoundTripper(cfg, newHTTPTransport(cfg.Concurrency), logger)
}

// NewWithRoundTripper builds a Client on top of an existing RoundTripper.
func NewWithRoundTripper(cfg Config, base http.RoundTripper, logger *zap.Logger) *Client {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if base == nil {
		base = newHTTPTransport(cfg.Concurrency)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Concurrency)
	}
	return &Client{
		cfg:     cfg,
		sem:     semaphore.NewWeighted(int64(cfg.Concurrency)),
		limiter: limiter,
		base:    base,
		http:    &http.Client{Transport: base},
		logger:  logger,
	}
}

// Get fetches url, holding one concurrency slot for the duration of the call.
// HTTP error statuses are returned in the Response; only timeouts and network
// failures produce a *catalog.TransportError.
func (c *Client) Get(ctx context.Context, url string, timeout time.Duration) (catalog.Response, error) {
	release, err := c.acquire(ctx, url)
	if err != nil {
		return catalog.Response{}, err
	}
	defer release()

	if timeout <= 0 {
		timeout = c.cfg.Timeout
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return catalog.Response{}, &catalog.TransportError{Kind: catalog.KindConnectionFailure, URL: url, Err: err}
	}
	if c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return catalog.Response{}, c.fail(url, err, start)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.logger.Debug("close response body", zap.String("url", url), zap.Error(cerr))
		}
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return catalog.Response{}, c.fail(url, err, start)
	}
	duration := time.Since(start)
	metrics.ObserveStatus(resp.StatusCode, duration)
	return catalog.Response{
		URL:        url,
		StatusCode: resp.StatusCode,
		Header:     resp.Header.Clone(),
		Body:       body,
		Duration:   duration,
	}, nil
}

// acquire waits for the throttle and a concurrency slot.
func (c *Client) acquire(ctx context.Context, url string) (func(), error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, &catalog.TransportError{Kind: catalog.KindConnectionFailure, URL: url, Err: fmt.Errorf("rate limit wait: %w", err)}
		}
	}
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return nil, &catalog.TransportError{Kind: catalog.KindConnectionFailure, URL: url, Err: fmt.Errorf("acquire slot: %w", err)}
	}
	metrics.IncInflight()
	return func() {
		metrics.DecInflight()
		c.sem.Release(1)
	}, nil
}

func (c *Client) fail(url string, err error, start time.Time) *catalog.TransportError {
	terr := classifyError(url, err)
	metrics.ObserveRequest(string(terr.Kind), time.Since(start))
	return terr
}

func classifyError(url string, err error) *catalog.TransportError {
	kind := catalog.KindConnectionFailure
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		kind = catalog.KindTimeout
	}
	return &catalog.TransportError{Kind: kind, URL: url, Err: err}
}

func newHTTPTransport(concurrency int) *http.Transport {
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   concurrency,
		IdleConnTimeout:       90 * time.Second,
	}
}
