package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http/cookiejar"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"
	"golang.org/x/net/publicsuffix"

	"github.com/JakeFAU/sgs-catalog/internal/catalog"
	"github.com/JakeFAU/sgs-catalog/internal/metrics"
)

// ErrSessionClosed is returned by Get after Close.
var ErrSessionClosed = errors.New("transport: session closed")

// Session is a cookie-scoped sequence of requests backed by a single colly
// collector. Every request still competes for the client's concurrency slots.
type Session struct {
	client    *Client
	collector *colly.Collector

	mu     sync.Mutex
	closed bool
}

var _ catalog.Session = (*Session)(nil)

// NewSession opens a session with a fresh cookie jar.
func (c *Client) NewSession() catalog.Session {
	collector := colly.NewCollector(
		colly.AllowURLRevisit(),
		colly.DetectCharset(),
	)
	if c.cfg.UserAgent != "" {
		collector.UserAgent = c.cfg.UserAgent
	}
	collector.IgnoreRobotsTxt = true
	collector.ParseHTTPErrorResponse = true
	collector.SetRequestTimeout(c.cfg.Timeout)
	collector.WithTransport(c.base)

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		c.logger.Warn("session cookie jar unavailable", zap.Error(err))
	} else {
		collector.SetCookieJar(jar)
	}
	return &Session{client: c, collector: collector}
}

// Get fetches url within the session. Status codes are reported in the
// Response; only timeouts and network failures are errors.
func (s *Session) Get(ctx context.Context, url string) (catalog.Response, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return catalog.Response{}, &catalog.TransportError{Kind: catalog.KindConnectionFailure, URL: url, Err: ErrSessionClosed}
	}

	release, err := s.client.acquire(ctx, url)
	if err != nil {
		return catalog.Response{}, err
	}
	defer release()

	var (
		result   catalog.Response
		fetchErr error
	)
	start := time.Now()
	// Clones share the backend, so cookies persist across calls.
	collector := s.collector.Clone()
	collector.OnResponse(func(r *colly.Response) {
		result = catalog.Response{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Body:       append([]byte(nil), r.Body...),
			Duration:   time.Since(start),
		}
		if r.Headers != nil {
			result.Header = r.Headers.Clone()
		}
	})
	collector.OnError(func(_ *colly.Response, err error) {
		fetchErr = err
	})

	if err := s.run(ctx, collector, url, &fetchErr); err != nil {
		return catalog.Response{}, s.client.fail(url, err, start)
	}
	metrics.ObserveStatus(result.StatusCode, result.Duration)
	return result, nil
}

// run visits url synchronously so the caller's slot is held until the
// request has ended. The collector carries ctx, so cancellation aborts it.
func (s *Session) run(ctx context.Context, collector *colly.Collector, url string, fetchErr *error) error {
	collector.Context = ctx
	err := collector.Visit(url)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("session fetch canceled: %w", ctxErr)
	}
	if err != nil {
		return fmt.Errorf("session visit failed: %w", err)
	}
	if *fetchErr != nil {
		return fmt.Errorf("session response failed: %w", *fetchErr)
	}
	return nil
}

// Close releases the session. Further calls to Get fail.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}
