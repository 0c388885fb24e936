// Package enricher fetches metadata and the latest observation date for each
// discovered series (Phase 2).
package enricher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/sgs-catalog/internal/catalog"
	"github.com/JakeFAU/sgs-catalog/internal/metadata"
	"github.com/JakeFAU/sgs-catalog/internal/metrics"
	"github.com/JakeFAU/sgs-catalog/internal/progress"
)

// Defaults applied by New.
const (
	DefaultConcurrency = 50
	DefaultTimeout     = 15 * time.Second
	DefaultDailyWindow = 30 * 24 * time.Hour
)

// Enrichment outcomes, used as metric labels.
const (
	outcomeKept         = "kept"
	outcomeMetadata     = "metadata_error"
	outcomeNoRecentData = "no_recent_data"
	outcomeObservation  = "observation_error"
)

// Config bounds the enrichment pass.
type Config struct {
	Concurrency int
	Timeout     time.Duration
	DailyWindow time.Duration
}

// Enricher resolves SeriesMetadata and LastObservation per candidate.
type Enricher struct {
	cfg       Config
	transport catalog.SessionTransport
	endpoints catalog.Endpoints
	parser    *metadata.Parser
	tracker   *progress.Tracker
	logger    *zap.Logger
	fetchers  map[catalog.Classification]observationFetcher
}

// New builds an Enricher.
func New(
	cfg Config,
	transport catalog.SessionTransport,
	endpoints catalog.Endpoints,
	parser *metadata.Parser,
	clock catalog.Clock,
	tracker *progress.Tracker,
	logger *zap.Logger,
) (*Enricher, error) {
	if transport == nil {
		return nil, errors.New("enricher: transport is required")
	}
	if clock == nil {
		return nil, errors.New("enricher: clock is required")
	}
	if parser == nil {
		parser = metadata.NewParser(metadata.DefaultLabels())
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.DailyWindow <= 0 {
		cfg.DailyWindow = DefaultDailyWindow
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Enricher{
		cfg:       cfg,
		transport: transport,
		endpoints: endpoints,
		parser:    parser,
		tracker:   tracker,
		logger:    logger.Named("enricher"),
		fetchers: map[catalog.Classification]observationFetcher{
			catalog.ClassStandard: standardFetcher{
				transport: transport,
				endpoints: endpoints,
				timeout:   cfg.Timeout,
			},
			catalog.ClassDaily: dailyFetcher{
				transport: transport,
				endpoints: endpoints,
				timeout:   cfg.Timeout,
				window:    cfg.DailyWindow,
				clock:     clock,
			},
		},
	}, nil
}

// Enrich processes every candidate concurrently and returns the ones that
// yielded metadata and a recent observation, ordered by id. Per-candidate
// failures exclude that candidate only; the returned error is non-nil only
// when ctx ends first.
func (e *Enricher) Enrich(ctx context.Context, candidates []catalog.Candidate) ([]catalog.Enriched, error) {
	e.tracker.EnrichPlanned(len(candidates))
	e.logger.Info("enrichment started", zap.Int("candidates", len(candidates)))

	var (
		mu  sync.Mutex
		out = make([]catalog.Enriched, 0, len(candidates))
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Concurrency)
	for _, c := range candidates {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			item, err := e.enrichOne(gctx, c)
			if ctxErr := gctx.Err(); ctxErr != nil {
				return ctxErr
			}
			e.record(c, err)
			if err != nil {
				return nil
			}
			mu.Lock()
			out = append(out, item)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("enrich candidates: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("enrich candidates: %w", err)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Candidate.ID < out[j].Candidate.ID })
	e.logger.Info("enrichment finished",
		zap.Int("candidates", len(candidates)),
		zap.Int("kept", len(out)),
	)
	return out, nil
}

func (e *Enricher) enrichOne(ctx context.Context, c catalog.Candidate) (catalog.Enriched, error) {
	fetcher, ok := e.fetchers[c.Class]
	if !ok {
		return catalog.Enriched{}, fmt.Errorf("series %d: no observation strategy for %q", c.ID, c.Class)
	}
	md, err := e.fetchMetadata(ctx, c.ID)
	if err != nil {
		return catalog.Enriched{}, err
	}
	last, err := fetcher.LastObservation(ctx, c.ID)
	if err != nil {
		return catalog.Enriched{}, fmt.Errorf("series %d last observation: %w", c.ID, err)
	}
	return catalog.Enriched{
		Candidate:   c,
		Metadata:    md,
		Observation: catalog.LastObservation{Date: last},
	}, nil
}

// fetchMetadata runs the two-step flow in one session: the container request
// binds the series to the session, then the content request returns its table.
func (e *Enricher) fetchMetadata(ctx context.Context, id int) (catalog.SeriesMetadata, error) {
	sess := e.transport.NewSession()
	defer sess.Close()

	if _, err := e.sessionGet(ctx, sess, id, "container", e.endpoints.ContainerURL(id)); err != nil {
		return catalog.SeriesMetadata{}, err
	}
	resp, err := e.sessionGet(ctx, sess, id, "content", e.endpoints.ContentURL())
	if err != nil {
		return catalog.SeriesMetadata{}, err
	}
	md, err := e.parser.Parse(resp.Body)
	if err != nil {
		return catalog.SeriesMetadata{}, &catalog.MetadataError{SeriesID: id, Step: "content", Reason: "unusable metadata table", Err: err}
	}
	return md, nil
}

func (e *Enricher) sessionGet(ctx context.Context, sess catalog.Session, id int, step, url string) (catalog.Response, error) {
	resp, err := sess.Get(ctx, url)
	if err != nil {
		return catalog.Response{}, &catalog.MetadataError{SeriesID: id, Step: step, Reason: "request failed", Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return catalog.Response{}, &catalog.MetadataError{
			SeriesID: id,
			Step:     step,
			Reason:   fmt.Sprintf("unexpected status %d", resp.StatusCode),
			Err:      catalog.NewStatusError(url, resp.StatusCode),
		}
	}
	return resp, nil
}

func (e *Enricher) record(c catalog.Candidate, err error) {
	e.tracker.EnrichDone(err == nil)
	var metaErr *catalog.MetadataError
	switch {
	case err == nil:
		metrics.ObserveEnrichment(outcomeKept)
	case errors.As(err, &metaErr):
		metrics.ObserveEnrichment(outcomeMetadata)
		e.logger.Warn("metadata unavailable, series excluded",
			zap.Int("series_id", c.ID),
			zap.String("step", metaErr.Step),
			zap.Error(err),
		)
	case errors.Is(err, catalog.ErrNoRecentData):
		metrics.ObserveEnrichment(outcomeNoRecentData)
		e.logger.Debug("no recent data, series excluded", zap.Int("series_id", c.ID))
	default:
		metrics.ObserveEnrichment(outcomeObservation)
		e.logger.Debug("last observation unavailable, series excluded",
			zap.Int("series_id", c.ID),
			zap.String("classification", string(c.Class)),
			zap.Error(err),
		)
	}
}
