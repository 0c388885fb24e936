// Package scanner classifies every id in a range against the data API and
// records the results in the checkpoint store (Phase 1).
package scanner

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/sgs-catalog/internal/catalog"
	"github.com/JakeFAU/sgs-catalog/internal/checkpoint"
	"github.com/JakeFAU/sgs-catalog/internal/metrics"
	"github.com/JakeFAU/sgs-catalog/internal/progress"
	"github.com/JakeFAU/sgs-catalog/internal/retry"
)

// Defaults applied by New.
const (
	DefaultBatchSize    = 2000
	DefaultConcurrency  = 50
	DefaultProbeTimeout = 5 * time.Second
	DefaultDailyMarker  = "periodicidade diária"
)

// Config bounds one scan.
type Config struct {
	Lo, Hi       int
	BatchSize    int
	Concurrency  int
	ProbeTimeout time.Duration
	// DailyMarker is searched, case-insensitively, in 400 response bodies.
	DailyMarker string
}

// Scanner probes ids and commits their classification batch by batch.
type Scanner struct {
	cfg       Config
	transport catalog.Transport
	store     *checkpoint.Store
	endpoints catalog.Endpoints
	policy    retry.Policy
	clock     catalog.Clock
	tracker   *progress.Tracker
	logger    *zap.Logger
	marker    string
}

// New validates cfg and builds a Scanner.
func New(
	cfg Config,
	transport catalog.Transport,
	store *checkpoint.Store,
	endpoints catalog.Endpoints,
	policy retry.Policy,
	clock catalog.Clock,
	tracker *progress.Tracker,
	logger *zap.Logger,
) (*Scanner, error) {
	if transport == nil {
		return nil, errors.New("scanner: transport is required")
	}
	if store == nil {
		return nil, errors.New("scanner: checkpoint store is required")
	}
	if clock == nil {
		return nil, errors.New("scanner: clock is required")
	}
	if cfg.Lo < 0 || cfg.Lo > cfg.Hi || cfg.Hi > catalog.MaxSeriesID {
		return nil, fmt.Errorf("scanner: invalid range [%d, %d]", cfg.Lo, cfg.Hi)
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = DefaultProbeTimeout
	}
	if strings.TrimSpace(cfg.DailyMarker) == "" {
		cfg.DailyMarker = DefaultDailyMarker
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scanner{
		cfg:       cfg,
		transport: transport,
		store:     store,
		endpoints: endpoints,
		policy:    policy,
		clock:     clock,
		tracker:   tracker,
		logger:    logger.Named("scanner"),
		marker:    strings.ToLower(cfg.DailyMarker),
	}, nil
}

// Run classifies every unresolved id in the range and returns the Standard
// and Daily candidates inside it, ordered by id. Ids already in the checkpoint
// are never probed again. On cancellation, finished probes of the current
// batch are committed before the context error is returned.
func (s *Scanner) Run(ctx context.Context) ([]catalog.Candidate, error) {
	pending := s.pending()
	batches := chunk(pending, s.cfg.BatchSize)
	total := s.cfg.Hi - s.cfg.Lo + 1
	s.tracker.ScanPlanned(total-len(pending), len(pending), len(batches), len(s.candidates()))
	s.logger.Info("scan planned",
		zap.Int("lo", s.cfg.Lo),
		zap.Int("hi", s.cfg.Hi),
		zap.Int("resumed", total-len(pending)),
		zap.Int("pending", len(pending)),
		zap.Int("batches", len(batches)),
	)

	for i, batch := range batches {
		results, runErr := s.runBatch(ctx, batch)
		// Work finished before an interrupt is still persisted.
		commitCtx := ctx
		if runErr != nil {
			commitCtx = context.WithoutCancel(ctx)
		}
		if err := s.store.Commit(commitCtx, results); err != nil {
			s.logger.Error("checkpoint commit failed", zap.Int("batch", i+1), zap.Error(err))
			return nil, fmt.Errorf("commit batch %d: %w", i+1, err)
		}
		if runErr != nil {
			s.logger.Warn("scan interrupted",
				zap.Int("batch", i+1),
				zap.Int("committed", len(results)),
				zap.Int("batch_size", len(batch)),
			)
			return nil, runErr
		}
		valid := len(s.candidates())
		s.tracker.BatchDone(len(results), valid)
		s.logger.Info("batch committed",
			zap.Int("batch", i+1),
			zap.Int("of", len(batches)),
			zap.Int("first_id", batch[0]),
			zap.Int("last_id", batch[len(batch)-1]),
			zap.Int("valid_so_far", valid),
		)
	}
	return s.candidates(), nil
}

func (s *Scanner) runBatch(ctx context.Context, ids []int) ([]catalog.Candidate, error) {
	var (
		mu      sync.Mutex
		results = make([]catalog.Candidate, 0, len(ids))
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for _, id := range ids {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			class, err := s.Probe(gctx, id)
			if err != nil {
				return err
			}
			metrics.ObserveProbe(string(class))
			mu.Lock()
			results = append(results, catalog.Candidate{ID: id, Class: class})
			mu.Unlock()
			return nil
		})
	}
	err := g.Wait()
	if err == nil {
		err = ctx.Err()
	}
	return results, err
}

// Probe classifies one id, retrying transient failures per the policy. The
// only error it returns is the context's.
func (s *Scanner) Probe(ctx context.Context, id int) (catalog.Classification, error) {
	url := s.endpoints.LatestURL(id)
	for attempt := 0; ; attempt++ {
		class, retryable := s.classify(ctx, url)
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if !retryable || !s.policy.ShouldRetry(attempt) {
			if class.IsError() {
				s.logger.Debug("probe exhausted",
					zap.Int("series_id", id),
					zap.String("classification", string(class)),
					zap.Int("attempt", attempt+1),
				)
			}
			return class, nil
		}
		metrics.ObserveProbeRetry()
		if err := s.clock.Sleep(ctx, s.policy.Backoff(attempt)); err != nil {
			return "", err
		}
	}
}

// classify maps one response to a classification. retryable marks outcomes
// that are only final once retries run out.
func (s *Scanner) classify(ctx context.Context, url string) (class catalog.Classification, retryable bool) {
	resp, err := s.transport.Get(ctx, url, s.cfg.ProbeTimeout)
	if err != nil {
		var terr *catalog.TransportError
		if errors.As(err, &terr) && terr.Kind == catalog.KindTimeout {
			return catalog.ClassErrorTimeout, true
		}
		return catalog.ClassErrorConnection, true
	}
	switch resp.StatusCode {
	case http.StatusOK:
		return catalog.ClassStandard, false
	case http.StatusNotFound:
		return catalog.ClassNotFound, false
	case http.StatusBadRequest:
		if strings.Contains(strings.ToLower(string(resp.Body)), s.marker) {
			return catalog.ClassDaily, false
		}
	}
	return catalog.ErrorClass(resp.StatusCode), true
}

func (s *Scanner) pending() []int {
	out := make([]int, 0)
	for id := s.cfg.Lo; id <= s.cfg.Hi; id++ {
		if !s.store.Resolved(id) {
			out = append(out, id)
		}
	}
	return out
}

func (s *Scanner) candidates() []catalog.Candidate {
	all := s.store.Candidates()
	out := make([]catalog.Candidate, 0, len(all))
	for _, c := range all {
		if c.ID >= s.cfg.Lo && c.ID <= s.cfg.Hi {
			out = append(out, c)
		}
	}
	return out
}

func chunk(ids []int, size int) [][]int {
	var out [][]int
	for start := 0; start < len(ids); start += size {
		out = append(out, ids[start:min(start+size, len(ids))])
	}
	return out
}
