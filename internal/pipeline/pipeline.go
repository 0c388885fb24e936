// Package pipeline runs a catalog build end to end: scan, enrich, classify,
// assemble, write, then clear the checkpoint and announce the result.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/sgs-catalog/internal/catalog"
	"github.com/JakeFAU/sgs-catalog/internal/progress"
)

// Scanner runs Phase 1.
type Scanner interface {
	Run(ctx context.Context) ([]catalog.Candidate, error)
}

// Enricher runs Phase 2.
type Enricher interface {
	Enrich(ctx context.Context, candidates []catalog.Candidate) ([]catalog.Enriched, error)
}

// Checkpoint is cleared once the catalog is safely written.
type Checkpoint interface {
	Finish(ctx context.Context) error
}

// Config controls the optional parts of a run.
type Config struct {
	// Lo and Hi are reported to the progress tracker.
	Lo, Hi int
	// Topic receives a Notice after a successful write; empty disables it.
	Topic string
}

// Deps are the collaborators of a Pipeline. Publisher and Tracker are optional.
type Deps struct {
	Scanner    Scanner
	Enricher   Enricher
	Activeness catalog.Activeness
	Assembler  catalog.Assembler
	Checkpoint Checkpoint
	Sink       catalog.Sink
	Publisher  catalog.Publisher
	IDs        catalog.IDGenerator
	Clock      catalog.Clock
	Tracker    *progress.Tracker
}

// Result summarises a finished run.
type Result struct {
	RunID      string
	Candidates int
	Enriched   int
	Active     int
	Receipt    catalog.Receipt
	MessageID  string
	Duration   time.Duration
}

// Notice is published after the catalog is written.
type Notice struct {
	RunID       string    `json:"run_id"`
	URI         string    `json:"uri"`
	Digest      string    `json:"digest"`
	Records     int       `json:"records"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Attributes exposes the run id as a message attribute.
func (n Notice) Attributes() map[string]string {
	return map[string]string{"run_id": n.RunID}
}

// Pipeline sequences the phases of one build.
type Pipeline struct {
	cfg  Config
	deps Deps
	log  *zap.Logger
}

// New validates deps and builds a Pipeline.
func New(cfg Config, deps Deps, logger *zap.Logger) (*Pipeline, error) {
	switch {
	case deps.Scanner == nil:
		return nil, errors.New("pipeline: scanner is required")
	case deps.Enricher == nil:
		return nil, errors.New("pipeline: enricher is required")
	case deps.Checkpoint == nil:
		return nil, errors.New("pipeline: checkpoint is required")
	case deps.Sink == nil:
		return nil, errors.New("pipeline: sink is required")
	case deps.IDs == nil:
		return nil, errors.New("pipeline: id generator is required")
	case deps.Clock == nil:
		return nil, errors.New("pipeline: clock is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{cfg: cfg, deps: deps, log: logger.Named("pipeline")}, nil
}

// Run executes a full build. Enrichment starts only after the scan has
// classified the whole range. A run that finds no active series returns
// catalog.ErrNoActiveSeries and writes nothing.
func (p *Pipeline) Run(ctx context.Context) (Result, error) {
	start := p.deps.Clock.Now()
	res, err := p.run(ctx)
	res.Duration = p.deps.Clock.Now().Sub(start)
	if err != nil {
		p.deps.Tracker.Fail(err)
		p.logFailure(res.RunID, err)
		return res, err
	}
	p.deps.Tracker.Finish(res.Receipt.Records)
	p.log.Info("catalog build finished",
		zap.String("run_id", res.RunID),
		zap.Int("candidates", res.Candidates),
		zap.Int("enriched", res.Enriched),
		zap.Int("records", res.Active),
		zap.String("uri", res.Receipt.URI),
		zap.String("digest", res.Receipt.Digest),
		zap.Duration("duration", res.Duration),
	)
	return res, nil
}

func (p *Pipeline) run(ctx context.Context) (Result, error) {
	runID, err := p.deps.IDs.NewID()
	if err != nil {
		return Result{}, fmt.Errorf("generate run id: %w", err)
	}
	res := Result{RunID: runID}
	p.deps.Tracker.Start(runID, p.cfg.Lo, p.cfg.Hi)
	p.log.Info("catalog build started", zap.String("run_id", runID), zap.Int("lo", p.cfg.Lo), zap.Int("hi", p.cfg.Hi))

	candidates, err := p.deps.Scanner.Run(ctx)
	if err != nil {
		return res, fmt.Errorf("scan ids: %w", err)
	}
	res.Candidates = len(candidates)

	enriched, err := p.deps.Enricher.Enrich(ctx, candidates)
	if err != nil {
		return res, err
	}
	res.Enriched = len(enriched)

	now := p.deps.Clock.Now()
	active := p.deps.Activeness.FilterActive(enriched, now)
	records := p.deps.Assembler.Assemble(active)
	res.Active = len(records)
	p.log.Info("activeness classified",
		zap.String("run_id", runID),
		zap.Int("enriched", len(enriched)),
		zap.Int("active", len(records)),
	)
	if len(records) == 0 {
		return res, catalog.ErrNoActiveSeries
	}

	p.deps.Tracker.SetPhase(progress.PhaseWriting)
	cat := catalog.Catalog{RunID: runID, GeneratedAt: now, Records: records}
	receipt, err := p.deps.Sink.Write(ctx, cat)
	if err != nil {
		return res, err
	}
	res.Receipt = receipt

	if err := p.deps.Checkpoint.Finish(ctx); err != nil {
		return res, err
	}

	res.MessageID = p.announce(ctx, Notice{
		RunID:       runID,
		URI:         receipt.URI,
		Digest:      receipt.Digest,
		Records:     receipt.Records,
		GeneratedAt: now,
	})
	return res, nil
}

// announce publishes the notice. The catalog is already durable, so a failed
// publish is logged and the run still succeeds.
func (p *Pipeline) announce(ctx context.Context, n Notice) string {
	if p.deps.Publisher == nil || p.cfg.Topic == "" {
		return ""
	}
	id, err := p.deps.Publisher.Publish(ctx, p.cfg.Topic, n)
	if err != nil {
		p.log.Warn("completion notice not published",
			zap.String("run_id", n.RunID),
			zap.String("topic", p.cfg.Topic),
			zap.Error(err),
		)
		return ""
	}
	p.log.Info("completion notice published", zap.String("run_id", n.RunID), zap.String("message_id", id))
	return id
}

// Scan runs Phase 1 only and leaves the checkpoint in place.
func (p *Pipeline) Scan(ctx context.Context) ([]catalog.Candidate, error) {
	runID, err := p.deps.IDs.NewID()
	if err != nil {
		return nil, fmt.Errorf("generate run id: %w", err)
	}
	p.deps.Tracker.Start(runID, p.cfg.Lo, p.cfg.Hi)
	candidates, err := p.deps.Scanner.Run(ctx)
	if err != nil {
		p.deps.Tracker.Fail(err)
		p.logFailure(runID, err)
		return nil, fmt.Errorf("scan ids: %w", err)
	}
	p.deps.Tracker.SetPhase(progress.PhaseDone)
	p.log.Info("scan finished", zap.String("run_id", runID), zap.Int("candidates", len(candidates)))
	return candidates, nil
}

func (p *Pipeline) logFailure(runID string, err error) {
	switch {
	case errors.Is(err, catalog.ErrNoActiveSeries):
		p.log.Warn("no active series found", zap.String("run_id", runID))
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		p.log.Warn("catalog build interrupted; progress is checkpointed", zap.String("run_id", runID), zap.Error(err))
	case catalog.IsFatal(err):
		p.log.Error("storage failure aborted the build", zap.String("run_id", runID), zap.Error(err))
	default:
		p.log.Error("catalog build failed", zap.String("run_id", runID), zap.Error(err))
	}
}
