package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/sgs-catalog/internal/catalog"
	"github.com/JakeFAU/sgs-catalog/internal/progress"
	"github.com/JakeFAU/sgs-catalog/internal/publisher/memory"
)

var now = time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

type fixedClock struct{}

func (fixedClock) Now() time.Time { return now }

func (fixedClock) Sleep(ctx context.Context, _ time.Duration) error { return ctx.Err() }

type staticIDs struct{ id string }

func (s staticIDs) NewID() (string, error) { return s.id, nil }

type fakeScanner struct {
	candidates []catalog.Candidate
	err        error
	calls      int
}

func (f *fakeScanner) Run(context.Context) ([]catalog.Candidate, error) {
	f.calls++
	return f.candidates, f.err
}

type fakeEnricher struct {
	items []catalog.Enriched
	got   []catalog.Candidate
}

func (f *fakeEnricher) Enrich(_ context.Context, c []catalog.Candidate) ([]catalog.Enriched, error) {
	f.got = c
	return f.items, nil
}

type fakeCheckpoint struct{ finished int }

func (f *fakeCheckpoint) Finish(context.Context) error {
	f.finished++
	return nil
}

type fakeSink struct {
	written []catalog.Catalog
	err     error
}

func (f *fakeSink) Write(_ context.Context, cat catalog.Catalog) (catalog.Receipt, error) {
	if f.err != nil {
		return catalog.Receipt{}, f.err
	}
	f.written = append(f.written, cat)
	return catalog.Receipt{URI: "memory://catalog.jsonl", Digest: "sha256:abc", Records: len(cat.Records)}, nil
}

type harness struct {
	scanner    *fakeScanner
	enricher   *fakeEnricher
	checkpoint *fakeCheckpoint
	sink       *fakeSink
	publisher  *memory.Publisher
	tracker    *progress.Tracker
}

func newHarness(t *testing.T, h harness, topic string) (*Pipeline, harness) {
	t.Helper()
	if h.scanner == nil {
		h.scanner = &fakeScanner{}
	}
	if h.enricher == nil {
		h.enricher = &fakeEnricher{}
	}
	h.checkpoint = &fakeCheckpoint{}
	if h.sink == nil {
		h.sink = &fakeSink{}
	}
	if h.publisher == nil {
		h.publisher = memory.New()
	}
	h.tracker = progress.NewTracker()
	p, err := New(Config{Lo: 1, Hi: 100, Topic: topic}, Deps{
		Scanner:    h.scanner,
		Enricher:   h.enricher,
		Activeness: catalog.NewActiveness(catalog.DefaultThresholds(), 0),
		Assembler:  catalog.NewAssembler("", catalog.DefaultEndpoints()),
		Checkpoint: h.checkpoint,
		Sink:       h.sink,
		Publisher:  h.publisher,
		IDs:        staticIDs{id: "run-1"},
		Clock:      fixedClock{},
		Tracker:    h.tracker,
	}, zap.NewNop())
	require.NoError(t, err)
	return p, h
}

func enriched(id int, class catalog.Classification, periodicity string, last time.Time) catalog.Enriched {
	return catalog.Enriched{
		Candidate:   catalog.Candidate{ID: id, Class: class},
		Metadata:    catalog.SeriesMetadata{Periodicity: catalog.StringPtr(periodicity)},
		Observation: catalog.LastObservation{Date: last},
	}
}

func TestPipeline_Run(t *testing.T) {
	t.Parallel()

	candidates := []catalog.Candidate{{ID: 1, Class: catalog.ClassStandard}, {ID: 2, Class: catalog.ClassDaily}, {ID: 3, Class: catalog.ClassStandard}}
	p, h := newHarness(t, harness{
		scanner: &fakeScanner{candidates: candidates},
		enricher: &fakeEnricher{items: []catalog.Enriched{
			enriched(1, catalog.ClassStandard, "Mensal", now.AddDate(0, 0, -20)),
			enriched(2, catalog.ClassDaily, "Diária", now.AddDate(0, 0, -1)),
			enriched(3, catalog.ClassStandard, "Mensal", now.AddDate(0, -6, 0)),
		}},
	}, "catalog-ready")

	res, err := p.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, "run-1", res.RunID)
	require.Equal(t, 3, res.Candidates)
	require.Equal(t, 3, res.Enriched)
	require.Equal(t, 2, res.Active)
	require.Equal(t, "memory-1", res.MessageID)
	require.Equal(t, candidates, h.enricher.got)

	require.Len(t, h.sink.written, 1)
	cat := h.sink.written[0]
	require.Equal(t, "run-1", cat.RunID)
	require.Equal(t, now, cat.GeneratedAt)
	require.Equal(t, []int{1, 2}, []int{cat.Records[0].SeriesID, cat.Records[1].SeriesID})
	require.Equal(t, 1, h.checkpoint.finished)

	msg, ok := h.publisher.Last()
	require.True(t, ok)
	require.Equal(t, "catalog-ready", msg.Topic)
	notice := msg.Payload.(Notice)
	require.Equal(t, "memory://catalog.jsonl", notice.URI)
	require.Equal(t, 2, notice.Records)
	require.Equal(t, map[string]string{"run_id": "run-1"}, notice.Attributes())

	snap := h.tracker.Snapshot()
	require.Equal(t, progress.PhaseDone, snap.Phase)
	require.Equal(t, 2, snap.Records)
}

func TestPipeline_NoActiveSeries(t *testing.T) {
	t.Parallel()

	p, h := newHarness(t, harness{
		scanner: &fakeScanner{candidates: []catalog.Candidate{{ID: 1, Class: catalog.ClassStandard}}},
		enricher: &fakeEnricher{items: []catalog.Enriched{
			enriched(1, catalog.ClassStandard, "Anual", now.AddDate(-3, 0, 0)),
		}},
	}, "catalog-ready")

	_, err := p.Run(context.Background())
	require.ErrorIs(t, err, catalog.ErrNoActiveSeries)
	require.Empty(t, h.sink.written)
	require.Zero(t, h.checkpoint.finished)
	require.Empty(t, h.publisher.Messages())
	require.Equal(t, progress.PhaseFailed, h.tracker.Snapshot().Phase)
}

func TestPipeline_SinkFailureKeepsCheckpoint(t *testing.T) {
	t.Parallel()

	p, h := newHarness(t, harness{
		scanner:  &fakeScanner{candidates: []catalog.Candidate{{ID: 1, Class: catalog.ClassStandard}}},
		enricher: &fakeEnricher{items: []catalog.Enriched{enriched(1, catalog.ClassStandard, "Mensal", now)}},
		sink:     &fakeSink{err: &catalog.OutputIOError{Sink: "local", Err: errors.New("read-only file system")}},
	}, "")

	_, err := p.Run(context.Background())
	require.True(t, catalog.IsFatal(err))
	require.Zero(t, h.checkpoint.finished)
}

func TestPipeline_PublishFailureIsNotFatal(t *testing.T) {
	t.Parallel()

	pub := memory.New()
	pub.Err = errors.New("topic not found")
	p, h := newHarness(t, harness{
		scanner:   &fakeScanner{candidates: []catalog.Candidate{{ID: 1, Class: catalog.ClassStandard}}},
		enricher:  &fakeEnricher{items: []catalog.Enriched{enriched(1, catalog.ClassStandard, "Mensal", now)}},
		publisher: pub,
	}, "catalog-ready")

	res, err := p.Run(context.Background())
	require.NoError(t, err)
	require.Empty(t, res.MessageID)
	require.Equal(t, 1, h.checkpoint.finished)
}

func TestPipeline_ScanErrorStopsBeforeEnrichment(t *testing.T) {
	t.Parallel()

	cpErr := &catalog.CheckpointIOError{Op: "save", Err: errors.New("disk full")}
	p, h := newHarness(t, harness{scanner: &fakeScanner{err: cpErr}}, "")

	_, err := p.Run(context.Background())
	require.ErrorIs(t, err, cpErr)
	require.Nil(t, h.enricher.got)
	require.Contains(t, h.tracker.Snapshot().LastError, "checkpoint save: disk full")
}

func TestPipeline_ScanOnly(t *testing.T) {
	t.Parallel()

	candidates := []catalog.Candidate{{ID: 5, Class: catalog.ClassDaily}}
	p, h := newHarness(t, harness{scanner: &fakeScanner{candidates: candidates}}, "catalog-ready")

	got, err := p.Scan(context.Background())
	require.NoError(t, err)
	require.Equal(t, candidates, got)
	require.Nil(t, h.enricher.got)
	require.Zero(t, h.checkpoint.finished)
	require.Empty(t, h.publisher.Messages())
}

func TestNew_RequiresDeps(t *testing.T) {
	t.Parallel()

	_, err := New(Config{}, Deps{}, nil)
	require.Error(t, err)
}
