package progress

import (
	"sync"
	"time"
)

// Phase names the pipeline stage a run is in.
type Phase string

// Pipeline phases reported by the tracker.
const (
	PhaseIdle      Phase = "idle"
	PhaseScanning  Phase = "scanning"
	PhaseEnriching Phase = "enriching"
	PhaseWriting   Phase = "writing"
	PhaseDone      Phase = "done"
	PhaseFailed    Phase = "failed"
)

// Snapshot is a point-in-time copy of run progress.
type Snapshot struct {
	RunID     string    `json:"run_id,omitempty"`
	Phase     Phase     `json:"phase"`
	StartedAt time.Time `json:"started_at,omitzero"`
	UpdatedAt time.Time `json:"updated_at,omitzero"`

	RangeLo        int `json:"range_lo"`
	RangeHi        int `json:"range_hi"`
	Resumed        int `json:"resumed"`
	Pending        int `json:"pending"`
	Probed         int `json:"probed"`
	Valid          int `json:"valid"`
	BatchesPlanned int `json:"batches_planned"`
	BatchesDone    int `json:"batches_done"`

	Candidates int `json:"candidates"`
	Enriched   int `json:"enriched"`
	Excluded   int `json:"excluded"`
	Records    int `json:"records"`

	LastError string `json:"last_error,omitempty"`
}

// Tracker collects progress from the scanner and enricher for the status
// endpoint and logs. All methods are safe on a nil receiver.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
	now  func() time.Time
}

// NewTracker returns an idle tracker.
func NewTracker() *Tracker {
	return &Tracker{
		snap: Snapshot{Phase: PhaseIdle},
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (t *Tracker) update(fn func(*Snapshot)) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	fn(&t.snap)
	t.snap.UpdatedAt = t.now()
}

// Start resets the tracker for a new run over [lo, hi].
func (t *Tracker) Start(runID string, lo, hi int) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	t.snap = Snapshot{
		RunID:     runID,
		Phase:     PhaseScanning,
		StartedAt: now,
		UpdatedAt: now,
		RangeLo:   lo,
		RangeHi:   hi,
	}
}

// SetPhase moves the run to p.
func (t *Tracker) SetPhase(p Phase) {
	t.update(func(s *Snapshot) { s.Phase = p })
}

// ScanPlanned records how much of the range was already resolved and how many
// ids and batches remain.
func (t *Tracker) ScanPlanned(resumed, pending, batches, valid int) {
	t.update(func(s *Snapshot) {
		s.Resumed = resumed
		s.Pending = pending
		s.BatchesPlanned = batches
		s.Valid = valid
	})
}

// BatchDone records a committed batch and the cumulative valid count.
func (t *Tracker) BatchDone(probed, validTotal int) {
	t.update(func(s *Snapshot) {
		s.BatchesDone++
		s.Probed += probed
		s.Valid = validTotal
	})
}

// EnrichPlanned records the number of candidates entering enrichment.
func (t *Tracker) EnrichPlanned(n int) {
	t.update(func(s *Snapshot) {
		s.Phase = PhaseEnriching
		s.Candidates = n
	})
}

// EnrichDone records one finished candidate.
func (t *Tracker) EnrichDone(kept bool) {
	t.update(func(s *Snapshot) {
		if kept {
			s.Enriched++
		} else {
			s.Excluded++
		}
	})
}

// Finish marks the run done with the number of catalog records written.
func (t *Tracker) Finish(records int) {
	t.update(func(s *Snapshot) {
		s.Phase = PhaseDone
		s.Records = records
	})
}

// Fail marks the run failed.
func (t *Tracker) Fail(err error) {
	t.update(func(s *Snapshot) {
		s.Phase = PhaseFailed
		if err != nil {
			s.LastError = err.Error()
		}
	})
}

// Snapshot returns a copy of the current progress.
func (t *Tracker) Snapshot() Snapshot {
	if t == nil {
		return Snapshot{Phase: PhaseIdle}
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.snap
}
