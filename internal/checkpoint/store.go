// Package checkpoint owns the durable id -> classification record that makes
// the scan resumable.
package checkpoint

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/sgs-catalog/internal/catalog"
)

// CurrentVersion is the schema version written by this package.
const CurrentVersion = 1

// State is the full persisted checkpoint.
type State struct {
	Version    int
	Sequence   int64
	UpdatedAt  time.Time
	Discovered map[int]catalog.Classification
}

// Snapshot is what a backend persists on each commit: the merged state plus
// the entries that changed in this commit.
type Snapshot struct {
	State State
	Delta []catalog.Candidate
}

// Backend persists checkpoint state. Save must replace state atomically: a
// failure part-way must leave the previous state readable.
type Backend interface {
	// Load returns the stored state, or found=false when there is none.
	Load(ctx context.Context) (state State, found bool, err error)
	Save(ctx context.Context, snap Snapshot) error
	// Remove deletes (or archives) the stored state. Missing state is not an error.
	Remove(ctx context.Context) error
}

// Store is the single owner of checkpoint state. All mutation goes through
// Commit.
type Store struct {
	backend Backend
	logger  *zap.Logger
	now     func() time.Time

	mu    sync.RWMutex
	state State
}

// Open loads existing state from the backend, starting empty when none exists.
func Open(ctx context.Context, backend Backend, logger *zap.Logger) (*Store, error) {
	if backend == nil {
		return nil, fmt.Errorf("checkpoint backend is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	state, found, err := backend.Load(ctx)
	if err != nil {
		return nil, &catalog.CheckpointIOError{Op: "load", Err: err}
	}
	if !found || state.Discovered == nil {
		state.Discovered = make(map[int]catalog.Classification)
	}
	if state.Version == 0 {
		state.Version = CurrentVersion
	}
	logger.Info("checkpoint loaded",
		zap.Bool("found", found),
		zap.Int("resolved", len(state.Discovered)),
		zap.Int64("sequence", state.Sequence),
	)
	return &Store{
		backend: backend,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
		state:   state,
	}, nil
}

// Resolved reports whether id already has a persisted classification.
func (s *Store) Resolved(id int) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.state.Discovered[id]
	return ok
}

// Classification returns the persisted classification for id.
func (s *Store) Classification(id int) (catalog.Classification, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.state.Discovered[id]
	return c, ok
}

// Commit merges batch into the state and persists it. Merging is idempotent;
// the last write for an id wins. In-memory state only advances once the
// backend has accepted the write.
func (s *Store) Commit(ctx context.Context, batch []catalog.Candidate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Collapse repeated ids first; backends write one row per id.
	latest := make(map[int]catalog.Classification, len(batch))
	order := make([]int, 0, len(batch))
	for _, c := range batch {
		if _, seen := latest[c.ID]; !seen {
			order = append(order, c.ID)
		}
		latest[c.ID] = c.Class
	}
	delta := make([]catalog.Candidate, 0, len(order))
	for _, id := range order {
		class := latest[id]
		if prev, ok := s.state.Discovered[id]; ok && prev == class {
			continue
		}
		delta = append(delta, catalog.Candidate{ID: id, Class: class})
	}
	if len(delta) == 0 {
		return nil
	}

	next := State{
		Version:    CurrentVersion,
		Sequence:   s.state.Sequence + 1,
		UpdatedAt:  s.now(),
		Discovered: make(map[int]catalog.Classification, len(s.state.Discovered)+len(delta)),
	}
	for id, c := range s.state.Discovered {
		next.Discovered[id] = c
	}
	for _, c := range delta {
		next.Discovered[c.ID] = c.Class
	}

	if err := s.backend.Save(ctx, Snapshot{State: next, Delta: delta}); err != nil {
		return &catalog.CheckpointIOError{Op: "save", Err: err}
	}
	s.state = next
	s.logger.Debug("checkpoint committed",
		zap.Int("changed", len(delta)),
		zap.Int("resolved", len(next.Discovered)),
		zap.Int64("sequence", next.Sequence),
	)
	return nil
}

// Candidates returns every Standard or Daily id, ordered by id.
func (s *Store) Candidates() []catalog.Candidate {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]catalog.Candidate, 0)
	for id, c := range s.state.Discovered {
		if c.IsValid() {
			out = append(out, catalog.Candidate{ID: id, Class: c})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len is the number of resolved ids.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.state.Discovered)
}

// Sequence is the number of commits applied to the stored state.
func (s *Store) Sequence() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Sequence
}

// Counts tallies resolved ids by classification.
func (s *Store) Counts() map[catalog.Classification]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[catalog.Classification]int)
	for _, c := range s.state.Discovered {
		out[c]++
	}
	return out
}

// Finish removes the persisted state after a fully successful run. The
// in-memory view is kept so callers can still read the final candidates.
func (s *Store) Finish(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.backend.Remove(ctx); err != nil {
		return &catalog.CheckpointIOError{Op: "finish", Err: err}
	}
	s.logger.Info("checkpoint cleared after successful run", zap.Int("resolved", len(s.state.Discovered)))
	return nil
}

// Reset discards every classification, both persisted and in memory.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.backend.Remove(ctx); err != nil {
		return &catalog.CheckpointIOError{Op: "reset", Err: err}
	}
	s.state = State{Version: CurrentVersion, Discovered: make(map[int]catalog.Classification)}
	s.logger.Info("checkpoint reset")
	return nil
}
