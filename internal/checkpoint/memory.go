package checkpoint

import (
	"context"
	"sync"

	"github.com/JakeFAU/sgs-catalog/internal/catalog"
)

// MemoryBackend keeps checkpoint state in process. Useful for dry runs and tests.
type MemoryBackend struct {
	mu      sync.Mutex
	state   *State
	saves   int
	removed int
	delta   []catalog.Candidate
	// FailSave, when set, is returned by Save.
	FailSave error
}

// NewMemoryBackend returns an empty backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{}
}

// Load returns a copy of the saved state.
func (b *MemoryBackend) Load(_ context.Context) (State, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == nil {
		return State{}, false, nil
	}
	return cloneState(*b.state), true, nil
}

// Save stores a copy of the snapshot state.
func (b *MemoryBackend) Save(_ context.Context, snap Snapshot) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.FailSave != nil {
		return b.FailSave
	}
	st := cloneState(snap.State)
	b.state = &st
	b.delta = append([]catalog.Candidate(nil), snap.Delta...)
	b.saves++
	return nil
}

// Remove drops the saved state.
func (b *MemoryBackend) Remove(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = nil
	b.removed++
	return nil
}

// Saves reports how many snapshots were accepted.
func (b *MemoryBackend) Saves() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.saves
}

// LastDelta returns the delta of the most recent accepted snapshot.
func (b *MemoryBackend) LastDelta() []catalog.Candidate {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]catalog.Candidate(nil), b.delta...)
}

// Removed reports how many times Remove was called.
func (b *MemoryBackend) Removed() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.removed
}

func cloneState(s State) State {
	out := s
	out.Discovered = make(map[int]catalog.Classification, len(s.Discovered))
	for id, c := range s.Discovered {
		out.Discovered[id] = c
	}
	return out
}
