package checkpoint

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/JakeFAU/sgs-catalog/internal/catalog"
)

// DefaultPath is the checkpoint file used when none is configured.
const DefaultPath = "bcb_discovery_progress.json"

const archiveLayout = "20060102T150405Z"

// FileBackend keeps the checkpoint in a single JSON file, rewritten in full on
// every save through a temp file and rename.
type FileBackend struct {
	path    string
	archive bool
	now     func() time.Time
}

// NewFileBackend builds a file backend. When archive is true, Remove renames
// the file with a timestamp suffix instead of deleting it.
func NewFileBackend(path string, archive bool) *FileBackend {
	if path == "" {
		path = DefaultPath
	}
	return &FileBackend{path: path, archive: archive, now: time.Now}
}

// Path returns the checkpoint file location.
func (b *FileBackend) Path() string {
	return b.path
}

type fileDocument struct {
	Version    int                 `json:"version"`
	Sequence   int64               `json:"sequence"`
	UpdatedAt  time.Time           `json:"updated_at"`
	Discovered []catalog.Candidate `json:"discovered"`
}

// Load reads the checkpoint file. A bare JSON array of {"id","type"} entries
// is accepted as a version-0 document.
func (b *FileBackend) Load(_ context.Context) (State, bool, error) {
	raw, err := os.ReadFile(b.path)
	if errors.Is(err, fs.ErrNotExist) {
		return State{}, false, nil
	}
	if err != nil {
		return State{}, false, fmt.Errorf("read %s: %w", b.path, err)
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return State{}, false, nil
	}

	var doc fileDocument
	if raw[0] == '[' {
		if err := json.Unmarshal(raw, &doc.Discovered); err != nil {
			return State{}, false, fmt.Errorf("decode %s: %w", b.path, err)
		}
	} else if err := json.Unmarshal(raw, &doc); err != nil {
		return State{}, false, fmt.Errorf("decode %s: %w", b.path, err)
	}

	state := State{
		Version:    doc.Version,
		Sequence:   doc.Sequence,
		UpdatedAt:  doc.UpdatedAt,
		Discovered: make(map[int]catalog.Classification, len(doc.Discovered)),
	}
	for _, c := range doc.Discovered {
		class, err := catalog.ParseClassification(string(c.Class))
		if err != nil {
			return State{}, false, fmt.Errorf("decode %s: id %d: %w", b.path, c.ID, err)
		}
		state.Discovered[c.ID] = class
	}
	return state, true, nil
}

// Save atomically replaces the checkpoint file with the full state.
func (b *FileBackend) Save(_ context.Context, snap Snapshot) error {
	doc := fileDocument{
		Version:    snap.State.Version,
		Sequence:   snap.State.Sequence,
		UpdatedAt:  snap.State.UpdatedAt,
		Discovered: make([]catalog.Candidate, 0, len(snap.State.Discovered)),
	}
	for id, c := range snap.State.Discovered {
		doc.Discovered = append(doc.Discovered, catalog.Candidate{ID: id, Class: c})
	}
	sort.Slice(doc.Discovered, func(i, j int) bool { return doc.Discovered[i].ID < doc.Discovered[j].ID })

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}
	return writeFileAtomic(b.path, data)
}

// Remove deletes or archives the checkpoint file.
func (b *FileBackend) Remove(_ context.Context) error {
	if b.archive {
		dest := fmt.Sprintf("%s.%s.done", b.path, b.now().UTC().Format(archiveLayout))
		err := os.Rename(b.path, dest)
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("archive %s: %w", b.path, err)
		}
		return nil
	}
	if err := os.Remove(b.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", b.path, err)
	}
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create checkpoint dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp checkpoint: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write temp checkpoint: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("sync temp checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp checkpoint: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("replace checkpoint: %w", err)
	}
	return nil
}
