// Package sink persists the merged candidate set as a JSON snapshot and
// exports it for operators.
package sink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/repreneur-cli/internal/model"
)

// Document is the on-disk snapshot layout.
type Document struct {
	GeneratedAt time.Time         `json:"generated_at"`
	RunID       string            `json:"run_id"`
	Count       int               `json:"count"`
	Candidates  []model.Candidate `json:"candidates"`
}

// PersistError reports a failed snapshot write. The previous snapshot is
// left untouched when it is returned.
type PersistError struct {
	Path string
	Op   string
	Err  error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("sink: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *PersistError) Unwrap() error { return e.Err }

// Snapshot reads and writes the snapshot file at a fixed path.
type Snapshot struct {
	path string
	now  func() time.Time
}

// NewSnapshot returns a Snapshot stored at path.
func NewSnapshot(path string) *Snapshot {
	return &Snapshot{path: path, now: func() time.Time { return time.Now().UTC() }}
}

// Path returns the snapshot location.
func (s *Snapshot) Path() string { return s.path }

// Write replaces the snapshot with candidates. The file is written to a
// temporary sibling, synced and renamed over the target, so readers see
// either the old or the new snapshot in full.
func (s *Snapshot) Write(ctx context.Context, runID string, candidates []model.Candidate) error {
	if err := ctx.Err(); err != nil {
		return &PersistError{Path: s.path, Op: "write", Err: err}
	}
	if candidates == nil {
		candidates = []model.Candidate{}
	}

	doc := Document{
		GeneratedAt: s.now(),
		RunID:       runID,
		Count:       len(candidates),
		Candidates:  candidates,
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return &PersistError{Path: s.path, Op: "encode", Err: err}
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &PersistError{Path: s.path, Op: "mkdir", Err: err}
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return &PersistError{Path: s.path, Op: "create", Err: err}
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return &PersistError{Path: s.path, Op: "write", Err: err}
	}
	if err := tmp.Sync(); err != nil {
		return &PersistError{Path: s.path, Op: "sync", Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &PersistError{Path: s.path, Op: "close", Err: err}
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return &PersistError{Path: s.path, Op: "rename", Err: err}
	}
	committed = true

	zap.L().Info("sink: snapshot written",
		zap.String("path", s.path),
		zap.String("run_id", runID),
		zap.Int("count", doc.Count),
	)
	return nil
}

// Load reads the snapshot. A missing file yields an empty document so the
// first run starts from an empty baseline.
func (s *Snapshot) Load(ctx context.Context) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return &Document{Candidates: []model.Candidate{}}, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sink: read snapshot %s", s.path)
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, eris.Wrapf(err, "sink: decode snapshot %s", s.path)
	}
	if doc.Candidates == nil {
		doc.Candidates = []model.Candidate{}
	}
	doc.Count = len(doc.Candidates)
	return &doc, nil
}
