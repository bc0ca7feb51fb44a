// Package artifacts writes the files a run leaves behind for CI to upload:
// the gate decision, the analysis snapshot and the rendered report.
package artifacts

import (
	"fmt"
	"path/filepath"

	"github.com/lucasnoah/qualitygate/internal/gate"
	"github.com/lucasnoah/qualitygate/internal/sonar"
)

// File names inside the output directory.
const (
	DecisionFile = "gate-result.json"
	SnapshotFile = "snapshot.json"
	ReportFile   = "report.md"
)

// Store manages run artifacts in one directory. Each write replaces the
// previous run's file.
type Store struct {
	dir string
}

// NewStore creates a Store rooted at dir. The directory is created on
// first write.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the store's directory.
func (s *Store) Dir() string {
	return s.dir
}

// Path returns the full path of a file in the store.
func (s *Store) Path(name string) string {
	return filepath.Join(s.dir, name)
}

// SaveDecision writes the gate decision.
func (s *Store) SaveDecision(d *gate.Decision) error {
	if err := WriteJSON(s.Path(DecisionFile), d); err != nil {
		return fmt.Errorf("save decision: %w", err)
	}
	return nil
}

// SaveSnapshot writes the analysis snapshot.
func (s *Store) SaveSnapshot(snap *sonar.Snapshot) error {
	if err := WriteJSON(s.Path(SnapshotFile), snap); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// SaveReport writes the rendered markdown report.
func (s *Store) SaveReport(markdown string) error {
	if err := WriteAtomic(s.Path(ReportFile), []byte(markdown)); err != nil {
		return fmt.Errorf("save report: %w", err)
	}
	return nil
}

// LoadSnapshot reads a snapshot written by SaveSnapshot or `sonar fetch --output`.
func LoadSnapshot(path string) (*sonar.Snapshot, error) {
	var snap sonar.Snapshot
	if err := ReadJSON(path, &snap); err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	return &snap, nil
}
