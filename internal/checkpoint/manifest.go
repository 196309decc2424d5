package checkpoint

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/kotadb/kotadb/pkg/persist"
)

// DefaultManifestDir holds the run manifest relative to the automation root.
const DefaultManifestDir = "automation/.data"

// manifestBasename is the manifest filename without extension.
const manifestBasename = "manifest"

// Run statuses recorded in the manifest.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// RunRecord is one issue's entry in the run manifest.
type RunRecord struct {
	IssueNumber  int     `json:"issueNumber"`
	Status       string  `json:"status"`
	StartedAt    string  `json:"startedAt"`
	CompletedAt  string  `json:"completedAt,omitempty"`
	WorktreePath string  `json:"worktreePath,omitempty"`
	Branch       string  `json:"branch,omitempty"`
	CurrentPhase string  `json:"currentPhase,omitempty"`
	PRURL        string  `json:"prUrl,omitempty"`
	CostUSD      float64 `json:"costUsd,omitempty"`
	DurationMS   int64   `json:"durationMs,omitempty"`
	ErrorMessage string  `json:"errorMessage,omitempty"`
}

// Manifest tracks run records across concurrent workflows. Updates are
// serialized and each one rewrites the file atomically.
type Manifest struct {
	dir   string
	codec persist.Codec

	mu sync.Mutex
}

// NewManifest creates a manifest store under dir.
func NewManifest(dir string) *Manifest {
	return &Manifest{dir: dir, codec: persist.NewJSONCodec()}
}

// Upsert replaces the record for the issue, or appends a new one.
func (m *Manifest) Upsert(rec RunRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	records, err := m.load()
	if err != nil {
		return err
	}

	replaced := false

	for i := range records {
		if records[i].IssueNumber == rec.IssueNumber {
			records[i] = rec
			replaced = true

			break
		}
	}

	if !replaced {
		records = append(records, rec)
	}

	err = persist.SaveState(m.dir, manifestBasename, m.codec, records)
	if err != nil {
		return fmt.Errorf("save run manifest: %w", err)
	}

	return nil
}

// Records returns the manifest contents.
func (m *Manifest) Records() ([]RunRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.load()
}

func (m *Manifest) load() ([]RunRecord, error) {
	path := filepath.Join(m.dir, manifestBasename+m.codec.Extension())

	_, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("stat run manifest: %w", err)
	}

	var records []RunRecord

	err = persist.LoadState(m.dir, manifestBasename, m.codec, &records)
	if err != nil {
		return nil, fmt.Errorf("load run manifest: %w", err)
	}

	return records, nil
}
