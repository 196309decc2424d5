// Package checkpoint persists per-issue workflow state so interrupted runs
// resume at the first incomplete phase.
package checkpoint

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/kotadb/kotadb/pkg/persist"
)

// DefaultDir is the checkpoint directory relative to the automation root.
const DefaultDir = "automation/.data/checkpoints"

// Checkpoint captures orchestrator progress for one issue.
type Checkpoint struct {
	IssueNumber     int      `json:"issueNumber"`
	WorkflowID      string   `json:"workflowId"`
	CompletedPhases []string `json:"completedPhases"`
	Domain          string   `json:"domain,omitempty"`
	IssueType       string   `json:"issueType,omitempty"`
	SpecPath        string   `json:"specPath,omitempty"`
	FilesModified   []string `json:"filesModified,omitempty"`
	WorktreePath    string   `json:"worktreePath,omitempty"`
	BranchName      string   `json:"branchName,omitempty"`
	CreatedAt       string   `json:"createdAt"`
	UpdatedAt       string   `json:"updatedAt"`
}

// Completed reports whether a phase already ran.
func (c *Checkpoint) Completed(phase string) bool {
	return slices.Contains(c.CompletedPhases, phase)
}

// MarkCompleted appends a phase if not yet recorded.
func (c *Checkpoint) MarkCompleted(phase string) {
	if !c.Completed(phase) {
		c.CompletedPhases = append(c.CompletedPhases, phase)
	}
}

// Store reads and writes per-issue checkpoint files.
type Store struct {
	dir   string
	codec persist.Codec
}

// NewStore creates a checkpoint store under dir.
func NewStore(dir string) *Store {
	return &Store{dir: dir, codec: persist.NewJSONCodec()}
}

func basename(issue int) string {
	return fmt.Sprintf("%d", issue)
}

// Save writes the checkpoint atomically, refreshing UpdatedAt.
func (s *Store) Save(c *Checkpoint) error {
	now := time.Now().UTC().Format(time.RFC3339)

	if c.CreatedAt == "" {
		c.CreatedAt = now
	}

	c.UpdatedAt = now

	err := persist.SaveState(s.dir, basename(c.IssueNumber), s.codec, c)
	if err != nil {
		return fmt.Errorf("save checkpoint for issue %d: %w", c.IssueNumber, err)
	}

	return nil
}

// Load returns the checkpoint for an issue, or nil when none exists.
func (s *Store) Load(issue int) (*Checkpoint, error) {
	path := filepath.Join(s.dir, basename(issue)+s.codec.Extension())

	_, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("stat checkpoint for issue %d: %w", issue, err)
	}

	var c Checkpoint

	err = persist.LoadState(s.dir, basename(issue), s.codec, &c)
	if err != nil {
		return nil, fmt.Errorf("load checkpoint for issue %d: %w", issue, err)
	}

	return &c, nil
}

// Delete removes the checkpoint after a successful run; missing is a no-op.
func (s *Store) Delete(issue int) error {
	err := persist.RemoveState(s.dir, basename(issue), s.codec)
	if err != nil {
		return fmt.Errorf("delete checkpoint for issue %d: %w", issue, err)
	}

	return nil
}
