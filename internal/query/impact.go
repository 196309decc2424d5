package query

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	diffmatchpatch "github.com/sergi/go-diff/diffmatchpatch"

	"github.com/kotadb/kotadb/internal/storage"
)

// ImpactResult describes the blast radius of editing one file: which stored
// symbols the working-tree diff touches and which files depend on it.
type ImpactResult struct {
	Path            string            `json:"path"`
	ChangedLines    int               `json:"changed_lines"`
	AffectedSymbols []string          `json:"affected_symbols"`
	Dependents      *DependencyResult `json:"dependents"`
}

// ChangeImpact diffs the indexed content of filePath against the current
// working tree and reports affected symbols plus inbound dependents to
// depth 2. An unmodified file reports zero changed lines.
func (s *Service) ChangeImpact(ctx context.Context, repoID, root, filePath string) (*ImpactResult, error) {
	normalized := NormalizePath(filePath)

	stored, err := s.store.GetFileByPath(ctx, repoID, normalized)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrFileNotFound, normalized)
	}

	if err != nil {
		return nil, err
	}

	current, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(normalized)))
	if err != nil {
		// A deleted working-tree file impacts everything that imports it.
		current = nil
	}

	changed := changedLines(stored.Content, string(current))

	symbols, err := s.store.SymbolsByFile(ctx, stored.ID)
	if err != nil {
		return nil, err
	}

	affected := []string{}

	for _, sym := range symbols {
		for line := range changed {
			if line >= sym.LineStart && line <= sym.LineEnd {
				affected = append(affected, sym.Name)

				break
			}
		}
	}

	const impactDepth = 2

	deps, err := s.Dependencies(ctx, repoID, normalized, DirectionDependents, impactDepth, true, nil)
	if err != nil {
		return nil, err
	}

	return &ImpactResult{
		Path:            normalized,
		ChangedLines:    len(changed),
		AffectedSymbols: affected,
		Dependents:      deps,
	}, nil
}

// changedLines returns the 1-based line numbers of the old text touched by
// the diff between old and new content.
func changedLines(oldText, newText string) map[int]bool {
	dmp := diffmatchpatch.New()

	a, b, lines := dmp.DiffLinesToChars(oldText, newText)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lines)

	changed := make(map[int]bool)
	line := 1

	for _, d := range diffs {
		n := countLines(d.Text)

		switch d.Type {
		case diffmatchpatch.DiffEqual:
			line += n
		case diffmatchpatch.DiffDelete:
			for i := 0; i < n; i++ {
				changed[line+i] = true
			}

			line += n
		case diffmatchpatch.DiffInsert:
			// Insertions attach to the current old-text line.
			changed[line] = true
		}
	}

	return changed
}

func countLines(text string) int {
	n := 0

	for _, r := range text {
		if r == '\n' {
			n++
		}
	}

	if len(text) > 0 && text[len(text)-1] != '\n' {
		n++
	}

	return n
}
