// Package syncx implements hash-gated JSONL export and transactional import
// of the store's sync tables, for git-based sync between machines.
package syncx

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/kotadb/kotadb/internal/storage"
)

// DefaultExportDir is the export location relative to the working directory.
const DefaultExportDir = ".kotadb/export"

// DeletionsFile is the deletion-manifest filename inside the export dir.
const DeletionsFile = "deletions.jsonl"

// Syncer performs exports and imports against one store.
type Syncer struct {
	store  *storage.Store
	logger *slog.Logger
}

// New creates a Syncer.
func New(store *storage.Store, logger *slog.Logger) *Syncer {
	if logger == nil {
		logger = slog.Default()
	}

	return &Syncer{store: store, logger: logger}
}

// ExportResult reports which tables were written or skipped.
type ExportResult struct {
	Dir            string   `json:"dir"`
	TablesExported []string `json:"tables_exported"`
	TablesSkipped  []string `json:"tables_skipped"`
	Deletions      int      `json:"deletions"`
}

// Export writes one JSONL file per changed table plus the deletion manifest.
// A table whose content hash matches the last export is skipped unless force
// is set. The deletion journal is cleared once the manifest is written.
func (s *Syncer) Export(ctx context.Context, dir string, force bool) (*ExportResult, error) {
	err := os.MkdirAll(dir, 0o755)
	if err != nil {
		return nil, fmt.Errorf("create export dir: %w", err)
	}

	result := &ExportResult{
		Dir:            dir,
		TablesExported: []string{},
		TablesSkipped:  []string{},
	}

	for _, table := range storage.SyncTables {
		rows, dumpErr := s.store.DumpTable(ctx, table)
		if dumpErr != nil {
			return nil, dumpErr
		}

		lines, hash, encErr := encodeRows(rows)
		if encErr != nil {
			return nil, fmt.Errorf("encode %s: %w", table, encErr)
		}

		previous, hashErr := s.store.ExportHash(ctx, table)
		if hashErr != nil {
			return nil, hashErr
		}

		if !force && previous == hash {
			result.TablesSkipped = append(result.TablesSkipped, table)

			continue
		}

		writeErr := os.WriteFile(filepath.Join(dir, table+".jsonl"), lines, 0o644)
		if writeErr != nil {
			return nil, fmt.Errorf("write %s.jsonl: %w", table, writeErr)
		}

		setErr := s.store.SetExportHash(ctx, table, hash)
		if setErr != nil {
			return nil, setErr
		}

		result.TablesExported = append(result.TablesExported, table)
	}

	deletions, err := s.store.PendingDeletions(ctx)
	if err != nil {
		return nil, err
	}

	manifest := make([]byte, 0)

	for _, d := range deletions {
		line, encErr := json.Marshal(d)
		if encErr != nil {
			return nil, fmt.Errorf("encode deletion: %w", encErr)
		}

		manifest = append(manifest, line...)
		manifest = append(manifest, '\n')
	}

	err = os.WriteFile(filepath.Join(dir, DeletionsFile), manifest, 0o644)
	if err != nil {
		return nil, fmt.Errorf("write deletion manifest: %w", err)
	}

	err = s.store.ClearDeletions(ctx)
	if err != nil {
		return nil, err
	}

	result.Deletions = len(deletions)

	s.logger.Info("export complete",
		"dir", dir,
		"exported", len(result.TablesExported),
		"skipped", len(result.TablesSkipped),
		"deletions", result.Deletions)

	return result, nil
}

// encodeRows renders rows as JSONL and returns the stable content hash used
// for export gating. Maps marshal with sorted keys, and DumpTable orders
// rows by primary key, so equal table contents always hash equal.
func encodeRows(rows []map[string]any) ([]byte, string, error) {
	var out []byte

	for _, row := range rows {
		line, err := json.Marshal(row)
		if err != nil {
			return nil, "", err
		}

		out = append(out, line...)
		out = append(out, '\n')
	}

	sum := sha256.Sum256(out)

	return out, hex.EncodeToString(sum[:]), nil
}
