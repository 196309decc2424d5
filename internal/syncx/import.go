package syncx

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kotadb/kotadb/internal/storage"
)

// ImportResult reports what an import applied.
type ImportResult struct {
	Dir            string   `json:"dir"`
	TablesImported []string `json:"tables_imported"`
	RowsImported   int      `json:"rows_imported"`
	Deletions      int      `json:"deletions"`
}

// Import replaces the sync tables with the JSONL files under dir. The whole
// operation runs in one transaction: deletions from the manifest apply
// first, then each present table is wiped and re-streamed in parent-first
// order. Any malformed or rejected row aborts the transaction with the
// offending file and line.
func (s *Syncer) Import(ctx context.Context, dir string) (*ImportResult, error) {
	result := &ImportResult{Dir: dir, TablesImported: []string{}}

	deletions, err := readDeletions(filepath.Join(dir, DeletionsFile))
	if err != nil {
		return nil, err
	}

	err = s.store.WriteTx(ctx, func(tx *sql.Tx) error {
		for _, d := range deletions {
			delErr := s.store.ApplyDeletion(ctx, tx, d.Table, d.RowID)
			if delErr != nil {
				return delErr
			}
		}

		result.Deletions = len(deletions)

		wipeErr := s.store.WipeSyncTables(ctx, tx)
		if wipeErr != nil {
			return wipeErr
		}

		for _, table := range storage.SyncTables {
			file := filepath.Join(dir, table+".jsonl")

			n, tableErr := s.importTable(ctx, tx, table, file)
			if os.IsNotExist(tableErr) {
				continue
			}

			if tableErr != nil {
				return tableErr
			}

			result.TablesImported = append(result.TablesImported, table)
			result.RowsImported += n
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("import complete",
		"dir", dir,
		"tables", len(result.TablesImported),
		"rows", result.RowsImported,
		"deletions", result.Deletions)

	return result, nil
}

// importTable streams one table's JSONL file into tx, returning the number
// of rows inserted.
func (s *Syncer) importTable(ctx context.Context, tx *sql.Tx, table, file string) (int, error) {
	f, err := os.Open(file)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	n := 0
	lineNo := 0

	for scanner.Scan() {
		lineNo++

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var row map[string]any

		err = json.Unmarshal(line, &row)
		if err != nil {
			return n, fmt.Errorf("%s line %d: %w", filepath.Base(file), lineNo, err)
		}

		err = s.store.InsertRow(ctx, tx, table, row)
		if err != nil {
			return n, fmt.Errorf("%s line %d: %w", filepath.Base(file), lineNo, err)
		}

		n++
	}

	err = scanner.Err()
	if err != nil {
		return n, fmt.Errorf("read %s: %w", filepath.Base(file), err)
	}

	return n, nil
}

// readDeletions loads the deletion manifest. A missing manifest means no
// deletions.
func readDeletions(file string) ([]storage.Deletion, error) {
	f, err := os.Open(file)
	if os.IsNotExist(err) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("open deletion manifest: %w", err)
	}
	defer f.Close()

	var out []storage.Deletion

	scanner := bufio.NewScanner(f)
	lineNo := 0

	for scanner.Scan() {
		lineNo++

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var d storage.Deletion

		err = json.Unmarshal(line, &d)
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", DeletionsFile, lineNo, err)
		}

		out = append(out, d)
	}

	return out, scanner.Err()
}
