package storage

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
)

// SyncTables is the closed set of tables participating in JSONL sync, in
// import order (parents before children).
var SyncTables = []string{
	"repositories",
	"files",
	"symbols",
	"refs",
	"decisions",
	"failures",
	"patterns",
	"insights",
	"workflow_contexts",
}

// syncTableSet guards against identifier injection: only names from
// SyncTables may reach SQL text.
var syncTableSet = func() map[string]bool {
	set := make(map[string]bool, len(SyncTables))
	for _, t := range SyncTables {
		set[t] = true
	}

	return set
}()

// ErrUnknownTable rejects table names outside the sync set.
var ErrUnknownTable = fmt.Errorf("unknown sync table")

// DumpTable returns every row of a sync table as ordered key/value maps,
// sorted by primary key for stable export hashing. File content is
// decompressed to text so the JSONL export is portable.
func (s *Store) DumpTable(ctx context.Context, table string) ([]map[string]any, error) {
	if !syncTableSet[table] {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT * FROM `+table)
	if err != nil {
		return nil, fmt.Errorf("dump %s: %w", table, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []map[string]any

	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))

		for i := range vals {
			ptrs[i] = &vals[i]
		}

		err = rows.Scan(ptrs...)
		if err != nil {
			return nil, err
		}

		row := make(map[string]any, len(cols))

		for i, col := range cols {
			switch v := vals[i].(type) {
			case []byte:
				if table == "files" && col == "content" {
					text, decErr := decompressContent(v)
					if decErr != nil {
						return nil, decErr
					}

					row[col] = text
				} else {
					row[col] = string(v)
				}
			default:
				row[col] = v
			}
		}

		out = append(out, row)
	}

	err = rows.Err()
	if err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool {
		a, _ := out[i]["id"].(string)
		b, _ := out[j]["id"].(string)

		return a < b
	})

	return out, nil
}

// InsertRow inserts one imported row into a sync table inside tx. File
// content is re-compressed on the way in.
func (s *Store) InsertRow(ctx context.Context, tx *sql.Tx, table string, row map[string]any) error {
	if !syncTableSet[table] {
		return fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}

	cols := make([]string, 0, len(row))
	for col := range row {
		cols = append(cols, col)
	}

	sort.Strings(cols)

	args := make([]any, 0, len(cols))

	colList := ""

	for i, col := range cols {
		if i > 0 {
			colList += ", "
		}

		colList += col

		val := row[col]

		if table == "files" && col == "content" {
			text, _ := val.(string)

			blob, err := compressContent(text)
			if err != nil {
				return err
			}

			val = blob
		}

		args = append(args, val)
	}

	_, err := tx.ExecContext(ctx,
		`INSERT INTO `+table+` (`+colList+`) VALUES (`+placeholders(len(cols))+`)`, args...)
	if err != nil {
		return fmt.Errorf("insert into %s: %w", table, err)
	}

	return nil
}

// WipeSyncTables deletes all rows from the sync tables inside tx, children
// first. Used by the importer before streaming rows.
func (s *Store) WipeSyncTables(ctx context.Context, tx *sql.Tx) error {
	for i := len(SyncTables) - 1; i >= 0; i-- {
		_, err := tx.ExecContext(ctx, `DELETE FROM `+SyncTables[i])
		if err != nil {
			return fmt.Errorf("wipe %s: %w", SyncTables[i], err)
		}
	}

	return nil
}

// ExportHash returns the recorded content hash for a table, or "" when the
// table has never been exported.
func (s *Store) ExportHash(ctx context.Context, table string) (string, error) {
	var hash string

	err := s.db.QueryRowContext(ctx,
		`SELECT content_hash FROM export_hashes WHERE table_name = ?`, table).Scan(&hash)
	if err == sql.ErrNoRows {
		return "", nil
	}

	if err != nil {
		return "", fmt.Errorf("export hash for %s: %w", table, err)
	}

	return hash, nil
}

// SetExportHash records the content hash for a table after a successful export.
func (s *Store) SetExportHash(ctx context.Context, table, hash string) error {
	return s.WriteTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO export_hashes (table_name, content_hash, exported_at) VALUES (?, ?, ?)
			 ON CONFLICT(table_name) DO UPDATE SET content_hash = excluded.content_hash,
			                                       exported_at = excluded.exported_at`,
			table, hash, nowISO())

		return err
	})
}

// Deletion is one journaled primary-key deletion since the last export.
type Deletion struct {
	Table     string `json:"table"`
	RowID     string `json:"row_id"`
	DeletedAt string `json:"deleted_at"`
}

// PendingDeletions returns the deletion journal.
func (s *Store) PendingDeletions(ctx context.Context) ([]Deletion, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT table_name, row_id, deleted_at FROM sync_deletions ORDER BY deleted_at`)
	if err != nil {
		return nil, fmt.Errorf("pending deletions: %w", err)
	}
	defer rows.Close()

	var out []Deletion

	for rows.Next() {
		var d Deletion

		err = rows.Scan(&d.Table, &d.RowID, &d.DeletedAt)
		if err != nil {
			return nil, err
		}

		out = append(out, d)
	}

	return out, rows.Err()
}

// ClearDeletions empties the deletion journal after a successful export.
func (s *Store) ClearDeletions(ctx context.Context) error {
	return s.WriteTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `DELETE FROM sync_deletions`)

		return err
	})
}

// ApplyDeletion deletes a row by primary key inside tx, for the importer.
func (s *Store) ApplyDeletion(ctx context.Context, tx *sql.Tx, table, rowID string) error {
	if !syncTableSet[table] {
		return fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}

	_, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE id = ?`, rowID)
	if err != nil {
		return fmt.Errorf("apply deletion %s/%s: %w", table, rowID, err)
	}

	return nil
}

// journalDeletion records a deleted primary key for the next export.
func journalDeletion(ctx context.Context, tx *sql.Tx, table, rowID string) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO sync_deletions (table_name, row_id, deleted_at) VALUES (?, ?, ?)
		 ON CONFLICT(table_name, row_id) DO UPDATE SET deleted_at = excluded.deleted_at`,
		table, rowID, nowISO())

	return err
}
