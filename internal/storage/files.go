package storage

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/pierrec/lz4/v4"
)

// compressContent lz4-frames file content for the BLOB column. Empty content
// stays empty.
func compressContent(text string) ([]byte, error) {
	if text == "" {
		return nil, nil
	}

	var buf bytes.Buffer

	w := lz4.NewWriter(&buf)

	_, err := io.WriteString(w, text)
	if err != nil {
		return nil, fmt.Errorf("compress content: %w", err)
	}

	err = w.Close()
	if err != nil {
		return nil, fmt.Errorf("flush compressed content: %w", err)
	}

	return buf.Bytes(), nil
}

// decompressContent reverses compressContent.
func decompressContent(blob []byte) (string, error) {
	if len(blob) == 0 {
		return "", nil
	}

	r := lz4.NewReader(bytes.NewReader(blob))

	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("decompress content: %w", err)
	}

	return string(data), nil
}

// ReplaceFile applies the per-file indexing mutation atomically: upsert the
// file row, drop its previous symbols and references, insert the new ones.
// A crash leaves either the old state or the fully new state for the file.
func (s *Store) ReplaceFile(ctx context.Context, f File, syms []Symbol, refs []Reference) (string, error) {
	blob, err := compressContent(f.Content)
	if err != nil {
		return "", err
	}

	fileID := f.ID

	err = s.WriteTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx,
			`SELECT id FROM files WHERE repository_id = ? AND path = ?`,
			f.RepositoryID, f.Path)

		scanErr := row.Scan(&fileID)

		switch {
		case scanErr == nil:
			_, execErr := tx.ExecContext(ctx,
				`UPDATE files SET language = ?, content_hash = ?, size = ?, indexed_at = ?, content = ?
				 WHERE id = ?`,
				f.Language, f.ContentHash, f.Size, nowISO(), blob, fileID)
			if execErr != nil {
				return execErr
			}
		case errors.Is(scanErr, sql.ErrNoRows):
			fileID = uuid.NewString()

			_, execErr := tx.ExecContext(ctx,
				`INSERT INTO files (id, repository_id, path, language, content_hash, size, indexed_at, content)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				fileID, f.RepositoryID, f.Path, f.Language, f.ContentHash, f.Size, nowISO(), blob)
			if execErr != nil {
				return execErr
			}
		default:
			return scanErr
		}

		_, execErr := tx.ExecContext(ctx, `DELETE FROM symbols WHERE file_id = ?`, fileID)
		if execErr != nil {
			return execErr
		}

		_, execErr = tx.ExecContext(ctx, `DELETE FROM refs WHERE file_id = ?`, fileID)
		if execErr != nil {
			return execErr
		}

		for _, sym := range syms {
			_, execErr = tx.ExecContext(ctx,
				`INSERT INTO symbols (id, file_id, name, kind, signature, documentation, line_start, line_end, metadata)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				uuid.NewString(), fileID, sym.Name, sym.Kind, sym.Signature,
				sym.Documentation, sym.LineStart, sym.LineEnd, orEmptyJSON(sym.Metadata))
			if execErr != nil {
				return execErr
			}
		}

		for _, ref := range refs {
			_, execErr = tx.ExecContext(ctx,
				`INSERT INTO refs (id, file_id, target_file_path, target_symbol_name, reference_type, metadata)
				 VALUES (?, ?, ?, ?, ?, ?)`,
				uuid.NewString(), fileID, nullable(ref.TargetFilePath),
				nullable(ref.TargetSymbolName), ref.ReferenceType, orEmptyJSON(ref.Metadata))
			if execErr != nil {
				return execErr
			}
		}

		return nil
	})
	if err != nil {
		return "", fmt.Errorf("replace file %q: %w", f.Path, err)
	}

	return fileID, nil
}

// DeleteFileByPath removes a file (symbols and references cascade) and
// journals the deletion for sync. A missing file is a no-op.
func (s *Store) DeleteFileByPath(ctx context.Context, repoID, path string) error {
	return s.WriteTx(ctx, func(tx *sql.Tx) error {
		var id string

		err := tx.QueryRowContext(ctx,
			`SELECT id FROM files WHERE repository_id = ? AND path = ?`, repoID, path).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}

		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `DELETE FROM files WHERE id = ?`, id)
		if err != nil {
			return err
		}

		return journalDeletion(ctx, tx, "files", id)
	})
}

// GetFileByID fetches one file including its decompressed content.
func (s *Store) GetFileByID(ctx context.Context, id string) (*File, error) {
	return s.scanFile(s.db.QueryRowContext(ctx,
		`SELECT id, repository_id, path, language, content_hash, size, indexed_at, content
		 FROM files WHERE id = ?`, id))
}

// GetFileByPath fetches one file by (repository, path).
func (s *Store) GetFileByPath(ctx context.Context, repoID, path string) (*File, error) {
	return s.scanFile(s.db.QueryRowContext(ctx,
		`SELECT id, repository_id, path, language, content_hash, size, indexed_at, content
		 FROM files WHERE repository_id = ? AND path = ?`, repoID, path))
}

// FileHashes returns path -> content_hash for a repository, the incremental
// indexer's change key.
func (s *Store) FileHashes(ctx context.Context, repoID string) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT path, content_hash FROM files WHERE repository_id = ?`, repoID)
	if err != nil {
		return nil, fmt.Errorf("file hashes: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)

	for rows.Next() {
		var path, hash string

		err = rows.Scan(&path, &hash)
		if err != nil {
			return nil, err
		}

		out[path] = hash
	}

	return out, rows.Err()
}

// FileSummary is a content-free file listing row.
type FileSummary struct {
	ID       string
	Path     string
	Language string
}

// ListFileSummaries returns id/path/language for every file in a repository,
// ordered by path.
func (s *Store) ListFileSummaries(ctx context.Context, repoID string) ([]FileSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, path, language FROM files WHERE repository_id = ? ORDER BY path`, repoID)
	if err != nil {
		return nil, fmt.Errorf("list file summaries: %w", err)
	}
	defer rows.Close()

	var out []FileSummary

	for rows.Next() {
		var fsum FileSummary

		err = rows.Scan(&fsum.ID, &fsum.Path, &fsum.Language)
		if err != nil {
			return nil, err
		}

		out = append(out, fsum)
	}

	return out, rows.Err()
}

// CountFiles returns the number of files indexed for a repository.
func (s *Store) CountFiles(ctx context.Context, repoID string) (int, error) {
	var n int

	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM files WHERE repository_id = ?`, repoID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count files: %w", err)
	}

	return n, nil
}

// RecentFiles returns the most recently indexed files, newest first.
func (s *Store) RecentFiles(ctx context.Context, repoID string, limit int) ([]File, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, repository_id, path, language, content_hash, size, indexed_at, content
		 FROM files WHERE repository_id = ?
		 ORDER BY indexed_at DESC, path LIMIT ?`, repoID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent files: %w", err)
	}
	defer rows.Close()

	return scanFiles(rows)
}

func (s *Store) scanFile(row *sql.Row) (*File, error) {
	var (
		f    File
		blob []byte
	)

	err := row.Scan(&f.ID, &f.RepositoryID, &f.Path, &f.Language,
		&f.ContentHash, &f.Size, &f.IndexedAt, &blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}

	if err != nil {
		return nil, err
	}

	f.Content, err = decompressContent(blob)
	if err != nil {
		return nil, err
	}

	return &f, nil
}

func scanFiles(rows *sql.Rows) ([]File, error) {
	var out []File

	for rows.Next() {
		var (
			f    File
			blob []byte
		)

		err := rows.Scan(&f.ID, &f.RepositoryID, &f.Path, &f.Language,
			&f.ContentHash, &f.Size, &f.IndexedAt, &blob)
		if err != nil {
			return nil, err
		}

		f.Content, err = decompressContent(blob)
		if err != nil {
			return nil, err
		}

		out = append(out, f)
	}

	return out, rows.Err()
}

// nullable maps "" to NULL for optional text columns.
func nullable(s string) any {
	if s == "" {
		return nil
	}

	return s
}

// orEmptyJSON defaults metadata columns to an empty JSON object.
func orEmptyJSON(s string) string {
	if s == "" {
		return "{}"
	}

	return s
}
