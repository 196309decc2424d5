package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// SymbolsByFile returns symbols for a file ordered by line_start.
func (s *Store) SymbolsByFile(ctx context.Context, fileID string) ([]Symbol, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, file_id, name, kind, COALESCE(signature, ''), COALESCE(documentation, ''),
		        line_start, line_end, metadata
		 FROM symbols WHERE file_id = ? ORDER BY line_start`, fileID)
	if err != nil {
		return nil, fmt.Errorf("symbols by file: %w", err)
	}
	defer rows.Close()

	return scanSymbols(rows)
}

// SearchSymbols returns symbols whose name contains term, ordered
// lexicographically by name. Kinds filters when non-empty; exportedOnly
// keeps symbols whose metadata marks them exported.
func (s *Store) SearchSymbols(ctx context.Context, term string, kinds []string, exportedOnly bool, repoID string, limit int) ([]Symbol, error) {
	q := `SELECT s.id, s.file_id, s.name, s.kind, COALESCE(s.signature, ''),
	             COALESCE(s.documentation, ''), s.line_start, s.line_end, s.metadata
	      FROM symbols s
	      JOIN files f ON f.id = s.file_id
	      WHERE s.name LIKE '%' || ? || '%' ESCAPE '\'`
	args := []any{escapeLike(term)}

	if repoID != "" {
		q += ` AND f.repository_id = ?`

		args = append(args, repoID)
	}

	if len(kinds) > 0 {
		q += ` AND s.kind IN (` + placeholders(len(kinds)) + `)`

		for _, k := range kinds {
			args = append(args, k)
		}
	}

	if exportedOnly {
		q += ` AND json_extract(s.metadata, '$.is_exported') = 1`
	}

	q += ` ORDER BY s.name LIMIT ?`

	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("search symbols: %w", err)
	}
	defer rows.Close()

	return scanSymbols(rows)
}

// SymbolHit pairs a symbol with the path of its containing file.
type SymbolHit struct {
	Symbol
	FilePath string `json:"file_path"`
}

// SearchSymbolHits is SearchSymbols with the containing file path attached
// to each row.
func (s *Store) SearchSymbolHits(ctx context.Context, term string, kinds []string, exportedOnly bool, repoID string, limit int) ([]SymbolHit, error) {
	q := `SELECT s.id, s.file_id, s.name, s.kind, COALESCE(s.signature, ''),
	             COALESCE(s.documentation, ''), s.line_start, s.line_end, s.metadata, f.path
	      FROM symbols s
	      JOIN files f ON f.id = s.file_id
	      WHERE s.name LIKE '%' || ? || '%' ESCAPE '\'`
	args := []any{escapeLike(term)}

	if repoID != "" {
		q += ` AND f.repository_id = ?`

		args = append(args, repoID)
	}

	if len(kinds) > 0 {
		q += ` AND s.kind IN (` + placeholders(len(kinds)) + `)`

		for _, k := range kinds {
			args = append(args, k)
		}
	}

	if exportedOnly {
		q += ` AND json_extract(s.metadata, '$.is_exported') = 1`
	}

	q += ` ORDER BY s.name LIMIT ?`

	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("search symbols: %w", err)
	}
	defer rows.Close()

	var out []SymbolHit

	for rows.Next() {
		var hit SymbolHit

		err = rows.Scan(&hit.ID, &hit.FileID, &hit.Name, &hit.Kind, &hit.Signature,
			&hit.Documentation, &hit.LineStart, &hit.LineEnd, &hit.Metadata, &hit.FilePath)
		if err != nil {
			return nil, err
		}

		out = append(out, hit)
	}

	return out, rows.Err()
}

// CountSymbols returns the symbol count for a repository.
func (s *Store) CountSymbols(ctx context.Context, repoID string) (int, error) {
	var n int

	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM symbols s JOIN files f ON f.id = s.file_id
		 WHERE f.repository_id = ?`, repoID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count symbols: %w", err)
	}

	return n, nil
}

// ReferencesByFile returns outbound references for a source file.
func (s *Store) ReferencesByFile(ctx context.Context, fileID string) ([]Reference, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, file_id, COALESCE(target_file_path, ''), COALESCE(target_symbol_name, ''),
		        reference_type, metadata
		 FROM refs WHERE file_id = ?`, fileID)
	if err != nil {
		return nil, fmt.Errorf("references by file: %w", err)
	}
	defer rows.Close()

	return scanReferences(rows)
}

// ReferencesToPath returns references that resolved to the given target path
// within a repository. Used by the incremental indexer to re-resolve inbound
// edges when a file changes or disappears.
func (s *Store) ReferencesToPath(ctx context.Context, repoID, path string) ([]Reference, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT r.id, r.file_id, COALESCE(r.target_file_path, ''), COALESCE(r.target_symbol_name, ''),
		        r.reference_type, r.metadata
		 FROM refs r
		 JOIN files f ON f.id = r.file_id
		 WHERE f.repository_id = ? AND r.target_file_path = ?`, repoID, path)
	if err != nil {
		return nil, fmt.Errorf("references to path: %w", err)
	}
	defer rows.Close()

	return scanReferences(rows)
}

// UpdateReferenceTargets rewrites target_file_path for a set of reference
// IDs in one transaction. Empty newPath resolves to NULL (unresolved).
func (s *Store) UpdateReferenceTargets(ctx context.Context, targets map[string]string) error {
	if len(targets) == 0 {
		return nil
	}

	return s.WriteTx(ctx, func(tx *sql.Tx) error {
		for id, newPath := range targets {
			_, err := tx.ExecContext(ctx,
				`UPDATE refs SET target_file_path = ? WHERE id = ?`, nullable(newPath), id)
			if err != nil {
				return err
			}
		}

		return nil
	})
}

// CountReferences returns the reference count for a repository.
func (s *Store) CountReferences(ctx context.Context, repoID string) (int, error) {
	var n int

	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM refs r JOIN files f ON f.id = r.file_id
		 WHERE f.repository_id = ?`, repoID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count references: %w", err)
	}

	return n, nil
}

func scanSymbols(rows *sql.Rows) ([]Symbol, error) {
	var out []Symbol

	for rows.Next() {
		var sym Symbol

		err := rows.Scan(&sym.ID, &sym.FileID, &sym.Name, &sym.Kind, &sym.Signature,
			&sym.Documentation, &sym.LineStart, &sym.LineEnd, &sym.Metadata)
		if err != nil {
			return nil, err
		}

		out = append(out, sym)
	}

	return out, rows.Err()
}

func scanReferences(rows *sql.Rows) ([]Reference, error) {
	var out []Reference

	for rows.Next() {
		var ref Reference

		err := rows.Scan(&ref.ID, &ref.FileID, &ref.TargetFilePath, &ref.TargetSymbolName,
			&ref.ReferenceType, &ref.Metadata)
		if err != nil {
			return nil, err
		}

		out = append(out, ref)
	}

	return out, rows.Err()
}

// escapeLike backslash-escapes LIKE wildcards so user input matches
// literally. Queries using it must carry ESCAPE '\'.
func escapeLike(term string) string {
	term = strings.ReplaceAll(term, `\`, `\\`)
	term = strings.ReplaceAll(term, `%`, `\%`)

	return strings.ReplaceAll(term, `_`, `\_`)
}

// placeholders builds "?, ?, ?" for n parameters.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}

	out := "?"
	for i := 1; i < n; i++ {
		out += ", ?"
	}

	return out
}
