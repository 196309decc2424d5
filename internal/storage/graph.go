package storage

import (
	"context"
	"fmt"
)

// Edge is one resolved file-level dependency edge, keyed by path.
type Edge struct {
	SourcePath string
	TargetPath string
	Type       string
}

// DependencyEdges returns all resolved reference edges for a repository,
// optionally filtered by reference type. Unresolved references (NULL target)
// never appear in the graph.
func (s *Store) DependencyEdges(ctx context.Context, repoID string, refTypes []string) ([]Edge, error) {
	q := `SELECT f.path, r.target_file_path, r.reference_type
	      FROM refs r
	      JOIN files f ON f.id = r.file_id
	      WHERE f.repository_id = ? AND r.target_file_path IS NOT NULL`
	args := []any{repoID}

	if len(refTypes) > 0 {
		q += ` AND r.reference_type IN (` + placeholders(len(refTypes)) + `)`

		for _, t := range refTypes {
			args = append(args, t)
		}
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("dependency edges: %w", err)
	}
	defer rows.Close()

	var out []Edge

	for rows.Next() {
		var e Edge

		err = rows.Scan(&e.SourcePath, &e.TargetPath, &e.Type)
		if err != nil {
			return nil, err
		}

		out = append(out, e)
	}

	return out, rows.Err()
}

// UnresolvedImports returns the raw import specifiers of a file's references
// that could not be resolved to a repository file.
func (s *Store) UnresolvedImports(ctx context.Context, fileID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT COALESCE(json_extract(metadata, '$.importSource'), '')
		 FROM refs WHERE file_id = ? AND target_file_path IS NULL`, fileID)
	if err != nil {
		return nil, fmt.Errorf("unresolved imports: %w", err)
	}
	defer rows.Close()

	var out []string

	for rows.Next() {
		var spec string

		err = rows.Scan(&spec)
		if err != nil {
			return nil, err
		}

		if spec != "" {
			out = append(out, spec)
		}
	}

	return out, rows.Err()
}

// InboundCounts returns path -> number of distinct inbound dependents for a
// repository, used by domain key-file ranking.
func (s *Store) InboundCounts(ctx context.Context, repoID string) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT r.target_file_path, COUNT(DISTINCT r.file_id)
		 FROM refs r
		 JOIN files f ON f.id = r.file_id
		 WHERE f.repository_id = ? AND r.target_file_path IS NOT NULL
		 GROUP BY r.target_file_path`, repoID)
	if err != nil {
		return nil, fmt.Errorf("inbound counts: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)

	for rows.Next() {
		var (
			path string
			n    int
		)

		err = rows.Scan(&path, &n)
		if err != nil {
			return nil, err
		}

		out[path] = n
	}

	return out, rows.Err()
}
