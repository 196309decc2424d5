package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// FileMatch is one search_files hit. PathMatch marks hits whose path
// contains the term; those rank above pure content matches.
type FileMatch struct {
	File
	PathMatch bool
}

// SearchFiles scans a repository's files for term in path or content.
// Ranking: path matches first, ties broken by indexed_at descending then
// path. Content is matched case-insensitively after decompression.
func (s *Store) SearchFiles(ctx context.Context, term, repoID string, limit int) ([]FileMatch, error) {
	q := `SELECT id, repository_id, path, language, content_hash, size, indexed_at, content
	      FROM files`

	var args []any

	if repoID != "" {
		q += ` WHERE repository_id = ?`

		args = append(args, repoID)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("search files: %w", err)
	}
	defer rows.Close()

	files, err := scanFiles(rows)
	if err != nil {
		return nil, err
	}

	lower := strings.ToLower(term)

	var out []FileMatch

	for _, f := range files {
		pathMatch := strings.Contains(strings.ToLower(f.Path), lower)
		contentMatch := strings.Contains(strings.ToLower(f.Content), lower)

		if !pathMatch && !contentMatch {
			continue
		}

		out = append(out, FileMatch{File: f, PathMatch: pathMatch})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].PathMatch != out[j].PathMatch {
			return out[i].PathMatch
		}

		if out[i].IndexedAt != out[j].IndexedAt {
			return out[i].IndexedAt > out[j].IndexedAt
		}

		return out[i].Path < out[j].Path
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}

	return out, nil
}
