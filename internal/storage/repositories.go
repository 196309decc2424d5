package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// UpsertRepository ensures a repository row for fullName, returning its ID.
// An existing row keeps its ID and created_at; git_url is refreshed.
func (s *Store) UpsertRepository(ctx context.Context, fullName, gitURL string) (string, error) {
	var id string

	err := s.WriteTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx,
			`SELECT id FROM repositories WHERE full_name = ?`, fullName)

		scanErr := row.Scan(&id)

		switch {
		case scanErr == nil:
			_, execErr := tx.ExecContext(ctx,
				`UPDATE repositories SET git_url = ? WHERE id = ?`, gitURL, id)

			return execErr
		case errors.Is(scanErr, sql.ErrNoRows):
			id = uuid.NewString()

			_, execErr := tx.ExecContext(ctx,
				`INSERT INTO repositories (id, full_name, git_url, created_at) VALUES (?, ?, ?, ?)`,
				id, fullName, gitURL, nowISO())

			return execErr
		default:
			return scanErr
		}
	})
	if err != nil {
		return "", fmt.Errorf("upsert repository %q: %w", fullName, err)
	}

	return id, nil
}

// GetRepository fetches a repository by ID.
func (s *Store) GetRepository(ctx context.Context, id string) (*Repository, error) {
	return s.scanRepository(s.db.QueryRowContext(ctx,
		`SELECT id, full_name, git_url, created_at, COALESCE(last_indexed_at, '')
		 FROM repositories WHERE id = ?`, id))
}

// GetRepositoryByName fetches a repository by full_name.
func (s *Store) GetRepositoryByName(ctx context.Context, fullName string) (*Repository, error) {
	return s.scanRepository(s.db.QueryRowContext(ctx,
		`SELECT id, full_name, git_url, created_at, COALESCE(last_indexed_at, '')
		 FROM repositories WHERE full_name = ?`, fullName))
}

// GetRepositoryByPath fetches a repository whose git_url matches the local path.
func (s *Store) GetRepositoryByPath(ctx context.Context, path string) (*Repository, error) {
	return s.scanRepository(s.db.QueryRowContext(ctx,
		`SELECT id, full_name, git_url, created_at, COALESCE(last_indexed_at, '')
		 FROM repositories WHERE git_url = ?`, path))
}

// TouchRepositoryIndexed advances last_indexed_at to now. The column is
// non-decreasing because now is always past any stored value.
func (s *Store) TouchRepositoryIndexed(ctx context.Context, id string) error {
	return s.WriteTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`UPDATE repositories SET last_indexed_at = ? WHERE id = ?`, nowISO(), id)

		return err
	})
}

// ListRepositories returns all repositories ordered by full_name.
func (s *Store) ListRepositories(ctx context.Context) ([]Repository, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, full_name, git_url, created_at, COALESCE(last_indexed_at, '')
		 FROM repositories ORDER BY full_name`)
	if err != nil {
		return nil, fmt.Errorf("list repositories: %w", err)
	}
	defer rows.Close()

	var out []Repository

	for rows.Next() {
		var r Repository

		err = rows.Scan(&r.ID, &r.FullName, &r.GitURL, &r.CreatedAt, &r.LastIndexedAt)
		if err != nil {
			return nil, err
		}

		out = append(out, r)
	}

	return out, rows.Err()
}

func (s *Store) scanRepository(row *sql.Row) (*Repository, error) {
	var r Repository

	err := row.Scan(&r.ID, &r.FullName, &r.GitURL, &r.CreatedAt, &r.LastIndexedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}

	if err != nil {
		return nil, err
	}

	return &r, nil
}
