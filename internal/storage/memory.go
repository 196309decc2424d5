package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// RecordDecision inserts a decision and returns its ID.
func (s *Store) RecordDecision(ctx context.Context, d Decision) (string, error) {
	id := uuid.NewString()
	now := nowISO()

	err := s.WriteTx(ctx, func(tx *sql.Tx) error {
		_, execErr := tx.ExecContext(ctx,
			`INSERT INTO decisions (id, repository_id, title, context, decision, scope,
			                        rationale, alternatives, related_files, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, nullable(d.RepositoryID), d.Title, d.Context, d.Decision, d.Scope,
			nullable(d.Rationale), marshalList(d.Alternatives), marshalList(d.RelatedFiles), now, now)

		return execErr
	})
	if err != nil {
		return "", fmt.Errorf("record decision: %w", err)
	}

	return id, nil
}

// RecordFailure inserts a failure and returns its ID.
func (s *Store) RecordFailure(ctx context.Context, f Failure) (string, error) {
	id := uuid.NewString()

	err := s.WriteTx(ctx, func(tx *sql.Tx) error {
		_, execErr := tx.ExecContext(ctx,
			`INSERT INTO failures (id, repository_id, title, problem, approach,
			                       failure_reason, related_files, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			id, nullable(f.RepositoryID), f.Title, f.Problem, f.Approach,
			f.FailureReason, marshalList(f.RelatedFiles), nowISO())

		return execErr
	})
	if err != nil {
		return "", fmt.Errorf("record failure: %w", err)
	}

	return id, nil
}

// UpsertPattern inserts or replaces a pattern by its unique pattern_type.
func (s *Store) UpsertPattern(ctx context.Context, p Pattern) (string, error) {
	id := uuid.NewString()

	err := s.WriteTx(ctx, func(tx *sql.Tx) error {
		var existing string

		scanErr := tx.QueryRowContext(ctx,
			`SELECT id FROM patterns WHERE pattern_type = ?`, p.PatternType).Scan(&existing)

		switch scanErr {
		case nil:
			id = existing

			_, execErr := tx.ExecContext(ctx,
				`UPDATE patterns SET repository_id = ?, file_path = ?, description = ?, example = ?
				 WHERE id = ?`,
				nullable(p.RepositoryID), nullable(p.FilePath), p.Description, nullable(p.Example), id)

			return execErr
		case sql.ErrNoRows:
			_, execErr := tx.ExecContext(ctx,
				`INSERT INTO patterns (id, repository_id, pattern_type, file_path, description, example, created_at)
				 VALUES (?, ?, ?, ?, ?, ?, ?)`,
				id, nullable(p.RepositoryID), p.PatternType, nullable(p.FilePath),
				p.Description, nullable(p.Example), nowISO())

			return execErr
		default:
			return scanErr
		}
	})
	if err != nil {
		return "", fmt.Errorf("upsert pattern %q: %w", p.PatternType, err)
	}

	return id, nil
}

// RecordInsight inserts an insight and returns its ID.
func (s *Store) RecordInsight(ctx context.Context, in Insight) (string, error) {
	id := uuid.NewString()

	err := s.WriteTx(ctx, func(tx *sql.Tx) error {
		_, execErr := tx.ExecContext(ctx,
			`INSERT INTO insights (id, session_id, content, insight_type, related_file, created_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			id, nullable(in.SessionID), in.Content, in.InsightType,
			nullable(in.RelatedFile), nowISO())

		return execErr
	})
	if err != nil {
		return "", fmt.Errorf("record insight: %w", err)
	}

	return id, nil
}

// RankedDecision is a decision with its FTS relevance. Relevance is the
// absolute bm25 score: smaller means more relevant; callers must rely only
// on the ordering, not the exact value.
type RankedDecision struct {
	Decision
	Relevance float64 `json:"relevance"`
}

// SearchDecisions runs a bm25-ranked full-text query over decisions.
func (s *Store) SearchDecisions(ctx context.Context, query, repoID string, limit int) ([]RankedDecision, error) {
	q := `SELECT d.id, COALESCE(d.repository_id, ''), d.title, d.context, d.decision, d.scope,
	             COALESCE(d.rationale, ''), d.alternatives, d.related_files,
	             d.created_at, d.updated_at, ABS(bm25(decisions_fts)) AS relevance
	      FROM decisions_fts
	      JOIN decisions d ON d.rowid = decisions_fts.rowid
	      WHERE decisions_fts MATCH ?`
	args := []any{ftsQuote(query)}

	if repoID != "" {
		q += ` AND d.repository_id = ?`

		args = append(args, repoID)
	}

	q += ` ORDER BY bm25(decisions_fts) LIMIT ?`

	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("search decisions: %w", err)
	}
	defer rows.Close()

	var out []RankedDecision

	for rows.Next() {
		var (
			d                 RankedDecision
			alternatives, rel string
		)

		err = rows.Scan(&d.ID, &d.RepositoryID, &d.Title, &d.Context, &d.Decision.Decision,
			&d.Scope, &d.Rationale, &alternatives, &rel, &d.CreatedAt, &d.UpdatedAt, &d.Relevance)
		if err != nil {
			return nil, err
		}

		d.Alternatives = unmarshalList(alternatives)
		d.RelatedFiles = unmarshalList(rel)

		out = append(out, d)
	}

	return out, rows.Err()
}

// RankedFailure is a failure with its FTS relevance.
type RankedFailure struct {
	Failure
	Relevance float64 `json:"relevance"`
}

// SearchFailures runs a bm25-ranked full-text query over failures.
func (s *Store) SearchFailures(ctx context.Context, query, repoID string, limit int) ([]RankedFailure, error) {
	q := `SELECT fl.id, COALESCE(fl.repository_id, ''), fl.title, fl.problem, fl.approach,
	             fl.failure_reason, fl.related_files, fl.created_at,
	             ABS(bm25(failures_fts)) AS relevance
	      FROM failures_fts
	      JOIN failures fl ON fl.rowid = failures_fts.rowid
	      WHERE failures_fts MATCH ?`
	args := []any{ftsQuote(query)}

	if repoID != "" {
		q += ` AND fl.repository_id = ?`

		args = append(args, repoID)
	}

	q += ` ORDER BY bm25(failures_fts) LIMIT ?`

	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("search failures: %w", err)
	}
	defer rows.Close()

	var out []RankedFailure

	for rows.Next() {
		var (
			f   RankedFailure
			rel string
		)

		err = rows.Scan(&f.ID, &f.RepositoryID, &f.Title, &f.Problem, &f.Approach,
			&f.FailureReason, &rel, &f.CreatedAt, &f.Relevance)
		if err != nil {
			return nil, err
		}

		f.RelatedFiles = unmarshalList(rel)

		out = append(out, f)
	}

	return out, rows.Err()
}

// SearchPatterns returns patterns most-recent-first with optional filters.
func (s *Store) SearchPatterns(ctx context.Context, patternType, filePath, repoID string, limit int) ([]Pattern, error) {
	q := `SELECT id, COALESCE(repository_id, ''), pattern_type, COALESCE(file_path, ''),
	             description, COALESCE(example, ''), created_at
	      FROM patterns WHERE 1=1`

	var args []any

	if patternType != "" {
		q += ` AND pattern_type LIKE ? || '%' ESCAPE '\'`

		args = append(args, escapeLike(patternType))
	}

	if filePath != "" {
		q += ` AND file_path = ?`

		args = append(args, filePath)
	}

	if repoID != "" {
		q += ` AND repository_id = ?`

		args = append(args, repoID)
	}

	q += ` ORDER BY created_at DESC LIMIT ?`

	// LIMIT -1 disables the cap in sqlite.
	if limit <= 0 {
		limit = -1
	}

	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("search patterns: %w", err)
	}
	defer rows.Close()

	var out []Pattern

	for rows.Next() {
		var p Pattern

		err = rows.Scan(&p.ID, &p.RepositoryID, &p.PatternType, &p.FilePath,
			&p.Description, &p.Example, &p.CreatedAt)
		if err != nil {
			return nil, err
		}

		out = append(out, p)
	}

	return out, rows.Err()
}

// ftsQuote wraps the query in double quotes so user text is treated as a
// phrase rather than FTS5 query syntax.
func ftsQuote(query string) string {
	return `"` + query + `"`
}

func marshalList(items []string) string {
	if items == nil {
		items = []string{}
	}

	data, err := json.Marshal(items)
	if err != nil {
		return "[]"
	}

	return string(data)
}

func unmarshalList(data string) []string {
	var out []string

	err := json.Unmarshal([]byte(data), &out)
	if err != nil {
		return []string{}
	}

	return out
}
