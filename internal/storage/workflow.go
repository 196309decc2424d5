package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// UpsertWorkflowContext stores a curated phase summary for a workflow,
// replacing any existing row for the same (workflow_id, phase) pair.
func (s *Store) UpsertWorkflowContext(ctx context.Context, workflowID, phase, data string) (string, error) {
	id := uuid.NewString()
	now := nowISO()

	err := s.WriteTx(ctx, func(tx *sql.Tx) error {
		var existing string

		scanErr := tx.QueryRowContext(ctx,
			`SELECT id FROM workflow_contexts WHERE workflow_id = ? AND phase = ?`,
			workflowID, phase).Scan(&existing)

		switch scanErr {
		case nil:
			id = existing

			_, execErr := tx.ExecContext(ctx,
				`UPDATE workflow_contexts SET context_data = ?, updated_at = ? WHERE id = ?`,
				data, now, id)

			return execErr
		case sql.ErrNoRows:
			_, execErr := tx.ExecContext(ctx,
				`INSERT INTO workflow_contexts (id, workflow_id, phase, context_data, created_at, updated_at)
				 VALUES (?, ?, ?, ?, ?, ?)`,
				id, workflowID, phase, data, now, now)

			return execErr
		default:
			return scanErr
		}
	})
	if err != nil {
		return "", fmt.Errorf("upsert workflow context: %w", err)
	}

	return id, nil
}

// WorkflowContexts returns the stored summaries for a workflow. With phases
// given, only those phases are returned; otherwise all phases, ordered by
// creation time.
func (s *Store) WorkflowContexts(ctx context.Context, workflowID string, phases []string) ([]WorkflowContext, error) {
	q := `SELECT id, workflow_id, phase, context_data, created_at, updated_at
	      FROM workflow_contexts WHERE workflow_id = ?`
	args := []any{workflowID}

	if len(phases) > 0 {
		q += ` AND phase IN (` + placeholders(len(phases)) + `)`

		for _, p := range phases {
			args = append(args, p)
		}
	}

	q += ` ORDER BY created_at, phase`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("workflow contexts: %w", err)
	}
	defer rows.Close()

	var out []WorkflowContext

	for rows.Next() {
		var wc WorkflowContext

		err = rows.Scan(&wc.ID, &wc.WorkflowID, &wc.Phase, &wc.ContextData, &wc.CreatedAt, &wc.UpdatedAt)
		if err != nil {
			return nil, err
		}

		out = append(out, wc)
	}

	return out, rows.Err()
}

// ClearWorkflowContexts removes every stored summary for a workflow and
// returns the number of rows deleted.
func (s *Store) ClearWorkflowContexts(ctx context.Context, workflowID string) (int, error) {
	var n int64

	err := s.WriteTx(ctx, func(tx *sql.Tx) error {
		res, execErr := tx.ExecContext(ctx,
			`DELETE FROM workflow_contexts WHERE workflow_id = ?`, workflowID)
		if execErr != nil {
			return execErr
		}

		n, execErr = res.RowsAffected()

		return execErr
	})
	if err != nil {
		return 0, fmt.Errorf("clear workflow contexts: %w", err)
	}

	return int(n), nil
}
