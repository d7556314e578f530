package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const runColumns = "id, manifest_path, output_path, audio_dir, infer_url, concurrency, status, total, succeeded, skipped, failed, error_message, started_at, finished_at"

// StartRun inserts run in the running state.
func (s *Store) StartRun(ctx context.Context, run Run) error {
	if run.ID == "" {
		return errors.New("run id is required")
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	err := s.exec(ctx,
		`INSERT INTO runs (
            id, manifest_path, audio_dir, infer_url, concurrency, status, total, started_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID,
		run.ManifestPath,
		run.AudioDir,
		nullableString(run.InferURL),
		run.Concurrency,
		RunRunning,
		run.Total,
		formatTime(run.StartedAt),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// FinishRun stores the final counts and outcomes of run in one transaction.
func (s *Store) FinishRun(ctx context.Context, run Run, outcomes []Outcome) error {
	if run.FinishedAt.IsZero() {
		run.FinishedAt = time.Now()
	}
	return retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin run tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		if _, err := tx.ExecContext(ctx,
			`UPDATE runs
             SET output_path = ?, status = ?, total = ?, succeeded = ?, skipped = ?, failed = ?,
                 error_message = ?, finished_at = ?
             WHERE id = ?`,
			nullableString(run.OutputPath),
			run.Status,
			run.Total,
			run.Succeeded,
			run.Skipped,
			run.Failed,
			nullableString(run.ErrorMessage),
			formatTime(run.FinishedAt),
			run.ID,
		); err != nil {
			return fmt.Errorf("update run: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx,
			`INSERT OR REPLACE INTO outcomes (
                run_id, row_index, filename, status, reason, error_kind, transcript, duration, audio_deleted, elapsed_ms
            ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare outcome insert: %w", err)
		}
		defer stmt.Close()
		for _, o := range outcomes {
			if _, err := stmt.ExecContext(ctx,
				run.ID,
				o.Row,
				o.Filename,
				o.Status,
				nullableString(o.Reason),
				nullableString(o.ErrorKind),
				nullableString(o.Transcript),
				nullableString(o.Duration),
				boolToInt(o.AudioDeleted),
				o.Elapsed.Milliseconds(),
			); err != nil {
				return fmt.Errorf("insert outcome %d: %w", o.Row, err)
			}
		}
		return tx.Commit()
	})
}

// ListRuns returns the most recent runs first. limit <= 0 returns all.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY started_at DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// GetRun fetches a run by its full id or a unique id prefix.
func (s *Store) GetRun(ctx context.Context, id string) (Run, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs WHERE id = ? OR id LIKE ? ESCAPE '\' ORDER BY started_at DESC LIMIT 2`,
		id, escapeLike(id)+"%")
	if err != nil {
		return Run{}, fmt.Errorf("get run: %w", err)
	}
	defer rows.Close()

	var matches []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return Run{}, err
		}
		if run.ID == id {
			return run, nil
		}
		matches = append(matches, run)
	}
	if err := rows.Err(); err != nil {
		return Run{}, err
	}
	switch len(matches) {
	case 0:
		return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	case 1:
		return matches[0], nil
	default:
		return Run{}, fmt.Errorf("run id prefix %q is ambiguous", id)
	}
}

// Outcomes returns the recorded rows of runID in manifest order.
func (s *Store) Outcomes(ctx context.Context, runID string) ([]Outcome, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT row_index, filename, status, reason, error_kind, transcript, duration, audio_deleted, elapsed_ms
         FROM outcomes WHERE run_id = ? ORDER BY row_index`, runID)
	if err != nil {
		return nil, fmt.Errorf("query outcomes: %w", err)
	}
	defer rows.Close()

	var out []Outcome
	for rows.Next() {
		var (
			o          Outcome
			reason     sql.NullString
			kind       sql.NullString
			transcript sql.NullString
			duration   sql.NullString
			deleted    int
			elapsedMS  int64
		)
		if err := rows.Scan(&o.Row, &o.Filename, &o.Status, &reason, &kind, &transcript, &duration, &deleted, &elapsedMS); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		o.Reason = reason.String
		o.ErrorKind = kind.String
		o.Transcript = transcript.String
		o.Duration = duration.String
		o.AudioDeleted = deleted != 0
		o.Elapsed = time.Duration(elapsedMS) * time.Millisecond
		out = append(out, o)
	}
	return out, rows.Err()
}
