package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/badno/pimsync/internal/database"
	pkgerrors "github.com/badno/pimsync/pkg/errors"
)

// SyncRunRepo implements the SyncRunRepository interface for PostgreSQL
type SyncRunRepo struct {
	client *Client
}

// NewSyncRunRepo creates a new PostgreSQL sync run repository
func NewSyncRunRepo(client *Client) *SyncRunRepo {
	return &SyncRunRepo{client: client}
}

// Record inserts the run and its errors in one transaction
func (r *SyncRunRepo) Record(ctx context.Context, run *database.SyncRun) error {
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}

	pool, err := r.client.db()
	if err != nil {
		return err
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO sync_runs (
			id, action, store, start_index, processed,
			updated, created, failed, details, started_at, finished_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		run.ID,
		run.Action,
		run.Store,
		run.Start,
		run.Processed,
		run.Updated,
		run.Created,
		run.Failed,
		run.Details,
		run.StartedAt,
		run.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert sync run: %w", err)
	}

	if len(run.Errors) > 0 {
		query := `
			INSERT INTO sync_run_errors (run_id, error_type, product_index, product, message)
			VALUES ($1, $2, $3, $4, $5)
		`

		batch := &pgx.Batch{}
		for _, e := range run.Errors {
			batch.Queue(query, run.ID, e.ErrorType, e.ProductIndex, e.Product, e.Message)
		}

		br := tx.SendBatch(ctx, batch)
		for range run.Errors {
			if _, err := br.Exec(); err != nil {
				br.Close()
				return fmt.Errorf("failed to insert sync run error: %w", err)
			}
		}
		if err := br.Close(); err != nil {
			return fmt.Errorf("failed to insert sync run errors: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// Recent retrieves the most recent runs, newest first, without their errors
func (r *SyncRunRepo) Recent(ctx context.Context, limit int) ([]*database.SyncRun, error) {
	query := `
		SELECT id, action, store, start_index, processed, updated, created, failed,
		       details, started_at, finished_at
		FROM sync_runs
		ORDER BY started_at DESC
		LIMIT $1
	`

	pool, err := r.client.db()
	if err != nil {
		return nil, err
	}

	rows, err := pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync runs: %w", err)
	}
	defer rows.Close()

	var runs []*database.SyncRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	return runs, rows.Err()
}

// GetByID retrieves one run with its errors
func (r *SyncRunRepo) GetByID(ctx context.Context, id uuid.UUID) (*database.SyncRun, error) {
	pool, err := r.client.db()
	if err != nil {
		return nil, err
	}

	row := pool.QueryRow(ctx, `
		SELECT id, action, store, start_index, processed, updated, created, failed,
		       details, started_at, finished_at
		FROM sync_runs
		WHERE id = $1
	`, id)

	run, err := scanRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, pkgerrors.NewNotFoundError("sync run", id.String())
	}
	if err != nil {
		return nil, err
	}

	rows, err := pool.Query(ctx, `
		SELECT id, error_type, product_index, product, message
		FROM sync_run_errors
		WHERE run_id = $1
		ORDER BY product_index, id
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync run errors: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var e database.SyncRunError
		if err := rows.Scan(&e.ID, &e.ErrorType, &e.ProductIndex, &e.Product, &e.Message); err != nil {
			return nil, fmt.Errorf("failed to scan sync run error: %w", err)
		}
		run.Errors = append(run.Errors, e)
	}

	return run, rows.Err()
}

// Since returns the runs started at or after since, oldest first, without their errors
func (r *SyncRunRepo) Since(ctx context.Context, since time.Time) ([]*database.SyncRun, error) {
	pool, err := r.client.db()
	if err != nil {
		return nil, err
	}

	rows, err := pool.Query(ctx, `
		SELECT id, action, store, start_index, processed, updated, created, failed,
		       details, started_at, finished_at
		FROM sync_runs
		WHERE started_at >= $1
		ORDER BY started_at
	`, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync runs: %w", err)
	}
	defer rows.Close()

	var runs []*database.SyncRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func scanRun(row pgx.Row) (*database.SyncRun, error) {
	var run database.SyncRun
	err := row.Scan(
		&run.ID, &run.Action, &run.Store, &run.Start, &run.Processed,
		&run.Updated, &run.Created, &run.Failed,
		&run.Details, &run.StartedAt, &run.FinishedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan sync run: %w", err)
	}
	return &run, nil
}
