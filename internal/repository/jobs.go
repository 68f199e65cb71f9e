package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/floorkit/scanpos/internal/domain/order"
)

const (
	enqueueStatusJobSQL = `INSERT INTO order_status_jobs (order_id, target_status)
	VALUES ($1, $2) RETURNING id`

	pendingStatusJobsSQL = `SELECT id, order_id, target_status, state, last_error, created_at, processed_at
	FROM order_status_jobs WHERE state = 'pending' ORDER BY created_at LIMIT $1`

	markStatusJobDoneSQL = `UPDATE order_status_jobs
	SET state = 'done', processed_at = now() WHERE id = $1`

	markStatusJobFailedSQL = `UPDATE order_status_jobs
	SET state = 'failed', last_error = $2, processed_at = now() WHERE id = $1`
)

var _ order.JobRepository = (*StatusJobRepository)(nil)

// StatusJobRepository implements order.JobRepository backed by PostgreSQL.
type StatusJobRepository struct {
	pool *pgxpool.Pool
}

// NewStatusJobRepository returns a StatusJobRepository that uses the given pool.
func NewStatusJobRepository(pool *pgxpool.Pool) *StatusJobRepository {
	return &StatusJobRepository{pool: pool}
}

// Enqueue records a deferred status transition and returns the job ID.
func (r *StatusJobRepository) Enqueue(ctx context.Context, orderID int64, target order.Status) (int64, error) {
	var id int64
	if err := r.pool.QueryRow(ctx, enqueueStatusJobSQL, orderID, string(target)).Scan(&id); err != nil {
		return 0, fmt.Errorf("enqueueing status job for order %d: %w", orderID, err)
	}
	return id, nil
}

// Pending returns unprocessed jobs, oldest first.
func (r *StatusJobRepository) Pending(ctx context.Context, limit int) ([]order.Job, error) {
	rows, err := r.pool.Query(ctx, pendingStatusJobsSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("fetching pending status jobs: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (order.Job, error) {
		var (
			j             order.Job
			target, state string
		)
		err := row.Scan(&j.ID, &j.OrderID, &target, &state, &j.LastError, &j.CreatedAt, &j.ProcessedAt)
		j.TargetStatus = order.Status(target)
		j.State = order.JobState(state)
		return j, err
	})
}

// MarkDone records a successfully processed job.
func (r *StatusJobRepository) MarkDone(ctx context.Context, id int64) error {
	if _, err := r.pool.Exec(ctx, markStatusJobDoneSQL, id); err != nil {
		return fmt.Errorf("marking status job %d done: %w", id, err)
	}
	return nil
}

// MarkFailed records a job that could not be processed. Failed jobs are kept
// for manual reconciliation and never retried automatically.
func (r *StatusJobRepository) MarkFailed(ctx context.Context, id int64, msg string) error {
	if _, err := r.pool.Exec(ctx, markStatusJobFailedSQL, id, msg); err != nil {
		return fmt.Errorf("marking status job %d failed: %w", id, err)
	}
	return nil
}
