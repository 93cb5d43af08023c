package storage

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/advisorly/schedcore/internal/model"
	"github.com/advisorly/schedcore/libs/db"
)

// SyncJobsRepository backs the calendar sync worker. Due jobs are claimed
// with FOR UPDATE SKIP LOCKED so multiple workers never pick the same job.
type SyncJobsRepository struct {
	pool *db.Pool
}

func NewSyncJobsRepository(pool *db.Pool) *SyncJobsRepository {
	return &SyncJobsRepository{pool: pool}
}

func (r *SyncJobsRepository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

func (r *SyncJobsRepository) FetchDue(ctx context.Context, tx pgx.Tx, limit int) ([]model.SyncJob, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, booking_id::text, person_id, action, COALESCE(external_ref, ''),
			attempts, max_attempts, next_run_at, status, COALESCE(last_error, '')
		FROM calendar_sync_jobs
		WHERE status = 'pending' AND next_run_at <= now()
		ORDER BY next_run_at
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []model.SyncJob
	for rows.Next() {
		var j model.SyncJob
		if err := rows.Scan(
			&j.ID,
			&j.BookingID,
			&j.PersonID,
			&j.Action,
			&j.ExternalRef,
			&j.Attempts,
			&j.MaxAttempts,
			&j.NextRunAt,
			&j.Status,
			&j.LastError,
		); err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return jobs, nil
}

func (r *SyncJobsRepository) MarkDone(ctx context.Context, tx pgx.Tx, id int64) error {
	_, err := tx.Exec(ctx, `
		UPDATE calendar_sync_jobs
		SET status = 'done',
			updated_at = now()
		WHERE id = $1
	`, id)
	return err
}

// MarkFailed records an attempt; the job goes back to pending until
// attempts reach max_attempts, then sticks at failed.
func (r *SyncJobsRepository) MarkFailed(ctx context.Context, tx pgx.Tx, id int64, attempts, maxAttempts int, nextRunAt time.Time, lastError string) error {
	status := "pending"
	if attempts >= maxAttempts {
		status = "failed"
	}
	_, err := tx.Exec(ctx, `
		UPDATE calendar_sync_jobs
		SET attempts = $2,
			status = $3,
			next_run_at = $4,
			last_error = $5,
			updated_at = now()
		WHERE id = $1
	`, id, attempts, status, nextRunAt, lastError)
	return err
}

// AttachExternalRef records the provider's event id after a successful push
// and marks the booking synced.
func (r *SyncJobsRepository) AttachExternalRef(ctx context.Context, tx pgx.Tx, bookingID, externalRef string) error {
	_, err := tx.Exec(ctx, `
		UPDATE bookings
		SET external_ref = $2,
			sync_state = 'synced'
		WHERE id = $1
	`, bookingID, externalRef)
	return err
}

func (r *SyncJobsRepository) SetBookingSyncState(ctx context.Context, tx pgx.Tx, bookingID, state string) error {
	_, err := tx.Exec(ctx, `
		UPDATE bookings
		SET sync_state = $2
		WHERE id = $1
	`, bookingID, state)
	return err
}

// RequeueStalled flips failed jobs that still have attempts left back to
// pending. Covers workers that died between claiming and finishing a batch.
func (r *SyncJobsRepository) RequeueStalled(ctx context.Context) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE calendar_sync_jobs
		SET status = 'pending',
			next_run_at = now()
		WHERE status = 'failed' AND attempts < max_attempts
	`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// ListReconciliationBookings surfaces bookings whose mirror is known-bad.
func (r *SyncJobsRepository) ListReconciliationBookings(ctx context.Context, limit int) ([]model.Booking, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE sync_state = 'needs_reconciliation'
		ORDER BY created_at
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanBookings(rows)
}
