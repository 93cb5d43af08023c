package storage

import (
	"context"
	"errors"
	"hash/fnv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/advisorly/schedcore/internal/booking"
	"github.com/advisorly/schedcore/internal/interval"
	"github.com/advisorly/schedcore/internal/model"
	"github.com/advisorly/schedcore/internal/outbox"
	"github.com/advisorly/schedcore/libs/db"
)

const bookingColumns = `id::text, owner_id, COALESCE(event_type_id::text, ''), start_time, end_time,
	status, COALESCE(external_ref, ''), sync_state, booker_name, booker_email, booker_company,
	COALESCE(cancel_reason, ''), cancelled_at, created_at`

// BookingStore runs booking transactions under a per-person advisory lock and
// serves the pool-level booking reads.
type BookingStore struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

func NewBookingStore(pool *db.Pool, outboxRepo *outbox.Repository) *BookingStore {
	return &BookingStore{pool: pool, outbox: outboxRepo}
}

// personLockKey hashes the person id into the 64-bit advisory lock space.
func personLockKey(personID string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(personID))
	return int64(h.Sum64())
}

func (s *BookingStore) InTx(ctx context.Context, personID string, fn func(ctx context.Context, tx booking.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Serializes writes for one person; released at commit or rollback.
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, personLockKey(personID)); err != nil {
		return err
	}

	if err := fn(ctx, &bookingTx{tx: tx, outbox: s.outbox}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *BookingStore) ListConfirmedBookings(ctx context.Context, personID string, rangeUTC interval.Interval) ([]model.Booking, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE owner_id = $1
			AND status = 'confirmed'
			AND start_time < $3
			AND end_time > $2
		ORDER BY start_time
	`, personID, rangeUTC.Start, rangeUTC.End)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanBookings(rows)
}

func (s *BookingStore) GetBooking(ctx context.Context, id string) (model.Booking, error) {
	b, err := scanBooking(s.pool.QueryRow(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE id = $1
	`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Booking{}, booking.ErrNotFound
	}
	return b, err
}

func (s *BookingStore) ListByOwner(ctx context.Context, ownerID string, limit int) ([]model.Booking, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE owner_id = $1
		ORDER BY start_time DESC
		LIMIT $2
	`, ownerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanBookings(rows)
}

type bookingTx struct {
	tx     pgx.Tx
	outbox *outbox.Repository
}

func (t *bookingTx) GetEventType(ctx context.Context, id string) (model.EventType, bool, error) {
	et, err := scanEventType(t.tx.QueryRow(ctx, `
		SELECT `+eventTypeColumns+`
		FROM event_types
		WHERE id = $1
	`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.EventType{}, false, nil
	}
	if err != nil {
		return model.EventType{}, false, err
	}
	return et, true, nil
}

func (t *bookingTx) ListConfirmedBookings(ctx context.Context, personID string, rangeUTC interval.Interval) ([]model.Booking, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE owner_id = $1
			AND status = 'confirmed'
			AND start_time < $3
			AND end_time > $2
		ORDER BY start_time
	`, personID, rangeUTC.Start, rangeUTC.End)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanBookings(rows)
}

func (t *bookingTx) InsertBooking(ctx context.Context, b *model.Booking) (string, error) {
	id := uuid.NewString()
	_, err := t.tx.Exec(ctx, `
		INSERT INTO bookings
			(id, owner_id, event_type_id, start_time, end_time, status, sync_state, booker_name, booker_email, booker_company)
		VALUES ($1, $2, NULLIF($3, '')::uuid, $4, $5, $6, $7, $8, $9, $10)
	`, id, b.OwnerID, b.EventTypeID, b.StartTime, b.EndTime, b.Status, b.SyncState,
		b.BookerName, b.BookerEmail, b.BookerCompany)
	if err != nil {
		if isExclusionViolation(err) {
			return "", booking.ErrSlotConflict
		}
		return "", err
	}
	return id, nil
}

func (t *bookingTx) GetBookingForUpdate(ctx context.Context, id string) (model.Booking, error) {
	b, err := scanBooking(t.tx.QueryRow(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE id = $1
		FOR UPDATE
	`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Booking{}, booking.ErrNotFound
	}
	return b, err
}

func (t *bookingTx) CancelBooking(ctx context.Context, id, reason string) (time.Time, error) {
	var cancelledAt time.Time
	err := t.tx.QueryRow(ctx, `
		UPDATE bookings
		SET status = 'cancelled',
			cancelled_at = now(),
			cancel_reason = $2
		WHERE id = $1
		RETURNING cancelled_at
	`, id, reason).Scan(&cancelledAt)
	return cancelledAt, err
}

func (t *bookingTx) EnqueueSyncJob(ctx context.Context, job model.SyncJob) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO calendar_sync_jobs (booking_id, person_id, action, external_ref, max_attempts, next_run_at)
		VALUES ($1, $2, $3, $4, $5, now())
	`, job.BookingID, job.PersonID, job.Action, job.ExternalRef, job.MaxAttempts)
	return err
}

func (t *bookingTx) InsertOutboxEvent(ctx context.Context, evt outbox.Event) error {
	return t.outbox.Insert(ctx, t.tx, evt)
}

func (t *bookingTx) LockIdempotencyKey(ctx context.Context, personID, key string) (string, bool, error) {
	bookingID, err := t.selectIdempotencyForUpdate(ctx, personID, key)
	if err == nil {
		return bookingID, bookingID != "", nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return "", false, err
	}

	_, err = t.tx.Exec(ctx, `
		INSERT INTO booking_idempotency_keys (person_id, idempotency_key)
		VALUES ($1, $2)
		ON CONFLICT (person_id, idempotency_key) DO NOTHING
	`, personID, key)
	if err != nil {
		return "", false, err
	}

	bookingID, err = t.selectIdempotencyForUpdate(ctx, personID, key)
	if err != nil {
		return "", false, err
	}
	return bookingID, bookingID != "", nil
}

func (t *bookingTx) FinalizeIdempotency(ctx context.Context, personID, key, bookingID string) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE booking_idempotency_keys
		SET booking_id = $3,
			updated_at = now()
		WHERE person_id = $1 AND idempotency_key = $2
	`, personID, key, bookingID)
	return err
}

func (t *bookingTx) selectIdempotencyForUpdate(ctx context.Context, personID, key string) (string, error) {
	var bookingID string
	err := t.tx.QueryRow(ctx, `
		SELECT COALESCE(booking_id::text, '')
		FROM booking_idempotency_keys
		WHERE person_id = $1 AND idempotency_key = $2
		FOR UPDATE
	`, personID, key).Scan(&bookingID)
	return bookingID, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBooking(row rowScanner) (model.Booking, error) {
	var b model.Booking
	var cancelledAt *time.Time
	err := row.Scan(
		&b.ID,
		&b.OwnerID,
		&b.EventTypeID,
		&b.StartTime,
		&b.EndTime,
		&b.Status,
		&b.ExternalRef,
		&b.SyncState,
		&b.BookerName,
		&b.BookerEmail,
		&b.BookerCompany,
		&b.CancelReason,
		&cancelledAt,
		&b.CreatedAt,
	)
	if err != nil {
		return model.Booking{}, err
	}
	b.CancelledAt = cancelledAt
	return b, nil
}

func scanBookings(rows pgx.Rows) ([]model.Booking, error) {
	var out []model.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

// isExclusionViolation matches the overlap constraint on confirmed bookings.
func isExclusionViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23P01"
}

func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows) || errors.Is(err, booking.ErrNotFound)
}
