package calsync

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/advisorly/schedcore/internal/model"
	"github.com/advisorly/schedcore/internal/outbox"
	"github.com/advisorly/schedcore/internal/storage"
)

// Worker drains calendar_sync_jobs and mirrors bookings into the external
// calendar. The bookings it works on are already committed; a failing mirror
// only ever degrades the booking's sync_state, never the booking itself.
type Worker struct {
	jobs        *storage.SyncJobsRepository
	bookings    *storage.BookingStore
	connections *storage.ConnectionsRepository
	outbox      *outbox.Repository
	adapter     Adapter
	logger      *slog.Logger
	interval    time.Duration
	batchSize   int
	backoff     time.Duration
	opTimeout   time.Duration
}

type WorkerConfig struct {
	Interval  time.Duration
	BatchSize int
	Backoff   time.Duration
	OpTimeout time.Duration
}

func NewWorker(jobs *storage.SyncJobsRepository, bookings *storage.BookingStore, connections *storage.ConnectionsRepository, outboxRepo *outbox.Repository, adapter Adapter, logger *slog.Logger, cfg WorkerConfig) *Worker {
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 20
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = time.Minute
	}
	if cfg.OpTimeout <= 0 {
		cfg.OpTimeout = 10 * time.Second
	}
	return &Worker{
		jobs:        jobs,
		bookings:    bookings,
		connections: connections,
		outbox:      outboxRepo,
		adapter:     adapter,
		logger:      logger,
		interval:    cfg.Interval,
		batchSize:   cfg.BatchSize,
		backoff:     cfg.Backoff,
		opTimeout:   cfg.OpTimeout,
	}
}

func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.processBatch(ctx); err != nil {
				w.logger.Error("calendar sync batch failed", "err", err)
			}
		}
	}
}

func (w *Worker) processBatch(ctx context.Context) error {
	tx, err := w.jobs.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	jobs, err := w.jobs.FetchDue(ctx, tx, w.batchSize)
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		return tx.Commit(ctx)
	}

	for _, job := range jobs {
		if err := w.runJob(ctx, tx, job); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (w *Worker) runJob(ctx context.Context, tx pgx.Tx, job model.SyncJob) error {
	opErr := w.execute(ctx, tx, job)
	if opErr == nil {
		return w.jobs.MarkDone(ctx, tx, job.ID)
	}

	attempts := job.Attempts + 1
	nextRunAt := time.Now().UTC().Add(w.backoff * time.Duration(attempts))
	if err := w.jobs.MarkFailed(ctx, tx, job.ID, attempts, job.MaxAttempts, nextRunAt, opErr.Error()); err != nil {
		return err
	}
	w.logger.Warn("calendar sync attempt failed",
		"booking_id", job.BookingID, "action", job.Action, "attempts", attempts, "err", opErr)

	if attempts < job.MaxAttempts {
		return nil
	}

	// Out of attempts: flag the booking for manual reconciliation and feed
	// the operational DLQ topic.
	if err := w.jobs.SetBookingSyncState(ctx, tx, job.BookingID, model.SyncStateReconciliation); err != nil {
		return err
	}
	evt, err := outbox.BookingSyncFailed(job.BookingID, job.PersonID, job.Action, opErr.Error(), attempts)
	if err != nil {
		return err
	}
	return w.outbox.Insert(ctx, tx, evt)
}

func (w *Worker) execute(ctx context.Context, tx pgx.Tx, job model.SyncJob) error {
	opCtx, cancel := context.WithTimeout(ctx, w.opTimeout)
	defer cancel()

	conn, connected, err := w.connections.GetConnection(opCtx, job.PersonID)
	if err != nil {
		return err
	}
	if !connected || !conn.Enabled {
		// Nothing to mirror; the booking is authoritative on its own.
		if job.Action == model.SyncActionPush {
			return w.jobs.SetBookingSyncState(ctx, tx, job.BookingID, model.SyncStateSynced)
		}
		return nil
	}

	b, err := w.bookings.GetBooking(opCtx, job.BookingID)
	if err != nil {
		return err
	}

	switch job.Action {
	case model.SyncActionPush:
		if b.Status == model.BookingStatusCancelled {
			// Cancelled before the push ran; the cancel path owns the delete.
			return w.jobs.SetBookingSyncState(ctx, tx, job.BookingID, model.SyncStateSynced)
		}
		ref, err := w.adapter.Push(opCtx, conn, b)
		if err != nil {
			return err
		}
		return w.jobs.AttachExternalRef(ctx, tx, job.BookingID, ref)
	case model.SyncActionUpdate:
		return w.adapter.Update(opCtx, conn, job.ExternalRef, b)
	case model.SyncActionDelete:
		return w.adapter.Delete(opCtx, conn, job.ExternalRef)
	default:
		return errors.New("unknown sync action " + job.Action)
	}
}
