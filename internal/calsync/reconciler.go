package calsync

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/advisorly/schedcore/internal/storage"
)

// Reconciler periodically requeues sync jobs that still have attempts left
// and surfaces bookings stuck in needs_reconciliation. Schedules run in UTC.
type Reconciler struct {
	jobs     *storage.SyncJobsRepository
	logger   *slog.Logger
	schedule string
}

func NewReconciler(jobs *storage.SyncJobsRepository, logger *slog.Logger, schedule string) *Reconciler {
	if schedule == "" {
		schedule = "*/10 * * * *"
	}
	return &Reconciler{jobs: jobs, logger: logger, schedule: schedule}
}

// Start registers the sweep and returns the running scheduler; the caller
// stops it on shutdown.
func (r *Reconciler) Start(ctx context.Context) (*cron.Cron, error) {
	c := cron.New(cron.WithLocation(time.UTC))
	if _, err := c.AddFunc(r.schedule, func() { r.sweep(ctx) }); err != nil {
		return nil, err
	}
	c.Start()
	return c, nil
}

func (r *Reconciler) sweep(ctx context.Context) {
	sweepCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	requeued, err := r.jobs.RequeueStalled(sweepCtx)
	if err != nil {
		r.logger.Error("sync job requeue failed", "err", err)
	} else if requeued > 0 {
		r.logger.Info("requeued stalled sync jobs", "count", requeued)
	}

	stuck, err := r.jobs.ListReconciliationBookings(sweepCtx, 50)
	if err != nil {
		r.logger.Error("reconciliation listing failed", "err", err)
		return
	}
	for _, b := range stuck {
		r.logger.Warn("booking needs manual calendar reconciliation",
			"booking_id", b.ID, "owner_id", b.OwnerID, "start_time", b.StartTime.UTC().Format(time.RFC3339))
	}
}
