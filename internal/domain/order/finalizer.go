package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"go.uber.org/zap"
)

// JobState tracks a status-transition job's lifecycle.
type JobState string

const (
	JobPending JobState = "pending"
	JobDone    JobState = "done"
	JobFailed  JobState = "failed"
)

// Job is a durable record of a deferred status transition. Jobs live in the
// database so a restart re-discovers anything not yet processed.
type Job struct {
	ID           int64
	OrderID      int64
	TargetStatus Status
	State        JobState
	LastError    string
	CreatedAt    time.Time
	ProcessedAt  *time.Time
}

// JobRepository persists finalize jobs.
type JobRepository interface {
	Enqueue(ctx context.Context, orderID int64, target Status) (int64, error)
	// Pending returns unprocessed jobs, oldest first.
	Pending(ctx context.Context, limit int) ([]Job, error)
	MarkDone(ctx context.Context, id int64) error
	MarkFailed(ctx context.Context, id int64, msg string) error
}

// StatusChangedHandler receives explicit notification after an order's status
// transition. This replaces ambient hook dispatch: every downstream side
// effect (notifications, commission accounting) registers here.
type StatusChangedHandler interface {
	OrderStatusChanged(ctx context.Context, o *Order, previous Status) error
}

// StatusChangedFunc adapts a function to StatusChangedHandler.
type StatusChangedFunc func(ctx context.Context, o *Order, previous Status) error

// OrderStatusChanged implements StatusChangedHandler.
func (f StatusChangedFunc) OrderStatusChanged(ctx context.Context, o *Order, previous Status) error {
	return f(ctx, o, previous)
}

// Finalizer decouples the fast "order accepted" response from the slow
// downstream effects of the status transition. Schedule persists a job and
// nudges the worker without blocking; Run processes jobs in the background.
//
// A failed transition marks the job failed and leaves the order Pending for
// manual reconciliation; there is no automatic retry.
type Finalizer struct {
	jobs     JobRepository
	orders   Repository
	handlers []StatusChangedHandler
	lg       *zap.Logger

	nudge        chan struct{}
	pollInterval time.Duration
	done         chan struct{}
}

// NewFinalizer creates a Finalizer. pollInterval bounds how long a durable
// job can wait when the in-process nudge is lost (e.g. scheduled before a
// crash); a non-positive value defaults to 15 seconds.
func NewFinalizer(jobs JobRepository, orders Repository, lg *zap.Logger, pollInterval time.Duration) *Finalizer {
	if pollInterval <= 0 {
		pollInterval = 15 * time.Second
	}
	return &Finalizer{
		jobs:         jobs,
		orders:       orders,
		lg:           lg,
		nudge:        make(chan struct{}, 1),
		pollInterval: pollInterval,
		done:         make(chan struct{}),
	}
}

// RegisterHandler adds a status-changed handler. Must be called before Run.
func (f *Finalizer) RegisterHandler(h StatusChangedHandler) {
	f.handlers = append(f.handlers, h)
}

// Schedule enqueues a deferred transition for the order and wakes the worker.
// The nudge is non-blocking; if the worker is already awake the job is picked
// up on the next pass.
func (f *Finalizer) Schedule(ctx context.Context, orderID int64, target Status) error {
	if _, err := f.jobs.Enqueue(ctx, orderID, target); err != nil {
		return errors.Wrap(err, "enqueue finalize job")
	}
	select {
	case f.nudge <- struct{}{}:
	default:
	}
	return nil
}

// Run processes pending jobs until ctx is cancelled. It drains whatever is
// due on startup, which is how jobs scheduled before a restart get picked
// back up.
func (f *Finalizer) Run(ctx context.Context) {
	defer close(f.done)

	ticker := time.NewTicker(f.pollInterval)
	defer ticker.Stop()

	f.processPending(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-f.nudge:
			f.processPending(ctx)
		case <-ticker.C:
			f.processPending(ctx)
		}
	}
}

// Wait blocks until Run has returned.
func (f *Finalizer) Wait() {
	<-f.done
}

func (f *Finalizer) processPending(ctx context.Context) {
	for {
		jobs, err := f.jobs.Pending(ctx, 32)
		if err != nil {
			if ctx.Err() == nil {
				f.lg.Error("fetch pending finalize jobs", zap.Error(err))
			}
			return
		}
		if len(jobs) == 0 {
			return
		}
		for _, job := range jobs {
			if ctx.Err() != nil {
				return
			}
			f.process(ctx, job)
		}
	}
}

// process re-fetches the order, transitions its status, and notifies the
// registered handlers. Handler errors are logged but do not fail the job:
// the transition itself already happened.
func (f *Finalizer) process(ctx context.Context, job Job) {
	o, err := f.orders.GetByID(ctx, job.OrderID)
	if err != nil {
		f.fail(ctx, job, errors.Wrap(err, "fetch order"))
		return
	}

	previous := o.Status
	if previous == job.TargetStatus {
		// Already there; nothing to transition.
		f.markDone(ctx, job)
		return
	}

	if err := f.orders.UpdateStatus(ctx, job.OrderID, job.TargetStatus); err != nil {
		f.fail(ctx, job, errors.Wrap(err, "update status"))
		return
	}
	o.Status = job.TargetStatus

	for _, h := range f.handlers {
		if err := h.OrderStatusChanged(ctx, o, previous); err != nil {
			f.lg.Error("order status handler failed",
				zap.Int64("order_id", o.ID),
				zap.String("status", string(o.Status)),
				zap.Error(err),
			)
		}
	}

	f.lg.Info("order finalized",
		zap.Int64("order_id", o.ID),
		zap.String("from", string(previous)),
		zap.String("to", string(o.Status)),
	)
	f.markDone(ctx, job)
}

func (f *Finalizer) markDone(ctx context.Context, job Job) {
	if err := f.jobs.MarkDone(ctx, job.ID); err != nil {
		f.lg.Error("mark finalize job done", zap.Int64("job_id", job.ID), zap.Error(err))
	}
}

func (f *Finalizer) fail(ctx context.Context, job Job, cause error) {
	f.lg.Error("finalize job failed",
		zap.Int64("job_id", job.ID),
		zap.Int64("order_id", job.OrderID),
		zap.Error(cause),
	)
	if err := f.jobs.MarkFailed(ctx, job.ID, cause.Error()); err != nil {
		f.lg.Error("mark finalize job failed", zap.Int64("job_id", job.ID), zap.Error(err))
	}
}
