package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/wardflow/pkg/metrics"
	"github.com/dukex/wardflow/pkg/models"
	"github.com/robfig/cron/v3"
)

type PendingEvents interface {
	Unprocessed(ctx context.Context, createdBefore time.Time, limit int) ([]*models.WorkflowEvent, error)
}

// Recoverer re-dispatches events that were recorded but never marked processed, for example
// after a worker crashed mid-event. Actions that already ran may run again.
type Recoverer struct {
	pending    PendingEvents
	dispatcher Dispatcher
	grace      time.Duration
	batchSize  int
	logger     *slog.Logger
	now        func() time.Time
	cron       *cron.Cron
}

func NewRecoverer(pending PendingEvents, dispatcher Dispatcher, grace time.Duration, batchSize int, logger *slog.Logger) *Recoverer {
	return &Recoverer{
		pending:    pending,
		dispatcher: dispatcher,
		grace:      grace,
		batchSize:  batchSize,
		logger:     logger.With("module", "recoverer"),
		now:        time.Now,
	}
}

// Sweep dispatches unprocessed events older than the grace period and returns how many were handed off.
func (r *Recoverer) Sweep(ctx context.Context) (int, error) {
	stale, err := r.pending.Unprocessed(ctx, r.now().Add(-r.grace), r.batchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to list unprocessed events: %w", err)
	}

	dispatched := 0

	for _, event := range stale {
		err := r.dispatcher.Dispatch(ctx, event)
		if err != nil {
			r.logger.WarnContext(ctx, "Failed to re-dispatch workflow event",
				"tenant_id", event.TenantID,
				"event_id", event.ID,
				"error", err)

			continue
		}

		dispatched++
	}

	if dispatched > 0 {
		metrics.EventsRecovered.Add(float64(dispatched))
		r.logger.InfoContext(ctx, "Re-dispatched unprocessed workflow events", "count", dispatched)
	}

	return dispatched, nil
}

// Schedule runs Sweep on the given cron expression until Stop is called.
func (r *Recoverer) Schedule(ctx context.Context, spec string) error {
	_, err := cron.ParseStandard(spec)
	if err != nil {
		return fmt.Errorf("invalid recovery schedule %q: %w", spec, err)
	}

	r.cron = cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DefaultLogger),
		cron.Recover(cron.DefaultLogger),
	))

	_, err = r.cron.AddFunc(spec, func() {
		_, err := r.Sweep(ctx)
		if err != nil {
			r.logger.ErrorContext(ctx, "Recovery sweep failed", "error", err)
		}
	})
	if err != nil {
		return err
	}

	r.cron.Start()

	return nil
}

func (r *Recoverer) Stop() {
	if r.cron != nil {
		<-r.cron.Stop().Done()
	}
}
