package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/wardflow/pkg/audit"
	"github.com/dukex/wardflow/pkg/eventbus"
	"github.com/dukex/wardflow/pkg/events"
	"github.com/dukex/wardflow/pkg/models"
)

type EventLoader interface {
	Event(ctx context.Context, tenantID, id string) (*models.WorkflowEvent, error)
}

// Worker consumes WorkflowEventRecorded messages, processes the stored event and
// publishes a WorkflowEventProcessed summary.
type Worker struct {
	id         string
	bus        eventbus.EventBus
	loader     EventLoader
	dispatcher *LocalDispatcher
	logger     *slog.Logger
}

func NewWorker(id string, bus eventbus.EventBus, loader EventLoader, dispatcher *LocalDispatcher, logger *slog.Logger) *Worker {
	return &Worker{
		id:         id,
		bus:        bus,
		loader:     loader,
		dispatcher: dispatcher,
		logger:     logger.With("module", "workflow_worker", "worker_id", id),
	}
}

func (w *Worker) Start(ctx context.Context) error {
	err := w.bus.Handle(events.WorkflowEventRecordedType, w.handleRecorded)
	if err != nil {
		return fmt.Errorf("failed to register handler: %w", err)
	}

	err = w.bus.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("failed to subscribe to event bus: %w", err)
	}

	w.logger.InfoContext(ctx, "Worker started")

	return nil
}

// handleRecorded only asks for redelivery when the event could not be loaded. Processing
// failures leave the event unprocessed for the recovery sweep.
func (w *Worker) handleRecorded(ctx context.Context, message any) error {
	recorded, ok := message.(*events.WorkflowEventRecorded)
	if !ok {
		return fmt.Errorf("unexpected message %T", message)
	}

	logger := w.logger.With("tenant_id", recorded.TenantID, "event_id", recorded.EventID)

	event, err := w.loader.Event(ctx, recorded.TenantID, recorded.EventID)
	if err != nil {
		if errors.Is(err, audit.ErrEventNotFound) {
			logger.WarnContext(ctx, "Dropping message for unknown workflow event")

			return nil
		}

		return err
	}

	if event.Processed() {
		logger.DebugContext(ctx, "Workflow event already processed")

		return nil
	}

	start := time.Now()

	summary, err := w.dispatcher.Do(ctx, event)

	switch {
	case errors.Is(err, ErrAlreadyDispatched), errors.Is(err, audit.ErrAlreadyProcessed):
		return nil
	case err != nil:
		logger.ErrorContext(ctx, "Workflow event processing failed", "error", err)
	}

	processed := events.WorkflowEventProcessed{
		BaseEvent:  events.NewBaseEvent(events.WorkflowEventProcessedType, event.TenantID),
		EventID:    event.ID,
		EventType:  event.EventType,
		Summary:    summary,
		DurationMs: time.Since(start).Milliseconds(),
	}
	processed.WorkerID = w.id

	if err != nil {
		processed.Error = err.Error()
	}

	publishErr := w.bus.Publish(ctx, event.TenantID, processed)
	if publishErr != nil {
		logger.WarnContext(ctx, "Failed to publish processed summary", "error", publishErr)
	}

	return nil
}
