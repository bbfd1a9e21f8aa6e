package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/dukex/wardflow/pkg/audit"
	"github.com/dukex/wardflow/pkg/eventbus"
	"github.com/dukex/wardflow/pkg/events"
	"github.com/dukex/wardflow/pkg/models"
	"golang.org/x/sync/semaphore"
)

// LocalDispatcher processes events in this process, at most `concurrency` at a time.
// The same event is never processed twice concurrently.
type LocalDispatcher struct {
	processor Processor
	sem       *semaphore.Weighted
	logger    *slog.Logger

	mu       sync.Mutex
	inFlight map[string]struct{}
	wg       sync.WaitGroup
}

func NewLocalDispatcher(processor Processor, concurrency int64, logger *slog.Logger) *LocalDispatcher {
	if concurrency < 1 {
		concurrency = 1
	}

	return &LocalDispatcher{
		processor: processor,
		sem:       semaphore.NewWeighted(concurrency),
		logger:    logger.With("module", "local_dispatcher"),
		inFlight:  make(map[string]struct{}),
	}
}

// Dispatch starts processing in the background. The caller's cancellation does not stop it.
func (d *LocalDispatcher) Dispatch(ctx context.Context, event *models.WorkflowEvent) error {
	key, ok := d.claim(event)
	if !ok {
		return nil
	}

	d.wg.Add(1)

	go func() {
		defer d.wg.Done()
		defer d.release(key)

		_, err := d.process(context.WithoutCancel(ctx), event)
		if err != nil && !errors.Is(err, audit.ErrAlreadyProcessed) {
			d.logger.WarnContext(ctx, "Workflow event processing failed",
				"tenant_id", event.TenantID,
				"event_id", event.ID,
				"error", err)
		}
	}()

	return nil
}

// Do processes the event synchronously under the same concurrency limit.
func (d *LocalDispatcher) Do(ctx context.Context, event *models.WorkflowEvent) (models.ProcessingSummary, error) {
	key, ok := d.claim(event)
	if !ok {
		return models.ProcessingSummary{}, ErrAlreadyDispatched
	}

	defer d.release(key)

	return d.process(ctx, event)
}

// Wait blocks until every event handed to Dispatch has finished.
func (d *LocalDispatcher) Wait() {
	d.wg.Wait()
}

func (d *LocalDispatcher) process(ctx context.Context, event *models.WorkflowEvent) (models.ProcessingSummary, error) {
	err := d.sem.Acquire(ctx, 1)
	if err != nil {
		return models.ProcessingSummary{}, err
	}
	defer d.sem.Release(1)

	return d.processor.Process(ctx, event)
}

func (d *LocalDispatcher) claim(event *models.WorkflowEvent) (string, bool) {
	key := event.TenantID + "/" + event.ID

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, busy := d.inFlight[key]; busy {
		return key, false
	}

	d.inFlight[key] = struct{}{}

	return key, true
}

func (d *LocalDispatcher) release(key string) {
	d.mu.Lock()
	delete(d.inFlight, key)
	d.mu.Unlock()
}

// BusDispatcher announces recorded events on the event bus for a Worker to process.
type BusDispatcher struct {
	publisher eventbus.EventPublisher
}

func NewBusDispatcher(publisher eventbus.EventPublisher) *BusDispatcher {
	return &BusDispatcher{publisher: publisher}
}

func (d *BusDispatcher) Dispatch(ctx context.Context, event *models.WorkflowEvent) error {
	return d.publisher.Publish(ctx, event.TenantID, events.NewWorkflowEventRecorded(event))
}
