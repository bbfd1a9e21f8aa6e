package workflow

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/dukex/wardflow/pkg/channels/gochannel"
	"github.com/dukex/wardflow/pkg/eventbus"
	"github.com/dukex/wardflow/pkg/events"
	"github.com/dukex/wardflow/pkg/models"
	"github.com/dukex/wardflow/pkg/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorker_ProcessesEventsFromTheBus(t *testing.T) {
	s := newStack(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pub, sub, err := gochannel.CreateChannel(watermill.NopLogger{})
	require.NoError(t, err)

	bus := eventbus.NewWatermillEventBus(pub, sub)
	defer func() { _ = bus.Close() }()

	s.engine.UseDispatcher(NewBusDispatcher(bus))

	_, err = s.rules.Save(ctx, &models.WorkflowRule{
		TenantID:         "h1",
		Name:             "Triage on check-in",
		TriggerEventType: "patient_check_in",
		Active:           true,
		Actions:          models.ActionList{models.CreateTask{TargetRole: "nurse", Message: "triage"}},
	})
	require.NoError(t, err)

	processed := make(chan *events.WorkflowEventProcessed, 1)

	require.NoError(t, bus.Handle(events.WorkflowEventProcessedType, func(_ context.Context, event any) error {
		processed <- event.(*events.WorkflowEventProcessed)

		return nil
	}))

	worker := NewWorker("worker-1", bus, s.audit, NewLocalDispatcher(s.engine, 2, testLogger()), testLogger())
	require.NoError(t, worker.Start(ctx))

	eventID, err := s.engine.Trigger(ctx, checkInRequest())
	require.NoError(t, err)

	select {
	case got := <-processed:
		assert.Equal(t, eventID, got.EventID)
		assert.Equal(t, "worker-1", got.WorkerID)
		assert.Equal(t, models.ProcessingSummary{RulesMatched: 1, ActionsSucceeded: 1}, got.Summary)
		assert.Empty(t, got.Error)
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not process the event")
	}

	event, err := s.audit.Event(ctx, "h1", eventID)
	require.NoError(t, err)
	assert.NotNil(t, event.ProcessedAt)

	tasks, err := s.store.Query(ctx, models.EntityTasks, persistence.Query{TenantID: "h1"})
	require.NoError(t, err)
	assert.Len(t, tasks, 1)
}

func TestWorker_IgnoresUnknownAndProcessedEvents(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()

	worker := NewWorker("worker-1", nil, s.audit, NewLocalDispatcher(s.engine, 1, testLogger()), testLogger())

	unknown := &events.WorkflowEventRecorded{
		BaseEvent: events.NewBaseEvent(events.WorkflowEventRecordedType, "h1"),
		EventID:   "missing",
	}
	assert.NoError(t, worker.handleRecorded(ctx, unknown))

	done := pendingEvent()
	at := time.Now().UTC()
	require.NoError(t, s.audit.Append(ctx, done))
	require.NoError(t, s.audit.Complete(ctx, done, models.ProcessingSummary{}, at))

	recorded := events.NewWorkflowEventRecorded(done)
	assert.NoError(t, worker.handleRecorded(ctx, &recorded))

	assert.Error(t, worker.handleRecorded(ctx, "not an event"))
}
