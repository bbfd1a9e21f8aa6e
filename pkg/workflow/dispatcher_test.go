package workflow

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/dukex/wardflow/pkg/events"
	"github.com/dukex/wardflow/pkg/mocks"
	"github.com/dukex/wardflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type gatedProcessor struct {
	gate    chan struct{}
	calls   atomic.Int32
	running atomic.Int32
	peak    atomic.Int32
	ctxErrs atomic.Int32
}

func newGatedProcessor() *gatedProcessor {
	return &gatedProcessor{gate: make(chan struct{})}
}

func (p *gatedProcessor) Process(ctx context.Context, _ *models.WorkflowEvent) (models.ProcessingSummary, error) {
	p.calls.Add(1)

	running := p.running.Add(1)
	defer p.running.Add(-1)

	for {
		peak := p.peak.Load()
		if running <= peak || p.peak.CompareAndSwap(peak, running) {
			break
		}
	}

	<-p.gate

	if ctx.Err() != nil {
		p.ctxErrs.Add(1)
	}

	return models.ProcessingSummary{RulesMatched: 1}, nil
}

func TestLocalDispatcher_DeduplicatesInFlightEvents(t *testing.T) {
	processor := newGatedProcessor()
	dispatcher := NewLocalDispatcher(processor, 4, testLogger())
	event := pendingEvent()

	require.NoError(t, dispatcher.Dispatch(context.Background(), event))
	require.NoError(t, dispatcher.Dispatch(context.Background(), event))

	_, err := dispatcher.Do(context.Background(), event)
	assert.ErrorIs(t, err, ErrAlreadyDispatched)

	close(processor.gate)
	dispatcher.Wait()

	assert.Equal(t, int32(1), processor.calls.Load())

	summary, err := dispatcher.Do(context.Background(), event)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.RulesMatched)
}

func TestLocalDispatcher_BoundsConcurrency(t *testing.T) {
	processor := newGatedProcessor()
	dispatcher := NewLocalDispatcher(processor, 2, testLogger())

	for i := range 10 {
		event := pendingEvent()
		event.ID = fmt.Sprintf("e%d", i)

		require.NoError(t, dispatcher.Dispatch(context.Background(), event))
	}

	close(processor.gate)
	dispatcher.Wait()

	assert.Equal(t, int32(10), processor.calls.Load())
	assert.LessOrEqual(t, processor.peak.Load(), int32(2))
}

func TestLocalDispatcher_OutlivesCallerContext(t *testing.T) {
	processor := newGatedProcessor()
	dispatcher := NewLocalDispatcher(processor, 1, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, dispatcher.Dispatch(ctx, pendingEvent()))
	cancel()

	close(processor.gate)
	dispatcher.Wait()

	assert.Equal(t, int32(1), processor.calls.Load())
	assert.Zero(t, processor.ctxErrs.Load())
}

func TestBusDispatcher_PublishesRecordedEvent(t *testing.T) {
	bus := &mocks.MockEventBus{}
	event := pendingEvent()

	bus.On("Publish", mock.Anything, "h1", mock.MatchedBy(func(recorded events.WorkflowEventRecorded) bool {
		return recorded.EventID == "e1" && recorded.TenantID == "h1" && recorded.Priority == models.PriorityHigh
	})).Return(nil)

	require.NoError(t, NewBusDispatcher(bus).Dispatch(context.Background(), event))
	bus.AssertExpectations(t)
}

func TestLocalDispatcher_ConcurrentDispatchesOfOneEvent(t *testing.T) {
	processor := newGatedProcessor()
	dispatcher := NewLocalDispatcher(processor, 8, testLogger())
	event := pendingEvent()

	var wg sync.WaitGroup

	for range 20 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			_ = dispatcher.Dispatch(context.Background(), event)
		}()
	}

	wg.Wait()
	close(processor.gate)
	dispatcher.Wait()

	assert.Equal(t, int32(1), processor.calls.Load())
}
