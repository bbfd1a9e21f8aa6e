package workflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dukex/wardflow/pkg/mocks"
	"github.com/dukex/wardflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type pendingStub struct {
	events []*models.WorkflowEvent
	err    error
	cutoff time.Time
	limit  int
}

func (p *pendingStub) Unprocessed(_ context.Context, createdBefore time.Time, limit int) ([]*models.WorkflowEvent, error) {
	p.cutoff = createdBefore
	p.limit = limit

	return p.events, p.err
}

func TestRecoverer_SweepDispatchesStaleEvents(t *testing.T) {
	first := pendingEvent()
	second := pendingEvent()
	second.ID = "e2"

	pending := &pendingStub{events: []*models.WorkflowEvent{first, second}}
	dispatcher := &mocks.MockDispatcher{}
	dispatcher.On("Dispatch", mock.Anything, first).Return(nil)
	dispatcher.On("Dispatch", mock.Anything, second).Return(errors.New("bus down"))

	now := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	recoverer := NewRecoverer(pending, dispatcher, 2*time.Minute, 50, testLogger())
	recoverer.now = func() time.Time { return now }

	count, err := recoverer.Sweep(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, count)
	assert.Equal(t, now.Add(-2*time.Minute), pending.cutoff)
	assert.Equal(t, 50, pending.limit)
	dispatcher.AssertExpectations(t)
}

func TestRecoverer_SweepReportsListFailure(t *testing.T) {
	recoverer := NewRecoverer(&pendingStub{err: errors.New("timeout")}, &mocks.MockDispatcher{}, time.Minute, 10, testLogger())

	_, err := recoverer.Sweep(context.Background())
	assert.Error(t, err)
}

func TestRecoverer_Schedule(t *testing.T) {
	recoverer := NewRecoverer(&pendingStub{}, &mocks.MockDispatcher{}, time.Minute, 10, testLogger())

	assert.Error(t, recoverer.Schedule(context.Background(), "every now and then"))

	require.NoError(t, recoverer.Schedule(context.Background(), "*/5 * * * *"))
	recoverer.Stop()
}
