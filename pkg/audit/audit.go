// Package audit records workflow events before they are processed and tracks their completion.
package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/wardflow/pkg/models"
	"github.com/dukex/wardflow/pkg/persistence"
	"github.com/google/uuid"
)

var (
	ErrAlreadyProcessed = errors.New("workflow event already processed")
	ErrEventNotFound    = errors.New("workflow event not found")
)

// Log is the audit trail of workflow events and the actions run for them.
type Log struct {
	store  persistence.Store
	logger *slog.Logger
}

func NewLog(store persistence.Store, logger *slog.Logger) *Log {
	return &Log{
		store:  store,
		logger: logger.With("module", "audit"),
	}
}

// Append durably records a new event. The event must carry an id and must not be processed.
func (l *Log) Append(ctx context.Context, event *models.WorkflowEvent) error {
	if event.ID == "" {
		return fmt.Errorf("%w: event id is required", persistence.ErrInvalidRecord)
	}

	if event.Processed() {
		return fmt.Errorf("%w: new events cannot carry processed_at", persistence.ErrInvalidRecord)
	}

	record, err := models.ToRecord(event)
	if err != nil {
		return err
	}

	record["processed_at"] = nil

	_, err = l.store.Insert(ctx, models.EntityWorkflowEvents, record)
	if err != nil {
		return fmt.Errorf("failed to append workflow event %s: %w", event.ID, err)
	}

	l.logger.DebugContext(ctx, "Workflow event appended",
		"tenant_id", event.TenantID,
		"event_id", event.ID,
		"event_type", event.EventType)

	return nil
}

// RecordAction stores the outcome of one action. Entries are never updated.
func (l *Log) RecordAction(ctx context.Context, entry models.ActionLogEntry) error {
	if entry.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate action log id: %w", err)
		}

		entry.ID = id.String()
	}

	record, err := models.ToRecord(entry)
	if err != nil {
		return err
	}

	_, err = l.store.Insert(ctx, models.EntityActionLog, record)
	if err != nil {
		return fmt.Errorf("failed to record action %d of rule %s for event %s: %w",
			entry.ActionIndex, entry.RuleID, entry.EventID, err)
	}

	return nil
}

// Complete stores the processing summary and sets processed_at. processed_at is written at most
// once; a second completion returns ErrAlreadyProcessed and leaves the first timestamp in place.
func (l *Log) Complete(ctx context.Context, event *models.WorkflowEvent, summary models.ProcessingSummary, at time.Time) error {
	_, err := l.store.Update(ctx, models.EntityWorkflowEvents, event.TenantID, event.ID, map[string]any{
		"summary": summary,
	})
	if err != nil {
		if persistence.IsRecordNotFound(err) {
			return fmt.Errorf("%w: %s", ErrEventNotFound, event.ID)
		}

		return fmt.Errorf("failed to store summary for event %s: %w", event.ID, err)
	}

	written, err := l.store.SetOnce(ctx, models.EntityWorkflowEvents, event.TenantID, event.ID, "processed_at", at.UTC())
	if err != nil {
		return fmt.Errorf("failed to mark event %s processed: %w", event.ID, err)
	}

	if !written {
		return fmt.Errorf("%w: %s", ErrAlreadyProcessed, event.ID)
	}

	return nil
}

func (l *Log) Event(ctx context.Context, tenantID, id string) (*models.WorkflowEvent, error) {
	record, err := l.store.Get(ctx, models.EntityWorkflowEvents, tenantID, id)
	if err != nil {
		if persistence.IsRecordNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrEventNotFound, id)
		}

		return nil, err
	}

	var event models.WorkflowEvent

	err = models.FromRecord(record, &event)
	if err != nil {
		return nil, err
	}

	return &event, nil
}

// Unprocessed returns events without processed_at created before the cutoff, oldest first,
// across every tenant.
func (l *Log) Unprocessed(ctx context.Context, createdBefore time.Time, limit int) ([]*models.WorkflowEvent, error) {
	records, err := l.store.Query(ctx, models.EntityWorkflowEvents, persistence.Query{
		Where: map[string]any{"processed_at": nil},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query unprocessed events: %w", err)
	}

	events := make([]*models.WorkflowEvent, 0, len(records))

	for _, record := range records {
		var event models.WorkflowEvent

		err := models.FromRecord(record, &event)
		if err != nil {
			l.logger.WarnContext(ctx, "Skipping undecodable workflow event", "event_id", record.ID(), "error", err)

			continue
		}

		if !event.CreatedAt.Before(createdBefore) {
			continue
		}

		events = append(events, &event)
		if limit > 0 && len(events) == limit {
			break
		}
	}

	return events, nil
}

// Actions returns the action log of an event in execution order.
func (l *Log) Actions(ctx context.Context, tenantID, eventID string) ([]models.ActionLogEntry, error) {
	records, err := l.store.Query(ctx, models.EntityActionLog, persistence.Query{
		TenantID: tenantID,
		Where:    map[string]any{"event_id": eventID},
		OrderBy:  "executed_at",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query action log for event %s: %w", eventID, err)
	}

	entries := make([]models.ActionLogEntry, 0, len(records))

	for _, record := range records {
		var entry models.ActionLogEntry

		err := models.FromRecord(record, &entry)
		if err != nil {
			return nil, err
		}

		entries = append(entries, entry)
	}

	return entries, nil
}
