// Package actions performs the side effects requested by workflow rules.
package actions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/wardflow/pkg/models"
	"github.com/dukex/wardflow/pkg/otelhelper"
	"github.com/dukex/wardflow/pkg/persistence"
	"github.com/dukex/wardflow/pkg/template"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var (
	ErrMissingEntityRef = errors.New("no entity_ref on the action or the event")
	ErrProtectedEntity  = errors.New("entity type is owned by the workflow engine")
)

// FunctionInvoker calls a named server-side function on behalf of a tenant.
type FunctionInvoker interface {
	Invoke(ctx context.Context, tenantID, name string, args map[string]any) (map[string]any, error)
}

// Executor turns each action variant into exactly one entity store write or function call.
type Executor struct {
	store   persistence.Store
	invoker FunctionInvoker
	tracer  trace.Tracer
	logger  *slog.Logger
	now     func() time.Time
}

// NewExecutor creates an executor. invoker may be nil, in which case
// InvokeExternalFunction actions fail.
func NewExecutor(store persistence.Store, invoker FunctionInvoker, logger *slog.Logger) *Executor {
	return &Executor{
		store:   store,
		invoker: invoker,
		tracer:  otel.Tracer("wardflow/actions"),
		logger:  logger.With("module", "actions"),
		now:     time.Now,
	}
}

// Execute runs one action for an event. Failures are reported in the outcome and never panic
// or abort the caller.
func (e *Executor) Execute(ctx context.Context, action models.WorkflowAction, event *models.WorkflowEvent) models.ActionOutcome {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "action.execute",
		attribute.String(otelhelper.ActionTypeKey, string(action.Kind())),
		attribute.String(otelhelper.EventIDKey, event.ID),
		attribute.String(otelhelper.TenantIDKey, event.TenantID),
	)
	defer span.End()

	var err error

	switch a := action.(type) {
	case models.CreateTask:
		err = e.createTask(ctx, a, event)
	case models.SendNotification:
		err = e.sendNotification(ctx, a, event)
	case models.UpdateEntityStatus:
		err = e.updateEntityStatus(ctx, a, event)
	case models.InvokeExternalFunction:
		err = e.invokeFunction(ctx, a, event)
	case models.Escalate:
		err = e.escalate(ctx, a, event)
	default:
		err = fmt.Errorf("%w: %T", models.ErrUnknownActionKind, action)
	}

	if err != nil {
		otelhelper.SetError(span, err)

		e.logger.WarnContext(ctx, "Action failed",
			"tenant_id", event.TenantID,
			"event_id", event.ID,
			"action_type", action.Kind(),
			"error", err)

		return models.Failed(err.Error())
	}

	return models.Succeeded()
}

func (e *Executor) createTask(ctx context.Context, action models.CreateTask, event *models.WorkflowEvent) error {
	message, err := template.RenderString(action.Message, event.Document())
	if err != nil {
		return err
	}

	metadata, err := template.RenderValues(action.Metadata, event.Document())
	if err != nil {
		return err
	}

	return e.insert(ctx, models.EntityTasks, models.Task{
		TenantID:      event.TenantID,
		EventID:       event.ID,
		AssignedRole:  action.TargetRole,
		AssignedActor: action.TargetActor,
		Message:       message,
		Metadata:      metadata,
		Priority:      event.Priority,
		Status:        models.TaskOpen,
		EntityRef:     event.EntityRef,
		CreatedAt:     e.now().UTC(),
	})
}

func (e *Executor) sendNotification(ctx context.Context, action models.SendNotification, event *models.WorkflowEvent) error {
	message, err := template.RenderString(action.Message, event.Document())
	if err != nil {
		return err
	}

	recipient, err := template.RenderString(action.TargetActor, event.Document())
	if err != nil {
		return err
	}

	return e.insert(ctx, models.EntityNotifications, models.Notification{
		TenantID:       event.TenantID,
		EventID:        event.ID,
		RecipientActor: recipient,
		Message:        message,
		Severity:       action.Severity,
		CreatedAt:      e.now().UTC(),
	})
}

func (e *Executor) updateEntityStatus(ctx context.Context, action models.UpdateEntityStatus, event *models.WorkflowEvent) error {
	ref := action.EntityRef
	if ref == nil {
		ref = event.EntityRef
	}

	if ref == nil {
		return ErrMissingEntityRef
	}

	switch ref.Type {
	case models.EntityWorkflowEvents, models.EntityWorkflowRules, models.EntityActionLog:
		return fmt.Errorf("%w: %s", ErrProtectedEntity, ref.Type)
	}

	_, err := e.store.Update(ctx, ref.Type, event.TenantID, ref.ID, map[string]any{
		"status":          action.NewStatus,
		"status_event_id": event.ID,
	})

	return err
}

func (e *Executor) invokeFunction(ctx context.Context, action models.InvokeExternalFunction, event *models.WorkflowEvent) error {
	if e.invoker == nil {
		return fmt.Errorf("no function invoker configured for %s", action.FunctionName)
	}

	args, err := template.RenderValues(action.Args, event.Document())
	if err != nil {
		return err
	}

	if args == nil {
		args = map[string]any{}
	}

	args["event_id"] = event.ID

	result, err := e.invoker.Invoke(ctx, event.TenantID, action.FunctionName, args)
	if err != nil {
		return fmt.Errorf("function %s failed: %w", action.FunctionName, err)
	}

	e.logger.DebugContext(ctx, "External function invoked",
		"function", action.FunctionName,
		"event_id", event.ID,
		"result", result)

	return nil
}

func (e *Executor) escalate(ctx context.Context, action models.Escalate, event *models.WorkflowEvent) error {
	reason, err := template.RenderString(action.Reason, event.Document())
	if err != nil {
		return err
	}

	return e.insert(ctx, models.EntityEscalations, models.Escalation{
		TenantID:  event.TenantID,
		EventID:   event.ID,
		Reason:    reason,
		Severity:  action.Severity,
		EntityRef: event.EntityRef,
		RaisedBy:  event.SourceActor,
		Status:    "open",
		CreatedAt: e.now().UTC(),
	})
}

func (e *Executor) insert(ctx context.Context, entityType string, value any) error {
	record, err := models.ToRecord(value)
	if err != nil {
		return err
	}

	delete(record, "id")

	_, err = e.store.Insert(ctx, entityType, record)

	return err
}
