// Package workflow records workflow events and runs the matching tenant rules against them.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/wardflow/pkg/audit"
	"github.com/dukex/wardflow/pkg/metrics"
	"github.com/dukex/wardflow/pkg/models"
	"github.com/dukex/wardflow/pkg/otelhelper"
	"github.com/dukex/wardflow/pkg/predicate"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const DefaultConcurrency = 16

type AuditLog interface {
	Append(ctx context.Context, event *models.WorkflowEvent) error
	RecordAction(ctx context.Context, entry models.ActionLogEntry) error
	Complete(ctx context.Context, event *models.WorkflowEvent, summary models.ProcessingSummary, at time.Time) error
}

type RuleSource interface {
	ActiveRules(ctx context.Context, tenantID, eventType string) ([]*models.WorkflowRule, error)
	Touch(ctx context.Context, rule *models.WorkflowRule, at time.Time) error
}

type ActionExecutor interface {
	Execute(ctx context.Context, action models.WorkflowAction, event *models.WorkflowEvent) models.ActionOutcome
}

// Dispatcher hands a durable event over to rule processing without waiting for it.
type Dispatcher interface {
	Dispatch(ctx context.Context, event *models.WorkflowEvent) error
}

type Processor interface {
	Process(ctx context.Context, event *models.WorkflowEvent) (models.ProcessingSummary, error)
}

// TriggerRequest is what producers send to start a workflow event.
type TriggerRequest struct {
	TenantID    string            `json:"tenant_id"             validate:"required"`
	EventType   string            `json:"event_type"            validate:"required"`
	SourceActor string            `json:"source_actor"          validate:"required"`
	SourceRole  string            `json:"source_role,omitempty"`
	EntityRef   *models.EntityRef `json:"entity_ref,omitempty"`
	Payload     map[string]any    `json:"payload"`
	Priority    models.Priority   `json:"priority,omitempty"    validate:"omitempty,oneof=low normal high urgent"`
}

type Engine struct {
	audit      AuditLog
	rules      RuleSource
	executor   ActionExecutor
	dispatcher Dispatcher
	validate   *validator.Validate
	tracer     trace.Tracer
	logger     *slog.Logger
	now        func() time.Time
}

// NewEngine creates an engine that processes events in-process with a LocalDispatcher.
// Call UseDispatcher to hand events to another process instead.
func NewEngine(auditLog AuditLog, rules RuleSource, executor ActionExecutor, logger *slog.Logger) *Engine {
	engine := &Engine{
		audit:    auditLog,
		rules:    rules,
		executor: executor,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		tracer:   otel.Tracer("wardflow/workflow"),
		logger:   logger.With("module", "workflow_engine"),
		now:      time.Now,
	}

	engine.dispatcher = NewLocalDispatcher(engine, DefaultConcurrency, logger)

	return engine
}

func (e *Engine) UseDispatcher(dispatcher Dispatcher) {
	e.dispatcher = dispatcher
}

func (e *Engine) Dispatcher() Dispatcher {
	return e.dispatcher
}

// Trigger records the event and dispatches it. It returns once the event is durable.
// Only a failed append is reported, as a *DispatchFailure.
func (e *Engine) Trigger(ctx context.Context, req TriggerRequest) (string, error) {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "workflow.trigger",
		attribute.String(otelhelper.TenantIDKey, req.TenantID),
		attribute.String(otelhelper.EventTypeKey, req.EventType),
	)
	defer span.End()

	err := e.validate.Struct(req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidTrigger, err)
	}

	event, err := e.newEvent(req)
	if err != nil {
		return "", &DispatchFailure{TenantID: req.TenantID, EventType: req.EventType, Err: err}
	}

	span.SetAttributes(attribute.String(otelhelper.EventIDKey, event.ID))

	err = e.audit.Append(ctx, event)
	if err != nil {
		failure := &DispatchFailure{TenantID: req.TenantID, EventType: req.EventType, Err: err}

		otelhelper.SetError(span, failure)
		metrics.DispatchFailures.Inc()
		e.logger.ErrorContext(ctx, "Failed to record workflow event",
			"tenant_id", req.TenantID,
			"event_type", req.EventType,
			"error", err)

		return "", failure
	}

	metrics.EventsTriggered.WithLabelValues(event.EventType).Inc()

	err = e.dispatcher.Dispatch(ctx, event)
	if err != nil {
		e.logger.WarnContext(ctx, "Workflow event recorded but not dispatched, leaving it to recovery",
			"tenant_id", event.TenantID,
			"event_id", event.ID,
			"error", err)
	}

	return event.ID, nil
}

func (e *Engine) newEvent(req TriggerRequest) (*models.WorkflowEvent, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate event id: %w", err)
	}

	priority := req.Priority
	if priority == "" {
		priority = models.PriorityNormal
	}

	payload := req.Payload
	if payload == nil {
		payload = map[string]any{}
	}

	return &models.WorkflowEvent{
		ID:          id.String(),
		TenantID:    req.TenantID,
		EventType:   req.EventType,
		SourceActor: req.SourceActor,
		SourceRole:  req.SourceRole,
		EntityRef:   req.EntityRef,
		Payload:     payload,
		Priority:    priority,
		CreatedAt:   e.now().UTC(),
	}, nil
}

// Process runs every active rule matching the event and then marks it processed.
// Action failures are counted in the summary; an error means the event was left unprocessed
// (rules could not be loaded) or had already been processed.
func (e *Engine) Process(ctx context.Context, event *models.WorkflowEvent) (models.ProcessingSummary, error) {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "workflow.process",
		attribute.String(otelhelper.TenantIDKey, event.TenantID),
		attribute.String(otelhelper.EventIDKey, event.ID),
		attribute.String(otelhelper.EventTypeKey, event.EventType),
	)
	defer span.End()

	var summary models.ProcessingSummary

	if event.Processed() {
		return event.Summary, fmt.Errorf("%w: %s", audit.ErrAlreadyProcessed, event.ID)
	}

	logger := e.logger.With("tenant_id", event.TenantID, "event_id", event.ID, "event_type", event.EventType)
	start := e.now()

	rules, err := e.rules.ActiveRules(ctx, event.TenantID, event.EventType)
	if err != nil {
		otelhelper.SetError(span, err)
		logger.ErrorContext(ctx, "Failed to load rules, event stays unprocessed", "error", err)

		return summary, fmt.Errorf("failed to load rules for event %s: %w", event.ID, err)
	}

	doc := event.Document()

	for _, rule := range rules {
		matched, err := predicate.Match(rule.Conditions, doc)
		if err != nil {
			logger.WarnContext(ctx, "Skipping rule with invalid conditions", "rule_id", rule.ID, "error", err)

			continue
		}

		if !matched {
			continue
		}

		summary.RulesMatched++
		metrics.RulesMatched.WithLabelValues(event.EventType).Inc()

		e.runRule(ctx, rule, event, &summary)

		err = e.rules.Touch(ctx, rule, e.now())
		if err != nil {
			logger.WarnContext(ctx, "Failed to update last_triggered_at", "rule_id", rule.ID, "error", err)
		}
	}

	err = e.audit.Complete(ctx, event, summary, e.now())
	if err != nil {
		if errors.Is(err, audit.ErrAlreadyProcessed) {
			logger.InfoContext(ctx, "Workflow event was completed by another run")
		} else {
			otelhelper.SetError(span, err)
			logger.ErrorContext(ctx, "Failed to mark workflow event processed", "error", err)
		}

		return summary, err
	}

	metrics.EventProcessingDuration.WithLabelValues(event.EventType).Observe(e.now().Sub(start).Seconds())

	logger.InfoContext(ctx, "Workflow event processed",
		"rules_matched", summary.RulesMatched,
		"actions_succeeded", summary.ActionsSucceeded,
		"actions_failed", summary.ActionsFailed)

	return summary, nil
}

// runRule executes the rule's actions in order. A failed action never stops the next one.
func (e *Engine) runRule(ctx context.Context, rule *models.WorkflowRule, event *models.WorkflowEvent, summary *models.ProcessingSummary) {
	for index, action := range rule.Actions {
		outcome := e.executor.Execute(ctx, action, event)

		if outcome.OK() {
			summary.ActionsSucceeded++
		} else {
			summary.ActionsFailed++

			failure := &ActionFailure{
				EventID: event.ID,
				RuleID:  rule.ID,
				Index:   index,
				Kind:    action.Kind(),
				Reason:  outcome.Reason,
			}

			e.logger.WarnContext(ctx, failure.Error(),
				"tenant_id", event.TenantID,
				"event_id", event.ID,
				"rule_id", rule.ID,
				"action_type", action.Kind())
		}

		metrics.ActionOutcomes.WithLabelValues(string(action.Kind()), string(outcome.Status)).Inc()

		err := e.audit.RecordAction(ctx, models.ActionLogEntry{
			TenantID:    event.TenantID,
			EventID:     event.ID,
			RuleID:      rule.ID,
			ActionIndex: index,
			ActionType:  action.Kind(),
			Status:      outcome.Status,
			Error:       outcome.Reason,
			ExecutedAt:  e.now().UTC(),
		})
		if err != nil {
			e.logger.ErrorContext(ctx, "Failed to record action outcome",
				"event_id", event.ID,
				"rule_id", rule.ID,
				"action_index", index,
				"error", err)
		}
	}
}
