// Package web exposes event ingestion and rule administration over HTTP.
package web

import (
	"context"
	"net/http"
	"time"

	"github.com/dukex/wardflow/pkg/models"
	"github.com/dukex/wardflow/pkg/workflow"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

type Triggerer interface {
	Trigger(ctx context.Context, req workflow.TriggerRequest) (string, error)
}

type EventReader interface {
	Event(ctx context.Context, tenantID, id string) (*models.WorkflowEvent, error)
	Actions(ctx context.Context, tenantID, eventID string) ([]models.ActionLogEntry, error)
}

type RuleStore interface {
	List(ctx context.Context, tenantID string) ([]*models.WorkflowRule, error)
	Get(ctx context.Context, tenantID, id string) (*models.WorkflowRule, error)
	Save(ctx context.Context, rule *models.WorkflowRule) (*models.WorkflowRule, error)
	Delete(ctx context.Context, tenantID, id string) error
}

type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

type APIHandlers struct {
	engine    Triggerer
	events    EventReader
	rules     RuleStore
	health    HealthChecker
	validator *validator.Validate
}

func NewAPIHandlers(
	engine Triggerer,
	events EventReader,
	rules RuleStore,
	health HealthChecker,
	validator *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		engine:    engine,
		events:    events,
		rules:     rules,
		health:    health,
		validator: validator,
	}
}

// Routes mounts every endpoint on router.
func (h *APIHandlers) Routes(router fiber.Router) {
	router.Get("/health", h.HealthCheck)

	tenant := router.Group("/tenants/:tenant")
	tenant.Post("/events", h.TriggerEvent)
	tenant.Get("/events/:id", h.GetEvent)

	tenant.Get("/rules", h.ListRules)
	tenant.Post("/rules", h.CreateRule)
	tenant.Get("/rules/:id", h.GetRule)
	tenant.Put("/rules/:id", h.ReplaceRule)
	tenant.Delete("/rules/:id", h.DeleteRule)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	status := "healthy"
	httpStatus := http.StatusOK
	check := "ok"

	err := h.health.HealthCheck(c.Context())
	if err != nil {
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
		check = err.Error()
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status": status,
		"checkers": fiber.Map{
			"store": check,
		},
		"timestamp": time.Now().UTC(),
	})
}

// TriggerEvent records an event and answers once it is durable; rules run asynchronously.
func (h *APIHandlers) TriggerEvent(c fiber.Ctx) error {
	var req TriggerEventRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, errInvalidJSON.Error())
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	eventID, err := h.engine.Trigger(c.Context(), req.toTrigger(c.Params("tenant")))
	if err != nil {
		return handleError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(TriggerEventResponse{EventID: eventID})
}

func (h *APIHandlers) GetEvent(c fiber.Ctx) error {
	tenantID := c.Params("tenant")

	event, err := h.events.Event(c.Context(), tenantID, c.Params("id"))
	if err != nil {
		return handleError(c, err)
	}

	actions, err := h.events.Actions(c.Context(), tenantID, event.ID)
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(EventResponse{Event: event, Actions: actions})
}

func (h *APIHandlers) ListRules(c fiber.Ctx) error {
	list, err := h.rules.List(c.Context(), c.Params("tenant"))
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{
		"rules":       list,
		"total_count": len(list),
	})
}

func (h *APIHandlers) GetRule(c fiber.Ctx) error {
	rule, err := h.rules.Get(c.Context(), c.Params("tenant"), c.Params("id"))
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(rule)
}

func (h *APIHandlers) CreateRule(c fiber.Ctx) error {
	req, err := h.bindRule(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	created, err := h.rules.Save(c.Context(), req.toRule(c.Params("tenant"), ""))
	if err != nil {
		return handleError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

// ReplaceRule overwrites an existing rule; it never creates one.
func (h *APIHandlers) ReplaceRule(c fiber.Ctx) error {
	tenantID := c.Params("tenant")
	id := c.Params("id")

	req, err := h.bindRule(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	_, err = h.rules.Get(c.Context(), tenantID, id)
	if err != nil {
		return handleError(c, err)
	}

	updated, err := h.rules.Save(c.Context(), req.toRule(tenantID, id))
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(updated)
}

func (h *APIHandlers) DeleteRule(c fiber.Ctx) error {
	err := h.rules.Delete(c.Context(), c.Params("tenant"), c.Params("id"))
	if err != nil {
		return handleError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) bindRule(c fiber.Ctx) (*RuleRequest, error) {
	var req RuleRequest
	if err := c.Bind().JSON(&req); err != nil {
		return nil, errInvalidJSON
	}

	if err := h.validator.Struct(req); err != nil {
		return nil, err
	}

	return &req, nil
}
