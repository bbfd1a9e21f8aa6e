package web

import (
	"errors"

	"github.com/dukex/wardflow/pkg/audit"
	"github.com/dukex/wardflow/pkg/rules"
	"github.com/dukex/wardflow/pkg/workflow"
	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"
)

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(fiber.StatusBadRequest).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func notFound(c fiber.Ctx, kind, detail string) error {
	problem := problems.NewStatusProblem(fiber.StatusNotFound).
		WithInstance(c.Path()).
		WithType(kind).
		WithDetail(detail)

	return c.Status(fiber.StatusNotFound).JSON(problem)
}

func internalError(c fiber.Ctx, err error) error {
	problem := problems.NewStatusProblem(fiber.StatusInternalServerError).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(problem)
}

// handleError maps engine and repository errors to problem responses.
func handleError(c fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, workflow.ErrInvalidTrigger), errors.Is(err, rules.ErrInvalidRule):
		return badRequest(c, err.Error())

	case workflow.IsDispatchFailure(err):
		problem := problems.NewStatusProblem(fiber.StatusServiceUnavailable).
			WithInstance(c.Path()).
			WithType("dispatch_failure").
			WithDetail("the event could not be recorded, retry later")

		return c.Status(fiber.StatusServiceUnavailable).JSON(problem)

	case errors.Is(err, audit.ErrEventNotFound):
		return notFound(c, "event_not_found", "workflow event not found")

	case errors.Is(err, rules.ErrRuleNotFound):
		return notFound(c, "rule_not_found", "workflow rule not found")

	default:
		return internalError(c, err)
	}
}

var errInvalidJSON = errors.New("invalid JSON format")
