package cmd

import (
	"log/slog"

	"github.com/dukex/wardflow/pkg/actions"
	"github.com/dukex/wardflow/pkg/audit"
	"github.com/dukex/wardflow/pkg/persistence"
	"github.com/dukex/wardflow/pkg/rules"
	"github.com/dukex/wardflow/pkg/workflow"
	"github.com/go-playground/validator/v10"
)

// Stack is the rule engine with its collaborators, all backed by one entity store.
type Stack struct {
	Store    persistence.Store
	Audit    *audit.Log
	Rules    *rules.Repository
	Executor *actions.Executor
	Engine   *workflow.Engine
	Validate *validator.Validate
}

// NewStack wires the engine. functionsURL selects the HTTP function invoker; when it is empty,
// InvokeExternalFunction actions fail.
func NewStack(store persistence.Store, functionsURL, functionsToken string, logger *slog.Logger) *Stack {
	validate := validator.New(validator.WithRequiredStructEnabled())

	var invoker actions.FunctionInvoker
	if functionsURL != "" {
		invoker = actions.NewHTTPInvoker(functionsURL, functionsToken, 3, logger)
	}

	auditLog := audit.NewLog(store, logger)
	repo := rules.NewRepository(store, validate, logger)
	executor := actions.NewExecutor(store, invoker, logger)

	return &Stack{
		Store:    store,
		Audit:    auditLog,
		Rules:    repo,
		Executor: executor,
		Engine:   workflow.NewEngine(auditLog, repo, executor, logger),
		Validate: validate,
	}
}
