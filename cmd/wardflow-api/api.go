// Package main provides the Wardflow API server.
package main

import (
	"log/slog"
	"strconv"

	"github.com/dukex/wardflow/pkg/cmd"
	"github.com/dukex/wardflow/pkg/web"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
)

type API struct {
	logger *slog.Logger
	stack  *cmd.Stack
	app    *fiber.App
}

func NewAPI(logger *slog.Logger, stack *cmd.Stack) *API {
	return &API{
		logger: logger,
		stack:  stack,
	}
}

func (a *API) App() *fiber.App {
	if a.app != nil {
		return a.app
	}

	handlers := web.NewAPIHandlers(a.stack.Engine, a.stack.Audit, a.stack.Rules, a.stack.Store, a.stack.Validate)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Wardflow API")
	})

	handlers.Routes(app)

	a.app = app

	return app
}

func (a *API) Start(port int) error {
	a.logger.Info("Wardflow API listening", "port", port)

	return a.App().Listen(":" + strconv.Itoa(port))
}

func (a *API) Shutdown() error {
	return a.App().Shutdown()
}
