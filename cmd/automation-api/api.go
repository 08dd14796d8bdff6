package main

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"

	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/cmd"
	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/metrics"
	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/web"
)

type API struct {
	engine *cmd.Engine
	logger *slog.Logger
}

func NewAPI(engine *cmd.Engine, logger *slog.Logger) *API {
	return &API{
		engine: engine,
		logger: logger,
	}
}

func (a *API) App() *fiber.App {
	handlers := web.NewAPIHandlers(web.Dependencies{
		Persistence: a.engine.Persistence,
		Workflows:   a.engine.Workflows,
		Lifecycle:   a.engine.Lifecycle,
		Matcher:     a.engine.Matcher,
		Enrollments: a.engine.Enrollments,
		Executor:    a.engine.Executor,
		Recorder:    a.engine.Recorder,
		Publisher:   a.engine.Bus,
		Validator:   a.engine.Validator,
		Clock:       a.engine.Clock,
	})

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Automation API")
	})

	web.Register(app, handlers)

	return app
}

// Start serves until ctx is cancelled.
func (a *API) Start(ctx context.Context, port int) error {
	app := a.App()

	go func() {
		<-ctx.Done()

		if err := app.Shutdown(); err != nil {
			a.logger.Error("Failed to shut down API", "error", err)
		}
	}()

	a.logger.InfoContext(ctx, "Listening", "port", port)

	return app.Listen(":" + strconv.Itoa(port))
}
