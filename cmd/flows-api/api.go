package main

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/dukex/flows/pkg/eventbus"
	"github.com/dukex/flows/pkg/metrics"
	"github.com/dukex/flows/pkg/persistence"
	"github.com/dukex/flows/pkg/registry"
	"github.com/dukex/flows/pkg/services"
	"github.com/dukex/flows/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
)

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	registry    *registry.Registry
	publisher   eventbus.EventPublisher
	metrics     *metrics.Collector
	validate    *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	persistence persistence.Persistence,
	registry *registry.Registry,
	publisher eventbus.EventPublisher,
	collector *metrics.Collector,
) *API {
	return &API{
		logger:      logger,
		persistence: persistence,
		registry:    registry,
		publisher:   publisher,
		metrics:     collector,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	workflowService := services.NewWorkflow(a.logger, a.persistence, a.registry)

	var runOpts []services.RunOption
	if a.publisher != nil {
		runOpts = append(runOpts, services.WithRunPublisher(a.publisher))
	}

	runService := services.NewRun(a.logger, a.persistence, runOpts...)

	handlers := web.NewAPIHandlers(workflowService, runService, a.validate)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker(healthcheck.Config{
		Probe: func(c fiber.Ctx) bool {
			return a.persistence.HealthCheck(c.Context()) == nil
		},
	}))

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Flows API")
	})

	if a.metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(a.metrics.Handler()))
	}

	handlers.Register(app)

	return app
}

func (a *API) Start(ctx context.Context, port int) error {
	app := a.App()

	go func() {
		<-ctx.Done()

		if err := app.Shutdown(); err != nil {
			a.logger.Error("Failed to shut down API server", "error", err)
		}
	}()

	return app.Listen(":" + strconv.Itoa(port))
}
