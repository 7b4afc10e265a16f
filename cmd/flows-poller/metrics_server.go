package main

import (
	"github.com/dukex/flows/pkg/metrics"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
)

// newMetricsServer exposes /metrics and /livez for the poller process.
func newMetricsServer(collector *metrics.Collector) *fiber.App {
	app := fiber.New()

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get("/metrics", adaptor.HTTPHandler(collector.Handler()))

	return app
}
