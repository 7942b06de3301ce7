package httpapi

import (
	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nimbusdata/logflow/internal/ingest"
	"github.com/nimbusdata/logflow/internal/platform/metrics"
	"github.com/nimbusdata/logflow/internal/platform/mlog"
)

// NewRouter assembles the fiber app exposing the pipeline's HTTP routes.
func NewRouter(service *ingest.Service, m *metrics.Metrics, logger mlog.Logger) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:      "logflow",
		ErrorHandler: errorHandler,
	})

	app.Use(WithHTTPLogging(logger))

	h := &Handlers{service: service}

	app.Post("/api/log", h.submitLog)
	app.Post("/api/logs/batch", h.submitBatch)
	app.Get("/api/logs/:device_id", h.queryLogs)
	app.Get("/api/stats", h.stats)
	app.Get("/health", h.health)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})))

	return app
}

func errorHandler(c *fiber.Ctx, err error) error {
	return WithError(c, err)
}
