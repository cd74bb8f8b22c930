package systemRoutes

import (
	controllers "certvault/controllers/certificate"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupSystemRoutes sets up liveness and metrics endpoints
func SetupSystemRoutes(app *fiber.App, h *controllers.CertificateController, gatherer prometheus.Gatherer) {
	app.Get("/healthz", h.Health)
	if gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}
}
