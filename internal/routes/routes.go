package routes

import (
	"review-metrics-service/internal/controller"

	"github.com/gofiber/fiber/v2"
)

// Register attaches all HTTP routes to the Fiber app.
func Register(app *fiber.App, metricsController controller.MetricsController) {
	api := app.Group("/api/1")
	api.Get("/metrics", metricsController.ListMetrics)
	api.Get("/metrics/:name", metricsController.GetMetric)

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
}
