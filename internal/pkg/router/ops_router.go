package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/ManuelReschke/BetSync/internal/pkg/metrics"
)

// OpsRouter serves health and Prometheus metrics
type OpsRouter struct {
	metrics *metrics.Manager
}

func (h OpsRouter) InstallRouter(app *fiber.App) {
	app.Get("/healthz", func(ctx *fiber.Ctx) error {
		return ctx.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/metrics", adaptor.HTTPHandler(h.metrics.Handler()))
}

func NewOpsRouter(m *metrics.Manager) *OpsRouter {
	if m == nil {
		m = metrics.Default()
	}
	return &OpsRouter{metrics: m}
}
