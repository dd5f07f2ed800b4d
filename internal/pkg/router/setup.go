package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/BetSync/app/controllers"
	"github.com/ManuelReschke/BetSync/internal/pkg/metrics"
)

// Router installs a group of routes
type Router interface {
	InstallRouter(app *fiber.App)
}

// InstallRouter registers the sync API and the operational routes
func InstallRouter(app *fiber.App, betSync *controllers.BetSyncController, m *metrics.Manager) {
	setup(app, NewOpsRouter(m), NewApiRouter(betSync))
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
