package router

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/ManuelReschke/BetSync/app/controllers"
	"github.com/ManuelReschke/BetSync/internal/pkg/env"
)

type ApiRouter struct {
	betSync *controllers.BetSyncController
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api", limiter.New(limiter.Config{
		Max:        env.GetEnvInt("API_RATE_LIMIT", 60),
		Expiration: time.Minute,
	}))
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	// API v1 routes
	v1 := api.Group("/v1")
	bets := v1.Group("/sync-bets")
	bets.Post("", h.betSync.HandleSyncToday)
	bets.Post("/date-range", h.betSync.HandleSyncDateRange)
	bets.Post("/background", h.betSync.HandleSyncBackground)
	bets.Get("/jobs/:jobId", h.betSync.HandleGetJobStatus)
}

func NewApiRouter(betSync *controllers.BetSyncController) *ApiRouter {
	return &ApiRouter{betSync: betSync}
}
