package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/ManuelReschke/BetSync/app/controllers"
	"github.com/ManuelReschke/BetSync/internal/pkg/betsync"
	"github.com/ManuelReschke/BetSync/internal/pkg/config"
	"github.com/ManuelReschke/BetSync/internal/pkg/env"
	"github.com/ManuelReschke/BetSync/internal/pkg/metrics"
	"github.com/ManuelReschke/BetSync/internal/pkg/router"
)

const openAPIFile = "docs/openapi.yml"

// NewApplication builds the fiber app serving the sync API
func NewApplication(o *betsync.Orchestrator) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName: "betsync",
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// SWAGGER / OPENAPI
	if _, err := os.Stat(openAPIFile); err == nil {
		app.Use(swagger.New(swagger.Config{
			BasePath: "/docs/api/",
			FilePath: openAPIFile,
			Path:     "v1",
		}))
	} else {
		log.Warnf("[Server] %s not found, API docs disabled", openAPIFile)
	}

	// ROUTER
	router.InstallRouter(app, controllers.NewBetSyncController(o), metrics.Default())

	return app
}

func runServe(cfg *config.SyncConfig) error {
	a := newApplication(cfg)
	m := a.manager(true)
	m.Start()
	defer m.Stop()

	app := NewApplication(a.orchestrator)

	go func() {
		waitForSignal()
		log.Info("[Server] Shutting down...")
		if err := app.Shutdown(); err != nil {
			log.Errorf("[Server] Shutdown failed: %v", err)
		}
	}()

	addr := fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000"))
	return app.Listen(addr)
}

func runWorker(cfg *config.SyncConfig) error {
	a := newApplication(cfg)
	m := a.manager(false)
	m.Start()

	log.Infof("[Worker] Processing background syncs with %d workers", cfg.QueueWorkers)
	waitForSignal()
	log.Info("[Worker] Shutting down...")
	m.Stop()
	return nil
}

func waitForSignal() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
}
