// Package main is the entry point for the orchestrator process: it
// schedules digest/silent preset runs and exposes a minimal health
// surface, following the teacher's cmd/api/main.go wiring idiom
// (env-var helpers, constructor injection, fiber health routes) scaled
// down from the teacher's full REST API to this background service's
// liveness/readiness needs.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/dealwatch/scout/internal/config"
	"github.com/dealwatch/scout/internal/monitoring"
	"github.com/dealwatch/scout/internal/orchestrator"
	"github.com/dealwatch/scout/internal/presets"
	"github.com/dealwatch/scout/internal/queue"
	"github.com/dealwatch/scout/internal/store"
	"github.com/dealwatch/scout/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.Load()
	log := logger.New()

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Error("failed to parse redis url", "err", err)
		os.Exit(1)
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()

	db, err := store.Open(ctx, cfg.DBURL)
	if err != nil {
		log.Error("failed to connect to database", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	p, err := presets.Load(getEnv("PRESETS_FILE", "./presets.yaml"))
	if err != nil {
		log.Error("failed to load presets", "err", err)
		os.Exit(1)
	}

	mon := monitoring.New(cfg.MonitoringSlackWebhook, cfg.MonitoringTelegramToken, cfg.MonitoringTelegramChatID, log)
	q := queue.New(redisClient, cfg.QueueStream, mon, cfg.DLQOverflowThreshold)
	users := store.NewUserStore(db.Pool, nil)

	orch := orchestrator.New(q, users, p, cfg, log)
	if err := orch.Start(ctx); err != nil {
		log.Error("failed to start orchestrator", "err", err)
		os.Exit(1)
	}
	defer orch.Stop()

	app := fiber.New(fiber.Config{AppName: "dealwatch-orchestrator"})
	app.Get("/healthz", func(c *fiber.Ctx) error {
		if err := db.Health(c.Context()); err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "unhealthy", "error": err.Error()})
		}
		return c.JSON(fiber.Map{"status": "ok"})
	})

	port := getEnv("PORT", "8081")
	go func() {
		if err := app.Listen(":" + port); err != nil {
			log.Error("health server stopped", "err", err)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down orchestrator")
	_ = app.Shutdown()
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
