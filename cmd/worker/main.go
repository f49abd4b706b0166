// Package main is the entry point for a worker process: it consumes one
// shard of the task queue, runs the fetch->score pipeline, and notifies
// subscribers, following the teacher's cmd/api/main.go wiring idiom
// scaled down to this process's narrower surface (health check only, no
// REST API).
package main

import (
	"context"
	"os"
	"os/signal"
	"sort"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/dealwatch/scout/internal/adapters"
	"github.com/dealwatch/scout/internal/apperr"
	"github.com/dealwatch/scout/internal/config"
	"github.com/dealwatch/scout/internal/models"
	"github.com/dealwatch/scout/internal/monitoring"
	"github.com/dealwatch/scout/internal/notifier"
	"github.com/dealwatch/scout/internal/pipeline"
	"github.com/dealwatch/scout/internal/queue"
	"github.com/dealwatch/scout/internal/renderpool"
	"github.com/dealwatch/scout/internal/selectors"
	"github.com/dealwatch/scout/internal/snapshot"
	"github.com/dealwatch/scout/internal/store"
	"github.com/dealwatch/scout/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.Load()
	log := logger.New().With("worker_site", cfg.WorkerSite)

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

	var snap *snapshot.Store
	if cfg.S3Bucket != "" {
		snap, err = snapshot.New(cfg.S3Endpoint, cfg.S3AccessKey, cfg.S3SecretKey, cfg.S3Bucket, cfg.S3UseSSL, cfg.SnapshotTTLDays)
		if err != nil {
			log.Error("failed to connect to snapshot store", "err", err)
			os.Exit(1)
		}
	}

	pool, err := renderpool.New(ctx, cfg.RenderPoolSize, cfg.RenderPerDomain, redisClient, snap, log, cfg.WorkerSite)
	if err != nil {
		log.Error("failed to start render pool", "err", err)
		os.Exit(1)
	}
	defer pool.Stop()

	reg, err := selectors.Load(cfg.SelectorsPath)
	if err != nil {
		log.Warn("failed to load selectors, falling back to built-in defaults", "err", err)
		reg = selectors.Registry{}
	}

	mon := monitoring.New(cfg.MonitoringSlackWebhook, cfg.MonitoringTelegramToken, cfg.MonitoringTelegramChatID, log)
	q := queue.New(redisClient, cfg.QueueStream, mon, cfg.DLQOverflowThreshold)

	var bot *tgbotapi.BotAPI
	if cfg.TelegramBotToken != "" {
		bot, err = tgbotapi.NewBotAPI(cfg.TelegramBotToken)
		if err != nil {
			log.Warn("failed to init telegram bot, notifications disabled", "err", err)
		}
	}
	notify := notifier.New(redisClient, bot, cfg.DailyMsgLimit, log)
	users := store.NewUserStore(db.Pool, nil)

	deps := pipeline.Deps{
		Adapters: map[string]adapters.Adapter{
			"ozon":   adapters.NewOzon(reg),
			"market": adapters.NewMarket(reg),
		},
		Render:       pool,
		Products:     store.NewProductStore(db.Pool),
		Offers:       store.NewOfferStore(db.Pool),
		History:      store.NewPriceHistoryStore(db.Pool),
		ShippingCost: cfg.ShippingCost,
		DefaultGeoid: cfg.DefaultGeoid,
	}

	handler := func(ctx context.Context, task models.TaskPayload) error {
		if task.ChatID != nil {
			user, err := users.GetByChatID(ctx, *task.ChatID)
			if err != nil {
				log.Warn("profile overlay lookup failed", "chat_id", *task.ChatID, "err", err)
			} else if user != nil {
				// task-supplied geoid wins; the user's own saved
				// thresholds/weights win over the task/preset defaults
				// when the user has set them, per app/worker.py:39-46.
				if task.Geoid == "" {
					task.Geoid = user.Geoid
				}
				if user.MinDiscount != 0 {
					task.MinDiscount = user.MinDiscount
				}
				if user.MinScore != 0 {
					task.MinScore = user.MinScore
				}
				if user.Weights != nil {
					task.Weights = user.Weights
				}
			}
		}

		results, err := pipeline.ProcessPreset(ctx, deps, task)
		if err != nil {
			return err
		}
		if task.Notify && cfg.NotifyChatID != 0 && len(results) > 0 {
			if err := notify.SendBatch(ctx, cfg.NotifyChatID, topByScore(results, 20)); err != nil {
				return apperr.New(apperr.KindTransient, "worker.notify", err)
			}
		}
		return nil
	}

	go func() {
		if err := q.Consume(ctx, cfg.WorkerSite, cfg.WorkerGeoid, cfg.WorkerCategory, "worker-1", handler); err != nil && ctx.Err() == nil {
			log.Error("consume loop exited", "err", err)
		}
	}()

	app := fiber.New(fiber.Config{AppName: "dealwatch-worker"})
	app.Get("/healthz", func(c *fiber.Ctx) error {
		if err := db.Health(c.Context()); err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "unhealthy", "error": err.Error()})
		}
		return c.JSON(fiber.Map{"status": "ok"})
	})

	port := getEnv("PORT", "8082")
	go func() {
		if err := app.Listen(":" + port); err != nil {
			log.Error("health server stopped", "err", err)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down worker")
	_ = app.Shutdown()
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// topByScore returns the n highest-scoring results, descending, mirroring
// app/worker.py's `sorted(results, key=lambda x: x["score"], reverse=True)[:20]`
// cap before a digest is sent.
func topByScore(results []pipeline.Result, n int) []pipeline.Result {
	sorted := make([]pipeline.Result, len(results))
	copy(sorted, results)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Score > sorted[j].Score })
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}
