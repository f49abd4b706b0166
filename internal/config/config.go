// Package config loads process configuration from the environment,
// following the teacher's getEnv/getEnvInt helper idiom.
package config

import (
	"os"
	"strconv"
	"strings"
)

type Config struct {
	DBURL       string
	RedisURL    string
	QueueStream string

	ScrapeConcurrency int
	DefaultGeoid      string
	MinDiscount       int
	MinScore          int
	DailyMsgLimit     int
	ShippingCost      int64

	BudgetMaxPages int
	BudgetMaxTasks int
	QuietHoursFrom int
	QuietHoursTo   int
	HasQuietHours  bool

	S3Bucket    string
	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
	S3UseSSL    bool

	SnapshotTTLDays      int
	DLQOverflowThreshold int64

	DataEncryptionKeys []string

	WorkerSite     string
	WorkerGeoid    string
	WorkerCategory string

	TelegramBotToken string
	// NotifyChatID is the fixed broadcast target for surfaced deals
	// (settings.TG_CHAT_ID), distinct from both a task's own ChatID (used
	// only to look up whose profile to overlay) and MonitoringTelegramChatID
	// (ops alerts).
	NotifyChatID int64

	MonitoringSlackWebhook     string
	MonitoringTelegramToken   string
	MonitoringTelegramChatID  int64

	SelectorsPath string

	RenderPoolSize  int
	RenderPerDomain int
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

// Load builds a Config from the process environment.
func Load() *Config {
	cfg := &Config{
		DBURL:       getEnv("DB_URL", ""),
		RedisURL:    getEnv("REDIS_URL", "redis://localhost:6379/0"),
		QueueStream: getEnv("QUEUE_STREAM", "presets"),

		ScrapeConcurrency: getEnvInt("SCRAPE_CONCURRENCY", 4),
		DefaultGeoid:      getEnv("DEFAULT_GEOID", "213"),
		MinDiscount:       getEnvInt("MIN_DISCOUNT", 20),
		MinScore:          getEnvInt("MIN_SCORE", 50),
		DailyMsgLimit:     getEnvInt("DAILY_MSG_LIMIT", 20),
		ShippingCost:      getEnvInt64("SHIPPING_COST", 199),

		BudgetMaxPages: getEnvInt("BUDGET_MAX_PAGES", 500),
		BudgetMaxTasks: getEnvInt("BUDGET_MAX_TASKS", 2000),

		S3Bucket:    getEnv("S3_BUCKET", ""),
		S3Endpoint:  getEnv("S3_ENDPOINT", ""),
		S3AccessKey: getEnv("S3_ACCESS_KEY", ""),
		S3SecretKey: getEnv("S3_SECRET_KEY", ""),
		S3UseSSL:    getEnvBool("S3_USE_SSL", true),

		SnapshotTTLDays:      getEnvInt("SNAPSHOT_TTL_DAYS", 14),
		DLQOverflowThreshold: getEnvInt64("DLQ_OVERFLOW_THRESHOLD", 100),

		WorkerSite:     getEnv("WORKER_SITE", ""),
		WorkerGeoid:    getEnv("WORKER_GEOID", ""),
		WorkerCategory: getEnv("WORKER_CATEGORY", ""),

		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		NotifyChatID:     getEnvInt64("TG_CHAT_ID", 0),

		MonitoringSlackWebhook:    getEnv("MONITORING_SLACK_WEBHOOK", ""),
		MonitoringTelegramToken:  getEnv("MONITORING_TELEGRAM_TOKEN", ""),
		MonitoringTelegramChatID: getEnvInt64("MONITORING_TELEGRAM_CHAT_ID", 0),

		SelectorsPath: getEnv("SELECTORS_PATH", "selectors.yaml"),

		RenderPoolSize:  getEnvInt("RENDER_POOL_SIZE", 4),
		RenderPerDomain: getEnvInt("RENDER_PER_DOMAIN", 2),
	}

	if qh := os.Getenv("QUIET_HOURS"); qh != "" {
		parts := strings.SplitN(qh, "-", 2)
		if len(parts) == 2 {
			from, errF := strconv.Atoi(parts[0])
			to, errT := strconv.Atoi(parts[1])
			if errF == nil && errT == nil {
				cfg.QuietHoursFrom, cfg.QuietHoursTo, cfg.HasQuietHours = from, to, true
			}
		}
	}

	if keys := os.Getenv("DATA_ENCRYPTION_KEY"); keys != "" {
		for _, k := range strings.Split(keys, ",") {
			if k = strings.TrimSpace(k); k != "" {
				cfg.DataEncryptionKeys = append(cfg.DataEncryptionKeys, k)
			}
		}
	}

	return cfg
}

// InQuietHours reports whether hour (0-23, UTC) falls within the
// configured quiet-hours window, correctly handling wraparound (e.g. 22-6).
func (c *Config) InQuietHours(hour int) bool {
	if !c.HasQuietHours {
		return false
	}
	if c.QuietHoursFrom <= c.QuietHoursTo {
		return hour >= c.QuietHoursFrom && hour < c.QuietHoursTo
	}
	return hour >= c.QuietHoursFrom || hour < c.QuietHoursTo
}
