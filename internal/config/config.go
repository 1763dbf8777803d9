package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/example/drillcore/pkg/models"
)

// Config carries every tunable of the scheduling and inventory core.
// All values are env-overridable; the selection ratios are deliberately
// configuration, not constants.
type Config struct {
	Env      string
	HTTPAddr string

	// Relational store.
	DBType string // "sqlite" or "postgres"
	DBDSN  string

	// Redis (inventory, session windows, job queue).
	RedisAddr     string
	RedisPassword string

	// OMPS selection.
	ReviewRatio float64
	SimpleRatio float64
	HardRatio   float64
	BatchLimit  int // hard cap on getNextBatch limit

	// Inventory watermarks and capacity.
	ModeCapacity    map[models.Mode]int
	LowWatermarkPct float64 // fraction of capacity that triggers replenishment
	ItemLowStock    int     // per-item list length that buffers a signal
	BufferFlushSize int     // buffered signals that force a batch job
	PerItemTarget   int     // entries the worker stocks per item

	// Replenishment worker.
	GenTimeout     time.Duration
	JobMaxRetry    int
	ActiveUserDays int // "active" = reviewed within the last N days
	SweepBatchSize int

	// Session settling.
	InactiveAfter time.Duration
	WindowTTL     time.Duration
	BufferGrading bool // commit grades via the session buffer (default) or directly

	// Durable drill cache.
	DrillCacheTTL time.Duration

	// Content generation.
	OpenAIKey   string
	OpenAIURL   string
	OpenAIModel string
}

// Load reads .env (when present) and the environment.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		Env:      getEnv("APP_ENV", "development"),
		HTTPAddr: getEnv("HTTP_ADDR", ":8080"),

		DBType: getEnv("DB_TYPE", "sqlite"),
		DBDSN:  getEnv("DB_DSN", "data/drillcore.db"),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),

		ReviewRatio: getEnvFloat("OMPS_REVIEW_RATIO", 0.7),
		SimpleRatio: getEnvFloat("OMPS_SIMPLE_RATIO", 0.2),
		HardRatio:   getEnvFloat("OMPS_HARD_RATIO", 0.2),
		BatchLimit:  getEnvInt("BATCH_LIMIT", 50),

		ModeCapacity: map[models.Mode]int{
			models.ModeSyntax:   getEnvInt("CAP_SYNTAX", 20),
			models.ModeChunking: getEnvInt("CAP_CHUNKING", 30),
			models.ModeNuance:   getEnvInt("CAP_NUANCE", 50),
			models.ModeBlitz:    getEnvInt("CAP_BLITZ", 10),
		},
		LowWatermarkPct: getEnvFloat("LOW_WATERMARK_PCT", 0.5),
		ItemLowStock:    getEnvInt("ITEM_LOW_STOCK", 2),
		BufferFlushSize: getEnvInt("BUFFER_FLUSH_SIZE", 5),
		PerItemTarget:   getEnvInt("PER_ITEM_TARGET", 3),

		GenTimeout:     getEnvDuration("GEN_TIMEOUT", 30*time.Second),
		JobMaxRetry:    getEnvInt("JOB_MAX_RETRY", 3),
		ActiveUserDays: getEnvInt("ACTIVE_USER_DAYS", 7),
		SweepBatchSize: getEnvInt("SWEEP_BATCH_SIZE", 10),

		InactiveAfter: getEnvDuration("INACTIVE_AFTER", 5*time.Minute),
		WindowTTL:     getEnvDuration("WINDOW_TTL", time.Hour),
		BufferGrading: getEnvBool("BUFFER_GRADING", true),

		DrillCacheTTL: getEnvDuration("DRILL_CACHE_TTL", 24*time.Hour),

		OpenAIKey:   getEnv("OPENAI_API_KEY", ""),
		OpenAIURL:   getEnv("OPENAI_API_URL", "https://api.openai.com/v1/chat/completions"),
		OpenAIModel: getEnv("OPENAI_MODEL", "gpt-4o-mini"),
	}
}

// Capacity returns the inventory cap for a mode.
func (c Config) Capacity(mode models.Mode) int {
	if n, ok := c.ModeCapacity[mode]; ok {
		return n
	}
	return 20
}

// Watermark returns the aggregate count below which a mode is low on stock.
func (c Config) Watermark(mode models.Mode) int {
	return int(float64(c.Capacity(mode)) * c.LowWatermarkPct)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
