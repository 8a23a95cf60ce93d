package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the signal engine's infrastructure configuration, loaded from
// environment variables. Per-pair strategy settings live in the pairs file.
type Config struct {
	// Infrastructure
	RedisAddr     string
	RedisPassword string
	SQLitePath    string
	MetricsAddr   string
	HTTPAddr      string

	// TickWSURL, when set, adds a WebSocket tick feed next to the Redis streams.
	TickWSURL string

	// Streams
	ConsumerGroup string
	ConsumerName  string
	PELInterval   time.Duration
	PELMinIdle    time.Duration

	// Checkpointing
	SnapshotKey      string
	SnapshotInterval time.Duration

	// Pairs: a YAML file, or a comma-separated list of pair names that all
	// get DefaultPair settings when no file is given.
	PairsFile    string
	DefaultPairs []string

	// Ticks kept in SQLite for warm-up and backtests.
	RecordTicks bool
	WarmupTicks int

	// Signal alerts; each channel is enabled by setting it.
	WebhookURL       string
	WebhookSecret    string
	TelegramBotToken string
	TelegramChatID   string

	LogLevel string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		SQLitePath:    getEnv("SQLITE_PATH", "data/signals.db"),
		MetricsAddr:   getEnv("METRICS_ADDR", ":9090"),
		HTTPAddr:      getEnv("HTTP_ADDR", ":9095"),

		TickWSURL: getEnv("TICK_WS_URL", ""),

		ConsumerGroup: getEnv("CONSUMER_GROUP", "sigengine"),
		ConsumerName:  getEnv("CONSUMER_NAME", "worker-1"),
		PELInterval:   getSeconds("PEL_RECLAIM_INTERVAL_SEC", 30),
		PELMinIdle:    getSeconds("PEL_MIN_IDLE_SEC", 60),

		SnapshotKey:      getEnv("SNAPSHOT_KEY", "sig:snapshot:engine"),
		SnapshotInterval: getSeconds("SNAPSHOT_INTERVAL_SEC", 30),

		PairsFile:    getEnv("PAIRS_FILE", ""),
		DefaultPairs: splitList(getEnv("PAIRS", "BTC-USDT")),

		RecordTicks: getBool("RECORD_TICKS", true),
		WarmupTicks: getInt("WARMUP_TICKS", 500),

		WebhookURL:       getEnv("ALERT_WEBHOOK_URL", ""),
		WebhookSecret:    getEnv("ALERT_WEBHOOK_SECRET", ""),
		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:   getEnv("TELEGRAM_CHAT_ID", ""),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
}

// LoadPairs returns the configured pairs: from PairsFile when set,
// otherwise DefaultPair for every name in DefaultPairs.
func (c *Config) LoadPairs() ([]PairConfig, error) {
	if c.PairsFile != "" {
		return LoadPairsFile(c.PairsFile)
	}
	pairs := make([]PairConfig, 0, len(c.DefaultPairs))
	for _, name := range c.DefaultPairs {
		pairs = append(pairs, DefaultPair(name))
	}
	if err := ValidatePairs(pairs); err != nil {
		return nil, err
	}
	return pairs, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		log.Printf("[config] invalid %s=%q, using %d", key, v, fallback)
		return fallback
	}
	return n
}

func getSeconds(key string, fallback int) time.Duration {
	return time.Duration(getInt(key, fallback)) * time.Second
}

func getBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Printf("[config] invalid %s=%q, using %v", key, v, fallback)
		return fallback
	}
	return b
}
