package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port        string
	DatabaseURL string

	PollInterval time.Duration
	BatchSize    int

	RateLimitPerMinute int
	RateLimitBurst     int

	NoShowGrace     time.Duration
	SweepSchedule   string
	OutboxRetain    time.Duration
	CleanupSchedule string
}

func Load() Config {
	port := os.Getenv("CRM_PORT")
	if port == "" {
		port = "8080"
	}
	sweep := os.Getenv("CRM_SWEEP_SCHEDULE")
	if sweep == "" {
		sweep = "*/5 * * * *"
	}
	cleanup := os.Getenv("CRM_CLEANUP_SCHEDULE")
	if cleanup == "" {
		cleanup = "@hourly"
	}

	return Config{
		Port:               port,
		DatabaseURL:        os.Getenv("DB_DSN"),
		PollInterval:       readDurationMillis("CRM_POLL_MS", 1000),
		BatchSize:          readInt("CRM_BATCH_SIZE", 100),
		RateLimitPerMinute: readInt("CRM_RATE_LIMIT_PER_MINUTE", 600),
		RateLimitBurst:     readInt("CRM_RATE_LIMIT_BURST", 60),
		NoShowGrace:        readDurationMillis("CRM_NO_SHOW_GRACE_MS", 30*60*1000),
		SweepSchedule:      sweep,
		OutboxRetain:       readDurationMillis("CRM_OUTBOX_RETAIN_MS", 24*60*60*1000),
		CleanupSchedule:    cleanup,
	}
}

type SyncConfig struct {
	ServerURL string
	FeedURL   string
	Session   string
	Port      string

	// DebounceWindow and DedupTTL are the convergence tunables of the cache
	// synchronization layer; the defaults mirror the dashboard's behavior but
	// nothing depends on these exact values.
	DebounceWindow time.Duration
	DedupTTL       time.Duration
}

func LoadSync() SyncConfig {
	port := os.Getenv("DASHBOARD_PORT")
	if port == "" {
		port = "8081"
	}
	server := os.Getenv("CRM_SERVER_URL")
	if server == "" {
		server = "http://localhost:8080"
	}
	feed := os.Getenv("CRM_FEED_URL")
	if feed == "" {
		feed = "ws://localhost:8080/realtime/websocket"
	}

	return SyncConfig{
		ServerURL:      server,
		FeedURL:        feed,
		Session:        os.Getenv("CRM_SESSION"),
		Port:           port,
		DebounceWindow: readDurationMillis("SYNC_DEBOUNCE_MS", 100),
		DedupTTL:       readDurationMillis("SYNC_DEDUP_TTL_MS", 1000),
	}
}

func readDurationMillis(key string, fallback int) time.Duration {
	value := readInt(key, fallback)
	if value <= 0 {
		return 0
	}
	return time.Duration(value) * time.Millisecond
}

func readInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}
