package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	ListenAddr string
	JWTSecret  string
	DBDSN      string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	BotCacheTTL   time.Duration

	RabbitURL   string
	RabbitQueue string

	// Rate limiting (per user, sliding window).
	RateLimitCount  int
	RateLimitWindow time.Duration

	// Streaming.
	StreamTimeout  time.Duration
	PingInterval   time.Duration
	DefaultBaseURL string

	// Safe-post retry schedule.
	PersistAttempts int
	PersistBackoff  time.Duration

	// LLM proxy addon.
	AddonAPIKey      string
	AddonUpstreamURL string
	AddonUpstreamKey string

	// Request transforms for the addon path.
	ForceReasoningEnabled  bool
	ForceReasoningEffort   string
	ForceReasoningPatterns []string
	ForceReasoningOverride bool
	InjectionTagEnabled    bool
	InjectionTagName       string
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func envSeconds(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return time.Duration(n) * time.Second
		}
	}
	return def
}

func Load() Config {
	dsn := envStr("DB_DSN",
		"host=127.0.0.1 user=relay password=relay dbname=storytellr port=5432 sslmode=disable")

	patterns := []string{"z-ai/glm-4.6:nitro"}
	if v := os.Getenv("FORCE_REASONING_MODEL_PATTERNS"); v != "" {
		patterns = patterns[:0]
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				patterns = append(patterns, p)
			}
		}
	}

	return Config{
		ListenAddr: envStr("LISTEN_ADDR", ":8080"),
		JWTSecret:  envStr("JWT_SECRET", "dev-secret-change-me"),
		DBDSN:      dsn,

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       envInt("REDIS_DB", 0),
		BotCacheTTL:   envSeconds("BOT_CACHE_TTL_SECONDS", 60*time.Second),

		RabbitURL:   os.Getenv("RABBIT_URL"),
		RabbitQueue: envStr("RABBIT_QUEUE", "relay_failed_writes"),

		RateLimitCount:  envInt("RATE_LIMIT_COUNT", 5),
		RateLimitWindow: envSeconds("RATE_LIMIT_WINDOW_SECONDS", 60*time.Second),

		StreamTimeout:  envSeconds("STREAM_TIMEOUT_SECONDS", 120*time.Second),
		PingInterval:   envSeconds("PING_INTERVAL_SECONDS", 15*time.Second),
		DefaultBaseURL: envStr("DEFAULT_BASE_URL", "https://api.deepseek.com/v1"),

		PersistAttempts: envInt("PERSIST_ATTEMPTS", 3),
		PersistBackoff:  envSeconds("PERSIST_BACKOFF_SECONDS", 1*time.Second),

		AddonAPIKey:      os.Getenv("ADDON_API_KEY"),
		AddonUpstreamURL: envStr("ADDON_UPSTREAM_URL", "https://openrouter.ai/api/v1/chat/completions"),
		AddonUpstreamKey: os.Getenv("ADDON_UPSTREAM_API_KEY"),

		ForceReasoningEnabled:  envBool("FORCE_REASONING_ENABLED", false),
		ForceReasoningEffort:   envStr("FORCE_REASONING_EFFORT", "high"),
		ForceReasoningPatterns: patterns,
		ForceReasoningOverride: envBool("FORCE_REASONING_OVERRIDE", false),
		InjectionTagEnabled:    envBool("INJECTION_TAG_ENABLED", false),
		InjectionTagName:       envStr("INJECTION_TAG_NAME", "injection"),
	}
}
