// Package config reads the service settings from the environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port           string
	GRPCHealthPort string
	LogLevel       string

	// memory | redis | mysql
	StorageBackend string
	StorageTimeout time.Duration
	StorageTTL     time.Duration

	RedisAddr          string
	RedisSentinelAddrs []string
	RedisMasterName    string
	RedisDB            int

	MySQLAddr string

	CartKey string
	UserKey string

	DismissAfter  time.Duration
	SessionSecret string
	SessionIdle   time.Duration
	CatalogFile   string

	// Token bucket limits, only enforced with the redis backend.
	GlobalRPS   float64
	GlobalBurst int
	IPRPS       float64
	IPBurst     int

	EnableTracing   bool
	CollectorAddr   string
	DisableProfiler bool
}

func Load() Config {
	return Config{
		Port:           getEnv("PORT", "8080"),
		GRPCHealthPort: getEnv("GRPC_HEALTH_PORT", "50051"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),

		StorageBackend: strings.ToLower(getEnv("STORAGE_BACKEND", "memory")),
		StorageTimeout: getEnvDuration("STORAGE_TIMEOUT", 500*time.Millisecond),
		StorageTTL:     getEnvDuration("STORAGE_TTL", 0),

		RedisAddr:          getEnv("REDIS_ADDR", "localhost:6380"),
		RedisSentinelAddrs: getEnvList("REDIS_SENTINEL_ADDRS"),
		RedisMasterName:    getEnv("REDIS_MASTER_NAME", "mymaster"),
		RedisDB:            getEnvInt("REDIS_DB", 0),

		MySQLAddr: getEnv("MYSQL_ADDR", "root:root_password@tcp(127.0.0.1:3307)/storefront_db?parseTime=true"),

		CartKey: getEnv("CART_STORAGE_KEY", "flowerShop_cart"),
		UserKey: getEnv("USER_STORAGE_KEY", "flowerShop_user"),

		DismissAfter:  getEnvDuration("NOTIFY_DISMISS_AFTER", 3*time.Second),
		SessionSecret: os.Getenv("SESSION_SECRET"),
		SessionIdle:   getEnvDuration("SESSION_IDLE", 30*time.Minute),
		CatalogFile:   os.Getenv("CATALOG_FILE"),

		GlobalRPS:   getEnvFloat("RATELIMIT_GLOBAL_RPS", 1000.0),
		GlobalBurst: getEnvInt("RATELIMIT_GLOBAL_BURST", 1000),
		IPRPS:       getEnvFloat("RATELIMIT_IP_RPS", 5.0),
		IPBurst:     getEnvInt("RATELIMIT_IP_BURST", 10),

		EnableTracing:   os.Getenv("ENABLE_TRACING") == "1",
		CollectorAddr:   os.Getenv("COLLECTOR_SERVICE_ADDR"),
		DisableProfiler: os.Getenv("DISABLE_PROFILER") != "",
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if val, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if val, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if val, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return def
}

// getEnvList splits a comma separated value, e.g. "redis:26379,redis-sentinel:26379".
func getEnvList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
