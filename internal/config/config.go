// README: Config loader with env defaults for HTTP, DB, Redis, upstream services, and dispatch settings.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type DispatchConfig struct {
	TickSeconds int
}

// Tick is the fallback interval between assignment passes.
func (c DispatchConfig) Tick() time.Duration {
	return time.Duration(c.TickSeconds) * time.Second
}

type Config struct {
	HTTP struct {
		Addr string
	}
	DB struct {
		// Empty DSN selects the in-memory order store (single-process mode).
		DSN string
	}
	Redis struct {
		// Empty addr selects the in-memory claim board (single-process mode).
		Addr string
	}
	Upstream struct {
		UserServiceURL    string
		ProductServiceURL string
	}
	Dispatch DispatchConfig
	Log      LogConfig
}

type LogConfig struct {
	Level  string
	Format string
}

// Load reads configuration from the environment, preloading .env when present.
// Every key has a default or may be empty, so loading cannot fail.
func Load() Config {
	_ = godotenv.Load()

	var cfg Config
	cfg.HTTP.Addr = envOrDefault("TAKEOUT_HTTP_ADDR", ":10011")
	cfg.DB.DSN = os.Getenv("TAKEOUT_DB_DSN")
	cfg.Redis.Addr = os.Getenv("TAKEOUT_REDIS_ADDR")
	cfg.Upstream.UserServiceURL = envOrDefault("TAKEOUT_USER_SERVICE_URL", "http://localhost:10010")
	cfg.Upstream.ProductServiceURL = envOrDefault("TAKEOUT_PRODUCT_SERVICE_URL", "http://localhost:10012")
	cfg.Dispatch.TickSeconds = envOrDefaultInt("TAKEOUT_DISPATCH_TICK", 3)
	cfg.Log.Level = envOrDefault("TAKEOUT_LOG_LEVEL", "info")
	cfg.Log.Format = envOrDefault("TAKEOUT_LOG_FORMAT", "json")
	return cfg
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
