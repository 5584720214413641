// Package config loads the cart service settings from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/norun9/gomarketplace-cart/cartstore"
)

const (
	BackendLocal    = "local"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

type Config struct {
	ServiceName string
	LogLevel    logrus.Level

	GRPCPort int
	HTTPPort int

	KVBackend   string
	RedisAddr   string
	DatabaseURL string

	CartKey      string
	PersistMode  cartstore.PersistMode
	WriteTimeout time.Duration

	OTLPEndpoint    string
	TracesExporter  string
	MetricsExporter string
}

// Load reads the environment. Unparseable values fall back to defaults.
func Load() Config {
	cfg := Config{
		ServiceName:     getEnv("SERVICE_NAME", "cartservice"),
		LogLevel:        getEnvLevel("LOG_LEVEL", logrus.InfoLevel),
		GRPCPort:        getEnvInt("PORT", 7070),
		HTTPPort:        getEnvInt("HTTP_PORT", 8080),
		KVBackend:       strings.ToLower(getEnv("KV_BACKEND", BackendLocal)),
		RedisAddr:       getEnv("REDIS_ADDR", ""),
		DatabaseURL:     getEnv("DATABASE_URL", ""),
		CartKey:         getEnv("CART_KEY", cartstore.DefaultKey),
		PersistMode:     cartstore.PersistSync,
		WriteTimeout:    getEnvDuration("WRITE_TIMEOUT", 5*time.Second),
		OTLPEndpoint:    getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		TracesExporter:  getEnv("OTEL_TRACES_EXPORTER", "otlp"),
		MetricsExporter: getEnv("OTEL_METRICS_EXPORTER", "otlp"),
	}

	if mode, err := cartstore.ParsePersistMode(getEnv("PERSIST_MODE", "sync")); err == nil {
		cfg.PersistMode = mode
	}
	// Add the default port when only a host is given.
	if cfg.RedisAddr != "" && !strings.Contains(cfg.RedisAddr, ":") {
		cfg.RedisAddr += ":6379"
	}
	return cfg
}

// Validate checks that the selected backend is usable.
func (c Config) Validate() error {
	switch c.KVBackend {
	case BackendLocal:
	case BackendRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("REDIS_ADDR environment variable is required for the %s backend", c.KVBackend)
		}
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL environment variable is required for the %s backend", c.KVBackend)
		}
	default:
		return fmt.Errorf("unknown KV_BACKEND %q", c.KVBackend)
	}
	return nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(key))
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func getEnvLevel(key string, def logrus.Level) logrus.Level {
	lvl, err := logrus.ParseLevel(os.Getenv(key))
	if err != nil {
		return def
	}
	return lvl
}
