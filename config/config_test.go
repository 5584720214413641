package config

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/sirupsen/logrus"

	"github.com/norun9/gomarketplace-cart/cartstore"
)

func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{"SERVICE_NAME", "LOG_LEVEL", "PORT", "HTTP_PORT", "KV_BACKEND", "REDIS_ADDR",
		"DATABASE_URL", "CART_KEY", "PERSIST_MODE", "WRITE_TIMEOUT", "OTEL_EXPORTER_OTLP_ENDPOINT",
		"OTEL_TRACES_EXPORTER", "OTEL_METRICS_EXPORTER"} {
		t.Setenv(k, "")
	}

	want := Config{
		ServiceName:     "cartservice",
		LogLevel:        logrus.InfoLevel,
		GRPCPort:        7070,
		HTTPPort:        8080,
		KVBackend:       BackendLocal,
		CartKey:         cartstore.DefaultKey,
		PersistMode:     cartstore.PersistSync,
		WriteTimeout:    5 * time.Second,
		OTLPEndpoint:    "localhost:4317",
		TracesExporter:  "otlp",
		MetricsExporter: "otlp",
	}
	if diff := cmp.Diff(want, Load()); diff != "" {
		t.Fatalf("Load mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("PORT", "9000")
	t.Setenv("HTTP_PORT", "not-a-number")
	t.Setenv("KV_BACKEND", "Redis")
	t.Setenv("REDIS_ADDR", "redis-cart")
	t.Setenv("PERSIST_MODE", "async")
	t.Setenv("WRITE_TIMEOUT", "250ms")

	cfg := Load()
	if cfg.LogLevel != logrus.DebugLevel {
		t.Errorf("LogLevel = %v", cfg.LogLevel)
	}
	if cfg.GRPCPort != 9000 || cfg.HTTPPort != 8080 {
		t.Errorf("ports = %d/%d, want 9000/8080", cfg.GRPCPort, cfg.HTTPPort)
	}
	if cfg.KVBackend != BackendRedis || cfg.RedisAddr != "redis-cart:6379" {
		t.Errorf("backend = %s at %s", cfg.KVBackend, cfg.RedisAddr)
	}
	if cfg.PersistMode != cartstore.PersistAsync {
		t.Errorf("PersistMode = %v", cfg.PersistMode)
	}
	if cfg.WriteTimeout != 250*time.Millisecond {
		t.Errorf("WriteTimeout = %v", cfg.WriteTimeout)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"local", Config{KVBackend: BackendLocal}, false},
		{"redis without address", Config{KVBackend: BackendRedis}, true},
		{"postgres without dsn", Config{KVBackend: BackendPostgres}, true},
		{"postgres", Config{KVBackend: BackendPostgres, DatabaseURL: "postgres://localhost/cart"}, false},
		{"unknown", Config{KVBackend: "etcd"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.cfg.Validate(); (err != nil) != tt.wantErr {
				t.Fatalf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
