package main

import (
	"fmt"
	"testing"

	"github.com/norun9/gomarketplace-cart/config"
)

func TestNewKVStore(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.Config
		want string
	}{
		{"local", config.Config{KVBackend: config.BackendLocal}, "*kvstore.LocalKVStore"},
		{"redis", config.Config{KVBackend: config.BackendRedis, RedisAddr: "localhost:6379"}, "*kvstore.RedisKVStore"},
		{"postgres", config.Config{KVBackend: config.BackendPostgres, DatabaseURL: "postgres://localhost/cart?sslmode=disable"}, "*kvstore.PostgresKVStore"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kv, closeKV, err := newKVStore(tt.cfg)
			if err != nil {
				t.Fatalf("newKVStore: %v", err)
			}
			defer closeKV()
			if got := fmt.Sprintf("%T", kv); got != tt.want {
				t.Fatalf("newKVStore(%s) = %s, want %s", tt.cfg.KVBackend, got, tt.want)
			}
		})
	}
}
