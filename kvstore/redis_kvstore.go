package kvstore

import (
	"context"
	"time"

	"github.com/go-redis/redis/extra/redisotel/v8"
	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	defaultConnectAttempts = 30
	defaultBaseBackoff     = time.Second
	maxBackoff             = 30 * time.Second
	pingTimeout            = 5 * time.Second
)

// RedisKVStore is a key-value store backed by Redis.
type RedisKVStore struct {
	client *redis.Client
	log    logrus.FieldLogger

	attempts    int
	baseBackoff time.Duration
}

// NewRedisKVStore accepts a Redis connection string ("redis://..." URL or
// plain "hostname:port") and returns a store instance.
func NewRedisKVStore(redisAddr string, log logrus.FieldLogger) *RedisKVStore {
	if log == nil {
		log = logrus.StandardLogger()
	}
	opts, err := redis.ParseURL(redisAddr)
	if err != nil {
		// Not a redis:// URL, use it as a plain Addr.
		opts = &redis.Options{
			Addr:         redisAddr,
			MinIdleConns: 1,
			MaxRetries:   30,
			DialTimeout:  30 * time.Second,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			PoolSize:     10,
			PoolTimeout:  4 * time.Second,
			IdleTimeout:  180 * time.Second,
		}
	}

	client := redis.NewClient(opts)
	client.AddHook(redisotel.NewTracingHook())

	return &RedisKVStore{
		client:      client,
		log:         log.WithField("kvstore", "redis"),
		attempts:    defaultConnectAttempts,
		baseBackoff: defaultBaseBackoff,
	}
}

// Initialize waits for Redis to answer a ping, backing off exponentially
// between attempts.
func (r *RedisKVStore) Initialize(ctx context.Context) error {
	r.log.Info("RedisKVStore: initializing connection...")

	for i := 0; i < r.attempts; i++ {
		r.log.Debugf("RedisKVStore: attempting Ping (attempt %d/%d)...", i+1, r.attempts)
		if r.Ping(ctx) {
			r.log.Infof("RedisKVStore: Ping successful on attempt %d", i+1)
			return nil
		}

		backoff := r.baseBackoff * time.Duration(1<<uint(i))
		if backoff > maxBackoff || backoff <= 0 {
			backoff = maxBackoff
		}
		r.log.Debugf("RedisKVStore: waiting %v before next attempt", backoff)

		select {
		case <-ctx.Done():
			r.log.Warnf("RedisKVStore: context cancelled during backoff: %v", ctx.Err())
			return ctx.Err()
		case <-time.After(backoff):
		}
	}

	return errors.Errorf("failed to connect to Redis after %d attempts", r.attempts)
}

// Get returns the string stored under key, or ErrNotFound.
func (r *RedisKVStore) Get(ctx context.Context, key string) (string, error) {
	r.log.WithField("key", key).Debug("RedisKVStore: Get called")

	val, err := r.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", ErrNotFound
	}
	if err != nil {
		return "", errors.Wrapf(err, "redis GET %s", key)
	}
	return val, nil
}

// Set stores value under key without expiry.
func (r *RedisKVStore) Set(ctx context.Context, key, value string) error {
	r.log.WithFields(logrus.Fields{"key": key, "bytes": len(value)}).Debug("RedisKVStore: Set called")

	if err := r.client.Set(ctx, key, value, 0).Err(); err != nil {
		return errors.Wrapf(err, "redis SET %s", key)
	}
	return nil
}

// Remove deletes key.
func (r *RedisKVStore) Remove(ctx context.Context, key string) error {
	r.log.WithField("key", key).Debug("RedisKVStore: Remove called")

	if err := r.client.Del(ctx, key).Err(); err != nil {
		return errors.Wrapf(err, "redis DEL %s", key)
	}
	return nil
}

// Ping checks if Redis is alive.
func (r *RedisKVStore) Ping(ctx context.Context) bool {
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := r.client.Ping(pingCtx).Err(); err != nil {
		r.log.Warnf("RedisKVStore: Ping failed with error: %v", err)
		return false
	}
	return true
}

// Close releases the connection pool.
func (r *RedisKVStore) Close() error {
	return r.client.Close()
}
