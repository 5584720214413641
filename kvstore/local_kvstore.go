package kvstore

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

// LocalKVStore keeps values in process memory.
// It is safe for concurrent use.
type LocalKVStore struct {
	mu     sync.RWMutex
	values map[string]string

	log logrus.FieldLogger
}

// NewLocalKVStore constructor
func NewLocalKVStore(log logrus.FieldLogger) *LocalKVStore {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &LocalKVStore{
		values: make(map[string]string),
		log:    log.WithField("kvstore", "local"),
	}
}

// Initialize does nothing in this implementation.
func (l *LocalKVStore) Initialize(ctx context.Context) error {
	l.log.Info("LocalKVStore initialized")
	return nil
}

// Get returns the value stored under key, or ErrNotFound.
func (l *LocalKVStore) Get(ctx context.Context, key string) (string, error) {
	l.log.WithField("key", key).Debug("LocalKVStore: Get called")
	l.mu.RLock()
	defer l.mu.RUnlock()

	v, ok := l.values[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

// Set stores value under key, replacing any previous value.
func (l *LocalKVStore) Set(ctx context.Context, key, value string) error {
	l.log.WithFields(logrus.Fields{"key": key, "bytes": len(value)}).Debug("LocalKVStore: Set called")
	l.mu.Lock()
	defer l.mu.Unlock()

	l.values[key] = value
	return nil
}

// Remove deletes key. Removing a missing key is not an error.
func (l *LocalKVStore) Remove(ctx context.Context, key string) error {
	l.log.WithField("key", key).Debug("LocalKVStore: Remove called")
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.values, key)
	return nil
}

// Ping always returns true.
func (l *LocalKVStore) Ping(ctx context.Context) bool {
	return true
}
