// Package kvstore provides the durable key-value facility the cart record is
// persisted to.
package kvstore

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when no value is stored under the key.
var ErrNotFound = errors.New("kvstore: key not found")

// KVStore is a string key-value store with best-effort durability.
type KVStore interface {
	Initialize(ctx context.Context) error

	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error

	Ping(ctx context.Context) bool
}
