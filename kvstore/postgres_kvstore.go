package kvstore

import (
	"context"
	"database/sql"

	_ "github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	createTableSQL = `CREATE TABLE IF NOT EXISTS kv_records (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`
	selectValueSQL = `SELECT value FROM kv_records WHERE key = $1`
	upsertValueSQL = `INSERT INTO kv_records (key, value, updated_at) VALUES ($1, $2, now())
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`
	deleteValueSQL = `DELETE FROM kv_records WHERE key = $1`
)

// PostgresKVStore keeps values in a single Postgres table.
type PostgresKVStore struct {
	DB  *sql.DB
	log logrus.FieldLogger
}

// NewPostgresKVStore opens a lib/pq connection pool for dsn.
func NewPostgresKVStore(dsn string, log logrus.FieldLogger) (*PostgresKVStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open postgres")
	}
	return NewPostgresKVStoreFromDB(db, log), nil
}

// NewPostgresKVStoreFromDB wraps an existing pool.
func NewPostgresKVStoreFromDB(db *sql.DB, log logrus.FieldLogger) *PostgresKVStore {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &PostgresKVStore{DB: db, log: log.WithField("kvstore", "postgres")}
}

// Initialize creates the backing table if needed.
func (p *PostgresKVStore) Initialize(ctx context.Context) error {
	if _, err := p.DB.ExecContext(ctx, createTableSQL); err != nil {
		return errors.Wrap(err, "create kv_records")
	}
	p.log.Info("PostgresKVStore initialized")
	return nil
}

// Get returns the value stored under key, or ErrNotFound.
func (p *PostgresKVStore) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := p.DB.QueryRowContext(ctx, selectValueSQL, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", errors.Wrapf(err, "select %s", key)
	}
	return value, nil
}

// Set upserts value under key.
func (p *PostgresKVStore) Set(ctx context.Context, key, value string) error {
	if _, err := p.DB.ExecContext(ctx, upsertValueSQL, key, value); err != nil {
		return errors.Wrapf(err, "upsert %s", key)
	}
	return nil
}

// Remove deletes key.
func (p *PostgresKVStore) Remove(ctx context.Context, key string) error {
	if _, err := p.DB.ExecContext(ctx, deleteValueSQL, key); err != nil {
		return errors.Wrapf(err, "delete %s", key)
	}
	return nil
}

// Ping checks the database connection.
func (p *PostgresKVStore) Ping(ctx context.Context) bool {
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := p.DB.PingContext(pingCtx); err != nil {
		p.log.Warnf("PostgresKVStore: Ping failed with error: %v", err)
		return false
	}
	return true
}

// Close closes the pool.
func (p *PostgresKVStore) Close() error { return p.DB.Close() }
