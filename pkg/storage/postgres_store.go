package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

const schema = `
CREATE TABLE IF NOT EXISTS kv_records (
	key TEXT PRIMARY KEY,
	value JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS list_records (
	id BIGSERIAL PRIMARY KEY,
	collection TEXT NOT NULL,
	item JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_list_records_collection ON list_records (collection, id);`

// PostgresStore persists records in two generic JSONB tables.
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore wraps an open database handle.
func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the record tables when missing.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate record store: %w", err)
	}
	return nil
}

// Get decodes the value stored under key into dest.
func (s *PostgresStore) Get(ctx context.Context, key string, dest interface{}) error {
	var raw []byte
	if err := s.db.GetContext(ctx, &raw, `SELECT value FROM kv_records WHERE key = $1`, key); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("get %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

// Set upserts the value stored under key.
func (s *PostgresStore) Set(ctx context.Context, key string, value interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	const query = `INSERT INTO kv_records (key, value, updated_at) VALUES ($1, $2, NOW())
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`
	if _, err := s.db.ExecContext(ctx, query, key, raw); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// Append inserts item at the end of collection.
func (s *PostgresStore) Append(ctx context.Context, collection string, item interface{}) error {
	raw, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("encode %s item: %w", collection, err)
	}
	if _, err := s.db.ExecContext(ctx, `INSERT INTO list_records (collection, item) VALUES ($1, $2)`, collection, raw); err != nil {
		return fmt.Errorf("append %s: %w", collection, err)
	}
	return nil
}

// List decodes collection items ordered by insertion into dest.
func (s *PostgresStore) List(ctx context.Context, collection string, dest interface{}) error {
	var rows [][]byte
	if err := s.db.SelectContext(ctx, &rows, `SELECT item FROM list_records WHERE collection = $1 ORDER BY id`, collection); err != nil {
		return fmt.Errorf("list %s: %w", collection, err)
	}
	items := make([]json.RawMessage, 0, len(rows))
	for _, row := range rows {
		items = append(items, json.RawMessage(row))
	}
	return decodeList(collection, items, dest)
}

// Replace swaps the whole collection inside one transaction.
func (s *PostgresStore) Replace(ctx context.Context, collection string, items interface{}) (err error) {
	encoded, err := encodeList(collection, items)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace %s: %w", collection, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM list_records WHERE collection = $1`, collection); err != nil {
		return fmt.Errorf("clear %s: %w", collection, err)
	}
	for _, item := range encoded {
		if _, err = tx.ExecContext(ctx, `INSERT INTO list_records (collection, item) VALUES ($1, $2)`, collection, []byte(item)); err != nil {
			return fmt.Errorf("insert %s: %w", collection, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit replace %s: %w", collection, err)
	}
	return nil
}
