// Package store is the Postgres persistence layer for the card engine.
// All content for every client app lives in one schema: decks and cards,
// ingestion audit rows, family trees and question reports.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Store wraps a Postgres connection pool with typed accessors.
type Store struct {
	db *sql.DB
}

// New creates a Store over an existing connection pool.
func New(db *sql.DB) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	return &Store{db: db}, nil
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// PoolStats exposes connection pool counters for the dashboard.
func (s *Store) PoolStats() sql.DBStats {
	return s.db.Stats()
}

// DatabaseSizeBytes reports the on-disk size of the current database.
func (s *Store) DatabaseSizeBytes(ctx context.Context) (int64, error) {
	var size int64
	err := s.db.QueryRowContext(ctx, `SELECT pg_database_size(current_database())`).Scan(&size)
	if err != nil {
		return 0, fmt.Errorf("failed to read database size: %w", err)
	}
	return size, nil
}

// InitSchema bootstraps the schema on this store's pool.
func (s *Store) InitSchema() error {
	return InitSchema(s.db)
}

// withTx runs fn inside a transaction, committing on nil error and
// rolling back otherwise.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// marshalProps serialises a property bag for a JSONB column. A nil map
// becomes the empty object so columns never hold SQL NULL.
func marshalProps(props map[string]any) (string, error) {
	if props == nil {
		return "{}", nil
	}
	raw, err := json.Marshal(props)
	if err != nil {
		return "", fmt.Errorf("failed to encode properties: %w", err)
	}
	return string(raw), nil
}

// scanProps decodes a JSONB column into a property bag. Malformed or
// empty payloads decode to an empty map rather than failing the row.
func scanProps(raw []byte) map[string]any {
	if len(raw) == 0 {
		return map[string]any{}
	}
	var props map[string]any
	if err := json.Unmarshal(raw, &props); err != nil {
		return map[string]any{}
	}
	return props
}

func nullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func nullInt(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}

func nullTime(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}
