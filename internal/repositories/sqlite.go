package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/desertthunder/leadsync/internal/shared"
)

// SQLiteKV implements [KVStore] on the storage_entries table.
type SQLiteKV struct {
	db    *sql.DB
	owned bool
}

// NewSQLiteKV wraps an open database whose migrations have already been applied.
// Close on the returned store does not close db.
func NewSQLiteKV(db *sql.DB) *SQLiteKV {
	return &SQLiteKV{db: db}
}

// OpenSQLiteKV opens the database at path, applies pending migrations and takes ownership of the connection.
func OpenSQLiteKV(path string, maxOpenConns, maxIdleConns int) (*SQLiteKV, error) {
	db, err := shared.NewDatabase(path)
	if err != nil {
		return nil, err
	}
	if path != ":memory:" {
		shared.ConfigureDatabase(db, maxOpenConns, maxIdleConns)
	}

	if err := shared.RunMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return &SQLiteKV{db: db, owned: true}, nil
}

// GetKeys reads the requested entries in a single query.
func (s *SQLiteKV) GetKeys(ctx context.Context, keys ...string) (map[string][]byte, error) {
	out := make(map[string][]byte, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	query := fmt.Sprintf(
		"SELECT key, value FROM storage_entries WHERE key IN (%s)",
		strings.TrimSuffix(strings.Repeat("?,", len(keys)), ","),
	)
	args := make([]any, len(keys))
	for i, k := range keys {
		args[i] = k
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			key   string
			value string
		)
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		out[key] = []byte(value)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate entries: %w", err)
	}
	return out, nil
}

// SetKeys upserts every entry inside one transaction.
func (s *SQLiteKV) SetKeys(ctx context.Context, entries map[string][]byte) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO storage_entries (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`
	for _, k := range sortedKeys(entries) {
		if _, err := tx.ExecContext(ctx, query, k, string(entries[k])); err != nil {
			return fmt.Errorf("failed to upsert %s: %w", k, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit entries: %w", err)
	}
	return nil
}

// RemoveKeys deletes every key inside one transaction.
func (s *SQLiteKV) RemoveKeys(ctx context.Context, keys ...string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, k := range keys {
		if _, err := tx.ExecContext(ctx, "DELETE FROM storage_entries WHERE key = ?", k); err != nil {
			return fmt.Errorf("failed to delete %s: %w", k, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit removal: %w", err)
	}
	return nil
}

// Close closes the connection when the store opened it.
func (s *SQLiteKV) Close() error {
	if !s.owned {
		return nil
	}
	return s.db.Close()
}

func sortedKeys(entries map[string][]byte) []string {
	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
