package db

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"sort"
	"time"

	"github.com/hpungsan/promptkeep/internal/config"
)

// Backend stores library collections in the kv table. It satisfies storage.Backend.
type Backend struct {
	db  *sql.DB
	now func() time.Time
}

// Open initializes baseDir/promptkeep.db and applies pool settings from cfg.
func Open(baseDir string, cfg *config.Config) (*Backend, error) {
	sqlDB, err := Init(baseDir)
	if err != nil {
		return nil, err
	}
	ConfigurePool(sqlDB, cfg)
	return NewBackend(sqlDB), nil
}

// NewBackend wraps an already initialized database.
func NewBackend(db *sql.DB) *Backend {
	return &Backend{db: db, now: time.Now}
}

// Get retrieves the value stored under key.
func (b *Backend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := b.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %s: %w", key, err)
	}
	return value, true, nil
}

// SetMany upserts every entry in a single transaction.
func (b *Backend) SetMany(ctx context.Context, entries map[string][]byte) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	// deterministic statement order keeps lock acquisition stable
	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	now := b.now().UnixMilli()
	for _, k := range keys {
		if _, err := stmt.ExecContext(ctx, k, entries[k], now); err != nil {
			return fmt.Errorf("set %s: %w", k, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Remove deletes key. Removing a missing key is not an error.
func (b *Backend) Remove(ctx context.Context, key string) error {
	if _, err := b.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("remove %s: %w", key, err)
	}
	return nil
}

func (b *Backend) Close() error {
	return b.db.Close()
}
