package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/yegors/airfield-ops/internal/globalstate"
	"github.com/yegors/airfield-ops/pkg/logger"
)

// GlobalStateStorage keeps global state entries in the global_state table
type GlobalStateStorage struct {
	db     *sql.DB
	logger *logger.Logger
	now    func() time.Time
}

// NewGlobalStateStorage creates a global state store sharing db
func NewGlobalStateStorage(db *sql.DB, log *logger.Logger) *GlobalStateStorage {
	return &GlobalStateStorage{
		db:     db,
		logger: log.Named("sqlite-state"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Get returns the raw JSON value stored under key
func (s *GlobalStateStorage) Get(ctx context.Context, key string) (json.RawMessage, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM global_state WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, globalstate.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get global state %s: %w", key, err)
	}
	return json.RawMessage(value), nil
}

// Set stores value under key, replacing any previous value
func (s *GlobalStateStorage) Set(ctx context.Context, key string, value json.RawMessage) error {
	if !json.Valid(value) {
		return fmt.Errorf("global state %s is not valid JSON", key)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO global_state (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, string(value), formatTime(s.now()))
	if err != nil {
		return fmt.Errorf("failed to set global state %s: %w", key, err)
	}
	s.logger.Debug("Global state updated", logger.String("key", key))
	return nil
}
