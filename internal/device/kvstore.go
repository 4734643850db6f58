package device

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Well-known keys.
const (
	KeySessionActive = "session_active"
	KeyProfile       = "profile"
	KeyLoginMethod   = "login_method"
)

// KVStore is a string key/value table for small app-level settings.
type KVStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewKVStore creates a store over an open, migrated database.
func NewKVStore(db *sql.DB) *KVStore {
	return &KVStore{db: db, now: time.Now}
}

// Get returns ErrKeyNotFound for an unset key.
func (s *KVStore) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv_store WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrKeyNotFound
	}
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", key, err)
	}
	return value, nil
}

// Set stores value under key.
func (s *KVStore) Set(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv_store (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, formatTime(s.now()))
	if err != nil {
		return fmt.Errorf("writing %s: %w", key, err)
	}
	return nil
}

// Delete removes key. Deleting an unset key is not an error.
func (s *KVStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv_store WHERE key = ?`, key); err != nil {
		return fmt.Errorf("deleting %s: %w", key, err)
	}
	return nil
}

// GetJSON decodes the value under key into out.
func (s *KVStore) GetJSON(ctx context.Context, key string, out any) error {
	raw, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return fmt.Errorf("decoding %s: %w", key, err)
	}
	return nil
}

// SetJSON stores v encoded as JSON.
func (s *KVStore) SetJSON(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	return s.Set(ctx, key, string(raw))
}

// SessionActive reports the persisted session flag. Unset means false.
func (s *KVStore) SessionActive(ctx context.Context) (bool, error) {
	v, err := s.Get(ctx, KeySessionActive)
	if errors.Is(err, ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return v == "true", nil
}

// SetSessionActive persists the session flag.
func (s *KVStore) SetSessionActive(ctx context.Context, active bool) error {
	v := "false"
	if active {
		v = "true"
	}
	return s.Set(ctx, KeySessionActive, v)
}
