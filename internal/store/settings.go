package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// LanguageSettingKey stores the preferred transcription language.
const LanguageSettingKey = "transcription_language"

// Setting returns the stored value for key, or fallback when absent or blank.
func (s *Store) Setting(ctx context.Context, key, fallback string) (string, error) {
	ctx = ensureContext(ctx)
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return fallback, nil
	}
	if err != nil {
		return fallback, fmt.Errorf("read setting %q: %w", key, err)
	}
	if strings.TrimSpace(value) == "" {
		return fallback, nil
	}
	return value, nil
}

// SetSetting stores a value, replacing any existing one.
func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("setting key is required")
	}
	_, err := s.execWithRetry(ctx,
		`INSERT INTO settings (key, value) VALUES (?, ?)
         ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("write setting %q: %w", key, err)
	}
	return nil
}
