// ABOUTME: Single-row user preferences document stored as JSON
// ABOUTME: Holds saved Git credentials read by the credential broker

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// GetUserPreferences returns the preferences document. A fresh database
// yields empty preferences, not ErrNotFound.
func (s *SQLiteStore) GetUserPreferences(ctx context.Context) (*UserPreferences, error) {
	var data, updatedAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT data_json, updated_at FROM user_preferences WHERE id = 1`,
	).Scan(&data, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return &UserPreferences{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying user preferences: %w", err)
	}

	var prefs UserPreferences
	if err := json.Unmarshal([]byte(data), &prefs); err != nil {
		return nil, fmt.Errorf("decoding user preferences: %w", err)
	}
	if prefs.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &prefs, nil
}

// SaveUserPreferences replaces the preferences document.
func (s *SQLiteStore) SaveUserPreferences(ctx context.Context, prefs *UserPreferences) error {
	data, err := json.Marshal(prefs)
	if err != nil {
		return fmt.Errorf("encoding user preferences: %w", err)
	}
	prefs.UpdatedAt = time.Now().UTC()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO user_preferences (id, data_json, updated_at) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET data_json = excluded.data_json, updated_at = excluded.updated_at
	`, string(data), formatTime(prefs.UpdatedAt))
	if err != nil {
		return fmt.Errorf("saving user preferences: %w", err)
	}
	// never log credential contents
	s.logger.Debug("saved user preferences", "git_credentials", len(prefs.GitCredentials))
	return nil
}
