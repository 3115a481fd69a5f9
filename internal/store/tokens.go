// ABOUTME: API token persistence for bearer authentication
// ABOUTME: Stores SHA-256 digests only, with soft revoke and hard delete

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CreateAPIToken inserts a token record. ID and CreatedAt are filled in
// when unset. Returns ErrDuplicate if the digest already exists.
func (s *SQLiteStore) CreateAPIToken(ctx context.Context, token *APIToken) error {
	if token.ID == "" {
		token.ID = uuid.New().String()
	}
	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO api_tokens (id, token_hash, comment, created_at, last_used_at, is_active)
		VALUES (?, ?, ?, ?, NULL, ?)
	`,
		token.ID,
		token.TokenHash,
		nullString(ptrToString(token.Comment)),
		formatTime(token.CreatedAt),
		token.IsActive,
	)
	if err != nil {
		if isConstraintViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("inserting api token: %w", err)
	}

	s.logger.Debug("created api token", "id", token.ID)
	return nil
}

// GetAPITokenByHash looks up a token by digest regardless of its active flag.
// Returns ErrNotFound if no record has that digest.
func (s *SQLiteStore) GetAPITokenByHash(ctx context.Context, hash string) (*APIToken, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, token_hash, comment, created_at, last_used_at, is_active
		FROM api_tokens
		WHERE token_hash = ?
	`, hash)
	return scanAPIToken(row)
}

// TouchAPIToken records a successful use of the token. Returns ErrNotFound
// when the token is missing or revoked.
func (s *SQLiteStore) TouchAPIToken(ctx context.Context, id string, usedAt time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE api_tokens SET last_used_at = ? WHERE id = ? AND is_active = 1`,
		formatTime(usedAt), id,
	)
	if err != nil {
		return fmt.Errorf("updating api token last_used_at: %w", err)
	}
	return checkAffected(res)
}

// ListAPITokens returns every token record, newest first.
func (s *SQLiteStore) ListAPITokens(ctx context.Context) ([]*APIToken, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, token_hash, comment, created_at, last_used_at, is_active
		FROM api_tokens
		ORDER BY created_at DESC, rowid DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("querying api tokens: %w", err)
	}
	defer rows.Close()

	var tokens []*APIToken
	for rows.Next() {
		t, err := scanAPIToken(rows)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating api tokens: %w", err)
	}
	return tokens, nil
}

// RevokeAPIToken clears the active flag. Returns ErrNotFound if no active
// token has that id.
func (s *SQLiteStore) RevokeAPIToken(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE api_tokens SET is_active = 0 WHERE id = ? AND is_active = 1`, id)
	if err != nil {
		return fmt.Errorf("revoking api token: %w", err)
	}
	if err := checkAffected(res); err != nil {
		return err
	}
	s.logger.Info("revoked api token", "id", id)
	return nil
}

// DeleteAPIToken removes the record. Returns ErrNotFound if it did not exist.
func (s *SQLiteStore) DeleteAPIToken(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM api_tokens WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting api token: %w", err)
	}
	if err := checkAffected(res); err != nil {
		return err
	}
	s.logger.Info("deleted api token", "id", id)
	return nil
}

// CountAPITokens counts tokens, optionally only the active ones.
func (s *SQLiteStore) CountAPITokens(ctx context.Context, activeOnly bool) (int, error) {
	query := `SELECT COUNT(*) FROM api_tokens`
	if activeOnly {
		query += ` WHERE is_active = 1`
	}
	var n int
	if err := s.db.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting api tokens: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAPIToken(row rowScanner) (*APIToken, error) {
	var t APIToken
	var comment, lastUsed sql.NullString
	var createdAt string

	err := row.Scan(&t.ID, &t.TokenHash, &comment, &createdAt, &lastUsed, &t.IsActive)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning api token: %w", err)
	}

	if t.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if comment.Valid {
		t.Comment = &comment.String
	}
	if lastUsed.Valid {
		used, err := parseTime(lastUsed.String)
		if err != nil {
			return nil, err
		}
		t.LastUsedAt = &used
	}
	return &t, nil
}
