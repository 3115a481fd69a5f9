// ABOUTME: Trusted SSH host key persistence keyed by host
// ABOUTME: Upsert replaces the stored key only after explicit operator approval

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// GetTrustedSSHHost returns the trusted key for host.
// Returns ErrNotFound if the host has never been approved.
func (s *SQLiteStore) GetTrustedSSHHost(ctx context.Context, host string) (*TrustedSSHHost, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, host, key_type, public_key, created_at, updated_at
		FROM trusted_ssh_hosts
		WHERE host = ?
	`, host)
	return scanTrustedSSHHost(row)
}

// UpsertTrustedSSHHost inserts or replaces the key for h.Host. The original
// id and created_at survive a replacement; h is updated to match the row.
func (s *SQLiteStore) UpsertTrustedSSHHost(ctx context.Context, h *TrustedSSHHost) error {
	if h.Host == "" {
		return errors.New("trusted host requires a host")
	}
	if h.ID == "" {
		h.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if h.CreatedAt.IsZero() {
		h.CreatedAt = now
	}
	h.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO trusted_ssh_hosts (id, host, key_type, public_key, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(host) DO UPDATE SET
			key_type = excluded.key_type,
			public_key = excluded.public_key,
			updated_at = excluded.updated_at
	`,
		h.ID, h.Host, h.KeyType, h.PublicKey,
		formatTime(h.CreatedAt), formatTime(h.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("upserting trusted ssh host: %w", err)
	}

	stored, err := s.GetTrustedSSHHost(ctx, h.Host)
	if err != nil {
		return err
	}
	*h = *stored

	s.logger.Info("trusted ssh host saved", "host", h.Host, "key_type", h.KeyType)
	return nil
}

// ListTrustedSSHHosts returns all trusted hosts ordered by host.
func (s *SQLiteStore) ListTrustedSSHHosts(ctx context.Context) ([]*TrustedSSHHost, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, host, key_type, public_key, created_at, updated_at
		FROM trusted_ssh_hosts
		ORDER BY host
	`)
	if err != nil {
		return nil, fmt.Errorf("querying trusted ssh hosts: %w", err)
	}
	defer rows.Close()

	var hosts []*TrustedSSHHost
	for rows.Next() {
		h, err := scanTrustedSSHHost(rows)
		if err != nil {
			return nil, err
		}
		hosts = append(hosts, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating trusted ssh hosts: %w", err)
	}
	return hosts, nil
}

// DeleteTrustedSSHHost forgets host. Returns ErrNotFound if it was not trusted.
func (s *SQLiteStore) DeleteTrustedSSHHost(ctx context.Context, host string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM trusted_ssh_hosts WHERE host = ?`, host)
	if err != nil {
		return fmt.Errorf("deleting trusted ssh host: %w", err)
	}
	if err := checkAffected(res); err != nil {
		return err
	}
	s.logger.Info("trusted ssh host removed", "host", host)
	return nil
}

func scanTrustedSSHHost(row rowScanner) (*TrustedSSHHost, error) {
	var h TrustedSSHHost
	var createdAt, updatedAt string

	err := row.Scan(&h.ID, &h.Host, &h.KeyType, &h.PublicKey, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning trusted ssh host: %w", err)
	}
	if h.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if h.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &h, nil
}
