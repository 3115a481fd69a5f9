// ABOUTME: Minimal repository registry backing credential resolution
// ABOUTME: Repos are identified by their absolute working-copy path

package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// CreateRepo registers a working copy. Name defaults to the last path element.
// Returns ErrDuplicate if the path is already registered.
func (s *SQLiteStore) CreateRepo(ctx context.Context, repo *Repo) error {
	if repo.FullPath == "" || !filepath.IsAbs(repo.FullPath) {
		return errors.New("repo path must be absolute")
	}
	if repo.ID == "" {
		repo.ID = uuid.New().String()
	}
	if repo.Name == "" {
		repo.Name = filepath.Base(repo.FullPath)
	}
	if repo.CreatedAt.IsZero() {
		repo.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO repos (id, name, full_path, created_at) VALUES (?, ?, ?, ?)`,
		repo.ID, repo.Name, repo.FullPath, formatTime(repo.CreatedAt),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("inserting repo: %w", err)
	}
	s.logger.Debug("registered repo", "id", repo.ID, "path", repo.FullPath)
	return nil
}

// ListRepos returns registered repos ordered by name.
func (s *SQLiteStore) ListRepos(ctx context.Context) ([]*Repo, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, full_path, created_at FROM repos ORDER BY name, full_path`)
	if err != nil {
		return nil, fmt.Errorf("querying repos: %w", err)
	}
	defer rows.Close()

	var repos []*Repo
	for rows.Next() {
		var r Repo
		var createdAt string
		if err := rows.Scan(&r.ID, &r.Name, &r.FullPath, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning repo: %w", err)
		}
		if r.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		repos = append(repos, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating repos: %w", err)
	}
	return repos, nil
}

// DeleteRepo unregisters a repo. Returns ErrNotFound if unknown.
func (s *SQLiteStore) DeleteRepo(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM repos WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting repo: %w", err)
	}
	return checkAffected(res)
}
