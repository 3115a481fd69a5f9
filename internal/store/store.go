// ABOUTME: Store interfaces and data types for ocm persistence
// ABOUTME: Defines API tokens, trusted SSH hosts, repos and user preferences

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when a unique column would be violated
var ErrDuplicate = errors.New("already exists")

// APIToken is a stored bearer token. Only the SHA-256 digest of the
// plaintext is kept; the plaintext is returned to the caller exactly once.
type APIToken struct {
	ID         string
	TokenHash  string
	Comment    *string
	CreatedAt  time.Time
	LastUsedAt *time.Time
	IsActive   bool
}

// TrustedSSHHost is a host key the operator has approved.
// PublicKey holds the authorized_keys encoding when the full key is known,
// otherwise the "SHA256:..." fingerprint that was presented.
type TrustedSSHHost struct {
	ID        string
	Host      string
	KeyType   string
	PublicKey string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Repo is a registered working copy. FullPath is absolute.
type Repo struct {
	ID        string
	Name      string
	FullPath  string
	CreatedAt time.Time
}

// GitCredential is a saved per-host secret for HTTPS remotes.
type GitCredential struct {
	Host     string `json:"host"`
	Username string `json:"username,omitempty"`
	Token    string `json:"token"`
}

// UserPreferences is the single settings document for the dashboard.
type UserPreferences struct {
	GitCredentials []GitCredential `json:"gitCredentials"`
	UpdatedAt      time.Time       `json:"-"`
}

// TokenStore persists API tokens.
type TokenStore interface {
	CreateAPIToken(ctx context.Context, token *APIToken) error
	GetAPITokenByHash(ctx context.Context, hash string) (*APIToken, error)
	TouchAPIToken(ctx context.Context, id string, usedAt time.Time) error
	ListAPITokens(ctx context.Context) ([]*APIToken, error)
	RevokeAPIToken(ctx context.Context, id string) error
	DeleteAPIToken(ctx context.Context, id string) error
	CountAPITokens(ctx context.Context, activeOnly bool) (int, error)
}

// TrustedHostStore persists approved SSH host keys keyed by host.
type TrustedHostStore interface {
	GetTrustedSSHHost(ctx context.Context, host string) (*TrustedSSHHost, error)
	UpsertTrustedSSHHost(ctx context.Context, h *TrustedSSHHost) error
	ListTrustedSSHHosts(ctx context.Context) ([]*TrustedSSHHost, error)
	DeleteTrustedSSHHost(ctx context.Context, host string) error
}

// RepoRegistry is the repository registry consumed by the credential broker.
type RepoRegistry interface {
	CreateRepo(ctx context.Context, repo *Repo) error
	ListRepos(ctx context.Context) ([]*Repo, error)
	DeleteRepo(ctx context.Context, id string) error
}

// SettingsStore holds the user preferences document.
type SettingsStore interface {
	GetUserPreferences(ctx context.Context) (*UserPreferences, error)
	SaveUserPreferences(ctx context.Context, prefs *UserPreferences) error
}

// Store is everything the server needs from persistence.
type Store interface {
	TokenStore
	TrustedHostStore
	RepoRegistry
	SettingsStore
	Close() error
}
