// ABOUTME: API bearer token issuance and validation
// ABOUTME: Generates ocm_ tokens, stores SHA-256 digests, fails closed on lookup

package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sync"
	"time"

	"github.com/2389/ocm/internal/store"
)

// TokenPrefix marks ocm API tokens.
const TokenPrefix = "ocm_"

// BootstrapComment labels the token created by BootstrapFirstToken.
const BootstrapComment = "bootstrap"

const tokenRandomBytes = 32

var tokenPattern = regexp.MustCompile(`^ocm_[0-9a-f]{64}$`)

// GenerateToken returns a new plaintext token: TokenPrefix plus 64 hex chars.
func GenerateToken() (string, error) {
	buf := make([]byte, tokenRandomBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("reading random bytes: %w", err)
	}
	return TokenPrefix + hex.EncodeToString(buf), nil
}

// HashToken returns the lowercase hex SHA-256 digest of token.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// TokenValidator is what the HTTP middleware needs from the authority.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (*store.APIToken, error)
}

// TokenAuthority issues, validates and retires API tokens.
type TokenAuthority struct {
	tokens store.TokenStore
	logger *slog.Logger
	now    func() time.Time

	bootstrapMu sync.Mutex
}

// NewTokenAuthority creates an authority over the given token store.
func NewTokenAuthority(tokens store.TokenStore, logger *slog.Logger) *TokenAuthority {
	if logger == nil {
		logger = slog.Default()
	}
	return &TokenAuthority{
		tokens: tokens,
		logger: logger.With("component", "tokens"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// CreateAPIToken creates an active token and returns its plaintext, which is
// never retrievable again.
func (a *TokenAuthority) CreateAPIToken(ctx context.Context, comment string) (string, *store.APIToken, error) {
	plaintext, err := GenerateToken()
	if err != nil {
		return "", nil, err
	}

	rec := &store.APIToken{
		TokenHash: HashToken(plaintext),
		CreatedAt: a.now(),
		IsActive:  true,
	}
	if comment != "" {
		rec.Comment = &comment
	}

	if err := a.tokens.CreateAPIToken(ctx, rec); err != nil {
		return "", nil, fmt.Errorf("storing api token: %w", err)
	}

	a.logger.Info("api token created", "id", rec.ID, "comment", comment)
	return plaintext, rec, nil
}

// ValidateToken resolves a presented token to its active record.
// Every invalid token yields (nil, nil); err is non-nil only when the store failed.
func (a *TokenAuthority) ValidateToken(ctx context.Context, token string) (*store.APIToken, error) {
	if !tokenPattern.MatchString(token) {
		a.logger.Debug("token rejected", "reason", "malformed")
		return nil, nil
	}

	rec, err := a.tokens.GetAPITokenByHash(ctx, HashToken(token))
	if errors.Is(err, store.ErrNotFound) {
		a.logger.Debug("token rejected", "reason", "unknown")
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("looking up api token: %w", err)
	}
	if !rec.IsActive {
		a.logger.Debug("token rejected", "reason", "revoked", "id", rec.ID)
		return nil, nil
	}

	usedAt := a.now()
	if err := a.tokens.TouchAPIToken(ctx, rec.ID, usedAt); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// revoked or deleted between lookup and touch
			return nil, nil
		}
		return nil, fmt.Errorf("recording api token use: %w", err)
	}
	rec.LastUsedAt = &usedAt
	return rec, nil
}

// ListAPITokens returns all tokens, newest first.
func (a *TokenAuthority) ListAPITokens(ctx context.Context) ([]*store.APIToken, error) {
	return a.tokens.ListAPITokens(ctx)
}

// RevokeAPIToken deactivates a token. It returns false when no active
// token has that id.
func (a *TokenAuthority) RevokeAPIToken(ctx context.Context, id string) (bool, error) {
	err := a.tokens.RevokeAPIToken(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// DeleteAPIToken removes a token record. It returns false when nothing was deleted.
func (a *TokenAuthority) DeleteAPIToken(ctx context.Context, id string) (bool, error) {
	err := a.tokens.DeleteAPIToken(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// HasAnyTokens reports whether at least one active token exists.
func (a *TokenAuthority) HasAnyTokens(ctx context.Context) (bool, error) {
	n, err := a.tokens.CountAPITokens(ctx, true)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// BootstrapFirstToken creates the first token of a fresh install. When any
// token record exists, active or revoked, it returns "" and creates nothing.
func (a *TokenAuthority) BootstrapFirstToken(ctx context.Context) (string, error) {
	a.bootstrapMu.Lock()
	defer a.bootstrapMu.Unlock()

	n, err := a.tokens.CountAPITokens(ctx, false)
	if err != nil {
		return "", err
	}
	if n > 0 {
		return "", nil
	}

	plaintext, _, err := a.CreateAPIToken(ctx, BootstrapComment)
	if err != nil {
		return "", err
	}
	return plaintext, nil
}
