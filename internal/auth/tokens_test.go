// ABOUTME: Tests for API token generation, validation and lifecycle
// ABOUTME: Runs against a real SQLite store in a temp directory

package auth

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/ocm/internal/store"
)

func createTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "auth.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestAuthority(t *testing.T) (*TokenAuthority, *store.SQLiteStore) {
	t.Helper()
	s := createTestStore(t)
	return NewTokenAuthority(s, nil), s
}

func TestGenerateToken_Format(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		tok, err := GenerateToken()
		require.NoError(t, err)
		assert.Len(t, tok, 68)
		assert.True(t, strings.HasPrefix(tok, TokenPrefix))
		assert.Regexp(t, `^ocm_[0-9a-f]{64}$`, tok)
		assert.False(t, seen[tok], "tokens must not repeat")
		seen[tok] = true
	}
}

func TestHashToken(t *testing.T) {
	h := HashToken("ocm_test")
	assert.Len(t, h, 64)
	assert.Regexp(t, `^[0-9a-f]{64}$`, h)
	assert.Equal(t, h, HashToken("ocm_test"), "hash is deterministic")
	assert.NotEqual(t, h, HashToken("ocm_other"))
	// known SHA-256 of the empty string
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", HashToken(""))
}

func TestCreateAPIToken_StoresOnlyDigest(t *testing.T) {
	authority, s := newTestAuthority(t)
	ctx := context.Background()

	plaintext, rec, err := authority.CreateAPIToken(ctx, "ci runner")
	require.NoError(t, err)
	assert.Equal(t, HashToken(plaintext), rec.TokenHash)
	assert.NotContains(t, rec.TokenHash, TokenPrefix)

	stored, err := s.GetAPITokenByHash(ctx, HashToken(plaintext))
	require.NoError(t, err)
	require.NotNil(t, stored.Comment)
	assert.Equal(t, "ci runner", *stored.Comment)
	assert.True(t, stored.IsActive)
}

func TestValidateToken_UpdatesLastUsed(t *testing.T) {
	authority, s := newTestAuthority(t)
	ctx := context.Background()

	fixed := time.Date(2026, 5, 1, 9, 30, 0, 0, time.UTC)
	authority.now = func() time.Time { return fixed }

	plaintext, _, err := authority.CreateAPIToken(ctx, "")
	require.NoError(t, err)

	rec, err := authority.ValidateToken(ctx, plaintext)
	require.NoError(t, err)
	require.NotNil(t, rec)
	require.NotNil(t, rec.LastUsedAt)

	stored, err := s.GetAPITokenByHash(ctx, HashToken(plaintext))
	require.NoError(t, err)
	require.NotNil(t, stored.LastUsedAt)
	assert.True(t, fixed.Equal(*stored.LastUsedAt))
}

func TestValidateToken_FailsUniformly(t *testing.T) {
	authority, _ := newTestAuthority(t)
	ctx := context.Background()

	revoked, rec, err := authority.CreateAPIToken(ctx, "old")
	require.NoError(t, err)
	ok, err := authority.RevokeAPIToken(ctx, rec.ID)
	require.NoError(t, err)
	require.True(t, ok)

	unknown, err := GenerateToken()
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"wrong prefix", "xyz_" + strings.Repeat("a", 64)},
		{"too short", "ocm_abc"},
		{"uppercase hex", "ocm_" + strings.Repeat("A", 64)},
		{"unknown", unknown},
		{"revoked", revoked},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := authority.ValidateToken(ctx, tt.token)
			assert.NoError(t, err)
			assert.Nil(t, rec)
		})
	}
}

// revokeOnLookup revokes the token right after it is read, as a concurrent
// revoke request would.
type revokeOnLookup struct {
	*store.SQLiteStore
}

func (r revokeOnLookup) GetAPITokenByHash(ctx context.Context, hash string) (*store.APIToken, error) {
	rec, err := r.SQLiteStore.GetAPITokenByHash(ctx, hash)
	if err == nil && rec.IsActive {
		if err := r.SQLiteStore.RevokeAPIToken(ctx, rec.ID); err != nil {
			return nil, err
		}
	}
	return rec, err
}

func TestValidateToken_RevokedDuringLookupFails(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	plain, _, err := NewTokenAuthority(s, nil).CreateAPIToken(ctx, "laptop")
	require.NoError(t, err)

	a := NewTokenAuthority(revokeOnLookup{s}, nil)
	rec, err := a.ValidateToken(ctx, plain)
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestRevokeAndDelete_ReportMisses(t *testing.T) {
	authority, _ := newTestAuthority(t)
	ctx := context.Background()

	_, rec, err := authority.CreateAPIToken(ctx, "")
	require.NoError(t, err)

	ok, err := authority.RevokeAPIToken(ctx, "no-such-id")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = authority.RevokeAPIToken(ctx, rec.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = authority.RevokeAPIToken(ctx, rec.ID)
	require.NoError(t, err)
	assert.False(t, ok, "already revoked")

	ok, err = authority.DeleteAPIToken(ctx, rec.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = authority.DeleteAPIToken(ctx, rec.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHasAnyTokens_IgnoresRevoked(t *testing.T) {
	authority, _ := newTestAuthority(t)
	ctx := context.Background()

	has, err := authority.HasAnyTokens(ctx)
	require.NoError(t, err)
	assert.False(t, has)

	_, rec, err := authority.CreateAPIToken(ctx, "")
	require.NoError(t, err)
	has, err = authority.HasAnyTokens(ctx)
	require.NoError(t, err)
	assert.True(t, has)

	_, err = authority.RevokeAPIToken(ctx, rec.ID)
	require.NoError(t, err)
	has, err = authority.HasAnyTokens(ctx)
	require.NoError(t, err)
	assert.False(t, has)
}

func TestBootstrapFirstToken_OnlyOnEmptyTable(t *testing.T) {
	authority, _ := newTestAuthority(t)
	ctx := context.Background()

	first, err := authority.BootstrapFirstToken(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, first)

	second, err := authority.BootstrapFirstToken(ctx)
	require.NoError(t, err)
	assert.Empty(t, second)

	tokens, err := authority.ListAPITokens(ctx)
	require.NoError(t, err)
	require.Len(t, tokens, 1)
	require.NotNil(t, tokens[0].Comment)
	assert.Equal(t, BootstrapComment, *tokens[0].Comment)
}

func TestBootstrapFirstToken_RevokedTokenStillCounts(t *testing.T) {
	authority, _ := newTestAuthority(t)
	ctx := context.Background()

	_, rec, err := authority.CreateAPIToken(ctx, "")
	require.NoError(t, err)
	_, err = authority.RevokeAPIToken(ctx, rec.ID)
	require.NoError(t, err)

	tok, err := authority.BootstrapFirstToken(ctx)
	require.NoError(t, err)
	assert.Empty(t, tok)
}

func TestTokenLifecycle_BootstrapValidateRevoke(t *testing.T) {
	authority, _ := newTestAuthority(t)
	ctx := context.Background()

	tok, err := authority.BootstrapFirstToken(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, tok)

	rec, err := authority.ValidateToken(ctx, tok)
	require.NoError(t, err)
	require.NotNil(t, rec)

	ok, err := authority.RevokeAPIToken(ctx, rec.ID)
	require.NoError(t, err)
	require.True(t, ok)

	rec, err = authority.ValidateToken(ctx, tok)
	require.NoError(t, err)
	assert.Nil(t, rec)
}
