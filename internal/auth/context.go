// ABOUTME: Authentication context for tracking identity through request handlers
// ABOUTME: Provides WithAuth/FromContext for propagating auth info via context

package auth

import (
	"context"
)

// AnonymousTokenID is the TokenID carried when authentication is disabled.
const AnonymousTokenID = "anonymous"

// AuthContext holds the authenticated identity extracted from a request.
type AuthContext struct {
	TokenID string // id of the api_tokens row, or AnonymousTokenID
	Comment string // operator-supplied label, may be empty
}

// IsAnonymous reports whether the request was let through with auth disabled.
func (a *AuthContext) IsAnonymous() bool {
	return a.TokenID == AnonymousTokenID
}

// authContextKey is the key type for storing AuthContext in context.Context.
type authContextKey struct{}

// WithAuth returns a new context with the AuthContext attached.
func WithAuth(ctx context.Context, auth *AuthContext) context.Context {
	return context.WithValue(ctx, authContextKey{}, auth)
}

// FromContext retrieves the AuthContext from the context, returning nil if not present.
func FromContext(ctx context.Context) *AuthContext {
	auth, _ := ctx.Value(authContextKey{}).(*AuthContext)
	return auth
}

// MustFromContext retrieves the AuthContext from the context, panicking if not present.
func MustFromContext(ctx context.Context) *AuthContext {
	auth := FromContext(ctx)
	if auth == nil {
		panic("auth: AuthContext not found in context")
	}
	return auth
}
