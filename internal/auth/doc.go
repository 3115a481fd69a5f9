// Package auth provides bearer-token authentication for the ocm HTTP API.
//
// # API Tokens
//
// Tokens have the form "ocm_" followed by 64 lowercase hex characters
// (32 random bytes). Only the SHA-256 digest is stored:
//
//	authority := auth.NewTokenAuthority(store, logger)
//	plaintext, rec, err := authority.CreateAPIToken(ctx, "laptop")
//
// ValidateToken fails closed: every invalid token (wrong shape, unknown,
// revoked) produces the same (nil, nil) result. A non-nil error always means
// the store could not be read.
//
// # HTTP Middleware
//
// HTTPAuthMiddleware guards /api/* paths. A fixed allow-list (health, token
// verify, static prefixes) passes without a header. Authenticated requests
// carry an AuthContext:
//
//	authCtx := auth.FromContext(r.Context())
//
// When authentication is disabled by configuration, NoAuthMiddleware injects
// an anonymous AuthContext instead.
//
// # Askpass Sessions
//
// SessionIssuer mints short-lived HS256 JWTs handed to spawned Git processes
// through the environment, so the askpass endpoint can tell its own children
// from other local callers.
package auth
