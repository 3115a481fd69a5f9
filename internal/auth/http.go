// ABOUTME: HTTP middleware for bearer-token authentication on /api/* endpoints
// ABOUTME: Delegates validation to the TokenAuthority and adds identity to context

package auth

import (
	"log/slog"
	"net/http"
	"strings"
)

// DefaultPublicPaths pass the gate without a token.
var DefaultPublicPaths = []string{"/api/health", "/api/auth/verify"}

// DefaultPublicPrefixes pass the gate without a token.
var DefaultPublicPrefixes = []string{"/api/public/", "/assets/"}

// MiddlewareOptions configures HTTPAuthMiddleware. Nil slices fall back to
// DefaultPublicPaths and DefaultPublicPrefixes.
type MiddlewareOptions struct {
	PublicPaths    []string
	PublicPrefixes []string
	Logger         *slog.Logger
}

// extractBearerToken extracts a bearer token from the Authorization header.
// Returns the token and an error message (empty if successful).
func extractBearerToken(authHeader string) (string, string) {
	if authHeader == "" {
		return "", "missing authorization header"
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", "invalid authorization header format"
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", "empty token"
	}
	return token, ""
}

// BearerToken returns the bearer token on r, or "" if there is none.
func BearerToken(r *http.Request) string {
	token, _ := extractBearerToken(r.Header.Get("Authorization"))
	return token
}

func writeAuthError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":"` + msg + `"}` + "\n"))
}

type allowList struct {
	paths    map[string]struct{}
	prefixes []string
}

func newAllowList(paths, prefixes []string) allowList {
	if paths == nil {
		paths = DefaultPublicPaths
	}
	if prefixes == nil {
		prefixes = DefaultPublicPrefixes
	}
	al := allowList{paths: make(map[string]struct{}, len(paths)), prefixes: prefixes}
	for _, p := range paths {
		al.paths[p] = struct{}{}
	}
	return al
}

// requiresAuth reports whether path is behind the gate.
func (al allowList) requiresAuth(path string) bool {
	if !strings.HasPrefix(path, "/api/") {
		return false
	}
	if _, ok := al.paths[path]; ok {
		return false
	}
	for _, prefix := range al.prefixes {
		if strings.HasPrefix(path, prefix) {
			return false
		}
	}
	return true
}

// HTTPAuthMiddleware creates an HTTP middleware that requires a valid bearer
// token on every /api/* path outside the allow-list.
func HTTPAuthMiddleware(validator TokenValidator, opts MiddlewareOptions) func(http.Handler) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "auth")
	al := newAllowList(opts.PublicPaths, opts.PublicPrefixes)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !al.requiresAuth(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			token, errMsg := extractBearerToken(r.Header.Get("Authorization"))
			if errMsg != "" {
				logAuthFailure(logger, r, errMsg)
				writeAuthError(w, http.StatusUnauthorized, errMsg)
				return
			}

			rec, err := validator.ValidateToken(r.Context(), token)
			if err != nil {
				logger.Error("token validation failed", "error", err, "path", r.URL.Path)
				writeAuthError(w, http.StatusInternalServerError, "internal server error")
				return
			}
			if rec == nil {
				logAuthFailure(logger, r, "invalid token")
				writeAuthError(w, http.StatusUnauthorized, "invalid token")
				return
			}

			authCtx := &AuthContext{TokenID: rec.ID}
			if rec.Comment != nil {
				authCtx.Comment = *rec.Comment
			}
			next.ServeHTTP(w, r.WithContext(WithAuth(r.Context(), authCtx)))
		})
	}
}

// NoAuthMiddleware injects an anonymous AuthContext on every request.
// Used when auth.disabled is set in configuration.
func NoAuthMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authCtx := &AuthContext{TokenID: AnonymousTokenID, Comment: "auth disabled"}
			next.ServeHTTP(w, r.WithContext(WithAuth(r.Context(), authCtx)))
		})
	}
}

// logAuthFailure logs an authentication failure with structured context.
func logAuthFailure(logger *slog.Logger, r *http.Request, reason string) {
	logger.Warn("auth failure",
		"reason", reason,
		"path", r.URL.Path,
		"remote_addr", r.RemoteAddr,
	)
}
