// ABOUTME: Host extraction from Git prompts and saved-credential matching
// ABOUTME: Also canonicalizes repo paths and supplies provider default usernames

package credential

import (
	"net"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/2389/ocm/internal/store"
)

// urlPattern finds the first scheme://authority in a prompt. The authority
// stops at a slash, whitespace or quote.
var urlPattern = regexp.MustCompile(`[A-Za-z][A-Za-z0-9+.\-]*://([^/\s'"]+)`)

// ExtractHost returns the lowercase host (with port, if any) of the first URL
// embedded in prompt, or "" if there is none. Userinfo is dropped.
func ExtractHost(prompt string) string {
	m := urlPattern.FindStringSubmatch(prompt)
	if m == nil {
		return ""
	}
	authority := m[1]
	if i := strings.LastIndex(authority, "@"); i >= 0 {
		authority = authority[i+1:]
	}
	authority = strings.TrimRight(authority, ":")
	return strings.ToLower(authority)
}

// PromptKind classifies what Git is asking for.
type PromptKind int

const (
	PromptSecret PromptKind = iota
	PromptUsername
)

// ClassifyPrompt reports whether prompt asks for a username. Anything else
// that carries a URL is answered with the secret.
func ClassifyPrompt(prompt string) PromptKind {
	p := strings.ToLower(strings.TrimSpace(prompt))
	if strings.HasPrefix(p, "username") {
		return PromptUsername
	}
	return PromptSecret
}

// hostWithoutPort strips a :port suffix, leaving bare IPv6 literals intact.
func hostWithoutPort(host string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		return strings.Trim(h, "[]")
	}
	return host
}

// NormalizeHost reduces a saved credential host such as
// "https://GitHub.com/org" to "github.com".
func NormalizeHost(saved string) string {
	h := strings.TrimSpace(saved)
	if i := strings.Index(h, "://"); i >= 0 {
		h = h[i+3:]
	}
	if i := strings.IndexAny(h, "/?#"); i >= 0 {
		h = h[:i]
	}
	if i := strings.LastIndex(h, "@"); i >= 0 {
		h = h[i+1:]
	}
	return strings.ToLower(strings.TrimRight(h, ":"))
}

// MatchFunc picks the saved credential for host from prefs, or nil.
type MatchFunc func(prefs *store.UserPreferences, host string) *store.GitCredential

// FindGitCredential is the host lookup used by the broker. It tries, in
// order: the exact normalized host, then the saved host against the prompt
// host with its port removed.
func FindGitCredential(prefs *store.UserPreferences, host string) *store.GitCredential {
	if prefs == nil || host == "" {
		return nil
	}
	host = strings.ToLower(host)

	for i := range prefs.GitCredentials {
		if NormalizeHost(prefs.GitCredentials[i].Host) == host {
			return &prefs.GitCredentials[i]
		}
	}

	bare := hostWithoutPort(host)
	if bare == host {
		return nil
	}
	for i := range prefs.GitCredentials {
		if NormalizeHost(prefs.GitCredentials[i].Host) == bare {
			return &prefs.GitCredentials[i]
		}
	}
	return nil
}

// DefaultUsername returns the conventional token username for well-known
// providers, or "git".
func DefaultUsername(host string) string {
	h := hostWithoutPort(strings.ToLower(host))
	switch {
	case h == "github.com" || strings.HasSuffix(h, ".github.com") || strings.HasSuffix(h, ".ghe.com"):
		return "x-access-token"
	case h == "gitlab.com" || strings.HasPrefix(h, "gitlab."):
		return "oauth2"
	case h == "bitbucket.org":
		return "x-token-auth"
	case h == "dev.azure.com" || strings.HasSuffix(h, ".visualstudio.com"):
		return "pat"
	default:
		return "git"
	}
}

// CanonicalPath makes p absolute and resolves symlinks. Paths that do not
// exist are only cleaned.
func CanonicalPath(p string) string {
	if p == "" {
		return ""
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return filepath.Clean(p)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved
	}
	return abs
}
