// ABOUTME: Credential broker resolving Git prompts to saved per-host secrets
// ABOUTME: Host from prompt, repo from cwd, credential from settings, cached per host and repo

package credential

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/2389/ocm/internal/store"
)

// DefaultCacheTTL is how long a resolved credential is served from memory.
const DefaultCacheTTL = 60 * time.Second

const defaultCacheSize = 256

// RepoLister is the part of the repository registry the broker reads.
type RepoLister interface {
	ListRepos(ctx context.Context) ([]*store.Repo, error)
}

// SettingsReader is the part of the settings store the broker reads.
type SettingsReader interface {
	GetUserPreferences(ctx context.Context) (*store.UserPreferences, error)
}

// Options configures a Broker. Zero values select defaults.
type Options struct {
	CacheTTL  time.Duration
	CacheSize int
	Match     MatchFunc
	Logger    *slog.Logger
}

// Broker answers credential prompts for registered repos.
type Broker struct {
	repos    RepoLister
	settings SettingsReader
	match    MatchFunc
	cache    *Cache
	logger   *slog.Logger
}

// NewBroker creates a broker. Call Close to stop the cache cleanup goroutine.
func NewBroker(repos RepoLister, settings SettingsReader, opts Options) *Broker {
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = DefaultCacheTTL
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = defaultCacheSize
	}
	if opts.Match == nil {
		opts.Match = FindGitCredential
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Broker{
		repos:    repos,
		settings: settings,
		match:    opts.Match,
		cache:    NewCache(opts.CacheTTL, opts.CacheSize),
		logger:   opts.Logger.With("component", "credential"),
	}
}

// GetCredential returns the answer to prompt for a Git process running in
// cwd, or "" when no credential applies. The error is non-nil only when
// the registry or settings could not be read.
func (b *Broker) GetCredential(ctx context.Context, prompt, cwd string) (string, error) {
	host := ExtractHost(prompt)
	if host == "" {
		b.logger.Debug("prompt has no url")
		return "", nil
	}
	kind := ClassifyPrompt(prompt)
	repoPath := CanonicalPath(cwd)

	// A cached entry serves only the repo that resolved it.
	if cred, ok := b.cache.Get(host); ok && repoPath != "" && cred.RepoPath == repoPath {
		b.logger.Debug("credential cache hit", "host", host)
		return answer(cred, kind), nil
	}

	repoID, err := b.resolveRepo(ctx, repoPath)
	if err != nil {
		return "", err
	}
	if repoID == "" {
		b.logger.Debug("cwd is not a registered repo", "host", host)
		return "", nil
	}

	prefs, err := b.settings.GetUserPreferences(ctx)
	if err != nil {
		return "", fmt.Errorf("loading settings: %w", err)
	}

	saved := b.match(prefs, host)
	if saved == nil || saved.Token == "" {
		b.logger.Info("no saved credential for host", "host", host, "repo_id", repoID)
		return "", nil
	}

	username := saved.Username
	if username == "" {
		username = DefaultUsername(host)
	}

	cred := CachedCredential{Token: saved.Token, Username: username, RepoPath: repoPath}
	b.cache.Put(host, cred)
	b.logger.Info("credential resolved", "host", host, "repo_id", repoID)
	return answer(cred, kind), nil
}

func answer(cred CachedCredential, kind PromptKind) string {
	if kind == PromptUsername {
		return cred.Username
	}
	return cred.Token
}

// resolveRepo returns the id of the repo whose canonical path equals want,
// or "".
func (b *Broker) resolveRepo(ctx context.Context, want string) (string, error) {
	if want == "" {
		return "", nil
	}

	repos, err := b.repos.ListRepos(ctx)
	if err != nil {
		return "", fmt.Errorf("listing repos: %w", err)
	}
	for _, r := range repos {
		if CanonicalPath(r.FullPath) == want {
			return r.ID, nil
		}
	}
	return "", nil
}

// Invalidate drops any cached credential for host. An empty host clears
// the whole cache.
func (b *Broker) Invalidate(host string) {
	if host == "" {
		b.cache.Clear()
		return
	}
	b.cache.Invalidate(NormalizeHost(host))
}

// Close stops background work.
func (b *Broker) Close() {
	b.cache.Close()
}
