// ABOUTME: End-to-end tests for the HTTP surface over a real SQLite store
// ABOUTME: Drives the askpass bridge against httptest and resolves host keys via the API

package server

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"

	"github.com/2389/ocm/internal/askpass"
	"github.com/2389/ocm/internal/config"
	"github.com/2389/ocm/internal/sshtrust"
	"github.com/2389/ocm/internal/store"
)

type testEnv struct {
	srv   *Server
	ts    *httptest.Server
	token string
}

func newTestEnv(t *testing.T, mutate func(*config.Config)) *testEnv {
	t.Helper()
	cfg := config.Default()
	cfg.Database.Path = filepath.Join(t.TempDir(), "ocm.db")
	cfg.SSH.HostKeyTimeout = 5 * time.Second
	if mutate != nil {
		mutate(cfg)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv, err := New(cfg, logger)
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		srv.trust.Close()
		ts.Close()
		_ = srv.Shutdown(context.Background())
	})

	token, err := srv.Bootstrap(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, token)

	return &testEnv{srv: srv, ts: ts, token: token}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, token string) *http.Response {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			rdr = strings.NewReader(b)
		default:
			data, err := json.Marshal(b)
			require.NoError(t, err)
			rdr = bytes.NewReader(data)
		}
	}
	req, err := http.NewRequest(method, e.ts.URL+path, rdr)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func (e *testEnv) bridgeEnv(cwd string) askpass.Env {
	return askpass.Env{URL: e.ts.URL + askpass.Path, Cwd: cwd, Timeout: 10 * time.Second}
}

func runBridge(ctx context.Context, env askpass.Env, prompt string) (int, string) {
	var out bytes.Buffer
	code := askpass.Run(ctx, []string{prompt}, env, &out, nil)
	return code, out.String()
}

func hostKeyPrompt(host, fingerprint string) string {
	return fmt.Sprintf("The authenticity of host '%s (140.82.121.4)' can't be established.\n"+
		"ED25519 key fingerprint is %s.\n"+
		"This key is not known by any other names.\n"+
		"Are you sure you want to continue connecting (yes/no/[fingerprint])? ", host, fingerprint)
}

func newHostKey(t *testing.T) ssh.PublicKey {
	t.Helper()
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	key, err := ssh.NewPublicKey(pub)
	require.NoError(t, err)
	return key
}

func (e *testEnv) waitForPending(t *testing.T) sshtrust.PendingSnapshot {
	t.Helper()
	require.Eventually(t, func() bool {
		resp := e.do(t, http.MethodGet, "/api/ssh/host-key/status", nil, e.token)
		return decodeBody[StatusResponse](t, resp).PendingCount == 1
	}, 3*time.Second, 10*time.Millisecond)

	resp := e.do(t, http.MethodGet, "/api/ssh/host-key/pending", nil, e.token)
	pending := decodeBody[[]sshtrust.PendingSnapshot](t, resp)
	require.Len(t, pending, 1)
	return pending[0]
}

func TestHealth_IsPublic(t *testing.T) {
	e := newTestEnv(t, nil)
	resp := e.do(t, http.MethodGet, "/api/health", nil, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAPI_RequiresBearerToken(t *testing.T) {
	e := newTestEnv(t, nil)

	resp := e.do(t, http.MethodGet, "/api/tokens", nil, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = e.do(t, http.MethodGet, "/api/tokens", nil, "ocm_"+strings.Repeat("0", 64))
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = e.do(t, http.MethodGet, "/api/tokens", nil, e.token)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAPI_AuthDisabled(t *testing.T) {
	e := newTestEnv(t, func(c *config.Config) { c.Auth.Disabled = true })
	resp := e.do(t, http.MethodGet, "/api/tokens", nil, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAuthVerify(t *testing.T) {
	e := newTestEnv(t, nil)

	resp := e.do(t, http.MethodGet, "/api/auth/verify", nil, e.token)
	assert.Equal(t, map[string]bool{"valid": true}, decodeBody[map[string]bool](t, resp))

	resp = e.do(t, http.MethodGet, "/api/auth/verify", nil, "ocm_nope")
	assert.Equal(t, map[string]bool{"valid": false}, decodeBody[map[string]bool](t, resp))
}

func TestTokens_Lifecycle(t *testing.T) {
	e := newTestEnv(t, nil)

	resp := e.do(t, http.MethodPost, "/api/tokens", CreateTokenRequest{Comment: "laptop"}, e.token)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decodeBody[CreateTokenResponse](t, resp)
	assert.True(t, strings.HasPrefix(created.Token, "ocm_"))
	assert.Equal(t, "laptop", created.Info.Comment)

	resp = e.do(t, http.MethodGet, "/api/tokens", nil, created.Token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), created.Token)
	assert.NotContains(t, strings.ToLower(string(raw)), "hash")

	var listed []TokenResponse
	require.NoError(t, json.Unmarshal(raw, &listed))
	assert.Len(t, listed, 2)

	resp = e.do(t, http.MethodPost, "/api/tokens/"+created.Info.ID+"/revoke", nil, e.token)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = e.do(t, http.MethodGet, "/api/tokens", nil, created.Token)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = e.do(t, http.MethodPost, "/api/tokens/"+created.Info.ID+"/revoke", nil, e.token)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = e.do(t, http.MethodDelete, "/api/tokens/"+created.Info.ID, nil, e.token)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = e.do(t, http.MethodDelete, "/api/tokens/"+created.Info.ID, nil, e.token)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRepos_Registry(t *testing.T) {
	e := newTestEnv(t, nil)
	dir := t.TempDir()

	resp := e.do(t, http.MethodPost, "/api/repos", CreateRepoRequest{FullPath: "relative/path"}, e.token)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = e.do(t, http.MethodPost, "/api/repos", CreateRepoRequest{FullPath: dir}, e.token)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	repo := decodeBody[RepoResponse](t, resp)
	assert.Equal(t, filepath.Base(dir), repo.Name)

	resp = e.do(t, http.MethodPost, "/api/repos", CreateRepoRequest{FullPath: dir}, e.token)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = e.do(t, http.MethodGet, "/api/repos", nil, e.token)
	assert.Len(t, decodeBody[[]RepoResponse](t, resp), 1)

	resp = e.do(t, http.MethodDelete, "/api/repos/"+repo.ID, nil, e.token)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp = e.do(t, http.MethodDelete, "/api/repos/"+repo.ID, nil, e.token)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGitCredentials_RedactedAndPreserved(t *testing.T) {
	e := newTestEnv(t, nil)

	body := GitCredentialsBody{GitCredentials: []store.GitCredential{{Host: "github.com", Token: "abc123"}}}
	resp := e.do(t, http.MethodPut, "/api/settings/git-credentials", body, e.token)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = e.do(t, http.MethodGet, "/api/settings/git-credentials", nil, e.token)
	got := decodeBody[GitCredentialsBody](t, resp)
	require.Len(t, got.GitCredentials, 1)
	assert.Equal(t, redactedToken, got.GitCredentials[0].Token)

	// round-tripping the redacted document keeps the secret
	got.GitCredentials[0].Username = "octocat"
	resp = e.do(t, http.MethodPut, "/api/settings/git-credentials", got, e.token)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	prefs, err := e.srv.store.GetUserPreferences(context.Background())
	require.NoError(t, err)
	require.Len(t, prefs.GitCredentials, 1)
	assert.Equal(t, "abc123", prefs.GitCredentials[0].Token)
	assert.Equal(t, "octocat", prefs.GitCredentials[0].Username)

	resp = e.do(t, http.MethodPut, "/api/settings/git-credentials", `{"gitCredentials":[{"token":"x"}]}`, e.token)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAskpass_CredentialForRegisteredRepo(t *testing.T) {
	e := newTestEnv(t, nil)
	dir := t.TempDir()

	resp := e.do(t, http.MethodPost, "/api/repos", CreateRepoRequest{FullPath: dir}, e.token)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	body := GitCredentialsBody{GitCredentials: []store.GitCredential{{Host: "github.com", Token: "abc123"}}}
	resp = e.do(t, http.MethodPut, "/api/settings/git-credentials", body, e.token)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	ctx := context.Background()
	code, out := runBridge(ctx, e.bridgeEnv(dir), "Password for 'https://github.com': ")
	assert.Equal(t, askpass.ExitOK, code)
	assert.Equal(t, "abc123\n", out)

	code, out = runBridge(ctx, e.bridgeEnv(dir), "Username for 'https://github.com': ")
	assert.Equal(t, askpass.ExitOK, code)
	assert.Equal(t, "x-access-token\n", out)

	// unregistered working directory gets an empty answer
	code, out = runBridge(ctx, e.bridgeEnv(t.TempDir()), "Password for 'https://github.com': ")
	assert.Equal(t, askpass.ExitOK, code)
	assert.Equal(t, "\n", out)
}

func TestAskpass_RejectsRemotePeer(t *testing.T) {
	e := newTestEnv(t, nil)

	req := httptest.NewRequest(http.MethodPost, askpass.Path, strings.NewReader(`{"prompt":"Password: "}`))
	req.RemoteAddr = "192.0.2.10:5000"
	rec := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req = httptest.NewRequest(http.MethodPost, askpass.Path, strings.NewReader(`{"prompt":"Password: "}`))
	req.RemoteAddr = "[::1]:5000"
	rec = httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAskpass_SessionTokenRequired(t *testing.T) {
	secret := strings.Repeat("s", 32)
	e := newTestEnv(t, func(c *config.Config) { c.Askpass.JWTSecret = secret })
	ctx := context.Background()

	code, out := runBridge(ctx, e.bridgeEnv(t.TempDir()), "Password for 'https://github.com': ")
	assert.Equal(t, askpass.ExitFailure, code)
	assert.Equal(t, "\n", out)

	session, err := e.srv.sessions.Issue("git", time.Minute)
	require.NoError(t, err)
	env := e.bridgeEnv(t.TempDir())
	env.Token = session
	code, _ = runBridge(ctx, env, "Password for 'https://github.com': ")
	assert.Equal(t, askpass.ExitOK, code)
}

func TestAskpass_BadBody(t *testing.T) {
	e := newTestEnv(t, nil)
	resp := e.do(t, http.MethodPost, askpass.Path, "{not json", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAskpass_HostKeyPromptApprovedThroughAPI(t *testing.T) {
	e := newTestEnv(t, nil)
	fp := ssh.FingerprintSHA256(newHostKey(t))
	prompt := hostKeyPrompt("github.com", fp)

	type result struct {
		code int
		out  string
	}
	done := make(chan result, 1)
	go func() {
		code, out := runBridge(context.Background(), e.bridgeEnv(""), prompt)
		done <- result{code, out}
	}()

	pending := e.waitForPending(t)
	assert.Equal(t, "github.com", pending.Host)
	assert.Equal(t, fp, pending.Fingerprint)

	resp := e.do(t, http.MethodPost, "/api/ssh/host-key/respond",
		RespondRequest{RequestID: pending.RequestID, Response: "accept"}, e.token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, decodeBody[RespondResponse](t, resp).Success)

	select {
	case r := <-done:
		assert.Equal(t, askpass.ExitOK, r.code)
		assert.Equal(t, "yes\n", r.out)
	case <-time.After(3 * time.Second):
		t.Fatal("bridge did not return")
	}

	// second respond for the same id is reported as not found
	resp = e.do(t, http.MethodPost, "/api/ssh/host-key/respond",
		RespondRequest{RequestID: pending.RequestID, Response: "accept"}, e.token)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.False(t, decodeBody[RespondResponse](t, resp).Success)

	// the host is now trusted without a new prompt
	code, out := runBridge(context.Background(), e.bridgeEnv(""), prompt)
	assert.Equal(t, askpass.ExitOK, code)
	assert.Equal(t, "yes\n", out)

	resp = e.do(t, http.MethodGet, "/api/ssh/trusted-hosts", nil, e.token)
	hosts := decodeBody[[]TrustedHostResponse](t, resp)
	require.Len(t, hosts, 1)
	assert.Equal(t, "github.com", hosts[0].Host)
	assert.Equal(t, fp, hosts[0].Fingerprint)
}

func TestAskpass_HostKeyTimeoutAnswersNo(t *testing.T) {
	e := newTestEnv(t, func(c *config.Config) { c.SSH.HostKeyTimeout = time.Second })
	prompt := hostKeyPrompt("gitlab.com", ssh.FingerprintSHA256(newHostKey(t)))

	start := time.Now()
	code, out := runBridge(context.Background(), e.bridgeEnv(""), prompt)
	assert.Equal(t, askpass.ExitOK, code)
	assert.Equal(t, "no\n", out)
	assert.GreaterOrEqual(t, time.Since(start), 900*time.Millisecond)

	resp := e.do(t, http.MethodGet, "/api/ssh/host-key/status", nil, e.token)
	assert.Equal(t, 0, decodeBody[StatusResponse](t, resp).PendingCount)
}

func TestHostKeyRespond_Validation(t *testing.T) {
	e := newTestEnv(t, nil)

	resp := e.do(t, http.MethodPost, "/api/ssh/host-key/respond", "{", e.token)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = e.do(t, http.MethodPost, "/api/ssh/host-key/respond",
		RespondRequest{RequestID: "x", Response: "maybe"}, e.token)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = e.do(t, http.MethodPost, "/api/ssh/host-key/respond",
		RespondRequest{RequestID: "unknown", Response: "reject"}, e.token)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = e.do(t, http.MethodPost, "/api/ssh/host-key/respond",
		RespondRequest{RequestID: "x", Response: "accept"}, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestGitHostKey_FullKeyRejectedThenApproved(t *testing.T) {
	e := newTestEnv(t, nil)
	key := newHostKey(t)
	authorized := strings.TrimSpace(string(ssh.MarshalAuthorizedKey(key)))
	req := HostKeyRequest{Host: "git.example.com:2222", PublicKey: authorized}

	present := func() chan HostKeyResponse {
		ch := make(chan HostKeyResponse, 1)
		go func() {
			data, _ := json.Marshal(req)
			resp, err := http.Post(e.ts.URL+"/git/ssh/host-key", "application/json", bytes.NewReader(data))
			if err != nil {
				close(ch)
				return
			}
			defer resp.Body.Close()
			var out HostKeyResponse
			_ = json.NewDecoder(resp.Body).Decode(&out)
			ch <- out
		}()
		return ch
	}

	ch := present()
	pending := e.waitForPending(t)
	assert.Equal(t, "[git.example.com]:2222", pending.Host)
	resp := e.do(t, http.MethodPost, "/api/ssh/host-key/respond",
		RespondRequest{RequestID: pending.RequestID, Response: "reject"}, e.token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, HostKeyResponse{Trusted: false, Decision: "rejected"}, <-ch)

	// rejection persists nothing, so the next presentation prompts again
	ch = present()
	pending = e.waitForPending(t)
	resp = e.do(t, http.MethodPost, "/api/ssh/host-key/respond",
		RespondRequest{RequestID: pending.RequestID, Response: "accept"}, e.token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, HostKeyResponse{Trusted: true, Decision: "accepted"}, <-ch)

	resp = e.do(t, http.MethodGet, "/api/ssh/known-hosts", nil, e.token)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "[git.example.com]:2222 "+authorized)

	resp = e.do(t, http.MethodDelete, "/api/ssh/trusted-hosts/"+"git.example.com:2222", nil, e.token)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp = e.do(t, http.MethodDelete, "/api/ssh/trusted-hosts/"+"git.example.com:2222", nil, e.token)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGitHostKey_Validation(t *testing.T) {
	e := newTestEnv(t, nil)
	resp := e.do(t, http.MethodPost, "/git/ssh/host-key", HostKeyRequest{Host: "h"}, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp = e.do(t, http.MethodPost, "/git/ssh/host-key", HostKeyRequest{Host: "h", PublicKey: "garbage"}, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestBootstrap_OnlyOnce(t *testing.T) {
	e := newTestEnv(t, nil)
	tok, err := e.srv.Bootstrap(context.Background())
	require.NoError(t, err)
	assert.Empty(t, tok)
}

func TestRecovery_PanicReturns500(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := recoveryMiddleware(logger, http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
