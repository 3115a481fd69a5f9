// ABOUTME: Route table for the ocm HTTP surface
// ABOUTME: Go 1.22 method patterns; auth is applied around the whole mux

package server

import "net/http"

func (s *Server) registerRoutes(mux *http.ServeMux) {
	// Git child processes
	mux.HandleFunc("POST /git/askpass", s.handleAskpass)
	mux.HandleFunc("POST /git/ssh/host-key", s.handleGitHostKey)

	// Public
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/auth/verify", s.handleAuthVerify)

	// SSH trust
	mux.HandleFunc("POST /api/ssh/host-key/respond", s.handleHostKeyRespond)
	mux.HandleFunc("GET /api/ssh/host-key/status", s.handleHostKeyStatus)
	mux.HandleFunc("GET /api/ssh/host-key/pending", s.handleHostKeyPending)
	mux.HandleFunc("GET /api/ssh/trusted-hosts", s.handleListTrustedHosts)
	mux.HandleFunc("DELETE /api/ssh/trusted-hosts/{host}", s.handleDeleteTrustedHost)
	mux.HandleFunc("GET /api/ssh/known-hosts", s.handleKnownHosts)

	// Tokens
	mux.HandleFunc("GET /api/tokens", s.handleListTokens)
	mux.HandleFunc("POST /api/tokens", s.handleCreateToken)
	mux.HandleFunc("POST /api/tokens/{id}/revoke", s.handleRevokeToken)
	mux.HandleFunc("DELETE /api/tokens/{id}", s.handleDeleteToken)

	// Repos and settings
	mux.HandleFunc("GET /api/repos", s.handleListRepos)
	mux.HandleFunc("POST /api/repos", s.handleCreateRepo)
	mux.HandleFunc("DELETE /api/repos/{id}", s.handleDeleteRepo)
	mux.HandleFunc("GET /api/settings/git-credentials", s.handleGetGitCredentials)
	mux.HandleFunc("PUT /api/settings/git-credentials", s.handlePutGitCredentials)
}
