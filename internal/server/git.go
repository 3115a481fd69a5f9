// ABOUTME: Handlers called by Git child processes through the askpass bridge
// ABOUTME: Password prompts go to the credential broker, host-key prompts to SSH trust

package server

import (
	"net"
	"net/http"
	"net/netip"
	"strings"

	"github.com/2389/ocm/internal/askpass"
	"github.com/2389/ocm/internal/sshtrust"
)

// HostKeyRequest is the body of POST /git/ssh/host-key.
type HostKeyRequest struct {
	Host      string `json:"host"`
	KeyType   string `json:"keyType"`
	PublicKey string `json:"publicKey"`
}

// HostKeyResponse reports whether the connection may proceed.
type HostKeyResponse struct {
	Trusted  bool   `json:"trusted"`
	Decision string `json:"decision"`
}

// isLoopback reports whether the request came from this machine.
func isLoopback(r *http.Request) bool {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return false
	}
	return addr.Unmap().IsLoopback()
}

// authorizeGitCaller enforces the loopback restriction and, when configured,
// the askpass session token. It writes the failure response itself.
func (s *Server) authorizeGitCaller(w http.ResponseWriter, r *http.Request) bool {
	if !s.config.Askpass.AllowRemote && !isLoopback(r) {
		s.logger.Warn("askpass call from non-loopback peer rejected", "remote_addr", r.RemoteAddr)
		writeJSON(w, http.StatusForbidden, askpass.Response{Error: "forbidden"})
		return false
	}
	if s.sessions == nil {
		return true
	}
	if _, err := s.sessions.Verify(r.Header.Get(askpass.SessionHeader)); err != nil {
		s.logger.Warn("askpass session rejected", "remote_addr", r.RemoteAddr, "reason", err.Error())
		writeJSON(w, http.StatusUnauthorized, askpass.Response{Error: "unauthorized"})
		return false
	}
	return true
}

// handleAskpass handles POST /git/askpass.
func (s *Server) handleAskpass(w http.ResponseWriter, r *http.Request) {
	if !s.authorizeGitCaller(w, r) {
		return
	}

	var req askpass.Request
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, askpass.Response{Error: err.Error()})
		return
	}

	if sshtrust.IsHostKeyPrompt(req.Prompt) {
		s.answerHostKeyPrompt(w, r, req.Prompt)
		return
	}

	token, err := s.broker.GetCredential(r.Context(), req.Prompt, req.Cwd)
	if err != nil {
		s.logger.Error("credential lookup failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, askpass.Response{Error: "credential lookup failed"})
		return
	}
	writeJSON(w, http.StatusOK, askpass.Response{Token: token})
}

// answerHostKeyPrompt blocks on the trust manager and answers OpenSSH's
// yes/no question.
func (s *Server) answerHostKeyPrompt(w http.ResponseWriter, r *http.Request, prompt string) {
	key, ok := sshtrust.ParseHostKeyPrompt(prompt)
	if !ok {
		s.logger.Warn("unparseable host key prompt answered no")
		writeJSON(w, http.StatusOK, askpass.Response{Token: "no"})
		return
	}

	decision, err := s.trust.Verify(r.Context(), key)
	if err != nil {
		s.logger.Error("host key verification failed", "host", key.Host, "error", err)
		writeJSON(w, http.StatusInternalServerError, askpass.Response{Error: "host key verification failed"})
		return
	}

	answer := "no"
	if decision.Trusted() {
		answer = "yes"
	}
	writeJSON(w, http.StatusOK, askpass.Response{Token: answer})
}

// handleGitHostKey handles POST /git/ssh/host-key for hooks that know the full key.
func (s *Server) handleGitHostKey(w http.ResponseWriter, r *http.Request) {
	if !s.authorizeGitCaller(w, r) {
		return
	}

	var req HostKeyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Host) == "" || strings.TrimSpace(req.PublicKey) == "" {
		writeError(w, http.StatusBadRequest, "host and publicKey are required")
		return
	}

	line := strings.TrimSpace(req.PublicKey)
	if !strings.Contains(line, " ") && req.KeyType != "" {
		line = req.KeyType + " " + line
	}
	key, err := sshtrust.ParseAuthorizedKey(req.Host, line)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	decision, err := s.trust.Verify(r.Context(), key)
	if err != nil {
		s.logger.Error("host key verification failed", "host", key.Host, "error", err)
		writeError(w, http.StatusInternalServerError, "host key verification failed")
		return
	}
	writeJSON(w, http.StatusOK, HostKeyResponse{Trusted: decision.Trusted(), Decision: string(decision)})
}
