// ABOUTME: API token management endpoints and the public verify/health probes
// ABOUTME: Plaintext tokens are returned once on creation; hashes never leave the store

package server

import (
	"net/http"
	"time"

	"github.com/2389/ocm/internal/auth"
	"github.com/2389/ocm/internal/store"
)

// TokenResponse is the JSON form of a token record.
type TokenResponse struct {
	ID         string     `json:"id"`
	Comment    string     `json:"comment,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	LastUsedAt *time.Time `json:"lastUsedAt,omitempty"`
	IsActive   bool       `json:"isActive"`
}

// CreateTokenRequest is the body of POST /api/tokens.
type CreateTokenRequest struct {
	Comment string `json:"comment"`
}

// CreateTokenResponse carries the only copy of the plaintext token.
type CreateTokenResponse struct {
	Token string        `json:"token"`
	Info  TokenResponse `json:"info"`
}

// actorID names the token that authorized r, for audit logging.
func actorID(r *http.Request) string {
	if a := auth.FromContext(r.Context()); a != nil {
		return a.TokenID
	}
	return ""
}

func toTokenResponse(t *store.APIToken) TokenResponse {
	resp := TokenResponse{
		ID:         t.ID,
		CreatedAt:  t.CreatedAt,
		LastUsedAt: t.LastUsedAt,
		IsActive:   t.IsActive,
	}
	if t.Comment != nil {
		resp.Comment = *t.Comment
	}
	return resp
}

// handleHealth handles GET /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleAuthVerify handles GET /api/auth/verify. It sits on the public
// allow-list so the UI can probe a stored token without tripping a 401.
func (s *Server) handleAuthVerify(w http.ResponseWriter, r *http.Request) {
	if s.config.Auth.Disabled {
		writeJSON(w, http.StatusOK, map[string]bool{"valid": true, "authDisabled": true})
		return
	}

	token := auth.BearerToken(r)
	if token == "" {
		writeJSON(w, http.StatusOK, map[string]bool{"valid": false})
		return
	}
	rec, err := s.tokens.ValidateToken(r.Context(), token)
	if err != nil {
		s.logger.Error("verifying token", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"valid": rec != nil})
}

// handleListTokens handles GET /api/tokens.
func (s *Server) handleListTokens(w http.ResponseWriter, r *http.Request) {
	tokens, err := s.tokens.ListAPITokens(r.Context())
	if err != nil {
		s.logger.Error("listing tokens", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list tokens")
		return
	}

	out := make([]TokenResponse, 0, len(tokens))
	for _, t := range tokens {
		out = append(out, toTokenResponse(t))
	}
	writeJSON(w, http.StatusOK, out)
}

// handleCreateToken handles POST /api/tokens. An empty body is allowed.
func (s *Server) handleCreateToken(w http.ResponseWriter, r *http.Request) {
	var req CreateTokenRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	plaintext, rec, err := s.tokens.CreateAPIToken(r.Context(), req.Comment)
	if err != nil {
		s.logger.Error("creating token", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create token")
		return
	}
	s.logger.Info("api token issued", "id", rec.ID, "actor", actorID(r))
	writeJSON(w, http.StatusCreated, CreateTokenResponse{Token: plaintext, Info: toTokenResponse(rec)})
}

// handleRevokeToken handles POST /api/tokens/{id}/revoke.
func (s *Server) handleRevokeToken(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	ok, err := s.tokens.RevokeAPIToken(r.Context(), id)
	if err != nil {
		s.logger.Error("revoking token", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to revoke token")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "token not found")
		return
	}
	s.logger.Info("api token revoked", "id", id, "actor", actorID(r))
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// handleDeleteToken handles DELETE /api/tokens/{id}.
func (s *Server) handleDeleteToken(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	ok, err := s.tokens.DeleteAPIToken(r.Context(), id)
	if err != nil {
		s.logger.Error("deleting token", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete token")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "token not found")
		return
	}
	s.logger.Info("api token deleted", "id", id, "actor", actorID(r))
	w.WriteHeader(http.StatusNoContent)
}
