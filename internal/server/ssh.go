// ABOUTME: Operator endpoints for SSH host-key approval and trusted host management
// ABOUTME: Respond resolves a pending request exactly once; status is cheap to poll

package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/2389/ocm/internal/sshtrust"
	"github.com/2389/ocm/internal/store"
)

// RespondRequest is the body of POST /api/ssh/host-key/respond.
type RespondRequest struct {
	RequestID string `json:"requestId"`
	Response  string `json:"response"` // "accept" or "reject"
}

// RespondResponse reports the outcome of a respond call.
type RespondResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// StatusResponse is the body of GET /api/ssh/host-key/status.
type StatusResponse struct {
	Success      bool   `json:"success"`
	PendingCount int    `json:"pendingCount"`
	Error        string `json:"error,omitempty"`
}

// TrustedHostResponse is one trusted host in JSON form.
type TrustedHostResponse struct {
	Host        string    `json:"host"`
	KeyType     string    `json:"keyType"`
	PublicKey   string    `json:"publicKey"`
	Fingerprint string    `json:"fingerprint"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// handleHostKeyRespond handles POST /api/ssh/host-key/respond.
func (s *Server) handleHostKeyRespond(w http.ResponseWriter, r *http.Request) {
	var req RespondRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, RespondResponse{Error: err.Error()})
		return
	}
	if req.RequestID == "" {
		writeJSON(w, http.StatusBadRequest, RespondResponse{Error: "requestId is required"})
		return
	}

	var approved bool
	switch req.Response {
	case "accept":
		approved = true
	case "reject":
		approved = false
	default:
		writeJSON(w, http.StatusBadRequest, RespondResponse{Error: `response must be "accept" or "reject"`})
		return
	}

	err := s.trust.Respond(r.Context(), req.RequestID, approved)
	switch {
	case errors.Is(err, sshtrust.ErrRequestNotFound):
		writeJSON(w, http.StatusNotFound, RespondResponse{Error: "request not found"})
	case err != nil:
		s.logger.Error("host key respond failed", "request_id", req.RequestID, "error", err)
		writeJSON(w, http.StatusInternalServerError, RespondResponse{Error: "failed to save trusted host"})
	default:
		writeJSON(w, http.StatusOK, RespondResponse{Success: true})
	}
}

// handleHostKeyStatus handles GET /api/ssh/host-key/status.
func (s *Server) handleHostKeyStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, StatusResponse{Success: true, PendingCount: s.trust.Status().PendingCount})
}

// handleHostKeyPending handles GET /api/ssh/host-key/pending.
func (s *Server) handleHostKeyPending(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.trust.Pending())
}

// handleListTrustedHosts handles GET /api/ssh/trusted-hosts.
func (s *Server) handleListTrustedHosts(w http.ResponseWriter, r *http.Request) {
	hosts, err := s.store.ListTrustedSSHHosts(r.Context())
	if err != nil {
		s.logger.Error("listing trusted hosts", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list trusted hosts")
		return
	}

	out := make([]TrustedHostResponse, 0, len(hosts))
	for _, h := range hosts {
		out = append(out, TrustedHostResponse{
			Host:        h.Host,
			KeyType:     h.KeyType,
			PublicKey:   h.PublicKey,
			Fingerprint: sshtrust.Fingerprint(h.PublicKey),
			CreatedAt:   h.CreatedAt,
			UpdatedAt:   h.UpdatedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// handleDeleteTrustedHost handles DELETE /api/ssh/trusted-hosts/{host}.
func (s *Server) handleDeleteTrustedHost(w http.ResponseWriter, r *http.Request) {
	host := sshtrust.NormalizeHost(r.PathValue("host"))
	if host == "" {
		writeError(w, http.StatusBadRequest, "host is required")
		return
	}

	err := s.store.DeleteTrustedSSHHost(r.Context(), host)
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "trusted host not found")
	case err != nil:
		s.logger.Error("deleting trusted host", "host", host, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete trusted host")
	default:
		s.logger.Info("trusted host removed", "host", host)
		w.WriteHeader(http.StatusNoContent)
	}
}

// handleKnownHosts handles GET /api/ssh/known-hosts as a known_hosts file.
func (s *Server) handleKnownHosts(w http.ResponseWriter, r *http.Request) {
	lines, err := s.trust.KnownHostsLines(r.Context())
	if err != nil {
		s.logger.Error("exporting known hosts", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to export known hosts")
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if len(lines) > 0 {
		_, _ = w.Write([]byte(strings.Join(lines, "\n") + "\n"))
	}
}
