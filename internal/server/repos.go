// ABOUTME: Repository registry and saved Git credential endpoints
// ABOUTME: Credential reads are redacted; writes flush the broker cache

package server

import (
	"errors"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/2389/ocm/internal/credential"
	"github.com/2389/ocm/internal/store"
)

// RepoResponse is the JSON form of a registered repo.
type RepoResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	FullPath  string    `json:"fullPath"`
	CreatedAt time.Time `json:"createdAt"`
}

// CreateRepoRequest is the body of POST /api/repos.
type CreateRepoRequest struct {
	Name     string `json:"name"`
	FullPath string `json:"fullPath"`
}

// GitCredentialsBody is the body of GET and PUT /api/settings/git-credentials.
type GitCredentialsBody struct {
	GitCredentials []store.GitCredential `json:"gitCredentials"`
}

const redactedToken = "********"

func toRepoResponse(r *store.Repo) RepoResponse {
	return RepoResponse{ID: r.ID, Name: r.Name, FullPath: r.FullPath, CreatedAt: r.CreatedAt}
}

// handleListRepos handles GET /api/repos.
func (s *Server) handleListRepos(w http.ResponseWriter, r *http.Request) {
	repos, err := s.store.ListRepos(r.Context())
	if err != nil {
		s.logger.Error("listing repos", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list repos")
		return
	}
	out := make([]RepoResponse, 0, len(repos))
	for _, repo := range repos {
		out = append(out, toRepoResponse(repo))
	}
	writeJSON(w, http.StatusOK, out)
}

// handleCreateRepo handles POST /api/repos. The path is stored in canonical form.
func (s *Server) handleCreateRepo(w http.ResponseWriter, r *http.Request) {
	var req CreateRepoRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.FullPath == "" || !filepath.IsAbs(req.FullPath) {
		writeError(w, http.StatusBadRequest, "fullPath must be an absolute path")
		return
	}

	repo := &store.Repo{
		Name:     strings.TrimSpace(req.Name),
		FullPath: credential.CanonicalPath(req.FullPath),
	}
	err := s.store.CreateRepo(r.Context(), repo)
	switch {
	case errors.Is(err, store.ErrDuplicate):
		writeError(w, http.StatusConflict, "repo already registered")
	case err != nil:
		s.logger.Error("registering repo", "path", req.FullPath, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to register repo")
	default:
		writeJSON(w, http.StatusCreated, toRepoResponse(repo))
	}
}

// handleDeleteRepo handles DELETE /api/repos/{id}.
func (s *Server) handleDeleteRepo(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	err := s.store.DeleteRepo(r.Context(), id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "repo not found")
	case err != nil:
		s.logger.Error("deleting repo", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete repo")
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

// handleGetGitCredentials handles GET /api/settings/git-credentials.
func (s *Server) handleGetGitCredentials(w http.ResponseWriter, r *http.Request) {
	prefs, err := s.store.GetUserPreferences(r.Context())
	if err != nil {
		s.logger.Error("loading preferences", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load settings")
		return
	}

	out := GitCredentialsBody{GitCredentials: make([]store.GitCredential, 0, len(prefs.GitCredentials))}
	for _, c := range prefs.GitCredentials {
		if c.Token != "" {
			c.Token = redactedToken
		}
		out.GitCredentials = append(out.GitCredentials, c)
	}
	writeJSON(w, http.StatusOK, out)
}

// handlePutGitCredentials handles PUT /api/settings/git-credentials.
// A token equal to the redaction marker keeps the saved secret for that host.
func (s *Server) handlePutGitCredentials(w http.ResponseWriter, r *http.Request) {
	var body GitCredentialsBody
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	prefs, err := s.store.GetUserPreferences(r.Context())
	if err != nil {
		s.logger.Error("loading preferences", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load settings")
		return
	}
	saved := make(map[string]string, len(prefs.GitCredentials))
	for _, c := range prefs.GitCredentials {
		saved[credential.NormalizeHost(c.Host)] = c.Token
	}

	creds := make([]store.GitCredential, 0, len(body.GitCredentials))
	for _, c := range body.GitCredentials {
		c.Host = strings.TrimSpace(c.Host)
		if c.Host == "" {
			writeError(w, http.StatusBadRequest, "every credential needs a host")
			return
		}
		if c.Token == redactedToken {
			c.Token = saved[credential.NormalizeHost(c.Host)]
		}
		creds = append(creds, c)
	}

	prefs.GitCredentials = creds
	if err := s.store.SaveUserPreferences(r.Context(), prefs); err != nil {
		s.logger.Error("saving preferences", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to save settings")
		return
	}
	s.broker.Invalidate("")
	s.logger.Info("git credentials updated", "count", len(creds))
	w.WriteHeader(http.StatusNoContent)
}
