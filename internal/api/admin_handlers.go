package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Putra1906/MBC-CaptureTheFlag/internal/auth"
	"github.com/Putra1906/MBC-CaptureTheFlag/internal/models"
	"github.com/Putra1906/MBC-CaptureTheFlag/internal/storage"
)

// Reporting handlers

func (s *Server) handleSolveStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.gameService.SolveCounts(r.Context())
	if err != nil {
		slog.Error("failed to compute solve stats", "error", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to compute solve stats")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"stats": stats,
		"total": len(stats),
	})
}

func (s *Server) handleSubmissionLog(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")
	if username == "" {
		respondError(w, http.StatusBadRequest, "validation_error", "username is required")
		return
	}

	entries, err := s.gameService.SubmissionLog(r.Context(), username)
	if err != nil {
		if errors.Is(err, storage.ErrProgressNotFound) {
			respondError(w, http.StatusNotFound, "not_found", "no progress record for user")
			return
		}
		slog.Error("failed to get submission log", "error", err, "username", username)
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to get submission log")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"username": username,
		"entries":  entries,
		"total":    len(entries),
	})
}

// handleReset clears every user's progress and invalidates all sessions,
// including the one making this request.
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	sess := SessionFromContext(r.Context())

	if err := s.gameService.Reset(r.Context()); err != nil {
		slog.Error("failed to reset progress", "error", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to reset progress")
		return
	}

	// The reset is only complete once every session is gone; a failed
	// sweep leaves stale logins alive and must not report success
	if err := s.sessions.DeleteAll(r.Context()); err != nil {
		slog.Error("failed to invalidate sessions after reset", "error", err)
		s.clearSessionCookie(w)
		respondError(w, http.StatusInternalServerError, "internal_error", "progress reset, but session invalidation failed")
		return
	}

	slog.Info("full progress reset", "requested_by", sess.Username)

	s.clearSessionCookie(w)
	respondJSON(w, http.StatusOK, map[string]string{
		"message": "progress reset, all sessions invalidated",
	})
}

// User management handlers

type userRequest struct {
	Username string `json:"username"`
	Name     string `json:"name"`
	Role     string `json:"role"`
	Password string `json:"password"`
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.repo.ListUsers(r.Context())
	if err != nil {
		slog.Error("failed to list users", "error", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to list users")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"users": users,
		"total": len(users),
	})
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req userRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	if req.Username == "" || req.Name == "" || req.Password == "" {
		respondError(w, http.StatusBadRequest, "validation_error", "username, name and password are required")
		return
	}

	role := models.Role(req.Role)
	if req.Role == "" {
		role = models.RoleUser
	}
	if !role.Valid() {
		respondError(w, http.StatusBadRequest, "validation_error", "role must be user or admin")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		slog.Error("failed to hash password", "error", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to create user")
		return
	}

	user := &models.User{
		Username:     req.Username,
		Name:         req.Name,
		Role:         role,
		PasswordHash: hash,
	}

	if err := s.repo.CreateUser(r.Context(), user); err != nil {
		if errors.Is(err, storage.ErrUserExists) {
			respondError(w, http.StatusConflict, "conflict", "username already taken")
			return
		}
		slog.Error("failed to create user", "error", err, "username", req.Username)
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to create user")
		return
	}

	respondJSON(w, http.StatusCreated, user)
}

func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")
	if username == "" {
		respondError(w, http.StatusBadRequest, "validation_error", "username is required")
		return
	}

	var req userRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	user, err := s.repo.GetUser(r.Context(), username)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			respondError(w, http.StatusNotFound, "not_found", "user not found")
			return
		}
		slog.Error("failed to get user", "error", err, "username", username)
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to update user")
		return
	}

	if req.Name != "" {
		user.Name = req.Name
	}
	if req.Role != "" {
		role := models.Role(req.Role)
		if !role.Valid() {
			respondError(w, http.StatusBadRequest, "validation_error", "role must be user or admin")
			return
		}
		user.Role = role
	}
	if req.Password != "" {
		hash, err := auth.HashPassword(req.Password)
		if err != nil {
			slog.Error("failed to hash password", "error", err)
			respondError(w, http.StatusInternalServerError, "internal_error", "failed to update user")
			return
		}
		user.PasswordHash = hash
	}

	if err := s.repo.UpdateUser(r.Context(), user); err != nil {
		slog.Error("failed to update user", "error", err, "username", username)
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to update user")
		return
	}

	respondJSON(w, http.StatusOK, user)
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")
	if username == "" {
		respondError(w, http.StatusBadRequest, "validation_error", "username is required")
		return
	}

	if err := s.repo.DeleteUser(r.Context(), username); err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			respondError(w, http.StatusNotFound, "not_found", "user not found")
			return
		}
		slog.Error("failed to delete user", "error", err, "username", username)
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to delete user")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"message": "user deleted",
	})
}

// Challenge management handlers

type challengeRequest struct {
	ID          int    `json:"id"`
	Title       string `json:"title"`
	Points      int    `json:"points"`
	Flag        string `json:"flag"`
	Difficulty  string `json:"difficulty"`
	Hint        string `json:"hint"`
	HintPenalty int    `json:"hint_penalty"`
}

// adminChallengeView exposes the fields hidden from participants
type adminChallengeView struct {
	ID          int    `json:"id"`
	Title       string `json:"title"`
	Points      int    `json:"points"`
	Flag        string `json:"flag"`
	Difficulty  string `json:"difficulty,omitempty"`
	Hint        string `json:"hint,omitempty"`
	HintPenalty int    `json:"hint_penalty,omitempty"`
}

func newAdminChallengeView(c *models.Challenge) adminChallengeView {
	return adminChallengeView{
		ID:          c.ID,
		Title:       c.Title,
		Points:      c.Points,
		Flag:        c.Flag,
		Difficulty:  c.Difficulty,
		Hint:        c.Hint,
		HintPenalty: c.HintPenalty,
	}
}

func (s *Server) handleAdminListChallenges(w http.ResponseWriter, r *http.Request) {
	challenges, err := s.repo.ListChallenges(r.Context())
	if err != nil {
		slog.Error("failed to list challenges", "error", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to list challenges")
		return
	}

	views := make([]adminChallengeView, 0, len(challenges))
	for _, c := range challenges {
		views = append(views, newAdminChallengeView(c))
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"challenges": views,
		"total":      len(views),
	})
}

func validateChallengeRequest(req challengeRequest) (string, bool) {
	switch {
	case req.ID <= 0:
		return "id must be a positive integer", false
	case req.Title == "":
		return "title is required", false
	case req.Points <= 0:
		return "points must be a positive integer", false
	case req.Flag == "":
		return "flag is required", false
	case req.HintPenalty < 0:
		return "hint_penalty must not be negative", false
	}
	return "", true
}

func (s *Server) handleCreateChallenge(w http.ResponseWriter, r *http.Request) {
	var req challengeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	if msg, ok := validateChallengeRequest(req); !ok {
		respondError(w, http.StatusBadRequest, "validation_error", msg)
		return
	}

	challenge := &models.Challenge{
		ID:          req.ID,
		Title:       req.Title,
		Points:      req.Points,
		Flag:        req.Flag,
		Difficulty:  req.Difficulty,
		Hint:        req.Hint,
		HintPenalty: req.HintPenalty,
	}

	if err := s.repo.CreateChallenge(r.Context(), challenge); err != nil {
		if errors.Is(err, storage.ErrChallengeExists) {
			respondError(w, http.StatusConflict, "conflict", "challenge id already taken")
			return
		}
		slog.Error("failed to create challenge", "error", err, "id", req.ID)
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to create challenge")
		return
	}

	respondJSON(w, http.StatusCreated, newAdminChallengeView(challenge))
}

func (s *Server) handleUpdateChallenge(w http.ResponseWriter, r *http.Request) {
	id, ok := challengeIDParam(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "validation_error", "challenge id is required")
		return
	}

	var req challengeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	req.ID = id
	if msg, ok := validateChallengeRequest(req); !ok {
		respondError(w, http.StatusBadRequest, "validation_error", msg)
		return
	}

	challenge := &models.Challenge{
		ID:          id,
		Title:       req.Title,
		Points:      req.Points,
		Flag:        req.Flag,
		Difficulty:  req.Difficulty,
		Hint:        req.Hint,
		HintPenalty: req.HintPenalty,
	}

	if err := s.repo.UpdateChallenge(r.Context(), challenge); err != nil {
		if errors.Is(err, storage.ErrChallengeNotFound) {
			respondError(w, http.StatusNotFound, "not_found", "challenge not found")
			return
		}
		slog.Error("failed to update challenge", "error", err, "id", id)
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to update challenge")
		return
	}

	respondJSON(w, http.StatusOK, newAdminChallengeView(challenge))
}

func (s *Server) handleDeleteChallenge(w http.ResponseWriter, r *http.Request) {
	id, ok := challengeIDParam(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "validation_error", "challenge id is required")
		return
	}

	if err := s.repo.DeleteChallenge(r.Context(), id); err != nil {
		if errors.Is(err, storage.ErrChallengeNotFound) {
			respondError(w, http.StatusNotFound, "not_found", "challenge not found")
			return
		}
		slog.Error("failed to delete challenge", "error", err, "id", id)
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to delete challenge")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"message": "challenge deleted",
	})
}
