package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Putra1906/MBC-CaptureTheFlag/internal/auth"
	"github.com/Putra1906/MBC-CaptureTheFlag/internal/game"
	"github.com/Putra1906/MBC-CaptureTheFlag/internal/models"
	"github.com/Putra1906/MBC-CaptureTheFlag/internal/storage"
)

// Response helpers

type apiResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *apiError   `json:"error,omitempty"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := apiResponse{
		Success: status >= 200 && status < 300,
		Data:    data,
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := apiResponse{
		Success: false,
		Error: &apiError{
			Code:    code,
			Message: message,
		},
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}

// Cookie helpers

func (s *Server) setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.cookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(s.sessionTTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// challengeIDParam parses the {id} URL parameter
func challengeIDParam(r *http.Request) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// Health handlers

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := s.repo.Ping(r.Context()); err != nil {
		respondError(w, http.StatusServiceUnavailable, "not_ready", "service not ready")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ready",
	})
}

// Identity handlers

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	if req.Username == "" || req.Password == "" {
		respondError(w, http.StatusBadRequest, "validation_error", "username and password are required")
		return
	}

	token, sess, err := s.authService.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			respondError(w, http.StatusUnauthorized, "invalid_credentials", "invalid username or password")
			return
		}
		slog.Error("login failed", "error", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "login failed")
		return
	}

	s.setSessionCookie(w, token)
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"username": sess.Username,
		"name":     sess.Name,
		"role":     sess.Role,
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	token := TokenFromContext(r.Context())
	if err := s.authService.Logout(r.Context(), token); err != nil {
		slog.Error("logout failed", "error", err)
	}

	s.clearSessionCookie(w)
	respondJSON(w, http.StatusOK, map[string]string{
		"message": "logged out",
	})
}

// Challenge handlers

type challengeView struct {
	ID          int    `json:"id"`
	Title       string `json:"title"`
	Points      int    `json:"points"`
	Difficulty  string `json:"difficulty,omitempty"`
	Solved      bool   `json:"solved"`
	HintOffered bool   `json:"hint_offered"`
	HintPenalty int    `json:"hint_penalty,omitempty"`
}

func newChallengeView(c *models.Challenge, p *models.Progress) challengeView {
	v := challengeView{
		ID:         c.ID,
		Title:      c.Title,
		Points:     c.Points,
		Difficulty: c.Difficulty,
		Solved:     p.Solved(c.ID),
	}
	if c.HasHint() {
		v.HintOffered = true
		v.HintPenalty = c.Penalty()
	}
	return v
}

func (s *Server) handleListChallenges(w http.ResponseWriter, r *http.Request) {
	sess := SessionFromContext(r.Context())

	challenges, err := s.repo.ListChallenges(r.Context())
	if err != nil {
		slog.Error("failed to list challenges", "error", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to list challenges")
		return
	}

	progress, err := s.repo.GetProgress(r.Context(), sess.Username)
	if err != nil {
		slog.Error("failed to get progress", "error", err, "username", sess.Username)
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to load progress")
		return
	}

	views := make([]challengeView, 0, len(challenges))
	for _, c := range challenges {
		views = append(views, newChallengeView(c, progress))
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"name":       sess.Name,
		"role":       sess.Role,
		"score":      progress.Score,
		"solved":     progress.SolvedKeys(),
		"challenges": views,
	})
}

func (s *Server) handleGetChallenge(w http.ResponseWriter, r *http.Request) {
	sess := SessionFromContext(r.Context())

	id, ok := challengeIDParam(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "validation_error", "challenge id is required")
		return
	}

	challenge, err := s.repo.GetChallenge(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrChallengeNotFound) {
			respondError(w, http.StatusNotFound, "not_found", "challenge not found")
			return
		}
		slog.Error("failed to get challenge", "error", err, "id", id)
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to get challenge")
		return
	}

	progress, err := s.repo.GetProgress(r.Context(), sess.Username)
	if err != nil {
		slog.Error("failed to get progress", "error", err, "username", sess.Username)
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to load progress")
		return
	}

	// Viewing a challenge starts its advisory timer; a failure here only
	// degrades the displayed duration, never the submission itself
	token := TokenFromContext(r.Context())
	if err := s.sessions.MarkStarted(r.Context(), token, id, time.Now()); err != nil {
		slog.Warn("failed to record challenge start", "error", err, "id", id)
	}

	respondJSON(w, http.StatusOK, newChallengeView(challenge, progress))
}

type submitRequest struct {
	Flag string `json:"flag"`
}

func (s *Server) handleSubmitFlag(w http.ResponseWriter, r *http.Request) {
	sess := SessionFromContext(r.Context())

	id, ok := challengeIDParam(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "validation_error", "challenge id is required")
		return
	}

	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	result, err := s.gameService.SubmitFlag(r.Context(), sess.Username, id, req.Flag, sess.StartedAt(id))
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrChallengeNotFound):
			respondError(w, http.StatusNotFound, "not_found", "challenge not found")
		case errors.Is(err, storage.ErrProgressNotFound):
			respondError(w, http.StatusNotFound, "not_found", "no progress record for user")
		default:
			slog.Error("failed to submit flag", "error", err, "id", id, "username", sess.Username)
			respondError(w, http.StatusInternalServerError, "internal_error", "failed to submit flag")
		}
		return
	}

	respondJSON(w, http.StatusOK, result)
}

type updateTimeRequest struct {
	QuestionNumber int     `json:"question_number"`
	TimeSpent      float64 `json:"time_spent"`
}

func (s *Server) handleUpdateTime(w http.ResponseWriter, r *http.Request) {
	sess := SessionFromContext(r.Context())

	var req updateTimeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		// Covers non-numeric time_spent as well as malformed JSON
		respondError(w, http.StatusBadRequest, "validation_error", "question_number and numeric time_spent are required")
		return
	}

	total, err := s.gameService.RecordActiveTime(r.Context(), sess.Username, req.QuestionNumber, req.TimeSpent)
	if err != nil {
		switch {
		case errors.Is(err, game.ErrInvalidDelta):
			respondError(w, http.StatusBadRequest, "validation_error", "time_spent must be a positive number")
		case errors.Is(err, storage.ErrChallengeNotFound):
			respondError(w, http.StatusNotFound, "not_found", "challenge not found")
		case errors.Is(err, storage.ErrProgressNotFound):
			respondError(w, http.StatusNotFound, "user_not_found", "no progress record for user")
		default:
			slog.Error("failed to record active time", "error", err, "username", sess.Username)
			respondError(w, http.StatusInternalServerError, "internal_error", "failed to record active time")
		}
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":        "ok",
		"total_seconds": total,
	})
}

func (s *Server) handleGetHint(w http.ResponseWriter, r *http.Request) {
	sess := SessionFromContext(r.Context())

	id, ok := challengeIDParam(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "validation_error", "challenge id is required")
		return
	}

	result, err := s.gameService.RequestHint(r.Context(), sess.Username, id)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrChallengeNotFound), errors.Is(err, game.ErrHintNotConfigured):
			respondError(w, http.StatusNotFound, "not_found", "no hint for this challenge")
		case errors.Is(err, storage.ErrProgressNotFound):
			respondError(w, http.StatusNotFound, "user_not_found", "no progress record for user")
		default:
			slog.Error("failed to get hint", "error", err, "id", id, "username", sess.Username)
			respondError(w, http.StatusInternalServerError, "internal_error", "failed to get hint")
		}
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":    result.Status,
		"hint":      result.Hint,
		"new_score": result.Score,
	})
}

// Leaderboard handlers

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	sess := SessionFromContext(r.Context())

	standings, err := s.gameService.Standings(r.Context())
	if err != nil {
		slog.Error("failed to compute standings", "error", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to compute standings")
		return
	}

	rank := 0
	for _, st := range standings {
		if st.Username == sess.Username {
			rank = st.Rank
			break
		}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"standings": standings,
		"rank":      rank,
		"total":     len(standings),
	})
}
