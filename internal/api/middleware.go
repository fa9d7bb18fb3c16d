package api

import (
	"errors"
	"log/slog"
	"net/http"

	"golang.org/x/time/rate"

	"github.com/Putra1906/MBC-CaptureTheFlag/internal/auth"
)

// requireSession resolves the session cookie and rejects requests without
// a live session. The session and its token are added to the request
// context for handlers downstream.
func (s *Server) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(s.cookieName)
		if err != nil {
			respondError(w, http.StatusUnauthorized, "auth_required", "authentication required")
			return
		}

		sess, err := s.sessions.Get(r.Context(), cookie.Value)
		if err != nil {
			if errors.Is(err, auth.ErrSessionNotFound) {
				s.clearSessionCookie(w)
				respondError(w, http.StatusUnauthorized, "auth_required", "session expired, log in again")
				return
			}
			slog.Error("failed to resolve session", "error", err)
			respondError(w, http.StatusInternalServerError, "internal_error", "failed to resolve session")
			return
		}

		ctx := contextWithSession(r.Context(), sess, cookie.Value)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireAdmin gates the admin surface. Non-admin violations are denied
// with a 403, not surfaced as a fault.
func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := SessionFromContext(r.Context())
		if sess == nil {
			respondError(w, http.StatusUnauthorized, "auth_required", "authentication required")
			return
		}

		if !sess.IsAdmin() {
			slog.Warn("admin route denied", "username", sess.Username, "path", r.URL.Path)
			respondError(w, http.StatusForbidden, "forbidden", "admin role required")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// loginRateLimit throttles credential guessing on the login endpoint
func loginRateLimit(limiter *rate.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				respondError(w, http.StatusTooManyRequests, "rate_limited", "too many login attempts, slow down")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
