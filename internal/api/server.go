package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/time/rate"

	"github.com/Putra1906/MBC-CaptureTheFlag/internal/auth"
	"github.com/Putra1906/MBC-CaptureTheFlag/internal/config"
	"github.com/Putra1906/MBC-CaptureTheFlag/internal/game"
	"github.com/Putra1906/MBC-CaptureTheFlag/internal/live"
	"github.com/Putra1906/MBC-CaptureTheFlag/internal/storage"
)

// Server represents the HTTP API server
type Server struct {
	router      *chi.Mux
	repo        storage.Repository
	authService *auth.Service
	gameService *game.Service
	sessions    auth.SessionStore
	broadcaster *live.Broadcaster

	cookieName   string
	sessionTTL   time.Duration
	loginLimiter *rate.Limiter
}

// NewServer creates a new API server
func NewServer(
	authCfg config.AuthConfig,
	repo storage.Repository,
	authService *auth.Service,
	gameService *game.Service,
	broadcaster *live.Broadcaster,
) *Server {
	burst := authCfg.LoginBurst
	if burst <= 0 {
		burst = 10
	}
	interval := authCfg.LoginInterval
	if interval <= 0 {
		interval = time.Second
	}

	s := &Server{
		repo:         repo,
		authService:  authService,
		gameService:  gameService,
		sessions:     authService.Sessions(),
		broadcaster:  broadcaster,
		cookieName:   authCfg.CookieName,
		sessionTTL:   authCfg.SessionTTL,
		loginLimiter: rate.NewLimiter(rate.Every(interval), burst),
	}
	s.setupRouter()
	return s
}

// Router returns the configured router
func (s *Server) Router() http.Handler {
	return s.router
}

// setupRouter configures all routes and middleware
func (s *Server) setupRouter() {
	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// CORS configuration
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Public routes
	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)
	r.With(loginRateLimit(s.loginLimiter)).Post("/login", s.handleLogin)

	// Session-gated routes
	r.Group(func(r chi.Router) {
		r.Use(s.requireSession)

		r.Post("/logout", s.handleLogout)

		r.Get("/flags", s.handleListChallenges)
		r.Get("/flags/{id}", s.handleGetChallenge)
		r.Post("/flags/{id}/submit", s.handleSubmitFlag)

		r.Post("/api/update_time", s.handleUpdateTime)
		r.Post("/api/get_hint/{id}", s.handleGetHint)

		r.Get("/leaderboard", s.handleLeaderboard)
		r.Get("/leaderboard/live", s.handleLeaderboardLive)

		// Admin surface
		r.Route("/admin", func(r chi.Router) {
			r.Use(s.requireAdmin)

			r.Get("/stats", s.handleSolveStats)
			r.Get("/responses/{username}", s.handleSubmissionLog)
			r.Post("/reset", s.handleReset)

			r.Route("/users", func(r chi.Router) {
				r.Get("/", s.handleListUsers)
				r.Post("/", s.handleCreateUser)
				r.Put("/{username}", s.handleUpdateUser)
				r.Delete("/{username}", s.handleDeleteUser)
			})

			r.Route("/challenges", func(r chi.Router) {
				r.Get("/", s.handleAdminListChallenges)
				r.Post("/", s.handleCreateChallenge)
				r.Put("/{id}", s.handleUpdateChallenge)
				r.Delete("/{id}", s.handleDeleteChallenge)
			})
		})
	})

	s.router = r
}

// loggingMiddleware logs HTTP requests using slog
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			slog.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", middleware.GetReqID(r.Context()),
				"remote_addr", r.RemoteAddr,
			)
		}()

		next.ServeHTTP(ww, r)
	})
}
