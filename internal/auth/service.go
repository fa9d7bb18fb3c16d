package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Putra1906/MBC-CaptureTheFlag/internal/models"
	"github.com/Putra1906/MBC-CaptureTheFlag/internal/storage"
)

// ErrInvalidCredentials is the single failure mode for login attempts.
// It deliberately does not distinguish an unknown username from a wrong
// password.
var ErrInvalidCredentials = errors.New("invalid username or password")

// Service authenticates users and owns their sessions
type Service struct {
	repo     storage.Repository
	sessions SessionStore
}

// NewService creates an authentication service
func NewService(repo storage.Repository, sessions SessionStore) *Service {
	return &Service{repo: repo, sessions: sessions}
}

// Sessions exposes the underlying session store
func (s *Service) Sessions() SessionStore {
	return s.sessions
}

// Authenticate verifies credentials and, on success, provisions the user's
// progress record and establishes a session. Returns the session token.
func (s *Service) Authenticate(ctx context.Context, username, password string) (string, *Session, error) {
	user, err := s.repo.GetUser(ctx, username)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return "", nil, ErrInvalidCredentials
		}
		return "", nil, fmt.Errorf("failed to look up user: %w", err)
	}

	ok, err := VerifyPassword(password, user.PasswordHash)
	if err != nil {
		// A malformed stored hash is a server-side defect, but the caller
		// still only sees a generic failure
		slog.Error("failed to verify credential", "username", username, "error", err)
		return "", nil, ErrInvalidCredentials
	}
	if !ok {
		return "", nil, ErrInvalidCredentials
	}

	if err := s.repo.EnsureProgress(ctx, user.Username, user.Name); err != nil {
		return "", nil, fmt.Errorf("failed to provision progress: %w", err)
	}

	sess := &Session{
		Username: user.Username,
		Name:     user.Name,
		Role:     user.Role,
	}

	token, err := s.sessions.Create(ctx, sess)
	if err != nil {
		return "", nil, fmt.Errorf("failed to create session: %w", err)
	}

	return token, sess, nil
}

// Logout destroys the session unconditionally
func (s *Service) Logout(ctx context.Context, token string) error {
	return s.sessions.Delete(ctx, token)
}

// BootstrapAdmin creates the configured admin account when no users exist
// yet. Called once at startup; a no-op on an already provisioned database.
func (s *Service) BootstrapAdmin(ctx context.Context, username, password, name string) error {
	if username == "" || password == "" {
		return nil
	}

	count, err := s.repo.CountUsers(ctx)
	if err != nil {
		return fmt.Errorf("failed to count users: %w", err)
	}
	if count > 0 {
		return nil
	}

	hash, err := HashPassword(password)
	if err != nil {
		return fmt.Errorf("failed to hash admin password: %w", err)
	}

	admin := &models.User{
		Username:     username,
		Name:         name,
		Role:         models.RoleAdmin,
		PasswordHash: hash,
	}

	if err := s.repo.CreateUser(ctx, admin); err != nil {
		return fmt.Errorf("failed to create admin user: %w", err)
	}

	slog.Info("admin account bootstrapped", "username", username)
	return nil
}
