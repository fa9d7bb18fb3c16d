package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Putra1906/MBC-CaptureTheFlag/internal/models"
	"github.com/Putra1906/MBC-CaptureTheFlag/internal/storage"
)

func newAuthService(t *testing.T) (*Service, *storage.MemoryRepository) {
	t.Helper()
	repo := storage.NewMemoryRepository()
	return NewService(repo, NewMemoryStore(time.Minute)), repo
}

func seedUser(t *testing.T, repo *storage.MemoryRepository, username, name, password string, role models.Role) {
	t.Helper()

	hash, err := HashPassword(password)
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}
	err = repo.CreateUser(context.Background(), &models.User{
		Username:     username,
		Name:         name,
		Role:         role,
		PasswordHash: hash,
	})
	if err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
}

func TestAuthenticateSuccess(t *testing.T) {
	svc, repo := newAuthService(t)
	ctx := context.Background()
	seedUser(t, repo, "alice", "Alice", "s3cret", models.RoleUser)

	token, sess, err := svc.Authenticate(ctx, "alice", "s3cret")
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if token == "" {
		t.Error("expected a session token")
	}
	if sess.Username != "alice" || sess.Name != "Alice" || sess.Role != models.RoleUser {
		t.Errorf("unexpected session: %+v", sess)
	}

	// Login provisions the progress record
	p, err := repo.GetProgress(ctx, "alice")
	if err != nil {
		t.Fatalf("expected progress record after login: %v", err)
	}
	if p.Score != 0 {
		t.Errorf("expected fresh progress at score 0, got %d", p.Score)
	}

	// The token resolves back to the session
	got, err := svc.Sessions().Get(ctx, token)
	if err != nil {
		t.Fatalf("session lookup failed: %v", err)
	}
	if got.Username != "alice" {
		t.Errorf("expected session for alice, got %s", got.Username)
	}
}

func TestAuthenticatePreservesExistingProgress(t *testing.T) {
	svc, repo := newAuthService(t)
	ctx := context.Background()
	seedUser(t, repo, "alice", "Alice", "s3cret", models.RoleUser)

	if _, _, err := svc.Authenticate(ctx, "alice", "s3cret"); err != nil {
		t.Fatalf("first login failed: %v", err)
	}
	err := repo.MutateProgress(ctx, "alice", func(p *models.Progress) error {
		p.Score = 42
		return nil
	})
	if err != nil {
		t.Fatalf("MutateProgress failed: %v", err)
	}

	if _, _, err := svc.Authenticate(ctx, "alice", "s3cret"); err != nil {
		t.Fatalf("second login failed: %v", err)
	}

	p, _ := repo.GetProgress(ctx, "alice")
	if p.Score != 42 {
		t.Errorf("relogin must not reset progress, got score %d", p.Score)
	}
}

func TestAuthenticateFailures(t *testing.T) {
	svc, repo := newAuthService(t)
	ctx := context.Background()
	seedUser(t, repo, "alice", "Alice", "s3cret", models.RoleUser)

	// Unknown user and wrong password are indistinguishable
	if _, _, err := svc.Authenticate(ctx, "ghost", "s3cret"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("unknown user: expected ErrInvalidCredentials, got %v", err)
	}
	if _, _, err := svc.Authenticate(ctx, "alice", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("wrong password: expected ErrInvalidCredentials, got %v", err)
	}

	// Failed logins never provision progress
	if _, err := repo.GetProgress(ctx, "ghost"); !errors.Is(err, storage.ErrProgressNotFound) {
		t.Errorf("expected no progress for failed login, got %v", err)
	}
}

func TestLogout(t *testing.T) {
	svc, repo := newAuthService(t)
	ctx := context.Background()
	seedUser(t, repo, "alice", "Alice", "s3cret", models.RoleUser)

	token, _, err := svc.Authenticate(ctx, "alice", "s3cret")
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}

	if err := svc.Logout(ctx, token); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}
	if _, err := svc.Sessions().Get(ctx, token); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected session gone after logout, got %v", err)
	}
}

func TestBootstrapAdmin(t *testing.T) {
	svc, repo := newAuthService(t)
	ctx := context.Background()

	if err := svc.BootstrapAdmin(ctx, "admin", "hunter2", "Administrator"); err != nil {
		t.Fatalf("BootstrapAdmin failed: %v", err)
	}

	admin, err := repo.GetUser(ctx, "admin")
	if err != nil {
		t.Fatalf("expected admin user created: %v", err)
	}
	if admin.Role != models.RoleAdmin {
		t.Errorf("expected admin role, got %s", admin.Role)
	}

	if _, _, err := svc.Authenticate(ctx, "admin", "hunter2"); err != nil {
		t.Errorf("bootstrapped admin cannot log in: %v", err)
	}
}

func TestBootstrapAdminSkipsPopulatedDatabase(t *testing.T) {
	svc, repo := newAuthService(t)
	ctx := context.Background()
	seedUser(t, repo, "alice", "Alice", "s3cret", models.RoleUser)

	if err := svc.BootstrapAdmin(ctx, "admin", "hunter2", "Administrator"); err != nil {
		t.Fatalf("BootstrapAdmin failed: %v", err)
	}
	if _, err := repo.GetUser(ctx, "admin"); !errors.Is(err, storage.ErrUserNotFound) {
		t.Error("bootstrap must be a no-op when users exist")
	}
}

func TestBootstrapAdminSkipsEmptyCredentials(t *testing.T) {
	svc, repo := newAuthService(t)
	ctx := context.Background()

	if err := svc.BootstrapAdmin(ctx, "", "", ""); err != nil {
		t.Fatalf("BootstrapAdmin failed: %v", err)
	}
	count, _ := repo.CountUsers(ctx)
	if count != 0 {
		t.Errorf("expected no users created, got %d", count)
	}
}
