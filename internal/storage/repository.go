package storage

import (
	"context"
	"errors"

	"github.com/Putra1906/MBC-CaptureTheFlag/internal/models"
)

// Common errors
var (
	ErrUserNotFound      = errors.New("user not found")
	ErrUserExists        = errors.New("user already exists")
	ErrChallengeNotFound = errors.New("challenge not found")
	ErrChallengeExists   = errors.New("challenge already exists")
	ErrProgressNotFound  = errors.New("progress record not found")
)

// Repository defines the interface for CTF persistence
type Repository interface {
	// Users
	CreateUser(ctx context.Context, u *models.User) error
	GetUser(ctx context.Context, username string) (*models.User, error)
	UpdateUser(ctx context.Context, u *models.User) error
	DeleteUser(ctx context.Context, username string) error
	ListUsers(ctx context.Context) ([]*models.User, error)
	CountUsers(ctx context.Context) (int, error)

	// Challenges
	CreateChallenge(ctx context.Context, c *models.Challenge) error
	GetChallenge(ctx context.Context, id int) (*models.Challenge, error)
	UpdateChallenge(ctx context.Context, c *models.Challenge) error
	DeleteChallenge(ctx context.Context, id int) error
	ListChallenges(ctx context.Context) ([]*models.Challenge, error)
	CountChallenges(ctx context.Context) (int, error)

	// Progress
	//
	// EnsureProgress is an idempotent insert: it creates an empty record for
	// the user if none exists and is a no-op otherwise.
	//
	// MutateProgress serializes concurrent read-modify-write sequences for
	// the same user's record: fn receives the current state and its changes
	// are persisted atomically. Returning an error from fn aborts the write.
	EnsureProgress(ctx context.Context, username, name string) error
	GetProgress(ctx context.Context, username string) (*models.Progress, error)
	ListProgress(ctx context.Context) ([]*models.Progress, error)
	MutateProgress(ctx context.Context, username string, fn func(p *models.Progress) error) error
	ResetProgress(ctx context.Context) error

	// Health
	Ping(ctx context.Context) error
	Close() error
}
