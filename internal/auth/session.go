package auth

import (
	"context"
	"errors"
	"time"

	"github.com/Putra1906/MBC-CaptureTheFlag/internal/models"
)

// ErrSessionNotFound is returned when a token does not resolve to a live session
var ErrSessionNotFound = errors.New("session not found")

// Session is the per-login state carried across requests. Started holds the
// advisory first-view timestamp per challenge key; it is ephemeral and only
// used to display solve durations, never for scoring.
type Session struct {
	Username string               `json:"username"`
	Name     string               `json:"name"`
	Role     models.Role          `json:"role"`
	Started  map[string]time.Time `json:"started,omitempty"`
}

// IsAdmin reports whether the session belongs to an administrator
func (s *Session) IsAdmin() bool {
	return s != nil && s.Role == models.RoleAdmin
}

// StartedAt returns the advisory start time for a challenge, if recorded
func (s *Session) StartedAt(challengeID int) *time.Time {
	if s == nil || s.Started == nil {
		return nil
	}
	t, ok := s.Started[models.ChallengeKey(challengeID)]
	if !ok {
		return nil
	}
	return &t
}

// SessionStore persists sessions keyed by an opaque token
type SessionStore interface {
	// Create stores the session and returns a fresh token
	Create(ctx context.Context, s *Session) (string, error)
	// Get resolves a token; ErrSessionNotFound when missing or expired
	Get(ctx context.Context, token string) (*Session, error)
	// MarkStarted records the advisory start time for a challenge the first
	// time it is viewed in this session; later calls are no-ops
	MarkStarted(ctx context.Context, token string, challengeID int, at time.Time) error
	// Delete destroys a single session; deleting an absent token is not an error
	Delete(ctx context.Context, token string) error
	// DeleteAll destroys every session (used by the admin full reset)
	DeleteAll(ctx context.Context) error
}
