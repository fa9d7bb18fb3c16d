package auth

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Putra1906/MBC-CaptureTheFlag/internal/models"
)

// MemoryStore is an in-process SessionStore used by tests. Expiry is
// checked lazily on Get.
type MemoryStore struct {
	mu       sync.RWMutex
	ttl      time.Duration
	sessions map[string]*memorySession
}

type memorySession struct {
	session   *Session
	expiresAt time.Time
}

// NewMemoryStore creates an in-memory session store
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		ttl:      ttl,
		sessions: make(map[string]*memorySession),
	}
}

func (s *MemoryStore) Create(ctx context.Context, sess *Session) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	token := uuid.NewString()
	cp := *sess
	s.sessions[token] = &memorySession{
		session:   &cp,
		expiresAt: time.Now().Add(s.ttl),
	}
	return token, nil
}

func (s *MemoryStore) Get(ctx context.Context, token string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.sessions[token]
	if !ok || time.Now().After(entry.expiresAt) {
		return nil, ErrSessionNotFound
	}

	// Deep copy so the caller's session does not share the Started map
	// with the stored one
	cp := *entry.session
	if entry.session.Started != nil {
		cp.Started = make(map[string]time.Time, len(entry.session.Started))
		for k, v := range entry.session.Started {
			cp.Started[k] = v
		}
	}
	return &cp, nil
}

func (s *MemoryStore) MarkStarted(ctx context.Context, token string, challengeID int, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.sessions[token]
	if !ok || time.Now().After(entry.expiresAt) {
		return ErrSessionNotFound
	}

	key := models.ChallengeKey(challengeID)
	if entry.session.Started == nil {
		entry.session.Started = make(map[string]time.Time)
	}
	if _, ok := entry.session.Started[key]; !ok {
		entry.session.Started[key] = at
	}
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, token)
	return nil
}

func (s *MemoryStore) DeleteAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = make(map[string]*memorySession)
	return nil
}
