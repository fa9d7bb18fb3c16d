package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/Putra1906/MBC-CaptureTheFlag/internal/models"
)

const sessionKeyPrefix = "ctf:session:"

// RedisStore implements SessionStore on Redis. Session payloads are stored
// as JSON values under ctf:session:{token} with the configured TTL, so
// expiry needs no background sweeping.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore creates a Redis-backed session store
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

// Create stores the session and returns a fresh token
func (s *RedisStore) Create(ctx context.Context, sess *Session) (string, error) {
	token := uuid.NewString()

	payload, err := json.Marshal(sess)
	if err != nil {
		return "", fmt.Errorf("failed to marshal session: %w", err)
	}

	if err := s.client.Set(ctx, sessionKeyPrefix+token, payload, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("failed to store session: %w", err)
	}

	return token, nil
}

// Get resolves a token to its session
func (s *RedisStore) Get(ctx context.Context, token string) (*Session, error) {
	payload, err := s.client.Get(ctx, sessionKeyPrefix+token).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	var sess Session
	if err := json.Unmarshal(payload, &sess); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}

	return &sess, nil
}

// MarkStarted records the advisory start time for a challenge, keeping the
// earliest one. The session TTL is refreshed on write.
func (s *RedisStore) MarkStarted(ctx context.Context, token string, challengeID int, at time.Time) error {
	sess, err := s.Get(ctx, token)
	if err != nil {
		return err
	}

	key := models.ChallengeKey(challengeID)
	if _, ok := sess.Started[key]; ok {
		return nil
	}

	if sess.Started == nil {
		sess.Started = make(map[string]time.Time)
	}
	sess.Started[key] = at

	payload, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	if err := s.client.Set(ctx, sessionKeyPrefix+token, payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}

	return nil
}

// Delete destroys a single session
func (s *RedisStore) Delete(ctx context.Context, token string) error {
	if err := s.client.Del(ctx, sessionKeyPrefix+token).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// DeleteAll destroys every session by scanning the key prefix
func (s *RedisStore) DeleteAll(ctx context.Context) error {
	pattern := sessionKeyPrefix + "*"
	var cursor uint64
	var deleted int

	for {
		keys, nextCursor, err := s.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return fmt.Errorf("failed to scan sessions: %w", err)
		}

		if len(keys) > 0 {
			if err := s.client.Del(ctx, keys...).Err(); err != nil {
				slog.Warn("failed to delete some sessions", "error", err)
			}
			deleted += len(keys)
		}

		cursor = nextCursor
		if cursor == 0 {
			break
		}
	}

	slog.Info("sessions invalidated", "count", deleted)
	return nil
}
