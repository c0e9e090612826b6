package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrSessionNotFound = errors.New("session not found")

// session:{sid} -> user_id
const keySession = "session:%s"

// SessionStorage сессии пользователей с TTL. Живут в redis,
// поэтому переживают рестарт и общие для всех инстансов.
type SessionStorage interface {
	Create(ctx context.Context, userID int64, ttl time.Duration) (string, error)
	Lookup(ctx context.Context, sessionID string) (int64, error)
	Invalidate(ctx context.Context, sessionID string) error
}

type sessionStore struct {
	rdb *redis.Client
}

func NewSessionStore(rdb *redis.Client) SessionStorage {
	return &sessionStore{rdb: rdb}
}

func (s *sessionStore) Create(ctx context.Context, userID int64, ttl time.Duration) (string, error) {
	sid := uuid.NewString()
	if err := s.rdb.Set(ctx, fmt.Sprintf(keySession, sid), userID, ttl).Err(); err != nil {
		return "", fmt.Errorf("failed to create session: %w", err)
	}
	return sid, nil
}

func (s *sessionStore) Lookup(ctx context.Context, sessionID string) (int64, error) {
	userID, err := s.rdb.Get(ctx, fmt.Sprintf(keySession, sessionID)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, ErrSessionNotFound
		}
		return 0, fmt.Errorf("failed to lookup session: %w", err)
	}
	return userID, nil
}

func (s *sessionStore) Invalidate(ctx context.Context, sessionID string) error {
	if err := s.rdb.Del(ctx, fmt.Sprintf(keySession, sessionID)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate session: %w", err)
	}
	return nil
}
