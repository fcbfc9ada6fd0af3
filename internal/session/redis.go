package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aimerfeng/ReviewLink/internal/cache"
	"github.com/aimerfeng/ReviewLink/internal/models"
	"github.com/redis/go-redis/v9"
)

// RedisStore keeps sessions as JSON values that expire after ttl of inactivity
type RedisStore struct {
	redis *cache.Redis
	ttl   time.Duration
}

// NewRedisStore creates a Redis-backed session store
func NewRedisStore(r *cache.Redis, ttl time.Duration) *RedisStore {
	return &RedisStore{redis: r, ttl: ttl}
}

func sessionKey(contact string) string {
	return fmt.Sprintf("session:%s", contact)
}

// Get returns the session for contact or ErrNotFound
func (s *RedisStore) Get(ctx context.Context, contact string) (*models.SessionState, error) {
	raw, err := s.redis.Client.Get(ctx, sessionKey(contact)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	var st models.SessionState
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	return &st, nil
}

// Save stores the session and restarts its expiry
func (s *RedisStore) Save(ctx context.Context, st *models.SessionState) error {
	st.UpdatedAt = time.Now().UTC()
	raw, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if err := s.redis.Client.Set(ctx, sessionKey(st.ContactNumber), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// Delete removes the session
func (s *RedisStore) Delete(ctx context.Context, contact string) error {
	if err := s.redis.Client.Del(ctx, sessionKey(contact)).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}
