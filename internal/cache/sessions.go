package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/barterhub/backend/internal/model"
)

// SessionCache mirrors active sessions into redis so the per-request guard
// never touches postgres. The orchestrator writes through on every state
// change; a miss here is always treated as unauthenticated.
type SessionCache struct {
	client *redis.Client
}

func NewSessionCache(client *redis.Client) *SessionCache {
	return &SessionCache{client: client}
}

func sessionKey(sessionID string) string {
	return "session:" + sessionID
}

func (c *SessionCache) Set(ctx context.Context, sessionID string, entry model.SessionCacheEntry, ttl time.Duration) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal session entry: %w", err)
	}

	if ttl <= 0 {
		ttl = time.Second
	}

	if err := c.client.Set(ctx, sessionKey(sessionID), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set session in redis: %w", err)
	}
	return nil
}

// Get returns (nil, nil) on a cache miss.
func (c *SessionCache) Get(ctx context.Context, sessionID string) (*model.SessionCacheEntry, error) {
	data, err := c.client.Get(ctx, sessionKey(sessionID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session from redis: %w", err)
	}

	var entry model.SessionCacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session entry: %w", err)
	}
	return &entry, nil
}

// Revoke rewrites the entry with active=false, keeping the remaining TTL,
// so the guard reports "revoked" rather than a generic miss until the
// session would have expired anyway. A missing key is a no-op.
func (c *SessionCache) Revoke(ctx context.Context, sessionID string) error {
	key := sessionKey(sessionID)

	entry, err := c.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if entry == nil {
		return nil
	}

	ttl, err := c.client.TTL(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("failed to read session ttl: %w", err)
	}
	if ttl <= 0 {
		ttl = time.Second
	}

	entry.Active = false
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal session entry: %w", err)
	}

	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to revoke session in redis: %w", err)
	}
	return nil
}
