package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Freshness keeps one last-modified timestamp per user. The key has no TTL:
// it lives until the next profile update overwrites it. Profile content is
// never cached here, only the freshness decision.
type Freshness struct {
	client *redis.Client
}

func NewFreshness(client *redis.Client) *Freshness {
	return &Freshness{client: client}
}

func freshnessKey(userID string) string {
	return "user:updated:" + userID
}

func (f *Freshness) Touch(ctx context.Context, userID string, updatedAt time.Time) error {
	value := updatedAt.UTC().Format(time.RFC3339Nano)
	if err := f.client.Set(ctx, freshnessKey(userID), value, 0).Err(); err != nil {
		return fmt.Errorf("failed to set freshness key: %w", err)
	}
	return nil
}

// Get returns ok=false when no key exists for the user.
func (f *Freshness) Get(ctx context.Context, userID string) (time.Time, bool, error) {
	value, err := f.client.Get(ctx, freshnessKey(userID)).Result()
	if err == redis.Nil {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to get freshness key: %w", err)
	}

	updatedAt, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to parse freshness value: %w", err)
	}
	return updatedAt, true, nil
}

// Seed loads the whole users table's updated_at timestamps at startup so
// the first conditional read after a restart does not miss.
func (f *Freshness) Seed(ctx context.Context, updatedAt map[string]time.Time) error {
	if len(updatedAt) == 0 {
		return nil
	}

	pipe := f.client.Pipeline()
	for userID, t := range updatedAt {
		pipe.Set(ctx, freshnessKey(userID), t.UTC().Format(time.RFC3339Nano), 0)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to seed freshness keys: %w", err)
	}
	return nil
}

func (f *Freshness) Delete(ctx context.Context, userID string) error {
	if err := f.client.Del(ctx, freshnessKey(userID)).Err(); err != nil {
		return fmt.Errorf("failed to delete freshness key: %w", err)
	}
	return nil
}
