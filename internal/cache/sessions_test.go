package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/barterhub/backend/internal/model"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestSessionCacheRoundTrip(t *testing.T) {
	_, client := newTestRedis(t)
	c := NewSessionCache(client)
	ctx := context.Background()

	expires := time.Now().Add(time.Hour)
	entry := model.SessionCacheEntry{UserID: "user-1", Active: true, ExpiresAt: expires.UnixMilli()}
	require.NoError(t, c.Set(ctx, "sess-1", entry, time.Until(expires)))

	got, err := c.Get(ctx, "sess-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "user-1", got.UserID)
	assert.True(t, got.Active)
}

func TestSessionCacheMissIsNil(t *testing.T) {
	_, client := newTestRedis(t)
	c := NewSessionCache(client)

	got, err := c.Get(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRevokeKeepsEntryAndTTL(t *testing.T) {
	mr, client := newTestRedis(t)
	c := NewSessionCache(client)
	ctx := context.Background()

	entry := model.SessionCacheEntry{UserID: "user-1", Active: true, ExpiresAt: time.Now().Add(time.Hour).UnixMilli()}
	require.NoError(t, c.Set(ctx, "sess-1", entry, time.Hour))

	require.NoError(t, c.Revoke(ctx, "sess-1"))

	got, err := c.Get(ctx, "sess-1")
	require.NoError(t, err)
	require.NotNil(t, got, "revoked entry must stay until natural expiry")
	assert.False(t, got.Active)
	assert.Equal(t, "user-1", got.UserID)

	// The key must still die with the session.
	mr.FastForward(2 * time.Hour)
	got, err = c.Get(ctx, "sess-1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRevokeMissingIsNoop(t *testing.T) {
	_, client := newTestRedis(t)
	c := NewSessionCache(client)
	assert.NoError(t, c.Revoke(context.Background(), "missing"))
}
