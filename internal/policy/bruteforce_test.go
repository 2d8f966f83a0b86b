package policy

import (
	"context"
	"fmt"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/barterhub/backend/internal/cache"
	"github.com/barterhub/backend/internal/config"
)

func newTestPolicy(t *testing.T) *BruteforcePolicy {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	p, err := NewBruteforcePolicy(cache.NewCounters(client), config.SecurityConfig{
		BruteforceWindow:    "15m",
		BruteforceMaxDevice: "3",
		BruteforceMaxOrigin: "4",
		BruteforceMaxTarget: "5",
	})
	require.NoError(t, err)
	return p
}

func TestDeviceCounterTrips(t *testing.T) {
	p := newTestPolicy(t)
	ctx := context.Background()

	attempt := LoginAttempt{LoginOrEmail: "alice", DeviceID: "dev-1", Origin: "10.0.0.1"}

	for i := 0; i < 3; i++ {
		require.NoError(t, p.AssertCanTry(ctx, attempt))
		require.NoError(t, p.RegisterFailure(ctx, attempt))
	}

	err := p.AssertCanTry(ctx, attempt)
	var tooMany *TooManyAttemptsError
	require.ErrorAs(t, err, &tooMany)
	assert.False(t, tooMany.Distributed)
	assert.Greater(t, tooMany.RetryAfter.Seconds(), 0.0)
}

func TestResetClearsDeviceAndOriginOnly(t *testing.T) {
	p := newTestPolicy(t)
	ctx := context.Background()

	attempt := LoginAttempt{LoginOrEmail: "alice", DeviceID: "dev-1", Origin: "10.0.0.1"}

	for i := 0; i < 3; i++ {
		require.NoError(t, p.RegisterFailure(ctx, attempt))
	}
	require.Error(t, p.AssertCanTry(ctx, attempt))

	require.NoError(t, p.Reset(ctx, attempt))
	require.NoError(t, p.AssertCanTry(ctx, attempt))

	// Two more failures on top of the three surviving target increments.
	require.NoError(t, p.RegisterFailure(ctx, attempt))
	require.NoError(t, p.RegisterFailure(ctx, attempt))

	err := p.AssertCanTry(ctx, attempt)
	var tooMany *TooManyAttemptsError
	require.ErrorAs(t, err, &tooMany)
	assert.True(t, tooMany.Distributed, "target counter must survive resets")
}

func TestTargetCounterCatchesDistributedAttack(t *testing.T) {
	p := newTestPolicy(t)
	ctx := context.Background()

	// Five failures against one identity, each from a fresh device and
	// origin, every pair staying under its own threshold.
	for i := 0; i < 5; i++ {
		attempt := LoginAttempt{
			LoginOrEmail: "victim@example.com",
			DeviceID:     fmt.Sprintf("dev-%d", i),
			Origin:       fmt.Sprintf("10.0.0.%d", i),
		}
		require.NoError(t, p.AssertCanTry(ctx, attempt))
		require.NoError(t, p.RegisterFailure(ctx, attempt))
	}

	// A brand-new device/origin pair is still locked out.
	err := p.AssertCanTry(ctx, LoginAttempt{
		LoginOrEmail: "victim@example.com",
		DeviceID:     "dev-new",
		Origin:       "172.16.0.9",
	})
	var tooMany *TooManyAttemptsError
	require.ErrorAs(t, err, &tooMany)
	assert.True(t, tooMany.Distributed)
}

func TestTargetKeyIsCaseInsensitive(t *testing.T) {
	p := newTestPolicy(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, p.RegisterFailure(ctx, LoginAttempt{LoginOrEmail: "Victim@Example.com"}))
	}

	err := p.AssertCanTry(ctx, LoginAttempt{LoginOrEmail: "victim@example.com"})
	assert.Error(t, err)
}
