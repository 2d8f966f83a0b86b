package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/barterhub/backend/internal/cache"
	"github.com/barterhub/backend/internal/config"
	"github.com/barterhub/backend/internal/model"
	"github.com/barterhub/backend/internal/policy"
	"github.com/barterhub/backend/internal/token"
)

type fakeUsers struct {
	users map[string]*model.User
}

func (f *fakeUsers) GetUserByIdentifier(ctx context.Context, loginOrEmail string) (*model.User, error) {
	for _, u := range f.users {
		if u.Login == loginOrEmail || u.Email == loginOrEmail {
			return u, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (f *fakeUsers) GetUserByID(ctx context.Context, userID string) (*model.User, error) {
	if u, ok := f.users[userID]; ok {
		return u, nil
	}
	return nil, pgx.ErrNoRows
}

// memSessions is an in-memory session store with the same atomicity
// contract as the postgres one.
type memSessions struct {
	mu       sync.Mutex
	sessions map[string]*model.Session
}

func newMemSessions() *memSessions {
	return &memSessions{sessions: make(map[string]*model.Session)}
}

func (m *memSessions) CreateSession(ctx context.Context, s *model.Session) (*model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *s
	clone.ID = uuid.NewString()
	clone.CreatedAt = time.Now()
	m.sessions[clone.ID] = &clone
	return &clone, nil
}

func (m *memSessions) FindActiveSessionByDevice(ctx context.Context, userID, deviceID, userAgent string) (*model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.UserID == userID && s.DeviceID == deviceID && s.UserAgent == userAgent && s.Active {
			clone := *s
			return &clone, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (m *memSessions) GetActiveSessionForRefresh(ctx context.Context, sessionID string) (*model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok || !s.Active || s.RefreshTokenHash == nil {
		return nil, pgx.ErrNoRows
	}
	clone := *s
	return &clone, nil
}

func (m *memSessions) ListActiveSessionsWithHash(ctx context.Context, userID string) ([]*model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Session
	for _, s := range m.sessions {
		if s.UserID == userID && s.Active && s.RefreshTokenHash != nil {
			clone := *s
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (m *memSessions) RenewSession(ctx context.Context, sessionID, refreshHash string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[sessionID]; ok && s.Active {
		s.RefreshTokenHash = &refreshHash
		s.ExpiresAt = expiresAt
	}
	return nil
}

func (m *memSessions) RotateRefreshHash(ctx context.Context, sessionID, oldHash, newHash string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok || !s.Active || s.RefreshTokenHash == nil || *s.RefreshTokenHash != oldHash {
		return false, nil
	}
	s.RefreshTokenHash = &newHash
	return true, nil
}

func (m *memSessions) DeactivateSession(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[sessionID]; ok {
		s.Active = false
		s.RefreshTokenHash = nil
	}
	return nil
}

func (m *memSessions) CountActiveSessions(ctx context.Context, userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, s := range m.sessions {
		if s.UserID == userID && s.Active && s.ExpiresAt.After(time.Now()) {
			count++
		}
	}
	return count, nil
}

type authEnv struct {
	svc      *AuthService
	users    *fakeUsers
	sessions *memSessions
	codec    *token.Codec
	redis    *miniredis.Miniredis
}

func newAuthEnv(t *testing.T, maxSessions string) *authEnv {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	counters := cache.NewCounters(client)
	sessionCache := cache.NewSessionCache(client)

	secCfg := config.SecurityConfig{
		MaxSessions:         maxSessions,
		BruteforceWindow:    "15m",
		BruteforceMaxDevice: "10",
		BruteforceMaxOrigin: "20",
		BruteforceMaxTarget: "5",
	}

	bruteforce, err := policy.NewBruteforcePolicy(counters, secCfg)
	require.NoError(t, err)

	sessions := newMemSessions()
	sessionPolicy, err := policy.NewSessionPolicy(sessions, secCfg)
	require.NoError(t, err)

	codec, err := token.NewCodec(config.AuthConfig{
		AccessSecret:   "access-secret",
		RefreshSecret:  "refresh-secret",
		AccessTTL:      "15m",
		RefreshTTL:     "24h",
		RefreshTTLLong: "720h",
	})
	require.NoError(t, err)

	hash, err := bcrypt.GenerateFromPassword([]byte("correct horse"), bcrypt.MinCost)
	require.NoError(t, err)

	users := &fakeUsers{users: map[string]*model.User{
		"user-1": {
			ID:             "user-1",
			Email:          "alice@example.com",
			Login:          "alice",
			PasswordHash:   string(hash),
			Role:           model.RoleUser,
			Active:         true,
			EmailConfirmed: true,
		},
		"user-2": {
			ID:             "user-2",
			Email:          "bob@example.com",
			Login:          "bob",
			PasswordHash:   string(hash),
			Role:           model.RoleUser,
			Active:         true,
			EmailConfirmed: false,
		},
	}}

	svc := NewAuthService(users, sessions, sessionCache, bruteforce, sessionPolicy, codec, zap.NewNop())
	return &authEnv{svc: svc, users: users, sessions: sessions, codec: codec, redis: mr}
}

func loginInput(device string) LoginInput {
	return LoginInput{
		LoginOrEmail: "alice",
		Password:     "correct horse",
		DeviceID:     device,
		Origin:       "10.0.0.1",
		UserAgent:    "test-agent/1.0",
	}
}

func TestLoginSuccessPopulatesCache(t *testing.T) {
	env := newAuthEnv(t, "3")
	ctx := context.Background()

	pair, err := env.svc.Login(ctx, loginInput("dev-1"))
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)

	claims, err := env.codec.VerifyAccess(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)

	// Guard must accept the session straight from the cache.
	require.NoError(t, env.svc.ValidateSession(ctx, claims.SessionID, "user-1"))
}

func TestLoginGenericFailure(t *testing.T) {
	env := newAuthEnv(t, "3")
	ctx := context.Background()

	in := loginInput("dev-1")
	in.Password = "wrong"
	_, err := env.svc.Login(ctx, in)
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	// Unknown identifier yields the exact same error.
	in = loginInput("dev-1")
	in.LoginOrEmail = "nobody"
	_, err = env.svc.Login(ctx, in)
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLoginUnconfirmedEmailSkipsCounters(t *testing.T) {
	env := newAuthEnv(t, "3")
	ctx := context.Background()

	in := loginInput("dev-1")
	in.LoginOrEmail = "bob"
	for i := 0; i < 10; i++ {
		_, err := env.svc.Login(ctx, in)
		assert.ErrorIs(t, err, ErrEmailNotConfirmed)
	}

	// Ten rejections later nothing has tripped: not a guessing signal.
	_, err := env.svc.Login(ctx, in)
	assert.ErrorIs(t, err, ErrEmailNotConfirmed)
}

func TestLoginReusesDeviceSession(t *testing.T) {
	env := newAuthEnv(t, "3")
	ctx := context.Background()

	first, err := env.svc.Login(ctx, loginInput("dev-1"))
	require.NoError(t, err)
	second, err := env.svc.Login(ctx, loginInput("dev-1"))
	require.NoError(t, err)

	firstClaims, err := env.codec.VerifyAccess(first.AccessToken)
	require.NoError(t, err)
	secondClaims, err := env.codec.VerifyAccess(second.AccessToken)
	require.NoError(t, err)

	assert.Equal(t, firstClaims.SessionID, secondClaims.SessionID)

	count, err := env.sessions.CountActiveSessions(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestRememberFlagControlsRefreshExpiry(t *testing.T) {
	env := newAuthEnv(t, "3")
	ctx := context.Background()

	in := loginInput("dev-1")
	short, err := env.svc.Login(ctx, in)
	require.NoError(t, err)

	in.Remember = true
	long, err := env.svc.Login(ctx, in)
	require.NoError(t, err)

	shortClaims, err := env.codec.VerifyRefresh(short.RefreshToken)
	require.NoError(t, err)
	longClaims, err := env.codec.VerifyRefresh(long.RefreshToken)
	require.NoError(t, err)

	// Same device pairing keeps the same session either way.
	assert.Equal(t, shortClaims.SessionID, longClaims.SessionID)
	assert.InDelta(t, (24 * time.Hour).Seconds(), time.Until(shortClaims.ExpiresAt.Time).Seconds(), 60)
	assert.InDelta(t, (720 * time.Hour).Seconds(), time.Until(longClaims.ExpiresAt.Time).Seconds(), 60)
}

func TestRefreshRotationDetectsReuse(t *testing.T) {
	env := newAuthEnv(t, "3")
	ctx := context.Background()

	pair, err := env.svc.Login(ctx, loginInput("dev-1"))
	require.NoError(t, err)

	rotated, err := env.svc.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
	require.NotEqual(t, pair.RefreshToken, rotated.RefreshToken)

	// The superseded token must fail from now on.
	_, err = env.svc.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, ErrRefreshTokenInvalid)

	// The fresh one keeps working.
	_, err = env.svc.Refresh(ctx, rotated.RefreshToken)
	assert.NoError(t, err)
}

func TestRefreshGarbageToken(t *testing.T) {
	env := newAuthEnv(t, "3")
	_, err := env.svc.Refresh(context.Background(), "not-a-token")
	assert.ErrorIs(t, err, ErrRefreshTokenInvalid)
}

func TestRefreshAfterLogoutFails(t *testing.T) {
	env := newAuthEnv(t, "3")
	ctx := context.Background()

	pair, err := env.svc.Login(ctx, loginInput("dev-1"))
	require.NoError(t, err)

	claims, err := env.codec.VerifyAccess(pair.AccessToken)
	require.NoError(t, err)

	require.NoError(t, env.svc.Logout(ctx, "user-1", pair.RefreshToken))

	// The guard sees the revocation, not a plain miss.
	err = env.svc.ValidateSession(ctx, claims.SessionID, "user-1")
	assert.ErrorIs(t, err, ErrSessionRevoked)

	_, err = env.svc.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestLogoutWithoutToken(t *testing.T) {
	env := newAuthEnv(t, "3")
	err := env.svc.Logout(context.Background(), "user-1", "")
	assert.ErrorIs(t, err, ErrRefreshTokenMissing)
}

func TestLogoutUnknownToken(t *testing.T) {
	env := newAuthEnv(t, "3")
	ctx := context.Background()

	_, err := env.svc.Login(ctx, loginInput("dev-1"))
	require.NoError(t, err)

	err = env.svc.Logout(ctx, "user-1", "some-other-token")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestMaxSessionsEnforced(t *testing.T) {
	env := newAuthEnv(t, "2")
	ctx := context.Background()

	first, err := env.svc.Login(ctx, loginInput("dev-1"))
	require.NoError(t, err)
	_, err = env.svc.Login(ctx, loginInput("dev-2"))
	require.NoError(t, err)

	_, err = env.svc.Login(ctx, loginInput("dev-3"))
	var maxErr *policy.MaxSessionsError
	require.ErrorAs(t, err, &maxErr)
	assert.Equal(t, 2, maxErr.Max)
	assert.Equal(t, 2, maxErr.Current)

	// Freeing a slot lets the new device in.
	require.NoError(t, env.svc.Logout(ctx, "user-1", first.RefreshToken))
	_, err = env.svc.Login(ctx, loginInput("dev-3"))
	assert.NoError(t, err)
}

func TestDistributedBruteForceTripsTarget(t *testing.T) {
	env := newAuthEnv(t, "3")
	ctx := context.Background()

	// Five wrong passwords for alice, each from a fresh device and origin.
	for i := 0; i < 5; i++ {
		in := LoginInput{
			LoginOrEmail: "alice",
			Password:     "wrong",
			DeviceID:     fmt.Sprintf("dev-%d", i),
			Origin:       fmt.Sprintf("10.0.1.%d", i),
			UserAgent:    "test-agent/1.0",
		}
		_, err := env.svc.Login(ctx, in)
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	}

	// Even the right password from a brand-new device is now locked out.
	in := loginInput("dev-fresh")
	in.Origin = "172.16.5.5"
	_, err := env.svc.Login(ctx, in)

	var tooMany *policy.TooManyAttemptsError
	require.ErrorAs(t, err, &tooMany)
	assert.True(t, tooMany.Distributed)
}

func TestValidateSessionMismatch(t *testing.T) {
	env := newAuthEnv(t, "3")
	ctx := context.Background()

	pair, err := env.svc.Login(ctx, loginInput("dev-1"))
	require.NoError(t, err)

	claims, err := env.codec.VerifyAccess(pair.AccessToken)
	require.NoError(t, err)

	err = env.svc.ValidateSession(ctx, claims.SessionID, "someone-else")
	assert.ErrorIs(t, err, ErrSessionMismatch)
}

func TestValidateSessionMissIsExpired(t *testing.T) {
	env := newAuthEnv(t, "3")
	err := env.svc.ValidateSession(context.Background(), "no-such-session", "user-1")
	assert.ErrorIs(t, err, ErrSessionExpired)
}

func TestSessionCacheExpiryLocksOut(t *testing.T) {
	env := newAuthEnv(t, "3")
	ctx := context.Background()

	pair, err := env.svc.Login(ctx, loginInput("dev-1"))
	require.NoError(t, err)

	claims, err := env.codec.VerifyAccess(pair.AccessToken)
	require.NoError(t, err)

	// When the mirror entry's TTL runs out the guard fails closed.
	env.redis.FastForward(25 * time.Hour)
	err = env.svc.ValidateSession(ctx, claims.SessionID, "user-1")
	assert.ErrorIs(t, err, ErrSessionExpired)
}
