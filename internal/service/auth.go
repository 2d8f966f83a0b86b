package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/barterhub/backend/internal/db"
	"github.com/barterhub/backend/internal/metrics"
	"github.com/barterhub/backend/internal/model"
	"github.com/barterhub/backend/internal/policy"
	"github.com/barterhub/backend/internal/token"
)

var (
	// Lookup-miss and wrong-password collapse into this one code so the
	// response never reveals whether the identifier exists.
	ErrInvalidCredentials = errors.New("invalid credentials")

	ErrEmailNotConfirmed   = errors.New("email not confirmed")
	ErrRefreshTokenMissing = errors.New("refresh token missing")
	ErrRefreshTokenInvalid = errors.New("refresh token invalid")
	ErrSessionNotFound     = errors.New("session not found")
	ErrSessionMismatch     = errors.New("session mismatch")
	ErrSessionExpired      = errors.New("session expired")
	ErrSessionRevoked      = errors.New("session revoked")
)

// UserLookup is the read-only slice of the user store the auth flow needs.
type UserLookup interface {
	GetUserByIdentifier(ctx context.Context, loginOrEmail string) (*model.User, error)
	GetUserByID(ctx context.Context, userID string) (*model.User, error)
}

type SessionRepository interface {
	CreateSession(ctx context.Context, s *model.Session) (*model.Session, error)
	FindActiveSessionByDevice(ctx context.Context, userID, deviceID, userAgent string) (*model.Session, error)
	GetActiveSessionForRefresh(ctx context.Context, sessionID string) (*model.Session, error)
	ListActiveSessionsWithHash(ctx context.Context, userID string) ([]*model.Session, error)
	RenewSession(ctx context.Context, sessionID, refreshHash string, expiresAt time.Time) error
	RotateRefreshHash(ctx context.Context, sessionID, oldHash, newHash string) (bool, error)
	DeactivateSession(ctx context.Context, sessionID string) error
}

type SessionCache interface {
	Set(ctx context.Context, sessionID string, entry model.SessionCacheEntry, ttl time.Duration) error
	Get(ctx context.Context, sessionID string) (*model.SessionCacheEntry, error)
	Revoke(ctx context.Context, sessionID string) error
}

type BruteforceGuard interface {
	AssertCanTry(ctx context.Context, attempt policy.LoginAttempt) error
	RegisterFailure(ctx context.Context, attempt policy.LoginAttempt) error
	Reset(ctx context.Context, attempt policy.LoginAttempt) error
}

type SessionLimiter interface {
	AssertCanCreateSession(ctx context.Context, userID string) error
}

type LoginInput struct {
	LoginOrEmail string
	Password     string
	Remember     bool
	DeviceID     string
	Origin       string
	UserAgent    string
}

type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// AuthService is the only writer of session state, durable and cached.
// Every durable mutation is mirrored into the session cache afterwards,
// in that order, so a crash leaves the cache too strict rather than too
// permissive.
type AuthService struct {
	users         UserLookup
	sessions      SessionRepository
	cache         SessionCache
	bruteforce    BruteforceGuard
	sessionPolicy SessionLimiter
	codec         *token.Codec
	logger        *zap.Logger
}

func NewAuthService(
	users UserLookup,
	sessions SessionRepository,
	cache SessionCache,
	bruteforce BruteforceGuard,
	sessionPolicy SessionLimiter,
	codec *token.Codec,
	logger *zap.Logger,
) *AuthService {
	return &AuthService{
		users:         users,
		sessions:      sessions,
		cache:         cache,
		bruteforce:    bruteforce,
		sessionPolicy: sessionPolicy,
		codec:         codec,
		logger:        logger,
	}
}

func (s *AuthService) Login(ctx context.Context, in LoginInput) (*TokenPair, error) {
	attempt := policy.LoginAttempt{
		LoginOrEmail: in.LoginOrEmail,
		DeviceID:     in.DeviceID,
		Origin:       in.Origin,
	}

	// Throttle check runs before the user lookup so a throttled caller
	// cannot use response timing to probe identifier existence.
	if err := s.bruteforce.AssertCanTry(ctx, attempt); err != nil {
		var tooMany *policy.TooManyAttemptsError
		if errors.As(err, &tooMany) {
			metrics.ThrottleRejections.WithLabelValues("bruteforce").Inc()
		}
		return nil, err
	}

	user, err := s.users.GetUserByIdentifier(ctx, in.LoginOrEmail)
	if err != nil && !db.IsNoRows(err) {
		return nil, err
	}

	if err != nil ||
		bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(in.Password)) != nil {
		if err := s.bruteforce.RegisterFailure(ctx, attempt); err != nil {
			return nil, err
		}
		metrics.LoginAttempts.WithLabelValues("failure").Inc()
		return nil, ErrInvalidCredentials
	}

	// Deactivated account. Not a credential-guessing signal, so the
	// counters stay untouched, but the response stays generic.
	if !user.Active {
		return nil, ErrInvalidCredentials
	}

	// Unconfirmed email is not a guessing signal either: no failure is
	// registered and no counter is reset.
	if !user.EmailConfirmed {
		return nil, ErrEmailNotConfirmed
	}

	if err := s.bruteforce.Reset(ctx, attempt); err != nil {
		return nil, err
	}

	existing, err := s.sessions.FindActiveSessionByDevice(ctx, user.ID, in.DeviceID, in.UserAgent)
	if err != nil && !db.IsNoRows(err) {
		return nil, err
	}

	expiresAt := time.Now().Add(s.codec.RefreshTTL(in.Remember))

	var session *model.Session
	if existing != nil {
		// Same device and user agent: reuse the session. Best-effort
		// fingerprint match, not a security boundary.
		session = existing
		session.ExpiresAt = expiresAt
	} else {
		if err := s.sessionPolicy.AssertCanCreateSession(ctx, user.ID); err != nil {
			return nil, err
		}

		session, err = s.sessions.CreateSession(ctx, &model.Session{
			UserID:    user.ID,
			DeviceID:  in.DeviceID,
			IP:        in.Origin,
			UserAgent: in.UserAgent,
			ExpiresAt: expiresAt,
			Active:    true,
		})
		if err != nil {
			return nil, err
		}
	}

	accessToken, err := s.codec.IssueAccess(user, session.ID)
	if err != nil {
		return nil, err
	}
	refreshToken, err := s.codec.IssueRefresh(user, session.ID, in.Remember)
	if err != nil {
		return nil, err
	}

	if err := s.sessions.RenewSession(ctx, session.ID, HashToken(refreshToken), expiresAt); err != nil {
		return nil, err
	}

	if err := s.cache.Set(ctx, session.ID, model.SessionCacheEntry{
		UserID:    user.ID,
		Active:    true,
		ExpiresAt: expiresAt.UnixMilli(),
	}, time.Until(expiresAt)); err != nil {
		return nil, err
	}

	metrics.LoginAttempts.WithLabelValues("success").Inc()
	s.logger.Info("login",
		zap.String("user_id", user.ID),
		zap.String("session_id", session.ID),
		zap.Bool("reused", existing != nil),
	)

	return &TokenPair{AccessToken: accessToken, RefreshToken: refreshToken}, nil
}

func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	claims, err := s.codec.VerifyRefresh(refreshToken)
	if err != nil {
		// Expired and malformed differ only in the log line.
		s.logger.Debug("refresh token rejected", zap.Error(err))
		metrics.TokenRefreshes.WithLabelValues("rejected").Inc()
		return nil, ErrRefreshTokenInvalid
	}

	session, err := s.sessions.GetActiveSessionForRefresh(ctx, claims.SessionID)
	if err != nil {
		if db.IsNoRows(err) {
			metrics.TokenRefreshes.WithLabelValues("rejected").Inc()
			return nil, ErrSessionNotFound
		}
		return nil, err
	}

	// Lazy expiry: nothing sweeps expired rows, so detect it here.
	if time.Now().After(session.ExpiresAt) {
		metrics.TokenRefreshes.WithLabelValues("rejected").Inc()
		return nil, ErrSessionNotFound
	}

	presentedHash := HashToken(refreshToken)
	if session.RefreshTokenHash == nil ||
		!hmac.Equal([]byte(presentedHash), []byte(*session.RefreshTokenHash)) {
		// Reuse-detection point: a superseded token no longer matches
		// after rotation.
		metrics.TokenRefreshes.WithLabelValues("rejected").Inc()
		return nil, ErrRefreshTokenInvalid
	}

	if session.UserID != claims.Subject {
		metrics.TokenRefreshes.WithLabelValues("rejected").Inc()
		return nil, ErrSessionMismatch
	}

	user, err := s.users.GetUserByID(ctx, session.UserID)
	if err != nil {
		return nil, err
	}

	accessToken, err := s.codec.IssueAccess(user, session.ID)
	if err != nil {
		return nil, err
	}
	newRefreshToken, err := s.codec.IssueRefresh(user, session.ID, false)
	if err != nil {
		return nil, err
	}

	// Compare-then-rotate must be one atomic statement: of two concurrent
	// refreshes with the same token only one update can match the stored
	// hash, the loser fails as reuse.
	rotated, err := s.sessions.RotateRefreshHash(ctx, session.ID, presentedHash, HashToken(newRefreshToken))
	if err != nil {
		return nil, err
	}
	if !rotated {
		metrics.TokenRefreshes.WithLabelValues("rejected").Inc()
		return nil, ErrRefreshTokenInvalid
	}

	metrics.TokenRefreshes.WithLabelValues("rotated").Inc()
	return &TokenPair{AccessToken: accessToken, RefreshToken: newRefreshToken}, nil
}

func (s *AuthService) Logout(ctx context.Context, userID, refreshToken string) error {
	if refreshToken == "" {
		return ErrRefreshTokenMissing
	}

	sessions, err := s.sessions.ListActiveSessionsWithHash(ctx, userID)
	if err != nil {
		return err
	}

	// Linear scan; sessions per user are bounded by the session policy.
	presentedHash := HashToken(refreshToken)
	for _, session := range sessions {
		if session.RefreshTokenHash == nil ||
			!hmac.Equal([]byte(presentedHash), []byte(*session.RefreshTokenHash)) {
			continue
		}

		if err := s.sessions.DeactivateSession(ctx, session.ID); err != nil {
			return err
		}
		if err := s.cache.Revoke(ctx, session.ID); err != nil {
			return err
		}

		s.logger.Info("logout",
			zap.String("user_id", userID),
			zap.String("session_id", session.ID),
		)
		return nil
	}

	return ErrSessionNotFound
}

// ValidateSession is the per-request guard. It consults only the cache;
// postgres is never read on this path, which is why every durable state
// change above writes through.
func (s *AuthService) ValidateSession(ctx context.Context, sessionID, userID string) error {
	entry, err := s.cache.Get(ctx, sessionID)
	if err != nil {
		return err
	}

	switch {
	case entry == nil:
		metrics.SessionGuardChecks.WithLabelValues("expired").Inc()
		return ErrSessionExpired
	case entry.UserID != userID:
		metrics.SessionGuardChecks.WithLabelValues("mismatch").Inc()
		return ErrSessionMismatch
	case !entry.Active:
		metrics.SessionGuardChecks.WithLabelValues("revoked").Inc()
		return ErrSessionRevoked
	}

	metrics.SessionGuardChecks.WithLabelValues("ok").Inc()
	return nil
}

// HashToken hashes a refresh token for at-rest storage. SHA-256 keeps the
// stored hash deterministic, which is what lets RotateRefreshHash do its
// optimistic compare in a single UPDATE.
func HashToken(tokenStr string) string {
	sum := sha256.Sum256([]byte(tokenStr))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
