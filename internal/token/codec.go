package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/barterhub/backend/internal/config"
	"github.com/barterhub/backend/internal/model"
)

var (
	ErrTokenExpired  = errors.New("token expired")
	ErrTokenInvalid  = errors.New("token invalid")
	ErrMisconfigured = errors.New("token config invalid")
)

// Claims is carried by both token kinds; only the signing secret and the
// lifetime differ between access and refresh.
type Claims struct {
	Login     string `json:"login"`
	Role      string `json:"role"`
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// Codec signs access tokens with one secret and refresh tokens with a
// second, independent one. Compromise of either must not let an attacker
// forge the other kind.
type Codec struct {
	accessSecret   []byte
	refreshSecret  []byte
	accessTTL      time.Duration
	refreshTTL     time.Duration
	refreshTTLLong time.Duration
}

func NewCodec(cfg config.AuthConfig) (*Codec, error) {
	if cfg.AccessSecret == "" {
		return nil, fmt.Errorf("%w: JWT_ACCESS_SECRET is required", ErrMisconfigured)
	}
	if cfg.RefreshSecret == "" {
		return nil, fmt.Errorf("%w: JWT_REFRESH_SECRET is required", ErrMisconfigured)
	}
	if cfg.AccessSecret == cfg.RefreshSecret {
		return nil, fmt.Errorf("%w: access and refresh secrets must differ", ErrMisconfigured)
	}

	accessTTL, err := time.ParseDuration(cfg.AccessTTL)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid JWT_ACCESS_TTL", ErrMisconfigured)
	}

	refreshTTL, err := time.ParseDuration(cfg.RefreshTTL)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid JWT_REFRESH_TTL", ErrMisconfigured)
	}

	refreshTTLLong, err := time.ParseDuration(cfg.RefreshTTLLong)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid JWT_REFRESH_TTL_LONG", ErrMisconfigured)
	}

	return &Codec{
		accessSecret:   []byte(cfg.AccessSecret),
		refreshSecret:  []byte(cfg.RefreshSecret),
		accessTTL:      accessTTL,
		refreshTTL:     refreshTTL,
		refreshTTLLong: refreshTTLLong,
	}, nil
}

func (c *Codec) AccessTTL() time.Duration {
	return c.accessTTL
}

// RefreshTTL depends on the caller's remember flag: short by default,
// long when the user asked to stay signed in.
func (c *Codec) RefreshTTL(remember bool) time.Duration {
	if remember {
		return c.refreshTTLLong
	}
	return c.refreshTTL
}

func (c *Codec) IssueAccess(user *model.User, sessionID string) (string, error) {
	return c.sign(user, sessionID, c.accessSecret, c.accessTTL)
}

func (c *Codec) IssueRefresh(user *model.User, sessionID string, remember bool) (string, error) {
	return c.sign(user, sessionID, c.refreshSecret, c.RefreshTTL(remember))
}

func (c *Codec) VerifyAccess(tokenStr string) (*Claims, error) {
	return c.verify(tokenStr, c.accessSecret)
}

func (c *Codec) VerifyRefresh(tokenStr string) (*Claims, error) {
	return c.verify(tokenStr, c.refreshSecret)
}

func (c *Codec) sign(user *model.User, sessionID string, secret []byte, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Login:     user.Login,
		Role:      string(user.Role),
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// verify distinguishes expiry from every other failure only so callers can
// log it; both outcomes mean unauthenticated.
func (c *Codec) verify(tokenStr string, secret []byte) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrTokenInvalid
		}
		return secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}
	if !parsed.Valid || claims.Subject == "" || claims.SessionID == "" {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}
