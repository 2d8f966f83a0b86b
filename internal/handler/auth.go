package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/barterhub/backend/internal/config"
	"github.com/barterhub/backend/internal/model"
	"github.com/barterhub/backend/internal/policy"
	"github.com/barterhub/backend/internal/service"
)

const (
	refreshCookieName = "refresh_token"
	deviceCookieName  = "device_id"
)

type CookieConfig struct {
	Path     string
	Domain   string
	Secure   bool
	SameSite http.SameSite
	MaxAge   int
}

func NewCookieConfig(cfg config.AuthConfig) (CookieConfig, error) {
	secure, err := strconv.ParseBool(cfg.CookieSecure)
	if err != nil {
		return CookieConfig{}, fmt.Errorf("invalid AUTH_COOKIE_SECURE: %w", err)
	}

	sameSite, err := parseSameSite(cfg.CookieSameSite)
	if err != nil {
		return CookieConfig{}, err
	}
	if sameSite == http.SameSiteNoneMode && !secure {
		return CookieConfig{}, fmt.Errorf("SameSite=None requires Secure cookie")
	}

	maxAge, err := time.ParseDuration(cfg.RefreshTTLLong)
	if err != nil {
		return CookieConfig{}, fmt.Errorf("invalid JWT_REFRESH_TTL_LONG: %w", err)
	}

	path := cfg.CookiePath
	if strings.TrimSpace(path) == "" {
		path = "/"
	}

	return CookieConfig{
		Path:     path,
		Domain:   cfg.CookieDomain,
		Secure:   secure,
		SameSite: sameSite,
		MaxAge:   int(maxAge.Seconds()),
	}, nil
}

type AuthHandler struct {
	svc     *service.AuthService
	users   *service.UsersService
	cookies CookieConfig
}

func NewAuthHandler(svc *service.AuthService, users *service.UsersService, cookies CookieConfig) *AuthHandler {
	return &AuthHandler{svc: svc, users: users, cookies: cookies}
}

// Login exchanges credentials for a token pair. The refresh token travels
// back in an HttpOnly cookie, the access token in the body.
func (h *AuthHandler) Login(c *gin.Context) {
	var req model.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Code: "INVALID_REQUEST"})
		return
	}

	deviceID, _ := c.Cookie(deviceCookieName)

	tokens, err := h.svc.Login(c.Request.Context(), service.LoginInput{
		LoginOrEmail: req.LoginOrEmail,
		Password:     req.Password,
		Remember:     req.Remember,
		DeviceID:     deviceID,
		Origin:       c.ClientIP(),
		UserAgent:    c.Request.UserAgent(),
	})
	if err != nil {
		writeAuthError(c, err)
		return
	}

	h.setRefreshCookie(c, tokens.RefreshToken)
	c.JSON(http.StatusOK, model.AuthResponse{
		Message:     "Login successful",
		AccessToken: tokens.AccessToken,
	})
}

// Refresh accepts the refresh token from the body or from the cookie.
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req model.RefreshRequest
	_ = c.ShouldBindJSON(&req)

	refreshToken := req.RefreshToken
	if refreshToken == "" {
		refreshToken, _ = c.Cookie(refreshCookieName)
	}

	tokens, err := h.svc.Refresh(c.Request.Context(), refreshToken)
	if err != nil {
		writeAuthError(c, err)
		return
	}

	h.setRefreshCookie(c, tokens.RefreshToken)
	c.JSON(http.StatusOK, model.AuthResponse{
		Message:     "Token refreshed",
		AccessToken: tokens.AccessToken,
	})
}

func (h *AuthHandler) Logout(c *gin.Context) {
	user := GetAuthUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, model.ErrorResponse{Code: "UNAUTHORIZED"})
		return
	}

	refreshToken, _ := c.Cookie(refreshCookieName)

	if err := h.svc.Logout(c.Request.Context(), user.ID, refreshToken); err != nil {
		writeAuthError(c, err)
		return
	}

	h.clearRefreshCookie(c)
	c.JSON(http.StatusOK, model.LogoutResponse{Message: "Logged out"})
}

func (h *AuthHandler) Register(c *gin.Context) {
	var req model.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Code: "INVALID_REQUEST"})
		return
	}

	user, err := h.users.Register(c.Request.Context(), req, c.GetHeader("Accept-Language"))
	if err != nil {
		writeAuthError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Registered, confirm your email",
		"userId":  user.ID,
	})
}

func (h *AuthHandler) setRefreshCookie(c *gin.Context, tokenStr string) {
	c.SetSameSite(h.cookies.SameSite)
	c.SetCookie(refreshCookieName, tokenStr, h.cookies.MaxAge, h.cookies.Path, h.cookies.Domain, h.cookies.Secure, true)
}

func (h *AuthHandler) clearRefreshCookie(c *gin.Context) {
	c.SetSameSite(h.cookies.SameSite)
	c.SetCookie(refreshCookieName, "", -1, h.cookies.Path, h.cookies.Domain, h.cookies.Secure, true)
}

func parseSameSite(value string) (http.SameSite, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "lax":
		return http.SameSiteLaxMode, nil
	case "strict":
		return http.SameSiteStrictMode, nil
	case "none":
		return http.SameSiteNoneMode, nil
	default:
		return 0, fmt.Errorf("invalid AUTH_COOKIE_SAMESITE: %q", value)
	}
}

func writeAuthError(c *gin.Context, err error) {
	var tooMany *policy.TooManyAttemptsError
	if errors.As(err, &tooMany) {
		c.Header("Retry-After", strconv.Itoa(int(tooMany.RetryAfter.Seconds())))
		c.JSON(http.StatusTooManyRequests, model.ErrorResponse{
			Code: "TOO_MANY_ATTEMPTS",
			Meta: map[string]interface{}{
				"distributed": tooMany.Distributed,
				"retryAfter":  int(tooMany.RetryAfter.Seconds()),
			},
		})
		return
	}

	var maxSessions *policy.MaxSessionsError
	if errors.As(err, &maxSessions) {
		c.JSON(http.StatusForbidden, model.ErrorResponse{
			Code: "MAX_SESSIONS_EXCEEDED",
			Meta: map[string]interface{}{
				"maxSessions":     maxSessions.Max,
				"currentSessions": maxSessions.Current,
				"action":          maxSessions.SuggestedAction(),
			},
		})
		return
	}

	var mailLimited *service.MailRateLimitError
	if errors.As(err, &mailLimited) {
		c.Header("Retry-After", strconv.Itoa(int(mailLimited.RetryAfter.Seconds())))
		c.JSON(http.StatusTooManyRequests, model.ErrorResponse{Code: "EMAIL_RATE_LIMIT"})
		return
	}

	switch {
	case errors.Is(err, service.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, model.ErrorResponse{Code: "INVALID_CREDENTIALS"})
	case errors.Is(err, service.ErrEmailNotConfirmed):
		c.JSON(http.StatusForbidden, model.ErrorResponse{Code: "EMAIL_NOT_CONFIRMED"})
	case errors.Is(err, service.ErrRefreshTokenMissing):
		c.JSON(http.StatusUnauthorized, model.ErrorResponse{Code: "REFRESH_TOKEN_MISSING"})
	case errors.Is(err, service.ErrRefreshTokenInvalid):
		c.JSON(http.StatusUnauthorized, model.ErrorResponse{Code: "REFRESH_TOKEN_INVALID"})
	case errors.Is(err, service.ErrSessionNotFound):
		c.JSON(http.StatusUnauthorized, model.ErrorResponse{Code: "SESSION_NOT_FOUND"})
	case errors.Is(err, service.ErrSessionMismatch):
		c.JSON(http.StatusUnauthorized, model.ErrorResponse{Code: "SESSION_MISMATCH"})
	case errors.Is(err, service.ErrSessionExpired):
		c.JSON(http.StatusUnauthorized, model.ErrorResponse{Code: "SESSION_EXPIRED"})
	case errors.Is(err, service.ErrSessionRevoked):
		c.JSON(http.StatusUnauthorized, model.ErrorResponse{Code: "SESSION_REVOKED"})
	case errors.Is(err, service.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Code: "INVALID_INPUT"})
	case errors.Is(err, service.ErrEmailInUse):
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Code: "EMAIL_ALREADY_IN_USE"})
	case errors.Is(err, service.ErrLoginInUse):
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Code: "LOGIN_ALREADY_IN_USE"})
	case errors.Is(err, service.ErrCountryNotFound):
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Code: "COUNTRY_NOT_FOUND"})
	case errors.Is(err, service.ErrUserNotFound):
		c.JSON(http.StatusNotFound, model.ErrorResponse{Code: "USER_NOT_FOUND"})
	case errors.Is(err, service.ErrConfirmTokenInvalid):
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Code: "CONFIRM_TOKEN_INVALID"})
	default:
		c.JSON(http.StatusInternalServerError, model.ErrorResponse{Code: "INTERNAL"})
	}
}
