package handler

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/barterhub/backend/internal/cache"
	"github.com/barterhub/backend/internal/config"
	"github.com/barterhub/backend/internal/metrics"
	"github.com/barterhub/backend/internal/model"
	"github.com/barterhub/backend/internal/service"
	"github.com/barterhub/backend/internal/token"
)

const (
	authUserKey = "auth_user"

	// Requests carrying a freshness hint are the cheap class; they get a
	// much higher budget than state-changing traffic.
	freshnessHeader = "If-User-Updated-Since"
)

// DeviceIDMiddleware issues the long-lived per-client identifier that
// scopes rate limits, brute-force counters, and session reuse. It runs
// before everything else so no request arrives unscoped.
func DeviceIDMiddleware(cookies CookieConfig) gin.HandlerFunc {
	const deviceCookieMaxAge = 365 * 24 * 60 * 60

	return func(c *gin.Context) {
		if _, err := c.Cookie(deviceCookieName); err != nil {
			c.SetSameSite(cookies.SameSite)
			c.SetCookie(deviceCookieName, uuid.NewString(), deviceCookieMaxAge, cookies.Path, cookies.Domain, cookies.Secure, true)
		}
		c.Next()
	}
}

// RateLimitMiddleware is the general per-device gate ahead of routing
// logic: one fixed-window counter per request class. A request without a
// device id passes unthrottled; the device middleware upstream makes that
// a first-request-only case.
func RateLimitMiddleware(counters *cache.Counters, cfg config.SecurityConfig) (gin.HandlerFunc, error) {
	window, err := time.ParseDuration(cfg.RateLimitWindow)
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_WINDOW: %w", err)
	}

	heavyLimit, err := strconv.ParseInt(cfg.RateLimitHeavy, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_HEAVY: %w", err)
	}

	cheapLimit, err := strconv.ParseInt(cfg.RateLimitCheap, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_CHEAP: %w", err)
	}

	return func(c *gin.Context) {
		deviceID, err := c.Cookie(deviceCookieName)
		if err != nil || deviceID == "" {
			c.Next()
			return
		}

		key := "rate:dev:" + deviceID
		limit := heavyLimit
		if c.GetHeader(freshnessHeader) != "" {
			key = "rate:cheap:" + deviceID
			limit = cheapLimit
		}

		count, err := counters.Incr(c.Request.Context(), key, window)
		if err != nil {
			c.JSON(http.StatusInternalServerError, model.ErrorResponse{Code: "INTERNAL"})
			c.Abort()
			return
		}

		if count > limit {
			retry, _ := counters.Retry(c.Request.Context(), key)
			metrics.ThrottleRejections.WithLabelValues("rate_limit").Inc()
			c.Header("Retry-After", strconv.Itoa(int(retry.Seconds())))
			c.JSON(http.StatusTooManyRequests, model.ErrorResponse{
				Code: "TOO_MANY_REQUESTS",
				Meta: map[string]interface{}{"retryAfter": int(retry.Seconds())},
			})
			c.Abort()
			return
		}

		c.Next()
	}, nil
}

// AuthMiddleware verifies the bearer access token, then asks the session
// cache whether the claimed session is still good. Both must pass; the
// durable store is never consulted here.
func AuthMiddleware(codec *token.Codec, svc *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}

		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			c.JSON(http.StatusUnauthorized, model.ErrorResponse{Code: "UNAUTHORIZED"})
			c.Abort()
			return
		}

		tokenStr := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
		claims, err := codec.VerifyAccess(tokenStr)
		if err != nil {
			c.JSON(http.StatusUnauthorized, model.ErrorResponse{Code: "UNAUTHORIZED"})
			c.Abort()
			return
		}

		if err := svc.ValidateSession(c.Request.Context(), claims.SessionID, claims.Subject); err != nil {
			writeAuthError(c, err)
			c.Abort()
			return
		}

		c.Set(authUserKey, &model.AuthUser{
			ID:        claims.Subject,
			Login:     claims.Login,
			Role:      model.UserRole(claims.Role),
			SessionID: claims.SessionID,
		})
		c.Next()
	}
}

func GetAuthUser(c *gin.Context) *model.AuthUser {
	if value, ok := c.Get(authUserKey); ok {
		if user, ok := value.(*model.AuthUser); ok {
			return user
		}
	}
	return nil
}

func CORSMiddleware(allowedOrigins []string, allowCredentials bool) gin.HandlerFunc {
	originMap := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		originMap[trimmed] = struct{}{}
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" {
			if _, ok := originMap[origin]; ok {
				c.Header("Access-Control-Allow-Origin", origin)
				c.Header("Vary", "Origin")
				if allowCredentials {
					c.Header("Access-Control-Allow-Credentials", "true")
				}
				c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type, "+freshnessHeader)
				c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
			}
		}

		if c.Request.Method == http.MethodOptions {
			c.Status(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
