package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/barterhub/backend/internal/cache"
	"github.com/barterhub/backend/internal/config"
)

func newRateLimitedRouter(t *testing.T, heavy, cheap string) (*gin.Engine, *miniredis.Miniredis) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	limiter, err := RateLimitMiddleware(cache.NewCounters(client), config.SecurityConfig{
		RateLimitWindow: "5s",
		RateLimitHeavy:  heavy,
		RateLimitCheap:  cheap,
	})
	require.NoError(t, err)

	router := gin.New()
	router.Use(limiter)
	router.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })
	return router, mr
}

func doRequest(router *gin.Engine, deviceID string, withHint bool) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	if deviceID != "" {
		req.AddCookie(&http.Cookie{Name: deviceCookieName, Value: deviceID})
	}
	if withHint {
		req.Header.Set(freshnessHeader, time.Now().UTC().Format(time.RFC3339Nano))
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestRateLimitHeavyClass(t *testing.T) {
	router, _ := newRateLimitedRouter(t, "3", "10")

	for i := 0; i < 3; i++ {
		rec := doRequest(router, "dev-1", false)
		assert.Equal(t, http.StatusOK, rec.Code)
	}

	rec := doRequest(router, "dev-1", false)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), "TOO_MANY_REQUESTS")
}

func TestRateLimitCheapClassIsSeparate(t *testing.T) {
	router, _ := newRateLimitedRouter(t, "2", "5")

	// Exhaust the heavy budget.
	for i := 0; i < 2; i++ {
		require.Equal(t, http.StatusOK, doRequest(router, "dev-1", false).Code)
	}
	require.Equal(t, http.StatusTooManyRequests, doRequest(router, "dev-1", false).Code)

	// Conditional reads still have their own budget.
	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, doRequest(router, "dev-1", true).Code)
	}
	assert.Equal(t, http.StatusTooManyRequests, doRequest(router, "dev-1", true).Code)
}

func TestRateLimitScopedPerDevice(t *testing.T) {
	router, _ := newRateLimitedRouter(t, "1", "5")

	require.Equal(t, http.StatusOK, doRequest(router, "dev-1", false).Code)
	require.Equal(t, http.StatusTooManyRequests, doRequest(router, "dev-1", false).Code)

	assert.Equal(t, http.StatusOK, doRequest(router, "dev-2", false).Code)
}

func TestRateLimitWindowResets(t *testing.T) {
	router, mr := newRateLimitedRouter(t, "1", "5")

	require.Equal(t, http.StatusOK, doRequest(router, "dev-1", false).Code)
	require.Equal(t, http.StatusTooManyRequests, doRequest(router, "dev-1", false).Code)

	mr.FastForward(6 * time.Second)
	assert.Equal(t, http.StatusOK, doRequest(router, "dev-1", false).Code)
}

func TestRateLimitSkipsUnscopedRequest(t *testing.T) {
	router, _ := newRateLimitedRouter(t, "1", "1")

	// No device cookie yet, so nothing to count against.
	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, doRequest(router, "", false).Code)
	}
}
