package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"engagement-service/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func signedToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func authRouter(secret string) *gin.Engine {
	r := gin.New()
	r.POST("/protected", NewAuthMiddleware(secret).RequireAuth(), func(c *gin.Context) {
		c.String(http.StatusOK, "%v", c.GetString(ContextUserID))
	})
	return r
}

func TestRequireAuth(t *testing.T) {
	const secret = "test-secret"
	valid := signedToken(t, secret, jwt.MapClaims{"sub": "educator-7", "exp": time.Now().Add(time.Hour).Unix()})
	expired := signedToken(t, secret, jwt.MapClaims{"sub": "educator-7", "exp": time.Now().Add(-time.Hour).Unix()})
	noSubject := signedToken(t, secret, jwt.MapClaims{"exp": time.Now().Add(time.Hour).Unix()})
	otherKey := signedToken(t, "other-secret", jwt.MapClaims{"sub": "educator-7"})

	tests := []struct {
		name   string
		header string
		status int
		body   string
	}{
		{name: "valid token", header: "Bearer " + valid, status: http.StatusOK, body: "educator-7"},
		{name: "missing header", header: "", status: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic abc", status: http.StatusUnauthorized},
		{name: "expired", header: "Bearer " + expired, status: http.StatusUnauthorized},
		{name: "no subject", header: "Bearer " + noSubject, status: http.StatusUnauthorized},
		{name: "wrong key", header: "Bearer " + otherKey, status: http.StatusUnauthorized},
	}

	r := authRouter(secret)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/protected", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code)
			if tt.body != "" {
				assert.Equal(t, tt.body, w.Body.String())
			}
		})
	}
}

func TestRequireAuthDisabledWithoutSecret(t *testing.T) {
	w := httptest.NewRecorder()
	authRouter("").ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/protected", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

type fakeLimiter struct {
	allow bool
	err   error
	keys  []string
}

func (f *fakeLimiter) CheckRateLimit(_ context.Context, key string, _ int, _ time.Duration) (bool, error) {
	f.keys = append(f.keys, key)
	return f.allow, f.err
}

func limitedRouter(limiter RateLimiter) *gin.Engine {
	r := gin.New()
	r.GET("/sessions/:id", NewRateLimitMiddleware(limiter, logger.Nop()).RateLimit(10, time.Minute), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r
}

func TestRateLimit(t *testing.T) {
	t.Run("allowed", func(t *testing.T) {
		limiter := &fakeLimiter{allow: true}
		w := httptest.NewRecorder()
		limitedRouter(limiter).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/sessions/1", nil))

		assert.Equal(t, http.StatusNoContent, w.Code)
		require.Len(t, limiter.keys, 1)
		assert.Contains(t, limiter.keys[0], "rate_limit_ip:")
		assert.Contains(t, limiter.keys[0], "/sessions/:id")
	})

	t.Run("rejected", func(t *testing.T) {
		w := httptest.NewRecorder()
		limitedRouter(&fakeLimiter{allow: false}).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/sessions/1", nil))

		assert.Equal(t, http.StatusTooManyRequests, w.Code)
		assert.Contains(t, w.Body.String(), "rate limit exceeded")
	})

	t.Run("limiter failure lets request through", func(t *testing.T) {
		w := httptest.NewRecorder()
		limitedRouter(&fakeLimiter{err: errors.New("redis down")}).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/sessions/1", nil))
		assert.Equal(t, http.StatusNoContent, w.Code)
	})

	t.Run("no limiter", func(t *testing.T) {
		w := httptest.NewRecorder()
		limitedRouter(nil).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/sessions/1", nil))
		assert.Equal(t, http.StatusNoContent, w.Code)
	})
}

func TestCORS(t *testing.T) {
	r := gin.New()
	r.Use(CORS([]string{"https://class.example.com"}))
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	tests := []struct {
		origin  string
		allowed bool
	}{
		{origin: "https://class.example.com", allowed: true},
		{origin: "http://localhost:3000", allowed: true},
		{origin: "https://evil.example.com", allowed: false},
	}
	for _, tt := range tests {
		t.Run(tt.origin, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/ping", nil)
			req.Header.Set("Origin", tt.origin)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if tt.allowed {
				assert.Equal(t, tt.origin, w.Header().Get("Access-Control-Allow-Origin"))
			} else {
				assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
			}
		})
	}

	preflight := httptest.NewRequest(http.MethodOptions, "/ping", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, preflight)
	assert.Equal(t, http.StatusNoContent, w.Code)
}
