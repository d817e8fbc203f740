package middleware

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"messenger-service/internal/chat"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type stubAuth map[string]string

func (s stubAuth) Authenticate(token string) (chat.Identity, error) {
	if u, ok := s[token]; ok {
		return chat.Identity{Username: u}, nil
	}
	return chat.Identity{}, errors.New("bad token")
}

type mockLimiter struct {
	mock.Mock
}

func (m *mockLimiter) CheckRateLimit(ctx context.Context, key string, limit int64, window time.Duration) (bool, error) {
	args := m.Called(ctx, key, limit, window)
	return args.Bool(0), args.Error(1)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newEngine(mw ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handlers := append(mw, func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(ContextUsername))
	})
	r.GET("/x", handlers...)
	return r
}

func do(r http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRequireAuth(t *testing.T) {
	am := NewAuthMiddleware(stubAuth{"good": "alice"})
	r := newEngine(am.RequireAuth())

	tests := []struct {
		name   string
		header string
		code   int
		body   string
	}{
		{"missing header", "", http.StatusUnauthorized, ""},
		{"wrong scheme", "Basic good", http.StatusUnauthorized, ""},
		{"bad token", "Bearer nope", http.StatusUnauthorized, ""},
		{"valid", "Bearer good", http.StatusOK, "alice"},
		{"case insensitive scheme", "bearer good", http.StatusOK, "alice"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/x", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := do(r, req)
			assert.Equal(t, tt.code, w.Code)
			if tt.body != "" {
				assert.Equal(t, tt.body, w.Body.String())
			}
		})
	}
}

func TestRequireWSAuth_QueryOrHeader(t *testing.T) {
	am := NewAuthMiddleware(stubAuth{"good": "bob"})
	r := newEngine(am.RequireWSAuth())

	w := do(r, httptest.NewRequest(http.MethodGet, "/x?token=good", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "bob", w.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Authorization", "Bearer good")
	assert.Equal(t, http.StatusOK, do(r, req).Code)

	assert.Equal(t, http.StatusUnauthorized, do(r, httptest.NewRequest(http.MethodGet, "/x", nil)).Code)
	assert.Equal(t, http.StatusUnauthorized, do(r, httptest.NewRequest(http.MethodGet, "/x?token=bad", nil)).Code)
}

func TestIdentityFrom(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())

	_, ok := IdentityFrom(c)
	assert.False(t, ok)

	c.Set(ContextIdentity, chat.Identity{Username: "carol"})
	id, ok := IdentityFrom(c)
	assert.True(t, ok)
	assert.Equal(t, "carol", id.Username)
}

func TestRateLimitIP(t *testing.T) {
	limiter := new(mockLimiter)
	limiter.On("CheckRateLimit", mock.Anything, "rate_limit_ip:192.0.2.1:/x", int64(2), time.Minute).
		Return(true, nil).Once()
	limiter.On("CheckRateLimit", mock.Anything, "rate_limit_ip:192.0.2.1:/x", int64(2), time.Minute).
		Return(false, nil).Once()

	rm := NewRateLimitMiddleware(limiter, quietLogger())
	r := newEngine(rm.RateLimitIP(2, time.Minute))

	assert.Equal(t, http.StatusOK, do(r, httptest.NewRequest(http.MethodGet, "/x", nil)).Code)
	assert.Equal(t, http.StatusTooManyRequests, do(r, httptest.NewRequest(http.MethodGet, "/x", nil)).Code)
	limiter.AssertExpectations(t)
}

func TestRateLimit_FailsOpen(t *testing.T) {
	limiter := new(mockLimiter)
	limiter.On("CheckRateLimit", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(false, errors.New("redis down"))

	rm := NewRateLimitMiddleware(limiter, quietLogger())
	r := newEngine(rm.RateLimitIP(1, time.Minute))

	assert.Equal(t, http.StatusOK, do(r, httptest.NewRequest(http.MethodGet, "/x", nil)).Code)
}

func TestRateLimit_NilLimiterPassesThrough(t *testing.T) {
	rm := NewRateLimitMiddleware(nil, quietLogger())
	am := NewAuthMiddleware(stubAuth{"good": "alice"})
	r := newEngine(am.RequireWSAuth(), rm.WebSocketRateLimit(1, time.Minute))

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, do(r, httptest.NewRequest(http.MethodGet, "/x?token=good", nil)).Code)
	}
}

func TestWebSocketRateLimit_KeyedByUser(t *testing.T) {
	limiter := new(mockLimiter)
	limiter.On("CheckRateLimit", mock.Anything, "rate_limit:websocket:alice", int64(5), time.Minute).
		Return(false, nil)

	rm := NewRateLimitMiddleware(limiter, quietLogger())
	am := NewAuthMiddleware(stubAuth{"good": "alice"})
	r := newEngine(am.RequireWSAuth(), rm.WebSocketRateLimit(5, time.Minute))

	assert.Equal(t, http.StatusTooManyRequests, do(r, httptest.NewRequest(http.MethodGet, "/x?token=good", nil)).Code)
}

func TestCORS(t *testing.T) {
	r := newEngine(CORS([]string{"http://localhost:3000/"}))

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := do(r, req)
	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "http://evil.example")
	w = do(r, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))

	gin.SetMode(gin.TestMode)
	pre := gin.New()
	pre.Use(CORS([]string{"*"}))
	pre.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })
	req = httptest.NewRequest(http.MethodOptions, "/x", nil)
	req.Header.Set("Origin", "http://any.example")
	w = do(pre, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://any.example", w.Header().Get("Access-Control-Allow-Origin"))
}
