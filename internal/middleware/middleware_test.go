package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/expass/internal/model"
	apperrors "github.com/jwalitptl/expass/pkg/errors"
	"github.com/jwalitptl/expass/pkg/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeSessions map[string]*model.User

func (f fakeSessions) ValidateSession(_ context.Context, token string) (*model.Session, *model.User, error) {
	u, ok := f[token]
	if !ok {
		return nil, nil, errors.New("session not found")
	}
	return &model.Session{ID: uuid.New(), UserID: u.ID}, u, nil
}

func serve(r http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthenticateAndRequireRole(t *testing.T) {
	auth := NewAuthMiddleware(fakeSessions{
		"admin-token":  {Base: model.Base{ID: uuid.New()}, Roles: []string{"administrator"}},
		"editor-token": {Base: model.Base{ID: uuid.New()}, Roles: []string{"editor"}},
	})

	r := gin.New()
	r.GET("/admin", auth.Authenticate(), auth.RequireRole("administrator"), func(c *gin.Context) {
		user, ok := CurrentUser(c)
		require.True(t, ok)
		c.String(http.StatusOK, user.Roles[0])
	})

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"no header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic admin-token", http.StatusUnauthorized},
		{"unknown session", "Bearer nope", http.StatusUnauthorized},
		{"missing role", "Bearer editor-token", http.StatusForbidden},
		{"admin", "bearer admin-token", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/admin", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			assert.Equal(t, tt.status, serve(r, req).Code)
		})
	}
}

func TestErrorHandler(t *testing.T) {
	r := gin.New()
	r.Use(RequestID(), ErrorHandler())
	r.GET("/app", func(c *gin.Context) {
		_ = c.Error(apperrors.BadRequest("email already registered", errors.New("duplicate key")))
	})
	r.GET("/raw", func(c *gin.Context) {
		_ = c.Error(errors.New("pq: connection refused"))
	})
	r.GET("/redirected", func(c *gin.Context) {
		c.Redirect(http.StatusFound, "/login")
		_ = c.Error(errors.New("already answered"))
	})

	req := httptest.NewRequest(http.MethodGet, "/app", nil)
	req.Header.Set(HeaderXRequestID, "req-1")
	w := serve(r, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "email already registered")
	assert.Contains(t, w.Body.String(), `"trace_id":"req-1"`)
	assert.NotContains(t, w.Body.String(), "duplicate key")

	w = serve(r, httptest.NewRequest(http.MethodGet, "/raw", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "connection refused")

	w = serve(r, httptest.NewRequest(http.MethodGet, "/redirected", nil))
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/login", w.Header().Get("Location"))
}

func TestRequestID(t *testing.T) {
	var fromCtx string
	r := gin.New()
	r.Use(RequestID())
	r.GET("/", func(c *gin.Context) {
		var buf testWriter
		l := logger.NewLogger(&logger.Config{Output: &buf, JSON: true}).WithContext(c.Request.Context())
		l.Info("hello")
		fromCtx = buf.String()
		c.Status(http.StatusOK)
	})

	w := serve(r, httptest.NewRequest(http.MethodGet, "/", nil))
	rid := w.Header().Get(HeaderXRequestID)
	require.NotEmpty(t, rid)
	assert.Contains(t, fromCtx, rid)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderXRequestID, "given")
	assert.Equal(t, "given", serve(r, req).Header().Get(HeaderXRequestID))
}

type testWriter struct {
	data []byte
}

func (w *testWriter) Write(p []byte) (int, error) {
	w.data = append(w.data, p...)
	return len(p), nil
}

func (w *testWriter) String() string { return string(w.data) }

func TestRecovery(t *testing.T) {
	r := gin.New()
	r.Use(Recovery())
	r.GET("/", func(c *gin.Context) { panic("boom") })

	w := serve(r, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "internal server error")
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{Rate: rate.Every(time.Hour), Burst: 2, IdleTTL: time.Minute})
	current := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return current }

	r := gin.New()
	r.Use(rl.RateLimit())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	from := func(ip string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = ip + ":1234"
		return serve(r, req).Code
	}

	assert.Equal(t, http.StatusOK, from("10.0.0.1"))
	assert.Equal(t, http.StatusOK, from("10.0.0.1"))
	assert.Equal(t, http.StatusTooManyRequests, from("10.0.0.1"))
	assert.Equal(t, http.StatusOK, from("10.0.0.2"))

	current = current.Add(2 * time.Minute)
	rl.Cleanup()
	rl.mu.Lock()
	assert.Empty(t, rl.clients)
	rl.mu.Unlock()
}
