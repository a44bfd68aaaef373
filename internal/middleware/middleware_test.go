package middleware

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/beunreal/story-service/internal/apperr"
	"github.com/beunreal/story-service/internal/auth"
	"github.com/go-redis/redismock/v9"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type fakeVerifier map[string]string

func (f fakeVerifier) VerifyToken(token string) (string, error) {
	if id, ok := f[token]; ok {
		return id, nil
	}
	return "", errors.New("bad token")
}

func newApp() *fiber.App {
	return fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return c.Status(apperr.HTTPStatus(err)).SendString(apperr.PublicMessage(err))
		},
	})
}

func do(t *testing.T, app *fiber.App, req *http.Request) (int, string) {
	t.Helper()
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(b)
}

func TestJWT(t *testing.T) {
	app := newApp()
	app.Use(JWT(fakeVerifier{"good": "u1"}, zap.NewNop()))
	app.Get("/", func(c *fiber.Ctx) error {
		return c.SendString(UserID(c) + "|" + auth.TokenFrom(c.UserContext()))
	})

	tests := []struct {
		name   string
		header string
		status int
		body   string
	}{
		{"missing", "", http.StatusUnauthorized, "missing authorization header"},
		{"wrong scheme", "Basic good", http.StatusUnauthorized, "invalid authorization header"},
		{"bad token", "Bearer nope", http.StatusUnauthorized, "invalid token"},
		{"ok", "Bearer good", http.StatusOK, "u1|good"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			status, body := do(t, app, req)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.body, body)
		})
	}
}

func TestIPRateLimiter(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 6/min gives the minimum burst of 5 and a refill far slower than the test
	l := NewIPRateLimiter(ctx, 6, zap.NewNop())
	app := newApp()
	app.Use(l.Handler())
	app.Get("/", func(c *fiber.Ctx) error { return c.SendStatus(http.StatusNoContent) })

	for i := 0; i < 5; i++ {
		status, _ := do(t, app, httptest.NewRequest(http.MethodGet, "/", nil))
		require.Equal(t, http.StatusNoContent, status)
	}
	status, body := do(t, app, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTooManyRequests, status)
	assert.Equal(t, "rate limit exceeded", body)
}

func TestIPRateLimiterReusesVisitor(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	l := NewIPRateLimiter(ctx, 60, zap.NewNop())

	first := l.limiter("10.0.0.1")
	assert.Same(t, first, l.limiter("10.0.0.1"))
	assert.NotSame(t, first, l.limiter("10.0.0.2"))
}

func TestRedisRateLimiter(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	rl := NewRedisRateLimiter(rdb, "story", 2, time.Hour, zap.NewNop())

	app := newApp()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals(userIDKey, "u1")
		return c.Next()
	})
	app.Post("/", rl.ByUser(), func(c *fiber.Ctx) error { return c.SendStatus(http.StatusCreated) })

	key := "story:ratelimit:u1"
	// every hit re-arms the TTL with NX, so a key can never outlive its window
	for i, armed := range []bool{true, false, false} {
		mock.ExpectTxPipeline()
		mock.ExpectIncr(key).SetVal(int64(i + 1))
		mock.ExpectExpireNX(key, time.Hour).SetVal(armed)
		mock.ExpectTxPipelineExec()
	}

	for _, want := range []int{http.StatusCreated, http.StatusCreated, http.StatusTooManyRequests} {
		status, _ := do(t, app, httptest.NewRequest(http.MethodPost, "/", nil))
		assert.Equal(t, want, status)
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisRateLimiterFailsOpen(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	rl := NewRedisRateLimiter(rdb, "story", 1, time.Hour, zap.NewNop())

	app := newApp()
	app.Post("/", rl.ByKey(func(*fiber.Ctx) string { return "k" }), func(c *fiber.Ctx) error {
		return c.SendStatus(http.StatusCreated)
	})

	// no expectations: every redis call fails
	status, _ := do(t, app, httptest.NewRequest(http.MethodPost, "/", nil))
	assert.Equal(t, http.StatusCreated, status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestZapLoggerReportsErrorStatus(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	app := newApp()
	app.Use(ZapLogger(zap.New(core)))
	app.Get("/missing", func(c *fiber.Ctx) error { return apperr.NotFound("story not found") })
	app.Get("/ok", func(c *fiber.Ctx) error { return c.SendString("fine") })

	status, _ := do(t, app, httptest.NewRequest(http.MethodGet, "/missing", nil))
	assert.Equal(t, http.StatusNotFound, status)
	do(t, app, httptest.NewRequest(http.MethodGet, "/ok", nil))

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, zap.WarnLevel, entries[0].Level)
	assert.EqualValues(t, http.StatusNotFound, entries[0].ContextMap()["status"])
	assert.Equal(t, zap.InfoLevel, entries[1].Level)
}
