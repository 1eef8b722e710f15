package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"donor-impact-api/internal/logging"
)

func TestRateLimiter_PerClient(t *testing.T) {
	rl := NewRateLimiter(1, time.Hour, 2)
	defer rl.Stop()

	assert.True(t, rl.Allow("a"))
	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))

	assert.True(t, rl.Allow("b"))
}

func TestRateLimitMiddleware_Rejects(t *testing.T) {
	rl := NewRateLimiter(1, time.Hour, 1)
	defer rl.Stop()

	r := chi.NewRouter()
	r.Use(RateLimitMiddleware(rl))
	r.Get("/", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	first := httptest.NewRecorder()
	r.ServeHTTP(first, httptest.NewRequest("GET", "/", nil))
	assert.Equal(t, http.StatusOK, first.Code)

	second := httptest.NewRecorder()
	r.ServeHTTP(second, httptest.NewRequest("GET", "/", nil))
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Equal(t, "1", second.Header().Get("X-RateLimit-Limit"))
}

func TestGetClientKey(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	assert.Equal(t, "10.0.0.1", GetClientKey(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	assert.Equal(t, "203.0.113.9", GetClientKey(req))
}

func TestRequestLogger_AttachesLogger(t *testing.T) {
	base := zap.NewNop().Sugar()
	var got *zap.SugaredLogger

	h := RequestLogger(base)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = logging.FromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest("GET", "/", nil))

	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.NotNil(t, got)
}

func TestTracingMiddleware_PassesThrough(t *testing.T) {
	r := chi.NewRouter()
	r.Use(TracingMiddleware("test"))
	r.Get("/donors/{donor_id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest("GET", "/donors/abc", nil))
	assert.Equal(t, http.StatusTeapot, rr.Code)
}
