package httpx

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestChainOrder(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	h := Chain(okHandler, mark("a"), mark("b"))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, []string{"a", "b"}, order)
}

func TestWithRequestID(t *testing.T) {
	var seen string
	h := WithRequestID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	h.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", seen)
	assert.Equal(t, "abc-123", rec.Header().Get(RequestIDHeader))

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, strings.Repeat("x", maxRequestIDLen+1))
	h.ServeHTTP(rec, req)
	_, err := uuid.Parse(seen)
	require.NoError(t, err)
	assert.Equal(t, seen, rec.Header().Get(RequestIDHeader))
}

func TestWithAccessLog(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	h := Chain(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}), WithRequestID, WithAccessLog(logger))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/v1/slots", nil))

	out := buf.String()
	assert.Contains(t, out, `"level":"ERROR"`)
	assert.Contains(t, out, `"status":500`)
	assert.Contains(t, out, `"path":"/api/v1/slots"`)
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	now := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }
	h := rl.Middleware()(okHandler)

	do := func(addr string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = addr
		h.ServeHTTP(rec, req)
		return rec
	}

	rec := do("10.0.0.1:1000")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "1", rec.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, http.StatusOK, do("10.0.0.1:1001").Code)

	now = now.Add(500 * time.Millisecond)
	rec = do("10.0.0.1:1002")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.Equal(t, 3, rl.visitors["10.0.0.1"].count)
	do("10.0.0.1:1003")
	assert.Equal(t, 3, rl.visitors["10.0.0.1"].count)
	assert.Equal(t, http.StatusOK, do("10.0.0.2:1000").Code)

	now = now.Add(time.Minute + time.Second)
	assert.Equal(t, http.StatusOK, do("10.0.0.1:1003").Code)
	assert.Len(t, rl.visitors, 1)
}

func TestClientKeyPrefersForwardedFor(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	assert.Equal(t, "203.0.113.9", clientKey(req))
}

// fakeScripter mimics the window script: it counts per key and reports a
// fixed remaining lifetime.
type fakeScripter struct {
	redis.Scripter
	counts map[string]int64
	ttlMs  int64
	result []interface{}
	err    error
}

func (f *fakeScripter) EvalSha(_ context.Context, _ string, keys []string, _ ...interface{}) *redis.Cmd {
	if f.err != nil {
		return redis.NewCmdResult(nil, f.err)
	}
	if f.result != nil {
		return redis.NewCmdResult(f.result, nil)
	}
	f.counts[keys[0]]++
	return redis.NewCmdResult([]interface{}{f.counts[keys[0]], f.ttlMs}, nil)
}

func TestRedisRateLimiter(t *testing.T) {
	fake := &fakeScripter{counts: map[string]int64{}, ttlMs: 12_500}
	rl := NewRedisRateLimiter(fake, 1, time.Minute, "slots")
	h := rl.Middleware(nil, false)(okHandler)

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.RemoteAddr = "10.0.0.1:1000"

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "13", rec.Header().Get("Retry-After"))
	assert.EqualValues(t, 2, fake.counts["slots:10.0.0.1"])
}

func TestRedisRateLimiterScriptValues(t *testing.T) {
	rl := NewRedisRateLimiter(&fakeScripter{result: []interface{}{"4", "900"}}, 3, time.Minute, "")
	q, err := rl.take(context.Background(), "10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, quota{limit: 3, used: 4, reset: 900 * time.Millisecond}, q)

	rec := httptest.NewRecorder()
	assert.False(t, q.write(rec))
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))

	rl = NewRedisRateLimiter(&fakeScripter{result: []interface{}{int64(1)}}, 3, time.Minute, "")
	_, err = rl.take(context.Background(), "10.0.0.1")
	assert.Error(t, err)

	rl = NewRedisRateLimiter(&fakeScripter{result: []interface{}{int64(1), 1.5}}, 3, time.Minute, "")
	_, err = rl.take(context.Background(), "10.0.0.1")
	assert.Error(t, err)
}

func TestRedisRateLimiterFailure(t *testing.T) {
	fake := &fakeScripter{counts: map[string]int64{}, err: errors.New("connection refused")}
	req := httptest.NewRequest(http.MethodPost, "/", nil)

	rec := httptest.NewRecorder()
	NewRedisRateLimiter(fake, 1, time.Minute, "").Middleware(nil, true)(okHandler).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	NewRedisRateLimiter(fake, 1, time.Minute, "").Middleware(nil, false)(okHandler).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
