package httpx

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRateLimiter keeps one fixed-window counter per client in Redis so every
// replica pointed at the same instance shares the quota.
type RedisRateLimiter struct {
	rdb    redis.Scripter
	limit  int
	window time.Duration
	prefix string
}

// windowScript bumps the counter and reports it with the window's remaining
// lifetime in ms. A key that lost its TTL is given a fresh one.
var windowScript = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
local ttl = redis.call("PTTL", KEYS[1])
if n == 1 or ttl < 0 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end
return {n, ttl}
`)

func NewRedisRateLimiter(rdb redis.Scripter, limit int, window time.Duration, prefix string) *RedisRateLimiter {
	rl := &RedisRateLimiter{rdb: rdb, limit: limit, window: window, prefix: strings.TrimSpace(prefix)}
	if rl.limit <= 0 {
		rl.limit = 60
	}
	if rl.window < time.Millisecond {
		rl.window = time.Minute
	}
	if rl.prefix == "" {
		rl.prefix = "rl"
	}
	return rl
}

// Middleware enforces the quota. With failOpen a Redis error lets the request
// through; otherwise it is answered with 503.
func (rl *RedisRateLimiter) Middleware(logger *slog.Logger, failOpen bool) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			q, err := rl.take(r.Context(), clientKey(r))
			if err != nil {
				if logger != nil {
					logger.Warn("redis rate limiter error", "err", err, "fail_open", failOpen)
				}
				if !failOpen {
					http.Error(w, "rate limiter unavailable", http.StatusServiceUnavailable)
					return
				}
				next.ServeHTTP(w, r)
				return
			}
			if !q.write(w) {
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (rl *RedisRateLimiter) take(ctx context.Context, client string) (quota, error) {
	res, err := windowScript.Run(ctx, rl.rdb, []string{rl.prefix + ":" + client}, rl.window.Milliseconds()).Slice()
	if err != nil {
		return quota{}, err
	}
	if len(res) != 2 {
		return quota{}, fmt.Errorf("rate limit script returned %d values", len(res))
	}
	used, err := scriptInt(res[0])
	if err != nil {
		return quota{}, err
	}
	ttl, err := scriptInt(res[1])
	if err != nil {
		return quota{}, err
	}
	return quota{limit: rl.limit, used: int(used), reset: time.Duration(ttl) * time.Millisecond}, nil
}

// scriptInt reads a Lua number, which some proxies hand back as a string.
func scriptInt(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case string:
		return strconv.ParseInt(n, 10, 64)
	default:
		return 0, fmt.Errorf("unexpected rate limit script value %T", v)
	}
}
