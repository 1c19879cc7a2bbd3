package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/flancer/internal/config"
)

// takeToken refills the bucket for the time elapsed since its last use and
// takes one token. Returns {allowed, tokens_left, wait_ms}.
var takeToken = redis.NewScript(`
local now = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local per_ms = tonumber(ARGV[3])
local idle_ms = tonumber(ARGV[4])

local state = redis.call('HMGET', KEYS[1], 'tokens', 'at')
local tokens = tonumber(state[1]) or burst
local at = tonumber(state[2]) or now
tokens = math.min(burst, tokens + math.max(0, now - at) * per_ms)

local allowed, wait = 0, 0
if tokens >= 1 then
  allowed = 1
  tokens = tokens - 1
else
  wait = math.ceil((1 - tokens) / per_ms)
end

redis.call('HSET', KEYS[1], 'tokens', tokens, 'at', now)
redis.call('PEXPIRE', KEYS[1], idle_ms + 1000)
return {allowed, math.floor(tokens), wait}
`)

// NewTokenBucket throttles each caller on each route. Authenticated
// callers are keyed by user id, others by IP. When Redis is missing or
// fails the request goes through.
func NewTokenBucket(cfg config.RateLimitConfig, rdb *redis.Client) echo.MiddlewareFunc {
	if !cfg.Enabled || rdb == nil {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	perMs := float64(cfg.PerMinute) / float64(time.Minute/time.Millisecond)
	idle := cfg.Idle().Milliseconds()
	limit := strconv.Itoa(cfg.Burst)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			res, err := takeToken.Run(c.Request().Context(), rdb, []string{bucketKey(cfg.Prefix, c)},
				time.Now().UnixMilli(), cfg.Burst, perMs, idle).Int64Slice()
			if err != nil || len(res) != 3 {
				return next(c)
			}

			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", limit)
			h.Set("X-RateLimit-Remaining", strconv.FormatInt(res[1], 10))
			if res[0] == 1 {
				return next(c)
			}
			wait := (res[2] + 999) / 1000
			h.Set("Retry-After", strconv.FormatInt(wait, 10))
			return c.JSON(http.StatusTooManyRequests, echo.Map{
				"error":       "rate limit exceeded",
				"code":        "rate_limited",
				"retry_after": wait,
			})
		}
	}
}

// bucketKey is prefix:caller:METHOD route, e.g.
// "flancer:rl:user:7:POST /v1/negotiations/:id/agree".
func bucketKey(prefix string, c echo.Context) string {
	caller := "ip:" + c.RealIP()
	if id, ok := UserID(c); ok {
		caller = "user:" + strconv.FormatUint(id, 10)
	}
	return prefix + ":" + caller + ":" + c.Request().Method + " " + c.Path()
}
