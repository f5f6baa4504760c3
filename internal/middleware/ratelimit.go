package middleware

import (
    "fmt"
    "log/slog"
    "net/http"
    "strconv"
    "strings"
    "time"

    "github.com/labstack/echo/v4"
    "github.com/redis/go-redis/v9"

    "github.com/iliyamo/cinema-showtime-scheduler/internal/config"
    "github.com/iliyamo/cinema-showtime-scheduler/internal/logger/sl"
)

// bucketScript refills continuously at refill/interval tokens per
// millisecond and takes one token if available.
// Reply: {granted 0|1, whole tokens left, wait ms until one token}.
var bucketScript = redis.NewScript(`
local cap    = tonumber(ARGV[2])
local rate   = tonumber(ARGV[3]) / tonumber(ARGV[4])
local now    = tonumber(ARGV[1])

local h   = redis.call('HMGET', KEYS[1], 'tokens', 'ts')
local tok = tonumber(h[1]) or cap
local ts  = tonumber(h[2]) or now
if now > ts then
  tok = math.min(cap, tok + (now - ts) * rate)
end

local granted, wait = 0, 0
if tok >= 1 then
  granted = 1
  tok = tok - 1
else
  wait = math.ceil((1 - tok) / rate)
end

redis.call('HSET', KEYS[1], 'tokens', tok, 'ts', now)
redis.call('PEXPIRE', KEYS[1], ARGV[5])
return {granted, math.floor(tok), wait}
`)

// bucketResult is the decoded reply of bucketScript.
type bucketResult struct {
    Granted   bool
    Remaining int64
    Wait      time.Duration
}

// RetryAfter rounds the wait up to whole seconds for the Retry-After header.
func (r bucketResult) RetryAfter() int {
    return int((r.Wait + time.Second - 1) / time.Second)
}

func parseBucketReply(v any) (bucketResult, error) {
    arr, ok := v.([]any)
    if !ok || len(arr) != 3 {
        return bucketResult{}, fmt.Errorf("unexpected limiter reply %v", v)
    }
    var n [3]int64
    for i, raw := range arr {
        switch t := raw.(type) {
        case int64:
            n[i] = t
        case string:
            p, err := strconv.ParseInt(t, 10, 64)
            if err != nil {
                return bucketResult{}, fmt.Errorf("limiter reply field %d: %w", i, err)
            }
            n[i] = p
        default:
            return bucketResult{}, fmt.Errorf("limiter reply field %d has type %T", i, raw)
        }
    }
    return bucketResult{
        Granted:   n[0] == 1,
        Remaining: max(n[1], 0),
        Wait:      time.Duration(max(n[2], 0)) * time.Millisecond,
    }, nil
}

// NewTokenBucket limits requests per key with a Redis-backed token bucket.
// Without Redis, or when disabled, it passes every request through; a
// Redis failure at request time also lets the request through.
func NewTokenBucket(cfg config.RateLimitConfig, rdb *redis.Client, log *slog.Logger) echo.MiddlewareFunc {
    if !cfg.Enabled || rdb == nil {
        return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
    }
    limit := strconv.Itoa(cfg.Capacity)

    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            key := buildRateKey(cfg, c)
            reply, err := bucketScript.Run(c.Request().Context(), rdb, []string{key},
                time.Now().UnixMilli(),
                cfg.Capacity,
                cfg.RefillTokens,
                cfg.RefillInterval.Milliseconds(),
                cfg.TTL.Milliseconds(),
            ).Result()
            if err != nil {
                log.Warn("rate limiter unavailable", slog.String("key", key), sl.Err(err))
                return next(c)
            }
            res, err := parseBucketReply(reply)
            if err != nil {
                log.Warn("rate limiter reply ignored", slog.String("key", key), sl.Err(err))
                return next(c)
            }

            h := c.Response().Header()
            h.Set("X-RateLimit-Limit", limit)
            h.Set("X-RateLimit-Remaining", strconv.FormatInt(res.Remaining, 10))
            if cfg.Debug {
                h.Set("X-RateLimit-Key", key)
            }
            if res.Granted {
                return next(c)
            }

            secs := res.RetryAfter()
            h.Set("Retry-After", strconv.Itoa(secs))
            log.Debug("rate limited", slog.String("key", key), slog.Duration("wait", res.Wait))
            return c.JSON(http.StatusTooManyRequests, echo.Map{
                "error":       "TOO_MANY_REQUESTS",
                "message":     "rate limit exceeded",
                "retry_after": secs,
            })
        }
    }
}

// buildRateKey joins the configured key parts: ip, user and route, in
// that order, each included when named by the strategy.
func buildRateKey(cfg config.RateLimitConfig, c echo.Context) string {
    strategy := strings.ToLower(cfg.KeyStrategy)
    switch strategy {
    case "ip", "user", "route", "ip_user", "ip_route", "user_route":
    default:
        strategy = "ip_user_route"
    }
    uses := func(part string) bool {
        for _, s := range strings.Split(strategy, "_") {
            if s == part {
                return true
            }
        }
        return false
    }

    parts := []string{cfg.Prefix}
    if uses("ip") {
        ip := c.RealIP()
        if ip == "" {
            ip = "unknown"
        }
        parts = append(parts, "ip", ip)
    }
    if uses("user") {
        parts = append(parts, "user", userKey(c))
    }
    if uses("route") {
        parts = append(parts, "route", c.Request().Method+" "+c.Path())
    }
    return strings.Join(parts, ":")
}
