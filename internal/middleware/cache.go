package middleware

import (
    "bytes"
    "context"
    "crypto/sha1"
    "encoding/json"
    "errors"
    "fmt"
    "log/slog"
    "net/http"
    "strings"

    "github.com/labstack/echo/v4"
    "github.com/redis/go-redis/v9"

    "github.com/iliyamo/cinema-showtime-scheduler/internal/config"
    "github.com/iliyamo/cinema-showtime-scheduler/internal/logger/sl"
)

// bodyRecorder forwards the response to the client and keeps a copy of
// the first max bytes.  A longer body marks the recording truncated.
type bodyRecorder struct {
    http.ResponseWriter
    code      int
    body      bytes.Buffer
    max       int
    truncated bool
}

func (br *bodyRecorder) WriteHeader(code int) {
    br.code = code
    br.ResponseWriter.WriteHeader(code)
}

func (br *bodyRecorder) Write(b []byte) (int, error) {
    switch {
    case br.truncated:
    case br.max > 0 && br.body.Len()+len(b) > br.max:
        br.truncated = true
        br.body.Reset()
    default:
        br.body.Write(b)
    }
    return br.ResponseWriter.Write(b)
}

// cacheable reports whether the recorded response may be stored.
func (br *bodyRecorder) cacheable() bool {
    return br.code == http.StatusOK && !br.truncated
}

// cacheKeyFrom builds a stable key from the concrete request path, so
// /v1/halls/1/showtimes and /v1/halls/2/showtimes never share an entry.
func cacheKeyFrom(cfg config.CacheConfig, c echo.Context) string {
    r := c.Request()
    path := r.URL.Path

    var parts []string
    switch strings.ToLower(cfg.KeyStrategy) {
    case "route":
        parts = []string{"route", path}
    case "method_route":
        parts = []string{"method", r.Method, "route", path}
    case "method_route_query":
        parts = []string{"method", r.Method, "route", path, "q", r.URL.RawQuery}
    default: // route_query
        parts = []string{"route", path, "q", r.URL.RawQuery}
    }
    sum := sha1.Sum([]byte(strings.Join(parts, ":")))
    return fmt.Sprintf("%s:%x", cfg.Prefix, sum[:])
}

// cachedResponse is the JSON document stored under a cache key.  Only
// the content type is kept from the original headers.
type cachedResponse struct {
    Status      int    `json:"status"`
    ContentType string `json:"content_type,omitempty"`
    Body        []byte `json:"body"`
}

func decodeCached(raw []byte) (cachedResponse, bool) {
    var cr cachedResponse
    if err := json.Unmarshal(raw, &cr); err != nil || cr.Status == 0 {
        return cachedResponse{}, false
    }
    return cr, true
}

func (cr cachedResponse) replay(c echo.Context) error {
    h := c.Response().Header()
    if cr.ContentType != "" {
        h.Set(echo.HeaderContentType, cr.ContentType)
    }
    h.Set("X-Cache", "HIT")
    c.Response().WriteHeader(cr.Status)
    _, err := c.Response().Write(cr.Body)
    return err
}

// NewRedisCache caches successful responses of the configured methods in
// Redis for cfg.TTL.  Entries are never invalidated on write; a listing may
// lag the schedule by at most one TTL.
func NewRedisCache(cfg config.CacheConfig, rdb *redis.Client, log *slog.Logger) echo.MiddlewareFunc {
    if !cfg.Enabled || rdb == nil || cfg.TTL <= 0 {
        return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
    }
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            if !cfg.Methods[strings.ToUpper(c.Request().Method)] {
                return next(c)
            }
            ctx := c.Request().Context()
            key := cacheKeyFrom(cfg, c)

            raw, err := rdb.Get(ctx, key).Bytes()
            if err == nil {
                if cr, ok := decodeCached(raw); ok {
                    return cr.replay(c)
                }
                log.Warn("cache entry unreadable", slog.String("key", key))
            } else if !errors.Is(err, redis.Nil) {
                log.Warn("cache read failed", slog.String("key", key), sl.Err(err))
            }

            rec := &bodyRecorder{ResponseWriter: c.Response().Writer, code: http.StatusOK, max: cfg.MaxBodyBytes}
            c.Response().Writer = rec
            c.Response().Header().Set("X-Cache", "MISS")

            if err := next(c); err != nil || !rec.cacheable() {
                return err
            }
            entry, err := json.Marshal(cachedResponse{
                Status:      rec.code,
                ContentType: c.Response().Header().Get(echo.HeaderContentType),
                Body:        rec.body.Bytes(),
            })
            if err != nil {
                return nil
            }
            if err := rdb.SetEx(context.WithoutCancel(ctx), key, entry, cfg.TTL).Err(); err != nil {
                log.Warn("cache write failed", slog.String("key", key), sl.Err(err))
            }
            return nil
        }
    }
}
