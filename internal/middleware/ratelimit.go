package middleware

import (
    "context"
    _ "embed"
    "math"
    "net/http"
    "strconv"
    "strings"
    "time"

    "github.com/labstack/echo/v4"
    "github.com/redis/go-redis/v9"
    "go.uber.org/zap"

    "github.com/wordCupProject/worldcup/internal/config"
)

//go:embed token_bucket.lua
var tokenBucketLua string

var tokenBucketScript = redis.NewScript(tokenBucketLua)

// NewTokenBucket limits requests with a token bucket kept in Redis so
// every instance shares the same counters.  With rate limiting disabled
// or no Redis client the middleware is a pass-through, and a Redis error
// lets the request through.
func NewTokenBucket(cfg config.RateLimitConfig, rdb redis.Scripter, log *zap.Logger) echo.MiddlewareFunc {
    if !cfg.Enabled || rdb == nil {
        return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
    }
    b := &bucket{cfg: cfg, rdb: rdb, now: time.Now}

    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            key := buildRateKey(cfg, c)
            res, err := b.take(c.Request().Context(), key)
            if err != nil {
                log.Warn("rate limit check failed", zap.String("key", key), zap.Error(err))
                return next(c)
            }

            h := c.Response().Header()
            h.Set("X-RateLimit-Limit", strconv.Itoa(cfg.Capacity))
            h.Set("X-RateLimit-Remaining", strconv.FormatInt(res.remaining, 10))
            if cfg.Debug {
                h.Set("X-RateLimit-Key", key)
            }
            if res.allowed {
                return next(c)
            }

            secs := res.retryAfterSeconds()
            h.Set("Retry-After", strconv.Itoa(secs))
            log.Debug("rate limited", zap.String("key", key), zap.Int64("retry_ms", res.retryMs))
            return c.JSON(http.StatusTooManyRequests, map[string]any{
                "error":       "rate limit exceeded",
                "code":        "TOO_MANY_REQUESTS",
                "retry_after": secs,
            })
        }
    }
}

type bucket struct {
    cfg config.RateLimitConfig
    rdb redis.Scripter
    now func() time.Time
}

// take removes one token from the bucket at key.
func (b *bucket) take(ctx context.Context, key string) (bucketResult, error) {
    vals, err := tokenBucketScript.Run(ctx, b.rdb, []string{key},
        b.now().UnixMilli(),
        b.cfg.Capacity,
        b.cfg.RefillTokens,
        b.cfg.RefillInterval.Milliseconds(),
        b.cfg.TTL.Milliseconds(),
    ).Result()
    if err != nil {
        return bucketResult{}, err
    }
    res, ok := parseBucket(vals)
    if !ok {
        return bucketResult{}, errBadBucketReply
    }
    return res, nil
}

type rateLimitError string

func (e rateLimitError) Error() string { return string(e) }

const errBadBucketReply = rateLimitError("unexpected token bucket reply")

// bucketResult mirrors the {allowed, tokens_left, retry_after_ms} reply.
type bucketResult struct {
    allowed   bool
    remaining int64
    retryMs   int64
}

func (r bucketResult) retryAfterSeconds() int {
    return int(math.Max(0, math.Ceil(float64(r.retryMs)/1000)))
}

func parseBucket(vals any) (bucketResult, bool) {
    arr, ok := vals.([]any)
    if !ok || len(arr) != 3 {
        return bucketResult{}, false
    }
    n := make([]int64, 3)
    for i, v := range arr {
        switch t := v.(type) {
        case int64:
            n[i] = t
        case string:
            parsed, err := strconv.ParseInt(t, 10, 64)
            if err != nil {
                return bucketResult{}, false
            }
            n[i] = parsed
        default:
            return bucketResult{}, false
        }
    }
    return bucketResult{allowed: n[0] == 1, remaining: n[1], retryMs: n[2]}, true
}

// rateKeyParts lists the components each RATE_LIMIT_KEY_STRATEGY keys on.
var rateKeyParts = map[string][]string{
    "ip":         {"ip"},
    "user":       {"user"},
    "route":      {"route"},
    "ip_user":    {"ip", "user"},
    "ip_route":   {"ip", "route"},
    "user_route": {"user", "route"},
}

func buildRateKey(cfg config.RateLimitConfig, c echo.Context) string {
    parts, ok := rateKeyParts[strings.ToLower(cfg.KeyStrategy)]
    if !ok {
        parts = []string{"ip", "user", "route"}
    }
    key := []string{cfg.Prefix}
    for _, p := range parts {
        var v string
        switch p {
        case "ip":
            if v = c.RealIP(); v == "" {
                v = "unknown"
            }
        case "user":
            v = userKey(c)
        case "route":
            v = c.Request().Method + " " + c.Path()
        }
        key = append(key, p, v)
    }
    return strings.Join(key, ":")
}
