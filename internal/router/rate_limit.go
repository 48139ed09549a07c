package router

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/Kosei0128/Plane-SNS/internal/http/response"
	"github.com/Kosei0128/Plane-SNS/internal/logger"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// RateLimitKeyFunc 生成限流 key 的函数
type RateLimitKeyFunc func(*gin.Context) string

// RateLimitRule 限流规则
type RateLimitRule struct {
	Prefix        string
	WindowSeconds int
	MaxRequests   int
}

var rateLimitScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
	redis.call("EXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("TTL", KEYS[1])
return {current, ttl}
`)

// localLimiter 进程内令牌桶，Redis 不可用时兜底
type localLimiter struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	limiters map[string]*localEntry
	lastGC   time.Time
}

type localEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newLocalLimiter(rule RateLimitRule) *localLimiter {
	return &localLimiter{
		limit:    rate.Limit(float64(rule.MaxRequests) / float64(rule.WindowSeconds)),
		burst:    rule.MaxRequests,
		limiters: make(map[string]*localEntry),
		lastGC:   time.Now(),
	}
}

func (l *localLimiter) allow(key string, window time.Duration) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := time.Now()
	if now.Sub(l.lastGC) > window {
		for k, entry := range l.limiters {
			if now.Sub(entry.lastSeen) > window {
				delete(l.limiters, k)
			}
		}
		l.lastGC = now
	}
	entry, ok := l.limiters[key]
	if !ok {
		entry = &localEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[key] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}

// RateLimitMiddleware 频率限制中间件：有 Redis 时按固定窗口计数，否则使用进程内令牌桶
func RateLimitMiddleware(client *redis.Client, rule RateLimitRule, keyFunc RateLimitKeyFunc) gin.HandlerFunc {
	if rule.WindowSeconds <= 0 || rule.MaxRequests <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	local := newLocalLimiter(rule)
	window := time.Duration(rule.WindowSeconds) * time.Second

	return func(c *gin.Context) {
		key := ""
		if keyFunc != nil {
			key = strings.TrimSpace(keyFunc(c))
		}
		if key == "" {
			key = c.ClientIP()
		}
		if rule.Prefix != "" {
			key = fmt.Sprintf("%s:%s", rule.Prefix, key)
		}

		if client == nil {
			if !local.allow(key, window) {
				rejectRateLimited(c, rule.WindowSeconds)
				return
			}
			c.Next()
			return
		}

		count, ttlSeconds, err := runRateLimitScript(c, client, key, rule.WindowSeconds)
		if err != nil {
			logger.Warnw("rate_limit_redis_failed", "key", key, "error", err)
			if !local.allow(key, window) {
				rejectRateLimited(c, rule.WindowSeconds)
				return
			}
			c.Next()
			return
		}
		if count > int64(rule.MaxRequests) {
			waitSeconds := int(ttlSeconds)
			if waitSeconds < 1 {
				waitSeconds = rule.WindowSeconds
			}
			rejectRateLimited(c, waitSeconds)
			return
		}
		c.Next()
	}
}

func runRateLimitScript(c *gin.Context, client *redis.Client, key string, windowSeconds int) (int64, int64, error) {
	result, err := rateLimitScript.Run(c.Request.Context(), client, []string{key}, windowSeconds).Result()
	if err != nil {
		return 0, 0, err
	}
	values, ok := result.([]interface{})
	if !ok || len(values) < 2 {
		return 0, 0, fmt.Errorf("unexpected rate limit result: %v", result)
	}
	count, ok := toInt64(values[0])
	if !ok {
		return 0, 0, fmt.Errorf("unexpected rate limit counter: %v", values[0])
	}
	ttl, _ := toInt64(values[1])
	return count, ttl, nil
}

func rejectRateLimited(c *gin.Context, waitSeconds int) {
	if waitSeconds < 1 {
		waitSeconds = 1
	}
	c.Header("Retry-After", fmt.Sprintf("%d", waitSeconds))
	response.Error(c, response.CodeTooManyRequests, fmt.Sprintf("too many requests, retry after %d seconds", waitSeconds))
	c.Abort()
}

// KeyByIP 使用 IP 作为限流 key
func KeyByIP(c *gin.Context) string {
	return c.ClientIP()
}

// KeyByUser 已登录接口按用户限流
func KeyByUser(c *gin.Context) string {
	if uid := c.GetString("user_id"); uid != "" {
		return "user:" + uid
	}
	return c.ClientIP()
}

// KeyByIPAndJSONField 使用 IP + JSON 字段作为限流 key
func KeyByIPAndJSONField(field string) RateLimitKeyFunc {
	return func(c *gin.Context) string {
		value := strings.ToLower(strings.TrimSpace(readJSONField(c, field)))
		if value == "" {
			return c.ClientIP()
		}
		return fmt.Sprintf("%s|%s", value, c.ClientIP())
	}
}

func readJSONField(c *gin.Context, field string) string {
	if c == nil || c.Request == nil || c.Request.Body == nil {
		return ""
	}
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return ""
	}
	c.Request.Body = io.NopCloser(bytes.NewBuffer(body))
	if len(body) == 0 {
		return ""
	}
	var payload map[string]interface{}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	if text, ok := payload[field].(string); ok {
		return strings.TrimSpace(text)
	}
	return ""
}

func toInt64(value interface{}) (int64, bool) {
	switch v := value.(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	case uint64:
		return int64(v), true
	case uint32:
		return int64(v), true
	case uint8:
		return int64(v), true
	case float64:
		return int64(v), true
	default:
		return 0, false
	}
}
