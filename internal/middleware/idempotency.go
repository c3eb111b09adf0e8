package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"

	"github.com/ticketrush/reservation-core/internal/response"
)

const (
	// IdempotencyKeyHeader carries the client-chosen idempotency key
	IdempotencyKeyHeader = "X-Idempotency-Key"
	// ContextKeyIdempotencyKey is the gin context key for the key
	ContextKeyIdempotencyKey = "idempotency_key"

	idempotencyKeyPrefix = "idempotency:"
	statusProcessing     = "processing"
)

// RedisClient is the subset of Redis operations the middleware uses
type RedisClient interface {
	Get(ctx context.Context, key string) *goredis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *goredis.StatusCmd
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *goredis.BoolCmd
	Del(ctx context.Context, keys ...string) *goredis.IntCmd
}

// IdempotencyConfig holds configuration for the idempotency middleware
type IdempotencyConfig struct {
	Redis RedisClient
	// TTL for completed records
	TTL time.Duration
	// ProcessingTTL bounds how long a first request may run before a
	// retry is allowed through again
	ProcessingTTL time.Duration
}

type idempotencyRecord struct {
	Status       string `json:"status"`
	ResponseCode int    `json:"response_code"`
	ResponseBody string `json:"response_body"`
}

type bodyCapture struct {
	gin.ResponseWriter
	body []byte
}

func (w *bodyCapture) Write(b []byte) (int, error) {
	w.body = append(w.body, b...)
	return w.ResponseWriter.Write(b)
}

// Idempotency deduplicates mutating requests carrying an
// X-Idempotency-Key header. The first request runs and its response
// is cached; a duplicate replays the cached response; a concurrent
// duplicate gets 409 while the first is still in flight. Requests
// without the header pass through untouched.
func Idempotency(cfg *IdempotencyConfig) gin.HandlerFunc {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	processingTTL := cfg.ProcessingTTL
	if processingTTL <= 0 {
		processingTTL = 60 * time.Second
	}

	return func(c *gin.Context) {
		if c.Request.Method == http.MethodGet || c.Request.Method == http.MethodHead {
			c.Next()
			return
		}

		key := c.GetHeader(IdempotencyKeyHeader)
		if key == "" {
			c.Next()
			return
		}
		c.Set(ContextKeyIdempotencyKey, key)

		ctx := c.Request.Context()
		redisKey := idempotencyKeyPrefix + key

		processing, _ := json.Marshal(idempotencyRecord{Status: statusProcessing})
		acquired, err := cfg.Redis.SetNX(ctx, redisKey, string(processing), processingTTL).Result()
		if err != nil {
			// Redis trouble must not block the request path.
			c.Next()
			return
		}

		if !acquired {
			raw, err := cfg.Redis.Get(ctx, redisKey).Result()
			if err != nil {
				c.Next()
				return
			}
			var record idempotencyRecord
			if err := json.Unmarshal([]byte(raw), &record); err != nil {
				c.Next()
				return
			}
			if record.Status == statusProcessing {
				response.Error(c, http.StatusConflict, "REQUEST_IN_PROGRESS",
					"a request with this idempotency key is still being processed", "")
				c.Abort()
				return
			}
			c.Data(record.ResponseCode, "application/json", []byte(record.ResponseBody))
			c.Abort()
			return
		}

		capture := &bodyCapture{ResponseWriter: c.Writer}
		c.Writer = capture
		c.Next()

		status := c.Writer.Status()
		if status >= 500 {
			// Let the client retry a server failure from scratch.
			cfg.Redis.Del(ctx, redisKey)
			return
		}

		completed, err := json.Marshal(idempotencyRecord{
			Status:       "completed",
			ResponseCode: status,
			ResponseBody: string(capture.body),
		})
		if err == nil {
			cfg.Redis.Set(ctx, redisKey, string(completed), ttl)
		}
	}
}
