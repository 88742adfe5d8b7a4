package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"carpool/internal/logger"
)

const (
	IdempotencyHeader = "Idempotency-Key"
	idempotencyTTL    = 24 * time.Hour
	idempotencyPrefix = "idempotency:"

	// idempotencyPending marks a key whose first request is still running.
	// The reservation expires on its own if the process dies mid-request.
	idempotencyPending    = "pending"
	idempotencyPendingTTL = time.Minute
)

// cachedResponse is what gets replayed for a repeated key.
type cachedResponse struct {
	StatusCode int             `json:"status_code"`
	Body       json.RawMessage `json:"body"`
	Headers    http.Header     `json:"headers"`
}

// responseWriter tees the response body so it can be cached.
type responseWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w *responseWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

// IdempotencyMiddleware replays the stored response when a mutating request
// repeats an Idempotency-Key. Keys are scoped to the caller and route, so
// two users cannot collide on the same key. The key is reserved before the
// handler runs; a repeat that arrives while the first request is still in
// flight gets 409. Redis failures degrade to normal processing.
func IdempotencyMiddleware(redisClient *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodPost && c.Request.Method != http.MethodPut && c.Request.Method != http.MethodPatch {
			c.Next()
			return
		}

		key := c.GetHeader(IdempotencyHeader)
		if key == "" {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		cacheKey := idempotencyCacheKey(UserID(c), c.Request.Method, c.Request.URL.Path, key)

		reserved, err := redisClient.SetNX(ctx, cacheKey, idempotencyPending, idempotencyPendingTTL).Result()
		if err != nil {
			logger.Log.Warnw("idempotency reservation failed", "key", cacheKey, "error", err)
			c.Next()
			return
		}

		if !reserved {
			cached, err := getCachedResponse(ctx, redisClient, cacheKey)
			switch {
			case errors.Is(err, errRequestInFlight) || errors.Is(err, redis.Nil):
				c.AbortWithStatusJSON(http.StatusConflict, gin.H{
					"success": false,
					"message": "a request with this Idempotency-Key is already in progress",
				})
			case err != nil:
				logger.Log.Warnw("idempotency lookup failed", "key", cacheKey, "error", err)
				c.Next()
			default:
				for k, v := range cached.Headers {
					for _, val := range v {
						c.Header(k, val)
					}
				}
				c.Header("Idempotent-Replayed", "true")
				c.Data(cached.StatusCode, "application/json", cached.Body)
				c.Abort()
			}
			return
		}

		stored := false
		defer func() {
			if stored {
				return
			}
			if err := redisClient.Del(context.WithoutCancel(ctx), cacheKey).Err(); err != nil {
				logger.Log.Warnw("idempotency release failed", "key", cacheKey, "error", err)
			}
		}()

		w := &responseWriter{
			ResponseWriter: c.Writer,
			body:           &bytes.Buffer{},
		}
		c.Writer = w

		c.Next()

		// Server errors are left uncached so the client can retry.
		if status := c.Writer.Status(); status >= 200 && status < 500 && w.body.Len() > 0 {
			response := cachedResponse{
				StatusCode: status,
				Body:       w.body.Bytes(),
				Headers:    extractResponseHeaders(c),
			}
			if err := setCachedResponse(ctx, redisClient, cacheKey, &response, idempotencyTTL); err != nil {
				logger.Log.Warnw("idempotency store failed", "key", cacheKey, "error", err)
				return
			}
			stored = true
		}
	}
}

func idempotencyCacheKey(userID, method, path, key string) string {
	if userID == "" {
		userID = "anonymous"
	}
	return idempotencyPrefix + userID + ":" + method + ":" + path + ":" + key
}

var errRequestInFlight = errors.New("idempotent request in flight")

func getCachedResponse(ctx context.Context, client *redis.Client, key string) (*cachedResponse, error) {
	data, err := client.Get(ctx, key).Bytes()
	if err != nil {
		return nil, err
	}
	if string(data) == idempotencyPending {
		return nil, errRequestInFlight
	}

	var cached cachedResponse
	if err := json.Unmarshal(data, &cached); err != nil {
		return nil, err
	}

	return &cached, nil
}

func setCachedResponse(ctx context.Context, client *redis.Client, key string, response *cachedResponse, ttl time.Duration) error {
	data, err := json.Marshal(response)
	if err != nil {
		return err
	}

	return client.Set(ctx, key, data, ttl).Err()
}

// extractResponseHeaders keeps only Content-Type.
func extractResponseHeaders(c *gin.Context) http.Header {
	headers := make(http.Header)
	if ct := c.Writer.Header().Get("Content-Type"); ct != "" {
		headers.Set("Content-Type", ct)
	}
	return headers
}
