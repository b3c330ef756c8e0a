package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

const (
	// IdempotencyHeader is the standard HTTP header for idempotency keys
	IdempotencyHeader = "Idempotency-Key"

	// LockTimeout prevents indefinite locks if a request crashes
	LockTimeout = 30 * time.Second

	redisKeyPrefix = "idempotency:"
	lockKeyPrefix  = "lock:idempotency:"

	storeTimeout = 5 * time.Second
)

// cachedResponse is what gets stored in Redis for a completed request
type cachedResponse struct {
	StatusCode int             `json:"status_code"`
	Body       json.RawMessage `json:"body"`
}

// responseWriterWrapper captures the status code and body for caching
type responseWriterWrapper struct {
	http.ResponseWriter
	statusCode int
	body       bytes.Buffer
}

func (rw *responseWriterWrapper) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriterWrapper) Write(b []byte) (int, error) {
	rw.body.Write(b)
	return rw.ResponseWriter.Write(b)
}

// cacheable reports whether a response may be replayed for the same key.
// 2xx responses are cached, and so is a 502 that carries a recorded transaction,
// since retrying it would append a second record.
func cacheable(status int, body []byte) bool {
	if !json.Valid(body) {
		return false
	}
	if status >= 200 && status < 300 {
		return true
	}
	if status != http.StatusBadGateway {
		return false
	}
	var recorded struct {
		TransactionID string `json:"transaction_id"`
	}
	return json.Unmarshal(body, &recorded) == nil && recorded.TransactionID != ""
}

// lookup returns the cached response for cacheKey, or nil when there is none
func lookup(ctx context.Context, rdb *redis.Client, cacheKey string) (*cachedResponse, error) {
	cached, err := rdb.Get(ctx, cacheKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var resp cachedResponse
	if err := json.Unmarshal(cached, &resp); err != nil {
		return nil, nil
	}
	return &resp, nil
}

func replay(w http.ResponseWriter, resp *cachedResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Idempotency-Hit", "true")
	w.WriteHeader(resp.StatusCode)
	w.Write(resp.Body)
}

// Idempotency replays the stored response for a repeated Idempotency-Key and
// rejects a key whose first request is still in flight.
func Idempotency(rdb *redis.Client, ttl time.Duration, log *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			idempotencyKey := r.Header.Get(IdempotencyHeader)
			if idempotencyKey == "" {
				next.ServeHTTP(w, r)
				return
			}

			// Keys are scoped to the caller when one is authenticated
			scope := idempotencyKey
			if sub, ok := Subject(ctx); ok {
				scope = sub + ":" + idempotencyKey
			}
			cacheKey := redisKeyPrefix + scope
			lockKey := lockKeyPrefix + scope
			keyLog := log.WithField("idempotency_key", idempotencyKey)

			resp, err := lookup(ctx, rdb, cacheKey)
			if err != nil {
				log.WithError(err).Error("Idempotency cache lookup failed")
				http.Error(w, "Internal server error", http.StatusInternalServerError)
				return
			}
			if resp != nil {
				keyLog.Info("Idempotency cache hit")
				replay(w, resp)
				return
			}

			acquired, err := rdb.SetNX(ctx, lockKey, "processing", LockTimeout).Result()
			if err != nil {
				log.WithError(err).Error("Idempotency lock acquisition failed")
				http.Error(w, "Internal server error", http.StatusInternalServerError)
				return
			}
			if !acquired {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusConflict)
				json.NewEncoder(w).Encode(map[string]string{
					"error":   "conflict",
					"message": "A request with this idempotency key is currently being processed",
				})
				return
			}

			// Lock release and caching must outlive a disconnected client
			storeCtx, cancel := context.WithTimeout(context.Background(), storeTimeout)
			defer cancel()
			defer func() {
				if err := rdb.Del(storeCtx, lockKey).Err(); err != nil {
					keyLog.WithError(err).Warn("Failed to release idempotency lock")
				}
			}()

			// The previous holder may have finished between the lookup and the lock
			resp, err = lookup(ctx, rdb, cacheKey)
			if err != nil {
				log.WithError(err).Error("Idempotency cache lookup failed")
				http.Error(w, "Internal server error", http.StatusInternalServerError)
				return
			}
			if resp != nil {
				keyLog.Info("Idempotency cache hit after lock")
				replay(w, resp)
				return
			}

			wrapper := &responseWriterWrapper{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(wrapper, r)

			if !cacheable(wrapper.statusCode, wrapper.body.Bytes()) {
				return
			}
			payload, err := json.Marshal(cachedResponse{StatusCode: wrapper.statusCode, Body: wrapper.body.Bytes()})
			if err != nil {
				keyLog.WithError(err).Warn("Failed to encode idempotency cache entry")
				return
			}
			if err := rdb.Set(storeCtx, cacheKey, payload, ttl).Err(); err != nil {
				keyLog.WithError(err).Warn("Failed to cache idempotent response")
			}
		})
	}
}
