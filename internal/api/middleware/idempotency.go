package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	ChiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
)

const (
	processingMarker = "PROCESSING"
	lockTTL          = 10 * time.Second
	resultTTL        = 24 * time.Hour
	storeTimeout     = 2 * time.Second
)

type storedResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
}

// Idempotency replays the stored response for a repeated Idempotency-Key.
// A nil client or a Redis outage lets every request through.
func Idempotency(redisClient *redis.Client, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if redisClient == nil {
				next.ServeHTTP(w, r)
				return
			}

			// Only apply to state-changing methods
			if r.Method != http.MethodPost && r.Method != http.MethodPut && r.Method != http.MethodPatch {
				next.ServeHTTP(w, r)
				return
			}

			key := r.Header.Get("Idempotency-Key")
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			idemKey := fmt.Sprintf("idempotency:%s", key)
			ctx := r.Context()

			val, err := redisClient.Get(ctx, idemKey).Result()
			switch {
			case err == nil:
				replay(w, val)
				return
			case !errors.Is(err, redis.Nil):
				log.Warn("idempotency lookup failed, serving without it", "error", err)
				next.ServeHTTP(w, r)
				return
			}

			acquired, err := redisClient.SetNX(ctx, idemKey, processingMarker, lockTTL).Result()
			if err != nil {
				log.Warn("idempotency lock failed, serving without it", "error", err)
				next.ServeHTTP(w, r)
				return
			}
			if !acquired {
				writeConflict(w)
				return
			}

			ww := ChiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			body := &bytes.Buffer{}
			ww.Tee(body)

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}

			// The outcome is recorded even if the client has already gone away.
			storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), storeTimeout)
			defer cancel()

			// Server errors are not final; let the client retry with the same key.
			if status >= http.StatusInternalServerError {
				if err := redisClient.Del(storeCtx, idemKey).Err(); err != nil {
					log.Warn("failed to clear idempotency lock", "error", err)
				}
				return
			}

			data, err := json.Marshal(storedResponse{
				Status:      status,
				ContentType: ww.Header().Get("Content-Type"),
				Body:        body.Bytes(),
			})
			if err != nil {
				return
			}
			if err := redisClient.Set(storeCtx, idemKey, data, resultTTL).Err(); err != nil {
				log.Warn("failed to store idempotent response", "error", err)
			}
		})
	}
}

func replay(w http.ResponseWriter, val string) {
	if val == processingMarker {
		writeConflict(w)
		return
	}

	var stored storedResponse
	if err := json.Unmarshal([]byte(val), &stored); err != nil {
		writeConflict(w)
		return
	}

	if stored.ContentType != "" {
		w.Header().Set("Content-Type", stored.ContentType)
	}
	w.Header().Set("X-Idempotency-Hit", "true")
	w.WriteHeader(stored.Status)
	w.Write(stored.Body)
}

func writeConflict(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusConflict)
	w.Write([]byte(`{"error":"concurrent request"}`))
}
