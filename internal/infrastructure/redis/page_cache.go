package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alexeysirenko/prjctr-home-assignments-2-tig/internal/domain/message"

	"github.com/redis/go-redis/v9"
)

const versionKey = "messages:version"

// PageCache caches list pages under a generation number. Every write bumps
// the generation, so pages cached before the write are never served again.
type PageCache struct {
	client *redis.Client
	ttl    time.Duration
	log    *slog.Logger
}

func NewPageCache(client *redis.Client, ttl time.Duration, log *slog.Logger) *PageCache {
	return &PageCache{client: client, ttl: ttl, log: log}
}

// Load returns the cache key for page and, on a hit, the cached messages.
// An empty key means the cache is unusable right now and Save is a no-op.
func (c *PageCache) Load(ctx context.Context, page int) (string, []message.Message, bool) {
	version, err := c.client.Get(ctx, versionKey).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		c.log.Debug("page cache version lookup failed", "error", err)
		return "", nil, false
	}

	key := fmt.Sprintf("messages:v%d:page:%d", version, page)
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		return key, nil, false
	}

	var msgs []message.Message
	if err := json.Unmarshal(raw, &msgs); err != nil {
		return key, nil, false
	}
	return key, msgs, true
}

func (c *PageCache) Save(ctx context.Context, key string, msgs []message.Message) {
	if key == "" {
		return
	}
	data, err := json.Marshal(msgs)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.log.Debug("page cache save failed", "key", key, "error", err)
	}
}

func (c *PageCache) Invalidate(ctx context.Context) {
	if err := c.client.Incr(ctx, versionKey).Err(); err != nil {
		c.log.Warn("page cache invalidation failed", "error", err)
	}
}
