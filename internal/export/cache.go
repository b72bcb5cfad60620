package export

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache stores rendered PDFs. Implementations must not return entries older
// than their freshness window.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, data []byte) error
}

// CacheKey changes whenever the document changes, so stale content is never
// looked up.
func CacheKey(documentID string, updatedAt time.Time, fillable bool) string {
	return fmt.Sprintf("pdf:%s:%d:%t", documentID, updatedAt.UnixNano(), fillable)
}

type cachedPDF struct {
	GeneratedAt time.Time `json:"generated_at"`
	Data        []byte    `json:"data"`
}

type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	now    func() time.Time
}

func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &RedisCache{client: client, ttl: ttl, now: time.Now}
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get cached pdf: %w", err)
	}
	var entry cachedPDF
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, false, fmt.Errorf("decode cached pdf: %w", err)
	}
	if c.now().Sub(entry.GeneratedAt) > c.ttl {
		return nil, false, nil
	}
	return entry.Data, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, data []byte) error {
	raw, err := json.Marshal(cachedPDF{GeneratedAt: c.now(), Data: data})
	if err != nil {
		return fmt.Errorf("encode cached pdf: %w", err)
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("set cached pdf: %w", err)
	}
	return nil
}
