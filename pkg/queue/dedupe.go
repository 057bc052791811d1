package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
)

// Deduper remembers job ids that reached a final outcome so redelivered
// copies can be acknowledged without running the handler again.
type Deduper interface {
	Seen(ctx context.Context, jobID string) (bool, error)
	Mark(ctx context.Context, jobID string) error
}

type RedisDeduper struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisDeduper(client *redis.Client, ttl time.Duration) *RedisDeduper {
	return &RedisDeduper{
		client: client,
		prefix: "tabkeeper:jobs:done:",
		ttl:    ttl,
	}
}

func (d *RedisDeduper) key(jobID string) string {
	return fmt.Sprintf("%s%s", d.prefix, jobID)
}

func (d *RedisDeduper) Seen(ctx context.Context, jobID string) (bool, error) {
	n, err := d.client.Exists(ctx, d.key(jobID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (d *RedisDeduper) Mark(ctx context.Context, jobID string) error {
	return d.client.SetNX(ctx, d.key(jobID), 1, d.ttl).Err()
}

// MemoryDeduper keeps the ledger in process memory. Entries expire after
// the configured TTL and are purged every ten minutes.
type MemoryDeduper struct {
	cache *cache.Cache
}

func NewMemoryDeduper(ttl time.Duration) *MemoryDeduper {
	return &MemoryDeduper{
		cache: cache.New(ttl, 10*time.Minute),
	}
}

func (d *MemoryDeduper) Seen(ctx context.Context, jobID string) (bool, error) {
	_, found := d.cache.Get(jobID)
	return found, nil
}

func (d *MemoryDeduper) Mark(ctx context.Context, jobID string) error {
	d.cache.SetDefault(jobID, struct{}{})
	return nil
}
