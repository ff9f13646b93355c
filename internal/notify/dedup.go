package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const alertKeyPrefix = "appeal_alert:"

// AlertGate decides whether a supervisor alert may be sent.
type AlertGate interface {
	// TryAcquire returns true exactly once per key within ttl.
	TryAcquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// AlertKey builds the deduplication key for one alert.
// Format: {kind}:{appeal_id}:{version}
func AlertKey(kind string, appealID, version int64) string {
	return fmt.Sprintf("%s:%d:%d", kind, appealID, version)
}

// RedisDeduplicator shares cooldowns across instances.
type RedisDeduplicator struct {
	client *redis.Client
}

func NewRedisDeduplicator(client *redis.Client) *RedisDeduplicator {
	return &RedisDeduplicator{client: client}
}

// TryAcquire uses SetNX so concurrent instances cannot both win.
func (d *RedisDeduplicator) TryAcquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	acquired, err := d.client.SetNX(ctx, alertKeyPrefix+key, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire alert lock: %w", err)
	}
	return acquired, nil
}

// MemoryDeduplicator is the single-process fallback.
type MemoryDeduplicator struct {
	mu      sync.Mutex
	now     func() time.Time
	expires map[string]time.Time
}

func NewMemoryDeduplicator(now func() time.Time) *MemoryDeduplicator {
	if now == nil {
		now = time.Now
	}
	return &MemoryDeduplicator{now: now, expires: make(map[string]time.Time)}
}

func (d *MemoryDeduplicator) TryAcquire(_ context.Context, key string, ttl time.Duration) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.now()
	if until, ok := d.expires[key]; ok && now.Before(until) {
		return false, nil
	}
	d.expires[key] = now.Add(ttl)
	return true, nil
}
