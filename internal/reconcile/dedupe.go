package reconcile

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// SeenCache answers "is this event marker new" with a TTL, so provider
// retries and duplicate webhook deliveries collapse into one application.
type SeenCache interface {
	// MarkSeen records the marker and reports whether it was unseen.
	MarkSeen(ctx context.Context, marker string) (bool, error)
}

// RedisSeen backs the cache with redis SETNX so dedupe survives restarts and
// is shared across replicas.
type RedisSeen struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisSeen(client *redis.Client, ttl time.Duration) *RedisSeen {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisSeen{client: client, ttl: ttl}
}

func (r *RedisSeen) MarkSeen(ctx context.Context, marker string) (bool, error) {
	return r.client.SetNX(ctx, "seen:"+marker, 1, r.ttl).Result()
}

// MemorySeen is the in-process fallback used when no redis address is
// configured. Entries older than the TTL are dropped lazily on insert.
type MemorySeen struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]time.Time
}

func NewMemorySeen(ttl time.Duration) *MemorySeen {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &MemorySeen{ttl: ttl, entries: make(map[string]time.Time)}
}

func (m *MemorySeen) MarkSeen(_ context.Context, marker string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	for k, at := range m.entries {
		if now.Sub(at) > m.ttl {
			delete(m.entries, k)
		}
	}
	if at, ok := m.entries[marker]; ok && now.Sub(at) <= m.ttl {
		return false, nil
	}
	m.entries[marker] = now
	return true, nil
}
