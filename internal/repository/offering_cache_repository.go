package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fenixctl/enroller/internal/clock"
	"github.com/fenixctl/enroller/internal/model"
)

// OfferingCache stores classified offering lists. Entries are write-once:
// SetOnce never replaces a live entry.
type OfferingCache interface {
	Get(ctx context.Context, key string) ([]model.Offering, bool, error)
	SetOnce(ctx context.Context, key string, offerings []model.Offering, ttl time.Duration) (bool, error)
}

// RedisOfferingCache is an OfferingCache backed by Redis.
type RedisOfferingCache struct {
	rdb *redis.Client
}

func NewRedisOfferingCache(rdb *redis.Client) *RedisOfferingCache {
	return &RedisOfferingCache{rdb: rdb}
}

func (c *RedisOfferingCache) Get(ctx context.Context, key string) ([]model.Offering, bool, error) {
	data, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get offerings: %w", err)
	}
	var offerings []model.Offering
	if err := json.Unmarshal(data, &offerings); err != nil {
		return nil, false, fmt.Errorf("unmarshal offerings: %w", err)
	}
	return offerings, true, nil
}

func (c *RedisOfferingCache) SetOnce(ctx context.Context, key string, offerings []model.Offering, ttl time.Duration) (bool, error) {
	data, err := json.Marshal(offerings)
	if err != nil {
		return false, fmt.Errorf("marshal offerings: %w", err)
	}
	ok, err := c.rdb.SetNX(ctx, key, data, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("set offerings: %w", err)
	}
	return ok, nil
}

type memoryEntry struct {
	offerings []model.Offering
	expires   time.Time
}

// MemoryOfferingCache is an in-process OfferingCache. A zero ttl never expires.
type MemoryOfferingCache struct {
	clock   clock.Clock
	mu      sync.Mutex
	entries map[string]memoryEntry
}

func NewMemoryOfferingCache(clk clock.Clock) *MemoryOfferingCache {
	return &MemoryOfferingCache{clock: clk, entries: make(map[string]memoryEntry)}
}

func (c *MemoryOfferingCache) Get(_ context.Context, key string) ([]model.Offering, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.live(key)
	if !ok {
		return nil, false, nil
	}
	return e.offerings, true, nil
}

func (c *MemoryOfferingCache) SetOnce(_ context.Context, key string, offerings []model.Offering, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.live(key); ok {
		return false, nil
	}
	e := memoryEntry{offerings: offerings}
	if ttl > 0 {
		e.expires = c.clock.Now().Add(ttl)
	}
	c.entries[key] = e
	return true, nil
}

func (c *MemoryOfferingCache) live(key string) (memoryEntry, bool) {
	e, ok := c.entries[key]
	if !ok {
		return memoryEntry{}, false
	}
	if !e.expires.IsZero() && !c.clock.Now().Before(e.expires) {
		delete(c.entries, key)
		return memoryEntry{}, false
	}
	return e, true
}
