package memorystore

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
)

// DefaultSweepInterval is how often expired keys are purged.
const DefaultSweepInterval = time.Minute

// KV is an in-memory key-value store with TTL support.
// It is only safe for single-process deployments.
type KV struct {
	c *cache.Cache
}

func NewKV() *KV {
	return NewKVWithSweep(DefaultSweepInterval)
}

// NewKVWithSweep sets the janitor interval; zero or less disables the janitor
// and expired keys are dropped lazily on read.
func NewKVWithSweep(interval time.Duration) *KV {
	return &KV{c: cache.New(cache.NoExpiration, interval)}
}

func (k *KV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	_ = ctx
	v, ok := k.c.Get(key)
	if !ok {
		return nil, false, nil
	}
	b, _ := v.([]byte)
	return append([]byte(nil), b...), true, nil
}

// Set stores a copy of value. A ttl of zero or less never expires.
func (k *KV) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	_ = ctx
	if ttl <= 0 {
		ttl = cache.NoExpiration
	}
	k.c.Set(key, append([]byte(nil), value...), ttl)
	return nil
}

func (k *KV) Del(ctx context.Context, key string) error {
	_ = ctx
	k.c.Delete(key)
	return nil
}

// Len counts stored keys, including expired keys not yet swept.
func (k *KV) Len() int { return k.c.ItemCount() }
