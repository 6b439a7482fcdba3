// Package redislimiter is a fixed-window rate limiter shared through Redis.
package redislimiter

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

type Limit struct {
	Limit  int
	Window time.Duration
}

const DefaultBucket = "default"

// DefaultTimeout bounds each Redis round trip made by AllowNamed.
const DefaultTimeout = 250 * time.Millisecond

type Limiter struct {
	rdb     redis.UniversalClient
	limits  map[string]Limit
	timeout time.Duration
}

func New(rdb redis.UniversalClient, limits map[string]Limit) *Limiter {
	cp := make(map[string]Limit, len(limits))
	for k, v := range limits {
		cp[k] = v
	}
	return &Limiter{rdb: rdb, limits: cp, timeout: DefaultTimeout}
}

func (l *Limiter) WithTimeout(d time.Duration) *Limiter {
	if d > 0 {
		l.timeout = d
	}
	return l
}

func (l *Limiter) limitFor(bucket string) (Limit, bool) {
	lim, ok := l.limits[bucket]
	if !ok {
		lim, ok = l.limits[DefaultBucket]
	}
	return lim, ok && lim.Limit > 0 && lim.Window > 0
}

// AllowNamed increments key and sets its expiry on the first hit of a window.
func (l *Limiter) AllowNamed(bucket string, key string) (bool, error) {
	lim, ok := l.limitFor(bucket)
	if !ok {
		return true, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
	defer cancel()

	n, err := l.rdb.Incr(ctx, key).Result()
	if err != nil {
		return true, err
	}
	if n == 1 {
		if err := l.rdb.PExpire(ctx, key, lim.Window).Err(); err != nil {
			return true, err
		}
	}
	return n <= int64(lim.Limit), nil
}
