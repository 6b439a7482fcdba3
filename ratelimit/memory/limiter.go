// Package memorylimiter is a fixed-window rate limiter held in process memory.
package memorylimiter

import (
	"time"

	"github.com/patrickmn/go-cache"
)

// Limit allows Limit hits per Window.
type Limit struct {
	Limit  int
	Window time.Duration
}

// DefaultBucket is consulted when a bucket has no limit of its own.
const DefaultBucket = "default"

type Limiter struct {
	limits  map[string]Limit
	windows *cache.Cache
}

// New builds a limiter. Buckets without an entry fall back to
// limits[DefaultBucket]; if that is missing too they are unlimited.
func New(limits map[string]Limit) *Limiter {
	cp := make(map[string]Limit, len(limits))
	for k, v := range limits {
		cp[k] = v
	}
	return &Limiter{limits: cp, windows: cache.New(cache.NoExpiration, time.Minute)}
}

func (l *Limiter) limitFor(bucket string) (Limit, bool) {
	if lim, ok := l.limits[bucket]; ok {
		return lim, lim.Limit > 0 && lim.Window > 0
	}
	lim, ok := l.limits[DefaultBucket]
	return lim, ok && lim.Limit > 0 && lim.Window > 0
}

// AllowNamed counts one hit for key against bucket's limit.
func (l *Limiter) AllowNamed(bucket string, key string) (bool, error) {
	lim, ok := l.limitFor(bucket)
	if !ok {
		return true, nil
	}
	// Add only succeeds for a fresh window; the window's expiry is fixed then.
	_ = l.windows.Add(key, 0, lim.Window)
	n, err := l.windows.IncrementInt(key, 1)
	if err != nil {
		return true, err
	}
	return n <= lim.Limit, nil
}
