package authhttp

// RateLimiter is the limiter contract the adapters depend on. Both
// ratelimit/memory and ratelimit/redis implement it.
type RateLimiter interface {
	AllowNamed(bucket string, key string) (bool, error)
}
