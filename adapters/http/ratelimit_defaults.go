package authhttp

import (
	"time"

	memorylimiter "github.com/open-rails/phoneverify/ratelimit/memory"
	redislimiter "github.com/open-rails/phoneverify/ratelimit/redis"
)

// Limit configures a named rate limit bucket.
type Limit struct {
	Limit  int
	Window time.Duration
}

// DefaultRateLimits returns the built-in per-endpoint limits, enforced per
// client IP. Hosts can override by supplying their own limiter via
// WithRateLimiter(...).
func DefaultRateLimits() map[string]Limit {
	return map[string]Limit{
		memorylimiter.DefaultBucket: {Limit: 120, Window: time.Minute},

		RLFlowOpen:   {Limit: 30, Window: 10 * time.Minute},
		RLFlowRead:   {Limit: 600, Window: 10 * time.Minute},
		RLFlowCancel: {Limit: 60, Window: 10 * time.Minute},

		// SMS-costing endpoints
		RLFlowPhone:  {Limit: 6, Window: 10 * time.Minute},
		RLFlowResend: {Limit: 6, Window: 10 * time.Minute},

		RLFlowCode: {Limit: 20, Window: 10 * time.Minute},
	}
}

func ToMemoryLimits(in map[string]Limit) map[string]memorylimiter.Limit {
	out := make(map[string]memorylimiter.Limit, len(in))
	for k, v := range in {
		out[k] = memorylimiter.Limit{Limit: v.Limit, Window: v.Window}
	}
	return out
}

func ToRedisLimits(in map[string]Limit) map[string]redislimiter.Limit {
	out := make(map[string]redislimiter.Limit, len(in))
	for k, v := range in {
		out[k] = redislimiter.Limit{Limit: v.Limit, Window: v.Window}
	}
	return out
}
