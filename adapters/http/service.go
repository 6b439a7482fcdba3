package authhttp

import (
	"net/http"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	core "github.com/open-rails/phoneverify/core"
	memorylimiter "github.com/open-rails/phoneverify/ratelimit/memory"
	redislimiter "github.com/open-rails/phoneverify/ratelimit/redis"
)

// Service exposes a core.Registry of verification flows over net/http.
type Service struct {
	reg      *core.Registry
	rl       RateLimiter
	clientIP ClientIPFunc
	log      logrus.FieldLogger
}

// NewService wraps reg. Rate limiting defaults to the in-memory limiter with
// DefaultRateLimits.
func NewService(reg *core.Registry) *Service {
	return &Service{
		reg:      reg,
		rl:       memorylimiter.New(ToMemoryLimits(DefaultRateLimits())),
		clientIP: DefaultClientIP(),
		log:      logrus.StandardLogger(),
	}
}

// WithRedis switches rate limiting to a shared redis limiter so limits hold
// across instances.
func (s *Service) WithRedis(rd redis.UniversalClient) *Service {
	if rd != nil {
		s.rl = redislimiter.New(rd, ToRedisLimits(DefaultRateLimits()))
	}
	return s
}

func (s *Service) WithRateLimiter(rl RateLimiter) *Service { s.rl = rl; return s }
func (s *Service) DisableRateLimiter() *Service            { s.rl = nil; return s }

func (s *Service) WithClientIPFunc(fn ClientIPFunc) *Service {
	if fn == nil {
		s.clientIP = DefaultClientIP()
		return s
	}
	s.clientIP = fn
	return s
}

func (s *Service) WithLogger(l logrus.FieldLogger) *Service {
	if l != nil {
		s.log = l
	}
	return s
}

func (s *Service) Registry() *core.Registry { return s.reg }

func (s *Service) ip(r *http.Request) string {
	fn := s.clientIP
	if fn == nil {
		fn = DefaultClientIP()
	}
	return strings.TrimSpace(fn(r))
}

func (s *Service) allow(r *http.Request, bucket string) bool {
	if s == nil || s.rl == nil {
		return true
	}
	ip := s.ip(r)
	if ip == "" {
		return true
	}
	key := "auth:" + bucket + ":ip:" + ip
	ok, err := s.rl.AllowNamed(bucket, key)
	if err != nil {
		s.log.WithError(err).WithField("bucket", bucket).Warn("rate limiter unavailable")
		return true
	}
	return ok
}
