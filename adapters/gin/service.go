package authgin

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/open-rails/phoneverify/adapters/gin/handlers"
	"github.com/open-rails/phoneverify/adapters/ginutil"
	core "github.com/open-rails/phoneverify/core"
	memorylimiter "github.com/open-rails/phoneverify/ratelimit/memory"
	redisl "github.com/open-rails/phoneverify/ratelimit/redis"
)

// Service mounts a core.Registry of verification flows on Gin routers.
type Service struct {
	reg      *core.Registry
	rd       redis.UniversalClient
	rl       ginutil.RateLimiter
	verifier TokenVerifier
}

func NewService(reg *core.Registry) *Service { return &Service{reg: reg} }

func (s *Service) WithRedis(rd redis.UniversalClient) *Service     { s.rd = rd; return s }
func (s *Service) WithRateLimiter(rl ginutil.RateLimiter) *Service { s.rl = rl; return s }
func (s *Service) WithTokenVerifier(v TokenVerifier) *Service      { s.verifier = v; return s }
func (s *Service) Registry() *core.Registry                        { return s.reg }

// GinRegisterAPI mounts the flow endpoints under the given router/group (e.g., /api/v1).
func (s *Service) GinRegisterAPI(api gin.IRouter) *Service {
	rl := s.ensureLimiter()

	api.POST("/verify/flows", handlers.HandleFlowOpenPOST(s.reg, rl))
	api.GET("/verify/flows/:id", handlers.HandleFlowGET(s.reg, rl))
	api.DELETE("/verify/flows/:id", handlers.HandleFlowDELETE(s.reg, rl))
	api.POST("/verify/flows/:id/phone", handlers.HandleFlowPhonePOST(s.reg, rl))
	api.POST("/verify/flows/:id/code", handlers.HandleFlowCodePOST(s.reg, rl))
	api.POST("/verify/flows/:id/resend", handlers.HandleFlowResendPOST(s.reg, rl))
	api.POST("/verify/flows/:id/cancel", handlers.HandleFlowCancelPOST(s.reg, rl))
	return s
}

// Required returns the ID token gate configured with WithTokenVerifier.
func (s *Service) Required() gin.HandlerFunc { return PhoneTokenRequired(s.verifier) }

func (s *Service) ensureLimiter() ginutil.RateLimiter {
	if s.rl != nil {
		return s.rl
	}
	if s.rd != nil {
		s.rl = redisl.New(s.rd, defaultLimits())
		return s.rl
	}
	log.Info("phoneverify: redis client not configured; using in-memory rate limiter (single-node only)")
	s.rl = memorylimiter.New(defaultMemoryLimits())
	return s.rl
}

// defaultLimits provides default per-IP limits for the flow endpoints.
func defaultLimits() map[string]redisl.Limit {
	return map[string]redisl.Limit{
		redisl.DefaultBucket: {Limit: 120, Window: time.Minute},
		ginutil.RLFlowOpen:   {Limit: 30, Window: 10 * time.Minute},
		ginutil.RLFlowRead:   {Limit: 600, Window: 10 * time.Minute},
		ginutil.RLFlowPhone:  {Limit: 6, Window: 10 * time.Minute}, // each call may send an SMS
		ginutil.RLFlowResend: {Limit: 6, Window: 10 * time.Minute},
		ginutil.RLFlowCode:   {Limit: 20, Window: 10 * time.Minute},
		ginutil.RLFlowCancel: {Limit: 60, Window: 10 * time.Minute},
	}
}

func defaultMemoryLimits() map[string]memorylimiter.Limit {
	in := defaultLimits()
	out := make(map[string]memorylimiter.Limit, len(in))
	for k, v := range in {
		out[k] = memorylimiter.Limit{Limit: v.Limit, Window: v.Window}
	}
	return out
}
