package core

import (
	"time"

	"github.com/open-rails/phoneverify/challenge"
)

// Config holds the timing and policy knobs of a verification flow. Zero
// values are replaced with defaults.
type Config struct {
	// RenderTarget is the challenge mount point looked up through the SDK.
	RenderTarget string
	// ResendCooldown is the window after each successful dispatch during
	// which resend is refused.
	ResendCooldown time.Duration
	// StaleAfter is the challenge token TTL.
	StaleAfter time.Duration
	// MaxDispatchAttempts bounds challenge+dispatch attempts per request,
	// including the first one. The default of 2 allows one automatic retry.
	MaxDispatchAttempts int
	// FlowIdleTTL is how long the Registry keeps an untouched flow.
	FlowIdleTTL time.Duration

	Phone PhonePolicy
	Quota QuotaConfig
}

// QuotaConfig limits successful-or-not dispatch requests per phone number.
type QuotaConfig struct {
	Limit  int
	Window time.Duration
}

const (
	DefaultRenderTarget        = "recaptcha-container"
	DefaultResendCooldown      = 30 * time.Second
	DefaultMaxDispatchAttempts = 2
	DefaultFlowIdleTTL         = 15 * time.Minute
	DefaultQuotaLimit          = 5
	DefaultQuotaWindow         = time.Hour
)

func DefaultConfig() Config { return Config{}.withDefaults() }

func (c Config) withDefaults() Config {
	if c.RenderTarget == "" {
		c.RenderTarget = DefaultRenderTarget
	}
	if c.ResendCooldown <= 0 {
		c.ResendCooldown = DefaultResendCooldown
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = challenge.DefaultStaleAfter
	}
	if c.MaxDispatchAttempts <= 0 {
		c.MaxDispatchAttempts = DefaultMaxDispatchAttempts
	}
	if c.FlowIdleTTL <= 0 {
		c.FlowIdleTTL = DefaultFlowIdleTTL
	}
	c.Phone = c.Phone.withDefaults()
	if c.Quota.Limit <= 0 {
		c.Quota.Limit = DefaultQuotaLimit
	}
	if c.Quota.Window <= 0 {
		c.Quota.Window = DefaultQuotaWindow
	}
	return c
}
