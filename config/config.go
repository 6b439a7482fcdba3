// Package config loads the devserver configuration from the environment and
// an optional .env file using Viper.
package config

import (
	"errors"
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/open-rails/phoneverify/core"
)

const (
	ProviderLocal           = "local"
	ProviderIdentityToolkit = "identitytoolkit"

	RouterHTTP = "http"
	RouterGin  = "gin"
)

// Config holds devserver configuration.
type Config struct {
	ListenAddr string `mapstructure:"PHONEVERIFY_LISTEN_ADDR"`
	Env        string `mapstructure:"APP_ENV"`
	// Router selects the net/http mux or the gin engine.
	Router   string `mapstructure:"PHONEVERIFY_ROUTER"`
	LogLevel string `mapstructure:"PHONEVERIFY_LOG_LEVEL"`
	// TrustedProxies is a comma-separated list of proxy CIDRs whose
	// forwarding headers are honored.
	TrustedProxies string `mapstructure:"PHONEVERIFY_TRUSTED_PROXIES"`

	// Provider is "local" (codes generated here) or "identitytoolkit".
	Provider    string `mapstructure:"PHONEVERIFY_PROVIDER"`
	APIKey      string `mapstructure:"PHONEVERIFY_API_KEY"`
	ProjectID   string `mapstructure:"PHONEVERIFY_PROJECT_ID"`
	ProviderURL string `mapstructure:"PHONEVERIFY_PROVIDER_URL"`

	// RedisURL enables the redis-backed store and rate limiter when set.
	RedisURL string `mapstructure:"PHONEVERIFY_REDIS_URL"`

	CountryCode    string        `mapstructure:"PHONEVERIFY_COUNTRY_CODE"`
	ResendCooldown time.Duration `mapstructure:"PHONEVERIFY_RESEND_COOLDOWN"`
	StaleAfter     time.Duration `mapstructure:"PHONEVERIFY_CHALLENGE_STALE_AFTER"`
	FlowIdleTTL    time.Duration `mapstructure:"PHONEVERIFY_FLOW_IDLE_TTL"`
	CodeTTL        time.Duration `mapstructure:"PHONEVERIFY_CODE_TTL"`
	QuotaLimit     int           `mapstructure:"PHONEVERIFY_QUOTA_LIMIT"`
	QuotaWindow    time.Duration `mapstructure:"PHONEVERIFY_QUOTA_WINDOW"`

	SMSLocalAPIKey  string `mapstructure:"SMS_LOCAL_API_KEY"`
	SMSLocalSender  string `mapstructure:"SMS_LOCAL_SENDER"`
	SMSLocalBaseURL string `mapstructure:"SMS_LOCAL_BASE_URL"`
	// DevSMSLog logs generated codes instead of sending them. Refused when
	// APP_ENV=production.
	DevSMSLog bool `mapstructure:"PHONEVERIFY_DEV_SMS_LOG"`
}

// Load reads .env (if present), then builds and validates Config from the
// environment. Env vars override .env.
func Load() (*Config, error) {
	return load(".env")
}

func load(file string) (*Config, error) {
	v := viper.New()

	if file != "" {
		v.SetConfigFile(file)
		v.SetConfigType("env")
		_ = v.ReadInConfig() // missing file is fine
	}

	v.AutomaticEnv()

	v.SetDefault("PHONEVERIFY_LISTEN_ADDR", ":8080")
	v.SetDefault("APP_ENV", "")
	v.SetDefault("PHONEVERIFY_ROUTER", RouterHTTP)
	v.SetDefault("PHONEVERIFY_LOG_LEVEL", "info")
	v.SetDefault("PHONEVERIFY_TRUSTED_PROXIES", "")
	v.SetDefault("PHONEVERIFY_PROVIDER", ProviderLocal)
	v.SetDefault("PHONEVERIFY_API_KEY", "")
	v.SetDefault("PHONEVERIFY_PROJECT_ID", "")
	v.SetDefault("PHONEVERIFY_PROVIDER_URL", "")
	v.SetDefault("PHONEVERIFY_REDIS_URL", "")
	v.SetDefault("PHONEVERIFY_COUNTRY_CODE", "91")
	v.SetDefault("PHONEVERIFY_RESEND_COOLDOWN", "30s")
	v.SetDefault("PHONEVERIFY_CHALLENGE_STALE_AFTER", "5m")
	v.SetDefault("PHONEVERIFY_FLOW_IDLE_TTL", "15m")
	v.SetDefault("PHONEVERIFY_CODE_TTL", "10m")
	v.SetDefault("PHONEVERIFY_QUOTA_LIMIT", core.DefaultQuotaLimit)
	v.SetDefault("PHONEVERIFY_QUOTA_WINDOW", "1h")
	v.SetDefault("SMS_LOCAL_API_KEY", "")
	v.SetDefault("SMS_LOCAL_SENDER", "")
	v.SetDefault("SMS_LOCAL_BASE_URL", "")
	v.SetDefault("PHONEVERIFY_DEV_SMS_LOG", false)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks required fields and cross-field rules.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.ListenAddr) == "" {
		return errors.New("config: PHONEVERIFY_LISTEN_ADDR must be set")
	}
	switch c.Router {
	case RouterHTTP, RouterGin:
	default:
		return fmt.Errorf("config: PHONEVERIFY_ROUTER must be %q or %q", RouterHTTP, RouterGin)
	}
	switch c.Provider {
	case ProviderLocal:
		if c.SMSLocalAPIKey == "" && !c.DevSMSLog {
			return errors.New("config: SMS_LOCAL_API_KEY is required unless PHONEVERIFY_DEV_SMS_LOG=true")
		}
	case ProviderIdentityToolkit:
		if c.APIKey == "" {
			return errors.New("config: PHONEVERIFY_API_KEY is required for the identitytoolkit provider")
		}
		if c.ProjectID == "" {
			return errors.New("config: PHONEVERIFY_PROJECT_ID is required for the identitytoolkit provider")
		}
	default:
		return fmt.Errorf("config: unknown PHONEVERIFY_PROVIDER %q", c.Provider)
	}
	if c.DevSMSLog && c.Production() {
		return errors.New("config: PHONEVERIFY_DEV_SMS_LOG must not be true when APP_ENV=production")
	}
	if c.ResendCooldown < 0 || c.StaleAfter < 0 || c.FlowIdleTTL < 0 || c.CodeTTL < 0 || c.QuotaWindow < 0 {
		return errors.New("config: durations must not be negative")
	}
	if c.QuotaLimit < 0 {
		return errors.New("config: PHONEVERIFY_QUOTA_LIMIT must not be negative")
	}
	if _, err := c.TrustedProxyPrefixes(); err != nil {
		return err
	}
	return nil
}

func (c *Config) Production() bool {
	e := strings.ToLower(strings.TrimSpace(c.Env))
	return e == "prod" || e == "production"
}

// Core maps the flow knobs onto core.Config. Zero values fall back to the
// core defaults.
func (c *Config) Core() core.Config {
	return core.Config{
		ResendCooldown: c.ResendCooldown,
		StaleAfter:     c.StaleAfter,
		FlowIdleTTL:    c.FlowIdleTTL,
		Phone:          core.PhonePolicy{CountryCode: c.CountryCode},
		Quota:          core.QuotaConfig{Limit: c.QuotaLimit, Window: c.QuotaWindow},
	}
}

// TrustedProxyList returns the trusted proxy CIDRs.
func (c *Config) TrustedProxyList() []string {
	if c == nil || c.TrustedProxies == "" {
		return nil
	}
	parts := strings.Split(c.TrustedProxies, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func (c *Config) TrustedProxyPrefixes() ([]netip.Prefix, error) {
	list := c.TrustedProxyList()
	out := make([]netip.Prefix, 0, len(list))
	for _, s := range list {
		p, err := netip.ParsePrefix(s)
		if err != nil {
			return nil, fmt.Errorf("config: PHONEVERIFY_TRUSTED_PROXIES: %w", err)
		}
		out = append(out, p)
	}
	return out, nil
}
