package config

import "time"

// RateLimitConfig sizes the per-caller token bucket on the authenticated
// negotiation endpoints. Burst is the bucket size, PerMinute its refill.
type RateLimitConfig struct {
	Enabled   bool
	Burst     int
	PerMinute int
	Prefix    string
}

// LoadRateLimitConfig reads RATE_LIMIT_ENABLED, RATE_LIMIT_BURST,
// RATE_LIMIT_PER_MINUTE and RATE_LIMIT_PREFIX.
func LoadRateLimitConfig() RateLimitConfig {
	cfg := RateLimitConfig{
		Enabled:   envBool("RATE_LIMIT_ENABLED", true),
		Burst:     envInt("RATE_LIMIT_BURST", 30),
		PerMinute: envInt("RATE_LIMIT_PER_MINUTE", 60),
		Prefix:    getenv("RATE_LIMIT_PREFIX", "flancer:rl"),
	}
	if cfg.Burst < 1 {
		cfg.Burst = 1
	}
	if cfg.PerMinute < 1 {
		cfg.PerMinute = 1
	}
	return cfg
}

// Idle is how long an untouched bucket takes to refill completely; after
// that its state can be dropped.
func (c RateLimitConfig) Idle() time.Duration {
	perMinute := c.PerMinute
	if perMinute < 1 {
		perMinute = 1
	}
	return time.Duration(c.Burst) * time.Minute / time.Duration(perMinute)
}
